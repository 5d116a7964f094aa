package codec

import (
	"encoding/json"
	"fmt"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"

	"npcchat/dialogue"
)

// Kind is the frame encoding. Values match the WebSocket message types.
type Kind int

const (
	KindText   Kind = 1
	KindBinary Kind = 2
)

// Frame is one decoded chat request.
type Frame struct {
	RequestID string
	Request   dialogue.LookupRequest
}

// Reply answers one Frame. Exactly one of Result and Error is set.
type Reply struct {
	RequestID string                 `json:"requestId,omitempty"`
	Result    *dialogue.LookupResult `json:"result,omitempty"`
	Error     string                 `json:"error,omitempty"`
}

type textFrame struct {
	RequestID string `json:"requestId"`
	dialogue.LookupRequest
}

// DecodeFrame parses and validates a request frame. Text frames carry JSON,
// binary frames a serialized google.protobuf.Struct with the same fields.
// A request ID that was readable is returned even when validation fails.
func DecodeFrame(kind Kind, data []byte) (Frame, error) {
	var f Frame
	switch kind {
	case KindText:
		var tf textFrame
		if err := json.Unmarshal(data, &tf); err != nil {
			return f, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
		}
		f.RequestID, f.Request = tf.RequestID, tf.LookupRequest
	case KindBinary:
		var s structpb.Struct
		if err := proto.Unmarshal(data, &s); err != nil {
			return f, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
		}
		fields := s.AsMap()
		var err error
		if f.RequestID, err = stringField(fields, "requestId"); err != nil {
			return f, err
		}
		if f.Request.NPCSlug, err = stringField(fields, "npcSlug"); err != nil {
			return f, err
		}
		if f.Request.Pool, err = stringField(fields, "pool"); err != nil {
			return f, err
		}
		if f.Request.ContextHash, err = stringField(fields, "contextHash"); err != nil {
			return f, err
		}
		if raw, ok := fields["playerContext"]; ok && raw != nil {
			obj, ok := raw.(map[string]any)
			if !ok {
				return f, fmt.Errorf("%w: playerContext must be an object", ErrInvalidRequest)
			}
			f.Request.PlayerContext = obj
		}
	default:
		return f, fmt.Errorf("%w: unsupported frame kind %d", ErrInvalidRequest, kind)
	}
	if err := ValidateRequest(&f.Request); err != nil {
		return f, err
	}
	return f, nil
}

// EncodeReply serializes a reply in the same encoding as the request.
func EncodeReply(kind Kind, r Reply) ([]byte, error) {
	switch kind {
	case KindText:
		return json.Marshal(r)
	case KindBinary:
		s, err := structpb.NewStruct(replyFields(r))
		if err != nil {
			return nil, err
		}
		return proto.Marshal(s)
	default:
		return nil, fmt.Errorf("unsupported frame kind %d", kind)
	}
}

// EncodeRequest is the client-side counterpart of DecodeFrame.
func EncodeRequest(kind Kind, f Frame) ([]byte, error) {
	switch kind {
	case KindText:
		return json.Marshal(textFrame{RequestID: f.RequestID, LookupRequest: f.Request})
	case KindBinary:
		fields := map[string]any{
			"npcSlug": f.Request.NPCSlug,
			"pool":    f.Request.Pool,
		}
		if f.RequestID != "" {
			fields["requestId"] = f.RequestID
		}
		if f.Request.ContextHash != "" {
			fields["contextHash"] = f.Request.ContextHash
		}
		if len(f.Request.PlayerContext) > 0 {
			fields["playerContext"] = f.Request.PlayerContext
		}
		s, err := structpb.NewStruct(fields)
		if err != nil {
			return nil, err
		}
		return proto.Marshal(s)
	default:
		return nil, fmt.Errorf("unsupported frame kind %d", kind)
	}
}

// DecodeReply parses a reply produced by EncodeReply.
func DecodeReply(kind Kind, data []byte) (Reply, error) {
	var r Reply
	switch kind {
	case KindText:
		err := json.Unmarshal(data, &r)
		return r, err
	case KindBinary:
		var s structpb.Struct
		if err := proto.Unmarshal(data, &s); err != nil {
			return r, err
		}
		fields := s.AsMap()
		r.RequestID, _ = fields["requestId"].(string)
		r.Error, _ = fields["error"].(string)
		if res, ok := fields["result"].(map[string]any); ok {
			out := &dialogue.LookupResult{}
			text, _ := res["text"].(string)
			mood, _ := res["mood"].(string)
			source, _ := res["source"].(string)
			out.Text, out.Mood, out.Source = text, dialogue.Mood(mood), dialogue.Source(source)
			out.EntryID, _ = res["entryId"].(string)
			out.Confidence, _ = res["confidence"].(float64)
			r.Result = out
		}
		return r, nil
	default:
		return r, fmt.Errorf("unsupported frame kind %d", kind)
	}
}

func replyFields(r Reply) map[string]any {
	fields := map[string]any{}
	if r.RequestID != "" {
		fields["requestId"] = r.RequestID
	}
	if r.Error != "" {
		fields["error"] = r.Error
	}
	if r.Result != nil {
		fields["result"] = map[string]any{
			"text":       r.Result.Text,
			"mood":       string(r.Result.Mood),
			"source":     string(r.Result.Source),
			"entryId":    r.Result.EntryID,
			"confidence": r.Result.Confidence,
		}
	}
	return fields
}

func stringField(fields map[string]any, key string) (string, error) {
	raw, ok := fields[key]
	if !ok || raw == nil {
		return "", nil
	}
	s, ok := raw.(string)
	if !ok {
		return "", fmt.Errorf("%w: %s must be a string", ErrInvalidRequest, key)
	}
	return s, nil
}
