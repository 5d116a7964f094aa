// Package codec converts chat requests and replies between their wire forms
// and the dialogue types.
package codec

import (
	"errors"
	"fmt"
	"strings"

	"google.golang.org/protobuf/types/known/structpb"

	"npcchat/dialogue"
)

var ErrInvalidRequest = errors.New("invalid chat request")

// NormalizePlayerContext keeps only JSON-compatible values. Integers become
// float64 so the same context scores the same whatever transport carried it.
func NormalizePlayerContext(ctx map[string]any) (map[string]any, error) {
	if len(ctx) == 0 {
		return nil, nil
	}
	s, err := structpb.NewStruct(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: playerContext: %v", ErrInvalidRequest, err)
	}
	return s.AsMap(), nil
}

// ValidateRequest checks the required fields and normalizes the context in place.
func ValidateRequest(req *dialogue.LookupRequest) error {
	if strings.TrimSpace(req.NPCSlug) == "" {
		return fmt.Errorf("%w: npcSlug is required", ErrInvalidRequest)
	}
	if strings.TrimSpace(req.Pool) == "" {
		return fmt.Errorf("%w: pool is required", ErrInvalidRequest)
	}
	ctx, err := NormalizePlayerContext(req.PlayerContext)
	if err != nil {
		return err
	}
	req.PlayerContext = ctx
	return nil
}
