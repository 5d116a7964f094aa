package dialogue

import (
	"hash/fnv"
	"sort"
	"strconv"
	"strings"
)

// RequestKey renders a request canonically: normalized keys and the player
// context with sorted attribute names. Identical requests yield identical keys.
func RequestKey(req LookupRequest) string {
	var sb strings.Builder
	sb.WriteString(NormalizeKey(req.NPCSlug))
	sb.WriteByte(0)
	sb.WriteString(NormalizeKey(req.Pool))
	sb.WriteByte(0)
	sb.WriteString(strings.TrimSpace(req.ContextHash))
	sb.WriteByte(0)
	writeCanonical(&sb, req.PlayerContext)
	return sb.String()
}

func writeCanonical(sb *strings.Builder, v any) {
	switch t := v.(type) {
	case nil:
		sb.WriteString("null")
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		sb.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				sb.WriteByte(',')
			}
			sb.WriteString(strconv.Quote(k))
			sb.WriteByte(':')
			writeCanonical(sb, t[k])
		}
		sb.WriteByte('}')
	case []any:
		sb.WriteByte('[')
		for i, item := range t {
			if i > 0 {
				sb.WriteByte(',')
			}
			writeCanonical(sb, item)
		}
		sb.WriteByte(']')
	case string:
		sb.WriteString(strconv.Quote(t))
	case bool:
		sb.WriteString(strconv.FormatBool(t))
	default:
		if n, ok := toNumber(v); ok {
			sb.WriteString(strconv.FormatFloat(n, 'g', -1, 64))
			return
		}
		sb.WriteString("?")
	}
}

func keyHash(key string) uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(key))
	return h.Sum64()
}
