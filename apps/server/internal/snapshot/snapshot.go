// Package snapshot provides the dialogue dataset loaders: flat files, SQLite
// and Postgres. Each one fetches the whole authored dataset on demand.
package snapshot

import (
	"crypto/sha256"
	"encoding/hex"

	"npcchat/dialogue"
)

// Source is a dialogue.Loader that may hold resources.
type Source interface {
	dialogue.Loader
	Close() error
}

func contentVersion(data []byte) string {
	sum := sha256.Sum256(data)
	return "sha256:" + hex.EncodeToString(sum[:8])
}

// toRecords turns decoded list elements into records. Non-object elements
// become empty records so the index counts them as malformed.
func toRecords(items []any) []dialogue.Record {
	out := make([]dialogue.Record, 0, len(items))
	for _, item := range items {
		obj, ok := item.(map[string]any)
		if !ok {
			out = append(out, dialogue.Record{})
			continue
		}
		out = append(out, dialogue.Record(obj))
	}
	return out
}
