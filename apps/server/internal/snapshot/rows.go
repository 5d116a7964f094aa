package snapshot

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"math"

	"npcchat/dialogue"
)

// sqliteSelectEntriesSQL reads the stored record alongside the columns.
// Rows written by Import carry the authored record verbatim; rows written by
// hand leave it NULL and are rebuilt from the columns.
const sqliteSelectEntriesSQL = `
SELECT id, npc_slug, pool, context_hash, conditions, text, mood, priority, record
FROM dialogue_entries
ORDER BY npc_slug, pool, id, seq`

const postgresSelectEntriesSQL = `
SELECT id, npc_slug, pool, context_hash, conditions, text, mood, priority, NULL::text AS record
FROM dialogue_entries
ORDER BY npc_slug, pool, id`

const selectVersionSQL = `SELECT value FROM dialogue_meta WHERE key = 'version'`

func scanEntries(ctx context.Context, db *sql.DB, query string) ([]dialogue.Record, error) {
	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []dialogue.Record
	for rows.Next() {
		var (
			id, npc, pool, text, mood string
			hash, record              sql.NullString
			conditions                []byte
			priority                  sql.NullInt64
		)
		if err := rows.Scan(&id, &npc, &pool, &hash, &conditions, &text, &mood, &priority, &record); err != nil {
			return nil, err
		}
		if record.Valid && record.String != "" {
			out = append(out, storedRecord(record.String))
			continue
		}
		out = append(out, rowRecord(id, npc, pool, hash, conditions, text, mood, priority))
	}
	return out, rows.Err()
}

func readVersion(ctx context.Context, db *sql.DB) (string, error) {
	var version string
	err := db.QueryRowContext(ctx, selectVersionSQL).Scan(&version)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return "", err
	}
	return version, nil
}

// storedRecord decodes a record saved by Import. Undecodable text becomes an
// empty record so the index counts it as malformed.
func storedRecord(raw string) dialogue.Record {
	var obj map[string]any
	if err := json.Unmarshal([]byte(raw), &obj); err != nil || obj == nil {
		return dialogue.Record{}
	}
	return dialogue.Record(obj)
}

func rowRecord(
	id, npc, pool string,
	hash sql.NullString,
	conditions []byte,
	text, mood string,
	priority sql.NullInt64,
) dialogue.Record {
	rec := dialogue.Record{
		"id":      id,
		"npcSlug": npc,
		"pool":    pool,
		"text":    text,
		"mood":    mood,
	}
	if hash.Valid && hash.String != "" {
		rec["contextHash"] = hash.String
	}
	if priority.Valid {
		rec["priority"] = priority.Int64
	}
	if len(conditions) > 0 {
		var obj map[string]any
		if err := json.Unmarshal(conditions, &obj); err != nil {
			// Keep the raw text so the index reports the row as malformed.
			rec["conditions"] = string(conditions)
		} else if obj != nil {
			rec["conditions"] = obj
		}
	}
	return rec
}

// entryRow is the column form of a record, ready for INSERT. Record holds the
// whole authored record so values the columns cannot carry survive a round trip.
type entryRow struct {
	ID, NPCSlug, Pool, Text, Mood string
	ContextHash                   any // string or nil
	Conditions                    any // JSON text or nil
	Priority                      any // int64 or nil
	Record                        string
}

func toRow(rec dialogue.Record) (entryRow, error) {
	str := func(k string) string {
		s, _ := rec[k].(string)
		return s
	}
	raw, err := json.Marshal(map[string]any(rec))
	if err != nil {
		id, _ := rec["id"].(string)
		return entryRow{}, fmt.Errorf("encode record %q: %w", id, err)
	}
	row := entryRow{
		ID:      str("id"),
		NPCSlug: str("npcSlug"),
		Pool:    str("pool"),
		Text:    str("text"),
		Mood:    str("mood"),
		Record:  string(raw),
	}
	if h := str("contextHash"); h != "" {
		row.ContextHash = h
	}
	if c, ok := rec["conditions"]; ok && c != nil {
		cond, err := json.Marshal(c)
		if err != nil {
			return row, err
		}
		row.Conditions = string(cond)
	}
	// Same field precedence as the index: priority, then weight.
	for _, k := range []string{"priority", "weight"} {
		if v, ok := rec[k]; ok && v != nil {
			if p, ok := toInt64(v); ok {
				row.Priority = p
			}
			break
		}
	}
	return row, nil
}

// toInt64 accepts only integral numbers; anything else stays out of the
// priority column and is judged from the stored record.
func toInt64(v any) (int64, bool) {
	switch t := v.(type) {
	case int:
		return int64(t), true
	case int64:
		return t, true
	case float64:
		if t != math.Trunc(t) || math.IsInf(t, 0) || math.Abs(t) > math.MaxInt32 {
			return 0, false
		}
		return int64(t), true
	}
	return 0, false
}
