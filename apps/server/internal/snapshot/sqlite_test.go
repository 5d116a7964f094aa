package snapshot

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"npcchat/dialogue"
)

func TestSQLiteImportAndFetch(t *testing.T) {
	l, err := NewSQLiteLoader(filepath.Join(t.TempDir(), "nested", "dialogue.db"))
	require.NoError(t, err)
	defer l.Close()

	ctx := context.Background()
	n, err := l.Import(ctx, &dialogue.Snapshot{Version: "v3", Records: []dialogue.Record{
		{"id": "e1", "npcSlug": "mr-bones", "pool": "greeting", "contextHash": "abc123", "text": "Your account is overdue...", "mood": "dry"},
		{"id": "e2", "npcSlug": "mr-bones", "pool": "greeting", "conditions": map[string]any{"lowHealth": true}, "text": "Sit.", "mood": "dry", "priority": 3},
		{"id": "d1", "npcSlug": "mr-bones", "pool": "default", "text": "Books.", "mood": "dry", "weight": 1.0},
	}})
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	snap, err := l.Fetch(ctx)
	require.NoError(t, err)
	assert.Equal(t, "v3", snap.Version)
	require.Len(t, snap.Records, 3)

	idx, report := dialogue.BuildIndex(snap)
	assert.Equal(t, 3, report.Indexed)

	res := idx.Resolve(dialogue.LookupRequest{NPCSlug: "mr-bones", Pool: "greeting", ContextHash: "abc123"})
	assert.Equal(t, "e1", res.EntryID)
	res = idx.Resolve(dialogue.LookupRequest{NPCSlug: "mr-bones", Pool: "greeting", PlayerContext: map[string]any{"lowHealth": true}})
	assert.Equal(t, "e2", res.EntryID)
	assert.Equal(t, 2, idx.Bucket("mr-bones", "greeting").Len())
}

func TestSQLiteImportReplacesDataset(t *testing.T) {
	l, err := NewSQLiteLoader(filepath.Join(t.TempDir(), "dialogue.db"))
	require.NoError(t, err)
	defer l.Close()

	ctx := context.Background()
	_, err = l.Import(ctx, &dialogue.Snapshot{Version: "a", Records: []dialogue.Record{
		{"id": "old", "npcSlug": "n", "pool": "p", "text": "old", "mood": "m"},
	}})
	require.NoError(t, err)
	_, err = l.Import(ctx, &dialogue.Snapshot{Version: "b", Records: []dialogue.Record{
		{"id": "new", "npcSlug": "n", "pool": "p", "text": "new", "mood": "m"},
	}})
	require.NoError(t, err)

	snap, err := l.Fetch(ctx)
	require.NoError(t, err)
	assert.Equal(t, "b", snap.Version)
	require.Len(t, snap.Records, 1)
	assert.Equal(t, "new", snap.Records[0]["id"])
}

func TestSQLiteMalformedConditionsSurviveAsBadRecord(t *testing.T) {
	l, err := NewSQLiteLoader(filepath.Join(t.TempDir(), "dialogue.db"))
	require.NoError(t, err)
	defer l.Close()

	ctx := context.Background()
	_, err = l.db.ExecContext(ctx, `
INSERT INTO dialogue_entries (id, npc_slug, pool, conditions, text, mood)
VALUES ('bad', 'n', 'p', '{oops', 'x', 'm'), ('good', 'n', 'p', NULL, 'y', 'm')`)
	require.NoError(t, err)

	snap, err := l.Fetch(ctx)
	require.NoError(t, err)
	assert.Equal(t, "", snap.Version)

	_, report := dialogue.BuildIndex(snap)
	assert.Equal(t, 1, report.Indexed)
	assert.Equal(t, 1, report.Skipped[dialogue.ReasonBadCondition])
}

func TestNewSQLiteLoaderRejectsEmptyPath(t *testing.T) {
	_, err := NewSQLiteLoader("  ")
	assert.Error(t, err)
}

func TestSQLiteImportMatchesFileIndex(t *testing.T) {
	path := writeFile(t, "parity.json", `{"version": "parity-v1", "entries": [
  {"id": "a", "npcSlug": "n", "pool": "p", "text": "frac", "mood": "m", "priority": 1.5},
  {"id": "d", "npcSlug": "n", "pool": "p", "text": "second", "mood": "m", "priority": 5},
  {"id": "d", "npcSlug": "n", "pool": "p", "text": "first", "mood": "m", "priority": 0},
  {"id": "s", "npcSlug": "n", "pool": "p", "text": "strprio", "mood": "m", "priority": "high"},
  {"id": 7, "npcSlug": "n", "pool": "p", "text": "numeric id", "mood": "m"},
  {"id": "w", "npcSlug": "n", "pool": "p", "text": "hurt", "mood": "m", "weight": 2, "conditions": {"hp": {"lt": 30}}},
  {"id": "h1", "npcSlug": "n", "pool": "p", "contextHash": "same", "text": "one", "mood": "m", "priority": 2},
  {"id": "h2", "npcSlug": "n", "pool": "p", "contextHash": "same", "text": "two", "mood": "m", "priority": 1},
  {"id": "c", "npcSlug": "n", "pool": "p", "text": "odd", "mood": "m", "conditions": "lowHealth"}
]}`)
	ctx := context.Background()
	fileSnap, err := NewFileLoader(path).Fetch(ctx)
	require.NoError(t, err)

	l, err := NewSQLiteLoader(filepath.Join(t.TempDir(), "dialogue.db"))
	require.NoError(t, err)
	defer l.Close()
	n, err := l.Import(ctx, fileSnap)
	require.NoError(t, err)
	assert.Equal(t, len(fileSnap.Records), n)

	dbSnap, err := l.Fetch(ctx)
	require.NoError(t, err)

	fromFile, fileReport := dialogue.BuildIndex(fileSnap)
	fromDB, dbReport := dialogue.BuildIndex(dbSnap)
	assert.Equal(t, fileReport, dbReport)
	assert.Equal(t, map[string]int{
		dialogue.ReasonBadType:              3,
		dialogue.ReasonBadCondition:         1,
		dialogue.ReasonDuplicateID:          1,
		dialogue.ReasonDuplicateContextHash: 1,
	}, dbReport.Skipped)
	assert.Equal(t, fromFile.EntryCount(), fromDB.EntryCount())

	requests := []dialogue.LookupRequest{
		{NPCSlug: "n", Pool: "p"},
		{NPCSlug: "n", Pool: "p", ContextHash: "same"},
		{NPCSlug: "n", Pool: "p", PlayerContext: map[string]any{"hp": 10.0}},
		{NPCSlug: "n", Pool: "other"},
	}
	for _, req := range requests {
		assert.Equal(t, fromFile.Resolve(req), fromDB.Resolve(req), "request %+v", req)
	}
	res := fromDB.Resolve(dialogue.LookupRequest{NPCSlug: "n", Pool: "p"})
	assert.Equal(t, "first", res.Text)
}

func TestToRowKeepsOnlyIntegralPriority(t *testing.T) {
	cases := []struct {
		rec  dialogue.Record
		want any
	}{
		{dialogue.Record{"priority": 3.0}, int64(3)},
		{dialogue.Record{"priority": 1.5}, nil},
		{dialogue.Record{"priority": "high"}, nil},
		{dialogue.Record{"weight": 4}, int64(4)},
		{dialogue.Record{"priority": "x", "weight": 4}, nil},
	}
	for _, tc := range cases {
		row, err := toRow(tc.rec)
		require.NoError(t, err)
		assert.Equal(t, tc.want, row.Priority, "record %v", tc.rec)
		assert.NotEmpty(t, row.Record)
	}
}
