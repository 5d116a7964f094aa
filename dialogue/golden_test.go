package dialogue

import (
	"bytes"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/sebdah/goldie/v2"
)

// Pins resolver output for a fixed dataset. Regenerate with -update after an
// intentional change to selection rules.
func TestResolveGolden(t *testing.T) {
	idx := fixtureIndex()
	reqs := []LookupRequest{
		{NPCSlug: "mr-bones", Pool: "greeting", ContextHash: "abc123"},
		{NPCSlug: "mr-bones", Pool: "greeting", ContextHash: "zzz999", PlayerContext: map[string]any{"lowHealth": true}},
		{NPCSlug: "mr-bones", Pool: "greeting", PlayerContext: map[string]any{"gold": 500.0, "lowHealth": false}},
		{NPCSlug: "mr-bones", Pool: "greeting", PlayerContext: map[string]any{"gold": 150.0}},
		{NPCSlug: "mr-bones", Pool: "taunt", PlayerContext: map[string]any{"streak": 3.0}},
		{NPCSlug: "mr-bones", Pool: "taunt", PlayerContext: map[string]any{"streak": 2.0}},
		{NPCSlug: "mr-bones", Pool: "farewell"},
		{NPCSlug: "vex", Pool: "shop-browse", PlayerContext: map[string]any{"class": "rogue"}},
		{NPCSlug: "vex", Pool: "shop-browse", PlayerContext: map[string]any{"class": "warrior"}},
		{NPCSlug: "vex", Pool: "greeting"},
		{NPCSlug: "totally-unknown-npc", Pool: "greeting", ContextHash: "abc123"},
	}

	var buf bytes.Buffer
	for _, req := range reqs {
		ctx, err := json.Marshal(req.PlayerContext)
		if err != nil {
			t.Fatalf("marshal context: %v", err)
		}
		res := idx.Resolve(req)
		fmt.Fprintf(&buf, "%s|%s|%s|%s => %s %s %.2f %s %q\n",
			req.NPCSlug, req.Pool, req.ContextHash, ctx,
			res.Source, res.EntryID, res.Confidence, res.Mood, res.Text)
	}

	g := goldie.New(t)
	g.Assert(t, "resolve", buf.Bytes())
}
