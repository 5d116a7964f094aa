package persona

import (
	"os"
	"path/filepath"
	"testing"

	"npcchat/dialogue"
)

const personasJSON = `[
  {"slug": "Mr-Bones", "name": "Mr. Bones", "tagline": "Debt collector of the crypt", "defaultPool": "Idle"},
  {"slug": "vex", "name": "Vex", "tagline": "Fence"},
  {"slug": "", "name": "Nobody"}
]`

func TestLoadFromJSON(t *testing.T) {
	r := NewRegistry()
	if err := r.LoadFromJSON([]byte(personasJSON)); err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if r.Count() != 2 {
		t.Fatalf("expected 2 personas, got %d", r.Count())
	}
	p := r.Get("MR-BONES")
	if p == nil || p.Name != "Mr. Bones" || p.DefaultPool != "idle" {
		t.Fatalf("unexpected persona %+v", p)
	}
	all := r.All()
	if all[0].Slug != "mr-bones" || all[1].Slug != "vex" {
		t.Fatalf("expected sorted slugs, got %s, %s", all[0].Slug, all[1].Slug)
	}
}

func TestLoadFromFileMissing(t *testing.T) {
	r := NewRegistry()
	if err := r.LoadFromFile(filepath.Join(t.TempDir(), "nope.json")); err == nil {
		t.Fatalf("expected error for missing file")
	}
}

func TestLoadFromFileBadJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "personas.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := NewRegistry().LoadFromFile(path); err == nil {
		t.Fatalf("expected parse error")
	}
}

func TestIndexOptionsApplyDefaultPools(t *testing.T) {
	r := NewRegistry()
	if err := r.LoadFromJSON([]byte(personasJSON)); err != nil {
		t.Fatalf("load failed: %v", err)
	}
	opts := r.IndexOptions()
	if len(opts) != 1 {
		t.Fatalf("expected one override, got %d", len(opts))
	}

	idx, _ := dialogue.BuildIndex(&dialogue.Snapshot{Records: []dialogue.Record{
		{"id": "i1", "npcSlug": "mr-bones", "pool": "idle", "text": "Tap. Tap. Tap.", "mood": "bored"},
		{"id": "g1", "npcSlug": "mr-bones", "pool": "greeting", "contextHash": "h", "text": "Ah.", "mood": "dry"},
	}}, opts...)
	res := idx.Resolve(dialogue.LookupRequest{NPCSlug: "mr-bones", Pool: "greeting"})
	if res.EntryID != "i1" || res.Source != dialogue.SourceFallback {
		t.Fatalf("expected idle pool fallback, got %+v", res)
	}
}
