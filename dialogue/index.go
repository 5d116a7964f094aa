package dialogue

import (
	"errors"
	"sort"

	"go.uber.org/zap"
)

const (
	globalEntryID   = "global-fallback"
	globalEntryText = "The air goes quiet for a moment."
	globalEntryMood = Mood("neutral")
)

type bucketKey struct {
	npc  string
	pool string
}

// Bucket holds every entry for one (npc, pool) pair.
type Bucket struct {
	exact       map[string]*ChatEntry
	conditioned []*ChatEntry // sorted by (priority, id)
	generic     []*ChatEntry // sorted by (priority, id)
}

// Len returns the number of entries in the bucket.
func (b *Bucket) Len() int {
	return len(b.exact) + len(b.conditioned) + len(b.generic)
}

// ExactLen returns the number of context-fingerprinted entries.
func (b *Bucket) ExactLen() int { return len(b.exact) }

// Index is the immutable lookup structure built from one Snapshot.
type Index struct {
	buckets      map[bucketKey]*Bucket
	pools        map[string][]string // npc -> sorted pools
	defaultPool  string
	defaultPools map[string]string
	global       *ChatEntry
	version      string
	entries      int
}

// BuildReport summarizes one index build.
type BuildReport struct {
	Version string         `json:"version"`
	Total   int            `json:"total"`
	Indexed int            `json:"indexed"`
	Skipped map[string]int `json:"skipped"`
}

// SkippedTotal returns the number of records left out of the index.
func (r BuildReport) SkippedTotal() int {
	n := 0
	for _, c := range r.Skipped {
		n += c
	}
	return n
}

type indexConfig struct {
	logger       *zap.Logger
	defaultPool  string
	defaultPools map[string]string
	globalNPC    string
}

// IndexOption configures BuildIndex.
type IndexOption func(*indexConfig)

// WithLogger sets the logger used to report skipped records.
func WithLogger(l *zap.Logger) IndexOption {
	return func(c *indexConfig) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithDefaultPool overrides the fallback pool for one NPC.
func WithDefaultPool(npc, pool string) IndexOption {
	return func(c *indexConfig) {
		npc, pool = NormalizeKey(npc), NormalizeKey(pool)
		if npc == "" || pool == "" {
			return
		}
		c.defaultPools[npc] = pool
	}
}

// WithGlobalNPC names the NPC whose default pool supplies the global fallback line.
func WithGlobalNPC(npc string) IndexOption {
	return func(c *indexConfig) {
		if n := NormalizeKey(npc); n != "" {
			c.globalNPC = n
		}
	}
}

// BuildIndex parses a snapshot into an Index. Malformed records are skipped
// and counted; they never fail the build.
func BuildIndex(snap *Snapshot, opts ...IndexOption) (*Index, BuildReport) {
	cfg := indexConfig{
		logger:       zap.NewNop(),
		defaultPool:  DefaultPool,
		defaultPools: make(map[string]string),
		globalNPC:    DefaultGlobalNPC,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	report := BuildReport{Skipped: make(map[string]int)}
	idx := &Index{
		buckets:      make(map[bucketKey]*Bucket),
		pools:        make(map[string][]string),
		defaultPool:  cfg.defaultPool,
		defaultPools: cfg.defaultPools,
	}
	if snap == nil {
		idx.global = builtinGlobal(cfg.globalNPC, cfg.defaultPool)
		return idx, report
	}
	idx.version = snap.Version
	report.Version = snap.Version
	report.Total = len(snap.Records)

	skip := func(i int, rec Record, reason string, err error) {
		report.Skipped[reason]++
		id, _ := rec["id"].(string)
		cfg.logger.Warn("skipping dataset record",
			zap.Int("index", i),
			zap.String("id", id),
			zap.String("reason", reason),
			zap.Error(err),
		)
	}

	grouped := make(map[bucketKey][]*ChatEntry)
	for i, rec := range snap.Records {
		e, err := ParseRecord(rec)
		if err != nil {
			reason := ReasonBadType
			var me *MalformedError
			if errors.As(err, &me) {
				reason = me.Reason
			}
			skip(i, rec, reason, err)
			continue
		}
		k := bucketKey{npc: e.NPCSlug, pool: e.Pool}
		grouped[k] = append(grouped[k], e)
	}

	for k, entries := range grouped {
		// Record order is not trusted; duplicates resolve the same way for any input order.
		sort.SliceStable(entries, func(i, j int) bool {
			a, b := entries[i], entries[j]
			if a.ID != b.ID {
				return a.ID < b.ID
			}
			if a.Priority != b.Priority {
				return a.Priority < b.Priority
			}
			if a.Text != b.Text {
				return a.Text < b.Text
			}
			if a.Mood != b.Mood {
				return a.Mood < b.Mood
			}
			return a.ContextHash < b.ContextHash
		})

		b := &Bucket{exact: make(map[string]*ChatEntry)}
		var exact []*ChatEntry
		for i, e := range entries {
			if i > 0 && entries[i-1].ID == e.ID {
				skip(-1, Record{"id": e.ID}, ReasonDuplicateID, malformed(ReasonDuplicateID, k.npc+"/"+k.pool))
				continue
			}
			switch {
			case e.IsExact():
				exact = append(exact, e)
			case e.IsGeneric():
				b.generic = append(b.generic, e)
			default:
				b.conditioned = append(b.conditioned, e)
			}
		}

		sortByPriority(exact)
		for _, e := range exact {
			if _, taken := b.exact[e.ContextHash]; taken {
				skip(-1, Record{"id": e.ID}, ReasonDuplicateContextHash, malformed(ReasonDuplicateContextHash, e.ContextHash))
				continue
			}
			b.exact[e.ContextHash] = e
		}
		sortByPriority(b.conditioned)
		sortByPriority(b.generic)

		if b.Len() == 0 {
			continue
		}
		idx.buckets[k] = b
		idx.pools[k.npc] = append(idx.pools[k.npc], k.pool)
		idx.entries += b.Len()
	}
	for npc := range idx.pools {
		sort.Strings(idx.pools[npc])
	}

	idx.global = idx.pickGlobal(cfg.globalNPC)
	report.Indexed = idx.entries
	return idx, report
}

func (idx *Index) pickGlobal(globalNPC string) *ChatEntry {
	if b := idx.buckets[bucketKey{npc: globalNPC, pool: idx.DefaultPoolFor(globalNPC)}]; b != nil && len(b.generic) > 0 {
		return b.generic[0]
	}
	return builtinGlobal(globalNPC, idx.DefaultPoolFor(globalNPC))
}

func builtinGlobal(npc, pool string) *ChatEntry {
	return &ChatEntry{
		ID:      globalEntryID,
		NPCSlug: npc,
		Pool:    pool,
		Text:    globalEntryText,
		Mood:    globalEntryMood,
	}
}

func sortByPriority(entries []*ChatEntry) {
	sort.SliceStable(entries, func(i, j int) bool {
		return lessEntry(entries[i], entries[j])
	})
}

func lessEntry(a, b *ChatEntry) bool {
	if a.Priority != b.Priority {
		return a.Priority < b.Priority
	}
	return a.ID < b.ID
}

// DefaultPoolFor returns the fallback pool name for an NPC.
func (idx *Index) DefaultPoolFor(npc string) string {
	if p, ok := idx.defaultPools[npc]; ok {
		return p
	}
	return idx.defaultPool
}

// Bucket returns the bucket for an (npc, pool) pair, or nil.
func (idx *Index) Bucket(npc, pool string) *Bucket {
	return idx.buckets[bucketKey{npc: NormalizeKey(npc), pool: NormalizeKey(pool)}]
}

// HasNPC reports whether any bucket exists for the NPC.
func (idx *Index) HasNPC(npc string) bool {
	_, ok := idx.pools[NormalizeKey(npc)]
	return ok
}

// NPCs returns every known NPC slug, sorted.
func (idx *Index) NPCs() []string {
	out := make([]string, 0, len(idx.pools))
	for npc := range idx.pools {
		out = append(out, npc)
	}
	sort.Strings(out)
	return out
}

// Pools returns the pools known for an NPC, sorted.
func (idx *Index) Pools(npc string) []string {
	return append([]string(nil), idx.pools[NormalizeKey(npc)]...)
}

// EntryCount returns the number of indexed entries.
func (idx *Index) EntryCount() int { return idx.entries }

// Version returns the snapshot version the index was built from.
func (idx *Index) Version() string { return idx.version }
