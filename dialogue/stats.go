package dialogue

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// Wildcards used in per-bucket counters for requests that match no bucket,
// so unknown slugs cannot grow the counter set.
const (
	unknownPool = "*"
	unknownNPC  = "*"
)

// Stats holds process-local lookup counters. Safe for concurrent use.
type Stats struct {
	total     atomic.Uint64
	exact     atomic.Uint64
	pool      atomic.Uint64
	fallback  atomic.Uint64
	notReady  atomic.Uint64
	cacheHits atomic.Uint64

	mu       sync.Mutex
	byBucket map[bucketKey]*sourceCounts
}

type sourceCounts struct {
	exact, pool, fallback uint64
}

// BucketStat is the per (npc, pool) breakdown.
type BucketStat struct {
	NPCSlug      string `json:"npcSlug"`
	Pool         string `json:"pool"`
	Total        uint64 `json:"total"`
	ExactHits    uint64 `json:"exactHits"`
	PoolHits     uint64 `json:"poolHits"`
	FallbackHits uint64 `json:"fallbackHits"`
}

// IndexStats describes the loaded index.
type IndexStats struct {
	Loaded   bool           `json:"loaded"`
	Version  string         `json:"version,omitempty"`
	Entries  int            `json:"entries"`
	NPCs     int            `json:"npcs"`
	Skipped  map[string]int `json:"skipped,omitempty"`
	LoadedAt *time.Time     `json:"loadedAt,omitempty"`
}

// StatsSnapshot is a point-in-time copy of the counters.
type StatsSnapshot struct {
	TotalLookups uint64            `json:"totalLookups"`
	BySource     map[Source]uint64 `json:"bySource"`
	ByBucket     []BucketStat      `json:"byBucket"`
	NotReady     uint64            `json:"notReady"`
	CacheHits    uint64            `json:"cacheHits"`
	Index        IndexStats        `json:"index"`
}

func newStats() *Stats {
	return &Stats{byBucket: make(map[bucketKey]*sourceCounts)}
}

func (s *Stats) record(k bucketKey, src Source) {
	s.total.Add(1)
	switch src {
	case SourceExact:
		s.exact.Add(1)
	case SourcePool:
		s.pool.Add(1)
	default:
		s.fallback.Add(1)
	}

	s.mu.Lock()
	c := s.byBucket[k]
	if c == nil {
		c = &sourceCounts{}
		s.byBucket[k] = c
	}
	switch src {
	case SourceExact:
		c.exact++
	case SourcePool:
		c.pool++
	default:
		c.fallback++
	}
	s.mu.Unlock()
}

func (s *Stats) snapshot() StatsSnapshot {
	out := StatsSnapshot{
		TotalLookups: s.total.Load(),
		BySource: map[Source]uint64{
			SourceExact:    s.exact.Load(),
			SourcePool:     s.pool.Load(),
			SourceFallback: s.fallback.Load(),
		},
		NotReady:  s.notReady.Load(),
		CacheHits: s.cacheHits.Load(),
	}

	s.mu.Lock()
	out.ByBucket = make([]BucketStat, 0, len(s.byBucket))
	for k, c := range s.byBucket {
		out.ByBucket = append(out.ByBucket, BucketStat{
			NPCSlug:      k.npc,
			Pool:         k.pool,
			Total:        c.exact + c.pool + c.fallback,
			ExactHits:    c.exact,
			PoolHits:     c.pool,
			FallbackHits: c.fallback,
		})
	}
	s.mu.Unlock()

	sort.Slice(out.ByBucket, func(i, j int) bool {
		a, b := out.ByBucket[i], out.ByBucket[j]
		if a.NPCSlug != b.NPCSlug {
			return a.NPCSlug < b.NPCSlug
		}
		return a.Pool < b.Pool
	})
	return out
}
