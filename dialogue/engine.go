package dialogue

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

const defaultLoadTimeout = 30 * time.Second

// Engine owns the index lifecycle for one process. Construct it once and
// share it; every method is safe for concurrent use.
type Engine struct {
	loader      Loader
	logger      *zap.Logger
	indexOpts   []IndexOption
	cacheSize   int
	loadTimeout time.Duration
	now         func() time.Time

	group singleflight.Group
	state atomic.Pointer[loadedState]
	stats *Stats
}

type loadedState struct {
	index    *Index
	report   BuildReport
	loadedAt time.Time
	cache    *lru.Cache[string, LookupResult]
}

// EngineOption configures NewEngine.
type EngineOption func(*Engine)

// WithEngineLogger sets the engine logger. Index build warnings go to it too.
func WithEngineLogger(l *zap.Logger) EngineOption {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithIndexOptions forwards options to BuildIndex.
func WithIndexOptions(opts ...IndexOption) EngineOption {
	return func(e *Engine) {
		e.indexOpts = append(e.indexOpts, opts...)
	}
}

// WithResultCache memoizes up to n resolved results. Zero disables it.
func WithResultCache(n int) EngineOption {
	return func(e *Engine) {
		if n > 0 {
			e.cacheSize = n
		}
	}
}

// WithLoadTimeout bounds the shared snapshot fetch and build.
func WithLoadTimeout(d time.Duration) EngineOption {
	return func(e *Engine) {
		if d > 0 {
			e.loadTimeout = d
		}
	}
}

// WithClock overrides the clock used for the load timestamp.
func WithClock(now func() time.Time) EngineOption {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// NewEngine creates an engine that is not loaded yet.
func NewEngine(loader Loader, opts ...EngineOption) *Engine {
	e := &Engine{
		loader:      loader,
		logger:      zap.NewNop(),
		loadTimeout: defaultLoadTimeout,
		now:         time.Now,
		stats:       newStats(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Initialize fetches the snapshot and builds the index once. Concurrent
// callers share a single in-flight load. A failed load leaves the engine not
// ready and the next call tries again. A caller whose ctx ends first gets
// ctx.Err() while the shared load carries on.
func (e *Engine) Initialize(ctx context.Context) error {
	if e.state.Load() != nil {
		return nil
	}
	ch := e.group.DoChan("initialize", func() (any, error) {
		if e.state.Load() != nil {
			return nil, nil
		}
		loadCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.loadTimeout)
		defer cancel()
		return nil, e.load(loadCtx)
	})
	select {
	case res := <-ch:
		return res.Err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (e *Engine) load(ctx context.Context) error {
	started := e.now()
	if e.loader == nil {
		return fmt.Errorf("dialogue: no snapshot loader configured")
	}
	snap, err := e.loader.Fetch(ctx)
	if err != nil {
		e.logger.Error("snapshot fetch failed", zap.Error(err))
		return fmt.Errorf("dialogue: fetch snapshot: %w", err)
	}
	if snap == nil {
		return fmt.Errorf("dialogue: fetch snapshot: %w", ErrNilSnapshot)
	}

	opts := append([]IndexOption{WithLogger(e.logger.Named("index"))}, e.indexOpts...)
	idx, report := BuildIndex(snap, opts...)

	st := &loadedState{index: idx, report: report, loadedAt: e.now()}
	if e.cacheSize > 0 {
		cache, err := lru.New[string, LookupResult](e.cacheSize)
		if err != nil {
			return fmt.Errorf("dialogue: result cache: %w", err)
		}
		st.cache = cache
	}
	e.state.Store(st)

	e.logger.Info("dialogue index loaded",
		zap.String("version", report.Version),
		zap.Int("records", report.Total),
		zap.Int("indexed", report.Indexed),
		zap.Int("skipped", report.SkippedTotal()),
		zap.Int("npcs", len(idx.pools)),
		zap.Duration("took", st.loadedAt.Sub(started)),
	)
	return nil
}

// IsLoaded reports whether Initialize has completed successfully.
func (e *Engine) IsLoaded() bool {
	return e.state.Load() != nil
}

// Lookup resolves a request against the loaded index. It fails only with
// ErrNotReady; content gaps resolve to fallback results.
func (e *Engine) Lookup(req LookupRequest) (LookupResult, error) {
	st := e.state.Load()
	if st == nil {
		e.stats.notReady.Add(1)
		return LookupResult{}, ErrNotReady
	}

	var res LookupResult
	if st.cache != nil {
		key := RequestKey(req)
		if cached, ok := st.cache.Get(key); ok {
			e.stats.cacheHits.Add(1)
			res = cached
		} else {
			res = st.index.Resolve(req)
			st.cache.Add(key, res)
		}
	} else {
		res = st.index.Resolve(req)
	}

	e.stats.record(statsKey(st.index, req), res.Source)
	return res, nil
}

func statsKey(idx *Index, req LookupRequest) bucketKey {
	k := bucketKey{npc: NormalizeKey(req.NPCSlug), pool: NormalizeKey(req.Pool)}
	if _, ok := idx.buckets[k]; ok {
		return k
	}
	if _, ok := idx.pools[k.npc]; ok {
		return bucketKey{npc: k.npc, pool: unknownPool}
	}
	return bucketKey{npc: unknownNPC, pool: unknownPool}
}

// Stats returns a snapshot of the lookup counters and index facts.
func (e *Engine) Stats() StatsSnapshot {
	out := e.stats.snapshot()
	if st := e.state.Load(); st != nil {
		loadedAt := st.loadedAt
		skipped := make(map[string]int, len(st.report.Skipped))
		for reason, n := range st.report.Skipped {
			skipped[reason] = n
		}
		out.Index = IndexStats{
			Loaded:   true,
			Version:  st.index.Version(),
			Entries:  st.index.EntryCount(),
			NPCs:     len(st.index.pools),
			Skipped:  skipped,
			LoadedAt: &loadedAt,
		}
	}
	return out
}

// Index returns the loaded index, or nil before Initialize succeeds.
func (e *Engine) Index() *Index {
	if st := e.state.Load(); st != nil {
		return st.index
	}
	return nil
}

// Report returns the build report of the loaded index.
func (e *Engine) Report() (BuildReport, bool) {
	if st := e.state.Load(); st != nil {
		return st.report, true
	}
	return BuildReport{}, false
}
