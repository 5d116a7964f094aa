package dialogue

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type countingLoader struct {
	calls   atomic.Int32
	release chan struct{}
	fail    atomic.Bool
}

func (l *countingLoader) Fetch(ctx context.Context) (*Snapshot, error) {
	l.calls.Add(1)
	if l.release != nil {
		select {
		case <-l.release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if l.fail.Load() {
		return nil, errors.New("bucket unavailable")
	}
	return &Snapshot{Version: "v1", Records: fixtureRecords()}, nil
}

func TestLookupBeforeInitializeFails(t *testing.T) {
	e := NewEngine(&countingLoader{})
	if e.IsLoaded() {
		t.Fatalf("fresh engine must not be loaded")
	}
	_, err := e.Lookup(LookupRequest{NPCSlug: "mr-bones", Pool: "greeting"})
	if !errors.Is(err, ErrNotReady) {
		t.Fatalf("expected ErrNotReady, got %v", err)
	}
	if got := e.Stats().NotReady; got != 1 {
		t.Fatalf("expected one not-ready rejection, got %d", got)
	}
}

func TestInitializeRunsOnceUnderConcurrency(t *testing.T) {
	loader := &countingLoader{release: make(chan struct{})}
	e := NewEngine(loader)

	const callers = 16
	var wg sync.WaitGroup
	errs := make(chan error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- e.Initialize(context.Background())
		}()
	}

	// Let every caller reach the shared load before it completes.
	deadline := time.Now().Add(2 * time.Second)
	for loader.calls.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	time.Sleep(20 * time.Millisecond)
	close(loader.release)
	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil {
			t.Fatalf("initialize failed: %v", err)
		}
	}
	if got := loader.calls.Load(); got != 1 {
		t.Fatalf("expected a single fetch, got %d", got)
	}
	if !e.IsLoaded() {
		t.Fatalf("engine should be loaded")
	}
	if err := e.Initialize(context.Background()); err != nil {
		t.Fatalf("repeat initialize failed: %v", err)
	}
	if got := loader.calls.Load(); got != 1 {
		t.Fatalf("repeat initialize must not refetch, got %d fetches", got)
	}
}

func TestInitializeFailureLeavesEngineNotReady(t *testing.T) {
	loader := &countingLoader{}
	loader.fail.Store(true)
	e := NewEngine(loader)

	if err := e.Initialize(context.Background()); err == nil {
		t.Fatalf("expected initialize error")
	}
	if e.IsLoaded() {
		t.Fatalf("failed initialize must not mark engine loaded")
	}
	if _, err := e.Lookup(LookupRequest{NPCSlug: "mr-bones", Pool: "greeting"}); !errors.Is(err, ErrNotReady) {
		t.Fatalf("expected ErrNotReady after failed init, got %v", err)
	}

	loader.fail.Store(false)
	if err := e.Initialize(context.Background()); err != nil {
		t.Fatalf("retry should succeed: %v", err)
	}
	if got := loader.calls.Load(); got != 2 {
		t.Fatalf("expected retry to fetch again, got %d fetches", got)
	}
}

func TestInitializeNilSnapshot(t *testing.T) {
	e := NewEngine(LoaderFunc(func(context.Context) (*Snapshot, error) { return nil, nil }))
	if err := e.Initialize(context.Background()); !errors.Is(err, ErrNilSnapshot) {
		t.Fatalf("expected ErrNilSnapshot, got %v", err)
	}
}

func TestInitializeCallerCancellation(t *testing.T) {
	loader := &countingLoader{release: make(chan struct{})}
	e := NewEngine(loader)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- e.Initialize(ctx) }()

	for loader.calls.Load() == 0 {
		time.Sleep(time.Millisecond)
	}
	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if e.IsLoaded() {
		t.Fatalf("engine must not be loaded while the fetch is pending")
	}

	close(loader.release)
	if err := e.Initialize(context.Background()); err != nil {
		t.Fatalf("initialize after release failed: %v", err)
	}
	if !e.IsLoaded() {
		t.Fatalf("engine should be loaded after the shared load finishes")
	}
}

func TestLookupRecordsStats(t *testing.T) {
	e := NewEngine(&countingLoader{})
	if err := e.Initialize(context.Background()); err != nil {
		t.Fatalf("initialize failed: %v", err)
	}

	reqs := []LookupRequest{
		{NPCSlug: "mr-bones", Pool: "greeting", ContextHash: "abc123"},
		{NPCSlug: "mr-bones", Pool: "greeting", PlayerContext: map[string]any{"lowHealth": true}},
		{NPCSlug: "mr-bones", Pool: "greeting"},
		{NPCSlug: "mr-bones", Pool: "made-up"},
		{NPCSlug: "stranger", Pool: "greeting"},
	}
	for _, req := range reqs {
		if _, err := e.Lookup(req); err != nil {
			t.Fatalf("lookup failed: %v", err)
		}
	}

	s := e.Stats()
	if s.TotalLookups != 5 {
		t.Fatalf("expected 5 lookups, got %d", s.TotalLookups)
	}
	if s.BySource[SourceExact] != 1 || s.BySource[SourcePool] != 1 || s.BySource[SourceFallback] != 3 {
		t.Fatalf("unexpected source split %v", s.BySource)
	}

	want := []BucketStat{
		{NPCSlug: "*", Pool: "*", Total: 1, FallbackHits: 1},
		{NPCSlug: "mr-bones", Pool: "*", Total: 1, FallbackHits: 1},
		{NPCSlug: "mr-bones", Pool: "greeting", Total: 3, ExactHits: 1, PoolHits: 1, FallbackHits: 1},
	}
	if len(s.ByBucket) != len(want) {
		t.Fatalf("unexpected buckets %+v", s.ByBucket)
	}
	for i := range want {
		if s.ByBucket[i] != want[i] {
			t.Fatalf("bucket %d: expected %+v, got %+v", i, want[i], s.ByBucket[i])
		}
	}

	if !s.Index.Loaded || s.Index.Version != "v1" || s.Index.Entries != len(fixtureRecords()) || s.Index.LoadedAt == nil {
		t.Fatalf("unexpected index stats %+v", s.Index)
	}
}

func TestLookupResultCache(t *testing.T) {
	e := NewEngine(&countingLoader{}, WithResultCache(8))
	if err := e.Initialize(context.Background()); err != nil {
		t.Fatalf("initialize failed: %v", err)
	}

	req := LookupRequest{NPCSlug: "mr-bones", Pool: "greeting", PlayerContext: map[string]any{"lowHealth": true}}
	first, _ := e.Lookup(req)
	second, _ := e.Lookup(LookupRequest{NPCSlug: " MR-BONES", Pool: "greeting", PlayerContext: map[string]any{"lowHealth": true}})
	if first != second {
		t.Fatalf("cached result differs: %+v vs %+v", first, second)
	}
	s := e.Stats()
	if s.CacheHits != 1 {
		t.Fatalf("expected one cache hit, got %d", s.CacheHits)
	}
	if s.TotalLookups != 2 || s.BySource[SourcePool] != 2 {
		t.Fatalf("cache hits must still count as lookups: %+v", s)
	}
}

func TestConcurrentLookups(t *testing.T) {
	e := NewEngine(&countingLoader{}, WithResultCache(4))
	if err := e.Initialize(context.Background()); err != nil {
		t.Fatalf("initialize failed: %v", err)
	}
	reqs := sampleRequests()

	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for _, req := range reqs {
				if res, err := e.Lookup(req); err != nil || res.Text == "" {
					t.Errorf("lookup %+v: %+v %v", req, res, err)
					return
				}
			}
		}()
	}
	wg.Wait()

	if got := e.Stats().TotalLookups; got != uint64(8*len(reqs)) {
		t.Fatalf("expected %d lookups, got %d", 8*len(reqs), got)
	}
}

func TestReportAndLoadTimeFollowInitialize(t *testing.T) {
	loadedAt := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	e := NewEngine(&countingLoader{}, WithClock(func() time.Time { return loadedAt }))

	if _, ok := e.Report(); ok {
		t.Fatalf("report must be absent before initialize")
	}
	if err := e.Initialize(context.Background()); err != nil {
		t.Fatalf("initialize failed: %v", err)
	}

	report, ok := e.Report()
	if !ok {
		t.Fatalf("report missing after initialize")
	}
	_, want := BuildIndex(&Snapshot{Version: "v1", Records: fixtureRecords()})
	if report.Version != want.Version || report.Total != want.Total || report.SkippedTotal() != want.SkippedTotal() {
		t.Fatalf("expected report %+v, got %+v", want, report)
	}

	s := e.Stats()
	if s.Index.LoadedAt == nil || !s.Index.LoadedAt.Equal(loadedAt) {
		t.Fatalf("expected load time %v, got %v", loadedAt, s.Index.LoadedAt)
	}
}
