package board_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"quoteboard/internal/board"
	"quoteboard/internal/fetcher"
	"quoteboard/internal/metrics"
	"quoteboard/internal/provider"
	"quoteboard/internal/provider/ratelimit"
	"quoteboard/internal/snapshot"
	"quoteboard/internal/view"
)

// fetchFunc adapts a function to board.Fetcher.
type fetchFunc func(ctx context.Context, symbols []string) (snapshot.Snapshot, error)

func (f fetchFunc) FetchAll(ctx context.Context, symbols []string) (snapshot.Snapshot, error) {
	return f(ctx, symbols)
}

func quotesFetcher(quotes ...provider.Quote) fetchFunc {
	return func(context.Context, []string) (snapshot.Snapshot, error) {
		return snapshot.New(0, time.Now(), quotes, nil), nil
	}
}

// recorder counts listener events.
type recorder struct {
	mu        sync.Mutex
	snapshots []snapshot.Snapshot
	errors    []string
	views     [][]provider.Quote
}

func (r *recorder) OnSnapshotReady(s snapshot.Snapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.snapshots = append(r.snapshots, s)
}

func (r *recorder) OnFetchError(msg string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errors = append(r.errors, msg)
}

func (r *recorder) OnViewChanged(q []provider.Quote) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.views = append(r.views, q)
}

func (r *recorder) counts() (snaps, errs, views int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.snapshots), len(r.errors), len(r.views)
}

var (
	aapl = provider.Quote{Symbol: "AAPL", Price: 256.10, ChangePercent: 1.20}
	ko   = provider.Quote{Symbol: "KO", Price: 60.00, ChangePercent: 1.20}
	msft = provider.Quote{Symbol: "MSFT", Price: 410.00, ChangePercent: -0.50}
)

func TestRefresh_PublishesSnapshotAndView(t *testing.T) {
	t.Parallel()

	// Arrange
	b := board.New(quotesFetcher(aapl, ko, msft), board.Config{Symbols: []string{"AAPL", "KO", "MSFT"}})
	rec := &recorder{}
	b.Subscribe(rec)

	// Act
	require.NoError(t, b.Refresh(t.Context()))

	// Assert
	snaps, errs, views := rec.counts()
	require.Equal(t, 1, snaps)
	require.Zero(t, errs)
	require.Equal(t, 1, views)

	res := b.View()
	require.Equal(t, []provider.Quote{aapl, ko, msft}, res.Quotes)
	require.Equal(t, uint64(1), res.Generation)
	require.False(t, res.Loading)
	require.Empty(t, res.Error)
	require.False(t, res.FetchedAt.IsZero())
}

func TestSearchAndSort_RecomputeWithoutFetching(t *testing.T) {
	t.Parallel()

	calls := 0
	f := fetchFunc(func(context.Context, []string) (snapshot.Snapshot, error) {
		calls++
		return snapshot.New(0, time.Now(), []provider.Quote{aapl, ko, msft}, nil), nil
	})
	b := board.New(f, board.Config{})
	rec := &recorder{}
	b.Subscribe(rec)
	require.NoError(t, b.Refresh(t.Context()))

	b.SetSortKey(view.SortPriceDesc)
	require.Equal(t, []provider.Quote{msft, aapl, ko}, b.View().Quotes)

	b.SetSearchText("a")
	require.Equal(t, []provider.Quote{aapl}, b.View().Quotes)

	b.SetSearchText("")
	b.SetSortKey(view.SortChangeDesc)
	require.Equal(t, []provider.Quote{aapl, ko, msft}, b.View().Quotes)

	require.Equal(t, 1, calls)
	_, _, views := rec.counts()
	require.Equal(t, 5, views)
}

func TestViewFor_LeavesBoardStateAlone(t *testing.T) {
	t.Parallel()

	b := board.New(quotesFetcher(aapl, ko, msft), board.Config{})
	require.NoError(t, b.Refresh(t.Context()))

	res := b.ViewFor(view.State{Search: "m", Sort: view.SortPriceDesc})
	require.Equal(t, []provider.Quote{msft}, res.Quotes)
	require.Equal(t, view.State{}, b.View().State)
	require.Len(t, b.View().Quotes, 3)
}

func TestViewFor_QuotesMatchGeneration(t *testing.T) {
	t.Parallel()

	// Arrange: cycle i publishes one quote priced i, fetched at second i.
	var n atomic.Int64
	f := fetchFunc(func(context.Context, []string) (snapshot.Snapshot, error) {
		i := n.Add(1)
		return snapshot.New(0, time.Unix(i, 0), []provider.Quote{{Symbol: "AAPL", Price: float64(i)}}, nil), nil
	})
	b := board.New(f, board.Config{})
	require.NoError(t, b.Refresh(t.Context()))

	done := make(chan struct{})
	go func() {
		defer close(done)
		for range 200 {
			_ = b.Refresh(t.Context())
		}
	}()

	// Act / Assert: every result describes a single snapshot.
	for {
		select {
		case <-done:
			return
		default:
		}
		res := b.ViewFor(view.State{Search: "aapl"})
		require.Len(t, res.Quotes, 1)
		require.Equal(t, float64(res.FetchedAt.Unix()), res.Quotes[0].Price)
		require.Equal(t, uint64(res.FetchedAt.Unix()), res.Generation)
	}
}

func TestHardFailure_KeepsLastSnapshot(t *testing.T) {
	t.Parallel()

	// Arrange: first cycle succeeds, second fails.
	fail := false
	f := fetchFunc(func(context.Context, []string) (snapshot.Snapshot, error) {
		if fail {
			return snapshot.Snapshot{}, &fetcher.CycleError{Err: errors.New("boom")}
		}
		return snapshot.New(0, time.Now(), []provider.Quote{aapl}, nil), nil
	})
	b := board.New(f, board.Config{})
	rec := &recorder{}
	b.Subscribe(rec)
	require.NoError(t, b.Refresh(t.Context()))

	// Act
	fail = true
	require.Error(t, b.Refresh(t.Context()))

	// Assert
	res := b.View()
	require.Equal(t, fetcher.FailureMessage, res.Error)
	require.Equal(t, []provider.Quote{aapl}, res.Quotes)
	require.Equal(t, uint64(1), res.Generation)
	_, errs, _ := rec.counts()
	require.Equal(t, 1, errs)

	// A later success clears the indicator.
	fail = false
	require.NoError(t, b.Refresh(t.Context()))
	require.Empty(t, b.View().Error)
}

func TestMissingCredential_OneErrorNoSnapshot(t *testing.T) {
	t.Parallel()

	// Arrange: a real fetcher without a credential; the provider must never be reached.
	p := &stubProvider{}
	f := fetcher.New(p, fetcher.Config{}, fetcher.WithPacer(ratelimit.NewPacer(0)))
	b := board.New(f, board.Config{Symbols: []string{"AAPL", "KO"}})
	rec := &recorder{}
	b.Subscribe(rec)

	// Act
	err := b.Refresh(t.Context())

	// Assert
	require.ErrorIs(t, err, fetcher.ErrMissingCredential)
	snaps, errs, views := rec.counts()
	require.Zero(t, snaps)
	require.Equal(t, 1, errs)
	require.Zero(t, views)
	require.Equal(t, []string{fetcher.FailureMessage}, rec.errors)
	_, ok := b.Snapshot()
	require.False(t, ok)
	require.Zero(t, p.calls)
}

type stubProvider struct{ calls int }

func (p *stubProvider) Name() string { return "stub" }

func (p *stubProvider) Quote(context.Context, string, string) (provider.Payload, error) {
	p.calls++
	return provider.Payload{"price": "1"}, nil
}

func TestTriggerRefresh_IgnoresReentrantTrigger(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	started := make(chan struct{}, 1)
	f := fetchFunc(func(context.Context, []string) (snapshot.Snapshot, error) {
		started <- struct{}{}
		<-release
		return snapshot.New(0, time.Now(), []provider.Quote{ko}, nil), nil
	})
	b := board.New(f, board.Config{})
	done := make(chan struct{})
	b.Subscribe(board.Funcs{SnapshotReady: func(snapshot.Snapshot) { close(done) }})

	require.True(t, b.TriggerRefresh(t.Context()))
	<-started
	require.True(t, b.View().Loading)
	require.False(t, b.TriggerRefresh(t.Context()))
	require.ErrorIs(t, b.Refresh(t.Context()), board.ErrRefreshInFlight)

	close(release)
	<-done
	require.Eventually(t, func() bool { return !b.View().Loading }, time.Second, 5*time.Millisecond)
	require.Equal(t, uint64(1), b.View().Generation)
}

func TestCancel_StaleCompletionNeverOverwrites(t *testing.T) {
	t.Parallel()

	// Arrange: the first cycle ignores cancellation and completes late with old data.
	var n int
	var mu sync.Mutex
	release := make(chan struct{})
	firstDone := make(chan struct{})
	started := make(chan struct{})
	f := fetchFunc(func(context.Context, []string) (snapshot.Snapshot, error) {
		mu.Lock()
		n++
		call := n
		mu.Unlock()
		if call == 1 {
			close(started)
			<-release
			defer close(firstDone)
			return snapshot.New(0, time.Now(), []provider.Quote{aapl}, nil), nil
		}
		return snapshot.New(0, time.Now(), []provider.Quote{msft}, nil), nil
	})
	b := board.New(f, board.Config{})
	rec := &recorder{}
	b.Subscribe(rec)

	// Act: start, cancel, refresh again, then let the first cycle finish.
	require.True(t, b.TriggerRefresh(t.Context()))
	<-started
	b.Cancel()
	require.False(t, b.View().Loading)
	require.NoError(t, b.Refresh(t.Context()))
	close(release)
	<-firstDone

	// Assert: only the newer generation was published.
	require.Never(t, func() bool {
		return len(b.View().Quotes) != 1 || b.View().Quotes[0] != msft
	}, 50*time.Millisecond, 5*time.Millisecond)
	require.Equal(t, uint64(3), b.View().Generation)
	snaps, _, _ := rec.counts()
	require.Equal(t, 1, snaps)
}

// gatedProvider records requested symbols; the gate symbol blocks until released,
// whatever its context says.
type gatedProvider struct {
	gate    string
	started chan struct{}
	release chan struct{}

	mu        sync.Mutex
	requested []string
}

func (p *gatedProvider) Name() string { return "gated" }

func (p *gatedProvider) Quote(_ context.Context, symbol, _ string) (provider.Payload, error) {
	p.mu.Lock()
	p.requested = append(p.requested, symbol)
	p.mu.Unlock()
	if symbol == p.gate {
		close(p.started)
		<-p.release
	}
	return provider.Payload{"price": "10", "percent_change": "1"}, nil
}

func (p *gatedProvider) symbols() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.requested...)
}

func scrape(t *testing.T, m *metrics.Metrics) string {
	t.Helper()
	rr := httptest.NewRecorder()
	m.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	return rr.Body.String()
}

func TestCancel_NextRefreshFetchesNewSymbols(t *testing.T) {
	t.Parallel()

	// Arrange: a real fetcher whose AAPL request is still in flight after Cancel.
	p := &gatedProvider{gate: "AAPL", started: make(chan struct{}), release: make(chan struct{})}
	m := metrics.New("qb")
	f := fetcher.New(p, fetcher.Config{Credential: "key"},
		fetcher.WithPacer(ratelimit.NewPacer(0)), fetcher.WithMetrics(m))
	b := board.New(f, board.Config{Symbols: []string{"AAPL"}}, board.WithMetrics(m))
	rec := &recorder{}
	b.Subscribe(rec)

	require.True(t, b.TriggerRefresh(t.Context()))
	<-p.started
	b.Cancel()
	b.SetSymbols([]string{"KO"})

	// Act: refresh while the cancelled cycle is unwinding, then let it finish.
	require.NoError(t, b.Refresh(t.Context()))
	close(p.release)

	// Assert
	require.Eventually(t, func() bool {
		body := scrape(t, m)
		return strings.Contains(body, `qb_fetch_cycles_total{outcome="canceled"} 1`) &&
			strings.Contains(body, "qb_stale_cycles_total 1")
	}, time.Second, 5*time.Millisecond)

	res := b.View()
	require.Equal(t, []provider.Quote{{Symbol: "KO", Price: 10, ChangePercent: 1}}, res.Quotes)
	require.Equal(t, uint64(3), res.Generation)
	require.Equal(t, []string{"AAPL", "KO"}, p.symbols())
	snaps, errs, _ := rec.counts()
	require.Equal(t, 1, snaps)
	require.Zero(t, errs)

	// The discarded cycle has a single outcome.
	body := scrape(t, m)
	require.Contains(t, body, `qb_fetch_cycles_total{outcome="ok"} 1`)
	require.NotContains(t, body, `outcome="stale"`)
}

func TestCancel_WithoutCycleIsNoop(t *testing.T) {
	t.Parallel()

	b := board.New(quotesFetcher(aapl), board.Config{})
	b.Cancel()
	require.NoError(t, b.Refresh(t.Context()))
	require.Equal(t, uint64(1), b.View().Generation)
}

func TestSetSymbols_UsedByNextCycle(t *testing.T) {
	t.Parallel()

	var got []string
	f := fetchFunc(func(_ context.Context, symbols []string) (snapshot.Snapshot, error) {
		got = symbols
		return snapshot.New(0, time.Now(), nil, nil), nil
	})
	b := board.New(f, board.Config{Symbols: []string{"AAPL"}})
	require.NoError(t, b.Refresh(t.Context()))
	require.Equal(t, []string{"AAPL"}, got)

	b.SetSymbols([]string{"KO", "PEP"})
	require.NoError(t, b.Refresh(t.Context()))
	require.Equal(t, []string{"KO", "PEP"}, got)
	require.Equal(t, []string{"KO", "PEP"}, b.Symbols())
}

func TestRun_RefreshesPeriodically(t *testing.T) {
	t.Parallel()

	var mu sync.Mutex
	calls := 0
	f := fetchFunc(func(context.Context, []string) (snapshot.Snapshot, error) {
		mu.Lock()
		calls++
		mu.Unlock()
		return snapshot.New(0, time.Now(), []provider.Quote{ko}, nil), nil
	})
	b := board.New(f, board.Config{RefreshInterval: 10 * time.Millisecond})

	ctx, cancel := context.WithCancel(t.Context())
	stopped := make(chan struct{})
	go func() {
		b.Run(ctx)
		close(stopped)
	}()

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return calls >= 3
	}, time.Second, 5*time.Millisecond)
	cancel()
	<-stopped
}
