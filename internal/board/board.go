// Package board holds the consumer-facing state of the quote board: the current snapshot,
// the search and sort settings, and the refresh lifecycle.
//
// Every accepted refresh gets a new generation. A cycle's result is published only if its
// generation is still the active one when it completes, so a cancelled or superseded
// cycle can never overwrite newer data. A failed cycle keeps the previous snapshot.
package board

import (
	"context"
	"errors"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"quoteboard/internal/fetcher"
	"quoteboard/internal/logger"
	"quoteboard/internal/metrics"
	"quoteboard/internal/provider"
	"quoteboard/internal/snapshot"
	"quoteboard/internal/view"
)

// ErrRefreshInFlight is returned by Refresh when a cycle is already running.
var ErrRefreshInFlight = errors.New("refresh already in flight")

// Fetcher runs one fetch cycle.
type Fetcher interface {
	FetchAll(ctx context.Context, symbols []string) (snapshot.Snapshot, error)
}

// Listener receives board events. Methods may be called from the cycle goroutine and
// must not block.
type Listener interface {
	OnSnapshotReady(snap snapshot.Snapshot)
	OnFetchError(message string)
	OnViewChanged(quotes []provider.Quote)
}

// Funcs adapts plain functions to Listener; nil fields are ignored.
type Funcs struct {
	SnapshotReady func(snapshot.Snapshot)
	FetchError    func(string)
	ViewChanged   func([]provider.Quote)
}

func (f Funcs) OnSnapshotReady(s snapshot.Snapshot) {
	if f.SnapshotReady != nil {
		f.SnapshotReady(s)
	}
}

func (f Funcs) OnFetchError(msg string) {
	if f.FetchError != nil {
		f.FetchError(msg)
	}
}

func (f Funcs) OnViewChanged(q []provider.Quote) {
	if f.ViewChanged != nil {
		f.ViewChanged(q)
	}
}

type Config struct {
	Symbols         []string
	RefreshInterval time.Duration // 0 disables Run's periodic refresh
}

// Result is what a renderer needs to draw the board.
type Result struct {
	Quotes     []provider.Quote `json:"quotes"`
	State      view.State       `json:"state"`
	Error      string           `json:"error,omitempty"`
	Loading    bool             `json:"loading"`
	FetchedAt  time.Time        `json:"fetched_at"`
	Generation uint64           `json:"generation"`
}

type Board struct {
	fetcher  Fetcher
	interval time.Duration
	log      *zap.Logger
	metrics  *metrics.Metrics

	store snapshot.Store
	gen   atomic.Uint64 // active generation

	mu        sync.Mutex
	symbols   []string
	state     view.State
	projected []provider.Quote
	errMsg    string
	loading   bool
	cancel    context.CancelFunc
	listeners []Listener
}

type Option func(*Board)

func WithLogger(l *zap.Logger) Option { return func(b *Board) { b.log = l } }

func WithMetrics(m *metrics.Metrics) Option { return func(b *Board) { b.metrics = m } }

func New(f Fetcher, cfg Config, opts ...Option) *Board {
	b := &Board{
		fetcher:  f,
		interval: cfg.RefreshInterval,
		symbols:  slices.Clone(cfg.Symbols),
	}
	for _, opt := range opts {
		opt(b)
	}
	b.log = logger.OrNop(b.log).With(zap.String("component", "board"))
	return b
}

// Subscribe registers l for all future events.
func (b *Board) Subscribe(l Listener) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.listeners = append(b.listeners, l)
}

// SetSymbols replaces the watch-list used by subsequent cycles.
func (b *Board) SetSymbols(symbols []string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.symbols = slices.Clone(symbols)
}

func (b *Board) Symbols() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return slices.Clone(b.symbols)
}

// TriggerRefresh starts a cycle in the background and reports whether it did. A trigger
// while a cycle is running is ignored. The cycle lives as long as ctx, so callers should
// pass a long-lived context rather than a request-scoped one.
func (b *Board) TriggerRefresh(ctx context.Context) bool {
	cctx, gen, symbols, ok := b.begin(ctx)
	if !ok {
		b.log.Debug("refresh ignored, cycle in flight")
		return false
	}
	go func() { _ = b.run(cctx, gen, symbols) }()
	return true
}

// Refresh runs a cycle and waits for it. It returns ErrRefreshInFlight without waiting
// when another cycle is running.
func (b *Board) Refresh(ctx context.Context) error {
	cctx, gen, symbols, ok := b.begin(ctx)
	if !ok {
		return ErrRefreshInFlight
	}
	return b.run(cctx, gen, symbols)
}

// Cancel aborts the running cycle, if any. Its result will be discarded.
func (b *Board) Cancel() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.loading {
		return
	}
	b.gen.Add(1)
	b.cancel()
	b.cancel = nil
	b.loading = false
}

// Run triggers a refresh immediately and then every RefreshInterval until ctx is done.
// With no interval it only performs the initial refresh.
func (b *Board) Run(ctx context.Context) {
	b.TriggerRefresh(ctx)
	if b.interval <= 0 {
		<-ctx.Done()
		return
	}
	t := time.NewTicker(b.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			b.Cancel()
			return
		case <-t.C:
			b.TriggerRefresh(ctx)
		}
	}
}

func (b *Board) SetSearchText(s string) {
	b.updateState(func(st *view.State) { st.Search = s })
}

func (b *Board) SetSortKey(k view.SortKey) {
	b.updateState(func(st *view.State) { st.Sort = k })
}

// View returns the board as it should currently be drawn.
func (b *Board) View() Result {
	b.mu.Lock()
	defer b.mu.Unlock()
	snap, _ := b.store.Load()
	return b.resultLocked(snap, slices.Clone(b.projected), b.state)
}

// ViewFor projects the current snapshot with state without changing the board's own
// search and sort settings.
func (b *Board) ViewFor(state view.State) Result {
	snap, _ := b.store.Load()
	quotes := view.Project(snap.Quotes(), state)
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.resultLocked(snap, quotes, state)
}

// Snapshot returns the last published snapshot.
func (b *Board) Snapshot() (snapshot.Snapshot, bool) { return b.store.Load() }

// resultLocked describes snap; quotes must be a projection of it.
func (b *Board) resultLocked(snap snapshot.Snapshot, quotes []provider.Quote, state view.State) Result {
	if quotes == nil {
		quotes = []provider.Quote{}
	}
	return Result{
		Quotes:     quotes,
		State:      state,
		Error:      b.errMsg,
		Loading:    b.loading,
		FetchedAt:  snap.FetchedAt(),
		Generation: snap.Generation(),
	}
}

func (b *Board) begin(ctx context.Context) (context.Context, uint64, []string, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.loading {
		return nil, 0, nil, false
	}
	cctx, cancel := context.WithCancel(ctx)
	b.cancel = cancel
	b.loading = true
	return cctx, b.gen.Add(1), slices.Clone(b.symbols), true
}

func (b *Board) run(ctx context.Context, gen uint64, symbols []string) error {
	snap, err := b.fetcher.FetchAll(ctx, symbols)

	b.mu.Lock()
	if gen != b.gen.Load() {
		b.mu.Unlock()
		b.metrics.ObserveStale()
		b.log.Info("discarding stale cycle", zap.Uint64("generation", gen))
		return err
	}
	b.cancel()
	b.cancel = nil
	b.loading = false

	if err != nil {
		listeners := slices.Clone(b.listeners)
		if errors.Is(err, context.Canceled) {
			b.mu.Unlock()
			b.log.Info("cycle canceled", zap.Uint64("generation", gen))
			return err
		}
		b.errMsg = fetcher.FailureMessage
		b.mu.Unlock()
		b.log.Error("cycle failed, keeping last snapshot", zap.Uint64("generation", gen), zap.Error(err))
		for _, l := range listeners {
			l.OnFetchError(fetcher.FailureMessage)
		}
		return err
	}

	snap = snap.WithGeneration(gen)
	if !b.store.Publish(snap, func(g uint64) bool { return g == b.gen.Load() }) {
		b.mu.Unlock()
		b.metrics.ObserveStale()
		return nil
	}
	b.errMsg = ""
	b.projected = view.Project(snap.Quotes(), b.state)
	projected := slices.Clone(b.projected)
	listeners := slices.Clone(b.listeners)
	b.mu.Unlock()

	b.metrics.SetSnapshotQuotes(snap.Len())
	b.log.Info("snapshot published",
		zap.Uint64("generation", gen),
		zap.Int("quotes", snap.Len()),
		zap.Int("skipped", len(snap.Skipped())),
	)
	for _, l := range listeners {
		l.OnSnapshotReady(snap)
		l.OnViewChanged(slices.Clone(projected))
	}
	return nil
}

func (b *Board) updateState(mutate func(*view.State)) {
	b.mu.Lock()
	snap, _ := b.store.Load()
	mutate(&b.state)
	b.projected = view.Project(snap.Quotes(), b.state)
	projected := slices.Clone(b.projected)
	listeners := slices.Clone(b.listeners)
	b.mu.Unlock()

	for _, l := range listeners {
		l.OnViewChanged(slices.Clone(projected))
	}
}
