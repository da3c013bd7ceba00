// Package fetcher runs fetch cycles: one paced provider request per symbol, in order,
// accumulating normalized quotes into a snapshot.
package fetcher

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"quoteboard/internal/logger"
	"quoteboard/internal/metrics"
	"quoteboard/internal/normalize"
	"quoteboard/internal/provider"
	"quoteboard/internal/provider/ratelimit"
	"quoteboard/internal/snapshot"
)

//go:generate mockgen -package=fetcher_test -destination=mock_provider_test.go quoteboard/internal/provider Provider

// DefaultDelay is the minimum spacing between consecutive provider requests.
const DefaultDelay = 500 * time.Millisecond

// Config is everything a cycle needs besides the provider itself.
type Config struct {
	Credential string
	Delay      time.Duration // <= 0 selects DefaultDelay
	Symbols    []string      // used when FetchAll is called without symbols
}

// Fetcher runs at most one live cycle at a time. Calls made while a cycle is in flight
// join it, unless that cycle's context is already done.
type Fetcher struct {
	cfg     Config
	src     provider.Provider
	pacer   *ratelimit.Pacer
	log     *zap.Logger
	metrics *metrics.Metrics
	now     func() time.Time

	mu    sync.Mutex // guards seq and live
	seq   uint64
	live  liveCycle
	group singleflight.Group
}

// liveCycle is the singleflight key of the joinable cycle and the context it runs under.
type liveCycle struct {
	key string
	ctx context.Context
}

type Option func(*Fetcher)

func WithLogger(l *zap.Logger) Option { return func(f *Fetcher) { f.log = l } }

func WithMetrics(m *metrics.Metrics) Option { return func(f *Fetcher) { f.metrics = m } }

// WithClock overrides the time source used for FetchedAt.
func WithClock(now func() time.Time) Option { return func(f *Fetcher) { f.now = now } }

// WithPacer replaces the pacer built from Config.Delay.
func WithPacer(p *ratelimit.Pacer) Option { return func(f *Fetcher) { f.pacer = p } }

func New(p provider.Provider, cfg Config, opts ...Option) *Fetcher {
	if cfg.Delay <= 0 {
		cfg.Delay = DefaultDelay
	}
	f := &Fetcher{cfg: cfg, src: p, now: time.Now}
	for _, opt := range opts {
		opt(f)
	}
	if f.pacer == nil {
		f.pacer = ratelimit.NewPacer(cfg.Delay)
	}
	f.log = logger.OrNop(f.log).With(zap.String("component", "fetcher"))
	return f
}

// Symbols returns the configured watch-list.
func (f *Fetcher) Symbols() []string { return append([]string(nil), f.cfg.Symbols...) }

// FetchAll runs one cycle over symbols (the configured list when empty) and returns the
// resulting snapshot, which may hold fewer quotes than symbols. A returned error is always
// a *CycleError. When a live cycle is already running the call waits for that cycle
// instead of starting another; it then shares that cycle's symbols, context and result.
// A cycle whose context is done is never joined, so a call made after a cancellation
// always starts fresh.
func (f *Fetcher) FetchAll(ctx context.Context, symbols []string) (snapshot.Snapshot, error) {
	if len(symbols) == 0 {
		symbols = f.cfg.Symbols
	}
	key := f.joinKey(ctx)
	ch := f.group.DoChan(key, func() (any, error) {
		defer f.release(key)
		return f.run(ctx, symbols)
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			return snapshot.Snapshot{}, res.Err
		}
		return res.Val.(snapshot.Snapshot), nil
	case <-ctx.Done():
		return snapshot.Snapshot{}, &CycleError{Err: ctx.Err()}
	}
}

// joinKey returns the key of the live cycle, or a new key when there is none or its
// context is done.
func (f *Fetcher) joinKey(ctx context.Context) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.live.key != "" && f.live.ctx.Err() == nil {
		return f.live.key
	}
	f.seq++
	f.live = liveCycle{key: "cycle-" + strconv.FormatUint(f.seq, 10), ctx: ctx}
	return f.live.key
}

func (f *Fetcher) release(key string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.live.key == key {
		f.live = liveCycle{}
	}
}

func (f *Fetcher) run(ctx context.Context, symbols []string) (snap snapshot.Snapshot, err error) {
	start := time.Now()
	log := f.log.With(
		zap.String("cycle_id", uuid.NewString()),
		zap.String("provider", f.src.Name()),
	)

	defer func() {
		if r := recover(); r != nil {
			log.Error("fetch cycle panicked", zap.Any("panic", r), zap.Stack("stack"))
			snap, err = snapshot.Snapshot{}, &CycleError{Err: fmt.Errorf("%w: %v", ErrPanic, r)}
		}
		outcome := metrics.OutcomeOK
		switch {
		case err == nil:
		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			outcome = metrics.OutcomeCanceled
		default:
			outcome = metrics.OutcomeFailed
		}
		f.metrics.ObserveCycle(outcome, time.Since(start))
	}()

	if f.cfg.Credential == "" {
		log.Error("fetch cycle aborted", zap.Error(ErrMissingCredential))
		return snapshot.Snapshot{}, &CycleError{Err: ErrMissingCredential}
	}
	symbols = dedupe(symbols)
	if len(symbols) == 0 {
		log.Error("fetch cycle aborted", zap.Error(ErrNoSymbols))
		return snapshot.Snapshot{}, &CycleError{Err: ErrNoSymbols}
	}

	quotes := make([]provider.Quote, 0, len(symbols))
	var skipped []Skip
	for _, sym := range symbols {
		if err := f.pacer.Wait(ctx); err != nil {
			log.Info("fetch cycle canceled", zap.String("symbol", sym), zap.Error(err))
			if ctx.Err() != nil {
				err = ctx.Err()
			}
			return snapshot.Snapshot{}, &CycleError{Err: err}
		}

		q, err := f.fetchOne(ctx, sym)
		if err != nil {
			if ctx.Err() != nil {
				log.Info("fetch cycle canceled", zap.String("symbol", sym), zap.Error(ctx.Err()))
				return snapshot.Snapshot{}, &CycleError{Err: ctx.Err()}
			}
			result := metrics.ResultFailure
			if errors.Is(err, provider.ErrNoData) {
				result = metrics.ResultNoData
			}
			f.metrics.ObserveSymbol(f.src.Name(), result)
			log.Warn("symbol skipped", zap.String("symbol", sym), zap.String("reason", result), zap.Error(err))
			skipped = append(skipped, Skip{Symbol: sym, Reason: err.Error()})
			continue
		}
		f.metrics.ObserveSymbol(f.src.Name(), metrics.ResultOK)
		quotes = append(quotes, q)
	}
	// A provider may ignore cancellation and answer anyway.
	if err := ctx.Err(); err != nil {
		log.Info("fetch cycle canceled", zap.Error(err))
		return snapshot.Snapshot{}, &CycleError{Err: err}
	}

	snap = snapshot.New(0, f.now(), quotes, skipped)
	log.Info("fetch cycle complete",
		zap.Int("requested", len(symbols)),
		zap.Int("quotes", len(quotes)),
		zap.Int("skipped", len(skipped)),
		zap.Duration("took", time.Since(start)),
	)
	return snap, nil
}

func (f *Fetcher) fetchOne(ctx context.Context, sym string) (provider.Quote, error) {
	body, err := f.src.Quote(ctx, sym, f.cfg.Credential)
	if err != nil {
		return provider.Quote{}, fmt.Errorf("%s: %w", sym, err)
	}
	return normalize.Quote(sym, body)
}

// dedupe normalizes symbols and drops blanks and repeats, keeping first-seen order.
func dedupe(symbols []string) []string {
	seen := make(map[string]struct{}, len(symbols))
	out := make([]string, 0, len(symbols))
	for _, s := range symbols {
		s = normalize.Symbol(s)
		if s == "" {
			continue
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}
