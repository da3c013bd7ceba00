// Package app wires configuration into a running board. Both binaries build through it.
package app

import (
	"fmt"
	"net/http"
	"net/url"

	"go.uber.org/zap"

	"quoteboard/internal/board"
	"quoteboard/internal/config"
	"quoteboard/internal/fetcher"
	"quoteboard/internal/httpx"
	"quoteboard/internal/logger"
	"quoteboard/internal/metrics"
	"quoteboard/internal/provider"
	"quoteboard/internal/provider/alphavantage"
	"quoteboard/internal/provider/twelvedata"
)

// NewProvider returns the single provider selected by cfg.Provider.Name.
func NewProvider(cfg config.Config) (provider.Provider, error) {
	hc := httpx.New(cfg.ProviderTimeout())

	switch cfg.Provider.Name {
	case config.ProviderTwelveData:
		query := url.Values{}
		for k, v := range cfg.Provider.Query {
			query.Set(k, v)
		}
		header := http.Header{}
		for k, v := range cfg.Provider.Headers {
			header.Set(k, v)
		}
		return twelvedata.NewClient(
			twelvedata.WithHTTPClient(hc),
			twelvedata.WithBaseURL(cfg.Provider.BaseURL),
			twelvedata.WithQuery(query),
			twelvedata.WithHeader(header),
		), nil
	case config.ProviderAlphaVantage:
		hc.Headers = cfg.Provider.Headers
		return alphavantage.New(alphavantage.Config{URL: cfg.Provider.BaseURL}, hc), nil
	}
	return nil, fmt.Errorf("unknown provider %q", cfg.Provider.Name)
}

// NewBoard builds provider, fetcher and board for cfg.
func NewBoard(cfg config.Config, log *zap.Logger, m *metrics.Metrics) (*board.Board, error) {
	p, err := NewProvider(cfg)
	if err != nil {
		return nil, err
	}
	log = logger.OrNop(log)
	if cfg.Credential() == "" {
		log.Warn("no provider credential configured for env; every refresh will fail", zap.String("env", cfg.Env))
	}

	f := fetcher.New(p, fetcher.Config{
		Credential: cfg.Credential(),
		Delay:      cfg.Delay(),
		Symbols:    cfg.Watchlist.Symbols,
	}, fetcher.WithLogger(log), fetcher.WithMetrics(m))

	return board.New(f, board.Config{
		Symbols:         cfg.Watchlist.Symbols,
		RefreshInterval: cfg.RefreshInterval(),
	}, board.WithLogger(log), board.WithMetrics(m)), nil
}
