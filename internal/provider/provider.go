package provider

import (
	"context"
	"errors"
)

// Quote is the normalized shape every provider payload is reduced to.
type Quote struct {
	Symbol        string  `json:"symbol"`
	Price         float64 `json:"price"`
	ChangePercent float64 `json:"change_percent"`
}

// Payload is a decoded provider response body. Numbers are kept as json.Number.
type Payload map[string]any

// ErrNoData marks a provider-level "no data for this symbol" answer, as opposed to a
// transport failure.
var ErrNoData = errors.New("no data for symbol")

// Provider performs one quote lookup per symbol.
type Provider interface {
	Name() string
	Quote(ctx context.Context, symbol, apiKey string) (Payload, error)
}
