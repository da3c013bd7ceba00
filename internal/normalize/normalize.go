// Package normalize reduces provider payloads to provider.Quote.
//
// Two response shapes are understood:
//
//   - flat:   {"price": "101.50", "close": "101.40", "percent_change": "-0.35"}
//   - nested: {"Global Quote": {"05. price": "256.10", "10. change percent": "1.20%"}}
//
// The nested fields are also accepted without the "Global Quote" wrapper.
package normalize

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"quoteboard/internal/provider"
)

const globalQuoteKey = "Global Quote"

// priceKeys are tried in order; the first present and parseable one wins.
var priceKeys = []string{"price", "05. price", "close"}

var changeKeys = []string{"percent_change", "10. change percent"}

// errorKeys mark a provider-level refusal rather than a quote.
var errorKeys = []string{"Error Message", "Note", "Information"}

// Symbol trims and upper-cases a ticker.
func Symbol(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}

// Quote normalizes body into a Quote for symbol. A provider-level "no data" answer
// yields an error wrapping provider.ErrNoData.
func Quote(symbol string, body provider.Payload) (provider.Quote, error) {
	sym := Symbol(symbol)
	if sym == "" {
		return provider.Quote{}, fmt.Errorf("empty symbol: %w", provider.ErrNoData)
	}
	if len(body) == 0 {
		return provider.Quote{}, fmt.Errorf("%s: empty payload: %w", sym, provider.ErrNoData)
	}
	if msg, ok := providerError(body); ok {
		return provider.Quote{}, fmt.Errorf("%s: %s: %w", sym, msg, provider.ErrNoData)
	}

	fields := map[string]any(body)
	if raw, ok := body[globalQuoteKey]; ok {
		inner, ok := raw.(map[string]any)
		if !ok || len(inner) == 0 {
			return provider.Quote{}, fmt.Errorf("%s: empty global quote: %w", sym, provider.ErrNoData)
		}
		fields = inner
	}

	price := 0.0
	for _, k := range priceKeys {
		if v, ok := number(fields[k]); ok {
			price = v
			break
		}
	}
	if price < 0 || math.IsNaN(price) || math.IsInf(price, 0) {
		return provider.Quote{}, fmt.Errorf("%s: invalid price %v: %w", sym, price, provider.ErrNoData)
	}

	change := 0.0
	for _, k := range changeKeys {
		if v, ok := number(fields[k]); ok {
			change = v
			break
		}
	}
	if math.IsNaN(change) || math.IsInf(change, 0) {
		change = 0
	}

	return provider.Quote{Symbol: sym, Price: price, ChangePercent: change}, nil
}

// providerError reports whether body is an error marker instead of a quote.
func providerError(body provider.Payload) (string, bool) {
	if s, ok := body["status"].(string); ok && strings.EqualFold(s, "error") {
		if m, ok := body["message"].(string); ok && m != "" {
			return m, true
		}
		return "status=error", true
	}
	for _, k := range errorKeys {
		if m, ok := body[k].(string); ok && m != "" {
			return m, true
		}
	}
	return "", false
}

// number parses a JSON string or number. Percent signs, thousands separators and
// surrounding spaces are stripped from strings.
func number(v any) (float64, bool) {
	switch t := v.(type) {
	case json.Number:
		f, err := t.Float64()
		return f, err == nil
	case float64:
		return t, true
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	case string:
		s := strings.TrimSpace(t)
		s = strings.TrimSuffix(s, "%")
		s = strings.ReplaceAll(s, ",", "")
		s = strings.TrimSpace(s)
		if s == "" {
			return 0, false
		}
		f, err := strconv.ParseFloat(s, 64)
		return f, err == nil
	}
	return 0, false
}
