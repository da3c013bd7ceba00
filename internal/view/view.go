package view

import (
	"fmt"
	"slices"
	"strings"

	"golang.org/x/text/cases"

	"quoteboard/internal/provider"
)

// SortKey selects the display order.
type SortKey string

const (
	SortNone       SortKey = "none"
	SortPriceDesc  SortKey = "price-desc"
	SortChangeDesc SortKey = "change-desc"
)

// sortAliases normalizes user-facing spellings of a sort key.
var sortAliases = map[string]SortKey{
	"":              SortNone,
	"none":          SortNone,
	"price":         SortPriceDesc,
	"price-desc":    SortPriceDesc,
	"change":        SortChangeDesc,
	"changepercent": SortChangeDesc,
	"change-desc":   SortChangeDesc,
}

// ParseSortKey maps a query or flag value to a SortKey.
func ParseSortKey(s string) (SortKey, error) {
	if k, ok := sortAliases[strings.ToLower(strings.TrimSpace(s))]; ok {
		return k, nil
	}
	return SortNone, fmt.Errorf("unknown sort key %q", s)
}

// State is the user-controlled part of the view. It never influences fetching.
type State struct {
	Search string  `json:"search"`
	Sort   SortKey `json:"sort"`
}

// Project filters quotes to symbols containing state.Search (case-folded) and orders the
// result by state.Sort. The sort is stable: equal keys keep snapshot order, and symbols
// are never used as a tie-breaker. The input slice is not modified.
func Project(quotes []provider.Quote, state State) []provider.Quote {
	fold := cases.Fold()
	needle := fold.String(state.Search)

	out := make([]provider.Quote, 0, len(quotes))
	for _, q := range quotes {
		if needle == "" || strings.Contains(fold.String(q.Symbol), needle) {
			out = append(out, q)
		}
	}

	switch state.Sort {
	case SortPriceDesc:
		slices.SortStableFunc(out, func(a, b provider.Quote) int { return descending(a.Price, b.Price) })
	case SortChangeDesc:
		slices.SortStableFunc(out, func(a, b provider.Quote) int { return descending(a.ChangePercent, b.ChangePercent) })
	}
	return out
}

func descending(a, b float64) int {
	switch {
	case a > b:
		return -1
	case a < b:
		return 1
	}
	return 0
}
