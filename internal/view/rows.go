package view

import (
	"github.com/shopspring/decimal"

	"quoteboard/internal/provider"
)

// Row is a display-ready quote.
type Row struct {
	Symbol        string  `json:"symbol"`
	Price         float64 `json:"price"`
	ChangePercent float64 `json:"change_percent"`
	PriceText     string  `json:"price_text"`
	ChangeText    string  `json:"change_text"`
	Direction     string  `json:"direction"` // up | down
}

// Rows formats quotes in order: price as "$x.xx", change as "x.xx%".
// A change of exactly zero counts as up.
func Rows(quotes []provider.Quote) []Row {
	out := make([]Row, 0, len(quotes))
	for _, q := range quotes {
		dir := "up"
		if q.ChangePercent < 0 {
			dir = "down"
		}
		out = append(out, Row{
			Symbol:        q.Symbol,
			Price:         q.Price,
			ChangePercent: q.ChangePercent,
			PriceText:     "$" + decimal.NewFromFloat(q.Price).StringFixed(2),
			ChangeText:    decimal.NewFromFloat(q.ChangePercent).StringFixed(2) + "%",
			Direction:     dir,
		})
	}
	return out
}
