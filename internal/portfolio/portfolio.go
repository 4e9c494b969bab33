// Package portfolio computes display aggregates over already-fetched
// holdings. All functions are pure; nothing here talks to the broker.
package portfolio

import (
	"sort"

	"kite_dashboard/internal/kite"
)

// TopHoldingsCount is how many holdings the dashboard ranks by value.
const TopHoldingsCount = 5

// Summary is the aggregate view of a holdings snapshot.
type Summary struct {
	Positions     int     `json:"positions"`
	InvestedValue float64 `json:"invested_value"`
	CurrentValue  float64 `json:"current_value"`
	PnL           float64 `json:"pnl"`
	PnLPercentage float64 `json:"pnl_percentage"`
}

// CurrentValue returns the market value of a holding. When the broker has
// not supplied a last price, the average buy price stands in for it.
func CurrentValue(h kite.Holding) float64 {
	price := h.LastPrice
	if price == 0 {
		price = h.AveragePrice
	}
	return float64(h.Quantity) * price
}

// InvestedValue returns the cost basis of a holding.
func InvestedValue(h kite.Holding) float64 {
	return float64(h.Quantity) * h.AveragePrice
}

// Summarize computes the portfolio aggregates for a holdings snapshot.
func Summarize(holdings []kite.Holding) Summary {
	summary := Summary{Positions: len(holdings)}
	for _, h := range holdings {
		summary.InvestedValue += InvestedValue(h)
		summary.CurrentValue += CurrentValue(h)
	}
	summary.PnL = summary.CurrentValue - summary.InvestedValue
	if summary.InvestedValue != 0 {
		summary.PnLPercentage = summary.PnL / summary.InvestedValue * 100
	}
	return summary
}

// TopByValue returns the n holdings with the highest current value, in
// descending order. Ties keep their input order.
func TopByValue(holdings []kite.Holding, n int) []kite.Holding {
	ranked := make([]kite.Holding, len(holdings))
	copy(ranked, holdings)

	sort.SliceStable(ranked, func(i, j int) bool {
		return CurrentValue(ranked[i]) > CurrentValue(ranked[j])
	})

	if n > len(ranked) {
		n = len(ranked)
	}
	return ranked[:n]
}
