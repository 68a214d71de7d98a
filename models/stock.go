package models

import "time"

// Stock is a tracked ticker symbol with its display name
type Stock struct {
	Symbol string `json:"symbol"`
	Name   string `json:"name"`
}

// Quote is a single fresh lookup from the quote source. It is never cached.
type Quote struct {
	Symbol        string  `json:"symbol"`
	LatestPrice   float64 `json:"latest_price"`
	PreviousClose float64 `json:"previous_close"`
	PercentChange float64 `json:"percent_change"` // already multiplied by 100
}

// TickState classifies a scheduler tick. It is derived from wall-clock time and never stored.
type TickState struct {
	Now             time.Time `json:"now"`
	IsMarketOpen    bool      `json:"is_market_open"`
	IsOpenBoundary  bool      `json:"is_open_boundary"`
	IsCloseBoundary bool      `json:"is_close_boundary"`
}

// IsBoundary reports whether the tick falls exactly on market open or close
func (t TickState) IsBoundary() bool {
	return t.IsOpenBoundary || t.IsCloseBoundary
}

// ShouldResolve reports whether predictions are resolved on this tick.
// A holiday weekday at 09:30 is a boundary but the market is not open, so nothing resolves.
func (t TickState) ShouldResolve() bool {
	return t.IsMarketOpen && t.IsBoundary()
}

// SessionLabel is "open" or "close" for boundary ticks and "" otherwise
func (t TickState) SessionLabel() string {
	switch {
	case t.IsOpenBoundary:
		return "open"
	case t.IsCloseBoundary:
		return "close"
	}
	return ""
}
