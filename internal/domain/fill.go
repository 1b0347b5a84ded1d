package domain

import "time"

// FillSide is the direction of a single execution.
type FillSide string

const (
	FillSideBuy  FillSide = "BUY"
	FillSideSell FillSide = "SELL"
)

// Fill is one executed trade event against a market. Fills are append-only
// ground truth: they are never mutated or deleted once recorded.
type Fill struct {
	ID        string
	Symbol    string
	MarketID  string
	Side      FillSide
	Price     float64
	Quantity  float64
	Timestamp time.Time
	Exchange  string
}

// Notional returns the quote-currency value of the fill.
func (f Fill) Notional() float64 {
	return f.Price * f.Quantity
}
