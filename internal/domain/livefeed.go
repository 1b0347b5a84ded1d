package domain

import "context"

// LivePosition is one open position as reported by the external market feed.
// Numeric fields arrive as decimal strings and require parsing; a field that
// fails to parse is skipped rather than failing the whole record.
type LivePosition struct {
	MarketID         string
	Side             string
	Size             string
	EntryPrice       string
	PositionValue    string
	MarkPrice        string
	LiquidationPrice string
	Margin           string
	Leverage         string
	Funding          string
	UnrealizedPnL    string
}

// LiveFeed supplies a point-in-time snapshot of the account's open positions
// from the exchange. A failed fetch degrades aggregation (no live overlay)
// rather than aborting it.
type LiveFeed interface {
	OpenPositions(ctx context.Context) ([]LivePosition, error)
}

// SymbolResolver maps an exchange market identifier to a trading symbol.
type SymbolResolver interface {
	Resolve(ctx context.Context, marketID string) (string, error)
}
