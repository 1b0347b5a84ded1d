package domain

import "time"

// PositionStatus tracks whether a position is open or closed.
type PositionStatus string

const (
	PositionStatusOpen   PositionStatus = "open"
	PositionStatusClosed PositionStatus = "closed"
)

// PositionSide is the economic direction of a position. It is fixed at
// creation from the opening fill's direction and never changes.
type PositionSide string

const (
	PositionSideLong  PositionSide = "LONG"
	PositionSideShort PositionSide = "SHORT"
)

// SideForFill returns the position side implied by an opening fill.
func SideForFill(side FillSide) PositionSide {
	if side == FillSideSell {
		return PositionSideShort
	}
	return PositionSideLong
}

// Position is the net economic exposure on one symbol, derived from a
// contiguous run of same-symbol fills between two flat states. Closed
// positions are immutable except for the Journal and Category annotations.
type Position struct {
	ID       string
	Symbol   string
	MarketID string
	Side     PositionSide
	Status   PositionStatus

	// Quantity is the net quantity currently held; zero once closed.
	Quantity float64

	// AvgEntryPrice is the value-weighted mean over all increasing fills.
	// AvgExitPrice is the same over reducing fills; nil while none occurred.
	AvgEntryPrice float64
	AvgExitPrice  *float64

	EntryCost      float64
	ExitRevenue    float64
	RealizedPnL    float64
	RealizedPnLPct float64

	// Live-market overlay, populated only for open positions when the feed
	// has a matching entry. All nil otherwise.
	MarkPrice        *float64
	PositionValue    *float64
	LiquidationPrice *float64
	Margin           *float64
	Leverage         *float64
	Funding          *float64
	UnrealizedPnL    *float64
	UnrealizedPnLPct *float64

	OpenedAt time.Time
	ClosedAt *time.Time

	// User-editable annotations, carried across recomputation.
	Journal  string
	Category string

	Fills      []Fill
	FillsCount int
}

// MetadataUpdate carries a partial journal/category edit. Nil fields are
// left untouched.
type MetadataUpdate struct {
	Journal  *string
	Category *string
}
