package journal

import "github.com/alanyoungcy/tradejournal/internal/domain"

// Summary aggregates performance statistics over the closed positions.
type Summary struct {
	ClosedCount int
	OpenCount   int
	Wins        int
	Losses      int

	TotalRealizedPnL float64
	WinRatePct       float64
	AvgWin           float64
	AvgLoss          float64
	ProfitFactor     float64

	// AvgReturnPct is the mean realized PnL percent per closed position,
	// the per-trade return the growth projection compounds.
	AvgReturnPct float64
}

// Summarize computes performance statistics from an aggregated position
// list. Break-even positions count as neither win nor loss.
func Summarize(positions []domain.Position) Summary {
	var s Summary
	var grossWin, grossLoss, returnSum float64

	for _, p := range positions {
		if p.Status == domain.PositionStatusOpen {
			s.OpenCount++
			continue
		}

		s.ClosedCount++
		s.TotalRealizedPnL += p.RealizedPnL
		returnSum += p.RealizedPnLPct

		switch {
		case p.RealizedPnL > 0:
			s.Wins++
			grossWin += p.RealizedPnL
		case p.RealizedPnL < 0:
			s.Losses++
			grossLoss += -p.RealizedPnL
		}
	}

	if s.ClosedCount > 0 {
		s.WinRatePct = float64(s.Wins) / float64(s.ClosedCount) * 100
		s.AvgReturnPct = returnSum / float64(s.ClosedCount)
	}
	if s.Wins > 0 {
		s.AvgWin = grossWin / float64(s.Wins)
	}
	if s.Losses > 0 {
		s.AvgLoss = grossLoss / float64(s.Losses)
	}
	if grossLoss > 0 {
		s.ProfitFactor = grossWin / grossLoss
	}

	return s
}

// ProjectGrowth compounds an average per-trade return over a number of
// future trades, returning the projected equity after each one. The first
// element is the starting equity.
func ProjectGrowth(startEquity, avgReturnPct float64, trades int) []float64 {
	if trades < 0 {
		trades = 0
	}
	curve := make([]float64, trades+1)
	curve[0] = startEquity

	equity := startEquity
	for i := 1; i <= trades; i++ {
		equity *= 1 + avgReturnPct/100
		curve[i] = equity
	}
	return curve
}
