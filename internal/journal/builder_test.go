package journal

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/tradejournal/internal/domain"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func fill(id string, side domain.FillSide, price, qty float64, at time.Time) domain.Fill {
	return domain.Fill{
		ID:        id,
		Symbol:    "ETH",
		Side:      side,
		Price:     price,
		Quantity:  qty,
		Timestamp: at,
		Exchange:  "hyperliquid",
	}
}

func TestBuildPositionsLongFullClose(t *testing.T) {
	fills := []domain.Fill{
		fill("f1", domain.FillSideBuy, 100, 10, t0),
		fill("f2", domain.FillSideSell, 110, 10, t0.Add(time.Hour)),
	}

	positions, err := BuildPositions("ETH", fills, nil)
	require.NoError(t, err)
	require.Len(t, positions, 1)

	p := positions[0]
	assert.Equal(t, domain.PositionSideLong, p.Side)
	assert.Equal(t, domain.PositionStatusClosed, p.Status)
	assert.Zero(t, p.Quantity)
	assert.InDelta(t, 100.0, p.RealizedPnL, 1e-9)
	assert.InDelta(t, 10.0, p.RealizedPnLPct, 1e-9)
	assert.InDelta(t, 100.0, p.AvgEntryPrice, 1e-9)
	require.NotNil(t, p.AvgExitPrice)
	assert.InDelta(t, 110.0, *p.AvgExitPrice, 1e-9)
	assert.Equal(t, t0, p.OpenedAt)
	require.NotNil(t, p.ClosedAt)
	assert.Equal(t, t0.Add(time.Hour), *p.ClosedAt)
	assert.Equal(t, 2, p.FillsCount)
}

func TestBuildPositionsShortSymmetry(t *testing.T) {
	fills := []domain.Fill{
		fill("f1", domain.FillSideSell, 50, 20, t0),
		fill("f2", domain.FillSideBuy, 45, 20, t0.Add(time.Minute)),
	}

	positions, err := BuildPositions("ETH", fills, nil)
	require.NoError(t, err)
	require.Len(t, positions, 1)

	p := positions[0]
	assert.Equal(t, domain.PositionSideShort, p.Side)
	assert.Equal(t, domain.PositionStatusClosed, p.Status)
	assert.InDelta(t, 100.0, p.RealizedPnL, 1e-9)
}

func TestBuildPositionsPartialClose(t *testing.T) {
	fills := []domain.Fill{
		fill("f1", domain.FillSideBuy, 100, 10, t0),
		fill("f2", domain.FillSideSell, 110, 4, t0.Add(time.Minute)),
	}

	positions, err := BuildPositions("ETH", fills, nil)
	require.NoError(t, err)
	require.Len(t, positions, 1)

	p := positions[0]
	assert.Equal(t, domain.PositionStatusOpen, p.Status)
	assert.InDelta(t, 6.0, p.Quantity, 1e-9)
	assert.InDelta(t, 40.0, p.RealizedPnL, 1e-9)

	// A final reducing fill closes the position; the second reduction is
	// realized against the same weighted entry, not the shrunken remainder.
	fills = append(fills, fill("f3", domain.FillSideSell, 90, 6, t0.Add(2*time.Minute)))
	positions, err = BuildPositions("ETH", fills, nil)
	require.NoError(t, err)
	require.Len(t, positions, 1)

	p = positions[0]
	assert.Equal(t, domain.PositionStatusClosed, p.Status)
	assert.InDelta(t, -20.0, p.RealizedPnL, 1e-9)
	assert.InDelta(t, -2.0, p.RealizedPnLPct, 1e-9)
}

func TestBuildPositionsRealizesAgainstRunningAverage(t *testing.T) {
	// Two entries at different prices: the reduction realizes against the
	// weighted average accumulated up to that point.
	fills := []domain.Fill{
		fill("f1", domain.FillSideBuy, 100, 10, t0),
		fill("f2", domain.FillSideBuy, 120, 10, t0.Add(time.Minute)),
		fill("f3", domain.FillSideSell, 115, 20, t0.Add(2*time.Minute)),
	}

	positions, err := BuildPositions("ETH", fills, nil)
	require.NoError(t, err)
	require.Len(t, positions, 1)

	p := positions[0]
	// avg entry = (100*10 + 120*10) / 20 = 110
	assert.InDelta(t, 110.0, p.AvgEntryPrice, 1e-9)
	assert.InDelta(t, (115.0-110.0)*20, p.RealizedPnL, 1e-9)
}

func TestBuildPositionsConsecutivePositions(t *testing.T) {
	fills := []domain.Fill{
		fill("f1", domain.FillSideBuy, 100, 5, t0),
		fill("f2", domain.FillSideSell, 105, 5, t0.Add(time.Minute)),
		// The next fill after flat starts a fresh position; a sell first
		// means it opens SHORT.
		fill("f3", domain.FillSideSell, 200, 3, t0.Add(time.Hour)),
	}

	positions, err := BuildPositions("ETH", fills, nil)
	require.NoError(t, err)
	require.Len(t, positions, 2)

	assert.Equal(t, domain.PositionStatusClosed, positions[0].Status)
	assert.Equal(t, domain.PositionSideLong, positions[0].Side)
	assert.Equal(t, domain.PositionStatusOpen, positions[1].Status)
	assert.Equal(t, domain.PositionSideShort, positions[1].Side)
	assert.InDelta(t, 3.0, positions[1].Quantity, 1e-9)
}

func TestBuildPositionsConservation(t *testing.T) {
	fills := []domain.Fill{
		fill("f1", domain.FillSideBuy, 10, 1, t0),
		fill("f2", domain.FillSideBuy, 11, 2, t0.Add(1*time.Minute)),
		fill("f3", domain.FillSideSell, 12, 3, t0.Add(2*time.Minute)),
		fill("f4", domain.FillSideBuy, 9, 4, t0.Add(3*time.Minute)),
		fill("f5", domain.FillSideSell, 10, 1, t0.Add(4*time.Minute)),
	}

	positions, err := BuildPositions("ETH", fills, nil)
	require.NoError(t, err)

	total := 0
	seen := map[string]bool{}
	for _, p := range positions {
		total += p.FillsCount
		require.Len(t, p.Fills, p.FillsCount)

		// Fills stay in chronological order within each position and appear
		// exactly once across all positions.
		for i, f := range p.Fills {
			assert.False(t, seen[f.ID], "fill %s assigned twice", f.ID)
			seen[f.ID] = true
			if i > 0 {
				assert.False(t, f.Timestamp.Before(p.Fills[i-1].Timestamp))
			}
		}
	}
	assert.Equal(t, len(fills), total)

	// At most one open position per symbol.
	open := 0
	for _, p := range positions {
		if p.Status == domain.PositionStatusOpen {
			open++
		}
	}
	assert.LessOrEqual(t, open, 1)
}

func TestBuildPositionsEpsilonClose(t *testing.T) {
	// Floating point drift: 0.1+0.2 reduced by 0.3 leaves a residual well
	// under the epsilon, which still counts as flat.
	fills := []domain.Fill{
		fill("f1", domain.FillSideBuy, 100, 0.1, t0),
		fill("f2", domain.FillSideBuy, 100, 0.2, t0.Add(time.Minute)),
		fill("f3", domain.FillSideSell, 100, 0.3, t0.Add(2*time.Minute)),
	}

	positions, err := BuildPositions("ETH", fills, nil)
	require.NoError(t, err)
	require.Len(t, positions, 1)
	assert.Equal(t, domain.PositionStatusClosed, positions[0].Status)
}

func TestBuildPositionsZeroQuantityFill(t *testing.T) {
	// A zero-quantity fill must not divide by zero anywhere; it produces a
	// degenerate immediately-closed position.
	fills := []domain.Fill{
		fill("f1", domain.FillSideBuy, 100, 0, t0),
	}

	positions, err := BuildPositions("ETH", fills, nil)
	require.NoError(t, err)
	require.Len(t, positions, 1)

	p := positions[0]
	assert.Equal(t, domain.PositionStatusClosed, p.Status)
	assert.Zero(t, p.AvgEntryPrice)
	assert.Zero(t, p.RealizedPnLPct)
}

func TestBuildPositionsMetadataCarryOver(t *testing.T) {
	closedAt := t0.Add(time.Hour)
	prior := []domain.Position{
		{
			ID:       "prev-closed",
			Symbol:   "ETH",
			Status:   domain.PositionStatusClosed,
			OpenedAt: t0.Add(300 * time.Millisecond), // within the 1s window
			ClosedAt: &closedAt,
			Journal:  "note",
			Category: "breakout",
		},
		{
			ID:       "prev-open",
			Symbol:   "ETH",
			Status:   domain.PositionStatusOpen,
			OpenedAt: t0.Add(2 * time.Hour),
			Journal:  "still riding",
		},
	}

	fills := []domain.Fill{
		fill("f1", domain.FillSideBuy, 100, 5, t0),
		fill("f2", domain.FillSideSell, 105, 5, t0.Add(time.Hour)),
		fill("f3", domain.FillSideBuy, 110, 2, t0.Add(2*time.Hour)),
	}

	positions, err := BuildPositions("ETH", fills, prior)
	require.NoError(t, err)
	require.Len(t, positions, 2)

	assert.Equal(t, "prev-closed", positions[0].ID)
	assert.Equal(t, "note", positions[0].Journal)
	assert.Equal(t, "breakout", positions[0].Category)

	assert.Equal(t, "prev-open", positions[1].ID)
	assert.Equal(t, "still riding", positions[1].Journal)
}

func TestBuildPositionsMetadataSurvivesClose(t *testing.T) {
	// Annotated while open, recomputed as closed once the reducing fill
	// lands: the stored record still says open but the notes must carry.
	prior := []domain.Position{
		{
			ID:       "prev-open",
			Symbol:   "ETH",
			Status:   domain.PositionStatusOpen,
			OpenedAt: t0,
			Journal:  "my trade notes",
			Category: "swing",
		},
	}

	fills := []domain.Fill{
		fill("f1", domain.FillSideBuy, 100, 5, t0),
		fill("f2", domain.FillSideSell, 110, 5, t0.Add(time.Hour)),
	}

	positions, err := BuildPositions("ETH", fills, prior)
	require.NoError(t, err)
	require.Len(t, positions, 1)

	p := positions[0]
	assert.Equal(t, domain.PositionStatusClosed, p.Status)
	assert.Equal(t, "prev-open", p.ID)
	assert.Equal(t, "my trade notes", p.Journal)
	assert.Equal(t, "swing", p.Category)
}

func TestBuildPositionsMetadataPrefersSameStatus(t *testing.T) {
	// A closed recompute must not steal the stored open record from the
	// still-open position that opened inside the same window.
	prior := []domain.Position{
		{
			ID:       "prev-open",
			Symbol:   "ETH",
			Status:   domain.PositionStatusOpen,
			OpenedAt: t0.Add(500 * time.Millisecond),
			Journal:  "still riding",
		},
		{
			ID:       "prev-closed",
			Symbol:   "ETH",
			Status:   domain.PositionStatusClosed,
			OpenedAt: t0,
			Journal:  "done",
		},
	}

	fills := []domain.Fill{
		fill("f1", domain.FillSideBuy, 100, 1, t0),
		fill("f2", domain.FillSideSell, 101, 1, t0.Add(400*time.Millisecond)),
		fill("f3", domain.FillSideBuy, 100, 2, t0.Add(500*time.Millisecond)),
	}

	positions, err := BuildPositions("ETH", fills, prior)
	require.NoError(t, err)
	require.Len(t, positions, 2)

	assert.Equal(t, "prev-closed", positions[0].ID)
	assert.Equal(t, "done", positions[0].Journal)
	assert.Equal(t, "prev-open", positions[1].ID)
	assert.Equal(t, "still riding", positions[1].Journal)
}

func TestBuildPositionsMetadataNoMatchOutsideWindow(t *testing.T) {
	prior := []domain.Position{
		{
			ID:       "prev-closed",
			Symbol:   "ETH",
			Status:   domain.PositionStatusClosed,
			OpenedAt: t0.Add(5 * time.Second),
			Journal:  "stale",
		},
	}

	fills := []domain.Fill{
		fill("f1", domain.FillSideBuy, 100, 5, t0),
		fill("f2", domain.FillSideSell, 105, 5, t0.Add(time.Minute)),
	}

	positions, err := BuildPositions("ETH", fills, prior)
	require.NoError(t, err)
	require.Len(t, positions, 1)

	assert.NotEqual(t, "prev-closed", positions[0].ID)
	assert.NotEmpty(t, positions[0].ID)
	assert.Empty(t, positions[0].Journal)
}

func TestBuildPositionsPriorAdoptedOnce(t *testing.T) {
	// Two positions opening within the same tolerance window must not both
	// adopt the same persisted identity.
	prior := []domain.Position{
		{
			ID:       "prev",
			Symbol:   "ETH",
			Status:   domain.PositionStatusClosed,
			OpenedAt: t0,
		},
	}

	fills := []domain.Fill{
		fill("f1", domain.FillSideBuy, 100, 1, t0),
		fill("f2", domain.FillSideSell, 101, 1, t0.Add(100*time.Millisecond)),
		fill("f3", domain.FillSideBuy, 100, 1, t0.Add(200*time.Millisecond)),
		fill("f4", domain.FillSideSell, 99, 1, t0.Add(300*time.Millisecond)),
	}

	positions, err := BuildPositions("ETH", fills, prior)
	require.NoError(t, err)
	require.Len(t, positions, 2)
	assert.Equal(t, "prev", positions[0].ID)
	assert.NotEqual(t, "prev", positions[1].ID)
}

func TestBuildPositionsDeterministic(t *testing.T) {
	fills := []domain.Fill{
		fill("f1", domain.FillSideBuy, 100, 10, t0),
		fill("f2", domain.FillSideSell, 110, 4, t0.Add(time.Minute)),
		fill("f3", domain.FillSideSell, 120, 6, t0.Add(2*time.Minute)),
		fill("f4", domain.FillSideSell, 115, 2, t0.Add(3*time.Minute)),
	}

	first, err := BuildPositions("ETH", fills, nil)
	require.NoError(t, err)
	second, err := BuildPositions("ETH", fills, first)
	require.NoError(t, err)

	// With the first run persisted as prior state, a rerun over the same
	// fills is identical, IDs included.
	assert.Equal(t, first, second)
}

func TestSortByOpenTime(t *testing.T) {
	positions := []domain.Position{
		{ID: "a", OpenedAt: t0},
		{ID: "c", OpenedAt: t0.Add(2 * time.Hour)},
		{ID: "b", OpenedAt: t0.Add(time.Hour)},
	}

	SortByOpenTime(positions)

	assert.Equal(t, "c", positions[0].ID)
	assert.Equal(t, "b", positions[1].ID)
	assert.Equal(t, "a", positions[2].ID)
}
