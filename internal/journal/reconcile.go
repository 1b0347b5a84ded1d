package journal

import (
	"math"
	"strconv"
	"strings"

	"github.com/alanyoungcy/tradejournal/internal/domain"
)

// liveKey identifies a live feed entry by resolved symbol and uppercased
// side.
type liveKey struct {
	symbol string
	side   string
}

// Reconcile overlays live market data onto the open positions in place.
// Each open position is matched against the live entry with the same
// resolved symbol and side; matched positions get the feed's authoritative
// quantity plus pricing and risk fields. Open positions with no live entry
// keep their builder-derived fields only, which is expected for positions
// that closed during the same recompute or when the feed is empty.
//
// resolve maps a feed market identifier to a trading symbol.
func Reconcile(positions []domain.Position, live []domain.LivePosition, resolve func(marketID string) string) {
	if len(live) == 0 {
		return
	}

	idx := make(map[liveKey]domain.LivePosition, len(live))
	for _, lp := range live {
		symbol := lp.MarketID
		if resolve != nil {
			symbol = resolve(lp.MarketID)
		}
		idx[liveKey{symbol: symbol, side: strings.ToUpper(lp.Side)}] = lp
	}

	for i := range positions {
		p := &positions[i]
		if p.Status != domain.PositionStatusOpen {
			continue
		}

		lp, ok := idx[liveKey{symbol: p.Symbol, side: string(p.Side)}]
		if !ok {
			continue
		}

		// The feed's size is authoritative over the replayed running total.
		if size, ok := parseDecimal(lp.Size); ok {
			p.Quantity = math.Abs(size)
		}

		overlay(&p.MarkPrice, lp.MarkPrice)
		overlay(&p.PositionValue, lp.PositionValue)
		overlay(&p.LiquidationPrice, lp.LiquidationPrice)
		overlay(&p.Margin, lp.Margin)
		overlay(&p.Leverage, lp.Leverage)
		overlay(&p.Funding, lp.Funding)
		overlay(&p.UnrealizedPnL, lp.UnrealizedPnL)

		if margin, ok := parseDecimal(lp.Margin); ok && margin > 0 {
			if upnl, ok := parseDecimal(lp.UnrealizedPnL); ok {
				pct := upnl / margin * 100
				p.UnrealizedPnLPct = &pct
			}
		}
	}
}

// parseDecimal parses a decimal string from the live feed. The second return
// is false for empty or malformed input.
func parseDecimal(s string) (float64, bool) {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// overlay sets dst from a decimal string, keeping the previous value when
// the field is empty or malformed. Per-field parse failures never abort a
// position's reconciliation.
func overlay(dst **float64, s string) {
	if v, ok := parseDecimal(s); ok {
		*dst = &v
	}
}
