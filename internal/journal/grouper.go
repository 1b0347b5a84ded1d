// Package journal implements the position aggregation engine: it replays the
// chronological fill history into discrete positions with weighted average
// prices and realized PnL, carries user annotations across recomputation, and
// overlays live market data onto the open positions.
package journal

import "github.com/alanyoungcy/tradejournal/internal/domain"

// GroupBySymbol partitions fills by trading symbol, preserving input order
// within each group. Fills with an empty symbol are still grouped (under the
// empty key); the caller decides whether to replay that group.
func GroupBySymbol(fills []domain.Fill) map[string][]domain.Fill {
	groups := make(map[string][]domain.Fill)
	for _, f := range fills {
		groups[f.Symbol] = append(groups[f.Symbol], f)
	}
	return groups
}
