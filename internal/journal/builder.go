package journal

import (
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/alanyoungcy/tradejournal/internal/domain"
)

// QtyEpsilon is the tolerance under which a running quantity counts as flat.
// Quantities are rarely exactly representable in binary floating point, so a
// fully closed position can leave a tiny residual.
const QtyEpsilon = 1e-4

// metadataMatchWindow is the open-time proximity within which a recomputed
// closed position adopts a previously persisted position's identity.
const metadataMatchWindow = time.Second

// running tracks the one in-flight position while replaying a symbol's
// fills. A nil *running means the book is flat for the symbol; opening a
// position and returning to flat are the only transitions.
type running struct {
	side        domain.PositionSide
	openedAt    time.Time
	qty         float64
	entryQty    float64
	entryCost   float64
	exitQty     float64
	exitRevenue float64
	realizedPnL float64
	fills       []domain.Fill
}

// increases reports whether a fill of the given direction adds to a position
// of the given side: buys increase LONG positions, sells increase SHORT
// ones. Every entry/exit classification in this package goes through this
// single test so the running totals and the final averages cannot drift
// apart.
func increases(side domain.PositionSide, fill domain.FillSide) bool {
	return domain.SideForFill(fill) == side
}

// apply advances the running state by one fill. Reducing fills realize PnL
// against the weighted average entry price accumulated so far, not the
// position's final average.
func (r *running) apply(f domain.Fill) error {
	if increases(r.side, f.Side) {
		r.qty += f.Quantity
		r.entryQty += f.Quantity
		r.entryCost += f.Notional()
	} else {
		if r.entryQty <= 0 || r.qty <= 0 {
			return domain.ErrReducingFlatPosition
		}
		avgEntry := r.entryCost / r.entryQty

		var pnl float64
		if r.side == domain.PositionSideLong {
			pnl = (f.Price - avgEntry) * f.Quantity
		} else {
			pnl = (avgEntry - f.Price) * f.Quantity
		}
		r.realizedPnL += pnl
		r.exitQty += f.Quantity
		r.exitRevenue += f.Notional()
		r.qty -= f.Quantity
	}

	r.fills = append(r.fills, f)
	return nil
}

// flat reports whether the running quantity has returned to (within epsilon
// of) zero.
func (r *running) flat() bool {
	return r.qty <= QtyEpsilon
}

// position finalizes the running state into a Position record.
func (r *running) position(symbol string, closedAt *time.Time) domain.Position {
	p := domain.Position{
		Symbol:      symbol,
		Side:        r.side,
		Status:      domain.PositionStatusOpen,
		Quantity:    r.qty,
		EntryCost:   r.entryCost,
		ExitRevenue: r.exitRevenue,
		RealizedPnL: r.realizedPnL,
		OpenedAt:    r.openedAt,
		Fills:       r.fills,
		FillsCount:  len(r.fills),
	}
	if len(r.fills) > 0 {
		p.MarketID = r.fills[0].MarketID
	}
	if closedAt != nil {
		p.Status = domain.PositionStatusClosed
		p.ClosedAt = closedAt
		p.Quantity = 0
	}
	if r.entryQty > 0 {
		p.AvgEntryPrice = r.entryCost / r.entryQty
	}
	if r.exitQty > 0 {
		exit := r.exitRevenue / r.exitQty
		p.AvgExitPrice = &exit
	}
	if r.entryCost > 0 {
		p.RealizedPnLPct = r.realizedPnL / r.entryCost * 100
	}
	return p
}

// priorIndex matches freshly computed positions against the previously
// persisted snapshot so identity and user annotations survive recomputation.
// Each persisted position is adopted at most once.
type priorIndex struct {
	positions []domain.Position
	used      map[string]bool
}

func newPriorIndex(prior []domain.Position) *priorIndex {
	return &priorIndex{positions: prior, used: make(map[string]bool)}
}

// adopt copies identity, journal, and category onto p from the first
// unconsumed persisted match. An open position matches the persisted open
// position for its symbol; a closed position matches any persisted position
// for the symbol whose open time falls within the match window, whatever
// status the stored record carried, so a position annotated while open keeps
// its notes across the run that closes it. Same-status matches are tried
// first so a closing position cannot shadow the record a still-open one
// should adopt. Unmatched positions get a fresh identity.
func (ix *priorIndex) adopt(p *domain.Position) {
	if ix.match(p, true) {
		return
	}
	if p.Status == domain.PositionStatusClosed && ix.match(p, false) {
		return
	}
	p.ID = uuid.New().String()
}

func (ix *priorIndex) match(p *domain.Position, sameStatus bool) bool {
	for i := range ix.positions {
		prev := &ix.positions[i]
		if ix.used[prev.ID] || prev.Symbol != p.Symbol {
			continue
		}
		if sameStatus && prev.Status != p.Status {
			continue
		}
		if p.Status == domain.PositionStatusClosed {
			delta := p.OpenedAt.Sub(prev.OpenedAt)
			if delta < -metadataMatchWindow || delta > metadataMatchWindow {
				continue
			}
		}
		p.ID = prev.ID
		p.Journal = prev.Journal
		p.Category = prev.Category
		ix.used[prev.ID] = true
		return true
	}
	return false
}

// BuildPositions replays one symbol's fills, sorted ascending by timestamp,
// into an ordered list of positions: zero or more closed positions followed
// by at most one open position. prior supplies the previously persisted
// snapshot for metadata carry-over.
func BuildPositions(symbol string, fills []domain.Fill, prior []domain.Position) ([]domain.Position, error) {
	ix := newPriorIndex(prior)

	var out []domain.Position
	var cur *running

	for _, f := range fills {
		if cur == nil {
			cur = &running{side: domain.SideForFill(f.Side), openedAt: f.Timestamp}
		}
		if err := cur.apply(f); err != nil {
			return nil, fmt.Errorf("journal: replay %s fill %s: %w", symbol, f.ID, err)
		}
		if cur.flat() {
			closedAt := f.Timestamp
			p := cur.position(symbol, &closedAt)
			ix.adopt(&p)
			out = append(out, p)
			cur = nil
		}
	}

	if cur != nil {
		p := cur.position(symbol, nil)
		ix.adopt(&p)
		out = append(out, p)
	}

	return out, nil
}

// SortByOpenTime orders positions most recently opened first, the display
// order the dashboard expects.
func SortByOpenTime(positions []domain.Position) {
	sort.SliceStable(positions, func(i, j int) bool {
		return positions[i].OpenedAt.After(positions[j].OpenedAt)
	})
}
