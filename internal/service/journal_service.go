// Package service orchestrates the aggregation engine against the fill
// store, the persisted position snapshot, and the live market feed.
package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/alanyoungcy/tradejournal/internal/domain"
	"github.com/alanyoungcy/tradejournal/internal/journal"
)

const (
	// liveFeedTimeout bounds the live feed fetch; on expiry aggregation
	// proceeds without an overlay.
	liveFeedTimeout = 5 * time.Second

	liveFeedCacheKey = "live:positions"
	liveFeedCacheTTL = 10 * time.Second

	// positionsChannel is the signal bus channel refresh events publish to.
	positionsChannel = "positions"
)

// JournalService implements the journal's aggregation and annotation
// entrypoints. Aggregation is read-only with respect to persisted storage;
// Refresh and UpdateMetadata are the only writers.
type JournalService struct {
	fills     domain.FillStore
	positions domain.PositionStore
	feed      domain.LiveFeed
	resolver  domain.SymbolResolver
	cache     domain.SnapshotCache
	bus       domain.SignalBus
	logger    *slog.Logger

	// flight collapses concurrent aggregation calls into one run; the core
	// assumes at most one aggregation in flight.
	flight singleflight.Group
}

// NewJournalService creates a JournalService. feed, resolver, cache, and bus
// may be nil; the corresponding behavior degrades gracefully.
func NewJournalService(
	fills domain.FillStore,
	positions domain.PositionStore,
	feed domain.LiveFeed,
	resolver domain.SymbolResolver,
	cache domain.SnapshotCache,
	bus domain.SignalBus,
	logger *slog.Logger,
) *JournalService {
	return &JournalService{
		fills:     fills,
		positions: positions,
		feed:      feed,
		resolver:  resolver,
		cache:     cache,
		bus:       bus,
		logger:    logger.With(slog.String("component", "journal_service")),
	}
}

// Aggregate recomputes the full position view from the fill history: group
// by symbol, replay each symbol's fills into positions, carry persisted
// annotations over, sort most recently opened first, and overlay live data
// on the open subset. It reads stores but never writes them. Only a failed
// fill fetch is fatal; every other collaborator failure degrades to partial
// output.
func (s *JournalService) Aggregate(ctx context.Context) ([]domain.Position, error) {
	v, err, _ := s.flight.Do("aggregate", func() (any, error) {
		return s.aggregate(ctx)
	})
	if err != nil {
		return nil, err
	}
	return v.([]domain.Position), nil
}

func (s *JournalService) aggregate(ctx context.Context) ([]domain.Position, error) {
	fills, err := s.fills.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("journal_service: list fills: %w", err)
	}

	prior, err := s.positions.List(ctx)
	if err != nil {
		// Without the snapshot we lose annotation carry-over, not the run.
		s.logger.WarnContext(ctx, "persisted position fetch failed, skipping metadata carry-over",
			slog.String("error", err.Error()),
		)
		prior = nil
	}

	var all []domain.Position
	for symbol, group := range journal.GroupBySymbol(fills) {
		if symbol == "" {
			s.logger.WarnContext(ctx, "skipping fills with empty symbol",
				slog.Int("count", len(group)),
			)
			continue
		}

		sort.SliceStable(group, func(i, j int) bool {
			return group[i].Timestamp.Before(group[j].Timestamp)
		})

		built, err := journal.BuildPositions(symbol, group, prior)
		if err != nil {
			return nil, fmt.Errorf("journal_service: build %s: %w", symbol, err)
		}
		all = append(all, built...)
	}

	journal.SortByOpenTime(all)

	journal.Reconcile(all, s.fetchLive(ctx), s.resolveSymbol(ctx))

	return all, nil
}

// Refresh aggregates and replaces the persisted position snapshot, then
// notifies subscribers. This is the one flow that writes recomputed
// positions back.
func (s *JournalService) Refresh(ctx context.Context) ([]domain.Position, error) {
	positions, err := s.Aggregate(ctx)
	if err != nil {
		return nil, err
	}

	if err := s.positions.UpsertBatch(ctx, positions); err != nil {
		return nil, fmt.Errorf("journal_service: persist snapshot: %w", err)
	}

	s.publishRefresh(ctx, positions)
	return positions, nil
}

// UpdateMetadata writes the journal/category annotation of a single
// position. Failures surface to the caller so the UI can keep the unsaved
// edit visible.
func (s *JournalService) UpdateMetadata(ctx context.Context, id string, upd domain.MetadataUpdate) error {
	if upd.Journal == nil && upd.Category == nil {
		return nil
	}
	if err := s.positions.UpdateMetadata(ctx, id, upd); err != nil {
		return fmt.Errorf("journal_service: update metadata %s: %w", id, err)
	}
	return nil
}

// LogFill records a manually entered fill.
func (s *JournalService) LogFill(ctx context.Context, fill domain.Fill) (domain.Fill, error) {
	if fill.Symbol == "" || fill.Quantity < 0 || fill.Price < 0 {
		return domain.Fill{}, domain.ErrInvalidFill
	}
	if fill.Side != domain.FillSideBuy && fill.Side != domain.FillSideSell {
		return domain.Fill{}, domain.ErrInvalidFill
	}
	if fill.ID == "" {
		fill.ID = uuid.New().String()
	}
	if fill.Timestamp.IsZero() {
		fill.Timestamp = time.Now().UTC()
	}
	if fill.Exchange == "" {
		fill.Exchange = "manual"
	}

	if err := s.fills.Insert(ctx, fill); err != nil {
		return domain.Fill{}, fmt.Errorf("journal_service: insert fill: %w", err)
	}
	return fill, nil
}

// ListFills returns persisted fills for display, optionally filtered by
// symbol.
func (s *JournalService) ListFills(ctx context.Context, symbol string, opts domain.ListOpts) ([]domain.Fill, error) {
	if symbol != "" {
		fills, err := s.fills.ListBySymbol(ctx, symbol, opts)
		if err != nil {
			return nil, fmt.Errorf("journal_service: list fills for %s: %w", symbol, err)
		}
		return fills, nil
	}
	fills, err := s.fills.List(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("journal_service: list fills: %w", err)
	}
	return fills, nil
}

// Stats aggregates and summarizes performance, projecting equity growth
// over the requested number of future trades.
func (s *JournalService) Stats(ctx context.Context, startEquity float64, trades int) (journal.Summary, []float64, error) {
	positions, err := s.Aggregate(ctx)
	if err != nil {
		return journal.Summary{}, nil, err
	}

	summary := journal.Summarize(positions)
	projection := journal.ProjectGrowth(startEquity, summary.AvgReturnPct, trades)
	return summary, projection, nil
}

// fetchLive returns the live feed snapshot, serving a short-lived cache
// first. Any failure degrades to "no live data".
func (s *JournalService) fetchLive(ctx context.Context) []domain.LivePosition {
	if s.feed == nil {
		return nil
	}

	if s.cache != nil {
		if data, err := s.cache.Get(ctx, liveFeedCacheKey); err == nil && len(data) > 0 {
			var cached []domain.LivePosition
			if err := json.Unmarshal(data, &cached); err == nil {
				return cached
			}
		}
	}

	feedCtx, cancel := context.WithTimeout(ctx, liveFeedTimeout)
	defer cancel()

	live, err := s.feed.OpenPositions(feedCtx)
	if err != nil {
		s.logger.WarnContext(ctx, "live feed unavailable, continuing without overlay",
			slog.String("error", err.Error()),
		)
		return nil
	}

	if s.cache != nil {
		if data, err := json.Marshal(live); err == nil {
			if err := s.cache.Set(ctx, liveFeedCacheKey, data, liveFeedCacheTTL); err != nil {
				s.logger.WarnContext(ctx, "live feed cache write failed",
					slog.String("error", err.Error()),
				)
			}
		}
	}

	return live
}

// resolveSymbol adapts the resolver to the reconciler's lookup function,
// falling back to the raw market identifier.
func (s *JournalService) resolveSymbol(ctx context.Context) func(string) string {
	return func(marketID string) string {
		if s.resolver == nil {
			return marketID
		}
		symbol, err := s.resolver.Resolve(ctx, marketID)
		if err != nil || symbol == "" {
			return marketID
		}
		return symbol
	}
}

func (s *JournalService) publishRefresh(ctx context.Context, positions []domain.Position) {
	if s.bus == nil {
		return
	}

	open := 0
	for _, p := range positions {
		if p.Status == domain.PositionStatusOpen {
			open++
		}
	}

	evt, _ := json.Marshal(map[string]any{
		"event":     "positions_refreshed",
		"total":     len(positions),
		"open":      open,
		"refreshed": time.Now().UTC().Format(time.RFC3339),
	})
	if err := s.bus.Publish(ctx, positionsChannel, evt); err != nil {
		s.logger.WarnContext(ctx, "publish refresh event failed",
			slog.String("error", err.Error()),
		)
	}
}
