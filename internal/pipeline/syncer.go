// Package pipeline contains the background jobs that keep the journal
// current: periodic fill syncing from the exchange and cold-storage
// archiving.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/tradejournal/internal/domain"
)

// FillFetcher retrieves executed fills from an exchange, oldest first,
// starting after the given time.
type FillFetcher interface {
	Fills(ctx context.Context, since time.Time) ([]domain.Fill, error)
}

// Refresher recomputes and persists the position snapshot.
type Refresher interface {
	Refresh(ctx context.Context) ([]domain.Position, error)
}

// FillSyncer pulls new fills from the exchange into the fill store and
// triggers a position refresh when anything changed.
type FillSyncer struct {
	fetcher FillFetcher
	fills   domain.FillStore
	journal Refresher
	logger  *slog.Logger
}

// NewFillSyncer creates a new FillSyncer.
func NewFillSyncer(fetcher FillFetcher, fills domain.FillStore, journal Refresher, logger *slog.Logger) *FillSyncer {
	return &FillSyncer{
		fetcher: fetcher,
		fills:   fills,
		journal: journal,
		logger:  logger,
	}
}

// Run executes a single sync pass. The last stored fill timestamp is the
// incremental cursor; fetching from exactly that time re-reads the newest
// stored fill, which the store's conflict handling absorbs.
func (s *FillSyncer) Run(ctx context.Context) (int, error) {
	since, err := s.fills.GetLastTimestamp(ctx)
	if err != nil {
		return 0, fmt.Errorf("fill syncer: read cursor: %w", err)
	}

	fetched, err := s.fetcher.Fills(ctx, since)
	if err != nil {
		return 0, fmt.Errorf("fill syncer: fetch fills: %w", err)
	}
	if len(fetched) == 0 {
		s.logger.Debug("fill sync: nothing new", slog.Time("since", since))
		return 0, nil
	}

	if err := s.fills.InsertBatch(ctx, fetched); err != nil {
		return 0, fmt.Errorf("fill syncer: store fills: %w", err)
	}

	s.logger.Info("fill sync complete",
		slog.Int("fetched", len(fetched)),
		slog.Time("since", since),
	)

	if s.journal != nil {
		if _, err := s.journal.Refresh(ctx); err != nil {
			// The fills are stored; the next refresh will pick them up.
			s.logger.Error("post-sync refresh failed", slog.String("error", err.Error()))
		}
	}

	return len(fetched), nil
}

// RunInterval runs sync passes on a fixed interval until the context is
// cancelled. An immediate pass runs before the first tick.
func (s *FillSyncer) RunInterval(ctx context.Context, interval time.Duration) error {
	s.logger.Info("fill syncer started", slog.Duration("interval", interval))

	if _, err := s.Run(ctx); err != nil {
		s.logger.Error("fill sync failed", slog.String("error", err.Error()))
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("fill syncer stopped")
			return ctx.Err()
		case <-ticker.C:
			if _, err := s.Run(ctx); err != nil {
				s.logger.Error("fill sync failed", slog.String("error", err.Error()))
			}
		}
	}
}
