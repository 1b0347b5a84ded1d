package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/tradejournal/internal/domain"
)

// PositionStore implements domain.PositionStore using PostgreSQL.
type PositionStore struct {
	pool *pgxpool.Pool
}

// NewPositionStore creates a new PositionStore backed by the given connection pool.
func NewPositionStore(pool *pgxpool.Pool) *PositionStore {
	return &PositionStore{pool: pool}
}

const positionSelectCols = `id, symbol, market_id, side, status, quantity,
	avg_entry_price, avg_exit_price, entry_cost, exit_revenue,
	realized_pnl, realized_pnl_pct, opened_at, closed_at,
	journal, category, fills_count`

func scanPositionRow(row pgx.Row) (domain.Position, error) {
	var p domain.Position
	var side, status string

	err := row.Scan(
		&p.ID, &p.Symbol, &p.MarketID, &side, &status,
		&p.Quantity, &p.AvgEntryPrice, &p.AvgExitPrice,
		&p.EntryCost, &p.ExitRevenue,
		&p.RealizedPnL, &p.RealizedPnLPct,
		&p.OpenedAt, &p.ClosedAt,
		&p.Journal, &p.Category, &p.FillsCount,
	)
	if err != nil {
		return domain.Position{}, err
	}
	p.Side = domain.PositionSide(side)
	p.Status = domain.PositionStatus(status)
	return p, nil
}

func scanPositionRows(rows pgx.Rows) ([]domain.Position, error) {
	var positions []domain.Position
	for rows.Next() {
		p, err := scanPositionRow(rows)
		if err != nil {
			return nil, err
		}
		positions = append(positions, p)
	}
	return positions, rows.Err()
}

// UpsertBatch replaces the stored snapshot with a freshly computed one.
// Rows keep their IDs across recomputation, so upserting preserves edits
// already folded into the computed positions; rows absent from the new
// snapshot are removed.
func (s *PositionStore) UpsertBatch(ctx context.Context, positions []domain.Position) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres: begin snapshot tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	const upsert = `
		INSERT INTO positions (
			id, symbol, market_id, side, status, quantity,
			avg_entry_price, avg_exit_price, entry_cost, exit_revenue,
			realized_pnl, realized_pnl_pct, opened_at, closed_at,
			journal, category, fills_count, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6,
			$7, $8, $9, $10,
			$11, $12, $13, $14,
			$15, $16, $17, NOW()
		) ON CONFLICT (id) DO UPDATE SET
			symbol           = EXCLUDED.symbol,
			market_id        = EXCLUDED.market_id,
			side             = EXCLUDED.side,
			status           = EXCLUDED.status,
			quantity         = EXCLUDED.quantity,
			avg_entry_price  = EXCLUDED.avg_entry_price,
			avg_exit_price   = EXCLUDED.avg_exit_price,
			entry_cost       = EXCLUDED.entry_cost,
			exit_revenue     = EXCLUDED.exit_revenue,
			realized_pnl     = EXCLUDED.realized_pnl,
			realized_pnl_pct = EXCLUDED.realized_pnl_pct,
			opened_at        = EXCLUDED.opened_at,
			closed_at        = EXCLUDED.closed_at,
			journal          = EXCLUDED.journal,
			category         = EXCLUDED.category,
			fills_count      = EXCLUDED.fills_count,
			updated_at       = NOW()`

	batch := &pgx.Batch{}
	ids := make([]string, 0, len(positions))
	for _, p := range positions {
		ids = append(ids, p.ID)
		batch.Queue(upsert,
			p.ID, p.Symbol, p.MarketID, string(p.Side), string(p.Status),
			p.Quantity, p.AvgEntryPrice, p.AvgExitPrice,
			p.EntryCost, p.ExitRevenue,
			p.RealizedPnL, p.RealizedPnLPct,
			p.OpenedAt, p.ClosedAt,
			p.Journal, p.Category, p.FillsCount,
		)
	}

	if len(positions) > 0 {
		br := tx.SendBatch(ctx, batch)
		for i := range positions {
			if _, err := br.Exec(); err != nil {
				br.Close()
				return fmt.Errorf("postgres: upsert position batch item %d: %w", i, err)
			}
		}
		if err := br.Close(); err != nil {
			return fmt.Errorf("postgres: close position batch: %w", err)
		}
	}

	if _, err := tx.Exec(ctx,
		`DELETE FROM positions WHERE NOT (id = ANY($1))`, ids); err != nil {
		return fmt.Errorf("postgres: prune stale positions: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres: commit snapshot: %w", err)
	}
	return nil
}

// List returns the stored snapshot, most recently opened first.
func (s *PositionStore) List(ctx context.Context) ([]domain.Position, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+positionSelectCols+` FROM positions ORDER BY opened_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("postgres: list positions: %w", err)
	}
	defer rows.Close()

	positions, err := scanPositionRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan positions: %w", err)
	}
	return positions, nil
}

// GetByID retrieves a single position by its ID.
func (s *PositionStore) GetByID(ctx context.Context, id string) (domain.Position, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+positionSelectCols+` FROM positions WHERE id = $1`, id)

	p, err := scanPositionRow(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Position{}, domain.ErrNotFound
		}
		return domain.Position{}, fmt.Errorf("postgres: get position %s: %w", id, err)
	}
	return p, nil
}

// UpdateMetadata writes the journal/category annotation of one position.
// Nil fields keep their current value.
func (s *PositionStore) UpdateMetadata(ctx context.Context, id string, upd domain.MetadataUpdate) error {
	const query = `
		UPDATE positions SET
			journal    = COALESCE($2, journal),
			category   = COALESCE($3, category),
			updated_at = NOW()
		WHERE id = $1`

	tag, err := s.pool.Exec(ctx, query, id, upd.Journal, upd.Category)
	if err != nil {
		return fmt.Errorf("postgres: update position metadata %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// ListClosedBefore returns closed positions that closed strictly before the
// given time (for archiving).
func (s *PositionStore) ListClosedBefore(ctx context.Context, before time.Time) ([]domain.Position, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+positionSelectCols+` FROM positions
		 WHERE status = 'closed' AND closed_at < $1
		 ORDER BY closed_at ASC`, before)
	if err != nil {
		return nil, fmt.Errorf("postgres: list closed positions before: %w", err)
	}
	defer rows.Close()
	return scanPositionRows(rows)
}

// DeleteClosedBefore deletes closed positions that closed before the given
// time. Returns the number deleted.
func (s *PositionStore) DeleteClosedBefore(ctx context.Context, before time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM positions WHERE status = 'closed' AND closed_at < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("postgres: delete closed positions before: %w", err)
	}
	return tag.RowsAffected(), nil
}
