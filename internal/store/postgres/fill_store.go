package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/tradejournal/internal/domain"
)

// FillStore implements domain.FillStore using PostgreSQL.
type FillStore struct {
	pool *pgxpool.Pool
}

// NewFillStore creates a new FillStore backed by the given connection pool.
func NewFillStore(pool *pgxpool.Pool) *FillStore {
	return &FillStore{pool: pool}
}

const fillSelectCols = `id, symbol, market_id, side, price, quantity, timestamp, exchange`

func scanFillRows(rows pgx.Rows) ([]domain.Fill, error) {
	var fills []domain.Fill
	for rows.Next() {
		var f domain.Fill
		var side string
		if err := rows.Scan(
			&f.ID, &f.Symbol, &f.MarketID, &side,
			&f.Price, &f.Quantity, &f.Timestamp, &f.Exchange,
		); err != nil {
			return nil, err
		}
		f.Side = domain.FillSide(side)
		fills = append(fills, f)
	}
	return fills, rows.Err()
}

const fillInsertQuery = `
	INSERT INTO fills (id, symbol, market_id, side, price, quantity, timestamp, exchange)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	ON CONFLICT (id) DO NOTHING`

// Insert persists a single fill. Re-inserting an already stored fill is a
// no-op, which keeps exchange re-syncs idempotent.
func (s *FillStore) Insert(ctx context.Context, f domain.Fill) error {
	_, err := s.pool.Exec(ctx, fillInsertQuery,
		f.ID, f.Symbol, f.MarketID, string(f.Side),
		f.Price, f.Quantity, f.Timestamp, f.Exchange,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert fill %s: %w", f.ID, err)
	}
	return nil
}

// InsertBatch inserts multiple fills efficiently using pgx Batch. Duplicates
// by id are silently skipped.
func (s *FillStore) InsertBatch(ctx context.Context, fills []domain.Fill) error {
	if len(fills) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, f := range fills {
		batch.Queue(fillInsertQuery,
			f.ID, f.Symbol, f.MarketID, string(f.Side),
			f.Price, f.Quantity, f.Timestamp, f.Exchange,
		)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for i := range fills {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("postgres: insert fill batch item %d: %w", i, err)
		}
	}
	return nil
}

// ListAll returns every fill ordered ascending by timestamp, the order the
// aggregation replay expects.
func (s *FillStore) ListAll(ctx context.Context) ([]domain.Fill, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+fillSelectCols+` FROM fills ORDER BY timestamp ASC, id ASC`)
	if err != nil {
		return nil, fmt.Errorf("postgres: list fills: %w", err)
	}
	defer rows.Close()

	fills, err := scanFillRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan fills: %w", err)
	}
	return fills, nil
}

// List returns fills across all symbols with pagination and optional time
// filtering, newest first.
func (s *FillStore) List(ctx context.Context, opts domain.ListOpts) ([]domain.Fill, error) {
	fills, err := s.listFiltered(ctx, "", opts)
	if err != nil {
		return nil, fmt.Errorf("postgres: list fills paged: %w", err)
	}
	return fills, nil
}

// ListBySymbol returns fills for one symbol with pagination and optional
// time filtering, newest first.
func (s *FillStore) ListBySymbol(ctx context.Context, symbol string, opts domain.ListOpts) ([]domain.Fill, error) {
	fills, err := s.listFiltered(ctx, symbol, opts)
	if err != nil {
		return nil, fmt.Errorf("postgres: list fills by symbol: %w", err)
	}
	return fills, nil
}

// listFiltered builds and runs a paginated fill query. An empty symbol
// matches all symbols.
func (s *FillStore) listFiltered(ctx context.Context, symbol string, opts domain.ListOpts) ([]domain.Fill, error) {
	query := `SELECT ` + fillSelectCols + ` FROM fills WHERE 1=1`
	var args []any
	argIdx := 1

	if symbol != "" {
		query += fmt.Sprintf(" AND symbol = $%d", argIdx)
		args = append(args, symbol)
		argIdx++
	}
	if opts.Since != nil {
		query += fmt.Sprintf(" AND timestamp >= $%d", argIdx)
		args = append(args, *opts.Since)
		argIdx++
	}
	if opts.Until != nil {
		query += fmt.Sprintf(" AND timestamp <= $%d", argIdx)
		args = append(args, *opts.Until)
		argIdx++
	}

	query += " ORDER BY timestamp DESC"

	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, opts.Limit)
		argIdx++
	}
	if opts.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argIdx)
		args = append(args, opts.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanFillRows(rows)
}

// GetLastTimestamp returns the most recent fill timestamp, or the zero time
// if no fills exist. The syncer uses it as the incremental fetch cursor.
func (s *FillStore) GetLastTimestamp(ctx context.Context) (time.Time, error) {
	var ts *time.Time
	err := s.pool.QueryRow(ctx,
		"SELECT MAX(timestamp) FROM fills").Scan(&ts)
	if err != nil {
		return time.Time{}, fmt.Errorf("postgres: get last fill timestamp: %w", err)
	}
	if ts == nil {
		return time.Time{}, nil
	}
	return *ts, nil
}

// ListBefore returns all fills with timestamp strictly before the given time
// (for archiving).
func (s *FillStore) ListBefore(ctx context.Context, before time.Time) ([]domain.Fill, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+fillSelectCols+` FROM fills WHERE timestamp < $1 ORDER BY timestamp ASC`, before)
	if err != nil {
		return nil, fmt.Errorf("postgres: list fills before: %w", err)
	}
	defer rows.Close()
	return scanFillRows(rows)
}

// DeleteBefore deletes all fills with timestamp before the given time.
// Returns the number deleted.
func (s *FillStore) DeleteBefore(ctx context.Context, before time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM fills WHERE timestamp < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("postgres: delete fills before: %w", err)
	}
	return tag.RowsAffected(), nil
}
