package domain

import (
	"context"
	"time"
)

// ListOpts provides pagination and filtering for list queries.
type ListOpts struct {
	Limit  int
	Offset int
	Since  *time.Time
	Until  *time.Time
}

// FillStore persists raw trade fills.
type FillStore interface {
	Insert(ctx context.Context, fill Fill) error
	InsertBatch(ctx context.Context, fills []Fill) error
	// ListAll returns every persisted fill ordered ascending by timestamp.
	ListAll(ctx context.Context) ([]Fill, error)
	// List returns fills across all symbols with pagination and optional
	// time filtering, newest first.
	List(ctx context.Context, opts ListOpts) ([]Fill, error)
	ListBySymbol(ctx context.Context, symbol string, opts ListOpts) ([]Fill, error)
	GetLastTimestamp(ctx context.Context) (time.Time, error)
	ListBefore(ctx context.Context, before time.Time) ([]Fill, error)
	DeleteBefore(ctx context.Context, before time.Time) (int64, error)
}

// PositionStore persists the computed position snapshot and its user edits.
type PositionStore interface {
	// UpsertBatch replaces the stored snapshot with a freshly computed one,
	// preserving rows by ID so journal/category edits survive.
	UpsertBatch(ctx context.Context, positions []Position) error
	List(ctx context.Context) ([]Position, error)
	GetByID(ctx context.Context, id string) (Position, error)
	// UpdateMetadata writes the journal/category fields of exactly one row.
	UpdateMetadata(ctx context.Context, id string, upd MetadataUpdate) error
	ListClosedBefore(ctx context.Context, before time.Time) ([]Position, error)
	DeleteClosedBefore(ctx context.Context, before time.Time) (int64, error)
}
