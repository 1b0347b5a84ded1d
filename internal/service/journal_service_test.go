package service

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/tradejournal/internal/domain"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// ---------------------------------------------------------------------------
// In-memory fakes
// ---------------------------------------------------------------------------

type fakeFillStore struct {
	fills    []domain.Fill
	listErr  error
	lastOpts domain.ListOpts
}

func (f *fakeFillStore) Insert(_ context.Context, fill domain.Fill) error {
	f.fills = append(f.fills, fill)
	return nil
}

func (f *fakeFillStore) InsertBatch(_ context.Context, fills []domain.Fill) error {
	f.fills = append(f.fills, fills...)
	return nil
}

func (f *fakeFillStore) ListAll(context.Context) ([]domain.Fill, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.fills, nil
}

func (f *fakeFillStore) List(_ context.Context, opts domain.ListOpts) ([]domain.Fill, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	f.lastOpts = opts
	out := f.fills
	if opts.Offset > 0 {
		if opts.Offset >= len(out) {
			return nil, nil
		}
		out = out[opts.Offset:]
	}
	if opts.Limit > 0 && opts.Limit < len(out) {
		out = out[:opts.Limit]
	}
	return out, nil
}

func (f *fakeFillStore) ListBySymbol(_ context.Context, symbol string, _ domain.ListOpts) ([]domain.Fill, error) {
	var out []domain.Fill
	for _, fl := range f.fills {
		if fl.Symbol == symbol {
			out = append(out, fl)
		}
	}
	return out, nil
}

func (f *fakeFillStore) GetLastTimestamp(context.Context) (time.Time, error) {
	if len(f.fills) == 0 {
		return time.Time{}, nil
	}
	return f.fills[len(f.fills)-1].Timestamp, nil
}

func (f *fakeFillStore) ListBefore(context.Context, time.Time) ([]domain.Fill, error) {
	return nil, nil
}

func (f *fakeFillStore) DeleteBefore(context.Context, time.Time) (int64, error) {
	return 0, nil
}

type fakePositionStore struct {
	snapshot  []domain.Position
	listErr   error
	updates   map[string]domain.MetadataUpdate
	updateErr error
}

func (f *fakePositionStore) UpsertBatch(_ context.Context, positions []domain.Position) error {
	f.snapshot = positions
	return nil
}

func (f *fakePositionStore) List(context.Context) ([]domain.Position, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.snapshot, nil
}

func (f *fakePositionStore) GetByID(_ context.Context, id string) (domain.Position, error) {
	for _, p := range f.snapshot {
		if p.ID == id {
			return p, nil
		}
	}
	return domain.Position{}, domain.ErrNotFound
}

func (f *fakePositionStore) UpdateMetadata(_ context.Context, id string, upd domain.MetadataUpdate) error {
	if f.updateErr != nil {
		return f.updateErr
	}
	if f.updates == nil {
		f.updates = map[string]domain.MetadataUpdate{}
	}
	f.updates[id] = upd
	return nil
}

func (f *fakePositionStore) ListClosedBefore(context.Context, time.Time) ([]domain.Position, error) {
	return nil, nil
}

func (f *fakePositionStore) DeleteClosedBefore(context.Context, time.Time) (int64, error) {
	return 0, nil
}

type fakeFeed struct {
	live []domain.LivePosition
	err  error
}

func (f *fakeFeed) OpenPositions(context.Context) ([]domain.LivePosition, error) {
	return f.live, f.err
}

type fakeBus struct {
	published [][]byte
}

func (f *fakeBus) Publish(_ context.Context, _ string, payload []byte) error {
	f.published = append(f.published, payload)
	return nil
}

func (f *fakeBus) Subscribe(context.Context, string) (<-chan []byte, error) {
	return nil, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func newService(fills *fakeFillStore, positions *fakePositionStore, feed domain.LiveFeed, bus domain.SignalBus) *JournalService {
	return NewJournalService(fills, positions, feed, nil, nil, bus, testLogger())
}

// ---------------------------------------------------------------------------
// Tests
// ---------------------------------------------------------------------------

func TestAggregateFillFetchFailureIsFatal(t *testing.T) {
	fills := &fakeFillStore{listErr: errors.New("store down")}
	svc := newService(fills, &fakePositionStore{}, nil, nil)

	_, err := svc.Aggregate(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "list fills")
}

func TestAggregateSurvivesPositionStoreFailure(t *testing.T) {
	fills := &fakeFillStore{fills: []domain.Fill{
		{ID: "f1", Symbol: "ETH", Side: domain.FillSideBuy, Price: 100, Quantity: 1, Timestamp: t0},
	}}
	positions := &fakePositionStore{listErr: errors.New("snapshot unavailable")}
	svc := newService(fills, positions, nil, nil)

	out, err := svc.Aggregate(context.Background())
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, domain.PositionStatusOpen, out[0].Status)
	assert.Empty(t, out[0].Journal)
}

func TestAggregateSurvivesLiveFeedFailure(t *testing.T) {
	fills := &fakeFillStore{fills: []domain.Fill{
		{ID: "f1", Symbol: "ETH", Side: domain.FillSideBuy, Price: 100, Quantity: 2, Timestamp: t0},
	}}
	svc := newService(fills, &fakePositionStore{}, &fakeFeed{err: errors.New("timeout")}, nil)

	out, err := svc.Aggregate(context.Background())
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Nil(t, out[0].MarkPrice)
	assert.InDelta(t, 2.0, out[0].Quantity, 1e-9)
}

func TestAggregateSortsAndReconciles(t *testing.T) {
	fills := &fakeFillStore{fills: []domain.Fill{
		{ID: "f1", Symbol: "ETH", Side: domain.FillSideBuy, Price: 3000, Quantity: 1, Timestamp: t0},
		{ID: "f2", Symbol: "BTC", Side: domain.FillSideBuy, Price: 60000, Quantity: 0.5, Timestamp: t0.Add(time.Hour)},
		{ID: "f3", Symbol: "ETH", Side: domain.FillSideSell, Price: 3100, Quantity: 1, Timestamp: t0.Add(2 * time.Hour)},
		// Out of order on purpose; the service re-sorts per symbol.
		{ID: "f0", Symbol: "BTC", Side: domain.FillSideSell, Price: 61000, Quantity: 0.5, Timestamp: t0.Add(3 * time.Hour)},
		{ID: "f4", Symbol: "SOL", Side: domain.FillSideBuy, Price: 150, Quantity: 10, Timestamp: t0.Add(4 * time.Hour)},
	}}
	feed := &fakeFeed{live: []domain.LivePosition{
		{MarketID: "SOL", Side: "LONG", Size: "10", MarkPrice: "155", Margin: "300", UnrealizedPnL: "50"},
	}}
	svc := newService(fills, &fakePositionStore{}, feed, nil)

	out, err := svc.Aggregate(context.Background())
	require.NoError(t, err)
	require.Len(t, out, 3)

	// Most recently opened first.
	assert.Equal(t, "SOL", out[0].Symbol)
	assert.Equal(t, "BTC", out[1].Symbol)
	assert.Equal(t, "ETH", out[2].Symbol)

	// Only the open SOL position gets the live overlay.
	require.NotNil(t, out[0].MarkPrice)
	assert.InDelta(t, 155.0, *out[0].MarkPrice, 1e-9)
	require.NotNil(t, out[0].UnrealizedPnLPct)
	assert.Nil(t, out[1].MarkPrice)
}

func TestAggregateSkipsEmptySymbolFills(t *testing.T) {
	fills := &fakeFillStore{fills: []domain.Fill{
		{ID: "f1", Symbol: "", Side: domain.FillSideBuy, Price: 1, Quantity: 1, Timestamp: t0},
		{ID: "f2", Symbol: "ETH", Side: domain.FillSideBuy, Price: 100, Quantity: 1, Timestamp: t0},
	}}
	svc := newService(fills, &fakePositionStore{}, nil, nil)

	out, err := svc.Aggregate(context.Background())
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "ETH", out[0].Symbol)
}

func TestRefreshPersistsAndRepeats(t *testing.T) {
	fills := &fakeFillStore{fills: []domain.Fill{
		{ID: "f1", Symbol: "ETH", Side: domain.FillSideBuy, Price: 100, Quantity: 1, Timestamp: t0},
		{ID: "f2", Symbol: "ETH", Side: domain.FillSideSell, Price: 110, Quantity: 1, Timestamp: t0.Add(time.Hour)},
	}}
	positions := &fakePositionStore{}
	bus := &fakeBus{}
	svc := newService(fills, positions, nil, bus)

	first, err := svc.Refresh(context.Background())
	require.NoError(t, err)
	require.Len(t, positions.snapshot, 1)
	require.Len(t, bus.published, 1)

	// With the snapshot persisted, a re-aggregation over unchanged fills is
	// identical, identity included.
	second, err := svc.Aggregate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestUpdateMetadata(t *testing.T) {
	positions := &fakePositionStore{}
	svc := newService(&fakeFillStore{}, positions, nil, nil)

	note := "cut losses faster"
	cat := "swing"
	err := svc.UpdateMetadata(context.Background(), "p1", domain.MetadataUpdate{Journal: &note, Category: &cat})
	require.NoError(t, err)
	require.Contains(t, positions.updates, "p1")
	assert.Equal(t, &note, positions.updates["p1"].Journal)

	// No fields set is a no-op, not a store call.
	err = svc.UpdateMetadata(context.Background(), "p2", domain.MetadataUpdate{})
	require.NoError(t, err)
	assert.NotContains(t, positions.updates, "p2")
}

func TestUpdateMetadataSurfacesStoreError(t *testing.T) {
	positions := &fakePositionStore{updateErr: domain.ErrNotFound}
	svc := newService(&fakeFillStore{}, positions, nil, nil)

	note := "x"
	err := svc.UpdateMetadata(context.Background(), "missing", domain.MetadataUpdate{Journal: &note})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestLogFill(t *testing.T) {
	fills := &fakeFillStore{}
	svc := newService(fills, &fakePositionStore{}, nil, nil)

	saved, err := svc.LogFill(context.Background(), domain.Fill{
		Symbol:   "ETH",
		Side:     domain.FillSideBuy,
		Price:    3000,
		Quantity: 0.5,
	})
	require.NoError(t, err)
	assert.NotEmpty(t, saved.ID)
	assert.False(t, saved.Timestamp.IsZero())
	assert.Equal(t, "manual", saved.Exchange)
	require.Len(t, fills.fills, 1)
}

func TestLogFillValidation(t *testing.T) {
	svc := newService(&fakeFillStore{}, &fakePositionStore{}, nil, nil)

	cases := []domain.Fill{
		{Side: domain.FillSideBuy, Price: 1, Quantity: 1},               // no symbol
		{Symbol: "ETH", Side: "HOLD", Price: 1, Quantity: 1},            // bad side
		{Symbol: "ETH", Side: domain.FillSideBuy, Price: -1, Quantity: 1}, // negative price
	}
	for _, c := range cases {
		_, err := svc.LogFill(context.Background(), c)
		assert.ErrorIs(t, err, domain.ErrInvalidFill)
	}
}

func TestListFillsWithoutSymbolPaginates(t *testing.T) {
	fills := &fakeFillStore{fills: []domain.Fill{
		{ID: "f1", Symbol: "ETH", Side: domain.FillSideBuy, Price: 100, Quantity: 1, Timestamp: t0},
		{ID: "f2", Symbol: "BTC", Side: domain.FillSideBuy, Price: 60000, Quantity: 1, Timestamp: t0.Add(time.Minute)},
		{ID: "f3", Symbol: "SOL", Side: domain.FillSideSell, Price: 150, Quantity: 1, Timestamp: t0.Add(2 * time.Minute)},
	}}
	svc := newService(fills, &fakePositionStore{}, nil, nil)

	opts := domain.ListOpts{Limit: 2, Offset: 1}
	got, err := svc.ListFills(context.Background(), "", opts)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "f2", got[0].ID)
	assert.Equal(t, "f3", got[1].ID)

	// The store must see the caller's pagination, not an unbounded scan.
	assert.Equal(t, opts, fills.lastOpts)
}

func TestStats(t *testing.T) {
	fills := &fakeFillStore{fills: []domain.Fill{
		{ID: "f1", Symbol: "ETH", Side: domain.FillSideBuy, Price: 100, Quantity: 10, Timestamp: t0},
		{ID: "f2", Symbol: "ETH", Side: domain.FillSideSell, Price: 110, Quantity: 10, Timestamp: t0.Add(time.Hour)},
	}}
	svc := newService(fills, &fakePositionStore{}, nil, nil)

	summary, projection, err := svc.Stats(context.Background(), 1000, 2)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.ClosedCount)
	assert.InDelta(t, 100.0, summary.TotalRealizedPnL, 1e-9)
	assert.InDelta(t, 10.0, summary.AvgReturnPct, 1e-9)
	require.Len(t, projection, 3)
	assert.InDelta(t, 1210.0, projection[2], 1e-6)
}
