package s3blob

import (
	"bytes"
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/tradejournal/internal/domain"
)

type memWriter struct {
	objects map[string][]byte
}

func (m *memWriter) Put(_ context.Context, path string, data io.Reader, _ string) error {
	if m.objects == nil {
		m.objects = map[string][]byte{}
	}
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(data); err != nil {
		return err
	}
	m.objects[path] = buf.Bytes()
	return nil
}

type memPositionStore struct {
	closed []domain.Position
}

func (m *memPositionStore) ListClosedBefore(context.Context, time.Time) ([]domain.Position, error) {
	return m.closed, nil
}

type memFillStore struct {
	fills []domain.Fill
}

func (m *memFillStore) ListBefore(context.Context, time.Time) ([]domain.Fill, error) {
	return m.fills, nil
}

func TestArchivePositions(t *testing.T) {
	closedAt := time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC)
	writer := &memWriter{}
	archiver := NewArchiver(writer,
		&memPositionStore{closed: []domain.Position{
			{ID: "p1", Symbol: "ETH", Status: domain.PositionStatusClosed, ClosedAt: &closedAt},
			{ID: "p2", Symbol: "BTC", Status: domain.PositionStatusClosed, ClosedAt: &closedAt},
		}},
		&memFillStore{},
	)

	cutoff := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	count, err := archiver.ArchivePositions(context.Background(), cutoff)
	require.NoError(t, err)
	assert.EqualValues(t, 2, count)

	data, ok := writer.objects["archive/positions/2026-03.jsonl"]
	require.True(t, ok)

	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	assert.Len(t, lines, 2)
	assert.Contains(t, lines[0], `"ETH"`)
}

func TestArchiveFillsEmptySkipsUpload(t *testing.T) {
	writer := &memWriter{}
	archiver := NewArchiver(writer, &memPositionStore{}, &memFillStore{})

	count, err := archiver.ArchiveFills(context.Background(), time.Now())
	require.NoError(t, err)
	assert.Zero(t, count)
	assert.Empty(t, writer.objects)
}
