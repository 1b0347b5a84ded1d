package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/tradejournal/internal/domain"
)

// PositionService defines the methods that the position handler requires.
type PositionService interface {
	Aggregate(ctx context.Context) ([]domain.Position, error)
	Refresh(ctx context.Context) ([]domain.Position, error)
	UpdateMetadata(ctx context.Context, id string, upd domain.MetadataUpdate) error
}

// PositionReader provides single-row access to the persisted snapshot.
type PositionReader interface {
	GetByID(ctx context.Context, id string) (domain.Position, error)
}

// PositionHandler serves position-related HTTP endpoints.
type PositionHandler struct {
	journal PositionService
	reader  PositionReader
	logger  *slog.Logger
}

// NewPositionHandler creates a PositionHandler with the given service and logger.
func NewPositionHandler(journal PositionService, reader PositionReader, logger *slog.Logger) *PositionHandler {
	return &PositionHandler{
		journal: journal,
		reader:  reader,
		logger:  logger,
	}
}

// listPositionsResponse wraps the list positions response.
type listPositionsResponse struct {
	Positions []domain.Position `json:"positions"`
}

// ListPositions returns the aggregated position view. With refresh=true the
// recomputed snapshot is also persisted.
// GET /api/positions?refresh=true
func (h *PositionHandler) ListPositions(w http.ResponseWriter, r *http.Request) {
	var (
		positions []domain.Position
		err       error
	)
	if r.URL.Query().Get("refresh") == "true" {
		positions, err = h.journal.Refresh(r.Context())
	} else {
		positions, err = h.journal.Aggregate(r.Context())
	}
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list positions failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to aggregate positions")
		return
	}

	if status := r.URL.Query().Get("status"); status != "" {
		filtered := positions[:0]
		for _, p := range positions {
			if string(p.Status) == status {
				filtered = append(filtered, p)
			}
		}
		positions = filtered
	}

	if positions == nil {
		positions = []domain.Position{}
	}

	writeJSON(w, http.StatusOK, listPositionsResponse{Positions: positions})
}

// GetPosition returns a single persisted position by ID.
// GET /api/positions/{id}
func (h *PositionHandler) GetPosition(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "position id required")
		return
	}

	position, err := h.reader.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "position not found")
			return
		}
		h.logger.ErrorContext(r.Context(), "handler: get position failed",
			slog.String("id", id),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to get position")
		return
	}

	writeJSON(w, http.StatusOK, position)
}

// metadataRequest is the PATCH body for annotation updates. Absent fields
// are left untouched.
type metadataRequest struct {
	Journal  *string `json:"journal"`
	Category *string `json:"category"`
}

// UpdateMetadata updates the journal/category annotation of one position.
// PATCH /api/positions/{id}/metadata
func (h *PositionHandler) UpdateMetadata(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "position id required")
		return
	}

	var req metadataRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Journal == nil && req.Category == nil {
		writeError(w, http.StatusBadRequest, "journal or category required")
		return
	}

	err := h.journal.UpdateMetadata(r.Context(), id, domain.MetadataUpdate{
		Journal:  req.Journal,
		Category: req.Category,
	})
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "position not found")
			return
		}
		h.logger.ErrorContext(r.Context(), "handler: update metadata failed",
			slog.String("id", id),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to update metadata")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "updated"})
}
