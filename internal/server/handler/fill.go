package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/alanyoungcy/tradejournal/internal/domain"
)

// FillService defines the methods that the fill handler requires.
type FillService interface {
	ListFills(ctx context.Context, symbol string, opts domain.ListOpts) ([]domain.Fill, error)
	LogFill(ctx context.Context, fill domain.Fill) (domain.Fill, error)
}

// FillHandler serves fill-related HTTP endpoints.
type FillHandler struct {
	journal FillService
	logger  *slog.Logger
}

// NewFillHandler creates a FillHandler with the given service and logger.
func NewFillHandler(journal FillService, logger *slog.Logger) *FillHandler {
	return &FillHandler{
		journal: journal,
		logger:  logger,
	}
}

// listFillsResponse wraps the list fills response.
type listFillsResponse struct {
	Fills []domain.Fill `json:"fills"`
}

// ListFills returns persisted fills, optionally filtered by symbol.
// GET /api/fills?symbol=ETH
func (h *FillHandler) ListFills(w http.ResponseWriter, r *http.Request) {
	symbol := r.URL.Query().Get("symbol")

	fills, err := h.journal.ListFills(r.Context(), symbol, parseListOpts(r))
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list fills failed",
			slog.String("symbol", symbol),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list fills")
		return
	}

	if fills == nil {
		fills = []domain.Fill{}
	}

	writeJSON(w, http.StatusOK, listFillsResponse{Fills: fills})
}

// createFillRequest is the POST body for manual fill entry.
type createFillRequest struct {
	Symbol    string  `json:"symbol"`
	Side      string  `json:"side"`
	Price     float64 `json:"price"`
	Quantity  float64 `json:"quantity"`
	Timestamp string  `json:"timestamp"` // RFC3339; empty means now
}

// CreateFill records a manually entered fill.
// POST /api/fills
func (h *FillHandler) CreateFill(w http.ResponseWriter, r *http.Request) {
	var req createFillRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	fill := domain.Fill{
		Symbol:   req.Symbol,
		Side:     domain.FillSide(req.Side),
		Price:    req.Price,
		Quantity: req.Quantity,
	}
	if req.Timestamp != "" {
		ts, err := time.Parse(time.RFC3339, req.Timestamp)
		if err != nil {
			writeError(w, http.StatusBadRequest, "timestamp must be RFC3339")
			return
		}
		fill.Timestamp = ts
	}

	saved, err := h.journal.LogFill(r.Context(), fill)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidFill) {
			writeError(w, http.StatusBadRequest, "invalid fill parameters")
			return
		}
		h.logger.ErrorContext(r.Context(), "handler: create fill failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to record fill")
		return
	}

	writeJSON(w, http.StatusCreated, saved)
}
