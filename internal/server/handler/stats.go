package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/alanyoungcy/tradejournal/internal/journal"
)

// StatsService defines the methods that the stats handler requires.
type StatsService interface {
	Stats(ctx context.Context, startEquity float64, trades int) (journal.Summary, []float64, error)
}

// StatsHandler serves the performance statistics endpoint.
type StatsHandler struct {
	journal StatsService
	logger  *slog.Logger
}

// NewStatsHandler creates a StatsHandler with the given service and logger.
func NewStatsHandler(journal StatsService, logger *slog.Logger) *StatsHandler {
	return &StatsHandler{
		journal: journal,
		logger:  logger,
	}
}

const (
	defaultStartEquity = 10000
	defaultProjection  = 10
	maxProjection      = 1000
)

// statsResponse combines the summary with the equity projection.
type statsResponse struct {
	Summary    journal.Summary `json:"summary"`
	Projection []float64       `json:"projection"`
}

// GetStats returns aggregate performance statistics and a compounded equity
// projection.
// GET /api/stats?start_equity=10000&trades=10
func (h *StatsHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	startEquity := float64(defaultStartEquity)
	if v := q.Get("start_equity"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil || f <= 0 {
			writeError(w, http.StatusBadRequest, "start_equity must be a positive number")
			return
		}
		startEquity = f
	}

	trades := defaultProjection
	if v := q.Get("trades"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "trades must be a non-negative integer")
			return
		}
		trades = n
	}
	if trades > maxProjection {
		trades = maxProjection
	}

	summary, projection, err := h.journal.Stats(r.Context(), startEquity, trades)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: stats failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to compute statistics")
		return
	}

	writeJSON(w, http.StatusOK, statsResponse{
		Summary:    summary,
		Projection: projection,
	})
}
