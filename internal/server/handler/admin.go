package handler

import (
	"context"
	"log/slog"
	"net/http"
)

// SyncRunner executes a single fill sync pass.
type SyncRunner interface {
	Run(ctx context.Context) (int, error)
}

// ArchiveRunner executes a single archive pass.
type ArchiveRunner interface {
	Run(ctx context.Context) error
}

// AdminHandler serves the manual trigger endpoints for the background jobs.
type AdminHandler struct {
	syncer   SyncRunner
	archiver ArchiveRunner
	logger   *slog.Logger
}

// NewAdminHandler creates an AdminHandler. Either runner may be nil when the
// corresponding job is not configured.
func NewAdminHandler(syncer SyncRunner, archiver ArchiveRunner, logger *slog.Logger) *AdminHandler {
	return &AdminHandler{
		syncer:   syncer,
		archiver: archiver,
		logger:   logger,
	}
}

// TriggerSync runs one fill sync pass immediately.
// POST /api/sync/trigger
func (h *AdminHandler) TriggerSync(w http.ResponseWriter, r *http.Request) {
	if h.syncer == nil {
		writeError(w, http.StatusServiceUnavailable, "fill sync not configured")
		return
	}

	n, err := h.syncer.Run(r.Context())
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: manual sync failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "sync failed")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"synced": n,
	})
}

// TriggerArchive runs one archive pass immediately.
// POST /api/archive/trigger
func (h *AdminHandler) TriggerArchive(w http.ResponseWriter, r *http.Request) {
	if h.archiver == nil {
		writeError(w, http.StatusServiceUnavailable, "archiver not configured")
		return
	}

	if err := h.archiver.Run(r.Context()); err != nil {
		h.logger.ErrorContext(r.Context(), "handler: manual archive failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "archive failed")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
