package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/goodtune/snuskoll/internal/storage"
	"github.com/goodtune/snuskoll/internal/usage"
	"github.com/rs/zerolog"
)

// Tracker is the usage surface exposed over HTTP.
type Tracker interface {
	Status(ctx context.Context) (*usage.Status, error)
	Start(ctx context.Context, override bool) (*storage.DailyRecord, error)
	End(ctx context.Context) (*storage.DailyRecord, error)
	Override(ctx context.Context) (*storage.DailyRecord, error)
}

// UsageHandler handles session API requests.
type UsageHandler struct {
	tracker Tracker
	logger  zerolog.Logger
}

// NewUsageHandler creates a new usage handler.
func NewUsageHandler(tracker Tracker, logger zerolog.Logger) *UsageHandler {
	return &UsageHandler{
		tracker: tracker,
		logger:  logger.With().Str("handler", "usage").Logger(),
	}
}

// GetStatus returns today's count and session timers.
func (h *UsageHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	status, err := h.tracker.Status(r.Context())
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to read usage status")
		writeError(w, http.StatusInternalServerError, "Failed to read usage status")
		return
	}
	writeJSON(w, http.StatusOK, status)
}

// StartSession logs a portion. Pass ?override=true to start during a wait.
func (h *UsageHandler) StartSession(w http.ResponseWriter, r *http.Request) {
	override := false
	if v := r.URL.Query().Get("override"); v != "" {
		parsed, err := strconv.ParseBool(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid override value")
			return
		}
		override = parsed
	}

	rec, err := h.tracker.Start(r.Context(), override)
	if err != nil {
		h.writeTrackerError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, rec)
}

// EndSession ends the active session early and starts the wait.
func (h *UsageHandler) EndSession(w http.ResponseWriter, r *http.Request) {
	rec, err := h.tracker.End(r.Context())
	if err != nil {
		h.writeTrackerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// Override clears any session or wait in progress.
func (h *UsageHandler) Override(w http.ResponseWriter, r *http.Request) {
	rec, err := h.tracker.Override(r.Context())
	if err != nil {
		h.writeTrackerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (h *UsageHandler) writeTrackerError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, usage.ErrSessionActive),
		errors.Is(err, usage.ErrWaiting),
		errors.Is(err, usage.ErrNoActiveSession):
		writeError(w, http.StatusConflict, err.Error())
	default:
		h.logger.Error().Err(err).Msg("Usage update failed")
		writeError(w, http.StatusInternalServerError, "Usage update failed")
	}
}
