package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/goodtune/snuskoll/internal/settings"
	"github.com/goodtune/snuskoll/internal/storage"
	"github.com/rs/zerolog"
)

// SettingsService reads and replaces the settings singleton.
type SettingsService interface {
	Get(ctx context.Context) (*storage.Settings, error)
	Save(ctx context.Context, s storage.Settings) error
}

// SettingsHandler handles settings API requests.
type SettingsHandler struct {
	service SettingsService
	logger  zerolog.Logger
}

// NewSettingsHandler creates a new settings handler.
func NewSettingsHandler(service SettingsService, logger zerolog.Logger) *SettingsHandler {
	return &SettingsHandler{
		service: service,
		logger:  logger.With().Str("handler", "settings").Logger(),
	}
}

// GetSettings returns the current settings.
func (h *SettingsHandler) GetSettings(w http.ResponseWriter, r *http.Request) {
	s, err := h.service.Get(r.Context())
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Settings have not been initialised")
			return
		}
		h.logger.Error().Err(err).Msg("Failed to load settings")
		writeError(w, http.StatusInternalServerError, "Failed to load settings")
		return
	}
	writeJSON(w, http.StatusOK, s)
}

// UpdateSettings replaces the settings. Fields left out of the body keep
// their current values.
func (h *SettingsHandler) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	next := storage.DefaultSettings()
	if current, err := h.service.Get(r.Context()); err == nil {
		next = *current
	}

	if err := json.NewDecoder(r.Body).Decode(&next); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if err := h.service.Save(r.Context(), next); err != nil {
		var verr *settings.ValidationError
		if errors.As(err, &verr) {
			writeJSON(w, http.StatusBadRequest, ErrorResponse{
				Error:   http.StatusText(http.StatusBadRequest),
				Message: verr.Error(),
				Code:    http.StatusBadRequest,
				Field:   verr.Field,
			})
			return
		}
		h.logger.Error().Err(err).Msg("Failed to save settings")
		writeError(w, http.StatusInternalServerError, "Failed to save settings")
		return
	}

	h.logger.Info().Msg("Settings updated")
	writeJSON(w, http.StatusOK, next)
}
