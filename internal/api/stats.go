package api

import (
	"net/http"
	"time"

	"github.com/goodtune/snuskoll/internal/refresh"
	"github.com/goodtune/snuskoll/internal/stats"
	"github.com/rs/zerolog"
)

// StateSource is the part of the refresh scheduler the API reads from.
type StateSource interface {
	State() refresh.State
	Refresh()
}

// StatsResponse mirrors refresh.State with the error flattened to a string.
type StatsResponse struct {
	Snapshot  *stats.Snapshot `json:"snapshot"`
	IsLoading bool            `json:"is_loading"`
	Error     *string         `json:"error"`
	UpdatedAt *time.Time      `json:"updated_at"`
}

// StatsHandler serves the latest statistics snapshot.
type StatsHandler struct {
	source StateSource
	logger zerolog.Logger
}

// NewStatsHandler creates a new stats handler.
func NewStatsHandler(source StateSource, logger zerolog.Logger) *StatsHandler {
	return &StatsHandler{
		source: source,
		logger: logger.With().Str("handler", "stats").Logger(),
	}
}

// GetStats returns the last good snapshot with the loading and error flags.
func (h *StatsHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, newStatsResponse(h.source.State()))
}

// Refresh requests an aggregation pass and returns immediately.
func (h *StatsHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	h.logger.Debug().Msg("Manual refresh requested")
	h.source.Refresh()
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}

func newStatsResponse(st refresh.State) StatsResponse {
	resp := StatsResponse{
		Snapshot:  st.Snapshot,
		IsLoading: st.Loading,
	}
	if st.Err != nil {
		msg := st.Err.Error()
		resp.Error = &msg
	}
	if !st.UpdatedAt.IsZero() {
		at := st.UpdatedAt
		resp.UpdatedAt = &at
	}
	return resp
}
