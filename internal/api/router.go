package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

// Deps are the services behind the API. A nil Tracker or Settings leaves
// those routes unmounted.
type Deps struct {
	Stats    StateSource
	Tracker  Tracker
	Settings SettingsService
}

// Routes returns the /api/v1 router.
func Routes(deps Deps, logger zerolog.Logger) http.Handler {
	r := chi.NewRouter()

	statsHandler := NewStatsHandler(deps.Stats, logger)
	r.Get("/stats", statsHandler.GetStats)
	r.Post("/refresh", statsHandler.Refresh)

	if deps.Tracker != nil {
		usageHandler := NewUsageHandler(deps.Tracker, logger)
		r.Get("/status", usageHandler.GetStatus)
		r.Route("/sessions", func(r chi.Router) {
			r.Post("/", usageHandler.StartSession)
			r.Post("/end", usageHandler.EndSession)
			r.Post("/override", usageHandler.Override)
		})
	}

	if deps.Settings != nil {
		settingsHandler := NewSettingsHandler(deps.Settings, logger)
		r.Get("/settings", settingsHandler.GetSettings)
		r.Put("/settings", settingsHandler.UpdateSettings)
	}

	return r
}
