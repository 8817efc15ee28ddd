// Package api exposes the runner over a small local HTTP control surface.
package api

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/soocke/seatbot-go/app"
	"github.com/soocke/seatbot-go/domain/capture"
	"github.com/soocke/seatbot-go/domain/seat"
	"github.com/soocke/seatbot-go/journal"
)

// Controller starts and stops selection runs.
type Controller interface {
	Start(seatCount int) (string, error)
	Stop() bool
	Status() app.Status
}

// History reads journaled runs.
type History interface {
	Recent(ctx context.Context, limit int) ([]journal.Run, error)
	Get(ctx context.Context, id string) (journal.Run, error)
}

// ProfileLister lists seat color profiles.
type ProfileLister interface {
	Profiles(selector string) ([]seat.Profile, error)
	Names() ([]string, error)
}

// StatsSource reports capture statistics.
type StatsSource interface {
	Stats() capture.CaptureStats
}

// App bundles the handler dependencies. History, Profiles and Capture are
// optional; their routes answer 404 when unset.
type App struct {
	Runner   Controller
	History  History
	Profiles ProfileLister
	Capture  StatsSource
}

// NewRouter mounts the control routes.
func NewRouter(a *App) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Get("/ping", PingHandler)
	r.Get("/status", a.StatusHandler)
	r.Post("/runs", a.StartHandler)
	r.Post("/runs/stop", a.StopHandler)
	r.Get("/runs", a.ListRunsHandler)
	r.Get("/runs/{id}", a.GetRunHandler)
	r.Get("/profiles", a.ProfilesHandler)
	r.Get("/capture/stats", a.CaptureStatsHandler)

	return r
}
