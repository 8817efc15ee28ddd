package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/soocke/seatbot-go/app"
	"github.com/soocke/seatbot-go/config"
	"github.com/soocke/seatbot-go/journal"
)

func PingHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("pong"))
}

type startRequest struct {
	SeatCount int `json:"seat_count"`
}

type startResponse struct {
	RunID string `json:"run_id"`
}

func (a *App) StatusHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, a.Runner.Status())
}

func (a *App) StartHandler(w http.ResponseWriter, r *http.Request) {
	var req startRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
	}
	if req.SeatCount < 0 {
		writeError(w, http.StatusBadRequest, "seat_count must be positive")
		return
	}
	id, err := a.Runner.Start(req.SeatCount)
	if errors.Is(err, app.ErrBusy) {
		writeError(w, http.StatusConflict, err.Error())
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, startResponse{RunID: id})
}

func (a *App) StopHandler(w http.ResponseWriter, r *http.Request) {
	if !a.Runner.Stop() {
		writeError(w, http.StatusConflict, "no active run")
		return
	}
	writeJSON(w, http.StatusAccepted, a.Runner.Status())
}

func (a *App) ListRunsHandler(w http.ResponseWriter, r *http.Request) {
	if a.History == nil {
		http.NotFound(w, r)
		return
	}
	limit := 20
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}
	runs, err := a.History.Recent(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list runs")
		return
	}
	if runs == nil {
		runs = []journal.Run{}
	}
	writeJSON(w, http.StatusOK, runs)
}

func (a *App) GetRunHandler(w http.ResponseWriter, r *http.Request) {
	if a.History == nil {
		http.NotFound(w, r)
		return
	}
	run, err := a.History.Get(r.Context(), chi.URLParam(r, "id"))
	if errors.Is(err, journal.ErrNotFound) {
		writeError(w, http.StatusNotFound, "run not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to get run")
		return
	}
	writeJSON(w, http.StatusOK, run)
}

func (a *App) ProfilesHandler(w http.ResponseWriter, r *http.Request) {
	if a.Profiles == nil {
		http.NotFound(w, r)
		return
	}
	if r.URL.Query().Get("names") == "1" {
		names, err := a.Profiles.Names()
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		if names == nil {
			names = []string{}
		}
		writeJSON(w, http.StatusOK, names)
		return
	}
	profiles, err := a.Profiles.Profiles(config.AllProfiles)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, profiles)
}

func (a *App) CaptureStatsHandler(w http.ResponseWriter, r *http.Request) {
	if a.Capture == nil {
		http.NotFound(w, r)
		return
	}
	writeJSON(w, http.StatusOK, a.Capture.Stats())
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
