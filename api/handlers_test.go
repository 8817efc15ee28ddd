package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/soocke/seatbot-go/app"
	"github.com/soocke/seatbot-go/domain/capture"
	"github.com/soocke/seatbot-go/domain/seat"
	"github.com/soocke/seatbot-go/journal"
)

type fakeRunner struct {
	running bool
	started []int
}

func (f *fakeRunner) Start(n int) (string, error) {
	if f.running {
		return "", app.ErrBusy
	}
	f.running = true
	f.started = append(f.started, n)
	return "run-1", nil
}

func (f *fakeRunner) Stop() bool {
	was := f.running
	f.running = false
	return was
}

func (f *fakeRunner) Status() app.Status {
	return app.Status{Running: f.running, State: "idle", RunID: "run-1"}
}

type fakeHistory struct{ runs []journal.Run }

func (f *fakeHistory) Recent(_ context.Context, limit int) ([]journal.Run, error) {
	if limit < len(f.runs) {
		return f.runs[:limit], nil
	}
	return f.runs, nil
}

func (f *fakeHistory) Get(_ context.Context, id string) (journal.Run, error) {
	for _, r := range f.runs {
		if r.ID == id {
			return r, nil
		}
	}
	return journal.Run{}, fmt.Errorf("%w: %s", journal.ErrNotFound, id)
}

type fakeProfiles struct{}

func (fakeProfiles) Profiles(string) ([]seat.Profile, error) {
	return []seat.Profile{{Name: "vip", Hex: "#c80000"}}, nil
}

func (fakeProfiles) Names() ([]string, error) { return []string{"standard", "vip"}, nil }

type fakeStats struct{}

func (fakeStats) Stats() capture.CaptureStats { return capture.CaptureStats{Captures: 7} }

func newTestServer() (*httptest.Server, *fakeRunner) {
	runner := &fakeRunner{}
	a := &App{
		Runner:   runner,
		History:  &fakeHistory{runs: []journal.Run{{ID: "a", Outcome: "success"}, {ID: "b", Outcome: "exhausted"}}},
		Profiles: fakeProfiles{},
		Capture:  fakeStats{},
	}
	return httptest.NewServer(NewRouter(a)), runner
}

func TestStartStopHandlers(t *testing.T) {
	srv, runner := newTestServer()
	defer srv.Close()

	tests := []struct {
		name         string
		path         string
		body         string
		expectStatus int
	}{
		{"start", "/runs", `{"seat_count":2}`, http.StatusAccepted},
		{"start while running", "/runs", `{}`, http.StatusConflict},
		{"stop", "/runs/stop", "", http.StatusAccepted},
		{"stop idle", "/runs/stop", "", http.StatusConflict},
		{"bad body", "/runs", `{"seat_count":`, http.StatusBadRequest},
		{"negative count", "/runs", `{"seat_count":-1}`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		resp, err := http.Post(srv.URL+tt.path, "application/json", strings.NewReader(tt.body))
		if err != nil {
			t.Fatalf("%s: %v", tt.name, err)
		}
		resp.Body.Close()
		if resp.StatusCode != tt.expectStatus {
			t.Errorf("%s: expected %d, got %d", tt.name, tt.expectStatus, resp.StatusCode)
		}
	}
	if len(runner.started) != 1 || runner.started[0] != 2 {
		t.Errorf("unexpected starts %v", runner.started)
	}
}

func TestRunHistoryHandlers(t *testing.T) {
	srv, _ := newTestServer()
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/runs?limit=1")
	if err != nil {
		t.Fatal(err)
	}
	var runs []journal.Run
	json.NewDecoder(resp.Body).Decode(&runs)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK || len(runs) != 1 || runs[0].ID != "a" {
		t.Errorf("list: status %d runs %+v", resp.StatusCode, runs)
	}

	for path, want := range map[string]int{
		"/runs/b":        http.StatusOK,
		"/runs/missing":  http.StatusNotFound,
		"/runs?limit=x":  http.StatusBadRequest,
		"/profiles":      http.StatusOK,
		"/capture/stats": http.StatusOK,
		"/status":        http.StatusOK,
		"/ping":          http.StatusOK,
	} {
		resp, err := http.Get(srv.URL + path)
		if err != nil {
			t.Fatal(err)
		}
		resp.Body.Close()
		if resp.StatusCode != want {
			t.Errorf("GET %s: expected %d, got %d", path, want, resp.StatusCode)
		}
	}
}

func TestProfileNamesHandler(t *testing.T) {
	srv, _ := newTestServer()
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/profiles?names=1")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var names []string
	if err := json.NewDecoder(resp.Body).Decode(&names); err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusOK || len(names) != 2 || names[1] != "vip" {
		t.Errorf("names: status %d %v", resp.StatusCode, names)
	}
}

func TestOptionalRoutesWithoutBackends(t *testing.T) {
	srv := httptest.NewServer(NewRouter(&App{Runner: &fakeRunner{}}))
	defer srv.Close()
	for _, path := range []string{"/runs", "/runs/x", "/profiles", "/capture/stats"} {
		resp, err := http.Get(srv.URL + path)
		if err != nil {
			t.Fatal(err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusNotFound {
			t.Errorf("GET %s: expected 404, got %d", path, resp.StatusCode)
		}
	}
}
