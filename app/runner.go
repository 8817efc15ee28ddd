package app

import (
	"context"
	"errors"
	"log/slog"
	"runtime/debug"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/soocke/seatbot-go/config"
	"github.com/soocke/seatbot-go/domain/seat"
	"github.com/soocke/seatbot-go/domain/selection"
	"github.com/soocke/seatbot-go/journal"
)

// ErrBusy is returned by Start while a run is in progress.
var ErrBusy = errors.New("app: selection already running")

// Engine runs one bounded selection loop.
type Engine interface {
	Run(ctx context.Context, req selection.Request) selection.Result
	Current() selection.State
}

// Recorder persists finished runs.
type Recorder interface {
	Record(ctx context.Context, r journal.Run) error
}

// FocusFunc returns the title of the current foreground window.
type FocusFunc func() (string, error)

// Status is a point-in-time view of the runner.
type Status struct {
	Running bool         `json:"running"`
	State   string       `json:"state"`
	RunID   string       `json:"run_id,omitempty"`
	Last    *journal.Run `json:"last,omitempty"`
}

// Runner owns the single worker goroutine that executes selection runs. At
// most one run is active; Stop raises the stop request the orchestrator polls
// and cancels the run context.
type Runner struct {
	cfg      *config.Config
	engine   Engine
	recorder Recorder
	focus    FocusFunc
	logger   *slog.Logger

	// Ranges resolves the color profile of a run. Nil leaves the request
	// without ranges, which selects the default color heuristic.
	Ranges func(cfg *config.Config) ([]seat.ColorRange, error)

	running atomic.Bool
	stopReq atomic.Bool
	mu      sync.Mutex // guards the fields below and serializes Start/Stop
	cancel  context.CancelFunc
	runID   string
	last    *journal.Run
	done    chan struct{}
}

// NewRunner returns an idle runner. recorder and focus may be nil.
func NewRunner(cfg *config.Config, engine Engine, recorder Recorder, focus FocusFunc, logger *slog.Logger) *Runner {
	return &Runner{cfg: cfg, engine: engine, recorder: recorder, focus: focus, logger: logger}
}

// SetEngine replaces the engine. Only valid while idle.
func (r *Runner) SetEngine(e Engine) { r.engine = e }

// Running reports whether a run is in progress.
func (r *Runner) Running() bool { return r.running.Load() }

// Continue reports whether the active run should keep going. The
// orchestrator polls it between rounds and seats.
func (r *Runner) Continue() bool { return r.running.Load() && !r.stopReq.Load() }

// Start launches a run for seatCount seats (0 uses the configured count) and
// returns its id.
func (r *Runner) Start(seatCount int) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running.Load() {
		return "", ErrBusy
	}
	cfg, req, err := r.prepare(seatCount)
	if err != nil {
		return "", err
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	r.cancel, r.runID, r.done = cancel, req.RunID, done
	r.stopReq.Store(false)
	r.running.Store(true)

	go func() {
		defer close(done)
		defer r.finishRun()
		defer cancel()
		defer recoverLog(r.logger, "runner panic")
		r.execute(ctx, cfg, req)
	}()
	return req.RunID, nil
}

// RunOnce executes a run on the calling goroutine. Stop applies to it as to
// a background run.
func (r *Runner) RunOnce(ctx context.Context, seatCount int) (selection.Result, error) {
	r.mu.Lock()
	if r.running.Load() {
		r.mu.Unlock()
		return selection.Result{}, ErrBusy
	}
	cfg, req, err := r.prepare(seatCount)
	if err != nil {
		r.mu.Unlock()
		return selection.Result{}, err
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	r.cancel, r.runID = cancel, req.RunID
	r.stopReq.Store(false)
	r.running.Store(true)
	r.mu.Unlock()

	defer r.finishRun()
	return r.execute(ctx, cfg, req), nil
}

func (r *Runner) finishRun() {
	r.mu.Lock()
	r.cancel = nil
	r.running.Store(false)
	r.mu.Unlock()
}

// prepare snapshots the config and resolves the run request.
func (r *Runner) prepare(seatCount int) (*config.Config, selection.Request, error) {
	cfg := r.cfg.Clone()
	if seatCount > 0 {
		cfg.SeatCount = seatCount
	}
	_ = cfg.Validate()
	req := RequestFromConfig(cfg, journal.NewRunID())
	if r.Ranges != nil {
		ranges, err := r.Ranges(cfg)
		if err != nil {
			return nil, selection.Request{}, err
		}
		req.Ranges = ranges
	}
	return cfg, req, nil
}

// Stop requests the active run to end, if any, and reports whether one was
// active. A seat being acted on finishes before the run observes the request.
func (r *Runner) Stop() bool {
	r.mu.Lock()
	if !r.running.Load() {
		r.mu.Unlock()
		return false
	}
	r.stopReq.Store(true)
	cancel := r.cancel
	r.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	if r.logger != nil {
		r.logger.Info("runner.stop")
	}
	return true
}

// Wait blocks until the active background run finishes.
func (r *Runner) Wait() {
	r.mu.Lock()
	done := r.done
	r.mu.Unlock()
	if done != nil {
		<-done
	}
}

// Status snapshots the runner.
func (r *Runner) Status() Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	st := Status{Running: r.running.Load(), RunID: r.runID, Last: r.last}
	if r.engine != nil {
		st.State = r.engine.Current().String()
	}
	return st
}

func (r *Runner) execute(ctx context.Context, cfg *config.Config, req selection.Request) selection.Result {
	id := req.RunID
	log := r.logger
	if log != nil {
		log = log.With("run", id)
		log.Info("runner.start", "seats", cfg.SeatCount, "profile", cfg.Profile, "source", cfg.Source)
	}
	started := time.Now()
	var res selection.Result
	if err := r.waitFocus(ctx, cfg.WindowTitle, log); err != nil {
		res = selection.Result{RunID: id, Outcome: selection.OutcomeCancelled, Err: err, Started: started, Finished: time.Now()}
	} else {
		res = r.engine.Run(ctx, req)
	}
	run := journal.FromResult(res, cfg.SeatCount, cfg.Profile, cfg.Source)
	if r.recorder != nil {
		// The run context may be cancelled already; the journal write is not.
		if err := r.recorder.Record(context.Background(), run); err != nil && log != nil {
			log.Warn("runner.journal", "error", err)
		}
	}
	r.mu.Lock()
	r.last = &run
	r.mu.Unlock()
	return res
}

// waitFocus blocks until the foreground window title contains title. An empty
// title or an unsupported platform skips the gate.
func (r *Runner) waitFocus(ctx context.Context, title string, log *slog.Logger) error {
	if title == "" || r.focus == nil {
		return nil
	}
	t := time.NewTicker(focusPoll)
	defer t.Stop()
	warned := false
	for {
		cur, err := r.focus()
		if err != nil {
			if log != nil {
				log.Warn("runner.focus.unavailable", "error", err)
			}
			return nil
		}
		if strings.Contains(cur, title) {
			return nil
		}
		if !warned && log != nil {
			log.Info("runner.focus.wait", "want", title, "current", cur)
			warned = true
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
		}
	}
}

const focusPoll = 500 * time.Millisecond

// RequestFromConfig maps the run settings onto an orchestrator request.
func RequestFromConfig(cfg *config.Config, runID string) selection.Request {
	return selection.Request{
		RunID:           runID,
		SeatCount:       cfg.SeatCount,
		Profile:         cfg.Profile,
		Monitor:         cfg.Monitor(),
		MaxRounds:       cfg.MaxRounds,
		MaxZoomAttempts: cfg.MaxZoomAttempts,
		AutoZoom:        cfg.AutoZoom,
		ZoomClicks:      cfg.ZoomClicks,
	}
}

// TimingFromConfig converts the millisecond settings.
func TimingFromConfig(cfg *config.Config) selection.Timing {
	return selection.Timing{
		ClickSettle:   config.Ms(cfg.ClickSettleMs),
		ConfirmSettle: config.Ms(cfg.ConfirmSettleMs),
		SeatClickGap:  config.Ms(cfg.SeatClickGapMs),
		ZoomSettle:    config.Ms(cfg.ZoomSettleMs),
		RetryPause:    config.Ms(cfg.RetryPauseMs),
		RoundPause:    config.Ms(cfg.RoundPauseMs),
	}
}

func recoverLog(logger *slog.Logger, msg string) {
	if rec := recover(); rec != nil {
		if logger != nil {
			logger.Error(msg, "error", rec, "stack", string(debug.Stack()))
		}
	}
}
