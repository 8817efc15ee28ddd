package selection

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/soocke/seatbot-go/domain/seat"
)

// Deps are the collaborators of an Orchestrator. Verifier, Proceeder,
// Annotate and Running are optional.
type Deps struct {
	Capturer  Capturer
	Injector  Injector
	Sources   []CandidateSource
	Verifier  Verifier
	Proceeder Proceeder
	Sleeper   Sleeper
	Timing    Timing
	Annotate  Annotator
	// Running is polled between rounds and before each seat attempt. A seat
	// already being acted on always completes its click, confirm and verify.
	Running func() bool
	Logger  *slog.Logger
}

// Orchestrator runs the bounded retry/zoom loop. A single Run executes on the
// caller's goroutine; listeners are invoked synchronously on it.
type Orchestrator struct {
	d         Deps
	state     atomic.Int32
	listeners []Listener
}

// New returns an orchestrator. A nil Sleeper uses real timers.
func New(d Deps) *Orchestrator {
	if d.Sleeper == nil {
		d.Sleeper = timerSleeper{}
	}
	return &Orchestrator{d: d}
}

// AddListener registers l. Not safe to call during Run.
func (o *Orchestrator) AddListener(l Listener) { o.listeners = append(o.listeners, l) }

// Current returns the latest state. Safe for concurrent use.
func (o *Orchestrator) Current() State { return State(o.state.Load()) }

func (o *Orchestrator) transition(next State) {
	prev := State(o.state.Swap(int32(next)))
	if prev == next {
		return
	}
	if o.d.Logger != nil {
		o.d.Logger.Debug("selection.state", "from", prev.String(), "to", next.String())
	}
	for _, l := range o.listeners {
		l(prev, next)
	}
}

func (o *Orchestrator) stopped(ctx context.Context) bool {
	if ctx.Err() != nil {
		return true
	}
	return o.d.Running != nil && !o.d.Running()
}

// Run executes at most req.MaxRounds detection rounds. Per-round failures are
// absorbed; only exhaustion or cancellation end the run without success.
// Seats clicked during failed rounds are not rolled back.
func (o *Orchestrator) Run(ctx context.Context, req Request) Result {
	res := Result{RunID: req.RunID, Started: time.Now()}
	if req.SeatCount < 1 {
		req.SeatCount = 1
	}
	log := o.d.Logger
	if log != nil {
		log = log.With("run", req.RunID)
		log.Info("selection.run.start",
			"seats", req.SeatCount,
			"profile", req.Profile,
			"ranges", len(req.Ranges),
			"max_rounds", req.MaxRounds,
			"auto_zoom", req.AutoZoom,
			"monitor", req.Monitor.String(),
		)
	}
	o.state.Store(int32(StateIdle))

	for round := 1; round <= req.MaxRounds; round++ {
		if o.stopped(ctx) {
			return o.finish(res, OutcomeCancelled, log)
		}
		res.Rounds = round
		o.transition(StateScanning)
		if log != nil {
			log.Info("selection.round", "round", round, "zooms", res.Zooms)
		}

		frame, err := o.d.Capturer.Capture(req.Monitor)
		if err != nil {
			res.Err = fmt.Errorf("capture: %w", err)
			if log != nil {
				log.Warn("selection.capture.failed", "round", round, "error", err)
			}
			o.transition(StateNoneFound)
			if o.d.Sleeper.Sleep(ctx, o.d.Timing.RetryPause) != nil {
				return o.finish(res, OutcomeCancelled, log)
			}
			continue
		}

		found, err := o.find(ctx, frame, req, log)
		if err != nil {
			res.Err = err
			o.transition(StateNoneFound)
			if !o.backoff(ctx, req, &res, log) {
				return o.finish(res, OutcomeCancelled, log)
			}
			continue
		}
		o.transition(StateCandidatesFound)
		res.Degraded = found.Degraded
		if found.Degraded {
			if log != nil {
				log.Warn("selection.run.degraded", "round", round, "requested", req.SeatCount, "fallback", len(found.Seats))
			}
		}
		if found.Detection != nil && o.d.Annotate != nil {
			if path, err := o.d.Annotate(req.RunID, frame, *found.Detection); err != nil {
				if log != nil {
					log.Warn("selection.annotate.failed", "error", err)
				}
			} else {
				res.Artifact = path
			}
		}

		var picked []seat.Candidate
		var cancelled bool
		if req.SeatCount == 1 {
			picked, cancelled = o.actSingle(ctx, req, frame, found.Seats, &res, log)
		} else {
			picked, cancelled = o.actMulti(ctx, req, frame, found.Seats, &res, log)
		}
		if cancelled {
			return o.finish(res, OutcomeCancelled, log)
		}
		if picked != nil {
			res.Seats = picked
			res.Err = nil
			o.proceed(ctx, req, log)
			return o.finish(res, OutcomeSuccess, log)
		}

		o.transition(StateRetry)
		if o.d.Sleeper.Sleep(ctx, o.d.Timing.RoundPause) != nil {
			return o.finish(res, OutcomeCancelled, log)
		}
	}
	return o.finish(res, OutcomeExhausted, log)
}

func (o *Orchestrator) finish(res Result, outcome Outcome, log *slog.Logger) Result {
	res.Outcome = outcome
	res.Finished = time.Now()
	switch outcome {
	case OutcomeSuccess:
		o.transition(StateSuccess)
	case OutcomeCancelled:
		o.transition(StateCancelled)
	default:
		o.transition(StateExhausted)
	}
	if log != nil {
		attrs := []any{
			"outcome", outcome.String(),
			"rounds", res.Rounds,
			"zooms", res.Zooms,
			"clicks", res.Clicks,
			"degraded", res.Degraded,
			"elapsed_ms", res.Finished.Sub(res.Started).Milliseconds(),
		}
		if res.Err != nil {
			attrs = append(attrs, "last_error", res.Err.Error())
		}
		if outcome == OutcomeSuccess {
			log.Info("selection.run.done", attrs...)
		} else {
			log.Warn("selection.run.done", attrs...)
		}
	}
	return res
}

// find asks each source in turn and returns the first usable proposal.
func (o *Orchestrator) find(ctx context.Context, frame *image.RGBA, req Request, log *slog.Logger) (Found, error) {
	seatCount := req.SeatCount
	if len(o.d.Sources) == 0 {
		return Found{}, ErrNoCandidates
	}
	var last error
	for _, src := range o.d.Sources {
		found, err := src.Candidates(ctx, frame, req)
		if err == nil && len(found.Seats) == 0 {
			err = ErrNoCandidates
		}
		if err == nil && seatCount > 1 && len(found.Seats) < seatCount {
			err = fmt.Errorf("%w: have %d, need %d", ErrInsufficientCandidates, len(found.Seats), seatCount)
		}
		if err == nil {
			if log != nil {
				log.Info("selection.candidates", "source", found.Source, "count", len(found.Seats), "best_quality", found.Seats[0].Quality)
			}
			return found, nil
		}
		if log != nil {
			log.Info("selection.source.empty", "source", fmt.Sprintf("%T", src), "reason", err)
		}
		last = err
	}
	return Found{}, last
}

// backoff handles a round without candidates: zoom in while attempts remain,
// otherwise pause. Returns false when the wait was cancelled.
func (o *Orchestrator) backoff(ctx context.Context, req Request, res *Result, log *slog.Logger) bool {
	if req.AutoZoom && res.Zooms < req.MaxZoomAttempts {
		x := req.Monitor.Min.X + int(float64(req.Monitor.Dx())*0.3)
		y := req.Monitor.Min.Y + int(float64(req.Monitor.Dy())*0.5)
		clicks := req.ZoomClicks
		if clicks == 0 {
			clicks = 3
		}
		res.Zooms++
		if err := o.d.Injector.Scroll(x, y, clicks); err != nil && log != nil {
			log.Warn("selection.zoom.failed", "error", err)
		} else if log != nil {
			log.Info("selection.zoom", "attempt", res.Zooms, "x", x, "y", y, "clicks", clicks)
		}
		return o.d.Sleeper.Sleep(ctx, o.d.Timing.ZoomSettle) == nil
	}
	if log != nil {
		log.Info("selection.pause", "reason", res.Err)
	}
	return o.d.Sleeper.Sleep(ctx, o.d.Timing.RetryPause) == nil
}

func (o *Orchestrator) click(req Request, c seat.Candidate, res *Result, log *slog.Logger) {
	x, y := req.Monitor.Min.X+c.X, req.Monitor.Min.Y+c.Y
	res.Clicks++
	if err := o.d.Injector.Click(x, y); err != nil && log != nil {
		log.Warn("selection.click.failed", "x", x, "y", y, "error", err)
	} else if log != nil {
		log.Info("selection.click", "x", x, "y", y, "quality", c.Quality, "source", c.Source)
	}
}

func (o *Orchestrator) confirm(log *slog.Logger) {
	if err := o.d.Injector.Key("enter"); err != nil && log != nil {
		log.Warn("selection.confirm.failed", "error", err)
	}
}

// actSingle tries each candidate in score order until one verifies. Stop is
// honoured only between candidates.
func (o *Orchestrator) actSingle(ctx context.Context, req Request, before *image.RGBA, cands []seat.Candidate, res *Result, log *slog.Logger) ([]seat.Candidate, bool) {
	act := context.WithoutCancel(ctx)
	for _, c := range cands {
		if o.stopped(ctx) {
			return nil, true
		}
		o.transition(StateActing)
		o.click(req, c, res, log)
		o.settle(act, o.d.Timing.ClickSettle)
		o.confirm(log)
		o.settle(act, o.d.Timing.ConfirmSettle)
		picked := []seat.Candidate{c}
		if o.verify(act, req, before, picked, res, log) {
			return picked, false
		}
	}
	return nil, false
}

// actMulti clicks the first SeatCount candidates, confirms once and verifies.
// Once the first seat is clicked the whole sequence runs to completion.
func (o *Orchestrator) actMulti(ctx context.Context, req Request, before *image.RGBA, cands []seat.Candidate, res *Result, log *slog.Logger) ([]seat.Candidate, bool) {
	if o.stopped(ctx) {
		return nil, true
	}
	act := context.WithoutCancel(ctx)
	picked := cands[:req.SeatCount]
	o.transition(StateActing)
	for i, c := range picked {
		o.click(req, c, res, log)
		if i+1 < len(picked) {
			o.settle(act, o.d.Timing.SeatClickGap)
		}
	}
	o.settle(act, o.d.Timing.ClickSettle)
	o.confirm(log)
	o.settle(act, o.d.Timing.ConfirmSettle)
	if o.verify(act, req, before, picked, res, log) {
		return append([]seat.Candidate(nil), picked...), false
	}
	return nil, false
}

// settle waits inside an acting sequence; ctx is never cancelled there.
func (o *Orchestrator) settle(ctx context.Context, d time.Duration) {
	_ = o.d.Sleeper.Sleep(ctx, d)
}

func (o *Orchestrator) verify(ctx context.Context, req Request, before *image.RGBA, picked []seat.Candidate, res *Result, log *slog.Logger) bool {
	if o.d.Verifier == nil {
		return true
	}
	o.transition(StateVerifying)
	after, err := o.d.Capturer.Capture(req.Monitor)
	if err != nil {
		res.Err = fmt.Errorf("%w: capture: %v", ErrVerificationAmbiguous, err)
		if log != nil {
			log.Warn("selection.verify.capture_failed", "error", err)
		}
		return false
	}
	ok, err := o.d.Verifier.Verify(ctx, Check{Before: before, After: after, Seats: picked, SeatCount: req.SeatCount})
	if err != nil {
		if !errors.Is(err, ErrVerificationAmbiguous) {
			err = fmt.Errorf("%w: %w", ErrVerificationAmbiguous, err)
		}
		res.Err = err
		if log != nil {
			log.Warn("selection.verify.error", "error", err)
		}
		return false
	}
	if log != nil {
		log.Info("selection.verify", "selected", ok, "seats", len(picked))
	}
	return ok
}

// proceed runs the post-selection step. Its failure does not undo success.
func (o *Orchestrator) proceed(ctx context.Context, req Request, log *slog.Logger) {
	if o.d.Proceeder == nil {
		return
	}
	frame, err := o.d.Capturer.Capture(req.Monitor)
	if err == nil {
		err = o.d.Proceeder.Proceed(ctx, frame, req.Monitor)
	}
	if log == nil {
		return
	}
	if err != nil {
		log.Warn("selection.proceed.failed", "error", err)
		return
	}
	log.Info("selection.proceed")
}
