// Package selection drives the capture, detect, act and verify loop that
// turns seat candidates into a confirmed selection.
package selection

import (
	"context"
	"errors"
	"image"
	"time"

	"github.com/soocke/seatbot-go/domain/seat"
)

// State enumerates the phases of one selection run.
type State int

const (
	StateIdle State = iota
	StateScanning
	StateCandidatesFound
	StateNoneFound
	StateActing
	StateVerifying
	StateSuccess
	StateRetry
	StateExhausted
	StateCancelled
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateScanning:
		return "scanning"
	case StateCandidatesFound:
		return "candidates_found"
	case StateNoneFound:
		return "none_found"
	case StateActing:
		return "acting"
	case StateVerifying:
		return "verifying"
	case StateSuccess:
		return "success"
	case StateRetry:
		return "retry"
	case StateExhausted:
		return "exhausted"
	case StateCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Outcome is the terminal result of a run.
type Outcome int

const (
	OutcomeSuccess Outcome = iota
	OutcomeExhausted
	OutcomeCancelled
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeExhausted:
		return "exhausted"
	case OutcomeCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Listener is called on each state transition.
type Listener func(prev, next State)

// Per-round failure causes. They never abort a run on their own.
var (
	ErrNoRegion               = errors.New("selection: no seat grid region")
	ErrNoCandidates           = errors.New("selection: no seat candidates")
	ErrInsufficientCandidates = errors.New("selection: fewer candidates than requested seats")
	ErrOracle                 = errors.New("selection: vision oracle failure")
	ErrVerificationAmbiguous  = errors.New("selection: verification inconclusive")
)

// Request is the immutable input of one run.
type Request struct {
	RunID     string
	SeatCount int
	// Profile names the color profile Ranges were loaded from.
	Profile         string
	Ranges          []seat.ColorRange
	Monitor         image.Rectangle
	MaxRounds       int
	MaxZoomAttempts int
	AutoZoom        bool
	ZoomClicks      int
}

// Timing holds the settle delays applied between UI actions.
type Timing struct {
	ClickSettle   time.Duration
	ConfirmSettle time.Duration
	SeatClickGap  time.Duration
	ZoomSettle    time.Duration
	RetryPause    time.Duration
	RoundPause    time.Duration
}

// DefaultTiming matches the page behaviour the bot was tuned against.
func DefaultTiming() Timing {
	return Timing{
		ClickSettle:   500 * time.Millisecond,
		ConfirmSettle: 300 * time.Millisecond,
		SeatClickGap:  300 * time.Millisecond,
		ZoomSettle:    500 * time.Millisecond,
		RetryPause:    time.Second,
		RoundPause:    500 * time.Millisecond,
	}
}

// Result summarises a finished run.
type Result struct {
	RunID    string
	Outcome  Outcome
	Seats    []seat.Candidate
	Rounds   int
	Zooms    int
	Clicks   int
	Degraded bool
	// Err is the last per-round cause when the run did not succeed.
	Err      error
	Artifact string
	Started  time.Time
	Finished time.Time
}

// Found is what a candidate source reports for one frame. Seats are in frame
// coordinates, best first.
type Found struct {
	Seats     []seat.Candidate
	Degraded  bool
	Source    string
	Detection *seat.Detection
}

// Check is the evidence handed to a verifier after confirming a selection.
type Check struct {
	Before    *image.RGBA
	After     *image.RGBA
	Seats     []seat.Candidate
	SeatCount int
}

// Capturer grabs a screen rectangle. The frame is normalized to origin (0,0).
type Capturer interface {
	Capture(rect image.Rectangle) (*image.RGBA, error)
}

// Injector sends input at absolute screen coordinates.
type Injector interface {
	Click(x, y int) error
	Key(name string) error
	TypeText(s string) error
	Scroll(x, y, clicks int) error
}

// CandidateSource proposes seats for a frame.
type CandidateSource interface {
	Candidates(ctx context.Context, frame *image.RGBA, req Request) (Found, error)
}

// Verifier decides whether the page accepted the selection.
type Verifier interface {
	Verify(ctx context.Context, c Check) (bool, error)
}

// Proceeder advances past the seat map after a confirmed selection.
type Proceeder interface {
	Proceed(ctx context.Context, frame *image.RGBA, monitor image.Rectangle) error
}

// Sleeper waits for d or until ctx is done.
type Sleeper interface {
	Sleep(ctx context.Context, d time.Duration) error
}

// Annotator persists a diagnostic image of a detection. Returns the path.
type Annotator func(runID string, frame image.Image, det seat.Detection) (string, error)

type timerSleeper struct{}

func (timerSleeper) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
