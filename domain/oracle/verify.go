package oracle

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"

	"github.com/soocke/seatbot-go/domain/selection"
)

// Verifier asks the model whether the page reports the expected seat count
// as selected.
type Verifier struct {
	client *Client
}

// NewVerifier returns a selection verifier backed by c.
func NewVerifier(c *Client) *Verifier { return &Verifier{client: c} }

type selectedAnswer struct {
	Selected *bool `json:"selected"`
}

// Verify implements selection.Verifier.
func (v *Verifier) Verify(ctx context.Context, c selection.Check) (bool, error) {
	if c.After == nil {
		return false, fmt.Errorf("%w: no frame", selection.ErrVerificationAmbiguous)
	}
	shot, err := v.client.Prepare(c.After)
	if err != nil {
		return false, fmt.Errorf("%w: %v", selection.ErrOracle, err)
	}
	var ans selectedAnswer
	if err := v.client.Ask(ctx, verifyPrompt(c.SeatCount), shot, 50, &ans); err != nil {
		return false, fmt.Errorf("%w: %v", selection.ErrOracle, err)
	}
	if ans.Selected == nil {
		return false, fmt.Errorf("%w: answer lacks \"selected\"", selection.ErrVerificationAmbiguous)
	}
	return *ans.Selected, nil
}

func verifyPrompt(n int) string {
	return fmt.Sprintf(`Check if %[1]d seat(s) have been selected.

Look for text like:
- "총 %[1]d석 선택되었습니다"
- "%[1]d석 선택"
- "선택좌석" section showing %[1]d seat(s)

If the selected count matches %[1]d, return true.

JSON only:
{"selected": true} or {"selected": false}`, n)
}

// Clicker clicks at absolute screen coordinates.
type Clicker interface {
	Click(x, y int) error
}

// ErrNotLocated reports that the model did not find the requested element.
var ErrNotLocated = errors.New("oracle: element not located")

type pointAnswer struct {
	X Number `json:"x"`
	Y Number `json:"y"`
}

// Locate asks for the center of the element labelled label and returns it in
// frame pixels.
func (c *Client) Locate(ctx context.Context, frame image.Image, label string) (image.Point, error) {
	shot, err := c.Prepare(frame)
	if err != nil {
		return image.Point{}, err
	}
	var ans pointAnswer
	if err := c.Ask(ctx, locatePrompt(shot.Size, label), shot, 100, &ans); err != nil {
		return image.Point{}, err
	}
	if !ans.X.Set || !ans.Y.Set || ans.X.V <= 0 || ans.Y.V <= 0 {
		return image.Point{}, fmt.Errorf("%w: %q", ErrNotLocated, label)
	}
	b := frame.Bounds()
	x := int(axis(ans.X.V, b.Dx(), shot.Scale))
	y := int(axis(ans.Y.V, b.Dy(), shot.Scale))
	if x >= b.Dx() || y >= b.Dy() {
		return image.Point{}, fmt.Errorf("%w: %q outside frame", ErrNotLocated, label)
	}
	return image.Pt(x, y), nil
}

func locatePrompt(size image.Point, label string) string {
	return fmt.Sprintf(`Screenshot size: %dx%d pixels.

Find the "%s" button in the WEB BROWSER area.
The button is typically BLUE and located at the bottom of the seat selection panel.

Return its CENTER coordinates.
CRITICAL: Coordinates MUST be 0.0-1.0 normalized!

JSON only:
{"x": 0.xx, "y": 0.xx}`, size.X, size.Y, label)
}

// Proceeder clicks the button that advances past the seat map.
type Proceeder struct {
	client  *Client
	clicker Clicker
	label   string
	logger  *slog.Logger
}

// NewProceeder returns a proceeder that looks for label.
func NewProceeder(c *Client, clicker Clicker, label string, logger *slog.Logger) *Proceeder {
	return &Proceeder{client: c, clicker: clicker, label: label, logger: logger}
}

// Proceed implements selection.Proceeder.
func (p *Proceeder) Proceed(ctx context.Context, frame *image.RGBA, monitor image.Rectangle) error {
	pt, err := p.client.Locate(ctx, frame, p.label)
	if err != nil {
		return err
	}
	abs := monitor.Min.Add(pt)
	if p.logger != nil {
		p.logger.Info("oracle.proceed", "label", p.label, "x", abs.X, "y", abs.Y)
	}
	return p.clicker.Click(abs.X, abs.Y)
}
