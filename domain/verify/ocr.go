package verify

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/otiai10/gosseract/v2"

	"github.com/soocke/seatbot-go/domain/selection"
)

// OCRVerifier reads the post-confirm frame with Tesseract and looks for the
// page's selected-count summary.
type OCRVerifier struct {
	languages []string
	logger    *slog.Logger
}

// NewOCRVerifier returns a verifier using the given Tesseract languages.
func NewOCRVerifier(languages []string, logger *slog.Logger) *OCRVerifier {
	return &OCRVerifier{languages: languages, logger: logger}
}

// Verify implements selection.Verifier.
func (v *OCRVerifier) Verify(_ context.Context, c selection.Check) (bool, error) {
	if c.After == nil {
		return false, fmt.Errorf("%w: missing frame", selection.ErrVerificationAmbiguous)
	}
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, c.After, imaging.PNG); err != nil {
		return false, fmt.Errorf("encode frame: %w", err)
	}

	client := gosseract.NewClient()
	defer client.Close()
	if len(v.languages) > 0 {
		if err := client.SetLanguage(v.languages...); err != nil {
			return false, fmt.Errorf("failed to set OCR language: %w", err)
		}
	}
	if err := client.SetImageFromBytes(buf.Bytes()); err != nil {
		return false, fmt.Errorf("failed to set image: %w", err)
	}
	text, err := client.Text()
	if err != nil {
		return false, fmt.Errorf("%w: OCR failed: %v", selection.ErrVerificationAmbiguous, err)
	}
	ok := MatchesSeatCount(text, c.SeatCount)
	if v.logger != nil {
		v.logger.Debug("verify.ocr", "matched", ok, "chars", len(text))
	}
	return ok, nil
}

// MatchesSeatCount reports whether text announces exactly n selected seats,
// e.g. "총 2석 선택되었습니다", "2석 선택" or "2 seats selected".
func MatchesSeatCount(text string, n int) bool {
	if n < 1 {
		return false
	}
	text = strings.Join(strings.Fields(text), " ")
	num := fmt.Sprintf(`(?:^|[^0-9])%d\s*`, n)
	patterns := []string{
		`총\s*` + fmt.Sprintf(`%d\s*석`, n),
		num + `석\s*선택`,
		`(?i)` + num + `seats?\s+selected`,
	}
	for _, p := range patterns {
		if regexp.MustCompile(p).MatchString(text) {
			return true
		}
	}
	return false
}
