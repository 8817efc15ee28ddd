package app

import (
	"fmt"
	"image"
	"log/slog"
	"path/filepath"

	"github.com/soocke/seatbot-go/config"
	"github.com/soocke/seatbot-go/domain/action"
	"github.com/soocke/seatbot-go/domain/capture"
	"github.com/soocke/seatbot-go/domain/oracle"
	"github.com/soocke/seatbot-go/domain/seat"
	"github.com/soocke/seatbot-go/domain/selection"
	"github.com/soocke/seatbot-go/domain/verify"
	"github.com/soocke/seatbot-go/journal"
)

// Container assembles services, the orchestrator and the runner.
type Container struct {
	Config     *config.Config
	Logger     *slog.Logger
	Profiles   *seat.ProfileStore
	Detector   *seat.Detector
	CVSource   *selection.CVSource
	Oracle     *oracle.Client
	CaptureSvc *capture.Service
	Injector   *action.Injector
	Journal    *journal.Journal
	Engine     *selection.Orchestrator
	Runner     *Runner
}

// BuildContainer constructs all components. The journal is opened only when
// cfg.JournalPath is set.
func BuildContainer(cfg *config.Config, logger *slog.Logger) (*Container, error) {
	c := &Container{Config: cfg, Logger: logger}
	c.Profiles = seat.NewProfileStore(cfg.ProfileDir, logger)
	c.Detector = seat.NewDetector(ParamsFromConfig(cfg), logger)
	c.CVSource = selection.NewCVSource(c.Detector)
	c.Oracle = oracle.NewClient(cfg.Oracle, logger)
	c.CaptureSvc = capture.NewService(logger)
	c.Injector = action.NewInjector(logger)

	var rec Recorder
	if cfg.JournalPath != "" {
		j, err := journal.Open(cfg.JournalPath)
		if err != nil {
			return nil, err
		}
		c.Journal = j
		rec = j
	}

	c.Runner = NewRunner(cfg, nil, rec, action.ForegroundWindowTitle, logger)
	c.Runner.Ranges = c.loadRanges

	deps := selection.Deps{
		Capturer:  c.CaptureSvc,
		Injector:  c.Injector,
		Sources:   c.sources(),
		Verifier:  c.verifier(),
		Proceeder: c.proceeder(),
		Timing:    TimingFromConfig(cfg),
		Running:   c.Runner.Continue,
		Logger:    logger,
	}
	if cfg.Debug {
		dir := cfg.DebugDir
		deps.Annotate = func(runID string, frame image.Image, det seat.Detection) (string, error) {
			return seat.Annotate(dir, runID, frame, det)
		}
	}
	c.Engine = selection.New(deps)
	c.Engine.AddListener(func(prev, next selection.State) {
		if logger != nil {
			logger.Info("selection.transition", "from", prev.String(), "to", next.String())
		}
	})
	c.Runner.SetEngine(c.Engine)
	return c, nil
}

// Close releases the journal.
func (c *Container) Close() error {
	if c.Journal != nil {
		return c.Journal.Close()
	}
	return nil
}

// loadRanges reads the color ranges of the profile selected in cfg from the
// swatch directory.
func (c *Container) loadRanges(cfg *config.Config) ([]seat.ColorRange, error) {
	if cfg.Source == config.SourceOracle {
		return nil, nil
	}
	ranges, err := c.Profiles.Load(cfg.Profile)
	if err != nil {
		return nil, fmt.Errorf("load profile %q: %w", cfg.Profile, err)
	}
	if len(ranges) == 0 && c.Logger != nil {
		c.Logger.Warn("seat.profiles.empty", "dir", c.Profiles.Dir(), "profile", cfg.Profile)
	}
	return ranges, nil
}

func (c *Container) sources() []selection.CandidateSource {
	switch c.Config.Source {
	case config.SourceOracle:
		return []selection.CandidateSource{oracle.NewSeatSource(c.Oracle)}
	case config.SourceCVOracleFallbk:
		return []selection.CandidateSource{c.CVSource, oracle.NewSeatSource(c.Oracle)}
	default:
		return []selection.CandidateSource{c.CVSource}
	}
}

func (c *Container) verifier() selection.Verifier {
	switch c.Config.Verify {
	case config.VerifyOCR:
		return verify.NewOCRVerifier(c.Config.OCRLanguages, c.Logger)
	case config.VerifyChange:
		return verify.NewChangeVerifier(c.Logger)
	case config.VerifyNone:
		return nil
	default:
		return oracle.NewVerifier(c.Oracle)
	}
}

func (c *Container) proceeder() selection.Proceeder {
	switch c.Config.Proceed {
	case config.ProceedTemplate:
		return verify.NewTemplateProceeder(ProceedTemplatePath(c.Config), c.Injector, c.Logger)
	case config.ProceedNone:
		return nil
	default:
		return oracle.NewProceeder(c.Oracle, c.Injector, c.Config.Oracle.ProceedLabel, c.Logger)
	}
}

// ProceedTemplatePath is where the proceed-button reference image lives.
func ProceedTemplatePath(cfg *config.Config) string {
	return filepath.Join(cfg.ProfileDir, "buttons", "proceed.png")
}

// ParamsFromConfig converts the detection settings.
func ParamsFromConfig(cfg *config.Config) seat.Params {
	d := cfg.Detection
	return seat.Params{
		MinArea:            d.MinArea,
		MaxArea:            d.MaxArea,
		DensityRadius:      d.DensityRadius,
		MinNeighbors:       d.MinNeighbors,
		RowTolerance:       d.RowTolerance,
		AdjacencyTolerance: d.AdjacencyTolerance,
		QualityNorm:        d.QualityNorm,
		TopK:               d.TopK,
	}
}
