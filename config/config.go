package config

import (
	"encoding/json"
	"image"
	"os"
	"time"
)

// Candidate source modes.
const (
	SourceCV             = "cv"
	SourceOracle         = "oracle"
	SourceCVOracleFallbk = "cv+oracle"
)

// Verifier modes.
const (
	VerifyOracle = "oracle"
	VerifyOCR    = "ocr"
	VerifyChange = "change"
	VerifyNone   = "none"
)

// Proceed modes.
const (
	ProceedOracle   = "oracle"
	ProceedTemplate = "template"
	ProceedNone     = "none"
)

// AllProfiles selects the union of every stored swatch.
const AllProfiles = "All Colors"

// Detection groups the tunable seat-detection thresholds. They are calibrated
// per seat-map skin.
type Detection struct {
	MinArea            float64 `json:"min_area"`
	MaxArea            float64 `json:"max_area"`
	DensityRadius      float64 `json:"density_radius"`
	MinNeighbors       int     `json:"min_neighbors"`
	RowTolerance       int     `json:"row_tolerance"`
	AdjacencyTolerance int     `json:"adjacency_tolerance"`
	QualityNorm        float64 `json:"quality_norm"`
	TopK               int     `json:"top_k"`
}

// Oracle configures the optional vision-model service.
type Oracle struct {
	Provider     string `json:"provider"` // lmstudio | groq
	URL          string `json:"url"`
	Model        string `json:"model"`
	APIKey       string `json:"api_key"`
	TimeoutSec   int    `json:"timeout_sec"`
	MaxImageSide int    `json:"max_image_side"`
	ProceedLabel string `json:"proceed_label"`
}

// Config holds runtime configuration for detection and selection behavior.
// Fields may be loaded from a JSON file and overridden by command-line flags.
type Config struct {
	Debug bool `json:"debug"`

	Detection Detection `json:"detection"`

	// Selection budgets
	SeatCount       int  `json:"seat_count"`
	MaxRounds       int  `json:"max_rounds"`
	MaxZoomAttempts int  `json:"max_zoom_attempts"`
	AutoZoom        bool `json:"auto_zoom"`
	ZoomClicks      int  `json:"zoom_clicks"`

	// Delays in milliseconds
	ClickSettleMs   int `json:"click_settle_ms"`
	ConfirmSettleMs int `json:"confirm_settle_ms"`
	SeatClickGapMs  int `json:"seat_click_gap_ms"`
	ZoomSettleMs    int `json:"zoom_settle_ms"`
	RetryPauseMs    int `json:"retry_pause_ms"`
	RoundPauseMs    int `json:"round_pause_ms"`

	// Monitor region of interest
	MonitorX int `json:"monitor_x"`
	MonitorY int `json:"monitor_y"`
	MonitorW int `json:"monitor_w"`
	MonitorH int `json:"monitor_h"`

	ProfileDir string `json:"profile_dir"`
	Profile    string `json:"profile"`

	Source  string `json:"source"`
	Verify  string `json:"verify"`
	Proceed string `json:"proceed"`
	Oracle  Oracle `json:"oracle"`

	OCRLanguages []string `json:"ocr_languages"`
	WindowTitle  string   `json:"window_title"`

	DebugDir    string `json:"debug_dir"`
	JournalPath string `json:"journal_path"`
	Listen      string `json:"listen"`
}

// DefaultConfig returns a Config populated with standard defaults.
func DefaultConfig() *Config {
	return &Config{
		Debug: false,
		Detection: Detection{
			MinArea:            30,
			MaxArea:            500,
			DensityRadius:      30,
			MinNeighbors:       3,
			RowTolerance:       10,
			AdjacencyTolerance: 15,
			QualityNorm:        500,
			TopK:               5,
		},
		SeatCount:       1,
		MaxRounds:       5,
		MaxZoomAttempts: 3,
		AutoZoom:        true,
		ZoomClicks:      3,
		ClickSettleMs:   500,
		ConfirmSettleMs: 300,
		SeatClickGapMs:  300,
		ZoomSettleMs:    500,
		RetryPauseMs:    1000,
		RoundPauseMs:    500,
		MonitorX:        0,
		MonitorY:        0,
		MonitorW:        1920,
		MonitorH:        1080,
		ProfileDir:      "seat_colors",
		Profile:         AllProfiles,
		Source:          SourceCV,
		Verify:          VerifyOracle,
		Proceed:         ProceedOracle,
		Oracle: Oracle{
			Provider:     "lmstudio",
			URL:          "http://localhost:12345/v1/chat/completions",
			Model:        "local-model",
			TimeoutSec:   30,
			MaxImageSide: 1280,
			ProceedLabel: "좌석선택완료",
		},
		OCRLanguages: []string{"kor", "eng"},
		DebugDir:     "temp",
		JournalPath:  "seatbot.db",
	}
}

// Validate clamps/normalizes values to safe ranges.
func (c *Config) Validate() error {
	d := &c.Detection
	if d.MinArea <= 0 {
		d.MinArea = 30
	}
	if d.MaxArea <= 0 || d.MaxArea < d.MinArea {
		d.MaxArea = d.MinArea + 470
	}
	if d.DensityRadius <= 0 {
		d.DensityRadius = 30
	}
	if d.MinNeighbors < 0 {
		d.MinNeighbors = 3
	}
	if d.RowTolerance <= 0 {
		d.RowTolerance = 10
	}
	if d.AdjacencyTolerance <= 0 {
		d.AdjacencyTolerance = 15
	}
	if d.QualityNorm <= 0 {
		d.QualityNorm = 500
	}
	if d.TopK <= 0 {
		d.TopK = 5
	}
	if c.SeatCount < 1 {
		c.SeatCount = 1
	}
	if c.MaxRounds <= 0 {
		c.MaxRounds = 5
	}
	if c.MaxZoomAttempts < 0 {
		c.MaxZoomAttempts = 3
	}
	if c.ZoomClicks == 0 {
		c.ZoomClicks = 3
	}
	for _, ms := range []*int{&c.ClickSettleMs, &c.ConfirmSettleMs, &c.SeatClickGapMs, &c.ZoomSettleMs, &c.RetryPauseMs, &c.RoundPauseMs} {
		if *ms < 0 {
			*ms = 0
		}
	}
	if c.MonitorW <= 0 || c.MonitorH <= 0 {
		c.MonitorW, c.MonitorH = 1920, 1080
	}
	if c.ProfileDir == "" {
		c.ProfileDir = "seat_colors"
	}
	if c.Profile == "" {
		c.Profile = AllProfiles
	}
	switch c.Source {
	case SourceCV, SourceOracle, SourceCVOracleFallbk:
	default:
		c.Source = SourceCV
	}
	switch c.Verify {
	case VerifyOracle, VerifyOCR, VerifyChange, VerifyNone:
	default:
		c.Verify = VerifyOracle
	}
	switch c.Proceed {
	case ProceedOracle, ProceedTemplate, ProceedNone:
	default:
		c.Proceed = ProceedOracle
	}
	if c.Oracle.TimeoutSec <= 0 {
		c.Oracle.TimeoutSec = 30
	}
	if c.Oracle.MaxImageSide < 0 {
		c.Oracle.MaxImageSide = 0
	}
	if len(c.OCRLanguages) == 0 {
		c.OCRLanguages = []string{"kor", "eng"}
	}
	if c.DebugDir == "" {
		c.DebugDir = "temp"
	}
	return nil
}

// Monitor returns the capture rectangle in absolute screen coordinates.
func (c *Config) Monitor() image.Rectangle {
	return image.Rect(c.MonitorX, c.MonitorY, c.MonitorX+c.MonitorW, c.MonitorY+c.MonitorH)
}

// Ms converts a millisecond field into a duration.
func Ms(v int) time.Duration { return time.Duration(v) * time.Millisecond }

// Clone returns a deep copy, suitable as an immutable per-run snapshot.
func (c *Config) Clone() *Config {
	if c == nil {
		return DefaultConfig()
	}
	out := *c
	out.OCRLanguages = append([]string(nil), c.OCRLanguages...)
	return &out
}

// Load attempts to read configuration from the given JSON file path. If the file does not
// exist it returns DefaultConfig(). On JSON error it returns defaults with the error.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, err
	}
	defer f.Close()
	dec := json.NewDecoder(f)
	if err := dec.Decode(cfg); err != nil {
		return DefaultConfig(), err
	}
	_ = cfg.Validate()
	return cfg, nil
}

// Save writes the configuration to the given path in JSON format.
func (c *Config) Save(path string) error {
	_ = c.Validate()
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(c)
}
