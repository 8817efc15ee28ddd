package seat

import (
	"errors"
	"fmt"
	"image"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/lucasb-eyer/go-colorful"
	"gocv.io/x/gocv"
)

// AllProfiles selects every stored swatch.
const AllProfiles = "All Colors"

// swatchPatch is the side of the central sampling window.
const swatchPatch = 10

// Tolerance bands around a swatch mean.
const (
	hueTol = 10
	satTol = 40
	valTol = 50
	svMin  = 30
)

var swatchExts = []string{".png", ".jpg", ".jpeg", ".bmp"}

// Profile is one reference swatch with its derived range.
type Profile struct {
	Name  string     `json:"name"`
	Path  string     `json:"path"`
	Mean  [3]float64 `json:"mean_hsv"`
	Hex   string     `json:"hex"`
	Range ColorRange `json:"range"`
}

// ProfileStore loads color ranges from a directory of reference swatch images.
// The file stem is the profile name.
type ProfileStore struct {
	dir    string
	logger *slog.Logger
}

// NewProfileStore returns a store backed by dir.
func NewProfileStore(dir string, logger *slog.Logger) *ProfileStore {
	return &ProfileStore{dir: dir, logger: logger}
}

// Dir returns the backing directory.
func (s *ProfileStore) Dir() string { return s.dir }

// Load returns one ColorRange per matching swatch. selector is AllProfiles or
// a profile name. A missing directory is created and yields an empty list,
// which callers treat as "use the default color heuristic".
func (s *ProfileStore) Load(selector string) ([]ColorRange, error) {
	profiles, err := s.Profiles(selector)
	if err != nil {
		return nil, err
	}
	out := make([]ColorRange, 0, len(profiles))
	for _, p := range profiles {
		out = append(out, p.Range)
	}
	return out, nil
}

// Profiles is Load with swatch metadata attached.
func (s *ProfileStore) Profiles(selector string) ([]Profile, error) {
	if err := s.ensureDir(); err != nil {
		return nil, err
	}
	files := s.files(selector)
	if s.logger != nil {
		s.logger.Debug("seat.profiles.load", "selector", selector, "files", len(files))
	}
	out := make([]Profile, 0, len(files))
	for _, f := range files {
		p, err := LoadSwatch(f)
		if err != nil {
			if s.logger != nil {
				s.logger.Warn("seat.profiles.skip", "file", f, "error", err)
			}
			continue
		}
		if s.logger != nil {
			s.logger.Debug("seat.profiles.loaded", "name", p.Name, "hex", p.Hex, "range", p.Range.String())
		}
		out = append(out, p)
	}
	return out, nil
}

// Names lists available profile names, sorted.
func (s *ProfileStore) Names() ([]string, error) {
	if err := s.ensureDir(); err != nil {
		return nil, err
	}
	var names []string
	for _, f := range s.files(AllProfiles) {
		names = append(names, profileName(f))
	}
	return names, nil
}

func (s *ProfileStore) ensureDir() error {
	if s.dir == "" {
		return errors.New("seat: empty profile directory")
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("seat: create profile dir: %w", err)
	}
	return nil
}

func (s *ProfileStore) files(selector string) []string {
	if selector == AllProfiles || selector == "" {
		entries, err := os.ReadDir(s.dir)
		if err != nil {
			return nil
		}
		var files []string
		for _, e := range entries {
			if e.IsDir() || !isSwatchExt(filepath.Ext(e.Name())) {
				continue
			}
			files = append(files, filepath.Join(s.dir, e.Name()))
		}
		sort.Strings(files)
		return files
	}
	for _, ext := range swatchExts {
		path := filepath.Join(s.dir, selector+ext)
		if _, err := os.Stat(path); err == nil {
			return []string{path}
		}
	}
	return nil
}

func isSwatchExt(ext string) bool {
	ext = strings.ToLower(ext)
	for _, e := range swatchExts {
		if e == ext {
			return true
		}
	}
	return false
}

func profileName(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// LoadSwatch decodes one reference image and derives its color range from the
// mean HSV of the central patch.
func LoadSwatch(path string) (Profile, error) {
	img, err := imaging.Open(path)
	if err != nil {
		return Profile{}, fmt.Errorf("open swatch: %w", err)
	}
	h, sat, v, err := SwatchMean(img)
	if err != nil {
		return Profile{}, err
	}
	name := profileName(path)
	return Profile{
		Name:  name,
		Path:  path,
		Mean:  [3]float64{h, sat, v},
		Hex:   colorful.Hsv(h*2, sat/255, v/255).Clamped().Hex(),
		Range: RangeFromMean(name, h, sat, v),
	}, nil
}

// SwatchMean returns the mean HSV of the central patch of img. When the image
// is smaller than the patch the whole image is sampled.
func SwatchMean(img image.Image) (h, s, v float64, err error) {
	if err := checkFrame(img); err != nil {
		return 0, 0, 0, err
	}
	patch := imaging.CropCenter(img, swatchPatch, swatchPatch)
	if patch.Bounds().Empty() {
		patch = imaging.Clone(img)
	}
	bgr, err := gocv.ImageToMatRGB(patch)
	if err != nil {
		return 0, 0, 0, fmt.Errorf("swatch to mat: %w", err)
	}
	defer bgr.Close()
	hsv := gocv.NewMat()
	defer hsv.Close()
	gocv.CvtColor(bgr, &hsv, gocv.ColorBGRToHSV)
	mean := hsv.Mean()
	return mean.Val1, mean.Val2, mean.Val3, nil
}

// RangeFromMean widens a mean HSV into a clamped ColorRange: hue ±10 within
// [0,180], saturation ±40 and value ±50 within [30,255].
func RangeFromMean(name string, h, s, v float64) ColorRange {
	return ColorRange{
		Name: name,
		Lower: HSV{
			H: clampBound(math.Ceil(h-hueTol), 0, 180),
			S: clampBound(math.Ceil(s-satTol), svMin, 255),
			V: clampBound(math.Ceil(v-valTol), svMin, 255),
		},
		Upper: HSV{
			H: clampBound(math.Floor(h+hueTol), 0, 180),
			S: clampBound(math.Floor(s+satTol), svMin, 255),
			V: clampBound(math.Floor(v+valTol), svMin, 255),
		},
	}
}

func clampBound(x, lo, hi float64) uint8 {
	if math.IsNaN(x) || x < lo {
		return uint8(lo)
	}
	if x > hi {
		return uint8(hi)
	}
	return uint8(x)
}
