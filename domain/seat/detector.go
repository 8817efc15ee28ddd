package seat

import (
	"image"
	"log/slog"
)

// Detection is the full output of one detection cycle.
type Detection struct {
	Region Region
	// Found is false when no grid region was visible.
	Found bool
	// Raw holds extracted candidates before density filtering.
	Raw []Candidate
	// Ranked holds every scored candidate, ascending score.
	Ranked []Candidate
	// Final holds the selection: a run when seatCount > 1 and one was found,
	// otherwise the top-K.
	Final []Candidate
	// Relaxed is set when the density filter fell back to the unfiltered set.
	Relaxed bool
	// Degraded is set when a run was requested but none satisfied adjacency.
	Degraded bool
	CenterX  int
	StageY   int
}

// Detector runs segmentation, extraction, density filtering, scoring and,
// for multi-seat requests, run search on a single frame.
type Detector struct {
	Params    Params
	segmenter *Segmenter
	extractor *Extractor
	logger    *slog.Logger
}

// NewDetector returns a detector using p.
func NewDetector(p Params, logger *slog.Logger) *Detector {
	return &Detector{
		Params:    p,
		segmenter: NewSegmenter(logger),
		extractor: NewExtractor(p.MinArea, p.MaxArea, logger),
		logger:    logger,
	}
}

// Detect analyses frame with the given color ranges. Missing data yields an
// empty Detection; only invalid geometry returns an error.
func (d *Detector) Detect(frame image.Image, ranges []ColorRange, seatCount int) (Detection, error) {
	hsv, err := toHSV(frame)
	if err != nil {
		return Detection{}, err
	}
	defer hsv.Close()

	region, ok, err := d.segmenter.segmentHSV(hsv, ranges)
	if err != nil || !ok {
		return Detection{}, err
	}
	det := Detection{Region: region, Found: true}
	det.Raw = d.extractor.extractHSV(hsv, region, ranges)
	if len(det.Raw) == 0 {
		return det, nil
	}
	filtered, relaxed := DensityFilter(det.Raw, d.Params.DensityRadius, d.Params.MinNeighbors)
	det.Relaxed = relaxed
	if relaxed && d.logger != nil {
		d.logger.Info("seat.density.relaxed", "candidates", len(det.Raw))
	}
	det.CenterX, det.StageY = Reference(filtered)
	det.Ranked = Score(filtered, d.Params.QualityNorm)
	det.Final, det.Degraded = Select(det.Ranked, seatCount, d.Params)
	if d.logger != nil {
		d.logger.Debug("seat.detect",
			"raw", len(det.Raw),
			"filtered", len(filtered),
			"center_x", det.CenterX,
			"stage_y", det.StageY,
			"final", len(det.Final),
			"degraded", det.Degraded,
		)
	}
	return det, nil
}

// Select picks the final candidates from a ranked list: the best consecutive
// run for multi-seat requests with enough candidates, else the top-K.
func Select(ranked []Candidate, seatCount int, p Params) (final []Candidate, degraded bool) {
	if seatCount > 1 && len(ranked) >= seatCount {
		run := FindRun(ranked, seatCount, p.RowTolerance, p.AdjacencyTolerance, p.TopK)
		return run.Seats, run.Degraded
	}
	return TopK(ranked, p.TopK), false
}
