package seat

import (
	"math"
	"sort"
)

// Score weights: stage proximity counts twice as much as centrality.
const (
	stageWeight  = 2.0
	centerWeight = 1.0
)

// Reference derives the dynamic reference point from the candidates
// themselves: centerX is the midpoint of the x range, stageY the topmost row
// (the stage renders above the grid).
func Reference(cands []Candidate) (centerX, stageY int) {
	if len(cands) == 0 {
		return 0, 0
	}
	minX, maxX, minY := cands[0].X, cands[0].X, cands[0].Y
	for _, c := range cands[1:] {
		minX = min(minX, c.X)
		maxX = max(maxX, c.X)
		minY = min(minY, c.Y)
	}
	return floorDiv(minX+maxX, 2), minY
}

// ScoreOf returns the raw score of a point against a reference. Lower is better.
func ScoreOf(x, y, centerX, stageY int) float64 {
	return stageWeight*float64(y-stageY) + centerWeight*math.Abs(float64(x-centerX))
}

// QualityOf maps a score onto the 0..100 display index.
func QualityOf(score, norm float64) int {
	if norm <= 0 {
		norm = 500
	}
	q := 100 - int(math.Round(score/norm*100))
	return max(0, min(100, q))
}

// Score populates Score and Quality and returns a copy sorted by ascending
// score. Ties keep input order.
func Score(cands []Candidate, qualityNorm float64) []Candidate {
	out := make([]Candidate, len(cands))
	copy(out, cands)
	if len(out) == 0 {
		return out
	}
	cx, sy := Reference(out)
	for i := range out {
		out[i].Score = ScoreOf(out[i].X, out[i].Y, cx, sy)
		out[i].Quality = QualityOf(out[i].Score, qualityNorm)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score < out[j].Score })
	return out
}

// TopK returns at most k leading candidates.
func TopK(cands []Candidate, k int) []Candidate {
	if k < 0 || k >= len(cands) {
		return cands
	}
	return cands[:k]
}

func floorDiv(a, b int) int {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}
