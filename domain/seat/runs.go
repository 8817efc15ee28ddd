package seat

import (
	"math"
	"sort"
)

// GroupRows clusters candidates by vertical position. A candidate joins the
// first row whose reference y is strictly within tol, otherwise it starts a
// new row. Rows keep creation order.
func GroupRows(cands []Candidate, tol int) []Row {
	var rows []Row
	for _, c := range cands {
		placed := false
		for i := range rows {
			if abs(c.Y-rows[i].RefY) < tol {
				rows[i].Seats = append(rows[i].Seats, c)
				placed = true
				break
			}
		}
		if !placed {
			rows = append(rows, Row{RefY: c.Y, Seats: []Candidate{c}})
		}
	}
	return rows
}

// FindRun searches every row for a window of n horizontally adjacent
// candidates (every neighbouring x gap at most adjTol) and returns the window
// with the lowest average score. cands should already be scored.
//
// When no row yields a valid window the result is Degraded and holds the
// topK candidates by score; callers detect this by comparing len(Seats) with n
// or by checking Degraded.
func FindRun(cands []Candidate, n, rowTol, adjTol, topK int) RunResult {
	if n < 1 {
		n = 1
	}
	best := RunResult{AvgScore: math.Inf(1)}
	for _, row := range GroupRows(cands, rowTol) {
		if len(row.Seats) < n {
			continue
		}
		seats := make([]Candidate, len(row.Seats))
		copy(seats, row.Seats)
		sort.SliceStable(seats, func(i, j int) bool { return seats[i].X < seats[j].X })
		for i := 0; i+n <= len(seats); i++ {
			win := seats[i : i+n]
			if !adjacent(win, adjTol) {
				continue
			}
			if avg := avgScore(win); avg < best.AvgScore {
				best.AvgScore = avg
				best.Seats = append([]Candidate(nil), win...)
			}
		}
	}
	if best.Seats != nil {
		return best
	}
	ranked := make([]Candidate, len(cands))
	copy(ranked, cands)
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].Score < ranked[j].Score })
	return RunResult{Seats: TopK(ranked, topK), AvgScore: math.NaN(), Degraded: true}
}

func adjacent(win []Candidate, tol int) bool {
	for j := 0; j+1 < len(win); j++ {
		if win[j+1].X-win[j].X > tol {
			return false
		}
	}
	return true
}

func avgScore(win []Candidate) float64 {
	var sum float64
	for _, c := range win {
		sum += c.Score
	}
	return sum / float64(len(win))
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
