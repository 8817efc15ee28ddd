package seat

// DensityFilter keeps candidates with at least minNeighbors other candidates
// strictly closer than radius. Grid markers are tightly packed while legend
// swatches sit alone, so sparse points are dropped.
//
// When the filter would remove every candidate it returns the input unchanged
// and relaxed=true: with only a handful of seats left their mutual density
// naturally falls below the threshold.
func DensityFilter(cands []Candidate, radius float64, minNeighbors int) (kept []Candidate, relaxed bool) {
	if len(cands) == 0 {
		return cands, false
	}
	r2 := radius * radius
	for i, c := range cands {
		n := 0
		for j, o := range cands {
			if i == j {
				continue
			}
			dx, dy := float64(c.X-o.X), float64(c.Y-o.Y)
			if dx*dx+dy*dy < r2 {
				n++
			}
		}
		if n >= minNeighbors {
			kept = append(kept, c)
		}
	}
	if len(kept) == 0 {
		return cands, true
	}
	return kept, false
}
