package georef

// Pair is one usable (src, dst) correspondence after filtering.
type Pair struct {
	Src Vec2
	Dst Vec2
}

// degenerateDistSq is the squared src↔dst distance below which a pair
// carries no registration information.
const degenerateDistSq = 1e-24

// ExtractPairs reduces a constraint list to the correspondences the
// fitters can use. Only PointPair variants contribute. A pair is
// dropped when either coordinate is non-finite, when src and dst are
// effectively the same point, or when an earlier kept pair had exactly
// the same (src, dst). Relative order is preserved and filtering is
// silent: an empty result is valid input for the fitters, which raise
// their own insufficient-data errors.
func ExtractPairs(constraints []Constraint) []Pair {
	var pairs []Pair
	for _, c := range constraints {
		pp, ok := c.(PointPair)
		if !ok {
			continue
		}
		if !pp.Src.Finite() || !pp.Dst.Finite() {
			continue
		}
		if pp.Dst.Sub(pp.Src).NormSq() <= degenerateDistSq {
			continue
		}
		dup := false
		for _, kept := range pairs {
			if kept.Src == pp.Src && kept.Dst == pp.Dst {
				dup = true
				break
			}
		}
		if dup {
			continue
		}
		pairs = append(pairs, Pair{Src: pp.Src, Dst: pp.Dst})
	}
	return pairs
}
