package georef

import (
	"math"
	"math/rand"
	"time"
)

// FitSimilarityRANSAC fits a similarity by random sample consensus,
// tolerating gross outliers the plain least-squares fit would absorb.
//
// Each iteration samples two distinct pairs, fits a minimal model and
// counts inliers (residual strictly below threshold, in destination
// units). A new best inlier count triggers a refit over all of that
// iteration's inliers. rng drives the sampling so fits are
// reproducible; a nil rng falls back to a time-seeded source.
func FitSimilarityRANSAC(pairs []Pair, threshold float64, iterations int, rng *rand.Rand) (Similarity, error) {
	n := len(pairs)
	if n < 2 {
		return Similarity{}, Errorf(InsufficientData, "need at least 2 point pairs for a RANSAC fit; got %d", n)
	}
	if math.IsNaN(threshold) || math.IsInf(threshold, 0) || threshold <= 0 {
		return Similarity{}, Errorf(InvalidParameter, "RANSAC threshold must be finite and positive; got %v", threshold)
	}
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}

	var (
		best        Similarity
		bestInliers int
		inliers     = make([]Pair, 0, n)
	)
	for iter := 0; iter < iterations; iter++ {
		// Two distinct indices, uniform without replacement.
		i := rng.Intn(n)
		j := rng.Intn(n - 1)
		if j >= i {
			j++
		}
		model, err := FitSimilarity([]Pair{pairs[i], pairs[j]})
		if err != nil {
			continue // degenerate sample, try again
		}
		inliers = inliers[:0]
		for _, p := range pairs {
			if model.Apply(p.Src).Sub(p.Dst).Norm() < threshold {
				inliers = append(inliers, p)
			}
		}
		if len(inliers) <= bestInliers {
			continue
		}
		refit, err := FitSimilarity(inliers)
		if err != nil {
			continue
		}
		best = refit
		bestInliers = len(inliers)
	}
	if bestInliers == 0 {
		return Similarity{}, Errorf(DegenerateGeometry, "no model found")
	}
	return best, nil
}
