package georef

import (
	"math"
	"math/rand"
	"testing"
)

func TestFitSimilarityRANSACRejectsOutlier(t *testing.T) {
	t.Parallel()

	truth := Similarity{Scale: 1.5, Theta: 0.2, TX: 5, TY: -3}
	var pairs []Pair
	for i := 0; i < 20; i++ {
		src := Vec2{float64(i), float64(i) * 0.5}
		pairs = append(pairs, Pair{Src: src, Dst: truth.Apply(src)})
	}
	// One gross outlier the least-squares fit would otherwise absorb.
	pairs = append(pairs, Pair{Src: Vec2{100, 100}, Dst: Vec2{-100, -100}})

	rng := rand.New(rand.NewSource(1))
	got, err := FitSimilarityRANSAC(pairs, 1.0, 100, rng)
	if err != nil {
		t.Fatalf("FitSimilarityRANSAC: %v", err)
	}
	if !similarityClose(got, truth, 1e-2) {
		t.Errorf("fit = %+v, want %+v within 1e-2", got, truth)
	}
}

func TestFitSimilarityRANSACReproducible(t *testing.T) {
	t.Parallel()

	truth := Similarity{Scale: 0.8, Theta: -0.1, TX: 2, TY: 9}
	var pairs []Pair
	for i := 0; i < 12; i++ {
		src := Vec2{float64(i % 4), float64(i / 4)}
		pairs = append(pairs, Pair{Src: src, Dst: truth.Apply(src)})
	}
	a, err := FitSimilarityRANSAC(pairs, 0.5, 50, rand.New(rand.NewSource(42)))
	if err != nil {
		t.Fatalf("first fit: %v", err)
	}
	b, err := FitSimilarityRANSAC(pairs, 0.5, 50, rand.New(rand.NewSource(42)))
	if err != nil {
		t.Fatalf("second fit: %v", err)
	}
	if a != b {
		t.Errorf("same seed produced different fits: %+v vs %+v", a, b)
	}
}

func TestFitSimilarityRANSACParameterValidation(t *testing.T) {
	t.Parallel()

	pairs := []Pair{
		{Src: Vec2{0, 0}, Dst: Vec2{1, 1}},
		{Src: Vec2{1, 0}, Dst: Vec2{2, 1}},
	}

	cases := []struct {
		name      string
		threshold float64
	}{
		{"zero", 0},
		{"negative", -1},
		{"nan", math.NaN()},
		{"inf", math.Inf(1)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := FitSimilarityRANSAC(pairs, tc.threshold, 10, rand.New(rand.NewSource(1)))
			if !IsKind(err, InvalidParameter) {
				t.Fatalf("threshold %v: err = %v, want kind %q", tc.threshold, err, InvalidParameter)
			}
		})
	}
}

func TestFitSimilarityRANSACInsufficientData(t *testing.T) {
	t.Parallel()

	_, err := FitSimilarityRANSAC([]Pair{{Src: Vec2{0, 0}, Dst: Vec2{1, 1}}}, 1.0, 10, nil)
	if !IsKind(err, InsufficientData) {
		t.Fatalf("err = %v, want kind %q", err, InsufficientData)
	}
}

func TestFitSimilarityRANSACNoModel(t *testing.T) {
	t.Parallel()

	// Identical degenerate sources: every minimal sample fails to fit.
	pairs := []Pair{
		{Src: Vec2{1, 1}, Dst: Vec2{5, 5}},
		{Src: Vec2{1, 1}, Dst: Vec2{9, 2}},
	}
	_, err := FitSimilarityRANSAC(pairs, 1.0, 25, rand.New(rand.NewSource(7)))
	if !IsKind(err, DegenerateGeometry) {
		t.Fatalf("err = %v, want kind %q", err, DegenerateGeometry)
	}
}
