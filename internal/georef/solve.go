package georef

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// svdRelTol is the relative singular-value cutoff for the affine fit:
// values below svdRelTol·σmax count as zero when ranking the system.
const svdRelTol = 1e-6

// FitSimilarity estimates the least-squares similarity mapping the
// source points onto the destination points (Procrustes/Umeyama,
// reflections excluded). Deterministic for a fixed pair order.
func FitSimilarity(pairs []Pair) (Similarity, error) {
	n := len(pairs)
	if n < 2 {
		return Similarity{}, Errorf(InsufficientData, "need at least 2 point pairs to fit a similarity; got %d", n)
	}
	var srcC, dstC Vec2
	for _, p := range pairs {
		srcC = srcC.Add(p.Src)
		dstC = dstC.Add(p.Dst)
	}
	srcC = srcC.Scale(1 / float64(n))
	dstC = dstC.Scale(1 / float64(n))

	// Cross-covariance C = Σ (dst−dst̄)(src−src̄)ᵗ and source spread.
	var c00, c01, c10, c11, srcVar float64
	for _, p := range pairs {
		s := p.Src.Sub(srcC)
		d := p.Dst.Sub(dstC)
		c00 += d.X * s.X
		c01 += d.X * s.Y
		c10 += d.Y * s.X
		c11 += d.Y * s.Y
		srcVar += s.NormSq()
	}
	if math.IsNaN(srcVar) || math.IsInf(srcVar, 0) || srcVar <= machEps {
		return Similarity{}, Errorf(DegenerateGeometry, "source points have near-zero variance")
	}

	cov := mat.NewDense(2, 2, []float64{c00, c01, c10, c11})
	var svd mat.SVD
	if !svd.Factorize(cov, mat.SVDFull) {
		return Similarity{}, Errorf(DegenerateGeometry, "SVD of cross-covariance did not converge")
	}
	var u, v mat.Dense
	svd.UTo(&u)
	svd.VTo(&v)

	// R = U·Vᵗ forced into SO(2): a negative determinant means the best
	// orthogonal map is a reflection, so flip U's second column.
	r00, r01, r10, r11 := rotationFromUV(&u, &v)
	if r00*r11-r01*r10 < 0 {
		u.Set(0, 1, -u.At(0, 1))
		u.Set(1, 1, -u.At(1, 1))
		r00, r01, r10, r11 = rotationFromUV(&u, &v)
	}

	// Scale is the Frobenius inner product trace(Cᵗ·R) over the spread.
	scale := (c00*r00 + c01*r01 + c10*r10 + c11*r11) / srcVar
	return Similarity{
		Scale: scale,
		Theta: math.Atan2(r10, r00),
		TX:    dstC.X - scale*(r00*srcC.X+r01*srcC.Y),
		TY:    dstC.Y - scale*(r10*srcC.X+r11*srcC.Y),
	}, nil
}

// rotationFromUV multiplies out R = U·Vᵗ for 2×2 factors.
func rotationFromUV(u, v *mat.Dense) (r00, r01, r10, r11 float64) {
	r00 = u.At(0, 0)*v.At(0, 0) + u.At(0, 1)*v.At(0, 1)
	r01 = u.At(0, 0)*v.At(1, 0) + u.At(0, 1)*v.At(1, 1)
	r10 = u.At(1, 0)*v.At(0, 0) + u.At(1, 1)*v.At(0, 1)
	r11 = u.At(1, 0)*v.At(1, 0) + u.At(1, 1)*v.At(1, 1)
	return
}

// FitAffine estimates the least-squares affine mapping the source
// points onto the destination points. Collinear sources leave the
// 2n×6 system rank deficient, which is reported as DegenerateGeometry
// rather than silently returning an unstable solution.
func FitAffine(pairs []Pair) (Affine, error) {
	n := len(pairs)
	if n < 3 {
		return Affine{}, Errorf(InsufficientData, "need at least 3 point pairs to fit an affine transform; got %d", n)
	}

	// Rows interleave the x' and y' equations for params [a b c d tx ty].
	design := mat.NewDense(2*n, 6, nil)
	rhs := make([]float64, 2*n)
	for i, p := range pairs {
		design.Set(2*i, 0, p.Src.X)
		design.Set(2*i, 1, p.Src.Y)
		design.Set(2*i, 4, 1)
		rhs[2*i] = p.Dst.X

		design.Set(2*i+1, 2, p.Src.X)
		design.Set(2*i+1, 3, p.Src.Y)
		design.Set(2*i+1, 5, 1)
		rhs[2*i+1] = p.Dst.Y
	}

	var svd mat.SVD
	if !svd.Factorize(design, mat.SVDThin) {
		return Affine{}, Errorf(DegenerateGeometry, "SVD of design matrix did not converge")
	}
	vals := svd.Values(nil)
	tol := svdRelTol * vals[0]
	rank := 0
	for _, s := range vals {
		if s > tol {
			rank++
		}
	}
	if rank < 6 {
		return Affine{}, Errorf(DegenerateGeometry, "affine system is rank deficient (rank %d of 6)", rank)
	}

	var u, v mat.Dense
	svd.UTo(&u)
	svd.VTo(&v)

	// Back-substitute through the pseudo-inverse: x = V·Σ⁻¹·Uᵗ·rhs.
	var x [6]float64
	for j := 0; j < 6; j++ {
		var ub float64
		for i := 0; i < 2*n; i++ {
			ub += u.At(i, j) * rhs[i]
		}
		ub /= vals[j]
		for k := 0; k < 6; k++ {
			x[k] += ub * v.At(k, j)
		}
	}
	return Affine{A: x[0], B: x[1], C: x[2], D: x[3], TX: x[4], TY: x[5]}, nil
}
