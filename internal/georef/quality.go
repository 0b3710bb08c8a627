package georef

import (
	"math"
	"sort"

	"github.com/EthanOConnor/ml-georeferencer/internal/units"
)

// lowVarianceThreshold is the pooled source variance (mean squared
// deviation from the centroid, both axes summed) below which a solve
// is flagged as unstable.
const lowVarianceThreshold = 1e-6

// LowVarianceWarning is attached to solve results whose source points
// are pooled too tightly to constrain the fit.
const LowVarianceWarning = "Low variance in source points; results may be unstable"

// ResidualByID attributes a residual to the constraint it came from.
type ResidualByID struct {
	ID       uint64  `json:"id"`
	Residual float64 `json:"residual"`
}

// QualityMetrics summarizes the error of one solve. All numeric fields
// are expressed in Unit; a record is created fresh per solve and
// mutated only by ConvertUnits.
type QualityMetrics struct {
	RMSE          float64        `json:"rmse"`
	P90Error      float64        `json:"p90_error"`
	Residuals     []float64      `json:"residuals"`
	ResidualsByID []ResidualByID `json:"residuals_by_id"`
	Warnings      []string       `json:"warnings"`
	Unit          string         `json:"unit"`
	MapScale      *float64       `json:"map_scale,omitempty"`
}

// SourceVariance is the pooled variance of the pair source points:
// mean squared deviation from the centroid, summed over both axes.
func SourceVariance(pairs []Pair) float64 {
	n := len(pairs)
	if n == 0 {
		return 0
	}
	var c Vec2
	for _, p := range pairs {
		c = c.Add(p.Src)
	}
	c = c.Scale(1 / float64(n))
	var sum float64
	for _, p := range pairs {
		sum += p.Src.Sub(c).NormSq()
	}
	return sum / float64(n)
}

// ComputeQuality evaluates t against the filtered pairs (ordered
// residuals, RMSE, nearest-rank p90) and against every raw PointPair
// constraint (per-id attribution, including pairs the filter dropped).
// Metrics start in pixels; use ConvertUnits for other units.
func ComputeQuality(t TransformKind, pairs []Pair, constraints []Constraint) (QualityMetrics, error) {
	q := QualityMetrics{Unit: units.Pixels}

	var sumSq float64
	for _, p := range pairs {
		mapped, err := ApplyTransform(t, p.Src)
		if err != nil {
			return QualityMetrics{}, err
		}
		r := mapped.Sub(p.Dst).Norm()
		q.Residuals = append(q.Residuals, r)
		sumSq += r * r
	}
	if n := len(q.Residuals); n > 0 {
		q.RMSE = math.Sqrt(sumSq / float64(n))
		sorted := append([]float64(nil), q.Residuals...)
		sort.Float64s(sorted)
		idx := int(math.Floor(float64(n) * 0.9))
		if idx >= n {
			idx = n - 1
		}
		q.P90Error = sorted[idx]
	}

	for _, c := range constraints {
		pp, ok := c.(PointPair)
		if !ok {
			continue
		}
		mapped, err := ApplyTransform(t, pp.Src)
		if err != nil {
			return QualityMetrics{}, err
		}
		q.ResidualsByID = append(q.ResidualsByID, ResidualByID{
			ID:       pp.ID,
			Residual: mapped.Sub(pp.Dst).Norm(),
		})
	}
	return q, nil
}

// ConvertUnits rewrites every numeric field in place from the current
// Unit into target. pixelSize is the ground meters-per-pixel of the
// reference image; mapScale is the map-scale denominator (10000 for
// 1:10000) and is only consulted for MapMillimeters conversions. A
// missing mapScale leaves the numbers untouched (factor 1) while the
// unit tag still updates. The scale denominator is recorded on the
// metrics only when the target unit is MapMillimeters.
func (q *QualityMetrics) ConvertUnits(target string, pixelSize float64, mapScale *float64) {
	scale := 0.0
	if mapScale != nil {
		scale = *mapScale
	}
	factor := units.ConversionFactor(q.Unit, target, pixelSize, scale)
	q.RMSE *= factor
	q.P90Error *= factor
	for i := range q.Residuals {
		q.Residuals[i] *= factor
	}
	for i := range q.ResidualsByID {
		q.ResidualsByID[i].Residual *= factor
	}
	q.Unit = target
	if target == units.MapMM {
		q.MapScale = mapScale
	}
}
