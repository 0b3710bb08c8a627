package georef

import (
	"fmt"
	"math/rand"
	"sync"

	"github.com/EthanOConnor/ml-georeferencer/internal/crs"
	"github.com/EthanOConnor/ml-georeferencer/internal/timeutil"
	"github.com/EthanOConnor/ml-georeferencer/internal/units"
)

// Session owns the state of one georeferencing workflow: the map and
// reference image paths, the constraint list, and the reference's
// resolved georeferencing. All operations are safe for concurrent use;
// the mutex is never held across file I/O or fitting.
type Session struct {
	mu          sync.Mutex
	mapPath     string
	refPath     string
	refGeoref   *Georef
	projector   Projector
	constraints []Constraint
	nextID      uint64

	rng   *rand.Rand
	clock timeutil.Clock
}

// NewSession builds an empty session. rng feeds RANSAC solves and may
// be nil for time-seeded randomness; clock defaults to the real clock.
func NewSession(rng *rand.Rand, clock timeutil.Clock) *Session {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &Session{nextID: 1, rng: rng, clock: clock}
}

// Clock returns the session's time source, for persistence layers that
// stamp records on its behalf.
func (s *Session) Clock() timeutil.Clock { return s.clock }

// SetMapPath records the path of the image being georeferenced.
func (s *Session) SetMapPath(path string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mapPath = path
}

// MapPath returns the current map image path.
func (s *Session) MapPath() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mapPath
}

// SetReferencePath records the reference image path and re-resolves its
// georeferencing. The path is stored even when resolution finds
// nothing, so coordinate queries degrade rather than the selection
// being rejected.
func (s *Session) SetReferencePath(path string) {
	g := ResolveGeoref(path)
	p := NewProjector(g)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.refPath = path
	s.refGeoref = g
	s.projector = p
}

// ReferencePath returns the current reference image path.
func (s *Session) ReferencePath() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.refPath
}

// ReferenceGeoref returns the resolved reference georeferencing, nil
// when the reference has none. The result is shared and must not be
// mutated.
func (s *Session) ReferenceGeoref() *Georef {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.refGeoref
}

// AddConstraint stores a constraint and returns it as stored. A zero id
// is assigned the next free one; an id already in use is rejected.
// Point pairs gain cached world and local-meter coordinates of their
// destination when the reference is georeferenced.
func (s *Session) AddConstraint(c Constraint) (Constraint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := c.ConstraintID()
	if id == 0 {
		id = s.nextID
	}
	for _, existing := range s.constraints {
		if existing.ConstraintID() == id {
			return nil, Errorf(InvalidParameter, "constraint id %d already exists", id)
		}
	}
	if id >= s.nextID {
		s.nextID = id + 1
	}
	c = withConstraintID(c, id)

	if pp, ok := c.(PointPair); ok && s.refGeoref != nil {
		if pp.DstWorld == nil {
			w := s.refGeoref.PixelToWorld(pp.Dst)
			pp.DstWorld = &w
		}
		if pp.DstLocal == nil {
			if local, err := s.projector.PixelToLocalMeters(pp.Dst, Vec2{}); err == nil {
				pp.DstLocal = &local
			}
		}
		c = pp
	}

	s.constraints = append(s.constraints, c)
	return c, nil
}

// DeleteConstraint removes the constraint with the given id and reports
// whether one was removed.
func (s *Session) DeleteConstraint(id uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.constraints[:0]
	removed := false
	for _, c := range s.constraints {
		if c.ConstraintID() == id {
			removed = true
			continue
		}
		kept = append(kept, c)
	}
	s.constraints = kept
	return removed
}

// Constraints returns a snapshot of the constraint list.
func (s *Session) Constraints() []Constraint {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Constraint(nil), s.constraints...)
}

// ReplaceConstraints swaps in a full constraint list, as when loading a
// saved project. The id counter restarts above the highest id present.
func (s *Session) ReplaceConstraints(list []Constraint) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.constraints = append([]Constraint(nil), list...)
	s.nextID = 1
	for _, c := range list {
		if c.ConstraintID() >= s.nextID {
			s.nextID = c.ConstraintID() + 1
		}
	}
}

func (s *Session) snapshot() (constraints []Constraint, geo *Georef, proj Projector, refPath string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Constraint(nil), s.constraints...), s.refGeoref, s.projector, s.refPath
}

// Solve fits the named method on the current point pairs and reports
// quality metrics in the requested unit. An unrecognized unit falls
// back to pixels. mapScale is the map-scale denominator consumed by
// map-millimeter conversion; pixel-unit results carry it through
// unchanged.
func (s *Session) Solve(method, unit string, mapScale *float64) (TransformStack, QualityMetrics, error) {
	if method != MethodSimilarity && method != MethodAffine {
		return TransformStack{}, QualityMetrics{}, Errorf(UnsupportedMethod, "unknown method %s", method)
	}
	constraints, geo, _, _ := s.snapshot()

	pairs := ExtractPairs(constraints)
	if len(pairs) < 2 {
		return TransformStack{}, QualityMetrics{}, Errorf(InsufficientData,
			"need at least 2 point pairs to solve; got %d", len(pairs))
	}

	var kind TransformKind
	switch method {
	case MethodSimilarity:
		t, err := FitSimilarity(pairs)
		if err != nil {
			return TransformStack{}, QualityMetrics{}, err
		}
		kind = t
	case MethodAffine:
		t, err := FitAffine(pairs)
		if err != nil {
			return TransformStack{}, QualityMetrics{}, err
		}
		kind = t
	}

	q, err := s.finishQuality(kind, pairs, constraints, geo, unit, mapScale)
	if err != nil {
		return TransformStack{}, QualityMetrics{}, err
	}
	return TransformStack{Transforms: []TransformKind{kind}}, q, nil
}

// SolveRANSAC fits a similarity with outlier rejection using the
// session's random source, then reports quality against all pairs.
func (s *Session) SolveRANSAC(threshold float64, iterations int, unit string, mapScale *float64) (TransformStack, QualityMetrics, error) {
	constraints, geo, _, _ := s.snapshot()

	pairs := ExtractPairs(constraints)
	t, err := FitSimilarityRANSAC(pairs, threshold, iterations, s.rng)
	if err != nil {
		return TransformStack{}, QualityMetrics{}, err
	}

	q, err := s.finishQuality(t, pairs, constraints, geo, unit, mapScale)
	if err != nil {
		return TransformStack{}, QualityMetrics{}, err
	}
	return TransformStack{Transforms: []TransformKind{t}}, q, nil
}

func (s *Session) finishQuality(kind TransformKind, pairs []Pair, constraints []Constraint, geo *Georef, unit string, mapScale *float64) (QualityMetrics, error) {
	q, err := ComputeQuality(kind, pairs, constraints)
	if err != nil {
		return QualityMetrics{}, err
	}
	if SourceVariance(pairs) < lowVarianceThreshold {
		q.Warnings = append(q.Warnings, LowVarianceWarning)
	}

	target := unit
	if !units.IsValid(target) {
		target = units.Pixels
	}
	if target != units.Pixels {
		pixelSize := 1.0
		if geo != nil {
			pixelSize = geo.PixelSize()
		}
		q.ConvertUnits(target, pixelSize, mapScale)
	} else {
		q.MapScale = mapScale
	}
	return q, nil
}

// ProjString fits the named method on the current pairs and renders the
// result as a proj pipeline.
func (s *Session) ProjString(method string) (string, error) {
	constraints, _, _, _ := s.snapshot()
	return ProjString(method, ExtractPairs(constraints))
}

// ExportWorldFile fits the named method and writes base+".tfw".
func (s *Session) ExportWorldFile(base, method string) error {
	constraints, _, _, _ := s.snapshot()
	return ExportWorldFile(base, method, ExtractPairs(constraints))
}

// ExportComposed writes base+".tfw" and base+".prj" georeferencing map
// pixels in world coordinates through the reference image.
func (s *Session) ExportComposed(base, method string) error {
	constraints, geo, _, refPath := s.snapshot()
	return ExportComposed(base, method, ExtractPairs(constraints), refPath, geo)
}

// PixelTo converts a reference pixel under the given mode. local_m
// anchors its plane at the reference image center.
func (s *Session) PixelTo(mode string, px Vec2, policy DatumPolicy) (Vec2, error) {
	_, geo, proj, refPath := s.snapshot()
	if geo == nil {
		return Vec2{}, Errorf(ConversionUnavailable, "no reference georeferencing")
	}

	center := Vec2{}
	if mode == ModeLocal {
		if refPath == "" {
			return Vec2{}, Errorf(InvalidParameter, "reference path not set")
		}
		w, h, err := ImageDimensions(refPath)
		if err != nil {
			return Vec2{}, err
		}
		center = Vec2{X: float64(w) / 2, Y: float64(h) / 2}
	}
	return proj.Convert(mode, px, center, policy)
}

// MetricScaleAt reports local ground meters per pixel at a reference
// pixel.
func (s *Session) MetricScaleAt(px Vec2) (float64, error) {
	_, geo, proj, _ := s.snapshot()
	if geo == nil {
		return 0, Errorf(ConversionUnavailable, "no reference georeferencing")
	}
	return proj.MetricScaleAt(px)
}

// SuggestOutputCRS proposes a projected CRS for exports, based on the
// UTM zone under the reference image center.
func (s *Session) SuggestOutputCRS(policy DatumPolicy) (CRSSuggestion, error) {
	_, geo, proj, refPath := s.snapshot()
	if geo == nil {
		return CRSSuggestion{}, Errorf(ConversionUnavailable, "no reference georeferencing")
	}
	if refPath == "" {
		return CRSSuggestion{}, Errorf(ConversionUnavailable, "reference path not set")
	}
	w, h, err := ImageDimensions(refPath)
	if err != nil {
		return CRSSuggestion{}, err
	}
	center := Vec2{X: float64(w) / 2, Y: float64(h) / 2}
	return proj.SuggestOutputCRS(center, policy)
}

// CRSInfo describes the reference image's coordinate system for
// display.
type CRSInfo struct {
	Name string `json:"name"`
	Code string `json:"code,omitempty"`
	Proj string `json:"proj,omitempty"`
	WKT  string `json:"wkt,omitempty"`
}

// ReferenceCRS reports the reference's CRS. The name falls back to
// "Unknown" when the reference is georeferenced but carries no
// recognizable CRS text.
func (s *Session) ReferenceCRS() (CRSInfo, error) {
	_, geo, proj, _ := s.snapshot()
	if geo == nil {
		return CRSInfo{}, Errorf(ConversionUnavailable, "no reference georeferencing")
	}
	info := CRSInfo{Name: crs.Name(geo.CRS), WKT: geo.CRS}
	if proj.Proj != nil {
		if code := proj.Proj.EPSG(); code != 0 {
			info.Code = fmt.Sprintf("EPSG:%d", code)
		}
	}
	return info, nil
}

// withConstraintID returns c with its id replaced.
func withConstraintID(c Constraint, id uint64) Constraint {
	switch v := c.(type) {
	case Point:
		v.ID = id
		return v
	case PointPair:
		v.ID = id
		return v
	case Polyline:
		v.ID = id
		return v
	case Polygon:
		v.ID = id
		return v
	case AnisotropicPin:
		v.ID = id
		return v
	case Anchor:
		v.ID = id
		return v
	}
	return c
}
