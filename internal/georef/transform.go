package georef

import (
	"encoding/json"
	"fmt"
	"math"
)

// Fit method names accepted by the solving entry points.
const (
	MethodSimilarity = "similarity"
	MethodAffine     = "affine"
)

// machEps is the double-precision machine epsilon, the degeneracy
// threshold for variance sums and determinants.
var machEps = math.Nextafter(1, 2) - 1

// TransformKind is one member of the transform union. Similarity and
// Affine are the functional kinds; Homography, TPS and FFD are schema
// placeholders that can travel through stacks and storage but cannot
// be fit or applied yet.
type TransformKind interface {
	// Variant returns the stable tag used for JSON and storage.
	Variant() string
	isTransform()
}

// Similarity is a uniform-scale rotation plus translation:
// p' = s·R(θ)·p + t.
type Similarity struct {
	Scale float64 `json:"scale"`
	Theta float64 `json:"theta"`
	TX    float64 `json:"tx"`
	TY    float64 `json:"ty"`
}

func (Similarity) Variant() string { return "similarity" }
func (Similarity) isTransform()    {}

// Apply maps p through the transform.
func (t Similarity) Apply(p Vec2) Vec2 {
	c, s := math.Cos(t.Theta), math.Sin(t.Theta)
	return Vec2{
		X: t.Scale*(c*p.X-s*p.Y) + t.TX,
		Y: t.Scale*(s*p.X+c*p.Y) + t.TY,
	}
}

// Invert returns the transform mapping outputs of t back to its inputs.
// Meaningless for Scale == 0, which no fit produces.
func (t Similarity) Invert() Similarity {
	si := 1 / t.Scale
	c, s := math.Cos(-t.Theta), math.Sin(-t.Theta)
	return Similarity{
		Scale: si,
		Theta: -t.Theta,
		TX:    -si * (c*t.TX - s*t.TY),
		TY:    -si * (s*t.TX + c*t.TY),
	}
}

// AsAffine expands the similarity into affine coefficients
// [a b; c d] = s·R(θ).
func (t Similarity) AsAffine() Affine {
	c, s := math.Cos(t.Theta), math.Sin(t.Theta)
	return Affine{
		A: t.Scale * c, B: -t.Scale * s,
		C: t.Scale * s, D: t.Scale * c,
		TX: t.TX, TY: t.TY,
	}
}

// ProjPipeline renders the transform as a PROJ pipeline string.
func (t Similarity) ProjPipeline() string { return t.AsAffine().ProjPipeline() }

// ComposeSimilarity returns the transform equivalent to applying b
// first and then a: s = sa·sb, θ = θa+θb, t = sa·R(θa)·tb + ta.
func ComposeSimilarity(a, b Similarity) Similarity {
	c, s := math.Cos(a.Theta), math.Sin(a.Theta)
	return Similarity{
		Scale: a.Scale * b.Scale,
		Theta: a.Theta + b.Theta,
		TX:    a.Scale*(c*b.TX-s*b.TY) + a.TX,
		TY:    a.Scale*(s*b.TX+c*b.TY) + a.TY,
	}
}

// Affine is a general 2×2 linear map plus translation:
// x' = a·x + b·y + tx, y' = c·x + d·y + ty.
type Affine struct {
	A  float64 `json:"a"`
	B  float64 `json:"b"`
	C  float64 `json:"c"`
	D  float64 `json:"d"`
	TX float64 `json:"tx"`
	TY float64 `json:"ty"`
}

func (Affine) Variant() string { return "affine" }
func (Affine) isTransform()    {}

// Apply maps p through the transform.
func (t Affine) Apply(p Vec2) Vec2 {
	return Vec2{
		X: t.A*p.X + t.B*p.Y + t.TX,
		Y: t.C*p.X + t.D*p.Y + t.TY,
	}
}

// Invert returns the inverse affine, or DegenerateGeometry when the
// linear part is singular.
func (t Affine) Invert() (Affine, error) {
	det := t.A*t.D - t.B*t.C
	if math.Abs(det) < machEps {
		return Affine{}, Errorf(DegenerateGeometry, "affine transform is not invertible (det=%v)", det)
	}
	ia, ib := t.D/det, -t.B/det
	ic, id := -t.C/det, t.A/det
	return Affine{
		A: ia, B: ib, C: ic, D: id,
		TX: -(ia*t.TX + ib*t.TY),
		TY: -(ic*t.TX + id*t.TY),
	}, nil
}

// ProjPipeline renders the transform as a PROJ pipeline string.
func (t Affine) ProjPipeline() string {
	return fmt.Sprintf(
		"+proj=pipeline +step +proj=affine +xoff=%v +yoff=%v +s11=%v +s12=%v +s21=%v +s22=%v",
		t.TX, t.TY, t.A, t.B, t.C, t.D)
}

// ComposeAffine returns the transform equivalent to applying a first
// and then b: M = Mb·Ma, t = Mb·ta + tb.
func ComposeAffine(a, b Affine) Affine {
	return Affine{
		A: b.A*a.A + b.B*a.C, B: b.A*a.B + b.B*a.D,
		C: b.C*a.A + b.D*a.C, D: b.C*a.B + b.D*a.D,
		TX: b.A*a.TX + b.B*a.TY + b.TX,
		TY: b.C*a.TX + b.D*a.TY + b.TY,
	}
}

// Homography is a placeholder for a projective transform.
type Homography struct {
	Params [9]float64 `json:"params"`
}

func (Homography) Variant() string { return "homography" }
func (Homography) isTransform()    {}

// TPS is a placeholder for a thin-plate-spline warp.
type TPS struct {
	ControlPoints []Vec2  `json:"control_points"`
	Lambda        float64 `json:"lambda"`
}

func (TPS) Variant() string { return "tps" }
func (TPS) isTransform()    {}

// FFD is a placeholder for a free-form-deformation lattice warp.
type FFD struct {
	ControlPoints []Vec2 `json:"control_points"`
	GridSize      [2]int `json:"grid_size"`
}

func (FFD) Variant() string { return "ffd" }
func (FFD) isTransform()    {}

// ApplyTransform maps p through a single transform. Placeholder kinds
// return UnsupportedMethod.
func ApplyTransform(k TransformKind, p Vec2) (Vec2, error) {
	switch t := k.(type) {
	case Similarity:
		return t.Apply(p), nil
	case Affine:
		return t.Apply(p), nil
	default:
		return Vec2{}, Errorf(UnsupportedMethod, "transform kind %q cannot be applied", k.Variant())
	}
}

// TransformStack is an ordered sequence of transforms applied first to
// last. The current solving path always produces single-element stacks;
// the slice form exists so stored and streamed results keep working
// when multi-stage fits arrive.
type TransformStack struct {
	Transforms []TransformKind `json:"transforms"`
}

// Apply maps p through every member in order. Fails with
// UnsupportedMethod when the stack contains a placeholder kind.
func (ts TransformStack) Apply(p Vec2) (Vec2, error) {
	q := p
	for _, k := range ts.Transforms {
		var err error
		q, err = ApplyTransform(k, q)
		if err != nil {
			return Vec2{}, err
		}
	}
	return q, nil
}

// transformEnvelope is the tagged wire form of one TransformKind.
type transformEnvelope struct {
	Kind string          `json:"kind"`
	Data json.RawMessage `json:"data"`
}

// MarshalJSON encodes the stack as a list of {kind, data} envelopes.
func (ts TransformStack) MarshalJSON() ([]byte, error) {
	envs := make([]transformEnvelope, 0, len(ts.Transforms))
	for _, k := range ts.Transforms {
		data, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		envs = append(envs, transformEnvelope{Kind: k.Variant(), Data: data})
	}
	return json.Marshal(struct {
		Transforms []transformEnvelope `json:"transforms"`
	}{envs})
}

// UnmarshalJSON decodes a list of {kind, data} envelopes.
func (ts *TransformStack) UnmarshalJSON(b []byte) error {
	var raw struct {
		Transforms []transformEnvelope `json:"transforms"`
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	ts.Transforms = ts.Transforms[:0]
	for _, env := range raw.Transforms {
		k, err := unmarshalTransform(env)
		if err != nil {
			return err
		}
		ts.Transforms = append(ts.Transforms, k)
	}
	return nil
}

func unmarshalTransform(env transformEnvelope) (TransformKind, error) {
	var (
		k   TransformKind
		err error
	)
	switch env.Kind {
	case "similarity":
		var t Similarity
		err = json.Unmarshal(env.Data, &t)
		k = t
	case "affine":
		var t Affine
		err = json.Unmarshal(env.Data, &t)
		k = t
	case "homography":
		var t Homography
		err = json.Unmarshal(env.Data, &t)
		k = t
	case "tps":
		var t TPS
		err = json.Unmarshal(env.Data, &t)
		k = t
	case "ffd":
		var t FFD
		err = json.Unmarshal(env.Data, &t)
		k = t
	default:
		return nil, Errorf(ParseFailure, "unknown transform kind %q", env.Kind)
	}
	if err != nil {
		return nil, Errorf(ParseFailure, "decode %s transform: %w", env.Kind, err)
	}
	return k, nil
}
