package georef

import "encoding/json"

// Constraint is one user-supplied registration input. The variant set
// is closed; only PointPair participates in fitting today, the others
// are stored and round-tripped for solvers that do not exist yet.
//
// Every variant carries a process-unique id, used for lookup, deletion
// and per-constraint error attribution. Ids are unique within any one
// collection at any instant.
type Constraint interface {
	// ConstraintID returns the process-unique identifier.
	ConstraintID() uint64
	// Variant returns the stable tag used for JSON and storage.
	Variant() string
	isConstraint()
}

// Point pins a single map location with a confidence weight.
type Point struct {
	ID     uint64  `json:"id"`
	Coord  Vec2    `json:"point"`
	Weight float64 `json:"weight"`
}

func (p Point) ConstraintID() uint64 { return p.ID }
func (Point) Variant() string        { return "point" }
func (Point) isConstraint()          {}

// PointPair corresponds a map pixel (Src) with a reference pixel (Dst).
// DstWorld and DstLocal cache the reference pixel's world and local
// tangent-plane coordinates as resolved at insertion time; they stay
// nil when the reference had no usable georeferencing.
type PointPair struct {
	ID       uint64  `json:"id"`
	Src      Vec2    `json:"src"`
	Dst      Vec2    `json:"dst"`
	DstWorld *Vec2   `json:"dst_world,omitempty"`
	DstLocal *Vec2   `json:"dst_local,omitempty"`
	Weight   float64 `json:"weight"`
}

func (p PointPair) ConstraintID() uint64 { return p.ID }
func (PointPair) Variant() string        { return "point_pair" }
func (PointPair) isConstraint()          {}

// Polyline is an ordered open chain of map locations.
type Polyline struct {
	ID     uint64  `json:"id"`
	Points []Vec2  `json:"points"`
	Weight float64 `json:"weight"`
}

func (p Polyline) ConstraintID() uint64 { return p.ID }
func (Polyline) Variant() string        { return "polyline" }
func (Polyline) isConstraint()          {}

// Polygon is a closed ring of map locations.
type Polygon struct {
	ID     uint64  `json:"id"`
	Points []Vec2  `json:"points"`
	Weight float64 `json:"weight"`
}

func (p Polygon) ConstraintID() uint64 { return p.ID }
func (Polygon) Variant() string        { return "polygon" }
func (Polygon) isConstraint()          {}

// AnisotropicPin pins a location with direction-dependent confidence:
// an uncertainty ellipse with the given major/minor standard deviations,
// rotated by Angle radians.
type AnisotropicPin struct {
	ID         uint64  `json:"id"`
	Coord      Vec2    `json:"point"`
	SigmaMajor float64 `json:"sigma_major"`
	SigmaMinor float64 `json:"sigma_minor"`
	Angle      float64 `json:"angle"`
}

func (p AnisotropicPin) ConstraintID() uint64 { return p.ID }
func (AnisotropicPin) Variant() string        { return "anisotropic_pin" }
func (AnisotropicPin) isConstraint()          {}

// Anchor pins a location that must not move under editing tools.
type Anchor struct {
	ID    uint64 `json:"id"`
	Coord Vec2   `json:"point"`
}

func (a Anchor) ConstraintID() uint64 { return a.ID }
func (Anchor) Variant() string        { return "anchor" }
func (Anchor) isConstraint()          {}

// constraintEnvelope is the tagged wire form of one Constraint.
type constraintEnvelope struct {
	Kind string          `json:"kind"`
	Data json.RawMessage `json:"data"`
}

// MarshalConstraint encodes c as a {kind, data} envelope so it can be
// decoded without knowing the variant up front.
func MarshalConstraint(c Constraint) ([]byte, error) {
	data, err := json.Marshal(c)
	if err != nil {
		return nil, err
	}
	return json.Marshal(constraintEnvelope{Kind: c.Variant(), Data: data})
}

// UnmarshalConstraint decodes a {kind, data} envelope produced by
// MarshalConstraint.
func UnmarshalConstraint(b []byte) (Constraint, error) {
	var env constraintEnvelope
	if err := json.Unmarshal(b, &env); err != nil {
		return nil, Errorf(ParseFailure, "decode constraint envelope: %w", err)
	}
	var (
		c   Constraint
		err error
	)
	switch env.Kind {
	case "point":
		var v Point
		err = json.Unmarshal(env.Data, &v)
		c = v
	case "point_pair":
		var v PointPair
		err = json.Unmarshal(env.Data, &v)
		c = v
	case "polyline":
		var v Polyline
		err = json.Unmarshal(env.Data, &v)
		c = v
	case "polygon":
		var v Polygon
		err = json.Unmarshal(env.Data, &v)
		c = v
	case "anisotropic_pin":
		var v AnisotropicPin
		err = json.Unmarshal(env.Data, &v)
		c = v
	case "anchor":
		var v Anchor
		err = json.Unmarshal(env.Data, &v)
		c = v
	default:
		return nil, Errorf(ParseFailure, "unknown constraint kind %q", env.Kind)
	}
	if err != nil {
		return nil, Errorf(ParseFailure, "decode %s constraint: %w", env.Kind, err)
	}
	return c, nil
}
