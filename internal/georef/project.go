package georef

import (
	"fmt"

	"github.com/EthanOConnor/ml-georeferencer/internal/crs"
)

// DatumPolicy selects the datum for UTM conversions and CRS suggestions.
type DatumPolicy string

const (
	PolicyWGS84 DatumPolicy = "WGS84"
	PolicyNAD83 DatumPolicy = "NAD83_2011"
)

// Conversion modes for reference pixel queries.
const (
	ModeLonLat    = "lonlat"
	ModeLocal     = "local_m"
	ModeUTM       = "utm"
	ModeProjected = "projected_m"
	ModePixel     = "pixel"
)

// Projector answers coordinate queries against a resolved reference
// georeference. The zero Projector (no affine, no CRS) reports
// ConversionUnavailable for everything except raw pixel passthrough.
type Projector struct {
	Ref  *Georef
	Proj crs.Projection // nil when the reference carries no usable CRS
}

// NewProjector resolves the reference's CRS description once so pixel
// queries don't re-parse WKT.
func NewProjector(g *Georef) Projector {
	p := Projector{Ref: g}
	if g != nil && g.CRS != "" {
		if proj, err := crs.FromDescription(g.CRS); err == nil {
			p.Proj = proj
		}
	}
	return p
}

// Geodetic converts a pixel to lon/lat degrees through the reference
// affine and its CRS.
func (p Projector) Geodetic(px Vec2) (lon, lat float64, err error) {
	if p.Ref == nil {
		return 0, 0, Errorf(ConversionUnavailable, "no reference georeferencing")
	}
	if p.Proj == nil {
		return 0, 0, Errorf(ConversionUnavailable, "reference has no usable CRS")
	}
	world := p.Ref.PixelToWorld(px)
	return p.Proj.ToGeodetic(world.X, world.Y)
}

// PixelToLocalMeters projects a pixel into a local azimuthal-equidistant
// plane centered on originPx, so distances from the origin are true
// ground meters.
func (p Projector) PixelToLocalMeters(px, originPx Vec2) (Vec2, error) {
	lon, lat, err := p.Geodetic(px)
	if err != nil {
		return Vec2{}, err
	}
	lon0, lat0, err := p.Geodetic(originPx)
	if err != nil {
		return Vec2{}, err
	}
	local := crs.NewAEQD(lon0, lat0, ellipsoidOf(p.Proj))
	x, y, err := local.FromGeodetic(lon, lat)
	if err != nil {
		return Vec2{}, Errorf(ConversionUnavailable, "local projection failed: %w", err)
	}
	return Vec2{X: x, Y: y}, nil
}

// PixelToUTM converts a pixel into the UTM zone containing it, on the
// datum the policy names.
func (p Projector) PixelToUTM(px Vec2, policy DatumPolicy) (Vec2, error) {
	lon, lat, err := p.Geodetic(px)
	if err != nil {
		return Vec2{}, err
	}
	zone, north := crs.UTMZone(lon, lat)
	var utm crs.TransverseMercator
	if policy == PolicyNAD83 {
		// NAD83 covers only the northern hemisphere.
		utm = crs.NewUTM(zone, true, crs.GRS80, 0)
	} else {
		code := 32600 + zone
		if !north {
			code = 32700 + zone
		}
		utm = crs.NewUTM(zone, north, crs.WGS84, code)
	}
	x, y, err := utm.FromGeodetic(lon, lat)
	if err != nil {
		return Vec2{}, Errorf(ConversionUnavailable, "UTM projection failed: %w", err)
	}
	return Vec2{X: x, Y: y}, nil
}

// Convert dispatches a reference pixel query. center is the pixel whose
// ground position anchors the local_m plane (callers pass the image
// center).
func (p Projector) Convert(mode string, px, center Vec2, policy DatumPolicy) (Vec2, error) {
	switch mode {
	case ModeLonLat:
		lon, lat, err := p.Geodetic(px)
		if err != nil {
			return Vec2{}, err
		}
		return Vec2{X: lon, Y: lat}, nil
	case ModeLocal:
		return p.PixelToLocalMeters(px, center)
	case ModeUTM, ModeProjected:
		return p.PixelToUTM(px, policy)
	case ModePixel:
		return px, nil
	}
	return Vec2{}, Errorf(InvalidParameter, "unknown conversion mode %q", mode)
}

// MetricScaleAt estimates ground meters per pixel at a point by
// projecting the two unit pixel steps into the local plane anchored
// there.
func (p Projector) MetricScaleAt(px Vec2) (float64, error) {
	l0, err := p.PixelToLocalMeters(px, px)
	if err != nil {
		return 0, err
	}
	l1, err := p.PixelToLocalMeters(Vec2{X: px.X + 1, Y: px.Y}, px)
	if err != nil {
		return 0, err
	}
	l2, err := p.PixelToLocalMeters(Vec2{X: px.X, Y: px.Y + 1}, px)
	if err != nil {
		return 0, err
	}
	du := l1.Sub(l0).Norm()
	dv := l2.Sub(l0).Norm()
	return 0.5 * (du + dv), nil
}

// CRSSuggestion describes a projected CRS suitable for exports around
// a reference image.
type CRSSuggestion struct {
	EPSG   string `json:"epsg,omitempty"`
	Proj   string `json:"proj"`
	Name   string `json:"name"`
	Datum  string `json:"datum"`
	Zone   int    `json:"zone"`
	Notice string `json:"notice,omitempty"`
}

// SuggestOutputCRS picks the UTM zone under centerPx for the given
// datum policy. NAD83(2011) zones carry a proj string instead of an
// EPSG code.
func (p Projector) SuggestOutputCRS(centerPx Vec2, policy DatumPolicy) (CRSSuggestion, error) {
	lon, lat, err := p.Geodetic(centerPx)
	if err != nil {
		return CRSSuggestion{}, err
	}
	zone, north := crs.UTMZone(lon, lat)
	if policy == PolicyNAD83 {
		return CRSSuggestion{
			Proj:   fmt.Sprintf("+proj=utm +zone=%d +ellps=GRS80 +units=m +no_defs +type=crs", zone),
			Name:   fmt.Sprintf("NAD83(2011) / UTM zone %dN", zone),
			Datum:  "NAD83(2011)",
			Zone:   zone,
			Notice: "Using NAD83(2011) UTM (no EPSG on this system)",
		}, nil
	}
	code := 32600 + zone
	hemi := "N"
	if !north {
		code = 32700 + zone
		hemi = "S"
	}
	return CRSSuggestion{
		EPSG:  fmt.Sprintf("EPSG:%d", code),
		Proj:  fmt.Sprintf("+proj=utm +zone=%d +datum=WGS84 +units=m +no_defs +type=crs", zone),
		Name:  fmt.Sprintf("WGS84 / UTM zone %d%s", zone, hemi),
		Datum: "WGS84",
		Zone:  zone,
	}, nil
}

func ellipsoidOf(p crs.Projection) crs.Ellipsoid {
	switch t := p.(type) {
	case crs.Geographic:
		return t.Ell
	case crs.TransverseMercator:
		return t.Ell
	default:
		return crs.WGS84
	}
}
