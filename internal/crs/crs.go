// Package crs implements the closed set of coordinate reference
// systems the georeferencer needs: geodetic WGS84/NAD83, spherical web
// mercator, UTM on both datums, and ad-hoc local azimuthal-equidistant
// planes. It is deliberately not a general projection library; the
// supported set covers what reference imagery in the wild actually
// carries, with round-trip accuracy well under the residuals being
// reported through it.
package crs

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Ellipsoid holds the defining constants of a reference ellipsoid.
type Ellipsoid struct {
	Name string
	A    float64 // semi-major axis, meters
	InvF float64 // inverse flattening
}

// E2 returns the squared first eccentricity e².
func (e Ellipsoid) E2() float64 {
	f := 1 / e.InvF
	return f * (2 - f)
}

var (
	// WGS84 is the GPS ellipsoid.
	WGS84 = Ellipsoid{Name: "WGS 84", A: 6378137, InvF: 298.257223563}
	// GRS80 underlies the NAD83 family.
	GRS80 = Ellipsoid{Name: "GRS 1980", A: 6378137, InvF: 298.257222101}
)

// Projection converts between projected coordinates and geodetic
// longitude/latitude in degrees. Geographic systems are modelled as
// the identity projection so callers can treat every CRS uniformly.
type Projection interface {
	// ToGeodetic converts projected (x, y) to lon/lat degrees.
	ToGeodetic(x, y float64) (lon, lat float64, err error)
	// FromGeodetic converts lon/lat degrees to projected (x, y).
	FromGeodetic(lon, lat float64) (x, y float64, err error)
	// EPSG returns the EPSG code, or 0 for ad-hoc projections.
	EPSG() int
}

// Geographic is a lon/lat system in degrees; projection is identity.
type Geographic struct {
	Code int
	Ell  Ellipsoid
}

func (g Geographic) ToGeodetic(x, y float64) (lon, lat float64, err error) {
	if y < -90 || y > 90 {
		return 0, 0, fmt.Errorf("latitude %v out of range", y)
	}
	return x, y, nil
}

func (g Geographic) FromGeodetic(lon, lat float64) (x, y float64, err error) {
	if lat < -90 || lat > 90 {
		return 0, 0, fmt.Errorf("latitude %v out of range", lat)
	}
	return lon, lat, nil
}

func (g Geographic) EPSG() int { return g.Code }

// ForEPSG returns the projection for a supported EPSG code.
func ForEPSG(code int) (Projection, error) {
	switch {
	case code == 4326:
		return Geographic{Code: 4326, Ell: WGS84}, nil
	case code == 4269:
		return Geographic{Code: 4269, Ell: GRS80}, nil
	case code == 3857 || code == 900913:
		return WebMercator{}, nil
	case code >= 32601 && code <= 32660:
		return NewUTM(code-32600, true, WGS84, code), nil
	case code >= 32701 && code <= 32760:
		return NewUTM(code-32700, false, WGS84, code), nil
	case code >= 26901 && code <= 26923:
		// NAD83 / UTM zones 1N..23N.
		return NewUTM(code-26900, true, GRS80, code), nil
	}
	return nil, fmt.Errorf("unsupported EPSG code %d", code)
}

var (
	authorityRe = regexp.MustCompile(`AUTHORITY\[\s*"EPSG"\s*,\s*"?(\d+)"?\s*\]`)
	utmNameRe   = regexp.MustCompile(`UTM [Zz]one (\d{1,2})\s*([NS])`)
	quotedRe    = regexp.MustCompile(`"([^"]*)"`)
)

// FromDescription resolves a CRS description as stored on a reference
// image: a bare "EPSG:n" identifier, or WKT. WKT resolution prefers an
// explicit EPSG authority (the last one names the whole CRS), then a
// recognizable "UTM zone NN{N,S}" name, then the well-known geographic
// datums.
func FromDescription(desc string) (Projection, error) {
	desc = strings.TrimSpace(desc)
	if desc == "" {
		return nil, fmt.Errorf("empty CRS description")
	}

	if code, ok := parseEPSGIdentifier(desc); ok {
		return ForEPSG(code)
	}

	if m := authorityRe.FindAllStringSubmatch(desc, -1); len(m) > 0 {
		code, err := strconv.Atoi(m[len(m)-1][1])
		if err == nil {
			if p, err := ForEPSG(code); err == nil {
				return p, nil
			}
		}
	}

	if m := utmNameRe.FindStringSubmatch(desc); m != nil {
		zone, _ := strconv.Atoi(m[1])
		if zone >= 1 && zone <= 60 {
			north := m[2] == "N"
			if strings.Contains(desc, "NAD83") || strings.Contains(desc, "NAD_1983") {
				return NewUTM(zone, north, GRS80, 0), nil
			}
			code := 32600 + zone
			if !north {
				code = 32700 + zone
			}
			return NewUTM(zone, north, WGS84, code), nil
		}
	}

	upper := strings.ToUpper(desc)
	if strings.HasPrefix(upper, "GEOGCS") || strings.HasPrefix(upper, "GEOGCRS") {
		switch {
		case strings.Contains(upper, "WGS 84") || strings.Contains(upper, "WGS84") || strings.Contains(upper, "WGS_1984"):
			return Geographic{Code: 4326, Ell: WGS84}, nil
		case strings.Contains(upper, "NAD83") || strings.Contains(upper, "NAD_1983") || strings.Contains(upper, "GRS 1980"):
			return Geographic{Code: 4269, Ell: GRS80}, nil
		}
	}

	return nil, fmt.Errorf("unrecognized CRS description %.40q", desc)
}

// parseEPSGIdentifier matches bare "EPSG:n" identifiers.
func parseEPSGIdentifier(desc string) (int, bool) {
	rest, ok := cutPrefixFold(desc, "EPSG:")
	if !ok {
		return 0, false
	}
	code, err := strconv.Atoi(strings.TrimSpace(rest))
	if err != nil {
		return 0, false
	}
	return code, true
}

func cutPrefixFold(s, prefix string) (string, bool) {
	if len(s) >= len(prefix) && strings.EqualFold(s[:len(prefix)], prefix) {
		return s[len(prefix):], true
	}
	return "", false
}

// Name extracts a display name from a CRS description: the first
// quoted token of WKT, the identifier itself for "EPSG:n", otherwise
// "Unknown".
func Name(desc string) string {
	desc = strings.TrimSpace(desc)
	if desc == "" {
		return "Unknown"
	}
	if _, ok := parseEPSGIdentifier(desc); ok {
		return desc
	}
	if m := quotedRe.FindStringSubmatch(desc); m != nil && m[1] != "" {
		return m[1]
	}
	return "Unknown"
}
