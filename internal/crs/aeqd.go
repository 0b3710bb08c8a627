package crs

import (
	"fmt"
	"math"
)

// AEQD is an azimuthal equidistant projection on a sphere whose radius
// is the Gaussian mean radius of the ellipsoid at the origin. Distances
// measured from the origin are true, which is what local ground
// measurements around a single map sheet need.
type AEQD struct {
	Lon0, Lat0 float64 // origin, degrees
	R          float64 // sphere radius, meters
}

// NewAEQD centers an azimuthal equidistant projection at a geodetic
// origin, taking the sphere radius from the ellipsoid's curvature there.
func NewAEQD(lon0, lat0 float64, ell Ellipsoid) AEQD {
	phi := lat0 * math.Pi / 180
	e2 := ell.E2()
	den := 1 - e2*math.Sin(phi)*math.Sin(phi)
	merid := ell.A * (1 - e2) / math.Pow(den, 1.5)
	prime := ell.A / math.Sqrt(den)
	return AEQD{Lon0: lon0, Lat0: lat0, R: math.Sqrt(merid * prime)}
}

// EPSG returns 0: a locally centered AEQD has no registry identity.
func (AEQD) EPSG() int { return 0 }

func (p AEQD) FromGeodetic(lon, lat float64) (x, y float64, err error) {
	if lat < -90 || lat > 90 {
		return 0, 0, fmt.Errorf("latitude %v out of range", lat)
	}
	phi0 := p.Lat0 * math.Pi / 180
	phi := lat * math.Pi / 180
	dLam := (lon - p.Lon0) * math.Pi / 180

	cosC := math.Sin(phi0)*math.Sin(phi) + math.Cos(phi0)*math.Cos(phi)*math.Cos(dLam)
	if cosC > 1 {
		cosC = 1
	}
	if cosC < -1 {
		cosC = -1
	}
	c := math.Acos(cosC)
	if c == 0 {
		return 0, 0, nil
	}
	if math.Pi-c < 1e-10 {
		return 0, 0, fmt.Errorf("point (%v, %v) is antipodal to the projection origin", lon, lat)
	}
	k := c / math.Sin(c)
	x = p.R * k * math.Cos(phi) * math.Sin(dLam)
	y = p.R * k * (math.Cos(phi0)*math.Sin(phi) - math.Sin(phi0)*math.Cos(phi)*math.Cos(dLam))
	return x, y, nil
}

func (p AEQD) ToGeodetic(x, y float64) (lon, lat float64, err error) {
	rho := math.Hypot(x, y)
	if rho == 0 {
		return p.Lon0, p.Lat0, nil
	}
	c := rho / p.R
	if c > math.Pi {
		return 0, 0, fmt.Errorf("coordinate (%v, %v) outside projection domain", x, y)
	}
	phi0 := p.Lat0 * math.Pi / 180
	sinC, cosC := math.Sin(c), math.Cos(c)

	sinPhi := cosC*math.Sin(phi0) + y*sinC*math.Cos(phi0)/rho
	if sinPhi > 1 {
		sinPhi = 1
	}
	if sinPhi < -1 {
		sinPhi = -1
	}
	lat = math.Asin(sinPhi) * 180 / math.Pi
	lon = p.Lon0 + math.Atan2(x*sinC, rho*math.Cos(phi0)*cosC-y*math.Sin(phi0)*sinC)*180/math.Pi
	return lon, lat, nil
}
