package crs

import (
	"fmt"
	"math"
)

// TransverseMercator is an ellipsoidal transverse mercator in the
// classic series form. Inside a 6° UTM zone the series is accurate to
// well under a millimeter, far below the residuals reported through it.
type TransverseMercator struct {
	Ell    Ellipsoid
	Lon0   float64 // central meridian, degrees
	K0     float64 // scale on the central meridian
	FalseE float64
	FalseN float64
	Code   int
}

// NewUTM builds the transverse mercator for a UTM zone. code may be 0
// for ad-hoc datum/zone combinations without an EPSG identity.
func NewUTM(zone int, north bool, ell Ellipsoid, code int) TransverseMercator {
	falseN := 0.0
	if !north {
		falseN = 10000000
	}
	return TransverseMercator{
		Ell:    ell,
		Lon0:   float64(zone*6 - 183),
		K0:     0.9996,
		FalseE: 500000,
		FalseN: falseN,
		Code:   code,
	}
}

// UTMZone returns the UTM zone and hemisphere containing a geodetic
// coordinate. The zone is clamped into 1..60 so polar or wrapped
// longitudes still land on a usable zone.
func UTMZone(lon, lat float64) (zone int, north bool) {
	zone = int(math.Floor((lon+180)/6)) + 1
	if zone < 1 {
		zone = 1
	}
	if zone > 60 {
		zone = 60
	}
	return zone, lat >= 0
}

func (t TransverseMercator) EPSG() int { return t.Code }

// meridianArc is the distance along the meridian from the equator.
func (t TransverseMercator) meridianArc(phi float64) float64 {
	e2 := t.Ell.E2()
	e4 := e2 * e2
	e6 := e4 * e2
	return t.Ell.A * ((1-e2/4-3*e4/64-5*e6/256)*phi -
		(3*e2/8+3*e4/32+45*e6/1024)*math.Sin(2*phi) +
		(15*e4/256+45*e6/1024)*math.Sin(4*phi) -
		(35*e6/3072)*math.Sin(6*phi))
}

func (t TransverseMercator) FromGeodetic(lon, lat float64) (x, y float64, err error) {
	if lat < -90 || lat > 90 {
		return 0, 0, fmt.Errorf("latitude %v out of range", lat)
	}
	dLon := lon - t.Lon0
	// Normalize across the antimeridian so zone-1/zone-60 points stay finite.
	for dLon > 180 {
		dLon -= 360
	}
	for dLon < -180 {
		dLon += 360
	}
	if math.Abs(dLon) > 45 {
		return 0, 0, fmt.Errorf("longitude %v too far from central meridian %v", lon, t.Lon0)
	}

	phi := lat * math.Pi / 180
	e2 := t.Ell.E2()
	ep2 := e2 / (1 - e2)
	sinPhi, cosPhi := math.Sin(phi), math.Cos(phi)

	n := t.Ell.A / math.Sqrt(1-e2*sinPhi*sinPhi)
	tt := math.Tan(phi) * math.Tan(phi)
	c := ep2 * cosPhi * cosPhi
	a := dLon * math.Pi / 180 * cosPhi
	m := t.meridianArc(phi)

	a2 := a * a
	a3 := a2 * a
	a4 := a2 * a2
	a5 := a4 * a
	a6 := a4 * a2

	x = t.FalseE + t.K0*n*(a+
		(1-tt+c)*a3/6+
		(5-18*tt+tt*tt+72*c-58*ep2)*a5/120)
	y = t.FalseN + t.K0*(m+n*math.Tan(phi)*(a2/2+
		(5-tt+9*c+4*c*c)*a4/24+
		(61-58*tt+tt*tt+600*c-330*ep2)*a6/720))
	return x, y, nil
}

func (t TransverseMercator) ToGeodetic(x, y float64) (lon, lat float64, err error) {
	e2 := t.Ell.E2()
	ep2 := e2 / (1 - e2)
	m := (y - t.FalseN) / t.K0
	mu := m / (t.Ell.A * (1 - e2/4 - 3*e2*e2/64 - 5*e2*e2*e2/256))

	e1 := (1 - math.Sqrt(1-e2)) / (1 + math.Sqrt(1-e2))
	phi1 := mu +
		(3*e1/2-27*e1*e1*e1/32)*math.Sin(2*mu) +
		(21*e1*e1/16-55*e1*e1*e1*e1/32)*math.Sin(4*mu) +
		(151*e1*e1*e1/96)*math.Sin(6*mu) +
		(1097*e1*e1*e1*e1/512)*math.Sin(8*mu)

	sin1, cos1 := math.Sin(phi1), math.Cos(phi1)
	c1 := ep2 * cos1 * cos1
	t1 := math.Tan(phi1) * math.Tan(phi1)
	n1 := t.Ell.A / math.Sqrt(1-e2*sin1*sin1)
	r1 := t.Ell.A * (1 - e2) / math.Pow(1-e2*sin1*sin1, 1.5)
	d := (x - t.FalseE) / (n1 * t.K0)

	d2 := d * d
	d3 := d2 * d
	d4 := d2 * d2
	d5 := d4 * d
	d6 := d4 * d2

	phi := phi1 - (n1 * math.Tan(phi1) / r1) * (d2/2 -
		(5+3*t1+10*c1-4*c1*c1-9*ep2)*d4/24 +
		(61+90*t1+298*c1+45*t1*t1-252*ep2-3*c1*c1)*d6/720)
	dLon := (d -
		(1+2*t1+c1)*d3/6 +
		(5-2*c1+28*t1-3*c1*c1+8*ep2+24*t1*t1)*d5/120) / cos1

	lat = phi * 180 / math.Pi
	lon = t.Lon0 + dLon*180/math.Pi
	if lat < -90 || lat > 90 {
		return 0, 0, fmt.Errorf("coordinate (%v, %v) outside projection domain", x, y)
	}
	return lon, lat, nil
}
