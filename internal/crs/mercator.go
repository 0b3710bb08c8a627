package crs

import (
	"fmt"
	"math"
)

// webMercatorRadius is the sphere radius shared by all web mapping
// stacks (the WGS84 semi-major axis, used spherically).
const webMercatorRadius = 6378137.0

// webMercatorMaxLat is where the square world of EPSG:3857 ends.
const webMercatorMaxLat = 85.05112877980659

// WebMercator is the spherical mercator of web map tiles (EPSG:3857).
type WebMercator struct{}

func (WebMercator) EPSG() int { return 3857 }

func (WebMercator) FromGeodetic(lon, lat float64) (x, y float64, err error) {
	if lat < -webMercatorMaxLat || lat > webMercatorMaxLat {
		return 0, 0, fmt.Errorf("latitude %v outside web mercator bounds", lat)
	}
	x = webMercatorRadius * lon * math.Pi / 180
	y = webMercatorRadius * math.Log(math.Tan(math.Pi/4+lat*math.Pi/360))
	return x, y, nil
}

func (WebMercator) ToGeodetic(x, y float64) (lon, lat float64, err error) {
	lon = x / webMercatorRadius * 180 / math.Pi
	lat = (2*math.Atan(math.Exp(y/webMercatorRadius)) - math.Pi/2) * 180 / math.Pi
	return lon, lat, nil
}
