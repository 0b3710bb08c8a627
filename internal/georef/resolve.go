package georef

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
)

// Georef is the resolved pixel→world mapping of a reference image:
// affine coefficients in the order [A,B,D,E,C,F] mapping
// x = A·u + B·v + C, y = D·u + E·v + F, plus an optional CRS
// description (verbatim WKT from a sidecar, or "EPSG:n" from embedded
// geotags). A nil *Georef means no georeferencing is available.
type Georef struct {
	Affine [6]float64 `json:"affine"`
	CRS    string     `json:"crs,omitempty"`
}

// PixelToWorld applies the affine to a pixel coordinate.
func (g *Georef) PixelToWorld(px Vec2) Vec2 {
	return Vec2{
		X: g.Affine[0]*px.X + g.Affine[1]*px.Y + g.Affine[4],
		Y: g.Affine[2]*px.X + g.Affine[3]*px.Y + g.Affine[5],
	}
}

// PixelSize is the mean ground distance covered by one pixel step,
// averaged over the two axes.
func (g *Georef) PixelSize() float64 {
	ax := math.Hypot(g.Affine[0], g.Affine[2])
	ay := math.Hypot(g.Affine[1], g.Affine[3])
	return (ax + ay) / 2
}

// AsAffine re-expresses the sextuple as an Affine transform value, for
// composition with fitted transforms.
func (g *Georef) AsAffine() Affine {
	return Affine{
		A: g.Affine[0], B: g.Affine[1],
		C: g.Affine[2], D: g.Affine[3],
		TX: g.Affine[4], TY: g.Affine[5],
	}
}

// ResolveGeoref recovers the georeferencing of a reference image.
// Sidecar world files are probed first (by the conventional extension
// for the image type), with projection sidecars probed independently
// for CRS text. TIFFs without a world file fall back to embedded
// geotags. Returns nil when nothing usable is found; resolution never
// fails with an error.
func ResolveGeoref(path string) *Georef {
	ext := filepath.Ext(path)
	base := strings.TrimSuffix(path, ext)

	var (
		aff    [6]float64
		found  bool
		crs    string
		hasCRS bool
	)
	for _, wfExt := range worldFileExts(ext) {
		if vals, err := ReadWorldFile(base + wfExt); err == nil {
			aff = vals
			found = true
			break
		}
	}
	for _, pExt := range projectionExts {
		if data, err := os.ReadFile(base + pExt); err == nil {
			if text := strings.TrimSpace(string(data)); text != "" {
				crs = text
				hasCRS = true
				break
			}
		}
	}

	if !found && isTIFF(ext) {
		tagAff, tagCRS, ok := parseGeoTIFF(path)
		if ok {
			aff = tagAff
			found = true
			if !hasCRS && tagCRS != "" {
				crs = tagCRS
			}
		}
	}

	if !found {
		return nil
	}
	return &Georef{Affine: aff, CRS: crs}
}

func isTIFF(ext string) bool {
	ext = strings.ToLower(ext)
	return ext == ".tif" || ext == ".tiff"
}

func epsgString(code int) string {
	return fmt.Sprintf("EPSG:%d", code)
}
