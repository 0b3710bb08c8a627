package georef

import (
	"math"
	"testing"
)

// utm33Georef places pixel (0,0) at UTM 33N (500000, 4649776), one
// meter per pixel, north up.
func utm33Georef() *Georef {
	return &Georef{
		Affine: [6]float64{1, 0, 0, -1, 500000, 4649776},
		CRS:    `PROJCS["WGS 84 / UTM zone 33N",AUTHORITY["EPSG","32633"]]`,
	}
}

// geographicGeoref places pixel (0,0) at (15°E, 42°S) with a
// millidegree per pixel.
func geographicGeoref() *Georef {
	return &Georef{
		Affine: [6]float64{0.001, 0, 0, -0.001, 15, -42},
		CRS:    `GEOGCS["WGS 84"]`,
	}
}

func TestNewProjectorNilGeoref(t *testing.T) {
	t.Parallel()

	p := NewProjector(nil)
	if p.Proj != nil {
		t.Error("expected no projection")
	}
	_, _, err := p.Geodetic(Vec2{0, 0})
	if !IsKind(err, ConversionUnavailable) {
		t.Errorf("error = %v, want ConversionUnavailable", err)
	}
}

func TestNewProjectorWithoutCRS(t *testing.T) {
	t.Parallel()

	p := NewProjector(&Georef{Affine: [6]float64{1, 0, 0, -1, 0, 0}})
	if p.Proj != nil {
		t.Error("expected no projection without CRS text")
	}
	_, _, err := p.Geodetic(Vec2{0, 0})
	if !IsKind(err, ConversionUnavailable) {
		t.Errorf("error = %v, want ConversionUnavailable", err)
	}
}

func TestNewProjectorUnrecognizedCRS(t *testing.T) {
	t.Parallel()

	p := NewProjector(&Georef{
		Affine: [6]float64{1, 0, 0, -1, 0, 0},
		CRS:    `PROJCS["Sphere Mystery Grid"]`,
	})
	if p.Proj != nil {
		t.Error("expected no projection for an unrecognized CRS")
	}
}

func TestProjectorGeodeticUTM(t *testing.T) {
	t.Parallel()

	p := NewProjector(utm33Georef())
	lon, lat, err := p.Geodetic(Vec2{0, 0})
	if err != nil {
		t.Fatalf("Geodetic: %v", err)
	}
	// Easting 500000 is the central meridian, exactly 15°E.
	if math.Abs(lon-15) > 1e-9 {
		t.Errorf("lon = %v, want 15", lon)
	}
	if lat < 41 || lat > 43 {
		t.Errorf("lat = %v, want ≈42", lat)
	}
}

func TestProjectorGeodeticGeographicIdentity(t *testing.T) {
	t.Parallel()

	p := NewProjector(geographicGeoref())
	lon, lat, err := p.Geodetic(Vec2{10, 5})
	if err != nil {
		t.Fatalf("Geodetic: %v", err)
	}
	if math.Abs(lon-15.01) > 1e-12 || math.Abs(lat-(-42.005)) > 1e-12 {
		t.Errorf("geodetic = (%v, %v)", lon, lat)
	}
}

func TestProjectorConvertPixelPassthrough(t *testing.T) {
	t.Parallel()

	// Pixel mode works even with no georeferencing at all.
	p := NewProjector(nil)
	out, err := p.Convert(ModePixel, Vec2{3, 4}, Vec2{}, PolicyWGS84)
	if err != nil {
		t.Fatalf("Convert: %v", err)
	}
	if out != (Vec2{3, 4}) {
		t.Errorf("out = %+v", out)
	}
}

func TestProjectorConvertUnknownMode(t *testing.T) {
	t.Parallel()

	p := NewProjector(utm33Georef())
	_, err := p.Convert("galactic", Vec2{0, 0}, Vec2{}, PolicyWGS84)
	if !IsKind(err, InvalidParameter) {
		t.Errorf("error = %v, want InvalidParameter", err)
	}
}

func TestProjectorUTMRoundTrip(t *testing.T) {
	t.Parallel()

	p := NewProjector(utm33Georef())
	out, err := p.PixelToUTM(Vec2{0, 0}, PolicyWGS84)
	if err != nil {
		t.Fatalf("PixelToUTM: %v", err)
	}
	if math.Abs(out.X-500000) > 0.01 || math.Abs(out.Y-4649776) > 0.01 {
		t.Errorf("utm = %+v, want (500000, 4649776)", out)
	}
}

func TestProjectorUTMDatumsAgreeToSubMeter(t *testing.T) {
	t.Parallel()

	// WGS84 and GRS80 differ in flattening only past the tenth digit;
	// the same point projects to within millimeters on either datum.
	p := NewProjector(utm33Georef())
	wgs, err := p.PixelToUTM(Vec2{20, 30}, PolicyWGS84)
	if err != nil {
		t.Fatalf("PixelToUTM WGS84: %v", err)
	}
	nad, err := p.PixelToUTM(Vec2{20, 30}, PolicyNAD83)
	if err != nil {
		t.Fatalf("PixelToUTM NAD83: %v", err)
	}
	if nad.Sub(wgs).Norm() > 0.01 {
		t.Errorf("datum disagreement: %v vs %v", wgs, nad)
	}
}

func TestProjectorLocalPlaneAnchorsAtOrigin(t *testing.T) {
	t.Parallel()

	p := NewProjector(utm33Georef())
	at, err := p.PixelToLocalMeters(Vec2{0, 0}, Vec2{0, 0})
	if err != nil {
		t.Fatalf("PixelToLocalMeters: %v", err)
	}
	if at.Norm() > 1e-6 {
		t.Errorf("origin maps to %+v, want (0, 0)", at)
	}

	east, err := p.PixelToLocalMeters(Vec2{10, 0}, Vec2{0, 0})
	if err != nil {
		t.Fatalf("PixelToLocalMeters: %v", err)
	}
	if math.Abs(east.X-10) > 0.05 || math.Abs(east.Y) > 0.05 {
		t.Errorf("east = %+v, want ≈(10, 0)", east)
	}
}

func TestProjectorMetricScaleMatchesPixelSize(t *testing.T) {
	t.Parallel()

	one := NewProjector(utm33Georef())
	scale, err := one.MetricScaleAt(Vec2{50, 40})
	if err != nil {
		t.Fatalf("MetricScaleAt: %v", err)
	}
	if scale < 0.99 || scale > 1.01 {
		t.Errorf("scale = %v, want ≈1", scale)
	}

	two := NewProjector(&Georef{
		Affine: [6]float64{2, 0, 0, -2, 500000, 4649776},
		CRS:    "EPSG:32633",
	})
	scale, err = two.MetricScaleAt(Vec2{50, 40})
	if err != nil {
		t.Fatalf("MetricScaleAt: %v", err)
	}
	if scale < 1.98 || scale > 2.02 {
		t.Errorf("scale = %v, want ≈2", scale)
	}
}

func TestProjectorMetricScaleGeographic(t *testing.T) {
	t.Parallel()

	// A millidegree pixel near 42°S spans ~83 m east-west and ~111 m
	// north-south; the mean sits near 97 m.
	p := NewProjector(geographicGeoref())
	scale, err := p.MetricScaleAt(Vec2{0, 0})
	if err != nil {
		t.Fatalf("MetricScaleAt: %v", err)
	}
	if scale < 85 || scale > 110 {
		t.Errorf("scale = %v, want ≈97", scale)
	}
}

func TestProjectorSuggestNorthernZone(t *testing.T) {
	t.Parallel()

	p := NewProjector(utm33Georef())
	suggestion, err := p.SuggestOutputCRS(Vec2{50, 40}, PolicyWGS84)
	if err != nil {
		t.Fatalf("SuggestOutputCRS: %v", err)
	}
	if suggestion.EPSG != "EPSG:32633" {
		t.Errorf("EPSG = %q, want EPSG:32633", suggestion.EPSG)
	}
	if suggestion.Name != "WGS84 / UTM zone 33N" {
		t.Errorf("name = %q", suggestion.Name)
	}
	if suggestion.Datum != "WGS84" || suggestion.Zone != 33 {
		t.Errorf("datum/zone = %q/%d", suggestion.Datum, suggestion.Zone)
	}
}

func TestProjectorSuggestSouthernZone(t *testing.T) {
	t.Parallel()

	p := NewProjector(geographicGeoref())
	suggestion, err := p.SuggestOutputCRS(Vec2{0, 0}, PolicyWGS84)
	if err != nil {
		t.Fatalf("SuggestOutputCRS: %v", err)
	}
	if suggestion.EPSG != "EPSG:32733" {
		t.Errorf("EPSG = %q, want EPSG:32733", suggestion.EPSG)
	}
	if suggestion.Name != "WGS84 / UTM zone 33S" {
		t.Errorf("name = %q", suggestion.Name)
	}
}

func TestProjectorSuggestNAD83CarriesNotice(t *testing.T) {
	t.Parallel()

	p := NewProjector(utm33Georef())
	suggestion, err := p.SuggestOutputCRS(Vec2{0, 0}, PolicyNAD83)
	if err != nil {
		t.Fatalf("SuggestOutputCRS: %v", err)
	}
	if suggestion.EPSG != "" {
		t.Errorf("EPSG = %q, want none", suggestion.EPSG)
	}
	if suggestion.Datum != "NAD83(2011)" {
		t.Errorf("datum = %q", suggestion.Datum)
	}
	if suggestion.Notice == "" {
		t.Error("expected a notice for the EPSG-less fallback")
	}
}
