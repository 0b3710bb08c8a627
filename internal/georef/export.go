package georef

// defaultPrjWKT is written alongside composed exports when the
// reference image carries no CRS of its own.
const defaultPrjWKT = `GEOGCS["NAD83(2011)",DATUM["NAD83_National_Spatial_Reference_System_2011",SPHEROID["GRS 1980",6378137,298.257222101]],PRIMEM["Greenwich",0],UNIT["degree",0.0174532925199433]]`

// FitMethod fits the named method on the pairs and returns the result
// in affine form, which every export format consumes.
func FitMethod(method string, pairs []Pair) (Affine, error) {
	switch method {
	case MethodSimilarity:
		t, err := FitSimilarity(pairs)
		if err != nil {
			return Affine{}, err
		}
		return t.AsAffine(), nil
	case MethodAffine:
		return FitAffine(pairs)
	}
	return Affine{}, Errorf(UnsupportedMethod, "unknown method %s", method)
}

// ProjString fits the named method and renders it as a proj pipeline.
func ProjString(method string, pairs []Pair) (string, error) {
	t, err := FitMethod(method, pairs)
	if err != nil {
		return "", err
	}
	return t.ProjPipeline(), nil
}

// worldArray flattens an affine into world-file slot order.
func worldArray(t Affine) [6]float64 {
	return [6]float64{t.A, t.B, t.C, t.D, t.TX, t.TY}
}

func affineFromWorld(vals [6]float64) Affine {
	return Affine{A: vals[0], B: vals[1], C: vals[2], D: vals[3], TX: vals[4], TY: vals[5]}
}

// ExportWorldFile fits the named method and writes base+".tfw" mapping
// map pixels directly to the fitted target frame.
func ExportWorldFile(base, method string, pairs []Pair) error {
	t, err := FitMethod(method, pairs)
	if err != nil {
		return err
	}
	return WriteWorldFile(base+".tfw", worldArray(t))
}

// ExportComposed chains the fitted map→reference transform with the
// reference image's resolved pixel→world affine and writes base+".tfw"
// plus a .prj sidecar, so the output georeferences map pixels in world
// coordinates. An ungeoreferenced reference contributes identity; a
// reference without a CRS gets the NAD83(2011) default.
func ExportComposed(base, method string, pairs []Pair, refPath string, refGeo *Georef) error {
	if refPath == "" {
		return Errorf(InvalidParameter, "reference path not set")
	}
	map2ref, err := FitMethod(method, pairs)
	if err != nil {
		return err
	}

	refAff := Affine{A: 1, D: 1}
	prj := ""
	if refGeo != nil {
		refAff = refGeo.AsAffine()
		prj = refGeo.CRS
	}

	world := ComposeAffine(map2ref, refAff)
	if err := WriteWorldFile(base+".tfw", worldArray(world)); err != nil {
		return err
	}

	if prj == "" {
		prj = defaultPrjWKT
	}
	// Sidecar failure doesn't invalidate the world file already written.
	_ = WritePrj(base+".prj", prj)
	return nil
}
