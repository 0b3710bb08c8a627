package georef

import (
	"encoding/binary"
	"math"
	"os"
)

// GeoTIFF tag and key ids. Values are fixed by the GeoTIFF spec.
const (
	tagModelPixelScale     = 33550
	tagModelTiepoint       = 33922
	tagModelTransformation = 34264
	tagGeoKeyDirectory     = 34735

	geoKeyRasterType    = 1025
	geoKeyGeographicCRS = 2048
	geoKeyProjectedCRS  = 3072

	rasterPixelIsPoint = 2
)

// TIFF field types used by the geotags.
const (
	fieldShort  = 3
	fieldDouble = 12
)

// classicTIFFMagic distinguishes classic TIFF from BigTIFF (43),
// which this reader does not handle.
const classicTIFFMagic = 42

// parseGeoTIFF extracts an [A,B,D,E,C,F] affine and an EPSG identifier
// from the embedded geotags of a classic TIFF. Any failure (wrong magic,
// truncated directory, absent tags) reports ok=false; callers treat
// that as no georeferencing rather than an error.
func parseGeoTIFF(path string) (aff [6]float64, crs string, ok bool) {
	f, err := os.Open(path)
	if err != nil {
		return aff, "", false
	}
	defer f.Close()

	header := make([]byte, 8)
	if _, err := f.ReadAt(header, 0); err != nil {
		return aff, "", false
	}
	var order binary.ByteOrder
	switch {
	case header[0] == 'I' && header[1] == 'I':
		order = binary.LittleEndian
	case header[0] == 'M' && header[1] == 'M':
		order = binary.BigEndian
	default:
		return aff, "", false
	}
	if order.Uint16(header[2:4]) != classicTIFFMagic {
		return aff, "", false
	}
	ifdOffset := int64(order.Uint32(header[4:8]))

	countBuf := make([]byte, 2)
	if _, err := f.ReadAt(countBuf, ifdOffset); err != nil {
		return aff, "", false
	}
	entryCount := int(order.Uint16(countBuf))

	var transform, scale, tiepoint []float64
	var geoKeys []uint16
	entry := make([]byte, 12)
	for i := 0; i < entryCount; i++ {
		if _, err := f.ReadAt(entry, ifdOffset+2+int64(i)*12); err != nil {
			return aff, "", false
		}
		tag := order.Uint16(entry[0:2])
		typ := order.Uint16(entry[2:4])
		count := order.Uint32(entry[4:8])

		switch tag {
		case tagModelTransformation, tagModelPixelScale, tagModelTiepoint:
			if typ != fieldDouble {
				continue
			}
			vals, err := readDoubles(f, order, entry, count)
			if err != nil {
				return aff, "", false
			}
			switch tag {
			case tagModelTransformation:
				transform = vals
			case tagModelPixelScale:
				scale = vals
			case tagModelTiepoint:
				tiepoint = vals
			}
		case tagGeoKeyDirectory:
			if typ != fieldShort {
				continue
			}
			vals, err := readShorts(f, order, entry, count)
			if err != nil {
				return aff, "", false
			}
			geoKeys = vals
		}
	}

	aff, ok = affineFromGeotags(transform, scale, tiepoint, geoKeys)
	if !ok {
		return aff, "", false
	}
	if code, found := crsCodeFromGeoKeys(geoKeys); found {
		crs = code
	}
	return aff, crs, true
}

// readDoubles reads a DOUBLE array; at 8 bytes per value it always
// lives behind the entry's offset field.
func readDoubles(f *os.File, order binary.ByteOrder, entry []byte, count uint32) ([]float64, error) {
	buf := make([]byte, 8*count)
	if _, err := f.ReadAt(buf, int64(order.Uint32(entry[8:12]))); err != nil {
		return nil, err
	}
	vals := make([]float64, count)
	for i := range vals {
		vals[i] = math.Float64frombits(order.Uint64(buf[8*i : 8*i+8]))
	}
	return vals, nil
}

// readShorts reads a SHORT array, inline when it fits the 4-byte value
// field and behind the offset otherwise.
func readShorts(f *os.File, order binary.ByteOrder, entry []byte, count uint32) ([]uint16, error) {
	raw := entry[8:12]
	if 2*count > 4 {
		raw = make([]byte, 2*count)
		if _, err := f.ReadAt(raw, int64(order.Uint32(entry[8:12]))); err != nil {
			return nil, err
		}
	}
	vals := make([]uint16, count)
	for i := range vals {
		vals[i] = order.Uint16(raw[2*i : 2*i+2])
	}
	return vals, nil
}

// affineFromGeotags assembles the pixel→world affine. A full model
// transformation wins; otherwise pixel scale plus the first tiepoint.
// The GeoTIFF origin convention is the outer corner of pixel (0,0), so
// a half-pixel correction moves it to the pixel center unless the
// raster-type key says pixels are points.
func affineFromGeotags(transform, scale, tiepoint []float64, geoKeys []uint16) (aff [6]float64, ok bool) {
	switch {
	case len(transform) >= 16:
		// Row-major 4×4; the 2D affine lives in rows 0 and 1.
		aff = [6]float64{transform[0], transform[1], transform[4], transform[5], transform[3], transform[7]}
	case len(scale) >= 2 && len(tiepoint) >= 6:
		sx, sy := scale[0], scale[1]
		i, j := tiepoint[0], tiepoint[1]
		x, y := tiepoint[3], tiepoint[4]
		aff = [6]float64{sx, 0, 0, -sy, x - sx*i, y + sy*j}
	default:
		return aff, false
	}

	if rasterTypeFromGeoKeys(geoKeys) != rasterPixelIsPoint {
		aff[4] += 0.5*aff[0] + 0.5*aff[1]
		aff[5] += 0.5*aff[2] + 0.5*aff[3]
	}
	return aff, true
}

// geoKeyValue scans the key directory for an inline-valued key. The
// directory is rows of four shorts [key, location, count, value] with
// a header row first; location 0 means the value is stored inline.
func geoKeyValue(geoKeys []uint16, key uint16) (uint16, bool) {
	for i := 4; i+3 < len(geoKeys); i += 4 {
		if geoKeys[i] == key && geoKeys[i+1] == 0 {
			return geoKeys[i+3], true
		}
	}
	return 0, false
}

func rasterTypeFromGeoKeys(geoKeys []uint16) uint16 {
	v, _ := geoKeyValue(geoKeys, geoKeyRasterType)
	return v
}

// crsCodeFromGeoKeys prefers the projected CRS key over the geographic
// one and renders the numeric code as an EPSG identifier.
func crsCodeFromGeoKeys(geoKeys []uint16) (string, bool) {
	if code, found := geoKeyValue(geoKeys, geoKeyProjectedCRS); found {
		return epsgString(int(code)), true
	}
	if code, found := geoKeyValue(geoKeys, geoKeyGeographicCRS); found {
		return epsgString(int(code)), true
	}
	return "", false
}
