// Package units provides shared constants and validation for error-report units
package units

// Unit constants
const (
	Pixels = "pixels"
	Meters = "meters"
	MapMM  = "mapmm"
)

// ValidUnits contains all valid unit values
var ValidUnits = []string{Pixels, Meters, MapMM}

// IsValid checks if the given unit is in the list of valid units
func IsValid(unit string) bool {
	for _, validUnit := range ValidUnits {
		if unit == validUnit {
			return true
		}
	}
	return false
}

// GetValidUnitsString returns a comma-separated string of valid units for error messages
func GetValidUnitsString() string {
	return "pixels, meters, mapmm"
}

// ConversionFactor returns the multiplier that converts a length in `from`
// units into `to` units. pixelSize is the ground distance covered by one
// reference pixel in meters. Conversions touching MapMM need the map-scale
// denominator (e.g. 10000 for 1:10000); when it is missing (<= 0) the factor
// stays 1 and the conversion is a no-op.
func ConversionFactor(from, to string, pixelSize, mapScale float64) float64 {
	factor := 1.0
	switch {
	case from == Pixels && to == Meters:
		factor = pixelSize
	case from == Meters && to == Pixels:
		factor = 1.0 / pixelSize
	case from == Pixels && to == MapMM:
		if mapScale > 0 {
			factor = pixelSize * (1000.0 / mapScale)
		}
	case from == MapMM && to == Pixels:
		if mapScale > 0 {
			factor = (mapScale / 1000.0) / pixelSize
		}
	case from == Meters && to == MapMM:
		if mapScale > 0 {
			factor = 1000.0 / mapScale
		}
	case from == MapMM && to == Meters:
		if mapScale > 0 {
			factor = mapScale / 1000.0
		}
	}
	return factor
}
