package georef

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// worldFileExts maps a lowercase reference-image extension (with dot)
// to the conventional world-file sidecar extensions, probed in order.
func worldFileExts(imageExt string) []string {
	switch strings.ToLower(imageExt) {
	case ".tif", ".tiff":
		return []string{".tfw"}
	case ".jpg", ".jpeg":
		return []string{".jgw", ".j2w"}
	case ".png":
		return []string{".pgw"}
	case ".gif":
		return []string{".gfw"}
	case ".bmp":
		return []string{".bpw"}
	default:
		return []string{".wld"}
	}
}

// projectionExts are the projection-sidecar extensions, probed in
// order. Case variants matter on case-sensitive filesystems.
var projectionExts = []string{".prj", ".PRJ", ".Prj"}

// ReadWorldFile parses a world file: six ASCII lines, one float each,
// in the order [A,B,D,E,C,F] defining x=A·col+B·row+C, y=D·col+E·row+F.
func ReadWorldFile(path string) ([6]float64, error) {
	var vals [6]float64
	data, err := os.ReadFile(path)
	if err != nil {
		return vals, Errorf(IOFailure, "read world file %s: %w", path, err)
	}
	lines := strings.Split(strings.ReplaceAll(string(data), "\r\n", "\n"), "\n")
	n := 0
	for _, line := range lines {
		if n == 6 {
			break
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		v, err := strconv.ParseFloat(line, 64)
		if err != nil {
			return vals, Errorf(ParseFailure, "world file %s line %d: %w", path, n+1, err)
		}
		vals[n] = v
		n++
	}
	if n < 6 {
		return vals, Errorf(ParseFailure, "world file %s has %d values, want 6", path, n)
	}
	return vals, nil
}

// WriteWorldFile writes the sextuple in world-file line order.
func WriteWorldFile(path string, aff [6]float64) error {
	var b strings.Builder
	for _, v := range aff {
		fmt.Fprintf(&b, "%v\n", v)
	}
	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		return Errorf(IOFailure, "write world file %s: %w", path, err)
	}
	return nil
}

// WritePrj writes a projection sidecar with the CRS text verbatim.
func WritePrj(path string, crs string) error {
	if err := os.WriteFile(path, []byte(crs), 0o644); err != nil {
		return Errorf(IOFailure, "write projection sidecar %s: %w", path, err)
	}
	return nil
}
