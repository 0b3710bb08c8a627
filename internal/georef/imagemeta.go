package georef

import (
	"image"
	"os"

	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
)

// ImageDimensions reads just enough of a raster to report its pixel
// size. The registered codecs cover the same formats the resolver
// probes world files for.
func ImageDimensions(path string) (w, h int, err error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, 0, Errorf(IOFailure, "open image: %w", err)
	}
	defer f.Close()
	cfg, _, err := image.DecodeConfig(f)
	if err != nil {
		return 0, 0, Errorf(ParseFailure, "decode image header: %w", err)
	}
	return cfg.Width, cfg.Height, nil
}
