// Package main provides an inspection tool for georeferencing
// sidecars. It resolves the world file, projection sidecar or GeoTIFF
// tags for an image and reports the affine, CRS and ground coordinates
// of the image corners without starting a server.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/EthanOConnor/ml-georeferencer/internal/crs"
	"github.com/EthanOConnor/ml-georeferencer/internal/georef"
)

// Config holds the inspection options.
type Config struct {
	JSON    bool
	Datum   string
	Suggest bool
}

// Inspection is the per-image report.
type Inspection struct {
	Path           string                `json:"path"`
	Georeferenced  bool                  `json:"georeferenced"`
	Affine         []float64             `json:"affine,omitempty"`
	CRSName        string                `json:"crs_name,omitempty"`
	EPSG           string                `json:"epsg,omitempty"`
	Width          int                   `json:"width,omitempty"`
	Height         int                   `json:"height,omitempty"`
	MetersPerPixel float64               `json:"meters_per_pixel,omitempty"`
	Corners        []Corner              `json:"corners,omitempty"`
	SuggestedCRS   *georef.CRSSuggestion `json:"suggested_output_crs,omitempty"`
}

// Corner reports one image corner in every frame the CRS can reach.
type Corner struct {
	Label string      `json:"label"`
	Pixel georef.Vec2 `json:"pixel"`
	World georef.Vec2 `json:"world"`
	Lon   *float64    `json:"lon,omitempty"`
	Lat   *float64    `json:"lat,omitempty"`
}

func main() {
	config := parseFlags()

	if flag.NArg() == 0 {
		fmt.Fprintln(os.Stderr, "Error: at least one image path is required")
		flag.Usage()
		os.Exit(1)
	}

	policy := georef.DatumPolicy(config.Datum)
	if policy != georef.PolicyWGS84 && policy != georef.PolicyNAD83 {
		fmt.Fprintf(os.Stderr, "Error: unknown datum %q (want %s or %s)\n",
			config.Datum, georef.PolicyWGS84, georef.PolicyNAD83)
		os.Exit(1)
	}

	reports := make([]Inspection, 0, flag.NArg())
	exitCode := 0
	for _, path := range flag.Args() {
		report := inspect(path, policy, config.Suggest)
		if !report.Georeferenced {
			exitCode = 1
		}
		reports = append(reports, report)
	}

	if config.JSON {
		data, err := json.MarshalIndent(reports, "", "  ")
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		fmt.Println(string(data))
	} else {
		for _, r := range reports {
			printReport(r)
		}
	}

	os.Exit(exitCode)
}

func parseFlags() Config {
	config := Config{}

	flag.BoolVar(&config.JSON, "json", false, "Emit the report as JSON")
	flag.StringVar(&config.Datum, "datum", string(georef.PolicyWGS84), "Datum for geodetic output and CRS suggestions (WGS84 or NAD83_2011)")
	flag.BoolVar(&config.Suggest, "suggest", false, "Suggest a metric output CRS for each image")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [options] <image> [image...]\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Inspect the georeferencing attached to raster images.\n\n")
		fmt.Fprintf(os.Stderr, "For each image the tool looks for a world file (.pgw/.tfw/.wld),\n")
		fmt.Fprintf(os.Stderr, "a .prj sidecar and embedded GeoTIFF tags, then reports the\n")
		fmt.Fprintf(os.Stderr, "pixel-to-world affine, the CRS and the ground coordinates of the\n")
		fmt.Fprintf(os.Stderr, "image corners.\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  %s reference.tif\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s -json -suggest scans/quad_1891.png\n", os.Args[0])
	}

	flag.Parse()
	return config
}

func inspect(path string, policy georef.DatumPolicy, suggest bool) Inspection {
	report := Inspection{Path: path}

	g := georef.ResolveGeoref(path)
	if g == nil {
		return report
	}
	report.Georeferenced = true
	report.Affine = g.Affine[:]
	if g.CRS != "" {
		report.CRSName = crs.Name(g.CRS)
		if proj, err := crs.FromDescription(g.CRS); err == nil && proj.EPSG() != 0 {
			report.EPSG = fmt.Sprintf("EPSG:%d", proj.EPSG())
		}
	}

	w, h, err := georef.ImageDimensions(path)
	if err != nil {
		// Sidecar-only inspection still reports the origin.
		w, h = 0, 0
	}
	report.Width = w
	report.Height = h

	projector := georef.NewProjector(g)
	center := georef.Vec2{X: float64(w) / 2, Y: float64(h) / 2}

	if scale, err := projector.MetricScaleAt(center); err == nil {
		report.MetersPerPixel = scale
	}

	corners := []struct {
		label string
		px    georef.Vec2
	}{
		{"top-left", georef.Vec2{X: 0, Y: 0}},
		{"top-right", georef.Vec2{X: float64(w), Y: 0}},
		{"bottom-left", georef.Vec2{X: 0, Y: float64(h)}},
		{"bottom-right", georef.Vec2{X: float64(w), Y: float64(h)}},
		{"center", center},
	}
	if w == 0 && h == 0 {
		corners = corners[:1]
		corners[0].label = "origin"
	}

	for _, c := range corners {
		corner := Corner{Label: c.label, Pixel: c.px, World: g.PixelToWorld(c.px)}
		if lon, lat, err := projector.Geodetic(c.px); err == nil {
			corner.Lon, corner.Lat = &lon, &lat
		}
		report.Corners = append(report.Corners, corner)
	}

	if suggest {
		if s, err := projector.SuggestOutputCRS(center, policy); err == nil {
			report.SuggestedCRS = &s
		}
	}

	return report
}

func printReport(r Inspection) {
	fmt.Printf("========== %s ==========\n", r.Path)
	if !r.Georeferenced {
		fmt.Println("No georeferencing found (no world file, .prj or GeoTIFF tags)")
		fmt.Println()
		return
	}

	fmt.Printf("Affine (world-file order): %v\n", r.Affine)
	switch {
	case r.CRSName != "" && r.EPSG != "":
		fmt.Printf("CRS: %s (%s)\n", r.CRSName, r.EPSG)
	case r.CRSName != "":
		fmt.Printf("CRS: %s\n", r.CRSName)
	default:
		fmt.Println("CRS: none")
	}
	if r.Width > 0 && r.Height > 0 {
		fmt.Printf("Size: %dx%d px\n", r.Width, r.Height)
	}
	if r.MetersPerPixel > 0 {
		fmt.Printf("Ground resolution: %.4f m/px\n", r.MetersPerPixel)
	}

	fmt.Println("\nCorners:")
	for _, c := range r.Corners {
		line := fmt.Sprintf("  %-12s px(%.0f, %.0f) -> world(%.3f, %.3f)",
			c.Label, c.Pixel.X, c.Pixel.Y, c.World.X, c.World.Y)
		if c.Lon != nil && c.Lat != nil {
			line += fmt.Sprintf("  %.6f, %.6f deg", *c.Lon, *c.Lat)
		}
		fmt.Println(line)
	}

	if r.SuggestedCRS != nil {
		s := r.SuggestedCRS
		fmt.Println("\nSuggested output CRS:")
		if s.EPSG != "" {
			fmt.Printf("  %s (%s)\n", s.Name, s.EPSG)
		} else {
			fmt.Printf("  %s\n", s.Name)
		}
		fmt.Printf("  %s\n", s.Proj)
		if s.Notice != "" {
			fmt.Printf("  Note: %s\n", s.Notice)
		}
	}
	fmt.Println()
}
