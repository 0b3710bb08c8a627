// Package monitor renders solve diagnostics: residual scatter PNGs via
// gonum/plot and HTML charts via go-echarts.
package monitor

import (
	"fmt"
	"image/color"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/EthanOConnor/ml-georeferencer/internal/georef"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
)

// ResidualPlotter records solve snapshots for visualisation. Each call
// to Record() buffers one solve; GeneratePlots() writes a residual
// scatter PNG per solve plus an error-history plot across solves.
type ResidualPlotter struct {
	mu        sync.Mutex
	enabled   bool
	outputDir string

	snapshots []SolveSnapshot
	solveIdx  int
}

// SolveSnapshot captures one solve's residuals alongside the source
// positions they belong to.
type SolveSnapshot struct {
	SolveIdx  int
	Timestamp time.Time
	Method    string
	Unit      string
	RMSE      float64
	P90Error  float64
	Points    []ResidualPoint
}

// ResidualPoint pairs a constraint's source position with its residual.
type ResidualPoint struct {
	ID       uint64
	X        float64
	Y        float64
	Residual float64
}

// NewSolveSnapshot joins per-constraint residuals with the source
// positions of the point pairs they came from. Residual entries whose
// constraint is missing (or is not a point pair) are dropped.
func NewSolveSnapshot(method string, constraints []georef.Constraint, q georef.QualityMetrics, ts time.Time) SolveSnapshot {
	srcByID := make(map[uint64]georef.Vec2, len(constraints))
	for _, c := range constraints {
		if pp, ok := c.(georef.PointPair); ok {
			srcByID[pp.ID] = pp.Src
		}
	}

	snap := SolveSnapshot{
		Timestamp: ts,
		Method:    method,
		Unit:      q.Unit,
		RMSE:      q.RMSE,
		P90Error:  q.P90Error,
	}
	for _, r := range q.ResidualsByID {
		src, ok := srcByID[r.ID]
		if !ok {
			continue
		}
		snap.Points = append(snap.Points, ResidualPoint{
			ID:       r.ID,
			X:        src.X,
			Y:        src.Y,
			Residual: r.Residual,
		})
	}
	return snap
}

// NewResidualPlotter creates a disabled plotter. Call Start() before
// recording solves.
func NewResidualPlotter() *ResidualPlotter {
	return &ResidualPlotter{}
}

// Start initialises the plotter for a new run, creating outputDir if
// needed and discarding any previously recorded solves.
func (rp *ResidualPlotter) Start(outputDir string) error {
	rp.mu.Lock()
	defer rp.mu.Unlock()

	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return fmt.Errorf("failed to create output dir: %w", err)
	}

	rp.outputDir = outputDir
	rp.enabled = true
	rp.snapshots = nil
	rp.solveIdx = 0
	return nil
}

// Stop disables recording. Call GeneratePlots() to produce output files.
func (rp *ResidualPlotter) Stop() {
	rp.mu.Lock()
	defer rp.mu.Unlock()
	rp.enabled = false
}

// IsEnabled returns true if the plotter is currently recording.
func (rp *ResidualPlotter) IsEnabled() bool {
	rp.mu.Lock()
	defer rp.mu.Unlock()
	return rp.enabled
}

// Record buffers one solve snapshot, assigning it the next solve index.
// Ignored while the plotter is disabled.
func (rp *ResidualPlotter) Record(snap SolveSnapshot) {
	rp.mu.Lock()
	defer rp.mu.Unlock()

	if !rp.enabled {
		return
	}
	rp.solveIdx++
	snap.SolveIdx = rp.solveIdx
	rp.snapshots = append(rp.snapshots, snap)
}

// GetOutputDir returns the current output directory for plots.
func (rp *ResidualPlotter) GetOutputDir() string {
	rp.mu.Lock()
	defer rp.mu.Unlock()
	return rp.outputDir
}

// GetSnapshotCount returns the number of solves recorded since Start.
func (rp *ResidualPlotter) GetSnapshotCount() int {
	rp.mu.Lock()
	defer rp.mu.Unlock()
	return len(rp.snapshots)
}

// GeneratePlots writes a residual scatter PNG per recorded solve and,
// when more than one solve was recorded, an RMSE/p90 history plot.
// Returns the number of files written and any error.
func (rp *ResidualPlotter) GeneratePlots() (int, error) {
	rp.mu.Lock()
	defer rp.mu.Unlock()

	if rp.outputDir == "" {
		return 0, fmt.Errorf("no output directory configured")
	}

	if len(rp.snapshots) == 0 {
		return 0, nil
	}

	plotCount := 0
	for _, snap := range rp.snapshots {
		if err := rp.generateResidualPlot(snap); err != nil {
			return plotCount, fmt.Errorf("solve %d: %w", snap.SolveIdx, err)
		}
		plotCount++
	}

	if len(rp.snapshots) > 1 {
		if err := rp.generateHistoryPlot(); err != nil {
			return plotCount, fmt.Errorf("history: %w", err)
		}
		plotCount++
	}

	return plotCount, nil
}

// generateResidualPlot writes one scatter of source positions coloured
// and sized by residual magnitude.
func (rp *ResidualPlotter) generateResidualPlot(snap SolveSnapshot) error {
	p := plot.New()
	p.Title.Text = fmt.Sprintf("Solve %d - %s residuals (RMSE %.3f %s)", snap.SolveIdx, snap.Method, snap.RMSE, snap.Unit)
	p.X.Label.Text = "Source X (px)"
	p.Y.Label.Text = "Source Y (px)"

	maxResid := 0.0
	for _, pt := range snap.Points {
		if pt.Residual > maxResid {
			maxResid = pt.Residual
		}
	}

	xys := make(plotter.XYs, len(snap.Points))
	for i, pt := range snap.Points {
		// Image Y grows downward; flip so the plot matches the map.
		xys[i] = plotter.XY{X: pt.X, Y: -pt.Y}
	}

	sc, err := plotter.NewScatter(xys)
	if err != nil {
		return err
	}
	points := snap.Points
	sc.GlyphStyleFunc = func(i int) draw.GlyphStyle {
		norm := 0.0
		if maxResid > 0 {
			norm = points[i].Residual / maxResid
		}
		r, g, b := hslToRGB(residualHue(norm), 0.7, 0.5)
		return draw.GlyphStyle{
			Color:  color.RGBA{R: r, G: g, B: b, A: 255},
			Radius: vg.Points(3 + 3*norm),
			Shape:  draw.CircleGlyph{},
		}
	}
	p.Add(sc)

	file := filepath.Join(rp.outputDir, fmt.Sprintf("solve_%02d_residuals.png", snap.SolveIdx))
	if err := p.Save(8*vg.Inch, 8*vg.Inch, file); err != nil {
		return fmt.Errorf("save residual plot: %w", err)
	}
	return nil
}

// generateHistoryPlot writes RMSE and p90 error across solve indexes.
func (rp *ResidualPlotter) generateHistoryPlot() error {
	p := plot.New()
	p.Title.Text = "Solve Error History"
	p.X.Label.Text = "Solve"
	p.Y.Label.Text = "Error"

	snaps := append([]SolveSnapshot(nil), rp.snapshots...)
	sort.Slice(snaps, func(a, b int) bool {
		return snaps[a].SolveIdx < snaps[b].SolveIdx
	})

	rmsePts := make(plotter.XYs, 0, len(snaps))
	p90Pts := make(plotter.XYs, 0, len(snaps))
	for _, s := range snaps {
		rmsePts = append(rmsePts, plotter.XY{X: float64(s.SolveIdx), Y: s.RMSE})
		p90Pts = append(p90Pts, plotter.XY{X: float64(s.SolveIdx), Y: s.P90Error})
	}

	colors := generateColors(2)

	rmseLine, err := plotter.NewLine(rmsePts)
	if err != nil {
		return err
	}
	rmseLine.Color = colors[0]
	rmseLine.Width = vg.Points(1)
	p.Add(rmseLine)
	p.Legend.Add("RMSE", rmseLine)

	p90Line, err := plotter.NewLine(p90Pts)
	if err != nil {
		return err
	}
	p90Line.Color = colors[1]
	p90Line.Width = vg.Points(1)
	p.Add(p90Line)
	p.Legend.Add("p90", p90Line)

	p.Legend.Top = true
	p.Legend.Left = false
	p.Legend.XOffs = -10
	p.Legend.YOffs = -10

	file := filepath.Join(rp.outputDir, "solve_history.png")
	if err := p.Save(14*vg.Inch, 6*vg.Inch, file); err != nil {
		return fmt.Errorf("save history plot: %w", err)
	}
	return nil
}

// residualHue maps a normalised residual onto a blue-to-red ramp.
func residualHue(norm float64) float64 {
	if norm < 0 {
		norm = 0
	}
	if norm > 1 {
		norm = 1
	}
	return (1 - norm) * 2.0 / 3.0
}

// generateColors creates a palette of distinct colors for plot lines.
func generateColors(n int) []color.Color {
	if n <= 0 {
		return nil
	}

	colors := make([]color.Color, n)
	for i := 0; i < n; i++ {
		hue := float64(i) / float64(n)
		r, g, b := hslToRGB(hue, 0.7, 0.5)
		colors[i] = color.RGBA{R: r, G: g, B: b, A: 255}
	}
	return colors
}

// hslToRGB converts HSL to RGB (0-255 range)
func hslToRGB(h, s, l float64) (r, g, b uint8) {
	var rf, gf, bf float64

	if s == 0 {
		rf, gf, bf = l, l, l
	} else {
		var q float64
		if l < 0.5 {
			q = l * (1 + s)
		} else {
			q = l + s - l*s
		}
		p := 2*l - q
		rf = hueToRGB(p, q, h+1.0/3.0)
		gf = hueToRGB(p, q, h)
		bf = hueToRGB(p, q, h-1.0/3.0)
	}

	return uint8(rf * 255), uint8(gf * 255), uint8(bf * 255)
}

func hueToRGB(p, q, t float64) float64 {
	if t < 0 {
		t += 1
	}
	if t > 1 {
		t -= 1
	}
	if t < 1.0/6.0 {
		return p + (q-p)*6*t
	}
	if t < 1.0/2.0 {
		return q
	}
	if t < 2.0/3.0 {
		return p + (q-p)*(2.0/3.0-t)*6
	}
	return p
}

// FormatTimestamp generates a timestamp string for directory naming.
func FormatTimestamp(t time.Time) string {
	return t.Format("20060102_150405")
}

// MakePlotOutputDir creates a timestamped output directory for plots.
// With a map file: <baseDir>/<map_basename>/<timestamp>
// Without: <baseDir>/session_<timestamp>
func MakePlotOutputDir(baseDir, mapFile string) string {
	ts := FormatTimestamp(time.Now())
	if mapFile != "" {
		base := filepath.Base(mapFile)
		ext := filepath.Ext(base)
		name := base[:len(base)-len(ext)]
		return filepath.Join(baseDir, name, ts)
	}
	return filepath.Join(baseDir, "session_"+ts)
}
