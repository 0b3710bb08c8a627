package monitor

import (
	"bytes"
	"fmt"
	"math"
	"sort"
	"strconv"
	"time"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
)

const echartsAssetsPrefix = "https://go-echarts.github.io/go-echarts-assets/assets/"

// viridisColors is the ramp used by chart visual maps.
var viridisColors = []string{"#440154", "#482777", "#3e4989", "#31688e", "#26828e", "#1f9e89", "#35b779", "#6ece58", "#b5de2b", "#fde725"}

// ResidualScatterHTML renders constraint source positions as an ECharts
// scatter, visual-mapped by residual magnitude. Returns a standalone
// HTML document.
func ResidualScatterHTML(snap SolveSnapshot) ([]byte, error) {
	data := make([]opts.ScatterData, 0, len(snap.Points))
	minX, maxX := math.Inf(1), math.Inf(-1)
	minY, maxY := math.Inf(1), math.Inf(-1)
	maxResid := 0.0
	for _, pt := range snap.Points {
		x := pt.X
		// Image Y grows downward; flip so the chart matches the map.
		y := -pt.Y
		minX = math.Min(minX, x)
		maxX = math.Max(maxX, x)
		minY = math.Min(minY, y)
		maxY = math.Max(maxY, y)
		if pt.Residual > maxResid {
			maxResid = pt.Residual
		}
		data = append(data, opts.ScatterData{Value: []interface{}{x, y, pt.Residual}})
	}
	if len(data) == 0 {
		minX, maxX, minY, maxY = 0, 1, 0, 1
	}
	if maxResid == 0 {
		maxResid = 1
	}

	// Pad the axes so edge points stay visible.
	padX := (maxX - minX) * 0.05
	padY := (maxY - minY) * 0.05
	if padX == 0 {
		padX = 1.0
	}
	if padY == 0 {
		padY = 1.0
	}

	subtitle := fmt.Sprintf("method=%s pairs=%d rmse=%.3f p90=%.3f unit=%s",
		snap.Method, len(snap.Points), snap.RMSE, snap.P90Error, snap.Unit)

	scatter := charts.NewScatter()
	scatter.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Georeference Residuals", Theme: "dark", Width: "900px", Height: "900px", AssetsHost: echartsAssetsPrefix}),
		charts.WithTitleOpts(opts.Title{Title: "Constraint Residuals", Subtitle: subtitle}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Min: minX - padX, Max: maxX + padX, Name: "Source X (px)", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Min: minY - padY, Max: maxY + padY, Name: "Source Y (px)", NameLocation: "middle", NameGap: 30}),
		charts.WithVisualMapOpts(opts.VisualMap{
			Show:       opts.Bool(true),
			Calculable: opts.Bool(true),
			Min:        0,
			Max:        float32(maxResid),
			Dimension:  "2",
			InRange:    &opts.VisualMapInRange{Color: viridisColors},
		}),
	)

	scatter.AddSeries("residuals", data, charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 10}))

	var buf bytes.Buffer
	if err := scatter.Render(&buf); err != nil {
		return nil, fmt.Errorf("render residual scatter: %w", err)
	}
	return buf.Bytes(), nil
}

// ResidualBarHTML renders one bar per constraint in id order, so
// reruns line up visually. Returns a standalone HTML document.
func ResidualBarHTML(snap SolveSnapshot) ([]byte, error) {
	points := append([]ResidualPoint(nil), snap.Points...)
	sort.Slice(points, func(a, b int) bool {
		return points[a].ID < points[b].ID
	})

	x := make([]string, 0, len(points))
	y := make([]opts.BarData, 0, len(points))
	for _, pt := range points {
		x = append(x, strconv.FormatUint(pt.ID, 10))
		y = append(y, opts.BarData{Value: pt.Residual})
	}

	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: "100%", Height: "720px", AssetsHost: echartsAssetsPrefix}),
		charts.WithTitleOpts(opts.Title{Title: "Residual by Constraint", Subtitle: fmt.Sprintf("method=%s %s", snap.Method, snap.Timestamp.Format(time.RFC3339))}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: "Constraint"}),
		charts.WithYAxisOpts(opts.YAxis{Name: fmt.Sprintf("Residual (%s)", snap.Unit)}),
	)
	bar.SetXAxis(x).
		AddSeries("residuals", y,
			charts.WithLabelOpts(opts.Label{Show: opts.Bool(true), Position: "top"}),
		)

	page := components.NewPage()
	page.SetAssetsHost(echartsAssetsPrefix)
	page.AddCharts(bar)

	var buf bytes.Buffer
	if err := page.Render(&buf); err != nil {
		return nil, fmt.Errorf("render residual bars: %w", err)
	}
	return buf.Bytes(), nil
}
