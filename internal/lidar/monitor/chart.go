package monitor

import (
	"bytes"
	"fmt"
	"math"
	"net/http"
	"strconv"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"
	"tailscale.com/tsweb"

	"github.com/banshee-data/nearfilter/internal/lidar/nearfilter"
)

const echartsAssetsPrefix = "https://go-echarts.github.io/go-echarts-assets/assets/"

// defaultChartRangeMM bounds the chart when near_only is set.
const defaultChartRangeMM = 2 * nearfilter.NearRangeLimit

func (ws *WebServer) attachDebugRoutes() {
	debug := tsweb.Debugger(ws.mux)
	debug.Handle("nearfilter/chart", "Latest revolution, kept vs dropped (XY scatter)", http.HandlerFunc(ws.handleChart))
}

// pointXY converts a polar point to sensor-frame millimetres, 0° along +Y
// and angles increasing clockwise as the sensor reports them.
func pointXY(p nearfilter.Point) (x, y float64) {
	theta := p.Angle * math.Pi / 180
	d := float64(p.Distance)
	return d * math.Sin(theta), d * math.Cos(theta)
}

// handleChart renders the latest revolution as a go-echarts scatter.
// Query params:
//   - near_only (optional bool): restrict the view to twice the near range
func (ws *WebServer) handleChart(w http.ResponseWriter, r *http.Request) {
	res := ws.ctrl.Latest()
	if res == nil {
		ws.writeJSONError(w, http.StatusNotFound, "no revolution processed yet")
		return
	}
	nearOnly, _ := strconv.ParseBool(r.URL.Query().Get("near_only"))

	maxAbs := 0.0
	toData := func(points []nearfilter.Point) []opts.ScatterData {
		data := make([]opts.ScatterData, 0, len(points))
		for _, p := range points {
			if nearOnly && p.Distance > defaultChartRangeMM {
				continue
			}
			x, y := pointXY(p)
			maxAbs = math.Max(maxAbs, math.Max(math.Abs(x), math.Abs(y)))
			data = append(data, opts.ScatterData{Value: []interface{}{x, y, p.Intensity}})
		}
		return data
	}
	kept := toData(res.Kept)
	dropped := toData(res.Dropped)

	pad := maxAbs * 1.05
	if pad == 0 {
		pad = 1.0
	}

	scatter := charts.NewScatter()
	scatter.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Near filter", Theme: "dark", Width: "900px", Height: "900px", AssetsHost: echartsAssetsPrefix}),
		charts.WithTitleOpts(opts.Title{
			Title: fmt.Sprintf("Revolution %d", res.RevolutionID),
			Subtitle: fmt.Sprintf("kept=%d dropped=%d strict=%v speed=%.0f°/s gap=%.2f°",
				res.Stats.Output, len(res.Dropped), res.Strict, res.Speed, res.Stats.GapThreshold),
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Min: -pad, Max: pad, Name: "X (mm)", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Min: -pad, Max: pad, Name: "Y (mm)", NameLocation: "middle", NameGap: 30}),
	)
	scatter.AddSeries("kept", kept, charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 4}))
	scatter.AddSeries("dropped", dropped, charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 3}))

	var buf bytes.Buffer
	if err := scatter.Render(&buf); err != nil {
		ws.writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("failed to render chart: %v", err))
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}
