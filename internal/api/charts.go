package api

import (
	"bytes"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/banshee-data/erg.report/internal/db"
	"github.com/banshee-data/erg.report/internal/httputil"
)

// forceChart renders the handle force and power curves of the last drive as
// an HTML line chart.
func (s *Server) forceChart(w http.ResponseWriter, r *http.Request) {
	last := s.source.Last()
	n := max(len(last.DriveHandleForceCurve), len(last.DriveHandlePowerCurve))

	xs := make([]string, n)
	for i := range xs {
		xs[i] = strconv.Itoa(i + 1)
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Drive force curve", Theme: "dark", Width: "900px", Height: "500px"}),
		charts.WithTitleOpts(opts.Title{Title: "Drive Force Curve", Subtitle: fmt.Sprintf("stroke=%d samples=%d", last.TotalNumberOfStrokes, n)}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: "impulse", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Name: "N / W", NameLocation: "middle", NameGap: 40}),
	)
	line.SetXAxis(xs).
		AddSeries("force", lineData(last.DriveHandleForceCurve)).
		AddSeries("power", lineData(last.DriveHandlePowerCurve)).
		SetSeriesOptions(charts.WithLineChartOpts(opts.LineChart{Smooth: opts.Bool(true)}))

	var buf bytes.Buffer
	if err := line.Render(&buf); err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to render chart: %v", err))
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}

func lineData(values []float64) []opts.LineData {
	data := make([]opts.LineData, len(values))
	for i, v := range values {
		data[i] = opts.LineData{Value: v}
	}
	return data
}

// strokeMetric picks one charted value out of a stored stroke.
type strokeMetric struct {
	label string
	value func(db.Stroke) *float64
}

var strokeMetrics = map[string]strokeMetric{
	"power": {"Power (W)", func(s db.Stroke) *float64 { return s.Power }},
	"pace":  {"Pace (s/500m)", func(s db.Stroke) *float64 { return s.Pace }},
	"rate":  {"Stroke rate (spm)", func(s db.Stroke) *float64 { return s.StrokeRate }},
	"force": {"Peak force (N)", func(s db.Stroke) *float64 { return s.PeakForce }},
}

// sessionChart plots one stroke metric of a stored session against distance
// as a PNG.
func (s *Server) sessionChart(w http.ResponseWriter, r *http.Request) {
	if !s.requireDB(w) {
		return
	}
	q := r.URL.Query()
	id := q.Get("session")
	if id == "" {
		httputil.BadRequest(w, "missing 'session' parameter")
		return
	}
	name := q.Get("metric")
	if name == "" {
		name = "power"
	}
	metric, ok := strokeMetrics[name]
	if !ok {
		httputil.BadRequest(w, fmt.Sprintf("unknown metric %q", name))
		return
	}
	if _, err := s.db.Session(id); err != nil {
		httputil.NotFound(w, err.Error())
		return
	}
	strokes, err := s.db.Strokes(id)
	if err != nil {
		httputil.InternalServerError(w, err.Error())
		return
	}

	pts := make(plotter.XYs, 0, len(strokes))
	for _, st := range strokes {
		if v := metric.value(st); v != nil {
			pts = append(pts, plotter.XY{X: st.Distance, Y: *v})
		}
	}

	p := plot.New()
	p.Title.Text = fmt.Sprintf("Session %s", id)
	p.X.Label.Text = "Distance (m)"
	p.Y.Label.Text = metric.label
	p.Add(plotter.NewGrid())
	if len(pts) > 0 {
		l, err := plotter.NewLine(pts)
		if err != nil {
			httputil.InternalServerError(w, fmt.Sprintf("failed to plot %s: %v", name, err))
			return
		}
		l.Width = vg.Points(1)
		p.Add(l)
	}

	wt, err := p.WriterTo(8*vg.Inch, 4*vg.Inch, "png")
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to render chart: %v", err))
		return
	}
	var buf bytes.Buffer
	if _, err := wt.WriteTo(&buf); err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to render chart: %v", err))
		return
	}
	w.Header().Set("Content-Type", "image/png")
	_, _ = w.Write(buf.Bytes())
}
