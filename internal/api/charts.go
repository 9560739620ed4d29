package api

import (
	"bytes"
	"fmt"
	"image/color"
	"net/http"
	"strconv"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/banshee-data/area-monitor/internal/analytics"
	"github.com/banshee-data/area-monitor/internal/httputil"
)

const echartsAssetsPrefix = "https://go-echarts.github.io/go-echarts-assets/assets/"

// detectionChartHTML renders the rolling detection trend as an interactive
// line chart. Debugging aid; the JSON trend is the stable interface.
func (s *Server) detectionChartHTML(w http.ResponseWriter, r *http.Request) {
	p, ok := s.camera(w, r)
	if !ok {
		return
	}
	trend := p.DetectionTrend()

	frames := make([]string, len(trend))
	detections := make([]opts.LineData, len(trend))
	tracks := make([]opts.LineData, len(trend))
	for i, pt := range trend {
		frames[i] = strconv.FormatInt(pt.FrameNumber, 10)
		detections[i] = opts.LineData{Value: pt.Detections}
		tracks[i] = opts.LineData{Value: pt.Tracks}
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Detections", Width: "100%", Height: "480px", AssetsHost: echartsAssetsPrefix}),
		charts.WithTitleOpts(opts.Title{Title: "Detections per frame", Subtitle: fmt.Sprintf("camera=%s frames=%d", p.CameraID(), len(trend))}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: "frame", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Name: "count", NameLocation: "middle", NameGap: 30}),
	)
	line.SetXAxis(frames).
		AddSeries("detections", detections).
		AddSeries("tracks", tracks)

	var buf bytes.Buffer
	if err := line.Render(&buf); err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to render chart: %v", err))
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}

// detectionChartPNG renders the same trend as a static PNG.
func (s *Server) detectionChartPNG(w http.ResponseWriter, r *http.Request) {
	p, ok := s.camera(w, r)
	if !ok {
		return
	}
	img, err := renderTrendPNG(p.CameraID(), p.DetectionTrend())
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to render chart: %v", err))
		return
	}
	w.Header().Set("Content-Type", "image/png")
	_, _ = w.Write(img)
}

func renderTrendPNG(camera string, trend []analytics.TrendPoint) ([]byte, error) {
	pl := plot.New()
	pl.Title.Text = fmt.Sprintf("Detections per frame (%s)", camera)
	pl.X.Label.Text = "frame"
	pl.Y.Label.Text = "count"
	pl.Add(plotter.NewGrid())

	if len(trend) > 0 {
		detPts := make(plotter.XYs, len(trend))
		trkPts := make(plotter.XYs, len(trend))
		for i, pt := range trend {
			detPts[i] = plotter.XY{X: float64(pt.FrameNumber), Y: float64(pt.Detections)}
			trkPts[i] = plotter.XY{X: float64(pt.FrameNumber), Y: float64(pt.Tracks)}
		}

		detLine, err := plotter.NewLine(detPts)
		if err != nil {
			return nil, err
		}
		detLine.Color = color.RGBA{R: 31, G: 119, B: 180, A: 255}
		detLine.Width = vg.Points(1)

		trkLine, err := plotter.NewLine(trkPts)
		if err != nil {
			return nil, err
		}
		trkLine.Color = color.RGBA{R: 255, G: 127, B: 14, A: 255}
		trkLine.Width = vg.Points(1)

		pl.Add(detLine, trkLine)
		pl.Legend.Add("detections", detLine)
		pl.Legend.Add("tracks", trkLine)
		pl.Legend.Top = true
	}

	wt, err := pl.WriterTo(10*vg.Inch, 4*vg.Inch, "png")
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if _, err := wt.WriteTo(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
