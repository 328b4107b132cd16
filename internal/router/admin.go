package router

import (
	"bytes"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
	"tailscale.com/tsweb"

	"github.com/banshee-data/clpe-bridge/internal/httputil"
)

const echartsAssetsHost = "https://go-echarts.github.io/go-echarts-assets/assets/"

// AttachAdminRoutes mounts router statistics under /debug/router/ on mux.
func (r *Router) AttachAdminRoutes(mux *http.ServeMux) {
	debug := tsweb.Debugger(mux)

	debug.HandleFunc("router/stats", "Per-camera delivery counters (JSON)", func(w http.ResponseWriter, req *http.Request) {
		httputil.WriteJSON(w, http.StatusOK, r.stats.Snapshot())
	})

	debug.HandleFunc("router/chart", "Per-camera delivery counters (chart)", r.handleStatsChart)
}

func (r *Router) handleStatsChart(w http.ResponseWriter, req *http.Request) {
	snap := r.stats.Snapshot()

	x := make([]string, len(snap.Cameras))
	delivered := make([]opts.BarData, len(snap.Cameras))
	dropped := make([]opts.BarData, len(snap.Cameras))
	calErrs := make([]opts.BarData, len(snap.Cameras))
	pubErrs := make([]opts.BarData, len(snap.Cameras))
	gaps := make([]opts.BarData, len(snap.Cameras))
	for i, c := range snap.Cameras {
		x[i] = "cam " + strconv.Itoa(c.CameraID)
		delivered[i] = opts.BarData{Value: c.Delivered}
		dropped[i] = opts.BarData{Value: c.Dropped}
		calErrs[i] = opts.BarData{Value: c.CalibrationErrors}
		pubErrs[i] = opts.BarData{Value: c.PublishErrors}
		gaps[i] = opts.BarData{Value: c.Gaps}
	}

	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "CLPE Router", Width: "100%", Height: "640px", AssetsHost: echartsAssetsHost}),
		charts.WithTitleOpts(opts.Title{
			Title:    "Frame delivery by camera",
			Subtitle: fmt.Sprintf("%s, %d out-of-range instances", time.Now().Format(time.RFC3339), snap.OutOfRange),
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
	)
	label := charts.WithLabelOpts(opts.Label{Show: opts.Bool(true), Position: "top"})
	bar.SetXAxis(x).
		AddSeries("delivered", delivered, label).
		AddSeries("dropped", dropped, label).
		AddSeries("calibration errors", calErrs, label).
		AddSeries("publish errors", pubErrs, label).
		AddSeries("gaps", gaps, label)

	page := components.NewPage()
	page.SetAssetsHost(echartsAssetsHost)
	page.AddCharts(bar)

	var buf bytes.Buffer
	if err := page.Render(&buf); err != nil {
		httputil.WriteError(w, http.StatusInternalServerError, fmt.Sprintf("render error: %v", err))
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}
