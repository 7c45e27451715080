package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/rakuri2026/forest-management-sub001/internal/httputil"
	"github.com/rakuri2026/forest-management-sub001/internal/sampling"
	"github.com/rakuri2026/forest-management-sub001/internal/store"
	"github.com/rakuri2026/forest-management-sub001/internal/treegrid"
)

// chartBounds accumulates planar extent so axes cover the data with a
// small margin.
type chartBounds struct {
	minX, maxX, minY, maxY float64
	any                    bool
}

func (b *chartBounds) add(x, y float64) {
	if !b.any {
		b.minX, b.maxX, b.minY, b.maxY = x, x, y, y
		b.any = true
		return
	}
	if x < b.minX {
		b.minX = x
	}
	if x > b.maxX {
		b.maxX = x
	}
	if y < b.minY {
		b.minY = y
	}
	if y > b.maxY {
		b.maxY = y
	}
}

// pad returns a margin of 5% of the larger span, so edge points stay
// visible.
func (b *chartBounds) pad() float64 {
	spanX := b.maxX - b.minX
	spanY := b.maxY - b.minY
	span := spanX
	if spanY > span {
		span = spanY
	}
	pad := span * 0.05
	if pad == 0 {
		pad = 1.0
	}
	return pad
}

// designPointsChart renders the plot centers of a stored design as a
// per-block scatter (HTML). Debugging-only endpoint for visually checking
// a design without the full UI.
func (s *Server) designPointsChart(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("id")
	if id == "" {
		httputil.BadRequest(w, "Missing 'id' parameter")
		return
	}

	sd, err := s.designs.Get(id)
	if err != nil {
		if store.IsNotFound(err) {
			httputil.NotFound(w, err.Error())
			return
		}
		httputil.InternalServerError(w, fmt.Sprintf("Failed to retrieve design: %v", err))
		return
	}

	var design sampling.Design
	if err := json.Unmarshal(sd.ResultJSON, &design); err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("Failed to decode design: %v", err))
		return
	}
	if design.TotalPoints == 0 {
		httputil.NotFound(w, "design has no points")
		return
	}

	var bounds chartBounds
	series := make(map[string][]opts.ScatterData, len(design.Blocks))
	for _, br := range design.Blocks {
		pts := make([]opts.ScatterData, 0, len(br.Points))
		for _, p := range br.Points {
			bounds.add(p.Easting, p.Northing)
			pts = append(pts, opts.ScatterData{Value: []interface{}{p.Easting, p.Northing}})
		}
		series[br.Block] = pts
	}
	pad := bounds.pad()

	scatter := charts.NewScatter()
	scatter.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Sampling Design", Theme: "dark", Width: "900px", Height: "900px", AssetsHost: s.cfg.GetChartAssetsHost()}),
		charts.WithTitleOpts(opts.Title{Title: "Sample Plot Centers", Subtitle: fmt.Sprintf("design=%s points=%d seed=%d", design.DesignID, design.TotalPoints, design.Seed)}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Min: bounds.minX - pad, Max: bounds.maxX + pad, Name: "Easting (m)", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Min: bounds.minY - pad, Max: bounds.maxY + pad, Name: "Northing (m)", NameLocation: "middle", NameGap: 30}),
	)
	for _, br := range design.Blocks {
		scatter.AddSeries(br.Block, series[br.Block], charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 8}))
	}

	var buf bytes.Buffer
	if err := scatter.Render(&buf); err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to render chart: %v", err))
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}

// classificationChart renders the competition outcome counts of a dataset
// as a bar chart (HTML).
func (s *Server) classificationChart(w http.ResponseWriter, r *http.Request) {
	datasetID := r.URL.Query().Get("dataset_id")
	if datasetID == "" {
		httputil.BadRequest(w, "Missing 'dataset_id' parameter")
		return
	}

	stems, err := s.stems.GetClassification(datasetID)
	if err != nil {
		if strings.Contains(err.Error(), "no saved classification") {
			httputil.NotFound(w, err.Error())
			return
		}
		httputil.InternalServerError(w, fmt.Sprintf("Failed to retrieve classification: %v", err))
		return
	}
	sum := treegrid.SummaryOf(stems)

	x := []string{"Mother", "Felling", "Seedling", "Cells", "Contested"}
	y := []opts.BarData{
		{Value: sum.Mother},
		{Value: sum.Felling},
		{Value: sum.Seedling},
		{Value: sum.CellsOccupied},
		{Value: sum.ContestedCells},
	}

	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: "100%", Height: "720px", AssetsHost: s.cfg.GetChartAssetsHost()}),
		charts.WithTitleOpts(opts.Title{Title: "Competition Outcome", Subtitle: fmt.Sprintf("dataset=%s stems=%d", datasetID, sum.Total)}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
	)
	bar.SetXAxis(x).
		AddSeries("classification", y,
			charts.WithLabelOpts(opts.Label{Show: opts.Bool(true), Position: "top"}),
		)

	page := components.NewPage()
	page.SetAssetsHost(s.cfg.GetChartAssetsHost())
	page.AddCharts(bar)

	var buf bytes.Buffer
	if err := page.Render(&buf); err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("render error: %v", err))
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}

// stemsChart renders classified stem positions as a three-series scatter
// overlay: mothers, felling candidates and seedlings.
func (s *Server) stemsChart(w http.ResponseWriter, r *http.Request) {
	datasetID := r.URL.Query().Get("dataset_id")
	if datasetID == "" {
		httputil.BadRequest(w, "Missing 'dataset_id' parameter")
		return
	}

	stems, err := s.stems.GetClassification(datasetID)
	if err != nil {
		if strings.Contains(err.Error(), "no saved classification") {
			httputil.NotFound(w, err.Error())
			return
		}
		httputil.InternalServerError(w, fmt.Sprintf("Failed to retrieve classification: %v", err))
		return
	}

	var bounds chartBounds
	motherPts := make([]opts.ScatterData, 0, len(stems))
	fellingPts := make([]opts.ScatterData, 0, len(stems))
	seedlingPts := make([]opts.ScatterData, 0, len(stems))
	for _, cs := range stems {
		bounds.add(cs.X, cs.Y)
		pt := opts.ScatterData{Value: []interface{}{cs.X, cs.Y, cs.DiameterCM}}
		switch cs.Classification {
		case treegrid.ClassMother:
			motherPts = append(motherPts, pt)
		case treegrid.ClassFelling:
			fellingPts = append(fellingPts, pt)
		case treegrid.ClassSeedling:
			seedlingPts = append(seedlingPts, pt)
		}
	}
	pad := bounds.pad()

	sum := treegrid.SummaryOf(stems)
	subtitle := fmt.Sprintf("dataset=%s mother=%d felling=%d seedling=%d contested=%d",
		datasetID, sum.Mother, sum.Felling, sum.Seedling, sum.ContestedCells)

	scatter := charts.NewScatter()
	scatter.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Stem Classification", Theme: "dark", Width: "900px", Height: "900px", AssetsHost: s.cfg.GetChartAssetsHost()}),
		charts.WithTitleOpts(opts.Title{Title: "Mother Trees vs Felling", Subtitle: subtitle}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Min: bounds.minX - pad, Max: bounds.maxX + pad, Name: "X (m)", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Min: bounds.minY - pad, Max: bounds.maxY + pad, Name: "Y (m)", NameLocation: "middle", NameGap: 30}),
	)

	scatter.AddSeries("seedling", seedlingPts, charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 4}), charts.WithItemStyleOpts(opts.ItemStyle{Color: "#9e9e9e"}))
	scatter.AddSeries("felling", fellingPts, charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 6}), charts.WithItemStyleOpts(opts.ItemStyle{Color: "#ff5252"}))
	scatter.AddSeries("mother", motherPts, charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 8}), charts.WithItemStyleOpts(opts.ItemStyle{Color: "#66bb6a"}))

	var buf bytes.Buffer
	if err := scatter.Render(&buf); err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to render stems chart: %v", err))
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}
