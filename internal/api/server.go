// Package api exposes the sampling design and competition services over a
// JSON HTTP API, plus go-echarts debug charts for quick visual checks.
package api

import (
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/rakuri2026/forest-management-sub001/internal/config"
	"github.com/rakuri2026/forest-management-sub001/internal/httputil"
	"github.com/rakuri2026/forest-management-sub001/internal/store"
	"github.com/rakuri2026/forest-management-sub001/internal/version"
)

// ANSI escape codes for cyan and reset
const colorCyan = "\033[36m"
const colorReset = "\033[0m"
const colorYellow = "\033[33m"
const colorBoldGreen = "\033[1;32m"
const colorBoldRed = "\033[1;31m"

type Server struct {
	db          *store.DB
	cfg         *config.ServiceConfig
	forests     *store.ForestStore
	designs     *store.DesignStore
	stems       *store.StemStore
	corrections *store.CorrectionStore
}

func NewServer(db *store.DB, cfg *config.ServiceConfig) *Server {
	return &Server{
		db:          db,
		cfg:         cfg,
		forests:     store.NewForestStore(db.DB),
		designs:     store.NewDesignStore(db.DB),
		stems:       store.NewStemStore(db.DB),
		corrections: store.NewCorrectionStore(db.DB),
	}
}

type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.statusCode = code
	lrw.ResponseWriter.WriteHeader(code)
}

func (lrw *loggingResponseWriter) Flush() {
	if flusher, ok := lrw.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

func statusCodeColor(statusCode int) string {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return colorBoldGreen + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 300 && statusCode < 400:
		return colorYellow + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 400:
		return colorBoldRed + strconv.Itoa(statusCode) + colorReset
	default:
		return strconv.Itoa(statusCode)
	}
}

// LoggingMiddleware logs method, path, query, status, and duration
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &loggingResponseWriter{w, http.StatusOK}
		next.ServeHTTP(lrw, r)
		log.Printf(
			"[%s] %s %s%s%s %vms",
			statusCodeColor(lrw.statusCode), r.Method,
			colorCyan, r.RequestURI, colorReset,
			float64(time.Since(start).Nanoseconds())/1e6,
		)
	})
}

func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/forests", s.handleForests)
	mux.HandleFunc("/api/forest", s.showForest)
	mux.HandleFunc("/api/designs/generate", s.generateDesign)
	mux.HandleFunc("/api/designs", s.listDesigns)
	mux.HandleFunc("/api/design", s.showDesign)
	mux.HandleFunc("/api/stems", s.handleStemDatasets)
	mux.HandleFunc("/api/stem_dataset", s.showStemDataset)
	mux.HandleFunc("/api/stems/classify", s.classifyStems)
	mux.HandleFunc("/api/classification", s.showClassification)
	mux.HandleFunc("/api/corrections", s.handleCorrections)
	mux.HandleFunc("/api/charts/design_points", s.designPointsChart)
	mux.HandleFunc("/api/charts/classification", s.classificationChart)
	mux.HandleFunc("/api/charts/stems", s.stemsChart)
	mux.HandleFunc("/api/config", s.showConfig)
	return mux
}

func (s *Server) showConfig(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}

	config := map[string]interface{}{
		"version":                  version.String(),
		"circle_vertices":          s.cfg.GetCircleVertices(),
		"random_retry_multiplier":  s.cfg.GetRandomRetryMultiplier(),
		"grid_spacing_m":           s.cfg.GetGridSpacingM(),
		"seedling_max_diameter_cm": s.cfg.GetSeedlingMaxDiameterCM(),
	}

	httputil.WriteJSONOK(w, config)
}
