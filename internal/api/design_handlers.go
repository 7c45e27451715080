package api

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/rakuri2026/forest-management-sub001/internal/forest"
	"github.com/rakuri2026/forest-management-sub001/internal/geo"
	"github.com/rakuri2026/forest-management-sub001/internal/httputil"
	"github.com/rakuri2026/forest-management-sub001/internal/sampling"
	"github.com/rakuri2026/forest-management-sub001/internal/store"
)

// generateDesign runs a sampling design for a stored forest and persists
// the result. The body carries defaults, per-block overrides, an optional
// exclusion geometry and an optional seed; an empty body runs the system
// defaults.
func (s *Server) generateDesign(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return
	}

	var req sampling.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && err != io.EOF {
		httputil.BadRequest(w, fmt.Sprintf("Invalid JSON body: %v", err))
		return
	}
	if fid := r.URL.Query().Get("forest_id"); fid != "" {
		req.ForestID = fid
	}
	if req.ForestID == "" {
		httputil.BadRequest(w, "Missing 'forest_id' parameter")
		return
	}

	f, err := s.forests.Get(req.ForestID)
	if err != nil {
		if store.IsNotFound(err) {
			httputil.NotFound(w, err.Error())
			return
		}
		httputil.InternalServerError(w, fmt.Sprintf("Failed to retrieve forest: %v", err))
		return
	}

	boundary, err := geo.NormalizeBoundary(f.BoundaryGeoJSON)
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("Stored boundary invalid: %v", err))
		return
	}

	subs, failures := decodeStoredBlocks(f.Blocks)
	blocks, partFailures := forest.Partition(boundary, subs)
	failures = append(failures, partFailures...)

	req.RetryMultiplier = s.cfg.GetRandomRetryMultiplier()
	req.CircleVertices = s.cfg.GetCircleVertices()

	design, err := sampling.Generate(boundary, blocks, failures, req)
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}

	paramsJSON, err := json.Marshal(req)
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("Failed to encode params: %v", err))
		return
	}
	resultJSON, err := json.Marshal(design)
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("Failed to encode design: %v", err))
		return
	}

	sd := &store.StoredDesign{
		DesignID:    design.DesignID,
		ForestID:    f.ForestID,
		Seed:        design.Seed,
		ParamsJSON:  paramsJSON,
		ResultJSON:  resultJSON,
		TotalPoints: design.TotalPoints,
		CreatedAt:   design.CreatedAt,
	}
	if err := s.designs.Insert(sd); err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("Failed to store design: %v", err))
		return
	}

	httputil.WriteJSONOK(w, design)
}

// decodeStoredBlocks parses stored block geometries back into sub-areas.
// Blocks were validated at upload; a decode failure here is folded into the
// design warnings rather than aborting the run.
func decodeStoredBlocks(stored []*store.ForestBlock) ([]forest.SubArea, []forest.Failure) {
	subs := make([]forest.SubArea, 0, len(stored))
	var failures []forest.Failure
	for _, b := range stored {
		g, err := geo.ParsePolygonal(b.GeometryGeoJSON)
		if err != nil {
			failures = append(failures, forest.Failure{Block: b.Name, Err: err})
			continue
		}
		subs = append(subs, forest.SubArea{Name: b.Name, Geometry: g})
	}
	return subs, failures
}

func (s *Server) showDesign(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("id")
	if id == "" {
		httputil.BadRequest(w, "Missing 'id' parameter")
		return
	}

	switch r.Method {
	case http.MethodGet:
		d, err := s.designs.Get(id)
		if err != nil {
			if store.IsNotFound(err) {
				httputil.NotFound(w, err.Error())
				return
			}
			httputil.InternalServerError(w, fmt.Sprintf("Failed to retrieve design: %v", err))
			return
		}
		httputil.WriteJSONOK(w, d)
	case http.MethodDelete:
		if err := s.designs.Delete(id); err != nil {
			if store.IsNotFound(err) {
				httputil.NotFound(w, err.Error())
				return
			}
			httputil.InternalServerError(w, fmt.Sprintf("Failed to delete design: %v", err))
			return
		}
		httputil.WriteJSONOK(w, map[string]string{"deleted": id})
	default:
		httputil.MethodNotAllowed(w)
	}
}

// designSummary trims the stored rows for listing; the full result JSON
// with every point stays behind /api/design.
type designSummary struct {
	DesignID    string `json:"design_id"`
	ForestID    string `json:"forest_id"`
	Seed        int64  `json:"seed"`
	TotalPoints int    `json:"total_points"`
	CreatedAt   int64  `json:"created_at"`
}

func (s *Server) listDesigns(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}

	forestID := r.URL.Query().Get("forest_id")
	if forestID == "" {
		httputil.BadRequest(w, "Missing 'forest_id' parameter")
		return
	}

	designs, err := s.designs.ListByForest(forestID)
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("Failed to retrieve designs: %v", err))
		return
	}

	summaries := make([]designSummary, len(designs))
	for i, d := range designs {
		summaries[i] = designSummary{
			DesignID:    d.DesignID,
			ForestID:    d.ForestID,
			Seed:        d.Seed,
			TotalPoints: d.TotalPoints,
			CreatedAt:   d.CreatedAt,
		}
	}
	httputil.WriteJSONOK(w, summaries)
}
