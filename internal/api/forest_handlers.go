package api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/rakuri2026/forest-management-sub001/internal/forest"
	"github.com/rakuri2026/forest-management-sub001/internal/geo"
	"github.com/rakuri2026/forest-management-sub001/internal/httputil"
	"github.com/rakuri2026/forest-management-sub001/internal/sampling"
	"github.com/rakuri2026/forest-management-sub001/internal/store"
)

// createForestRequest is the upload payload: a boundary plus optional named
// blocks, all geometry as GeoJSON in WGS84.
type createForestRequest struct {
	Name     string          `json:"name"`
	Boundary json.RawMessage `json:"boundary"`
	Blocks   []uploadBlock   `json:"blocks,omitempty"`
}

type uploadBlock struct {
	Name     string          `json:"name"`
	Geometry json.RawMessage `json:"geometry"`
}

// forestResponse pairs the stored forest with the upload warnings, so the
// caller always sees which blocks were rejected and why.
type forestResponse struct {
	Forest   *store.Forest      `json:"forest"`
	Warnings []sampling.Warning `json:"warnings"`
}

func (s *Server) handleForests(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.listForests(w, r)
	case http.MethodPost:
		s.createForest(w, r)
	default:
		httputil.MethodNotAllowed(w)
	}
}

// createForest validates and stores a boundary with its blocks. An invalid
// boundary rejects the whole upload; an invalid block is skipped with a
// warning and the rest of the upload proceeds.
func (s *Server) createForest(w http.ResponseWriter, r *http.Request) {
	var req createForestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.BadRequest(w, fmt.Sprintf("Invalid JSON body: %v", err))
		return
	}
	if req.Name == "" {
		httputil.BadRequest(w, "Missing 'name'")
		return
	}
	if len(req.Boundary) == 0 {
		httputil.BadRequest(w, "Missing 'boundary' geometry")
		return
	}

	boundary, err := geo.NormalizeBoundary(req.Boundary)
	if err != nil {
		httputil.BadRequest(w, fmt.Sprintf("Invalid boundary: %v", err))
		return
	}

	warnings := make([]sampling.Warning, 0)
	subs := make([]forest.SubArea, 0, len(req.Blocks))
	rawByName := make(map[string]json.RawMessage, len(req.Blocks))
	for _, b := range req.Blocks {
		g, err := geo.ParsePolygonal(b.Geometry)
		if err != nil {
			warnings = append(warnings, sampling.Warning{
				Code: sampling.WarnInvalidBlock, Block: b.Name, Message: err.Error(),
			})
			continue
		}
		if _, dup := rawByName[b.Name]; !dup {
			rawByName[b.Name] = b.Geometry
		}
		subs = append(subs, forest.SubArea{Name: b.Name, Geometry: g})
	}

	blocks, failures := forest.Partition(boundary, subs)
	for _, f := range failures {
		warnings = append(warnings, sampling.FailureWarning(f))
	}

	f := &store.Forest{
		Name:            req.Name,
		BoundaryGeoJSON: req.Boundary,
		AreaHa:          boundary.AreaHa,
		UTMZone:         boundary.Projector.Zone,
		South:           boundary.Projector.South,
	}
	for _, b := range blocks {
		raw, ok := rawByName[b.Name]
		if !ok {
			// Implicit default block, derived again at design time.
			continue
		}
		f.Blocks = append(f.Blocks, &store.ForestBlock{
			Name:            b.Name,
			GeometryGeoJSON: raw,
			AreaHa:          b.AreaHa,
		})
	}

	if err := s.forests.Insert(f); err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("Failed to store forest: %v", err))
		return
	}

	httputil.WriteJSONOK(w, forestResponse{Forest: f, Warnings: warnings})
}

func (s *Server) listForests(w http.ResponseWriter, r *http.Request) {
	forests, err := s.forests.List()
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("Failed to retrieve forests: %v", err))
		return
	}
	if forests == nil {
		forests = []*store.Forest{}
	}
	httputil.WriteJSONOK(w, forests)
}

func (s *Server) showForest(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("id")
	if id == "" {
		httputil.BadRequest(w, "Missing 'id' parameter")
		return
	}

	switch r.Method {
	case http.MethodGet:
		f, err := s.forests.Get(id)
		if err != nil {
			if store.IsNotFound(err) {
				httputil.NotFound(w, err.Error())
				return
			}
			httputil.InternalServerError(w, fmt.Sprintf("Failed to retrieve forest: %v", err))
			return
		}
		httputil.WriteJSONOK(w, f)
	case http.MethodDelete:
		// Blocks and designs cascade; stem datasets survive with their
		// forest link cleared.
		if err := s.forests.Delete(id); err != nil {
			if store.IsNotFound(err) {
				httputil.NotFound(w, err.Error())
				return
			}
			httputil.InternalServerError(w, fmt.Sprintf("Failed to delete forest: %v", err))
			return
		}
		httputil.WriteJSONOK(w, map[string]string{"deleted": id})
	default:
		httputil.MethodNotAllowed(w)
	}
}
