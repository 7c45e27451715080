package api

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/rakuri2026/forest-management-sub001/internal/httputil"
	"github.com/rakuri2026/forest-management-sub001/internal/store"
	"github.com/rakuri2026/forest-management-sub001/internal/treegrid"
)

type createDatasetRequest struct {
	Name     string          `json:"name"`
	ForestID string          `json:"forest_id,omitempty"`
	Stems    []treegrid.Stem `json:"stems"`
}

func (s *Server) handleStemDatasets(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.listStemDatasets(w, r)
	case http.MethodPost:
		s.createStemDataset(w, r)
	default:
		httputil.MethodNotAllowed(w)
	}
}

// createStemDataset stores an uploaded stem inventory. The body is either
// JSON ({name, forest_id, stems}) or raw CSV with text/csv content type, in
// which case name and forest_id come from query parameters.
func (s *Server) createStemDataset(w http.ResponseWriter, r *http.Request) {
	var req createDatasetRequest

	if strings.HasPrefix(r.Header.Get("Content-Type"), "text/csv") {
		stems, err := treegrid.ParseStemsCSV(r.Body)
		if err != nil {
			httputil.BadRequest(w, fmt.Sprintf("Invalid CSV body: %v", err))
			return
		}
		req.Stems = stems
		req.Name = r.URL.Query().Get("name")
		req.ForestID = r.URL.Query().Get("forest_id")
	} else {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httputil.BadRequest(w, fmt.Sprintf("Invalid JSON body: %v", err))
			return
		}
	}

	if req.Name == "" {
		httputil.BadRequest(w, "Missing 'name'")
		return
	}
	if len(req.Stems) == 0 {
		httputil.BadRequest(w, "Dataset has no stems")
		return
	}

	// Rows identify stems in corrections and classifications. Uploads may
	// omit them entirely, in which case input order numbers the stems.
	allZero := true
	for _, st := range req.Stems {
		if st.Row != 0 {
			allZero = false
			break
		}
	}
	if allZero {
		for i := range req.Stems {
			req.Stems[i].Row = i + 1
		}
	}
	seen := make(map[int]bool, len(req.Stems))
	for _, st := range req.Stems {
		if seen[st.Row] {
			httputil.BadRequest(w, fmt.Sprintf("Duplicate stem row %d", st.Row))
			return
		}
		seen[st.Row] = true
	}

	if req.ForestID != "" {
		if _, err := s.forests.Get(req.ForestID); err != nil {
			if store.IsNotFound(err) {
				httputil.BadRequest(w, fmt.Sprintf("Unknown forest_id %q", req.ForestID))
				return
			}
			httputil.InternalServerError(w, fmt.Sprintf("Failed to check forest: %v", err))
			return
		}
	}

	ds := &store.StemDataset{Name: req.Name, ForestID: req.ForestID}
	if err := s.stems.CreateDataset(ds, req.Stems); err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("Failed to store dataset: %v", err))
		return
	}

	httputil.WriteJSONOK(w, ds)
}

func (s *Server) listStemDatasets(w http.ResponseWriter, r *http.Request) {
	datasets, err := s.stems.ListDatasets()
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("Failed to retrieve datasets: %v", err))
		return
	}
	if datasets == nil {
		datasets = []*store.StemDataset{}
	}
	httputil.WriteJSONOK(w, datasets)
}

func (s *Server) showStemDataset(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}

	id := r.URL.Query().Get("id")
	if id == "" {
		httputil.BadRequest(w, "Missing 'id' parameter")
		return
	}

	ds, err := s.stems.GetDataset(id)
	if err != nil {
		if store.IsNotFound(err) {
			httputil.NotFound(w, err.Error())
			return
		}
		httputil.InternalServerError(w, fmt.Sprintf("Failed to retrieve dataset: %v", err))
		return
	}
	httputil.WriteJSONOK(w, ds)
}

// classifyParams is the optional classify body; absent fields fall back to
// the service configuration.
type classifyParams struct {
	SpacingM              *float64 `json:"spacing_m,omitempty"`
	SeedlingMaxDiameterCM *float64 `json:"seedling_max_diameter_cm,omitempty"`
	OriginX               *float64 `json:"origin_x,omitempty"`
	OriginY               *float64 `json:"origin_y,omitempty"`
}

// classifyStems runs grid competition over a dataset and persists the
// outcome, replacing any previous run. Stored corrections are replayed over
// the stem positions first, so the grid always sees the corrected stand.
func (s *Server) classifyStems(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return
	}

	datasetID := r.URL.Query().Get("dataset_id")
	if datasetID == "" {
		httputil.BadRequest(w, "Missing 'dataset_id' parameter")
		return
	}

	if _, err := s.stems.GetDataset(datasetID); err != nil {
		if store.IsNotFound(err) {
			httputil.NotFound(w, err.Error())
			return
		}
		httputil.InternalServerError(w, fmt.Sprintf("Failed to retrieve dataset: %v", err))
		return
	}

	var body classifyParams
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil && err != io.EOF {
		httputil.BadRequest(w, fmt.Sprintf("Invalid JSON body: %v", err))
		return
	}

	params := treegrid.Params{
		SpacingM:              s.cfg.GetGridSpacingM(),
		SeedlingMaxDiameterCM: s.cfg.GetSeedlingMaxDiameterCM(),
	}
	if body.SpacingM != nil {
		params.SpacingM = *body.SpacingM
	}
	if body.SeedlingMaxDiameterCM != nil {
		params.SeedlingMaxDiameterCM = *body.SeedlingMaxDiameterCM
	}
	params.OriginX = body.OriginX
	params.OriginY = body.OriginY

	stems, err := s.stems.ListStems(datasetID)
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("Failed to retrieve stems: %v", err))
		return
	}
	corrections, err := s.corrections.ListByDataset(datasetID)
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("Failed to retrieve corrections: %v", err))
		return
	}
	stems = treegrid.ApplyCorrections(stems, corrections)

	result, err := treegrid.Resolve(stems, params)
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}

	paramsJSON, err := json.Marshal(params)
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("Failed to encode params: %v", err))
		return
	}
	if err := s.stems.SaveClassification(datasetID, paramsJSON, result.Stems); err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("Failed to store classification: %v", err))
		return
	}

	httputil.WriteJSONOK(w, result)
}

type classificationResponse struct {
	DatasetID  string                    `json:"dataset_id"`
	ResolvedAt int64                     `json:"resolved_at"`
	Params     json.RawMessage           `json:"params,omitempty"`
	Summary    treegrid.Summary          `json:"summary"`
	Stems      []treegrid.ClassifiedStem `json:"stems"`
}

func (s *Server) showClassification(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}

	datasetID := r.URL.Query().Get("dataset_id")
	if datasetID == "" {
		httputil.BadRequest(w, "Missing 'dataset_id' parameter")
		return
	}

	ds, err := s.stems.GetDataset(datasetID)
	if err != nil {
		if store.IsNotFound(err) {
			httputil.NotFound(w, err.Error())
			return
		}
		httputil.InternalServerError(w, fmt.Sprintf("Failed to retrieve dataset: %v", err))
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

	httputil.WriteJSONOK(w, classificationResponse{
		DatasetID:  ds.DatasetID,
		ResolvedAt: ds.ResolvedAt,
		Params:     ds.ResolveParamsJSON,
		Summary:    treegrid.SummaryOf(stems),
		Stems:      stems,
	})
}

type correctionRequest struct {
	DatasetID  string  `json:"dataset_id"`
	Row        int     `json:"row"`
	CorrectedX float64 `json:"corrected_x"`
	CorrectedY float64 `json:"corrected_y"`
	Reason     string  `json:"reason,omitempty"`
}

func (s *Server) handleCorrections(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.listCorrections(w, r)
	case http.MethodPost:
		s.appendCorrection(w, r)
	default:
		httputil.MethodNotAllowed(w)
	}
}

// appendCorrection records one stem position fix. The original position
// comes from the stored stem, not the request, so the log entry always
// reflects what the dataset held at correction time.
func (s *Server) appendCorrection(w http.ResponseWriter, r *http.Request) {
	var req correctionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.BadRequest(w, fmt.Sprintf("Invalid JSON body: %v", err))
		return
	}
	if req.DatasetID == "" {
		req.DatasetID = r.URL.Query().Get("dataset_id")
	}
	if req.DatasetID == "" {
		httputil.BadRequest(w, "Missing 'dataset_id'")
		return
	}

	stems, err := s.stems.ListStems(req.DatasetID)
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("Failed to retrieve stems: %v", err))
		return
	}
	var stem *treegrid.Stem
	for i := range stems {
		if stems[i].Row == req.Row {
			stem = &stems[i]
			break
		}
	}
	if stem == nil {
		httputil.BadRequest(w, fmt.Sprintf("Row %d not in dataset", req.Row))
		return
	}

	c, err := treegrid.NewCorrection(req.DatasetID, *stem, req.CorrectedX, req.CorrectedY, req.Reason)
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	if err := s.corrections.Insert(&c); err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("Failed to store correction: %v", err))
		return
	}

	httputil.WriteJSONOK(w, c)
}

func (s *Server) listCorrections(w http.ResponseWriter, r *http.Request) {
	datasetID := r.URL.Query().Get("dataset_id")
	if datasetID == "" {
		httputil.BadRequest(w, "Missing 'dataset_id' parameter")
		return
	}

	if _, err := s.stems.GetDataset(datasetID); err != nil {
		if store.IsNotFound(err) {
			httputil.NotFound(w, err.Error())
			return
		}
		httputil.InternalServerError(w, fmt.Sprintf("Failed to retrieve dataset: %v", err))
		return
	}

	corrections, err := s.corrections.ListByDataset(datasetID)
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("Failed to retrieve corrections: %v", err))
		return
	}
	if corrections == nil {
		corrections = []treegrid.Correction{}
	}
	httputil.WriteJSONOK(w, corrections)
}
