package api

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rakuri2026/forest-management-sub001/internal/store"
)

// uploadAndClassify stores a small stand and runs the default grid over it,
// returning the dataset ID.
func uploadAndClassify(t *testing.T, s *Server) string {
	t.Helper()

	body := `{"name":"chart-stand","stems":[
		{"row":1,"x":2.0,"y":3.0,"diameter_cm":32.0},
		{"row":2,"x":4.0,"y":5.0,"diameter_cm":21.5},
		{"row":3,"x":40.0,"y":3.0,"diameter_cm":4.0}
	]}`
	w := doJSON(t, s, http.MethodPost, "/api/stems", body)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var ds store.StemDataset
	require.NoError(t, json.NewDecoder(w.Body).Decode(&ds))

	w = doJSON(t, s, http.MethodPost, "/api/stems/classify?dataset_id="+ds.DatasetID, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	return ds.DatasetID
}

func TestClassificationChart(t *testing.T) {
	s := setupTestServer(t)
	datasetID := uploadAndClassify(t, s)

	w := doJSON(t, s, http.MethodGet, "/api/charts/classification?dataset_id="+datasetID, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "text/html; charset=utf-8", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Body.String(), "echarts")
	assert.Contains(t, w.Body.String(), "Competition Outcome")

	w = doJSON(t, s, http.MethodGet, "/api/charts/classification?dataset_id=no-such-dataset", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestStemsChart(t *testing.T) {
	s := setupTestServer(t)
	datasetID := uploadAndClassify(t, s)

	w := doJSON(t, s, http.MethodGet, "/api/charts/stems?dataset_id="+datasetID, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "text/html; charset=utf-8", w.Header().Get("Content-Type"))
	body := w.Body.String()
	assert.Contains(t, body, "Mother Trees vs Felling")
	assert.Contains(t, body, "mother=1")
	assert.Contains(t, body, "seedling=1")

	w = doJSON(t, s, http.MethodGet, "/api/charts/stems", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

// Charts for an uploaded but never classified dataset report 404, not an
// empty plot.
func TestChartsRequireClassification(t *testing.T) {
	s := setupTestServer(t)

	body := `{"name":"raw-stand","stems":[{"row":1,"x":1.0,"y":1.0,"diameter_cm":18.0}]}`
	w := doJSON(t, s, http.MethodPost, "/api/stems", body)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var ds store.StemDataset
	require.NoError(t, json.NewDecoder(w.Body).Decode(&ds))

	for _, target := range []string{
		"/api/charts/classification?dataset_id=" + ds.DatasetID,
		"/api/charts/stems?dataset_id=" + ds.DatasetID,
	} {
		w = doJSON(t, s, http.MethodGet, target, "")
		assert.Equal(t, http.StatusNotFound, w.Code, target)
	}
}
