package api

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leadforge/outreach/internal/leadimport"
)

// memStore is an in-memory leadimport.LeadStore for handler tests.
type memStore struct {
	lists []*leadimport.LeadList
	leads map[string][]leadimport.LeadRecord
	fail  bool
}

func newMemStore() *memStore {
	return &memStore{leads: make(map[string][]leadimport.LeadRecord)}
}

func (s *memStore) CreateLeadList(_ context.Context, list *leadimport.LeadList) error {
	if s.fail {
		return assert.AnError
	}
	s.lists = append(s.lists, list)
	return nil
}

func (s *memStore) BulkInsertLeads(_ context.Context, listID, _ string, leads []leadimport.LeadRecord) (int, error) {
	s.leads[listID] = leads
	return len(leads), nil
}

func newTestRouter(t *testing.T, store leadimport.LeadStore) http.Handler {
	t.Helper()
	orch := leadimport.NewOrchestrator(leadimport.DefaultClassifierConfig(), store, nil, nil)
	imports := NewLeadImportHandlers(orch, nil, nil, nil, 5, 100)
	return SetupRoutes(imports, nil)
}

func multipartUpload(t *testing.T, fields map[string]string, filename, content string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	fw, err := w.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = fw.Write([]byte(content))
	require.NoError(t, err)
	for k, v := range fields {
		require.NoError(t, w.WriteField(k, v))
	}
	require.NoError(t, w.Close())
	return &buf, w.FormDataContentType()
}

const leadsCSV = `Full Name,LinkedIn,Org
Jane Doe,linkedin.com/in/janedoe,Acme
John Roe,linkedin.com/in/johnroe,Initech
`

func TestHandleAnalyze(t *testing.T) {
	router := newTestRouter(t, newMemStore())

	body, contentType := multipartUpload(t, nil, "leads.csv", leadsCSV)
	req := httptest.NewRequest(http.MethodPost, "/api/leads/import/analyze", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Mappings    []leadimport.ColumnMapping `json:"mappings"`
		PreviewData [][]string                 `json:"preview_data"`
		TotalRows   int                        `json:"total_rows"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 2, resp.TotalRows)
	assert.Len(t, resp.PreviewData, 2)

	found := false
	for _, m := range resp.Mappings {
		if m.ColumnName == "LinkedIn" {
			assert.Equal(t, leadimport.TypeProfileURL, m.MappedType)
			found = true
		}
	}
	assert.True(t, found)
}

func TestHandleAnalyzeJSONBody(t *testing.T) {
	router := newTestRouter(t, newMemStore())

	payload, _ := json.Marshal(map[string]string{"content": leadsCSV, "filename": "leads.csv"})
	req := httptest.NewRequest(http.MethodPost, "/api/leads/import/analyze", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHandleAnalyzeEmptyFile(t *testing.T) {
	router := newTestRouter(t, newMemStore())

	body, contentType := multipartUpload(t, nil, "empty.csv", "")
	req := httptest.NewRequest(http.MethodPost, "/api/leads/import/analyze", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	var resp map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Contains(t, resp["error"], "empty or invalid CSV")
}

func TestHandleImport(t *testing.T) {
	store := newMemStore()
	router := newTestRouter(t, store)

	body, contentType := multipartUpload(t, map[string]string{"list_name": "Q3 prospects"}, "leads.csv", leadsCSV)
	req := httptest.NewRequest(http.MethodPost, "/api/leads/import", body)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("X-Organization-ID", "org1")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp struct {
		LeadListID     string `json:"lead_list_id"`
		AcceptedCount  int    `json:"accepted_count"`
		RejectedCount  int    `json:"rejected_count"`
		DurablySaved   bool   `json:"durably_saved"`
		ProcessedLeads []leadimport.LeadRecord `json:"processed_leads"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.LeadListID)
	assert.Equal(t, 2, resp.AcceptedCount)
	assert.True(t, resp.DurablySaved)
	assert.Len(t, resp.ProcessedLeads, 2)

	require.Len(t, store.lists, 1)
	assert.Equal(t, "Q3 prospects", store.lists[0].Name)
}

func TestHandleImportRequiresOrg(t *testing.T) {
	router := newTestRouter(t, newMemStore())

	body, contentType := multipartUpload(t, nil, "leads.csv", leadsCSV)
	req := httptest.NewRequest(http.MethodPost, "/api/leads/import", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleImportWithEditedMapping(t *testing.T) {
	store := newMemStore()
	router := newTestRouter(t, store)

	mapped, _ := json.Marshal([]map[string]string{
		{"column_name": "Full Name", "mapped_type": "first_name"},
		{"column_name": "LinkedIn", "mapped_type": "profile_url"},
		{"column_name": "Org", "mapped_type": "company"},
	})
	body, contentType := multipartUpload(t, map[string]string{
		"list_name":      "edited",
		"mapped_headers": string(mapped),
	}, "leads.csv", leadsCSV)
	req := httptest.NewRequest(http.MethodPost, "/api/leads/import", body)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("X-Organization-ID", "org1")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.Len(t, store.lists, 1)
	leads := store.leads[store.lists[0].ID]
	require.Len(t, leads, 2)
	assert.Equal(t, "Acme", leads[0].Company)
}

func TestHandleImportWithOutOfOrderEditedMapping(t *testing.T) {
	store := newMemStore()
	router := newTestRouter(t, store)

	// Entry order is the client's, not the file's; columns resolve by name.
	mapped, _ := json.Marshal([]map[string]string{
		{"column_name": "Org", "mapped_type": "company"},
		{"column_name": "LinkedIn", "mapped_type": "profile_url"},
		{"column_name": "Full Name", "mapped_type": "first_name"},
	})
	body, contentType := multipartUpload(t, map[string]string{
		"list_name":      "edited",
		"mapped_headers": string(mapped),
	}, "leads.csv", leadsCSV)
	req := httptest.NewRequest(http.MethodPost, "/api/leads/import", body)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("X-Organization-ID", "org1")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.Len(t, store.lists, 1)
	leads := store.leads[store.lists[0].ID]
	require.Len(t, leads, 2)
	assert.Equal(t, "Jane Doe", leads[0].FirstName)
	assert.Equal(t, "https://linkedin.com/in/janedoe", leads[0].ProfileURL)
	assert.Equal(t, "Acme", leads[0].Company)
}

func TestHandleImportMappingUnknownColumn(t *testing.T) {
	router := newTestRouter(t, newMemStore())

	mapped, _ := json.Marshal([]map[string]string{
		{"column_name": "Profile", "mapped_type": "profile_url"},
	})
	body, contentType := multipartUpload(t, map[string]string{"mapped_headers": string(mapped)}, "leads.csv", leadsCSV)
	req := httptest.NewRequest(http.MethodPost, "/api/leads/import", body)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("X-Organization-ID", "org1")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	var resp map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Contains(t, resp["error"], "Profile")
}

func TestHandleImportRejectsOversizedUpload(t *testing.T) {
	orch := leadimport.NewOrchestrator(leadimport.DefaultClassifierConfig(), newMemStore(), nil, nil)
	imports := NewLeadImportHandlers(orch, nil, nil, nil, 5, 1) // 1 MB cap
	router := SetupRoutes(imports, nil)

	big := leadsCSV + strings.Repeat("Pad Row,linkedin.com/in/pad,Pad\n", 40000)
	body, contentType := multipartUpload(t, map[string]string{"list_name": "big"}, "big.csv", big)
	req := httptest.NewRequest(http.MethodPost, "/api/leads/import", body)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("X-Organization-ID", "org1")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

func TestHandleImportMappingConflict(t *testing.T) {
	router := newTestRouter(t, newMemStore())

	mapped, _ := json.Marshal([]map[string]string{
		{"column_name": "Full Name", "mapped_type": "profile_url"},
		{"column_name": "LinkedIn", "mapped_type": "profile_url"},
	})
	body, contentType := multipartUpload(t, map[string]string{"mapped_headers": string(mapped)}, "leads.csv", leadsCSV)
	req := httptest.NewRequest(http.MethodPost, "/api/leads/import", body)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("X-Organization-ID", "org1")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestHandleImportNoValidURLs(t *testing.T) {
	router := newTestRouter(t, newMemStore())

	body, contentType := multipartUpload(t, nil, "leads.csv", "profile_url\nnot-a-url\n")
	req := httptest.NewRequest(http.MethodPost, "/api/leads/import", body)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("X-Organization-ID", "org1")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	var resp map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Contains(t, resp["error"], "check your column mapping")
}

func TestHandleImportPersistenceFailureStillSucceeds(t *testing.T) {
	store := newMemStore()
	store.fail = true
	router := newTestRouter(t, store)

	body, contentType := multipartUpload(t, nil, "leads.csv", leadsCSV)
	req := httptest.NewRequest(http.MethodPost, "/api/leads/import", body)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("X-Organization-ID", "org1")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	// The verified data comes back to the caller instead of an error.
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		DurablySaved bool   `json:"durably_saved"`
		Warning      string `json:"warning"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.False(t, resp.DurablySaved)
	assert.NotEmpty(t, resp.Warning)
}

func TestHandleGetFields(t *testing.T) {
	router := newTestRouter(t, newMemStore())

	req := httptest.NewRequest(http.MethodGet, "/api/leads/import/fields", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Fields       []leadimport.CanonicalField `json:"fields"`
		RulesVersion string                      `json:"rules_version"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.Fields)
	assert.NotEmpty(t, resp.RulesVersion)
}

func TestHandleGetProgressWithoutTracker(t *testing.T) {
	router := newTestRouter(t, newMemStore())

	req := httptest.NewRequest(http.MethodGet, "/api/leads/import/abc/progress", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotImplemented, rec.Code)
}

func TestDecodeMappedHeadersWireForms(t *testing.T) {
	forms := []string{
		`[{"column_name":"LinkedIn","mapped_type":"profile_url"}]`,
		`[{"columnName":"LinkedIn","mappedType":"profile_url"}]`,
		`[{"matched_header":"LinkedIn","standard_header":"profile_url"}]`,
	}
	for _, raw := range forms {
		out, err := decodeMappedHeaders([]byte(raw))
		require.NoError(t, err, raw)
		require.Len(t, out, 1)
		assert.Equal(t, "LinkedIn", out[0].ColumnName)
		assert.Equal(t, leadimport.TypeProfileURL, out[0].MappedType)
	}

	_, err := decodeMappedHeaders([]byte(`[{"column_name":"x"}]`))
	assert.Error(t, err)
	_, err = decodeMappedHeaders([]byte(`not json`))
	assert.Error(t, err)
}

func TestHealthEndpoint(t *testing.T) {
	router := newTestRouter(t, newMemStore())

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "ok")
}
