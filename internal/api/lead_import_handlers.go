package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/leadforge/outreach/internal/leadimport"
	"github.com/leadforge/outreach/internal/pkg/logger"
	"github.com/leadforge/outreach/internal/repository/postgres"
	"github.com/leadforge/outreach/internal/storage"
)

// =============================================================================
// LEAD IMPORT HANDLERS
// =============================================================================
// HTTP surface of the CSV lead import pipeline:
// - Mapping analysis (suggestion-only, nothing persisted)
// - Full import with optional user-edited mapping
// - Import session progress polling
// - Semantic field reference for the mapping UI

// LeadImportHandlers provides HTTP handlers for CSV lead imports.
type LeadImportHandlers struct {
	orch     *leadimport.Orchestrator
	repo     *postgres.LeadListRepo
	files    storage.FileStore
	tracker  *leadimport.SessionTracker // nil when Redis is not configured
	preview  int
	maxBytes int64
}

// NewLeadImportHandlers creates a handler set around the pipeline.
func NewLeadImportHandlers(orch *leadimport.Orchestrator, repo *postgres.LeadListRepo, files storage.FileStore, tracker *leadimport.SessionTracker, previewRows, maxFileSizeMB int) *LeadImportHandlers {
	if previewRows <= 0 {
		previewRows = 5
	}
	if maxFileSizeMB <= 0 {
		maxFileSizeMB = 100
	}
	return &LeadImportHandlers{
		orch:     orch,
		repo:     repo,
		files:    files,
		tracker:  tracker,
		preview:  previewRows,
		maxBytes: int64(maxFileSizeMB) << 20,
	}
}

// RegisterRoutes registers the lead import routes.
func (h *LeadImportHandlers) RegisterRoutes(r chi.Router) {
	r.Route("/leads", func(r chi.Router) {
		r.Get("/import/fields", h.HandleGetFields)
		r.Post("/import/analyze", h.HandleAnalyze)
		r.Post("/import", h.HandleImport)
		r.Get("/import/{sessionId}/progress", h.HandleGetProgress)
	})
}

// HandleGetFields returns the semantic field vocabulary for the mapping UI.
// GET /api/leads/import/fields
func (h *LeadImportHandlers) HandleGetFields(w http.ResponseWriter, r *http.Request) {
	cfg := leadimport.DefaultClassifierConfig()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"fields":          cfg.Fields,
		"required_fields": []leadimport.SemanticType{leadimport.TypeProfileURL},
		"multi_use_types": []leadimport.SemanticType{leadimport.TypeCustomVariable, leadimport.TypeDoNotImport},
		"rules_version":   cfg.Version,
	})
}

// HandleAnalyze classifies headers without importing anything.
// POST /api/leads/import/analyze
// Accepts multipart/form-data with a "file" field, or application/json
// with a "content" field.
func (h *LeadImportHandlers) HandleAnalyze(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBytes)

	data, _, ok := h.readUpload(w, r)
	if !ok {
		return
	}

	table, mappings, err := h.orch.Suggest(data)
	if err != nil {
		writeError(w, err.Error(), http.StatusUnprocessableEntity)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"mappings":     mappings,
		"preview_data": table.SampleRows(h.preview),
		"total_rows":   table.RowCount(),
		"headers":      table.Headers,
	})
}

// HandleImport runs the full pipeline and persists the result.
// POST /api/leads/import
// Multipart fields: file (required), list_name, mapped_headers (optional
// JSON array of {column_name, mapped_type} from a prior analyze+edit).
func (h *LeadImportHandlers) HandleImport(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	// Cap the body before anything touches the form; the multipart
	// memory threshold below does not reject oversized uploads.
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBytes)

	orgID := getOrgID(r)
	if orgID == "" {
		writeError(w, "organization id is required", http.StatusBadRequest)
		return
	}

	data, filename, ok := h.readUpload(w, r)
	if !ok {
		return
	}

	var mapping []leadimport.ColumnMapping
	if raw := r.FormValue("mapped_headers"); raw != "" {
		var err error
		mapping, err = decodeMappedHeaders([]byte(raw))
		if err != nil {
			writeError(w, fmt.Sprintf("invalid mapped_headers: %v", err), http.StatusBadRequest)
			return
		}
	}

	listName := r.FormValue("list_name")
	if listName == "" {
		listName = strings.TrimSuffix(filename, ".csv")
	}
	if listName == "" {
		listName = "Imported leads"
	}

	// Stash the raw upload so a failed import can be retried server-side;
	// the orchestrator signals its release on both outcome paths.
	tempPath := ""
	if h.files != nil {
		if key, err := h.files.Store(ctx, filename, bytes.NewReader(data)); err != nil {
			logger.Warn("temp upload store failed", "filename", filename, "error", err)
		} else {
			tempPath = key
		}
	}

	sessionID := uuid.New().String()
	if h.tracker != nil {
		if err := h.tracker.Create(ctx, sessionID, orgID, filename); err != nil {
			logger.Warn("import session create failed", "session_id", sessionID, "error", err)
		}
	}

	var jobID string
	if h.repo != nil {
		if id, err := h.repo.CreateImportJob(ctx, orgID, filename); err != nil {
			logger.Warn("import job create failed", "error", err)
		} else {
			jobID = id
		}
	}

	result, err := h.orch.Import(ctx, leadimport.ImportRequest{
		SessionID:       sessionID,
		OrganizationID:  orgID,
		ListName:        listName,
		FileData:        data,
		TempPath:        tempPath,
		ExistingMapping: mapping,
	})
	if err != nil {
		h.completeJob(ctx, jobID, "", "failed", nil, err.Error())
		writeImportError(w, err)
		return
	}

	status := "completed"
	if !result.DurablySaved {
		status = "completed_unsaved"
	}
	h.completeJob(ctx, jobID, result.LeadListID, status, result, "")

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"lead_list_id":    result.LeadListID,
		"session_id":      sessionID,
		"processed_leads": result.Leads,
		"total_rows":      result.TotalRows,
		"accepted_count":  result.AcceptedCount,
		"rejected_count":  result.RejectedCount,
		"mappings":        result.Mappings,
		"report":          result.Report,
		"durably_saved":   result.DurablySaved,
		"warning":         result.Warning,
	})
}

// HandleGetProgress returns the state of an import session.
// GET /api/leads/import/{sessionId}/progress
func (h *LeadImportHandlers) HandleGetProgress(w http.ResponseWriter, r *http.Request) {
	if h.tracker == nil {
		writeError(w, "session tracking is not configured", http.StatusNotImplemented)
		return
	}
	session, err := h.tracker.Get(r.Context(), chi.URLParam(r, "sessionId"))
	if err != nil {
		if errors.Is(err, leadimport.ErrSessionNotFound) {
			writeError(w, "import session not found", http.StatusNotFound)
			return
		}
		writeError(w, fmt.Sprintf("failed to get session: %v", err), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, session)
}

// readUpload pulls CSV bytes out of a multipart "file" field or a JSON
// {"content": "..."} body. Writes the error response itself on failure.
func (h *LeadImportHandlers) readUpload(w http.ResponseWriter, r *http.Request) (data []byte, filename string, ok bool) {
	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		var req struct {
			Content  string `json:"content"`
			Filename string `json:"filename"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			if isBodyTooLarge(err) {
				writeError(w, "file too large", http.StatusRequestEntityTooLarge)
				return nil, "", false
			}
			writeError(w, "invalid request body", http.StatusBadRequest)
			return nil, "", false
		}
		if req.Content == "" {
			writeError(w, "content is required", http.StatusBadRequest)
			return nil, "", false
		}
		return []byte(req.Content), req.Filename, true
	}

	if err := r.ParseMultipartForm(h.maxBytes); err != nil {
		if isBodyTooLarge(err) {
			writeError(w, "file too large", http.StatusRequestEntityTooLarge)
			return nil, "", false
		}
		writeError(w, "invalid multipart form data", http.StatusBadRequest)
		return nil, "", false
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, "file is required", http.StatusBadRequest)
		return nil, "", false
	}
	defer file.Close()

	data, err = io.ReadAll(file)
	if err != nil {
		writeError(w, "failed to read file", http.StatusBadRequest)
		return nil, "", false
	}
	return data, header.Filename, true
}

func isBodyTooLarge(err error) bool {
	var mbe *http.MaxBytesError
	return errors.As(err, &mbe)
}

func (h *LeadImportHandlers) completeJob(ctx context.Context, jobID, listID, status string, result *leadimport.ImportResult, errMsg string) {
	if h.repo == nil || jobID == "" {
		return
	}
	total, accepted, rejected := 0, 0, 0
	if result != nil {
		total, accepted, rejected = result.TotalRows, result.AcceptedCount, result.RejectedCount
	}
	if err := h.repo.CompleteImportJob(ctx, jobID, listID, status, total, accepted, rejected, errMsg); err != nil {
		logger.Warn("import job completion failed", "job_id", jobID, "error", err)
	}
}

// writeImportError maps pipeline failures to status codes, always as
// {"error": msg} with an actionable message.
func writeImportError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, leadimport.ErrEmptyCSV), errors.Is(err, leadimport.ErrNoHeaders):
		writeError(w, "the file is empty or not a valid CSV — upload a UTF-8 CSV with a header row", http.StatusUnprocessableEntity)
	case errors.Is(err, leadimport.ErrNoMappedURLColumn):
		writeError(w, "map at least one column as LinkedIn URL", http.StatusUnprocessableEntity)
	case errors.Is(err, leadimport.ErrNoValidURLs):
		writeError(w, "no valid LinkedIn URLs found — check your column mapping", http.StatusUnprocessableEntity)
	case errors.Is(err, leadimport.ErrMappingConflict):
		writeError(w, err.Error(), http.StatusConflict)
	case errors.Is(err, leadimport.ErrUnknownColumn):
		writeError(w, err.Error(), http.StatusUnprocessableEntity)
	case errors.Is(err, context.Canceled):
		writeError(w, "import cancelled", 499)
	default:
		writeError(w, fmt.Sprintf("import failed: %v", err), http.StatusInternalServerError)
	}
}

// decodeMappedHeaders accepts the wire forms a mapping edit can arrive
// in: {"column_name": ..., "mapped_type": ...} from the import dialog, or
// the suggestion-only variant {"standard_header": ..., "matched_header": ...}.
func decodeMappedHeaders(raw []byte) ([]leadimport.ColumnMapping, error) {
	var entries []map[string]string
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, err
	}
	out := make([]leadimport.ColumnMapping, 0, len(entries))
	for i, e := range entries {
		name := firstOf(e, "column_name", "columnName", "matched_header")
		typ := firstOf(e, "mapped_type", "mappedType", "standard_header")
		if name == "" || typ == "" {
			return nil, fmt.Errorf("entry %d: column name and mapped type are required", i)
		}
		out = append(out, leadimport.ColumnMapping{
			ColumnName: name,
			MappedType: leadimport.SemanticType(typ),
		})
	}
	return out, nil
}

func firstOf(m map[string]string, keys ...string) string {
	for _, k := range keys {
		if v := m[k]; v != "" {
			return v
		}
	}
	return ""
}

func getOrgID(r *http.Request) string {
	if v := r.Header.Get("X-Organization-ID"); v != "" {
		return v
	}
	if v := r.FormValue("org_id"); v != "" {
		return v
	}
	return r.URL.Query().Get("org_id")
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, message string, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
