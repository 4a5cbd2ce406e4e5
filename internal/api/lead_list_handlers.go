package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/leadforge/outreach/internal/repository/postgres"
)

// LeadListHandlers serves the persisted lead list resources.
type LeadListHandlers struct {
	repo *postgres.LeadListRepo
}

func NewLeadListHandlers(repo *postgres.LeadListRepo) *LeadListHandlers {
	return &LeadListHandlers{repo: repo}
}

// RegisterRoutes registers the lead list routes.
func (h *LeadListHandlers) RegisterRoutes(r chi.Router) {
	r.Route("/leads/lists", func(r chi.Router) {
		r.Get("/", h.HandleList)
		r.Get("/{id}", h.HandleGet)
		r.Delete("/{id}", h.HandleDelete)
		r.Patch("/{id}/active", h.HandleSetActive)
	})
}

// HandleList returns a page of lead lists for the organization,
// newest first.
// GET /api/leads/lists?limit=20&offset=0
func (h *LeadListHandlers) HandleList(w http.ResponseWriter, r *http.Request) {
	orgID := getOrgID(r)
	if orgID == "" {
		writeError(w, "organization id is required", http.StatusBadRequest)
		return
	}

	limit := queryInt(r, "limit", 20)
	if limit > 100 {
		limit = 100
	}
	offset := queryInt(r, "offset", 0)

	lists, total, err := h.repo.ListLeadLists(r.Context(), orgID, limit, offset)
	if err != nil {
		writeError(w, fmt.Sprintf("failed to list lead lists: %v", err), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"lists":  lists,
		"total":  total,
		"limit":  limit,
		"offset": offset,
	})
}

// HandleGet returns a single lead list with its leads.
// GET /api/leads/lists/{id}
func (h *LeadListHandlers) HandleGet(w http.ResponseWriter, r *http.Request) {
	orgID := getOrgID(r)
	if orgID == "" {
		writeError(w, "organization id is required", http.StatusBadRequest)
		return
	}

	list, err := h.repo.GetLeadList(r.Context(), orgID, chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, postgres.ErrNotFound) {
			writeError(w, "lead list not found", http.StatusNotFound)
			return
		}
		writeError(w, fmt.Sprintf("failed to get lead list: %v", err), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

// HandleDelete removes a lead list and its leads.
// DELETE /api/leads/lists/{id}
func (h *LeadListHandlers) HandleDelete(w http.ResponseWriter, r *http.Request) {
	orgID := getOrgID(r)
	if orgID == "" {
		writeError(w, "organization id is required", http.StatusBadRequest)
		return
	}

	if err := h.repo.DeleteLeadList(r.Context(), orgID, chi.URLParam(r, "id")); err != nil {
		if errors.Is(err, postgres.ErrNotFound) {
			writeError(w, "lead list not found", http.StatusNotFound)
			return
		}
		writeError(w, fmt.Sprintf("failed to delete lead list: %v", err), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// HandleSetActive pauses or resumes a list for campaign use.
// PATCH /api/leads/lists/{id}/active with {"is_active": bool}
func (h *LeadListHandlers) HandleSetActive(w http.ResponseWriter, r *http.Request) {
	orgID := getOrgID(r)
	if orgID == "" {
		writeError(w, "organization id is required", http.StatusBadRequest)
		return
	}

	var req struct {
		IsActive bool `json:"is_active"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	if err := h.repo.SetLeadListActive(r.Context(), orgID, chi.URLParam(r, "id"), req.IsActive); err != nil {
		if errors.Is(err, postgres.ErrNotFound) {
			writeError(w, "lead list not found", http.StatusNotFound)
			return
		}
		writeError(w, fmt.Sprintf("failed to update lead list: %v", err), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"id": chi.URLParam(r, "id"), "is_active": req.IsActive})
}

func queryInt(r *http.Request, key string, def int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return def
	}
	return n
}
