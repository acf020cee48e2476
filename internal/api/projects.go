package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/docbase/docbase/internal/log"
	"github.com/docbase/docbase/internal/plan"
	"github.com/docbase/docbase/internal/store"
)

// ProjectStore is the persistence surface the org/project handlers need.
// Satisfied by *store.Store.
type ProjectStore interface {
	CreateOrg(ctx context.Context, name string, tier plan.Tier, credits int) (*store.Org, error)
	GetOrg(ctx context.Context, id string) (*store.Org, error)
	CreateProject(ctx context.Context, orgID, name, botName, prompt string) (*store.Project, error)
	GetProject(ctx context.Context, id string) (*store.Project, error)
	ListProjects(ctx context.Context, orgID string) ([]store.Project, error)
	DeleteProject(ctx context.Context, id string) error
}

// ProjectQuotas gates project creation. Satisfied by *ledger.Ledger.
type ProjectQuotas interface {
	CanCreateProject(ctx context.Context, orgID string) (bool, error)
}

// NamespacePurger removes every vector in a project namespace. Satisfied
// by *vector.Store.
type NamespacePurger interface {
	DeleteNamespace(ctx context.Context, namespace string) error
}

// PrefixPurger removes stored objects under a key prefix. Satisfied by
// *objstore.Store; nil disables blob cleanup.
type PrefixPurger interface {
	DeletePrefix(ctx context.Context, prefix string) error
}

type projectHandler struct {
	store   ProjectStore
	quotas  ProjectQuotas
	vectors NamespacePurger
	blobs   PrefixPurger
	logger  log.Logger
}

type orgItem struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	Plan          string    `json:"plan"`
	ChatCredits   int       `json:"chatCredits"`
	DocumentBytes int64     `json:"documentBytes"`
	CreatedAt     time.Time `json:"createdAt"`
}

type projectItem struct {
	ID             string    `json:"id"`
	OrgID          string    `json:"orgId"`
	Name           string    `json:"name"`
	BotName        string    `json:"botName"`
	Prompt         string    `json:"prompt"`
	TokensUsed     int64     `json:"tokensUsed"`
	DocumentBytes  int64     `json:"documentBytes"`
	ChatUsed       int       `json:"chatUsed"`
	SummaryEnabled bool      `json:"summaryEnabled"`
	CreatedAt      time.Time `json:"createdAt"`
}

func toOrgItem(o *store.Org) orgItem {
	return orgItem{
		ID:            o.ID,
		Name:          o.Name,
		Plan:          string(o.Plan),
		ChatCredits:   o.ChatCredits,
		DocumentBytes: o.DocumentBytes,
		CreatedAt:     o.CreatedAt,
	}
}

func toProjectItem(p *store.Project) projectItem {
	return projectItem{
		ID:             p.ID,
		OrgID:          p.OrgID,
		Name:           p.Name,
		BotName:        p.BotName,
		Prompt:         p.Prompt,
		TokensUsed:     p.TokensUsed,
		DocumentBytes:  p.DocumentBytes,
		ChatUsed:       p.ChatUsed,
		SummaryEnabled: p.SummaryEnabled,
		CreatedAt:      p.CreatedAt,
	}
}

func (h *projectHandler) createOrg(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name string `json:"name"`
		Plan string `json:"plan"`
	}
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", "invalid request body", h.logger)
		return
	}
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "missing_name", "name is required", h.logger)
		return
	}
	tier := plan.Tier(req.Plan)
	if req.Plan == "" {
		tier = plan.Free
	}
	if !plan.Valid(tier) {
		writeError(w, http.StatusBadRequest, "invalid_plan", "unknown plan tier", h.logger)
		return
	}

	org, err := h.store.CreateOrg(r.Context(), req.Name, tier, plan.MonthlyFreeCredits)
	if err != nil {
		h.logger.Error("creating org", "error", err)
		writeError(w, http.StatusInternalServerError, "create_failed", "failed to create organization", h.logger)
		return
	}
	writeJSON(w, http.StatusCreated, toOrgItem(org), h.logger)
}

func (h *projectHandler) getOrg(w http.ResponseWriter, r *http.Request) {
	org, err := h.store.GetOrg(r.Context(), r.PathValue("id"))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "not_found", "organization not found", h.logger)
			return
		}
		h.logger.Error("getting org", "error", err)
		writeError(w, http.StatusInternalServerError, "get_failed", "failed to get organization", h.logger)
		return
	}
	writeJSON(w, http.StatusOK, toOrgItem(org), h.logger)
}

func (h *projectHandler) createProject(w http.ResponseWriter, r *http.Request) {
	var req struct {
		OrgID   string `json:"orgId"`
		Name    string `json:"name"`
		BotName string `json:"botName"`
		Prompt  string `json:"prompt"`
	}
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", "invalid request body", h.logger)
		return
	}
	if req.OrgID == "" || req.Name == "" {
		writeError(w, http.StatusBadRequest, "missing_field", "orgId and name are required", h.logger)
		return
	}

	ok, err := h.quotas.CanCreateProject(r.Context(), req.OrgID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "not_found", "organization not found", h.logger)
			return
		}
		h.logger.Error("checking project quota", "org_id", req.OrgID, "error", err)
		writeError(w, http.StatusInternalServerError, "quota_check_failed", "failed to check project quota", h.logger)
		return
	}
	if !ok {
		writeError(w, http.StatusForbidden, "project_limit", "project limit reached for plan", h.logger)
		return
	}

	project, err := h.store.CreateProject(r.Context(), req.OrgID, req.Name, req.BotName, req.Prompt)
	if err != nil {
		h.logger.Error("creating project", "org_id", req.OrgID, "error", err)
		writeError(w, http.StatusInternalServerError, "create_failed", "failed to create project", h.logger)
		return
	}
	writeJSON(w, http.StatusCreated, toProjectItem(project), h.logger)
}

func (h *projectHandler) listProjects(w http.ResponseWriter, r *http.Request) {
	orgID := r.URL.Query().Get("orgId")
	if orgID == "" {
		writeError(w, http.StatusBadRequest, "missing_org", "orgId query parameter is required", h.logger)
		return
	}
	projects, err := h.store.ListProjects(r.Context(), orgID)
	if err != nil {
		h.logger.Error("listing projects", "org_id", orgID, "error", err)
		writeError(w, http.StatusInternalServerError, "list_failed", "failed to list projects", h.logger)
		return
	}
	items := make([]projectItem, len(projects))
	for i := range projects {
		items[i] = toProjectItem(&projects[i])
	}
	writeJSON(w, http.StatusOK, map[string]any{"projects": items}, h.logger)
}

// deleteProject removes the project row and everything hanging off it:
// vectors in the project namespace and any stored file blobs. Documents,
// conversations, and messages cascade in the database.
func (h *projectHandler) deleteProject(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	project, err := h.store.GetProject(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "not_found", "project not found", h.logger)
			return
		}
		h.logger.Error("getting project", "project_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "get_failed", "failed to get project", h.logger)
		return
	}

	if err := h.vectors.DeleteNamespace(r.Context(), project.ID); err != nil {
		h.logger.Error("purging project vectors", "project_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "delete_failed", "failed to delete project vectors", h.logger)
		return
	}
	if h.blobs != nil {
		if err := h.blobs.DeletePrefix(r.Context(), project.ID+"/"); err != nil {
			h.logger.Warn("purging project blobs", "project_id", id, "error", err)
		}
	}
	if err := h.store.DeleteProject(r.Context(), id); err != nil {
		h.logger.Error("deleting project", "project_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "delete_failed", "failed to delete project", h.logger)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// decodeBody decodes a JSON request body with a 1MB size cap.
func decodeBody(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	return json.NewDecoder(r.Body).Decode(dst)
}
