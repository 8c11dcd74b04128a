// Package api exposes the deployment and configuration surface over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/crewdesk/crewdesk/internal/delegation"
	"github.com/crewdesk/crewdesk/internal/deploy"
	"github.com/crewdesk/crewdesk/internal/runtime"
	"github.com/crewdesk/crewdesk/internal/team"
)

// MindStore persists workspace knowledge entries. A nil store disables
// the mind endpoints.
type MindStore interface {
	AddEntry(ctx context.Context, workspaceID string, e team.MindEntry) (team.MindEntry, error)
	WorkspaceEntries(ctx context.Context, workspaceID string) ([]team.MindEntry, error)
}

// MindIndex serves semantic search over mind entries. A nil index
// disables the search endpoint; entries are still persisted.
type MindIndex interface {
	IndexEntry(ctx context.Context, workspaceID string, e team.MindEntry) error
	Search(ctx context.Context, workspaceID, query string, topK int) ([]team.MindEntry, error)
}

// Handler holds dependencies for HTTP handlers.
type Handler struct {
	deployments *deploy.Manager
	mind        MindStore
	index       MindIndex
	delegator   runtime.Delegator
	timeout     time.Duration
	logger      *zap.Logger
}

// NewHandler creates a new API handler. mind, index, and delegator may
// each be nil; a nil dependency disables its endpoints.
func NewHandler(deployments *deploy.Manager, mind MindStore, index MindIndex, delegator runtime.Delegator, logger *zap.Logger) *Handler {
	return &Handler{
		deployments: deployments,
		mind:        mind,
		index:       index,
		delegator:   delegator,
		timeout:     runtime.DefaultDelegationTimeout,
		logger:      logger,
	}
}

// SetDelegationTimeout overrides the per-delegation deadline used by the
// delegate endpoint.
func (h *Handler) SetDelegationTimeout(d time.Duration) {
	if d > 0 {
		h.timeout = d
	}
}

// Router builds the chi router for the API.
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
	}))

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", h.healthCheck)
		r.Post("/resolve", h.previewResolve)

		r.Route("/workspaces/{workspace}", func(r chi.Router) {
			r.Post("/deployments", h.activateDeployment)
			r.Get("/deployments", h.listDeployments)
			r.Post("/deployments/pause", h.pauseDeployment)
			r.Post("/deployments/resume", h.resumeDeployment)
			r.Post("/deployments/rollback", h.rollbackDeployment)
			r.Get("/active-config", h.activeConfig)
			r.Get("/agents/{slug}/delegation-tool", h.delegationTool)
			r.Post("/agents/{slug}/delegate", h.delegateTask)
			r.Post("/mind", h.addMindEntry)
			r.Get("/mind", h.listMindEntries)
			r.Get("/mind/search", h.searchMind)
		})
	})
	return r
}

func (h *Handler) healthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type resolveRequest struct {
	Workspace string              `json:"workspace"`
	Base      team.TeamDefinition `json:"base"`
	Custom    team.Customizations `json:"customizations"`
}

// previewResolve runs the resolver without persisting anything, so a
// tenant admin can inspect the effect of a customization change.
func (h *Handler) previewResolve(w http.ResponseWriter, r *http.Request) {
	var req resolveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	cfg, err := team.Resolve(req.Workspace, req.Base, req.Custom)
	if err != nil {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}

type deployRequest struct {
	Base   team.TeamDefinition `json:"base"`
	Custom team.Customizations `json:"customizations"`
}

func (h *Handler) activateDeployment(w http.ResponseWriter, r *http.Request) {
	workspace := chi.URLParam(r, "workspace")
	var req deployRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	d, err := h.deployments.Activate(r.Context(), workspace, req.Base, req.Custom)
	if err != nil {
		var verr *team.ValidationError
		if errors.As(err, &verr) {
			writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"error": err.Error()})
			return
		}
		h.logger.Error("activate deployment failed", zap.String("workspace", workspace), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusCreated, d)
}

func (h *Handler) listDeployments(w http.ResponseWriter, r *http.Request) {
	workspace := chi.URLParam(r, "workspace")
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		limit, _ = strconv.Atoi(v)
	}

	all, err := h.deployments.List(r.Context(), workspace)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	if limit > 0 && len(all) > limit {
		all = all[:limit]
	}
	writeJSON(w, http.StatusOK, all)
}

func (h *Handler) pauseDeployment(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.deployments.Pause)
}

func (h *Handler) resumeDeployment(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.deployments.Resume)
}

func (h *Handler) rollbackDeployment(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.deployments.Rollback)
}

func (h *Handler) transition(w http.ResponseWriter, r *http.Request,
	fn func(ctx context.Context, workspaceID string) (*deploy.Deployment, error)) {
	workspace := chi.URLParam(r, "workspace")
	d, err := fn(r.Context(), workspace)
	if err != nil {
		if errors.Is(err, deploy.ErrNoActiveDeployment) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
			return
		}
		writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (h *Handler) activeConfig(w http.ResponseWriter, r *http.Request) {
	workspace := chi.URLParam(r, "workspace")
	cfg, err := h.deployments.ActiveConfig(r.Context(), workspace)
	if err != nil {
		if errors.Is(err, deploy.ErrNoActiveDeployment) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "no active deployment"})
			return
		}
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}

// delegationTool returns the delegate tool the named agent would carry,
// derived from the workspace's live configuration. An agent with no
// outgoing edges reports found=false; that is a valid state, not an
// error.
func (h *Handler) delegationTool(w http.ResponseWriter, r *http.Request) {
	workspace := chi.URLParam(r, "workspace")
	slug := chi.URLParam(r, "slug")

	cfg, err := h.deployments.ActiveConfig(r.Context(), workspace)
	if err != nil {
		if errors.Is(err, deploy.ErrNoActiveDeployment) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "no active deployment"})
			return
		}
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}

	tool, found := delegation.BuildDelegationTool(cfg, slug)
	if !found {
		writeJSON(w, http.StatusOK, map[string]interface{}{"found": false})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"found": true, "tool": tool})
}

// delegateTask hands a task from the named agent to one of its delegation
// targets and blocks until the specialist replies or the deadline passes.
// The request body uses the delegate tool's argument shape.
func (h *Handler) delegateTask(w http.ResponseWriter, r *http.Request) {
	if h.delegator == nil {
		writeJSON(w, http.StatusNotImplemented, map[string]string{"error": "delegation broker not configured"})
		return
	}
	workspace := chi.URLParam(r, "workspace")
	slug := chi.URLParam(r, "slug")

	cfg, err := h.deployments.ActiveConfig(r.Context(), workspace)
	if err != nil {
		if errors.Is(err, deploy.ErrNoActiveDeployment) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "no active deployment"})
			return
		}
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}

	s, err := runtime.NewSession(cfg, slug, h.delegator, h.logger)
	if err != nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
		return
	}
	s.SetDelegationTimeout(h.timeout)
	if !s.Tools().Has(delegation.DelegateToolName) {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"error": "agent has no delegation targets"})
		return
	}

	args, err := io.ReadAll(r.Body)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	out, err := s.Tools().Execute(r.Context(), delegation.DelegateToolName, string(args))
	if err != nil {
		var terr *delegation.TimeoutError
		switch {
		case errors.As(err, &terr):
			writeJSON(w, http.StatusGatewayTimeout, map[string]string{"error": err.Error()})
		case errors.Is(err, delegation.ErrUnavailable):
			writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
		default:
			writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"error": err.Error()})
		}
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"response": out})
}

func (h *Handler) addMindEntry(w http.ResponseWriter, r *http.Request) {
	if h.mind == nil {
		writeJSON(w, http.StatusNotImplemented, map[string]string{"error": "mind store not configured"})
		return
	}
	workspace := chi.URLParam(r, "workspace")
	var e team.MindEntry
	if err := json.NewDecoder(r.Body).Decode(&e); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	saved, err := h.mind.AddEntry(r.Context(), workspace, e)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	// The entry is the source of truth; a failed index upsert degrades
	// search, not storage.
	if h.index != nil {
		if err := h.index.IndexEntry(r.Context(), workspace, saved); err != nil {
			h.logger.Warn("index mind entry failed",
				zap.String("workspace", workspace),
				zap.String("entry", saved.ID),
				zap.Error(err))
		}
	}
	writeJSON(w, http.StatusCreated, saved)
}

const defaultMindSearchLimit = 5

// searchMind runs semantic search over a workspace's mind entries.
func (h *Handler) searchMind(w http.ResponseWriter, r *http.Request) {
	if h.index == nil {
		writeJSON(w, http.StatusNotImplemented, map[string]string{"error": "mind index not configured"})
		return
	}
	workspace := chi.URLParam(r, "workspace")
	query := r.URL.Query().Get("q")
	if query == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "missing query parameter q"})
		return
	}
	limit := defaultMindSearchLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}

	entries, err := h.index.Search(r.Context(), workspace, query, limit)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	if entries == nil {
		entries = []team.MindEntry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

func (h *Handler) listMindEntries(w http.ResponseWriter, r *http.Request) {
	if h.mind == nil {
		writeJSON(w, http.StatusNotImplemented, map[string]string{"error": "mind store not configured"})
		return
	}
	workspace := chi.URLParam(r, "workspace")
	entries, err := h.mind.WorkspaceEntries(r.Context(), workspace)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
