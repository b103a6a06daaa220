package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/shelfline/governance/internal/auth"
	"github.com/shelfline/governance/internal/config"
	"github.com/shelfline/governance/internal/governance"
	"github.com/shelfline/governance/internal/models"
	"github.com/shelfline/governance/internal/store"
	"github.com/shelfline/governance/internal/tier"
)

type Server struct {
	cfg     config.Config
	service *governance.Service
	store   store.Store
}

func New(cfg config.Config, svc *governance.Service, store store.Store) *Server {
	return &Server{cfg: cfg, service: svc, store: store}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	r.Get("/health", s.handleHealth)

	r.Route("/governance", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(auth.Middleware([]byte(s.cfg.JWTSecret)))
			r.Get("/skus/{code}", s.handleGetSKU)
			r.Patch("/skus/{code}", s.handleUpdateSKU)
			r.Post("/skus/{code}/evaluate", s.handleEvaluate)
			r.Post("/skus/{code}/submit", s.handleSubmit)
			r.Get("/skus/{code}/runs", s.handleListRuns)
			r.Get("/skus/{code}/history", s.handleTierHistory)
			r.Get("/permissions/check", s.handleCanEdit)
			r.Post("/tiers/recalculate", s.handleRecalculate)
			r.Post("/tiers/commercial-batch", s.handleCommercialBatch)
			r.Post("/decay/run", s.handleDecayRun)
		})
	})

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	status := map[string]interface{}{
		"ok":   true,
		"time": time.Now().UTC(),
	}
	if err := s.store.Ping(ctx); err != nil {
		status["ok"] = false
		status["db"] = err.Error()
		respondJSON(w, http.StatusServiceUnavailable, status)
		return
	}
	respondJSON(w, http.StatusOK, status)
}

func (s *Server) handleGetSKU(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")
	sku, err := s.store.GetSKU(r.Context(), code)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, sku)
}

type updateRequest struct {
	Version int64                  `json:"version"`
	Fields  map[string]interface{} `json:"fields"`
}

func (s *Server) handleUpdateSKU(w http.ResponseWriter, r *http.Request) {
	var req updateRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if len(req.Fields) == 0 {
		respondError(w, http.StatusBadRequest, "fields required")
		return
	}
	code := chi.URLParam(r, "code")
	sku, err := s.service.UpdateFields(r.Context(), actorFrom(r), code, req.Version, req.Fields)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, sku)
}

type evaluateRequest struct {
	OverridePending bool `json:"overridePending"`
}

func (s *Server) handleEvaluate(w http.ResponseWriter, r *http.Request) {
	var req evaluateRequest
	if r.ContentLength > 0 {
		if err := decodeJSON(w, r, &req); err != nil {
			respondError(w, http.StatusBadRequest, err.Error())
			return
		}
	}
	code := chi.URLParam(r, "code")
	run, err := s.service.Evaluate(r.Context(), code, actorFrom(r), req.OverridePending)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, run)
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")
	if err := s.service.SubmitForReview(r.Context(), actorFrom(r), code); err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusAccepted, map[string]string{"status": string(models.StatusPending)})
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")
	runs, err := s.store.ListValidationRuns(r.Context(), code, 50)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, runs)
}

func (s *Server) handleTierHistory(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")
	history, err := s.store.ListTierHistory(r.Context(), code)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, history)
}

func (s *Server) handleCanEdit(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	role := models.Role(q.Get("role"))
	t := models.Tier(q.Get("tier"))
	field := q.Get("field")
	if role == "" || t == "" || field == "" {
		respondError(w, http.StatusBadRequest, "role, tier and field required")
		return
	}
	if !t.Valid() {
		respondError(w, http.StatusBadRequest, "unknown tier "+string(t))
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"role":    role,
		"tier":    t,
		"field":   field,
		"canEdit": s.service.CanEdit(role, t, field),
	})
}

func (s *Server) handleRecalculate(w http.ResponseWriter, r *http.Request) {
	changes, err := s.service.RecalculateAllTiers(r.Context(), actorFrom(r))
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"changed": len(changes),
		"changes": changes,
	})
}

type commercialBatchRequest struct {
	Records []tier.CommercialRecord `json:"records"`
}

func (s *Server) handleCommercialBatch(w http.ResponseWriter, r *http.Request) {
	var req commercialBatchRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if len(req.Records) == 0 {
		respondError(w, http.StatusBadRequest, "records required")
		return
	}
	result, err := s.service.ApplyCommercialBatch(r.Context(), actorFrom(r), req.Records)
	if err != nil {
		var perm *governance.PermissionError
		if errors.As(err, &perm) {
			respondError(w, http.StatusForbidden, perm.Error())
			return
		}
		// partial diagnostics still matter on rollback
		respondJSON(w, http.StatusUnprocessableEntity, map[string]interface{}{
			"error":  err.Error(),
			"result": result,
		})
		return
	}
	respondJSON(w, http.StatusOK, result)
}

type decayRunRequest struct {
	RunID  string              `json:"runId"`
	Quorum models.QuorumStatus `json:"quorum"`
	Scores map[string]float64  `json:"scores"`
}

func (s *Server) handleDecayRun(w http.ResponseWriter, r *http.Request) {
	var req decayRunRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.RunID == "" {
		req.RunID = uuid.NewString()
	}
	if req.Quorum == "" {
		req.Quorum = models.QuorumMet
	}
	changed, err := s.service.ProcessDecayCycle(r.Context(), req.RunID, req.Scores, req.Quorum)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"runId":   req.RunID,
		"changed": changed,
	})
}

func actorFrom(r *http.Request) governance.Actor {
	if ai := auth.FromContext(r.Context()); ai != nil {
		return governance.Actor{Name: ai.Subject, Role: ai.Role}
	}
	return governance.Actor{}
}

func respondServiceError(w http.ResponseWriter, err error) {
	var authz *governance.AuthorizationError
	if errors.As(err, &authz) {
		respondJSON(w, http.StatusForbidden, map[string]interface{}{
			"error":  authz.Error(),
			"fields": authz.Fields,
		})
		return
	}
	var perm *governance.PermissionError
	if errors.As(err, &perm) {
		respondError(w, http.StatusForbidden, perm.Error())
		return
	}
	switch {
	case errors.Is(err, store.ErrNotFound):
		respondError(w, http.StatusNotFound, "not found")
	case errors.Is(err, store.ErrVersionConflict):
		respondError(w, http.StatusConflict, "version conflict")
	default:
		respondError(w, http.StatusInternalServerError, err.Error())
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(v)
}

func respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func respondError(w http.ResponseWriter, status int, msg string) {
	respondJSON(w, status, map[string]string{"error": msg})
}
