// Package api exposes the review and read surface over HTTP: health,
// disease standardization, session browsing, pending-point review, and the
// aggregated opportunity table.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/vantdge/evidence-cli/internal/model"
	"github.com/vantdge/evidence-cli/internal/store"
)

// Standardizer is the disease-name resolution surface the API depends on.
type Standardizer interface {
	Standardize(ctx context.Context, rawName string) model.DiseaseMatch
}

// Server carries the handlers' dependencies.
type Server struct {
	store        store.Store
	standardizer Standardizer
}

// NewRouter builds the HTTP handler tree.
func NewRouter(st store.Store, standardizer Standardizer) http.Handler {
	s := &Server{store: st, standardizer: standardizer}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
	}))

	r.Get("/health", s.handleHealth)
	r.Route("/api", func(r chi.Router) {
		r.Post("/standardize", s.handleStandardize)
		r.Get("/opportunities", s.handleListOpportunities)
		r.Get("/sessions", s.handleListSessions)
		r.Get("/sessions/{id}", s.handleGetSession)
		r.Get("/sessions/{id}/pending", s.handleListPending)
		r.Post("/points/{id}/resolve", s.handleResolvePoint)
	})
	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStandardize(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}
	writeJSON(w, http.StatusOK, s.standardizer.Standardize(r.Context(), req.Name))
}

func (s *Server) handleListOpportunities(w http.ResponseWriter, r *http.Request) {
	opps, err := s.store.ListOpportunities(r.Context(), r.URL.Query().Get("drug"))
	if err != nil {
		s.serverError(w, r, "list opportunities", err)
		return
	}
	if opps == nil {
		opps = []model.Opportunity{}
	}
	writeJSON(w, http.StatusOK, opps)
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := store.SessionFilter{
		Status: model.SessionStatus(q.Get("status")),
		Limit:  intParam(q.Get("limit")),
		Offset: intParam(q.Get("offset")),
	}

	sessions, err := s.store.ListSessions(r.Context(), filter)
	if err != nil {
		s.serverError(w, r, "list sessions", err)
		return
	}
	if sessions == nil {
		sessions = []model.BenchmarkSession{}
	}
	writeJSON(w, http.StatusOK, sessions)
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sess, err := s.store.GetSession(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

func (s *Server) handleListPending(w http.ResponseWriter, r *http.Request) {
	points, err := s.store.ListPendingPoints(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.serverError(w, r, "list pending points", err)
		return
	}
	if points == nil {
		points = []store.StoredPoint{}
	}
	writeJSON(w, http.StatusOK, points)
}

func (s *Server) handleResolvePoint(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Confirmed *bool `json:"confirmed"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Confirmed == nil {
		writeError(w, http.StatusBadRequest, "confirmed is required")
		return
	}

	pointID := chi.URLParam(r, "id")
	if err := s.store.ResolvePoint(r.Context(), pointID, *req.Confirmed); err != nil {
		writeError(w, http.StatusNotFound, "point not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"id":        pointID,
		"confirmed": *req.Confirmed,
	})
}

// serverError logs the underlying failure and returns an opaque message;
// driver errors never reach API consumers.
func (s *Server) serverError(w http.ResponseWriter, r *http.Request, op string, err error) {
	zap.L().Error("api: "+op,
		zap.String("path", r.URL.Path),
		zap.Error(err),
	)
	writeError(w, http.StatusInternalServerError, "internal error")
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func intParam(s string) int {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0
	}
	return n
}
