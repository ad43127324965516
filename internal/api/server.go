package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"codepair/internal/metrics"
	"codepair/internal/session"
	"codepair/internal/templates"
	"codepair/pkg/interfaces"
	"codepair/pkg/types"
)

// Error codes returned in ErrorResponse.Code.
const (
	CodeInvalidRequest  = "INVALID_REQUEST"
	CodeSessionNotFound = "SESSION_NOT_FOUND"
	CodeInternal        = "INTERNAL_ERROR"
)

const healthTimeout = 5 * time.Second

// Stats reports live connection counters for the health endpoint.
type Stats interface {
	GetStats() map[string]int
}

// Server is the HTTP surface: the session directory API, health, metrics
// and the realtime upgrade endpoint.
type Server struct {
	directory interfaces.SessionDirectory
	stats     Stats
	logger    *zap.Logger
	router    chi.Router
	now       func() time.Time
}

// NewServer builds the router. realtime is mounted at /ws when non-nil.
func NewServer(directory interfaces.SessionDirectory, stats Stats, realtime http.Handler, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		directory: directory,
		stats:     stats,
		logger:    logger,
		router:    chi.NewRouter(),
		now:       time.Now,
	}
	s.setupRoutes(realtime)
	return s
}

func (s *Server) setupRoutes(realtime http.Handler) {
	r := s.router

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "PATCH", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "Authorization"},
		MaxAge:         86400,
	}))
	r.Use(middleware.RequestID, middleware.RealIP, requestLogger(s.logger), middleware.Recoverer)
	r.Use(metrics.Middleware)

	r.Group(func(r chi.Router) {
		r.Use(jsonContent)

		sessions := func(r chi.Router) {
			r.Post("/", s.createSession)
			r.Get("/{id}", s.getSession)
			r.Patch("/{id}", s.updateSession)
			r.Get("/{id}/users", s.listParticipants)
		}
		r.Route("/sessions", sessions)
		r.Route("/api/sessions", sessions)

		r.Get("/languages", s.listLanguages)
		r.Get("/health", s.healthCheck)
	})

	r.Method(http.MethodGet, "/metrics", metrics.Handler())
	if realtime != nil {
		r.Method(http.MethodGet, "/ws", realtime)
	}
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

type CreateSessionRequest struct {
	Name     string `json:"name"`
	Language string `json:"language"`
}

// SessionResponse is a session together with its live participants.
type SessionResponse struct {
	*types.Session
	Users []types.Participant `json:"users"`
}

type UsersResponse struct {
	Users []types.Participant `json:"users"`
}

type LanguagesResponse struct {
	Languages []string `json:"languages"`
}

type HealthResponse struct {
	Status       string         `json:"status"`
	SessionCount int            `json:"sessionCount"`
	Timestamp    time.Time      `json:"timestamp"`
	Connections  map[string]int `json:"connections,omitempty"`
}

type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// POST /sessions
func (s *Server) createSession(w http.ResponseWriter, r *http.Request) {
	var req CreateSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, http.StatusBadRequest, CodeInvalidRequest, "invalid JSON body")
		return
	}

	created, err := s.directory.CreateSession(r.Context(), req.Name, req.Language)
	if err != nil {
		s.sendDirectoryError(w, r, err)
		return
	}

	s.sendJSON(w, http.StatusCreated, created)
}

// GET /sessions/{id}
func (s *Server) getSession(w http.ResponseWriter, r *http.Request) {
	found, users, err := s.directory.GetSession(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.sendDirectoryError(w, r, err)
		return
	}

	s.sendJSON(w, http.StatusOK, SessionResponse{Session: found, Users: users})
}

// PATCH /sessions/{id}
func (s *Server) updateSession(w http.ResponseWriter, r *http.Request) {
	// An empty body is a no-op update.
	var update types.SessionUpdate
	if err := json.NewDecoder(r.Body).Decode(&update); err != nil && !errors.Is(err, io.EOF) {
		s.sendError(w, http.StatusBadRequest, CodeInvalidRequest, "invalid JSON body")
		return
	}

	updated, err := s.directory.UpdateSession(r.Context(), chi.URLParam(r, "id"), update)
	if err != nil {
		s.sendDirectoryError(w, r, err)
		return
	}

	s.sendJSON(w, http.StatusOK, updated)
}

// GET /sessions/{id}/users
func (s *Server) listParticipants(w http.ResponseWriter, r *http.Request) {
	users, err := s.directory.ListParticipants(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.sendDirectoryError(w, r, err)
		return
	}

	s.sendJSON(w, http.StatusOK, UsersResponse{Users: users})
}

func (s *Server) listLanguages(w http.ResponseWriter, r *http.Request) {
	s.sendJSON(w, http.StatusOK, LanguagesResponse{Languages: templates.Languages()})
}

// GET /health reports 503 when the store cannot be reached.
func (s *Server) healthCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
	defer cancel()

	resp := HealthResponse{Status: "ok", Timestamp: s.now().UTC()}
	if s.stats != nil {
		resp.Connections = s.stats.GetStats()
	}

	status := http.StatusOK
	if err := s.directory.HealthCheck(ctx); err != nil {
		s.logger.Warn("health check failed", zap.Error(err))
		resp.Status = "degraded"
		status = http.StatusServiceUnavailable
	} else if count, err := s.directory.CountSessions(ctx); err == nil {
		resp.SessionCount = count
	}

	s.sendJSON(w, status, resp)
}

func (s *Server) sendDirectoryError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, session.ErrInvalidRequest):
		s.sendError(w, http.StatusBadRequest, CodeInvalidRequest, err.Error())
	case errors.Is(err, session.ErrSessionNotFound):
		s.sendError(w, http.StatusNotFound, CodeSessionNotFound, "session not found")
	default:
		s.logger.Error("directory request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.String("request_id", middleware.GetReqID(r.Context())),
			zap.Error(err))
		s.sendError(w, http.StatusInternalServerError, CodeInternal, "internal error")
	}
}

func (s *Server) sendError(w http.ResponseWriter, status int, code, message string) {
	s.sendJSON(w, status, ErrorResponse{Error: message, Code: code})
}

func (s *Server) sendJSON(w http.ResponseWriter, status int, v interface{}) {
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Debug("failed to write response", zap.Error(err))
	}
}
