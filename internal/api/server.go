// Package api is the JSON HTTP front end. Each client identifies its session
// with the X-Device-ID header.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/sirupsen/logrus"

	"github.com/Kerhoff/ChoreBoT/internal/metrics"
	"github.com/Kerhoff/ChoreBoT/internal/middleware"
	"github.com/Kerhoff/ChoreBoT/internal/models"
	"github.com/Kerhoff/ChoreBoT/internal/repository"
	"github.com/Kerhoff/ChoreBoT/internal/service"
	"github.com/Kerhoff/ChoreBoT/internal/session"
	"github.com/Kerhoff/ChoreBoT/internal/validation"
)

// Server provides the HTTP API.
type Server struct {
	sessions *session.Registry
	svc      *service.Service
	limiter  *middleware.RateLimiter
	metrics  *metrics.Metrics
	logger   *logrus.Logger
	mux      *http.ServeMux
}

// NewServer creates a Server, registers all routes, and returns it. limiter
// and m may be nil.
func NewServer(sessions *session.Registry, svc *service.Service, limiter *middleware.RateLimiter, m *metrics.Metrics, logger *logrus.Logger) *Server {
	s := &Server{
		sessions: sessions,
		svc:      svc,
		limiter:  limiter,
		metrics:  m,
		logger:   logger,
		mux:      http.NewServeMux(),
	}
	s.routes()
	return s
}

// Handler returns the http.Handler that can be passed to http.Server.
func (s *Server) Handler() http.Handler {
	if s.metrics != nil {
		return s.metrics.InstrumentHandler(s.mux)
	}
	return s.mux
}

// ---------------------------------------------------------------------------
// Routes
// ---------------------------------------------------------------------------

func (s *Server) routes() {
	s.mux.HandleFunc("GET /healthz", s.handleHealth)

	// API – Session
	s.mux.HandleFunc("GET /api/session", s.handleGetSession)
	s.mux.HandleFunc("POST /api/session/register", s.handleRegister)
	s.mux.Handle("POST /api/session/login", s.throttled(s.handleLogin))
	s.mux.Handle("POST /api/session/child", s.throttled(s.handleLoginChild))
	s.mux.HandleFunc("POST /api/session/logout", s.handleLogout)
	s.mux.HandleFunc("POST /api/session/refresh", s.handleRefreshMembers)
	s.mux.HandleFunc("DELETE /api/session/error", s.handleClearError)

	// API – Family
	s.mux.HandleFunc("POST /api/family", s.handleCreateFamily)
	s.mux.HandleFunc("POST /api/family/members", s.handleAddMember)
	s.mux.HandleFunc("GET /api/family/overview", s.handleOverview)
	s.mux.HandleFunc("GET /api/family/leaderboard", s.handleLeaderboard)
	s.mux.Handle("GET /api/families/{code}", s.throttled(s.handleGetFamilyByCode))
	s.mux.HandleFunc("GET /api/families/{id}/members", s.handleGetFamilyMembers)

	// API – Chores
	s.mux.HandleFunc("GET /api/chores", s.handleGetChores)
	s.mux.HandleFunc("POST /api/chores", s.handleCreateChore)
	s.mux.HandleFunc("POST /api/chores/{id}/complete", s.handleCompleteChore)
	s.mux.HandleFunc("POST /api/chores/{id}/verify", s.handleVerifyChore)

	// API – Rewards
	s.mux.HandleFunc("GET /api/rewards", s.handleGetRewards)
	s.mux.HandleFunc("POST /api/rewards", s.handleCreateReward)
	s.mux.HandleFunc("POST /api/rewards/{id}/redeem", s.handleRedeemReward)
	s.mux.HandleFunc("POST /api/redemptions/{id}/approve", s.handleApproveRedemption)
}

func (s *Server) throttled(h http.HandlerFunc) http.Handler {
	if s.limiter == nil {
		return h
	}
	return s.limiter.Handler(h)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// ---------------------------------------------------------------------------
// JSON helpers
// ---------------------------------------------------------------------------

func (s *Server) respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			s.logger.WithError(err).Error("failed to encode JSON response")
		}
	}
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}

// decodeJSON reads the request body into dst and returns an error message on
// failure.  The caller should return immediately when ok == false.
func (s *Server) decodeJSON(r *http.Request, dst any) (ok bool, errMsg string) {
	if r.Body == nil {
		return false, "request body is empty"
	}
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return false, fmt.Sprintf("invalid JSON: %v", err)
	}
	return true, ""
}

type validationResponse struct {
	Error  string                  `json:"error"`
	Fields []validation.FieldError `json:"fields"`
}

// respondFailure maps an operation error to a status code and body
func (s *Server) respondFailure(w http.ResponseWriter, r *http.Request, err error) {
	var verr *validation.ValidationError
	if errors.As(err, &verr) {
		s.respondJSON(w, http.StatusBadRequest, validationResponse{Error: verr.Error(), Fields: verr.Fields})
		return
	}

	status, message := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.logger.WithError(err).WithField("path", r.URL.Path).Error("request failed")
	}
	s.respondError(w, status, message)
}

func statusFor(err error) (int, string) {
	var serr *session.Error
	if errors.As(err, &serr) {
		switch {
		case errors.Is(err, repository.ErrInvalidCredentials), errors.Is(err, session.ErrNotAuthenticated):
			return http.StatusUnauthorized, serr.Message
		case errors.Is(err, repository.ErrEmailTaken), errors.Is(err, session.ErrNoFamily):
			return http.StatusConflict, serr.Message
		case errors.Is(err, session.ErrNotFound):
			return http.StatusNotFound, serr.Message
		case errors.Is(err, session.ErrService):
			return http.StatusBadGateway, serr.Message
		default:
			return http.StatusInternalServerError, serr.Message
		}
	}

	switch {
	case errors.Is(err, service.ErrForbidden):
		return http.StatusForbidden, err.Error()
	case errors.Is(err, service.ErrNotFound):
		return http.StatusNotFound, err.Error()
	case errors.Is(err, service.ErrConflict), errors.Is(err, repository.ErrInsufficientPoints):
		return http.StatusConflict, err.Error()
	}
	return http.StatusInternalServerError, "internal error"
}

// MaxDeviceIDLength bounds the X-Device-ID header
const MaxDeviceIDLength = 128

// sessionKey returns the registry key of the caller's device. It writes an
// error response and returns "" when the header is missing or too long.
func (s *Server) sessionKey(w http.ResponseWriter, r *http.Request) string {
	id := r.Header.Get(middleware.DeviceHeader)
	switch {
	case id == "":
		s.respondError(w, http.StatusBadRequest, middleware.DeviceHeader+" header is required")
		return ""
	case len(id) > MaxDeviceIDLength:
		s.respondError(w, http.StatusBadRequest, fmt.Sprintf("%s header must be at most %d characters", middleware.DeviceHeader, MaxDeviceIDLength))
		return ""
	}
	return "dev:" + id
}

// manager resolves the caller's session. It writes an error response and
// returns nil when the device id is missing or invalid.
func (s *Server) manager(w http.ResponseWriter, r *http.Request) *session.Manager {
	key := s.sessionKey(w, r)
	if key == "" {
		return nil
	}
	m, err := s.sessions.Get(r.Context(), key)
	if err != nil {
		s.respondFailure(w, r, err)
		return nil
	}
	return m
}

// actor resolves the caller's session and signed-in member with a fresh
// roster. It writes an error response and returns nil when there is none.
func (s *Server) actor(w http.ResponseWriter, r *http.Request) *models.FamilyMember {
	m := s.manager(w, r)
	if m == nil {
		return nil
	}
	if m.State().Family != nil {
		m.RefreshMembers(r.Context())
	}
	member := m.CurrentMember()
	if member == nil {
		s.respondError(w, http.StatusUnauthorized, "You need to log in first")
		return nil
	}
	return member
}
