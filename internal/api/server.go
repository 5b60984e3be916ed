// Package api exposes the study-session service over HTTP with JSON
// bodies. Authentication happens upstream; callers identify the user
// with the X-User-ID header.
package api

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/conorfennell/benkyo/internal/domain"
	"github.com/conorfennell/benkyo/internal/session"
)

// StudyService is the slice of the session orchestrator the handlers
// need. Implemented by session.Service.
type StudyService interface {
	StartSession(ctx context.Context, userID uuid.UUID, chapterID int64) (*session.StartResult, error)
	RateCard(ctx context.Context, userID, sessionID uuid.UUID, itemID int64, rating domain.Rating, remaining []int64) (*session.RateResult, error)
	EndSession(ctx context.Context, userID, sessionID uuid.UUID) (*session.EndStats, error)
}

// Server holds the dependencies for the HTTP server.
type Server struct {
	svc    StudyService
	logger *slog.Logger
	router *mux.Router
}

// NewServer creates and configures a new server.
func NewServer(svc StudyService, logger *slog.Logger) *Server {
	s := &Server{
		svc:    svc,
		logger: logger,
		router: mux.NewRouter(),
	}
	s.routes()
	return s
}

// ServeHTTP implements the http.Handler interface.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// routes sets up the routing for the server.
func (s *Server) routes() {
	study := s.router.PathPrefix("/api/study").Subrouter()
	study.Use(s.requireUser)
	study.HandleFunc("/start", s.handleStartSession()).Methods(http.MethodPost)
	study.HandleFunc("/{sessionID}/rate", s.handleRateCard()).Methods(http.MethodPost)
	study.HandleFunc("/{sessionID}/end", s.handleEndSession()).Methods(http.MethodPost)

	s.router.HandleFunc("/healthz", s.handleHealth()).Methods(http.MethodGet)
}

type contextKey string

const userIDKey contextKey = "userID"

// requireUser parses the X-User-ID header and stashes it in the
// request context.
func (s *Server) requireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID, err := uuid.Parse(r.Header.Get("X-User-ID"))
		if err != nil {
			s.respondError(w, http.StatusUnauthorized, "missing or malformed X-User-ID header")
			return
		}
		ctx := context.WithValue(r.Context(), userIDKey, userID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func userFrom(r *http.Request) uuid.UUID {
	id, _ := r.Context().Value(userIDKey).(uuid.UUID)
	return id
}
