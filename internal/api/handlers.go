package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/conorfennell/benkyo/internal/domain"
	"github.com/conorfennell/benkyo/internal/session"
)

// handleStartSession provisions the deck if needed and returns the
// study mix plus the session id.
func (s *Server) handleStartSession() http.HandlerFunc {
	type request struct {
		ChapterID int64 `json:"chapter_id"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		var req request
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			s.respondError(w, http.StatusBadRequest, "malformed request body")
			return
		}
		if req.ChapterID <= 0 {
			s.respondError(w, http.StatusBadRequest, "chapter_id must be positive")
			return
		}

		res, err := s.svc.StartSession(r.Context(), userFrom(r), req.ChapterID)
		if err != nil {
			s.respondServiceError(w, r, err)
			return
		}
		s.respondJSON(w, http.StatusOK, res)
	}
}

// handleRateCard grades one card within the session and returns the
// updated card plus the re-ordered queue.
func (s *Server) handleRateCard() http.HandlerFunc {
	type request struct {
		ItemID    int64   `json:"item_id"`
		Rating    int     `json:"rating"`
		Remaining []int64 `json:"remaining"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		sessionID, err := uuid.Parse(mux.Vars(r)["sessionID"])
		if err != nil {
			s.respondError(w, http.StatusBadRequest, "malformed session id")
			return
		}
		var req request
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			s.respondError(w, http.StatusBadRequest, "malformed request body")
			return
		}
		rating := domain.Rating(req.Rating)
		if !rating.Valid() {
			s.respondError(w, http.StatusBadRequest, "rating must be between 1 and 4")
			return
		}

		res, err := s.svc.RateCard(r.Context(), userFrom(r), sessionID, req.ItemID, rating, req.Remaining)
		if err != nil {
			s.respondServiceError(w, r, err)
			return
		}
		s.respondJSON(w, http.StatusOK, res)
	}
}

// handleEndSession flushes the session to the durable store and
// returns the summary stats.
func (s *Server) handleEndSession() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sessionID, err := uuid.Parse(mux.Vars(r)["sessionID"])
		if err != nil {
			s.respondError(w, http.StatusBadRequest, "malformed session id")
			return
		}

		stats, err := s.svc.EndSession(r.Context(), userFrom(r), sessionID)
		if err != nil {
			s.respondServiceError(w, r, err)
			return
		}
		s.respondJSON(w, http.StatusOK, stats)
	}
}

func (s *Server) handleHealth() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

type errorBody struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("encode response", "error", err)
	}
}

func (s *Server) respondError(w http.ResponseWriter, status int, msg string) {
	s.respondJSON(w, status, errorBody{Error: msg})
}

// respondServiceError maps an orchestrator error code to an HTTP
// status. Internal failures log the cause but return only the code.
func (s *Server) respondServiceError(w http.ResponseWriter, r *http.Request, err error) {
	code := session.CodeOf(err)
	status := statusOf(code)
	if status >= http.StatusInternalServerError {
		s.logger.Error("study request failed", "path", r.URL.Path, "code", string(code), "error", err)
	}

	msg := string(code)
	var serr *session.Error
	if errors.As(err, &serr) && status < http.StatusInternalServerError {
		msg = serr.Error()
	}
	s.respondJSON(w, status, errorBody{Error: msg, Code: string(code)})
}

func statusOf(code session.Code) int {
	switch code {
	case session.CodeChapterNotFound, session.CodeSessionNotFound:
		return http.StatusNotFound
	case session.CodeUnauthorized:
		return http.StatusForbidden
	case session.CodeNoVocabulary:
		return http.StatusUnprocessableEntity
	case session.CodePersistenceFailed:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
