package api

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/conorfennell/benkyo/internal/domain"
	"github.com/conorfennell/benkyo/internal/session"
)

type stubService struct {
	startRes *session.StartResult
	startErr error
	rateRes  *session.RateResult
	rateErr  error
	endRes   *session.EndStats
	endErr   error

	gotUser    uuid.UUID
	gotSession uuid.UUID
	gotRating  domain.Rating
}

func (s *stubService) StartSession(ctx context.Context, userID uuid.UUID, chapterID int64) (*session.StartResult, error) {
	s.gotUser = userID
	return s.startRes, s.startErr
}

func (s *stubService) RateCard(ctx context.Context, userID, sessionID uuid.UUID, itemID int64, rating domain.Rating, remaining []int64) (*session.RateResult, error) {
	s.gotUser, s.gotSession, s.gotRating = userID, sessionID, rating
	return s.rateRes, s.rateErr
}

func (s *stubService) EndSession(ctx context.Context, userID, sessionID uuid.UUID) (*session.EndStats, error) {
	s.gotUser, s.gotSession = userID, sessionID
	return s.endRes, s.endErr
}

func newTestServer(stub *stubService) *Server {
	return NewServer(stub, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func doJSON(t *testing.T, h http.Handler, method, path, userID, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if userID != "" {
		req.Header.Set("X-User-ID", userID)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestStartEndpoint(t *testing.T) {
	user := uuid.New()

	t.Run("success", func(t *testing.T) {
		stub := &stubService{startRes: &session.StartResult{
			SessionID:    uuid.New(),
			NewItemCount: 2,
			StartedAt:    time.Now(),
			Items: []domain.StudyItem{
				{Item: domain.ContentItem{ID: 1, Term: "魚", Meaning: "fish"}},
			},
		}}
		rec := doJSON(t, newTestServer(stub), http.MethodPost, "/api/study/start", user.String(), `{"chapter_id": 42}`)

		if rec.Code != http.StatusOK {
			t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body.String())
		}
		if stub.gotUser != user {
			t.Error("Expected the header user to reach the service")
		}
		var res session.StartResult
		if err := json.Unmarshal(rec.Body.Bytes(), &res); err != nil {
			t.Fatalf("Malformed response: %v", err)
		}
		if res.SessionID != stub.startRes.SessionID {
			t.Error("Expected the session id in the response")
		}
		if len(res.Items) != 1 || res.Items[0].Item.Term != "魚" {
			t.Errorf("Unexpected items payload: %+v", res.Items)
		}
	})

	t.Run("missing user header", func(t *testing.T) {
		rec := doJSON(t, newTestServer(&stubService{}), http.MethodPost, "/api/study/start", "", `{"chapter_id": 42}`)
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("Expected 401, got %d", rec.Code)
		}
	})

	t.Run("bad chapter id", func(t *testing.T) {
		rec := doJSON(t, newTestServer(&stubService{}), http.MethodPost, "/api/study/start", user.String(), `{"chapter_id": 0}`)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("Expected 400, got %d", rec.Code)
		}
	})

	t.Run("unknown chapter maps to 404", func(t *testing.T) {
		stub := &stubService{startErr: &session.Error{Code: session.CodeChapterNotFound, Err: context.Canceled}}
		rec := doJSON(t, newTestServer(stub), http.MethodPost, "/api/study/start", user.String(), `{"chapter_id": 42}`)
		if rec.Code != http.StatusNotFound {
			t.Errorf("Expected 404, got %d", rec.Code)
		}
		var body struct {
			Code string `json:"code"`
		}
		if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
			t.Fatal(err)
		}
		if body.Code != string(session.CodeChapterNotFound) {
			t.Errorf("Expected code chapter_not_found, got %q", body.Code)
		}
	})
}

func TestRateEndpoint(t *testing.T) {
	user := uuid.New()
	sessionID := uuid.New()

	t.Run("success", func(t *testing.T) {
		stub := &stubService{rateRes: &session.RateResult{Remaining: []int64{2, 1}}}
		rec := doJSON(t, newTestServer(stub), http.MethodPost, "/api/study/"+sessionID.String()+"/rate",
			user.String(), `{"item_id": 1, "rating": 3, "remaining": [1, 2]}`)

		if rec.Code != http.StatusOK {
			t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body.String())
		}
		if stub.gotSession != sessionID {
			t.Error("Expected the path session id to reach the service")
		}
		if stub.gotRating != domain.Good {
			t.Errorf("Expected rating Good, got %v", stub.gotRating)
		}
	})

	t.Run("out of range rating", func(t *testing.T) {
		rec := doJSON(t, newTestServer(&stubService{}), http.MethodPost, "/api/study/"+sessionID.String()+"/rate",
			user.String(), `{"item_id": 1, "rating": 9}`)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("Expected 400, got %d", rec.Code)
		}
	})

	t.Run("malformed session id", func(t *testing.T) {
		rec := doJSON(t, newTestServer(&stubService{}), http.MethodPost, "/api/study/not-a-uuid/rate",
			user.String(), `{"item_id": 1, "rating": 3}`)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("Expected 400, got %d", rec.Code)
		}
	})
}

func TestEndEndpoint(t *testing.T) {
	user := uuid.New()
	sessionID := uuid.New()

	t.Run("success", func(t *testing.T) {
		stub := &stubService{endRes: &session.EndStats{CardsStudied: 2, Accuracy: 50, TimeSpentSeconds: 360}}
		rec := doJSON(t, newTestServer(stub), http.MethodPost, "/api/study/"+sessionID.String()+"/end", user.String(), "")

		if rec.Code != http.StatusOK {
			t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body.String())
		}
		var stats session.EndStats
		if err := json.Unmarshal(rec.Body.Bytes(), &stats); err != nil {
			t.Fatal(err)
		}
		if stats.CardsStudied != 2 || stats.Accuracy != 50 {
			t.Errorf("Unexpected stats: %+v", stats)
		}
	})

	t.Run("foreign session maps to 403", func(t *testing.T) {
		stub := &stubService{endErr: &session.Error{Code: session.CodeUnauthorized, Err: context.Canceled}}
		rec := doJSON(t, newTestServer(stub), http.MethodPost, "/api/study/"+sessionID.String()+"/end", user.String(), "")
		if rec.Code != http.StatusForbidden {
			t.Errorf("Expected 403, got %d", rec.Code)
		}
	})

	t.Run("persistence failure maps to 503", func(t *testing.T) {
		stub := &stubService{endErr: &session.Error{Code: session.CodePersistenceFailed, Err: context.Canceled}}
		rec := doJSON(t, newTestServer(stub), http.MethodPost, "/api/study/"+sessionID.String()+"/end", user.String(), "")
		if rec.Code != http.StatusServiceUnavailable {
			t.Errorf("Expected 503, got %d", rec.Code)
		}
	})
}

func TestHealthEndpoint(t *testing.T) {
	rec := doJSON(t, newTestServer(&stubService{}), http.MethodGet, "/healthz", "", "")
	if rec.Code != http.StatusOK {
		t.Errorf("Expected 200, got %d", rec.Code)
	}
}
