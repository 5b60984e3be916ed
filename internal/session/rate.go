package session

import (
	"context"

	"github.com/google/uuid"

	"github.com/conorfennell/benkyo/internal/domain"
	"github.com/conorfennell/benkyo/internal/scheduler"
)

// RateResult is the outcome of grading one card inside an active session.
type RateResult struct {
	Card domain.SchedulingCard `json:"card"`
	Log  domain.ReviewLogEntry `json:"log"`
	// Remaining is the not-yet-studied queue after this rating. A card
	// rated Again stays in it, re-sorted ascending by due; any other
	// rating removes the card.
	Remaining []int64 `json:"remaining"`
	// Preview holds the would-be interval per rating for the updated
	// card, for UI hints only.
	Preview map[domain.Rating]string `json:"preview"`
}

// RateCard grades one card against the cached session. Everything happens in
// the cache; no durable write occurs until EndSession.
//
// Concurrent ratings for the same session are not serialized; the stored
// entry is last-write-wins. A single logical writer per session is assumed.
func (s *Service) RateCard(ctx context.Context, userID, sessionID uuid.UUID, itemID int64, rating domain.Rating, remaining []int64) (*RateResult, error) {
	if !rating.Valid() {
		return nil, fatalf(CodeSessionUpdateFailed, "invalid rating %d", rating)
	}

	entry, err := s.cache.Get(ctx, sessionID)
	if err != nil {
		return nil, fatal(CodeSessionNotFound, err)
	}
	if entry == nil {
		return nil, fatalf(CodeSessionNotFound, "no active session %s", sessionID)
	}
	if entry.UserID != userID {
		return nil, fatalf(CodeUnauthorized, "session %s does not belong to user %s", sessionID, userID)
	}

	card, ok := entry.Cards[itemID]
	if !ok {
		return nil, fatalf(CodeCardRetrievalFailed, "item %d is not part of session %s", itemID, sessionID)
	}

	now := s.now()
	graded, logEntry := s.engine.GradeCard(card, rating, now)
	entry.Cards[itemID] = graded
	entry.Logs[itemID] = append(entry.Logs[itemID], logEntry)

	if err := s.cache.AppendReview(ctx, entry, itemID); err != nil {
		return nil, fatal(CodeSessionUpdateFailed, err)
	}

	queue := remaining
	if rating == domain.Again {
		queue = scheduler.RequeueAgain(remaining, itemID, entry.Cards)
	} else {
		queue = removeItem(remaining, itemID)
	}

	return &RateResult{
		Card:      graded,
		Log:       logEntry,
		Remaining: queue,
		Preview:   s.engine.PreviewIntervals(graded, now),
	}, nil
}

func removeItem(queue []int64, itemID int64) []int64 {
	out := make([]int64, 0, len(queue))
	for _, id := range queue {
		if id != itemID {
			out = append(out, id)
		}
	}
	return out
}
