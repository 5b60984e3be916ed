package session

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/conorfennell/benkyo/internal/domain"
)

// EndStats summarizes a finished session. Warnings carries the best-effort
// steps that failed without failing the operation, so callers can observe
// the degraded path.
type EndStats struct {
	CardsStudied     int      `json:"cards_studied"`
	Accuracy         float64  `json:"accuracy"`
	TimeSpentSeconds int      `json:"time_spent_seconds"`
	Warnings         []string `json:"warnings,omitempty"`
}

// EndSession persists every graded card and its review logs, updates the
// progress aggregates best-effort, and clears the cache entry.
//
// Persistence failure leaves the cache entry in place so the caller can
// retry EndSession.
func (s *Service) EndSession(ctx context.Context, userID, sessionID uuid.UUID) (*EndStats, error) {
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

	cards, records := entry.GradedItems()
	if len(cards) > 0 {
		if err := s.persist(ctx, userID, entry.DeckID, cards, records); err != nil {
			return nil, fatal(CodePersistenceFailed, err)
		}
	}

	now := s.now()
	stats := &EndStats{
		CardsStudied:     len(records),
		TimeSpentSeconds: int(now.Sub(entry.CreatedAt).Seconds()),
	}
	if len(records) > 0 {
		good := 0
		for _, rec := range records {
			if rec.Entry.Rating >= domain.Good {
				good++
			}
		}
		stats.Accuracy = float64(good) / float64(len(records)) * 100
	}

	// Progress aggregates and cache cleanup are best-effort: log, record
	// the degradation, and still report success.
	if err := s.store.UpdateChapterProgress(ctx, userID, entry.ChapterID); err != nil {
		s.warn(stats, "chapter progress update failed", "session_id", sessionID, "chapter_id", entry.ChapterID, "error", err)
	}
	if err := s.store.UpdateCollectionProgress(ctx, userID, entry.ChapterID); err != nil {
		s.warn(stats, "collection progress update failed", "session_id", sessionID, "chapter_id", entry.ChapterID, "error", err)
	}
	if err := s.cache.Delete(ctx, sessionID); err != nil {
		// The TTL will reclaim the entry.
		s.warn(stats, "session cache delete failed", "session_id", sessionID, "error", err)
	}

	s.logger.Info("session ended",
		"session_id", sessionID, "user_id", userID,
		"cards_studied", stats.CardsStudied, "accuracy", stats.Accuracy,
		"warnings", len(stats.Warnings))
	return stats, nil
}

// persist is the two-tier durable write. The atomic transaction is the
// primary path; when that call itself fails, the two batches run
// independently, cards before logs. The fallback is not atomic: a crash
// between the batches can leave logs missing for already-updated cards.
func (s *Service) persist(ctx context.Context, userID, deckID uuid.UUID, cards map[int64]domain.SchedulingCard, records []domain.ReviewLogRecord) error {
	err := s.store.PersistSession(ctx, userID, deckID, cards, records)
	if err == nil {
		return nil
	}
	s.logger.Warn("atomic session persist failed, falling back to batched writes",
		"deck_id", deckID, "user_id", userID, "error", err)

	if err := s.store.BulkUpsertCards(ctx, userID, deckID, cards); err != nil {
		return fmt.Errorf("fallback card upsert for deck %s: %w", deckID, err)
	}
	if err := s.store.BulkInsertReviewLogs(ctx, records); err != nil {
		return fmt.Errorf("fallback log insert for deck %s: %w", deckID, err)
	}
	return nil
}

func (s *Service) warn(stats *EndStats, msg string, args ...any) {
	s.logger.Warn(msg, args...)
	stats.Warnings = append(stats.Warnings, msg)
}
