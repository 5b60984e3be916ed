package session

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/conorfennell/benkyo/internal/domain"
	"github.com/conorfennell/benkyo/internal/scheduler"
)

// initializeChapterCards creates a New scheduling row for every chapter item
// the user does not track yet, and returns how many were created. Safe to
// call repeatedly: with unchanged content a second call finds an empty set
// difference and returns 0.
func (s *Service) initializeChapterCards(ctx context.Context, userID, deckID uuid.UUID, chapterID int64) (int, error) {
	all, err := s.store.ListChapterItemIDs(ctx, chapterID)
	if err != nil {
		return 0, fmt.Errorf("listing items for chapter %d: %w", chapterID, err)
	}
	existing, err := s.store.ListUserCardItemIDs(ctx, userID, chapterID)
	if err != nil {
		return 0, fmt.Errorf("listing tracked items for user %s chapter %d: %w", userID, chapterID, err)
	}

	tracked := make(map[int64]struct{}, len(existing))
	for _, id := range existing {
		tracked[id] = struct{}{}
	}

	now := s.now()
	missing := make(map[int64]domain.SchedulingCard)
	for _, id := range all {
		if _, ok := tracked[id]; !ok {
			missing[id] = scheduler.NewCard(now)
		}
	}
	if len(missing) == 0 {
		return 0, nil
	}

	inserted, err := s.store.BulkInsertCards(ctx, userID, deckID, missing)
	if err != nil {
		return inserted, fmt.Errorf("bulk inserting %d cards for user %s chapter %d: %w", len(missing), userID, chapterID, err)
	}
	s.logger.Info("chapter cards initialized",
		"user_id", userID, "chapter_id", chapterID, "inserted", inserted)
	return inserted, nil
}
