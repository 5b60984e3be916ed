package session

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/conorfennell/benkyo/internal/domain"
)

// placeholderDeckName is used when chapter metadata cannot be resolved.
// Missing metadata must never abort provisioning.
const placeholderDeckName = "Chapter ?"

// provisionDeck is the race-safe get-or-create for the user's deck. When a
// concurrent caller wins the insert race, the lookup is re-run exactly once;
// if the deck still cannot be found, that points at a consistency bug
// upstream and the error is surfaced rather than swallowed.
func (s *Service) provisionDeck(ctx context.Context, userID uuid.UUID, chapterID int64) (*domain.Deck, error) {
	deck, err := s.store.FindDeck(ctx, userID, chapterID)
	if err != nil {
		return nil, fmt.Errorf("looking up deck for user %s chapter %d: %w", userID, chapterID, err)
	}
	if deck != nil {
		return deck, nil
	}

	deck = &domain.Deck{
		ID:        uuid.New(),
		UserID:    userID,
		ChapterID: chapterID,
		Name:      s.deckName(ctx, chapterID),
	}
	err = s.store.InsertDeck(ctx, deck)
	if err == nil {
		s.logger.Info("deck created", "deck_id", deck.ID, "user_id", userID, "chapter_id", chapterID)
		return deck, nil
	}
	if !errors.Is(err, domain.ErrDuplicate) {
		return nil, fmt.Errorf("inserting deck for user %s chapter %d: %w", userID, chapterID, err)
	}

	// Another caller won the race; their row must be visible now.
	deck, err = s.store.FindDeck(ctx, userID, chapterID)
	if err != nil {
		return nil, fmt.Errorf("re-reading deck for user %s chapter %d: %w", userID, chapterID, err)
	}
	if deck == nil {
		return nil, fmt.Errorf("race condition: deck for user %s chapter %d not found on retry", userID, chapterID)
	}
	return deck, nil
}

// deckName resolves a human-readable name for the chapter, falling back to a
// placeholder when the chapter or its display number is unresolved.
func (s *Service) deckName(ctx context.Context, chapterID int64) string {
	chapter, err := s.store.FindChapter(ctx, chapterID)
	if err != nil || chapter == nil {
		if err != nil {
			s.logger.Warn("resolving chapter for deck name", "chapter_id", chapterID, "error", err)
		}
		return placeholderDeckName
	}
	if chapter.Number == nil {
		if chapter.Title != "" {
			return placeholderDeckName + " - " + chapter.Title
		}
		return placeholderDeckName
	}
	if chapter.Title != "" {
		return fmt.Sprintf("Chapter %d - %s", *chapter.Number, chapter.Title)
	}
	return fmt.Sprintf("Chapter %d", *chapter.Number)
}
