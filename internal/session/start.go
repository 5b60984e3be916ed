package session

import (
	"context"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/conorfennell/benkyo/internal/domain"
	"github.com/conorfennell/benkyo/internal/sessioncache"
)

// StartResult is what a successful StartSession hands back to the caller.
// The session id doubles as the deck id.
type StartResult struct {
	SessionID    uuid.UUID          `json:"session_id"`
	Items        []domain.StudyItem `json:"items"`
	NewItemCount int                `json:"new_item_count"`
	StartedAt    time.Time          `json:"started_at"`
}

// StartSession provisions the deck, initializes any untracked cards, and
// creates (or reuses) the cached session entry for the chapter.
func (s *Service) StartSession(ctx context.Context, userID uuid.UUID, chapterID int64) (*StartResult, error) {
	deck, err := s.provisionDeck(ctx, userID, chapterID)
	if err != nil {
		return nil, fatal(CodeDeckCreationFailed, err)
	}

	// Validate the chapter and count initialized vs total items
	// concurrently; they are independent reads.
	var (
		chapter    *domain.Chapter
		totalItems int
		tracked    int
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		chapter, err = s.store.FindChapter(gctx, chapterID)
		return err
	})
	g.Go(func() error {
		var err error
		totalItems, err = s.store.CountChapterItems(gctx, chapterID)
		return err
	})
	g.Go(func() error {
		var err error
		tracked, err = s.store.CountUserCards(gctx, userID, chapterID)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, fatal(CodeChapterNotFound, err)
	}
	if chapter == nil {
		return nil, fatalf(CodeChapterNotFound, "chapter %d does not exist", chapterID)
	}
	if totalItems == 0 {
		return nil, fatalf(CodeNoVocabulary, "chapter %d has no content items", chapterID)
	}

	if tracked < totalItems {
		if _, err := s.initializeChapterCards(ctx, userID, deck.ID, chapterID); err != nil {
			return nil, fatal(CodeInitializationFailed, err)
		}
	}

	items, err := s.store.FetchStudyItems(ctx, userID, deck.ID, chapterID, s.StudyLimit)
	if err != nil {
		return nil, fatal(CodeCardRetrievalFailed, err)
	}
	newCount := 0
	for _, it := range items {
		if it.Card.State == domain.StateNew {
			newCount++
		}
	}

	// The completion flag snapshots whether every chapter item was already
	// tracked before this session touched it.
	entry, err := s.sessionEntry(ctx, userID, deck, items, tracked >= totalItems)
	if err != nil {
		return nil, err
	}

	s.logger.Info("session started",
		"session_id", deck.ID, "user_id", userID, "chapter_id", chapterID,
		"items", len(items), "new_items", newCount)

	return &StartResult{
		SessionID:    deck.ID,
		Items:        items,
		NewItemCount: newCount,
		StartedAt:    entry.CreatedAt,
	}, nil
}

// sessionEntry reuses an unexpired cache entry for the deck when one exists,
// otherwise creates a fresh one and verifies it reads back.
func (s *Service) sessionEntry(ctx context.Context, userID uuid.UUID, deck *domain.Deck, items []domain.StudyItem, chapterComplete bool) (*sessioncache.Entry, error) {
	existing, err := s.cache.Get(ctx, deck.ID)
	if err != nil {
		return nil, fatal(CodeSessionCreationFailed, err)
	}
	if existing != nil {
		s.logger.Info("reusing cached session", "session_id", deck.ID, "user_id", userID)
		return existing, nil
	}

	entry := sessioncache.NewEntry(userID, deck.ID, deck.ChapterID, chapterComplete)
	for _, it := range items {
		entry.Items[it.Item.ID] = it.Item
		entry.Cards[it.Item.ID] = it.Card
		entry.RowIDs[it.Item.ID] = it.RowID
	}
	if err := s.cache.Create(ctx, entry); err != nil {
		return nil, fatal(CodeSessionCreationFailed, err)
	}

	// A create that is immediately unreadable indicates a cache
	// consistency fault, not a race.
	readBack, err := s.cache.Get(ctx, deck.ID)
	if err != nil {
		return nil, fatal(CodeSessionCreationFailed, err)
	}
	if readBack == nil {
		return nil, fatalf(CodeSessionCreationFailed, "session %s unreadable immediately after create", deck.ID)
	}
	return readBack, nil
}
