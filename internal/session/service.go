package session

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/conorfennell/benkyo/internal/domain"
	"github.com/conorfennell/benkyo/internal/scheduler"
	"github.com/conorfennell/benkyo/internal/sessioncache"
)

// defaultStudyLimit caps how many due-or-new items a single session pulls.
const defaultStudyLimit = 100

// Store is the durable-store surface the orchestrator depends on.
// Implemented by storage.Postgres.
type Store interface {
	FindDeck(ctx context.Context, userID uuid.UUID, chapterID int64) (*domain.Deck, error)
	// InsertDeck reports a lost creation race as domain.ErrDuplicate.
	InsertDeck(ctx context.Context, deck *domain.Deck) error
	FindChapter(ctx context.Context, chapterID int64) (*domain.Chapter, error)
	CountChapterItems(ctx context.Context, chapterID int64) (int, error)
	CountUserCards(ctx context.Context, userID uuid.UUID, chapterID int64) (int, error)
	ListChapterItemIDs(ctx context.Context, chapterID int64) ([]int64, error)
	ListUserCardItemIDs(ctx context.Context, userID uuid.UUID, chapterID int64) ([]int64, error)
	BulkInsertCards(ctx context.Context, userID, deckID uuid.UUID, cards map[int64]domain.SchedulingCard) (int, error)
	BulkUpsertCards(ctx context.Context, userID, deckID uuid.UUID, cards map[int64]domain.SchedulingCard) error
	BulkInsertReviewLogs(ctx context.Context, records []domain.ReviewLogRecord) error
	// PersistSession applies the card upserts and log inserts in one
	// transaction: both or neither.
	PersistSession(ctx context.Context, userID, deckID uuid.UUID, cards map[int64]domain.SchedulingCard, records []domain.ReviewLogRecord) error
	FetchStudyItems(ctx context.Context, userID, deckID uuid.UUID, chapterID int64, limit int) ([]domain.StudyItem, error)
	UpdateChapterProgress(ctx context.Context, userID uuid.UUID, chapterID int64) error
	UpdateCollectionProgress(ctx context.Context, userID uuid.UUID, chapterID int64) error
}

// Cache is the session-cache surface the orchestrator depends on.
// Implemented by sessioncache.Cache.
type Cache interface {
	Create(ctx context.Context, e *sessioncache.Entry) error
	Get(ctx context.Context, sessionID uuid.UUID) (*sessioncache.Entry, error)
	Delete(ctx context.Context, sessionID uuid.UUID) error
	AppendReview(ctx context.Context, e *sessioncache.Entry, itemID int64) error
}

// Service orchestrates study sessions: deck provisioning, card
// initialization, the in-session rating loop, and end-of-session
// persistence.
type Service struct {
	store  Store
	cache  Cache
	engine *scheduler.Engine
	logger *slog.Logger

	// StudyLimit caps the item mix returned by StartSession.
	StudyLimit int

	now func() time.Time
}

// NewService wires an orchestrator from its collaborators.
func NewService(store Store, cache Cache, engine *scheduler.Engine, logger *slog.Logger) *Service {
	return &Service{
		store:      store,
		cache:      cache,
		engine:     engine,
		logger:     logger,
		StudyLimit: defaultStudyLimit,
		now:        time.Now,
	}
}
