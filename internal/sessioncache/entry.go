package sessioncache

import (
	"time"

	"github.com/google/uuid"

	"github.com/conorfennell/benkyo/internal/domain"
)

// TTL is how long a session entry lives past its most recent mutation.
const TTL = 30 * time.Minute

// Entry is the ephemeral record of one active study session, keyed by the
// owning deck id. Exactly one entry exists per deck at a time. Once
// ExpiresAt has passed the entry is logically absent even if the store has
// not yet evicted it.
type Entry struct {
	UserID          uuid.UUID
	ChapterID       int64
	DeckID          uuid.UUID
	ChapterComplete bool

	// Items is the denormalized content snapshot, so an active session
	// renders without touching the content tables.
	Items map[int64]domain.ContentItem
	// Cards is the current in-session scheduling state per item.
	Cards map[int64]domain.SchedulingCard
	// Logs accumulates one entry per grading event, append-only.
	Logs map[int64][]domain.ReviewLogEntry
	// RowIDs maps each item to its durable scheduling row for log linkage.
	RowIDs map[int64]uuid.UUID

	CreatedAt time.Time
	ExpiresAt time.Time
}

// NewEntry returns an entry with all maps allocated.
func NewEntry(userID, deckID uuid.UUID, chapterID int64, chapterComplete bool) *Entry {
	return &Entry{
		UserID:          userID,
		ChapterID:       chapterID,
		DeckID:          deckID,
		ChapterComplete: chapterComplete,
		Items:           make(map[int64]domain.ContentItem),
		Cards:           make(map[int64]domain.SchedulingCard),
		Logs:            make(map[int64][]domain.ReviewLogEntry),
		RowIDs:          make(map[int64]uuid.UUID),
	}
}

// Expired reports whether the entry must be treated as a cache miss at now.
func (e *Entry) Expired(now time.Time) bool {
	return now.After(e.ExpiresAt)
}

// GradedItems returns the final card state and the full log list for every
// item rated at least once, each log bound to its durable scheduling row.
func (e *Entry) GradedItems() (map[int64]domain.SchedulingCard, []domain.ReviewLogRecord) {
	cards := make(map[int64]domain.SchedulingCard)
	var records []domain.ReviewLogRecord
	for itemID, logs := range e.Logs {
		if len(logs) == 0 {
			continue
		}
		cards[itemID] = e.Cards[itemID]
		rowID := e.RowIDs[itemID]
		for _, entry := range logs {
			records = append(records, domain.ReviewLogRecord{
				RowID:  rowID,
				UserID: e.UserID,
				ItemID: itemID,
				Entry:  entry,
			})
		}
	}
	return cards, records
}
