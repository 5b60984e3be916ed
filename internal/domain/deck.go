package domain

import (
	"errors"

	"github.com/google/uuid"
)

// ErrDuplicate is returned by inserts that hit a uniqueness constraint, so
// callers can resolve optimistic-concurrency races without depending on
// driver error types.
var ErrDuplicate = errors.New("duplicate row")

// Deck is the per-user container that scheduling rows for one chapter attach
// to. Decks are created lazily on the first study attempt and never deleted
// by the study-session engine. Unique on (UserID, ChapterID).
type Deck struct {
	ID        uuid.UUID
	UserID    uuid.UUID
	ChapterID int64
	Name      string
}

// Chapter is the content unit a deck tracks. Number is nil when the display
// number could not be resolved during ingestion.
type Chapter struct {
	ID           int64
	Number       *int
	Title        string
	CollectionID int64
}

// ContentItem is a denormalized vocabulary or grammar entry, carried in the
// session cache so an active session never has to touch the content tables.
type ContentItem struct {
	ID        int64  `json:"id"`
	ChapterID int64  `json:"chapter_id"`
	Kind      string `json:"kind"` // "vocabulary" or "grammar"
	Term      string `json:"term"`
	Reading   string `json:"reading,omitempty"`
	Meaning   string `json:"meaning"`
}

// StudyItem pairs a content item with the user's current scheduling state
// and the id of its durable row, for review-log linkage.
type StudyItem struct {
	Item  ContentItem    `json:"item"`
	Card  SchedulingCard `json:"card"`
	RowID uuid.UUID      `json:"-"`
}

// ReviewLogRecord is a ReviewLogEntry bound to its durable scheduling row,
// ready for persistence.
type ReviewLogRecord struct {
	RowID  uuid.UUID
	UserID uuid.UUID
	ItemID int64
	Entry  ReviewLogEntry
}
