package sessioncache

import (
	"reflect"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/conorfennell/benkyo/internal/domain"
)

func sampleEntry(t *testing.T) *Entry {
	t.Helper()
	created := time.Date(2026, 3, 1, 9, 0, 0, 123456789, time.UTC)

	e := NewEntry(uuid.New(), uuid.New(), 42, false)
	e.CreatedAt = created
	e.ExpiresAt = created.Add(TTL)

	e.Items[7] = domain.ContentItem{
		ID: 7, ChapterID: 42, Kind: "vocabulary",
		Term: "勉強", Reading: "べんきょう", Meaning: "study",
	}
	e.Items[8] = domain.ContentItem{
		ID: 8, ChapterID: 42, Kind: "grammar",
		Term: "〜ながら", Meaning: "while doing",
	}
	e.Cards[7] = domain.SchedulingCard{
		Due:           created.Add(10 * time.Minute),
		Stability:     3.2,
		Difficulty:    5.1,
		ElapsedDays:   1,
		ScheduledDays: 3,
		LearningSteps: 2,
		Reps:          4,
		Lapses:        1,
		State:         domain.StateLearning,
		LastReview:    created.Add(-24 * time.Hour),
	}
	// Item 8 has never been reviewed: absent LastReview.
	e.Cards[8] = domain.SchedulingCard{
		Due:   created,
		State: domain.StateNew,
	}
	e.Logs[7] = []domain.ReviewLogEntry{
		{
			Rating:        domain.Good,
			State:         domain.StateLearning,
			Due:           created.Add(10 * time.Minute),
			Stability:     3.2,
			Difficulty:    5.1,
			ElapsedDays:   1,
			ScheduledDays: 3,
			ReviewedAt:    created,
		},
		{
			Rating:     domain.Again,
			State:      domain.StateLearning,
			Due:        created.Add(time.Minute),
			ReviewedAt: created.Add(30 * time.Second),
		},
	}
	e.RowIDs[7] = uuid.New()
	e.RowIDs[8] = uuid.New()
	return e
}

func TestRoundTrip(t *testing.T) {
	t.Run("full entry", func(t *testing.T) {
		e := sampleEntry(t)

		fields, err := Flatten(e)
		if err != nil {
			t.Fatalf("Flatten failed: %v", err)
		}
		got, err := Unflatten(fields)
		if err != nil {
			t.Fatalf("Unflatten failed: %v", err)
		}
		if !reflect.DeepEqual(e, got) {
			t.Errorf("Round trip mismatch:\n got %+v\nwant %+v", got, e)
		}
	})

	t.Run("absent last review stays absent", func(t *testing.T) {
		e := sampleEntry(t)

		fields, err := Flatten(e)
		if err != nil {
			t.Fatal(err)
		}
		got, err := Unflatten(fields)
		if err != nil {
			t.Fatal(err)
		}
		if !got.Cards[8].LastReview.IsZero() {
			t.Errorf("Expected absent last review, got %v", got.Cards[8].LastReview)
		}
		if got.Cards[7].LastReview.IsZero() {
			t.Error("Expected present last review to survive the round trip")
		}
	})

	t.Run("empty entry", func(t *testing.T) {
		e := NewEntry(uuid.New(), uuid.New(), 1, true)
		e.CreatedAt = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
		e.ExpiresAt = e.CreatedAt.Add(TTL)

		fields, err := Flatten(e)
		if err != nil {
			t.Fatal(err)
		}
		got, err := Unflatten(fields)
		if err != nil {
			t.Fatal(err)
		}
		if !reflect.DeepEqual(e, got) {
			t.Errorf("Round trip mismatch:\n got %+v\nwant %+v", got, e)
		}
	})
}

func TestUnflattenRejectsUnknownField(t *testing.T) {
	e := NewEntry(uuid.New(), uuid.New(), 1, false)
	fields, err := Flatten(e)
	if err != nil {
		t.Fatal(err)
	}
	fields["mystery"] = "value"

	if _, err := Unflatten(fields); err == nil {
		t.Error("Expected an error for an unknown field")
	}
}

func TestFlattenIsMapFree(t *testing.T) {
	e := sampleEntry(t)
	fields, err := Flatten(e)
	if err != nil {
		t.Fatal(err)
	}
	// Two scalars per item kind present plus the six fixed fields.
	want := 6 + len(e.Items) + len(e.Cards) + len(e.Logs) + len(e.RowIDs)
	if len(fields) != want {
		t.Errorf("Expected %d flat fields, got %d", want, len(fields))
	}
}
