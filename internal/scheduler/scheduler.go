package scheduler

import (
	"fmt"
	"time"

	fsrs "github.com/open-spaced-repetition/go-fsrs"

	"github.com/conorfennell/benkyo/internal/domain"
)

// Engine grades cards with the FSRS spaced-repetition model. It is pure and
// deterministic: no I/O, no clock access, every method takes an explicit now.
type Engine struct {
	params fsrs.Parameters
}

// NewEngine returns an engine with the default FSRS parameters.
func NewEngine() *Engine {
	return &Engine{params: fsrs.DefaultParam()}
}

// NewCard returns the zero-state card: state New, due immediately.
func NewCard(now time.Time) domain.SchedulingCard {
	return domain.SchedulingCard{
		Due:   now,
		State: domain.StateNew,
	}
}

// IsDue reports whether the card is eligible for review at now.
func IsDue(card domain.SchedulingCard, now time.Time) bool {
	return !card.Due.After(now)
}

// GradeCard applies one review to a card and returns the updated card along
// with the immutable log entry recording the event. The input card is not
// modified. The rating must be one of the four review ratings.
func (e *Engine) GradeCard(card domain.SchedulingCard, rating domain.Rating, now time.Time) (domain.SchedulingCard, domain.ReviewLogEntry) {
	record := e.params.Repeat(toFSRS(card), now)
	info := record[fsrs.Rating(rating)]

	next := fromFSRS(info.Card)
	next.LearningSteps = nextLearningSteps(card, next)

	entry := domain.ReviewLogEntry{
		Rating:        rating,
		State:         next.State,
		Due:           next.Due,
		Stability:     next.Stability,
		Difficulty:    next.Difficulty,
		ElapsedDays:   next.ElapsedDays,
		ScheduledDays: next.ScheduledDays,
		ReviewedAt:    now,
	}
	return next, entry
}

// PreviewIntervals computes the would-be interval for every rating without
// mutating state. The values are short human-readable strings for UI hints,
// never inputs to persistence.
func (e *Engine) PreviewIntervals(card domain.SchedulingCard, now time.Time) map[domain.Rating]string {
	record := e.params.Repeat(toFSRS(card), now)
	out := make(map[domain.Rating]string, 4)
	for _, r := range []domain.Rating{domain.Again, domain.Hard, domain.Good, domain.Easy} {
		out[r] = formatInterval(record[fsrs.Rating(r)].Card.Due.Sub(now))
	}
	return out
}

// nextLearningSteps tracks how many reviews the card has taken inside its
// current learning phase. FSRS itself does not carry this counter.
func nextLearningSteps(prev, next domain.SchedulingCard) int {
	switch next.State {
	case domain.StateLearning, domain.StateRelearning:
		if prev.State == domain.StateReview {
			// Lapsed out of Review: a fresh relearning phase begins.
			return 1
		}
		return prev.LearningSteps + 1
	default:
		return 0
	}
}

func toFSRS(card domain.SchedulingCard) fsrs.Card {
	return fsrs.Card{
		Due:           card.Due,
		Stability:     card.Stability,
		Difficulty:    card.Difficulty,
		ElapsedDays:   uint64(max(card.ElapsedDays, 0)),
		ScheduledDays: uint64(max(card.ScheduledDays, 0)),
		Reps:          uint64(max(card.Reps, 0)),
		Lapses:        uint64(max(card.Lapses, 0)),
		State:         fsrs.State(card.State),
		LastReview:    card.LastReview,
	}
}

func fromFSRS(card fsrs.Card) domain.SchedulingCard {
	return domain.SchedulingCard{
		Due:           card.Due,
		Stability:     card.Stability,
		Difficulty:    card.Difficulty,
		ElapsedDays:   int(card.ElapsedDays),
		ScheduledDays: int(card.ScheduledDays),
		Reps:          int(card.Reps),
		Lapses:        int(card.Lapses),
		State:         domain.State(card.State),
		LastReview:    card.LastReview,
	}
}

// formatInterval renders a scheduling interval the way review buttons show
// it: "<1m", "10m", "3h", "2d", "4mo", "1.2y".
func formatInterval(d time.Duration) string {
	switch {
	case d < time.Minute:
		return "<1m"
	case d < time.Hour:
		return fmt.Sprintf("%dm", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh", int(d.Hours()))
	case d < 30*24*time.Hour:
		return fmt.Sprintf("%dd", int(d.Hours()/24))
	case d < 365*24*time.Hour:
		return fmt.Sprintf("%dmo", int(d.Hours()/24/30))
	default:
		return fmt.Sprintf("%.1fy", d.Hours()/24/365)
	}
}
