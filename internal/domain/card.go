package domain

import "time"

// Rating is the user's response to a card review.
type Rating int

const (
	Again Rating = 1
	Hard  Rating = 2
	Good  Rating = 3
	Easy  Rating = 4
)

// Valid reports whether r is one of the four review ratings.
func (r Rating) Valid() bool {
	return r >= Again && r <= Easy
}

func (r Rating) String() string {
	switch r {
	case Again:
		return "again"
	case Hard:
		return "hard"
	case Good:
		return "good"
	case Easy:
		return "easy"
	}
	return "unknown"
}

// State is the scheduling phase a card is in.
type State int

const (
	StateNew State = iota
	StateLearning
	StateReview
	StateRelearning
)

func (s State) String() string {
	switch s {
	case StateNew:
		return "new"
	case StateLearning:
		return "learning"
	case StateReview:
		return "review"
	case StateRelearning:
		return "relearning"
	}
	return "unknown"
}

// SchedulingCard is the spaced-repetition state of one content item for one
// user. Reps and Lapses only ever grow over the lifetime of a card, and State
// is set exclusively by the scheduler, never by callers.
type SchedulingCard struct {
	Due           time.Time `json:"due"`
	Stability     float64   `json:"stability"`
	Difficulty    float64   `json:"difficulty"`
	ElapsedDays   int       `json:"elapsed_days"`
	ScheduledDays int       `json:"scheduled_days"`
	LearningSteps int       `json:"learning_steps"`
	Reps          int       `json:"reps"`
	Lapses        int       `json:"lapses"`
	State         State     `json:"state"`
	LastReview    time.Time `json:"last_review,omitzero"` // zero means the card has never been reviewed
}

// ReviewLogEntry is the immutable record of one grading event. It snapshots
// the card fields that resulted from the review. Entries are append-only;
// once persisted they are never updated or deleted.
type ReviewLogEntry struct {
	Rating        Rating    `json:"rating"`
	State         State     `json:"state"`
	Due           time.Time `json:"due"`
	Stability     float64   `json:"stability"`
	Difficulty    float64   `json:"difficulty"`
	ElapsedDays   int       `json:"elapsed_days"`
	ScheduledDays int       `json:"scheduled_days"`
	ReviewedAt    time.Time `json:"reviewed_at"`
}
