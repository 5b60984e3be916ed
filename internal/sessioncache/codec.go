package sessioncache

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/conorfennell/benkyo/internal/domain"
)

// The session cache speaks string-to-string only, so an entry is stored as a
// flat record: one field per scalar, one field per item under a typed
// prefix. Flatten and Unflatten are exact inverses, including the
// distinction between an absent and a present LastReview.

const (
	fieldUserID          = "user_id"
	fieldChapterID       = "chapter_id"
	fieldDeckID          = "deck_id"
	fieldChapterComplete = "chapter_complete"
	fieldCreatedAt       = "created_at"
	fieldExpiresAt       = "expires_at"

	prefixItem = "item:"
	prefixCard = "card:"
	prefixLogs = "logs:"
	prefixRow  = "row:"
)

// timeFormat is the fixed wire format for timestamps. All times are stored
// in UTC; Unflatten returns UTC times.
const timeFormat = time.RFC3339Nano

type wireCard struct {
	Due           string  `json:"due"`
	Stability     float64 `json:"stability"`
	Difficulty    float64 `json:"difficulty"`
	ElapsedDays   int     `json:"elapsed_days"`
	ScheduledDays int     `json:"scheduled_days"`
	LearningSteps int     `json:"learning_steps"`
	Reps          int     `json:"reps"`
	Lapses        int     `json:"lapses"`
	State         int     `json:"state"`
	LastReview    string  `json:"last_review,omitempty"`
}

type wireLog struct {
	Rating        int     `json:"rating"`
	State         int     `json:"state"`
	Due           string  `json:"due"`
	Stability     float64 `json:"stability"`
	Difficulty    float64 `json:"difficulty"`
	ElapsedDays   int     `json:"elapsed_days"`
	ScheduledDays int     `json:"scheduled_days"`
	ReviewedAt    string  `json:"reviewed_at"`
}

// Flatten serializes an entry to its flat stored representation.
func Flatten(e *Entry) (map[string]string, error) {
	out := map[string]string{
		fieldUserID:          e.UserID.String(),
		fieldChapterID:       strconv.FormatInt(e.ChapterID, 10),
		fieldDeckID:          e.DeckID.String(),
		fieldChapterComplete: strconv.FormatBool(e.ChapterComplete),
		fieldCreatedAt:       encodeTime(e.CreatedAt),
		fieldExpiresAt:       encodeTime(e.ExpiresAt),
	}

	for id, item := range e.Items {
		data, err := json.Marshal(item)
		if err != nil {
			return nil, fmt.Errorf("marshaling item %d: %w", id, err)
		}
		out[prefixItem+strconv.FormatInt(id, 10)] = string(data)
	}
	for id, card := range e.Cards {
		field, err := flattenCard(card)
		if err != nil {
			return nil, fmt.Errorf("marshaling card %d: %w", id, err)
		}
		out[prefixCard+strconv.FormatInt(id, 10)] = field
	}
	for id, logs := range e.Logs {
		field, err := flattenLogs(logs)
		if err != nil {
			return nil, fmt.Errorf("marshaling logs %d: %w", id, err)
		}
		out[prefixLogs+strconv.FormatInt(id, 10)] = field
	}
	for id, rowID := range e.RowIDs {
		out[prefixRow+strconv.FormatInt(id, 10)] = rowID.String()
	}
	return out, nil
}

// Unflatten rebuilds an entry from its flat stored representation.
func Unflatten(fields map[string]string) (*Entry, error) {
	e := &Entry{
		Items:  make(map[int64]domain.ContentItem),
		Cards:  make(map[int64]domain.SchedulingCard),
		Logs:   make(map[int64][]domain.ReviewLogEntry),
		RowIDs: make(map[int64]uuid.UUID),
	}

	for key, value := range fields {
		var err error
		switch {
		case key == fieldUserID:
			e.UserID, err = uuid.Parse(value)
		case key == fieldChapterID:
			e.ChapterID, err = strconv.ParseInt(value, 10, 64)
		case key == fieldDeckID:
			e.DeckID, err = uuid.Parse(value)
		case key == fieldChapterComplete:
			e.ChapterComplete, err = strconv.ParseBool(value)
		case key == fieldCreatedAt:
			e.CreatedAt, err = decodeTime(value)
		case key == fieldExpiresAt:
			e.ExpiresAt, err = decodeTime(value)
		case strings.HasPrefix(key, prefixItem):
			var id int64
			if id, err = itemID(key, prefixItem); err == nil {
				var item domain.ContentItem
				if err = json.Unmarshal([]byte(value), &item); err == nil {
					e.Items[id] = item
				}
			}
		case strings.HasPrefix(key, prefixCard):
			var id int64
			if id, err = itemID(key, prefixCard); err == nil {
				var card domain.SchedulingCard
				if card, err = unflattenCard(value); err == nil {
					e.Cards[id] = card
				}
			}
		case strings.HasPrefix(key, prefixLogs):
			var id int64
			if id, err = itemID(key, prefixLogs); err == nil {
				var logs []domain.ReviewLogEntry
				if logs, err = unflattenLogs(value); err == nil {
					e.Logs[id] = logs
				}
			}
		case strings.HasPrefix(key, prefixRow):
			var id int64
			if id, err = itemID(key, prefixRow); err == nil {
				var rowID uuid.UUID
				if rowID, err = uuid.Parse(value); err == nil {
					e.RowIDs[id] = rowID
				}
			}
		default:
			return nil, fmt.Errorf("unknown session field %q", key)
		}
		if err != nil {
			return nil, fmt.Errorf("decoding session field %q: %w", key, err)
		}
	}
	return e, nil
}

func flattenCard(card domain.SchedulingCard) (string, error) {
	w := wireCard{
		Due:           encodeTime(card.Due),
		Stability:     card.Stability,
		Difficulty:    card.Difficulty,
		ElapsedDays:   card.ElapsedDays,
		ScheduledDays: card.ScheduledDays,
		LearningSteps: card.LearningSteps,
		Reps:          card.Reps,
		Lapses:        card.Lapses,
		State:         int(card.State),
	}
	if !card.LastReview.IsZero() {
		w.LastReview = encodeTime(card.LastReview)
	}
	data, err := json.Marshal(w)
	return string(data), err
}

func unflattenCard(value string) (domain.SchedulingCard, error) {
	var w wireCard
	if err := json.Unmarshal([]byte(value), &w); err != nil {
		return domain.SchedulingCard{}, err
	}
	due, err := decodeTime(w.Due)
	if err != nil {
		return domain.SchedulingCard{}, err
	}
	card := domain.SchedulingCard{
		Due:           due,
		Stability:     w.Stability,
		Difficulty:    w.Difficulty,
		ElapsedDays:   w.ElapsedDays,
		ScheduledDays: w.ScheduledDays,
		LearningSteps: w.LearningSteps,
		Reps:          w.Reps,
		Lapses:        w.Lapses,
		State:         domain.State(w.State),
	}
	if w.LastReview != "" {
		if card.LastReview, err = decodeTime(w.LastReview); err != nil {
			return domain.SchedulingCard{}, err
		}
	}
	return card, nil
}

func flattenLogs(logs []domain.ReviewLogEntry) (string, error) {
	wires := make([]wireLog, len(logs))
	for i, entry := range logs {
		wires[i] = wireLog{
			Rating:        int(entry.Rating),
			State:         int(entry.State),
			Due:           encodeTime(entry.Due),
			Stability:     entry.Stability,
			Difficulty:    entry.Difficulty,
			ElapsedDays:   entry.ElapsedDays,
			ScheduledDays: entry.ScheduledDays,
			ReviewedAt:    encodeTime(entry.ReviewedAt),
		}
	}
	data, err := json.Marshal(wires)
	return string(data), err
}

func unflattenLogs(value string) ([]domain.ReviewLogEntry, error) {
	var wires []wireLog
	if err := json.Unmarshal([]byte(value), &wires); err != nil {
		return nil, err
	}
	logs := make([]domain.ReviewLogEntry, len(wires))
	for i, w := range wires {
		due, err := decodeTime(w.Due)
		if err != nil {
			return nil, err
		}
		reviewedAt, err := decodeTime(w.ReviewedAt)
		if err != nil {
			return nil, err
		}
		logs[i] = domain.ReviewLogEntry{
			Rating:        domain.Rating(w.Rating),
			State:         domain.State(w.State),
			Due:           due,
			Stability:     w.Stability,
			Difficulty:    w.Difficulty,
			ElapsedDays:   w.ElapsedDays,
			ScheduledDays: w.ScheduledDays,
			ReviewedAt:    reviewedAt,
		}
	}
	return logs, nil
}

func itemID(key, prefix string) (int64, error) {
	return strconv.ParseInt(strings.TrimPrefix(key, prefix), 10, 64)
}

func encodeTime(t time.Time) string {
	return t.UTC().Format(timeFormat)
}

func decodeTime(value string) (time.Time, error) {
	return time.Parse(timeFormat, value)
}
