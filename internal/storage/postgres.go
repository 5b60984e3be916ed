package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/conorfennell/benkyo/internal/domain"
)

// pgUniqueViolation is the PostgreSQL error code for unique_violation.
const pgUniqueViolation = "23505"

// Postgres is the durable store for decks, scheduling rows, review logs, and
// progress aggregates.
type Postgres struct {
	pool *pgxpool.Pool
}

// Open connects to the database and ensures the schema is up to date.
func Open(ctx context.Context, dsn string) (*Postgres, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}
	return &Postgres{pool: pool}, nil
}

// Close releases the connection pool.
func (p *Postgres) Close() {
	p.pool.Close()
}

// IsUniqueViolation reports whether err was caused by a uniqueness
// constraint.
func IsUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation
}

// FindDeck returns the deck for (user, chapter), or nil when absent.
func (p *Postgres) FindDeck(ctx context.Context, userID uuid.UUID, chapterID int64) (*domain.Deck, error) {
	var d domain.Deck
	err := p.pool.QueryRow(ctx, `
		SELECT id, user_id, chapter_id, name
		FROM decks WHERE user_id = $1 AND chapter_id = $2
	`, userID, chapterID).Scan(&d.ID, &d.UserID, &d.ChapterID, &d.Name)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find deck for user %s chapter %d: %w", userID, chapterID, err)
	}
	return &d, nil
}

// InsertDeck creates a deck row. A concurrent insert for the same
// (user, chapter) surfaces as domain.ErrDuplicate.
func (p *Postgres) InsertDeck(ctx context.Context, deck *domain.Deck) error {
	_, err := p.pool.Exec(ctx, `
		INSERT INTO decks (id, user_id, chapter_id, name)
		VALUES ($1, $2, $3, $4)
	`, deck.ID, deck.UserID, deck.ChapterID, deck.Name)
	if err != nil {
		if IsUniqueViolation(err) {
			return fmt.Errorf("deck for user %s chapter %d: %w", deck.UserID, deck.ChapterID, domain.ErrDuplicate)
		}
		return fmt.Errorf("failed to insert deck %s: %w", deck.ID, err)
	}
	return nil
}

// FindChapter returns the chapter, or nil when absent.
func (p *Postgres) FindChapter(ctx context.Context, chapterID int64) (*domain.Chapter, error) {
	var c domain.Chapter
	err := p.pool.QueryRow(ctx, `
		SELECT id, chapter_number, title, collection_id
		FROM chapters WHERE id = $1
	`, chapterID).Scan(&c.ID, &c.Number, &c.Title, &c.CollectionID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find chapter %d: %w", chapterID, err)
	}
	return &c, nil
}

// CountChapterItems returns the number of content items in the chapter.
func (p *Postgres) CountChapterItems(ctx context.Context, chapterID int64) (int, error) {
	var n int
	err := p.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM content_items WHERE chapter_id = $1
	`, chapterID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count items for chapter %d: %w", chapterID, err)
	}
	return n, nil
}

// CountUserCards returns how many of the chapter's items already have a
// scheduling row for the user.
func (p *Postgres) CountUserCards(ctx context.Context, userID uuid.UUID, chapterID int64) (int, error) {
	var n int
	err := p.pool.QueryRow(ctx, `
		SELECT COUNT(*)
		FROM scheduling_cards sc
		JOIN content_items ci ON ci.id = sc.item_id
		WHERE sc.user_id = $1 AND ci.chapter_id = $2
	`, userID, chapterID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count cards for user %s chapter %d: %w", userID, chapterID, err)
	}
	return n, nil
}

// ListChapterItemIDs returns every content-item id in the chapter.
func (p *Postgres) ListChapterItemIDs(ctx context.Context, chapterID int64) ([]int64, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT id FROM content_items WHERE chapter_id = $1 ORDER BY id
	`, chapterID)
	if err != nil {
		return nil, fmt.Errorf("failed to list items for chapter %d: %w", chapterID, err)
	}
	return scanIDs(rows)
}

// ListUserCardItemIDs returns the chapter item ids the user already has
// scheduling rows for.
func (p *Postgres) ListUserCardItemIDs(ctx context.Context, userID uuid.UUID, chapterID int64) ([]int64, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT sc.item_id
		FROM scheduling_cards sc
		JOIN content_items ci ON ci.id = sc.item_id
		WHERE sc.user_id = $1 AND ci.chapter_id = $2
		ORDER BY sc.item_id
	`, userID, chapterID)
	if err != nil {
		return nil, fmt.Errorf("failed to list card items for user %s chapter %d: %w", userID, chapterID, err)
	}
	return scanIDs(rows)
}

func scanIDs(rows pgx.Rows) ([]int64, error) {
	defer rows.Close()
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan id row: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

const insertCardSQL = `
	INSERT INTO scheduling_cards
		(id, user_id, deck_id, item_id, due, stability, difficulty,
		 elapsed_days, scheduled_days, learning_steps, reps, lapses, state, last_review)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	ON CONFLICT (user_id, item_id) DO NOTHING
`

const upsertCardSQL = `
	INSERT INTO scheduling_cards
		(id, user_id, deck_id, item_id, due, stability, difficulty,
		 elapsed_days, scheduled_days, learning_steps, reps, lapses, state, last_review)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	ON CONFLICT (user_id, item_id) DO UPDATE SET
		due = EXCLUDED.due,
		stability = EXCLUDED.stability,
		difficulty = EXCLUDED.difficulty,
		elapsed_days = EXCLUDED.elapsed_days,
		scheduled_days = EXCLUDED.scheduled_days,
		learning_steps = EXCLUDED.learning_steps,
		reps = EXCLUDED.reps,
		lapses = EXCLUDED.lapses,
		state = EXCLUDED.state,
		last_review = EXCLUDED.last_review
`

const insertLogSQL = `
	INSERT INTO review_logs
		(id, card_row_id, user_id, item_id, rating, state, due,
		 stability, difficulty, elapsed_days, scheduled_days, reviewed_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
`

func cardArgs(userID, deckID uuid.UUID, itemID int64, card domain.SchedulingCard) []any {
	var lastReview *time.Time
	if !card.LastReview.IsZero() {
		t := card.LastReview
		lastReview = &t
	}
	return []any{
		uuid.New(), userID, deckID, itemID, card.Due, card.Stability, card.Difficulty,
		card.ElapsedDays, card.ScheduledDays, card.LearningSteps,
		card.Reps, card.Lapses, int(card.State), lastReview,
	}
}

func logArgs(rec domain.ReviewLogRecord) []any {
	return []any{
		uuid.New(), rec.RowID, rec.UserID, rec.ItemID,
		int(rec.Entry.Rating), int(rec.Entry.State), rec.Entry.Due,
		rec.Entry.Stability, rec.Entry.Difficulty,
		rec.Entry.ElapsedDays, rec.Entry.ScheduledDays, rec.Entry.ReviewedAt,
	}
}

// BulkInsertCards creates one scheduling row per card, skipping items that
// already have one, and returns the number actually inserted.
func (p *Postgres) BulkInsertCards(ctx context.Context, userID, deckID uuid.UUID, cards map[int64]domain.SchedulingCard) (int, error) {
	if len(cards) == 0 {
		return 0, nil
	}
	batch := &pgx.Batch{}
	for itemID, card := range cards {
		batch.Queue(insertCardSQL, cardArgs(userID, deckID, itemID, card)...)
	}

	results := p.pool.SendBatch(ctx, batch)
	defer results.Close()

	inserted := 0
	for range cards {
		tag, err := results.Exec()
		if err != nil {
			return inserted, fmt.Errorf("failed to bulk insert cards for user %s: %w", userID, err)
		}
		inserted += int(tag.RowsAffected())
	}
	return inserted, nil
}

// BulkUpsertCards writes every card's scheduling state, inserting rows that
// do not exist yet.
func (p *Postgres) BulkUpsertCards(ctx context.Context, userID, deckID uuid.UUID, cards map[int64]domain.SchedulingCard) error {
	if len(cards) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for itemID, card := range cards {
		batch.Queue(upsertCardSQL, cardArgs(userID, deckID, itemID, card)...)
	}
	if err := p.pool.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("failed to bulk upsert cards for user %s: %w", userID, err)
	}
	return nil
}

// BulkInsertReviewLogs appends review-log rows. Logs are never updated or
// deleted.
func (p *Postgres) BulkInsertReviewLogs(ctx context.Context, records []domain.ReviewLogRecord) error {
	if len(records) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, rec := range records {
		batch.Queue(insertLogSQL, logArgs(rec)...)
	}
	if err := p.pool.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("failed to bulk insert review logs: %w", err)
	}
	return nil
}

// PersistSession atomically upserts the changed cards and inserts their
// review logs: both or neither.
func (p *Postgres) PersistSession(ctx context.Context, userID, deckID uuid.UUID, cards map[int64]domain.SchedulingCard, records []domain.ReviewLogRecord) error {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin session transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	batch := &pgx.Batch{}
	for itemID, card := range cards {
		batch.Queue(upsertCardSQL, cardArgs(userID, deckID, itemID, card)...)
	}
	for _, rec := range records {
		batch.Queue(insertLogSQL, logArgs(rec)...)
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("failed to persist session for deck %s: %w", deckID, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit session for deck %s: %w", deckID, err)
	}
	return nil
}

// FetchStudyItems returns the due-or-new mix for a study session: each
// eligible item with its content snapshot, current scheduling state, and
// durable row id.
func (p *Postgres) FetchStudyItems(ctx context.Context, userID, deckID uuid.UUID, chapterID int64, limit int) ([]domain.StudyItem, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT ci.id, ci.chapter_id, ci.kind, ci.term, ci.reading, ci.meaning,
		       sc.id, sc.due, sc.stability, sc.difficulty,
		       sc.elapsed_days, sc.scheduled_days, sc.learning_steps,
		       sc.reps, sc.lapses, sc.state, sc.last_review
		FROM scheduling_cards sc
		JOIN content_items ci ON ci.id = sc.item_id
		WHERE sc.user_id = $1 AND ci.chapter_id = $2
		  AND (sc.state = 0 OR sc.due <= NOW())
		ORDER BY sc.due, sc.item_id
		LIMIT $3
	`, userID, chapterID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch study items for deck %s: %w", deckID, err)
	}
	defer rows.Close()

	var items []domain.StudyItem
	for rows.Next() {
		var (
			it         domain.StudyItem
			state      int
			lastReview *time.Time
		)
		err := rows.Scan(
			&it.Item.ID, &it.Item.ChapterID, &it.Item.Kind, &it.Item.Term, &it.Item.Reading, &it.Item.Meaning,
			&it.RowID, &it.Card.Due, &it.Card.Stability, &it.Card.Difficulty,
			&it.Card.ElapsedDays, &it.Card.ScheduledDays, &it.Card.LearningSteps,
			&it.Card.Reps, &it.Card.Lapses, &state, &lastReview,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan study item row: %w", err)
		}
		it.Card.State = domain.State(state)
		if lastReview != nil {
			it.Card.LastReview = *lastReview
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

// UpdateChapterProgress recomputes the user's studied/total aggregate for
// the chapter.
func (p *Postgres) UpdateChapterProgress(ctx context.Context, userID uuid.UUID, chapterID int64) error {
	_, err := p.pool.Exec(ctx, `
		INSERT INTO chapter_progress (user_id, chapter_id, items_studied, items_total, completed, updated_at)
		SELECT $1, $2,
		       COUNT(sc.id) FILTER (WHERE sc.reps > 0),
		       COUNT(ci.id),
		       COUNT(ci.id) > 0 AND COUNT(sc.id) FILTER (WHERE sc.reps > 0) = COUNT(ci.id),
		       NOW()
		FROM content_items ci
		LEFT JOIN scheduling_cards sc ON sc.item_id = ci.id AND sc.user_id = $1
		WHERE ci.chapter_id = $2
		ON CONFLICT (user_id, chapter_id) DO UPDATE SET
			items_studied = EXCLUDED.items_studied,
			items_total = EXCLUDED.items_total,
			completed = EXCLUDED.completed,
			updated_at = EXCLUDED.updated_at
	`, userID, chapterID)
	if err != nil {
		return fmt.Errorf("failed to update chapter progress for user %s chapter %d: %w", userID, chapterID, err)
	}
	return nil
}

// UpdateCollectionProgress rolls the chapter aggregates up into the parent
// collection.
func (p *Postgres) UpdateCollectionProgress(ctx context.Context, userID uuid.UUID, chapterID int64) error {
	_, err := p.pool.Exec(ctx, `
		INSERT INTO collection_progress (user_id, collection_id, chapters_completed, chapters_total, updated_at)
		SELECT $1, c.collection_id,
		       COUNT(cp.chapter_id) FILTER (WHERE cp.completed),
		       COUNT(ch.id),
		       NOW()
		FROM chapters c
		JOIN chapters ch ON ch.collection_id = c.collection_id
		LEFT JOIN chapter_progress cp ON cp.chapter_id = ch.id AND cp.user_id = $1
		WHERE c.id = $2
		GROUP BY c.collection_id
		ON CONFLICT (user_id, collection_id) DO UPDATE SET
			chapters_completed = EXCLUDED.chapters_completed,
			chapters_total = EXCLUDED.chapters_total,
			updated_at = EXCLUDED.updated_at
	`, userID, chapterID)
	if err != nil {
		return fmt.Errorf("failed to update collection progress for user %s chapter %d: %w", userID, chapterID, err)
	}
	return nil
}
