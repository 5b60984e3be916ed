package storage

const schema = `
-- Chapters and content items are owned by the ingestion pipeline; they are
-- created here only so a fresh development database is usable end to end.
CREATE TABLE IF NOT EXISTS chapters (
    id BIGSERIAL PRIMARY KEY,
    chapter_number INTEGER,
    title TEXT NOT NULL DEFAULT '',
    collection_id BIGINT NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS content_items (
    id BIGSERIAL PRIMARY KEY,
    chapter_id BIGINT NOT NULL REFERENCES chapters(id),
    kind TEXT NOT NULL DEFAULT 'vocabulary',
    term TEXT NOT NULL,
    reading TEXT NOT NULL DEFAULT '',
    meaning TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS content_items_chapter_idx ON content_items (chapter_id);

-- One deck per (user, chapter); created lazily on first study attempt.
CREATE TABLE IF NOT EXISTS decks (
    id UUID PRIMARY KEY,
    user_id UUID NOT NULL,
    chapter_id BIGINT NOT NULL,
    name TEXT NOT NULL,
    UNIQUE (user_id, chapter_id)
);

-- One scheduling row per (user, item).
CREATE TABLE IF NOT EXISTS scheduling_cards (
    id UUID PRIMARY KEY,
    user_id UUID NOT NULL,
    deck_id UUID NOT NULL REFERENCES decks(id),
    item_id BIGINT NOT NULL REFERENCES content_items(id),
    due TIMESTAMPTZ NOT NULL,
    stability DOUBLE PRECISION NOT NULL DEFAULT 0,
    difficulty DOUBLE PRECISION NOT NULL DEFAULT 0,
    elapsed_days INTEGER NOT NULL DEFAULT 0,
    scheduled_days INTEGER NOT NULL DEFAULT 0,
    learning_steps INTEGER NOT NULL DEFAULT 0,
    reps INTEGER NOT NULL DEFAULT 0,
    lapses INTEGER NOT NULL DEFAULT 0,
    state INTEGER NOT NULL DEFAULT 0,
    last_review TIMESTAMPTZ,
    UNIQUE (user_id, item_id)
);

CREATE INDEX IF NOT EXISTS scheduling_cards_due_idx ON scheduling_cards (user_id, deck_id, due);

-- Append-only audit log of grading events.
CREATE TABLE IF NOT EXISTS review_logs (
    id UUID PRIMARY KEY,
    card_row_id UUID NOT NULL REFERENCES scheduling_cards(id),
    user_id UUID NOT NULL,
    item_id BIGINT NOT NULL,
    rating INTEGER NOT NULL,
    state INTEGER NOT NULL,
    due TIMESTAMPTZ NOT NULL,
    stability DOUBLE PRECISION NOT NULL DEFAULT 0,
    difficulty DOUBLE PRECISION NOT NULL DEFAULT 0,
    elapsed_days INTEGER NOT NULL DEFAULT 0,
    scheduled_days INTEGER NOT NULL DEFAULT 0,
    reviewed_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS review_logs_card_idx ON review_logs (card_row_id);

CREATE TABLE IF NOT EXISTS chapter_progress (
    user_id UUID NOT NULL,
    chapter_id BIGINT NOT NULL,
    items_studied INTEGER NOT NULL DEFAULT 0,
    items_total INTEGER NOT NULL DEFAULT 0,
    completed BOOLEAN NOT NULL DEFAULT FALSE,
    updated_at TIMESTAMPTZ NOT NULL,
    PRIMARY KEY (user_id, chapter_id)
);

CREATE TABLE IF NOT EXISTS collection_progress (
    user_id UUID NOT NULL,
    collection_id BIGINT NOT NULL,
    chapters_completed INTEGER NOT NULL DEFAULT 0,
    chapters_total INTEGER NOT NULL DEFAULT 0,
    updated_at TIMESTAMPTZ NOT NULL,
    PRIMARY KEY (user_id, collection_id)
);
`
