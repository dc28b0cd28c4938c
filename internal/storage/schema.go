package storage

const sqliteSchema = `
-- The 'decks' table stores the deck metadata the scheduler needs.
CREATE TABLE IF NOT EXISTS decks (
    id TEXT PRIMARY KEY,
    user_id TEXT NOT NULL,
    share_mode TEXT NOT NULL DEFAULT '',
    source_owner_id TEXT,
    srs_settings TEXT -- JSON, NULL means defaults
);

-- The 'cards' table stores content and the owner's embedded scheduling fields.
CREATE TABLE IF NOT EXISTS cards (
    id TEXT PRIMARY KEY,
    deck_id TEXT NOT NULL,
    user_id TEXT NOT NULL,
    field_values TEXT NOT NULL DEFAULT '{}',
    tags TEXT NOT NULL DEFAULT '[]',
    sort_position INTEGER NOT NULL,
    srs_status TEXT NOT NULL DEFAULT 'new',
    ease_factor REAL NOT NULL DEFAULT 2.5,
    interval_days REAL NOT NULL DEFAULT 0,
    repetitions INTEGER NOT NULL DEFAULT 0,
    next_review_at DATETIME,
    last_reviewed_at DATETIME,
    created_at DATETIME NOT NULL,
    UNIQUE(deck_id, sort_position)
);

-- One cursor row per deck per learner.
CREATE TABLE IF NOT EXISTS deck_study_state (
    id TEXT PRIMARY KEY,
    user_id TEXT NOT NULL,
    deck_id TEXT NOT NULL,
    new_start_pos INTEGER NOT NULL DEFAULT 0,
    review_start_pos INTEGER NOT NULL DEFAULT 0,
    sequential_pos INTEGER NOT NULL DEFAULT 0,
    new_batch_size INTEGER NOT NULL DEFAULT 20,
    review_batch_size INTEGER NOT NULL DEFAULT 50,
    UNIQUE(user_id, deck_id)
);

-- Scheduling fields of subscribers to a shared deck.
CREATE TABLE IF NOT EXISTS user_card_progress (
    user_id TEXT NOT NULL,
    card_id TEXT NOT NULL,
    deck_id TEXT NOT NULL,
    srs_status TEXT NOT NULL DEFAULT 'new',
    ease_factor REAL NOT NULL DEFAULT 2.5,
    interval_days REAL NOT NULL DEFAULT 0,
    repetitions INTEGER NOT NULL DEFAULT 0,
    next_review_at DATETIME,
    last_reviewed_at DATETIME,
    PRIMARY KEY(user_id, card_id)
);

CREATE TABLE IF NOT EXISTS study_logs (
    id TEXT PRIMARY KEY,
    user_id TEXT NOT NULL,
    card_id TEXT NOT NULL,
    deck_id TEXT NOT NULL,
    study_mode TEXT NOT NULL,
    rating TEXT NOT NULL,
    prev_srs_status TEXT NOT NULL,
    prev_interval REAL NOT NULL,
    new_interval REAL NOT NULL,
    prev_ease REAL NOT NULL,
    new_ease REAL NOT NULL,
    review_duration_ms INTEGER NOT NULL,
    studied_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS study_logs_user_deck ON study_logs(user_id, deck_id, studied_at);

CREATE TABLE IF NOT EXISTS study_sessions (
    id TEXT PRIMARY KEY,
    user_id TEXT NOT NULL,
    deck_id TEXT NOT NULL,
    study_mode TEXT NOT NULL,
    cards_studied INTEGER NOT NULL,
    total_cards INTEGER NOT NULL,
    total_duration_ms INTEGER NOT NULL,
    ratings TEXT NOT NULL, -- JSON object of rating label to count
    started_at DATETIME NOT NULL,
    completed_at DATETIME NOT NULL
);

-- Quota usage per learner, resource and period.
CREATE TABLE IF NOT EXISTS usage_counters (
    user_id TEXT NOT NULL,
    resource TEXT NOT NULL,
    period_start DATETIME NOT NULL,
    amount INTEGER NOT NULL DEFAULT 0,
    PRIMARY KEY(user_id, resource, period_start)
);
`

const postgresSchema = `
CREATE TABLE IF NOT EXISTS decks (
    id TEXT PRIMARY KEY,
    user_id TEXT NOT NULL,
    share_mode TEXT NOT NULL DEFAULT '',
    source_owner_id TEXT,
    srs_settings TEXT
);

CREATE TABLE IF NOT EXISTS cards (
    id TEXT PRIMARY KEY,
    deck_id TEXT NOT NULL,
    user_id TEXT NOT NULL,
    field_values TEXT NOT NULL DEFAULT '{}',
    tags TEXT NOT NULL DEFAULT '[]',
    sort_position INTEGER NOT NULL,
    srs_status TEXT NOT NULL DEFAULT 'new',
    ease_factor DOUBLE PRECISION NOT NULL DEFAULT 2.5,
    interval_days DOUBLE PRECISION NOT NULL DEFAULT 0,
    repetitions INTEGER NOT NULL DEFAULT 0,
    next_review_at TIMESTAMPTZ,
    last_reviewed_at TIMESTAMPTZ,
    created_at TIMESTAMPTZ NOT NULL,
    UNIQUE(deck_id, sort_position)
);

CREATE TABLE IF NOT EXISTS deck_study_state (
    id TEXT PRIMARY KEY,
    user_id TEXT NOT NULL,
    deck_id TEXT NOT NULL,
    new_start_pos INTEGER NOT NULL DEFAULT 0,
    review_start_pos INTEGER NOT NULL DEFAULT 0,
    sequential_pos INTEGER NOT NULL DEFAULT 0,
    new_batch_size INTEGER NOT NULL DEFAULT 20,
    review_batch_size INTEGER NOT NULL DEFAULT 50,
    UNIQUE(user_id, deck_id)
);

CREATE TABLE IF NOT EXISTS user_card_progress (
    user_id TEXT NOT NULL,
    card_id TEXT NOT NULL,
    deck_id TEXT NOT NULL,
    srs_status TEXT NOT NULL DEFAULT 'new',
    ease_factor DOUBLE PRECISION NOT NULL DEFAULT 2.5,
    interval_days DOUBLE PRECISION NOT NULL DEFAULT 0,
    repetitions INTEGER NOT NULL DEFAULT 0,
    next_review_at TIMESTAMPTZ,
    last_reviewed_at TIMESTAMPTZ,
    PRIMARY KEY(user_id, card_id)
);

CREATE TABLE IF NOT EXISTS study_logs (
    id TEXT PRIMARY KEY,
    user_id TEXT NOT NULL,
    card_id TEXT NOT NULL,
    deck_id TEXT NOT NULL,
    study_mode TEXT NOT NULL,
    rating TEXT NOT NULL,
    prev_srs_status TEXT NOT NULL,
    prev_interval DOUBLE PRECISION NOT NULL,
    new_interval DOUBLE PRECISION NOT NULL,
    prev_ease DOUBLE PRECISION NOT NULL,
    new_ease DOUBLE PRECISION NOT NULL,
    review_duration_ms BIGINT NOT NULL,
    studied_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS study_logs_user_deck ON study_logs(user_id, deck_id, studied_at);

CREATE TABLE IF NOT EXISTS study_sessions (
    id TEXT PRIMARY KEY,
    user_id TEXT NOT NULL,
    deck_id TEXT NOT NULL,
    study_mode TEXT NOT NULL,
    cards_studied INTEGER NOT NULL,
    total_cards INTEGER NOT NULL,
    total_duration_ms BIGINT NOT NULL,
    ratings TEXT NOT NULL,
    started_at TIMESTAMPTZ NOT NULL,
    completed_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS usage_counters (
    user_id TEXT NOT NULL,
    resource TEXT NOT NULL,
    period_start TIMESTAMPTZ NOT NULL,
    amount BIGINT NOT NULL DEFAULT 0,
    PRIMARY KEY(user_id, resource, period_start)
);
`
