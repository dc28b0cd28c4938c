package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	entsql "entgo.io/ent/dialect/sql"
	"github.com/conorfennell/studyq/internal/domain"
	"github.com/google/uuid"
)

var cursorColumns = []string{
	"id", "user_id", "deck_id", "new_start_pos", "review_start_pos", "sequential_pos", "new_batch_size", "review_batch_size",
}

// GetOrCreateCursor returns the learner's cursor for a deck, creating it with
// default values on first use.
func (db *DB) GetOrCreateCursor(ctx context.Context, userID, deckID string) (domain.CursorState, error) {
	state, err := db.findCursor(ctx, userID, deckID)
	if err == nil {
		return state, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return domain.CursorState{}, err
	}

	fresh := domain.NewCursorState(uuid.NewString(), userID, deckID)
	insert := db.builder().Insert("deck_study_state").
		Columns(cursorColumns...).
		Values(fresh.ID, fresh.UserID, fresh.DeckID, fresh.NewStartPos, fresh.ReviewStartPos,
			fresh.SequentialPos, fresh.NewBatchSize, fresh.ReviewBatchSize).
		OnConflict(entsql.ConflictColumns("user_id", "deck_id"), entsql.DoNothing())
	if _, err := exec(ctx, db.conn, insert); err != nil {
		return domain.CursorState{}, fmt.Errorf("failed to create cursor for deck %s: %w", deckID, err)
	}

	// A concurrent first session may have won the insert.
	return db.findCursor(ctx, userID, deckID)
}

func (db *DB) findCursor(ctx context.Context, userID, deckID string) (domain.CursorState, error) {
	b := db.builder()
	query, args := b.Select(cursorColumns...).
		From(b.Table("deck_study_state")).
		Where(entsql.And(entsql.EQ("user_id", userID), entsql.EQ("deck_id", deckID))).
		Query()

	var s domain.CursorState
	err := db.conn.QueryRowContext(ctx, query, args...).Scan(
		&s.ID,
		&s.UserID,
		&s.DeckID,
		&s.NewStartPos,
		&s.ReviewStartPos,
		&s.SequentialPos,
		&s.NewBatchSize,
		&s.ReviewBatchSize,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.CursorState{}, fmt.Errorf("cursor for deck %s: %w", deckID, ErrNotFound)
		}
		return domain.CursorState{}, fmt.Errorf("failed to get cursor for deck %s: %w", deckID, err)
	}
	return s, nil
}

// SaveCursor persists the watermarks and batch sizes of a cursor.
func (db *DB) SaveCursor(ctx context.Context, s domain.CursorState) error {
	update := db.builder().Update("deck_study_state").
		Set("new_start_pos", s.NewStartPos).
		Set("review_start_pos", s.ReviewStartPos).
		Set("sequential_pos", s.SequentialPos).
		Set("new_batch_size", s.NewBatchSize).
		Set("review_batch_size", s.ReviewBatchSize).
		Where(entsql.And(entsql.EQ("user_id", s.UserID), entsql.EQ("deck_id", s.DeckID)))

	res, err := exec(ctx, db.conn, update)
	if err != nil {
		return fmt.Errorf("failed to save cursor for deck %s: %w", s.DeckID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("cursor for deck %s: %w", s.DeckID, ErrNotFound)
	}
	return nil
}

// AppendLog records one rating event.
func (db *DB) AppendLog(ctx context.Context, e domain.LogEntry) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	insert := db.builder().Insert("study_logs").
		Columns("id", "user_id", "card_id", "deck_id", "study_mode", "rating", "prev_srs_status",
			"prev_interval", "new_interval", "prev_ease", "new_ease", "review_duration_ms", "studied_at").
		Values(e.ID, e.UserID, e.CardID, e.DeckID, string(e.StudyMode), e.Rating, string(e.PrevStatus),
			e.PrevInterval, e.NewInterval, e.PrevEase, e.NewEase, e.ReviewDurationMs, utc(e.StudiedAt))
	if _, err := exec(ctx, db.conn, insert); err != nil {
		return fmt.Errorf("failed to append log for card %s: %w", e.CardID, err)
	}
	return nil
}

// CountNewStudiedSince counts srs ratings of cards that were new at the time,
// made by a learner in a deck at or after since.
func (db *DB) CountNewStudiedSince(ctx context.Context, userID, deckID string, since time.Time) (int, error) {
	b := db.builder()
	query, args := b.Select(entsql.Count("*")).
		From(b.Table("study_logs")).
		Where(entsql.And(
			entsql.EQ("user_id", userID),
			entsql.EQ("deck_id", deckID),
			entsql.EQ("study_mode", string(domain.ModeSRS)),
			entsql.EQ("prev_srs_status", string(domain.StatusNew)),
			entsql.GTE("studied_at", utc(since)),
		)).
		Query()

	var n int
	if err := db.conn.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count new cards studied in deck %s: %w", deckID, err)
	}
	return n, nil
}

// SaveSummary persists a finished session summary.
func (db *DB) SaveSummary(ctx context.Context, s domain.SessionSummary) error {
	ratings := s.Ratings
	if ratings == nil {
		ratings = map[string]int{}
	}
	ratingJSON, err := json.Marshal(ratings)
	if err != nil {
		return fmt.Errorf("failed to encode ratings for deck %s: %w", s.DeckID, err)
	}

	insert := db.builder().Insert("study_sessions").
		Columns("id", "user_id", "deck_id", "study_mode", "cards_studied", "total_cards",
			"total_duration_ms", "ratings", "started_at", "completed_at").
		Values(uuid.NewString(), s.UserID, s.DeckID, string(s.StudyMode), s.CardsStudied, s.TotalCards,
			s.TotalDurationMs, string(ratingJSON), utc(s.StartedAt), utc(s.CompletedAt))
	if _, err := exec(ctx, db.conn, insert); err != nil {
		return fmt.Errorf("failed to save session summary for deck %s: %w", s.DeckID, err)
	}
	return nil
}

// ListSummaries retrieves a learner's session summaries for a deck, newest first.
func (db *DB) ListSummaries(ctx context.Context, userID, deckID string, limit int) ([]domain.SessionSummary, error) {
	b := db.builder()
	query, args := b.Select("user_id", "deck_id", "study_mode", "cards_studied", "total_cards",
		"total_duration_ms", "ratings", "started_at", "completed_at").
		From(b.Table("study_sessions")).
		Where(entsql.And(entsql.EQ("user_id", userID), entsql.EQ("deck_id", deckID))).
		OrderBy(entsql.Desc("completed_at")).
		Limit(limit).
		Query()

	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions for deck %s: %w", deckID, err)
	}
	defer rows.Close()

	var summaries []domain.SessionSummary
	for rows.Next() {
		var (
			s       domain.SessionSummary
			mode    string
			ratings string
		)
		if err := rows.Scan(&s.UserID, &s.DeckID, &mode, &s.CardsStudied, &s.TotalCards,
			&s.TotalDurationMs, &ratings, &s.StartedAt, &s.CompletedAt); err != nil {
			return nil, fmt.Errorf("failed to scan session row for deck %s: %w", deckID, err)
		}
		if err := json.Unmarshal([]byte(ratings), &s.Ratings); err != nil {
			return nil, fmt.Errorf("failed to decode ratings for deck %s: %w", deckID, err)
		}
		s.StudyMode = domain.StudyMode(mode)
		s.StartedAt = s.StartedAt.UTC()
		s.CompletedAt = s.CompletedAt.UTC()
		summaries = append(summaries, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list sessions for deck %s: %w", deckID, err)
	}
	return summaries, nil
}
