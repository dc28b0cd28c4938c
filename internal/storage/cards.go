package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	entsql "entgo.io/ent/dialect/sql"
	"github.com/conorfennell/studyq/internal/domain"
)

var schedulingColumns = []string{
	"srs_status", "ease_factor", "interval_days", "repetitions", "next_review_at", "last_reviewed_at",
}

var cardColumns = append([]string{
	"id", "deck_id", "user_id", "field_values", "tags", "sort_position", "created_at",
}, schedulingColumns...)

// schedulingRow collects the nullable scheduling columns of one row.
type schedulingRow struct {
	status         string
	ease           float64
	interval       float64
	repetitions    int
	nextReviewAt   sql.NullTime
	lastReviewedAt sql.NullTime
}

func (r *schedulingRow) dest() []any {
	return []any{&r.status, &r.ease, &r.interval, &r.repetitions, &r.nextReviewAt, &r.lastReviewedAt}
}

func (r *schedulingRow) scheduling() domain.Scheduling {
	return domain.Scheduling{
		Status:         domain.SrsStatus(r.status),
		EaseFactor:     r.ease,
		IntervalDays:   r.interval,
		Repetitions:    r.repetitions,
		NextReviewAt:   timePtr(r.nextReviewAt),
		LastReviewedAt: timePtr(r.lastReviewedAt),
	}
}

func schedulingValues(s domain.Scheduling) []any {
	return []any{string(s.Status), s.EaseFactor, s.IntervalDays, s.Repetitions, nullTime(s.NextReviewAt), nullTime(s.LastReviewedAt)}
}

// InsertDeck inserts a deck row.
func (db *DB) InsertDeck(ctx context.Context, deck domain.Deck) error {
	var settings sql.NullString
	if deck.SrsSettings != nil {
		b, err := json.Marshal(deck.SrsSettings)
		if err != nil {
			return fmt.Errorf("failed to encode srs settings for deck %s: %w", deck.ID, err)
		}
		settings = sql.NullString{String: string(b), Valid: true}
	}
	var owner sql.NullString
	if deck.SourceOwnerID != nil {
		owner = sql.NullString{String: *deck.SourceOwnerID, Valid: true}
	}

	insert := db.builder().Insert("decks").
		Columns("id", "user_id", "share_mode", "source_owner_id", "srs_settings").
		Values(deck.ID, deck.UserID, string(deck.ShareMode), owner, settings)
	if _, err := exec(ctx, db.conn, insert); err != nil {
		return fmt.Errorf("failed to insert deck %s: %w", deck.ID, err)
	}
	return nil
}

// GetDeck retrieves a deck by id. It returns ErrNotFound when the deck does not exist.
func (db *DB) GetDeck(ctx context.Context, id string) (*domain.Deck, error) {
	b := db.builder()
	query, args := b.Select("id", "user_id", "share_mode", "source_owner_id", "srs_settings").
		From(b.Table("decks")).
		Where(entsql.EQ("id", id)).
		Query()

	var (
		d        domain.Deck
		share    string
		owner    sql.NullString
		settings sql.NullString
	)
	err := db.conn.QueryRowContext(ctx, query, args...).Scan(&d.ID, &d.UserID, &share, &owner, &settings)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("deck %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get deck %s: %w", id, err)
	}

	d.ShareMode = domain.ShareMode(share)
	if owner.Valid {
		d.SourceOwnerID = &owner.String
	}
	if settings.Valid {
		var s domain.SrsSettings
		if err := json.Unmarshal([]byte(settings.String), &s); err != nil {
			return nil, fmt.Errorf("failed to decode srs settings for deck %s: %w", id, err)
		}
		d.SrsSettings = &s
	}
	return &d, nil
}

// InsertCard inserts a card with its embedded scheduling fields.
func (db *DB) InsertCard(ctx context.Context, card domain.Card) error {
	fields := card.FieldValues
	if fields == nil {
		fields = map[string]string{}
	}
	fieldJSON, err := json.Marshal(fields)
	if err != nil {
		return fmt.Errorf("failed to encode fields of card %s: %w", card.ID, err)
	}
	tags := card.Tags
	if tags == nil {
		tags = []string{}
	}
	tagJSON, err := json.Marshal(tags)
	if err != nil {
		return fmt.Errorf("failed to encode tags of card %s: %w", card.ID, err)
	}

	values := append([]any{
		card.ID, card.DeckID, card.UserID, string(fieldJSON), string(tagJSON), card.SortPosition, utc(card.CreatedAt),
	}, schedulingValues(card.Scheduling)...)

	insert := db.builder().Insert("cards").Columns(cardColumns...).Values(values...)
	if _, err := exec(ctx, db.conn, insert); err != nil {
		return fmt.Errorf("failed to insert card %s: %w", card.ID, err)
	}
	return nil
}

// ListCards retrieves every card of a deck ordered by sort position.
func (db *DB) ListCards(ctx context.Context, deckID string) ([]domain.Card, error) {
	b := db.builder()
	query, args := b.Select(cardColumns...).
		From(b.Table("cards")).
		Where(entsql.EQ("deck_id", deckID)).
		OrderBy("sort_position").
		Query()

	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list cards for deck %s: %w", deckID, err)
	}
	defer rows.Close()

	var cards []domain.Card
	for rows.Next() {
		var (
			c            domain.Card
			fields, tags string
			sched        schedulingRow
		)
		dest := append([]any{&c.ID, &c.DeckID, &c.UserID, &fields, &tags, &c.SortPosition, &c.CreatedAt}, sched.dest()...)
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("failed to scan card row for deck %s: %w", deckID, err)
		}
		if err := json.Unmarshal([]byte(fields), &c.FieldValues); err != nil {
			return nil, fmt.Errorf("failed to decode fields of card %s: %w", c.ID, err)
		}
		if err := json.Unmarshal([]byte(tags), &c.Tags); err != nil {
			return nil, fmt.Errorf("failed to decode tags of card %s: %w", c.ID, err)
		}
		c.CreatedAt = c.CreatedAt.UTC()
		c.Scheduling = sched.scheduling()
		cards = append(cards, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list cards for deck %s: %w", deckID, err)
	}
	return cards, nil
}

// MaxSortPosition returns the highest card position of a deck, or 0 when the
// deck has no cards.
func (db *DB) MaxSortPosition(ctx context.Context, deckID string) (int, error) {
	b := db.builder()
	query, args := b.Select(entsql.Max("sort_position")).
		From(b.Table("cards")).
		Where(entsql.EQ("deck_id", deckID)).
		Query()

	var maxPos sql.NullInt64
	if err := db.conn.QueryRowContext(ctx, query, args...).Scan(&maxPos); err != nil {
		return 0, fmt.Errorf("failed to get max sort position for deck %s: %w", deckID, err)
	}
	return int(maxPos.Int64), nil
}

// UpdateCardScheduling overwrites the embedded scheduling fields of a card.
func (db *DB) UpdateCardScheduling(ctx context.Context, cardID string, s domain.Scheduling) error {
	update := db.builder().Update("cards").Where(entsql.EQ("id", cardID))
	for i, v := range schedulingValues(s) {
		update.Set(schedulingColumns[i], v)
	}

	res, err := exec(ctx, db.conn, update)
	if err != nil {
		return fmt.Errorf("failed to update scheduling for card %s: %w", cardID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("card %s: %w", cardID, ErrNotFound)
	}
	return nil
}

// ListProgress retrieves a learner's progress records for a deck.
func (db *DB) ListProgress(ctx context.Context, deckID, userID string) ([]domain.ProgressRecord, error) {
	b := db.builder()
	query, args := b.Select(append([]string{"user_id", "card_id", "deck_id"}, schedulingColumns...)...).
		From(b.Table("user_card_progress")).
		Where(entsql.And(entsql.EQ("deck_id", deckID), entsql.EQ("user_id", userID))).
		Query()

	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list progress for deck %s: %w", deckID, err)
	}
	defer rows.Close()

	var records []domain.ProgressRecord
	for rows.Next() {
		var (
			p     domain.ProgressRecord
			sched schedulingRow
		)
		dest := append([]any{&p.UserID, &p.CardID, &p.DeckID}, sched.dest()...)
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("failed to scan progress row for deck %s: %w", deckID, err)
		}
		p.Scheduling = sched.scheduling()
		records = append(records, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list progress for deck %s: %w", deckID, err)
	}
	return records, nil
}

// UpsertProgress creates or replaces a learner's progress record for a card.
func (db *DB) UpsertProgress(ctx context.Context, p domain.ProgressRecord) error {
	values := append([]any{p.UserID, p.CardID, p.DeckID}, schedulingValues(p.Scheduling)...)
	insert := db.builder().Insert("user_card_progress").
		Columns(append([]string{"user_id", "card_id", "deck_id"}, schedulingColumns...)...).
		Values(values...).
		OnConflict(
			entsql.ConflictColumns("user_id", "card_id"),
			entsql.ResolveWithNewValues(),
		)
	if _, err := exec(ctx, db.conn, insert); err != nil {
		return fmt.Errorf("failed to upsert progress for card %s: %w", p.CardID, err)
	}
	return nil
}
