package storage

import (
	"context"
	"testing"
	"time"

	"github.com/conorfennell/studyq/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var created = time.Date(2026, 2, 1, 8, 0, 0, 0, time.UTC)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(context.Background(), DriverSQLite, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func seedCard(t *testing.T, db *DB, id, deckID string, pos int) domain.Card {
	t.Helper()
	c := domain.Card{
		ID:           id,
		DeckID:       deckID,
		UserID:       "owner",
		FieldValues:  map[string]string{"front": id},
		Tags:         []string{"t"},
		SortPosition: pos,
		Scheduling:   domain.NewScheduling(),
		CreatedAt:    created,
	}
	require.NoError(t, db.InsertCard(context.Background(), c))
	return c
}

func TestOpenUnknownDriver(t *testing.T) {
	_, err := Open(context.Background(), "mysql", "")
	assert.Error(t, err)
}

func TestDecks(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	owner := "alice"
	settings := &domain.SrsSettings{AgainDays: 1, HardDays: 2, GoodDays: 3, EasyDays: 5}
	require.NoError(t, db.InsertDeck(ctx, domain.Deck{
		ID:            "d1",
		UserID:        "bob",
		ShareMode:     domain.ShareSubscribe,
		SourceOwnerID: &owner,
		SrsSettings:   settings,
	}))
	require.NoError(t, db.InsertDeck(ctx, domain.Deck{ID: "d2", UserID: "bob"}))

	t.Run("with settings and owner", func(t *testing.T) {
		d, err := db.GetDeck(ctx, "d1")
		require.NoError(t, err)
		assert.Equal(t, domain.ShareSubscribe, d.ShareMode)
		require.NotNil(t, d.SourceOwnerID)
		assert.Equal(t, "alice", *d.SourceOwnerID)
		assert.Equal(t, settings, d.SrsSettings)
	})

	t.Run("plain deck", func(t *testing.T) {
		d, err := db.GetDeck(ctx, "d2")
		require.NoError(t, err)
		assert.Equal(t, domain.ShareNone, d.ShareMode)
		assert.Nil(t, d.SourceOwnerID)
		assert.Equal(t, domain.DefaultSrsSettings(), d.Settings())
	})

	t.Run("missing deck", func(t *testing.T) {
		_, err := db.GetDeck(ctx, "nope")
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestCards(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	seedCard(t, db, "c2", "d1", 2)
	seedCard(t, db, "c0", "d1", 0)
	seedCard(t, db, "c1", "d1", 1)
	seedCard(t, db, "other", "d2", 7)

	cards, err := db.ListCards(ctx, "d1")
	require.NoError(t, err)
	require.Len(t, cards, 3)
	assert.Equal(t, []string{"c0", "c1", "c2"}, []string{cards[0].ID, cards[1].ID, cards[2].ID})
	assert.Equal(t, map[string]string{"front": "c0"}, cards[0].FieldValues)
	assert.Equal(t, []string{"t"}, cards[0].Tags)
	assert.True(t, cards[0].CreatedAt.Equal(created))
	assert.Equal(t, domain.StatusNew, cards[0].Status)
	assert.Nil(t, cards[0].NextReviewAt)

	maxPos, err := db.MaxSortPosition(ctx, "d1")
	require.NoError(t, err)
	assert.Equal(t, 2, maxPos)

	maxPos, err = db.MaxSortPosition(ctx, "empty")
	require.NoError(t, err)
	assert.Equal(t, 0, maxPos)
}

func TestUpdateCardScheduling(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	seedCard(t, db, "c0", "d1", 0)

	reviewed := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	due := reviewed.Add(60 * time.Hour)
	s := domain.Scheduling{
		Status:         domain.StatusReview,
		EaseFactor:     2.35,
		IntervalDays:   2.5,
		Repetitions:    4,
		NextReviewAt:   &due,
		LastReviewedAt: &reviewed,
	}
	require.NoError(t, db.UpdateCardScheduling(ctx, "c0", s))

	cards, err := db.ListCards(ctx, "d1")
	require.NoError(t, err)
	got := cards[0].Scheduling
	assert.Equal(t, domain.StatusReview, got.Status)
	assert.InDelta(t, 2.35, got.EaseFactor, 1e-9)
	assert.InDelta(t, 2.5, got.IntervalDays, 1e-9)
	assert.Equal(t, 4, got.Repetitions)
	require.NotNil(t, got.NextReviewAt)
	assert.True(t, got.NextReviewAt.Equal(due))
	require.NotNil(t, got.LastReviewedAt)
	assert.True(t, got.LastReviewedAt.Equal(reviewed))

	assert.ErrorIs(t, db.UpdateCardScheduling(ctx, "missing", s), ErrNotFound)
}

func TestProgress(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	seedCard(t, db, "c0", "d1", 0)

	rec := domain.ProgressRecord{UserID: "sub", CardID: "c0", DeckID: "d1", Scheduling: domain.NewScheduling()}
	require.NoError(t, db.UpsertProgress(ctx, rec))

	rec.Status = domain.StatusLearning
	rec.EaseFactor = 2.3
	require.NoError(t, db.UpsertProgress(ctx, rec))

	records, err := db.ListProgress(ctx, "d1", "sub")
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, domain.StatusLearning, records[0].Status)
	assert.InDelta(t, 2.3, records[0].EaseFactor, 1e-9)

	others, err := db.ListProgress(ctx, "d1", "someone-else")
	require.NoError(t, err)
	assert.Empty(t, others)

	cards, err := db.ListCards(ctx, "d1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusNew, cards[0].Status, "progress must not touch the card row")
}

func TestCursor(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	first, err := db.GetOrCreateCursor(ctx, "u1", "d1")
	require.NoError(t, err)
	assert.NotEmpty(t, first.ID)
	assert.Equal(t, domain.DefaultNewBatchSize, first.NewBatchSize)
	assert.Equal(t, domain.DefaultReviewBatchSize, first.ReviewBatchSize)
	assert.Zero(t, first.NewStartPos)

	first.NewStartPos = 10
	first.ReviewStartPos = 4
	first.SequentialPos = 7
	require.NoError(t, db.SaveCursor(ctx, first))

	again, err := db.GetOrCreateCursor(ctx, "u1", "d1")
	require.NoError(t, err)
	assert.Equal(t, first, again)

	other, err := db.GetOrCreateCursor(ctx, "u2", "d1")
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, other.ID)
	assert.Zero(t, other.NewStartPos)

	missing := domain.NewCursorState("x", "u3", "d9")
	assert.ErrorIs(t, db.SaveCursor(ctx, missing), ErrNotFound)
}

func TestLogsAndNewCardCount(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	dayStart := time.Date(2026, 3, 1, 4, 0, 0, 0, time.UTC)

	entries := []domain.LogEntry{
		{CardID: "a", StudyMode: domain.ModeSRS, PrevStatus: domain.StatusNew, StudiedAt: dayStart.Add(time.Hour)},
		{CardID: "b", StudyMode: domain.ModeSRS, PrevStatus: domain.StatusNew, StudiedAt: dayStart.Add(2 * time.Hour)},
		{CardID: "c", StudyMode: domain.ModeSRS, PrevStatus: domain.StatusReview, StudiedAt: dayStart.Add(time.Hour)},
		{CardID: "d", StudyMode: domain.ModeSRS, PrevStatus: domain.StatusNew, StudiedAt: dayStart.Add(-time.Hour)},
		{CardID: "e", StudyMode: domain.ModeSequential, PrevStatus: domain.StatusNew, StudiedAt: dayStart.Add(time.Hour)},
	}
	for _, e := range entries {
		e.UserID = "u1"
		e.DeckID = "d1"
		e.Rating = "good"
		require.NoError(t, db.AppendLog(ctx, e))
	}

	n, err := db.CountNewStudiedSince(ctx, "u1", "d1", dayStart)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = db.CountNewStudiedSince(ctx, "u2", "d1", dayStart)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestSummaries(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	start := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	for i := 0; i < 3; i++ {
		require.NoError(t, db.SaveSummary(ctx, domain.SessionSummary{
			UserID:          "u1",
			DeckID:          "d1",
			StudyMode:       domain.ModeSequential,
			CardsStudied:    i + 1,
			TotalCards:      5,
			TotalDurationMs: 1000,
			Ratings:         map[string]int{"good": i + 1},
			StartedAt:       start.Add(time.Duration(i) * time.Hour),
			CompletedAt:     start.Add(time.Duration(i)*time.Hour + time.Minute),
		}))
	}

	got, err := db.ListSummaries(ctx, "u1", "d1", 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, 3, got[0].CardsStudied)
	assert.Equal(t, map[string]int{"good": 3}, got[0].Ratings)
	assert.Equal(t, domain.ModeSequential, got[0].StudyMode)
	assert.Equal(t, 2, got[1].CardsStudied)
}

func TestUsage(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	today := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	n, err := db.Usage(ctx, "u1", "study_sessions_daily", today)
	require.NoError(t, err)
	assert.Zero(t, n)

	total, err := db.AddUsage(ctx, "u1", "study_sessions_daily", today, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)

	total, err = db.AddUsage(ctx, "u1", "study_sessions_daily", today, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)

	n, err = db.Usage(ctx, "u1", "study_sessions_daily", today)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	n, err = db.Usage(ctx, "u1", "study_sessions_daily", today.AddDate(0, 0, 1))
	require.NoError(t, err)
	assert.Zero(t, n, "a new period starts from zero")
}
