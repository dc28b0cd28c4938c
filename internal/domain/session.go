package domain

import "time"

const (
	DefaultNewBatchSize    = 20
	DefaultReviewBatchSize = 50
)

// CursorState is the per learner, per deck resumability checkpoint.
type CursorState struct {
	ID              string `json:"id"`
	UserID          string `json:"user_id"`
	DeckID          string `json:"deck_id"`
	NewStartPos     int    `json:"new_start_pos"`
	ReviewStartPos  int    `json:"review_start_pos"`
	SequentialPos   int    `json:"sequential_pos"`
	NewBatchSize    int    `json:"new_batch_size"`
	ReviewBatchSize int    `json:"review_batch_size"`
}

// NewCursorState returns the cursor created on a learner's first session.
func NewCursorState(id, userID, deckID string) CursorState {
	return CursorState{
		ID:              id,
		UserID:          userID,
		DeckID:          deckID,
		NewBatchSize:    DefaultNewBatchSize,
		ReviewBatchSize: DefaultReviewBatchSize,
	}
}

// SummaryKind classifies a finished session.
type SummaryKind string

const (
	SummaryNoCards  SummaryKind = "no_cards"
	SummaryPartial  SummaryKind = "partial"
	SummaryComplete SummaryKind = "complete"
)

// SessionSummary is the output of one study session.
type SessionSummary struct {
	UserID          string         `json:"user_id"`
	DeckID          string         `json:"deck_id"`
	StudyMode       StudyMode      `json:"study_mode"`
	CardsStudied    int            `json:"cards_studied"`
	TotalCards      int            `json:"total_cards"`
	TotalDurationMs int64          `json:"total_duration_ms"`
	Ratings         map[string]int `json:"ratings"`
	StartedAt       time.Time      `json:"started_at"`
	CompletedAt     time.Time      `json:"completed_at"`
}

// Kind reports whether the session had no cards, was left early or was finished.
func (s SessionSummary) Kind() SummaryKind {
	switch {
	case s.TotalCards == 0:
		return SummaryNoCards
	case s.CardsStudied < s.TotalCards:
		return SummaryPartial
	default:
		return SummaryComplete
	}
}
