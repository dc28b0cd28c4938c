package domain

import "time"

// SrsStatus is the scheduling status of a card.
type SrsStatus string

const (
	StatusNew       SrsStatus = "new"
	StatusLearning  SrsStatus = "learning"
	StatusReview    SrsStatus = "review"
	StatusSuspended SrsStatus = "suspended"
)

const (
	// DefaultEaseFactor is the ease a card starts with.
	DefaultEaseFactor = 2.5
	// MinEaseFactor is the hard floor for the ease factor.
	MinEaseFactor = 1.3
)

// Scheduling holds the SRS fields of a card. They live either on the card
// itself or in a per-subscriber ProgressRecord.
type Scheduling struct {
	Status         SrsStatus  `json:"srs_status"`
	EaseFactor     float64    `json:"ease_factor"`
	IntervalDays   float64    `json:"interval_days"`
	Repetitions    int        `json:"repetitions"`
	NextReviewAt   *time.Time `json:"next_review_at"`
	LastReviewedAt *time.Time `json:"last_reviewed_at"`
}

// NewScheduling returns the scheduling fields of a freshly created card.
func NewScheduling() Scheduling {
	return Scheduling{
		Status:     StatusNew,
		EaseFactor: DefaultEaseFactor,
	}
}

// Card represents a single unit of study content in a deck.
type Card struct {
	ID           string            `json:"id"`
	DeckID       string            `json:"deck_id"`
	UserID       string            `json:"user_id"`
	FieldValues  map[string]string `json:"field_values"`
	Tags         []string          `json:"tags"`
	SortPosition int               `json:"sort_position"`
	Scheduling
	CreatedAt time.Time `json:"created_at"`
}

// ProgressRecord stores a subscriber's own scheduling fields for a card of a
// shared deck.
type ProgressRecord struct {
	UserID string `json:"user_id"`
	CardID string `json:"card_id"`
	DeckID string `json:"deck_id"`
	Scheduling
}

// LogEntry records a single rating event.
type LogEntry struct {
	ID               string    `json:"id"`
	UserID           string    `json:"user_id"`
	CardID           string    `json:"card_id"`
	DeckID           string    `json:"deck_id"`
	StudyMode        StudyMode `json:"study_mode"`
	Rating           string    `json:"rating"`
	PrevStatus       SrsStatus `json:"prev_srs_status"`
	PrevInterval     float64   `json:"prev_interval"`
	NewInterval      float64   `json:"new_interval"`
	PrevEase         float64   `json:"prev_ease"`
	NewEase          float64   `json:"new_ease"`
	ReviewDurationMs int64     `json:"review_duration_ms"`
	StudiedAt        time.Time `json:"studied_at"`
}
