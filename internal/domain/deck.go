package domain

import (
	"errors"
	"fmt"
)

// ErrUnknownStudyMode is returned when a study mode name is not recognised.
var ErrUnknownStudyMode = errors.New("domain: unknown study mode")

// StudyMode selects the queue building strategy of a session.
type StudyMode string

const (
	ModeSRS              StudyMode = "srs"
	ModeSequentialReview StudyMode = "sequential_review"
	ModeRandom           StudyMode = "random"
	ModeSequential       StudyMode = "sequential"
	ModeByDate           StudyMode = "by_date"
)

// StudyModes lists every study mode in display order.
var StudyModes = []StudyMode{ModeSRS, ModeSequentialReview, ModeRandom, ModeSequential, ModeByDate}

// ParseStudyMode converts a mode name into a StudyMode.
func ParseStudyMode(s string) (StudyMode, error) {
	for _, m := range StudyModes {
		if string(m) == s {
			return m, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownStudyMode, s)
}

// ShareMode describes how a deck was shared with its current owner.
type ShareMode string

const (
	ShareNone      ShareMode = ""
	ShareCopy      ShareMode = "copy"
	ShareSnapshot  ShareMode = "snapshot"
	ShareSubscribe ShareMode = "subscribe"
)

// SrsSettings are the per-deck intervals, in days, used when a card has no
// interval yet. AgainDays of 0 means "again" reschedules in minutes.
type SrsSettings struct {
	AgainDays float64 `json:"again_days"`
	HardDays  float64 `json:"hard_days"`
	GoodDays  float64 `json:"good_days"`
	EasyDays  float64 `json:"easy_days"`
}

// DefaultSrsSettings returns the settings used when a deck has none.
func DefaultSrsSettings() SrsSettings {
	return SrsSettings{AgainDays: 0, HardDays: 1, GoodDays: 1, EasyDays: 4}
}

// Deck is the deck metadata the scheduler needs.
type Deck struct {
	ID            string       `json:"id"`
	UserID        string       `json:"user_id"`
	ShareMode     ShareMode    `json:"share_mode"`
	SourceOwnerID *string      `json:"source_owner_id"`
	SrsSettings   *SrsSettings `json:"srs_settings"`
}

// Settings returns the deck's SRS settings or the defaults.
func (d *Deck) Settings() SrsSettings {
	if d == nil || d.SrsSettings == nil {
		return DefaultSrsSettings()
	}
	return *d.SrsSettings
}
