package srs

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/conorfennell/studyq/internal/domain"
)

// ErrInvalidRating is returned when a rating label is not recognised.
var ErrInvalidRating = errors.New("srs: invalid rating")

// Rating is the user's response to a card review.
type Rating int

const (
	Again Rating = 1
	Hard  Rating = 2
	Good  Rating = 3
	Easy  Rating = 4
)

var ratingNames = [...]string{Again: "again", Hard: "hard", Good: "good", Easy: "easy"}

// String returns the rating label used in logs and session summaries.
func (r Rating) String() string {
	if r.IsValid() {
		return ratingNames[r]
	}
	return fmt.Sprintf("Rating(%d)", int(r))
}

// IsValid reports whether r is one of Again through Easy.
func (r Rating) IsValid() bool {
	return r >= Again && r <= Easy
}

// ParseRating converts a label such as "good" into a Rating.
func ParseRating(s string) (Rating, error) {
	for r := Again; r <= Easy; r++ {
		if ratingNames[r] == s {
			return r, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrInvalidRating, s)
}

// MarshalText implements encoding.TextMarshaler.
func (r Rating) MarshalText() ([]byte, error) {
	if !r.IsValid() {
		return nil, fmt.Errorf("%w: %d", ErrInvalidRating, int(r))
	}
	return []byte(ratingNames[r]), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (r *Rating) UnmarshalText(text []byte) error {
	v, err := ParseRating(string(text))
	if err != nil {
		return err
	}
	*r = v
	return nil
}

const (
	day = 24 * time.Hour

	// againDelay is how soon a failed card comes back when AgainDays is 0.
	againDelay = 10 * time.Minute

	againEasePenalty = 0.20
	hardEasePenalty  = 0.15
	easyEaseBonus    = 0.15
	hardMultiplier   = 1.2
	easyMultiplier   = 1.3
)

// NextState calculates the scheduling fields that follow a rating. It is pure:
// now is the review time and settings may be nil for the defaults.
func NextState(current domain.Scheduling, rating Rating, settings *domain.SrsSettings, now time.Time) domain.Scheduling {
	s := domain.DefaultSrsSettings()
	if settings != nil {
		s = *settings
	}

	ease := current.EaseFactor
	interval := current.IntervalDays
	next := domain.Scheduling{
		Repetitions:    current.Repetitions + 1,
		Status:         domain.StatusReview,
		LastReviewedAt: &now,
	}

	switch rating {
	case Again:
		ease = math.Max(domain.MinEaseFactor, ease-againEasePenalty)
		next.Repetitions = 0
		next.Status = domain.StatusLearning
		if s.AgainDays > 0 {
			interval = s.AgainDays
		} else {
			interval = 0
			next.EaseFactor = roundEase(ease)
			next.IntervalDays = interval
			due := now.Add(againDelay)
			next.NextReviewAt = &due
			return next
		}
	case Hard:
		ease = math.Max(domain.MinEaseFactor, ease-hardEasePenalty)
		interval = math.Max(s.HardDays, interval*hardMultiplier)
	case Good:
		if interval == 0 {
			interval = s.GoodDays
		} else {
			interval *= ease
		}
	case Easy:
		if interval == 0 {
			interval = s.EasyDays
		} else {
			interval *= ease * easyMultiplier
		}
		ease += easyEaseBonus
	default:
		// Unknown ratings leave the card untouched.
		return current
	}

	next.EaseFactor = roundEase(ease)
	next.IntervalDays = interval
	due := NextDueDate(now, interval)
	next.NextReviewAt = &due
	return next
}

// roundEase rounds the ease factor to two decimals.
func roundEase(e float64) float64 {
	return math.Round(e*100) / 100
}

// NextDueDate adds a possibly fractional number of days to now.
func NextDueDate(now time.Time, intervalDays float64) time.Time {
	return now.Add(time.Duration(intervalDays * float64(day)))
}
