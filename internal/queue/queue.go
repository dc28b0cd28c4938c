// Package queue selects and orders the cards of a study session. One Strategy
// exists per study mode; every strategy is pure given its Params and none of
// them ever returns a suspended card.
package queue

import (
	"cmp"
	"fmt"
	"math"
	"math/rand/v2"
	"slices"
	"time"

	"github.com/conorfennell/studyq/internal/domain"
)

const (
	// DefaultBatchSize is used when a batch size is missing or not finite.
	DefaultBatchSize = 20
	MinBatchSize     = 1
	MaxBatchSize     = 200
)

// Params carries everything a strategy may look at besides the cards.
type Params struct {
	Now         time.Time
	Cursor      domain.CursorState
	MaxPosition int

	// BatchSize caps random and sequential queues and, for sequential_review,
	// overrides the cursor's review batch size when positive.
	BatchSize int

	// NewCardLimit caps the new cards of an srs queue. Zero falls back to
	// BatchSize; a negative limit selects no new cards.
	NewCardLimit int

	// CreatedFrom and CreatedTo optionally bound random and by_date queues by
	// card creation time, both inclusive.
	CreatedFrom *time.Time
	CreatedTo   *time.Time

	Rand *rand.Rand
}

// Strategy builds the queue for one study mode.
type Strategy interface {
	Build(cards []domain.Card, p Params) []domain.Card
}

var strategies = map[domain.StudyMode]Strategy{
	domain.ModeSRS:              srsStrategy{},
	domain.ModeSequentialReview: sequentialReviewStrategy{},
	domain.ModeRandom:           randomStrategy{},
	domain.ModeSequential:       sequentialStrategy{},
	domain.ModeByDate:           byDateStrategy{},
}

// StrategyFor returns the strategy of a study mode.
func StrategyFor(mode domain.StudyMode) (Strategy, error) {
	s, ok := strategies[mode]
	if !ok {
		return nil, fmt.Errorf("%w: %q", domain.ErrUnknownStudyMode, mode)
	}
	return s, nil
}

// Build selects and orders the cards to study for mode.
func Build(mode domain.StudyMode, cards []domain.Card, p Params) ([]domain.Card, error) {
	s, err := StrategyFor(mode)
	if err != nil {
		return nil, err
	}
	return s.Build(cards, p), nil
}

// BatchSizeConfigurable reports whether learners may pick the batch size of mode.
func BatchSizeConfigurable(mode domain.StudyMode) bool {
	switch mode {
	case domain.ModeSequentialReview, domain.ModeRandom, domain.ModeSequential:
		return true
	default:
		return false
	}
}

// ClampBatchSize rounds a requested batch size to the nearest integer and
// clamps it to [MinBatchSize, MaxBatchSize]. NaN and infinities give the default.
func ClampBatchSize(v float64) int {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return DefaultBatchSize
	}
	r := math.Round(v)
	if r < MinBatchSize {
		return MinBatchSize
	}
	if r > MaxBatchSize {
		return MaxBatchSize
	}
	return int(r)
}

type srsStrategy struct{}

func (srsStrategy) Build(cards []domain.Card, p Params) []domain.Card {
	var learning, review, fresh []domain.Card
	for _, c := range cards {
		switch c.Status {
		case domain.StatusLearning:
			if isDue(c, p.Now) {
				learning = append(learning, c)
			}
		case domain.StatusReview:
			if isDue(c, p.Now) {
				review = append(review, c)
			}
		case domain.StatusNew:
			fresh = append(fresh, c)
		}
	}

	slices.SortStableFunc(learning, byNextReview)
	slices.SortStableFunc(review, byNextReview)
	slices.SortStableFunc(fresh, bySortPosition)

	limit := p.NewCardLimit
	if limit == 0 {
		limit = batchSize(p.BatchSize)
	}
	fresh = capped(fresh, max(limit, 0))

	out := make([]domain.Card, 0, len(learning)+len(review)+len(fresh))
	out = append(out, learning...)
	out = append(out, review...)
	return append(out, fresh...)
}

type sequentialReviewStrategy struct{}

func (sequentialReviewStrategy) Build(cards []domain.Card, p Params) []domain.Card {
	newCards, reviewCards := Split(cards, p)
	return append(newCards, reviewCards...)
}

// Split returns the two halves of a sequential_review queue: new cards from
// the new watermark on, then review cards from the sliding window.
func Split(cards []domain.Card, p Params) (newCards, reviewCards []domain.Card) {
	sorted := eligible(cards, nil, nil)
	slices.SortStableFunc(sorted, bySortPosition)

	cur := p.Cursor
	newLimit := cur.NewBatchSize
	if newLimit <= 0 {
		newLimit = domain.DefaultNewBatchSize
	}
	reviewLimit := cur.ReviewBatchSize
	if p.BatchSize > 0 {
		reviewLimit = p.BatchSize
	}
	if reviewLimit <= 0 {
		reviewLimit = domain.DefaultReviewBatchSize
	}

	chosen := make(map[string]bool)
	for _, c := range sorted {
		if len(newCards) == newLimit {
			break
		}
		if c.Status == domain.StatusNew && c.SortPosition >= cur.NewStartPos {
			newCards = append(newCards, c)
			chosen[c.ID] = true
		}
	}

	var candidates []domain.Card
	for _, c := range sorted {
		if !chosen[c.ID] {
			candidates = append(candidates, c)
		}
	}

	// Without a fresh batch the review window has no upper bound.
	unbounded := len(newCards) == 0 || cur.NewStartPos > p.MaxPosition
	upper := cur.NewStartPos
	if unbounded {
		upper = math.MaxInt
	}

	start := cur.ReviewStartPos
	if start >= p.MaxPosition {
		start = 0
	}
	if !unbounded && start > cur.NewStartPos {
		// The new watermark wrapped: the window runs to the end of the
		// deck and continues from zero up to the new watermark.
		reviewCards = window(candidates, start, math.MaxInt, reviewLimit)
		reviewCards = append(reviewCards, window(candidates, 0, upper, reviewLimit-len(reviewCards))...)
	} else {
		reviewCards = window(candidates, start, upper, reviewLimit)
	}
	if len(reviewCards) == 0 && start > 0 {
		start = 0
		reviewCards = window(candidates, start, upper, reviewLimit)
	}

	if unbounded && len(reviewCards) < reviewLimit {
		taken := make(map[string]bool, len(reviewCards))
		for _, c := range reviewCards {
			taken[c.ID] = true
		}
		for _, c := range candidates {
			if len(reviewCards) == reviewLimit {
				break
			}
			if !taken[c.ID] {
				reviewCards = append(reviewCards, c)
			}
		}
	}
	return newCards, reviewCards
}

// window returns up to limit sorted cards with lower <= position < upper.
func window(sorted []domain.Card, lower, upper, limit int) []domain.Card {
	var out []domain.Card
	for _, c := range sorted {
		if len(out) == limit {
			break
		}
		if c.SortPosition >= lower && c.SortPosition < upper {
			out = append(out, c)
		}
	}
	return out
}

type randomStrategy struct{}

func (randomStrategy) Build(cards []domain.Card, p Params) []domain.Card {
	out := eligible(cards, p.CreatedFrom, p.CreatedTo)
	shuffle(out, p.Rand)
	return capped(out, batchSize(p.BatchSize))
}

// shuffle is a Fisher-Yates shuffle. A nil r uses the global source.
func shuffle(cards []domain.Card, r *rand.Rand) {
	intN := rand.IntN
	if r != nil {
		intN = r.IntN
	}
	for i := len(cards) - 1; i > 0; i-- {
		j := intN(i + 1)
		cards[i], cards[j] = cards[j], cards[i]
	}
}

type sequentialStrategy struct{}

func (sequentialStrategy) Build(cards []domain.Card, p Params) []domain.Card {
	var out []domain.Card
	for _, c := range eligible(cards, nil, nil) {
		if c.SortPosition >= p.Cursor.SequentialPos {
			out = append(out, c)
		}
	}
	slices.SortStableFunc(out, bySortPosition)
	return capped(out, batchSize(p.BatchSize))
}

type byDateStrategy struct{}

func (byDateStrategy) Build(cards []domain.Card, p Params) []domain.Card {
	out := eligible(cards, p.CreatedFrom, p.CreatedTo)
	slices.SortStableFunc(out, bySortPosition)
	return out
}

// eligible copies the non-suspended cards created within [from, to].
func eligible(cards []domain.Card, from, to *time.Time) []domain.Card {
	out := make([]domain.Card, 0, len(cards))
	for _, c := range cards {
		if c.Status == domain.StatusSuspended {
			continue
		}
		if from != nil && c.CreatedAt.Before(*from) {
			continue
		}
		if to != nil && c.CreatedAt.After(*to) {
			continue
		}
		out = append(out, c)
	}
	return out
}

func isDue(c domain.Card, now time.Time) bool {
	return c.NextReviewAt != nil && !c.NextReviewAt.After(now)
}

func byNextReview(a, b domain.Card) int {
	return a.NextReviewAt.Compare(*b.NextReviewAt)
}

func bySortPosition(a, b domain.Card) int {
	return cmp.Compare(a.SortPosition, b.SortPosition)
}

func batchSize(n int) int {
	if n <= 0 {
		return DefaultBatchSize
	}
	return n
}

func capped(cards []domain.Card, n int) []domain.Card {
	if len(cards) > n {
		return cards[:n]
	}
	return cards
}
