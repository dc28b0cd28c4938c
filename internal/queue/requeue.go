package queue

import (
	"slices"

	"github.com/conorfennell/studyq/internal/domain"
)

const (
	// RequeueGap is how many cards are shown before a failed card comes back.
	RequeueGap = 3
	// MaxRequeuePerCard bounds how often one card can come back in a session.
	MaxRequeuePerCard = 3
)

// Requeue re-inserts failed srs cards later in the running session queue.
type Requeue struct {
	counts map[string]int
}

// NewRequeue returns an empty requeue tracker for one session.
func NewRequeue() *Requeue {
	return &Requeue{counts: make(map[string]int)}
}

// Insert puts card back into queue RequeueGap cards after index, or at the end
// when fewer remain. It reports false and leaves queue alone once the card has
// been requeued MaxRequeuePerCard times.
func (r *Requeue) Insert(queue []domain.Card, index int, card domain.Card) ([]domain.Card, bool) {
	if r.counts[card.ID] >= MaxRequeuePerCard {
		return queue, false
	}
	r.counts[card.ID]++

	at := min(index+1+RequeueGap, len(queue))
	return slices.Insert(queue, at, card), true
}

// Count returns how many times a card has been requeued.
func (r *Requeue) Count(cardID string) int {
	return r.counts[cardID]
}
