// Package cursor computes how a deck's persisted watermarks move after cards
// are studied. Every function takes the old state by value and returns the new
// one; persisting it is up to the caller.
package cursor

import "github.com/conorfennell/studyq/internal/domain"

// Studied is a card that was rated in a session, with the status it had when
// the queue was built.
type Studied struct {
	SortPosition int
	Status       domain.SrsStatus
}

// FromCards captures the positions and statuses of cards as they were selected.
func FromCards(cards []domain.Card) []Studied {
	out := make([]Studied, len(cards))
	for i, c := range cards {
		out[i] = Studied{SortPosition: c.SortPosition, Status: c.Status}
	}
	return out
}

// Wrap resets a watermark to 0 once it has moved past maxPosition.
func Wrap(pos, maxPosition int) int {
	if pos > maxPosition || pos < 0 {
		return 0
	}
	return pos
}

// AdvanceSequentialReview moves the sliding window of the sequential_review
// mode. When new cards were studied the new watermark moves past them and the
// review window becomes exactly the batch that was new this session. Otherwise
// the review watermark moves past the last studied card.
func AdvanceSequentialReview(studied []Studied, state domain.CursorState, maxPosition int) domain.CursorState {
	if len(studied) == 0 {
		return state
	}

	maxNew := -1
	for _, s := range studied {
		if s.Status == domain.StatusNew && s.SortPosition > maxNew {
			maxNew = s.SortPosition
		}
	}

	next := state
	if maxNew >= 0 {
		next.ReviewStartPos = Wrap(state.NewStartPos, maxPosition)
		next.NewStartPos = Wrap(maxNew+1, maxPosition)
		return next
	}

	last := studied[len(studied)-1].SortPosition
	next.ReviewStartPos = Wrap(last+1, maxPosition)
	return next
}

// AdvanceSequential moves the sequential cursor past the cards actually
// studied. Cards fetched but never rated are not skipped.
func AdvanceSequential(studied []Studied, state domain.CursorState, maxPosition int) domain.CursorState {
	if len(studied) == 0 {
		return state
	}

	maxPos := studied[0].SortPosition
	for _, s := range studied[1:] {
		if s.SortPosition > maxPos {
			maxPos = s.SortPosition
		}
	}

	next := state
	next.SequentialPos = Wrap(maxPos+1, maxPosition)
	return next
}
