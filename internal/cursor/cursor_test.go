package cursor

import (
	"testing"

	"github.com/conorfennell/studyq/internal/domain"
)

func newCards(positions ...int) []Studied {
	out := make([]Studied, len(positions))
	for i, p := range positions {
		out[i] = Studied{SortPosition: p, Status: domain.StatusNew}
	}
	return out
}

func reviewCards(positions ...int) []Studied {
	out := make([]Studied, len(positions))
	for i, p := range positions {
		out[i] = Studied{SortPosition: p, Status: domain.StatusReview}
	}
	return out
}

func TestAdvanceSequentialReview(t *testing.T) {
	testCases := []struct {
		name       string
		studied    []Studied
		state      domain.CursorState
		max        int
		wantNew    int
		wantReview int
	}{
		{
			name:       "new batch moves new watermark",
			studied:    newCards(0, 5, 9),
			state:      domain.CursorState{NewStartPos: 0, ReviewStartPos: 0},
			max:        40,
			wantNew:    10,
			wantReview: 0,
		},
		{
			name:       "review window becomes previous new batch",
			studied:    append(newCards(10, 15, 19), reviewCards(0, 5)...),
			state:      domain.CursorState{NewStartPos: 10, ReviewStartPos: 0},
			max:        40,
			wantNew:    20,
			wantReview: 10,
		},
		{
			name:       "only review cards advances review watermark",
			studied:    reviewCards(3, 7),
			state:      domain.CursorState{NewStartPos: 10, ReviewStartPos: 0},
			max:        40,
			wantNew:    10,
			wantReview: 8,
		},
		{
			name:       "review watermark wraps at max position",
			studied:    reviewCards(39),
			state:      domain.CursorState{NewStartPos: 100, ReviewStartPos: 39},
			max:        39,
			wantNew:    100,
			wantReview: 0,
		},
		{
			name:       "last studied card decides after a wrapped queue",
			studied:    reviewCards(30, 35, 0, 2),
			state:      domain.CursorState{NewStartPos: 40, ReviewStartPos: 30},
			max:        39,
			wantNew:    40,
			wantReview: 3,
		},
		{
			name:       "new watermark wraps at max position",
			studied:    newCards(38, 39),
			state:      domain.CursorState{NewStartPos: 38, ReviewStartPos: 20},
			max:        39,
			wantNew:    0,
			wantReview: 38,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got := AdvanceSequentialReview(tc.studied, tc.state, tc.max)
			if got.NewStartPos != tc.wantNew {
				t.Errorf("Expected NewStartPos %d, but got %d", tc.wantNew, got.NewStartPos)
			}
			if got.ReviewStartPos != tc.wantReview {
				t.Errorf("Expected ReviewStartPos %d, but got %d", tc.wantReview, got.ReviewStartPos)
			}
		})
	}
}

func TestAdvanceSequential(t *testing.T) {
	t.Run("early exit only skips rated cards", func(t *testing.T) {
		state := domain.CursorState{SequentialPos: 0}
		got := AdvanceSequential(reviewCards(0, 1, 2), state, 4)
		if got.SequentialPos != 3 {
			t.Errorf("Expected SequentialPos 3, but got %d", got.SequentialPos)
		}
	})

	t.Run("wraps at max position", func(t *testing.T) {
		state := domain.CursorState{SequentialPos: 3}
		got := AdvanceSequential(reviewCards(3, 4), state, 4)
		if got.SequentialPos != 0 {
			t.Errorf("Expected SequentialPos 0, but got %d", got.SequentialPos)
		}
	})

	t.Run("leaves other watermarks alone", func(t *testing.T) {
		state := domain.CursorState{NewStartPos: 7, ReviewStartPos: 2, SequentialPos: 1}
		got := AdvanceSequential(reviewCards(1), state, 10)
		if got.NewStartPos != 7 || got.ReviewStartPos != 2 {
			t.Errorf("Expected window untouched, but got %+v", got)
		}
	})
}

func TestEmptyQueueIsNoop(t *testing.T) {
	state := domain.CursorState{NewStartPos: 10, ReviewStartPos: 5, SequentialPos: 3}

	if got := AdvanceSequentialReview(nil, state, 20); got != state {
		t.Errorf("Expected %+v, but got %+v", state, got)
	}
	if got := AdvanceSequential(nil, state, 20); got != state {
		t.Errorf("Expected %+v, but got %+v", state, got)
	}
}

func TestWatermarksStayInRange(t *testing.T) {
	const maxPos = 9
	for p := 0; p <= maxPos; p++ {
		studied := []Studied{{SortPosition: p, Status: domain.StatusNew}}
		state := domain.CursorState{NewStartPos: p}

		seqReview := AdvanceSequentialReview(studied, state, maxPos)
		seq := AdvanceSequential(studied, state, maxPos)
		for _, w := range []int{seqReview.NewStartPos, seqReview.ReviewStartPos, seq.SequentialPos} {
			if w < 0 || w > maxPos {
				t.Fatalf("position %d: watermark %d out of [0, %d]", p, w, maxPos)
			}
		}
		if p == maxPos && (seqReview.NewStartPos != 0 || seq.SequentialPos != 0) {
			t.Errorf("Expected advance past max to wrap to 0, got %d and %d", seqReview.NewStartPos, seq.SequentialPos)
		}
	}
}

func TestDeterministic(t *testing.T) {
	studied := append(newCards(4, 6), reviewCards(1)...)
	state := domain.CursorState{NewStartPos: 4, ReviewStartPos: 1}

	first := AdvanceSequentialReview(studied, state, 10)
	second := AdvanceSequentialReview(studied, state, 10)
	if first != second {
		t.Errorf("Expected identical results, got %+v and %+v", first, second)
	}
}
