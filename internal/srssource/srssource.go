// Package srssource decides where a viewer's scheduling fields for a deck live
// and hides that choice behind one Source interface.
package srssource

import (
	"context"

	"github.com/conorfennell/studyq/internal/domain"
)

// Kind names where scheduling fields are stored.
type Kind string

const (
	KindEmbedded      Kind = "embedded"
	KindProgressTable Kind = "progress_table"
)

// Store is the persistence a Source reads from and writes to.
type Store interface {
	ListCards(ctx context.Context, deckID string) ([]domain.Card, error)
	ListProgress(ctx context.Context, deckID, userID string) ([]domain.ProgressRecord, error)
	UpdateCardScheduling(ctx context.Context, cardID string, s domain.Scheduling) error
	UpsertProgress(ctx context.Context, p domain.ProgressRecord) error
}

// Source loads a deck's cards as one viewer sees them and writes that
// viewer's scheduling updates back.
type Source interface {
	Kind() Kind
	Load(ctx context.Context, store Store, deckID string) ([]domain.Card, error)
	Write(ctx context.Context, store Store, card domain.Card, s domain.Scheduling) error
}

// Resolve picks the source for a viewer of deck. Only a subscriber who is not
// the recorded source owner gets a progress table; every other case, including
// an unknown deck, uses the fields embedded on the cards.
func Resolve(deck *domain.Deck, viewerID string) Source {
	if deck != nil &&
		deck.ShareMode == domain.ShareSubscribe &&
		deck.SourceOwnerID != nil &&
		*deck.SourceOwnerID != viewerID {
		return ProgressTable{ViewerID: viewerID}
	}
	return Embedded{}
}

// Merge returns the card as seen through a progress record. The scheduling
// group comes wholesale from p when it is non-nil; identity, content and
// position always come from the card.
func Merge(card domain.Card, p *domain.ProgressRecord) domain.Card {
	if p != nil {
		card.Scheduling = p.Scheduling
	}
	return card
}

// Embedded keeps scheduling fields on the card rows.
type Embedded struct{}

func (Embedded) Kind() Kind { return KindEmbedded }

func (Embedded) Load(ctx context.Context, store Store, deckID string) ([]domain.Card, error) {
	return store.ListCards(ctx, deckID)
}

func (Embedded) Write(ctx context.Context, store Store, card domain.Card, s domain.Scheduling) error {
	return store.UpdateCardScheduling(ctx, card.ID, s)
}

// ProgressTable keeps a subscriber's scheduling fields in per-learner
// progress records and never touches the shared card rows.
type ProgressTable struct {
	ViewerID string
}

func (ProgressTable) Kind() Kind { return KindProgressTable }

// Load merges the viewer's progress into the deck's cards. Cards without a
// record keep their own fields.
func (pt ProgressTable) Load(ctx context.Context, store Store, deckID string) ([]domain.Card, error) {
	cards, err := store.ListCards(ctx, deckID)
	if err != nil {
		return nil, err
	}
	records, err := store.ListProgress(ctx, deckID, pt.ViewerID)
	if err != nil {
		return nil, err
	}

	byCard := make(map[string]*domain.ProgressRecord, len(records))
	for i := range records {
		byCard[records[i].CardID] = &records[i]
	}
	out := make([]domain.Card, len(cards))
	for i, c := range cards {
		out[i] = Merge(c, byCard[c.ID])
	}
	return out, nil
}

func (pt ProgressTable) Write(ctx context.Context, store Store, card domain.Card, s domain.Scheduling) error {
	return store.UpsertProgress(ctx, domain.ProgressRecord{
		UserID:     pt.ViewerID,
		CardID:     card.ID,
		DeckID:     card.DeckID,
		Scheduling: s,
	})
}
