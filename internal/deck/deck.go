package deck

import (
	"encoding/json"
	rand "math/rand/v2"
	"time"
)

// Deck is the shuffled remainder of a 52-card deck. Cards are drawn from
// the tail and never returned within a round.
type Deck struct {
	cards []Card
}

// New creates a full 52-card deck shuffled with a time-seeded generator.
func New() *Deck {
	return NewSeeded(time.Now().UnixNano())
}

// NewSeeded creates a full shuffled deck from a deterministic seed.
func NewSeeded(seed int64) *Deck {
	d := &Deck{cards: make([]Card, 0, 52)}
	for suit := Hearts; suit <= Spades; suit++ {
		for rank := Two; rank <= Ace; rank++ {
			d.cards = append(d.cards, NewCard(rank, suit))
		}
	}
	d.shuffle(NewRand(seed))
	return d
}

// FromCards restores a deck from a persisted card list without shuffling.
func FromCards(cards []Card) *Deck {
	d := &Deck{cards: make([]Card, len(cards))}
	copy(d.cards, cards)
	return d
}

// shuffle applies a Fisher-Yates permutation; every ordering is equally likely.
func (d *Deck) shuffle(rng *rand.Rand) {
	for i := len(d.cards) - 1; i > 0; i-- {
		j := rng.IntN(i + 1)
		d.cards[i], d.cards[j] = d.cards[j], d.cards[i]
	}
}

// Draw removes and returns n cards from the tail of the deck.
func (d *Deck) Draw(n int) []Card {
	if n > len(d.cards) {
		n = len(d.cards)
	}
	drawn := make([]Card, n)
	copy(drawn, d.cards[len(d.cards)-n:])
	d.cards = d.cards[:len(d.cards)-n]
	return drawn
}

// Remaining returns the number of cards left in the deck.
func (d *Deck) Remaining() int {
	return len(d.cards)
}

// Cards returns a copy of the remaining cards, for persistence.
func (d *Deck) Cards() []Card {
	out := make([]Card, len(d.cards))
	copy(out, d.cards)
	return out
}

// MarshalJSON persists the remaining cards in draw order.
func (d *Deck) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.cards)
}

// UnmarshalJSON restores a deck from its persisted card list.
func (d *Deck) UnmarshalJSON(data []byte) error {
	return json.Unmarshal(data, &d.cards)
}
