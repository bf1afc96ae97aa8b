package table

import "github.com/cardroom/tablesrv/pkg/engine"

// PredefinedDecks replaces the engine's shuffle with a fixed rotation of
// pre-shuffled decks, wrapping around when the list runs out. Hands
// dealt from it are reproducible, which is what replays and tests need.
type PredefinedDecks struct {
	decks [][]engine.Card
	index int
}

func NewPredefinedDecks(decks [][]engine.Card) *PredefinedDecks {
	return &PredefinedDecks{decks: decks}
}

// Shuffle copies the next deck over the engine's deck buffer and
// advances the rotation.
func (d *PredefinedDecks) Shuffle(deck []engine.Card) {
	if len(d.decks) == 0 {
		return
	}
	copy(deck, d.decks[d.index])
	d.index++
	if d.index >= len(d.decks) {
		d.index = 0
	}
}
