// Package tarot draws cards for the reading feature.
package tarot

import "math/rand"

// MajorArcana lists the 22 trump cards drawn from.
var MajorArcana = []string{
	"The Fool",
	"The Magician",
	"The High Priestess",
	"The Empress",
	"The Emperor",
	"The Hierophant",
	"The Lovers",
	"The Chariot",
	"Strength",
	"The Hermit",
	"Wheel of Fortune",
	"Justice",
	"The Hanged Man",
	"Death",
	"Temperance",
	"The Devil",
	"The Tower",
	"The Star",
	"The Moon",
	"The Sun",
	"Judgement",
	"The World",
}

// Draw returns count unique card names. count is clamped to the deck.
func Draw(rng *rand.Rand, count int) []string {
	if count < 1 {
		count = 1
	}
	if count > len(MajorArcana) {
		count = len(MajorArcana)
	}
	perm := rng.Perm(len(MajorArcana))
	cards := make([]string, count)
	for i := 0; i < count; i++ {
		cards[i] = MajorArcana[perm[i]]
	}
	return cards
}
