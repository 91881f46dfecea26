package testutil

import (
	"fmt"
	"math/rand/v2"

	"github.com/roach88/sometimes/internal/ambient"
	"github.com/roach88/sometimes/internal/corpus"
)

// NewRand returns a deterministic random source for seed.
//
// The same seed yields the same timing and selection decisions, which keeps
// scheduling tests reproducible.
func NewRand(seed uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}

// Items returns n untagged items with IDs item-00, item-01, ...
func Items(n int) []corpus.Item {
	items := make([]corpus.Item, n)
	for i := range items {
		items[i] = corpus.Item{
			ID:     fmt.Sprintf("item-%02d", i),
			Title:  fmt.Sprintf("Item %d", i),
			Author: "Anonymous",
			Body:   "A line.",
		}
	}
	return items
}

// Corpus builds a corpus from items, failing loudly on invalid input.
func Corpus(items ...corpus.Item) *corpus.Corpus {
	c, err := corpus.New("test", items)
	if err != nil {
		panic(fmt.Sprintf("testutil.Corpus: %v", err))
	}
	return c
}

// Tagged returns an item with the given seasons and times of day.
func Tagged(id string, seasons []ambient.Season, times []ambient.TimeOfDay) corpus.Item {
	return corpus.Item{
		ID:     id,
		Title:  id,
		Author: "Anonymous",
		Body:   "A line.",
		Affinity: corpus.Affinity{
			Seasons:    seasons,
			TimesOfDay: times,
		},
	}
}
