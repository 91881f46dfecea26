package selection

import (
	"cmp"
	"math/rand/v2"
	"slices"

	"github.com/roach88/sometimes/internal/ambient"
	"github.com/roach88/sometimes/internal/corpus"
)

// IDSet is a set of item IDs.
type IDSet map[string]struct{}

// NewIDSet builds a set from ids.
func NewIDSet(ids ...string) IDSet {
	s := make(IDSet, len(ids))
	for _, id := range ids {
		s[id] = struct{}{}
	}
	return s
}

// Has reports whether id is in the set. A nil set is empty.
func (s IDSet) Has(id string) bool {
	_, ok := s[id]
	return ok
}

// PoolKind says which candidate pool a selection was drawn from.
type PoolKind string

const (
	// PoolFresh holds items never delivered.
	PoolFresh PoolKind = "fresh"
	// PoolCycle holds items not yet delivered in the current cycle.
	PoolCycle PoolKind = "cycle"
	// PoolReset is the whole corpus after every item was delivered this cycle.
	PoolReset PoolKind = "reset"
)

// Input is everything a selection depends on besides randomness.
type Input struct {
	Items    []corpus.Item
	Snapshot ambient.Snapshot
	AllTime  IDSet
	Cycle    IDSet
	Salt     int64
}

// Candidate is a scored item.
type Candidate struct {
	Item  corpus.Item
	Score int
}

// Result is the outcome of Select.
//
// CycleReset is set when the pool was the whole corpus because every item had
// been delivered in the current cycle; the caller must reset the cycle.
type Result struct {
	Item       corpus.Item
	Score      int
	Pool       PoolKind
	CycleReset bool
	Shortlist  []Candidate
}

// CandidatePool picks the items eligible for the next draw.
func CandidatePool(items []corpus.Item, allTime, cycle IDSet) ([]corpus.Item, PoolKind) {
	fresh := make([]corpus.Item, 0, len(items))
	for _, it := range items {
		if !allTime.Has(it.ID) {
			fresh = append(fresh, it)
		}
	}
	if len(fresh) > 0 {
		return fresh, PoolFresh
	}

	pending := make([]corpus.Item, 0, len(items))
	for _, it := range items {
		if !cycle.Has(it.ID) {
			pending = append(pending, it)
		}
	}
	if len(pending) > 0 {
		return pending, PoolCycle
	}

	return items, PoolReset
}

// Select chooses the next item. Returns false only when there are no items.
//
// Affinity never filters: every pool member gets a score and the top
// ShortlistSize candidates enter a weighted draw.
func Select(in Input, rng *rand.Rand) (Result, bool) {
	if len(in.Items) == 0 {
		return Result{}, false
	}

	pool, kind := CandidatePool(in.Items, in.AllTime, in.Cycle)

	scored := make([]Candidate, 0, len(pool))
	for _, it := range pool {
		s := ContextScore(it, in.Snapshot, !in.AllTime.Has(it.ID)) +
			SaltVariance(it.ID, in.Salt) +
			rng.IntN(RandomMax+1)
		scored = append(scored, Candidate{Item: it, Score: s})
	}

	// Descending score, ID as tiebreaker so a fixed rng gives a fixed order
	slices.SortStableFunc(scored, func(a, b Candidate) int {
		if c := cmp.Compare(b.Score, a.Score); c != 0 {
			return c
		}
		return cmp.Compare(a.Item.ID, b.Item.ID)
	})
	if len(scored) > ShortlistSize {
		scored = scored[:ShortlistSize]
	}

	pick := weightedPick(scored, rng)
	return Result{
		Item:       pick.Item,
		Score:      pick.Score,
		Pool:       kind,
		CycleReset: kind == PoolReset,
		Shortlist:  scored,
	}, true
}

func weightedPick(cands []Candidate, rng *rand.Rand) Candidate {
	total := 0
	for _, c := range cands {
		total += Weight(c.Score)
	}
	r := rng.IntN(total)
	for _, c := range cands {
		r -= Weight(c.Score)
		if r < 0 {
			return c
		}
	}
	return cands[len(cands)-1]
}
