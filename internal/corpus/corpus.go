package corpus

import (
	"fmt"
	"sort"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Corpus is the read-only item collection. Safe for concurrent use.
type Corpus struct {
	items  []Item
	byID   map[string]int
	source string
}

// New builds a corpus from items. IDs and text are normalized to NFC so that
// visually identical IDs from different editors compare equal.
//
// Returns an error if an ID is empty or appears twice.
func New(source string, items []Item) (*Corpus, error) {
	c := &Corpus{
		items:  make([]Item, 0, len(items)),
		byID:   make(map[string]int, len(items)),
		source: source,
	}
	for i, it := range items {
		it = normalize(it)
		if it.ID == "" {
			return nil, fmt.Errorf("item %d: empty id", i)
		}
		if prev, dup := c.byID[it.ID]; dup {
			return nil, fmt.Errorf("item %d: duplicate id %q (first seen at %d)", i, it.ID, prev)
		}
		c.byID[it.ID] = len(c.items)
		c.items = append(c.items, it)
	}
	return c, nil
}

func normalize(it Item) Item {
	it.ID = norm.NFC.String(strings.TrimSpace(it.ID))
	it.Title = norm.NFC.String(strings.TrimSpace(it.Title))
	it.Author = norm.NFC.String(strings.TrimSpace(it.Author))
	it.Body = norm.NFC.String(strings.TrimRight(it.Body, " \t\n"))
	return it
}

// Items returns a copy of the items in load order.
func (c *Corpus) Items() []Item {
	out := make([]Item, len(c.items))
	copy(out, c.items)
	return out
}

// Len returns the number of items.
func (c *Corpus) Len() int {
	return len(c.items)
}

// Lookup finds an item by ID.
func (c *Corpus) Lookup(id string) (Item, bool) {
	i, ok := c.byID[norm.NFC.String(id)]
	if !ok {
		return Item{}, false
	}
	return c.items[i], true
}

// IDs returns all item IDs sorted.
func (c *Corpus) IDs() []string {
	ids := make([]string, 0, len(c.items))
	for _, it := range c.items {
		ids = append(ids, it.ID)
	}
	sort.Strings(ids)
	return ids
}

// Source names where the corpus came from: a file path or "fallback".
func (c *Corpus) Source() string {
	return c.source
}
