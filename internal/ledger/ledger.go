package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/roach88/sometimes/internal/ambient"
)

// Ledger is the delivery history.
//
// The in-memory state is authoritative for the life of the process. Writes
// go through to the Persister; a failed write is logged and the in-memory
// change stands, unless the failure is ErrStorageCorrupt.
//
// Thread-safety: all methods are safe for concurrent use. Readers never
// wait on the scheduling engine.
type Ledger struct {
	mu       sync.RWMutex
	p        Persister
	ids      IDGenerator
	records  []DeliveryRecord // oldest first
	byID     map[string]int
	allTime  map[string]struct{}
	cycle    int64
	cycleSet map[string]struct{}

	subMu sync.Mutex
	subs  []func(Change)
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithIDGenerator overrides the record ID generator (default UUIDv7).
func WithIDGenerator(g IDGenerator) Option {
	return func(l *Ledger) {
		l.ids = g
	}
}

// Open loads the ledger from p. A nil Persister gives a memory-only ledger.
func Open(ctx context.Context, p Persister, opts ...Option) (*Ledger, error) {
	l := &Ledger{
		p:        p,
		ids:      UUIDv7Generator{},
		records:  make([]DeliveryRecord, 0, 64),
		byID:     make(map[string]int),
		allTime:  make(map[string]struct{}),
		cycleSet: make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(l)
	}
	if p == nil {
		return l, nil
	}

	cycle, err := p.LoadCycle(ctx)
	if err != nil {
		return nil, fmt.Errorf("open ledger: %w", err)
	}
	recs, err := p.LoadDeliveries(ctx)
	if err != nil {
		return nil, fmt.Errorf("open ledger: %w", err)
	}

	l.cycle = cycle
	for _, r := range recs {
		l.apply(r)
	}
	return l, nil
}

// apply adds r to the in-memory state. Caller holds mu or owns l exclusively.
func (l *Ledger) apply(r DeliveryRecord) {
	l.byID[r.ID] = len(l.records)
	l.records = append(l.records, r)
	l.allTime[r.ItemID] = struct{}{}
	if r.Cycle == l.cycle {
		l.cycleSet[r.ItemID] = struct{}{}
	}
}

// RecordDelivery appends a delivery of itemID with the given context.
//
// Returns ErrDuplicateDelivery if the item was already recorded on the
// snapshot's calendar day.
func (l *Ledger) RecordDelivery(ctx context.Context, itemID string, snap ambient.Snapshot) (DeliveryRecord, error) {
	l.mu.Lock()

	day := DayKey(snap.CapturedAt)
	loc := snap.CapturedAt.Location()
	for i := len(l.records) - 1; i >= 0; i-- {
		r := l.records[i]
		if r.ItemID == itemID && DayKey(r.DeliveredAt.In(loc)) == day {
			l.mu.Unlock()
			return DeliveryRecord{}, ErrDuplicateDelivery
		}
	}

	rec := DeliveryRecord{
		ID:          l.ids.Generate(),
		ItemID:      itemID,
		DeliveredAt: snap.CapturedAt,
		Context:     snap,
		Cycle:       l.cycle,
	}
	_, seenBefore := l.allTime[itemID]
	_, seenInCycle := l.cycleSet[itemID]
	l.apply(rec)

	if l.p != nil {
		inserted, err := l.p.InsertDelivery(ctx, rec)
		switch {
		case errors.Is(err, ErrStorageCorrupt):
			l.unapply(rec, seenBefore, seenInCycle)
			l.mu.Unlock()
			return DeliveryRecord{}, fmt.Errorf("record delivery %s: %w", itemID, err)
		case err != nil:
			slog.Warn("persist delivery failed; keeping in memory",
				"item_id", itemID,
				"record_id", rec.ID,
				"error", err,
			)
		case !inserted:
			slog.Debug("delivery already persisted", "item_id", itemID, "day", day)
		}
	}
	l.mu.Unlock()

	l.notify(Change{Kind: ChangeDelivered, Record: rec, Cycle: rec.Cycle})
	return rec, nil
}

// unapply reverts the last apply. Caller holds mu.
func (l *Ledger) unapply(r DeliveryRecord, seenBefore, seenInCycle bool) {
	l.records = l.records[:len(l.records)-1]
	delete(l.byID, r.ID)
	if !seenBefore {
		delete(l.allTime, r.ItemID)
	}
	if !seenInCycle {
		delete(l.cycleSet, r.ItemID)
	}
}

// AllTimeDeliveredIDs returns a copy of every item ID ever delivered.
func (l *Ledger) AllTimeDeliveredIDs() map[string]struct{} {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return copySet(l.allTime)
}

// CurrentCycleDeliveredIDs returns a copy of the item IDs delivered in the
// current cycle. Always a subset of AllTimeDeliveredIDs.
func (l *Ledger) CurrentCycleDeliveredIDs() map[string]struct{} {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return copySet(l.cycleSet)
}

// Cycle returns the current cycle marker.
func (l *Ledger) Cycle() int64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.cycle
}

// ResetCycle starts a new cycle. No record is deleted.
func (l *Ledger) ResetCycle(ctx context.Context) error {
	l.mu.Lock()
	prev := l.cycle
	prevSet := l.cycleSet
	l.cycle++
	l.cycleSet = make(map[string]struct{})
	next := l.cycle

	if l.p != nil {
		if err := l.p.SaveCycle(ctx, next); err != nil {
			if errors.Is(err, ErrStorageCorrupt) {
				l.cycle = prev
				l.cycleSet = prevSet
				l.mu.Unlock()
				return fmt.Errorf("reset cycle: %w", err)
			}
			slog.Warn("persist cycle failed; keeping in memory", "cycle", next, "error", err)
		}
	}
	l.mu.Unlock()

	slog.Info("delivery cycle reset", "cycle", next)
	l.notify(Change{Kind: ChangeCycleReset, Cycle: next})
	return nil
}

// ToggleKept flips the keep flag of a record. ref is a record ID or an item
// ID; an item ID resolves to that item's most recent delivery.
//
// Keeping captures a KeptContext from now and weather; unkeeping clears it.
func (l *Ledger) ToggleKept(ctx context.Context, ref string, now time.Time, weather ambient.Weather) (DeliveryRecord, error) {
	l.mu.Lock()

	idx, ok := l.resolve(ref)
	if !ok {
		l.mu.Unlock()
		return DeliveryRecord{}, fmt.Errorf("toggle kept %q: %w", ref, ErrRecordNotFound)
	}

	prev := l.records[idx]
	rec := prev
	rec.Kept = !prev.Kept
	if rec.Kept {
		kc := ambient.CaptureKept(now, weather)
		rec.KeptContext = &kc
	} else {
		rec.KeptContext = nil
	}
	l.records[idx] = rec

	if l.p != nil {
		if err := l.p.UpdateKept(ctx, rec.ID, rec.Kept, rec.KeptContext); err != nil {
			if errors.Is(err, ErrStorageCorrupt) {
				l.records[idx] = prev
				l.mu.Unlock()
				return DeliveryRecord{}, fmt.Errorf("toggle kept %q: %w", ref, err)
			}
			slog.Warn("persist keep failed; keeping in memory", "record_id", rec.ID, "error", err)
		}
	}
	l.mu.Unlock()

	kind := ChangeUnkept
	if rec.Kept {
		kind = ChangeKept
	}
	l.notify(Change{Kind: kind, Record: rec, Cycle: rec.Cycle})
	return rec, nil
}

// resolve finds a record index by record ID, then by latest item ID.
// Caller holds mu.
func (l *Ledger) resolve(ref string) (int, bool) {
	if i, ok := l.byID[ref]; ok {
		return i, true
	}
	for i := len(l.records) - 1; i >= 0; i-- {
		if l.records[i].ItemID == ref {
			return i, true
		}
	}
	return 0, false
}

// Get returns the record for ref (record ID or item ID).
func (l *Ledger) Get(ref string) (DeliveryRecord, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	i, ok := l.resolve(ref)
	if !ok {
		return DeliveryRecord{}, false
	}
	return l.records[i], true
}

// History returns deliveries, most recent first.
func (l *Ledger) History(keptOnly bool) []DeliveryRecord {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]DeliveryRecord, 0, len(l.records))
	for _, r := range slices.Backward(l.records) {
		if keptOnly && !r.Kept {
			continue
		}
		out = append(out, r)
	}
	return out
}

// Last returns the most recent delivery.
func (l *Ledger) Last() (DeliveryRecord, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if len(l.records) == 0 {
		return DeliveryRecord{}, false
	}
	return l.records[len(l.records)-1], true
}

// Stats summarises the ledger.
func (l *Ledger) Stats() Stats {
	l.mu.RLock()
	defer l.mu.RUnlock()

	kept := 0
	for _, r := range l.records {
		if r.Kept {
			kept++
		}
	}
	return Stats{
		Delivered:      len(l.records),
		Kept:           kept,
		Cycle:          l.cycle,
		CycleDelivered: len(l.cycleSet),
	}
}

// Subscribe registers fn to be called after every applied mutation.
// fn runs on the mutating goroutine after the ledger lock is released.
func (l *Ledger) Subscribe(fn func(Change)) {
	l.subMu.Lock()
	defer l.subMu.Unlock()
	l.subs = append(l.subs, fn)
}

func (l *Ledger) notify(c Change) {
	l.subMu.Lock()
	subs := slices.Clone(l.subs)
	l.subMu.Unlock()

	for _, fn := range subs {
		fn(c)
	}
}

func copySet(s map[string]struct{}) map[string]struct{} {
	out := make(map[string]struct{}, len(s))
	for k := range s {
		out[k] = struct{}{}
	}
	return out
}
