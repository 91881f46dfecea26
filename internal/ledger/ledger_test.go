package ledger

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/sometimes/internal/ambient"
)

// memPersister is an in-memory Persister with injectable failures.
type memPersister struct {
	mu        sync.Mutex
	recs      []DeliveryRecord
	cycle     int64
	insertErr error
	updateErr error
	cycleErr  error
	loadErr   error
}

func (m *memPersister) InsertDelivery(_ context.Context, rec DeliveryRecord) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.insertErr != nil {
		return false, m.insertErr
	}
	for _, r := range m.recs {
		if r.ItemID == rec.ItemID && r.Day() == rec.Day() {
			return false, nil
		}
	}
	m.recs = append(m.recs, rec)
	return true, nil
}

func (m *memPersister) UpdateKept(_ context.Context, id string, kept bool, kc *ambient.KeptContext) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.updateErr != nil {
		return m.updateErr
	}
	for i := range m.recs {
		if m.recs[i].ID == id {
			m.recs[i].Kept = kept
			m.recs[i].KeptContext = kc
		}
	}
	return nil
}

func (m *memPersister) LoadDeliveries(context.Context) ([]DeliveryRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.loadErr != nil {
		return nil, m.loadErr
	}
	out := make([]DeliveryRecord, len(m.recs))
	copy(out, m.recs)
	return out, nil
}

func (m *memPersister) LoadCycle(context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cycle, m.loadErr
}

func (m *memPersister) SaveCycle(_ context.Context, c int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cycleErr != nil {
		return m.cycleErr
	}
	m.cycle = c
	return nil
}

func snapAt(t time.Time) ambient.Snapshot {
	return ambient.Build(t, ambient.Clear)
}

var day1 = time.Date(2025, time.March, 3, 9, 0, 0, 0, time.UTC)

func newLedger(t *testing.T, p Persister) *Ledger {
	t.Helper()
	ids := make([]string, 100)
	for i := range ids {
		ids[i] = fmt.Sprintf("rec-%03d", i+1)
	}
	l, err := Open(context.Background(), p, WithIDGenerator(NewSequenceGenerator(ids...)))
	require.NoError(t, err)
	return l
}

func TestRecordDelivery_AddsToSets(t *testing.T) {
	ctx := context.Background()
	l := newLedger(t, &memPersister{})

	rec, err := l.RecordDelivery(ctx, "a", snapAt(day1))
	require.NoError(t, err)
	assert.Equal(t, "rec-001", rec.ID)
	assert.Equal(t, "a", rec.ItemID)
	assert.True(t, rec.DeliveredAt.Equal(day1))
	assert.False(t, rec.Kept)
	assert.Nil(t, rec.KeptContext)

	assert.Contains(t, l.AllTimeDeliveredIDs(), "a")
	assert.Contains(t, l.CurrentCycleDeliveredIDs(), "a")
}

func TestRecordDelivery_SameDayIsDuplicate(t *testing.T) {
	ctx := context.Background()
	p := &memPersister{}
	l := newLedger(t, p)

	_, err := l.RecordDelivery(ctx, "a", snapAt(day1))
	require.NoError(t, err)

	_, err = l.RecordDelivery(ctx, "a", snapAt(day1.Add(10*time.Hour)))
	assert.ErrorIs(t, err, ErrDuplicateDelivery)
	assert.Len(t, l.History(false), 1)
	assert.Len(t, p.recs, 1)

	// Next calendar day is fine
	_, err = l.RecordDelivery(ctx, "a", snapAt(day1.Add(24*time.Hour)))
	require.NoError(t, err)
	assert.Len(t, l.History(false), 2)
}

func TestRecordDelivery_DayUsesSnapshotZone(t *testing.T) {
	ctx := context.Background()
	l := newLedger(t, nil)
	ny := time.FixedZone("EST", -5*60*60)

	// 23:00 EST Mar 3 is 04:00 UTC Mar 4; still Mar 3 in New York.
	first := time.Date(2025, time.March, 3, 23, 0, 0, 0, ny)
	_, err := l.RecordDelivery(ctx, "a", snapAt(first))
	require.NoError(t, err)

	_, err = l.RecordDelivery(ctx, "a", snapAt(time.Date(2025, time.March, 3, 8, 0, 0, 0, ny)))
	assert.ErrorIs(t, err, ErrDuplicateDelivery)
}

func TestSets_MonotonicAndSubset(t *testing.T) {
	ctx := context.Background()
	l := newLedger(t, &memPersister{})

	prev := map[string]struct{}{}
	for i, id := range []string{"a", "b", "c", "a", "d"} {
		_, err := l.RecordDelivery(ctx, id, snapAt(day1.Add(time.Duration(i)*24*time.Hour)))
		require.NoError(t, err)
		if i == 2 {
			require.NoError(t, l.ResetCycle(ctx))
		}

		all := l.AllTimeDeliveredIDs()
		for k := range prev {
			assert.Contains(t, all, k, "all-time set shrank")
		}
		for k := range l.CurrentCycleDeliveredIDs() {
			assert.Contains(t, all, k, "cycle set not a subset")
		}
		prev = all
	}
	assert.Len(t, prev, 4)
	assert.Equal(t, map[string]struct{}{"a": {}, "d": {}}, l.CurrentCycleDeliveredIDs())
}

func TestResetCycle_KeepsRecords(t *testing.T) {
	ctx := context.Background()
	p := &memPersister{}
	l := newLedger(t, p)

	_, err := l.RecordDelivery(ctx, "a", snapAt(day1))
	require.NoError(t, err)
	require.NoError(t, l.ResetCycle(ctx))

	assert.Empty(t, l.CurrentCycleDeliveredIDs())
	assert.Contains(t, l.AllTimeDeliveredIDs(), "a")
	assert.Equal(t, int64(1), l.Cycle())
	assert.Equal(t, int64(1), p.cycle)
	assert.Len(t, l.History(false), 1)
}

func TestOpen_RestoresState(t *testing.T) {
	ctx := context.Background()
	p := &memPersister{}
	l := newLedger(t, p)

	_, err := l.RecordDelivery(ctx, "a", snapAt(day1))
	require.NoError(t, err)
	require.NoError(t, l.ResetCycle(ctx))
	_, err = l.RecordDelivery(ctx, "b", snapAt(day1.Add(24*time.Hour)))
	require.NoError(t, err)
	_, err = l.ToggleKept(ctx, "a", day1, ambient.Rainy)
	require.NoError(t, err)

	reopened, err := Open(ctx, p)
	require.NoError(t, err)
	assert.Equal(t, l.AllTimeDeliveredIDs(), reopened.AllTimeDeliveredIDs())
	assert.Equal(t, map[string]struct{}{"b": {}}, reopened.CurrentCycleDeliveredIDs())
	assert.Equal(t, int64(1), reopened.Cycle())

	kept := reopened.History(true)
	require.Len(t, kept, 1)
	assert.Equal(t, "a", kept[0].ItemID)
}

func TestOpen_LoadErrorIsReturned(t *testing.T) {
	_, err := Open(context.Background(), &memPersister{loadErr: errors.New("disk gone")})
	assert.Error(t, err)
}

func TestToggleKept_RoundTrip(t *testing.T) {
	ctx := context.Background()
	p := &memPersister{}
	l := newLedger(t, p)

	rec, err := l.RecordDelivery(ctx, "a", snapAt(day1))
	require.NoError(t, err)

	keepAt := time.Date(2025, time.March, 5, 19, 30, 0, 0, time.UTC)
	kept, err := l.ToggleKept(ctx, rec.ID, keepAt, ambient.Rainy)
	require.NoError(t, err)
	assert.True(t, kept.Kept)
	require.NotNil(t, kept.KeptContext)
	assert.Equal(t, ambient.Evening, kept.KeptContext.TimeOfDay)
	assert.Equal(t, ambient.Rainy, kept.KeptContext.Weather)
	assert.Equal(t, "Wednesday", kept.KeptContext.DayOfWeek)
	assert.True(t, p.recs[0].Kept)

	unkept, err := l.ToggleKept(ctx, rec.ID, keepAt, ambient.Rainy)
	require.NoError(t, err)
	assert.False(t, unkept.Kept)
	assert.Nil(t, unkept.KeptContext)
	assert.Nil(t, p.recs[0].KeptContext)

	assert.Equal(t, rec.ItemID, unkept.ItemID)
	assert.True(t, rec.DeliveredAt.Equal(unkept.DeliveredAt))
	assert.Equal(t, rec.Context, unkept.Context)
}

func TestToggleKept_ItemIDResolvesLatest(t *testing.T) {
	ctx := context.Background()
	l := newLedger(t, nil)

	_, err := l.RecordDelivery(ctx, "a", snapAt(day1))
	require.NoError(t, err)
	second, err := l.RecordDelivery(ctx, "a", snapAt(day1.Add(48*time.Hour)))
	require.NoError(t, err)

	rec, err := l.ToggleKept(ctx, "a", day1, ambient.WeatherUnknown)
	require.NoError(t, err)
	assert.Equal(t, second.ID, rec.ID)
}

func TestToggleKept_NotFound(t *testing.T) {
	l := newLedger(t, nil)
	_, err := l.ToggleKept(context.Background(), "missing", day1, ambient.Clear)
	assert.ErrorIs(t, err, ErrRecordNotFound)
}

func TestPersistFailure_MemoryStaysAuthoritative(t *testing.T) {
	ctx := context.Background()
	p := &memPersister{insertErr: errors.New("disk full"), updateErr: errors.New("disk full"), cycleErr: errors.New("disk full")}
	l := newLedger(t, p)

	rec, err := l.RecordDelivery(ctx, "a", snapAt(day1))
	require.NoError(t, err)
	assert.Contains(t, l.AllTimeDeliveredIDs(), "a")

	_, err = l.ToggleKept(ctx, rec.ID, day1, ambient.Clear)
	require.NoError(t, err)
	assert.Len(t, l.History(true), 1)

	require.NoError(t, l.ResetCycle(ctx))
	assert.Equal(t, int64(1), l.Cycle())
	assert.Empty(t, p.recs)
}

func TestPersistCorrupt_FailsAndRollsBack(t *testing.T) {
	ctx := context.Background()
	corrupt := fmt.Errorf("insert: %w", ErrStorageCorrupt)
	p := &memPersister{insertErr: corrupt}
	l := newLedger(t, p)

	_, err := l.RecordDelivery(ctx, "a", snapAt(day1))
	assert.ErrorIs(t, err, ErrStorageCorrupt)
	assert.Empty(t, l.AllTimeDeliveredIDs())
	assert.Empty(t, l.History(false))

	p.insertErr = nil
	_, err = l.RecordDelivery(ctx, "a", snapAt(day1))
	require.NoError(t, err)

	p.cycleErr = corrupt
	assert.ErrorIs(t, l.ResetCycle(ctx), ErrStorageCorrupt)
	assert.Equal(t, int64(0), l.Cycle())
	assert.Contains(t, l.CurrentCycleDeliveredIDs(), "a")
}

func TestHistory_NewestFirstAndFilter(t *testing.T) {
	ctx := context.Background()
	l := newLedger(t, nil)

	for i, id := range []string{"a", "b", "c"} {
		_, err := l.RecordDelivery(ctx, id, snapAt(day1.Add(time.Duration(i)*24*time.Hour)))
		require.NoError(t, err)
	}
	_, err := l.ToggleKept(ctx, "b", day1, ambient.Clear)
	require.NoError(t, err)

	h := l.History(false)
	require.Len(t, h, 3)
	assert.Equal(t, []string{"c", "b", "a"}, []string{h[0].ItemID, h[1].ItemID, h[2].ItemID})

	kept := l.History(true)
	require.Len(t, kept, 1)
	assert.Equal(t, "b", kept[0].ItemID)

	last, ok := l.Last()
	require.True(t, ok)
	assert.Equal(t, "c", last.ItemID)

	st := l.Stats()
	assert.Equal(t, Stats{Delivered: 3, Kept: 1, Cycle: 0, CycleDelivered: 3}, st)
}

func TestSubscribe_ReceivesChanges(t *testing.T) {
	ctx := context.Background()
	l := newLedger(t, nil)

	var got []ChangeKind
	l.Subscribe(func(c Change) { got = append(got, c.Kind) })

	rec, err := l.RecordDelivery(ctx, "a", snapAt(day1))
	require.NoError(t, err)
	_, err = l.ToggleKept(ctx, rec.ID, day1, ambient.Clear)
	require.NoError(t, err)
	_, err = l.ToggleKept(ctx, rec.ID, day1, ambient.Clear)
	require.NoError(t, err)
	require.NoError(t, l.ResetCycle(ctx))

	_, err = l.RecordDelivery(ctx, "a", snapAt(day1))
	require.ErrorIs(t, err, ErrDuplicateDelivery)

	assert.Equal(t, []ChangeKind{ChangeDelivered, ChangeKept, ChangeUnkept, ChangeCycleReset}, got)
}

func TestLedger_ConcurrentReadersAndWriters(t *testing.T) {
	ctx := context.Background()
	l, err := Open(ctx, &memPersister{})
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			_, _ = l.RecordDelivery(ctx, fmt.Sprintf("item-%d", i), snapAt(day1))
		}(i)
		go func() {
			defer wg.Done()
			_ = l.History(false)
			_ = l.AllTimeDeliveredIDs()
		}()
	}
	wg.Wait()
	assert.Len(t, l.AllTimeDeliveredIDs(), 20)
}
