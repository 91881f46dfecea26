package engine

import (
	"context"
	"errors"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/sometimes/internal/ambient"
	"github.com/roach88/sometimes/internal/corpus"
	"github.com/roach88/sometimes/internal/ledger"
	"github.com/roach88/sometimes/internal/prefs"
	"github.com/roach88/sometimes/internal/testutil"
	"github.com/roach88/sometimes/internal/transport"
)

// monday is 2025-03-03 09:00 UTC.
var monday = time.Date(2025, time.March, 3, 9, 0, 0, 0, time.UTC)

type fakeTransport struct {
	mu            sync.Mutex
	armed         []transport.Scheduled
	delivered     []string
	scheduleCalls int
	cancelCalls   int
	scheduleErr   error
	deliverErr    error
	listErr       error
}

func (f *fakeTransport) Schedule(_ context.Context, item corpus.Item, fireAt time.Time, hint string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.scheduleCalls++
	if f.scheduleErr != nil {
		return f.scheduleErr
	}
	f.armed = append(f.armed, transport.Scheduled{ItemID: item.ID, FireAt: fireAt, Hint: hint})
	return nil
}

func (f *fakeTransport) DeliverImmediately(_ context.Context, item corpus.Item, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.deliverErr != nil {
		return f.deliverErr
	}
	f.delivered = append(f.delivered, item.ID)
	return nil
}

func (f *fakeTransport) CancelAllPending(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancelCalls++
	f.armed = nil
	return nil
}

func (f *fakeTransport) ListPending(context.Context) ([]transport.Scheduled, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	return slices.Clone(f.armed), nil
}

func (f *fakeTransport) snapshot() (armed []transport.Scheduled, schedules, cancels int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.armed), f.scheduleCalls, f.cancelCalls
}

type fakePending struct {
	mu  sync.Mutex
	pd  *PendingDelivery
	err error
}

func (f *fakePending) LoadPending(context.Context) (PendingDelivery, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.pd == nil {
		return PendingDelivery{}, false, f.err
	}
	return *f.pd, true, f.err
}

func (f *fakePending) SavePending(_ context.Context, pd PendingDelivery) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.pd = &pd
	return nil
}

func (f *fakePending) ClearPending(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pd = nil
	return f.err
}

type staticWeather struct {
	w   ambient.Weather
	err error
}

func (s staticWeather) CurrentCondition(context.Context) (ambient.Weather, error) {
	return s.w, s.err
}

type fixture struct {
	engine    *Engine
	clock     *testutil.ManualClock
	ledger    *ledger.Ledger
	transport *fakeTransport
	pending   *fakePending
	prefs     *prefs.MemoryStore
}

func newFixture(t *testing.T, items []corpus.Item, p prefs.Preferences) *fixture {
	t.Helper()

	l, err := ledger.Open(context.Background(), nil)
	require.NoError(t, err)

	f := &fixture{
		clock:     testutil.NewManualClock(monday),
		ledger:    l,
		transport: &fakeTransport{},
		pending:   &fakePending{},
		prefs:     prefs.NewMemoryStore(p),
	}
	f.engine = New(Deps{
		Corpus:    testutil.Corpus(items...),
		Ledger:    l,
		Pending:   f.pending,
		Prefs:     f.prefs,
		Transport: f.transport,
		Weather:   staticWeather{w: ambient.Rainy},
		Salt:      48213,
	}, WithClock(f.clock), WithRand(testutil.NewRand(7)))
	return f
}

func dailyPrefs() prefs.Preferences {
	return prefs.Preferences{StartHour: 7, EndHour: 22, ItemsPerWeek: 7}
}

func TestScheduleNext_ArmsOneDelivery(t *testing.T) {
	f := newFixture(t, testutil.Items(5), dailyPrefs())
	ctx := context.Background()

	pd, ok, err := f.engine.ScheduleNext(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	assert.Contains(t, []string{"item-00", "item-01", "item-02", "item-03", "item-04"}, pd.ItemID)
	assert.False(t, pd.FireAt.Before(monday.Add(time.Hour)))
	assert.False(t, pd.FireAt.After(monday.Add(38*time.Hour)))
	assert.True(t, pd.FireAt.Hour() >= 7 && pd.FireAt.Hour() < 22)
	assert.True(t, pd.ScheduledAt.Equal(monday))
	assert.Equal(t, "for this morning and the rain", pd.Hint)

	armed, schedules, cancels := f.transport.snapshot()
	require.Len(t, armed, 1)
	assert.Equal(t, pd.ItemID, armed[0].ItemID)
	assert.True(t, armed[0].FireAt.Equal(pd.FireAt))
	assert.Equal(t, 1, schedules)
	assert.Equal(t, 1, cancels)

	stored, ok, err := f.pending.LoadPending(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, pd.ItemID, stored.ItemID)

	st := f.engine.Status(ctx)
	assert.Equal(t, StateScheduled, st.State)
	require.NotNil(t, st.Pending)
	assert.Equal(t, pd.ItemID, st.Pending.ItemID)
	assert.Equal(t, 5, st.CorpusSize)
}

func TestScheduleNext_PausedHasNoSideEffects(t *testing.T) {
	p := dailyPrefs().PauseFor(monday, 3)
	f := newFixture(t, testutil.Items(3), p)

	pd, ok, err := f.engine.ScheduleNext(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, PendingDelivery{}, pd)

	armed, schedules, cancels := f.transport.snapshot()
	assert.Empty(t, armed)
	assert.Zero(t, schedules)
	assert.Zero(t, cancels, "paused scheduling must not touch the transport")

	_, has, _ := f.pending.LoadPending(context.Background())
	assert.False(t, has)
	assert.Equal(t, StateIdle, f.engine.Status(context.Background()).State)
}

func TestScheduleNext_PauseExpired(t *testing.T) {
	p := dailyPrefs().PauseFor(monday.Add(-72*time.Hour), 2)
	f := newFixture(t, testutil.Items(3), p)

	_, ok, err := f.engine.ScheduleNext(context.Background())
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestScheduleNext_EmptyCorpus(t *testing.T) {
	f := newFixture(t, nil, dailyPrefs())

	_, ok, err := f.engine.ScheduleNext(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)

	armed, schedules, _ := f.transport.snapshot()
	assert.Empty(t, armed)
	assert.Zero(t, schedules)
	_, has := f.engine.Pending(context.Background())
	assert.False(t, has)
}

func TestScheduleNext_ConcurrentCallsLeaveOnePending(t *testing.T) {
	f := newFixture(t, testutil.Items(8), dailyPrefs())
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, err := f.engine.ScheduleNext(ctx)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	armed, schedules, cancels := f.transport.snapshot()
	require.Len(t, armed, 1)
	assert.Equal(t, 10, schedules)
	assert.Equal(t, 10, cancels)

	pd, ok := f.engine.Pending(ctx)
	require.True(t, ok)
	assert.Equal(t, armed[0].ItemID, pd.ItemID)
}

func TestScheduleNext_TransportFailureKeepsPending(t *testing.T) {
	f := newFixture(t, testutil.Items(3), dailyPrefs())
	ctx := context.Background()
	f.transport.scheduleErr = errors.New("notifications disabled")

	pd, ok, err := f.engine.ScheduleNext(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	stored, has, _ := f.pending.LoadPending(ctx)
	require.True(t, has)
	assert.Equal(t, pd.ItemID, stored.ItemID)

	// Reconcile repairs once the transport recovers.
	f.transport.mu.Lock()
	f.transport.scheduleErr = nil
	f.transport.mu.Unlock()

	rescheduled, err := f.engine.Reconcile(ctx)
	require.NoError(t, err)
	assert.True(t, rescheduled)
	armed, _, _ := f.transport.snapshot()
	assert.Len(t, armed, 1)
}

func TestScheduleNext_PersistFailureKeepsMemory(t *testing.T) {
	f := newFixture(t, testutil.Items(3), dailyPrefs())
	f.pending.err = errors.New("disk full")

	pd, ok, err := f.engine.ScheduleNext(context.Background())
	require.NoError(t, err)
	require.True(t, ok)

	got, has := f.engine.Pending(context.Background())
	require.True(t, has)
	assert.Equal(t, pd.ItemID, got.ItemID)
}

func TestOnDelivered_RecordsAndReschedules(t *testing.T) {
	f := newFixture(t, testutil.Items(5), dailyPrefs())
	ctx := context.Background()

	first, ok, err := f.engine.ScheduleNext(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	f.clock.Set(first.FireAt)
	require.NoError(t, f.engine.OnDelivered(ctx, first.ItemID))

	last, ok := f.ledger.Last()
	require.True(t, ok)
	assert.Equal(t, first.ItemID, last.ItemID)
	assert.True(t, last.DeliveredAt.Equal(first.FireAt))
	assert.Equal(t, ambient.Rainy, last.Context.Weather)

	next, ok := f.engine.Pending(ctx)
	require.True(t, ok)
	assert.NotEqual(t, first.ItemID, next.ItemID, "fresh pool excludes the delivered item")
	assert.True(t, next.FireAt.After(first.FireAt))

	armed, _, _ := f.transport.snapshot()
	require.Len(t, armed, 1)
	assert.Equal(t, next.ItemID, armed[0].ItemID)
}

func TestOnDelivered_DuplicateIsNoop(t *testing.T) {
	f := newFixture(t, testutil.Items(5), dailyPrefs())
	ctx := context.Background()

	first, _, err := f.engine.ScheduleNext(ctx)
	require.NoError(t, err)
	require.NoError(t, f.engine.OnDelivered(ctx, first.ItemID))
	_, schedulesBefore, _ := f.transport.snapshot()
	pendingBefore, _ := f.engine.Pending(ctx)

	f.clock.Advance(time.Hour)
	require.NoError(t, f.engine.OnDelivered(ctx, first.ItemID))

	_, schedulesAfter, _ := f.transport.snapshot()
	pendingAfter, _ := f.engine.Pending(ctx)
	assert.Equal(t, schedulesBefore, schedulesAfter)
	assert.Equal(t, pendingBefore, pendingAfter)
	assert.Equal(t, 1, len(f.ledger.History(false)))
}

func TestOnDelivered_SameDayFireOfPendingItemReschedules(t *testing.T) {
	f := newFixture(t, testutil.Items(1), dailyPrefs())
	ctx := context.Background()

	d, err := f.engine.DeliverNow(ctx)
	require.NoError(t, err)
	require.True(t, d.Recorded)

	pd, ok := f.engine.Pending(ctx)
	require.True(t, ok)
	require.Equal(t, "item-00", pd.ItemID)

	// The only item fires again before the calendar day ends.
	f.clock.Set(monday.Add(10 * time.Hour))
	require.NoError(t, f.engine.OnDelivered(ctx, "item-00"))

	assert.Len(t, f.ledger.History(false), 1)

	next, ok := f.engine.Pending(ctx)
	require.True(t, ok)
	assert.True(t, next.FireAt.After(f.clock.Now()))

	armed, _, _ := f.transport.snapshot()
	require.Len(t, armed, 1)
	assert.True(t, armed[0].FireAt.Equal(next.FireAt))
}

func TestOnDelivered_UnknownItem(t *testing.T) {
	f := newFixture(t, testutil.Items(3), dailyPrefs())
	ctx := context.Background()

	pd, _, err := f.engine.ScheduleNext(ctx)
	require.NoError(t, err)

	require.NoError(t, f.engine.OnDelivered(ctx, "not-in-corpus"))
	assert.Empty(t, f.ledger.History(false))

	still, ok := f.engine.Pending(ctx)
	require.True(t, ok)
	assert.Equal(t, pd, still)
}

func TestOnDelivered_FullCycle(t *testing.T) {
	f := newFixture(t, testutil.Items(3), dailyPrefs())
	ctx := context.Background()

	pd, ok, err := f.engine.ScheduleNext(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	var delivered []string
	for i := 0; i < 3; i++ {
		f.clock.Set(pd.FireAt)
		require.NoError(t, f.engine.OnDelivered(ctx, pd.ItemID))
		delivered = append(delivered, pd.ItemID)
		pd, ok = f.engine.Pending(ctx)
		require.True(t, ok, "a next delivery is always scheduled")
	}

	slices.Sort(delivered)
	assert.Equal(t, []string{"item-00", "item-01", "item-02"}, delivered)
	assert.Equal(t, int64(1), f.ledger.Cycle(), "exhausting the corpus starts a new cycle")
	assert.Len(t, f.ledger.AllTimeDeliveredIDs(), 3)
}

func TestReconcile_NothingArmedSchedules(t *testing.T) {
	f := newFixture(t, testutil.Items(3), dailyPrefs())

	scheduled, err := f.engine.Reconcile(context.Background())
	require.NoError(t, err)
	assert.True(t, scheduled)
	armed, _, _ := f.transport.snapshot()
	assert.Len(t, armed, 1)
}

func TestReconcile_ArmedFutureIsNoop(t *testing.T) {
	f := newFixture(t, testutil.Items(3), dailyPrefs())
	ctx := context.Background()

	_, _, err := f.engine.ScheduleNext(ctx)
	require.NoError(t, err)

	scheduled, err := f.engine.Reconcile(ctx)
	require.NoError(t, err)
	assert.False(t, scheduled)
	_, schedules, _ := f.transport.snapshot()
	assert.Equal(t, 1, schedules)
}

func TestReconcile_PassedTargetReschedules(t *testing.T) {
	f := newFixture(t, testutil.Items(3), dailyPrefs())
	ctx := context.Background()

	pd, _, err := f.engine.ScheduleNext(ctx)
	require.NoError(t, err)

	f.clock.Set(pd.FireAt.Add(time.Minute))
	scheduled, err := f.engine.Reconcile(ctx)
	require.NoError(t, err)
	assert.True(t, scheduled)

	next, ok := f.engine.Pending(ctx)
	require.True(t, ok)
	assert.True(t, next.FireAt.After(pd.FireAt))
}

func TestReconcile_ListFailureTreatedAsEmpty(t *testing.T) {
	f := newFixture(t, testutil.Items(3), dailyPrefs())
	ctx := context.Background()

	_, _, err := f.engine.ScheduleNext(ctx)
	require.NoError(t, err)
	f.transport.listErr = errors.New("unavailable")

	scheduled, err := f.engine.Reconcile(ctx)
	require.NoError(t, err)
	assert.True(t, scheduled)
}

func TestReconcile_PausedDisarms(t *testing.T) {
	f := newFixture(t, testutil.Items(3), dailyPrefs())
	ctx := context.Background()

	_, _, err := f.engine.ScheduleNext(ctx)
	require.NoError(t, err)

	require.NoError(t, f.prefs.SavePreferences(ctx, dailyPrefs().PauseFor(monday, 2)))
	scheduled, err := f.engine.Reconcile(ctx)
	require.NoError(t, err)
	assert.False(t, scheduled)

	armed, _, _ := f.transport.snapshot()
	assert.Empty(t, armed)
	_, has := f.engine.Pending(ctx)
	assert.False(t, has)
}

func TestPending_RestoredFromStore(t *testing.T) {
	f := newFixture(t, testutil.Items(3), dailyPrefs())
	f.pending.pd = &PendingDelivery{ItemID: "item-01", FireAt: monday.Add(5 * time.Hour), ScheduledAt: monday}

	st := f.engine.Status(context.Background())
	assert.Equal(t, StateScheduled, st.State)
	require.NotNil(t, st.Pending)
	assert.Equal(t, "item-01", st.Pending.ItemID)
}

func TestDeliverNow(t *testing.T) {
	f := newFixture(t, testutil.Items(4), dailyPrefs())
	ctx := context.Background()

	d, err := f.engine.DeliverNow(ctx)
	require.NoError(t, err)
	assert.True(t, d.Recorded)
	assert.Equal(t, d.Item.ID, d.Record.ItemID)
	assert.Equal(t, "for this morning and the rain", d.Hint)

	f.transport.mu.Lock()
	assert.Equal(t, []string{d.Item.ID}, f.transport.delivered)
	f.transport.mu.Unlock()

	next, ok := f.engine.Pending(ctx)
	require.True(t, ok)
	assert.NotEqual(t, d.Item.ID, next.ItemID)
}

func TestDeliverNow_TransportFailureRecordsNothing(t *testing.T) {
	f := newFixture(t, testutil.Items(4), dailyPrefs())
	f.transport.deliverErr = errors.New("offline")

	_, err := f.engine.DeliverNow(context.Background())
	require.Error(t, err)
	assert.True(t, IsTransportError(err))
	assert.Empty(t, f.ledger.History(false))
}

func TestDeliverNow_EmptyCorpus(t *testing.T) {
	f := newFixture(t, nil, dailyPrefs())

	_, err := f.engine.DeliverNow(context.Background())
	require.Error(t, err)
	assert.True(t, IsNoCandidate(err))
}

func TestPreview_HasNoSideEffects(t *testing.T) {
	f := newFixture(t, testutil.Items(4), dailyPrefs())

	pv, ok := f.engine.Preview(context.Background())
	require.True(t, ok)
	assert.NotEmpty(t, pv.Item.ID)
	assert.Equal(t, ambient.Morning, pv.Context.TimeOfDay)
	assert.NotEmpty(t, pv.Shortlist)

	armed, schedules, cancels := f.transport.snapshot()
	assert.Empty(t, armed)
	assert.Zero(t, schedules)
	assert.Zero(t, cancels)
	_, has := f.engine.Pending(context.Background())
	assert.False(t, has)
}

func TestUpdatePreferences_PauseAndResume(t *testing.T) {
	f := newFixture(t, testutil.Items(3), dailyPrefs())
	ctx := context.Background()

	_, _, err := f.engine.ScheduleNext(ctx)
	require.NoError(t, err)

	p, err := f.engine.UpdatePreferences(ctx, func(p prefs.Preferences) prefs.Preferences {
		return p.PauseFor(monday, 7)
	})
	require.NoError(t, err)
	assert.True(t, p.Paused(monday))
	armed, _, _ := f.transport.snapshot()
	assert.Empty(t, armed)
	assert.True(t, f.engine.Status(ctx).Paused)

	_, err = f.engine.UpdatePreferences(ctx, prefs.Preferences.Resume)
	require.NoError(t, err)
	armed, _, _ = f.transport.snapshot()
	assert.Len(t, armed, 1)
	assert.Equal(t, StateScheduled, f.engine.Status(ctx).State)
}

func TestUpdatePreferences_ReplansInsideNewWindow(t *testing.T) {
	f := newFixture(t, testutil.Items(3), dailyPrefs())
	ctx := context.Background()

	_, err := f.engine.UpdatePreferences(ctx, func(p prefs.Preferences) prefs.Preferences {
		return p.SetActiveHours(18, 20)
	})
	require.NoError(t, err)

	pd, ok := f.engine.Pending(ctx)
	require.True(t, ok)
	assert.True(t, pd.FireAt.Hour() >= 18 && pd.FireAt.Hour() < 20)
}

func TestWeatherFailureFallsBackToUnknown(t *testing.T) {
	f := newFixture(t, testutil.Items(3), dailyPrefs())
	f.engine.weather = staticWeather{err: errors.New("timeout")}

	assert.Equal(t, ambient.WeatherUnknown, f.engine.CurrentWeather(context.Background()))
	pd, ok, err := f.engine.ScheduleNext(context.Background())
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "for this morning", pd.Hint)
}

func TestRun_ProcessesEvents(t *testing.T) {
	f := newFixture(t, testutil.Items(3), dailyPrefs())
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- f.engine.Run(ctx) }()

	fired := make(chan transport.Fired, 1)
	go f.engine.Listen(ctx, fired)

	require.True(t, f.engine.Enqueue(ReconcileEvent()))
	require.Eventually(t, func() bool {
		_, ok := f.engine.Pending(context.Background())
		return ok
	}, 2*time.Second, 10*time.Millisecond)

	pd, _ := f.engine.Pending(context.Background())
	fired <- transport.Fired{ItemID: pd.ItemID, FiredAt: monday}
	require.Eventually(t, func() bool {
		return len(f.ledger.History(false)) == 1
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop")
	}
	assert.False(t, f.engine.Enqueue(ReconcileEvent()), "queue closed after Run stops")
}

func TestRun_StopReturnsNil(t *testing.T) {
	f := newFixture(t, testutil.Items(1), dailyPrefs())

	done := make(chan error, 1)
	go func() { done <- f.engine.Run(context.Background()) }()

	f.engine.Stop()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop")
	}
}

func TestRuntimeError(t *testing.T) {
	err := NewTransportError("deliver", "item-01", errors.New("offline"))
	assert.Equal(t, "TRANSPORT_FAILED: deliver failed (item=item-01): offline", err.Error())
	assert.True(t, IsTransportError(err))
	assert.False(t, IsNoCandidate(err))
	assert.ErrorContains(t, errors.Unwrap(err), "offline")

	wrapped := errors.Join(errors.New("outer"), NewNoCandidateError())
	assert.True(t, IsNoCandidate(wrapped))
	assert.False(t, IsPaused(wrapped))
}
