package transport

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/sometimes/internal/corpus"
)

type recordingPresenter struct {
	mu   sync.Mutex
	msgs []Message
	err  error
}

func (p *recordingPresenter) Present(_ context.Context, m Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.msgs = append(p.msgs, m)
	return nil
}

func (p *recordingPresenter) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.msgs)
}

func testItem(id string) corpus.Item {
	return corpus.Item{ID: id, Title: "Title " + id, Author: "Anon", Body: "body"}
}

func TestTimer_FiresAndConfirms(t *testing.T) {
	p := &recordingPresenter{}
	tr := NewTimer(p)
	defer tr.Close()

	ctx := context.Background()
	require.NoError(t, tr.Schedule(ctx, testItem("a"), time.Now().Add(10*time.Millisecond), "for right now"))

	select {
	case f := <-tr.Fired():
		assert.Equal(t, "a", f.ItemID)
		assert.NotEmpty(t, f.ScheduledID)
	case <-time.After(2 * time.Second):
		t.Fatal("timer did not fire")
	}

	require.Equal(t, 1, p.count())
	assert.Equal(t, "for right now", p.msgs[0].Hint)

	pending, err := tr.ListPending(ctx)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestTimer_PastFireAtFiresImmediately(t *testing.T) {
	tr := NewTimer(&recordingPresenter{})
	defer tr.Close()

	require.NoError(t, tr.Schedule(context.Background(), testItem("late"), time.Now().Add(-time.Hour), ""))

	select {
	case f := <-tr.Fired():
		assert.Equal(t, "late", f.ItemID)
	case <-time.After(2 * time.Second):
		t.Fatal("past fire did not run")
	}
}

func TestTimer_CancelAllPending(t *testing.T) {
	p := &recordingPresenter{}
	tr := NewTimer(p)
	defer tr.Close()
	ctx := context.Background()

	require.NoError(t, tr.Schedule(ctx, testItem("a"), time.Now().Add(50*time.Millisecond), ""))
	require.NoError(t, tr.Schedule(ctx, testItem("b"), time.Now().Add(60*time.Millisecond), ""))

	pending, err := tr.ListPending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, "a", pending[0].ItemID, "soonest first")

	require.NoError(t, tr.CancelAllPending(ctx))
	pending, err = tr.ListPending(ctx)
	require.NoError(t, err)
	assert.Empty(t, pending)

	select {
	case f := <-tr.Fired():
		t.Fatalf("cancelled fire delivered %s", f.ItemID)
	case <-time.After(150 * time.Millisecond):
	}
	assert.Equal(t, 0, p.count())
}

func TestTimer_PresentFailureNotConfirmed(t *testing.T) {
	tr := NewTimer(&recordingPresenter{err: errors.New("offline")})
	defer tr.Close()

	require.NoError(t, tr.Schedule(context.Background(), testItem("a"), time.Now(), ""))

	select {
	case f := <-tr.Fired():
		t.Fatalf("failed presentation confirmed %s", f.ItemID)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestTimer_DeliverImmediately(t *testing.T) {
	p := &recordingPresenter{}
	tr := NewTimer(p)
	defer tr.Close()

	require.NoError(t, tr.DeliverImmediately(context.Background(), testItem("now"), "for this evening"))
	assert.Equal(t, 1, p.count())

	select {
	case <-tr.Fired():
		t.Fatal("immediate delivery must not emit a confirmation")
	default:
	}
}

func TestTimer_DeliverImmediatelyError(t *testing.T) {
	tr := NewTimer(&recordingPresenter{err: errors.New("offline")})
	defer tr.Close()

	err := tr.DeliverImmediately(context.Background(), testItem("now"), "")
	assert.Error(t, err)
}

func TestTimer_Closed(t *testing.T) {
	tr := NewTimer(&recordingPresenter{})
	require.NoError(t, tr.Close())
	require.NoError(t, tr.Close())

	ctx := context.Background()
	assert.ErrorIs(t, tr.Schedule(ctx, testItem("a"), time.Now(), ""), ErrClosed)
	assert.ErrorIs(t, tr.DeliverImmediately(ctx, testItem("a"), ""), ErrClosed)
}

func TestWriterPresenter(t *testing.T) {
	var buf bytes.Buffer
	p := NewWriterPresenter(&buf)

	item := corpus.Item{ID: "x", Title: "Ozymandias", Author: "Percy Bysshe Shelley", Year: 1818, Body: "I met a traveller\n"}
	require.NoError(t, p.Present(context.Background(), Message{Item: item, Hint: "for a winter evening"}))

	assert.Equal(t,
		"(for a winter evening)\n\nOzymandias\nPercy Bysshe Shelley, 1818\n\nI met a traveller\n\n",
		buf.String())
}
