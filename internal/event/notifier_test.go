package event

import (
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietNotifier() *Notifier {
	return NewNotifier(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestFireOrderAndPayload(t *testing.T) {
	n := quietNotifier()

	var got []string
	n.Subscribe(OperationAdded, func(ev Event) error {
		got = append(got, "first:"+ev.Data.(string))
		return nil
	})
	n.Subscribe(OperationAdded, func(ev Event) error {
		got = append(got, "second:"+ev.Data.(string))
		assert.Equal(t, OperationAdded, ev.Name)
		assert.False(t, ev.Time.IsZero())
		return nil
	})
	n.Subscribe(UndoExecuted, func(Event) error {
		t.Fatal("undo handler must not run")
		return nil
	})

	failed := n.Fire(OperationAdded, "op-1")
	assert.Zero(t, failed)
	assert.Equal(t, []string{"first:op-1", "second:op-1"}, got)
}

func TestHandlerFailuresAreIsolated(t *testing.T) {
	n := quietNotifier()

	reached := false
	n.Subscribe(MemoryWarning, func(Event) error { return errors.New("boom") })
	n.Subscribe(MemoryWarning, func(Event) error { panic("kaboom") })
	n.Subscribe(MemoryWarning, func(Event) error {
		reached = true
		return nil
	})

	var failed int
	require.NotPanics(t, func() { failed = n.Fire(MemoryWarning, nil) })
	assert.Equal(t, 2, failed)
	assert.True(t, reached, "handlers after a failing one still run")

	st := n.Stats()
	assert.Equal(t, uint64(1), st.Fired)
	assert.Equal(t, uint64(1), st.Delivered)
	assert.Equal(t, uint64(2), st.Failures)
	assert.Equal(t, uint64(1), st.Panics)
}

func TestInvokeWrapsHandlerFailure(t *testing.T) {
	n := quietNotifier()
	cause := errors.New("bad handler")

	err := n.invoke(func(Event) error { return cause }, Event{Name: HistoryCleared})
	assert.ErrorIs(t, err, ErrHandlerFailure)
	assert.ErrorIs(t, err, cause)

	err = n.invoke(func(Event) error { panic("x") }, Event{Name: HistoryCleared})
	assert.ErrorIs(t, err, ErrHandlerFailure)
}

func TestUnsubscribe(t *testing.T) {
	n := quietNotifier()

	calls := 0
	sub := n.Subscribe(RedoExecuted, func(Event) error {
		calls++
		return nil
	})
	assert.Equal(t, RedoExecuted, sub.Name())
	assert.Equal(t, 1, n.HandlerCount(RedoExecuted))

	n.Fire(RedoExecuted, nil)
	assert.True(t, n.Unsubscribe(sub))
	assert.False(t, n.Unsubscribe(sub))
	n.Fire(RedoExecuted, nil)

	assert.Equal(t, 1, calls)
	assert.Zero(t, n.HandlerCount(RedoExecuted))
}

func TestHandlerMayUnsubscribeDuringFire(t *testing.T) {
	n := quietNotifier()

	var sub Subscription
	calls := 0
	sub = n.Subscribe(HistoryCleared, func(Event) error {
		calls++
		n.Unsubscribe(sub)
		return nil
	})

	n.Fire(HistoryCleared, nil)
	n.Fire(HistoryCleared, nil)
	assert.Equal(t, 1, calls)
}
