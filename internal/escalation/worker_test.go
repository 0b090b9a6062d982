package escalation

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/kneutral-org/escalator/internal/catalog"
)

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestWorker_RunCycle(t *testing.T) {
	ctx := context.Background()

	t.Run("sleeps a full interval when nothing is pending", func(t *testing.T) {
		e := newEngine(t)
		w := NewWorker(e.processor, 1, 0, 0, zerolog.Nop(), WithClock(fixedClock(start)))

		assert.Equal(t, start.Add(DefaultInterval), w.RunCycle(ctx))
	})

	t.Run("wakes early for a pending escalation", func(t *testing.T) {
		e := newEngine(t)
		e.messageStep(50, 1, 0)
		e.escalations.Put(Escalation{ActionID: actionID, TriggerID: triggerID, EventID: problemID, EscStep: 1, NextCheck: start.Unix() + 1})
		w := NewWorker(e.processor, 1, 0, 0, zerolog.Nop(), WithClock(fixedClock(start)))

		assert.Equal(t, start.Add(time.Second), w.RunCycle(ctx))
	})

	t.Run("processes every source", func(t *testing.T) {
		e := newEngine(t)
		e.messageStep(50, 1, 0)
		e.catalog.PutEvent(catalog.Event{ID: 3001, Source: catalog.SourceInternal, Object: catalog.ObjectItem, ObjectID: itemID})
		e.escalations.Put(Escalation{ActionID: actionID, TriggerID: triggerID, EventID: problemID})
		item := e.escalations.Put(Escalation{ActionID: actionID, ItemID: itemID, EventID: 3001})
		w := NewWorker(e.processor, 1, 0, time.Minute, zerolog.Nop(), WithClock(fixedClock(start)))

		wake := w.RunCycle(ctx)
		assert.Equal(t, start.Add(time.Minute), wake)

		esc, err := e.escalations.Get(item)
		require.NoError(t, err)
		assert.Equal(t, 1, esc.EscStep)
	})

	t.Run("only owned partitions are processed", func(t *testing.T) {
		e := newEngine(t)
		e.messageStep(50, 1, 0)
		id := e.escalations.Put(Escalation{ActionID: actionID, TriggerID: triggerID, EventID: problemID})
		w := NewWorker(e.processor, 3, int(triggerID%3)+1, 0, zerolog.Nop(), WithClock(fixedClock(start)))

		w.RunCycle(ctx)

		esc, err := e.escalations.Get(id)
		require.NoError(t, err)
		assert.Zero(t, esc.EscStep)
	})
}

type staticLease bool

func (l staticLease) Held() bool { return bool(l) }

func TestWorker_Lease(t *testing.T) {
	ctx := context.Background()

	for _, held := range []bool{true, false} {
		e := newEngine(t)
		e.messageStep(50, 1, 0)
		id := e.escalations.Put(Escalation{ActionID: actionID, TriggerID: triggerID, EventID: problemID})
		w := NewWorker(e.processor, 1, 0, time.Minute, zerolog.Nop(), WithClock(fixedClock(start)), WithLease(staticLease(held)))

		assert.Equal(t, start.Add(time.Minute), w.RunCycle(ctx))

		esc, err := e.escalations.Get(id)
		require.NoError(t, err)
		if held {
			assert.Equal(t, 1, esc.EscStep, "held lease processes the partition")
		} else {
			assert.Zero(t, esc.EscStep, "unheld lease skips the partition")
		}
	}
}

func TestWorker_RunStopsOnContext(t *testing.T) {
	defer goleak.VerifyNone(t)

	e := newEngine(t)
	w := NewWorker(e.processor, 1, 0, time.Hour, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("worker did not stop")
	}
}
