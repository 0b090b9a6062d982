package escalation

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestStatus_String(t *testing.T) {
	assert.Equal(t, "active", StatusActive.String())
	assert.Equal(t, "recovery", StatusRecovery.String())
	assert.Equal(t, "sleep", StatusSleep.String())
	assert.Equal(t, "completed", StatusCompleted.String())
	assert.Equal(t, "unknown(9)", Status(9).String())
}

func TestEscalation_Source(t *testing.T) {
	assert.Equal(t, SourceTrigger, (&Escalation{TriggerID: 1}).Source())
	assert.Equal(t, SourceItem, (&Escalation{ItemID: 1}).Source())
	assert.Equal(t, SourceDefault, (&Escalation{}).Source())
	assert.Equal(t, []string{"trigger", "item", "default"}, []string{
		Sources[0].String(), Sources[1].String(), Sources[2].String(),
	})
}

func TestEscalation_Due(t *testing.T) {
	now := time.Unix(1000, 0)

	assert.True(t, (&Escalation{NextCheck: 0}).Due(now))
	assert.True(t, (&Escalation{NextCheck: 1000}).Due(now))
	assert.False(t, (&Escalation{NextCheck: 1001}).Due(now))
}

func TestEscalation_SameLineage(t *testing.T) {
	e := &Escalation{ID: 1, ActionID: 7, TriggerID: 100}

	assert.True(t, e.SameLineage(&Escalation{ID: 2, ActionID: 7, TriggerID: 100, EventID: 9}))
	assert.False(t, e.SameLineage(&Escalation{ID: 2, ActionID: 8, TriggerID: 100}))
	assert.False(t, e.SameLineage(&Escalation{ID: 2, ActionID: 7, TriggerID: 101}))
	assert.False(t, e.SameLineage(&Escalation{ID: 2, ActionID: 7, ItemID: 100}))
	assert.False(t, e.SameLineage(nil))
}

func TestPartition_Contains(t *testing.T) {
	t.Run("single worker takes the whole source", func(t *testing.T) {
		p := Partition{Source: SourceTrigger, Workers: 1}
		assert.True(t, p.Contains(&Escalation{TriggerID: 5}))
		assert.False(t, p.Contains(&Escalation{ItemID: 5}))
		assert.False(t, p.Contains(&Escalation{ID: 5}))
	})

	t.Run("key by source", func(t *testing.T) {
		e := &Escalation{ID: 4, TriggerID: 7}
		assert.True(t, Partition{Source: SourceTrigger, Workers: 3, Index: 1}.Contains(e))
		assert.False(t, Partition{Source: SourceTrigger, Workers: 3, Index: 0}.Contains(e))

		d := &Escalation{ID: 4}
		assert.True(t, Partition{Source: SourceDefault, Workers: 3, Index: 1}.Contains(d))
	})

	t.Run("partitions are disjoint and complete", func(t *testing.T) {
		const workers = 4
		var rows []*Escalation
		for i := uint64(1); i <= 40; i++ {
			switch i % 3 {
			case 0:
				rows = append(rows, &Escalation{ID: i, TriggerID: i * 7})
			case 1:
				rows = append(rows, &Escalation{ID: i, ItemID: i * 11})
			default:
				rows = append(rows, &Escalation{ID: i})
			}
		}

		for _, e := range rows {
			owners := 0
			for _, source := range Sources {
				for index := 0; index < workers; index++ {
					if (Partition{Source: source, Workers: workers, Index: index}).Contains(e) {
						owners++
					}
				}
			}
			assert.Equal(t, 1, owners, "escalation %d", e.ID)
		}
	})
}

func TestCursor(t *testing.T) {
	rows := []*Escalation{{ID: 1}, {ID: 2}}
	c := NewCursor(rows)

	assert.Nil(t, c.Current())
	assert.True(t, c.Next())
	assert.Equal(t, uint64(1), c.Current().ID)
	assert.Equal(t, uint64(2), c.Peek().ID)

	assert.True(t, c.Next())
	assert.Equal(t, uint64(2), c.Current().ID)
	assert.Nil(t, c.Peek())

	assert.False(t, c.Next())
	assert.Nil(t, c.Current())
	assert.False(t, c.Next())

	assert.False(t, NewCursor(nil).Next())
}
