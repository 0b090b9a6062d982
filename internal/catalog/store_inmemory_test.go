package catalog

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore_GetAction(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	t.Run("not found", func(t *testing.T) {
		_, err := store.GetAction(ctx, 1)
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("derives recovery operations", func(t *testing.T) {
		store.PutAction(Action{ID: 1, Name: "Report problems"})
		a, err := store.GetAction(ctx, 1)
		require.NoError(t, err)
		assert.False(t, a.HasRecoveryOperations)

		store.PutOperation(Operation{ID: 10, ActionID: 1, Type: OperationRecoveryMessage, Recovery: true})
		a, err = store.GetAction(ctx, 1)
		require.NoError(t, err)
		assert.True(t, a.HasRecoveryOperations)
	})
}

func TestMemoryStore_GetOperations(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	store.PutOperation(Operation{ID: 3, ActionID: 1, EscStepFrom: 1, EscStepTo: 1})
	store.PutOperation(Operation{ID: 1, ActionID: 1, EscStepFrom: 1, EscStepTo: 0})
	store.PutOperation(Operation{ID: 2, ActionID: 1, EscStepFrom: 3, EscStepTo: 5})
	store.PutOperation(Operation{ID: 4, ActionID: 1, Recovery: true})

	tests := []struct {
		name   string
		filter OperationFilter
		want   []uint64
	}{
		{"all problem operations", OperationFilter{}, []uint64{1, 2, 3}},
		{"step one", OperationFilter{Step: 1}, []uint64{1, 3}},
		{"step four", OperationFilter{Step: 4}, []uint64{1, 2}},
		{"step six", OperationFilter{Step: 6}, []uint64{1}},
		{"recovery", OperationFilter{Recovery: true}, []uint64{4}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ops, err := store.GetOperations(ctx, 1, tt.filter)
			require.NoError(t, err)
			ids := make([]uint64, 0, len(ops))
			for _, op := range ops {
				ids = append(ids, op.ID)
			}
			assert.Equal(t, tt.want, ids)
		})
	}

	t.Run("probe future steps", func(t *testing.T) {
		ok, err := store.HasOperationsAfterStep(ctx, 1, 2)
		require.NoError(t, err)
		assert.True(t, ok)

		ok, err = store.HasOperationsAfterStep(ctx, 1, 3)
		require.NoError(t, err)
		assert.False(t, ok)
	})
}

func TestMemoryStore_GetConditionsSortedByType(t *testing.T) {
	store := NewMemoryStore()
	store.PutOperation(Operation{ID: 1, ActionID: 1},
		Condition{Type: ConditionTag, Value: "b"},
		Condition{Type: ConditionHostGroup, Value: "1"},
		Condition{Type: ConditionTag, Value: "a"},
	)

	conds, err := store.GetConditions(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, conds, 3)
	assert.Equal(t, ConditionHostGroup, conds[0].Type)
	assert.Equal(t, "b", conds[1].Value)
	assert.Equal(t, "a", conds[2].Value)
}

func TestMemoryStore_IsTriggerDependencyActive(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	store.PutTrigger(Trigger{ID: 1})
	store.PutTrigger(Trigger{ID: 2, Value: TriggerValueOK})
	store.PutTrigger(Trigger{ID: 3, Value: TriggerValueProblem})
	store.AddDependency(1, 2)

	active, err := store.IsTriggerDependencyActive(ctx, 1)
	require.NoError(t, err)
	assert.False(t, active)

	store.AddDependency(2, 3)
	active, err = store.IsTriggerDependencyActive(ctx, 1)
	require.NoError(t, err)
	assert.True(t, active)

	store.PutTrigger(Trigger{ID: 3, Value: TriggerValueProblem, Status: TriggerDisabled})
	active, err = store.IsTriggerDependencyActive(ctx, 1)
	require.NoError(t, err)
	assert.False(t, active)
}

func TestMemoryStore_ResolveEventHost(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	store.PutHost(Host{ID: 1, Name: "web-1"})
	store.PutHost(Host{ID: 2, Name: "web-2"})
	store.PutTrigger(Trigger{ID: 10, HostIDs: []uint64{1}})
	store.PutTrigger(Trigger{ID: 11, HostIDs: []uint64{1, 2}})
	store.SetEventHosts(200, 1, 2)

	tests := []struct {
		name    string
		event   Event
		want    uint64
		wantErr error
	}{
		{"single trigger host", Event{Source: SourceTriggers, ObjectID: 10}, 1, nil},
		{"ambiguous trigger", Event{Source: SourceTriggers, ObjectID: 11}, 0, ErrTooManyTriggerHosts},
		{"ambiguous discovery", Event{ID: 200, Source: SourceDiscovery}, 0, ErrTooManyIPHosts},
		{"unknown autoregistration", Event{ID: 201, Source: SourceAutoRegistration}, 0, ErrHostNotFound},
		{"internal", Event{Source: SourceInternal}, 0, ErrUnsupportedSource},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, err := store.ResolveEventHost(ctx, &tt.event)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, h.ID)
		})
	}

	_, err := store.ResolveEventHost(ctx, &Event{Source: SourceInternal})
	assert.EqualError(t, err, "Unsupported event source [3]")
}

func TestMemoryStore_GetEventFillsHostContext(t *testing.T) {
	store := NewMemoryStore()
	store.PutHost(Host{ID: 1, Name: "db-1", GroupIDs: []uint64{7, 8}})
	store.PutTrigger(Trigger{ID: 10, Priority: SeverityHigh, HostIDs: []uint64{1}})
	store.PutEvent(Event{ID: 100, Object: ObjectTrigger, ObjectID: 10})

	e, err := store.GetEvent(context.Background(), 100)
	require.NoError(t, err)
	require.NotNil(t, e.Trigger)
	assert.Equal(t, SeverityHigh, e.Priority())
	assert.Equal(t, []uint64{1}, e.HostIDs)
	assert.Equal(t, []uint64{7, 8}, e.HostGroupIDs)
}

func TestUser_DisplayName(t *testing.T) {
	assert.Equal(t, "admin (Zabbix Administrator)", (&User{Alias: "admin", Name: "Zabbix", Surname: "Administrator"}).DisplayName())
	assert.Equal(t, "guest", (&User{Alias: "guest"}).DisplayName())
	assert.Equal(t, "Jane", (&User{Name: "Jane"}).DisplayName())
}

func TestMedia_AcceptsSeverity(t *testing.T) {
	m := Media{Severity: 1<<SeverityHigh | 1<<SeverityDisaster}
	assert.True(t, m.AcceptsSeverity(SeverityHigh))
	assert.False(t, m.AcceptsSeverity(SeverityWarning))
}
