package escalation

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/kneutral-org/escalator/internal/alert"
	"github.com/kneutral-org/escalator/internal/catalog"
	"github.com/kneutral-org/escalator/internal/command"
	"github.com/kneutral-org/escalator/internal/condition"
	"github.com/kneutral-org/escalator/internal/macro"
	"github.com/kneutral-org/escalator/internal/notify"
)

const (
	actionID    = 7
	triggerID   = 100
	itemID      = 500
	hostID      = 10
	problemID   = 1000
	recoveryID  = 1001
	userAlice   = 1
	mediaEmail  = 3
	problemTime = 1700000000
)

var start = time.Unix(problemTime, 0)

// stubMaintenance reports maintenance for the listed hosts.
type stubMaintenance struct {
	mu    sync.Mutex
	hosts map[uint64]bool
	err   error
}

func (m *stubMaintenance) HostInMaintenance(ctx context.Context, host *catalog.Host, at time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return false, m.err
	}
	return m.hosts[host.ID], nil
}

func (m *stubMaintenance) set(hostID uint64, on bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hosts[hostID] = on
}

// failingCatalog fails trigger reads when err is set.
type failingCatalog struct {
	*catalog.MemoryStore
	err error
}

func (c *failingCatalog) GetTrigger(ctx context.Context, id uint64) (*catalog.Trigger, error) {
	if c.err != nil {
		return nil, c.err
	}
	return c.MemoryStore.GetTrigger(ctx, id)
}

type recordingExecutor struct {
	mu   sync.Mutex
	runs []string
}

func (e *recordingExecutor) Run(ctx context.Context, host catalog.Host, script command.Script) *command.Result {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.runs = append(e.runs, host.Name+":"+script.Command)
	return &command.Result{Success: true}
}

// engine wires the escalation components over in-memory stores.
type engine struct {
	catalog     *catalog.MemoryStore
	escalations *MemoryStore
	ledger      *alert.MemoryLedger
	maintenance *stubMaintenance
	executor    *recordingExecutor
	gate        *Gate
	machine     *Machine
	processor   *Processor
}

func newEngine(t *testing.T) *engine {
	t.Helper()

	store := catalog.NewMemoryStore()
	store.PutHost(catalog.Host{ID: hostID, Name: "web-01", GroupIDs: []uint64{2}})
	store.PutItem(catalog.Item{ID: itemID, HostID: hostID, Key: "system.cpu.load", Name: "CPU load"})
	store.PutTrigger(catalog.Trigger{
		ID: triggerID, Description: "CPU high", Priority: catalog.SeverityHigh,
		Value: catalog.TriggerValueProblem, ItemIDs: []uint64{itemID}, HostIDs: []uint64{hostID},
	})
	store.PutEvent(catalog.Event{ID: problemID, Source: catalog.SourceTriggers, Object: catalog.ObjectTrigger, ObjectID: triggerID, Clock: problemTime, Value: 1})
	store.PutEvent(catalog.Event{ID: recoveryID, Source: catalog.SourceTriggers, Object: catalog.ObjectTrigger, ObjectID: triggerID, Clock: problemTime + 600})
	store.PutUser(catalog.User{ID: userAlice, Alias: "alice", Type: catalog.UserTypeUser},
		catalog.Media{MediaTypeID: mediaEmail, SendTo: "alice@example.com", Severity: 0x3f, MediaTypeActive: true})
	store.Grant(userAlice, hostID, catalog.PermRead)
	store.PutAction(catalog.Action{
		ID: actionID, Name: "Notify admins", EventSource: catalog.SourceTriggers, EscPeriod: 60,
		ShortData: "Problem: {TRIGGER.NAME}", LongData: "Step body",
		RecoveryShortData: "Resolved: {TRIGGER.NAME}", RecoveryLongData: "Recovered",
		MaintenanceMode: catalog.MaintenancePause,
	})

	expressions, err := condition.NewExpressionEvaluator(16)
	require.NoError(t, err)
	matcher := condition.NewMatcher(store, condition.NewChecker(expressions, zerolog.Nop()))

	ledger := alert.NewMemoryLedger()
	executor := &recordingExecutor{}
	dispatcher := notify.NewDispatcher(store, ledger, macro.NewSimple(), executor, zerolog.Nop())
	maintenance := &stubMaintenance{hosts: map[uint64]bool{}}
	escalations := NewMemoryStore()

	gate := NewGate(store, maintenance, zerolog.Nop())
	machine := NewMachine(store, matcher, dispatcher, zerolog.Nop())
	return &engine{
		catalog:     store,
		escalations: escalations,
		ledger:      ledger,
		maintenance: maintenance,
		executor:    executor,
		gate:        gate,
		machine:     machine,
		processor:   NewProcessor(escalations, store, gate, machine, zerolog.Nop()),
	}
}

// messageStep adds a default-message problem operation covering steps from..to for alice.
func (e *engine) messageStep(opID uint64, from, to int) {
	e.catalog.PutOperation(catalog.Operation{
		ID: opID, ActionID: actionID, Type: catalog.OperationMessage, EscStepFrom: from, EscStepTo: to,
		Message: &catalog.OpMessage{DefaultMessage: true, MediaTypeID: mediaEmail},
	})
	e.catalog.SetRecipients(opID, userAlice)
}

// recoveryMessage adds a recovery operation notifying everyone already messaged.
func (e *engine) recoveryMessage(opID uint64) {
	e.catalog.PutOperation(catalog.Operation{
		ID: opID, ActionID: actionID, Type: catalog.OperationRecoveryMessage, Recovery: true,
		Message: &catalog.OpMessage{DefaultMessage: true},
	})
}

func (e *engine) event(t *testing.T, id uint64) *catalog.Event {
	t.Helper()
	ev, err := e.catalog.GetEvent(context.Background(), id)
	require.NoError(t, err)
	return ev
}

func (e *engine) action(t *testing.T) *catalog.Action {
	t.Helper()
	a, err := e.catalog.GetAction(context.Background(), actionID)
	require.NoError(t, err)
	return a
}

// run processes every source once at now.
func (e *engine) run(t *testing.T, now time.Time) {
	t.Helper()
	for _, source := range Sources {
		_, err := e.processor.ProcessEscalations(context.Background(), now, Partition{Source: source, Workers: 1})
		require.NoError(t, err)
	}
}

func subjects(alerts []alert.Alert) []string {
	result := make([]string, 0, len(alerts))
	for _, a := range alerts {
		result = append(result, a.Subject)
	}
	return result
}

// sentTo is a message alice already received for the event.
func sentTo(eventID uint64) *alert.Alert {
	return &alert.Alert{
		ActionID: actionID, EventID: eventID, UserID: userAlice, MediaTypeID: mediaEmail,
		SendTo: "alice@example.com", Subject: "Problem: CPU high", EscStep: 1, Type: alert.TypeMessage,
	}
}

var errStorage = errors.New("storage unavailable")
