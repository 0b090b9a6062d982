package escalation

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/kneutral-org/escalator/internal/catalog"
	"github.com/kneutral-org/escalator/internal/logging"
	"github.com/kneutral-org/escalator/internal/notify"
)

// DefaultSleepReschedule is how far a sleeping escalation's next check is pushed out.
const DefaultSleepReschedule = time.Minute

// Dispatcher turns matched operations into ledger entries and command runs.
type Dispatcher interface {
	AddOperationMessages(ctx context.Context, msgs *notify.UserMessages, req *notify.Request, op *catalog.Operation, subject, message string) error
	AddSentUsersMessages(ctx context.Context, msgs *notify.UserMessages, req *notify.Request, subject, message string) error
	Flush(ctx context.Context, msgs *notify.UserMessages, req *notify.Request) error
	ExecuteCommands(ctx context.Context, req *notify.Request, op *catalog.Operation) error
}

// OperationMatcher decides whether an operation's conditions hold for an event.
type OperationMatcher interface {
	Match(ctx context.Context, op *catalog.Operation, event *catalog.Event) (bool, error)
}

// Machine performs the state transitions of a single escalation.
type Machine struct {
	catalog         catalog.Store
	matcher         OperationMatcher
	dispatcher      Dispatcher
	logger          zerolog.Logger
	sleepReschedule time.Duration
}

// MachineOption configures a Machine.
type MachineOption func(*Machine)

// WithSleepReschedule overrides how far a sleeping escalation's next check is pushed out.
func WithSleepReschedule(d time.Duration) MachineOption {
	return func(m *Machine) {
		m.sleepReschedule = d
	}
}

// NewMachine creates a Machine.
func NewMachine(store catalog.Store, matcher OperationMatcher, dispatcher Dispatcher, logger zerolog.Logger, opts ...MachineOption) *Machine {
	m := &Machine{
		catalog:         store,
		matcher:         matcher,
		dispatcher:      dispatcher,
		logger:          logger.With().Str("component", "escalator").Logger(),
		sleepReschedule: DefaultSleepReschedule,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Execute runs the next escalation step. Problem operations whose step range covers the
// new step are dispatched and the escalation is rescheduled, put to sleep or completed.
func (m *Machine) Execute(ctx context.Context, esc *Escalation, action *catalog.Action, event *catalog.Event, now time.Time) error {
	filter := catalog.OperationFilter{}
	if action.EscPeriod != 0 {
		esc.EscStep++
		filter.Step = esc.EscStep
	}

	ops, err := m.catalog.GetOperations(ctx, action.ID, filter)
	if err != nil {
		return fmt.Errorf("get operations of action %d: %w", action.ID, err)
	}

	msgs := notify.NewUserMessages()
	req := &notify.Request{Action: action, Event: event, EscStep: esc.EscStep, Now: now}
	nextPeriod := 0
	operations := false
	var commands []*catalog.Operation

	for _, op := range ops {
		if op.Type == catalog.OperationRecoveryMessage {
			continue
		}
		operations = true

		matched, err := m.matcher.Match(ctx, op, event)
		if err != nil {
			return err
		}
		if !matched {
			m.logger.Debug().Uint64("operation_id", op.ID).Msg("conditions do not match event")
			continue
		}

		if op.EscPeriod != 0 && (nextPeriod == 0 || op.EscPeriod < nextPeriod) {
			nextPeriod = op.EscPeriod
		}

		switch op.Type {
		case catalog.OperationMessage:
			if op.Message == nil {
				continue
			}
			subject, message := op.Message.Subject, op.Message.Message
			if op.Message.DefaultMessage {
				subject, message = action.ShortData, action.LongData
			}
			if err := m.dispatcher.AddOperationMessages(ctx, msgs, req, op, subject, message); err != nil {
				return err
			}
		case catalog.OperationCommand:
			commands = append(commands, op)
		}
	}

	if err := m.dispatcher.Flush(ctx, msgs, req); err != nil {
		return err
	}
	m.runCommands(ctx, esc, req, commands)

	if action.EscPeriod == 0 {
		m.finish(esc, action, now)
		return nil
	}

	if !operations {
		operations, err = m.catalog.HasOperationsAfterStep(ctx, action.ID, esc.EscStep)
		if err != nil {
			return fmt.Errorf("probe operations of action %d: %w", action.ID, err)
		}
	}

	if operations {
		if nextPeriod == 0 {
			nextPeriod = action.EscPeriod
		}
		esc.NextCheck = now.Unix() + int64(nextPeriod)
		return nil
	}

	m.finish(esc, action, now)
	return nil
}

// finish ends the problem phase: the escalation sleeps until recovery when the action
// has recovery operations and completes otherwise.
func (m *Machine) finish(esc *Escalation, action *catalog.Action, now time.Time) {
	if action.HasRecoveryOperations {
		esc.Status = StatusSleep
		m.Sleep(esc, now)
		return
	}
	esc.Status = StatusCompleted
}

// Sleep pushes a sleeping escalation's next check out by the reschedule interval.
func (m *Machine) Sleep(esc *Escalation, now time.Time) {
	esc.NextCheck = now.Add(m.sleepReschedule).Unix()
}

// Recover dispatches the action's recovery operations once and completes the escalation.
// Recovery counts as a single step, so alerts it creates carry step 1.
func (m *Machine) Recover(ctx context.Context, esc *Escalation, action *catalog.Action, event, recoveryEvent *catalog.Event, now time.Time) error {
	esc.EscStep = 1

	ops, err := m.catalog.GetOperations(ctx, action.ID, catalog.OperationFilter{Recovery: true})
	if err != nil {
		return fmt.Errorf("get recovery operations of action %d: %w", action.ID, err)
	}

	msgs := notify.NewUserMessages()
	req := &notify.Request{Action: action, Event: event, RecoveryEvent: recoveryEvent, EscStep: esc.EscStep, Now: now}
	var commands []*catalog.Operation

	for _, op := range ops {
		matched, err := m.matcher.Match(ctx, op, recoveryEvent)
		if err != nil {
			return err
		}
		if !matched {
			continue
		}

		switch op.Type {
		case catalog.OperationMessage:
			if op.Message == nil {
				continue
			}
			subject, message := op.Message.Subject, op.Message.Message
			if op.Message.DefaultMessage {
				subject, message = action.RecoveryShortData, action.RecoveryLongData
			}
			if err := m.dispatcher.AddOperationMessages(ctx, msgs, req, op, subject, message); err != nil {
				return err
			}
		case catalog.OperationRecoveryMessage:
			// without a message row the action's recovery text goes out
			subject, message := action.RecoveryShortData, action.RecoveryLongData
			if op.Message != nil && !op.Message.DefaultMessage {
				subject, message = op.Message.Subject, op.Message.Message
			}
			if err := m.dispatcher.AddSentUsersMessages(ctx, msgs, req, subject, message); err != nil {
				return err
			}
		case catalog.OperationCommand:
			commands = append(commands, op)
		}
	}

	if err := m.dispatcher.Flush(ctx, msgs, req); err != nil {
		return err
	}
	m.runCommands(ctx, esc, req, commands)

	esc.Status = StatusCompleted
	return nil
}

// Cancel completes the escalation. When a step already ran, everyone who was notified
// receives a note with the reason and the action's problem text.
func (m *Machine) Cancel(ctx context.Context, esc *Escalation, action *catalog.Action, event *catalog.Event, reason string, now time.Time) error {
	if esc.EscStep != 0 {
		msgs := notify.NewUserMessages()
		req := &notify.Request{Action: action, Event: event, EscStep: esc.EscStep, Now: now}
		message := fmt.Sprintf("NOTE: Escalation cancelled: %s\n%s", reason, action.LongData)

		if err := m.dispatcher.AddSentUsersMessages(ctx, msgs, req, action.ShortData, message); err != nil {
			return err
		}
		if err := m.dispatcher.Flush(ctx, msgs, req); err != nil {
			return err
		}
	}

	m.logCancel(esc, reason)
	esc.Status = StatusCompleted
	return nil
}

// runCommands executes command operations once a step's messages are recorded.
// Commands cannot be taken back, so failures are logged and the step still counts.
func (m *Machine) runCommands(ctx context.Context, esc *Escalation, req *notify.Request, ops []*catalog.Operation) {
	for _, op := range ops {
		if err := m.dispatcher.ExecuteCommands(ctx, req, op); err != nil {
			logger := logging.EscalationLogger(m.logger, esc.ID, esc.ActionID, esc.EventID, esc.RecoveryEventID, esc.EscStep)
			logger.Error().Err(err).Uint64("operation_id", op.ID).Msg("failed to execute command operation")
		}
	}
}

func (m *Machine) logCancel(esc *Escalation, reason string) {
	logger := logging.EscalationLogger(m.logger, esc.ID, esc.ActionID, esc.EventID, esc.RecoveryEventID, esc.EscStep)
	logger.Warn().Str("reason", reason).Msg("escalation cancelled")
}
