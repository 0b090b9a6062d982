package notify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/kneutral-org/escalator/internal/alert"
	"github.com/kneutral-org/escalator/internal/catalog"
	"github.com/kneutral-org/escalator/internal/command"
	"github.com/kneutral-org/escalator/internal/macro"
	"github.com/kneutral-org/escalator/internal/metrics"
)

// Request identifies the escalation step that notifications and commands belong to.
type Request struct {
	Action        *catalog.Action
	Event         *catalog.Event
	RecoveryEvent *catalog.Event
	EscStep       int
	Now           time.Time
}

func (r *Request) recoveryEventID() uint64 {
	if r.RecoveryEvent == nil {
		return 0
	}
	return r.RecoveryEvent.ID
}

// Dispatcher resolves recipients and command targets for matched operations and
// records the outcome in the alert ledger.
type Dispatcher struct {
	store      catalog.Store
	ledger     alert.Ledger
	macros     macro.Substituter
	executor   command.Executor
	logger     zerolog.Logger
	maxRetries int
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithMaxRetries sets the retry count recorded on undeliverable alerts.
func WithMaxRetries(n int) Option {
	return func(d *Dispatcher) {
		d.maxRetries = n
	}
}

// NewDispatcher creates a Dispatcher.
func NewDispatcher(store catalog.Store, ledger alert.Ledger, macros macro.Substituter, executor command.Executor, logger zerolog.Logger, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		store:      store,
		ledger:     ledger,
		macros:     macros,
		executor:   executor,
		logger:     logger.With().Str("component", "dispatcher").Logger(),
		maxRetries: alert.MaxRetries,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// AddOperationMessages buffers subject and message for every permitted recipient of a message operation.
func (d *Dispatcher) AddOperationMessages(ctx context.Context, msgs *UserMessages, req *Request, op *catalog.Operation, subject, message string) error {
	userIDs, err := d.store.ResolveRecipients(ctx, op.ID)
	if err != nil {
		return fmt.Errorf("resolve recipients of operation %d: %w", op.ID, err)
	}

	var mediaTypeID uint64
	if op.Message != nil {
		mediaTypeID = op.Message.MediaTypeID
	}

	for _, userID := range userIDs {
		if err := d.addUserMessage(ctx, msgs, req, userID, mediaTypeID, subject, message); err != nil {
			return err
		}
	}
	return nil
}

// AddSentUsersMessages buffers subject and message for every permitted recipient that was
// already messaged about the escalation's events.
func (d *Dispatcher) AddSentUsersMessages(ctx context.Context, msgs *UserMessages, req *Request, subject, message string) error {
	recipients, err := d.ledger.SentRecipients(ctx, req.Action.ID, req.Event.ID, req.recoveryEventID())
	if err != nil {
		return fmt.Errorf("load sent recipients: %w", err)
	}

	for _, r := range recipients {
		if err := d.addUserMessage(ctx, msgs, req, r.UserID, r.MediaTypeID, subject, message); err != nil {
			return err
		}
	}
	return nil
}

func (d *Dispatcher) addUserMessage(ctx context.Context, msgs *UserMessages, req *Request, userID, mediaTypeID uint64, subject, message string) error {
	user, err := d.store.GetUser(ctx, userID)
	if errors.Is(err, catalog.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("get user %d: %w", userID, err)
	}

	ok, err := d.permitted(ctx, user, req.Event)
	if err != nil {
		return err
	}
	if !ok {
		d.logger.Debug().Uint64("user_id", userID).Uint64("event_id", req.Event.ID).Msg("recipient lacks permission")
		return nil
	}

	msgs.Add(userID, mediaTypeID,
		d.macros.Substitute(subject, req.Event, req.RecoveryEvent, user),
		d.macros.Substitute(message, req.Event, req.RecoveryEvent, user))
	return nil
}

// Flush writes one ledger entry per buffered message and matching user media, then empties msgs.
func (d *Dispatcher) Flush(ctx context.Context, msgs *UserMessages, req *Request) error {
	if msgs.Len() == 0 {
		return nil
	}

	var alerts []*alert.Alert
	for _, m := range msgs.Entries() {
		entries, err := d.messageAlerts(ctx, req, m)
		if err != nil {
			return err
		}
		alerts = append(alerts, entries...)
	}
	msgs.Reset()

	if len(alerts) == 0 {
		return nil
	}
	if err := d.ledger.Insert(ctx, alerts...); err != nil {
		return fmt.Errorf("record message alerts: %w", err)
	}
	for _, a := range alerts {
		metrics.RecordAlertQueued(a.Type.String(), a.Status.String())
	}
	return nil
}

func (d *Dispatcher) messageAlerts(ctx context.Context, req *Request, m UserMessage) ([]*alert.Alert, error) {
	media, err := d.store.GetUserMedia(ctx, m.UserID, m.MediaTypeID)
	if err != nil {
		return nil, fmt.Errorf("get media of user %d: %w", m.UserID, err)
	}

	base := alert.Alert{
		ActionID:        req.Action.ID,
		EventID:         req.Event.ID,
		RecoveryEventID: req.recoveryEventID(),
		UserID:          m.UserID,
		Clock:           req.Now.Unix(),
		Subject:         m.Subject,
		Message:         m.Message,
		EscStep:         req.EscStep,
		Type:            alert.TypeMessage,
	}

	if len(media) == 0 {
		name := fmt.Sprintf("id:%d", m.UserID)
		if user, err := d.store.GetUser(ctx, m.UserID); err == nil {
			name = user.DisplayName()
		}
		failed := base
		failed.Status = alert.StatusFailed
		failed.Error = fmt.Sprintf("No media defined for user %q", name)
		failed.Retries = d.maxRetries
		return []*alert.Alert{&failed}, nil
	}

	severity := req.Event.Priority()
	result := make([]*alert.Alert, 0, len(media))
	for _, md := range media {
		if !md.AcceptsSeverity(severity) {
			continue
		}
		active, err := InPeriod(md.Period, req.Now)
		if err != nil {
			d.logger.Warn().Err(err).Uint64("user_id", m.UserID).Uint64("media_type_id", md.MediaTypeID).Msg("invalid media period")
			continue
		}
		if !active {
			continue
		}

		a := base
		a.MediaTypeID = md.MediaTypeID
		a.SendTo = md.SendTo
		a.Status = alert.StatusNotSent
		if !md.MediaTypeActive {
			a.Status = alert.StatusFailed
			a.Error = "Media type disabled"
		}
		result = append(result, &a)
	}
	return result, nil
}

// ExecuteCommands runs a command operation against each of its target hosts once and records the outcomes.
func (d *Dispatcher) ExecuteCommands(ctx context.Context, req *Request, op *catalog.Operation) error {
	if op.Command == nil {
		return nil
	}

	targets, err := d.store.GetCommandTargets(ctx, op.ID)
	if err != nil {
		return fmt.Errorf("get command targets of operation %d: %w", op.ID, err)
	}

	text := d.macros.Substitute(op.Command.Command, req.Event, req.RecoveryEvent, nil)
	script := command.ScriptFromOperation(op.Command, text)

	executed := make(map[uint64]bool)
	alerts := make([]*alert.Alert, 0, len(targets))
	for _, target := range targets {
		host := catalog.Host{ID: target.HostID, Name: target.HostName}
		var failure error

		if !script.RunsOnServer() {
			if target.HostID == 0 {
				resolved, err := d.store.ResolveEventHost(ctx, req.Event)
				switch {
				case err == nil:
					host = *resolved
				case isHostResolutionError(err):
					failure = err
				default:
					return fmt.Errorf("resolve current host: %w", err)
				}
			}
			if failure == nil {
				if executed[host.ID] {
					continue
				}
				executed[host.ID] = true
			}
		}

		a := &alert.Alert{
			ActionID:        req.Action.ID,
			EventID:         req.Event.ID,
			RecoveryEventID: req.recoveryEventID(),
			Clock:           req.Now.Unix(),
			Message:         host.Name + ":" + text,
			EscStep:         req.EscStep,
			Type:            alert.TypeCommand,
			Status:          alert.StatusSent,
		}
		if failure == nil {
			res := d.executor.Run(ctx, host, script)
			if !res.Success {
				failure = res.Error
				if failure == nil {
					failure = errors.New("command failed")
				}
			}
		}
		if failure != nil {
			a.Status = alert.StatusFailed
			a.Error = failure.Error()
		}
		alerts = append(alerts, a)
	}

	if len(alerts) == 0 {
		return nil
	}
	if err := d.ledger.Insert(ctx, alerts...); err != nil {
		return fmt.Errorf("record command alerts: %w", err)
	}
	for _, a := range alerts {
		metrics.RecordAlertQueued(a.Type.String(), a.Status.String())
	}
	return nil
}

func isHostResolutionError(err error) bool {
	return errors.Is(err, catalog.ErrHostNotFound) ||
		errors.Is(err, catalog.ErrTooManyTriggerHosts) ||
		errors.Is(err, catalog.ErrTooManyIPHosts) ||
		errors.Is(err, catalog.ErrUnsupportedSource)
}
