package escalation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/kneutral-org/escalator/internal/catalog"
	"github.com/kneutral-org/escalator/internal/logging"
	"github.com/kneutral-org/escalator/internal/metrics"
)

// Outcomes recorded per processed escalation.
const (
	outcomeExecuted  = "executed"
	outcomeRecovered = "recovered"
	outcomeCancelled = "cancelled"
	outcomeDeleted   = "deleted"
	outcomeSkipped   = "skipped"
	outcomeSlept     = "slept"
)

// Result summarizes one processing pass over a partition.
type Result struct {
	// Purged is the number of deleted escalations.
	Purged int
	// Updated is the number of escalations with changed columns.
	Updated int
	// NextCheck is the earliest pending next check seen, or zero when there is none.
	NextCheck int64
}

func (r *Result) fold(nextCheck int64) {
	if r.NextCheck == 0 || nextCheck < r.NextCheck {
		r.NextCheck = nextCheck
	}
}

// Processor runs one pass over a partition of the escalations table.
type Processor struct {
	store   Store
	catalog catalog.Store
	gate    *Gate
	machine *Machine
	logger  zerolog.Logger
}

// NewProcessor creates a Processor.
func NewProcessor(store Store, catalogStore catalog.Store, gate *Gate, machine *Machine, logger zerolog.Logger) *Processor {
	return &Processor{
		store:   store,
		catalog: catalogStore,
		gate:    gate,
		machine: machine,
		logger:  logger.With().Str("component", "escalator").Logger(),
	}
}

// ProcessEscalations processes every escalation of the partition and persists the
// resulting changes in one transaction. Rows of the same action and trigger or item
// are merged: a row followed by a recovered one adopts its recovery event, and a row
// shadowed by a newer one is left alone while it is not due or sleeping.
func (p *Processor) ProcessEscalations(ctx context.Context, now time.Time, part Partition) (*Result, error) {
	start := time.Now()
	source := part.Source.String()
	defer func() {
		metrics.RecordCycleDuration(source, time.Since(start).Seconds())
	}()

	rows, err := p.store.Select(ctx, part)
	if err != nil {
		metrics.RecordCycleError(source)
		return nil, err
	}

	result := &Result{}
	diffs := NewDiffSet()
	cursor := NewCursor(rows)

	for cursor.Next() {
		esc := cursor.Current()
		before := snapshot(esc)

		if esc.Status == StatusCompleted {
			diffs.Delete(esc.ID)
			metrics.RecordEscalationProcessed(source, outcomeDeleted)
			continue
		}

		if next := cursor.Peek(); esc.SameLineage(next) {
			if next.Recovered() && !esc.Recovered() {
				esc.RecoveryEventID = next.RecoveryEventID
				esc.Status = StatusRecovery
			} else if !esc.Due(now) || esc.Status == StatusSleep {
				metrics.RecordEscalationProcessed(source, outcomeSkipped)
				continue
			}
		}

		if !esc.Recovered() && !esc.Due(now) {
			result.fold(esc.NextCheck)
			continue
		}

		p.process(ctx, esc, before, now, diffs, result)
	}

	if diffs.Empty() {
		return result, nil
	}

	updates, deletes := diffs.Updates(), diffs.Deletes()
	if err := p.store.Apply(ctx, updates, deletes); err != nil {
		metrics.RecordCycleError(source)
		return nil, fmt.Errorf("persist %s escalations: %w", source, err)
	}

	result.Updated = len(updates)
	result.Purged = len(deletes)
	metrics.RecordEscalationsPurged(source, result.Purged)

	p.logger.Debug().
		Str("source", source).
		Int("selected", len(rows)).
		Int("updated", result.Updated).
		Int("purged", result.Purged).
		Msg("escalations processed")

	return result, nil
}

// process handles one escalation that survived the merge and due checks. Storage
// read failures leave the escalation untouched for the next cycle.
func (p *Processor) process(ctx context.Context, esc *Escalation, before Update, now time.Time, diffs *DiffSet, result *Result) {
	source := esc.Source().String()
	logger := logging.EscalationLogger(p.logger, esc.ID, esc.ActionID, esc.EventID, esc.RecoveryEventID, esc.EscStep)

	action, err := p.catalog.GetAction(ctx, esc.ActionID)
	if errors.Is(err, catalog.ErrNotFound) {
		p.machine.logCancel(esc, fmt.Sprintf("action id:%d deleted", esc.ActionID))
		diffs.Delete(esc.ID)
		metrics.RecordEscalationProcessed(source, outcomeCancelled)
		return
	}
	if err != nil {
		logger.Error().Err(err).Msg("failed to load action")
		return
	}

	event, err := p.catalog.GetEvent(ctx, esc.EventID)
	if errors.Is(err, catalog.ErrNotFound) {
		p.machine.logCancel(esc, fmt.Sprintf("event id:%d deleted.", esc.EventID))
		diffs.Delete(esc.ID)
		metrics.RecordEscalationProcessed(source, outcomeCancelled)
		return
	}
	if err != nil {
		logger.Error().Err(err).Msg("failed to load event")
		return
	}

	var reason string
	if action.Status != catalog.ActionEnabled {
		reason = fmt.Sprintf("action '%s' disabled.", action.Name)
	}

	var recoveryEvent *catalog.Event
	if reason == "" && esc.Recovered() {
		recoveryEvent, err = p.catalog.GetEvent(ctx, esc.RecoveryEventID)
		if errors.Is(err, catalog.ErrNotFound) {
			reason = fmt.Sprintf("event id:%d deleted.", esc.RecoveryEventID)
		} else if err != nil {
			logger.Error().Err(err).Msg("failed to load recovery event")
			return
		}
	}

	verdict := VerdictCancel
	if reason == "" {
		verdict, reason, err = p.gate.Check(ctx, esc, action, event, now)
		if err != nil {
			logger.Error().Err(err).Msg("failed to check escalation")
			return
		}
	}

	switch verdict {
	case VerdictCancel:
		if err := p.machine.Cancel(ctx, esc, action, event, reason, now); err != nil {
			logger.Error().Err(err).Msg("failed to cancel escalation")
			return
		}
		diffs.Delete(esc.ID)
		metrics.RecordEscalationProcessed(source, outcomeCancelled)
		return
	case VerdictDelete:
		diffs.Delete(esc.ID)
		metrics.RecordEscalationProcessed(source, outcomeDeleted)
		return
	case VerdictSkip:
		metrics.RecordEscalationProcessed(source, outcomeSkipped)
		return
	}

	var outcome string
	switch {
	case esc.Recovered():
		err = p.machine.Recover(ctx, esc, action, event, recoveryEvent, now)
		outcome = outcomeRecovered
	case esc.Status == StatusActive:
		err = p.machine.Execute(ctx, esc, action, event, now)
		outcome = outcomeExecuted
	case esc.Status == StatusSleep:
		p.machine.Sleep(esc, now)
		outcome = outcomeSlept
	default:
		logger.Warn().Str("status", esc.Status.String()).Msg("unexpected escalation status")
		return
	}
	if err != nil {
		logger.Error().Err(err).Str("outcome", outcome).Msg("failed to process escalation")
		return
	}
	metrics.RecordEscalationProcessed(source, outcome)

	update := before
	update.track(esc)
	diffs.Record(update)
	if esc.Status != StatusCompleted && update.Changed.Has(FieldNextCheck) {
		result.fold(esc.NextCheck)
	}
}
