package escalation

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/kneutral-org/escalator/internal/catalog"
)

// Verdict is the outcome of gating an escalation before it is processed.
type Verdict int

const (
	// VerdictProcess lets the escalation run.
	VerdictProcess Verdict = iota
	// VerdictCancel cancels the escalation with a reason.
	VerdictCancel
	// VerdictDelete discards the escalation without notifying anyone.
	VerdictDelete
	// VerdictSkip leaves the escalation untouched until the next cycle.
	VerdictSkip
)

func (v Verdict) String() string {
	switch v {
	case VerdictProcess:
		return "process"
	case VerdictCancel:
		return "cancel"
	case VerdictDelete:
		return "delete"
	case VerdictSkip:
		return "skip"
	default:
		return "unknown"
	}
}

// MaintenanceChecker reports whether a host is inside a maintenance window.
type MaintenanceChecker interface {
	HostInMaintenance(ctx context.Context, host *catalog.Host, at time.Time) (bool, error)
}

// Gate decides whether an escalation must be cancelled, deleted, skipped or processed.
type Gate struct {
	catalog     catalog.Store
	maintenance MaintenanceChecker
	logger      zerolog.Logger
}

// NewGate creates a Gate.
func NewGate(store catalog.Store, maintenance MaintenanceChecker, logger zerolog.Logger) *Gate {
	return &Gate{
		catalog:     store,
		maintenance: maintenance,
		logger:      logger.With().Str("component", "gating").Logger(),
	}
}

// gateState collects what the object checks learned about an escalation.
type gateState struct {
	reason      string
	maintenance bool
	dependent   bool
}

// Check returns the verdict for an escalation. The reason is set only for VerdictCancel.
// Errors are storage failures; the escalation should be left for the next cycle.
func (g *Gate) Check(ctx context.Context, esc *Escalation, action *catalog.Action, event *catalog.Event, now time.Time) (Verdict, string, error) {
	var (
		state gateState
		err   error
	)

	switch {
	case event.Object == catalog.ObjectTrigger:
		triggerID := esc.TriggerID
		if triggerID == 0 {
			triggerID = event.ObjectID
		}
		err = g.checkTrigger(ctx, triggerID, event.Source, now, &state)
	case event.Source == catalog.SourceInternal && (event.Object == catalog.ObjectItem || event.Object == catalog.ObjectLLDRule):
		itemID := esc.ItemID
		if itemID == 0 {
			itemID = event.ObjectID
		}
		err = g.checkItem(ctx, itemID, now, &state)
	}
	if err != nil {
		return VerdictProcess, "", err
	}

	verdict := VerdictProcess
	switch {
	case state.reason != "":
		verdict = VerdictCancel
	case action.EventSource == catalog.SourceTriggers && action.MaintenanceMode == catalog.MaintenancePause && state.maintenance:
		if esc.EscStep == 0 && esc.Recovered() {
			verdict = VerdictDelete
		} else if !esc.Recovered() {
			verdict = VerdictSkip
		} else if state.dependent {
			verdict = VerdictSkip
		}
	case state.dependent:
		verdict = VerdictSkip
	}

	g.logger.Debug().
		Uint64("escalation_id", esc.ID).
		Str("status", esc.Status.String()).
		Str("verdict", verdict.String()).
		Str("reason", state.reason).
		Msg("escalation checked")

	return verdict, state.reason, nil
}

func (g *Gate) checkTrigger(ctx context.Context, triggerID uint64, source catalog.EventSource, now time.Time, state *gateState) error {
	trigger, err := g.catalog.GetTrigger(ctx, triggerID)
	if errors.Is(err, catalog.ErrNotFound) {
		state.reason = fmt.Sprintf("trigger id:%d deleted.", triggerID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("get trigger %d: %w", triggerID, err)
	}
	if trigger.Status == catalog.TriggerDisabled {
		state.reason = fmt.Sprintf("trigger %q disabled.", trigger.Description)
		return nil
	}

	// Internal trigger events carry no dependencies to check.
	if source != catalog.SourceTriggers {
		return nil
	}

	itemIDs := append([]uint64(nil), trigger.ItemIDs...)
	sort.Slice(itemIDs, func(i, j int) bool { return itemIDs[i] < itemIDs[j] })
	for i, itemID := range itemIDs {
		if i > 0 && itemIDs[i-1] == itemID {
			continue
		}
		if err := g.checkItem(ctx, itemID, now, state); err != nil {
			return err
		}
		if state.reason != "" {
			return nil
		}
	}

	state.dependent, err = g.catalog.IsTriggerDependencyActive(ctx, triggerID)
	if err != nil {
		return fmt.Errorf("check dependencies of trigger %d: %w", triggerID, err)
	}
	return nil
}

// checkItem sets a cancellation reason when the item or its host is gone or disabled,
// and raises the maintenance flag when the host is in maintenance.
func (g *Gate) checkItem(ctx context.Context, itemID uint64, now time.Time, state *gateState) error {
	item, err := g.catalog.GetItem(ctx, itemID)
	if errors.Is(err, catalog.ErrNotFound) {
		state.reason = fmt.Sprintf("item id:%d deleted.", itemID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("get item %d: %w", itemID, err)
	}
	if item.Status == catalog.ItemDisabled {
		state.reason = fmt.Sprintf("item %q disabled.", item.Key)
		return nil
	}

	host, err := g.catalog.GetHost(ctx, item.HostID)
	if errors.Is(err, catalog.ErrNotFound) {
		state.reason = fmt.Sprintf("host id:%d deleted.", item.HostID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("get host %d: %w", item.HostID, err)
	}
	if host.Status == catalog.HostNotMonitored {
		state.reason = fmt.Sprintf("host %q disabled.", host.Name)
		return nil
	}

	if g.maintenance == nil || state.maintenance {
		return nil
	}
	state.maintenance, err = g.maintenance.HostInMaintenance(ctx, host, now)
	if err != nil {
		return fmt.Errorf("check maintenance of host %d: %w", host.ID, err)
	}
	return nil
}
