// Package escalation drives per-event, per-action escalations through their
// notification steps until the problem recovers or the escalation is cancelled.
package escalation

import (
	"fmt"
	"time"
)

// Status is the lifecycle state of an escalation row.
type Status int

const (
	StatusActive Status = iota
	StatusRecovery
	StatusSleep
	StatusCompleted
)

func (s Status) String() string {
	switch s {
	case StatusActive:
		return "active"
	case StatusRecovery:
		return "recovery"
	case StatusSleep:
		return "sleep"
	case StatusCompleted:
		return "completed"
	default:
		return fmt.Sprintf("unknown(%d)", int(s))
	}
}

// Source selects which escalation rows a processing pass handles.
type Source int

const (
	// SourceTrigger handles rows with a trigger, partitioned by trigger id.
	SourceTrigger Source = iota
	// SourceItem handles rows with an item, partitioned by item id.
	SourceItem
	// SourceDefault handles rows with neither, partitioned by escalation id.
	SourceDefault
)

// Sources lists the sources in the order a worker processes them.
var Sources = []Source{SourceTrigger, SourceItem, SourceDefault}

func (s Source) String() string {
	switch s {
	case SourceTrigger:
		return "trigger"
	case SourceItem:
		return "item"
	case SourceDefault:
		return "default"
	default:
		return fmt.Sprintf("unknown(%d)", int(s))
	}
}

// Escalation is the persistent progress record of one action for one problem event.
// TriggerID and ItemID are zero when unset; at most one of them is nonzero.
type Escalation struct {
	ID              uint64 `json:"id"`
	ActionID        uint64 `json:"action_id"`
	TriggerID       uint64 `json:"trigger_id,omitempty"`
	ItemID          uint64 `json:"item_id,omitempty"`
	EventID         uint64 `json:"event_id"`
	RecoveryEventID uint64 `json:"r_event_id,omitempty"`
	EscStep         int    `json:"esc_step"`
	Status          Status `json:"status"`
	NextCheck       int64  `json:"nextcheck"`
}

// Source returns the source whose pass selects this escalation.
func (e *Escalation) Source() Source {
	switch {
	case e.TriggerID != 0:
		return SourceTrigger
	case e.ItemID != 0:
		return SourceItem
	default:
		return SourceDefault
	}
}

// Recovered reports whether the problem behind the escalation has resolved.
func (e *Escalation) Recovered() bool {
	return e.RecoveryEventID != 0
}

// Due reports whether the escalation's next check time has been reached.
func (e *Escalation) Due(now time.Time) bool {
	return e.NextCheck <= now.Unix()
}

// SameLineage reports whether both rows escalate the same action for the same trigger or item.
func (e *Escalation) SameLineage(other *Escalation) bool {
	return other != nil &&
		e.ActionID == other.ActionID &&
		e.TriggerID == other.TriggerID &&
		e.ItemID == other.ItemID
}

// Partition identifies the rows one worker handles for one source.
type Partition struct {
	Source  Source
	Workers int
	Index   int
}

// Contains reports whether the escalation belongs to the partition.
func (p Partition) Contains(e *Escalation) bool {
	if e.Source() != p.Source {
		return false
	}
	if p.Workers <= 1 {
		return true
	}
	return p.key(e)%uint64(p.Workers) == uint64(p.Index)
}

func (p Partition) key(e *Escalation) uint64 {
	switch p.Source {
	case SourceTrigger:
		return e.TriggerID
	case SourceItem:
		return e.ItemID
	default:
		return e.ID
	}
}
