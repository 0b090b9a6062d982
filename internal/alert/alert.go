// Package alert provides the append-only alert ledger written by the escalation engine.
package alert

import (
	"context"
	"fmt"
)

// MaxRetries is the retry count recorded on alerts that can never be delivered.
const MaxRetries = 3

// Status is the delivery state of an alert.
type Status int

const (
	StatusNotSent Status = iota
	StatusSent
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusNotSent:
		return "not_sent"
	case StatusSent:
		return "sent"
	case StatusFailed:
		return "failed"
	default:
		return fmt.Sprintf("unknown(%d)", int(s))
	}
}

// Type distinguishes message alerts from command alerts.
type Type int

const (
	TypeMessage Type = iota
	TypeCommand
)

func (t Type) String() string {
	if t == TypeCommand {
		return "command"
	}
	return "message"
}

// Alert is one ledger row.
type Alert struct {
	ID              uint64 `json:"id"`
	ActionID        uint64 `json:"action_id"`
	EventID         uint64 `json:"event_id"`
	RecoveryEventID uint64 `json:"r_event_id,omitempty"`
	UserID          uint64 `json:"user_id,omitempty"`
	Clock           int64  `json:"clock"`
	MediaTypeID     uint64 `json:"media_type_id,omitempty"`
	SendTo          string `json:"send_to,omitempty"`
	Subject         string `json:"subject,omitempty"`
	Message         string `json:"message,omitempty"`
	Status          Status `json:"status"`
	Error           string `json:"error,omitempty"`
	EscStep         int    `json:"esc_step"`
	Type            Type   `json:"type"`
	Retries         int    `json:"retries,omitempty"`
}

// Recipient is a (user, media type) pair that already received a message.
type Recipient struct {
	UserID      uint64
	MediaTypeID uint64
}

// Ledger records alerts and answers which recipients were already messaged.
type Ledger interface {
	// Insert appends alerts to the ledger, assigning IDs.
	Insert(ctx context.Context, alerts ...*Alert) error

	// SentRecipients returns the distinct recipients of message alerts for the action
	// and any of the given events.
	SentRecipients(ctx context.Context, actionID uint64, eventIDs ...uint64) ([]Recipient, error)
}
