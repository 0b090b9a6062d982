package alert

import (
	"context"
	"sort"
	"sync"
)

// MemoryLedger is an in-memory Ledger for tests and development.
type MemoryLedger struct {
	mu     sync.RWMutex
	nextID uint64
	alerts []*Alert
}

// NewMemoryLedger creates an empty ledger.
func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{nextID: 1}
}

// Insert appends alerts to the ledger.
func (l *MemoryLedger) Insert(ctx context.Context, alerts ...*Alert) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	for _, a := range alerts {
		a.ID = l.nextID
		l.nextID++
		stored := *a
		l.alerts = append(l.alerts, &stored)
	}
	return nil
}

// SentRecipients returns the distinct recipients of message alerts for the action and events.
func (l *MemoryLedger) SentRecipients(ctx context.Context, actionID uint64, eventIDs ...uint64) ([]Recipient, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	events := make(map[uint64]bool, len(eventIDs))
	for _, id := range eventIDs {
		if id != 0 {
			events[id] = true
		}
	}

	seen := make(map[Recipient]bool)
	result := make([]Recipient, 0)
	for _, a := range l.alerts {
		if a.ActionID != actionID || !events[a.EventID] || a.Type != TypeMessage || a.MediaTypeID == 0 {
			continue
		}
		r := Recipient{UserID: a.UserID, MediaTypeID: a.MediaTypeID}
		if !seen[r] {
			seen[r] = true
			result = append(result, r)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].UserID != result[j].UserID {
			return result[i].UserID < result[j].UserID
		}
		return result[i].MediaTypeID < result[j].MediaTypeID
	})
	return result, nil
}

// All returns a copy of every recorded alert in insertion order.
func (l *MemoryLedger) All() []Alert {
	l.mu.RLock()
	defer l.mu.RUnlock()

	result := make([]Alert, len(l.alerts))
	for i, a := range l.alerts {
		result[i] = *a
	}
	return result
}

// Len returns the number of recorded alerts.
func (l *MemoryLedger) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.alerts)
}

var _ Ledger = (*MemoryLedger)(nil)
