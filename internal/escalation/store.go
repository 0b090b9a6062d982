package escalation

import (
	"context"
	"errors"
	"sort"
	"sync"
)

// ErrNotFound is returned when an escalation does not exist.
var ErrNotFound = errors.New("escalation not found")

// Store persists escalation rows.
type Store interface {
	// Select returns the escalations of a partition ordered by action, trigger, item and id.
	Select(ctx context.Context, p Partition) ([]*Escalation, error)

	// Apply persists updates and deletions in a single transaction.
	Apply(ctx context.Context, updates []Update, deletes []uint64) error
}

// MemoryStore is an in-memory implementation of Store for tests and development.
type MemoryStore struct {
	mu     sync.RWMutex
	rows   map[uint64]*Escalation
	nextID uint64
}

// NewMemoryStore creates an empty in-memory escalation store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		rows:   make(map[uint64]*Escalation),
		nextID: 1,
	}
}

// Put stores an escalation, assigning an id when it has none.
func (s *MemoryStore) Put(e Escalation) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	if e.ID == 0 {
		e.ID = s.nextID
	}
	if e.ID >= s.nextID {
		s.nextID = e.ID + 1
	}
	s.rows[e.ID] = &e
	return e.ID
}

// Get returns a copy of an escalation.
func (s *MemoryStore) Get(id uint64) (Escalation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.rows[id]
	if !ok {
		return Escalation{}, ErrNotFound
	}
	return *e, nil
}

// Len returns the number of stored escalations.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.rows)
}

// Select returns copies of the partition's escalations in processing order.
func (s *MemoryStore) Select(ctx context.Context, p Partition) ([]*Escalation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*Escalation, 0)
	for _, e := range s.rows {
		if !p.Contains(e) {
			continue
		}
		copied := *e
		result = append(result, &copied)
	}
	SortForProcessing(result)
	return result, nil
}

// Apply persists updates and deletions atomically.
func (s *MemoryStore) Apply(ctx context.Context, updates []Update, deletes []uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, u := range updates {
		e, ok := s.rows[u.ID]
		if !ok {
			continue
		}
		if u.Changed.Has(FieldNextCheck) {
			e.NextCheck = u.NextCheck
		}
		if u.Changed.Has(FieldEscStep) {
			e.EscStep = u.EscStep
		}
		if u.Changed.Has(FieldStatus) {
			e.Status = u.Status
		}
	}
	for _, id := range deletes {
		delete(s.rows, id)
	}
	return nil
}

// SetRecovery records the recovery event of an escalation, as event processing does when a problem resolves.
func (s *MemoryStore) SetRecovery(id, recoveryEventID uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.rows[id]
	if !ok {
		return ErrNotFound
	}
	e.RecoveryEventID = recoveryEventID
	return nil
}

// SortForProcessing orders escalations by action, trigger, item and id.
func SortForProcessing(rows []*Escalation) {
	sort.Slice(rows, func(i, j int) bool {
		a, b := rows[i], rows[j]
		if a.ActionID != b.ActionID {
			return a.ActionID < b.ActionID
		}
		if a.TriggerID != b.TriggerID {
			return a.TriggerID < b.TriggerID
		}
		if a.ItemID != b.ItemID {
			return a.ItemID < b.ItemID
		}
		return a.ID < b.ID
	})
}

var _ Store = (*MemoryStore)(nil)
