// Package maintenance tracks maintenance windows over hosts and host groups.
package maintenance

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"
)

var (
	// ErrNotFound is returned when a maintenance window is not found.
	ErrNotFound = errors.New("maintenance window not found")
	// ErrInvalidWindow is returned when a maintenance window is invalid.
	ErrInvalidWindow = errors.New("invalid maintenance window")
)

// Type controls whether data is collected during maintenance.
type Type int

const (
	TypeWithData Type = iota
	TypeNoData
)

// Window is a period during which its hosts and host groups are in maintenance.
// A window without hosts and groups applies to every host.
type Window struct {
	ID          uint64    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Type        Type      `json:"type"`
	ActiveSince time.Time `json:"active_since"`
	ActiveTill  time.Time `json:"active_till"`
	HostIDs     []uint64  `json:"host_ids,omitempty"`
	GroupIDs    []uint64  `json:"group_ids,omitempty"`
}

// ActiveAt reports whether t falls inside the window. The end is exclusive.
func (w *Window) ActiveAt(t time.Time) bool {
	return !t.Before(w.ActiveSince) && t.Before(w.ActiveTill)
}

func (w *Window) validate() error {
	if w == nil {
		return ErrInvalidWindow
	}
	if w.Name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidWindow)
	}
	if w.ActiveSince.IsZero() || w.ActiveTill.IsZero() {
		return fmt.Errorf("%w: active_since and active_till are required", ErrInvalidWindow)
	}
	if !w.ActiveTill.After(w.ActiveSince) {
		return fmt.Errorf("%w: active_till must be after active_since", ErrInvalidWindow)
	}
	return nil
}

func (w *Window) clone() *Window {
	c := *w
	c.HostIDs = append([]uint64(nil), w.HostIDs...)
	c.GroupIDs = append([]uint64(nil), w.GroupIDs...)
	return &c
}

// Store defines the interface for maintenance window persistence.
type Store interface {
	// Create stores a new window and assigns its ID.
	Create(ctx context.Context, window *Window) (*Window, error)

	// Get retrieves a window by ID.
	Get(ctx context.Context, id uint64) (*Window, error)

	// Delete removes a window by ID.
	Delete(ctx context.Context, id uint64) error

	// ListActive retrieves the windows active at the given time.
	ListActive(ctx context.Context, at time.Time) ([]*Window, error)
}

// MemoryStore is an in-memory implementation of Store.
type MemoryStore struct {
	mu      sync.RWMutex
	windows map[uint64]*Window
	nextID  uint64
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		windows: make(map[uint64]*Window),
		nextID:  1,
	}
}

// Create stores a new window.
func (s *MemoryStore) Create(ctx context.Context, window *Window) (*Window, error) {
	if err := window.validate(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	stored := window.clone()
	stored.ID = s.nextID
	s.nextID++
	s.windows[stored.ID] = stored
	return stored.clone(), nil
}

// Get retrieves a window by ID.
func (s *MemoryStore) Get(ctx context.Context, id uint64) (*Window, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	w, ok := s.windows[id]
	if !ok {
		return nil, ErrNotFound
	}
	return w.clone(), nil
}

// Delete removes a window by ID.
func (s *MemoryStore) Delete(ctx context.Context, id uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.windows[id]; !ok {
		return ErrNotFound
	}
	delete(s.windows, id)
	return nil
}

// ListActive retrieves the windows active at the given time, ordered by ID.
func (s *MemoryStore) ListActive(ctx context.Context, at time.Time) ([]*Window, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*Window, 0)
	for _, w := range s.windows {
		if w.ActiveAt(at) {
			result = append(result, w.clone())
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

var _ Store = (*MemoryStore)(nil)
