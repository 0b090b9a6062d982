package catalog

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// maxDependencyDepth bounds trigger dependency traversal.
const maxDependencyDepth = 32

// MemoryStore is an in-memory implementation of Store for tests and development.
type MemoryStore struct {
	mu             sync.RWMutex
	actions        map[uint64]*Action
	events         map[uint64]*Event
	operations     map[uint64][]*Operation // actionID -> operations
	conditions     map[uint64][]Condition  // operationID -> conditions
	triggers       map[uint64]*Trigger
	items          map[uint64]*Item
	hosts          map[uint64]*Host
	dependencies   map[uint64][]uint64 // triggerID -> triggers it depends on
	recipients     map[uint64][]uint64 // operationID -> userIDs
	users          map[uint64]*User
	blockedUsers   map[uint64]bool
	permissions    map[uint64]map[uint64]Permission // userID -> hostID -> permission
	media          map[uint64][]Media
	commandTargets map[uint64][]CommandTarget
	eventHosts     map[uint64][]uint64 // eventID -> candidate hostIDs for discovery and autoregistration
}

// NewMemoryStore creates an empty in-memory catalog.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		actions:        make(map[uint64]*Action),
		events:         make(map[uint64]*Event),
		operations:     make(map[uint64][]*Operation),
		conditions:     make(map[uint64][]Condition),
		triggers:       make(map[uint64]*Trigger),
		items:          make(map[uint64]*Item),
		hosts:          make(map[uint64]*Host),
		dependencies:   make(map[uint64][]uint64),
		recipients:     make(map[uint64][]uint64),
		users:          make(map[uint64]*User),
		blockedUsers:   make(map[uint64]bool),
		permissions:    make(map[uint64]map[uint64]Permission),
		media:          make(map[uint64][]Media),
		commandTargets: make(map[uint64][]CommandTarget),
		eventHosts:     make(map[uint64][]uint64),
	}
}

// PutAction stores an action.
func (s *MemoryStore) PutAction(a Action) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.actions[a.ID] = &a
}

// DeleteAction removes an action.
func (s *MemoryStore) DeleteAction(actionID uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.actions, actionID)
}

// PutEvent stores an event.
func (s *MemoryStore) PutEvent(e Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events[e.ID] = &e
}

// PutOperation stores an operation with its conditions.
func (s *MemoryStore) PutOperation(op Operation, conditions ...Condition) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ops := s.operations[op.ActionID]
	for i, existing := range ops {
		if existing.ID == op.ID {
			ops = append(ops[:i], ops[i+1:]...)
			break
		}
	}
	s.operations[op.ActionID] = append(ops, &op)
	sort.Slice(s.operations[op.ActionID], func(i, j int) bool {
		return s.operations[op.ActionID][i].ID < s.operations[op.ActionID][j].ID
	})
	s.conditions[op.ID] = append([]Condition(nil), conditions...)
}

// PutTrigger stores a trigger.
func (s *MemoryStore) PutTrigger(t Trigger) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.triggers[t.ID] = &t
}

// PutItem stores an item.
func (s *MemoryStore) PutItem(i Item) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[i.ID] = &i
}

// PutHost stores a host.
func (s *MemoryStore) PutHost(h Host) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hosts[h.ID] = &h
}

// AddDependency makes triggerID depend on upID.
func (s *MemoryStore) AddDependency(triggerID, upID uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dependencies[triggerID] = append(s.dependencies[triggerID], upID)
}

// PutUser stores a user and its media.
func (s *MemoryStore) PutUser(u User, media ...Media) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[u.ID] = &u
	for i := range media {
		media[i].UserID = u.ID
	}
	s.media[u.ID] = media
}

// BlockUser marks a user as a member of a disabled user group.
func (s *MemoryStore) BlockUser(userID uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.blockedUsers[userID] = true
}

// Grant sets a user's permission on a host.
func (s *MemoryStore) Grant(userID, hostID uint64, perm Permission) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.permissions[userID] == nil {
		s.permissions[userID] = make(map[uint64]Permission)
	}
	s.permissions[userID][hostID] = perm
}

// SetRecipients sets the users an operation notifies.
func (s *MemoryStore) SetRecipients(operationID uint64, userIDs ...uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recipients[operationID] = userIDs
}

// SetCommandTargets sets the hosts a command operation targets.
func (s *MemoryStore) SetCommandTargets(operationID uint64, targets ...CommandTarget) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.commandTargets[operationID] = targets
}

// SetEventHosts sets the hosts matching a discovery or autoregistration event.
func (s *MemoryStore) SetEventHosts(eventID uint64, hostIDs ...uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.eventHosts[eventID] = hostIDs
}

// GetAction retrieves an action and derives whether it has recovery operations.
func (s *MemoryStore) GetAction(ctx context.Context, actionID uint64) (*Action, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.actions[actionID]
	if !ok {
		return nil, fmt.Errorf("action %d: %w", actionID, ErrNotFound)
	}
	result := *a
	result.HasRecoveryOperations = false
	for _, op := range s.operations[actionID] {
		if op.Recovery {
			result.HasRecoveryOperations = true
			break
		}
	}
	return &result, nil
}

// GetEvent retrieves an event with its trigger and host context.
func (s *MemoryStore) GetEvent(ctx context.Context, eventID uint64) (*Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.events[eventID]
	if !ok {
		return nil, fmt.Errorf("event %d: %w", eventID, ErrNotFound)
	}
	result := *e
	result.Tags = append([]Tag(nil), e.Tags...)

	switch result.Object {
	case ObjectTrigger:
		if t, ok := s.triggers[result.ObjectID]; ok && result.Trigger == nil {
			trigger := *t
			result.Trigger = &trigger
		}
		if result.Trigger != nil && len(result.HostIDs) == 0 {
			result.HostIDs = append([]uint64(nil), result.Trigger.HostIDs...)
		}
	case ObjectItem, ObjectLLDRule:
		if item, ok := s.items[result.ObjectID]; ok && len(result.HostIDs) == 0 {
			result.HostIDs = []uint64{item.HostID}
		}
	}

	if len(result.HostGroupIDs) == 0 {
		seen := make(map[uint64]bool)
		for _, hostID := range result.HostIDs {
			if h, ok := s.hosts[hostID]; ok {
				for _, g := range h.GroupIDs {
					if !seen[g] {
						seen[g] = true
						result.HostGroupIDs = append(result.HostGroupIDs, g)
					}
				}
			}
		}
	}

	return &result, nil
}

// GetOperations returns the operations of an action matching the filter, ordered by ID.
func (s *MemoryStore) GetOperations(ctx context.Context, actionID uint64, filter OperationFilter) ([]*Operation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*Operation, 0)
	for _, op := range s.operations[actionID] {
		if op.Recovery != filter.Recovery {
			continue
		}
		if filter.Step != 0 && !op.InStep(filter.Step) {
			continue
		}
		copied := *op
		result = append(result, &copied)
	}
	return result, nil
}

// HasOperationsAfterStep reports whether any problem operation starts after step.
func (s *MemoryStore) HasOperationsAfterStep(ctx context.Context, actionID uint64, step int) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, op := range s.operations[actionID] {
		if !op.Recovery && op.EscStepFrom > step {
			return true, nil
		}
	}
	return false, nil
}

// GetConditions returns the conditions of an operation sorted by type.
func (s *MemoryStore) GetConditions(ctx context.Context, operationID uint64) ([]Condition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := append([]Condition(nil), s.conditions[operationID]...)
	sort.SliceStable(result, func(i, j int) bool { return result[i].Type < result[j].Type })
	return result, nil
}

// GetTrigger retrieves a trigger.
func (s *MemoryStore) GetTrigger(ctx context.Context, triggerID uint64) (*Trigger, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.triggers[triggerID]
	if !ok {
		return nil, fmt.Errorf("trigger %d: %w", triggerID, ErrNotFound)
	}
	result := *t
	return &result, nil
}

// GetItem retrieves an item.
func (s *MemoryStore) GetItem(ctx context.Context, itemID uint64) (*Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	i, ok := s.items[itemID]
	if !ok {
		return nil, fmt.Errorf("item %d: %w", itemID, ErrNotFound)
	}
	result := *i
	return &result, nil
}

// GetHost retrieves a host.
func (s *MemoryStore) GetHost(ctx context.Context, hostID uint64) (*Host, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	h, ok := s.hosts[hostID]
	if !ok {
		return nil, fmt.Errorf("host %d: %w", hostID, ErrNotFound)
	}
	result := *h
	return &result, nil
}

// IsTriggerDependencyActive reports whether any trigger this one depends on is in problem state.
func (s *MemoryStore) IsTriggerDependencyActive(ctx context.Context, triggerID uint64) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	visited := make(map[uint64]bool)
	level := s.dependencies[triggerID]
	for depth := 0; depth < maxDependencyDepth && len(level) > 0; depth++ {
		var next []uint64
		for _, upID := range level {
			if visited[upID] {
				continue
			}
			visited[upID] = true
			if up, ok := s.triggers[upID]; ok && up.Status == TriggerEnabled && up.Value == TriggerValueProblem {
				return true, nil
			}
			next = append(next, s.dependencies[upID]...)
		}
		level = next
	}
	return false, nil
}

// ResolveRecipients returns the distinct users an operation notifies.
func (s *MemoryStore) ResolveRecipients(ctx context.Context, operationID uint64) ([]uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	seen := make(map[uint64]bool)
	result := make([]uint64, 0)
	for _, id := range s.recipients[operationID] {
		if !seen[id] {
			seen[id] = true
			result = append(result, id)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i] < result[j] })
	return result, nil
}

// GetUser retrieves a user.
func (s *MemoryStore) GetUser(ctx context.Context, userID uint64) (*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[userID]
	if !ok {
		return nil, fmt.Errorf("user %d: %w", userID, ErrNotFound)
	}
	result := *u
	return &result, nil
}

// HasSystemAccess reports whether a user is outside every disabled user group.
func (s *MemoryStore) HasSystemAccess(ctx context.Context, userID uint64) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.users[userID]; !ok {
		return false, nil
	}
	return !s.blockedUsers[userID], nil
}

// GetHostPermission returns a user's permission on a host.
func (s *MemoryStore) GetHostPermission(ctx context.Context, userID, hostID uint64) (Permission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.permissions[userID][hostID], nil
}

// GetUserMedia returns the active media of a user, restricted to mediaTypeID when nonzero.
func (s *MemoryStore) GetUserMedia(ctx context.Context, userID, mediaTypeID uint64) ([]Media, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]Media, 0)
	for _, m := range s.media[userID] {
		if mediaTypeID != 0 && m.MediaTypeID != mediaTypeID {
			continue
		}
		result = append(result, m)
	}
	return result, nil
}

// GetCommandTargets returns the hosts a command operation targets.
func (s *MemoryStore) GetCommandTargets(ctx context.Context, operationID uint64) ([]CommandTarget, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return append([]CommandTarget(nil), s.commandTargets[operationID]...), nil
}

// ResolveEventHost returns the single host an event refers to.
func (s *MemoryStore) ResolveEventHost(ctx context.Context, event *Event) (*Host, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var (
		candidates []uint64
		ambiguous  error
	)
	switch event.Source {
	case SourceTriggers:
		if t, ok := s.triggers[event.ObjectID]; ok {
			candidates = t.HostIDs
		} else if event.Trigger != nil {
			candidates = event.Trigger.HostIDs
		}
		ambiguous = ErrTooManyTriggerHosts
	case SourceDiscovery:
		candidates = s.eventHosts[event.ID]
		ambiguous = ErrTooManyIPHosts
	case SourceAutoRegistration:
		candidates = s.eventHosts[event.ID]
		ambiguous = ErrHostNotFound
	default:
		return nil, fmt.Errorf("%w [%d]", ErrUnsupportedSource, int(event.Source))
	}

	hosts := make([]*Host, 0, len(candidates))
	for _, id := range candidates {
		if h, ok := s.hosts[id]; ok {
			hosts = append(hosts, h)
		}
	}
	switch {
	case len(hosts) == 0:
		return nil, ErrHostNotFound
	case len(hosts) > 1:
		return nil, ambiguous
	}
	result := *hosts[0]
	return &result, nil
}

var _ Store = (*MemoryStore)(nil)
