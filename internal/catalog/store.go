package catalog

import (
	"context"
	"errors"
)

var (
	// ErrNotFound is returned when a catalog row does not exist.
	ErrNotFound = errors.New("not found")

	// ErrTooManyTriggerHosts is returned when the current host of a trigger event is ambiguous.
	ErrTooManyTriggerHosts = errors.New("Too many hosts in a trigger expression")

	// ErrTooManyIPHosts is returned when a discovered address maps to several hosts.
	ErrTooManyIPHosts = errors.New("Too many hosts with same IP addresses")

	// ErrHostNotFound is returned when no host corresponds to the event.
	ErrHostNotFound = errors.New("Cannot find a corresponding host")

	// ErrUnsupportedSource is returned when the current host cannot be derived from the event source.
	ErrUnsupportedSource = errors.New("Unsupported event source")
)

// OperationFilter narrows the operations returned for an action.
type OperationFilter struct {
	// Recovery selects recovery-mode operations instead of problem-mode ones.
	Recovery bool
	// Step restricts results to operations whose step range contains it. Zero disables the filter.
	Step int
}

// Store is the read-only configuration and event store.
type Store interface {
	GetAction(ctx context.Context, actionID uint64) (*Action, error)
	GetEvent(ctx context.Context, eventID uint64) (*Event, error)
	GetOperations(ctx context.Context, actionID uint64, filter OperationFilter) ([]*Operation, error)
	HasOperationsAfterStep(ctx context.Context, actionID uint64, step int) (bool, error)
	GetConditions(ctx context.Context, operationID uint64) ([]Condition, error)

	GetTrigger(ctx context.Context, triggerID uint64) (*Trigger, error)
	GetItem(ctx context.Context, itemID uint64) (*Item, error)
	GetHost(ctx context.Context, hostID uint64) (*Host, error)
	IsTriggerDependencyActive(ctx context.Context, triggerID uint64) (bool, error)

	ResolveRecipients(ctx context.Context, operationID uint64) ([]uint64, error)
	GetUser(ctx context.Context, userID uint64) (*User, error)
	HasSystemAccess(ctx context.Context, userID uint64) (bool, error)
	GetHostPermission(ctx context.Context, userID, hostID uint64) (Permission, error)
	GetUserMedia(ctx context.Context, userID, mediaTypeID uint64) ([]Media, error)

	GetCommandTargets(ctx context.Context, operationID uint64) ([]CommandTarget, error)
	ResolveEventHost(ctx context.Context, event *Event) (*Host, error)
}
