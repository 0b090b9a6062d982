package notify

import (
	"context"
	"fmt"

	"github.com/kneutral-org/escalator/internal/catalog"
)

// permitted reports whether user may be told about event. Users in a disabled group never are;
// for trigger, item and LLD rule events the user needs at least read access to one of the event's hosts.
func (d *Dispatcher) permitted(ctx context.Context, user *catalog.User, event *catalog.Event) (bool, error) {
	ok, err := d.store.HasSystemAccess(ctx, user.ID)
	if err != nil {
		return false, fmt.Errorf("check system access of user %d: %w", user.ID, err)
	}
	if !ok {
		return false, nil
	}
	if user.Type == catalog.UserTypeSuperAdmin {
		return true, nil
	}

	switch event.Object {
	case catalog.ObjectTrigger, catalog.ObjectItem, catalog.ObjectLLDRule:
	default:
		return true, nil
	}

	for _, hostID := range event.HostIDs {
		perm, err := d.store.GetHostPermission(ctx, user.ID, hostID)
		if err != nil {
			return false, fmt.Errorf("get permission of user %d on host %d: %w", user.ID, hostID, err)
		}
		if perm >= catalog.PermRead {
			return true, nil
		}
	}
	return false, nil
}
