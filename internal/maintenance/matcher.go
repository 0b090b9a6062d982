package maintenance

import (
	"fmt"

	"github.com/kneutral-org/escalator/internal/catalog"
)

// MatchType indicates how a host matched a maintenance window.
type MatchType string

const (
	// MatchTypeHost indicates the host is listed in the window.
	MatchTypeHost MatchType = "host"
	// MatchTypeGroup indicates one of the host's groups is listed in the window.
	MatchTypeGroup MatchType = "group"
	// MatchTypeGlobal indicates the window has no hosts or groups and applies everywhere.
	MatchTypeGlobal MatchType = "global"
)

// MatchResult contains the result of matching a host against a maintenance window.
type MatchResult struct {
	Matched   bool
	MatchType MatchType
	Reason    string
}

// Matcher checks whether hosts fall under maintenance window scopes.
type Matcher struct{}

// NewMatcher creates a new Matcher.
func NewMatcher() *Matcher {
	return &Matcher{}
}

// Match checks whether host is covered by the window's scope.
func (m *Matcher) Match(host *catalog.Host, window *Window) *MatchResult {
	if len(window.HostIDs) == 0 && len(window.GroupIDs) == 0 {
		return &MatchResult{
			Matched:   true,
			MatchType: MatchTypeGlobal,
			Reason:    "maintenance window applies globally (no scope defined)",
		}
	}

	for _, id := range window.HostIDs {
		if id == host.ID {
			return &MatchResult{
				Matched:   true,
				MatchType: MatchTypeHost,
				Reason:    fmt.Sprintf("host %q is in maintenance %q", host.Name, window.Name),
			}
		}
	}

	for _, groupID := range window.GroupIDs {
		for _, hostGroupID := range host.GroupIDs {
			if groupID == hostGroupID {
				return &MatchResult{
					Matched:   true,
					MatchType: MatchTypeGroup,
					Reason:    fmt.Sprintf("host group %d of host %q is in maintenance %q", groupID, host.Name, window.Name),
				}
			}
		}
	}

	return &MatchResult{
		Matched: false,
		Reason:  "host does not match maintenance window scope",
	}
}
