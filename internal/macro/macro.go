// Package macro expands {MACRO} placeholders in notification templates.
package macro

import (
	"strconv"
	"strings"
	"time"

	"github.com/kneutral-org/escalator/internal/catalog"
)

// Substituter expands macros in a template for an event, an optional recovery event and an optional user.
type Substituter interface {
	Substitute(template string, event, recoveryEvent *catalog.Event, user *catalog.User) string
}

// Simple expands a fixed set of event, trigger and user macros. Unknown macros are left as is.
type Simple struct {
	// Location is used to render times. Defaults to UTC.
	Location *time.Location
}

// NewSimple creates a Simple substituter rendering times in UTC.
func NewSimple() *Simple {
	return &Simple{Location: time.UTC}
}

// Substitute expands macros in template.
func (s *Simple) Substitute(template string, event, recoveryEvent *catalog.Event, user *catalog.User) string {
	if !strings.Contains(template, "{") {
		return template
	}

	loc := s.Location
	if loc == nil {
		loc = time.UTC
	}

	pairs := make([]string, 0, 32)
	if event != nil {
		at := time.Unix(event.Clock, 0).In(loc)
		status := "PROBLEM"
		if recoveryEvent != nil {
			status = "RESOLVED"
		}
		pairs = append(pairs,
			"{EVENT.ID}", strconv.FormatUint(event.ID, 10),
			"{EVENT.DATE}", at.Format("2006.01.02"),
			"{EVENT.TIME}", at.Format("15:04:05"),
			"{EVENT.SOURCE}", strconv.Itoa(int(event.Source)),
			"{EVENT.STATUS}", status,
			"{EVENT.TAGS}", formatTags(event.Tags),
			"{EVENT.ACK.STATUS}", yesNo(event.Acknowledged),
		)
		if event.Trigger != nil {
			pairs = append(pairs,
				"{TRIGGER.ID}", strconv.FormatUint(event.Trigger.ID, 10),
				"{TRIGGER.NAME}", event.Trigger.Description,
				"{TRIGGER.SEVERITY}", event.Trigger.Priority.String(),
				"{TRIGGER.NSEVERITY}", strconv.Itoa(int(event.Trigger.Priority)),
				"{TRIGGER.EXPRESSION}", event.Trigger.Expression,
				"{TRIGGER.EXPRESSION.RECOVERY}", event.Trigger.RecoveryExpression,
			)
		}
	}
	if recoveryEvent != nil {
		at := time.Unix(recoveryEvent.Clock, 0).In(loc)
		pairs = append(pairs,
			"{EVENT.RECOVERY.ID}", strconv.FormatUint(recoveryEvent.ID, 10),
			"{EVENT.RECOVERY.DATE}", at.Format("2006.01.02"),
			"{EVENT.RECOVERY.TIME}", at.Format("15:04:05"),
		)
		if event != nil {
			pairs = append(pairs, "{EVENT.DURATION}", formatAge(recoveryEvent.Clock-event.Clock))
		}
	}
	if user != nil {
		pairs = append(pairs,
			"{USER.ALIAS}", user.Alias,
			"{USER.NAME}", user.Name,
			"{USER.SURNAME}", user.Surname,
			"{USER.FULLNAME}", user.DisplayName(),
		)
	}

	return strings.NewReplacer(pairs...).Replace(template)
}

func formatTags(tags []catalog.Tag) string {
	parts := make([]string, 0, len(tags))
	for _, t := range tags {
		if t.Value == "" {
			parts = append(parts, t.Tag)
			continue
		}
		parts = append(parts, t.Tag+":"+t.Value)
	}
	return strings.Join(parts, ", ")
}

func yesNo(b bool) string {
	if b {
		return "Yes"
	}
	return "No"
}

// formatAge renders a duration as "1d 2h 3m", dropping leading zero units.
func formatAge(seconds int64) string {
	if seconds < 0 {
		seconds = 0
	}
	days := seconds / 86400
	hours := seconds % 86400 / 3600
	minutes := seconds % 3600 / 60

	var b strings.Builder
	if days > 0 {
		b.WriteString(strconv.FormatInt(days, 10) + "d ")
	}
	if days > 0 || hours > 0 {
		b.WriteString(strconv.FormatInt(hours, 10) + "h ")
	}
	b.WriteString(strconv.FormatInt(minutes, 10) + "m")
	return b.String()
}

var _ Substituter = (*Simple)(nil)
