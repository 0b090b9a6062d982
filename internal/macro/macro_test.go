package macro

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/kneutral-org/escalator/internal/catalog"
)

func TestSimple_Substitute(t *testing.T) {
	s := NewSimple()
	event := &catalog.Event{
		ID:    100,
		Clock: 1700000000,
		Tags:  []catalog.Tag{{Tag: "env", Value: "prod"}, {Tag: "critical"}},
		Trigger: &catalog.Trigger{
			ID:          10,
			Description: "Disk full on db-1",
			Priority:    catalog.SeverityDisaster,
		},
	}
	recovery := &catalog.Event{ID: 101, Clock: 1700000000 + 90061}
	user := &catalog.User{Alias: "oncall", Name: "Ana", Surname: "Ruiz"}

	tests := []struct {
		name     string
		template string
		recovery *catalog.Event
		user     *catalog.User
		want     string
	}{
		{"no macros", "plain text", nil, nil, "plain text"},
		{"problem", "{EVENT.STATUS}: {TRIGGER.NAME} ({TRIGGER.SEVERITY})", nil, nil, "PROBLEM: Disk full on db-1 (Disaster)"},
		{"time", "{EVENT.DATE} {EVENT.TIME}", nil, nil, "2023.11.14 22:13:20"},
		{"tags", "{EVENT.TAGS}", nil, nil, "env:prod, critical"},
		{"recovery", "{EVENT.STATUS} after {EVENT.DURATION} (#{EVENT.RECOVERY.ID})", recovery, nil, "RESOLVED after 1d 1h 1m (#101)"},
		{"user", "Hi {USER.FULLNAME}", nil, user, "Hi oncall (Ana Ruiz)"},
		{"unknown macro", "{HOST.NAME}", nil, nil, "{HOST.NAME}"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, s.Substitute(tt.template, event, tt.recovery, tt.user))
		})
	}
}

func TestFormatAge(t *testing.T) {
	assert.Equal(t, "0m", formatAge(-5))
	assert.Equal(t, "2m", formatAge(125))
	assert.Equal(t, "1h 0m", formatAge(3600))
	assert.Equal(t, "2d 0h 0m", formatAge(2*86400))
}
