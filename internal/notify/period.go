package notify

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// InPeriod reports whether t falls inside a media active period such as
// "1-5,09:00-18:00;6-7,10:00-14:00". Days run from 1 (Monday) to 7 (Sunday).
// An empty period is always active.
func InPeriod(period string, t time.Time) (bool, error) {
	period = strings.TrimSpace(period)
	if period == "" {
		return true, nil
	}

	day := int(t.Weekday())
	if day == 0 {
		day = 7
	}
	minutes := t.Hour()*60 + t.Minute()

	for _, part := range strings.Split(period, ";") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		ok, err := inInterval(part, day, minutes)
		if err != nil {
			return false, err
		}
		if ok {
			return true, nil
		}
	}
	return false, nil
}

func inInterval(interval string, day, minutes int) (bool, error) {
	days, hours, found := strings.Cut(interval, ",")
	if !found {
		return false, fmt.Errorf("invalid period %q: expected d-d,hh:mm-hh:mm", interval)
	}

	fromDay, toDay, err := parseRange(days, parseDay)
	if err != nil {
		return false, fmt.Errorf("invalid period %q: %w", interval, err)
	}
	start, end, err := parseRange(hours, parseClock)
	if err != nil {
		return false, fmt.Errorf("invalid period %q: %w", interval, err)
	}

	return day >= fromDay && day <= toDay && minutes >= start && minutes < end, nil
}

func parseRange(s string, parse func(string) (int, error)) (int, int, error) {
	from, to, found := strings.Cut(strings.TrimSpace(s), "-")
	if !found {
		v, err := parse(from)
		return v, v, err
	}
	a, err := parse(from)
	if err != nil {
		return 0, 0, err
	}
	b, err := parse(to)
	if err != nil {
		return 0, 0, err
	}
	if b < a {
		return 0, 0, fmt.Errorf("range %q is reversed", s)
	}
	return a, b, nil
}

func parseDay(s string) (int, error) {
	d, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || d < 1 || d > 7 {
		return 0, fmt.Errorf("invalid day: %s", s)
	}
	return d, nil
}

// parseClock parses "HH:MM" into minutes from midnight. 24:00 is accepted as end of day.
func parseClock(s string) (int, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) != 2 {
		return 0, fmt.Errorf("invalid time format, expected HH:MM: %s", s)
	}

	hour, err := strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 24 {
		return 0, fmt.Errorf("invalid hour: %s", parts[0])
	}

	minute, err := strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 || (hour == 24 && minute != 0) {
		return 0, fmt.Errorf("invalid minute: %s", parts[1])
	}

	return hour*60 + minute, nil
}
