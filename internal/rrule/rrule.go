// Package rrule wraps RFC 5545 recurrence rules for recurring meetings.
// All times are UTC instants; callers convert to the user's zone for
// display only.
package rrule

import (
	"fmt"
	"strings"
	"time"

	"github.com/teambition/rrule-go"
)

// Parse parses an RFC 5545 RRULE string anchored at dtstart. A leading
// "RRULE:" prefix is tolerated.
func Parse(ruleStr string, dtstart time.Time) (*rrule.RRule, error) {
	ruleStr = strings.TrimPrefix(ruleStr, "RRULE:")

	opt, err := rrule.StrToROption(ruleStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse RRULE: %w", err)
	}
	opt.Dtstart = dtstart.UTC()

	return rrule.NewRRule(*opt)
}

// Next returns the first occurrence strictly after the given time, or
// nil when the rule is exhausted.
func Next(ruleStr string, dtstart, after time.Time) (*time.Time, error) {
	rule, err := Parse(ruleStr, dtstart)
	if err != nil {
		return nil, err
	}

	next := rule.After(after.UTC(), false)
	if next.IsZero() {
		return nil, nil
	}
	next = next.UTC()
	return &next, nil
}

// Upcoming returns up to count occurrences strictly after the given
// time, in order.
func Upcoming(ruleStr string, dtstart, after time.Time, count int) ([]time.Time, error) {
	rule, err := Parse(ruleStr, dtstart)
	if err != nil {
		return nil, err
	}

	var results []time.Time
	cursor := after.UTC()
	for len(results) < count {
		next := rule.After(cursor, false)
		if next.IsZero() {
			break
		}
		results = append(results, next.UTC())
		cursor = next
	}
	return results, nil
}

// IsRecurring reports whether the string looks like a recurrence rule.
func IsRecurring(ruleStr string) bool {
	return ruleStr != "" && strings.Contains(strings.ToUpper(ruleStr), "FREQ=")
}
