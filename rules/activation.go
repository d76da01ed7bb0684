package rules

import "cloud.google.com/go/civil"

// IsActive reports whether a rule with the given flag and window is active on today.
// Both bounds are inclusive; a window with start after end is never active.
func IsActive(enabled bool, start, end, today civil.Date) bool {
	return enabled && !today.Before(start) && !today.After(end)
}

// IsActive reports whether the rule is enabled and today falls inside its window
func (r *Rule) IsActive(today civil.Date) bool {
	return IsActive(r.Enabled, r.StartDate, r.EndDate, today)
}
