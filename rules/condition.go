package rules

// Outcome is the resolution of one condition: either a boolean match result,
// or a skip when the condition could not be evaluated
type Outcome struct {
	resolved bool
	value    bool
}

// Match returns a resolved outcome carrying v
func Match(v bool) Outcome {
	return Outcome{resolved: true, value: v}
}

// Skip returns an outcome that contributes nothing to the rule verdict
func Skip() Outcome {
	return Outcome{}
}

// Skipped reports whether the condition was skipped
func (o Outcome) Skipped() bool {
	return !o.resolved
}

// Value returns the match result. It is false for a skipped outcome.
func (o Outcome) Value() bool {
	return o.resolved && o.value
}

// EvaluateRelationship tests groupCodes against selected.
// contains-all and contains-none are vacuously true for an empty group;
// contains-some requires a strict partial overlap.
func EvaluateRelationship(selected, groupCodes CodeSet, relationship Relationship) bool {
	matched := 0
	for code := range groupCodes {
		if selected.Has(code) {
			matched++
		}
	}

	switch relationship {
	case ContainsAny:
		return matched > 0
	case ContainsAll:
		return matched == len(groupCodes)
	case ContainsSome:
		return matched > 0 && matched < len(groupCodes)
	case ContainsNone:
		return matched == 0
	}
	return false
}
