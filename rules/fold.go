package rules

// ResolvedCondition is a condition's connector paired with its outcome
type ResolvedCondition struct {
	Connector Connector
	Outcome   Outcome
}

// FoldVerdict combines condition outcomes left to right with no operator precedence,
// so A AND B OR C is (A AND B) OR C.
//
// Skipped outcomes are ignored entirely. The first resolved outcome seeds the
// accumulator and its connector is not used. Each later resolved outcome is
// combined using its own connector. If nothing resolved the verdict is false.
func FoldVerdict(conditions []ResolvedCondition) bool {
	var acc, seeded bool
	for _, c := range conditions {
		if c.Outcome.Skipped() {
			continue
		}

		b := c.Outcome.Value()
		if !seeded {
			acc, seeded = b, true
			continue
		}

		switch c.Connector.OrDefault() {
		case Or:
			acc = acc || b
		default:
			acc = acc && b
		}
	}
	return seeded && acc
}
