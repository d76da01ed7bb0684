package rules

import (
	"fmt"

	"cloud.google.com/go/civil"
)

// GroupLookup resolves product groups by identifier
type GroupLookup interface {
	ProductGroup(id string) (*ProductGroup, bool)
}

// GroupIndex is a GroupLookup over an already fetched product group snapshot
type GroupIndex map[string]*ProductGroup

// NewGroupIndex indexes groups by ID. A later group replaces an earlier one with the same ID.
func NewGroupIndex(groups []*ProductGroup) GroupIndex {
	idx := make(GroupIndex, len(groups))
	for _, g := range groups {
		idx[g.ID] = g
	}
	return idx
}

// ProductGroup returns the group with the given ID
func (idx GroupIndex) ProductGroup(id string) (*ProductGroup, bool) {
	g, ok := idx[id]
	return g, ok
}

// Evaluate runs every active rule against the derived code sets and returns the rules
// that fired, in snapshot order, along with diagnostics for conditions that were skipped.
// Rules and groups are read only.
func Evaluate(rules []*Rule, groups GroupLookup, sets DerivedCodeSets, today civil.Date) ([]FiredResult, []Diagnostic) {
	var (
		fired       []FiredResult
		diagnostics []Diagnostic
	)

	for _, rule := range rules {
		if !rule.IsActive(today) {
			continue
		}

		verdict, diags := EvaluateRule(rule, groups, sets)
		diagnostics = append(diagnostics, diags...)
		if verdict {
			fired = append(fired, FiredResult{
				Rule:             rule,
				RecommendationID: rule.RecommendationID,
			})
		}
	}

	return fired, diagnostics
}

// EvaluateRule resolves each of the rule's conditions and folds them into a verdict.
// It does not check whether the rule is active.
func EvaluateRule(rule *Rule, groups GroupLookup, sets DerivedCodeSets) (bool, []Diagnostic) {
	var diagnostics []Diagnostic
	resolved := make([]ResolvedCondition, len(rule.Conditions))

	for i, cond := range rule.Conditions {
		outcome, diag := resolveCondition(rule, i, cond, groups, sets)
		if diag != nil {
			diagnostics = append(diagnostics, *diag)
		}
		resolved[i] = ResolvedCondition{Connector: cond.Connector, Outcome: outcome}
	}

	return FoldVerdict(resolved), diagnostics
}

func resolveCondition(rule *Rule, index int, cond Condition, groups GroupLookup, sets DerivedCodeSets) (Outcome, *Diagnostic) {
	diag := func(reason DiagnosticReason, format string, args ...any) *Diagnostic {
		return &Diagnostic{
			RuleID:         rule.ID,
			RuleName:       rule.Name,
			ConditionIndex: index,
			ProductGroupID: cond.ProductGroupID,
			Reason:         reason,
			Message:        fmt.Sprintf(format, args...),
		}
	}

	selected, ok := sets.Select(cond.CodeGroup)
	if !ok {
		return Skip(), diag(ReasonUnknownCodeGroup, "unknown code group %q", cond.CodeGroup)
	}

	if !cond.Relationship.Valid() {
		return Skip(), diag(ReasonUnknownRelationship, "unknown relationship %q", cond.Relationship)
	}

	group, ok := groups.ProductGroup(cond.ProductGroupID)
	if !ok {
		return Skip(), diag(ReasonProductGroupNotFound, "product group %s not found", cond.ProductGroupID)
	}

	return Match(EvaluateRelationship(selected, NewCodeSet(group.Codes...), cond.Relationship)), nil
}
