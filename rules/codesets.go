package rules

import (
	"encoding/json"
	"sort"
)

// CodeSet is a deduplicated set of product codes. Codes compare by exact,
// case-sensitive string equality.
type CodeSet map[string]struct{}

// NewCodeSet builds a set from codes, collapsing duplicates
func NewCodeSet(codes ...string) CodeSet {
	s := make(CodeSet, len(codes))
	for _, c := range codes {
		s[c] = struct{}{}
	}
	return s
}

// Has reports whether code is in the set
func (s CodeSet) Has(code string) bool {
	_, ok := s[code]
	return ok
}

// Len returns the number of codes in the set
func (s CodeSet) Len() int {
	return len(s)
}

// Union returns a new set holding the codes of s and other
func (s CodeSet) Union(other CodeSet) CodeSet {
	out := make(CodeSet, len(s)+len(other))
	for c := range s {
		out[c] = struct{}{}
	}
	for c := range other {
		out[c] = struct{}{}
	}
	return out
}

// Difference returns a new set holding the codes of s that are not in other
func (s CodeSet) Difference(other CodeSet) CodeSet {
	out := make(CodeSet, len(s))
	for c := range s {
		if !other.Has(c) {
			out[c] = struct{}{}
		}
	}
	return out
}

// Sorted returns the codes in lexical order
func (s CodeSet) Sorted() []string {
	out := make([]string, 0, len(s))
	for c := range s {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}

// MarshalJSON encodes the set as a sorted list
func (s CodeSet) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Sorted())
}

// UnmarshalJSON decodes a list of codes
func (s *CodeSet) UnmarshalJSON(data []byte) error {
	var codes []string
	if err := json.Unmarshal(data, &codes); err != nil {
		return err
	}
	*s = NewCodeSet(codes...)
	return nil
}

// DerivedCodeSets holds the four named code sets computed once per evaluation run
type DerivedCodeSets struct {
	Customer    CodeSet `json:"customerCodes"`
	Renewal     CodeSet `json:"renewalCodes"`
	AllCustomer CodeSet `json:"allCustomerCodes"`
	Opportunity CodeSet `json:"opportunityCodes"`
}

// DeriveCodeSets turns raw held and renewal codes into the named code sets.
// Opportunity codes are the renewal codes the customer does not already hold.
func DeriveCodeSets(heldCodes, renewalCodes []string) DerivedCodeSets {
	held := NewCodeSet(heldCodes...)
	renewal := NewCodeSet(renewalCodes...)

	return DerivedCodeSets{
		Customer:    held,
		Renewal:     renewal,
		AllCustomer: held.Union(renewal),
		Opportunity: renewal.Difference(held),
	}
}

// Select returns the set named by g. The second result is false for an unknown group.
func (d DerivedCodeSets) Select(g CodeGroup) (CodeSet, bool) {
	switch g {
	case CustomerCodes:
		return d.Customer, true
	case RenewalCodes:
		return d.Renewal, true
	case AllCustomerCodes:
		return d.AllCustomer, true
	case OpportunityCodes:
		return d.Opportunity, true
	}
	return nil, false
}
