package rules

import (
	"fmt"
	"time"

	"cloud.google.com/go/civil"
)

// CodeGroup names one of the code sets derived for an evaluation run
type CodeGroup string

const (
	CustomerCodes    CodeGroup = "customerCodes"
	RenewalCodes     CodeGroup = "renewalCodes"
	AllCustomerCodes CodeGroup = "allCustomerCodes"
	OpportunityCodes CodeGroup = "opportunityCodes"
)

// CodeGroups lists every known code group in a stable order
var CodeGroups = []CodeGroup{CustomerCodes, RenewalCodes, AllCustomerCodes, OpportunityCodes}

// Valid reports whether g is one of the known code groups
func (g CodeGroup) Valid() bool {
	switch g {
	case CustomerCodes, RenewalCodes, AllCustomerCodes, OpportunityCodes:
		return true
	}
	return false
}

// UnmarshalText rejects unknown code group names
func (g *CodeGroup) UnmarshalText(text []byte) error {
	v := CodeGroup(text)
	if !v.Valid() {
		return fmt.Errorf("unknown code group %q", text)
	}
	*g = v
	return nil
}

// Relationship is the set operator a condition applies between a code group
// and a product group
type Relationship string

const (
	ContainsAny  Relationship = "contains-any"
	ContainsAll  Relationship = "contains-all"
	ContainsSome Relationship = "contains-some"
	ContainsNone Relationship = "contains-none"
)

// Relationships lists every known relationship in a stable order
var Relationships = []Relationship{ContainsAny, ContainsAll, ContainsSome, ContainsNone}

// Valid reports whether r is one of the known relationships
func (r Relationship) Valid() bool {
	switch r {
	case ContainsAny, ContainsAll, ContainsSome, ContainsNone:
		return true
	}
	return false
}

// UnmarshalText rejects unknown relationship names
func (r *Relationship) UnmarshalText(text []byte) error {
	v := Relationship(text)
	if !v.Valid() {
		return fmt.Errorf("unknown relationship %q", text)
	}
	*r = v
	return nil
}

// Connector joins a condition to the verdict accumulated from the conditions before it.
// The empty connector means And.
type Connector string

const (
	And Connector = "AND"
	Or  Connector = "OR"
)

// Valid reports whether c is empty, And or Or
func (c Connector) Valid() bool {
	switch c {
	case "", And, Or:
		return true
	}
	return false
}

// OrDefault returns c, or And when c is empty
func (c Connector) OrDefault() Connector {
	if c == "" {
		return And
	}
	return c
}

// UnmarshalText rejects unknown connectors
func (c *Connector) UnmarshalText(text []byte) error {
	v := Connector(text)
	if !v.Valid() {
		return fmt.Errorf("unknown connector %q", text)
	}
	*c = v
	return nil
}

// ProductGroup is an operator-maintained set of product codes that conditions compare against
type ProductGroup struct {
	ID        string    `json:"id" yaml:"id"`
	Name      string    `json:"name" yaml:"name"`
	Codes     []string  `json:"codes" yaml:"codes"`
	CreatedAt time.Time `json:"createdAt" yaml:"-"`
	UpdatedAt time.Time `json:"updatedAt" yaml:"-"`
}

// Condition is one relationship test between a derived code group and a product group.
// Connector is ignored on the first condition that resolves.
type Condition struct {
	Connector      Connector    `json:"connector,omitempty" yaml:"connector,omitempty"`
	CodeGroup      CodeGroup    `json:"codeGroup" yaml:"codeGroup"`
	ProductGroupID string       `json:"productGroupId" yaml:"productGroupId"`
	Relationship   Relationship `json:"relationship" yaml:"relationship"`
}

// Rule fires a recommendation for customers whose codes satisfy its conditions
// while it is enabled and inside its date window
type Rule struct {
	ID               string      `json:"id" yaml:"id"`
	Name             string      `json:"name" yaml:"name"`
	Enabled          bool        `json:"enabled" yaml:"enabled"`
	StartDate        civil.Date  `json:"startDate" yaml:"startDate"`
	EndDate          civil.Date  `json:"endDate" yaml:"endDate"`
	Conditions       []Condition `json:"conditions" yaml:"conditions"`
	RecommendationID string      `json:"recommendationId" yaml:"recommendationId"`

	// Expression is an optional CEL targeting expression over the derived code sets
	Expression string `json:"expression,omitempty" yaml:"expression,omitempty"`

	CreatedAt time.Time `json:"createdAt" yaml:"-"`
	UpdatedAt time.Time `json:"updatedAt" yaml:"-"`
}

// Recommendation is the marketing artifact a rule points at
type Recommendation struct {
	ID        string    `json:"id" yaml:"id"`
	Name      string    `json:"name" yaml:"name"`
	URL       string    `json:"url,omitempty" yaml:"url,omitempty"`
	CreatedAt time.Time `json:"createdAt" yaml:"-"`
	UpdatedAt time.Time `json:"updatedAt" yaml:"-"`
}

// FiredResult pairs a rule whose verdict was true with its output payload
type FiredResult struct {
	Rule             *Rule  `json:"rule"`
	RecommendationID string `json:"recommendationId"`
}

// DiagnosticReason classifies why a condition or rule was skipped during evaluation
type DiagnosticReason string

const (
	ReasonProductGroupNotFound DiagnosticReason = "product_group_not_found"
	ReasonUnknownCodeGroup     DiagnosticReason = "unknown_code_group"
	ReasonUnknownRelationship  DiagnosticReason = "unknown_relationship"
	ReasonExpressionFailed     DiagnosticReason = "expression_failed"
)

// Diagnostic describes a non-fatal problem found while evaluating a rule.
// ConditionIndex is -1 when the problem is not tied to a condition.
type Diagnostic struct {
	RuleID         string           `json:"ruleId"`
	RuleName       string           `json:"ruleName"`
	ConditionIndex int              `json:"conditionIndex"`
	ProductGroupID string           `json:"productGroupId,omitempty"`
	Reason         DiagnosticReason `json:"reason"`
	Message        string           `json:"message"`
}
