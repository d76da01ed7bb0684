package main

import (
	"cloud.google.com/go/civil"

	"github.com/liamcoop/offerrules/rules"
)

// API request and response models

// EvaluateRequest is the scenario an operator submits for evaluation
type EvaluateRequest struct {
	HeldCodes    []string    `json:"heldCodes"`
	RenewalCodes []string    `json:"renewalCodes"`
	AsOf         *civil.Date `json:"asOf,omitempty"`
}

// FiredRuleResponse is one rule that fired, with the artifact it points at
type FiredRuleResponse struct {
	RuleID           string `json:"ruleId"`
	RuleName         string `json:"ruleName"`
	RecommendationID string `json:"recommendationId"`
	URL              string `json:"url"`
}

// EvaluateResponse is the outcome of one evaluation run
type EvaluateResponse struct {
	AsOf           civil.Date            `json:"asOf"`
	Results        []FiredRuleResponse   `json:"results"`
	Diagnostics    []rules.Diagnostic    `json:"diagnostics"`
	CodeSets       rules.DerivedCodeSets `json:"codeSets"`
	RulesEvaluated int                   `json:"rulesEvaluated"`
	EvaluationTime string                `json:"evaluationTime"`
}

// RuleRequest is the body for creating or replacing a rule.
// ID is generated on create when empty and taken from the path on update.
type RuleRequest struct {
	ID               string            `json:"id,omitempty"`
	Name             string            `json:"name"`
	Enabled          *bool             `json:"enabled,omitempty"`
	StartDate        civil.Date        `json:"startDate"`
	EndDate          civil.Date        `json:"endDate"`
	Conditions       []rules.Condition `json:"conditions"`
	RecommendationID string            `json:"recommendationId"`
	Expression       string            `json:"expression,omitempty"`
}

// toRule builds the rule the request describes. Enabled defaults to true.
func (req RuleRequest) toRule(id string) *rules.Rule {
	enabled := true
	if req.Enabled != nil {
		enabled = *req.Enabled
	}
	return &rules.Rule{
		ID:               id,
		Name:             req.Name,
		Enabled:          enabled,
		StartDate:        req.StartDate,
		EndDate:          req.EndDate,
		Conditions:       req.Conditions,
		RecommendationID: req.RecommendationID,
		Expression:       req.Expression,
	}
}

// RulesListResponse represents the response for listing rules
type RulesListResponse struct {
	Rules []*rules.Rule `json:"rules"`
}

// ProductGroupRequest is the body for creating or replacing a product group
type ProductGroupRequest struct {
	ID    string   `json:"id,omitempty"`
	Name  string   `json:"name"`
	Codes []string `json:"codes"`
}

// ProductGroupsListResponse represents the response for listing product groups
type ProductGroupsListResponse struct {
	ProductGroups []*rules.ProductGroup `json:"productGroups"`
}

// RecommendationRequest is the body for creating or replacing a recommendation
type RecommendationRequest struct {
	ID   string `json:"id,omitempty"`
	Name string `json:"name"`
	URL  string `json:"url,omitempty"`
}

// RecommendationsListResponse represents the response for listing recommendations
type RecommendationsListResponse struct {
	Recommendations []*rules.Recommendation `json:"recommendations"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status        string `json:"status"`
	Rules         int    `json:"rules"`
	ProductGroups int    `json:"productGroups"`
	Error         string `json:"error,omitempty"`
}
