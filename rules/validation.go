package rules

import (
	"fmt"
	"net/url"
	"strings"
)

const (
	maxNameLength = 200
	maxConditions = 100
	maxGroupCodes = 10000
	maxCodeLength = 100
)

// ValidationError lists every problem found in a record
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return "validation failed: " + strings.Join(e.Problems, "; ")
}

func (e *ValidationError) addf(format string, args ...any) {
	e.Problems = append(e.Problems, fmt.Sprintf(format, args...))
}

func (e *ValidationError) orNil() error {
	if len(e.Problems) == 0 {
		return nil
	}
	return e
}

// ValidateRule checks a rule before it is stored. A connector on the first
// condition is accepted; it never takes part in the verdict.
func ValidateRule(r *Rule) error {
	verr := &ValidationError{}

	if strings.TrimSpace(r.ID) == "" {
		verr.addf("id is required")
	}
	validateName(verr, r.Name)

	if r.StartDate.IsZero() || !r.StartDate.IsValid() {
		verr.addf("startDate must be a valid date")
	}
	if r.EndDate.IsZero() || !r.EndDate.IsValid() {
		verr.addf("endDate must be a valid date")
	}
	if r.StartDate.After(r.EndDate) {
		verr.addf("startDate %s is after endDate %s", r.StartDate, r.EndDate)
	}

	if strings.TrimSpace(r.RecommendationID) == "" {
		verr.addf("recommendationId is required")
	}

	if len(r.Conditions) == 0 {
		verr.addf("at least one condition is required")
	}
	if len(r.Conditions) > maxConditions {
		verr.addf("rule has %d conditions, maximum allowed is %d", len(r.Conditions), maxConditions)
	}
	for i, c := range r.Conditions {
		if !c.Connector.Valid() {
			verr.addf("condition %d: invalid connector %q (must be AND or OR)", i, c.Connector)
		}
		if !c.CodeGroup.Valid() {
			verr.addf("condition %d: invalid codeGroup %q", i, c.CodeGroup)
		}
		if !c.Relationship.Valid() {
			verr.addf("condition %d: invalid relationship %q", i, c.Relationship)
		}
		if strings.TrimSpace(c.ProductGroupID) == "" {
			verr.addf("condition %d: productGroupId is required", i)
		}
	}

	return verr.orNil()
}

// ValidateProductGroup checks a product group and collapses duplicate codes in place
func ValidateProductGroup(g *ProductGroup) error {
	verr := &ValidationError{}

	if strings.TrimSpace(g.ID) == "" {
		verr.addf("id is required")
	}
	validateName(verr, g.Name)

	if len(g.Codes) > maxGroupCodes {
		verr.addf("group has %d codes, maximum allowed is %d", len(g.Codes), maxGroupCodes)
	}

	seen := make(map[string]bool, len(g.Codes))
	codes := make([]string, 0, len(g.Codes))
	for i, code := range g.Codes {
		switch {
		case code == "":
			verr.addf("code %d is empty", i)
			continue
		case strings.TrimSpace(code) != code:
			verr.addf("code %q has leading or trailing whitespace", code)
		case len(code) > maxCodeLength:
			verr.addf("code %d exceeds maximum length of %d", i, maxCodeLength)
		}
		if !seen[code] {
			seen[code] = true
			codes = append(codes, code)
		}
	}
	g.Codes = codes

	return verr.orNil()
}

// ValidateRecommendation checks a recommendation; its URL must be absolute when set
func ValidateRecommendation(rec *Recommendation) error {
	verr := &ValidationError{}

	if strings.TrimSpace(rec.ID) == "" {
		verr.addf("id is required")
	}
	validateName(verr, rec.Name)

	if rec.URL != "" {
		u, err := url.Parse(rec.URL)
		if err != nil || !u.IsAbs() || u.Host == "" {
			verr.addf("url %q must be an absolute URL", rec.URL)
		}
	}

	return verr.orNil()
}

func validateName(verr *ValidationError, name string) {
	if strings.TrimSpace(name) == "" {
		verr.addf("name is required")
		return
	}
	if len(name) > maxNameLength {
		verr.addf("name length %d exceeds maximum of %d characters", len(name), maxNameLength)
	}
}
