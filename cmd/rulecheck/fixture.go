package main

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/liamcoop/offerrules/rules"
)

// Fixture is an offline description of recommendations, product groups, rules
// and an optional scenario to evaluate them against
type Fixture struct {
	Recommendations []*rules.Recommendation `yaml:"recommendations"`
	ProductGroups   []*rules.ProductGroup   `yaml:"productGroups"`
	Rules           []*rules.Rule           `yaml:"rules"`
	Scenario        *rules.Scenario         `yaml:"scenario"`
}

// LoadFixture reads a YAML fixture. Unknown fields and unknown enum values are rejected.
func LoadFixture(path string) (*Fixture, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read fixture: %w", err)
	}

	var f Fixture
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to parse fixture %s: %w", path, err)
	}
	return &f, nil
}

// Validate checks every record and the references between them.
// Rules may name product groups the fixture does not define; evaluation reports them.
func (f *Fixture) Validate() error {
	var errs []error

	recs := make(map[string]bool, len(f.Recommendations))
	for i, rec := range f.Recommendations {
		if err := rules.ValidateRecommendation(rec); err != nil {
			errs = append(errs, fmt.Errorf("recommendation %d (%s): %w", i, rec.ID, err))
		}
		if recs[rec.ID] {
			errs = append(errs, fmt.Errorf("recommendation %d: duplicate ID %s", i, rec.ID))
		}
		recs[rec.ID] = true
	}

	groups := make(map[string]bool, len(f.ProductGroups))
	for i, g := range f.ProductGroups {
		if err := rules.ValidateProductGroup(g); err != nil {
			errs = append(errs, fmt.Errorf("product group %d (%s): %w", i, g.ID, err))
		}
		if groups[g.ID] {
			errs = append(errs, fmt.Errorf("product group %d: duplicate ID %s", i, g.ID))
		}
		groups[g.ID] = true
	}

	ids := make(map[string]bool, len(f.Rules))
	for i, r := range f.Rules {
		if err := rules.ValidateRule(r); err != nil {
			errs = append(errs, fmt.Errorf("rule %d (%s): %w", i, r.ID, err))
		}
		if ids[r.ID] {
			errs = append(errs, fmt.Errorf("rule %d: duplicate ID %s", i, r.ID))
		}
		ids[r.ID] = true

		// References are only checked when the fixture lists recommendations
		if len(recs) > 0 && r.RecommendationID != "" && !recs[r.RecommendationID] {
			errs = append(errs, fmt.Errorf("rule %d (%s): recommendation %s does not exist", i, r.ID, r.RecommendationID))
		}
	}

	return errors.Join(errs...)
}

// Engine loads the fixture's product groups and rules into an in-memory engine
func (f *Fixture) Engine() (*rules.Engine, error) {
	engine, err := rules.NewEngine(rules.NewInMemoryRuleStore(), rules.NewInMemoryProductGroupStore())
	if err != nil {
		return nil, err
	}

	for _, g := range f.ProductGroups {
		if err := engine.AddProductGroup(g); err != nil {
			return nil, fmt.Errorf("product group %s: %w", g.ID, err)
		}
	}
	for _, r := range f.Rules {
		if err := engine.AddRule(r); err != nil {
			return nil, fmt.Errorf("rule %s: %w", r.ID, err)
		}
	}
	return engine, nil
}
