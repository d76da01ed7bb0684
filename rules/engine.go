package rules

import (
	"fmt"
	"sync"
	"time"

	"cloud.google.com/go/civil"
	"github.com/google/cel-go/cel"

	"github.com/liamcoop/offerrules/internal/logger"
)

// Engine manages rules and product groups, their compiled targeting expressions,
// and evaluation of scenarios against the current snapshot.
// Thread-safe for concurrent reads and mutations.
type Engine struct {
	env      *cel.Env
	rules    RuleStore
	groups   ProductGroupStore
	cache    SnapshotCache
	programs map[string]compiledExpression // ruleID -> compiled targeting expression
	mu       sync.RWMutex

	// now supplies the as-of date when a scenario omits one
	now func() time.Time
}

type compiledExpression struct {
	expression string
	program    cel.Program
}

// Scenario is the operator-supplied input of one evaluation run
type Scenario struct {
	HeldCodes    []string   `json:"heldCodes" yaml:"heldCodes"`
	RenewalCodes []string   `json:"renewalCodes" yaml:"renewalCodes"`
	AsOf         civil.Date `json:"asOf,omitempty" yaml:"asOf,omitempty"`
}

// ScenarioResult is the outcome of one evaluation run
type ScenarioResult struct {
	AsOf           civil.Date      `json:"asOf"`
	CodeSets       DerivedCodeSets `json:"codeSets"`
	Fired          []FiredResult   `json:"fired"`
	Diagnostics    []Diagnostic    `json:"diagnostics"`
	RulesEvaluated int             `json:"rulesEvaluated"`
}

// NewEngine creates an engine over the given stores with an in-memory snapshot cache
func NewEngine(rules RuleStore, groups ProductGroupStore) (*Engine, error) {
	return NewEngineWithCache(rules, groups, NewInMemorySnapshotCache(DefaultCacheConfig()))
}

// NewEngineWithCache creates an engine using the provided snapshot cache.
// All stored targeting expressions are compiled on construction.
func NewEngineWithCache(rules RuleStore, groups ProductGroupStore, cache SnapshotCache) (*Engine, error) {
	env, err := NewExpressionEnv()
	if err != nil {
		return nil, err
	}

	en := &Engine{
		env:      env,
		rules:    rules,
		groups:   groups,
		cache:    cache,
		programs: make(map[string]compiledExpression),
		now:      time.Now,
	}

	if err := en.CompileAllRules(); err != nil {
		return nil, fmt.Errorf("failed to compile rules: %w", err)
	}

	return en, nil
}

// CompileRule compiles a rule's targeting expression and caches the program.
// An empty expression removes any cached program.
func (en *Engine) CompileRule(ruleID, expression string) error {
	if expression == "" {
		en.mu.Lock()
		delete(en.programs, ruleID)
		en.mu.Unlock()
		return nil
	}

	prog, err := CompileExpression(en.env, expression)
	if err != nil {
		return err
	}

	en.mu.Lock()
	en.programs[ruleID] = compiledExpression{expression: expression, program: prog}
	en.mu.Unlock()

	return nil
}

// program returns the compiled expression of r, compiling it when the cached
// program is missing or was built from a different expression. This happens
// when another replica changed the rule behind a shared snapshot cache.
func (en *Engine) program(r *Rule) (cel.Program, error) {
	en.mu.RLock()
	c, ok := en.programs[r.ID]
	en.mu.RUnlock()
	if ok && c.expression == r.Expression {
		return c.program, nil
	}

	if err := en.CompileRule(r.ID, r.Expression); err != nil {
		return nil, err
	}

	en.mu.RLock()
	defer en.mu.RUnlock()
	return en.programs[r.ID].program, nil
}

// CompileAllRules compiles the expressions of every stored rule.
// Also populates the cache with the current snapshot.
func (en *Engine) CompileAllRules() error {
	snapshot, err := en.loadSnapshot()
	if err != nil {
		return err
	}

	for _, rule := range snapshot.Rules {
		if err := en.CompileRule(rule.ID, rule.Expression); err != nil {
			return fmt.Errorf("failed to compile rule %s: %w", rule.ID, err)
		}
	}

	en.cache.Set(snapshot)

	return nil
}

// AddRule validates, compiles and stores a new rule
func (en *Engine) AddRule(r *Rule) error {
	if _, err := en.rules.Get(r.ID); err == nil {
		return fmt.Errorf("rule with ID %s: %w", r.ID, ErrAlreadyExists)
	}

	if err := ValidateRule(r); err != nil {
		return err
	}

	if err := en.CompileRule(r.ID, r.Expression); err != nil {
		return expressionError(err)
	}

	if err := en.rules.Add(r); err != nil {
		// Remove from compiled programs if store fails
		en.mu.Lock()
		delete(en.programs, r.ID)
		en.mu.Unlock()
		return err
	}

	en.cache.Invalidate()

	return nil
}

// UpdateRule validates and recompiles a rule before storing it
func (en *Engine) UpdateRule(r *Rule) error {
	if err := ValidateRule(r); err != nil {
		return err
	}

	if _, err := en.rules.Get(r.ID); err != nil {
		return err
	}

	if r.Expression != "" {
		if _, err := CompileExpression(en.env, r.Expression); err != nil {
			return expressionError(err)
		}
	}

	if err := en.rules.Update(r); err != nil {
		return err
	}

	if err := en.CompileRule(r.ID, r.Expression); err != nil {
		return expressionError(err)
	}

	en.cache.Invalidate()

	return nil
}

// DeleteRule removes a rule from the store and its compiled program
func (en *Engine) DeleteRule(ruleID string) error {
	if err := en.rules.Delete(ruleID); err != nil {
		return err
	}

	en.mu.Lock()
	delete(en.programs, ruleID)
	en.mu.Unlock()

	en.cache.Invalidate()

	return nil
}

// GetRule returns a stored rule
func (en *Engine) GetRule(ruleID string) (*Rule, error) {
	return en.rules.Get(ruleID)
}

// ListRules returns every stored rule in snapshot order
func (en *Engine) ListRules() ([]*Rule, error) {
	return en.rules.List()
}

// AddProductGroup validates and stores a new product group
func (en *Engine) AddProductGroup(g *ProductGroup) error {
	if err := ValidateProductGroup(g); err != nil {
		return err
	}
	if err := en.groups.Add(g); err != nil {
		return err
	}
	en.cache.Invalidate()
	return nil
}

// UpdateProductGroup validates and stores an existing product group
func (en *Engine) UpdateProductGroup(g *ProductGroup) error {
	if err := ValidateProductGroup(g); err != nil {
		return err
	}
	if err := en.groups.Update(g); err != nil {
		return err
	}
	en.cache.Invalidate()
	return nil
}

// DeleteProductGroup removes a product group. Conditions that reference it are
// skipped by later evaluations.
func (en *Engine) DeleteProductGroup(id string) error {
	if err := en.groups.Delete(id); err != nil {
		return err
	}
	en.cache.Invalidate()
	return nil
}

// GetProductGroup returns a stored product group
func (en *Engine) GetProductGroup(id string) (*ProductGroup, error) {
	return en.groups.Get(id)
}

// ListProductGroups returns every stored product group
func (en *Engine) ListProductGroups() ([]*ProductGroup, error) {
	return en.groups.List()
}

// Snapshot returns the rules and product groups the next evaluation will read.
// Uses the cache to avoid store queries on every evaluation.
func (en *Engine) Snapshot() (*Snapshot, error) {
	if snapshot := en.cache.Get(); snapshot != nil {
		return snapshot, nil
	}

	snapshot, err := en.loadSnapshot()
	if err != nil {
		return nil, err
	}
	en.cache.Set(snapshot)
	return snapshot, nil
}

func (en *Engine) loadSnapshot() (*Snapshot, error) {
	rules, err := en.rules.List()
	if err != nil {
		return nil, fmt.Errorf("failed to load rules: %w", err)
	}
	groups, err := en.groups.List()
	if err != nil {
		return nil, fmt.Errorf("failed to load product groups: %w", err)
	}
	return &Snapshot{Rules: rules, Groups: groups}, nil
}

// EvaluateScenario derives the code sets of s and evaluates the current snapshot.
// A zero AsOf means today. Skipped conditions and failed targeting expressions are
// reported as diagnostics and never abort the run.
func (en *Engine) EvaluateScenario(s Scenario) (*ScenarioResult, error) {
	snapshot, err := en.Snapshot()
	if err != nil {
		return nil, err
	}

	today := s.AsOf
	if today.IsZero() {
		today = civil.DateOf(en.now())
	}

	sets := DeriveCodeSets(s.HeldCodes, s.RenewalCodes)
	fired, diagnostics := Evaluate(snapshot.Rules, NewGroupIndex(snapshot.Groups), sets, today)

	// Targeting expressions narrow the rules the condition fold selected
	kept := fired[:0]
	for _, f := range fired {
		if f.Rule.Expression == "" {
			kept = append(kept, f)
			continue
		}

		prog, err := en.program(f.Rule)
		if err != nil {
			diagnostics = append(diagnostics, expressionDiagnostic(f.Rule, err))
			continue
		}

		matched, err := EvalExpression(prog, sets, today)
		if err != nil {
			diagnostics = append(diagnostics, expressionDiagnostic(f.Rule, err))
			continue
		}
		if matched {
			kept = append(kept, f)
		}
	}

	for _, d := range diagnostics {
		logger.Warn("rule evaluation diagnostic",
			"rule_id", d.RuleID,
			"rule_name", d.RuleName,
			"condition_index", d.ConditionIndex,
			"product_group_id", d.ProductGroupID,
			"reason", string(d.Reason),
			"message", d.Message,
		)
	}

	active := 0
	for _, r := range snapshot.Rules {
		if r.IsActive(today) {
			active++
		}
	}

	return &ScenarioResult{
		AsOf:           today,
		CodeSets:       sets,
		Fired:          kept,
		Diagnostics:    diagnostics,
		RulesEvaluated: active,
	}, nil
}

func expressionDiagnostic(r *Rule, err error) Diagnostic {
	return Diagnostic{
		RuleID:         r.ID,
		RuleName:       r.Name,
		ConditionIndex: -1,
		Reason:         ReasonExpressionFailed,
		Message:        err.Error(),
	}
}

func expressionError(err error) error {
	return &ValidationError{Problems: []string{"expression: " + err.Error()}}
}
