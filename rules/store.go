package rules

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

var (
	// ErrNotFound is returned when a record does not exist
	ErrNotFound = errors.New("not found")

	// ErrAlreadyExists is returned when adding a record whose ID is taken
	ErrAlreadyExists = errors.New("already exists")

	// ErrInUse is returned when deleting a record other records still reference
	ErrInUse = errors.New("in use")
)

// RuleStore manages rule persistence and retrieval
type RuleStore interface {
	// Add a new rule
	Add(rule *Rule) error

	// Get a rule by ID
	Get(id string) (*Rule, error)

	// List all rules in creation order
	List() ([]*Rule, error)

	// Update an existing rule
	Update(rule *Rule) error

	// Delete a rule
	Delete(id string) error
}

// ProductGroupStore manages product group persistence and retrieval
type ProductGroupStore interface {
	Add(group *ProductGroup) error
	Get(id string) (*ProductGroup, error)
	List() ([]*ProductGroup, error)
	Update(group *ProductGroup) error
	Delete(id string) error
}

// RecommendationStore manages recommendation persistence and retrieval
type RecommendationStore interface {
	Add(rec *Recommendation) error
	Get(id string) (*Recommendation, error)
	List() ([]*Recommendation, error)
	Update(rec *Recommendation) error
	Delete(id string) error
}

// memoryRecords keeps records keyed by ID in insertion order.
// Thread-safe with RWMutex.
type memoryRecords[T any] struct {
	kind    string
	records map[string]*T
	order   []string
	stamp   func(rec *T, created, updated time.Time)
	created func(rec *T) time.Time
	mu      sync.RWMutex
}

func newMemoryRecords[T any](kind string, stamp func(*T, time.Time, time.Time), created func(*T) time.Time) *memoryRecords[T] {
	return &memoryRecords[T]{
		kind:    kind,
		records: make(map[string]*T),
		stamp:   stamp,
		created: created,
	}
}

func (s *memoryRecords[T]) add(id string, rec *T) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.records[id]; exists {
		return fmt.Errorf("%s with ID %s: %w", s.kind, id, ErrAlreadyExists)
	}

	now := time.Now()
	s.stamp(rec, now, now)
	s.records[id] = rec
	s.order = append(s.order, id)
	return nil
}

func (s *memoryRecords[T]) get(id string) (*T, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, exists := s.records[id]
	if !exists {
		return nil, fmt.Errorf("%s with ID %s: %w", s.kind, id, ErrNotFound)
	}
	return rec, nil
}

func (s *memoryRecords[T]) list() []*T {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*T, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.records[id])
	}
	return out
}

// update replaces the record and preserves its original creation time
func (s *memoryRecords[T]) update(id string, rec *T) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, exists := s.records[id]
	if !exists {
		return fmt.Errorf("%s with ID %s: %w", s.kind, id, ErrNotFound)
	}

	s.stamp(rec, s.created(existing), time.Now())
	s.records[id] = rec
	return nil
}

func (s *memoryRecords[T]) delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.records[id]; !exists {
		return fmt.Errorf("%s with ID %s: %w", s.kind, id, ErrNotFound)
	}

	delete(s.records, id)
	for i, v := range s.order {
		if v == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return nil
}

// InMemoryRuleStore implements RuleStore using an in-memory map.
// List returns rules in insertion order.
type InMemoryRuleStore struct {
	records *memoryRecords[Rule]
}

// NewInMemoryRuleStore creates a new in-memory rule store
func NewInMemoryRuleStore() *InMemoryRuleStore {
	return &InMemoryRuleStore{
		records: newMemoryRecords("rule",
			func(r *Rule, created, updated time.Time) { r.CreatedAt, r.UpdatedAt = created, updated },
			func(r *Rule) time.Time { return r.CreatedAt },
		),
	}
}

// Add adds a new rule to the store and sets its timestamps
func (s *InMemoryRuleStore) Add(rule *Rule) error { return s.records.add(rule.ID, rule) }

// Get retrieves a rule by ID
func (s *InMemoryRuleStore) Get(id string) (*Rule, error) { return s.records.get(id) }

// List returns all rules in insertion order
func (s *InMemoryRuleStore) List() ([]*Rule, error) { return s.records.list(), nil }

// Update updates an existing rule, preserving CreatedAt
func (s *InMemoryRuleStore) Update(rule *Rule) error { return s.records.update(rule.ID, rule) }

// Delete removes a rule from the store
func (s *InMemoryRuleStore) Delete(id string) error { return s.records.delete(id) }

// InMemoryProductGroupStore implements ProductGroupStore using an in-memory map
type InMemoryProductGroupStore struct {
	records *memoryRecords[ProductGroup]
}

// NewInMemoryProductGroupStore creates a new in-memory product group store
func NewInMemoryProductGroupStore() *InMemoryProductGroupStore {
	return &InMemoryProductGroupStore{
		records: newMemoryRecords("product group",
			func(g *ProductGroup, created, updated time.Time) { g.CreatedAt, g.UpdatedAt = created, updated },
			func(g *ProductGroup) time.Time { return g.CreatedAt },
		),
	}
}

func (s *InMemoryProductGroupStore) Add(group *ProductGroup) error {
	return s.records.add(group.ID, group)
}

func (s *InMemoryProductGroupStore) Get(id string) (*ProductGroup, error) {
	return s.records.get(id)
}

func (s *InMemoryProductGroupStore) List() ([]*ProductGroup, error) {
	return s.records.list(), nil
}

func (s *InMemoryProductGroupStore) Update(group *ProductGroup) error {
	return s.records.update(group.ID, group)
}

func (s *InMemoryProductGroupStore) Delete(id string) error {
	return s.records.delete(id)
}

// InMemoryRecommendationStore implements RecommendationStore using an in-memory map
type InMemoryRecommendationStore struct {
	records *memoryRecords[Recommendation]
}

// NewInMemoryRecommendationStore creates a new in-memory recommendation store
func NewInMemoryRecommendationStore() *InMemoryRecommendationStore {
	return &InMemoryRecommendationStore{
		records: newMemoryRecords("recommendation",
			func(r *Recommendation, created, updated time.Time) { r.CreatedAt, r.UpdatedAt = created, updated },
			func(r *Recommendation) time.Time { return r.CreatedAt },
		),
	}
}

func (s *InMemoryRecommendationStore) Add(rec *Recommendation) error {
	return s.records.add(rec.ID, rec)
}

func (s *InMemoryRecommendationStore) Get(id string) (*Recommendation, error) {
	return s.records.get(id)
}

func (s *InMemoryRecommendationStore) List() ([]*Recommendation, error) {
	return s.records.list(), nil
}

func (s *InMemoryRecommendationStore) Update(rec *Recommendation) error {
	return s.records.update(rec.ID, rec)
}

func (s *InMemoryRecommendationStore) Delete(id string) error {
	return s.records.delete(id)
}
