package rules

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/civil"
	"github.com/lib/pq"
)

// PostgresRuleStore implements RuleStore backed by PostgreSQL.
// Conditions are stored as a JSONB array on the rule row.
type PostgresRuleStore struct {
	db *sql.DB
}

// NewPostgresRuleStore creates a new PostgreSQL-backed RuleStore
func NewPostgresRuleStore(db *sql.DB) *PostgresRuleStore {
	return &PostgresRuleStore{db: db}
}

const ruleColumns = `id, name, enabled, start_date, end_date, conditions, recommendation_id, expression, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRule(row rowScanner) (*Rule, error) {
	var (
		r          Rule
		start, end time.Time
		conditions []byte
	)
	if err := row.Scan(&r.ID, &r.Name, &r.Enabled, &start, &end, &conditions,
		&r.RecommendationID, &r.Expression, &r.CreatedAt, &r.UpdatedAt); err != nil {
		return nil, err
	}

	r.StartDate = civil.DateOf(start)
	r.EndDate = civil.DateOf(end)
	if err := json.Unmarshal(conditions, &r.Conditions); err != nil {
		return nil, fmt.Errorf("failed to decode conditions of rule %s: %w", r.ID, err)
	}
	return &r, nil
}

// Add inserts a new rule into the database
func (s *PostgresRuleStore) Add(rule *Rule) error {
	conditions, err := json.Marshal(rule.Conditions)
	if err != nil {
		return fmt.Errorf("failed to encode conditions: %w", err)
	}

	now := time.Now()
	rule.CreatedAt = now
	rule.UpdatedAt = now

	_, err = s.db.Exec(`
		INSERT INTO rules (`+ruleColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, rule.ID, rule.Name, rule.Enabled, rule.StartDate.String(), rule.EndDate.String(),
		string(conditions), rule.RecommendationID, rule.Expression, rule.CreatedAt, rule.UpdatedAt)
	if isUniqueViolation(err) {
		return fmt.Errorf("rule with ID %s: %w", rule.ID, ErrAlreadyExists)
	}
	if err != nil {
		return fmt.Errorf("failed to insert rule: %w", err)
	}

	return nil
}

// Get retrieves a rule by ID
func (s *PostgresRuleStore) Get(id string) (*Rule, error) {
	rule, err := scanRule(s.db.QueryRow(`SELECT `+ruleColumns+` FROM rules WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("rule with ID %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get rule: %w", err)
	}

	return rule, nil
}

// List returns all rules in creation order
func (s *PostgresRuleStore) List() ([]*Rule, error) {
	rows, err := s.db.Query(`SELECT ` + ruleColumns + ` FROM rules ORDER BY created_at ASC, id ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list rules: %w", err)
	}
	defer rows.Close()

	var rulesList []*Rule
	for rows.Next() {
		r, err := scanRule(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan rule: %w", err)
		}
		rulesList = append(rulesList, r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rules: %w", err)
	}

	return rulesList, nil
}

// Update modifies an existing rule
func (s *PostgresRuleStore) Update(rule *Rule) error {
	conditions, err := json.Marshal(rule.Conditions)
	if err != nil {
		return fmt.Errorf("failed to encode conditions: %w", err)
	}

	rule.UpdatedAt = time.Now()

	err = s.db.QueryRow(`
		UPDATE rules
		SET name = $1, enabled = $2, start_date = $3, end_date = $4, conditions = $5,
		    recommendation_id = $6, expression = $7, updated_at = $8
		WHERE id = $9
		RETURNING created_at
	`, rule.Name, rule.Enabled, rule.StartDate.String(), rule.EndDate.String(), string(conditions),
		rule.RecommendationID, rule.Expression, rule.UpdatedAt, rule.ID).Scan(&rule.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("rule with ID %s: %w", rule.ID, ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("failed to update rule: %w", err)
	}

	return nil
}

// Delete removes a rule from the database
func (s *PostgresRuleStore) Delete(id string) error {
	return deleteByID(s.db, "rules", "rule", id)
}

// PostgresProductGroupStore implements ProductGroupStore backed by PostgreSQL.
// Codes are stored in a TEXT[] column.
type PostgresProductGroupStore struct {
	db *sql.DB
}

// NewPostgresProductGroupStore creates a new PostgreSQL-backed ProductGroupStore
func NewPostgresProductGroupStore(db *sql.DB) *PostgresProductGroupStore {
	return &PostgresProductGroupStore{db: db}
}

func scanProductGroup(row rowScanner) (*ProductGroup, error) {
	var g ProductGroup
	if err := row.Scan(&g.ID, &g.Name, pq.Array(&g.Codes), &g.CreatedAt, &g.UpdatedAt); err != nil {
		return nil, err
	}
	return &g, nil
}

// Add inserts a new product group
func (s *PostgresProductGroupStore) Add(group *ProductGroup) error {
	now := time.Now()
	group.CreatedAt = now
	group.UpdatedAt = now

	_, err := s.db.Exec(`
		INSERT INTO product_groups (id, name, codes, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
	`, group.ID, group.Name, pq.Array(group.Codes), group.CreatedAt, group.UpdatedAt)
	if isUniqueViolation(err) {
		return fmt.Errorf("product group with ID %s: %w", group.ID, ErrAlreadyExists)
	}
	if err != nil {
		return fmt.Errorf("failed to insert product group: %w", err)
	}
	return nil
}

// Get retrieves a product group by ID
func (s *PostgresProductGroupStore) Get(id string) (*ProductGroup, error) {
	g, err := scanProductGroup(s.db.QueryRow(`
		SELECT id, name, codes, created_at, updated_at FROM product_groups WHERE id = $1
	`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("product group with ID %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get product group: %w", err)
	}
	return g, nil
}

// List returns all product groups in creation order
func (s *PostgresProductGroupStore) List() ([]*ProductGroup, error) {
	rows, err := s.db.Query(`
		SELECT id, name, codes, created_at, updated_at FROM product_groups ORDER BY created_at ASC, id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list product groups: %w", err)
	}
	defer rows.Close()

	var groups []*ProductGroup
	for rows.Next() {
		g, err := scanProductGroup(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan product group: %w", err)
		}
		groups = append(groups, g)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating product groups: %w", err)
	}
	return groups, nil
}

// Update modifies an existing product group
func (s *PostgresProductGroupStore) Update(group *ProductGroup) error {
	group.UpdatedAt = time.Now()

	err := s.db.QueryRow(`
		UPDATE product_groups SET name = $1, codes = $2, updated_at = $3
		WHERE id = $4
		RETURNING created_at
	`, group.Name, pq.Array(group.Codes), group.UpdatedAt, group.ID).Scan(&group.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("product group with ID %s: %w", group.ID, ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("failed to update product group: %w", err)
	}
	return nil
}

// Delete removes a product group. Rules referencing it are left untouched.
func (s *PostgresProductGroupStore) Delete(id string) error {
	return deleteByID(s.db, "product_groups", "product group", id)
}

// PostgresRecommendationStore implements RecommendationStore backed by PostgreSQL
type PostgresRecommendationStore struct {
	db *sql.DB
}

// NewPostgresRecommendationStore creates a new PostgreSQL-backed RecommendationStore
func NewPostgresRecommendationStore(db *sql.DB) *PostgresRecommendationStore {
	return &PostgresRecommendationStore{db: db}
}

func scanRecommendation(row rowScanner) (*Recommendation, error) {
	var r Recommendation
	if err := row.Scan(&r.ID, &r.Name, &r.URL, &r.CreatedAt, &r.UpdatedAt); err != nil {
		return nil, err
	}
	return &r, nil
}

// Add inserts a new recommendation
func (s *PostgresRecommendationStore) Add(rec *Recommendation) error {
	now := time.Now()
	rec.CreatedAt = now
	rec.UpdatedAt = now

	_, err := s.db.Exec(`
		INSERT INTO recommendations (id, name, url, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
	`, rec.ID, rec.Name, rec.URL, rec.CreatedAt, rec.UpdatedAt)
	if isUniqueViolation(err) {
		return fmt.Errorf("recommendation with ID %s: %w", rec.ID, ErrAlreadyExists)
	}
	if err != nil {
		return fmt.Errorf("failed to insert recommendation: %w", err)
	}
	return nil
}

// Get retrieves a recommendation by ID
func (s *PostgresRecommendationStore) Get(id string) (*Recommendation, error) {
	r, err := scanRecommendation(s.db.QueryRow(`
		SELECT id, name, url, created_at, updated_at FROM recommendations WHERE id = $1
	`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("recommendation with ID %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get recommendation: %w", err)
	}
	return r, nil
}

// List returns all recommendations in creation order
func (s *PostgresRecommendationStore) List() ([]*Recommendation, error) {
	rows, err := s.db.Query(`
		SELECT id, name, url, created_at, updated_at FROM recommendations ORDER BY created_at ASC, id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list recommendations: %w", err)
	}
	defer rows.Close()

	var recs []*Recommendation
	for rows.Next() {
		r, err := scanRecommendation(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan recommendation: %w", err)
		}
		recs = append(recs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating recommendations: %w", err)
	}
	return recs, nil
}

// Update modifies an existing recommendation
func (s *PostgresRecommendationStore) Update(rec *Recommendation) error {
	rec.UpdatedAt = time.Now()

	err := s.db.QueryRow(`
		UPDATE recommendations SET name = $1, url = $2, updated_at = $3
		WHERE id = $4
		RETURNING created_at
	`, rec.Name, rec.URL, rec.UpdatedAt, rec.ID).Scan(&rec.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("recommendation with ID %s: %w", rec.ID, ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("failed to update recommendation: %w", err)
	}
	return nil
}

// Delete removes a recommendation
func (s *PostgresRecommendationStore) Delete(id string) error {
	return deleteByID(s.db, "recommendations", "recommendation", id)
}

// deleteByID deletes one row by primary key. table is never caller input.
func deleteByID(db *sql.DB, table, kind, id string) error {
	result, err := db.Exec(`DELETE FROM `+table+` WHERE id = $1`, id)
	if isForeignKeyViolation(err) {
		return fmt.Errorf("%s with ID %s: %w", kind, id, ErrInUse)
	}
	if err != nil {
		return fmt.Errorf("failed to delete %s: %w", kind, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("%s with ID %s: %w", kind, id, ErrNotFound)
	}

	return nil
}

// isUniqueViolation reports whether err is a Postgres unique_violation
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}

// isForeignKeyViolation reports whether err is a Postgres foreign_key_violation
func isForeignKeyViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23503"
}
