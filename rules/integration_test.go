//go:build integration

package rules_test

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"cloud.google.com/go/civil"
	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	_ "github.com/lib/pq"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/liamcoop/offerrules/rules"
)

// setupTestDB creates a PostgreSQL container and returns a migrated connection
func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "postgres:16-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "test",
			"POSTGRES_PASSWORD": "test",
			"POSTGRES_DB":       "offerrules_test",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Fatalf("Failed to start PostgreSQL container: %v", err)
	}
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("Failed to get container host: %v", err)
	}
	port, err := container.MappedPort(ctx, "5432")
	if err != nil {
		t.Fatalf("Failed to get container port: %v", err)
	}

	connStr := fmt.Sprintf("host=%s port=%s user=test password=test dbname=offerrules_test sslmode=disable", host, port.Port())

	db, err := sql.Open("postgres", connStr)
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	for i := 0; i < 30; i++ {
		if err = db.Ping(); err == nil {
			break
		}
		time.Sleep(time.Second)
	}
	if err != nil {
		t.Fatalf("Failed to connect to database: %v", err)
	}

	migrationSQL, err := os.ReadFile(filepath.Join("..", "migrations", "000001_initial_schema.up.sql"))
	if err != nil {
		t.Fatalf("Failed to read migration file: %v", err)
	}
	if _, err := db.Exec(string(migrationSQL)); err != nil {
		t.Fatalf("Failed to run migration: %v", err)
	}

	return db
}

func mustDate(t *testing.T, s string) civil.Date {
	t.Helper()
	d, err := civil.ParseDate(s)
	if err != nil {
		t.Fatalf("civil.ParseDate(%q) failed: %v", s, err)
	}
	return d
}

func TestPostgresStores(t *testing.T) {
	db := setupTestDB(t)

	recs := rules.NewPostgresRecommendationStore(db)
	groups := rules.NewPostgresProductGroupStore(db)
	ruleStore := rules.NewPostgresRuleStore(db)

	ignoreTimestamps := cmpopts.IgnoreFields(rules.Rule{}, "CreatedAt", "UpdatedAt")

	t.Run("Recommendations", func(t *testing.T) {
		rec := &rules.Recommendation{ID: "rec-1", Name: "Upgrade", URL: "https://example.com/upgrade"}
		if err := recs.Add(rec); err != nil {
			t.Fatalf("Add() failed: %v", err)
		}
		if err := recs.Add(&rules.Recommendation{ID: "rec-1", Name: "Again"}); !errors.Is(err, rules.ErrAlreadyExists) {
			t.Errorf("Add() duplicate error = %v, want ErrAlreadyExists", err)
		}
		if err := recs.Add(&rules.Recommendation{ID: "rec-2", Name: "Renew"}); err != nil {
			t.Fatalf("Add() failed: %v", err)
		}

		got, err := recs.Get("rec-1")
		if err != nil {
			t.Fatalf("Get() failed: %v", err)
		}
		if got.URL != rec.URL {
			t.Errorf("URL = %q, want %q", got.URL, rec.URL)
		}

		if _, err := recs.Get("missing"); !errors.Is(err, rules.ErrNotFound) {
			t.Errorf("Get() missing error = %v, want ErrNotFound", err)
		}

		list, err := recs.List()
		if err != nil {
			t.Fatalf("List() failed: %v", err)
		}
		if len(list) != 2 || list[0].ID != "rec-1" || list[1].ID != "rec-2" {
			t.Errorf("List() returned %d recommendations out of order", len(list))
		}
	})

	t.Run("ProductGroups", func(t *testing.T) {
		g := &rules.ProductGroup{ID: "hardware", Name: "Hardware", Codes: []string{"HW1", "HW2"}}
		if err := groups.Add(g); err != nil {
			t.Fatalf("Add() failed: %v", err)
		}
		created := g.CreatedAt

		if err := groups.Add(&rules.ProductGroup{ID: "empty", Name: "Empty", Codes: []string{}}); err != nil {
			t.Fatalf("Add() empty group failed: %v", err)
		}

		update := &rules.ProductGroup{ID: "hardware", Name: "Hardware", Codes: []string{"HW3"}}
		if err := groups.Update(update); err != nil {
			t.Fatalf("Update() failed: %v", err)
		}
		if !update.CreatedAt.Equal(created) {
			t.Errorf("Update() CreatedAt = %v, want %v", update.CreatedAt, created)
		}

		got, err := groups.Get("hardware")
		if err != nil {
			t.Fatalf("Get() failed: %v", err)
		}
		if diff := cmp.Diff([]string{"HW3"}, got.Codes); diff != "" {
			t.Errorf("Codes mismatch (-want +got):\n%s", diff)
		}

		empty, err := groups.Get("empty")
		if err != nil {
			t.Fatalf("Get() failed: %v", err)
		}
		if len(empty.Codes) != 0 {
			t.Errorf("Codes = %v, want empty", empty.Codes)
		}

		if err := groups.Update(&rules.ProductGroup{ID: "missing", Name: "Missing"}); !errors.Is(err, rules.ErrNotFound) {
			t.Errorf("Update() missing error = %v, want ErrNotFound", err)
		}
	})

	t.Run("Rules", func(t *testing.T) {
		first := &rules.Rule{
			ID:        "r-upgrade",
			Name:      "Upgrade",
			Enabled:   true,
			StartDate: mustDate(t, "2024-01-01"),
			EndDate:   mustDate(t, "2024-12-31"),
			Conditions: []rules.Condition{
				{CodeGroup: rules.CustomerCodes, ProductGroupID: "hardware", Relationship: rules.ContainsAny},
				{Connector: rules.Or, CodeGroup: rules.OpportunityCodes, ProductGroupID: "empty", Relationship: rules.ContainsNone},
			},
			RecommendationID: "rec-1",
			Expression:       `"HW3" in customerCodes`,
		}
		second := &rules.Rule{
			ID:        "r-renew",
			Name:      "Renew",
			StartDate: mustDate(t, "2024-02-29"),
			EndDate:   mustDate(t, "2024-02-29"),
			Conditions: []rules.Condition{
				{CodeGroup: rules.RenewalCodes, ProductGroupID: "hardware", Relationship: rules.ContainsAll},
			},
			RecommendationID: "rec-2",
		}

		for _, r := range []*rules.Rule{first, second} {
			if err := ruleStore.Add(r); err != nil {
				t.Fatalf("Add(%s) failed: %v", r.ID, err)
			}
		}
		if err := ruleStore.Add(first); !errors.Is(err, rules.ErrAlreadyExists) {
			t.Errorf("Add() duplicate error = %v, want ErrAlreadyExists", err)
		}

		got, err := ruleStore.Get("r-upgrade")
		if err != nil {
			t.Fatalf("Get() failed: %v", err)
		}
		if diff := cmp.Diff(first, got, ignoreTimestamps); diff != "" {
			t.Errorf("round trip mismatch (-want +got):\n%s", diff)
		}

		list, err := ruleStore.List()
		if err != nil {
			t.Fatalf("List() failed: %v", err)
		}
		if len(list) != 2 || list[0].ID != "r-upgrade" || list[1].ID != "r-renew" {
			t.Errorf("List() should return rules in creation order")
		}

		before, err := ruleStore.Get("r-renew")
		if err != nil {
			t.Fatalf("Get() failed: %v", err)
		}
		second.Enabled = true
		second.EndDate = mustDate(t, "2024-03-31")
		if err := ruleStore.Update(second); err != nil {
			t.Fatalf("Update() failed: %v", err)
		}
		updated, err := ruleStore.Get("r-renew")
		if err != nil {
			t.Fatalf("Get() failed: %v", err)
		}
		if !updated.Enabled || updated.EndDate != second.EndDate {
			t.Errorf("Update() did not persist: %+v", updated)
		}
		if !updated.CreatedAt.Equal(before.CreatedAt) {
			t.Errorf("CreatedAt changed from %v to %v", before.CreatedAt, updated.CreatedAt)
		}

		if err := ruleStore.Update(&rules.Rule{ID: "missing", RecommendationID: "rec-1"}); !errors.Is(err, rules.ErrNotFound) {
			t.Errorf("Update() missing error = %v, want ErrNotFound", err)
		}
	})

	t.Run("DeleteReferencedRecommendation", func(t *testing.T) {
		if err := recs.Delete("rec-1"); !errors.Is(err, rules.ErrInUse) {
			t.Errorf("Delete() referenced error = %v, want ErrInUse", err)
		}

		if err := ruleStore.Delete("r-upgrade"); err != nil {
			t.Fatalf("Delete() rule failed: %v", err)
		}
		if err := recs.Delete("rec-1"); err != nil {
			t.Errorf("Delete() after rule removal failed: %v", err)
		}
		if err := recs.Delete("rec-1"); !errors.Is(err, rules.ErrNotFound) {
			t.Errorf("Delete() twice error = %v, want ErrNotFound", err)
		}
	})

	t.Run("DeleteGroupLeavesRules", func(t *testing.T) {
		if err := groups.Delete("hardware"); err != nil {
			t.Fatalf("Delete() group failed: %v", err)
		}
		if _, err := ruleStore.Get("r-renew"); err != nil {
			t.Errorf("rule should survive group deletion: %v", err)
		}
	})
}
