package rules

import (
	"errors"
	"sync"
	"testing"
	"time"
)

func TestInMemoryRuleStore(t *testing.T) {
	store := NewInMemoryRuleStore()

	for _, id := range []string{"b", "a", "c"} {
		r := r1()
		r.ID = id
		if err := store.Add(r); err != nil {
			t.Fatalf("Add(%s) failed: %v", id, err)
		}
	}

	dup := r1()
	dup.ID = "a"
	if err := store.Add(dup); !errors.Is(err, ErrAlreadyExists) {
		t.Errorf("Add() duplicate error = %v, want ErrAlreadyExists", err)
	}

	list, err := store.List()
	if err != nil {
		t.Fatalf("List() failed: %v", err)
	}
	if got := ruleIDs(list); got != "b,a,c" {
		t.Errorf("List() order = %s, want insertion order b,a,c", got)
	}

	got, err := store.Get("a")
	if err != nil {
		t.Fatalf("Get() failed: %v", err)
	}
	if got.CreatedAt.IsZero() || got.UpdatedAt.IsZero() {
		t.Error("Add() should set timestamps")
	}

	if _, err := store.Get("missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get() missing error = %v, want ErrNotFound", err)
	}

	if err := store.Delete("a"); err != nil {
		t.Fatalf("Delete() failed: %v", err)
	}
	if err := store.Delete("a"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Delete() twice error = %v, want ErrNotFound", err)
	}

	list, _ = store.List()
	if got := ruleIDs(list); got != "b,c" {
		t.Errorf("List() after delete = %s, want b,c", got)
	}
}

func TestInMemoryRuleStoreUpdatePreservesCreatedAt(t *testing.T) {
	store := NewInMemoryRuleStore()
	if err := store.Add(r1()); err != nil {
		t.Fatalf("Add() failed: %v", err)
	}
	original, _ := store.Get("r1")
	created := original.CreatedAt

	time.Sleep(time.Millisecond)

	updated := r1()
	updated.Name = "Renamed"
	if err := store.Update(updated); err != nil {
		t.Fatalf("Update() failed: %v", err)
	}

	got, _ := store.Get("r1")
	if got.Name != "Renamed" {
		t.Errorf("Name = %q, want Renamed", got.Name)
	}
	if !got.CreatedAt.Equal(created) {
		t.Errorf("CreatedAt = %v, want %v", got.CreatedAt, created)
	}
	if !got.UpdatedAt.After(created) {
		t.Error("UpdatedAt should advance on update")
	}

	missing := r1()
	missing.ID = "missing"
	if err := store.Update(missing); !errors.Is(err, ErrNotFound) {
		t.Errorf("Update() missing error = %v, want ErrNotFound", err)
	}
}

func TestInMemoryProductGroupStore(t *testing.T) {
	store := NewInMemoryProductGroupStore()

	if err := store.Add(&ProductGroup{ID: "g1", Name: "G1", Codes: []string{"A"}}); err != nil {
		t.Fatalf("Add() failed: %v", err)
	}
	if err := store.Add(&ProductGroup{ID: "g1", Name: "again"}); !errors.Is(err, ErrAlreadyExists) {
		t.Errorf("Add() duplicate error = %v, want ErrAlreadyExists", err)
	}

	if err := store.Update(&ProductGroup{ID: "g1", Name: "G1", Codes: []string{"B"}}); err != nil {
		t.Fatalf("Update() failed: %v", err)
	}
	got, err := store.Get("g1")
	if err != nil {
		t.Fatalf("Get() failed: %v", err)
	}
	if len(got.Codes) != 1 || got.Codes[0] != "B" {
		t.Errorf("Codes = %v, want [B]", got.Codes)
	}

	if err := store.Delete("g1"); err != nil {
		t.Fatalf("Delete() failed: %v", err)
	}
	if list, _ := store.List(); len(list) != 0 {
		t.Errorf("List() = %v, want empty", list)
	}
}

func TestInMemoryRecommendationStore(t *testing.T) {
	store := NewInMemoryRecommendationStore()

	if err := store.Add(&Recommendation{ID: "rec-1", Name: "Offer"}); err != nil {
		t.Fatalf("Add() failed: %v", err)
	}
	if err := store.Update(&Recommendation{ID: "rec-1", Name: "Offer", URL: "https://example.com/o"}); err != nil {
		t.Fatalf("Update() failed: %v", err)
	}

	got, err := store.Get("rec-1")
	if err != nil {
		t.Fatalf("Get() failed: %v", err)
	}
	if got.URL != "https://example.com/o" {
		t.Errorf("URL = %q, want updated URL", got.URL)
	}

	if _, err := store.Get("rec-2"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get() missing error = %v, want ErrNotFound", err)
	}
}

func TestInMemoryRuleStoreConcurrentAccess(t *testing.T) {
	store := NewInMemoryRuleStore()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			r := r1()
			r.ID = string(rune('A'+i%26)) + string(rune('a'+i/26))
			_ = store.Add(r)
			_, _ = store.List()
		}(i)
	}
	wg.Wait()

	list, _ := store.List()
	if len(list) != 50 {
		t.Errorf("List() = %d rules, want 50", len(list))
	}
}

func ruleIDs(list []*Rule) string {
	out := ""
	for i, r := range list {
		if i > 0 {
			out += ","
		}
		out += r.ID
	}
	return out
}
