package memstore

import (
	"context"
	"errors"
	"testing"

	"github.com/sdmxkit/sdmxreg/internal/store"
	"github.com/sdmxkit/sdmxreg/internal/store/query"
)

func testSchema(t *testing.T) *store.Schema {
	t.Helper()
	schema := store.NewSchema()
	rels := []*store.Relation{
		{Name: "code_set", Owner: "codelist.Codelist", Member: "codelist.Code", Field: "wrapper"},
		{Name: "concept_set", Owner: "conceptscheme.ConceptScheme", Member: "conceptscheme.Concept", Field: "wrapper"},
	}
	for _, rel := range rels {
		if err := schema.AddRelation(rel); err != nil {
			t.Fatalf("AddRelation failed: %v", err)
		}
	}
	return schema
}

func TestGetOrCreate(t *testing.T) {
	s := New(testSchema(t))
	ctx := context.Background()

	keys := map[string]interface{}{"object_id": "CL_FREQ", "version": "1.0"}
	rec, created, err := s.GetOrCreate(ctx, "codelist.Codelist", keys, map[string]interface{}{"latest": true})
	if err != nil {
		t.Fatalf("GetOrCreate failed: %v", err)
	}
	if !created {
		t.Error("expected created=true on first call")
	}
	if !rec.GetBool("latest") {
		t.Error("defaults not applied")
	}

	again, created, err := s.GetOrCreate(ctx, "codelist.Codelist", keys, nil)
	if err != nil {
		t.Fatalf("GetOrCreate failed: %v", err)
	}
	if created {
		t.Error("expected created=false on second call")
	}
	if again != rec {
		t.Error("expected the same record")
	}
}

func TestGet_NotFound(t *testing.T) {
	s := New(testSchema(t))
	_, err := s.Get(context.Background(), "codelist.Codelist", map[string]interface{}{"object_id": "MISSING"})
	if !errors.Is(err, store.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestRelated_InsertionOrder(t *testing.T) {
	s := New(testSchema(t))
	ctx := context.Background()

	cl, _ := s.Create(ctx, "codelist.Codelist", map[string]interface{}{"object_id": "CL_FREQ"})
	for _, id := range []string{"A", "M", "Q"} {
		if _, err := s.Create(ctx, "codelist.Code", map[string]interface{}{"object_id": id, "wrapper": cl}); err != nil {
			t.Fatalf("Create failed: %v", err)
		}
	}

	codes, err := s.Related(ctx, cl, "code_set")
	if err != nil {
		t.Fatalf("Related failed: %v", err)
	}
	if len(codes) != 3 {
		t.Fatalf("expected 3 codes, got %d", len(codes))
	}
	for i, want := range []string{"A", "M", "Q"} {
		if got := codes[i].GetString("object_id"); got != want {
			t.Errorf("codes[%d] = %s, want %s", i, got, want)
		}
	}
}

func TestRelated_UnknownRelation(t *testing.T) {
	s := New(testSchema(t))
	ctx := context.Background()
	cl, _ := s.Create(ctx, "codelist.Codelist", nil)

	_, err := s.Related(ctx, cl, "nope_set")
	if !errors.Is(err, store.ErrUnknownRelation) {
		t.Errorf("expected ErrUnknownRelation, got %v", err)
	}
}

func TestFind_RelationPredicate(t *testing.T) {
	s := New(testSchema(t))
	ctx := context.Background()

	scheme, _ := s.Create(ctx, "conceptscheme.ConceptScheme", map[string]interface{}{"object_id": "CS_ECO"})
	other, _ := s.Create(ctx, "conceptscheme.ConceptScheme", map[string]interface{}{"object_id": "CS_OTHER"})
	clUsed, _ := s.Create(ctx, "codelist.Codelist", map[string]interface{}{"object_id": "CL_USED"})
	clOther, _ := s.Create(ctx, "codelist.Codelist", map[string]interface{}{"object_id": "CL_UNUSED"})

	s.Create(ctx, "conceptscheme.Concept", map[string]interface{}{
		"object_id": "FREQ", "wrapper": scheme, "core_representation": clUsed,
	})
	s.Create(ctx, "conceptscheme.Concept", map[string]interface{}{
		"object_id": "REF_AREA", "wrapper": other, "core_representation": clOther,
	})

	// Codelists whose enumeration is used by a concept in CS_ECO.
	pred := query.NewPredicateGroup(false).AddRelation(&query.RelationPredicate{
		Steps: []query.Step{
			{Kind: "conceptscheme.Concept", Field: "core_representation", Reverse: true},
			{Kind: "conceptscheme.ConceptScheme", Field: "wrapper"},
		},
		Pred: query.NewPredicateGroup(false).Where("object_id", query.OpEqual, "CS_ECO"),
	})

	found, err := s.Find(ctx, "codelist.Codelist", pred)
	if err != nil {
		t.Fatalf("Find failed: %v", err)
	}
	if len(found) != 1 || found[0] != clUsed {
		t.Errorf("expected only CL_USED, got %d records", len(found))
	}
}

func TestSavepoint_Rollback(t *testing.T) {
	s := New(testSchema(t))
	ctx := context.Background()

	cl, _ := s.Create(ctx, "codelist.Codelist", map[string]interface{}{"object_id": "CL_FREQ", "latest": true})

	sp, err := s.Savepoint(ctx)
	if err != nil {
		t.Fatalf("Savepoint failed: %v", err)
	}

	cl.Set("latest", false)
	s.Create(ctx, "codelist.Codelist", map[string]interface{}{"object_id": "CL_NEW"})

	if err := sp.Rollback(ctx); err != nil {
		t.Fatalf("Rollback failed: %v", err)
	}

	if !cl.GetBool("latest") {
		t.Error("field mutation not rolled back")
	}
	all, _ := s.Find(ctx, "codelist.Codelist", nil)
	if len(all) != 1 {
		t.Errorf("expected 1 codelist after rollback, got %d", len(all))
	}
}
