package store

import (
	"context"
	"testing"

	"github.com/rcliao/opshistory/internal/model"
)

func TestSearch_Basic(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	s.Import(ctx, ImportParams{Name: "tower", File: testFile(0, "Move wall north", "Resize door", "Move column")})
	s.Import(ctx, ImportParams{Name: "annex", File: testFile(1, "Move stair", "Delete slab")})

	// Search by description
	results, err := s.Search(ctx, SearchParams{Query: "Move"})
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}

	// Search with session filter
	results, err = s.Search(ctx, SearchParams{Name: "annex", Query: "Move"})
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(results))
	}
	if results[0].SessionName != "annex" || results[0].Description != "Move stair" {
		t.Errorf("unexpected result %+v", results[0])
	}

	// Search by entity id
	results, err = s.Search(ctx, SearchParams{Query: "wall-1"})
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results (one per session), got %d", len(results))
	}
}

func TestSearch_KindAndLimit(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	f := testFile(0, "a", "b", "c")
	f.Undo[1].Kind = model.KindDelete
	s.Import(ctx, ImportParams{Name: "kinds", File: f})

	results, _ := s.Search(ctx, SearchParams{Kind: model.KindDelete})
	if len(results) != 1 || results[0].Description != "b" {
		t.Errorf("expected only the delete op, got %+v", results)
	}

	results, _ = s.Search(ctx, SearchParams{Limit: 2})
	if len(results) != 2 {
		t.Errorf("expected limit 2, got %d", len(results))
	}
}

func TestSearch_LatestVersionOnly(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	s.Import(ctx, ImportParams{Name: "doc", File: testFile(0, "old draft")})
	s.Import(ctx, ImportParams{Name: "doc", File: testFile(0, "new draft")})

	results, _ := s.Search(ctx, SearchParams{Query: "draft"})
	if len(results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(results))
	}
	if results[0].SessionVersion != 2 {
		t.Errorf("expected version 2, got %d", results[0].SessionVersion)
	}
}

func TestSearch_NoMatch(t *testing.T) {
	s := newTestStore(t)
	results, err := s.Search(context.Background(), SearchParams{Query: "nothing"})
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 0 {
		t.Errorf("expected 0 results, got %d", len(results))
	}
}
