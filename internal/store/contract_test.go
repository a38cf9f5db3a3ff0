package store

import (
	"context"
	"errors"
	"testing"
	"time"
)

// storeFactory builds a fresh, empty store honouring idx.
type storeFactory func(t *testing.T, idx Indexes) Store

func runStoreContract(t *testing.T, newStore storeFactory) {
	ctx := context.Background()

	t.Run("create assigns id and resolves server timestamp", func(t *testing.T) {
		s := newStore(t, nil)
		id, err := s.Create(ctx, Proposals, Document{
			"description": "solar desalination",
			"createdAt":   ServerTimestamp,
		})
		if err != nil {
			t.Fatalf("create: %v", err)
		}
		if id == "" {
			t.Fatal("expected non-empty id")
		}
		doc, err := s.Get(ctx, Proposals, id)
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		if doc["id"] != id {
			t.Fatalf("expected stored id %q, got %v", id, doc["id"])
		}
		if SortKey(doc["createdAt"]) <= 0 {
			t.Fatalf("expected resolved timestamp, got %#v", doc["createdAt"])
		}
	})

	t.Run("get missing returns ErrNotFound", func(t *testing.T) {
		s := newStore(t, nil)
		if _, err := s.Get(ctx, Proposals, "missing"); !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("update merges and fails on missing id", func(t *testing.T) {
		s := newStore(t, nil)
		id, err := s.Create(ctx, ProblemStatements, Document{"title": "Water", "status": "Draft"})
		if err != nil {
			t.Fatalf("create: %v", err)
		}
		if err := s.Update(ctx, ProblemStatements, id, Document{"status": "Open"}); err != nil {
			t.Fatalf("update: %v", err)
		}
		doc, err := s.Get(ctx, ProblemStatements, id)
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		if doc["title"] != "Water" || doc["status"] != "Open" {
			t.Fatalf("unexpected merged document: %#v", doc)
		}
		if err := s.Update(ctx, ProblemStatements, "missing", Document{"status": "Open"}); !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("update if guards on current value", func(t *testing.T) {
		s := newStore(t, nil)
		id, err := s.Create(ctx, Proposals, Document{"status": "Pending"})
		if err != nil {
			t.Fatalf("create: %v", err)
		}
		cond := Filter{Field: "status", Value: "Pending"}
		if err := s.UpdateIf(ctx, Proposals, id, cond, Document{"status": "Approved", "approved_by": "admin-1"}); err != nil {
			t.Fatalf("first update: %v", err)
		}
		err = s.UpdateIf(ctx, Proposals, id, cond, Document{"status": "Rejected", "approved_by": "admin-2"})
		if !errors.Is(err, ErrConflict) {
			t.Fatalf("expected ErrConflict, got %v", err)
		}
		doc, _ := s.Get(ctx, Proposals, id)
		if doc["status"] != "Approved" || doc["approved_by"] != "admin-1" {
			t.Fatalf("second update leaked through: %#v", doc)
		}
		if err := s.UpdateIf(ctx, Proposals, "missing", cond, Document{"status": "Approved"}); !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected ErrNotFound for missing id, got %v", err)
		}
	})

	t.Run("delete is idempotent", func(t *testing.T) {
		s := newStore(t, nil)
		id, err := s.Create(ctx, Proposals, Document{"status": "Pending"})
		if err != nil {
			t.Fatalf("create: %v", err)
		}
		if err := s.Delete(ctx, Proposals, id); err != nil {
			t.Fatalf("first delete: %v", err)
		}
		if err := s.Delete(ctx, Proposals, id); err != nil {
			t.Fatalf("second delete: %v", err)
		}
		if _, err := s.Get(ctx, Proposals, id); !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected ErrNotFound after delete, got %v", err)
		}
	})

	t.Run("query filters and orders by creation time", func(t *testing.T) {
		s := newStore(t, nil)
		base := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
		seed := []Document{
			{"title": "a", "owner_id": "u1", "createdAt": base.UnixMilli()},
			{"title": "b", "owner_id": "u2", "createdAt": base.Add(time.Hour).UnixMilli()},
			{"title": "c", "owner_id": "u1", "createdAt": TimestampOf(base.Add(2 * time.Hour))},
			{"title": "d", "owner_id": "u1"},
		}
		for _, doc := range seed {
			if _, err := s.Create(ctx, ProblemStatements, doc); err != nil {
				t.Fatalf("seed: %v", err)
			}
		}

		filtered, err := s.Query(ctx, ProblemStatements, &Filter{Field: "owner_id", Value: "u1"}, nil)
		if err != nil {
			t.Fatalf("filtered query: %v", err)
		}
		if len(filtered) != 3 {
			t.Fatalf("expected 3 docs for u1, got %d", len(filtered))
		}

		ordered, err := s.Query(ctx, ProblemStatements, nil, &Order{Field: CreatedAtField, Descending: true})
		if err != nil {
			t.Fatalf("ordered query: %v", err)
		}
		got := titles(ordered)
		want := []string{"c", "b", "a", "d"}
		if len(got) != len(want) {
			t.Fatalf("expected %v, got %v", want, got)
		}
		for i := range want {
			if got[i] != want[i] {
				t.Fatalf("expected %v, got %v", want, got)
			}
		}
	})

	t.Run("filter plus order needs an index", func(t *testing.T) {
		s := newStore(t, nil)
		_, err := s.Query(ctx, ProblemStatements, &Filter{Field: "status", Value: "Open"}, &Order{Field: CreatedAtField, Descending: true})
		if !errors.Is(err, ErrIndexRequired) {
			t.Fatalf("expected ErrIndexRequired, got %v", err)
		}

		indexed := newStore(t, ParseIndexes([]string{"status:createdAt"}))
		if _, err := indexed.Create(ctx, ProblemStatements, Document{"status": "Open", "createdAt": int64(1)}); err != nil {
			t.Fatalf("seed: %v", err)
		}
		items, err := indexed.Query(ctx, ProblemStatements, &Filter{Field: "status", Value: "Open"}, &Order{Field: CreatedAtField, Descending: true})
		if err != nil {
			t.Fatalf("indexed query: %v", err)
		}
		if len(items) != 1 {
			t.Fatalf("expected 1 doc, got %d", len(items))
		}
	})

	t.Run("boolean filter values", func(t *testing.T) {
		s := newStore(t, nil)
		if _, err := s.Create(ctx, ProjectReports, Document{"is_commercialised": true}); err != nil {
			t.Fatalf("seed: %v", err)
		}
		if _, err := s.Create(ctx, ProjectReports, Document{"is_commercialised": false}); err != nil {
			t.Fatalf("seed: %v", err)
		}
		items, err := s.Query(ctx, ProjectReports, &Filter{Field: "is_commercialised", Value: true}, nil)
		if err != nil {
			t.Fatalf("query: %v", err)
		}
		if len(items) != 1 {
			t.Fatalf("expected 1 commercialised report, got %d", len(items))
		}
	})
}

func titles(docs []Document) []string {
	out := make([]string, 0, len(docs))
	for _, doc := range docs {
		title, _ := doc["title"].(string)
		out = append(out, title)
	}
	return out
}
