package workflow

import (
	"context"
	"errors"
	"sync"
	"testing"

	"innomatch/api/internal/metrics"
	"innomatch/api/internal/store"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestValidateProblemStatus(t *testing.T) {
	for _, status := range []string{"Draft", "Open", "Closed"} {
		if err := ValidateProblemStatus(status); err != nil {
			t.Fatalf("expected %s to be valid: %v", status, err)
		}
	}
	for _, status := range []string{"", "open", "Archived", "Pending"} {
		err := ValidateProblemStatus(status)
		var validation *ValidationError
		if !errors.As(err, &validation) || validation.Field != "status" {
			t.Fatalf("expected status validation error for %q, got %v", status, err)
		}
	}
}

func TestProblemStatementStatusDefaultsToDraft(t *testing.T) {
	status, err := ProblemStatementStatus("")
	if err != nil || status != store.StatusDraft {
		t.Fatalf("expected Draft, got %q (%v)", status, err)
	}
	if _, err := ProblemStatementStatus("Published"); err == nil {
		t.Fatal("expected unknown status to be rejected")
	}
}

func TestProposalInitialForcesPending(t *testing.T) {
	cases := []store.Document{
		{"description": "x"},
		{"description": "x", "status": "Approved"},
		{"description": "x", "status": "Rejected", "approved_by": "mallory"},
		{"description": "x", "status": 42},
	}
	for _, in := range cases {
		out := ProposalInitial(in)
		if out["status"] != store.StatusPending {
			t.Fatalf("expected Pending for %v, got %v", in, out["status"])
		}
		if _, ok := out["approved_by"]; ok {
			t.Fatalf("expected approved_by to be stripped from %v", in)
		}
		if out["description"] != "x" {
			t.Fatalf("expected other fields to survive, got %v", out)
		}
	}
}

func TestRequireFields(t *testing.T) {
	doc := store.Document{"product_id": "p1", "description": "  ", "owner_id": nil}
	err := RequireFields(doc, "product_id", "description")
	var validation *ValidationError
	if !errors.As(err, &validation) || validation.Field != "description" {
		t.Fatalf("expected blank description to fail, got %v", err)
	}
	if err := RequireFields(doc, "owner_id"); err == nil {
		t.Fatal("expected nil owner_id to fail")
	}
	if err := RequireFields(doc, "problem_statement_id"); err == nil {
		t.Fatal("expected missing field to fail")
	}
	if err := RequireFields(doc, "product_id"); err != nil {
		t.Fatalf("expected product_id to pass: %v", err)
	}
}

func newPendingProposal(t *testing.T, s store.Store) string {
	t.Helper()
	id, err := s.Create(context.Background(), store.Proposals, ProposalInitial(store.Document{
		"product_id":           "p1",
		"problem_statement_id": "s1",
		"owner_id":             "u2",
		"description":          "pilot",
		"createdAt":            store.ServerTimestamp,
	}))
	if err != nil {
		t.Fatalf("create proposal: %v", err)
	}
	return id
}

func TestDecideStampsApprover(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore(nil)
	m := metrics.New()
	engine := &Engine{Store: s, Metrics: m}
	id := newPendingProposal(t, s)

	if err := engine.Decide(ctx, id, store.StatusApproved, "adminX"); err != nil {
		t.Fatalf("decide: %v", err)
	}
	doc, err := s.Get(ctx, store.Proposals, id)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if doc["status"] != store.StatusApproved || doc["approved_by"] != "adminX" {
		t.Fatalf("unexpected decided proposal: %v", doc)
	}
	if got := testutil.ToFloat64(m.Decisions().WithLabelValues(store.StatusApproved, ResultOK)); got != 1 {
		t.Fatalf("expected one ok decision, got %v", got)
	}
}

func TestDecideRejectsSecondDecision(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore(nil)
	engine := &Engine{Store: s}
	id := newPendingProposal(t, s)

	if err := engine.Decide(ctx, id, store.StatusRejected, "admin-1"); err != nil {
		t.Fatalf("first decide: %v", err)
	}
	err := engine.Decide(ctx, id, store.StatusApproved, "admin-2")
	if !errors.Is(err, store.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
	doc, _ := s.Get(ctx, store.Proposals, id)
	if doc["status"] != store.StatusRejected || doc["approved_by"] != "admin-1" {
		t.Fatalf("first decision was overwritten: %v", doc)
	}
}

func TestConcurrentDecisionsHaveOneWinner(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore(nil)
	engine := &Engine{Store: s}
	id := newPendingProposal(t, s)

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		winners   int
		conflicts int
	)
	for i, outcome := range []string{store.StatusApproved, store.StatusRejected, store.StatusApproved, store.StatusRejected} {
		wg.Add(1)
		go func(approver, outcome string) {
			defer wg.Done()
			err := engine.Decide(ctx, id, outcome, approver)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				winners++
			case errors.Is(err, store.ErrConflict):
				conflicts++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(string(rune('a'+i)), outcome)
	}
	wg.Wait()
	if winners != 1 || conflicts != 3 {
		t.Fatalf("expected 1 winner and 3 conflicts, got %d and %d", winners, conflicts)
	}
}

func TestDecideValidation(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore(nil)
	m := metrics.New()
	engine := &Engine{Store: s, Metrics: m}
	id := newPendingProposal(t, s)

	var validation *ValidationError
	if err := engine.Decide(ctx, id, store.StatusPending, "admin"); !errors.As(err, &validation) {
		t.Fatalf("expected outcome validation error, got %v", err)
	}
	if err := engine.Decide(ctx, id, store.StatusApproved, ""); !errors.As(err, &validation) {
		t.Fatalf("expected approver validation error, got %v", err)
	}
	if err := engine.Decide(ctx, "missing", store.StatusApproved, "admin"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if got := testutil.ToFloat64(m.Decisions().WithLabelValues(store.StatusApproved, ResultNotFound)); got != 1 {
		t.Fatalf("expected one not_found decision, got %v", got)
	}
}
