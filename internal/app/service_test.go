package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"testing"
	"time"

	"innomatch/api/internal/attachments"
	"innomatch/api/internal/auth"
	"innomatch/api/internal/export"
	"innomatch/api/internal/store"
	"innomatch/api/internal/workflow"
)

func TestOwnerScopedListsAreNewestFirst(t *testing.T) {
	env := newTestEnv(t)
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	seed(t, env.store, store.Proposals, store.Document{"owner_id": "U", "project_title": "old", "createdAt": store.TimestampOf(base)})
	seed(t, env.store, store.Proposals, store.Document{"owner_id": "V", "project_title": "other", "createdAt": store.TimestampOf(base.Add(3 * time.Hour))})
	seed(t, env.store, store.Proposals, store.Document{"owner_id": "U", "project_title": "new", "createdAt": store.TimestampOf(base.Add(2 * time.Hour))})
	seed(t, env.store, store.Proposals, store.Document{"owner_id": "U", "project_title": "undated"})
	seed(t, env.store, store.ProblemStatements, store.Document{"owner_id": "U", "title": "legacy", "status": "Draft", "createdAt": base.Add(time.Hour).UnixMilli()})
	seed(t, env.store, store.ProblemStatements, store.Document{"owner_id": "U", "title": "fresh", "status": "Closed", "createdAt": base.Add(5 * time.Hour).UnixMilli()})
	seed(t, env.store, store.ProblemStatements, store.Document{"owner_id": "V", "title": "not mine", "status": "Open", "createdAt": base.Add(9 * time.Hour).UnixMilli()})

	caller := auth.Identity{CallerID: "U"}
	proposals := env.service.ListProposals(context.Background(), caller)
	var titles []string
	for _, p := range proposals {
		if p.OwnerID != "U" {
			t.Fatalf("foreign proposal in owner scope: %+v", p)
		}
		titles = append(titles, p.ProjectTitle)
	}
	if fmt.Sprint(titles) != "[new old undated]" {
		t.Fatalf("unexpected proposal order %v", titles)
	}

	statements := env.service.ListProblemStatements(context.Background(), caller, true)
	if len(statements) != 2 || statements[0].Title != "fresh" || statements[1].Title != "legacy" {
		t.Fatalf("unexpected statement order %+v", statements)
	}
}

func TestServiceCreateProposalIgnoresSuppliedStatus(t *testing.T) {
	env := newTestEnv(t)
	for _, status := range []string{"", "Pending", "Approved", "Rejected", "bogus"} {
		created, err := env.service.CreateProposal(context.Background(), auth.Identity{CallerID: "U2"}, store.Proposal{
			ProductID:          "p1",
			ProblemStatementID: "s1",
			OwnerID:            "U2",
			Description:        "...",
			Status:             status,
			ApprovedBy:         "U2",
		})
		if err != nil {
			t.Fatalf("create with status %q: %v", status, err)
		}
		if created.Status != store.StatusPending || created.ApprovedBy != "" {
			t.Fatalf("status %q produced %+v", status, created)
		}
	}
}

func TestAdminMayCreateProposalForOwner(t *testing.T) {
	env := newTestEnv(t)
	created, err := env.service.CreateProposal(context.Background(), auth.Identity{CallerID: "admin", IsAdmin: true}, store.Proposal{
		ProductID: "p1", ProblemStatementID: "s1", OwnerID: "U9", Description: "d",
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if created.OwnerID != "U9" {
		t.Fatalf("expected owner U9, got %q", created.OwnerID)
	}
}

func TestLookupLabelsReadsBothSources(t *testing.T) {
	env := newTestEnv(t)
	productID, statementID := seedLabelSources(t, env)

	var mu sync.Mutex
	seen := map[string]bool{}
	env.store.getFn = func(ctx context.Context, collection, id string) (store.Document, error) {
		mu.Lock()
		seen[collection] = true
		mu.Unlock()
		return env.store.Store.Get(ctx, collection, id)
	}

	labels, err := env.service.LookupLabels(context.Background(), auth.Identity{CallerID: "U2"}, productID, statementID)
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	want := Labels{
		ProductName:           "SunStill",
		ProblemStatementTitle: "Water Purification",
		ProblemImageURL:       "https://img/1.png",
		ProblemOrganization:   "Acme Water",
	}
	if labels != want {
		t.Fatalf("labels = %+v, want %+v", labels, want)
	}
	if !seen[store.Products] || !seen[store.ProblemStatements] {
		t.Fatalf("expected both collections read, got %v", seen)
	}
}

func TestLookupLabelsPropagatesStoreErrors(t *testing.T) {
	env := newTestEnv(t)
	env.store.getFn = func(context.Context, string, string) (store.Document, error) {
		return nil, errors.New("permission denied")
	}
	_, err := env.service.LookupLabels(context.Background(), auth.Identity{CallerID: "U2"}, "p", "s")
	if err == nil {
		t.Fatal("expected error")
	}
	var validation *workflow.ValidationError
	if errors.As(err, &validation) {
		t.Fatalf("store failure should not look like validation: %v", err)
	}
}

func TestLabelsFillOnlyBlankFields(t *testing.T) {
	p := store.Proposal{ProductName: "Kept"}
	Labels{ProductName: "Lookup", ProblemStatementTitle: "Title"}.Fill(&p)
	if p.ProductName != "Kept" || p.ProblemStatementTitle != "Title" {
		t.Fatalf("unexpected fill %+v", p)
	}
	if !missingLabels(p) {
		t.Fatal("image and organization are still blank")
	}
}

func TestGetSwallowsStoreErrors(t *testing.T) {
	env := newTestEnv(t)
	env.store.getFn = func(context.Context, string, string) (store.Document, error) {
		return nil, errors.New("network down")
	}
	admin := auth.Identity{CallerID: "admin", IsAdmin: true}
	if got := env.service.GetProblemStatement(context.Background(), admin, "x"); got != nil {
		t.Fatalf("expected absent, got %+v", got)
	}
	if got := env.service.GetProposal(context.Background(), admin, "x"); got != nil {
		t.Fatalf("expected absent, got %+v", got)
	}
	if got := env.service.GetProjectReport(context.Background(), admin, "x"); got != nil {
		t.Fatalf("expected absent, got %+v", got)
	}

	if _, err := env.service.UpdateProposal(context.Background(), admin, "x", workflow.ProposalPatch{}); err == nil {
		t.Fatal("writes must propagate store errors")
	}
}

func TestConcurrentDecisionsOneWinner(t *testing.T) {
	env := newTestEnv(t)
	id := createPendingProposal(t, env, "U2")

	const admins = 5
	var wg sync.WaitGroup
	errs := make([]error, admins)
	for i := 0; i < admins; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = env.service.DecideProposal(context.Background(), auth.Identity{CallerID: fmt.Sprintf("admin-%d", i), IsAdmin: true}, id, store.StatusApproved)
		}(i)
	}
	wg.Wait()

	winners := 0
	for _, err := range errs {
		switch {
		case err == nil:
			winners++
		case errors.Is(err, store.ErrConflict):
		default:
			t.Fatalf("unexpected error %v", err)
		}
	}
	if winners != 1 {
		t.Fatalf("expected exactly one winner, got %d", winners)
	}
}

func TestExportRequiresExporter(t *testing.T) {
	env := newTestEnv(t)
	env.service.exporter = nil
	_, err := env.service.ExportProjectReport(context.Background(), auth.Identity{CallerID: "a", IsAdmin: true}, "r", export.FormatPDF)
	status, _, _, _ := mapError(err)
	if status != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d (%v)", status, err)
	}
}

func TestExportDependencyMissingMapsTo503(t *testing.T) {
	env := newTestEnv(t)
	env.exporter.err = export.ErrPDFDependencyMissing
	reportID := seed(t, env.store, store.ProjectReports, store.Document{"proposal_id": "gone", "final_report": "x"})

	_, err := env.service.ExportProjectReport(context.Background(), auth.Identity{CallerID: "a", IsAdmin: true}, reportID, export.FormatPDF)
	status, code, _, _ := mapError(err)
	if status != http.StatusServiceUnavailable || code != "EXPORT_UNAVAILABLE" {
		t.Fatalf("expected EXPORT_UNAVAILABLE, got %d %s (%v)", status, code, err)
	}
}

func TestPresignWithoutAttachments(t *testing.T) {
	env := newTestEnv(t)
	env.service.attachments = nil
	_, err := env.service.PresignUpload(context.Background(), auth.Identity{CallerID: "u"}, attachments.KindImage, "a.png")
	if status, _, _, _ := mapError(err); status != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", status)
	}
}

func TestReindexSearchWithoutIndexIsNoop(t *testing.T) {
	env := newTestEnv(t)
	if err := env.service.ReindexSearch(context.Background()); err != nil {
		t.Fatalf("reindex: %v", err)
	}
}
