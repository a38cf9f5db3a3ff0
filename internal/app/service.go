package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"innomatch/api/internal/attachments"
	"innomatch/api/internal/auth"
	"innomatch/api/internal/config"
	"innomatch/api/internal/email"
	"innomatch/api/internal/export"
	"innomatch/api/internal/metrics"
	"innomatch/api/internal/rbac"
	"innomatch/api/internal/scope"
	"innomatch/api/internal/search"
	"innomatch/api/internal/store"
	"innomatch/api/internal/workflow"
)

// SessionStore tracks revoked tokens and view counters.
type SessionStore interface {
	Revoke(ctx context.Context, jti string, expiresAt time.Time) error
	IsRevoked(ctx context.Context, jti string) (bool, error)
	IncrViews(ctx context.Context, collection, id string) (int64, error)
}

type Mailer interface {
	IsConfigured() bool
	SendDecisionEmail(to string, data email.DecisionData) error
}

type Exporter interface {
	Export(ctx context.Context, data export.ReportData, format export.Format) (*export.Result, error)
}

// Deps are the collaborators a Service is built from. Only Store is
// required; the rest disable their feature when nil.
type Deps struct {
	Store       store.Store
	Metrics     *metrics.Collectors
	Sessions    SessionStore
	Search      *search.Service
	Attachments *attachments.Service
	Mailer      Mailer
	Exporter    Exporter
}

type Service struct {
	cfg         config.Config
	store       store.Store
	planner     *scope.Planner
	engine      *workflow.Engine
	metrics     *metrics.Collectors
	sessions    SessionStore
	search      *search.Service
	attachments *attachments.Service
	mailer      Mailer
	exporter    Exporter
	now         func() time.Time

	// serialise the read-then-create uniqueness checks within this process
	reportMu   sync.Mutex
	taxonomyMu sync.Mutex
}

func New(cfg config.Config, deps Deps) *Service {
	return &Service{
		cfg:         cfg,
		store:       deps.Store,
		planner:     &scope.Planner{Store: deps.Store, Metrics: deps.Metrics},
		engine:      &workflow.Engine{Store: deps.Store, Metrics: deps.Metrics},
		metrics:     deps.Metrics,
		sessions:    deps.Sessions,
		search:      deps.Search,
		attachments: deps.Attachments,
		mailer:      deps.Mailer,
		exporter:    deps.Exporter,
		now:         time.Now,
	}
}

func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

// Identify verifies a bearer token and checks it has not been revoked.
func (s *Service) Identify(ctx context.Context, token string) (auth.Identity, error) {
	claims, err := auth.ParseToken([]byte(s.cfg.TokenSecret), token)
	if err != nil {
		return auth.Anonymous(), err
	}
	if s.sessions != nil {
		revoked, err := s.sessions.IsRevoked(ctx, claims.JTI)
		if err != nil {
			return auth.Anonymous(), fmt.Errorf("check revocation: %w", err)
		}
		if revoked {
			return auth.Anonymous(), auth.ErrInvalidToken
		}
	}
	return claims.Identity(), nil
}

// Logout revokes token until it would have expired anyway.
func (s *Service) Logout(ctx context.Context, token string) error {
	claims, err := auth.ParseToken([]byte(s.cfg.TokenSecret), token)
	if err != nil {
		return err
	}
	if s.sessions == nil {
		return nil
	}
	return s.sessions.Revoke(ctx, claims.JTI, time.Unix(claims.Exp, 0))
}

func (s *Service) can(id auth.Identity, ownerID string, action rbac.Action) error {
	if !id.Authenticated() {
		return unauthorized()
	}
	if !rbac.Can(rbac.RoleFor(id, ownerID), action) {
		return forbidden()
	}
	return nil
}

// listScoped runs the caller's scope and swallows store failures.
func listScoped[T any](ctx context.Context, s *Service, collection string, spec scope.FilterSpec) []T {
	docs, err := s.planner.Run(ctx, collection, spec)
	if err != nil {
		slog.WarnContext(ctx, "list failed", "collection", collection, "error", err)
		return []T{}
	}
	return decodeAll[T](ctx, collection, docs)
}

func decodeAll[T any](ctx context.Context, collection string, docs []store.Document) []T {
	out := make([]T, 0, len(docs))
	for _, doc := range docs {
		item, err := store.Decode[T](doc)
		if err != nil {
			slog.WarnContext(ctx, "skipping undecodable record", "collection", collection, "id", doc["id"], "error", err)
			continue
		}
		out = append(out, item)
	}
	return out
}

// readVisible fetches one record for reading. Absent, invisible and failed
// reads all come back as nil.
func (s *Service) readVisible(ctx context.Context, collection, id string, caller auth.Identity) store.Document {
	doc, err := s.store.Get(ctx, collection, id)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			slog.WarnContext(ctx, "get failed", "collection", collection, "id", id, "error", err)
		}
		return nil
	}
	if !scope.Visible(collection, caller, doc) {
		return nil
	}
	return doc
}

// loadForWrite fetches the record a mutation targets. Records the caller
// cannot see are reported as missing.
func (s *Service) loadForWrite(ctx context.Context, collection, id string, caller auth.Identity) (store.Document, error) {
	if !caller.Authenticated() {
		return nil, unauthorized()
	}
	doc, err := s.store.Get(ctx, collection, id)
	if err != nil {
		return nil, fmt.Errorf("load %s %s: %w", collection, id, err)
	}
	if !scope.Visible(collection, caller, doc) {
		return nil, fmt.Errorf("load %s %s: %w", collection, id, store.ErrNotFound)
	}
	return doc, nil
}

func ownerOf(doc store.Document) string {
	owner, _ := doc["owner_id"].(string)
	return owner
}

// --- Problem statements ---

type ProblemStatementInput struct {
	Title        string `json:"title"`
	Organization string `json:"organization"`
	Description  string `json:"description"`
	Sector       string `json:"sector"`
	Status       string `json:"status"`
	OwnerID      string `json:"owner_id"`
	Deadline     string `json:"deadline"`
	ImageURL     string `json:"image_url"`
}

func (s *Service) CreateProblemStatement(ctx context.Context, caller auth.Identity, in ProblemStatementInput) (store.ProblemStatement, error) {
	if err := s.can(caller, "", rbac.ActionCreate); err != nil {
		return store.ProblemStatement{}, err
	}
	owner := caller.CallerID
	if caller.IsAdmin && strings.TrimSpace(in.OwnerID) != "" {
		owner = strings.TrimSpace(in.OwnerID)
	}
	status, err := workflow.ProblemStatementStatus(in.Status)
	if err != nil {
		return store.ProblemStatement{}, err
	}
	doc := store.Document{
		"title":        strings.TrimSpace(in.Title),
		"organization": strings.TrimSpace(in.Organization),
		"description":  in.Description,
		"sector":       strings.TrimSpace(in.Sector),
		"status":       status,
		"owner_id":     owner,
		"createdAt":    s.now().UnixMilli(),
	}
	if err := workflow.RequireFields(doc, "title", "organization", "description", "sector", "owner_id"); err != nil {
		return store.ProblemStatement{}, err
	}
	if in.Deadline != "" {
		doc["deadline"] = in.Deadline
	}
	if in.ImageURL != "" {
		doc["image_url"] = in.ImageURL
	}

	id, err := s.store.Create(ctx, store.ProblemStatements, doc)
	if err != nil {
		return store.ProblemStatement{}, fmt.Errorf("create problem statement: %w", err)
	}
	doc["id"] = id
	s.indexStatement(doc)
	return store.Decode[store.ProblemStatement](doc)
}

func (s *Service) GetProblemStatement(ctx context.Context, caller auth.Identity, id string) *store.ProblemStatement {
	doc := s.readVisible(ctx, store.ProblemStatements, id, caller)
	if doc == nil {
		return nil
	}
	item, err := store.Decode[store.ProblemStatement](doc)
	if err != nil {
		slog.WarnContext(ctx, "decode problem statement", "id", id, "error", err)
		return nil
	}
	return &item
}

func listingViewer(caller auth.Identity, mine bool) auth.Identity {
	if mine || caller.IsAdmin {
		return caller
	}
	return auth.Anonymous()
}

// ListProblemStatements returns the public listing, or the caller's own
// scope when mine is set. Admins always get their unrestricted scope.
func (s *Service) ListProblemStatements(ctx context.Context, caller auth.Identity, mine bool) []store.ProblemStatement {
	viewer := listingViewer(caller, mine)
	return listScoped[store.ProblemStatement](ctx, s, store.ProblemStatements, scope.Resolve(store.ProblemStatements, viewer))
}

func (s *Service) UpdateProblemStatement(ctx context.Context, caller auth.Identity, id string, patch workflow.ProblemStatementPatch) (store.ProblemStatement, error) {
	current, err := s.loadForWrite(ctx, store.ProblemStatements, id, caller)
	if err != nil {
		return store.ProblemStatement{}, err
	}
	if err := s.can(caller, ownerOf(current), rbac.ActionWrite); err != nil {
		return store.ProblemStatement{}, err
	}
	if err := patch.Validate(); err != nil {
		return store.ProblemStatement{}, err
	}
	changes := patch.Document()
	if len(changes) > 0 {
		if err := s.store.Update(ctx, store.ProblemStatements, id, changes); err != nil {
			return store.ProblemStatement{}, fmt.Errorf("update problem statement %s: %w", id, err)
		}
		for k, v := range changes {
			current[k] = v
		}
		s.indexStatement(current)
	}
	return store.Decode[store.ProblemStatement](current)
}

// DeleteProblemStatement is idempotent: an unknown or invisible id succeeds.
func (s *Service) DeleteProblemStatement(ctx context.Context, caller auth.Identity, id string) error {
	current, err := s.loadForWrite(ctx, store.ProblemStatements, id, caller)
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if err := s.can(caller, ownerOf(current), rbac.ActionDelete); err != nil {
		return err
	}
	if err := s.store.Delete(ctx, store.ProblemStatements, id); err != nil {
		return fmt.Errorf("delete problem statement %s: %w", id, err)
	}
	if s.search != nil {
		s.search.DeleteProblemStatement(id)
	}
	return nil
}

// SearchProblemStatements searches the same scope ListProblemStatements lists.
func (s *Service) SearchProblemStatements(ctx context.Context, caller auth.Identity, text string, mine bool, limit, offset int) search.Response {
	viewer := listingViewer(caller, mine)
	q := search.Query{
		Text:   strings.TrimSpace(text),
		Scope:  scope.Resolve(store.ProblemStatements, viewer),
		Limit:  limit,
		Offset: offset,
	}
	if s.search == nil {
		return search.NewService(nil, &search.Scan{Store: s.store}).Search(ctx, q)
	}
	return s.search.Search(ctx, q)
}

// RecordView bumps the view counter of a problem statement the caller can see.
func (s *Service) RecordView(ctx context.Context, caller auth.Identity, id string) (int64, error) {
	if s.sessions == nil {
		return 0, unavailable("View counting")
	}
	if s.readVisible(ctx, store.ProblemStatements, id, caller) == nil {
		return 0, store.ErrNotFound
	}
	views, err := s.sessions.IncrViews(ctx, store.ProblemStatements, id)
	if err != nil {
		return 0, fmt.Errorf("record view %s: %w", id, err)
	}
	return views, nil
}

// ReindexSearch pushes every problem statement into the search index.
func (s *Service) ReindexSearch(ctx context.Context) error {
	if s.search == nil {
		return nil
	}
	docs, err := s.store.Query(ctx, store.ProblemStatements, nil, nil)
	if err != nil {
		return fmt.Errorf("load problem statements: %w", err)
	}
	records := make([]search.Record, 0, len(docs))
	for _, doc := range docs {
		records = append(records, search.RecordFromDocument(doc))
	}
	s.search.ReindexAll(records)
	return nil
}

func (s *Service) indexStatement(doc store.Document) {
	if s.search != nil {
		s.search.IndexProblemStatement(search.RecordFromDocument(doc))
	}
}

// --- Proposals ---

// Labels are the display fields copied onto a proposal at submission time.
type Labels struct {
	ProductName           string `json:"product_name"`
	ProblemStatementTitle string `json:"problem_statement_title"`
	ProblemImageURL       string `json:"problem_image_url"`
	ProblemOrganization   string `json:"problem_organization"`
}

// LookupLabels reads the product and the problem statement concurrently. A
// statement the caller cannot see is treated as missing.
func (s *Service) LookupLabels(ctx context.Context, caller auth.Identity, productID, statementID string) (Labels, error) {
	var (
		product   store.Document
		statement store.Document
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		doc, err := s.store.Get(gctx, store.Products, productID)
		if errors.Is(err, store.ErrNotFound) {
			return &workflow.ValidationError{Field: "product_id", Reason: "does not exist"}
		}
		product = doc
		return err
	})
	g.Go(func() error {
		doc, err := s.store.Get(gctx, store.ProblemStatements, statementID)
		if errors.Is(err, store.ErrNotFound) || (err == nil && !scope.Visible(store.ProblemStatements, caller, doc)) {
			return &workflow.ValidationError{Field: "problem_statement_id", Reason: "does not exist"}
		}
		statement = doc
		return err
	})
	if err := g.Wait(); err != nil {
		return Labels{}, fmt.Errorf("lookup labels: %w", err)
	}

	str := func(doc store.Document, key string) string {
		v, _ := doc[key].(string)
		return v
	}
	return Labels{
		ProductName:           str(product, "name"),
		ProblemStatementTitle: str(statement, "title"),
		ProblemImageURL:       str(statement, "image_url"),
		ProblemOrganization:   str(statement, "organization"),
	}, nil
}

// missingLabels reports whether any display label on p is blank.
func missingLabels(p store.Proposal) bool {
	return p.ProductName == "" || p.ProblemStatementTitle == "" || p.ProblemImageURL == "" || p.ProblemOrganization == ""
}

// Fill copies l onto the blank labels of p.
func (l Labels) Fill(p *store.Proposal) {
	if p.ProductName == "" {
		p.ProductName = l.ProductName
	}
	if p.ProblemStatementTitle == "" {
		p.ProblemStatementTitle = l.ProblemStatementTitle
	}
	if p.ProblemImageURL == "" {
		p.ProblemImageURL = l.ProblemImageURL
	}
	if p.ProblemOrganization == "" {
		p.ProblemOrganization = l.ProblemOrganization
	}
}

// CreateProposal persists a proposal submitted by its owner (or an admin on
// the owner's behalf). Status is always Pending; labels are stored as given.
func (s *Service) CreateProposal(ctx context.Context, caller auth.Identity, in store.Proposal) (store.Proposal, error) {
	if !caller.Authenticated() {
		return store.Proposal{}, unauthorized()
	}
	doc, err := store.ToDocument(in)
	if err != nil {
		return store.Proposal{}, err
	}
	delete(doc, "id")
	if err := workflow.RequireFields(doc, "product_id", "problem_statement_id", "owner_id", "description"); err != nil {
		return store.Proposal{}, err
	}
	if err := s.can(caller, in.OwnerID, rbac.ActionWrite); err != nil {
		return store.Proposal{}, err
	}
	doc = workflow.ProposalInitial(doc)
	doc[store.CreatedAtField] = store.ServerTimestamp

	id, err := s.store.Create(ctx, store.Proposals, doc)
	if err != nil {
		return store.Proposal{}, fmt.Errorf("create proposal: %w", err)
	}
	created, err := s.store.Get(ctx, store.Proposals, id)
	if err != nil {
		return store.Proposal{}, fmt.Errorf("load created proposal %s: %w", id, err)
	}
	return store.Decode[store.Proposal](created)
}

func (s *Service) GetProposal(ctx context.Context, caller auth.Identity, id string) *store.Proposal {
	doc := s.readVisible(ctx, store.Proposals, id, caller)
	if doc == nil {
		return nil
	}
	item, err := store.Decode[store.Proposal](doc)
	if err != nil {
		slog.WarnContext(ctx, "decode proposal", "id", id, "error", err)
		return nil
	}
	return &item
}

func (s *Service) ListProposals(ctx context.Context, caller auth.Identity) []store.Proposal {
	return listScoped[store.Proposal](ctx, s, store.Proposals, scope.Resolve(store.Proposals, caller))
}

func (s *Service) UpdateProposal(ctx context.Context, caller auth.Identity, id string, patch workflow.ProposalPatch) (store.Proposal, error) {
	current, err := s.loadForWrite(ctx, store.Proposals, id, caller)
	if err != nil {
		return store.Proposal{}, err
	}
	if err := s.can(caller, ownerOf(current), rbac.ActionWrite); err != nil {
		return store.Proposal{}, err
	}
	if err := patch.Validate(); err != nil {
		return store.Proposal{}, err
	}
	changes := patch.Document(current)
	if len(changes) > 0 {
		if err := s.store.Update(ctx, store.Proposals, id, changes); err != nil {
			return store.Proposal{}, fmt.Errorf("update proposal %s: %w", id, err)
		}
		for k, v := range changes {
			current[k] = v
		}
	}
	return store.Decode[store.Proposal](current)
}

// DecideProposal approves or rejects a Pending proposal and notifies its
// owner by email when an address is on file.
func (s *Service) DecideProposal(ctx context.Context, caller auth.Identity, id, outcome string) (store.Proposal, error) {
	if err := s.can(caller, "", rbac.ActionDecide); err != nil {
		return store.Proposal{}, err
	}
	if err := s.engine.Decide(ctx, id, outcome, caller.CallerID); err != nil {
		return store.Proposal{}, err
	}
	doc, err := s.store.Get(ctx, store.Proposals, id)
	if err != nil {
		return store.Proposal{}, fmt.Errorf("load decided proposal %s: %w", id, err)
	}
	decided, err := store.Decode[store.Proposal](doc)
	if err != nil {
		return store.Proposal{}, err
	}
	s.notifyDecision(decided)
	return decided, nil
}

func (s *Service) notifyDecision(p store.Proposal) {
	if s.mailer == nil || !s.mailer.IsConfigured() || strings.TrimSpace(p.OwnerEmail) == "" {
		return
	}
	data := email.DecisionData{
		AppName:      s.cfg.SMTPFromName,
		ProjectTitle: p.ProjectTitle,
		ProblemTitle: p.ProblemStatementTitle,
		ProductName:  p.ProductName,
		Outcome:      p.Status,
	}
	go func() {
		if err := s.mailer.SendDecisionEmail(p.OwnerEmail, data); err != nil {
			slog.Warn("decision email failed", "proposal_id", p.ID, "error", err)
		}
	}()
}

// DeleteProposal is idempotent: an unknown or invisible id succeeds.
func (s *Service) DeleteProposal(ctx context.Context, caller auth.Identity, id string) error {
	current, err := s.loadForWrite(ctx, store.Proposals, id, caller)
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if err := s.can(caller, ownerOf(current), rbac.ActionDelete); err != nil {
		return err
	}
	if err := s.store.Delete(ctx, store.Proposals, id); err != nil {
		return fmt.Errorf("delete proposal %s: %w", id, err)
	}
	return nil
}

// --- Project reports ---

type ProjectReportInput struct {
	ProjectTitle      string `json:"project_title"`
	FinalReport       string `json:"final_report"`
	Outcomes          string `json:"outcomes"`
	NationalImpacts   string `json:"national_impacts"`
	IsCommercialised  bool   `json:"is_commercialised"`
	ProjectValue      string `json:"project_value"`
	CloudDocumentsURL string `json:"cloud_documents_url"`
}

// CreateProjectReport closes out an Approved proposal. Each proposal gets at
// most one report.
func (s *Service) CreateProjectReport(ctx context.Context, caller auth.Identity, proposalID string, in ProjectReportInput) (store.ProjectReport, error) {
	if err := s.can(caller, "", rbac.ActionReport); err != nil {
		return store.ProjectReport{}, err
	}
	proposalDoc, err := s.store.Get(ctx, store.Proposals, proposalID)
	if err != nil {
		return store.ProjectReport{}, fmt.Errorf("load proposal %s: %w", proposalID, err)
	}
	proposal, err := store.Decode[store.Proposal](proposalDoc)
	if err != nil {
		return store.ProjectReport{}, err
	}
	if proposal.Status != store.StatusApproved {
		return store.ProjectReport{}, &workflow.ValidationError{Field: "proposal_id", Reason: "proposal must be Approved"}
	}

	title := strings.TrimSpace(in.ProjectTitle)
	if title == "" {
		title = proposal.ProjectTitle
	}
	report := store.ProjectReport{
		ProposalID:        proposalID,
		ProjectTitle:      title,
		AdminID:           caller.CallerID,
		AdminEmail:        caller.Email,
		FinalReport:       in.FinalReport,
		Outcomes:          in.Outcomes,
		NationalImpacts:   in.NationalImpacts,
		IsCommercialised:  in.IsCommercialised,
		ProjectValue:      in.ProjectValue,
		CloudDocumentsURL: in.CloudDocumentsURL,
	}
	doc, err := store.ToDocument(report)
	if err != nil {
		return store.ProjectReport{}, err
	}
	delete(doc, "id")
	if err := workflow.RequireFields(doc, "final_report", "outcomes", "national_impacts"); err != nil {
		return store.ProjectReport{}, err
	}
	doc[store.CreatedAtField] = store.ServerTimestamp

	s.reportMu.Lock()
	defer s.reportMu.Unlock()
	existing, err := s.store.Query(ctx, store.ProjectReports, &store.Filter{Field: "proposal_id", Value: proposalID}, nil)
	if err != nil {
		return store.ProjectReport{}, fmt.Errorf("check existing report: %w", err)
	}
	if len(existing) > 0 {
		return store.ProjectReport{}, fmt.Errorf("report for proposal %s: %w", proposalID, store.ErrConflict)
	}
	id, err := s.store.Create(ctx, store.ProjectReports, doc)
	if err != nil {
		return store.ProjectReport{}, fmt.Errorf("create project report: %w", err)
	}
	created, err := s.store.Get(ctx, store.ProjectReports, id)
	if err != nil {
		return store.ProjectReport{}, fmt.Errorf("load created report %s: %w", id, err)
	}
	return store.Decode[store.ProjectReport](created)
}

// reportFor loads a report the caller may read: admins see every report,
// others only reports on proposals they own.
func (s *Service) reportFor(ctx context.Context, caller auth.Identity, id string) (store.ProjectReport, store.Document, error) {
	doc, err := s.store.Get(ctx, store.ProjectReports, id)
	if err != nil {
		return store.ProjectReport{}, nil, fmt.Errorf("load project report %s: %w", id, err)
	}
	report, err := store.Decode[store.ProjectReport](doc)
	if err != nil {
		return store.ProjectReport{}, nil, err
	}
	proposal, err := s.store.Get(ctx, store.Proposals, report.ProposalID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return store.ProjectReport{}, nil, fmt.Errorf("load proposal %s: %w", report.ProposalID, err)
	}
	if caller.IsAdmin {
		return report, proposal, nil
	}
	if proposal == nil || !scope.Visible(store.Proposals, caller, proposal) {
		return store.ProjectReport{}, nil, fmt.Errorf("project report %s: %w", id, store.ErrNotFound)
	}
	return report, proposal, nil
}

func (s *Service) GetProjectReport(ctx context.Context, caller auth.Identity, id string) *store.ProjectReport {
	report, _, err := s.reportFor(ctx, caller, id)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			slog.WarnContext(ctx, "get failed", "collection", store.ProjectReports, "id", id, "error", err)
		}
		return nil
	}
	return &report
}

func (s *Service) ListProjectReports(ctx context.Context, caller auth.Identity) []store.ProjectReport {
	return listScoped[store.ProjectReport](ctx, s, store.ProjectReports, scope.Resolve(store.ProjectReports, caller))
}

func (s *Service) ExportProjectReport(ctx context.Context, caller auth.Identity, id string, format export.Format) (*export.Result, error) {
	if !caller.Authenticated() {
		return nil, unauthorized()
	}
	if s.exporter == nil {
		return nil, unavailable("Export")
	}
	report, proposalDoc, err := s.reportFor(ctx, caller, id)
	if err != nil {
		return nil, err
	}
	data := export.ReportData{AppName: s.cfg.SMTPFromName, Report: report}
	if proposalDoc != nil {
		if proposal, err := store.Decode[store.Proposal](proposalDoc); err == nil {
			data.ProblemTitle = proposal.ProblemStatementTitle
			data.Organization = proposal.ProblemOrganization
			data.ProductName = proposal.ProductName
			data.OwnerEmail = proposal.OwnerEmail
		}
	}
	result, err := s.exporter.Export(ctx, data, format)
	if err != nil {
		return nil, fmt.Errorf("export project report %s: %w", id, err)
	}
	return result, nil
}

// --- Taxonomy ---

type TaxonomyInput struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

func (s *Service) CreateCategory(ctx context.Context, caller auth.Identity, in TaxonomyInput) (store.Taxonomy, error) {
	return s.createTaxonomy(ctx, caller, store.Categories, in)
}

func (s *Service) CreateTag(ctx context.Context, caller auth.Identity, in TaxonomyInput) (store.Taxonomy, error) {
	return s.createTaxonomy(ctx, caller, store.Tags, in)
}

// createTaxonomy derives the slug from the name and rejects a slug already
// used in the same collection.
func (s *Service) createTaxonomy(ctx context.Context, caller auth.Identity, collection string, in TaxonomyInput) (store.Taxonomy, error) {
	if err := s.can(caller, "", rbac.ActionTaxonomy); err != nil {
		return store.Taxonomy{}, err
	}
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return store.Taxonomy{}, &workflow.ValidationError{Field: "name", Reason: "is required"}
	}
	slug := workflow.GenerateSlug(name)
	if slug == "" {
		return store.Taxonomy{}, &workflow.ValidationError{Field: "name", Reason: "must contain a letter or digit"}
	}
	doc := store.Document{
		"name":               name,
		"slug":               slug,
		store.CreatedAtField: store.ServerTimestamp,
	}
	if d := strings.TrimSpace(in.Description); d != "" {
		doc["description"] = d
	}

	s.taxonomyMu.Lock()
	defer s.taxonomyMu.Unlock()
	existing, err := s.store.Query(ctx, collection, &store.Filter{Field: "slug", Value: slug}, nil)
	if err != nil {
		return store.Taxonomy{}, fmt.Errorf("check slug: %w", err)
	}
	if len(existing) > 0 {
		return store.Taxonomy{}, fmt.Errorf("%s slug %q: %w", collection, slug, store.ErrConflict)
	}
	id, err := s.store.Create(ctx, collection, doc)
	if err != nil {
		return store.Taxonomy{}, fmt.Errorf("create %s: %w", collection, err)
	}
	doc["id"] = id
	delete(doc, store.CreatedAtField)
	return store.Decode[store.Taxonomy](doc)
}

func (s *Service) ListCategories(ctx context.Context) []store.Taxonomy {
	return listScoped[store.Taxonomy](ctx, s, store.Categories, scope.Resolve(store.Categories, auth.Anonymous()))
}

func (s *Service) ListTags(ctx context.Context) []store.Taxonomy {
	return listScoped[store.Taxonomy](ctx, s, store.Tags, scope.Resolve(store.Tags, auth.Anonymous()))
}

func (s *Service) DeleteCategory(ctx context.Context, caller auth.Identity, id string) error {
	return s.deleteTaxonomy(ctx, caller, store.Categories, id)
}

func (s *Service) DeleteTag(ctx context.Context, caller auth.Identity, id string) error {
	return s.deleteTaxonomy(ctx, caller, store.Tags, id)
}

func (s *Service) deleteTaxonomy(ctx context.Context, caller auth.Identity, collection, id string) error {
	if err := s.can(caller, "", rbac.ActionTaxonomy); err != nil {
		return err
	}
	if err := s.store.Delete(ctx, collection, id); err != nil {
		return fmt.Errorf("delete %s/%s: %w", collection, id, err)
	}
	return nil
}

// --- Attachments ---

// PresignUpload signs an upload owned by the caller.
func (s *Service) PresignUpload(ctx context.Context, caller auth.Identity, kind attachments.Kind, filename string) (attachments.Upload, error) {
	if !caller.Authenticated() {
		return attachments.Upload{}, unauthorized()
	}
	if s.attachments == nil {
		return attachments.Upload{}, unavailable("Attachments")
	}
	owner := caller.CallerID
	if owner == "" {
		owner = "admin"
	}
	return s.attachments.Presign(ctx, owner, kind, filename)
}
