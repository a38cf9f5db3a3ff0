package app

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"innomatch/api/internal/attachments"
	"innomatch/api/internal/auth"
	"innomatch/api/internal/config"
	"innomatch/api/internal/email"
	"innomatch/api/internal/export"
	"innomatch/api/internal/metrics"
	"innomatch/api/internal/session"
	"innomatch/api/internal/store"
)

const testSecret = "test-secret"

// fakeStore delegates to an in-memory store unless a function field
// overrides the call.
type fakeStore struct {
	store.Store
	pingFn   func(context.Context) error
	getFn    func(context.Context, string, string) (store.Document, error)
	queryFn  func(context.Context, string, *store.Filter, *store.Order) ([]store.Document, error)
	createFn func(context.Context, string, store.Document) (string, error)
}

func newFakeStore() *fakeStore {
	return &fakeStore{Store: store.NewMemoryStore(nil)}
}

func (f *fakeStore) Ping(ctx context.Context) error {
	if f.pingFn != nil {
		return f.pingFn(ctx)
	}
	return nil
}

func (f *fakeStore) Get(ctx context.Context, collection, id string) (store.Document, error) {
	if f.getFn != nil {
		return f.getFn(ctx, collection, id)
	}
	return f.Store.Get(ctx, collection, id)
}

func (f *fakeStore) Query(ctx context.Context, collection string, filter *store.Filter, order *store.Order) ([]store.Document, error) {
	if f.queryFn != nil {
		return f.queryFn(ctx, collection, filter, order)
	}
	return f.Store.Query(ctx, collection, filter, order)
}

func (f *fakeStore) Create(ctx context.Context, collection string, doc store.Document) (string, error) {
	if f.createFn != nil {
		return f.createFn(ctx, collection, doc)
	}
	return f.Store.Create(ctx, collection, doc)
}

type sentEmail struct {
	to   string
	data email.DecisionData
}

type fakeMailer struct {
	sent chan sentEmail
}

func (f *fakeMailer) IsConfigured() bool { return true }

func (f *fakeMailer) SendDecisionEmail(to string, data email.DecisionData) error {
	f.sent <- sentEmail{to: to, data: data}
	return nil
}

type fakeExporter struct {
	mu   sync.Mutex
	last export.ReportData
	err  error
}

func (f *fakeExporter) Export(_ context.Context, data export.ReportData, format export.Format) (*export.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.last = data
	if f.err != nil {
		return nil, f.err
	}
	return &export.Result{Data: []byte("report:" + data.Report.ID), Filename: "report." + string(format), MimeType: "application/pdf"}, nil
}

type testEnv struct {
	store    *fakeStore
	service  *Service
	server   http.Handler
	mailer   *fakeMailer
	exporter *fakeExporter
	sessions *session.MemoryStore
	metrics  *metrics.Collectors
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	env := &testEnv{
		store:    newFakeStore(),
		mailer:   &fakeMailer{sent: make(chan sentEmail, 4)},
		exporter: &fakeExporter{},
		sessions: session.NewMemoryStore(),
		metrics:  metrics.New(),
	}
	env.service = New(config.Config{TokenSecret: testSecret, SMTPFromName: "Innovation Portal"}, Deps{
		Store:       env.store,
		Metrics:     env.metrics,
		Sessions:    env.sessions,
		Attachments: attachments.NewService(attachments.NewMemorySigner("uploads", ""), time.Minute),
		Mailer:      env.mailer,
		Exporter:    env.exporter,
	})
	env.server = NewHTTPServer(env.service, "*").Handler()
	return env
}

func tokenFor(t *testing.T, sub string, admin bool) string {
	t.Helper()
	token, err := auth.IssueToken([]byte(testSecret), auth.Claims{
		Sub:   sub,
		Email: sub + "@example.org",
		Admin: admin,
		JTI:   "jti-" + sub,
		Exp:   time.Now().Add(time.Hour).Unix(),
	})
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	return token
}

func (e *testEnv) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		raw, err := json.Marshal(b)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	e.server.ServeHTTP(rr, req)
	return rr
}

func decodeJSON[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(rr.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode response %q: %v", rr.Body.String(), err)
	}
	return out
}

type itemsResponse[T any] struct {
	Items []T `json:"items"`
}

type errorResponse struct {
	Code    string         `json:"code"`
	Error   string         `json:"error"`
	Details map[string]any `json:"details"`
}

func expectStatus(t *testing.T, rr *httptest.ResponseRecorder, want int) {
	t.Helper()
	if rr.Code != want {
		t.Fatalf("expected status %d, got %d: %s", want, rr.Code, rr.Body.String())
	}
}

func seed(t *testing.T, s store.Store, collection string, doc store.Document) string {
	t.Helper()
	id, err := s.Create(context.Background(), collection, doc)
	if err != nil {
		t.Fatalf("seed %s: %v", collection, err)
	}
	return id
}
