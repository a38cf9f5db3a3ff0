package app

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"innomatch/api/internal/attachments"
	"innomatch/api/internal/auth"
	"innomatch/api/internal/export"
	"innomatch/api/internal/store"
	"innomatch/api/internal/workflow"
)

const maxBodyBytes = 1 << 20

type HTTPServer struct {
	service    *Service
	corsOrigin string
}

func NewHTTPServer(service *Service, corsOrigin string) *HTTPServer {
	return &HTTPServer{service: service, corsOrigin: corsOrigin}
}

func (s *HTTPServer) Handler() http.Handler {
	return s.withMiddleware(http.HandlerFunc(s.handle))
}

func (s *HTTPServer) handle(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodOptions {
		writeJSON(w, http.StatusNoContent, map[string]any{})
		return
	}

	if (r.Method == http.MethodGet || r.Method == http.MethodHead) && r.URL.Path == "/api/health" {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		return
	}

	if (r.Method == http.MethodGet || r.Method == http.MethodHead) && r.URL.Path == "/api/ready" {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		status := "ready"
		statusCode := http.StatusOK
		checks := map[string]any{
			"store": map[string]any{"status": "ok"},
		}

		if err := s.service.Ping(ctx); err != nil {
			status = "not_ready"
			statusCode = http.StatusServiceUnavailable
			checks["store"] = map[string]any{
				"status": "error",
				"error":  err.Error(),
			}
		}

		writeJSON(w, statusCode, map[string]any{
			"ok":     status == "ready",
			"status": status,
			"checks": checks,
		})
		return
	}

	caller := auth.FromContext(r.Context())

	if r.Method == http.MethodGet && r.URL.Path == "/api/session" {
		if !caller.Authenticated() {
			writeJSON(w, http.StatusOK, map[string]any{"authenticated": false})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"authenticated": true,
			"userId":        caller.CallerID,
			"email":         caller.Email,
			"isAdmin":       caller.IsAdmin,
		})
		return
	}

	if r.Method == http.MethodPost && r.URL.Path == "/api/session/logout" {
		if token := bearerToken(r); token != "" {
			if err := s.service.Logout(r.Context(), token); err != nil && !errors.Is(err, auth.ErrExpiredToken) {
				writeServiceError(w, err)
				return
			}
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		return
	}

	if r.Method == http.MethodPost && r.URL.Path == "/api/attachments" {
		var body struct {
			Kind     string `json:"kind"`
			Filename string `json:"filename"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		upload, err := s.service.PresignUpload(r.Context(), caller, attachments.Kind(body.Kind), body.Filename)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, upload)
		return
	}

	parts := splitPath(r.URL.Path)
	if len(parts) < 2 || parts[0] != "api" {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
		return
	}

	switch parts[1] {
	case "problem-statements":
		s.handleProblemStatements(w, r, caller, parts[2:])
	case "proposals":
		s.handleProposals(w, r, caller, parts[2:])
	case "project-reports":
		s.handleProjectReports(w, r, caller, parts[2:])
	case "categories":
		s.handleTaxonomy(w, r, caller, store.Categories, parts[2:])
	case "tags":
		s.handleTaxonomy(w, r, caller, store.Tags, parts[2:])
	default:
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
	}
}

func (s *HTTPServer) handleProblemStatements(w http.ResponseWriter, r *http.Request, caller auth.Identity, rest []string) {
	mine := r.URL.Query().Get("scope") == "mine"

	switch {
	case len(rest) == 0 && r.Method == http.MethodGet:
		writeJSON(w, http.StatusOK, map[string]any{"items": s.service.ListProblemStatements(r.Context(), caller, mine)})
		return

	case len(rest) == 0 && r.Method == http.MethodPost:
		var input ProblemStatementInput
		if err := decodeBody(r, &input); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		created, err := s.service.CreateProblemStatement(r.Context(), caller, input)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, created)
		return

	case len(rest) == 1 && rest[0] == "search" && r.Method == http.MethodGet:
		limit, offset, err := paging(r)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, s.service.SearchProblemStatements(r.Context(), caller, r.URL.Query().Get("q"), mine, limit, offset))
		return

	case len(rest) == 1 && r.Method == http.MethodGet:
		item := s.service.GetProblemStatement(r.Context(), caller, rest[0])
		if item == nil {
			writeError(w, http.StatusNotFound, "NOT_FOUND", "Problem statement not found", nil)
			return
		}
		writeJSON(w, http.StatusOK, item)
		return

	case len(rest) == 1 && r.Method == http.MethodPut:
		patch, err := workflow.DecodePatch[workflow.ProblemStatementPatch](r.Body)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		updated, err := s.service.UpdateProblemStatement(r.Context(), caller, rest[0], patch)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, updated)
		return

	case len(rest) == 1 && r.Method == http.MethodDelete:
		if err := s.service.DeleteProblemStatement(r.Context(), caller, rest[0]); err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		return

	case len(rest) == 2 && rest[1] == "views" && r.Method == http.MethodPost:
		views, err := s.service.RecordView(r.Context(), caller, rest[0])
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"views": views})
		return
	}

	writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
}

func (s *HTTPServer) handleProposals(w http.ResponseWriter, r *http.Request, caller auth.Identity, rest []string) {
	switch {
	case len(rest) == 0 && r.Method == http.MethodGet:
		if !caller.Authenticated() {
			writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": s.service.ListProposals(r.Context(), caller)})
		return

	case len(rest) == 0 && r.Method == http.MethodPost:
		var input store.Proposal
		if err := decodeBody(r, &input); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		if caller.Authenticated() && missingLabels(input) && input.ProductID != "" && input.ProblemStatementID != "" {
			labels, err := s.service.LookupLabels(r.Context(), caller, input.ProductID, input.ProblemStatementID)
			if err != nil {
				writeServiceError(w, err)
				return
			}
			labels.Fill(&input)
		}
		created, err := s.service.CreateProposal(r.Context(), caller, input)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, created)
		return

	case len(rest) == 1 && r.Method == http.MethodGet:
		item := s.service.GetProposal(r.Context(), caller, rest[0])
		if item == nil {
			writeError(w, http.StatusNotFound, "NOT_FOUND", "Proposal not found", nil)
			return
		}
		writeJSON(w, http.StatusOK, item)
		return

	case len(rest) == 1 && r.Method == http.MethodPut:
		patch, err := workflow.DecodePatch[workflow.ProposalPatch](r.Body)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		updated, err := s.service.UpdateProposal(r.Context(), caller, rest[0], patch)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, updated)
		return

	case len(rest) == 1 && r.Method == http.MethodDelete:
		if err := s.service.DeleteProposal(r.Context(), caller, rest[0]); err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		return

	case len(rest) == 2 && rest[1] == "decision" && r.Method == http.MethodPost:
		var body struct {
			Outcome string `json:"outcome"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		decided, err := s.service.DecideProposal(r.Context(), caller, rest[0], body.Outcome)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, decided)
		return

	case len(rest) == 2 && rest[1] == "report" && r.Method == http.MethodPost:
		var input ProjectReportInput
		if err := decodeBody(r, &input); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		report, err := s.service.CreateProjectReport(r.Context(), caller, rest[0], input)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, report)
		return
	}

	writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
}

func (s *HTTPServer) handleProjectReports(w http.ResponseWriter, r *http.Request, caller auth.Identity, rest []string) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
		return
	}
	if !caller.Authenticated() {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil)
		return
	}

	switch {
	case len(rest) == 0:
		writeJSON(w, http.StatusOK, map[string]any{"items": s.service.ListProjectReports(r.Context(), caller)})
		return

	case len(rest) == 1:
		report := s.service.GetProjectReport(r.Context(), caller, rest[0])
		if report == nil {
			writeError(w, http.StatusNotFound, "NOT_FOUND", "Project report not found", nil)
			return
		}
		writeJSON(w, http.StatusOK, report)
		return

	case len(rest) == 2 && rest[1] == "export":
		format, err := export.ParseFormat(r.URL.Query().Get("format"))
		if err != nil {
			writeServiceError(w, err)
			return
		}
		result, err := s.service.ExportProjectReport(r.Context(), caller, rest[0], format)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		w.Header().Set("Content-Type", result.MimeType)
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", result.Filename))
		w.Header().Set("Content-Length", strconv.Itoa(len(result.Data)))
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(result.Data)
		return
	}

	writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
}

func (s *HTTPServer) handleTaxonomy(w http.ResponseWriter, r *http.Request, caller auth.Identity, collection string, rest []string) {
	switch {
	case len(rest) == 0 && r.Method == http.MethodGet:
		var items []store.Taxonomy
		if collection == store.Categories {
			items = s.service.ListCategories(r.Context())
		} else {
			items = s.service.ListTags(r.Context())
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": items})
		return

	case len(rest) == 0 && r.Method == http.MethodPost:
		var input TaxonomyInput
		if err := decodeBody(r, &input); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		var (
			created store.Taxonomy
			err     error
		)
		if collection == store.Categories {
			created, err = s.service.CreateCategory(r.Context(), caller, input)
		} else {
			created, err = s.service.CreateTag(r.Context(), caller, input)
		}
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, created)
		return

	case len(rest) == 1 && r.Method == http.MethodDelete:
		var err error
		if collection == store.Categories {
			err = s.service.DeleteCategory(r.Context(), caller, rest[0])
		} else {
			err = s.service.DeleteTag(r.Context(), caller, rest[0])
		}
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		return
	}

	writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
}

// identify resolves the caller for r. A missing, invalid or revoked token
// degrades to the anonymous identity.
func (s *HTTPServer) identify(r *http.Request) auth.Identity {
	token := bearerToken(r)
	if token == "" {
		return auth.Anonymous()
	}
	id, err := s.service.Identify(r.Context(), token)
	if err != nil {
		if !errors.Is(err, auth.ErrInvalidToken) && !errors.Is(err, auth.ErrExpiredToken) {
			slog.WarnContext(r.Context(), "identity lookup failed", "error", err)
		}
		return auth.Anonymous()
	}
	return id
}

func (s *HTTPServer) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = randomRequestID()
		}
		ctx := context.WithValue(r.Context(), requestIDKey{}, requestID)
		r = r.WithContext(ctx)
		r = r.WithContext(auth.WithIdentity(ctx, s.identify(r)))
		if r.Body != nil {
			r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
		}

		started := time.Now()
		writer := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		setCORSHeaders(writer.Header(), s.corsOrigin)
		writer.Header().Set("X-Request-ID", requestID)

		next.ServeHTTP(writer, r)

		elapsed := time.Since(started)
		s.service.metrics.ObserveRequest(r.Method, writer.status, elapsed)
		slog.Info("request",
			"request_id", requestID,
			"method", r.Method,
			"path", r.URL.Path,
			"status", writer.status,
			"duration_ms", elapsed.Milliseconds(),
		)
	})
}

type requestIDKey struct{}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func randomRequestID() string {
	buf := make([]byte, 8)
	_, _ = rand.Read(buf)
	return hex.EncodeToString(buf)
}

func setCORSHeaders(header http.Header, corsOrigin string) {
	header.Set("Access-Control-Allow-Origin", corsOrigin)
	header.Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Request-ID")
	header.Set("Access-Control-Allow-Methods", "GET,POST,PUT,DELETE,OPTIONS")
	header.Set("Access-Control-Expose-Headers", "Content-Disposition, X-Request-ID")
	header.Set("Cache-Control", "no-store")
	header.Set("Content-Type", "application/json")
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, message string, details any) {
	response := map[string]any{
		"code":  code,
		"error": message,
	}
	if details != nil {
		response["details"] = details
	}
	writeJSON(w, status, response)
}

func writeServiceError(w http.ResponseWriter, err error) {
	status, code, message, details := mapError(err)
	if status >= http.StatusInternalServerError {
		slog.Error("request failed", "code", code, "error", err)
	}
	writeError(w, status, code, message, details)
}

func decodeBody(r *http.Request, target any) error {
	if r.Body == nil {
		return nil
	}
	defer r.Body.Close()
	decoder := json.NewDecoder(r.Body)
	if err := decoder.Decode(target); err != nil {
		if errors.Is(err, http.ErrBodyReadAfterClose) {
			return nil
		}
		return fmt.Errorf("invalid JSON body")
	}
	return nil
}

func paging(r *http.Request) (limit, offset int, err error) {
	query := r.URL.Query()
	if raw := strings.TrimSpace(query.Get("limit")); raw != "" {
		if limit, err = strconv.Atoi(raw); err != nil {
			return 0, 0, &workflow.ValidationError{Field: "limit", Reason: "must be an integer"}
		}
	}
	if raw := strings.TrimSpace(query.Get("offset")); raw != "" {
		if offset, err = strconv.Atoi(raw); err != nil {
			return 0, 0, &workflow.ValidationError{Field: "offset", Reason: "must be an integer"}
		}
	}
	return limit, offset, nil
}

func bearerToken(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if !strings.HasPrefix(header, "Bearer ") {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
}

func splitPath(path string) []string {
	trimmed := strings.Trim(path, "/")
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "/")
}
