// Package workflow enforces the status domains of problem statements and
// proposals and owns the only path that moves a proposal out of Pending.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"innomatch/api/internal/metrics"
	"innomatch/api/internal/store"
)

// ValidationError rejects a write before it reaches the store.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

func invalid(field, format string, args ...any) error {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

var (
	problemStatuses  = []string{store.StatusDraft, store.StatusOpen, store.StatusClosed}
	proposalOutcomes = []string{store.StatusApproved, store.StatusRejected}
)

// ValidateProblemStatus accepts Draft, Open and Closed. Any of them may follow
// any other.
func ValidateProblemStatus(status string) error {
	for _, allowed := range problemStatuses {
		if status == allowed {
			return nil
		}
	}
	return invalid("status", "must be one of %s", strings.Join(problemStatuses, ", "))
}

// ProblemStatementStatus returns the status a new problem statement starts in.
func ProblemStatementStatus(requested string) (string, error) {
	if requested == "" {
		return store.StatusDraft, nil
	}
	if err := ValidateProblemStatus(requested); err != nil {
		return "", err
	}
	return requested, nil
}

func ValidateOutcome(outcome string) error {
	for _, allowed := range proposalOutcomes {
		if outcome == allowed {
			return nil
		}
	}
	return invalid("outcome", "must be one of %s", strings.Join(proposalOutcomes, ", "))
}

// ProposalInitial returns doc with status forced to Pending and any approver
// removed. Caller-supplied status values are ignored.
func ProposalInitial(doc store.Document) store.Document {
	out := make(store.Document, len(doc)+1)
	for k, v := range doc {
		out[k] = v
	}
	delete(out, "approved_by")
	out["status"] = store.StatusPending
	return out
}

// RequireFields fails on the first field that is missing or blank.
func RequireFields(doc store.Document, fields ...string) error {
	for _, field := range fields {
		value, ok := doc[field]
		if !ok || value == nil {
			return invalid(field, "is required")
		}
		if s, isString := value.(string); isString && strings.TrimSpace(s) == "" {
			return invalid(field, "is required")
		}
	}
	return nil
}

// Decision results reported to metrics.
const (
	ResultOK       = "ok"
	ResultConflict = "conflict"
	ResultNotFound = "not_found"
	ResultInvalid  = "invalid"
	ResultError    = "error"
)

// Engine applies proposal decisions.
type Engine struct {
	Store   store.Store
	Metrics *metrics.Collectors
}

// Decide moves a Pending proposal to outcome and stamps approverID in one
// conditional update. Deciding an already decided proposal returns
// store.ErrConflict; an unknown id returns store.ErrNotFound.
func (e *Engine) Decide(ctx context.Context, proposalID, outcome, approverID string) error {
	err := e.decide(ctx, proposalID, outcome, approverID)
	e.Metrics.ObserveDecision(outcome, decisionResult(err))
	return err
}

func (e *Engine) decide(ctx context.Context, proposalID, outcome, approverID string) error {
	if err := ValidateOutcome(outcome); err != nil {
		return err
	}
	if strings.TrimSpace(approverID) == "" {
		return invalid("approved_by", "is required")
	}
	err := e.Store.UpdateIf(ctx, store.Proposals, proposalID,
		store.Filter{Field: "status", Value: store.StatusPending},
		store.Document{"status": outcome, "approved_by": approverID},
	)
	if err != nil {
		return fmt.Errorf("decide proposal %s: %w", proposalID, err)
	}
	return nil
}

func decisionResult(err error) string {
	var validation *ValidationError
	switch {
	case err == nil:
		return ResultOK
	case errors.As(err, &validation):
		return ResultInvalid
	case errors.Is(err, store.ErrConflict):
		return ResultConflict
	case errors.Is(err, store.ErrNotFound):
		return ResultNotFound
	default:
		return ResultError
	}
}
