package workflow

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"strings"

	"innomatch/api/internal/store"
)

// ProblemStatementPatch lists the fields an owner or admin may change.
type ProblemStatementPatch struct {
	Title        *string `json:"title,omitempty"`
	Organization *string `json:"organization,omitempty"`
	Description  *string `json:"description,omitempty"`
	Sector       *string `json:"sector,omitempty"`
	Status       *string `json:"status,omitempty"`
	Deadline     *string `json:"deadline,omitempty"`
	ImageURL     *string `json:"image_url,omitempty"`
}

func (p ProblemStatementPatch) Validate() error {
	if p.Status != nil {
		if err := ValidateProblemStatus(*p.Status); err != nil {
			return err
		}
	}
	if p.Title != nil && strings.TrimSpace(*p.Title) == "" {
		return invalid("title", "must not be blank")
	}
	return nil
}

// Document returns only the fields that were set.
func (p ProblemStatementPatch) Document() store.Document {
	doc := store.Document{}
	setString(doc, "title", p.Title)
	setString(doc, "organization", p.Organization)
	setString(doc, "description", p.Description)
	setString(doc, "sector", p.Sector)
	setString(doc, "status", p.Status)
	setString(doc, "deadline", p.Deadline)
	setString(doc, "image_url", p.ImageURL)
	return doc
}

// ProposalPatch lists the editable proposal fields. Status, approver,
// references and the copied display labels are not editable.
type ProposalPatch struct {
	ProjectTitle   *string            `json:"project_title,omitempty"`
	Description    *string            `json:"description,omitempty"`
	OwnerEmail     *string            `json:"owner_email,omitempty"`
	Facilitation   *FacilitationPatch `json:"facilitation,omitempty"`
	DocumentsURL   *string            `json:"documents_url,omitempty"`
	ImpactOutcomes *string            `json:"impact_outcomes,omitempty"`
}

// FacilitationPatch changes only the flags present in the body.
type FacilitationPatch struct {
	Funding  *bool `json:"funding,omitempty"`
	Market   *bool `json:"market,omitempty"`
	Capacity *bool `json:"capacity,omitempty"`
	Sandbox  *bool `json:"sandbox,omitempty"`
}

func (p ProposalPatch) Validate() error {
	if p.Description != nil && strings.TrimSpace(*p.Description) == "" {
		return invalid("description", "must not be blank")
	}
	return nil
}

// Document returns the fields that were set. Facilitation flags missing
// from the patch keep their value in current.
func (p ProposalPatch) Document(current store.Document) store.Document {
	doc := store.Document{}
	setString(doc, "project_title", p.ProjectTitle)
	setString(doc, "description", p.Description)
	setString(doc, "owner_email", p.OwnerEmail)
	setString(doc, "documents_url", p.DocumentsURL)
	setString(doc, "impact_outcomes", p.ImpactOutcomes)
	if p.Facilitation != nil {
		var existing map[string]any
		switch v := current["facilitation"].(type) {
		case map[string]any:
			existing = v
		case store.Document:
			existing = v
		}
		merged := map[string]any{}
		for _, flag := range []struct {
			key   string
			value *bool
		}{
			{"funding", p.Facilitation.Funding},
			{"market", p.Facilitation.Market},
			{"capacity", p.Facilitation.Capacity},
			{"sandbox", p.Facilitation.Sandbox},
		} {
			if flag.value != nil {
				merged[flag.key] = *flag.value
				continue
			}
			was, _ := existing[flag.key].(bool)
			merged[flag.key] = was
		}
		doc["facilitation"] = merged
	}
	return doc
}

func setString(doc store.Document, key string, value *string) {
	if value != nil {
		doc[key] = *value
	}
}

// DecodePatch reads a JSON patch into T, rejecting keys T does not declare.
func DecodePatch[T any](r io.Reader) (T, error) {
	var patch T
	decoder := json.NewDecoder(r)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&patch); err != nil {
		if field, ok := unknownField(err); ok {
			return patch, invalid(field, "is not an editable field")
		}
		if errors.Is(err, io.EOF) {
			return patch, invalid("body", "is empty")
		}
		return patch, invalid("body", "is not valid JSON: %v", err)
	}
	if decoder.More() {
		return patch, invalid("body", "must contain a single JSON object")
	}
	return patch, nil
}

// DecodePatchBytes is DecodePatch over an in-memory body.
func DecodePatchBytes[T any](raw []byte) (T, error) {
	return DecodePatch[T](bytes.NewReader(raw))
}

func unknownField(err error) (string, bool) {
	const prefix = "json: unknown field "
	msg := err.Error()
	if !strings.HasPrefix(msg, prefix) {
		return "", false
	}
	field := strings.Trim(strings.TrimPrefix(msg, prefix), `"`)
	return field, field != ""
}
