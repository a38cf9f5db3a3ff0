package store

import (
	"encoding/json"
	"fmt"
)

// Problem statement statuses.
const (
	StatusDraft  = "Draft"
	StatusOpen   = "Open"
	StatusClosed = "Closed"
)

// Proposal statuses.
const (
	StatusPending  = "Pending"
	StatusApproved = "Approved"
	StatusRejected = "Rejected"
)

// ProblemStatement is an industry-posed problem. CreatedAt holds either epoch
// millis (legacy rows) or a store Timestamp; use CreatedMillis to compare.
type ProblemStatement struct {
	ID           string `json:"id,omitempty"`
	Title        string `json:"title"`
	Organization string `json:"organization"`
	Description  string `json:"description"`
	Sector       string `json:"sector"`
	Status       string `json:"status"`
	OwnerID      string `json:"owner_id"`
	Deadline     string `json:"deadline,omitempty"`
	ImageURL     string `json:"image_url,omitempty"`
	CreatedAt    any    `json:"createdAt,omitempty"`
}

func (p ProblemStatement) CreatedMillis() int64 { return SortKey(p.CreatedAt) }

type Facilitation struct {
	Funding  bool `json:"funding"`
	Market   bool `json:"market"`
	Capacity bool `json:"capacity"`
	Sandbox  bool `json:"sandbox"`
}

// Proposal links a research product to a problem statement. The product and
// problem fields are display labels copied at submission time.
type Proposal struct {
	ID                    string       `json:"id,omitempty"`
	ProductID             string       `json:"product_id"`
	ProductName           string       `json:"product_name,omitempty"`
	ProblemStatementID    string       `json:"problem_statement_id"`
	ProblemStatementTitle string       `json:"problem_statement_title,omitempty"`
	ProblemImageURL       string       `json:"problem_image_url,omitempty"`
	ProblemOrganization   string       `json:"problem_organization,omitempty"`
	OwnerID               string       `json:"owner_id"`
	OwnerEmail            string       `json:"owner_email,omitempty"`
	ProjectTitle          string       `json:"project_title,omitempty"`
	Description           string       `json:"description"`
	Facilitation          Facilitation `json:"facilitation"`
	Status                string       `json:"status"`
	DocumentsURL          string       `json:"documents_url,omitempty"`
	ImpactOutcomes        string       `json:"impact_outcomes,omitempty"`
	ApprovedBy            string       `json:"approved_by,omitempty"`
	CreatedAt             any          `json:"createdAt,omitempty"`
}

func (p Proposal) CreatedMillis() int64 { return SortKey(p.CreatedAt) }

// ProjectReport closes out an approved proposal. Reports are write-once.
type ProjectReport struct {
	ID                string `json:"id,omitempty"`
	ProposalID        string `json:"proposal_id"`
	ProjectTitle      string `json:"project_title"`
	AdminID           string `json:"admin_id"`
	AdminEmail        string `json:"admin_email"`
	FinalReport       string `json:"final_report"`
	Outcomes          string `json:"outcomes"`
	NationalImpacts   string `json:"national_impacts"`
	IsCommercialised  bool   `json:"is_commercialised"`
	ProjectValue      string `json:"project_value,omitempty"`
	CloudDocumentsURL string `json:"cloud_documents_url,omitempty"`
	CreatedAt         any    `json:"createdAt,omitempty"`
}

func (r ProjectReport) CreatedMillis() int64 { return SortKey(r.CreatedAt) }

// Taxonomy is a category or tag.
type Taxonomy struct {
	ID          string `json:"id,omitempty"`
	Name        string `json:"name"`
	Slug        string `json:"slug"`
	Description string `json:"description,omitempty"`
	Count       int    `json:"count,omitempty"`
}

// Product is a research product. The portal only reads products.
type Product struct {
	ID           string `json:"id,omitempty"`
	Name         string `json:"name"`
	ImageURL     string `json:"image_url,omitempty"`
	Organization string `json:"organization,omitempty"`
	OwnerID      string `json:"owner_id,omitempty"`
}

// ToDocument converts a model into a Document keyed by its JSON field names.
func ToDocument(v any) (Document, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode model: %w", err)
	}
	return decodeDocument(raw)
}

// Decode converts a stored Document into a model.
func Decode[T any](doc Document) (T, error) {
	var out T
	raw, err := json.Marshal(doc)
	if err != nil {
		return out, fmt.Errorf("encode document: %w", err)
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return out, fmt.Errorf("decode model: %w", err)
	}
	return out, nil
}
