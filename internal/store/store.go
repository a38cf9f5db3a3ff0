// Package store is the record store adapter: create/read/update/delete over
// named collections of schemaless documents, each addressed by a
// store-assigned identifier.
package store

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Collection names.
const (
	ProblemStatements = "problem_statements"
	Proposals         = "proposals"
	ProjectReports    = "project_reports"
	Categories        = "categories"
	Tags              = "tags"
	Products          = "products"
)

// CreatedAtField is the store's native ordering field.
const CreatedAtField = "createdAt"

var (
	// ErrNotFound is returned when the requested id does not exist.
	ErrNotFound = errors.New("not found")
	// ErrConflict is returned when a conditional update's precondition fails
	// or a uniqueness rule is violated.
	ErrConflict = errors.New("conflict")
	// ErrIndexRequired is returned when a query asks for both a filter and an
	// order that no provisioned index covers.
	ErrIndexRequired = errors.New("query requires a composite index")
)

// Document is an opaque record. The store writes its id under "id".
type Document map[string]any

// Filter is a single equality predicate.
type Filter struct {
	Field string
	Value any
}

// Order requests server-side ordering on Field.
type Order struct {
	Field      string
	Descending bool
}

// Store is implemented by every backend.
type Store interface {
	Create(ctx context.Context, collection string, doc Document) (string, error)
	Get(ctx context.Context, collection, id string) (Document, error)
	Update(ctx context.Context, collection, id string, patch Document) error
	// UpdateIf applies patch only when the stored value of cond.Field equals
	// cond.Value; otherwise it returns ErrConflict.
	UpdateIf(ctx context.Context, collection, id string, cond Filter, patch Document) error
	// Delete is idempotent: removing a missing id is not an error.
	Delete(ctx context.Context, collection, id string) error
	Query(ctx context.Context, collection string, filter *Filter, order *Order) ([]Document, error)
	Ping(ctx context.Context) error
	Close() error
}

type serverTimestamp struct{}

// ServerTimestamp is replaced with the store's clock on Create and Update.
var ServerTimestamp any = serverTimestamp{}

// Indexes records the composite (filter field, order field) indexes an
// operator has provisioned.
type Indexes map[string]bool

// ParseIndexes reads "field:orderField" pairs.
func ParseIndexes(pairs []string) Indexes {
	idx := Indexes{}
	for _, pair := range pairs {
		field, order, ok := strings.Cut(pair, ":")
		if !ok || field == "" || order == "" {
			continue
		}
		idx[field+":"+order] = true
	}
	return idx
}

// Covers reports whether the store can both filter and order as requested.
func (idx Indexes) Covers(filter *Filter, order *Order) bool {
	if filter == nil || order == nil {
		return true
	}
	if filter.Field == order.Field {
		return true
	}
	return idx[filter.Field+":"+order.Field]
}

func checkQuery(idx Indexes, collection string, filter *Filter, order *Order) error {
	if !idx.Covers(filter, order) {
		return fmt.Errorf("query %s where %s order by %s: %w", collection, filter.Field, order.Field, ErrIndexRequired)
	}
	return nil
}

// prepare resolves server timestamps and normalises value types through a
// JSON round trip so every backend holds the same shapes.
func prepare(doc Document, now time.Time) (Document, error) {
	resolved := make(Document, len(doc))
	for key, value := range doc {
		if _, ok := value.(serverTimestamp); ok {
			resolved[key] = TimestampOf(now)
			continue
		}
		resolved[key] = value
	}
	return normalize(resolved)
}

func normalize(doc Document) (Document, error) {
	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("encode document: %w", err)
	}
	return decodeDocument(raw)
}

func decodeDocument(raw []byte) (Document, error) {
	decoder := json.NewDecoder(bytes.NewReader(raw))
	decoder.UseNumber()
	var out Document
	if err := decoder.Decode(&out); err != nil {
		return nil, fmt.Errorf("decode document: %w", err)
	}
	if out == nil {
		out = Document{}
	}
	return out, nil
}

func merge(doc, patch Document) Document {
	out := make(Document, len(doc)+len(patch))
	for k, v := range doc {
		out[k] = v
	}
	for k, v := range patch {
		out[k] = v
	}
	return out
}

func clone(doc Document) Document {
	out := make(Document, len(doc))
	for k, v := range doc {
		out[k] = v
	}
	return out
}

func valuesEqual(a, b any) bool {
	left, err := json.Marshal(a)
	if err != nil {
		return false
	}
	right, err := json.Marshal(b)
	if err != nil {
		return false
	}
	return bytes.Equal(left, right)
}

func matches(doc Document, filter *Filter) bool {
	if filter == nil {
		return true
	}
	return valuesEqual(doc[filter.Field], filter.Value)
}
