// Package search finds problem statements by free text within the caller's
// visibility scope.
package search

import (
	"context"

	"innomatch/api/internal/scope"
)

// Result is a single search hit returned to the caller.
type Result struct {
	ID           string `json:"id"`
	Title        string `json:"title"`
	Organization string `json:"organization"`
	Sector       string `json:"sector"`
	Status       string `json:"status"`
	Snippet      string `json:"snippet"`
}

// Query describes a search request. Scope is the caller's resolved scope for
// problem statements; an Empty scope matches nothing.
type Query struct {
	Text   string
	Scope  scope.FilterSpec
	Limit  int
	Offset int
}

// Response is the envelope returned by the search endpoint.
type Response struct {
	Results []Result `json:"results"`
	Total   int      `json:"total"`
	Query   string   `json:"query"`
}

// Searcher can execute a full-text search.
type Searcher interface {
	Search(ctx context.Context, q Query) ([]Result, int, error)
	Healthy() bool
}

// Indexer can push problem statements into a search index.
type Indexer interface {
	IndexProblemStatement(rec Record) error
	IndexProblemStatements(recs []Record) error
	DeleteProblemStatement(id string) error
}

// Index is a searchable index that must be kept in sync with the store.
type Index interface {
	Searcher
	Indexer
}

// Record is the data we index for a problem statement.
type Record struct {
	ID           string `json:"id"`
	Title        string `json:"title"`
	Organization string `json:"organization"`
	Description  string `json:"description"`
	Sector       string `json:"sector"`
	Status       string `json:"status"`
	OwnerID      string `json:"owner_id"`
}

func (q Query) limit() int {
	if q.Limit <= 0 {
		return 20
	}
	return q.Limit
}

func (q Query) offset() int {
	if q.Offset < 0 {
		return 0
	}
	return q.Offset
}

const snippetRunes = 160

func snippet(text string) string {
	runes := []rune(text)
	if len(runes) <= snippetRunes {
		return text
	}
	return string(runes[:snippetRunes]) + "…"
}
