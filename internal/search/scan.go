package search

import (
	"context"
	"fmt"
	"strings"

	"innomatch/api/internal/scope"
	"innomatch/api/internal/store"
)

// Scan searches by running the scoped listing and matching text in process.
// It works with every store driver and is the last fallback.
type Scan struct {
	Store store.Store
}

func (s *Scan) Healthy() bool { return s.Store != nil }

func (s *Scan) Search(ctx context.Context, q Query) ([]Result, int, error) {
	terms := strings.Fields(strings.ToLower(q.Text))
	if len(terms) == 0 {
		return nil, 0, nil
	}
	docs, err := scope.Run(ctx, s.Store, store.ProblemStatements, q.Scope)
	if err != nil {
		return nil, 0, fmt.Errorf("scan search: %w", err)
	}

	var matched []Result
	for _, doc := range docs {
		rec := RecordFromDocument(doc)
		haystack := strings.ToLower(strings.Join([]string{rec.Title, rec.Description, rec.Organization, rec.Sector}, " "))
		if containsAll(haystack, terms) {
			matched = append(matched, Result{
				ID:           rec.ID,
				Title:        rec.Title,
				Organization: rec.Organization,
				Sector:       rec.Sector,
				Status:       rec.Status,
				Snippet:      snippet(rec.Description),
			})
		}
	}

	total := len(matched)
	start := min(q.offset(), total)
	end := min(start+q.limit(), total)
	return matched[start:end], total, nil
}

func containsAll(haystack string, terms []string) bool {
	for _, term := range terms {
		if !strings.Contains(haystack, term) {
			return false
		}
	}
	return true
}

// RecordFromDocument projects a stored problem statement onto the indexed fields.
func RecordFromDocument(doc store.Document) Record {
	str := func(key string) string {
		s, _ := doc[key].(string)
		return s
	}
	return Record{
		ID:           str("id"),
		Title:        str("title"),
		Organization: str("organization"),
		Description:  str("description"),
		Sector:       str("sector"),
		Status:       str("status"),
		OwnerID:      str("owner_id"),
	}
}
