package scope

import (
	"context"
	"fmt"
	"sort"

	"innomatch/api/internal/metrics"
	"innomatch/api/internal/store"
)

// Execution paths reported to metrics.
const (
	PathServer = "server"
	PathMemory = "memory"
	PathEmpty  = "empty"
)

// Plan names the path Run takes for spec.
func Plan(spec FilterSpec) string {
	switch {
	case spec.Empty:
		return PathEmpty
	case spec.ServerSide:
		return PathServer
	default:
		return PathMemory
	}
}

// Planner runs scoped listings. The result is always newest first whichever
// path ran; equal timestamps keep the store's order.
type Planner struct {
	Store   store.Store
	Metrics *metrics.Collectors
}

func (p *Planner) Run(ctx context.Context, collection string, spec FilterSpec) ([]store.Document, error) {
	path := Plan(spec)
	p.Metrics.ObserveQuery(collection, path)

	switch path {
	case PathEmpty:
		return []store.Document{}, nil
	case PathServer:
		order := spec.Order
		items, err := p.Store.Query(ctx, collection, spec.Filter, &order)
		if err != nil {
			return nil, fmt.Errorf("query %s: %w", collection, err)
		}
		return items, nil
	default:
		items, err := p.Store.Query(ctx, collection, spec.Filter, nil)
		if err != nil {
			return nil, fmt.Errorf("query %s: %w", collection, err)
		}
		SortNewestFirst(items, spec.Order.Field)
		return items, nil
	}
}

// Run executes spec without metrics.
func Run(ctx context.Context, s store.Store, collection string, spec FilterSpec) ([]store.Document, error) {
	return (&Planner{Store: s}).Run(ctx, collection, spec)
}

// SortNewestFirst orders docs descending by field, normalised with
// store.SortKey. Undated documents sort last.
func SortNewestFirst(docs []store.Document, field string) {
	if field == "" {
		field = store.CreatedAtField
	}
	sort.SliceStable(docs, func(i, j int) bool {
		return store.SortKey(docs[i][field]) > store.SortKey(docs[j][field])
	})
}
