// Package scope decides which records a caller may see and how a scoped
// listing is executed against the record store.
package scope

import (
	"innomatch/api/internal/auth"
	"innomatch/api/internal/store"
)

// FilterSpec is the filter and order a caller is entitled to.
//
// ServerSide asks the store to order the result. Empty means the caller may
// see nothing and the store must not be queried.
type FilterSpec struct {
	Filter     *store.Filter
	Order      store.Order
	ServerSide bool
	Empty      bool
}

var newestFirst = store.Order{Field: store.CreatedAtField, Descending: true}

// Resolve computes the scope for collection. Every input has a defined result:
// a missing identity degrades to the most restrictive scope.
func Resolve(collection string, id auth.Identity) FilterSpec {
	switch collection {
	case store.Categories, store.Tags, store.Products:
		return FilterSpec{Order: newestFirst, ServerSide: true}
	case store.ProblemStatements, store.Proposals, store.ProjectReports:
	default:
		return FilterSpec{Order: newestFirst, Empty: true}
	}

	if id.IsAdmin {
		return FilterSpec{Order: newestFirst, ServerSide: true}
	}
	if collection == store.ProjectReports {
		return FilterSpec{Order: newestFirst, Empty: true}
	}
	if id.CallerID != "" {
		return FilterSpec{
			Filter: &store.Filter{Field: "owner_id", Value: id.CallerID},
			Order:  newestFirst,
		}
	}
	if collection == store.ProblemStatements {
		return FilterSpec{
			Filter: &store.Filter{Field: "status", Value: store.StatusOpen},
			Order:  newestFirst,
		}
	}
	return FilterSpec{Order: newestFirst, Empty: true}
}

// Visible applies the single-record form of Resolve's rule to doc.
// Project reports are never visible here to non-admins; the report reader
// checks proposal ownership itself.
func Visible(collection string, id auth.Identity, doc store.Document) bool {
	if doc == nil {
		return false
	}
	switch collection {
	case store.Categories, store.Tags, store.Products:
		return true
	case store.ProblemStatements:
		if id.IsAdmin {
			return true
		}
		if owner, _ := doc["owner_id"].(string); id.CallerID != "" && owner == id.CallerID {
			return true
		}
		status, _ := doc["status"].(string)
		return status == store.StatusOpen
	case store.Proposals:
		if id.IsAdmin {
			return true
		}
		owner, _ := doc["owner_id"].(string)
		return id.CallerID != "" && owner == id.CallerID
	case store.ProjectReports:
		return id.IsAdmin
	default:
		return false
	}
}
