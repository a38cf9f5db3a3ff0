package search

import (
	"context"
	"log/slog"
	"sync"
)

// Service is the facade that tries the index first and then each fallback in
// order. Index writes go through one worker so they reach the index in the
// order they were made.
type Service struct {
	index     Index
	fallbacks []Searcher

	writes    chan func()
	startOnce sync.Once
	closeOnce sync.Once
}

// NewService creates a search service. index may be nil when Meilisearch is
// not configured.
func NewService(index Index, fallbacks ...Searcher) *Service {
	return &Service{index: index, fallbacks: fallbacks, writes: make(chan func(), 256)}
}

// Close stops the index writer once queued writes are done.
func (s *Service) Close() {
	s.closeOnce.Do(func() { close(s.writes) })
}

func (s *Service) enqueue(write func()) {
	s.startOnce.Do(func() {
		go func() {
			for write := range s.writes {
				write()
			}
		}()
	})
	s.writes <- write
}

func (s *Service) indexReady() bool {
	return s.index != nil && s.index.Healthy()
}

// Search never fails: every backend error degrades to the next searcher and
// finally to an empty response.
func (s *Service) Search(ctx context.Context, q Query) Response {
	if q.Scope.Empty {
		return Response{Results: []Result{}, Total: 0, Query: q.Text}
	}
	searchers := make([]Searcher, 0, len(s.fallbacks)+1)
	if s.indexReady() {
		searchers = append(searchers, s.index)
	}
	for _, fb := range s.fallbacks {
		if fb != nil && fb.Healthy() {
			searchers = append(searchers, fb)
		}
	}

	for _, searcher := range searchers {
		results, total, err := searcher.Search(ctx, q)
		if err != nil {
			slog.Warn("search backend failed, falling back", "error", err)
			continue
		}
		return Response{Results: nonNil(results), Total: total, Query: q.Text}
	}
	return Response{Results: []Result{}, Total: 0, Query: q.Text}
}

// IndexProblemStatement queues a problem statement for indexing.
func (s *Service) IndexProblemStatement(rec Record) {
	if !s.indexReady() {
		return
	}
	s.enqueue(func() {
		if err := s.index.IndexProblemStatement(rec); err != nil {
			slog.Warn("index problem statement", "id", rec.ID, "error", err)
		}
	})
}

// DeleteProblemStatement queues removal of a problem statement from the index.
func (s *Service) DeleteProblemStatement(id string) {
	if !s.indexReady() {
		return
	}
	s.enqueue(func() {
		if err := s.index.DeleteProblemStatement(id); err != nil {
			slog.Warn("delete problem statement from index", "id", id, "error", err)
		}
	})
}

// ReindexAll pushes every record into the index. Called at startup.
func (s *Service) ReindexAll(records []Record) {
	if !s.indexReady() || len(records) == 0 {
		return
	}
	if err := s.index.IndexProblemStatements(records); err != nil {
		slog.Warn("reindex problem statements", "count", len(records), "error", err)
	}
}

func nonNil(r []Result) []Result {
	if r == nil {
		return []Result{}
	}
	return r
}
