package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"innomatch/api/internal/util"
)

// MemoryStore keeps documents in process. It enforces the same index rule
// as the durable backends.
type MemoryStore struct {
	mu          sync.RWMutex
	collections map[string]*memoryCollection
	indexes     Indexes
	now         func() time.Time
}

type memoryCollection struct {
	docs  map[string]Document
	order []string
}

// NewMemoryStore constructs an empty store honouring idx.
func NewMemoryStore(idx Indexes) *MemoryStore {
	return &MemoryStore{
		collections: make(map[string]*memoryCollection),
		indexes:     idx,
		now:         time.Now,
	}
}

func (s *MemoryStore) collection(name string) *memoryCollection {
	c, ok := s.collections[name]
	if !ok {
		c = &memoryCollection{docs: make(map[string]Document)}
		s.collections[name] = c
	}
	return c
}

func (s *MemoryStore) Create(_ context.Context, collection string, doc Document) (string, error) {
	id := util.NewID("")
	prepared, err := prepare(merge(doc, Document{"id": id}), s.now())
	if err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.collection(collection)
	c.docs[id] = prepared
	c.order = append(c.order, id)
	return id, nil
}

func (s *MemoryStore) Get(_ context.Context, collection, id string) (Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.collections[collection]
	if !ok {
		return nil, ErrNotFound
	}
	doc, ok := c.docs[id]
	if !ok {
		return nil, ErrNotFound
	}
	return clone(doc), nil
}

func (s *MemoryStore) Update(ctx context.Context, collection, id string, patch Document) error {
	return s.update(collection, id, nil, patch)
}

func (s *MemoryStore) UpdateIf(ctx context.Context, collection, id string, cond Filter, patch Document) error {
	return s.update(collection, id, &cond, patch)
}

func (s *MemoryStore) update(collection, id string, cond *Filter, patch Document) error {
	prepared, err := prepare(patch, s.now())
	if err != nil {
		return err
	}
	delete(prepared, "id")

	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.collections[collection]
	if !ok {
		return fmt.Errorf("update %s/%s: %w", collection, id, ErrNotFound)
	}
	doc, ok := c.docs[id]
	if !ok {
		return fmt.Errorf("update %s/%s: %w", collection, id, ErrNotFound)
	}
	if cond != nil && !matches(doc, cond) {
		return fmt.Errorf("update %s/%s where %s: %w", collection, id, cond.Field, ErrConflict)
	}
	c.docs[id] = merge(doc, prepared)
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, collection, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.collections[collection]
	if !ok {
		return nil
	}
	if _, ok := c.docs[id]; !ok {
		return nil
	}
	delete(c.docs, id)
	for i, existing := range c.order {
		if existing == id {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
	return nil
}

func (s *MemoryStore) Query(_ context.Context, collection string, filter *Filter, order *Order) ([]Document, error) {
	if err := checkQuery(s.indexes, collection, filter, order); err != nil {
		return nil, err
	}
	s.mu.RLock()
	items := make([]Document, 0)
	if c, ok := s.collections[collection]; ok {
		for _, id := range c.order {
			doc := c.docs[id]
			if matches(doc, filter) {
				items = append(items, clone(doc))
			}
		}
	}
	s.mu.RUnlock()

	if order != nil {
		sortDocuments(items, *order)
	}
	return items, nil
}

func (s *MemoryStore) Ping(context.Context) error { return nil }

func (s *MemoryStore) Close() error { return nil }

func sortDocuments(items []Document, order Order) {
	sort.SliceStable(items, func(i, j int) bool {
		var less bool
		if order.Field == CreatedAtField {
			a, b := SortKey(items[i][order.Field]), SortKey(items[j][order.Field])
			if order.Descending {
				return a > b
			}
			return a < b
		}
		a, b := fmt.Sprint(items[i][order.Field]), fmt.Sprint(items[j][order.Field])
		less = a < b
		if order.Descending {
			less = a > b
		}
		return less
	})
}
