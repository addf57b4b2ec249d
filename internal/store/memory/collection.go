package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"pharmapos/backend/internal/store"
)

// collection keeps one entity type in a map guarded by the owning Store's lock.
type collection[T store.Entity] struct {
	mu   *sync.RWMutex
	name string
	rows map[string]T
	less func(a, b T) bool

	// duplicate reports whether candidate clashes with a unique column of existing.
	duplicate func(existing, candidate T) bool
	// references reports whether every row candidate points at exists.
	references func(candidate T) bool
	// inUse reports whether other rows still reference id.
	inUse func(id string) bool
	// preserve copies columns that Update never overwrites from the stored row.
	preserve func(stored, candidate T) T
}

func newCollection[T store.Entity](mu *sync.RWMutex, name string, less func(a, b T) bool) *collection[T] {
	return &collection[T]{mu: mu, name: name, rows: make(map[string]T), less: less}
}

func (c *collection[T]) Get(_ context.Context, id string) (*T, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	row, ok := c.rows[id]
	if !ok {
		return nil, fmt.Errorf("%s %s: %w", c.name, id, store.ErrNotFound)
	}
	return &row, nil
}

func (c *collection[T]) List(_ context.Context) ([]T, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.listLocked(func(T) bool { return true }), nil
}

func (c *collection[T]) Create(_ context.Context, entity T) (*T, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := entity.EntityKey()
	if key == "" {
		return nil, fmt.Errorf("%s without key: %w", c.name, store.ErrInvalidInput)
	}
	if _, exists := c.rows[key]; exists {
		return nil, fmt.Errorf("%s %s already exists: %w", c.name, key, store.ErrConflict)
	}
	if err := c.checkLocked(entity); err != nil {
		return nil, err
	}
	c.rows[key] = entity
	return &entity, nil
}

func (c *collection[T]) Update(_ context.Context, entity T) (*T, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := entity.EntityKey()
	stored, ok := c.rows[key]
	if !ok {
		return nil, fmt.Errorf("%s %s: %w", c.name, key, store.ErrNotFound)
	}
	if c.preserve != nil {
		entity = c.preserve(stored, entity)
	}
	if err := c.checkLocked(entity); err != nil {
		return nil, err
	}
	c.rows[key] = entity
	return &entity, nil
}

func (c *collection[T]) Delete(_ context.Context, id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.rows[id]; !ok {
		return fmt.Errorf("%s %s: %w", c.name, id, store.ErrNotFound)
	}
	if c.inUse != nil && c.inUse(id) {
		return fmt.Errorf("%s %s is still referenced: %w", c.name, id, store.ErrConflict)
	}
	delete(c.rows, id)
	return nil
}

func (c *collection[T]) checkLocked(entity T) error {
	if c.references != nil && !c.references(entity) {
		return fmt.Errorf("%s %s references a missing record: %w", c.name, entity.EntityKey(), store.ErrNotFound)
	}
	if c.duplicate == nil {
		return nil
	}
	key := entity.EntityKey()
	for id, existing := range c.rows {
		if id != key && c.duplicate(existing, entity) {
			return fmt.Errorf("%s duplicates an existing record: %w", c.name, store.ErrConflict)
		}
	}
	return nil
}

func (c *collection[T]) listLocked(keep func(T) bool) []T {
	out := make([]T, 0, len(c.rows))
	for _, row := range c.rows {
		if keep(row) {
			out = append(out, row)
		}
	}
	if c.less != nil {
		sort.Slice(out, func(i, j int) bool { return c.less(out[i], out[j]) })
	}
	return out
}

func (c *collection[T]) existsLocked(id string) bool {
	_, ok := c.rows[id]
	return ok
}
