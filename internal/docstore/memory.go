package docstore

import (
	"context"
	"sort"
	"sync"
)

// Memory is an in-process Store for tests and single-node development.
type Memory struct {
	mu     sync.RWMutex
	docs   map[string]map[string]Fields
	unique map[string]map[string]string
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		docs:   make(map[string]map[string]Fields),
		unique: make(map[string]map[string]string),
	}
}

// Get returns a copy of the document.
func (m *Memory) Get(ctx context.Context, collection, id string) (Document, error) {
	if err := ctx.Err(); err != nil {
		return Document{}, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	f, ok := m.docs[collection][id]
	if !ok {
		return Document{}, ErrNotFound
	}
	return Document{ID: id, Fields: merge(f, nil)}, nil
}

// Set replaces the document.
func (m *Memory) Set(ctx context.Context, collection, id string, fields Fields) error {
	return m.Commit(ctx, NewBatch().Set(collection, id, fields))
}

// Update merges fields into the document.
func (m *Memory) Update(ctx context.Context, collection, id string, fields Fields) error {
	return m.Commit(ctx, NewBatch().Update(collection, id, fields))
}

// Delete removes the document.
func (m *Memory) Delete(ctx context.Context, collection, id string) error {
	return m.Commit(ctx, NewBatch().Delete(collection, id))
}

// Query scans a collection; results are ordered by id for determinism.
func (m *Memory) Query(ctx context.Context, collection string, filters ...Filter) ([]Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Document
	for id, f := range m.docs[collection] {
		if Matches(f, filters) {
			out = append(out, Document{ID: id, Fields: merge(f, nil)})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Commit applies the batch to copies of the touched collections and swaps them in on success.
func (m *Memory) Commit(ctx context.Context, b *Batch) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	docs := make(map[string]map[string]Fields)
	unique := make(map[string]map[string]string)
	stage := func(collection string) {
		if _, ok := docs[collection]; ok {
			return
		}
		d := make(map[string]Fields, len(m.docs[collection]))
		for k, v := range m.docs[collection] {
			d[k] = v
		}
		u := make(map[string]string, len(m.unique[collection]))
		for k, v := range m.unique[collection] {
			u[k] = v
		}
		docs[collection], unique[collection] = d, u
	}

	for _, o := range b.ops {
		stage(o.collection)
		d, u := docs[o.collection], unique[o.collection]
		switch o.kind {
		case opSet:
			d[o.id] = merge(o.fields, nil)
		case opUpdate:
			cur, ok := d[o.id]
			if !ok {
				return ErrNotFound
			}
			d[o.id] = merge(cur, o.fields)
		case opDelete:
			delete(d, o.id)
			for k, id := range u {
				if id == o.id {
					delete(u, k)
				}
			}
		case opIncrement:
			cur, ok := d[o.id]
			if !ok {
				return ErrNotFound
			}
			d[o.id] = merge(cur, Fields{o.field: asInt64(cur[o.field]) + o.delta})
		case opCreateUnique:
			key, ok := uniqueKey(o.fields, o.unique)
			if ok {
				if _, taken := u[key]; taken {
					return ErrConflict
				}
			}
			if _, exists := d[o.id]; exists {
				return ErrConflict
			}
			d[o.id] = merge(o.fields, nil)
			if ok {
				u[key] = o.id
			}
		case opExpect:
			cur, ok := d[o.id]
			if !ok {
				return ErrNotFound
			}
			if !Matches(cur, o.expectation()) {
				return ErrConflict
			}
		}
	}

	for c := range docs {
		m.docs[c] = docs[c]
		m.unique[c] = unique[c]
	}
	return nil
}

// Close is a no-op.
func (m *Memory) Close() error { return nil }
