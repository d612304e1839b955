// Package docstore is a small collection-oriented document store: keyed documents grouped into
// collections, filtered scans, and atomic batches with insert-if-absent on a uniqueness key.
package docstore

import (
	"context"
	"errors"
	"strings"
)

var (
	// ErrNotFound is returned when a document does not exist.
	ErrNotFound = errors.New("docstore: not found")
	// ErrConflict is returned when a CreateUnique op collides with an existing document.
	ErrConflict = errors.New("docstore: unique key conflict")
	// ErrUnavailable marks failures that are safe to retry (timeouts, open breaker, txn conflicts).
	ErrUnavailable = errors.New("docstore: unavailable")
)

// Fields is the JSON-compatible body of a document.
type Fields map[string]any

// Document is a stored document with its key.
type Document struct {
	ID     string
	Fields Fields
}

// Op is a filter comparison operator.
type Op string

const (
	OpEq  Op = "=="
	OpNe  Op = "!="
	OpLt  Op = "<"
	OpLte Op = "<="
	OpGt  Op = ">"
	OpGte Op = ">="
)

// Filter restricts a scan to documents whose Field compares to Value with Op.
type Filter struct {
	Field string
	Op    Op
	Value any
}

// Where builds an equality filter.
func Where(field string, value any) Filter {
	return Filter{Field: field, Op: OpEq, Value: value}
}

// Store is the capability every backend provides.
type Store interface {
	Get(ctx context.Context, collection, id string) (Document, error)
	Set(ctx context.Context, collection, id string, fields Fields) error
	Update(ctx context.Context, collection, id string, fields Fields) error
	Delete(ctx context.Context, collection, id string) error
	Query(ctx context.Context, collection string, filters ...Filter) ([]Document, error)
	Commit(ctx context.Context, b *Batch) error
	Close() error
}

type opKind int

const (
	opSet opKind = iota
	opUpdate
	opDelete
	opIncrement
	opCreateUnique
	opExpect
)

type op struct {
	kind       opKind
	collection string
	id         string
	fields     Fields
	field      string
	delta      int64
	unique     []string
	value      any
}

// Batch collects writes that a Store applies all-or-nothing.
type Batch struct {
	ops []op
}

// NewBatch returns an empty batch.
func NewBatch() *Batch { return &Batch{} }

// Set replaces the document.
func (b *Batch) Set(collection, id string, fields Fields) *Batch {
	b.ops = append(b.ops, op{kind: opSet, collection: collection, id: id, fields: fields})
	return b
}

// Update merges fields into an existing document.
func (b *Batch) Update(collection, id string, fields Fields) *Batch {
	b.ops = append(b.ops, op{kind: opUpdate, collection: collection, id: id, fields: fields})
	return b
}

// Delete removes the document if present.
func (b *Batch) Delete(collection, id string) *Batch {
	b.ops = append(b.ops, op{kind: opDelete, collection: collection, id: id})
	return b
}

// Increment adds delta to a numeric field of an existing document.
func (b *Batch) Increment(collection, id, field string, delta int64) *Batch {
	b.ops = append(b.ops, op{kind: opIncrement, collection: collection, id: id, field: field, delta: delta})
	return b
}

// CreateUnique inserts the document unless another document in the collection carries the same
// values for every field in unique. A collision fails the whole batch with ErrConflict.
func (b *Batch) CreateUnique(collection, id string, fields Fields, unique ...string) *Batch {
	b.ops = append(b.ops, op{kind: opCreateUnique, collection: collection, id: id, fields: fields, unique: unique})
	return b
}

// Expect fails the whole batch with ErrConflict unless the document's field equals value when the
// batch applies. A missing document fails with ErrNotFound.
func (b *Batch) Expect(collection, id, field string, value any) *Batch {
	b.ops = append(b.ops, op{kind: opExpect, collection: collection, id: id, field: field, value: value})
	return b
}

// Len reports the number of queued ops.
func (b *Batch) Len() int { return len(b.ops) }

func (o op) expectation() []Filter {
	return []Filter{{Field: o.field, Op: OpEq, Value: o.value}}
}

// uniqueKey joins the values of the named fields; ok is false when any is missing.
func uniqueKey(fields Fields, names []string) (string, bool) {
	parts := make([]string, 0, len(names))
	for _, n := range names {
		v, present := fields[n]
		if !present || v == nil {
			return "", false
		}
		parts = append(parts, n+"="+stringify(v))
	}
	return strings.Join(parts, "\x1f"), true
}

func merge(dst, src Fields) Fields {
	out := make(Fields, len(dst)+len(src))
	for k, v := range dst {
		out[k] = v
	}
	for k, v := range src {
		out[k] = v
	}
	return out
}
