package docstore

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"
)

// Key prefixes for BadgerDB storage
const (
	docKeyPrefix    = "d/"
	uniqueKeyPrefix = "u/"
	ownerKeyPrefix  = "k/"
)

const badgerCommitAttempts = 3

// Badger is an embedded Store backed by BadgerDB.
type Badger struct {
	db *badger.DB
}

// OpenBadger opens (or creates) a database at path. An empty path opens an in-memory instance.
func OpenBadger(path string) (*Badger, error) {
	opts := badger.DefaultOptions(path).WithLogger(nil)
	if path == "" {
		opts = badger.DefaultOptions("").WithInMemory(true).WithLogger(nil)
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger: %w", err)
	}
	return &Badger{db: db}, nil
}

func docKey(collection, id string) []byte {
	return []byte(docKeyPrefix + collection + "/" + id)
}

func uniqueIndexKey(collection, key string) []byte {
	return []byte(uniqueKeyPrefix + collection + "/" + key)
}

func ownerKey(collection, id string) []byte {
	return []byte(ownerKeyPrefix + collection + "/" + id)
}

// Get loads one document.
func (s *Badger) Get(ctx context.Context, collection, id string) (Document, error) {
	if err := ctx.Err(); err != nil {
		return Document{}, err
	}
	var fields Fields
	err := s.db.View(func(txn *badger.Txn) error {
		f, err := readDoc(txn, collection, id)
		fields = f
		return err
	})
	if err != nil {
		return Document{}, err
	}
	return Document{ID: id, Fields: fields}, nil
}

func readDoc(txn *badger.Txn, collection, id string) (Fields, error) {
	item, err := txn.Get(docKey(collection, id))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get document: %w", err)
	}
	var fields Fields
	err = item.Value(func(val []byte) error {
		return json.Unmarshal(val, &fields)
	})
	return fields, err
}

func writeDoc(txn *badger.Txn, collection, id string, fields Fields) error {
	data, err := json.Marshal(fields)
	if err != nil {
		return fmt.Errorf("marshal document: %w", err)
	}
	return txn.Set(docKey(collection, id), data)
}

// Set replaces the document.
func (s *Badger) Set(ctx context.Context, collection, id string, fields Fields) error {
	return s.Commit(ctx, NewBatch().Set(collection, id, fields))
}

// Update merges fields into the document.
func (s *Badger) Update(ctx context.Context, collection, id string, fields Fields) error {
	return s.Commit(ctx, NewBatch().Update(collection, id, fields))
}

// Delete removes the document.
func (s *Badger) Delete(ctx context.Context, collection, id string) error {
	return s.Commit(ctx, NewBatch().Delete(collection, id))
}

// Query iterates the collection prefix and filters in process.
func (s *Badger) Query(ctx context.Context, collection string, filters ...Filter) ([]Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var out []Document
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		prefix := []byte(docKeyPrefix + collection + "/")
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			var fields Fields
			if err := item.Value(func(val []byte) error {
				return json.Unmarshal(val, &fields)
			}); err != nil {
				return err
			}
			if Matches(fields, filters) {
				id := strings.TrimPrefix(string(item.Key()), string(prefix))
				out = append(out, Document{ID: id, Fields: fields})
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", collection, err)
	}
	return out, nil
}

// Commit applies the batch in one transaction, retrying optimistic-concurrency conflicts.
func (s *Badger) Commit(ctx context.Context, b *Batch) error {
	var err error
	for attempt := 0; attempt < badgerCommitAttempts; attempt++ {
		if cerr := ctx.Err(); cerr != nil {
			return cerr
		}
		err = s.db.Update(func(txn *badger.Txn) error {
			for _, o := range b.ops {
				if err := applyBadger(txn, o); err != nil {
					return err
				}
			}
			return nil
		})
		if !errors.Is(err, badger.ErrConflict) {
			return err
		}
	}
	return fmt.Errorf("%w: %v", ErrUnavailable, err)
}

func applyBadger(txn *badger.Txn, o op) error {
	switch o.kind {
	case opSet:
		return writeDoc(txn, o.collection, o.id, o.fields)
	case opUpdate:
		cur, err := readDoc(txn, o.collection, o.id)
		if err != nil {
			return err
		}
		return writeDoc(txn, o.collection, o.id, merge(cur, o.fields))
	case opDelete:
		item, err := txn.Get(ownerKey(o.collection, o.id))
		if err == nil {
			var key []byte
			if key, err = item.ValueCopy(nil); err != nil {
				return err
			}
			if err := txn.Delete(uniqueIndexKey(o.collection, string(key))); err != nil {
				return err
			}
			if err := txn.Delete(ownerKey(o.collection, o.id)); err != nil {
				return err
			}
		} else if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		return txn.Delete(docKey(o.collection, o.id))
	case opIncrement:
		cur, err := readDoc(txn, o.collection, o.id)
		if err != nil {
			return err
		}
		return writeDoc(txn, o.collection, o.id, merge(cur, Fields{o.field: asInt64(cur[o.field]) + o.delta}))
	case opCreateUnique:
		if _, err := txn.Get(docKey(o.collection, o.id)); err == nil {
			return ErrConflict
		} else if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		key, ok := uniqueKey(o.fields, o.unique)
		if ok {
			if _, err := txn.Get(uniqueIndexKey(o.collection, key)); err == nil {
				return ErrConflict
			} else if !errors.Is(err, badger.ErrKeyNotFound) {
				return err
			}
			if err := txn.Set(uniqueIndexKey(o.collection, key), []byte(o.id)); err != nil {
				return err
			}
			if err := txn.Set(ownerKey(o.collection, o.id), []byte(key)); err != nil {
				return err
			}
		}
		return writeDoc(txn, o.collection, o.id, o.fields)
	case opExpect:
		cur, err := readDoc(txn, o.collection, o.id)
		if err != nil {
			return err
		}
		if !Matches(cur, o.expectation()) {
			return ErrConflict
		}
		return nil
	}
	return fmt.Errorf("unknown batch op %d", o.kind)
}

// Close flushes and closes the database.
func (s *Badger) Close() error { return s.db.Close() }
