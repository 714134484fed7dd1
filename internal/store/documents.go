package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"
	"github.com/google/uuid"
)

// Document is one stored record together with the identity the store
// assigned at creation time.
type Document struct {
	ID   string
	Data json.RawMessage
}

// DocumentStore is an append-only collection store backed by BadgerDB.
// Keys are "<collection>:<creation-nanos>:<id>" so iteration over a
// collection prefix yields records in insertion order.
type DocumentStore struct {
	db *badger.DB
}

// OpenDocumentStore opens (or creates) the store under dir.
func OpenDocumentStore(dir string) (*DocumentStore, error) {
	opts := badger.DefaultOptions(dir).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open document store: %w", err)
	}
	return &DocumentStore{db: db}, nil
}

// Close releases the underlying database.
func (s *DocumentStore) Close() error {
	return s.db.Close()
}

// Create persists one document and returns its assigned id.
func (s *DocumentStore) Create(ctx context.Context, collection string, doc any) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	data, err := json.Marshal(doc)
	if err != nil {
		return "", fmt.Errorf("marshal %s document: %w", collection, err)
	}

	id := uuid.NewString()
	key := fmt.Sprintf("%s:%020d:%s", collection, time.Now().UnixNano(), id)

	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), data)
	})
	if err != nil {
		return "", fmt.Errorf("create %s document: %w", collection, err)
	}
	return id, nil
}

// List returns up to limit documents from a collection in insertion
// order. A non-positive limit returns everything.
func (s *DocumentStore) List(ctx context.Context, collection string, limit int) ([]Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var docs []Document
	prefix := []byte(collection + ":")

	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			if limit > 0 && len(docs) >= limit {
				break
			}
			item := it.Item()
			key := string(item.Key())
			// id is the segment after the creation timestamp
			parts := strings.SplitN(key, ":", 3)
			if len(parts) != 3 {
				continue
			}
			val, err := item.ValueCopy(nil)
			if err != nil {
				return fmt.Errorf("read %s: %w", key, err)
			}
			docs = append(docs, Document{ID: parts[2], Data: val})
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list %s documents: %w", collection, err)
	}
	return docs, nil
}

// Collections reports the distinct collection prefixes present, capped
// at max entries. Used by the health report.
func (s *DocumentStore) Collections(max int) ([]string, error) {
	seen := make(map[string]bool)
	var names []string

	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			key := string(it.Item().Key())
			name, _, ok := strings.Cut(key, ":")
			if !ok || seen[name] {
				continue
			}
			seen[name] = true
			names = append(names, name)
			if max > 0 && len(names) >= max {
				break
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list collections: %w", err)
	}
	return names, nil
}
