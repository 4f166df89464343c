package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"
)

// LocalStore is the on-device fallback Backend. Records are kept as JSON
// values under "t/<table>/<id>" keys in a badger database. Unique field
// values map to their owner's id under "u/<table>/<field>/<value>" keys.
type LocalStore struct {
	db *badger.DB
}

// OpenLocal opens (or creates) the badger database in dir. An empty dir or
// ":memory:" keeps everything in memory.
func OpenLocal(dir string) (*LocalStore, error) {
	opts := badger.DefaultOptions(dir)
	if dir == "" || dir == ":memory:" {
		opts = badger.DefaultOptions("").WithInMemory(true)
	}
	opts.Logger = nil
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("opening local store: %w", err)
	}
	return &LocalStore{db: db}, nil
}

// Close closes the database.
func (s *LocalStore) Close() error {
	return s.db.Close()
}

func recordKey(table, id string) []byte {
	return []byte("t/" + table + "/" + id)
}

func tablePrefix(table string) []byte {
	return []byte("t/" + table + "/")
}

// uniqueFields lists, per table, the fields no two records may share.
var uniqueFields = map[string][]string{
	TablePosts: {"slug"},
}

func uniqueKey(table, field, value string) []byte {
	return []byte("u/" + table + "/" + field + "/" + value)
}

// update runs fn in a read-write transaction, retrying when a concurrent
// transaction touched the same keys.
func (s *LocalStore) update(fn func(txn *badger.Txn) error) error {
	var err error
	for range 3 {
		err = s.db.Update(fn)
		if !errors.Is(err, badger.ErrConflict) {
			return err
		}
	}
	return err
}

// claimUnique reserves the unique values set in rec for id and releases
// the ones prev held that rec replaces.
func claimUnique(txn *badger.Txn, table, id string, prev, rec Record) error {
	for _, field := range uniqueFields[table] {
		v, ok := rec[field]
		if !ok {
			continue
		}
		value := asString(v)
		if value != "" {
			key := uniqueKey(table, field, value)
			owner, err := uniqueOwner(txn, key)
			if err != nil {
				return err
			}
			if owner != "" && owner != id {
				return &ConflictError{Slug: value}
			}
			if err := txn.Set(key, []byte(id)); err != nil {
				return err
			}
		}
		if old := asString(prev[field]); old != "" && old != value {
			if err := releaseUnique(txn, uniqueKey(table, field, old), id); err != nil {
				return err
			}
		}
	}
	return nil
}

func uniqueOwner(txn *badger.Txn, key []byte) (string, error) {
	item, err := txn.Get(key)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	owner, err := item.ValueCopy(nil)
	return string(owner), err
}

func releaseUnique(txn *badger.Txn, key []byte, id string) error {
	owner, err := uniqueOwner(txn, key)
	if err != nil || owner != id {
		return err
	}
	return txn.Delete(key)
}

// Insert stores rec under its "id" field.
func (s *LocalStore) Insert(ctx context.Context, table string, rec Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	id := asString(rec["id"])
	if id == "" {
		return errors.New("local store: record has no id")
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return s.update(func(txn *badger.Txn) error {
		key := recordKey(table, id)
		if _, err := txn.Get(key); err == nil {
			return fmt.Errorf("local store: %s/%s already exists", table, id)
		} else if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		if err := claimUnique(txn, table, id, nil, rec); err != nil {
			return err
		}
		return txn.Set(key, data)
	})
}

// Select scans the table and returns records matching f.
func (s *LocalStore) Select(ctx context.Context, table string, f Filter) ([]Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var out []Record
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		prefix := tablePrefix(table)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var rec Record
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &rec)
			}); err != nil {
				return err
			}
			if matches(rec, f) {
				out = append(out, rec)
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scanning local %s: %w", table, err)
	}
	return out, nil
}

// Update merges rec into the stored record with id.
func (s *LocalStore) Update(ctx context.Context, table, id string, rec Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.update(func(txn *badger.Txn) error {
		key := recordKey(table, id)
		cur, err := getRecord(txn, key)
		if err != nil {
			return err
		}
		if err := claimUnique(txn, table, id, cur, rec); err != nil {
			return err
		}
		for k, v := range rec {
			if k != "id" {
				cur[k] = v
			}
		}
		data, err := json.Marshal(cur)
		if err != nil {
			return err
		}
		return txn.Set(key, data)
	})
}

// Delete removes the record with id.
func (s *LocalStore) Delete(ctx context.Context, table, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.update(func(txn *badger.Txn) error {
		key := recordKey(table, id)
		cur, err := getRecord(txn, key)
		if err != nil {
			return err
		}
		for _, field := range uniqueFields[table] {
			if v := asString(cur[field]); v != "" {
				if err := releaseUnique(txn, uniqueKey(table, field, v), id); err != nil {
					return err
				}
			}
		}
		return txn.Delete(key)
	})
}

// getRecord reads the record under key, or ErrNotFound.
func getRecord(txn *badger.Txn, key []byte) (Record, error) {
	item, err := txn.Get(key)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var rec Record
	err = item.Value(func(val []byte) error {
		return json.Unmarshal(val, &rec)
	})
	return rec, err
}
