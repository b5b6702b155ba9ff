// internal/storage/badger_store.go
package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/dgraph-io/badger/v4"
)

var (
	ErrNotFound = errors.New("entity not found")
	ErrExists   = errors.New("entity already exists")
)

// Entity represents any storable entity with an ID
type Entity interface {
	GetID() string
}

// BadgerStore provides JSON storage for one key prefix. The *Txn variants let
// callers compose several prefixes in a single badger transaction.
type BadgerStore struct {
	db     *badger.DB
	prefix string
}

func NewBadgerStore(db *badger.DB, prefix string) *BadgerStore {
	return &BadgerStore{
		db:     db,
		prefix: prefix,
	}
}

func (s *BadgerStore) makeKey(id string) []byte {
	return []byte(fmt.Sprintf("%s:%s", s.prefix, id))
}

func (s *BadgerStore) stripPrefix(key []byte) string {
	return strings.TrimPrefix(string(key), fmt.Sprintf("%s:", s.prefix))
}

// DB returns the underlying database for multi-prefix transactions
func (s *BadgerStore) DB() *badger.DB {
	return s.db
}

// CreateTxn writes entity unless its ID is already taken (ErrExists)
func (s *BadgerStore) CreateTxn(txn *badger.Txn, entity Entity) error {
	if entity.GetID() == "" {
		return fmt.Errorf("entity ID cannot be empty")
	}

	_, err := txn.Get(s.makeKey(entity.GetID()))
	if err == nil {
		return fmt.Errorf("%w: %s:%s", ErrExists, s.prefix, entity.GetID())
	} else if err != badger.ErrKeyNotFound {
		return err
	}

	return s.SetTxn(txn, entity.GetID(), entity)
}

func (s *BadgerStore) Get(id string, v any) error {
	return s.db.View(func(txn *badger.Txn) error {
		return s.GetTxn(txn, id, v)
	})
}

// GetTxn decodes the value for id into v, returning ErrNotFound when absent
func (s *BadgerStore) GetTxn(txn *badger.Txn, id string, v any) error {
	data, err := s.GetRawTxn(txn, id)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}

// SetTxn encodes v as JSON and writes it under id
func (s *BadgerStore) SetTxn(txn *badger.Txn, id string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshaling entity: %w", err)
	}
	return s.SetRawTxn(txn, id, data)
}

func (s *BadgerStore) GetRaw(id string) ([]byte, error) {
	var out []byte
	err := s.db.View(func(txn *badger.Txn) error {
		var err error
		out, err = s.GetRawTxn(txn, id)
		return err
	})
	return out, err
}

func (s *BadgerStore) GetRawTxn(txn *badger.Txn, id string) ([]byte, error) {
	item, err := txn.Get(s.makeKey(id))
	if err == badger.ErrKeyNotFound {
		return nil, fmt.Errorf("%w: %s:%s", ErrNotFound, s.prefix, id)
	}
	if err != nil {
		return nil, err
	}
	return item.ValueCopy(nil)
}

func (s *BadgerStore) SetRawTxn(txn *badger.Txn, id string, data []byte) error {
	return txn.Set(s.makeKey(id), data)
}

// DeleteTxn removes id, returning ErrNotFound when absent
func (s *BadgerStore) DeleteTxn(txn *badger.Txn, id string) error {
	key := s.makeKey(id)

	_, err := txn.Get(key)
	if err == badger.ErrKeyNotFound {
		return fmt.Errorf("%w: %s:%s", ErrNotFound, s.prefix, id)
	} else if err != nil {
		return err
	}

	return txn.Delete(key)
}

// Keys returns the IDs under this prefix that start with idPrefix, in key
// order. An empty idPrefix returns every ID.
func (s *BadgerStore) Keys(idPrefix string) ([]string, error) {
	var ids []string
	err := s.db.View(func(txn *badger.Txn) error {
		var err error
		ids, err = s.KeysTxn(txn, idPrefix)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("listing keys: %w", err)
	}
	return ids, nil
}

func (s *BadgerStore) KeysTxn(txn *badger.Txn, idPrefix string) ([]string, error) {
	opts := badger.DefaultIteratorOptions
	opts.PrefetchValues = false
	it := txn.NewIterator(opts)
	defer it.Close()

	var ids []string
	prefix := s.makeKey(idPrefix)
	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		ids = append(ids, s.stripPrefix(it.Item().KeyCopy(nil)))
	}
	return ids, nil
}

func (s *BadgerStore) List(results interface{}) error {
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := []byte(s.prefix + ":")
		var values []json.RawMessage

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			err := item.Value(func(val []byte) error {
				values = append(values, append([]byte(nil), val...))
				return nil
			})
			if err != nil {
				return err
			}
		}

		// Marshal collected values into final result
		data, err := json.Marshal(values)
		if err != nil {
			return err
		}

		return json.Unmarshal(data, results)
	})

	if err != nil {
		return fmt.Errorf("listing entities: %w", err)
	}
	return nil
}
