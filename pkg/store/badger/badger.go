// Package badger provides a Badger-based implementation of the metadata
// store contract.
package badger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	badgerdb "github.com/dgraph-io/badger/v4"

	"github.com/temporalmem/temporalmem/pkg/memory"
	"github.com/temporalmem/temporalmem/pkg/store"
)

// Config holds configuration for the Badger metadata store.
type Config struct {
	Path             string
	SyncWrites       bool
	ValueLogFileSize int64
	InMemory         bool
}

// Store implements memory.MetadataStore using Badger.
//
// Key layout:
//
//	rec:{id}                          -> JSON record
//	idx:user:{userID}:{status}:{id}   -> empty (list by user+status)
//	idx:slot:{userID}:{slot}:{id}     -> empty (active records only)
//
// All index keys are maintained inside the same transaction as the record
// mutation, so index and record never disagree at a transaction boundary.
type Store struct {
	db     *badgerdb.DB
	config *Config
}

// New opens a Badger-backed metadata store.
func New(config *Config) (*Store, error) {
	opts := badgerdb.DefaultOptions(config.Path)
	opts.SyncWrites = config.SyncWrites
	if config.ValueLogFileSize > 0 {
		opts.ValueLogFileSize = config.ValueLogFileSize
	}
	if config.InMemory {
		opts = opts.WithInMemory(true).WithDir("").WithValueDir("")
	}
	opts.Logger = nil

	db, err := badgerdb.Open(opts)
	if err != nil {
		return nil, &store.StorageUnavailableError{Cause: err}
	}
	return &Store{db: db, config: config}, nil
}

// update runs fn in a read-write transaction, re-running it when Badger
// reports a transaction-level conflict. Re-reading inside fn turns a stale
// expected version into a memory.ConflictError instead.
func (s *Store) update(fn func(txn *badgerdb.Txn) error) error {
	for {
		err := s.db.Update(fn)
		if err != badgerdb.ErrConflict {
			return err
		}
	}
}

func recordKey(id string) []byte {
	return []byte("rec:" + id)
}

func userIndexKey(userID string, status memory.Status, id string) []byte {
	return []byte(fmt.Sprintf("idx:user:%s:%s:%s", userID, status, id))
}

func userIndexPrefix(userID string, status memory.Status) []byte {
	return []byte(fmt.Sprintf("idx:user:%s:%s:", userID, status))
}

func slotIndexKey(userID, slot, id string) []byte {
	return []byte(fmt.Sprintf("idx:slot:%s:%s:%s", userID, slot, id))
}

func slotIndexPrefix(userID, slot string) []byte {
	return []byte(fmt.Sprintf("idx:slot:%s:%s:", userID, slot))
}

func serialize(rec *memory.MemoryRecord) ([]byte, error) {
	data, err := json.Marshal(rec)
	if err != nil {
		return nil, &store.SerializationError{Operation: "marshal", Cause: err}
	}
	return data, nil
}

func deserialize(data []byte, rec *memory.MemoryRecord) error {
	if err := json.Unmarshal(data, rec); err != nil {
		return &store.SerializationError{Operation: "unmarshal", Cause: err}
	}
	return nil
}

// getTxn loads a record inside a transaction.
func getTxn(txn *badgerdb.Txn, id string) (*memory.MemoryRecord, error) {
	item, err := txn.Get(recordKey(id))
	if err != nil {
		if err == badgerdb.ErrKeyNotFound {
			return nil, &store.NotFoundError{ID: id}
		}
		return nil, err
	}
	var rec memory.MemoryRecord
	if err := item.Value(func(val []byte) error {
		return deserialize(val, &rec)
	}); err != nil {
		return nil, err
	}
	return &rec, nil
}

// putTxn writes a record and its index keys inside a transaction.
func putTxn(txn *badgerdb.Txn, rec *memory.MemoryRecord) error {
	data, err := serialize(rec)
	if err != nil {
		return err
	}
	if err := txn.Set(recordKey(rec.ID), data); err != nil {
		return err
	}
	if err := txn.Set(userIndexKey(rec.UserID, rec.Status, rec.ID), nil); err != nil {
		return err
	}
	if rec.Slot != "" && rec.Status == memory.StatusActive {
		return txn.Set(slotIndexKey(rec.UserID, rec.Slot, rec.ID), nil)
	}
	return nil
}

// transitionTxn applies an optimistic status transition inside a transaction.
func transitionTxn(txn *badgerdb.Txn, id string, next memory.Status, expectedVersion uint64) error {
	rec, err := getTxn(txn, id)
	if err != nil {
		return err
	}
	if rec.Version != expectedVersion {
		return &memory.ConflictError{ID: id, Expected: expectedVersion, Actual: rec.Version}
	}
	if !rec.Status.CanTransitionTo(next) {
		return &store.InvalidTransitionError{ID: id, From: rec.Status, To: next}
	}

	if err := txn.Delete(userIndexKey(rec.UserID, rec.Status, rec.ID)); err != nil {
		return err
	}
	if rec.Slot != "" && rec.Status == memory.StatusActive {
		if err := txn.Delete(slotIndexKey(rec.UserID, rec.Slot, rec.ID)); err != nil {
			return err
		}
	}

	rec.Status = next
	rec.Version++
	return putTxn(txn, rec)
}

// Insert stores a new record with version 1.
func (s *Store) Insert(ctx context.Context, rec *memory.MemoryRecord) error {
	return s.update(func(txn *badgerdb.Txn) error {
		if _, err := txn.Get(recordKey(rec.ID)); err == nil {
			return &store.DuplicateKeyError{ID: rec.ID}
		} else if err != badgerdb.ErrKeyNotFound {
			return err
		}
		rec.Version = 1
		return putTxn(txn, rec.Clone())
	})
}

// GetByID retrieves a record by id.
func (s *Store) GetByID(ctx context.Context, id string) (*memory.MemoryRecord, error) {
	var rec *memory.MemoryRecord
	err := s.db.View(func(txn *badgerdb.Txn) error {
		var err error
		rec, err = getTxn(txn, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// UpdateStatus applies an optimistic forward-only status transition.
func (s *Store) UpdateStatus(ctx context.Context, id string, next memory.Status, expectedVersion uint64) error {
	return s.update(func(txn *badgerdb.Txn) error {
		return transitionTxn(txn, id, next, expectedVersion)
	})
}

// GetActiveBySlot returns every active record in (userID, slot) via the
// slot index.
func (s *Store) GetActiveBySlot(ctx context.Context, userID, slot string) ([]*memory.MemoryRecord, error) {
	var out []*memory.MemoryRecord
	err := s.db.View(func(txn *badgerdb.Txn) error {
		prefix := slotIndexPrefix(userID, slot)
		opts := badgerdb.DefaultIteratorOptions
		opts.Prefix = prefix
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			id := string(it.Item().Key()[len(prefix):])
			rec, err := getTxn(txn, id)
			if err != nil {
				return err
			}
			out = append(out, rec)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sortByID(out)
	return out, nil
}

// ListByUser returns every record for the user with the status via the
// user index.
func (s *Store) ListByUser(ctx context.Context, userID string, status memory.Status) ([]*memory.MemoryRecord, error) {
	var out []*memory.MemoryRecord
	err := s.db.View(func(txn *badgerdb.Txn) error {
		prefix := userIndexPrefix(userID, status)
		opts := badgerdb.DefaultIteratorOptions
		opts.Prefix = prefix
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			id := string(it.Item().Key()[len(prefix):])
			rec, err := getTxn(txn, id)
			if err != nil {
				return err
			}
			out = append(out, rec)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sortByID(out)
	return out, nil
}

// ListByIDs returns the records for the ids; missing ids are silently
// omitted.
func (s *Store) ListByIDs(ctx context.Context, ids []string) ([]*memory.MemoryRecord, error) {
	out := make([]*memory.MemoryRecord, 0, len(ids))
	err := s.db.View(func(txn *badgerdb.Txn) error {
		for _, id := range ids {
			rec, err := getTxn(txn, id)
			if err != nil {
				var nf *store.NotFoundError
				if errors.As(err, &nf) {
					continue
				}
				return err
			}
			out = append(out, rec)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ApplyPlan commits the archive set and the insert as one Badger
// transaction. Any version mismatch aborts the whole transaction.
func (s *Store) ApplyPlan(ctx context.Context, plan memory.ResolutionPlan) error {
	return s.update(func(txn *badgerdb.Txn) error {
		for _, t := range plan.Archive {
			if err := transitionTxn(txn, t.ID, memory.StatusArchived, t.Version); err != nil {
				return err
			}
		}
		if _, err := txn.Get(recordKey(plan.Insert.ID)); err == nil {
			return &store.DuplicateKeyError{ID: plan.Insert.ID}
		} else if err != badgerdb.ErrKeyNotFound {
			return err
		}
		plan.Insert.Version = 1
		return putTxn(txn, plan.Insert.Clone())
	})
}

// Close closes the underlying Badger database.
func (s *Store) Close() error {
	return s.db.Close()
}

func sortByID(recs []*memory.MemoryRecord) {
	sort.Slice(recs, func(i, j int) bool { return recs[i].ID < recs[j].ID })
}
