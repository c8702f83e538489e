// Package checkpoint persists reconciliation progress in a local Badger
// store. Each cluster is one unit of work: a run that is interrupted
// between clusters resumes without repeating clusters it already merged.
package checkpoint

import (
	"fmt"

	badger "github.com/dgraph-io/badger/v4"
)

// Store records which clusters a reconciliation run has completed.
type Store struct {
	db *badger.DB
}

// Open opens (or creates) a checkpoint store at path. An empty path opens
// an in-memory store, used in tests and dry runs.
func Open(path string) (*Store, error) {
	opts := badger.DefaultOptions(path).WithLogger(nil)
	if path == "" {
		opts = opts.WithInMemory(true)
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("opening checkpoint store: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the underlying store.
func (s *Store) Close() error {
	return s.db.Close()
}

func clusterKey(runID, cluster string) []byte {
	return []byte(fmt.Sprintf("run/%s/cluster/%s", runID, cluster))
}

// MarkDone records that a cluster's merge set was fully applied.
func (s *Store) MarkDone(runID, cluster string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(clusterKey(runID, cluster), []byte{1})
	})
}

// IsDone reports whether a cluster was already completed by this run.
func (s *Store) IsDone(runID, cluster string) (bool, error) {
	var done bool
	err := s.db.View(func(txn *badger.Txn) error {
		_, err := txn.Get(clusterKey(runID, cluster))
		if err == badger.ErrKeyNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		done = true
		return nil
	})
	return done, err
}

// ClearRun drops every checkpoint belonging to a run, typically after the
// run completed successfully.
func (s *Store) ClearRun(runID string) error {
	prefix := []byte(fmt.Sprintf("run/%s/", runID))
	return s.db.Update(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.IteratorOptions{Prefix: prefix})
		defer it.Close()

		var keys [][]byte
		for it.Rewind(); it.Valid(); it.Next() {
			keys = append(keys, it.Item().KeyCopy(nil))
		}
		for _, key := range keys {
			if err := txn.Delete(key); err != nil {
				return err
			}
		}
		return nil
	})
}
