// Package store keeps timestamped snapshots of encoded ledgers in a bbolt file.
//
// Every snapshot is stored in two buckets sharing the same big-endian key: the
// raw document in "documents" and its JSON metadata in "snapshots". Keys come
// from the bucket sequence so they sort in creation order.
package store

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"
)

// ErrNotFound is returned when a snapshot does not exist.
var ErrNotFound = errors.New("snapshot not found")

// Bucket names.
const (
	BucketSnapshots = "snapshots"
	BucketDocuments = "documents"
)

// Snapshot describes a saved document.
type Snapshot struct {
	ID     uint64    `json:"id"`
	Time   time.Time `json:"time"`
	Reason string    `json:"reason,omitempty"`
	Size   int       `json:"size"`
}

// Store is a bbolt backed snapshot store. It is safe for concurrent use,
// but a bbolt file can only be opened by one process at a time.
type Store struct {
	db    *bolt.DB
	clock func() time.Time
}

// Open opens, or creates, the store at path.
func Open(path string) (*Store, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open backups %q: %w", path, err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		for _, bucket := range []string{BucketSnapshots, BucketDocuments} {
			if _, err := tx.CreateBucketIfNotExists([]byte(bucket)); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", bucket, err)
			}
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{db: db, clock: time.Now}, nil
}

// Close closes the database.
func (s *Store) Close() error { return s.db.Close() }

// Save stores a copy of doc as a new snapshot.
func (s *Store) Save(doc []byte, reason string) (Snapshot, error) {
	snap := Snapshot{Time: s.clock().UTC(), Reason: reason, Size: len(doc)}
	err := s.db.Update(func(tx *bolt.Tx) error {
		meta := tx.Bucket([]byte(BucketSnapshots))
		seq, err := meta.NextSequence()
		if err != nil {
			return err
		}
		snap.ID = seq
		data, err := json.Marshal(snap)
		if err != nil {
			return fmt.Errorf("failed to marshal snapshot: %w", err)
		}
		if err := meta.Put(itob(seq), data); err != nil {
			return err
		}
		return tx.Bucket([]byte(BucketDocuments)).Put(itob(seq), doc)
	})
	if err != nil {
		return Snapshot{}, err
	}
	return snap, nil
}

// List returns every snapshot, oldest first.
func (s *Store) List() ([]Snapshot, error) {
	var snaps []Snapshot
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(BucketSnapshots)).ForEach(func(k, v []byte) error {
			var snap Snapshot
			if err := json.Unmarshal(v, &snap); err != nil {
				return fmt.Errorf("snapshot %d: %w", btoi(k), err)
			}
			snaps = append(snaps, snap)
			return nil
		})
	})
	return snaps, err
}

// Latest returns the most recent snapshot.
func (s *Store) Latest() (Snapshot, error) {
	var snap Snapshot
	err := s.db.View(func(tx *bolt.Tx) error {
		_, v := tx.Bucket([]byte(BucketSnapshots)).Cursor().Last()
		if v == nil {
			return ErrNotFound
		}
		return json.Unmarshal(v, &snap)
	})
	return snap, err
}

// Load returns the document of snapshot id.
func (s *Store) Load(id uint64) ([]byte, error) {
	var doc []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket([]byte(BucketDocuments)).Get(itob(id))
		if v == nil {
			return fmt.Errorf("snapshot %d: %w", id, ErrNotFound)
		}
		// The value is only valid during the transaction.
		doc = make([]byte, len(v))
		copy(doc, v)
		return nil
	})
	return doc, err
}

// Delete removes snapshot id.
func (s *Store) Delete(id uint64) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		meta := tx.Bucket([]byte(BucketSnapshots))
		if meta.Get(itob(id)) == nil {
			return fmt.Errorf("snapshot %d: %w", id, ErrNotFound)
		}
		if err := meta.Delete(itob(id)); err != nil {
			return err
		}
		return tx.Bucket([]byte(BucketDocuments)).Delete(itob(id))
	})
}

// Prune deletes the oldest snapshots so that at most keep remain, and
// returns how many were deleted. A negative or zero keep prunes nothing.
func (s *Store) Prune(keep int) (int, error) {
	if keep <= 0 {
		return 0, nil
	}
	deleted := 0
	err := s.db.Update(func(tx *bolt.Tx) error {
		meta := tx.Bucket([]byte(BucketSnapshots))
		docs := tx.Bucket([]byte(BucketDocuments))
		c := meta.Cursor()
		extra := -keep
		for k, _ := c.First(); k != nil; k, _ = c.Next() {
			extra++
		}
		for k, _ := c.First(); k != nil && deleted < extra; k, _ = c.First() {
			// Deleting under the cursor is not safe, so restart from the first key.
			key := append([]byte(nil), k...)
			if err := meta.Delete(key); err != nil {
				return err
			}
			if err := docs.Delete(key); err != nil {
				return err
			}
			deleted++
		}
		return nil
	})
	return deleted, err
}

func itob(v uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, v)
	return b
}

func btoi(b []byte) uint64 { return binary.BigEndian.Uint64(b) }
