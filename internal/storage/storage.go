// Package storage keeps an optional audit trail of risk assessments.
// It uses BoltDB as the underlying storage engine. History is write-only from
// the scoring path's point of view: nothing stored here feeds back into a
// prediction.
package storage

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"time"

	"predictive-maintenance/internal/risk"

	"go.etcd.io/bbolt"
)

const (
	assessmentsBucket = "assessments" // Bucket name for assessment records
	dbFile            = "maintenance-history.db"
)

// Store persists assessments keyed by time so cursor order is chronological.
type Store struct {
	db *bbolt.DB
}

// New opens (or creates) the history database under dataPath.
func New(dataPath string) (*Store, error) {
	dbPath := filepath.Join(dataPath, dbFile)

	db, err := bbolt.Open(dbPath, 0o600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists([]byte(assessmentsBucket)); err != nil {
			return fmt.Errorf("create assessments bucket: %w", err)
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

// Close closes the database. Closing twice is safe.
func (s *Store) Close() error {
	if s.db != nil {
		err := s.db.Close()
		s.db = nil
		return err
	}
	return nil
}

// key is "<zero-padded unix nanos>_<id>" so byte order equals time order.
func key(ts time.Time, id string) []byte {
	return []byte(fmt.Sprintf("%020d_%s", ts.UnixNano(), id))
}

// Record stores one assessment. It satisfies risk.Recorder.
func (s *Store) Record(a risk.Assessment) error {
	if s.db == nil {
		return fmt.Errorf("store is closed")
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(assessmentsBucket))

		data, err := json.Marshal(a)
		if err != nil {
			return fmt.Errorf("marshal assessment: %w", err)
		}
		return b.Put(key(a.AssessedAt, a.ID), data)
	})
}

// Recent returns up to n assessments, newest first. A non-positive n yields
// an empty result.
func (s *Store) Recent(n int) ([]risk.Assessment, error) {
	if s.db == nil {
		return nil, fmt.Errorf("store is closed")
	}
	if n <= 0 {
		return []risk.Assessment{}, nil
	}
	out := make([]risk.Assessment, 0, n)
	err := s.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket([]byte(assessmentsBucket)).Cursor()
		for k, v := c.Last(); k != nil && len(out) < n; k, v = c.Prev() {
			var a risk.Assessment
			if err := json.Unmarshal(v, &a); err != nil {
				continue // Skip malformed records
			}
			out = append(out, a)
		}
		return nil
	})
	return out, err
}

// Between returns assessments with start <= AssessedAt <= end, oldest first.
func (s *Store) Between(start, end time.Time) ([]risk.Assessment, error) {
	if s.db == nil {
		return nil, fmt.Errorf("store is closed")
	}
	var out []risk.Assessment
	startKey := []byte(fmt.Sprintf("%020d", start.UnixNano()))
	endKey := []byte(fmt.Sprintf("%020d~", end.UnixNano()))

	err := s.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket([]byte(assessmentsBucket)).Cursor()
		for k, v := c.Seek(startKey); k != nil && string(k) <= string(endKey); k, v = c.Next() {
			var a risk.Assessment
			if err := json.Unmarshal(v, &a); err != nil {
				continue
			}
			out = append(out, a)
		}
		return nil
	})
	return out, err
}

// Count returns the number of stored assessments.
func (s *Store) Count() (int, error) {
	if s.db == nil {
		return 0, fmt.Errorf("store is closed")
	}
	var n int
	err := s.db.View(func(tx *bbolt.Tx) error {
		n = tx.Bucket([]byte(assessmentsBucket)).Stats().KeyN
		return nil
	})
	return n, err
}
