// Package storage persists permutation-test results and normalization
// parameters in BoltDB.
//
// Results are keyed by run name and completion time, so the history of a
// run can be range-scanned in time order. Normalization parameters are
// keyed by name and overwritten on each store.
package storage

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"storm-importance/internal/importance"
	"storm-importance/internal/verification"

	"github.com/google/uuid"
	"go.etcd.io/bbolt"
)

const (
	resultsBucket       = "importance_results" // Bucket name for permutation results
	normalizationBucket = "normalization"      // Bucket name for normalization parameters

	dbFileName = "storm-importance.db"
)

var ErrNotFound = errors.New("storage: not found")

// Store provides persistent storage for permutation results using BoltDB.
type Store struct {
	db *bbolt.DB // BoltDB database instance
}

// ResultRecord is one stored permutation test.
type ResultRecord struct {
	ID           string               `json:"id"`
	Run          string               `json:"run"`
	Timestamp    time.Time            `json:"timestamp"`
	Seed         uint64               `json:"seed"`
	TieBreak     string               `json:"tie_break"`
	CostFunction string               `json:"cost_function"`
	NumExamples  int                  `json:"num_examples"`
	Result       importance.Record    `json:"result"`
	Verification *verification.Scores `json:"verification,omitempty"`
}

// New opens (or creates) the database under dataPath and creates the
// buckets. Returns an error if the database cannot be opened.
func New(dataPath string) (*Store, error) {
	dbPath := filepath.Join(dataPath, dbFileName)

	db, err := bbolt.Open(dbPath, 0o600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists([]byte(resultsBucket)); err != nil {
			return fmt.Errorf("create results bucket: %w", err)
		}
		if _, err := tx.CreateBucketIfNotExists([]byte(normalizationBucket)); err != nil {
			return fmt.Errorf("create normalization bucket: %w", err)
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func resultKey(run string, ts time.Time) []byte {
	return []byte(fmt.Sprintf("%s_%d", run, ts.UnixNano()))
}

// StoreResult stores rec under "run_timestamp" and returns its ID, which is
// generated when rec has none. A record with the same run and timestamp is
// replaced.
func (s *Store) StoreResult(rec ResultRecord) (string, error) {
	if rec.Run == "" {
		return "", fmt.Errorf("store result: empty run name")
	}
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	return rec.ID, s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(resultsBucket))

		data, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("marshal result: %w", err)
		}
		return b.Put(resultKey(rec.Run, rec.Timestamp), data)
	})
}

// GetResults returns the records of run stored between start and end,
// inclusive, in time order.
func (s *Store) GetResults(run string, start, end time.Time) ([]ResultRecord, error) {
	var records []ResultRecord

	err := s.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket([]byte(resultsBucket)).Cursor()

		prefix := []byte(run + "_")
		endKey := resultKey(run, end)

		for k, v := c.Seek(resultKey(run, start)); k != nil && bytes.Compare(k, endKey) <= 0; k, v = c.Next() {
			if !bytes.HasPrefix(k, prefix) {
				continue
			}

			var rec ResultRecord
			if err := json.Unmarshal(v, &rec); err != nil {
				continue // Skip malformed records
			}
			if rec.Run != run {
				continue
			}
			records = append(records, rec)
		}
		return nil
	})

	return records, err
}

// LatestResult returns the most recently timestamped record of run.
func (s *Store) LatestResult(run string) (*ResultRecord, error) {
	var latest *ResultRecord

	err := s.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket([]byte(resultsBucket)).Cursor()
		prefix := []byte(run + "_")

		for k, v := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = c.Next() {
			var rec ResultRecord
			if err := json.Unmarshal(v, &rec); err != nil || rec.Run != run {
				continue
			}
			if latest == nil || !rec.Timestamp.Before(latest.Timestamp) {
				latest = &rec
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if latest == nil {
		return nil, fmt.Errorf("%w: no results for run %q", ErrNotFound, run)
	}
	return latest, nil
}
