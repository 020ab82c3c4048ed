package storage

import (
	"encoding/json"
	"fmt"

	"storm-importance/internal/preprocess"

	"go.etcd.io/bbolt"
)

// StoreParams stores normalization parameters under name, replacing any
// earlier parameters with the same name.
func (s *Store) StoreParams(name string, params preprocess.Params) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists([]byte(normalizationBucket))
		if err != nil {
			return fmt.Errorf("create normalization bucket: %w", err)
		}

		data, err := json.Marshal(params)
		if err != nil {
			return fmt.Errorf("marshal normalization params: %w", err)
		}
		return b.Put([]byte(name), data)
	})
}

// GetParams returns the normalization parameters stored under name.
func (s *Store) GetParams(name string) (preprocess.Params, error) {
	var params preprocess.Params

	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(normalizationBucket))
		if b == nil {
			return nil
		}
		v := b.Get([]byte(name))
		if v == nil {
			return nil
		}
		return json.Unmarshal(v, &params)
	})
	if err != nil {
		return nil, fmt.Errorf("unmarshal normalization params: %w", err)
	}
	if params == nil {
		return nil, fmt.Errorf("%w: no normalization params named %q", ErrNotFound, name)
	}
	return params, nil
}
