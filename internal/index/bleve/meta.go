package bleve

import (
	"fmt"

	"go.etcd.io/bbolt"
)

const bucketMeta = "meta"

// GetMeta returns "" for an absent key.
func (s *Store) GetMeta(key string) (string, error) {
	if s == nil || s.meta == nil {
		return "", fmt.Errorf("store is not open")
	}
	if key == "" {
		return "", fmt.Errorf("key is required")
	}

	var val string
	err := s.meta.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(bucketMeta))
		if b == nil {
			return nil
		}
		if raw := b.Get([]byte(key)); raw != nil {
			val = string(raw)
		}
		return nil
	})
	return val, err
}

func (s *Store) SetMeta(key string, value string) error {
	if s == nil || s.meta == nil {
		return fmt.Errorf("store is not open")
	}
	if key == "" {
		return fmt.Errorf("key is required")
	}

	return s.meta.Update(func(tx *bbolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists([]byte(bucketMeta))
		if err != nil {
			return err
		}
		return b.Put([]byte(key), []byte(value))
	})
}

func (s *Store) ensureBuckets() error {
	return s.meta.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(bucketMeta))
		return err
	})
}
