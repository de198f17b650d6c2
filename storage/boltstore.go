package storage

import (
	"bytes"
	"fmt"

	"github.com/boltdb/bolt"
)

// BoltStore is an implementation of Store whose backend is a Bolt database.
// All pairs live in a single bucket.
type BoltStore struct {
	db     *bolt.DB
	bucket []byte
}

// DefaultBucket is the namespace used when no bucket name is given.
const DefaultBucket = "uploads"

func NewBoltStore(db *bolt.DB, bucket string) (*BoltStore, error) {
	if bucket == "" {
		bucket = DefaultBucket
	}
	name := []byte(bucket)
	err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(name)
		if err != nil {
			return fmt.Errorf("could not ensure bucket %q exists: %w", name, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &BoltStore{db: db, bucket: name}, nil
}

func (s *BoltStore) Put(key []byte, value []byte) error {
	if value == nil {
		value = []byte{}
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		if err := tx.Bucket(s.bucket).Put(key, value); err != nil {
			return fmt.Errorf("could not put %.40q: %w", key, err)
		}
		return nil
	})
}

func (s *BoltStore) Get(key []byte) (value []byte, err error) {
	err = s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(s.bucket).Get(key)
		if v == nil {
			return fmt.Errorf("%.40q: %w", key, ErrNotFound)
		}
		// Only valid for the life of the transaction.
		value = make([]byte, len(v))
		copy(value, v)
		return nil
	})
	return value, err
}

func (s *BoltStore) Delete(key []byte) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(s.bucket)
		if b.Get(key) == nil {
			return fmt.Errorf("%.40q: %w", key, ErrNotFound)
		}
		if err := b.Delete(key); err != nil {
			return fmt.Errorf("could not delete %.40q: %w", key, err)
		}
		return nil
	})
}

func (s *BoltStore) Keys(prefix []byte) (keys [][]byte, err error) {
	err = s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(s.bucket).Cursor()
		for k, _ := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, _ = c.Next() {
			keys = append(keys, dup(k))
		}
		return nil
	})
	return keys, err
}
