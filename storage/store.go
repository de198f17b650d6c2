package storage

import (
	"errors"
)

// Store represents a key-value store. Each call is atomic on its own; there
// are no multi-key transactions.
type Store interface {
	Put(key, value []byte) (err error)

	// Get should return ErrNotFound if the key is not in the store.
	Get(key []byte) (value []byte, err error)

	// Delete should return ErrNotFound if the key is not in the store.
	Delete(key []byte) (err error)

	// Keys returns all keys starting with prefix, in ascending byte order.
	Keys(prefix []byte) (keys [][]byte, err error)
}

var (
	// ErrNotFound indicates a key is not in the store.
	ErrNotFound = errors.New("not found")
)

func dup(b []byte) []byte {
	if b == nil {
		return nil
	}
	c := make([]byte, len(b))
	copy(c, b)
	return c
}
