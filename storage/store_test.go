package storage_test

import (
	"bytes"
	"errors"
	"math/rand"
	"path/filepath"
	"testing"
	"time"

	"github.com/boltdb/bolt"
	"github.com/nicolagi/uploads/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStoreImplementations(t *testing.T) {
	testCases := []struct {
		name  string
		setup func(*testing.T) (storage.Store, func())
	}{
		/*
			{
				name: "Store implementation backed by S3",
				setup: func(t *testing.T) (s storage.Store, teardown func()) {
					return storage.NewS3("uploads", "eu-west-2", "cocky-kare", "test/", 0), func() {}
				},
			},
		*/
		{
			name: "Store implementation backed by a BoltDB",
			setup: func(t *testing.T) (s storage.Store, teardown func()) {
				db, err := bolt.Open(filepath.Join(t.TempDir(), "test.db"), 0600, nil)
				require.Nil(t, err)
				store, err := storage.NewBoltStore(db, "")
				require.Nil(t, err)
				return store, func() {
					_ = db.Close()
				}
			},
		},
		{
			name: "Store implementation backed by a map",
			setup: func(*testing.T) (s storage.Store, teardown func()) {
				return storage.NewInMemoryStore(), func() {
					// Nothing to do.
				}
			},
		},
		{
			name: "Store implementation backed by a host filesystem directory",
			setup: func(t *testing.T) (s storage.Store, teardown func()) {
				return storage.NewDiskStore(t.TempDir()), func() {}
			},
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			store, teardown := tc.setup(t)
			defer teardown()
			testStore(t, store)
		})
	}
}

func testStore(t *testing.T, store storage.Store) {
	rand.Seed(time.Now().UnixNano())
	t.Run("what you put is what you get", func(t *testing.T) {
		key := randomKey()
		err := store.Put(key, []byte("hello"))
		require.Nil(t, err)
		storedValue, err := store.Get(key)
		require.Nil(t, err)
		assert.Equal(t, []byte("hello"), storedValue)
	})
	t.Run("error on not existing key", func(t *testing.T) {
		key := randomKey()
		value, err := store.Get(key)
		assert.True(t, errors.Is(err, storage.ErrNotFound))
		assert.Nil(t, value)
	})
	t.Run("can put a nil value, get non-nil empty slice", func(t *testing.T) {
		key := randomKey()
		err := store.Put(key, nil)
		require.Nil(t, err)
		value, err := store.Get(key)
		assert.Nil(t, err)
		assert.Equal(t, []byte{}, value)
	})
	t.Run("can put an empty value", func(t *testing.T) {
		key := randomKey()
		err := store.Put(key, []byte{})
		require.Nil(t, err)
		value, err := store.Get(key)
		assert.Nil(t, err)
		assert.Equal(t, []byte{}, value)
	})
	t.Run("mutating value should not affect stored pairs", func(t *testing.T) {
		key := randomKey()
		before := []byte("old value")
		if err := store.Put(key, before); err != nil {
			t.Fatalf("got %v, want nil", err)
		}
		copy(before, "new")
		after, err := store.Get(key)
		if err != nil {
			t.Fatalf("got %v, want nil", err)
		}
		if want := []byte("old value"); !bytes.Equal(want, after) {
			t.Errorf("got %q, want %q", after, want)
		}
	})
	t.Run("put overwrites", func(t *testing.T) {
		key := randomKey()
		require.Nil(t, store.Put(key, []byte("hello")))
		require.Nil(t, store.Put(key, []byte("goodbye")))
		value, err := store.Get(key)
		require.Nil(t, err)
		assert.Equal(t, []byte("goodbye"), value)
	})
	t.Run("deleted keys are gone", func(t *testing.T) {
		key := randomKey()
		require.Nil(t, store.Put(key, []byte("hello")))
		require.Nil(t, store.Delete(key))
		_, err := store.Get(key)
		assert.True(t, errors.Is(err, storage.ErrNotFound))
	})
	t.Run("error on deleting not existing key", func(t *testing.T) {
		err := store.Delete(randomKey())
		assert.True(t, errors.Is(err, storage.ErrNotFound))
	})
	t.Run("keys are listed by prefix in order", func(t *testing.T) {
		prefix := randomKey()[:8]
		var want [][]byte
		for _, suffix := range []string{"c", "a", "b"} {
			key := append(append([]byte{}, prefix...), suffix...)
			require.Nil(t, store.Put(key, []byte(suffix)))
		}
		for _, suffix := range []string{"a", "b", "c"} {
			want = append(want, append(append([]byte{}, prefix...), suffix...))
		}
		// Shares all but the last byte of the prefix.
		other := append([]byte{}, prefix...)
		other[len(other)-1]++
		require.Nil(t, store.Put(append(other, 'a'), []byte("other")))

		keys, err := store.Keys(prefix)
		require.Nil(t, err)
		assert.Equal(t, want, keys)
	})
	t.Run("long unknown keys are not found", func(t *testing.T) {
		key := bytes.Repeat(randomKey(), 7)
		_, err := store.Get(key)
		assert.True(t, errors.Is(err, storage.ErrNotFound), "got %v", err)
		err = store.Delete(key)
		assert.True(t, errors.Is(err, storage.ErrNotFound), "got %v", err)
	})
	t.Run("no keys for unknown prefix", func(t *testing.T) {
		keys, err := store.Keys(randomKey())
		require.Nil(t, err)
		assert.Empty(t, keys)
	})
}

func randomKey() []byte {
	key := make([]byte, 32)
	rand.Read(key)
	return key
}

func TestDiskStoreRejectsLongKeys(t *testing.T) {
	store := storage.NewDiskStore(t.TempDir())
	key := bytes.Repeat([]byte("k"), storage.MaxDiskKeyLength+1)
	err := store.Put(key, []byte("value"))
	assert.True(t, errors.Is(err, storage.ErrKeyTooLong), "got %v", err)
	_, err = store.Get(key)
	assert.True(t, errors.Is(err, storage.ErrNotFound), "got %v", err)

	key = key[:storage.MaxDiskKeyLength]
	require.Nil(t, store.Put(key, []byte("value")))
	value, err := store.Get(key)
	require.Nil(t, err)
	assert.Equal(t, []byte("value"), value)
}
