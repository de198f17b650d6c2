package storage

import (
	"bytes"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// MaxDiskKeyLength is the longest key DiskStore accepts. Keys are
// hex-encoded into file names, which are limited to 255 bytes on most
// filesystems.
const MaxDiskKeyLength = 120

// ErrKeyTooLong is returned by DiskStore for keys it cannot map to a file.
var ErrKeyTooLong = errors.New("key too long")

var errEmptyKey = errors.New("empty key")

const tmpSuffix = ".tmp"

// DiskStore implements Store.
type DiskStore struct {
	dir string
}

func NewDiskStore(dir string) *DiskStore {
	return &DiskStore{dir: dir}
}

func (s *DiskStore) Put(key, value []byte) (err error) {
	valpath, err := s.pathFor(key)
	if err != nil {
		return err
	}
	err = writeFileAtomic(valpath, value)
	if err == nil {
		return nil
	}
	if !os.IsNotExist(err) {
		return fmt.Errorf("could not write %q: %w", valpath, err)
	}
	if err = os.MkdirAll(filepath.Dir(valpath), 0700); err != nil {
		return fmt.Errorf("could not make dir for %q: %w", valpath, err)
	}
	return writeFileAtomic(valpath, value)
}

// Readers never observe a half-written value.
func writeFileAtomic(pathname string, value []byte) error {
	tmp := pathname + tmpSuffix
	if err := os.WriteFile(tmp, value, 0600); err != nil {
		if !os.IsNotExist(err) {
			_ = os.Remove(tmp)
		}
		return err
	}
	if err := os.Rename(tmp, pathname); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return nil
}

func (s *DiskStore) Get(key []byte) (value []byte, err error) {
	valpath, err := s.pathFor(key)
	if err != nil {
		return nil, notStored(key, err)
	}
	value, err = os.ReadFile(valpath)
	if os.IsNotExist(err) {
		err = fmt.Errorf("%x: %w", key, ErrNotFound)
	}
	return
}

func (s *DiskStore) Delete(key []byte) error {
	valpath, err := s.pathFor(key)
	if err != nil {
		return notStored(key, err)
	}
	err = os.Remove(valpath)
	if os.IsNotExist(err) {
		return fmt.Errorf("%x: %w", key, ErrNotFound)
	}
	return err
}

func (s *DiskStore) Keys(prefix []byte) (keys [][]byte, err error) {
	err = filepath.WalkDir(s.dir, func(pathname string, d fs.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) && pathname == s.dir {
				return filepath.SkipDir
			}
			return err
		}
		if d.IsDir() || strings.HasSuffix(d.Name(), tmpSuffix) {
			return nil
		}
		key, err := hex.DecodeString(d.Name())
		if err != nil {
			// Not ours.
			return nil
		}
		if bytes.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(keys, func(i, j int) bool {
		return bytes.Compare(keys[i], keys[j]) < 0
	})
	return keys, nil
}

// notStored maps ErrKeyTooLong to ErrNotFound: Put rejects such keys, so
// they can never be in the store.
func notStored(key []byte, err error) error {
	if errors.Is(err, ErrKeyTooLong) {
		return fmt.Errorf("%.40q: %w", key, ErrNotFound)
	}
	return err
}

func (s *DiskStore) pathFor(key []byte) (string, error) {
	if len(key) == 0 {
		return "", errEmptyKey
	}
	if len(key) > MaxDiskKeyLength {
		return "", fmt.Errorf("%.40q: %w", key, ErrKeyTooLong)
	}
	h := hex.EncodeToString(key)
	// The last two hex digits spread chunk keys, which share long prefixes.
	return filepath.Join(s.dir, h[len(h)-2:], h), nil
}
