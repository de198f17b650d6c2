package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/boltdb/bolt"
	"github.com/nicolagi/uploads/storage"
	log "github.com/sirupsen/logrus"
)

// openBackend returns the configured store and a function releasing it.
func openBackend(c *config) (storage.Store, func(), error) {
	nothing := func() {}
	switch c.Backend.Type {
	case "memory":
		log.Warn("Using an in-memory backend, uploads will not survive a restart")
		return storage.NewInMemoryStore(), nothing, nil
	case "disk":
		if err := os.MkdirAll(c.Backend.Path, 0700); err != nil {
			return nil, nil, fmt.Errorf("could not ensure directory %q exists: %w", c.Backend.Path, err)
		}
		return storage.NewDiskStore(c.Backend.Path), nothing, nil
	case "bolt":
		if err := os.MkdirAll(filepath.Dir(c.Backend.Path), 0700); err != nil {
			return nil, nil, fmt.Errorf("could not ensure directory for %q exists: %w", c.Backend.Path, err)
		}
		db, err := bolt.Open(c.Backend.Path, 0600, &bolt.Options{Timeout: time.Second})
		if err != nil {
			return nil, nil, fmt.Errorf("could not open database %q: %w", c.Backend.Path, err)
		}
		store, err := storage.NewBoltStore(db, c.Backend.Bucket)
		if err != nil {
			_ = db.Close()
			return nil, nil, err
		}
		return store, func() {
			if err := db.Close(); err != nil {
				log.WithField("err", err).Warn("Could not close boltdb database")
			}
		}, nil
	case "s3":
		return storage.NewS3(c.Backend.Profile, c.Backend.Region, c.Backend.S3Bucket, c.Backend.Prefix, c.Backend.RequestsPerSecond), nothing, nil
	default:
		return nil, nil, fmt.Errorf("unknown backend type: %q", c.Backend.Type)
	}
}
