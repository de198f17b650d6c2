package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/nicolagi/uploads/objects"
	"github.com/nicolagi/uploads/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	pathname := filepath.Join(t.TempDir(), "uploadserver.config")
	require.Nil(t, os.WriteFile(pathname, []byte(content), 0600))
	return pathname
}

func TestLoadConfig(t *testing.T) {
	t.Run("relaxed json", func(t *testing.T) {
		c, err := loadConfig(writeConfig(t, `{
			listen: "127.0.0.1:8080"
			debug: true
			chunk_size: 1024
			compression: "lz4"
			backend: {
				type: "s3"
				region: "eu-west-2"
				s3_bucket: "uploads"
				requests_per_second: 50
			}
		}`))
		require.Nil(t, err)
		c.applyDefaultsForMissingProperties()
		require.Nil(t, c.validate())
		assert.Equal(t, "127.0.0.1:8080", c.Listen)
		assert.True(t, c.Debug)
		assert.Equal(t, 1024, c.ChunkSize)
		assert.Equal(t, "lz4", c.Compression)
		assert.Equal(t, "s3", c.Backend.Type)
		assert.Equal(t, "uploads", c.Backend.S3Bucket)
		assert.Equal(t, "uploads/", c.Backend.Prefix)
		assert.EqualValues(t, 50, c.Backend.RequestsPerSecond)
	})
	t.Run("defaults", func(t *testing.T) {
		c, err := loadConfig(writeConfig(t, `{}`))
		require.Nil(t, err)
		c.applyDefaultsForMissingProperties()
		require.Nil(t, c.validate())
		assert.Equal(t, ":5000", c.Listen)
		assert.Equal(t, objects.DefaultChunkSize, c.ChunkSize)
		assert.Equal(t, "bolt", c.Backend.Type)
		assert.Equal(t, os.ExpandEnv("$HOME/lib/uploads/uploads.db"), c.Backend.Path)
	})
	t.Run("missing file", func(t *testing.T) {
		_, err := loadConfig(filepath.Join(t.TempDir(), "nope"))
		assert.True(t, os.IsNotExist(err))
	})
	t.Run("invalid", func(t *testing.T) {
		for _, content := range []string{
			`{compression: "brotli"}`,
			`{chunk_size: 67108865}`,
			`{chunk_size: 5000000000}`,
			`{backend: {type: "ftp"}}`,
			`{backend: {type: "s3"}}`,
		} {
			c, err := loadConfig(writeConfig(t, content))
			require.Nil(t, err)
			c.applyDefaultsForMissingProperties()
			assert.NotNil(t, c.validate(), content)
		}
	})
}

func TestOpenBackend(t *testing.T) {
	for _, backendType := range []string{"memory", "disk", "bolt"} {
		t.Run(backendType, func(t *testing.T) {
			c := new(config)
			c.Backend.Type = backendType
			c.Backend.Path = filepath.Join(t.TempDir(), "nested", "uploads")
			c.applyDefaultsForMissingProperties()
			store, release, err := openBackend(c)
			require.Nil(t, err)
			defer release()
			require.Nil(t, store.Put([]byte("key"), []byte("value")))
			value, err := store.Get([]byte("key"))
			require.Nil(t, err)
			assert.Equal(t, []byte("value"), value)
		})
	}
	t.Run("s3 is lazy", func(t *testing.T) {
		c := new(config)
		c.Backend.Type = "s3"
		c.Backend.Region = "eu-west-2"
		c.Backend.S3Bucket = "uploads"
		store, release, err := openBackend(c)
		require.Nil(t, err)
		defer release()
		assert.IsType(t, &storage.S3{}, store)
	})
	t.Run("unknown", func(t *testing.T) {
		c := new(config)
		c.Backend.Type = "ftp"
		_, _, err := openBackend(c)
		assert.NotNil(t, err)
	})
}
