package objects

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"runtime"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/nicolagi/uploads/storage"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChunkCodec(t *testing.T) {
	compressible := bytes.Repeat([]byte("compress me "), 100)
	incompressible := []byte("xyz")
	for _, c := range []Compression{CompressionNone, CompressionLZ4, CompressionZstd} {
		t.Run(c.String(), func(t *testing.T) {
			record, err := encodeChunk(compressible, c)
			require.Nil(t, err)
			assert.EqualValues(t, c, record[0])
			if c != CompressionNone {
				assert.Less(t, len(record), len(compressible))
			}
			payload, err := decodeChunk(record, len(compressible))
			require.Nil(t, err)
			assert.Equal(t, compressible, payload)

			record, err = encodeChunk(incompressible, c)
			require.Nil(t, err)
			assert.EqualValues(t, CompressionNone, record[0])
			assert.Len(t, record, chunkHeaderSize+len(incompressible))
			payload, err = decodeChunk(record, len(incompressible))
			require.Nil(t, err)
			assert.Equal(t, incompressible, payload)
		})
	}
}

func TestChunkCodecRejectsCorruption(t *testing.T) {
	raw := bytes.Repeat([]byte("abc"), 50)
	for _, c := range []Compression{CompressionLZ4, CompressionZstd} {
		record, err := encodeChunk(raw, c)
		require.Nil(t, err)
		require.EqualValues(t, c, record[0])

		for name, mutate := range map[string]func([]byte) []byte{
			"short header": func(r []byte) []byte { return r[:chunkHeaderSize-1] },
			"truncated":    func(r []byte) []byte { return r[:len(r)-2] },
			"unknown tag":  func(r []byte) []byte { r[0] = 9; return r },
			"bad checksum": func(r []byte) []byte { r[1] ^= 1; return r },
			"bad length":   func(r []byte) []byte { r[12]++; return r },
			"inflated length": func(r []byte) []byte {
				binary.BigEndian.PutUint32(r[9:13], 0xF0000000)
				return r
			},
		} {
			t.Run(c.String()+"/"+name, func(t *testing.T) {
				corrupt := mutate(append([]byte{}, record...))
				_, err := decodeChunk(corrupt, len(raw))
				assert.True(t, errors.Is(err, errCorruptChunk), "got %v", err)
			})
		}

		t.Run(c.String()+"/unexpected length", func(t *testing.T) {
			_, err := decodeChunk(record, len(raw)+1)
			assert.True(t, errors.Is(err, errCorruptChunk), "got %v", err)
		})
	}
}

func TestChunkCodecChecksLengthBeforeAllocating(t *testing.T) {
	record, err := encodeChunk(bytes.Repeat([]byte("abc"), 50), CompressionLZ4)
	require.Nil(t, err)
	binary.BigEndian.PutUint32(record[9:13], 0xF0000000)

	var before, after runtime.MemStats
	runtime.ReadMemStats(&before)
	_, err = decodeChunk(record, 150)
	runtime.ReadMemStats(&after)
	assert.True(t, errors.Is(err, errCorruptChunk), "got %v", err)
	assert.Less(t, after.TotalAlloc-before.TotalAlloc, uint64(1<<20))
}

func TestParseCompression(t *testing.T) {
	for _, c := range []Compression{CompressionNone, CompressionLZ4, CompressionZstd} {
		parsed, err := ParseCompression(c.String())
		require.Nil(t, err)
		assert.Equal(t, c, parsed)
	}
	parsed, err := ParseCompression("")
	require.Nil(t, err)
	assert.Equal(t, CompressionNone, parsed)
	_, err = ParseCompression("brotli")
	assert.NotNil(t, err)
}

func TestChunkKeysSortBySequence(t *testing.T) {
	id := uuid.New()
	prev := chunkKey(id, 0)
	for _, seq := range []uint64{1, 255, 256, 65536, 1 << 40} {
		key := chunkKey(id, seq)
		assert.True(t, bytes.HasPrefix(key, chunkKeyPrefix(id)))
		assert.Equal(t, 1, bytes.Compare(key, prev))
		prev = key
	}
}

func TestMetrics(t *testing.T) {
	ctx := context.Background()
	reg := prometheus.NewPedanticRegistry()
	store := New(storage.NewInMemoryStore(), WithChunkSize(4), WithRegisterer(reg))

	meta, err := store.Write(ctx, "a.txt", "text/plain", strings.NewReader("0123456789"))
	require.Nil(t, err)
	assert.EqualValues(t, 1, testutil.ToFloat64(store.metrics.objectsWritten))
	assert.EqualValues(t, 3, testutil.ToFloat64(store.metrics.chunksWritten))
	assert.EqualValues(t, 10, testutil.ToFloat64(store.metrics.bytesWritten))

	stream, err := store.OpenReadStream(ctx, meta.Filename)
	require.Nil(t, err)
	assert.EqualValues(t, 1, testutil.ToFloat64(store.metrics.openStreams))
	require.True(t, stream.Next())
	require.Nil(t, stream.Close())
	require.Nil(t, stream.Close())
	assert.EqualValues(t, 0, testutil.ToFloat64(store.metrics.openStreams))
	assert.EqualValues(t, 4, testutil.ToFloat64(store.metrics.bytesRead))

	require.Nil(t, store.Delete(ctx, meta.ID))
	assert.EqualValues(t, 1, testutil.ToFloat64(store.metrics.objectsDeleted))

	// A second store on the same registry shares the collectors.
	other := New(storage.NewInMemoryStore(), WithRegisterer(reg))
	_, err = other.Write(ctx, "b.txt", "text/plain", strings.NewReader("b"))
	require.Nil(t, err)
	assert.EqualValues(t, 2, testutil.ToFloat64(store.metrics.objectsWritten))

	count, err := testutil.GatherAndCount(reg)
	require.Nil(t, err)
	assert.Equal(t, 8, count)
}
