package objects

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/cespare/xxhash/v2"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Compression identifies the codec applied to a chunk payload. The value is
// stored in every chunk record, so existing values must never change.
type Compression uint8

const (
	CompressionNone Compression = 0
	CompressionLZ4  Compression = 1
	CompressionZstd Compression = 2
)

func (c Compression) String() string {
	switch c {
	case CompressionNone:
		return "none"
	case CompressionLZ4:
		return "lz4"
	case CompressionZstd:
		return "zstd"
	default:
		return fmt.Sprintf("unknown(%d)", c)
	}
}

// ParseCompression parses the names returned by Compression.String. The
// empty string means no compression.
func ParseCompression(name string) (Compression, error) {
	switch name {
	case "", "none":
		return CompressionNone, nil
	case "lz4":
		return CompressionLZ4, nil
	case "zstd":
		return CompressionZstd, nil
	default:
		return 0, fmt.Errorf("unknown compression: %q", name)
	}
}

// Chunk records are laid out as:
//
//	[0]     compression tag
//	[1:9]   xxhash64 of the raw payload, big-endian
//	[9:13]  raw payload length, big-endian
//	[13:]   payload, possibly compressed
const chunkHeaderSize = 13

var (
	errCorruptChunk   = errors.New("corrupt chunk")
	errIncompressible = errors.New("incompressible")
)

// Safe for concurrent use.
var (
	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder
)

func init() {
	var err error
	zstdEncoder, err = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		panic("objects: zstd encoder: " + err.Error())
	}
	zstdDecoder, err = zstd.NewReader(nil)
	if err != nil {
		panic("objects: zstd decoder: " + err.Error())
	}
}

// encodeChunk frames payload as a chunk record. Payloads that do not shrink
// under the requested codec are stored uncompressed.
func encodeChunk(payload []byte, c Compression) ([]byte, error) {
	body, tag := payload, CompressionNone
	if c != CompressionNone {
		compressed, err := compress(payload, c)
		switch {
		case err == nil:
			body, tag = compressed, c
		case !errors.Is(err, errIncompressible):
			return nil, err
		}
	}
	record := make([]byte, chunkHeaderSize+len(body))
	record[0] = byte(tag)
	binary.BigEndian.PutUint64(record[1:9], xxhash.Sum64(payload))
	binary.BigEndian.PutUint32(record[9:13], uint32(len(payload)))
	copy(record[chunkHeaderSize:], body)
	return record, nil
}

// decodeChunk returns the raw payload of a chunk record, verifying its length
// and checksum. The length in the header must be want; it is checked before
// anything is allocated.
func decodeChunk(record []byte, want int) ([]byte, error) {
	if len(record) < chunkHeaderSize {
		return nil, fmt.Errorf("%w: short header (%d bytes)", errCorruptChunk, len(record))
	}
	tag := Compression(record[0])
	sum := binary.BigEndian.Uint64(record[1:9])
	size := int(binary.BigEndian.Uint32(record[9:13]))
	if size != want {
		return nil, fmt.Errorf("%w: length %d, want %d", errCorruptChunk, size, want)
	}
	payload, err := decompress(record[chunkHeaderSize:], tag, size)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errCorruptChunk, err)
	}
	if got := xxhash.Sum64(payload); got != sum {
		return nil, fmt.Errorf("%w: checksum %016x, want %016x", errCorruptChunk, got, sum)
	}
	return payload, nil
}

func compress(data []byte, c Compression) ([]byte, error) {
	switch c {
	case CompressionLZ4:
		destination := make([]byte, lz4.CompressBlockBound(len(data)))
		written, err := lz4.CompressBlock(data, destination, nil)
		if err != nil {
			return nil, fmt.Errorf("lz4 compress: %w", err)
		}
		if written == 0 || written >= len(data) {
			return nil, errIncompressible
		}
		return destination[:written], nil
	case CompressionZstd:
		compressed := zstdEncoder.EncodeAll(data, nil)
		if len(compressed) >= len(data) {
			return nil, errIncompressible
		}
		return compressed, nil
	default:
		return nil, fmt.Errorf("unsupported compression: %v", c)
	}
}

func decompress(body []byte, c Compression, size int) ([]byte, error) {
	switch c {
	case CompressionNone:
		if len(body) != size {
			return nil, fmt.Errorf("size %d, want %d", len(body), size)
		}
		return body, nil
	case CompressionLZ4:
		destination := make([]byte, size)
		read, err := lz4.UncompressBlock(body, destination)
		if err != nil {
			return nil, fmt.Errorf("lz4 decompress: %w", err)
		}
		if read != size {
			return nil, fmt.Errorf("lz4 decompress: got %d bytes, want %d", read, size)
		}
		return destination, nil
	case CompressionZstd:
		result, err := zstdDecoder.DecodeAll(body, make([]byte, 0, size))
		if err != nil {
			return nil, fmt.Errorf("zstd decompress: %w", err)
		}
		if len(result) != size {
			return nil, fmt.Errorf("zstd decompress: got %d bytes, want %d", len(result), size)
		}
		return result, nil
	default:
		return nil, fmt.Errorf("unsupported compression: %v", c)
	}
}
