package objects

import (
	"encoding/binary"
	"time"

	"github.com/google/uuid"
)

// Metadata describes a stored object. It is written once, after all of the
// object's chunks, and never updated.
type Metadata struct {
	ID           string    `json:"id"`
	Filename     string    `json:"filename"`
	OriginalName string    `json:"originalName"`
	ContentType  string    `json:"contentType"`
	Length       int64     `json:"length"`
	ChunkSize    int       `json:"chunkSize"`
	UploadedAt   time.Time `json:"uploadedAt"`

	// Codec requested when the object was written. Each chunk records the
	// codec actually applied to it.
	Compression string `json:"compression,omitempty"`
}

// IsImage reports whether the object can be rendered inline.
func (m *Metadata) IsImage() bool {
	return IsImage(m.ContentType)
}

// ChunkCount is the number of chunks the object's length implies.
func (m *Metadata) ChunkCount() uint64 {
	if m.Length <= 0 || m.ChunkSize <= 0 {
		return 0
	}
	size := int64(m.ChunkSize)
	return uint64((m.Length + size - 1) / size)
}

// expectedChunkLength is the raw length chunk seq must have.
func (m *Metadata) expectedChunkLength(seq uint64) int {
	if seq+1 < m.ChunkCount() {
		return m.ChunkSize
	}
	return int(m.Length - int64(seq)*int64(m.ChunkSize))
}

// IsImage reports whether contentType is one of the types served inline.
func IsImage(contentType string) bool {
	return contentType == "image/jpeg" || contentType == "image/png"
}

// Records of all objects share one namespace:
//
//	f/<id>               metadata, JSON
//	n/<filename>         id of the object with that filename
//	c/<id><seq>          chunk record; id is 16 raw bytes, seq 8 bytes big-endian
const (
	metadataPrefix = "f/"
	namePrefix     = "n/"
	chunkPrefix    = "c/"
)

func metadataKey(id string) []byte {
	return []byte(metadataPrefix + id)
}

func nameKey(filename string) []byte {
	return []byte(namePrefix + filename)
}

func chunkKeyPrefix(id uuid.UUID) []byte {
	key := make([]byte, 0, len(chunkPrefix)+len(id)+8)
	key = append(key, chunkPrefix...)
	return append(key, id[:]...)
}

func chunkKey(id uuid.UUID, seq uint64) []byte {
	key := chunkKeyPrefix(id)
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], seq)
	return append(key, b[:]...)
}
