package objects

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/google/uuid"
	"github.com/nicolagi/uploads/storage"
)

// Stream yields the chunks of an object in sequence order, fetching each
// one only when asked for it. It is forward-only and cannot be restarted.
//
//	stream, err := store.OpenReadStream(ctx, filename)
//	if err != nil {
//		return err
//	}
//	defer stream.Close()
//	for stream.Next() {
//		process(stream.Chunk())
//	}
//	return stream.Err()
//
// Stream also implements io.Reader for use with io.Copy.
type Stream struct {
	ctx   context.Context
	store *Store
	meta  *Metadata
	id    uuid.UUID
	count uint64

	next    uint64
	chunk   []byte
	pending []byte
	err     error
	closed  bool
}

// Metadata returns the metadata of the object being read.
func (s *Stream) Metadata() *Metadata {
	return s.meta
}

// Next fetches the next chunk. It returns false when the object is
// exhausted, the stream is closed, or an error occurred; check Err.
func (s *Stream) Next() bool {
	s.chunk = nil
	if s.closed || s.err != nil || s.next >= s.count {
		return false
	}
	if err := s.ctx.Err(); err != nil {
		s.err = err
		return false
	}
	seq := s.next
	record, err := s.store.backend.Get(chunkKey(s.id, seq))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			err = fmt.Errorf("missing: %w", err)
		}
		return s.fail(seq, err)
	}
	payload, err := decodeChunk(record, s.meta.expectedChunkLength(seq))
	if err != nil {
		return s.fail(seq, err)
	}
	s.next++
	s.chunk = payload
	s.store.metrics.bytesRead.Add(float64(len(payload)))
	return true
}

func (s *Stream) fail(seq uint64, err error) bool {
	s.err = &ReadError{Filename: s.meta.Filename, Seq: seq, Err: err}
	s.store.metrics.readErrors.Inc()
	return false
}

// Chunk returns the chunk fetched by the last successful call to Next.
func (s *Stream) Chunk() []byte {
	return s.chunk
}

// Err returns the error that stopped the stream, if any. It is nil when the
// object was read to the end.
func (s *Stream) Err() error {
	return s.err
}

var errStreamClosed = errors.New("read on closed stream")

func (s *Stream) Read(p []byte) (n int, err error) {
	if s.closed {
		return 0, errStreamClosed
	}
	for len(s.pending) == 0 {
		if !s.Next() {
			if s.err != nil {
				return 0, s.err
			}
			return 0, io.EOF
		}
		s.pending = s.chunk
	}
	n = copy(p, s.pending)
	s.pending = s.pending[n:]
	return n, nil
}

// Close releases the stream. It is safe to call more than once, and before
// the object has been read to the end.
func (s *Stream) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	s.chunk = nil
	s.pending = nil
	s.store.metrics.openStreams.Dec()
	return nil
}
