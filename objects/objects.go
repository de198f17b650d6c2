// Package objects stores arbitrarily large binary objects in a
// storage.Store, split into fixed-size chunk records plus one metadata
// record per object.
//
// An object becomes visible only when its metadata record is written, which
// happens after the last chunk. A failed write therefore never leaves an
// object that looks complete. Delete removes the metadata record first, so
// the object disappears before its chunks do.
package objects

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"

	"github.com/google/uuid"
	"github.com/nicolagi/uploads/storage"
	log "github.com/sirupsen/logrus"
)

// Store is safe for concurrent use. It keeps no state besides the backing
// storage.Store, which it does not own.
type Store struct {
	backend storage.Store
	opts    options
	metrics *metrics
}

func New(backend storage.Store, opts ...Option) *Store {
	s := &Store{
		backend: backend,
		opts:    defaultOptions(),
	}
	for _, o := range opts {
		o(&s.opts)
	}
	s.metrics = newMetrics(s.opts.registerer)
	return s
}

// Write stores the content of r as a new object under a freshly generated
// filename. The content is consumed one chunk at a time.
func (s *Store) Write(ctx context.Context, originalName, contentType string, r io.Reader) (*Metadata, error) {
	filename, err := newFilename(s.opts.random, originalName)
	if err != nil {
		return nil, s.writeFailed(&WriteError{Op: "generate filename", Err: err})
	}
	id, err := uuid.NewRandomFromReader(s.opts.random)
	if err != nil {
		return nil, s.writeFailed(&WriteError{Op: "generate id", Filename: filename, Err: err})
	}
	meta := &Metadata{
		ID:           id.String(),
		Filename:     filename,
		OriginalName: originalName,
		ContentType:  contentType,
		ChunkSize:    s.opts.chunkSize,
		UploadedAt:   s.opts.now().UTC(),
		Compression:  s.opts.compression.String(),
	}
	logger := s.opts.logger.WithFields(log.Fields{
		"op":       "write",
		"id":       meta.ID,
		"filename": filename,
	})

	var seq uint64
	fail := func(op string, err error) (*Metadata, error) {
		s.discard(logger, id, seq)
		return nil, s.writeFailed(&WriteError{Op: op, Filename: filename, Err: err})
	}

	buf := make([]byte, s.opts.chunkSize)
	for {
		if err := ctx.Err(); err != nil {
			return fail("read", err)
		}
		n, rerr := io.ReadFull(r, buf)
		if n > 0 {
			record, err := encodeChunk(buf[:n], s.opts.compression)
			if err != nil {
				return fail("encode chunk", err)
			}
			if err := s.backend.Put(chunkKey(id, seq), record); err != nil {
				op := fmt.Sprintf("put chunk %d", seq)
				// The failed put may have been applied anyway.
				seq++
				return fail(op, err)
			}
			seq++
			meta.Length += int64(n)
			s.metrics.chunksWritten.Inc()
			s.metrics.bytesWritten.Add(float64(n))
		}
		if rerr == io.EOF || rerr == io.ErrUnexpectedEOF {
			break
		}
		if rerr != nil {
			return fail("read", rerr)
		}
	}

	encoded, err := json.Marshal(meta)
	if err != nil {
		return fail("encode metadata", err)
	}
	if err := s.backend.Put(nameKey(filename), []byte(meta.ID)); err != nil {
		return fail("put filename", err)
	}
	// The commit point.
	if err := s.backend.Put(metadataKey(meta.ID), encoded); err != nil {
		if derr := s.backend.Delete(nameKey(filename)); derr != nil && !errors.Is(derr, storage.ErrNotFound) {
			logger.WithField("err", derr).Warn("Could not remove filename of failed write")
		}
		return fail("put metadata", err)
	}
	s.metrics.objectsWritten.Inc()
	logger.WithFields(log.Fields{
		"length": meta.Length,
		"chunks": seq,
	}).Debug("Stored")
	return meta, nil
}

func (s *Store) writeFailed(err *WriteError) error {
	s.metrics.writeErrors.Inc()
	return err
}

// discard removes the first n chunks of a failed write. Leftovers are not
// reachable, so failures are only logged.
func (s *Store) discard(logger *log.Entry, id uuid.UUID, n uint64) {
	for seq := uint64(0); seq < n; seq++ {
		if err := s.backend.Delete(chunkKey(id, seq)); err != nil && !errors.Is(err, storage.ErrNotFound) {
			logger.WithFields(log.Fields{
				"err": err,
				"seq": seq,
			}).Warn("Could not discard chunk of failed write")
		}
	}
}

// List returns the metadata of all objects, oldest first. The result is a
// snapshot; objects written or deleted meanwhile may or may not be included.
func (s *Store) List(ctx context.Context) ([]*Metadata, error) {
	keys, err := s.backend.Keys([]byte(metadataPrefix))
	if err != nil {
		return nil, fmt.Errorf("list: %w", err)
	}
	all := make([]*Metadata, 0, len(keys))
	for _, key := range keys {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		meta, err := s.metadata(key)
		if errors.Is(err, ErrNotFound) {
			// Deleted since we listed the keys.
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("list: %w", err)
		}
		all = append(all, meta)
	}
	sort.SliceStable(all, func(i, j int) bool {
		if !all[i].UploadedAt.Equal(all[j].UploadedAt) {
			return all[i].UploadedAt.Before(all[j].UploadedAt)
		}
		return all[i].Filename < all[j].Filename
	})
	return all, nil
}

// FindByFilename returns the metadata of the object with the given
// generated filename, or ErrNotFound.
func (s *Store) FindByFilename(ctx context.Context, filename string) (*Metadata, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	id, err := s.backend.Get(nameKey(filename))
	if errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("%q: %w", filename, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("find %q: %w", filename, err)
	}
	meta, err := s.metadata(metadataKey(string(id)))
	if errors.Is(err, ErrNotFound) {
		// A write that has not committed yet, or a delete in progress.
		return nil, fmt.Errorf("%q: %w", filename, ErrNotFound)
	}
	return meta, err
}

func (s *Store) metadata(key []byte) (*Metadata, error) {
	value, err := s.backend.Get(key)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("%s: %w", key, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	var meta Metadata
	if err := json.Unmarshal(value, &meta); err != nil {
		return nil, fmt.Errorf("decode %s: %w", key, err)
	}
	return &meta, nil
}

// OpenReadStream returns a stream over the content of the object with the
// given filename. The caller must close it.
func (s *Store) OpenReadStream(ctx context.Context, filename string) (*Stream, error) {
	meta, err := s.FindByFilename(ctx, filename)
	if err != nil {
		return nil, err
	}
	return s.openStream(ctx, meta)
}

// OpenImage is like OpenReadStream, but fails with ErrNotAnImage unless the
// object can be rendered inline.
func (s *Store) OpenImage(ctx context.Context, filename string) (*Stream, error) {
	meta, err := s.FindByFilename(ctx, filename)
	if err != nil {
		return nil, err
	}
	if !meta.IsImage() {
		return nil, fmt.Errorf("%q has type %q: %w", filename, meta.ContentType, ErrNotAnImage)
	}
	return s.openStream(ctx, meta)
}

func (s *Store) openStream(ctx context.Context, meta *Metadata) (*Stream, error) {
	id, err := uuid.Parse(meta.ID)
	if err != nil {
		return nil, &ReadError{Filename: meta.Filename, Err: fmt.Errorf("bad id %q: %w", meta.ID, err)}
	}
	s.metrics.openStreams.Inc()
	return &Stream{
		ctx:   ctx,
		store: s,
		meta:  meta,
		id:    id,
		count: meta.ChunkCount(),
	}, nil
}

// Delete removes the object with the given id, or fails with ErrNotFound.
// Once the metadata record is gone the object is no longer addressable; an
// error after that point means some chunks may remain.
func (s *Store) Delete(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	uid, err := uuid.Parse(id)
	if err != nil {
		return fmt.Errorf("%q: %w", id, ErrNotFound)
	}
	meta, err := s.metadata(metadataKey(uid.String()))
	if err != nil {
		return err
	}
	logger := s.opts.logger.WithFields(log.Fields{
		"op":       "delete",
		"id":       meta.ID,
		"filename": meta.Filename,
	})
	if err := s.backend.Delete(metadataKey(meta.ID)); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			// Lost a race with another delete.
			return fmt.Errorf("%q: %w", id, ErrNotFound)
		}
		return fmt.Errorf("delete %q: %w", id, err)
	}
	if err := s.backend.Delete(nameKey(meta.Filename)); err != nil && !errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("delete %q: filename: %w", id, err)
	}
	// Listing rather than counting also catches chunks left by failed writes.
	keys, err := s.backend.Keys(chunkKeyPrefix(uid))
	if err != nil {
		return fmt.Errorf("delete %q: list chunks: %w", id, err)
	}
	for _, key := range keys {
		if err := s.backend.Delete(key); err != nil && !errors.Is(err, storage.ErrNotFound) {
			return fmt.Errorf("delete %q: chunk: %w", id, err)
		}
	}
	s.metrics.objectsDeleted.Inc()
	logger.WithField("chunks", len(keys)).Debug("Deleted")
	return nil
}
