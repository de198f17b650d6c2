package objects

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound indicates no object has the requested filename or id.
	ErrNotFound = errors.New("no such object")

	// ErrNotAnImage is returned by OpenImage for objects whose content type
	// cannot be rendered inline.
	ErrNotAnImage = errors.New("not an image")
)

// WriteError reports a failed Write. No metadata record is left behind for
// the object, so it is not addressable.
type WriteError struct {
	Op       string
	Filename string
	Err      error
}

func (e *WriteError) Error() string {
	if e.Filename == "" {
		return fmt.Sprintf("write: %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("write %s: %s: %v", e.Filename, e.Op, e.Err)
}

func (e *WriteError) Unwrap() error {
	return e.Err
}

// ReadError reports a missing or corrupt chunk found while streaming.
type ReadError struct {
	Filename string
	Seq      uint64
	Err      error
}

func (e *ReadError) Error() string {
	return fmt.Sprintf("read %s: chunk %d: %v", e.Filename, e.Seq, e.Err)
}

func (e *ReadError) Unwrap() error {
	return e.Err
}
