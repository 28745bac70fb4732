package storage

import (
	"errors"
	"fmt"
)

// ErrDocumentMissing is wrapped by a ReadError when the backing document does
// not exist.
var ErrDocumentMissing = errors.New("document does not exist")

// ReadError reports a document that is missing or cannot be read.
type ReadError struct {
	Document string
	Err      error
}

func (e *ReadError) Error() string {
	return fmt.Sprintf("read %s document: %v", e.Document, e.Err)
}

func (e *ReadError) Unwrap() error { return e.Err }

// FormatError reports a document whose content does not decode into the
// expected record shape.
type FormatError struct {
	Document string
	Err      error
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("decode %s document: %v", e.Document, e.Err)
}

func (e *FormatError) Unwrap() error { return e.Err }

// WriteError reports a failure to encode or persist a document.
type WriteError struct {
	Document string
	Err      error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("write %s document: %v", e.Document, e.Err)
}

func (e *WriteError) Unwrap() error { return e.Err }
