package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"
)

// Feed is a subscribed source as persisted in the feeds document.
type Feed struct {
	ID        int64     `json:"id"`
	Category  string    `json:"category"`
	Name      string    `json:"name"`
	URL       string    `json:"url"`
	CreatedAt time.Time `json:"created_at"`
}

// Article is one captured item as persisted in the articles document.
type Article struct {
	ID        int64     `json:"id"`
	FeedID    int64     `json:"feed_id"`
	Title     string    `json:"title"`
	Summary   string    `json:"summary"`
	Link      string    `json:"link"`
	PubDate   time.Time `json:"pub_date"`
	CreatedAt time.Time `json:"created_at"`
}

// Sequence is a persisted high-water mark: the largest id ever handed out
// for the named collection, kept so ids stay unique after removals.
type Sequence struct {
	Name   string `json:"name"`
	LastID int64  `json:"last_id"`
}

// Document is a durable collection of records of one type, stored as a single
// serialized document. Reads and writes always cover the full collection.
//
// Writes go through a backend transaction, so an Update excludes concurrent
// Updates of the same document both within the process (the document's
// mutex) and across processes sharing the store (the backend's lock).
type Document[T any] struct {
	name    string
	backend Backend
	mu      sync.Mutex
}

// NewDocument creates a document named name (used in error messages and as
// the backend key) persisted through backend.
func NewDocument[T any](name string, backend Backend) *Document[T] {
	return &Document[T]{name: name, backend: backend}
}

// Name returns the document name.
func (d *Document[T]) Name() string {
	return d.name
}

// Load reads and decodes the full collection. It takes no lock: writers
// replace the document atomically, so a reader sees either the old or the
// new collection.
func (d *Document[T]) Load(ctx context.Context) ([]T, error) {
	data, err := d.backend.Read(ctx, d.name)
	if err != nil {
		return nil, &ReadError{Document: d.name, Err: err}
	}
	return d.decode(data)
}

// Save encodes and writes the full collection, replacing prior content.
func (d *Document[T]) Save(ctx context.Context, records []T) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	tx, err := d.backend.Begin(ctx, d.name)
	if err != nil {
		return &WriteError{Document: d.name, Err: err}
	}
	if err := d.write(ctx, tx, records); err != nil {
		tx.Rollback()
		return err
	}
	return d.commit(tx)
}

// Update performs a read-modify-write cycle under the document lock. fn
// receives the current collection and returns the replacement; when changed
// is false nothing is written.
func (d *Document[T]) Update(ctx context.Context, fn func(records []T) (updated []T, changed bool, err error)) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	tx, err := d.backend.Begin(ctx, d.name)
	if err != nil {
		return &ReadError{Document: d.name, Err: err}
	}
	records, err := d.read(ctx, tx)
	if err != nil {
		tx.Rollback()
		return err
	}
	updated, changed, err := fn(records)
	if err != nil {
		tx.Rollback()
		return err
	}
	if !changed {
		return tx.Rollback()
	}
	if err := d.write(ctx, tx, updated); err != nil {
		tx.Rollback()
		return err
	}
	return d.commit(tx)
}

// Bootstrap writes an empty collection when the document does not exist yet.
// It reports whether a new document was created. An existing document is left
// untouched, even if it is empty.
func (d *Document[T]) Bootstrap(ctx context.Context) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	tx, err := d.backend.Begin(ctx, d.name)
	if err != nil {
		return false, &ReadError{Document: d.name, Err: err}
	}
	_, err = d.read(ctx, tx)
	if err == nil {
		return false, tx.Rollback()
	}
	if !errors.Is(err, ErrDocumentMissing) {
		tx.Rollback()
		return false, err
	}
	if err := d.write(ctx, tx, []T{}); err != nil {
		tx.Rollback()
		return false, err
	}
	if err := d.commit(tx); err != nil {
		return false, err
	}
	return true, nil
}

func (d *Document[T]) read(ctx context.Context, tx Tx) ([]T, error) {
	data, err := tx.Read(ctx)
	if err != nil {
		return nil, &ReadError{Document: d.name, Err: err}
	}
	return d.decode(data)
}

func (d *Document[T]) decode(data []byte) ([]T, error) {
	var records []T
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, &FormatError{Document: d.name, Err: err}
	}
	if records == nil {
		records = []T{}
	}
	return records, nil
}

func (d *Document[T]) write(ctx context.Context, tx Tx, records []T) error {
	if records == nil {
		records = []T{}
	}
	data, err := json.Marshal(records)
	if err != nil {
		return &WriteError{Document: d.name, Err: fmt.Errorf("encode: %w", err)}
	}
	if err := tx.Write(ctx, data); err != nil {
		return &WriteError{Document: d.name, Err: err}
	}
	return nil
}

func (d *Document[T]) commit(tx Tx) error {
	if err := tx.Commit(); err != nil {
		return &WriteError{Document: d.name, Err: err}
	}
	return nil
}
