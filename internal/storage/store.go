package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
)

// lockRetry is how often a contended file lock is retried.
const lockRetry = 10 * time.Millisecond

// Backend persists named documents as opaque byte payloads.
type Backend interface {
	// Read returns the payload stored under name, or an error wrapping
	// ErrDocumentMissing when nothing has been written yet.
	Read(ctx context.Context, name string) ([]byte, error)
	// Write replaces the payload stored under name.
	Write(ctx context.Context, name string, data []byte) error
	// Begin starts a read-modify-write cycle on name that excludes other
	// transactions on the same document, including those of other
	// processes sharing the store.
	Begin(ctx context.Context, name string) (Tx, error)
	Close() error
}

// Tx is an exclusive read-modify-write cycle on one document. Exactly one of
// Commit or Rollback must be called.
type Tx interface {
	Read(ctx context.Context) ([]byte, error)
	Write(ctx context.Context, data []byte) error
	Commit() error
	Rollback() error
}

// FileBackend stores each document as a file in a directory.
type FileBackend struct {
	dir string
}

// NewFileBackend creates a backend rooted at dir. The directory is created on
// first write.
func NewFileBackend(dir string) *FileBackend {
	return &FileBackend{dir: dir}
}

// Path returns the file path used for the named document.
func (b *FileBackend) Path(name string) string {
	return filepath.Join(b.dir, name)
}

func (b *FileBackend) Read(ctx context.Context, name string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(b.Path(name))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%s: %w", b.Path(name), ErrDocumentMissing)
	}
	if err != nil {
		return nil, err
	}
	return data, nil
}

// Write replaces the document atomically: the payload goes to a temporary
// file in the same directory which is synced and renamed over the target.
func (b *FileBackend) Write(ctx context.Context, name string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := os.MkdirAll(b.dir, 0o755); err != nil {
		return fmt.Errorf("create data directory: %w", err)
	}

	tmp, err := os.CreateTemp(b.dir, "."+name+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	cleanup := func() {
		tmp.Close()
		os.Remove(tmpName)
	}

	if _, err := tmp.Write(data); err != nil {
		cleanup()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		cleanup()
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if err := os.Rename(tmpName, b.Path(name)); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replace %s: %w", b.Path(name), err)
	}
	return nil
}

// LockPath returns the path of the advisory lock file guarding name.
func (b *FileBackend) LockPath(name string) string {
	return filepath.Join(b.dir, "."+name+".lock")
}

// Begin takes an advisory lock on the document's lock file, waiting until
// ctx ends for a holder in another process to release it.
func (b *FileBackend) Begin(ctx context.Context, name string) (Tx, error) {
	if err := os.MkdirAll(b.dir, 0o755); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}
	lock := flock.New(b.LockPath(name))
	locked, err := lock.TryLockContext(ctx, lockRetry)
	if err != nil {
		return nil, fmt.Errorf("lock %s: %w", name, err)
	}
	if !locked {
		return nil, fmt.Errorf("lock %s: %w", name, ctx.Err())
	}
	return &fileTx{backend: b, name: name, lock: lock}, nil
}

func (b *FileBackend) Close() error { return nil }

type fileTx struct {
	backend *FileBackend
	name    string
	lock    *flock.Flock
}

func (t *fileTx) Read(ctx context.Context) ([]byte, error) {
	return t.backend.Read(ctx, t.name)
}

func (t *fileTx) Write(ctx context.Context, data []byte) error {
	return t.backend.Write(ctx, t.name, data)
}

// Commit releases the lock. Writes are already durable when they return.
func (t *fileTx) Commit() error {
	return t.lock.Close()
}

func (t *fileTx) Rollback() error {
	return t.lock.Close()
}
