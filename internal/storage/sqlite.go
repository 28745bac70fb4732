package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"
)

const upsertDocument = `
	INSERT INTO documents (name, body, updated_at)
	VALUES (?, ?, CURRENT_TIMESTAMP)
	ON CONFLICT(name) DO UPDATE SET body = excluded.body, updated_at = excluded.updated_at
`

// SQLiteBackend keeps each document as one row of the documents table.
type SQLiteBackend struct {
	db *sqlx.DB
}

// NewSQLiteBackend opens (creating if needed) the database at dbPath and
// initializes the schema.
func NewSQLiteBackend(dbPath string) (*SQLiteBackend, error) {
	if dir := filepath.Dir(dbPath); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	dsn := dbPath + "?_time_format=sqlite&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	db, err := sqlx.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// A transaction pins its connection while a document is read inside it,
	// so the pool needs room for one writer per document plus readers.
	db.SetMaxOpenConns(8)

	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &SQLiteBackend{db: db}, nil
}

func (b *SQLiteBackend) Read(ctx context.Context, name string) ([]byte, error) {
	var body []byte
	err := b.db.GetContext(ctx, &body, "SELECT body FROM documents WHERE name = ?", name)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s: %w", name, ErrDocumentMissing)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query document: %w", err)
	}
	return body, nil
}

func (b *SQLiteBackend) Write(ctx context.Context, name string, data []byte) error {
	_, err := b.db.ExecContext(ctx, upsertDocument, name, data)
	if err != nil {
		return fmt.Errorf("failed to store document: %w", err)
	}
	return nil
}

// Begin opens a BEGIN IMMEDIATE transaction on a dedicated connection, which
// takes the database write lock up front so a concurrent read-modify-write
// from another connection or process waits instead of overwriting.
func (b *SQLiteBackend) Begin(ctx context.Context, name string) (Tx, error) {
	conn, err := b.db.Connx(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire connection: %w", err)
	}
	if _, err := conn.ExecContext(ctx, "BEGIN IMMEDIATE"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	return &sqliteTx{conn: conn, name: name}, nil
}

func (b *SQLiteBackend) Close() error {
	return b.db.Close()
}

type sqliteTx struct {
	conn *sqlx.Conn
	name string
}

func (t *sqliteTx) Read(ctx context.Context) ([]byte, error) {
	var body []byte
	err := t.conn.GetContext(ctx, &body, "SELECT body FROM documents WHERE name = ?", t.name)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s: %w", t.name, ErrDocumentMissing)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query document: %w", err)
	}
	return body, nil
}

func (t *sqliteTx) Write(ctx context.Context, data []byte) error {
	_, err := t.conn.ExecContext(ctx, upsertDocument, t.name, data)
	if err != nil {
		return fmt.Errorf("failed to store document: %w", err)
	}
	return nil
}

// Commit and Rollback run on a background context so a canceled caller
// cannot leave the connection inside an open transaction.
func (t *sqliteTx) Commit() error {
	defer t.conn.Close()
	if _, err := t.conn.ExecContext(context.Background(), "COMMIT"); err != nil {
		t.conn.ExecContext(context.Background(), "ROLLBACK")
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (t *sqliteTx) Rollback() error {
	defer t.conn.Close()
	if _, err := t.conn.ExecContext(context.Background(), "ROLLBACK"); err != nil {
		return fmt.Errorf("failed to roll back transaction: %w", err)
	}
	return nil
}
