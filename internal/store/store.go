// Package store keeps the builder's bookkeeping in SQLite: ingested
// documents with their content hashes, the chunks cut from them, and a
// record per build run. The vector indices themselves live in their own
// files; this database only answers "what was built, from what, when".
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/hyperjump/tsunagu/internal/models"
)

// ErrNotFound reports a missing record.
var ErrNotFound = errors.New("record not found")

// Store is a SQLite-backed bookkeeping store.
type Store struct {
	db *sql.DB
}

// New opens or creates the database at dbPath and initializes the schema.
// Parent directories are created if they do not exist.
func New(dbPath string) (*Store, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}

	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &Store{db: db}, nil
}

func initSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS documents (
		id TEXT PRIMARY KEY,
		title TEXT,
		path TEXT,
		content_hash TEXT NOT NULL,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS chunks (
		id TEXT PRIMARY KEY,
		document_id TEXT NOT NULL,
		position INTEGER NOT NULL,
		content TEXT NOT NULL,
		FOREIGN KEY (document_id) REFERENCES documents(id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_chunks_document ON chunks(document_id, position);

	CREATE TABLE IF NOT EXISTS build_runs (
		id TEXT PRIMARY KEY,
		mode TEXT NOT NULL,
		source TEXT,
		status TEXT NOT NULL,
		error TEXT,
		chunks INTEGER NOT NULL DEFAULT 0,
		vertices INTEGER NOT NULL DEFAULT 0,
		edges INTEGER NOT NULL DEFAULT 0,
		indexed INTEGER NOT NULL DEFAULT 0,
		warnings TEXT,
		started_at TIMESTAMP NOT NULL,
		finished_at TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_build_runs_started_at ON build_runs(started_at);
	`
	_, err := db.Exec(schema)
	return err
}

// UpsertDocument inserts the document or replaces the existing one with the
// same id, refreshing its content hash and timestamps.
func (s *Store) UpsertDocument(ctx context.Context, doc *models.Document) error {
	now := time.Now()
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = now
	}
	doc.UpdatedAt = now

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO documents (id, title, path, content_hash, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		   title = excluded.title,
		   path = excluded.path,
		   content_hash = excluded.content_hash,
		   updated_at = excluded.updated_at`,
		doc.ID, doc.Title, doc.Path, doc.ContentHash, doc.CreatedAt, doc.UpdatedAt,
	)
	return err
}

// GetDocument returns a document by id, or ErrNotFound.
func (s *Store) GetDocument(ctx context.Context, id string) (*models.Document, error) {
	var doc models.Document
	err := s.db.QueryRowContext(ctx,
		`SELECT id, title, path, content_hash, created_at, updated_at
		 FROM documents WHERE id = ?`, id,
	).Scan(&doc.ID, &doc.Title, &doc.Path, &doc.ContentHash, &doc.CreatedAt, &doc.UpdatedAt)

	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: document %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return &doc, nil
}

// DeleteDocument removes the document and its chunks in one transaction.
// Deleting an unknown id returns ErrNotFound.
func (s *Store) DeleteDocument(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM chunks WHERE document_id = ?`, id); err != nil {
		return err
	}
	result, err := tx.ExecContext(ctx, `DELETE FROM documents WHERE id = ?`, id)
	if err != nil {
		return err
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return fmt.Errorf("%w: document %s", ErrNotFound, id)
	}
	return tx.Commit()
}

// ReplaceChunks deletes the document's chunks and inserts the new set in one
// transaction.
func (s *Store) ReplaceChunks(ctx context.Context, docID string, chunks []models.Chunk) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM chunks WHERE document_id = ?`, docID); err != nil {
		return err
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO chunks (id, document_id, position, content) VALUES (?, ?, ?, ?)`,
	)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, chunk := range chunks {
		if _, err := stmt.ExecContext(ctx, chunk.ID, chunk.DocumentID, chunk.Position, chunk.Content); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// ChunksByDocument returns the document's chunks in position order.
func (s *Store) ChunksByDocument(ctx context.Context, docID string) ([]models.Chunk, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, document_id, position, content
		 FROM chunks WHERE document_id = ? ORDER BY position`, docID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var chunks []models.Chunk
	for rows.Next() {
		var chunk models.Chunk
		if err := rows.Scan(&chunk.ID, &chunk.DocumentID, &chunk.Position, &chunk.Content); err != nil {
			return nil, err
		}
		chunks = append(chunks, chunk)
	}
	return chunks, rows.Err()
}

// CountDocuments returns the total number of documents.
func (s *Store) CountDocuments(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM documents`).Scan(&count)
	return count, err
}

// CountChunks returns the total number of chunks.
func (s *Store) CountChunks(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM chunks`).Scan(&count)
	return count, err
}

// CreateRun inserts a build-run record, usually in the running state.
func (s *Store) CreateRun(ctx context.Context, run *models.BuildRun) error {
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now()
	}
	warnings, err := marshalWarnings(run.Warnings)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO build_runs (id, mode, source, status, error, chunks, vertices, edges, indexed, warnings, started_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.Mode, run.Source, run.Status, run.Error,
		run.Chunks, run.Vertices, run.Edges, run.Indexed, warnings, run.StartedAt,
	)
	return err
}

// FinishRun updates the run's terminal state, counters, and finish time.
func (s *Store) FinishRun(ctx context.Context, run *models.BuildRun) error {
	if run.FinishedAt.IsZero() {
		run.FinishedAt = time.Now()
	}
	warnings, err := marshalWarnings(run.Warnings)
	if err != nil {
		return err
	}
	result, err := s.db.ExecContext(ctx,
		`UPDATE build_runs SET status = ?, error = ?, chunks = ?, vertices = ?, edges = ?, indexed = ?, warnings = ?, finished_at = ?
		 WHERE id = ?`,
		run.Status, run.Error, run.Chunks, run.Vertices, run.Edges, run.Indexed,
		warnings, run.FinishedAt, run.ID,
	)
	if err != nil {
		return err
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return fmt.Errorf("%w: build run %s", ErrNotFound, run.ID)
	}
	return nil
}

// GetRun returns a build run by id, or ErrNotFound.
func (s *Store) GetRun(ctx context.Context, id string) (*models.BuildRun, error) {
	run, err := scanRun(s.db.QueryRowContext(ctx,
		`SELECT id, mode, source, status, error, chunks, vertices, edges, indexed, warnings, started_at, finished_at
		 FROM build_runs WHERE id = ?`, id,
	))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: build run %s", ErrNotFound, id)
	}
	return run, err
}

// RecentRuns returns up to limit runs, newest first.
func (s *Store) RecentRuns(ctx context.Context, limit int) ([]*models.BuildRun, error) {
	if limit < 1 {
		limit = 1
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, mode, source, status, error, chunks, vertices, edges, indexed, warnings, started_at, finished_at
		 FROM build_runs ORDER BY started_at DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []*models.BuildRun
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRun(row rowScanner) (*models.BuildRun, error) {
	var run models.BuildRun
	var errMsg, warnings sql.NullString
	var finished sql.NullTime
	err := row.Scan(&run.ID, &run.Mode, &run.Source, &run.Status, &errMsg,
		&run.Chunks, &run.Vertices, &run.Edges, &run.Indexed, &warnings,
		&run.StartedAt, &finished)
	if err != nil {
		return nil, err
	}
	run.Error = errMsg.String
	if finished.Valid {
		run.FinishedAt = finished.Time
	}
	if warnings.Valid && warnings.String != "" {
		if err := json.Unmarshal([]byte(warnings.String), &run.Warnings); err != nil {
			return nil, fmt.Errorf("decode run warnings: %w", err)
		}
	}
	return &run, nil
}

func marshalWarnings(warnings []string) (string, error) {
	if len(warnings) == 0 {
		return "", nil
	}
	encoded, err := json.Marshal(warnings)
	if err != nil {
		return "", fmt.Errorf("encode run warnings: %w", err)
	}
	return string(encoded), nil
}
