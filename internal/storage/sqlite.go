package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/hyperjump/shirabe/internal/models"
	"github.com/hyperjump/shirabe/internal/vector"
)

// SQLiteStore keeps a snapshot in a single SQLite database file. Save replaces the
// previous snapshot inside one transaction.
type SQLiteStore struct {
	db   *sql.DB
	path string
}

// NewSQLiteStore opens or creates a SQLite database at dbPath and initializes the schema.
// Parent directories are created if they do not exist.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
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

	return &SQLiteStore{db: db, path: dbPath}, nil
}

func initSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS index_metadata (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		body TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS documents (
		position INTEGER PRIMARY KEY,
		id TEXT NOT NULL UNIQUE,
		body TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS vectors (
		position INTEGER PRIMARY KEY,
		id TEXT NOT NULL UNIQUE,
		dimension INTEGER NOT NULL,
		vector BLOB NOT NULL
	);
	`
	_, err := db.Exec(schema)
	return err
}

// Describe returns the database path.
func (s *SQLiteStore) Describe() string {
	return s.path
}

// ReadMetadata returns the stored metadata or ErrNoIndex when the database is empty.
func (s *SQLiteStore) ReadMetadata(ctx context.Context) (*Metadata, error) {
	var body string
	err := s.db.QueryRowContext(ctx, `SELECT body FROM index_metadata WHERE id = 1`).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: database %s is empty", ErrNoIndex, s.path)
	}
	if err != nil {
		return nil, fmt.Errorf("read metadata: %w", err)
	}
	var meta Metadata
	if err := json.Unmarshal([]byte(body), &meta); err != nil {
		return nil, fmt.Errorf("%w: parse metadata: %v", ErrCorrupt, err)
	}
	return &meta, nil
}

// Load reads the whole snapshot in insertion order.
func (s *SQLiteStore) Load(ctx context.Context) (*Snapshot, error) {
	meta, err := s.ReadMetadata(ctx)
	if err != nil {
		return nil, err
	}
	snap := &Snapshot{Metadata: *meta}

	rows, err := s.db.QueryContext(ctx, `SELECT id, body FROM documents ORDER BY position`)
	if err != nil {
		return nil, fmt.Errorf("query documents: %w", err)
	}
	for rows.Next() {
		var id, body string
		if err := rows.Scan(&id, &body); err != nil {
			rows.Close()
			return nil, err
		}
		var doc models.Document
		if err := json.Unmarshal([]byte(body), &doc); err != nil {
			rows.Close()
			return nil, fmt.Errorf("%w: document %q: %v", ErrCorrupt, id, err)
		}
		snap.Documents = append(snap.Documents, DocumentPair{ID: id, Doc: doc})
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	rows, err = s.db.QueryContext(ctx, `SELECT id, dimension, vector FROM vectors ORDER BY position`)
	if err != nil {
		return nil, fmt.Errorf("query vectors: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var id string
		var dim int
		var blob []byte
		if err := rows.Scan(&id, &dim, &blob); err != nil {
			return nil, err
		}
		if len(blob) != dim*4 {
			return nil, fmt.Errorf("%w: vector %q has %d bytes for %d dimensions", ErrCorrupt, id, len(blob), dim)
		}
		snap.Vectors = append(snap.Vectors, vector.Entry{ID: id, Vector: vector.BytesToFloat32s(blob)})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if err := snap.Validate(); err != nil {
		return nil, err
	}
	return snap, nil
}

// Save replaces the stored snapshot in a single transaction.
func (s *SQLiteStore) Save(ctx context.Context, snap *Snapshot) error {
	meta := snap.Metadata
	meta.Generation = uuid.New().String()
	meta.NumElements = len(snap.Documents)
	meta.VectorFormat = ""
	meta.DocumentsSHA256 = ""
	if meta.CreatedAt == nil {
		now := time.Now().UTC()
		meta.CreatedAt = &now
	}
	check := Snapshot{Metadata: meta, Documents: snap.Documents, Vectors: snap.Vectors}
	if err := check.Validate(); err != nil {
		return fmt.Errorf("refusing to save: %w", err)
	}
	metaJSON, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, stmt := range []string{`DELETE FROM documents`, `DELETE FROM vectors`, `DELETE FROM index_metadata`} {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("clear previous snapshot: %w", err)
		}
	}

	docStmt, err := tx.PrepareContext(ctx, `INSERT INTO documents (position, id, body) VALUES (?, ?, ?)`)
	if err != nil {
		return err
	}
	defer docStmt.Close()
	for i, p := range snap.Documents {
		body, err := json.Marshal(p.Doc)
		if err != nil {
			return fmt.Errorf("marshal document %q: %w", p.ID, err)
		}
		if _, err := docStmt.ExecContext(ctx, i, p.ID, string(body)); err != nil {
			return fmt.Errorf("insert document %q: %w", p.ID, err)
		}
	}

	vecStmt, err := tx.PrepareContext(ctx, `INSERT INTO vectors (position, id, dimension, vector) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer vecStmt.Close()
	for i, e := range snap.Vectors {
		if _, err := vecStmt.ExecContext(ctx, i, e.ID, len(e.Vector), vector.Float32sToBytes(e.Vector)); err != nil {
			return fmt.Errorf("insert vector %q: %w", e.ID, err)
		}
	}

	if _, err := tx.ExecContext(ctx, `INSERT INTO index_metadata (id, body) VALUES (1, ?)`, string(metaJSON)); err != nil {
		return fmt.Errorf("insert metadata: %w", err)
	}
	return tx.Commit()
}

// DiskUsage returns the bytes used by the database and its WAL files.
func (s *SQLiteStore) DiskUsage() (int64, error) {
	return DiskUsageBytes(s.path, s.path+"-wal", s.path+"-shm")
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
