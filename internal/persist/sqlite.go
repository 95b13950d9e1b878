package persist

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/roach88/cadstore/internal/codec"
	"github.com/roach88/cadstore/internal/model"
)

//go:embed schema.sql
var schemaSQL string

// Schema version tracking:
// 0 - Initial schema (pre-migration)
// 1 - Added index on entities.kind
const currentSchemaVersion = 1

// SQLite stores projects in one SQLite database, keyed by project name.
// Uses WAL mode so inspection tools can read while a server saves.
type SQLite struct {
	db  *sql.DB
	now func() time.Time
}

// OpenSQLite creates or opens the database at path.
// Applies required pragmas and migrations automatically.
//
// The database is configured with:
//   - WAL mode for concurrent reads during writes
//   - NORMAL synchronous mode (balance durability/performance)
//   - 5-second busy timeout for lock contention
//   - Foreign key enforcement
//
// This function is idempotent - safe to call multiple times.
func OpenSQLite(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	// SQLite only supports one writer at a time.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply pragmas: %w", err)
	}
	if err := applySchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &SQLite{db: db, now: time.Now}, nil
}

// Close closes the database connection.
func (s *SQLite) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("execute %q: %w", pragma, err)
		}
	}
	return nil
}

// applySchema creates tables if they don't exist and runs migrations.
func applySchema(db *sql.DB) error {
	if _, err := db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("execute schema: %w", err)
	}
	if err := runMigrations(db); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	return nil
}

// runMigrations applies incremental schema migrations based on user_version.
func runMigrations(db *sql.DB) error {
	var version int
	if err := db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("get user_version: %w", err)
	}
	if version < 1 {
		if err := migrateToV1(db); err != nil {
			return err
		}
	}
	if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", currentSchemaVersion)); err != nil {
		return fmt.Errorf("set user_version: %w", err)
	}
	return nil
}

func migrateToV1(db *sql.DB) error {
	_, err := db.Exec(`CREATE INDEX IF NOT EXISTS idx_entities_kind ON entities(project, kind)`)
	if err != nil {
		return fmt.Errorf("migrate to v1: %w", err)
	}
	return nil
}

// Load returns the document of project.
func (s *SQLite) Load(ctx context.Context, project string) ([]byte, error) {
	var doc []byte
	err := s.db.QueryRowContext(ctx, `SELECT document FROM projects WHERE name = ?`, project).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, model.FileNotFound(project)
	}
	if err != nil {
		return nil, model.Other(fmt.Errorf("load project %s: %w", project, err))
	}
	return doc, nil
}

type envelopeHead struct {
	Kind   string `json:"kind"`
	Entity struct {
		ID string `json:"id"`
	} `json:"entity"`
	raw json.RawMessage
}

// Save replaces project with data in one transaction.
func (s *SQLite) Save(ctx context.Context, project string, data []byte) error {
	var raws []json.RawMessage
	if err := json.Unmarshal(data, &raws); err != nil {
		return model.Other(fmt.Errorf("save project %s: document is not an array: %w", project, err))
	}
	heads := make([]envelopeHead, len(raws))
	for i, raw := range raws {
		if err := json.Unmarshal(raw, &heads[i]); err != nil {
			return model.Other(fmt.Errorf("save project %s: entry %d: %w", project, i, err))
		}
		heads[i].raw = raw
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return model.Other(fmt.Errorf("save project %s: %w", project, err))
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO projects (name, document, hash, saved_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			document = excluded.document,
			hash = excluded.hash,
			saved_at = excluded.saved_at
	`, project, data, codec.Hash(data), s.now().UnixMilli())
	if err != nil {
		return model.Other(fmt.Errorf("save project %s: %w", project, err))
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM entities WHERE project = ?`, project); err != nil {
		return model.Other(fmt.Errorf("save project %s: %w", project, err))
	}
	for _, h := range heads {
		_, err := tx.ExecContext(ctx, `INSERT INTO entities (project, id, kind, body) VALUES (?, ?, ?, ?)`,
			project, h.Entity.ID, h.Kind, []byte(h.raw))
		if err != nil {
			return model.Other(fmt.Errorf("save project %s: entity %s: %w", project, h.Entity.ID, err))
		}
	}
	if err := tx.Commit(); err != nil {
		return model.Other(fmt.Errorf("save project %s: %w", project, err))
	}
	return nil
}

// ProjectInfo summarises one stored project.
type ProjectInfo struct {
	Name    string         `json:"name"`
	Hash    string         `json:"hash"`
	SavedAt time.Time      `json:"saved_at"`
	Kinds   map[string]int `json:"kinds"`
}

// Projects lists stored projects by name with per-kind entity counts.
func (s *SQLite) Projects(ctx context.Context) ([]ProjectInfo, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT name, hash, saved_at FROM projects ORDER BY name`)
	if err != nil {
		return nil, model.Other(fmt.Errorf("list projects: %w", err))
	}
	var out []ProjectInfo
	for rows.Next() {
		var p ProjectInfo
		var ms int64
		if err := rows.Scan(&p.Name, &p.Hash, &ms); err != nil {
			rows.Close()
			return nil, model.Other(fmt.Errorf("list projects: %w", err))
		}
		p.SavedAt = time.UnixMilli(ms).UTC()
		out = append(out, p)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, model.Other(fmt.Errorf("list projects: %w", err))
	}

	for i := range out {
		kinds, err := s.kindCounts(ctx, out[i].Name)
		if err != nil {
			return nil, err
		}
		out[i].Kinds = kinds
	}
	return out, nil
}

func (s *SQLite) kindCounts(ctx context.Context, project string) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT kind, COUNT(*) FROM entities WHERE project = ? GROUP BY kind ORDER BY kind`, project)
	if err != nil {
		return nil, model.Other(fmt.Errorf("count kinds: %w", err))
	}
	defer rows.Close()
	out := make(map[string]int)
	for rows.Next() {
		var kind string
		var n int
		if err := rows.Scan(&kind, &n); err != nil {
			return nil, model.Other(fmt.Errorf("count kinds: %w", err))
		}
		out[kind] = n
	}
	return out, rows.Err()
}
