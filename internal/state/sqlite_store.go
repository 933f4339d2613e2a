package state

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"time"

	_ "modernc.org/sqlite"

	"github.com/schaermu/mtime-rewind/internal/fingerprint"
)

const sqliteSchema = `
CREATE TABLE meta (
    key TEXT PRIMARY KEY,
    value TEXT NOT NULL
);

CREATE TABLE files (
    path TEXT PRIMARY KEY,
    fingerprint BLOB NOT NULL,
    mtime_sec INTEGER NOT NULL,
    mtime_nsec INTEGER NOT NULL
);
`

// SQLiteStore keeps the snapshot in a SQLite database file. Each save builds
// a fresh database beside the target and renames it into place.
type SQLiteStore struct {
	root   string
	path   string
	logger *slog.Logger
}

// NewSQLiteStore creates a SQLite state store for name under root.
func NewSQLiteStore(root, name string, logger *slog.Logger) *SQLiteStore {
	return &SQLiteStore{
		root:   root,
		path:   filepath.Join(root, name),
		logger: logger.With("component", "sqlite_state_store"),
	}
}

// Path returns the database location.
func (s *SQLiteStore) Path() string {
	return s.path
}

// Load reads the snapshot from the database.
func (s *SQLiteStore) Load(ctx context.Context) (Snapshot, error) {
	s.logger.Debug("loading state", "path", s.path)

	// sql.Open would create a missing database, so check first.
	if _, err := os.Stat(s.path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrStateNotFound
		}
		return nil, fmt.Errorf("stat state file: %w", err)
	}

	db, err := sql.Open("sqlite", s.path+"?_pragma=query_only(1)")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	defer func() {
		_ = db.Close()
	}()

	meta, err := s.loadMeta(ctx, db)
	if err != nil {
		return nil, err
	}

	version, err := strconv.Atoi(meta["schema_version"])
	if err != nil || version == 0 {
		return nil, corrupt(s.path, errors.New("not a state database"))
	}
	if version > CurrentSchemaVersion {
		return nil, fmt.Errorf("%w: %s: schema version %d", ErrUnsupportedVersion, s.path, version)
	}
	if meta["algorithm"] != fingerprint.Algorithm {
		return nil, fmt.Errorf("%w: %s: fingerprint algorithm %q", ErrUnsupportedVersion, s.path, meta["algorithm"])
	}
	warnOnRootMismatch(s.logger, meta["root"], s.root)

	rows, err := db.QueryContext(ctx, `SELECT path, fingerprint, mtime_sec, mtime_nsec FROM files`)
	if err != nil {
		return nil, corrupt(s.path, err)
	}
	defer rows.Close()

	snap := make(Snapshot)
	for rows.Next() {
		var (
			p         string
			raw       []byte
			sec, nsec int64
		)
		if err := rows.Scan(&p, &raw, &sec, &nsec); err != nil {
			return nil, corrupt(s.path, err)
		}
		if err := validateRelPath(p); err != nil {
			return nil, corrupt(s.path, err)
		}
		fp, err := fingerprint.FromBytes(raw)
		if err != nil {
			return nil, corrupt(s.path, fmt.Errorf("%s: %w", p, err))
		}
		mtime, err := decodeMtime(sec, nsec)
		if err != nil {
			return nil, corrupt(s.path, fmt.Errorf("%s: %w", p, err))
		}
		snap[p] = FileRecord{Path: p, Fingerprint: fp, Mtime: mtime}
	}
	if err := rows.Err(); err != nil {
		return nil, corrupt(s.path, err)
	}

	s.logger.Debug("loaded state", "files", len(snap))
	return snap, nil
}

func (s *SQLiteStore) loadMeta(ctx context.Context, db *sql.DB) (map[string]string, error) {
	rows, err := db.QueryContext(ctx, `SELECT key, value FROM meta`)
	if err != nil {
		// Covers foreign files ("file is not a database") and missing tables.
		return nil, corrupt(s.path, err)
	}
	defer rows.Close()

	meta := make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, corrupt(s.path, err)
		}
		meta[k] = v
	}
	if err := rows.Err(); err != nil {
		return nil, corrupt(s.path, err)
	}
	return meta, nil
}

// Save writes snap into a new database and renames it over the old one.
func (s *SQLiteStore) Save(ctx context.Context, snap Snapshot) error {
	tmp, err := os.CreateTemp(filepath.Dir(s.path), filepath.Base(s.path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp database: %w", err)
	}
	tmpName := tmp.Name()
	_ = tmp.Close()

	committed := false
	defer func() {
		if !committed {
			_ = os.Remove(tmpName)
			_ = os.Remove(tmpName + "-journal")
		}
	}()

	if err := s.write(ctx, tmpName, snap); err != nil {
		return err
	}

	if err := os.Chmod(tmpName, 0o644); err != nil {
		return fmt.Errorf("chmod temp database: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return fmt.Errorf("rename state file: %w", err)
	}
	committed = true
	_ = syncDir(filepath.Dir(s.path))

	s.logger.Debug("saved state", "path", s.path, "files", len(snap))
	return nil
}

func (s *SQLiteStore) write(ctx context.Context, dbPath string, snap Snapshot) error {
	db, err := sql.Open("sqlite", dbPath+"?_pragma=synchronous(FULL)")
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer func() {
		_ = db.Close()
	}()

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, sqliteSchema); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}

	meta := map[string]string{
		"schema_version": strconv.Itoa(CurrentSchemaVersion),
		"algorithm":      fingerprint.Algorithm,
		"root":           s.root,
		"created_at":     time.Now().UTC().Format(time.RFC3339Nano),
	}
	for k, v := range meta {
		if _, err := tx.ExecContext(ctx, `INSERT INTO meta (key, value) VALUES (?, ?)`, k, v); err != nil {
			return fmt.Errorf("insert meta %s: %w", k, err)
		}
	}

	stmt, err := tx.PrepareContext(ctx, `
        INSERT INTO files (path, fingerprint, mtime_sec, mtime_nsec)
        VALUES (?, ?, ?, ?)
    `)
	if err != nil {
		return fmt.Errorf("prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, p := range snap.Paths() {
		rec := snap[p]
		sec, nsec := encodeMtime(rec.Mtime)
		if _, err := stmt.ExecContext(ctx, p, rec.Fingerprint[:], sec, nsec); err != nil {
			return fmt.Errorf("insert file %s: %w", p, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return db.Close()
}
