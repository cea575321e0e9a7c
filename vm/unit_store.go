package vm

import (
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"

	_ "modernc.org/sqlite"
)

// ---------------------------------------------------------------------------
// UnitStore: content-addressed cache of assembled units
// ---------------------------------------------------------------------------

// UnitStore caches assembled unit images in SQLite, keyed by the SHA-256 of
// the YASN source that produced them. The CLI consults it to skip
// re-assembly of unchanged sources; equal sources always map to equal
// images because image encoding is canonical.
type UnitStore struct {
	db   *sql.DB
	path string
}

// OpenUnitStore opens (or creates) a store at the given path.
func OpenUnitStore(path string) (*UnitStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("vm: opening unit store: %w", err)
	}

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("vm: setting busy timeout: %w", err)
	}

	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS units (
		hash  TEXT PRIMARY KEY,
		name  TEXT NOT NULL,
		image BLOB NOT NULL
	)`); err != nil {
		db.Close()
		return nil, fmt.Errorf("vm: creating units table: %w", err)
	}

	return &UnitStore{db: db, path: path}, nil
}

// Close releases the underlying database.
func (s *UnitStore) Close() error {
	return s.db.Close()
}

// SourceHash returns the cache key for a YASN source.
func SourceHash(source []byte) string {
	sum := sha256.Sum256(source)
	return hex.EncodeToString(sum[:])
}

// Put stores the unit's image under the source's hash, replacing any
// previous entry for the same source.
func (s *UnitStore) Put(source []byte, u *ExecutionUnit) error {
	image, err := u.ImageBytes()
	if err != nil {
		return err
	}
	_, err = s.db.Exec(
		"INSERT OR REPLACE INTO units (hash, name, image) VALUES (?, ?, ?)",
		SourceHash(source), u.Name(), image,
	)
	if err != nil {
		return fmt.Errorf("vm: storing unit: %w", err)
	}
	return nil
}

// Get returns the cached unit for a source, or nil when the source has not
// been assembled before.
func (s *UnitStore) Get(source []byte) (*ExecutionUnit, error) {
	var image []byte
	err := s.db.QueryRow(
		"SELECT image FROM units WHERE hash = ?", SourceHash(source),
	).Scan(&image)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("vm: loading unit: %w", err)
	}
	return UnitFromImage(image)
}

// Count returns the number of cached units.
func (s *UnitStore) Count() (int, error) {
	var n int
	if err := s.db.QueryRow("SELECT COUNT(*) FROM units").Scan(&n); err != nil {
		return 0, fmt.Errorf("vm: counting units: %w", err)
	}
	return n, nil
}
