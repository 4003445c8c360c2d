// Package sqlite persists fetched profile cards between sessions so
// contact names and avatars are available before the first fetch of a
// new connection completes.
package sqlite

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/meszmate/filibuster/internal/core"
)

type DB struct {
	db *sql.DB
}

// New opens (or creates) the profile cache database at path.
func New(path string) (*DB, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &DB{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

func (d *DB) Close() error {
	return d.db.Close()
}

func (d *DB) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS profiles (
			jid TEXT PRIMARY KEY,
			full_name TEXT,
			nickname TEXT,
			avatar TEXT,
			last_updated INTEGER NOT NULL
		)`,
	}

	for _, migration := range migrations {
		if _, err := d.db.Exec(migration); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}

	return nil
}

// PutProfile stores the profile card for a bare address. Nil fields
// are stored as NULL so "never fetched" and "fetched empty" survive
// the round trip.
func (d *DB) PutProfile(address string, p core.Profile) error {
	_, err := d.db.Exec(`
		INSERT OR REPLACE INTO profiles (jid, full_name, nickname, avatar, last_updated)
		VALUES (?, ?, ?, ?, ?)
	`, address, nullable(p.FullName), nullable(p.Nickname), nullable(p.Avatar), time.Now().Unix())
	return err
}

// GetProfile loads the cached profile for a bare address. The second
// return value reports whether an entry existed.
func (d *DB) GetProfile(address string) (core.Profile, bool, error) {
	var fullName, nickname, avatar sql.NullString
	err := d.db.QueryRow(`
		SELECT full_name, nickname, avatar
		FROM profiles
		WHERE jid = ?
	`, address).Scan(&fullName, &nickname, &avatar)
	if err == sql.ErrNoRows {
		return core.Profile{}, false, nil
	}
	if err != nil {
		return core.Profile{}, false, err
	}

	return core.Profile{
		FullName: fromNullable(fullName),
		Nickname: fromNullable(nickname),
		Avatar:   fromNullable(avatar),
	}, true, nil
}

// Prune deletes entries not updated since the cutoff.
func (d *DB) Prune(olderThan time.Time) error {
	_, err := d.db.Exec(`DELETE FROM profiles WHERE last_updated < ?`, olderThan.Unix())
	return err
}

func nullable(s *string) interface{} {
	if s == nil {
		return nil
	}
	return *s
}

func fromNullable(s sql.NullString) *string {
	if !s.Valid {
		return nil
	}
	v := s.String
	return &v
}
