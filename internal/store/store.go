/*
Copyright 2020 Google LLC

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package store persists the scrobble and artist tag caches in SQLite.
package store

import (
	"database/sql"
	"errors"
	"fmt"
	"os"

	"github.com/mattn/go-sqlite3"

	"github.com/ademuri/scrobble-moods/internal/cache"
)

const createTablesQuery = `
CREATE TABLE IF NOT EXISTS User (
  name TEXT PRIMARY KEY,
  last_updated DATETIME
);

CREATE TABLE IF NOT EXISTS Listen (
  user TEXT NOT NULL,
  artist TEXT NOT NULL,
  track TEXT NOT NULL,
  album TEXT NOT NULL DEFAULT '',
  date INTEGER NOT NULL,
  FOREIGN KEY (user) REFERENCES User(name),
  PRIMARY KEY (user, artist, track, date)
);

CREATE TABLE IF NOT EXISTS Artist (
  name TEXT PRIMARY KEY,
  tags_last_updated INTEGER
);

CREATE TABLE IF NOT EXISTS Tag (
  name TEXT PRIMARY KEY
);

CREATE TABLE IF NOT EXISTS ArtistTag (
  artist TEXT,
  tag TEXT,
  rank INTEGER,
  FOREIGN KEY (artist) REFERENCES Artist(name),
  FOREIGN KEY (tag) REFERENCES Tag(name),
  PRIMARY KEY (artist, tag)
);
`

// Store implements cache.Persister on a SQLite database.
type Store struct {
	db *sql.DB
}

var _ cache.Persister = (*Store)(nil)

func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if err := createTables(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating tables: %w", err)
	}

	if err := ensureSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("ensuring schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Open is New for a cache that must always load. A file SQLite reports as
// damaged or not a database is moved to <dbPath>.corrupt, warn is called
// with an error wrapping cache.ErrCorrupt, and an empty database is created
// in its place.
func Open(dbPath string, warn func(error)) (*Store, error) {
	s, err := New(dbPath)
	if err == nil || !isCorrupt(err) {
		return s, err
	}

	aside := dbPath + ".corrupt"
	if err := os.Rename(dbPath, aside); err != nil {
		return nil, fmt.Errorf("moving corrupt database aside: %w", err)
	}
	for _, suffix := range []string{"-journal", "-wal", "-shm"} {
		os.Remove(dbPath + suffix)
	}
	warn(fmt.Errorf("%w: %s moved to %s: %v", cache.ErrCorrupt, dbPath, aside, err))

	return New(dbPath)
}

// isCorrupt reports whether err is SQLite rejecting the file itself.
func isCorrupt(err error) bool {
	var sqliteErr sqlite3.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	return sqliteErr.Code == sqlite3.ErrCorrupt || sqliteErr.Code == sqlite3.ErrNotADB
}

// readError wraps a failed read, marking damage to the file as
// cache.ErrCorrupt so that callers fall back to an empty cache.
func readError(what string, err error) error {
	if isCorrupt(err) {
		return fmt.Errorf("%w: %s: %v", cache.ErrCorrupt, what, err)
	}
	return fmt.Errorf("%s: %w", what, err)
}

func (s *Store) Close() error {
	return s.db.Close()
}

func createTables(db *sql.DB) error {
	if _, err := db.Exec(createTablesQuery); err != nil {
		return fmt.Errorf("executing schema: %w", err)
	}
	return nil
}

// ensureSchema adds the columns introduced after the first schema version
// to databases created before them, then records the current version.
func ensureSchema(db *sql.DB) error {
	columns := []struct {
		table, column, typeDef string
	}{
		{"User", "last_fetch_boundary", "INTEGER"},
		{"User", "complete", "INTEGER NOT NULL DEFAULT 0"},
		{"Artist", "negative", "INTEGER NOT NULL DEFAULT 0"},
	}
	for _, c := range columns {
		if err := addColumnIfNotExists(db, c.table, c.column, c.typeDef); err != nil {
			return err
		}
	}

	if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", cache.SchemaVersion)); err != nil {
		return fmt.Errorf("setting schema version: %w", err)
	}
	return nil
}

func addColumnIfNotExists(db *sql.DB, table, column, typeDef string) error {
	exists, err := columnExists(db, table, column)
	if err != nil {
		return fmt.Errorf("checking column %s.%s: %w", table, column, err)
	}
	if !exists {
		query := fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", table, column, typeDef)
		if _, err := db.Exec(query); err != nil {
			return fmt.Errorf("adding column %s.%s: %w", table, column, err)
		}
	}
	return nil
}

func columnExists(db *sql.DB, tableName string, columnName string) (bool, error) {
	rows, err := db.Query(fmt.Sprintf("PRAGMA table_info(%s)", tableName))
	if err != nil {
		return false, err
	}
	defer rows.Close()

	for rows.Next() {
		var cid int
		var name string
		var ctype string
		var notnull int
		var dfltValue interface{}
		var pk int
		if err := rows.Scan(&cid, &name, &ctype, &notnull, &dfltValue, &pk); err != nil {
			return false, err
		}
		if name == columnName {
			return true, nil
		}
	}
	return false, rows.Err()
}
