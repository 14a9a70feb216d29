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
package store

import (
	"database/sql"
	"fmt"

	"github.com/ademuri/scrobble-moods/internal/cache"
)

// SaveEvents writes the user's fetch state and inserts any events not yet
// stored, in one transaction. Stored events are never updated.
func (s *Store) SaveEvents(c *cache.EventCache) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if err := saveUser(tx, c.User(), c.State()); err != nil {
		return err
	}

	stmt, err := tx.Prepare("INSERT OR IGNORE INTO Listen (user, artist, track, album, date) VALUES (?, ?, ?, ?, ?)")
	if err != nil {
		return fmt.Errorf("preparing listen insert: %w", err)
	}
	defer stmt.Close()

	for _, e := range c.Events(timeZero) {
		if _, err := stmt.Exec(c.User(), e.Artist, e.Track, e.Album, e.Timestamp); err != nil {
			return fmt.Errorf("inserting listen %q - %q: %w", e.Artist, e.Track, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

func saveUser(tx *sql.Tx, user string, state cache.FetchState) error {
	var boundary, updated interface{}
	if !state.LastFetchBoundary.IsZero() {
		boundary = state.LastFetchBoundary.Unix()
	}
	if !state.LastFetchedAt.IsZero() {
		updated = state.LastFetchedAt.UTC()
	}

	_, err := tx.Exec(`
		INSERT INTO User (name, last_updated, last_fetch_boundary, complete) VALUES (?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			last_updated = excluded.last_updated,
			last_fetch_boundary = excluded.last_fetch_boundary,
			complete = excluded.complete
	`, user, updated, boundary, state.Complete)
	if err != nil {
		return fmt.Errorf("saving user %q: %w", user, err)
	}
	return nil
}

// SaveEntities replaces the stored tag records with the cache contents.
func (s *Store) SaveEntities(c *cache.EntityCache) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	for _, r := range c.Records() {
		if err := saveArtistTags(tx, r); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

func saveArtistTags(tx *sql.Tx, r cache.EntityRecord) error {
	_, err := tx.Exec(`
		INSERT INTO Artist (name, tags_last_updated, negative) VALUES (?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			tags_last_updated = excluded.tags_last_updated,
			negative = excluded.negative
	`, r.Key, r.FetchedAt, r.Negative)
	if err != nil {
		return fmt.Errorf("saving artist %q: %w", r.Key, err)
	}

	if _, err := tx.Exec("DELETE FROM ArtistTag WHERE artist = ?", r.Key); err != nil {
		return fmt.Errorf("clearing tags for artist %q: %w", r.Key, err)
	}

	for rank, tag := range r.Tags {
		if _, err := tx.Exec("INSERT OR IGNORE INTO Tag (name) VALUES (?)", tag); err != nil {
			return fmt.Errorf("inserting tag %q: %w", tag, err)
		}
		_, err := tx.Exec("INSERT OR REPLACE INTO ArtistTag (artist, tag, rank) VALUES (?, ?, ?)", r.Key, tag, rank)
		if err != nil {
			return fmt.Errorf("linking tag %q to artist %q: %w", tag, r.Key, err)
		}
	}
	return nil
}
