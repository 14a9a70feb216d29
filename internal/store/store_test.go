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
	"bytes"
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/ademuri/scrobble-moods/internal/cache"
)

func createTestDb(t *testing.T) *Store {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "scrobbles.db")

	store, err := New(dbPath)
	if err != nil {
		t.Fatalf("New(%s) error: %v", dbPath, err)
	}
	t.Cleanup(func() { store.Close() })

	return store
}

func testEvents() []cache.Event {
	return []cache.Event{
		{Artist: "Slowdive", Track: "Alison", Album: "Souvlaki", Timestamp: 1704067200},
		{Artist: "Ride", Track: "Vapour Trail", Timestamp: 1704060000},
		{Artist: "Slowdive", Track: "Alison", Album: "Souvlaki", Timestamp: 1704070000},
	}
}

func TestEventsRoundTrip(t *testing.T) {
	s := createTestDb(t)

	events := cache.NewEventCache("testuser")
	events.Merge(testEvents())
	fetchedAt := time.Date(2024, 2, 1, 10, 30, 0, 0, time.UTC)
	events.MarkFetched(fetchedAt, true)

	if err := s.SaveEvents(events); err != nil {
		t.Fatalf("SaveEvents: %v", err)
	}

	loaded, err := s.LoadEvents("testuser")
	if err != nil {
		t.Fatalf("LoadEvents: %v", err)
	}
	if !reflect.DeepEqual(loaded.Events(time.Time{}), events.Events(time.Time{})) {
		t.Errorf("events differ:\n%+v\n%+v", loaded.Events(time.Time{}), events.Events(time.Time{}))
	}

	state := loaded.State()
	if !state.Complete {
		t.Error("complete flag lost")
	}
	if !state.LastFetchedAt.Equal(fetchedAt) {
		t.Errorf("LastFetchedAt = %v, want %v", state.LastFetchedAt, fetchedAt)
	}
	if want := time.Unix(1704070000, 0); !state.LastFetchBoundary.Equal(want) {
		t.Errorf("LastFetchBoundary = %v, want %v", state.LastFetchBoundary, want)
	}
}

func TestSaveEventsIsIdempotent(t *testing.T) {
	s := createTestDb(t)

	events := cache.NewEventCache("testuser")
	events.Merge(testEvents())
	for i := 0; i < 2; i++ {
		if err := s.SaveEvents(events); err != nil {
			t.Fatalf("SaveEvents: %v", err)
		}
	}

	row := s.db.QueryRow("SELECT COUNT(*) FROM Listen WHERE user = ?", "testuser")
	var count int
	if err := row.Scan(&count); err != nil {
		t.Fatalf("querying count: %v", err)
	}
	if count != 3 {
		t.Errorf("Expected 3 listens, got %d", count)
	}
}

func TestLoadEventsOtherUser(t *testing.T) {
	s := createTestDb(t)

	events := cache.NewEventCache("someone")
	events.Merge(testEvents())
	if err := s.SaveEvents(events); err != nil {
		t.Fatal(err)
	}

	loaded, err := s.LoadEvents("testuser")
	if err != nil {
		t.Fatal(err)
	}
	if loaded.Len() != 0 || loaded.State().Complete {
		t.Errorf("expected an empty cache for a new user, got %d events", loaded.Len())
	}
}

func TestEntitiesRoundTrip(t *testing.T) {
	s := createTestDb(t)

	entities := cache.NewEntityCache()
	ctx := context.Background()
	entities.Resolve(ctx, "slowdive", func(context.Context) ([]string, error) {
		return []string{"shoegaze", "dream pop", "90s", "ambient"}, nil
	})
	entities.Resolve(ctx, "nobody", func(context.Context) ([]string, error) {
		return nil, cache.ErrNoData
	})

	if err := s.SaveEntities(entities); err != nil {
		t.Fatalf("SaveEntities: %v", err)
	}
	// Saving again must replace rather than duplicate the tags.
	if err := s.SaveEntities(entities); err != nil {
		t.Fatalf("SaveEntities (repeat): %v", err)
	}

	loaded, err := s.LoadEntities()
	if err != nil {
		t.Fatalf("LoadEntities: %v", err)
	}
	if !reflect.DeepEqual(loaded.Records(), entities.Records()) {
		t.Errorf("records differ:\n%+v\n%+v", loaded.Records(), entities.Records())
	}
	if r, ok := loaded.Lookup("nobody"); !ok || !r.Negative {
		t.Errorf("negative record lost: %+v", r)
	}
}

func TestLoadThroughCache(t *testing.T) {
	s := createTestDb(t)

	caches, err := cache.Load(s, "testuser", func(err error) { t.Errorf("unexpected warning: %v", err) })
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	caches.Events.Merge(testEvents())
	if err := caches.Save(s); err != nil {
		t.Fatalf("Save: %v", err)
	}

	reloaded, err := cache.Load(s, "testuser", func(err error) { t.Errorf("unexpected warning: %v", err) })
	if err != nil {
		t.Fatal(err)
	}
	if reloaded.Events.Len() != 3 {
		t.Errorf("reloaded %d events, want 3", reloaded.Events.Len())
	}
}

func TestEnsureSchemaUpgradesOldDatabase(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "old.db")
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		t.Fatal(err)
	}
	_, err = db.Exec(`
CREATE TABLE User (name TEXT PRIMARY KEY, last_updated DATETIME);
CREATE TABLE Artist (name TEXT PRIMARY KEY, tags_last_updated INTEGER);
INSERT INTO User (name) VALUES ('testuser');
INSERT INTO Artist (name, tags_last_updated) VALUES ('slowdive', 1700000000);
`)
	if err != nil {
		t.Fatalf("creating old schema: %v", err)
	}
	db.Close()

	s, err := New(dbPath)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer s.Close()

	for _, c := range []struct{ table, column string }{
		{"User", "complete"},
		{"User", "last_fetch_boundary"},
		{"Artist", "negative"},
	} {
		exists, err := columnExists(s.db, c.table, c.column)
		if err != nil || !exists {
			t.Errorf("column %s.%s missing after upgrade (err %v)", c.table, c.column, err)
		}
	}

	entities, err := s.LoadEntities()
	if err != nil {
		t.Fatal(err)
	}
	// Old rows carry no negative flag, so an artist without tags is looked
	// up again rather than treated as having none.
	if r, ok := entities.Lookup("slowdive"); ok {
		t.Errorf("untagged old artist row loaded as %+v, want a cache miss", r)
	}

	var version int
	if err := s.db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		t.Fatal(err)
	}
	if version != cache.SchemaVersion {
		t.Errorf("user_version = %d, want %d", version, cache.SchemaVersion)
	}
}

func writeGarbage(t *testing.T, path string) []byte {
	t.Helper()
	garbage := bytes.Repeat([]byte("this is not a sqlite database "), 200)
	if err := os.WriteFile(path, garbage, 0o644); err != nil {
		t.Fatal(err)
	}
	return garbage
}

func TestNewRejectsCorruptDatabase(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "scrobbles.db")
	writeGarbage(t, dbPath)

	_, err := New(dbPath)
	if err == nil {
		t.Fatal("New should fail on a file that is not a database")
	}
	if !isCorrupt(err) {
		t.Errorf("error should be recognized as corruption: %v", err)
	}
}

func TestOpenReplacesCorruptDatabase(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "scrobbles.db")
	garbage := writeGarbage(t, dbPath)

	var warnings []error
	s, err := Open(dbPath, func(err error) { warnings = append(warnings, err) })
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()

	if len(warnings) != 1 || !errors.Is(warnings[0], cache.ErrCorrupt) {
		t.Errorf("warnings = %v, want one wrapping cache.ErrCorrupt", warnings)
	}
	kept, err := os.ReadFile(dbPath + ".corrupt")
	if err != nil || !bytes.Equal(kept, garbage) {
		t.Errorf("corrupt file should be kept aside unchanged (err %v)", err)
	}

	caches, err := cache.Load(s, "testuser", func(err error) { t.Errorf("unexpected warning: %v", err) })
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if caches.Events.Len() != 0 || caches.Entities.Len() != 0 {
		t.Error("replacement database should be empty")
	}
	caches.Events.Merge(testEvents())
	if err := caches.Save(s); err != nil {
		t.Fatalf("Save to replacement database: %v", err)
	}
}

func TestOpenHealthyDatabaseDoesNotWarn(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "scrobbles.db")
	s, err := Open(dbPath, func(err error) { t.Errorf("unexpected warning: %v", err) })
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	s.Close()
	if _, err := os.Stat(dbPath + ".corrupt"); !os.IsNotExist(err) {
		t.Errorf("no file should be moved aside, stat error %v", err)
	}
}

func TestMalformedUserRowIsCorrupt(t *testing.T) {
	s := createTestDb(t)
	events := cache.NewEventCache("testuser")
	events.Merge(testEvents())
	if err := s.SaveEvents(events); err != nil {
		t.Fatalf("SaveEvents: %v", err)
	}
	if _, err := s.db.Exec("UPDATE User SET last_fetch_boundary = 'yesterday' WHERE name = 'testuser'"); err != nil {
		t.Fatal(err)
	}

	loaded, err := s.LoadEvents("testuser")
	if !errors.Is(err, cache.ErrCorrupt) {
		t.Fatalf("LoadEvents() error = %v, want cache.ErrCorrupt", err)
	}
	if loaded == nil || loaded.Len() != 0 {
		t.Fatalf("LoadEvents() should return an empty cache alongside the error")
	}

	warnings := 0
	caches, err := cache.Load(s, "testuser", func(err error) { warnings++ })
	if err != nil {
		t.Fatalf("Load should carry on past a malformed row: %v", err)
	}
	if warnings != 1 || caches.Events.Len() != 0 {
		t.Errorf("got %d warnings and %d events, want 1 and 0", warnings, caches.Events.Len())
	}
}

func TestUntaggedArtistWithoutNegativeIsDropped(t *testing.T) {
	s := createTestDb(t)
	if _, err := s.db.Exec("INSERT INTO Artist (name, tags_last_updated, negative) VALUES ('slowdive', 1, 0), ('nobody', 1, 1)"); err != nil {
		t.Fatal(err)
	}

	entities, err := s.LoadEntities()
	if err != nil {
		t.Fatalf("LoadEntities: %v", err)
	}
	if r, ok := entities.Lookup("slowdive"); ok {
		t.Errorf("untagged artist loaded as %+v, want a cache miss", r)
	}
	if r, ok := entities.Lookup("nobody"); !ok || !r.Negative {
		t.Errorf("nobody = %+v, found %v", r, ok)
	}
}
