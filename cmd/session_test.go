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
package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ademuri/scrobble-moods/internal/cache"
)

// seedCache writes a small history for testuser through the given backend.
func seedCache(t *testing.T, config CacheConfig) {
	t.Helper()
	s, err := openSession(config)
	if err != nil {
		t.Fatalf("openSession(): %v", err)
	}
	defer s.close()

	at := func(year int, month time.Month, day int) int64 {
		return time.Date(year, month, day, 12, 0, 0, 0, time.UTC).Unix()
	}
	s.caches.Events.Merge([]cache.Event{
		{Artist: "Slowdive", Track: "Alison", Timestamp: at(2023, time.December, 3)},
		{Artist: "Slowdive", Track: "Alison", Timestamp: at(2023, time.December, 9)},
		{Artist: "Converge", Track: "Concubine", Timestamp: at(2023, time.December, 20)},
		{Artist: "Robyn", Track: "Dancing On My Own", Timestamp: at(2024, time.March, 1)},
	})
	s.caches.Events.MarkFetched(time.Now(), true)
	s.caches.Entities.Put(cache.EntityRecord{Key: "slowdive", Tags: []string{"shoegaze", "dream pop"}, FetchedAt: 1})
	s.caches.Entities.Put(cache.EntityRecord{Key: "converge", Tags: []string{"metalcore", "hardcore"}, FetchedAt: 1})
	s.caches.Entities.Put(cache.EntityRecord{Key: "robyn", Tags: []string{"pop", "dance"}, FetchedAt: 1})
	if err := s.caches.Save(s.persister); err != nil {
		t.Fatalf("Save(): %v", err)
	}
}

func jsonConfig(t *testing.T) CacheConfig {
	return CacheConfig{Backend: backendJSON, CacheDir: t.TempDir(), User: "testuser"}
}

func TestOpenSessionEmpty(t *testing.T) {
	for _, config := range []CacheConfig{
		jsonConfig(t),
		{Backend: backendSQLite, DbPath: filepath.Join(t.TempDir(), "test.db"), User: "testuser"},
	} {
		s, err := openSession(config)
		if err != nil {
			t.Fatalf("openSession(%s): %v", config.Backend, err)
		}
		if s.caches.Events.Len() != 0 || s.caches.Entities.Len() != 0 {
			t.Errorf("%s: expected empty caches", config.Backend)
		}
		s.close()
	}
}

func TestOpenSessionRoundTrip(t *testing.T) {
	for _, config := range []CacheConfig{
		jsonConfig(t),
		{Backend: backendSQLite, DbPath: filepath.Join(t.TempDir(), "test.db"), User: "testuser"},
	} {
		seedCache(t, config)

		s, err := openSession(config)
		if err != nil {
			t.Fatalf("openSession(%s): %v", config.Backend, err)
		}
		if got := s.caches.Events.Len(); got != 4 {
			t.Errorf("%s: got %d events, want 4", config.Backend, got)
		}
		if got := s.caches.Entities.Len(); got != 3 {
			t.Errorf("%s: got %d entities, want 3", config.Backend, got)
		}
		if !s.caches.Events.State().Complete {
			t.Errorf("%s: fetch state not restored", config.Backend)
		}
		s.close()
	}
}

func TestOpenSessionErrors(t *testing.T) {
	if _, err := openSession(CacheConfig{Backend: backendJSON, CacheDir: t.TempDir()}); err == nil {
		t.Error("expected an error without a user")
	}
	if _, err := openSession(CacheConfig{Backend: "redis", User: "testuser"}); err == nil {
		t.Error("expected an error for an unknown backend")
	}
}

func TestNewReconcilerRequiresCredentials(t *testing.T) {
	s, err := openSession(jsonConfig(t))
	if err != nil {
		t.Fatalf("openSession(): %v", err)
	}
	defer s.close()

	if _, err := s.newReconciler(); err == nil {
		t.Error("expected an error without api_key and secret")
	}
}

func TestOpenSessionCorruptDatabase(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "scrobbles.db")
	if err := os.WriteFile(dbPath, bytes.Repeat([]byte("garbage "), 1000), 0o644); err != nil {
		t.Fatal(err)
	}

	s, err := openSession(CacheConfig{Backend: backendSQLite, DbPath: dbPath, User: "testuser"})
	if err != nil {
		t.Fatalf("openSession() should recover from a corrupt database: %v", err)
	}
	defer s.close()
	if s.caches.Events.Len() != 0 {
		t.Errorf("expected an empty cache, got %d events", s.caches.Events.Len())
	}
	if _, err := os.Stat(dbPath + ".corrupt"); err != nil {
		t.Errorf("corrupt database should be kept aside: %v", err)
	}
}
