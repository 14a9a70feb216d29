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
package cache

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"
)

const (
	EventsFile   = "events.json"
	EntitiesFile = "entities.json"
)

// FileStore keeps each cache in its own JSON document under Dir.
type FileStore struct {
	Dir string
}

func NewFileStore(dir string) *FileStore {
	return &FileStore{Dir: dir}
}

type eventDocument struct {
	SchemaVersion     int        `json:"schema_version"`
	User              string     `json:"user"`
	Events            []Event    `json:"events"`
	LastFetchBoundary *time.Time `json:"last_fetch_boundary,omitempty"`
	LastFetchedAt     *time.Time `json:"last_fetched_at,omitempty"`
	Complete          bool       `json:"complete"`
}

type entityDocument struct {
	SchemaVersion int                     `json:"schema_version"`
	Entities      map[string]EntityRecord `json:"entities"`
}

// LoadEvents reads the event document for user. A document written for
// another user is ignored.
func (s *FileStore) LoadEvents(user string) (*EventCache, error) {
	c := NewEventCache(user)
	path := filepath.Join(s.Dir, EventsFile)

	var doc eventDocument
	found, err := readDocument(path, &doc)
	if err != nil || !found {
		return c, err
	}
	if doc.User != user {
		return c, nil
	}

	c.Merge(doc.Events)
	state := FetchState{Complete: doc.Complete}
	if doc.LastFetchBoundary != nil {
		state.LastFetchBoundary = *doc.LastFetchBoundary
	}
	if doc.LastFetchedAt != nil {
		state.LastFetchedAt = *doc.LastFetchedAt
	}
	c.RestoreState(state)
	return c, nil
}

func (s *FileStore) SaveEvents(c *EventCache) error {
	state := c.State()
	doc := eventDocument{
		SchemaVersion: SchemaVersion,
		User:          c.User(),
		Events:        c.Events(time.Time{}),
		Complete:      state.Complete,
	}
	if !state.LastFetchBoundary.IsZero() {
		doc.LastFetchBoundary = &state.LastFetchBoundary
	}
	if !state.LastFetchedAt.IsZero() {
		doc.LastFetchedAt = &state.LastFetchedAt
	}
	return writeDocument(filepath.Join(s.Dir, EventsFile), doc)
}

func (s *FileStore) LoadEntities() (*EntityCache, error) {
	c := NewEntityCache()
	path := filepath.Join(s.Dir, EntitiesFile)

	var doc entityDocument
	found, err := readDocument(path, &doc)
	if err != nil || !found {
		return c, err
	}

	for key, r := range doc.Entities {
		if !usable(key, r) {
			continue
		}
		r.Key = key
		c.Put(r)
	}
	return c, nil
}

func (s *FileStore) SaveEntities(c *EntityCache) error {
	doc := entityDocument{
		SchemaVersion: SchemaVersion,
		Entities:      make(map[string]EntityRecord, c.Len()),
	}
	for _, r := range c.Records() {
		doc.Entities[r.Key] = r
	}
	return writeDocument(filepath.Join(s.Dir, EntitiesFile), doc)
}

// usable reports whether a persisted record says something: either tags or
// an explicit negative. Anything else is dropped and looked up again.
func usable(key string, r EntityRecord) bool {
	return key != "" && (len(r.Tags) > 0 || r.Negative)
}

// readDocument decodes path into v. A missing file is not an error. A file
// that cannot be decoded returns an error wrapping ErrCorrupt.
func readDocument(path string, v interface{}) (bool, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("%w: reading %s: %v", ErrCorrupt, path, err)
	}

	if err := json.Unmarshal(data, v); err != nil {
		return false, fmt.Errorf("%w: decoding %s: %v", ErrCorrupt, path, err)
	}
	return true, nil
}

// writeDocument replaces path atomically: the JSON goes to a temp file in
// the same directory which is synced and then renamed over path.
func writeDocument(path string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding %s: %w", path, err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating cache dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("writing %s: %w", tmpName, err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("syncing %s: %w", tmpName, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing %s: %w", tmpName, err)
	}

	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("replacing %s: %w", path, err)
	}
	return nil
}
