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

// Package cache holds the scrobble history and the artist tag lookups
// in memory, and persists them between runs.
package cache

import (
	"errors"
	"time"
)

// SchemaVersion is written into every persisted document.
const SchemaVersion = 1

// ErrCorrupt marks a cache document that could not be decoded. Callers
// treat it as an empty cache.
var ErrCorrupt = errors.New("cache: corrupt document")

// Event is one scrobble.
type Event struct {
	Artist    string   `json:"artist"`
	Track     string   `json:"track"`
	Album     string   `json:"album,omitempty"`
	Timestamp int64    `json:"timestamp"`
	RawTags   []string `json:"raw_tags,omitempty"`
}

// EventKey identifies an event. Last.fm has no scrobble id, so the
// (artist, track, timestamp) triple is the identity.
type EventKey struct {
	Artist    string
	Track     string
	Timestamp int64
}

func (e Event) Key() EventKey {
	return EventKey{Artist: e.Artist, Track: e.Track, Timestamp: e.Timestamp}
}

func (e Event) Time() time.Time {
	return time.Unix(e.Timestamp, 0).UTC()
}

func (e Event) valid() bool {
	return e.Artist != "" && e.Timestamp > 0
}

// EntityRecord is the result of looking up an artist's tags. Negative
// records mean the lookup succeeded and found nothing; they are never
// looked up again.
type EntityRecord struct {
	Key       string   `json:"-"`
	Tags      []string `json:"tags,omitempty"`
	FetchedAt int64    `json:"fetched_at"`
	Negative  bool     `json:"negative,omitempty"`
}

// FetchState is the bookkeeping stored next to the events.
type FetchState struct {
	User              string
	LastFetchBoundary time.Time
	LastFetchedAt     time.Time
	Complete          bool
}

// Persister loads and saves both caches. Loading a missing or corrupt
// document yields an empty cache; implementations report corruption by
// wrapping ErrCorrupt alongside the usable empty cache.
type Persister interface {
	LoadEvents(user string) (*EventCache, error)
	SaveEvents(events *EventCache) error
	LoadEntities() (*EntityCache, error)
	SaveEntities(entities *EntityCache) error
}

// Caches is the handle threaded through a run.
type Caches struct {
	Events   *EventCache
	Entities *EntityCache
}

// Load reads both caches. Corrupt documents are reported through warn and
// replaced by empty caches; any other error is returned.
func Load(p Persister, user string, warn func(err error)) (*Caches, error) {
	events, err := p.LoadEvents(user)
	if err != nil {
		if !errors.Is(err, ErrCorrupt) || events == nil {
			return nil, err
		}
		warn(err)
	}

	entities, err := p.LoadEntities()
	if err != nil {
		if !errors.Is(err, ErrCorrupt) || entities == nil {
			return nil, err
		}
		warn(err)
	}

	return &Caches{Events: events, Entities: entities}, nil
}

// Save writes both caches.
func (c *Caches) Save(p Persister) error {
	if err := p.SaveEvents(c.Events); err != nil {
		return err
	}
	return p.SaveEntities(c.Entities)
}
