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
	"sort"
	"time"
)

// EventCache is an append-only set of scrobbles for one user.
type EventCache struct {
	user   string
	events []Event
	index  map[EventKey]struct{}
	sorted bool

	lastFetchBoundary time.Time
	lastFetchedAt     time.Time
	complete          bool
}

func NewEventCache(user string) *EventCache {
	return &EventCache{
		user:   user,
		index:  make(map[EventKey]struct{}),
		sorted: true,
	}
}

func (c *EventCache) User() string {
	return c.user
}

func (c *EventCache) Len() int {
	return len(c.events)
}

// LatestBoundary returns the newest event timestamp, or false if the cache
// is empty.
func (c *EventCache) LatestBoundary() (time.Time, bool) {
	if len(c.events) == 0 {
		return time.Time{}, false
	}
	var latest int64
	for _, e := range c.events {
		if e.Timestamp > latest {
			latest = e.Timestamp
		}
	}
	return time.Unix(latest, 0).UTC(), true
}

// Merge adds events whose identity is not already present and returns how
// many were added. Existing events are never modified, so merging the same
// batch twice is a no-op the second time. Events without an artist or a
// positive timestamp are skipped.
func (c *EventCache) Merge(events []Event) int {
	added := 0
	for _, e := range events {
		if !e.valid() {
			continue
		}
		k := e.Key()
		if _, ok := c.index[k]; ok {
			continue
		}
		c.index[k] = struct{}{}
		if n := len(c.events); n > 0 && less(e, c.events[n-1]) {
			c.sorted = false
		}
		c.events = append(c.events, e)
		added++
	}
	return added
}

// Contains reports whether an event with the same identity is cached.
func (c *EventCache) Contains(e Event) bool {
	_, ok := c.index[e.Key()]
	return ok
}

// Events returns the events at or after since, oldest first. A zero since
// returns everything. Events sharing a timestamp are ordered by artist and
// then track.
func (c *EventCache) Events(since time.Time) []Event {
	c.sort()
	start := 0
	if !since.IsZero() {
		cutoff := since.Unix()
		start = sort.Search(len(c.events), func(i int) bool {
			return c.events[i].Timestamp >= cutoff
		})
	}
	out := make([]Event, len(c.events)-start)
	copy(out, c.events[start:])
	return out
}

// Artists returns each distinct artist name once, in order of first
// appearance in the sorted history.
func (c *EventCache) Artists() []string {
	c.sort()
	var artists []string
	seen := make(map[string]struct{})
	for _, e := range c.events {
		if _, ok := seen[e.Artist]; ok {
			continue
		}
		seen[e.Artist] = struct{}{}
		artists = append(artists, e.Artist)
	}
	return artists
}

// State returns the fetch bookkeeping.
func (c *EventCache) State() FetchState {
	return FetchState{
		User:              c.user,
		LastFetchBoundary: c.lastFetchBoundary,
		LastFetchedAt:     c.lastFetchedAt,
		Complete:          c.complete,
	}
}

// MarkFetched records the end of a reconciliation run. Only a complete run
// moves the fetch boundary: a partial run may have merged the newest pages
// while older ones are still missing.
func (c *EventCache) MarkFetched(at time.Time, complete bool) {
	c.lastFetchedAt = at
	c.complete = complete
	if !complete {
		return
	}
	if b, ok := c.LatestBoundary(); ok {
		c.lastFetchBoundary = b
	}
}

// FetchBoundary returns the newest timestamp up to which history is known
// to be fully fetched. It is false until a run completes.
func (c *EventCache) FetchBoundary() (time.Time, bool) {
	return c.lastFetchBoundary, !c.lastFetchBoundary.IsZero()
}

// RestoreState sets the fetch bookkeeping read back by a Persister. The
// user is fixed at construction and is not changed.
func (c *EventCache) RestoreState(s FetchState) {
	c.lastFetchBoundary = s.LastFetchBoundary
	c.lastFetchedAt = s.LastFetchedAt
	c.complete = s.Complete
}

func (c *EventCache) sort() {
	if c.sorted {
		return
	}
	sort.SliceStable(c.events, func(i, j int) bool {
		return less(c.events[i], c.events[j])
	})
	c.sorted = true
}

func less(a, b Event) bool {
	if a.Timestamp != b.Timestamp {
		return a.Timestamp < b.Timestamp
	}
	if a.Artist != b.Artist {
		return a.Artist < b.Artist
	}
	return a.Track < b.Track
}
