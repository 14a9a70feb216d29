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
	"time"

	"github.com/ademuri/scrobble-moods/internal/cache"
)

var timeZero time.Time

// LoadEvents reads the user's events and fetch state. Rows that cannot be
// decoded make the whole load fail with cache.ErrCorrupt, and an empty
// cache is returned alongside so the caller can carry on.
func (s *Store) LoadEvents(user string) (*cache.EventCache, error) {
	c := cache.NewEventCache(user)

	state, err := s.loadUser(user)
	if err != nil {
		return c, err
	}

	rows, err := s.db.Query("SELECT artist, track, album, date FROM Listen WHERE user = ? ORDER BY date ASC", user)
	if err != nil {
		return c, readError("querying listens", err)
	}
	defer rows.Close()

	var events []cache.Event
	for rows.Next() {
		var e cache.Event
		if err := rows.Scan(&e.Artist, &e.Track, &e.Album, &e.Timestamp); err != nil {
			return cache.NewEventCache(user), fmt.Errorf("%w: scanning listen: %v", cache.ErrCorrupt, err)
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return cache.NewEventCache(user), fmt.Errorf("%w: reading listens: %v", cache.ErrCorrupt, err)
	}

	c.Merge(events)
	c.RestoreState(state)
	return c, nil
}

func (s *Store) loadUser(user string) (cache.FetchState, error) {
	state := cache.FetchState{User: user}
	row := s.db.QueryRow("SELECT last_updated, last_fetch_boundary, complete FROM User WHERE name = ?", user)

	var updated sql.NullTime
	var boundary sql.NullInt64
	var complete bool
	err := row.Scan(&updated, &boundary, &complete)
	if err == sql.ErrNoRows {
		return state, nil
	}
	if err != nil {
		return state, fmt.Errorf("%w: getting fetch state for %q: %v", cache.ErrCorrupt, user, err)
	}

	if updated.Valid {
		state.LastFetchedAt = updated.Time
	}
	if boundary.Valid {
		state.LastFetchBoundary = time.Unix(boundary.Int64, 0).UTC()
	}
	state.Complete = complete
	return state, nil
}

// LoadEntities reads every artist tag record, tags in rank order.
func (s *Store) LoadEntities() (*cache.EntityCache, error) {
	c := cache.NewEntityCache()

	records := make(map[string]*cache.EntityRecord)
	var order []string
	rows, err := s.db.Query("SELECT name, tags_last_updated, negative FROM Artist WHERE name <> ''")
	if err != nil {
		return c, readError("querying artists", err)
	}
	defer rows.Close()

	for rows.Next() {
		r := &cache.EntityRecord{}
		var fetchedAt sql.NullInt64
		if err := rows.Scan(&r.Key, &fetchedAt, &r.Negative); err != nil {
			return cache.NewEntityCache(), fmt.Errorf("%w: scanning artist: %v", cache.ErrCorrupt, err)
		}
		r.FetchedAt = fetchedAt.Int64
		records[r.Key] = r
		order = append(order, r.Key)
	}
	if err := rows.Err(); err != nil {
		return cache.NewEntityCache(), fmt.Errorf("%w: reading artists: %v", cache.ErrCorrupt, err)
	}

	if err := s.loadArtistTags(records); err != nil {
		return cache.NewEntityCache(), err
	}

	for _, key := range order {
		r := records[key]
		// An artist row with no tags that was never marked negative is not
		// a lookup result. Leave it out so it is fetched again.
		if len(r.Tags) == 0 && !r.Negative {
			continue
		}
		if len(r.Tags) > 0 {
			r.Negative = false
		}
		c.Put(*r)
	}
	return c, nil
}

func (s *Store) loadArtistTags(records map[string]*cache.EntityRecord) error {
	rows, err := s.db.Query("SELECT artist, tag FROM ArtistTag ORDER BY artist, rank ASC")
	if err != nil {
		return readError("querying artist tags", err)
	}
	defer rows.Close()

	for rows.Next() {
		var artist, tag string
		if err := rows.Scan(&artist, &tag); err != nil {
			return fmt.Errorf("%w: scanning artist tag: %v", cache.ErrCorrupt, err)
		}
		if r, ok := records[artist]; ok {
			r.Tags = append(r.Tags, tag)
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("%w: reading artist tags: %v", cache.ErrCorrupt, err)
	}
	return nil
}
