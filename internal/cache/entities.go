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
	"context"
	"errors"
	"sort"
	"time"

	"github.com/ademuri/scrobble-moods/internal/tags"
)

// FetchFunc looks up the tags for one artist remotely.
type FetchFunc func(ctx context.Context) ([]string, error)

// ErrNoData can be returned by a FetchFunc to say the remote side has
// nothing for the artist. It is cached as a negative record rather than
// treated as a failure.
var ErrNoData = errors.New("cache: no data for entity")

// EntityCache maps artist keys to their tag lookups.
type EntityCache struct {
	records map[string]EntityRecord
	now     func() time.Time

	hits   int
	misses int
}

func NewEntityCache() *EntityCache {
	return &EntityCache{
		records: make(map[string]EntityRecord),
		now:     time.Now,
	}
}

func (c *EntityCache) Len() int {
	return len(c.records)
}

// Lookup returns the stored record for key without fetching.
func (c *EntityCache) Lookup(key string) (EntityRecord, bool) {
	r, ok := c.records[key]
	return r, ok
}

// Resolve returns the cached tags for key, fetching them at most once per
// cache lifetime. Negative records return no tags without fetching. When
// fetch fails nothing is stored, so a later run tries again, and the error
// is returned alongside nil tags.
func (c *EntityCache) Resolve(ctx context.Context, key string, fetch FetchFunc) ([]string, error) {
	if r, ok := c.records[key]; ok {
		c.hits++
		return r.Tags, nil
	}
	c.misses++

	raw, err := fetch(ctx)
	if err != nil && !errors.Is(err, ErrNoData) {
		return nil, err
	}

	r := EntityRecord{
		Key:       key,
		Tags:      tags.NormalizeAll(raw),
		FetchedAt: c.now().Unix(),
	}
	r.Negative = len(r.Tags) == 0
	c.records[key] = r
	return r.Tags, nil
}

// Put stores a record as-is, replacing any existing one.
func (c *EntityCache) Put(r EntityRecord) {
	c.records[r.Key] = r
}

// Records returns every record sorted by key.
func (c *EntityCache) Records() []EntityRecord {
	out := make([]EntityRecord, 0, len(c.records))
	for _, r := range c.records {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

// HitRate is the share of Resolve calls answered from the cache. It is
// zero when Resolve has not been called.
func (c *EntityCache) HitRate() float64 {
	total := c.hits + c.misses
	if total == 0 {
		return 0
	}
	return float64(c.hits) / float64(total)
}

// Counts returns the raw hit and miss counters.
func (c *EntityCache) Counts() (hits, misses int) {
	return c.hits, c.misses
}
