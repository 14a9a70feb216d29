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
package reconcile

import (
	"time"

	"github.com/ademuri/scrobble-moods/internal/cache"
	"github.com/ademuri/scrobble-moods/internal/mood"
	"github.com/ademuri/scrobble-moods/internal/tags"
)

// EnrichedEvent is a cached scrobble with its artist's tags and the mood
// those tags classify to.
type EnrichedEvent struct {
	cache.Event
	Tags []string
	Mood mood.Mood
}

// EnrichedEvents returns the cached events at or after since, oldest
// first. Artists without a tag record get no tags and the Neutral mood.
func (r *Reconciler) EnrichedEvents(since time.Time) []EnrichedEvent {
	return Enrich(r.caches, since)
}

// Enrich joins cached events with their tag records without touching the
// remote side.
func Enrich(caches *cache.Caches, since time.Time) []EnrichedEvent {
	events := caches.Events.Events(since)
	out := make([]EnrichedEvent, 0, len(events))
	moods := make(map[string]mood.Mood)
	for _, e := range events {
		key := tags.EntityKey(e.Artist)
		var t []string
		if r, ok := caches.Entities.Lookup(key); ok {
			t = r.Tags
		}
		m, ok := moods[key]
		if !ok {
			m = mood.Classify(mood.CountTags(t))
			moods[key] = m
		}
		out = append(out, EnrichedEvent{Event: e, Tags: t, Mood: m})
	}
	return out
}

type Stats struct {
	EntityCount  int
	EventCount   int
	CacheHitRate float64
	// Boundary is the newest cached event time, zero when empty.
	Boundary time.Time
}

func (r *Reconciler) Stats() Stats {
	return CacheStats(r.caches)
}

func CacheStats(caches *cache.Caches) Stats {
	boundary, _ := caches.Events.LatestBoundary()
	return Stats{
		EntityCount:  caches.Entities.Len(),
		EventCount:   caches.Events.Len(),
		CacheHitRate: caches.Entities.HitRate(),
		Boundary:     boundary,
	}
}
