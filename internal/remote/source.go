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

// Package remote defines what the reconciler needs from the scrobble
// service, independent of how it is reached.
package remote

import (
	"context"
	"time"

	"github.com/ademuri/scrobble-moods/internal/cache"
)

// Page is one page of a user's history.
type Page struct {
	Events []cache.Event
	// Next is the token for the following page, empty on the last one.
	Next string
	// TotalPages is the page count reported by the service, if known.
	TotalPages int
}

// PagedEventSource returns a user's scrobbles at or after from, one page
// at a time. An empty token requests the first page. Calls with the same
// arguments must be safe to repeat.
type PagedEventSource interface {
	FetchPage(ctx context.Context, user string, from time.Time, token string) (Page, error)
}

// EntityTagSource returns the genre tags for an artist, most relevant
// first. Errors should be *Error values so callers can tell rate limits,
// missing artists and fatal failures apart.
type EntityTagSource interface {
	FetchTags(ctx context.Context, artist string) ([]string, error)
}
