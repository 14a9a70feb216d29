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

// Package lastfmapi reads scrobbles and artist tags from last.fm.
package lastfmapi

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/ademuri/lastfm-go/lastfm"

	"github.com/ademuri/scrobble-moods/internal/cache"
	"github.com/ademuri/scrobble-moods/internal/remote"
)

const (
	// PageSize is the largest page user.getRecentTracks allows.
	PageSize = 200
	// TagLimit is how many of an artist's top tags are kept.
	TagLimit = 10

	userAgent = "scrobble-moods/1.0"
)

// last.fm error codes.
const (
	codeInvalidService       = 2
	codeInvalidMethod        = 3
	codeAuthenticationFailed = 4
	codeInvalidFormat        = 5
	codeInvalidParameters    = 6
	codeInvalidResource      = 7
	codeOperationFailed      = 8
	codeInvalidSessionKey    = 9
	codeInvalidAPIKey        = 10
	codeServiceOffline       = 11
	codeInvalidSignature     = 13
	codeUnauthorizedToken    = 14
	codeExpiredToken         = 15
	codeTempUnavailable      = 16
	codeSuspendedAPIKey      = 26
	codeRateLimitExceeded    = 29
)

const (
	opRecentTracks = "user.getRecentTracks"
	opTopTags      = "artist.getTopTags"
)

// api is the part of the last.fm client this package uses.
type api interface {
	recentTracks(p lastfm.P) (lastfm.UserGetRecentTracks, error)
	topTags(p lastfm.P) (lastfm.ArtistGetTopTags, error)
}

type lastfmAPI struct {
	client *lastfm.Api
}

func (a lastfmAPI) recentTracks(p lastfm.P) (lastfm.UserGetRecentTracks, error) {
	return a.client.User.GetRecentTracks(p)
}

func (a lastfmAPI) topTags(p lastfm.P) (lastfm.ArtistGetTopTags, error) {
	return a.client.Artist.GetTopTags(p)
}

type Options struct {
	// SessionKey is optional; it lets private profiles be read.
	SessionKey  string
	PageTimeout time.Duration
	TagTimeout  time.Duration
}

// Client implements remote.PagedEventSource and remote.EntityTagSource.
type Client struct {
	api         api
	pageTimeout time.Duration
	tagTimeout  time.Duration
}

func New(apiKey, secret string, opts Options) *Client {
	lastfmClient := lastfm.New(apiKey, secret)
	lastfmClient.SetUserAgent(userAgent)
	if opts.SessionKey != "" {
		lastfmClient.SetSession(opts.SessionKey)
	}
	return &Client{
		api:         lastfmAPI{client: lastfmClient},
		pageTimeout: opts.PageTimeout,
		tagTimeout:  opts.TagTimeout,
	}
}

// FetchPage returns one page of scrobbles at or after from. Tokens are page
// numbers; the empty token is page 1. Now-playing rows and rows without a
// timestamp are dropped.
func (c *Client) FetchPage(ctx context.Context, user string, from time.Time, token string) (remote.Page, error) {
	page := 1
	if token != "" {
		var err error
		page, err = strconv.Atoi(token)
		if err != nil || page < 1 {
			return remote.Page{}, remote.Wrap(remote.KindFatal, opRecentTracks, fmt.Errorf("invalid page token %q", token))
		}
	}

	params := lastfm.P{
		"limit": PageSize,
		"page":  page,
		"user":  user,
	}
	if !from.IsZero() {
		params["from"] = from.Unix()
	}

	recentTracks, err := withTimeout(ctx, c.pageTimeout, func() (lastfm.UserGetRecentTracks, error) {
		return c.api.recentTracks(params)
	})
	if err != nil {
		return remote.Page{}, classify(opRecentTracks, err)
	}

	result := remote.Page{
		Events:     toEvents(recentTracks),
		TotalPages: recentTracks.TotalPages,
	}
	if page < recentTracks.TotalPages {
		result.Next = strconv.Itoa(page + 1)
	}
	return result, nil
}

// FetchTags returns up to TagLimit of the artist's top tags, most used
// first. An artist last.fm does not know yields a KindNotFound error.
func (c *Client) FetchTags(ctx context.Context, artist string) ([]string, error) {
	topTags, err := withTimeout(ctx, c.tagTimeout, func() (lastfm.ArtistGetTopTags, error) {
		return c.api.topTags(lastfm.P{
			"artist":      artist,
			"autocorrect": 1,
		})
	})
	if err != nil {
		return nil, classify(opTopTags, err)
	}

	var tags []string
	for _, t := range topTags.Tags {
		if t.Name == "" {
			continue
		}
		tags = append(tags, t.Name)
		if len(tags) == TagLimit {
			break
		}
	}
	return tags, nil
}

func toEvents(recentTracks lastfm.UserGetRecentTracks) []cache.Event {
	events := make([]cache.Event, 0, len(recentTracks.Tracks))
	for _, t := range recentTracks.Tracks {
		if t.NowPlaying == "true" {
			continue
		}
		uts, err := strconv.ParseInt(t.Date.Uts, 10, 64)
		if err != nil || uts <= 0 {
			continue
		}
		events = append(events, cache.Event{
			Artist:    t.Artist.Name,
			Track:     t.Name,
			Album:     t.Album.Name,
			Timestamp: uts,
		})
	}
	return events
}

// classify maps a last.fm failure onto the remote error kinds. Code 6
// means a missing artist for tag lookups but a missing user for history
// pages, which no retry will fix.
func classify(op string, err error) error {
	if errors.Is(err, context.Canceled) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return remote.Wrap(remote.KindTransient, op, err)
	}

	var lerr *lastfm.LastfmError
	if !errors.As(err, &lerr) {
		return remote.Wrap(remote.KindTransient, op, err)
	}

	switch lerr.Code {
	case codeRateLimitExceeded:
		return remote.Wrap(remote.KindRateLimited, op, err)
	case codeOperationFailed, codeServiceOffline, codeTempUnavailable:
		return remote.Wrap(remote.KindTransient, op, err)
	case codeInvalidParameters:
		if op == opTopTags {
			return remote.Wrap(remote.KindNotFound, op, err)
		}
		return remote.Wrap(remote.KindFatal, op, err)
	case codeInvalidService, codeInvalidMethod, codeAuthenticationFailed, codeInvalidFormat,
		codeInvalidResource, codeInvalidSessionKey, codeInvalidAPIKey, codeInvalidSignature,
		codeUnauthorizedToken, codeExpiredToken, codeSuspendedAPIKey:
		return remote.Wrap(remote.KindFatal, op, err)
	}
	if lerr.Code/100 == 5 {
		return remote.Wrap(remote.KindTransient, op, err)
	}
	return remote.Wrap(remote.KindFatal, op, err)
}

// withTimeout runs fn, giving up when ctx is done or timeout passes. The
// last.fm client takes no context, so an abandoned call finishes in the
// background and its result is dropped.
func withTimeout[T any](ctx context.Context, timeout time.Duration, fn func() (T, error)) (T, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	type result struct {
		value T
		err   error
	}
	done := make(chan result, 1)
	go func() {
		v, err := fn()
		done <- result{value: v, err: err}
	}()

	select {
	case r := <-done:
		return r.value, r.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}
