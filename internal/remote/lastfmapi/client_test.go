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
package lastfmapi

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/ademuri/lastfm-go/lastfm"

	"github.com/ademuri/scrobble-moods/internal/cache"
	"github.com/ademuri/scrobble-moods/internal/remote"
)

type fakeAPI struct {
	tracks    lastfm.UserGetRecentTracks
	tags      lastfm.ArtistGetTopTags
	err       error
	delay     time.Duration
	gotParams lastfm.P
}

func (f *fakeAPI) recentTracks(p lastfm.P) (lastfm.UserGetRecentTracks, error) {
	f.gotParams = p
	time.Sleep(f.delay)
	return f.tracks, f.err
}

func (f *fakeAPI) topTags(p lastfm.P) (lastfm.ArtistGetTopTags, error) {
	f.gotParams = p
	time.Sleep(f.delay)
	return f.tags, f.err
}

// newRecentTracks builds a response with n empty rows. The row type is
// anonymous in the client library, so the slice is made with reflect.
func newRecentTracks(n, totalPages int) lastfm.UserGetRecentTracks {
	var r lastfm.UserGetRecentTracks
	rows := reflect.MakeSlice(reflect.TypeOf(r.Tracks), n, n)
	reflect.ValueOf(&r.Tracks).Elem().Set(rows)
	r.TotalPages = totalPages
	return r
}

func newTopTags(names ...string) lastfm.ArtistGetTopTags {
	var r lastfm.ArtistGetTopTags
	rows := reflect.MakeSlice(reflect.TypeOf(r.Tags), len(names), len(names))
	reflect.ValueOf(&r.Tags).Elem().Set(rows)
	for i, name := range names {
		r.Tags[i].Name = name
	}
	return r
}

func TestFetchPage(t *testing.T) {
	resp := newRecentTracks(4, 3)
	resp.Tracks[0].NowPlaying = "true"
	resp.Tracks[0].Artist.Name = "Now Playing"
	resp.Tracks[0].Name = "Current"

	resp.Tracks[1].Artist.Name = "Slowdive"
	resp.Tracks[1].Name = "Alison"
	resp.Tracks[1].Album.Name = "Souvlaki"
	resp.Tracks[1].Date.Uts = "1704067200"

	resp.Tracks[2].Artist.Name = "Broken"
	resp.Tracks[2].Name = "No Date"
	resp.Tracks[2].Date.Uts = "0"

	resp.Tracks[3].Artist.Name = "Ride"
	resp.Tracks[3].Name = "Vapour Trail"
	resp.Tracks[3].Date.Uts = "1704060000"

	fake := &fakeAPI{tracks: resp}
	c := &Client{api: fake}
	from := time.Unix(1704000000, 0)

	page, err := c.FetchPage(context.Background(), "testuser", from, "2")
	if err != nil {
		t.Fatalf("FetchPage: %v", err)
	}

	want := []cache.Event{
		{Artist: "Slowdive", Track: "Alison", Album: "Souvlaki", Timestamp: 1704067200},
		{Artist: "Ride", Track: "Vapour Trail", Timestamp: 1704060000},
	}
	if !reflect.DeepEqual(page.Events, want) {
		t.Errorf("Events = %+v, want %+v", page.Events, want)
	}
	if page.Next != "3" {
		t.Errorf("Next = %q, want \"3\"", page.Next)
	}
	if fake.gotParams["page"] != 2 || fake.gotParams["from"] != int64(1704000000) || fake.gotParams["limit"] != PageSize {
		t.Errorf("unexpected params: %v", fake.gotParams)
	}
}

func TestFetchPageLast(t *testing.T) {
	c := &Client{api: &fakeAPI{tracks: newRecentTracks(0, 1)}}
	page, err := c.FetchPage(context.Background(), "testuser", time.Time{}, "")
	if err != nil {
		t.Fatalf("FetchPage: %v", err)
	}
	if page.Next != "" || len(page.Events) != 0 {
		t.Errorf("FetchPage() = %+v, want an empty last page", page)
	}
}

func TestFetchPageBadToken(t *testing.T) {
	c := &Client{api: &fakeAPI{}}
	_, err := c.FetchPage(context.Background(), "testuser", time.Time{}, "next")
	if !errors.Is(err, remote.ErrFatal) {
		t.Errorf("FetchPage() error = %v, want fatal", err)
	}
}

func TestFetchTags(t *testing.T) {
	names := []string{"shoegaze", "dream pop", "", "alternative", "british", "90s", "indie",
		"ambient", "rock", "noise pop", "ethereal", "post-rock", "seen live"}
	c := &Client{api: &fakeAPI{tags: newTopTags(names...)}}

	tags, err := c.FetchTags(context.Background(), "Slowdive")
	if err != nil {
		t.Fatalf("FetchTags: %v", err)
	}
	if len(tags) != TagLimit {
		t.Fatalf("got %d tags, want %d", len(tags), TagLimit)
	}
	if tags[0] != "shoegaze" || tags[2] != "alternative" || tags[9] != "ethereal" {
		t.Errorf("unexpected tags: %v", tags)
	}
}

func TestClassify(t *testing.T) {
	cases := []struct {
		op   string
		err  error
		want error
	}{
		{opTopTags, &lastfm.LastfmError{Code: codeInvalidParameters}, remote.ErrNotFound},
		{opRecentTracks, &lastfm.LastfmError{Code: codeInvalidParameters}, remote.ErrFatal},
		{opRecentTracks, &lastfm.LastfmError{Code: codeRateLimitExceeded}, remote.ErrRateLimited},
		{opRecentTracks, &lastfm.LastfmError{Code: codeServiceOffline}, remote.ErrTransient},
		{opRecentTracks, &lastfm.LastfmError{Code: codeTempUnavailable}, remote.ErrTransient},
		{opRecentTracks, &lastfm.LastfmError{Code: codeOperationFailed}, remote.ErrTransient},
		{opRecentTracks, &lastfm.LastfmError{Code: 503}, remote.ErrTransient},
		{opRecentTracks, &lastfm.LastfmError{Code: codeInvalidAPIKey}, remote.ErrFatal},
		{opTopTags, &lastfm.LastfmError{Code: codeInvalidSessionKey}, remote.ErrFatal},
		{opTopTags, &lastfm.LastfmError{Code: 99}, remote.ErrFatal},
		{opTopTags, errors.New("unexpected EOF"), remote.ErrTransient},
		{opTopTags, context.DeadlineExceeded, remote.ErrTransient},
	}

	for _, c := range cases {
		got := classify(c.op, c.err)
		if !errors.Is(got, c.want) {
			t.Errorf("classify(%s, %v) = %v, want %v", c.op, c.err, got, c.want)
		}
	}

	if got := classify(opTopTags, context.Canceled); got != context.Canceled {
		t.Errorf("cancellation should pass through unchanged, got %v", got)
	}
}

func TestTagTimeout(t *testing.T) {
	c := &Client{
		api:        &fakeAPI{tags: newTopTags("rock"), delay: 200 * time.Millisecond},
		tagTimeout: 10 * time.Millisecond,
	}

	_, err := c.FetchTags(context.Background(), "Slow Artist")
	if !errors.Is(err, remote.ErrTransient) || !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("FetchTags() error = %v, want a transient deadline error", err)
	}
}

func TestCancelledContext(t *testing.T) {
	c := &Client{api: &fakeAPI{tracks: newRecentTracks(0, 1), delay: 200 * time.Millisecond}}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.FetchPage(ctx, "testuser", time.Time{}, "")
	if !errors.Is(err, context.Canceled) {
		t.Errorf("FetchPage() error = %v, want context.Canceled", err)
	}
	if remote.IsTransient(err) {
		t.Error("cancellation must not be retried")
	}
}
