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

// Package analysis turns enriched scrobbles into monthly genre and mood
// summaries.
package analysis

import (
	"fmt"
	"sort"
	"time"

	"github.com/ademuri/scrobble-moods/internal/mood"
	"github.com/ademuri/scrobble-moods/internal/reconcile"
)

const (
	bucketFormat = "2006-01"

	tagsPerEvent    = 3
	genresPerMonth  = 10
	genresPerYear   = 5
	moodsPerYear    = 3
	topArtistsCount = 20
	topTracksCount  = 20
	artistTagsShown = 3
)

// GroupByMonth splits events into calendar months in UTC, oldest month
// first, and classifies each month.
func GroupByMonth(events []reconcile.EnrichedEvent) []Month {
	byBucket := make(map[string]*Month)
	var buckets []string
	for _, e := range events {
		t := e.Time()
		bucket := t.Format(bucketFormat)
		m, ok := byBucket[bucket]
		if !ok {
			m = &Month{Bucket: bucket, Year: t.Year()}
			byBucket[bucket] = m
			buckets = append(buckets, bucket)
		}
		m.Events = append(m.Events, e)
	}
	sort.Strings(buckets)

	months := make([]Month, 0, len(buckets))
	for _, bucket := range buckets {
		m := byBucket[bucket]
		classifyMonth(m)
		months = append(months, *m)
	}
	return months
}

// classifyMonth fills in a month's distributions. Genre counts use each
// event's top tags only; the primary mood weighs every tag of every event.
func classifyMonth(m *Month) {
	genres := make(map[string]int)
	moods := make(map[mood.Mood]int)
	allTags := make(map[string]int)

	for _, e := range m.Events {
		for i, tag := range e.Tags {
			if i < tagsPerEvent {
				genres[tag]++
			}
			allTags[tag]++
		}
		moods[e.Mood]++
	}

	m.Scrobbles = len(m.Events)
	m.genreCounts = genres
	m.GenreDistribution = topTags(genres, genresPerMonth)
	m.MoodDistribution = topMoods(moods, 0)

	assignment := mood.Assign(m.Bucket, allTags)
	m.PrimaryMood = assignment.Mood
	m.MoodWeights = assignment.Weights
}

// BuildReport summarizes months by year and overall.
func BuildReport(user string, months []Month, now time.Time) *Report {
	report := &Report{
		Months: months,
		Metadata: ReportMetadata{
			GeneratedDate:    now.Format("2006-01-02"),
			User:             user,
			MonthsAnalyzed:   len(months),
			MoodTableVersion: mood.TableVersion,
		},
	}
	if len(months) == 0 {
		return report
	}

	artists := make(map[string]int)
	artistTags := make(map[string][]string)
	artistMoods := make(map[string]mood.Mood)
	type trackKey struct{ artist, title string }
	tracks := make(map[trackKey]int)

	for _, m := range months {
		report.Metadata.TotalScrobbles += m.Scrobbles
		for _, e := range m.Events {
			artists[e.Artist]++
			artistTags[e.Artist] = e.Tags
			artistMoods[e.Artist] = e.Mood
			tracks[trackKey{e.Artist, e.Track}]++
		}
	}

	report.Metadata.UniqueArtists = len(artists)
	report.Metadata.UniqueTracks = len(tracks)
	report.Metadata.DateRange = fmt.Sprintf("%s to %s", months[0].Bucket, months[len(months)-1].Bucket)
	report.Metadata.AveragePerMonth = average(report.Metadata.TotalScrobbles, len(months))

	report.Years = summarizeYears(months)
	report.Activity = summarizeActivity(months)

	for name, count := range artists {
		tags := artistTags[name]
		if len(tags) > artistTagsShown {
			tags = tags[:artistTagsShown]
		}
		report.TopArtists = append(report.TopArtists, ArtistStat{
			Name:        name,
			Scrobbles:   count,
			Mood:        artistMoods[name],
			PrimaryTags: tags,
		})
	}
	sort.Slice(report.TopArtists, func(i, j int) bool {
		a, b := report.TopArtists[i], report.TopArtists[j]
		if a.Scrobbles != b.Scrobbles {
			return a.Scrobbles > b.Scrobbles
		}
		return a.Name < b.Name
	})
	if len(report.TopArtists) > topArtistsCount {
		report.TopArtists = report.TopArtists[:topArtistsCount]
	}

	for k, count := range tracks {
		report.TopTracks = append(report.TopTracks, TrackStat{Title: k.title, Artist: k.artist, Scrobbles: count})
	}
	sort.Slice(report.TopTracks, func(i, j int) bool {
		a, b := report.TopTracks[i], report.TopTracks[j]
		if a.Scrobbles != b.Scrobbles {
			return a.Scrobbles > b.Scrobbles
		}
		if a.Artist != b.Artist {
			return a.Artist < b.Artist
		}
		return a.Title < b.Title
	})
	if len(report.TopTracks) > topTracksCount {
		report.TopTracks = report.TopTracks[:topTracksCount]
	}

	return report
}

func summarizeYears(months []Month) []YearSummary {
	var years []YearSummary
	genres := make(map[string]int)
	moods := make(map[mood.Mood]int)

	flush := func() {
		if len(years) == 0 {
			return
		}
		y := &years[len(years)-1]
		y.AveragePerMonth = average(y.Scrobbles, y.Months)
		for _, t := range topTags(genres, genresPerYear) {
			y.TopGenres = append(y.TopGenres, t.Tag)
		}
		y.TopMoods = topMoods(moods, moodsPerYear)
		genres = make(map[string]int)
		moods = make(map[mood.Mood]int)
	}

	for _, m := range months {
		if len(years) == 0 || years[len(years)-1].Year != m.Year {
			flush()
			years = append(years, YearSummary{Year: m.Year})
		}
		y := &years[len(years)-1]
		y.Months++
		y.Scrobbles += m.Scrobbles
		for tag, count := range m.genreCounts {
			genres[tag] += count
		}
		for _, s := range m.MoodDistribution {
			moods[s.Mood] += s.Count
		}
	}
	flush()
	return years
}

func summarizeActivity(months []Month) Activity {
	a := Activity{
		QuietestMonth: months[0].Bucket,
		QuietestCount: months[0].Scrobbles,
		BusiestMonth:  months[0].Bucket,
		BusiestCount:  months[0].Scrobbles,
	}
	total := 0
	for _, m := range months {
		total += m.Scrobbles
		if m.Scrobbles < a.QuietestCount {
			a.QuietestMonth, a.QuietestCount = m.Bucket, m.Scrobbles
		}
		if m.Scrobbles > a.BusiestCount {
			a.BusiestMonth, a.BusiestCount = m.Bucket, m.Scrobbles
		}
	}
	a.AveragePerMonth = average(total, len(months))
	return a
}

// topTags returns the n most counted tags, ties by name. n <= 0 keeps all.
func topTags(counts map[string]int, n int) []TagStat {
	stats := make([]TagStat, 0, len(counts))
	for tag, count := range counts {
		stats = append(stats, TagStat{Tag: tag, Count: count})
	}
	sort.Slice(stats, func(i, j int) bool {
		if stats[i].Count != stats[j].Count {
			return stats[i].Count > stats[j].Count
		}
		return stats[i].Tag < stats[j].Tag
	})
	if n > 0 && len(stats) > n {
		stats = stats[:n]
	}
	return stats
}

// topMoods returns the n most counted moods, ties by mood priority. n <= 0
// keeps all.
func topMoods(counts map[mood.Mood]int, n int) []MoodStat {
	stats := make([]MoodStat, 0, len(counts))
	for m, count := range counts {
		stats = append(stats, MoodStat{Mood: m, Count: count})
	}
	sort.Slice(stats, func(i, j int) bool {
		if stats[i].Count != stats[j].Count {
			return stats[i].Count > stats[j].Count
		}
		return stats[i].Mood.Outranks(stats[j].Mood)
	})
	if n > 0 && len(stats) > n {
		stats = stats[:n]
	}
	return stats
}

func average(total, n int) float64 {
	if n == 0 {
		return 0
	}
	return float64(total) / float64(n)
}
