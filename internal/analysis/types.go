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
package analysis

import (
	"github.com/ademuri/scrobble-moods/internal/mood"
	"github.com/ademuri/scrobble-moods/internal/reconcile"
)

// Report is the top-level structure for the listening mood report.
type Report struct {
	Metadata   ReportMetadata `yaml:"report_metadata"`
	Years      []YearSummary  `yaml:"years"`
	Months     []Month        `yaml:"months"`
	Activity   Activity       `yaml:"activity"`
	TopArtists []ArtistStat   `yaml:"top_artists"`
	TopTracks  []TrackStat    `yaml:"top_tracks"`
}

type ReportMetadata struct {
	GeneratedDate    string  `yaml:"generated_date"`
	User             string  `yaml:"user"`
	MonthsAnalyzed   int     `yaml:"months_analyzed"`
	TotalScrobbles   int     `yaml:"total_scrobbles"`
	UniqueArtists    int     `yaml:"unique_artists"`
	UniqueTracks     int     `yaml:"unique_tracks"`
	DateRange        string  `yaml:"date_range"`
	AveragePerMonth  float64 `yaml:"average_per_month"`
	MoodTableVersion int     `yaml:"mood_table_version"`
}

// Month is one calendar month (UTC) of listening.
type Month struct {
	Bucket            string            `yaml:"month"`
	Year              int               `yaml:"-"`
	Scrobbles         int               `yaml:"scrobbles"`
	PrimaryMood       mood.Mood         `yaml:"primary_mood"`
	MoodWeights       map[mood.Mood]int `yaml:"mood_weights,omitempty"`
	GenreDistribution []TagStat         `yaml:"genre_distribution"`
	MoodDistribution  []MoodStat        `yaml:"mood_distribution"`

	Events []reconcile.EnrichedEvent `yaml:"-"`
	// genreCounts holds every genre's count before truncation to the top
	// entries, for yearly totals.
	genreCounts map[string]int
}

type YearSummary struct {
	Year            int        `yaml:"year"`
	Months          int        `yaml:"months"`
	Scrobbles       int        `yaml:"scrobbles"`
	AveragePerMonth float64    `yaml:"average_per_month"`
	TopGenres       []string   `yaml:"top_genres"`
	TopMoods        []MoodStat `yaml:"top_moods"`
}

type Activity struct {
	QuietestMonth   string  `yaml:"quietest_month"`
	QuietestCount   int     `yaml:"quietest_count"`
	BusiestMonth    string  `yaml:"busiest_month"`
	BusiestCount    int     `yaml:"busiest_count"`
	AveragePerMonth float64 `yaml:"average_per_month"`
}

type TagStat struct {
	Tag   string `yaml:"tag"`
	Count int    `yaml:"count"`
}

type MoodStat struct {
	Mood  mood.Mood `yaml:"mood"`
	Count int       `yaml:"count"`
}

type ArtistStat struct {
	Name        string    `yaml:"name"`
	Scrobbles   int       `yaml:"scrobbles"`
	Mood        mood.Mood `yaml:"mood"`
	PrimaryTags []string  `yaml:"primary_tags,omitempty"`
}

type TrackStat struct {
	Title     string `yaml:"title"`
	Artist    string `yaml:"artist"`
	Scrobbles int    `yaml:"scrobbles"`
}
