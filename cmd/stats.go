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
package cmd

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/ademuri/scrobble-moods/internal/reconcile"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Prints what the local cache holds",
	Run: func(cmd *cobra.Command, args []string) {
		if err := runStats(os.Stdout, cacheConfigFromViper()); err != nil {
			fmt.Println(err)
			os.Exit(1)
		}
	},
}

func init() {
	rootCmd.AddCommand(statsCmd)
}

func runStats(out io.Writer, config CacheConfig) error {
	s, err := openSession(config)
	if err != nil {
		return err
	}
	defer s.close()

	stats := reconcile.CacheStats(s.caches)
	state := s.caches.Events.State()

	table := tablewriter.NewWriter(out)
	table.Header([]string{"Key", "Value"})
	rows := [][]string{
		{"user", s.user},
		{"event_count", strconv.Itoa(stats.EventCount)},
		{"entity_count", strconv.Itoa(stats.EntityCount)},
		{"cache_hit_rate", fmt.Sprintf("%.3f", stats.CacheHitRate)},
		{"boundary", formatTime(stats.Boundary)},
		{"last_fetched_at", formatTime(state.LastFetchedAt)},
		{"complete", strconv.FormatBool(state.Complete)},
	}
	for _, row := range rows {
		if err := table.Append(row); err != nil {
			return fmt.Errorf("rendering stats: %w", err)
		}
	}
	if err := table.Render(); err != nil {
		return fmt.Errorf("rendering stats: %w", err)
	}
	return nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "never"
	}
	return t.UTC().Format(time.RFC3339)
}
