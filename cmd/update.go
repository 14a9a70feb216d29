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
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/ademuri/scrobble-moods/internal/reconcile"
)

type UpdateConfig struct {
	Cache CacheConfig
	Since string
	Force bool
}

// updateCmd represents the update command
var updateCmd = &cobra.Command{
	Use:   "update",
	Short: "Fetches new scrobbles and artist tags from last.fm",
	Long: `Brings the local cache up to date with last.fm. Only scrobbles newer than
the cached ones are fetched, and each artist's tags are looked up at most
once. An interrupted or failed run keeps everything fetched so far.`,
	Run: func(cmd *cobra.Command, args []string) {
		force, _ := cmd.Flags().GetBool("force")
		since, _ := cmd.Flags().GetString("since")
		config := UpdateConfig{
			Cache: cacheConfigFromViper(),
			Since: since,
			Force: force,
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		result, stats, err := runUpdate(ctx, config)
		if result != nil {
			printUpdateResult(os.Stdout, result, stats)
		}
		if err != nil {
			fmt.Println(err)
			os.Exit(1)
		}
		if config.Force && result.Status != reconcile.StatusComplete {
			fmt.Printf("Forced update did not complete: %s\n", result.Status)
			os.Exit(1)
		}
	},
}

func init() {
	rootCmd.AddCommand(updateCmd)

	updateCmd.Flags().String("since", "", "Only fetch scrobbles after this date: yyyy, yyyy-mm, yyyy-mm-dd or 30d, 12w, 6m, 10y")
	updateCmd.Flags().BoolP("force", "f", false, "Refetch all history from --since, ignoring what's already cached (idempotent)")
}

func runUpdate(ctx context.Context, config UpdateConfig) (*reconcile.Result, reconcile.Stats, error) {
	since, err := parseSince(config.Since)
	if err != nil {
		return nil, reconcile.Stats{}, err
	}

	s, err := openSession(config.Cache)
	if err != nil {
		return nil, reconcile.Stats{}, err
	}
	defer s.close()

	r, err := s.newReconciler()
	if err != nil {
		return nil, reconcile.Stats{}, err
	}

	result, err := r.Reconcile(ctx, reconcile.Request{User: s.user, Since: since, Force: config.Force})
	return result, r.Stats(), err
}

func printUpdateResult(out io.Writer, result *reconcile.Result, stats reconcile.Stats) {
	table := tablewriter.NewWriter(out)
	table.Header([]string{"Status", "Pages", "New scrobbles", "Artists fetched", "Artists failed"})
	table.Append([]string{
		string(result.Status),
		strconv.Itoa(result.PagesFetched),
		strconv.Itoa(result.EventsAdded),
		strconv.Itoa(result.EntitiesFetched),
		strconv.Itoa(result.EntitiesFailed),
	})
	table.Render()

	if result.Err != nil {
		fmt.Fprintf(out, "Stopped early: %v\n", result.Err)
	}
	printStats(out, stats)
}

func printStats(out io.Writer, stats reconcile.Stats) {
	fmt.Fprintf(out, "Cached: %d scrobbles, %d artists. Tag cache hit rate %.1f%%. Newest scrobble %s.\n",
		stats.EventCount, stats.EntityCount, stats.CacheHitRate*100, formatTime(stats.Boundary))
}
