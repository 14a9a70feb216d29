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
	"bytes"
	"context"
	"fmt"
	"html"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/ademuri/scrobble-moods/internal/analysis"
	"github.com/ademuri/scrobble-moods/internal/reconcile"
)

const (
	formatTable = "table"
	formatYAML  = "yaml"
)

type AnalyzeConfig struct {
	Cache   CacheConfig
	Since   string
	Force   bool
	Offline bool
	Format  string
	EmailTo string
	// Start and End restrict the report to [Start, End). Zero means
	// unbounded.
	Start time.Time
	End   time.Time
}

var analyzeCmd = &cobra.Command{
	Use:   "analyze [date] [date]",
	Short: "Reports the genres and moods of each month of listening",
	Long: `Updates the cache from last.fm (unless --offline), then classifies each
calendar month of listening into a mood.
  Optional date arguments restrict the report (e.g. '2023' or '2023-01 2023-06').
  When last.fm can't be reached the report is built from the cache alone, unless
  --force is given.`,
	Args: cobra.MaximumNArgs(2),
	PreRunE: func(cmd *cobra.Command, args []string) error {
		format, _ := cmd.Flags().GetString("format")
		if format != formatTable && format != formatYAML {
			return fmt.Errorf("--format must be %q or %q", formatTable, formatYAML)
		}
		if to, _ := cmd.Flags().GetString("email"); to != "" {
			return requireConfig("from", "sendgrid_api_key")
		}
		return nil
	},
	Run: func(cmd *cobra.Command, args []string) {
		config := AnalyzeConfig{Cache: cacheConfigFromViper()}
		config.Since, _ = cmd.Flags().GetString("since")
		config.Force, _ = cmd.Flags().GetBool("force")
		config.Offline, _ = cmd.Flags().GetBool("offline")
		config.Format, _ = cmd.Flags().GetString("format")
		config.EmailTo, _ = cmd.Flags().GetString("email")
		if len(args) > 0 {
			start, end, err := parseDateRangeFromArgs(args)
			if err != nil {
				fmt.Println(err)
				os.Exit(1)
			}
			config.Start, config.End = start, end
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		report, err := runAnalyze(ctx, config)
		if err != nil {
			fmt.Println(err)
			os.Exit(1)
		}

		out := new(bytes.Buffer)
		if err := renderReport(out, report, config.Format); err != nil {
			fmt.Println(err)
			os.Exit(1)
		}
		fmt.Print(out.String())

		if config.EmailTo != "" {
			if err := emailReport(config.EmailTo, report.Metadata.User, out.String()); err != nil {
				fmt.Println(err)
				os.Exit(1)
			}
			fmt.Printf("Sent report to %s\n", config.EmailTo)
		}
	},
}

func init() {
	rootCmd.AddCommand(analyzeCmd)

	analyzeCmd.Flags().String("since", "", "Only fetch and report scrobbles after this date: yyyy, yyyy-mm, yyyy-mm-dd or 30d, 12w, 6m, 10y")
	analyzeCmd.Flags().BoolP("force", "f", false, "Refetch all history, and fail unless the refetch completes")
	analyzeCmd.Flags().Bool("offline", false, "Report from the cache without contacting last.fm")
	analyzeCmd.Flags().String("format", formatTable, "Output format: table or yaml")
	analyzeCmd.Flags().String("email", "", "Also email the report to this address")
}

func runAnalyze(ctx context.Context, config AnalyzeConfig) (*analysis.Report, error) {
	since, err := parseSince(config.Since)
	if err != nil {
		return nil, err
	}
	if config.Start.After(since) {
		since = config.Start
	}

	s, err := openSession(config.Cache)
	if err != nil {
		return nil, err
	}
	defer s.close()

	var enriched []reconcile.EnrichedEvent
	if config.Offline {
		enriched = reconcile.Enrich(s.caches, since)
	} else {
		r, err := s.newReconciler()
		if err != nil {
			return nil, err
		}
		result, err := r.Reconcile(ctx, reconcile.Request{User: s.user, Since: since, Force: config.Force})
		if err != nil {
			return nil, err
		}
		if config.Force && result.Status != reconcile.StatusComplete {
			return nil, fmt.Errorf("forced update did not complete (%s): %v", result.Status, result.Err)
		}
		enriched = r.EnrichedEvents(since)
	}

	enriched = before(enriched, config.End)
	months := analysis.GroupByMonth(enriched)
	return analysis.BuildReport(s.user, months, time.Now()), nil
}

// before drops events at or after end. A zero end keeps everything.
func before(events []reconcile.EnrichedEvent, end time.Time) []reconcile.EnrichedEvent {
	if end.IsZero() {
		return events
	}
	kept := events[:0:0]
	for _, e := range events {
		if e.Time().Before(end) {
			kept = append(kept, e)
		}
	}
	return kept
}

func renderReport(out io.Writer, report *analysis.Report, format string) error {
	switch format {
	case formatYAML:
		encoder := yaml.NewEncoder(out)
		encoder.SetIndent(2)
		if err := encoder.Encode(report); err != nil {
			return fmt.Errorf("encoding report: %w", err)
		}
		return encoder.Close()
	case formatTable:
		return renderReportTables(out, report)
	default:
		return fmt.Errorf("unknown format %q", format)
	}
}

func renderReportTables(out io.Writer, report *analysis.Report) error {
	md := report.Metadata
	if md.MonthsAnalyzed == 0 {
		fmt.Fprintf(out, "No scrobbles cached for %s\n", md.User)
		return nil
	}
	fmt.Fprintf(out, "%s: %d scrobbles of %d artists, %s\n\n", md.User, md.TotalScrobbles, md.UniqueArtists, md.DateRange)

	months := tablewriter.NewWriter(out)
	months.Header([]string{"Month", "Scrobbles", "Mood", "Top genres"})
	for _, m := range report.Months {
		var genres []string
		for i, g := range m.GenreDistribution {
			if i == 3 {
				break
			}
			genres = append(genres, g.Tag)
		}
		if err := months.Append([]string{m.Bucket, strconv.Itoa(m.Scrobbles), m.PrimaryMood.Title(), strings.Join(genres, ", ")}); err != nil {
			return fmt.Errorf("rendering months: %w", err)
		}
	}
	if err := months.Render(); err != nil {
		return fmt.Errorf("rendering months: %w", err)
	}
	fmt.Fprintln(out)

	years := tablewriter.NewWriter(out)
	years.Header([]string{"Year", "Scrobbles", "Per month", "Top moods", "Top genres"})
	for _, y := range report.Years {
		var moods []string
		for _, m := range y.TopMoods {
			moods = append(moods, m.Mood.Title())
		}
		row := []string{
			strconv.Itoa(y.Year),
			strconv.Itoa(y.Scrobbles),
			fmt.Sprintf("%.1f", y.AveragePerMonth),
			strings.Join(moods, ", "),
			strings.Join(y.TopGenres, ", "),
		}
		if err := years.Append(row); err != nil {
			return fmt.Errorf("rendering years: %w", err)
		}
	}
	if err := years.Render(); err != nil {
		return fmt.Errorf("rendering years: %w", err)
	}
	fmt.Fprintln(out)

	artists := tablewriter.NewWriter(out)
	artists.Header([]string{"Artist", "Scrobbles", "Mood", "Tags"})
	for _, a := range report.TopArtists {
		if err := artists.Append([]string{a.Name, strconv.Itoa(a.Scrobbles), a.Mood.Title(), strings.Join(a.PrimaryTags, ", ")}); err != nil {
			return fmt.Errorf("rendering artists: %w", err)
		}
	}
	if err := artists.Render(); err != nil {
		return fmt.Errorf("rendering artists: %w", err)
	}

	fmt.Fprintf(out, "Busiest month %s (%d), quietest %s (%d)\n",
		report.Activity.BusiestMonth, report.Activity.BusiestCount,
		report.Activity.QuietestMonth, report.Activity.QuietestCount)
	return nil
}

func emailReport(toAddress, user, body string) error {
	from := mail.NewEmail("scrobble-moods", viper.GetString("from"))
	to := mail.NewEmail(toAddress, toAddress)
	subject := fmt.Sprintf("Listening moods for %s", user)
	htmlBody := "<pre>" + html.EscapeString(body) + "</pre>"
	message := mail.NewSingleEmail(from, subject, to, body, htmlBody)

	client := sendgrid.NewSendClient(viper.GetString("sendgrid_api_key"))
	response, err := client.Send(message)
	if err != nil {
		return fmt.Errorf("sending email: %w", err)
	}
	if response.StatusCode >= 300 {
		return fmt.Errorf("sending email: status %d: %s", response.StatusCode, response.Body)
	}
	return nil
}
