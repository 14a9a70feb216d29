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
	"sort"
	"strconv"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/ademuri/scrobble-moods/internal/mood"
)

var moodsCmd = &cobra.Command{
	Use:   "moods [tag...]",
	Short: "Prints the genre to mood table",
	Long: `Prints every mood in tie-break order with the genre tags that count
towards it. With arguments, classifies the given tags instead.`,
	Run: func(cmd *cobra.Command, args []string) {
		var err error
		if len(args) > 0 {
			err = printClassification(os.Stdout, args)
		} else {
			err = printMoodTable(os.Stdout)
		}
		if err != nil {
			fmt.Println(err)
			os.Exit(1)
		}
	},
}

func init() {
	rootCmd.AddCommand(moodsCmd)
}

func printMoodTable(out io.Writer) error {
	fmt.Fprintf(out, "Mood table version %d\n", mood.TableVersion)
	table := tablewriter.NewWriter(out)
	table.Header([]string{"Priority", "Mood", "Genres"})
	for i, m := range mood.All() {
		if err := table.Append([]string{strconv.Itoa(i + 1), m.Title(), strings.Join(mood.Genres(m), ", ")}); err != nil {
			return fmt.Errorf("rendering moods: %w", err)
		}
	}
	if err := table.Render(); err != nil {
		return fmt.Errorf("rendering moods: %w", err)
	}
	return nil
}

func printClassification(out io.Writer, tagList []string) error {
	weights := mood.Weights(mood.CountTags(tagList))
	moods := make([]mood.Mood, 0, len(weights))
	for m := range weights {
		moods = append(moods, m)
	}
	sort.Slice(moods, func(i, j int) bool {
		if weights[moods[i]] != weights[moods[j]] {
			return weights[moods[i]] > weights[moods[j]]
		}
		return moods[i].Outranks(moods[j])
	})

	table := tablewriter.NewWriter(out)
	table.Header([]string{"Mood", "Weight"})
	for _, m := range moods {
		if err := table.Append([]string{m.Title(), strconv.Itoa(weights[m])}); err != nil {
			return fmt.Errorf("rendering weights: %w", err)
		}
	}
	if err := table.Render(); err != nil {
		return fmt.Errorf("rendering weights: %w", err)
	}
	fmt.Fprintf(out, "Mood: %s\n", mood.Classify(mood.CountTags(tagList)).Title())
	return nil
}
