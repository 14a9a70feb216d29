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
	"regexp"
	"strconv"
	"time"
)

// ParsedDate is a parsed datestring and the precision it was given in.
type ParsedDate struct {
	Date  time.Time
	Year  bool
	Month bool
	Day   bool
}

var relativeDate = regexp.MustCompile(`^(\d+)([dwmy])$`)

func parseDateRangeFromArgs(args []string) (start time.Time, end time.Time, err error) {
	switch len(args) {
	case 1:
		start, end, err = getImplicitDateRange(args[0])

	case 2:
		start, end, err = getExplicitDateRange(args[0], args[1])

	default:
		err = fmt.Errorf("Expected one or two date arguments")
	}
	return
}

func getImplicitDateRange(ds string) (start time.Time, end time.Time, err error) {
	date, err := parseSingleDatestring(ds)
	if err != nil {
		return
	}

	start = date.Date
	switch {
	case date.Year:
		end = start.AddDate(1, 0, 0)

	case date.Month:
		end = start.AddDate(0, 1, 0)

	case date.Day:
		end = start.AddDate(0, 0, 1)

	default:
		// Relative dates run up to now.
		end = time.Now()
	}

	return
}

func getExplicitDateRange(startString, endString string) (start time.Time, end time.Time, err error) {
	startParsed, err := parseSingleDatestring(startString)
	if err != nil {
		return
	}
	start = startParsed.Date

	endParsed, err := parseSingleDatestring(endString)
	if err != nil {
		return
	}
	end = endParsed.Date

	return
}

// parseSince parses a --since value. Empty means the beginning of time.
func parseSince(ds string) (time.Time, error) {
	if ds == "" {
		return time.Time{}, nil
	}
	date, err := parseSingleDatestring(ds)
	if err != nil {
		return time.Time{}, fmt.Errorf("--since: %w", err)
	}
	return date.Date, nil
}

// parseSingleDatestring accepts yyyy, yyyy-mm, yyyy-mm-dd, or a relative
// amount back from now such as 30d, 12w, 6m or 10y.
func parseSingleDatestring(ds string) (date ParsedDate, err error) {
	layouts := []struct {
		pattern string
		layout  string
		set     func(*ParsedDate)
	}{
		{`^\d{4}$`, "2006", func(d *ParsedDate) { d.Year = true }},
		{`^\d{4}-\d{2}$`, "2006-01", func(d *ParsedDate) { d.Month = true }},
		{`^\d{4}-\d{2}-\d{2}$`, "2006-01-02", func(d *ParsedDate) { d.Day = true }},
	}

	for _, l := range layouts {
		matched, matchErr := regexp.MatchString(l.pattern, ds)
		if matchErr != nil {
			err = fmt.Errorf("Parsing datestring %q: %w", ds, matchErr)
			return
		}
		if !matched {
			continue
		}
		date.Date, err = time.Parse(l.layout, ds)
		if err != nil {
			err = fmt.Errorf("Parsing datestring %q: %w", ds, err)
			return
		}
		l.set(&date)
		return
	}

	if m := relativeDate.FindStringSubmatch(ds); m != nil {
		amount, convErr := strconv.Atoi(m[1])
		if convErr != nil {
			err = fmt.Errorf("Parsing relative datestring %q: %w", ds, convErr)
			return
		}
		now := time.Now()
		switch m[2] {
		case "d":
			date.Date = now.AddDate(0, 0, -amount)
		case "w":
			date.Date = now.AddDate(0, 0, -amount*7)
		case "m":
			date.Date = now.AddDate(0, -amount, 0)
		case "y":
			date.Date = now.AddDate(-amount, 0, 0)
		}
		return
	}

	err = fmt.Errorf("Invalid format: %q", ds)
	return
}
