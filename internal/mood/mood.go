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

// Package mood maps genre tags to one of a fixed set of mood labels.
//
// Classification is pure: tags are normalized, looked up in a static
// many-to-one table, summed per mood, and the highest total wins. Ties are
// broken by a fixed priority order so the same input always yields the
// same mood:
//
//	Energetic > Danceable > Aggressive > Chaotic > Angsty > Melancholic >
//	Dreamy > Introspective > Nostalgic > Warm > Neutral
//
// Input with no mapped tags classifies as Neutral.
package mood

import (
	"fmt"
	"strings"
)

type Mood string

const (
	Angsty        Mood = "angsty"
	Introspective Mood = "introspective"
	Dreamy        Mood = "dreamy"
	Aggressive    Mood = "aggressive"
	Danceable     Mood = "danceable"
	Melancholic   Mood = "melancholic"
	Chaotic       Mood = "chaotic"
	Nostalgic     Mood = "nostalgic"
	Warm          Mood = "warm"
	Energetic     Mood = "energetic"
	Neutral       Mood = "neutral"
)

// Priority is the tie-break order, highest priority first. It covers every
// mood exactly once.
var Priority = []Mood{
	Energetic,
	Danceable,
	Aggressive,
	Chaotic,
	Angsty,
	Melancholic,
	Dreamy,
	Introspective,
	Nostalgic,
	Warm,
	Neutral,
}

var rank = func() map[Mood]int {
	r := make(map[Mood]int, len(Priority))
	for i, m := range Priority {
		r[m] = i
	}
	return r
}()

// All returns every mood in priority order.
func All() []Mood {
	return append([]Mood(nil), Priority...)
}

func (m Mood) Valid() bool {
	_, ok := rank[m]
	return ok
}

func (m Mood) String() string {
	return string(m)
}

// Title is the display form, e.g. "Energetic".
func (m Mood) Title() string {
	if m == "" {
		return ""
	}
	return strings.ToUpper(string(m[:1])) + string(m[1:])
}

// Parse accepts a mood name in any case.
func Parse(s string) (Mood, error) {
	m := Mood(strings.ToLower(strings.TrimSpace(s)))
	if !m.Valid() {
		return "", fmt.Errorf("unknown mood %q", s)
	}
	return m, nil
}

// Outranks reports whether a wins a tie against b.
func (m Mood) Outranks(other Mood) bool {
	return rank[m] < rank[other]
}
