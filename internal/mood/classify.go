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
package mood

// Assignment is the mood derived for one time bucket.
type Assignment struct {
	Bucket  string       `yaml:"bucket"`
	Mood    Mood         `yaml:"mood"`
	Weights map[Mood]int `yaml:"weights,omitempty"`
}

// Weights sums tag counts per mood. Unmapped tags and non-positive counts
// are ignored.
func Weights(counts map[string]int) map[Mood]int {
	weights := make(map[Mood]int)
	for tag, n := range counts {
		if n <= 0 {
			continue
		}
		m, ok := Lookup(tag)
		if !ok {
			continue
		}
		weights[m] += n
	}
	return weights
}

// Classify returns the mood with the strictly highest aggregated count,
// falling back to Priority on ties and to Neutral when nothing maps.
func Classify(counts map[string]int) Mood {
	return pick(Weights(counts))
}

// Assign classifies counts and keeps the per-mood weights for reporting.
func Assign(bucket string, counts map[string]int) Assignment {
	weights := Weights(counts)
	return Assignment{
		Bucket:  bucket,
		Mood:    pick(weights),
		Weights: weights,
	}
}

// CountTags gives each distinct tag a weight of one.
func CountTags(tagList []string) map[string]int {
	counts := make(map[string]int, len(tagList))
	for _, t := range tagList {
		counts[t] = 1
	}
	return counts
}

func pick(weights map[Mood]int) Mood {
	best := Neutral
	bestCount := 0
	// Walking in priority order means a later mood only wins with a
	// strictly larger count.
	for _, m := range Priority {
		if n := weights[m]; n > bestCount {
			best, bestCount = m, n
		}
	}
	return best
}
