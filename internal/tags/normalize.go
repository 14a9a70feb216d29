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

// Package tags canonicalizes free-text last.fm tags and artist names.
package tags

import (
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Leading tokens that carry no genre information.
var noisePrefixes = []string{
	"the ",
}

// Normalize returns the canonical form of a raw tag: NFKC folded, lower
// case, trimmed, with runs of whitespace (and underscores) collapsed to a
// single space and a leading "the " removed. It never fails; input that
// needs no changes is returned as-is.
func Normalize(raw string) string {
	s := fold(raw)
	for _, prefix := range noisePrefixes {
		if strings.HasPrefix(s, prefix) && len(s) > len(prefix) {
			s = strings.TrimSpace(s[len(prefix):])
		}
	}
	return s
}

// NormalizeAll normalizes each tag, dropping empties and duplicates while
// keeping the first occurrence's position.
func NormalizeAll(raw []string) []string {
	var out []string
	seen := make(map[string]struct{}, len(raw))
	for _, r := range raw {
		t := Normalize(r)
		if t == "" {
			continue
		}
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}

// EntityKey is the lookup key for an artist. It folds case and whitespace
// like Normalize but keeps a leading "the", so "The National" and
// "National" stay distinct artists.
func EntityKey(artist string) string {
	return fold(artist)
}

func fold(raw string) string {
	s := norm.NFKC.String(raw)
	s = strings.ToLower(s)
	s = strings.ReplaceAll(s, "_", " ")
	return strings.Join(strings.Fields(s), " ")
}
