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

import (
	"fmt"

	"github.com/ademuri/scrobble-moods/internal/tags"
)

// TableVersion identifies the genre table below. Bump it whenever a tag
// moves between moods so that reports can say which mapping they used.
const TableVersion = 1

// genreTable lists, per mood, the genre tags that count towards it. Tags
// are stored in normalized form and each one belongs to exactly one mood.
var genreTable = map[Mood][]string{
	Angsty: {
		"emo", "post-hardcore", "screamo", "midwest emo", "emo revival",
		"pop punk", "punk rock", "skate punk", "easycore",
	},
	Introspective: {
		"folk", "singer-songwriter", "acoustic", "indie folk", "chamber pop",
		"baroque pop", "art pop", "freak folk",
	},
	Dreamy: {
		"shoegaze", "dream pop", "ethereal", "ambient", "space rock",
		"chillwave", "synthwave", "vaporwave", "downtempo",
	},
	Aggressive: {
		"metal", "hardcore", "death metal", "black metal", "grindcore",
		"noise rock", "sludge", "powerviolence", "mathcore", "thrash",
	},
	Danceable: {
		"pop", "dance", "disco", "funk", "house", "edm", "synth pop",
		"electropop", "nu disco", "indie dance",
	},
	Melancholic: {
		"slowcore", "sadcore", "doom", "depressive", "gothic", "dark",
		"funeral doom", "dsbm", "post-punk",
	},
	Chaotic: {
		"math rock", "noise", "experimental", "avant-garde", "art rock",
		"no wave", "free jazz", "industrial", "glitch",
	},
	Nostalgic: {
		"80s", "90s", "retro", "classic rock", "oldies", "vintage",
		"throwback", "britpop", "new wave", "post-punk revival",
	},
	Warm: {
		"lo-fi", "lofi", "bedroom pop", "soft", "mellow", "cozy",
		"easy listening", "bossa nova", "smooth",
	},
	Energetic: {
		"rock", "indie rock", "alternative rock", "garage rock", "hard rock",
		"stoner rock", "grunge", "power pop",
	},
}

// byTag is the inverted genreTable, built once at startup.
var byTag = mustIndex(genreTable)

func mustIndex(table map[Mood][]string) map[string]Mood {
	index, err := buildIndex(table)
	if err != nil {
		panic(err)
	}
	return index
}

func buildIndex(table map[Mood][]string) (map[string]Mood, error) {
	index := make(map[string]Mood)
	for m, genres := range table {
		if !m.Valid() || m == Neutral {
			return nil, fmt.Errorf("genre table: mood %q cannot own tags", m)
		}
		for _, g := range genres {
			if n := tags.Normalize(g); n != g {
				return nil, fmt.Errorf("genre table: tag %q is not normalized (want %q)", g, n)
			}
			if prev, ok := index[g]; ok {
				return nil, fmt.Errorf("genre table: tag %q mapped to both %s and %s", g, prev, m)
			}
			index[g] = m
		}
	}
	return index, nil
}

// Lookup returns the mood a genre tag maps to. The tag is normalized first.
func Lookup(tag string) (Mood, bool) {
	m, ok := byTag[tags.Normalize(tag)]
	return m, ok
}

// Genres returns the tags mapped to m, in table order.
func Genres(m Mood) []string {
	return append([]string(nil), genreTable[m]...)
}
