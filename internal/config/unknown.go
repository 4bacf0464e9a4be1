package config

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
)

// maxLevenshteinDistance is the maximum edit distance for "did you mean?"
// suggestions when unknown config keys are detected.
const maxLevenshteinDistance = 3

// knownKeys lists the valid keys of each config section.
var knownKeys = map[string][]string{
	"auth": {
		"client_id", "client_secret", "redirect_uri", "cert_file", "key_file", "callback_timeout",
	},
	"backup": {
		"sources", "pictures_subdir", "videos_subdir", "picture_extensions",
		"video_extensions", "ignore_extensions", "dir_template", "parallel_downloads",
	},
	"dedupe":  {"ssd"},
	"logging": {"log_level", "log_format"},
	"network": {"data_timeout"},
}

// knownSections is the sorted list of section names, for deterministic
// suggestions when two candidates have the same edit distance.
var knownSections = func() []string {
	sections := make([]string, 0, len(knownKeys))
	for s := range knownKeys {
		sections = append(sections, s)
	}

	sort.Strings(sections)

	return sections
}()

// checkUnknownKeys inspects TOML metadata for undecoded keys and returns
// an error with "did you mean?" suggestions for each unknown key.
func checkUnknownKeys(md *toml.MetaData) error {
	undecoded := md.Undecoded()
	if len(undecoded) == 0 {
		return nil
	}

	var errs []error

	reported := make(map[string]bool)

	for _, key := range undecoded {
		err := unknownKeyError(key)
		if err == nil || reported[err.Error()] {
			continue
		}

		reported[err.Error()] = true
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}

// unknownKeyError builds the error for a single undecoded key.
func unknownKeyError(key toml.Key) error {
	if len(key) == 0 {
		return nil
	}

	section := key[0]

	keys, ok := knownKeys[section]
	if !ok {
		return suggest("unknown config section", section, knownSections)
	}

	if len(key) < 2 {
		return nil
	}

	sorted := append([]string(nil), keys...)
	sort.Strings(sorted)

	return suggest("unknown config key", section+"."+key[1], qualify(section, sorted))
}

func qualify(section string, keys []string) []string {
	out := make([]string, len(keys))
	for i, k := range keys {
		out[i] = section + "." + k
	}

	return out
}

func suggest(what, name string, candidates []string) error {
	if s := closestMatch(name, candidates); s != "" {
		return fmt.Errorf("%s %q, did you mean %q?", what, name, s)
	}

	return fmt.Errorf("%s %q (valid: %s)", what, name, strings.Join(candidates, ", "))
}

// closestMatch finds the closest known key by Levenshtein distance.
// Returns empty string if no match is within maxLevenshteinDistance.
func closestMatch(unknown string, known []string) string {
	best := ""
	bestDist := maxLevenshteinDistance + 1

	for _, k := range known {
		d := levenshtein(unknown, k)
		if d < bestDist {
			bestDist = d
			best = k
		}
	}

	if bestDist <= maxLevenshteinDistance {
		return best
	}

	return ""
}

// levenshtein computes the edit distance between two strings.
func levenshtein(a, b string) int {
	if a == "" {
		return len(b)
	}

	if b == "" {
		return len(a)
	}

	// Single-row optimization avoids allocating a full matrix.
	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)

	for j := range prev {
		prev[j] = j
	}

	for i := range len(a) {
		curr[0] = i + 1

		for j := range len(b) {
			cost := 1
			if a[i] == b[j] {
				cost = 0
			}

			curr[j+1] = min(curr[j]+1, prev[j+1]+1, prev[j]+cost)
		}

		prev, curr = curr, prev
	}

	return prev[len(b)]
}
