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

// knownKeys lists the valid keys of each section.
var knownKeys = map[string][]string{
	"app":         {"app_key", "client_secret", "redirect_uri", "api_host", "auth_host"},
	"network":     {"connect_timeout", "read_timeout", "charset", "user_agent", "insecure_skip_verify", "ca_file"},
	"queue":       {"workers", "capacity"},
	"token_cache": {"backend", "path", "watch", "redis_addr", "redis_password", "redis_db", "key_prefix"},
	"logging":     {"log_level", "log_format"},
}

// knownSections is the sorted list of section names for suggestions.
var knownSections = func() []string {
	names := make([]string, 0, len(knownKeys))
	for k := range knownKeys {
		names = append(names, k)
	}

	sort.Strings(names)

	return names
}()

// checkUnknownKeys inspects TOML metadata for undecoded keys and returns
// an error with "did you mean?" suggestions for each unknown key.
func checkUnknownKeys(md *toml.MetaData) error {
	var errs []error

	for _, key := range md.Undecoded() {
		errs = append(errs, unknownKeyError(key))
	}

	return errors.Join(errs...)
}

func unknownKeyError(key toml.Key) error {
	if len(key) == 1 {
		if section := sectionOfKey(key[0]); section != "" {
			return fmt.Errorf("config key %q must be inside the [%s] section", key[0], section)
		}

		if s := closestMatch(key[0], knownSections); s != "" {
			return fmt.Errorf("unknown config section or key %q (did you mean [%s]?)", key[0], s)
		}

		return fmt.Errorf("unknown config key %q", key[0])
	}

	section, field := key[0], key[1]

	keys, ok := knownKeys[section]
	if !ok {
		if s := closestMatch(section, knownSections); s != "" {
			return fmt.Errorf("unknown config section [%s] (did you mean [%s]?)", section, s)
		}

		return fmt.Errorf("unknown config section [%s]", section)
	}

	if s := closestMatch(field, keys); s != "" {
		return fmt.Errorf("unknown key %q in [%s] (did you mean %q?)", field, section, s)
	}

	return fmt.Errorf("unknown key %q in [%s]", strings.Join(key[1:], "."), section)
}

// sectionOfKey finds the section a misplaced top-level key belongs to.
func sectionOfKey(field string) string {
	for _, section := range knownSections {
		for _, k := range knownKeys[section] {
			if k == field {
				return section
			}
		}
	}

	return ""
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
