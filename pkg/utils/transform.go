package utils

import (
	"strings"
)

// Dedup returns in without repeated entries, keeping first occurrences in order.
// Entries are compared after trimming surrounding whitespace; empty entries are dropped.
func Dedup(in []string) []string {
	seen := map[string]bool{}
	out := []string{}
	for _, e := range in {
		e = strings.TrimSpace(e)
		if e == "" || seen[e] {
			continue
		}
		seen[e] = true
		out = append(out, e)
	}
	return out
}

// SplitList splits a comma separated env value into trimmed, deduplicated entries.
func SplitList(v string) []string {
	return Dedup(strings.Split(v, ","))
}
