// Package pysuggest implements levenshtein-based "did you mean" suggestions
// for unresolved names, used to make NameError / AttributeError messages
// more actionable for the machine-generated programs this interpreter runs.
package pysuggest

import (
	"sort"

	"github.com/texttheater/golang-levenshtein/levenshtein"
)

// maxDistance bounds how different a candidate may be from needle before
// it's not worth suggesting; beyond this the suggestion is more confusing
// than helpful.
const maxDistance = 3

type suggestion struct {
	s    string
	dist int
}

// Suggest returns the entries of haystack that are close (by edit distance)
// to needle, nearest first.
func Suggest(needle string, haystack []string) []string {
	r := []rune(needle)
	options := make([]suggestion, 0, len(haystack))
	for _, straw := range haystack {
		if straw == needle || straw == "" {
			continue
		}
		distance := levenshtein.DistanceForStrings(r, []rune(straw), levenshtein.DefaultOptions)
		if distance <= maxDistance {
			options = append(options, suggestion{s: straw, dist: distance})
		}
	}
	sort.Slice(options, func(i, j int) bool { return options[i].dist < options[j].dist })
	ret := make([]string, len(options))
	for i, o := range options {
		ret[i] = o.s
	}
	return ret
}

// Message renders a suggestion list as the trailing clause of a Python-style
// error message ("" if there are no good candidates).
func Message(needle string, haystack []string) string {
	options := Suggest(needle, haystack)
	if len(options) == 0 {
		return ""
	}
	msg := " Did you mean "
	for i, o := range options {
		if i > 0 {
			if i < len(options)-1 {
				msg += ", "
			} else {
				msg += " or "
			}
		}
		msg += "'" + o + "'"
	}
	return msg + "?"
}
