package community

import (
	"strings"

	"github.com/gosimple/slug"
)

var streetAbbreviations = map[string]string{
	"street":    "st",
	"avenue":    "ave",
	"boulevard": "blvd",
	"drive":     "dr",
	"road":      "rd",
	"lane":      "ln",
	"court":     "ct",
	"place":     "pl",
	"terrace":   "ter",
	"circle":    "cir",
}

// NormalizeAddress collapses a free-text address into a stable lookup key:
// lowercase, unit designators stripped, long street suffixes abbreviated,
// then slugified. Two residents typing "123 Oak Street, Apt 4" and
// "123 oak st" land on the same key.
func NormalizeAddress(address string) string {
	lowered := strings.ToLower(strings.TrimSpace(address))

	// Drop everything after a unit designator.
	for _, marker := range []string{" apt ", " apt. ", " unit ", " suite ", " ste ", " #"} {
		if idx := strings.Index(lowered, marker); idx >= 0 {
			lowered = lowered[:idx]
		}
	}
	lowered = strings.TrimRight(lowered, " ,.")

	words := strings.Fields(strings.NewReplacer(",", " ", ".", " ").Replace(lowered))
	for i, w := range words {
		if abbr, ok := streetAbbreviations[w]; ok {
			words[i] = abbr
		}
	}

	return slug.Make(strings.Join(words, " "))
}
