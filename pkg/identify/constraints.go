package identify

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/cellarist/sommelier/pkg/models"
)

var (
	// Country names are capitalized words, which keeps the match from
	// swallowing the rest of the sentence.
	countryPattern = regexp.MustCompile(`(?i:country (?:must be|is|should be)[:\s]+)(\p{Lu}[\p{L}'-]*(?: \p{Lu}[\p{L}'-]*)*)`)
	rangePattern   = regexp.MustCompile(`(?i)vintage(?: range)?[:\s]*(?:between\s+)?(\d{4})\s*(?:[-–—]|to|and)\s*(\d{4})`)
	yearPattern    = regexp.MustCompile(`(?i)vintage (?:must be|is)[:\s]+(\d{4})`)
)

// ParseConstraints extracts structured restrictions from a free-text user
// clarification. Returns nil when nothing recognizable is present.
func ParseConstraints(text string) *models.Constraints {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	var cons models.Constraints
	found := false

	if m := countryPattern.FindStringSubmatch(text); m != nil {
		cons.Country = strings.TrimSpace(m[1])
		found = true
	}
	if m := rangePattern.FindStringSubmatch(text); m != nil {
		from, _ := strconv.Atoi(m[1])
		to, _ := strconv.Atoi(m[2])
		if from > to {
			from, to = to, from
		}
		cons.VintageFrom, cons.VintageTo = from, to
		found = true
	} else if m := yearPattern.FindStringSubmatch(text); m != nil {
		year, _ := strconv.Atoi(m[1])
		cons.VintageFrom, cons.VintageTo = year, year
		found = true
	}

	if !found {
		return nil
	}
	return &cons
}
