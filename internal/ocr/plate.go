package ocr

import (
	"regexp"
	"strings"

	"radar-ingest/internal/domain/capture"
)

// Guatemalan plate grammars, mutually exclusive, checked in order. The
// leading letter selects the vehicle class; anything else with the 1+3+3
// shape falls through to unknown.
var plateGrammars = []struct {
	class capture.PlateClass
	re    *regexp.Regexp
}{
	{capture.PlateParticular, regexp.MustCompile(`^P\d{3}[A-Z]{3}$`)},
	{capture.PlateMoto, regexp.MustCompile(`^M\d{3}[A-Z]{3}$`)},
	{capture.PlateComercial, regexp.MustCompile(`^C\d{3}[A-Z]{3}$`)},
	{capture.PlateUnknown, regexp.MustCompile(`^[A-Z]\d{3}[A-Z]{3}$`)},
}

// NormalizePlate strips spaces and hyphens and upper-cases the rest.
func NormalizePlate(raw string) string {
	normalized := strings.TrimSpace(raw)
	normalized = strings.ReplaceAll(normalized, " ", "")
	normalized = strings.ReplaceAll(normalized, "-", "")
	return strings.ToUpper(normalized)
}

// ClassifyPlate normalizes the raw plate text and matches it against the
// grammars. A non-matching plate comes back with Valid=false and the
// normalized text preserved for the error message.
func ClassifyPlate(raw string) capture.PlateResult {
	normalized := NormalizePlate(raw)
	for _, g := range plateGrammars {
		if g.re.MatchString(normalized) {
			return capture.PlateResult{Plate: normalized, Class: g.class, Valid: true}
		}
	}
	return capture.PlateResult{Plate: normalized, Valid: false}
}
