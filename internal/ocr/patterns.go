package ocr

import (
	"regexp"
	"strings"

	"radar-ingest/internal/domain/capture"
)

// fieldRule pairs a recognition pattern with an optional reducer applied to
// the captured group. Rules are tried in order; the first match wins.
type fieldRule struct {
	re     *regexp.Regexp
	reduce func(string) string
}

type ruleTable []fieldRule

func (rt ruleTable) extract(text string) string {
	for _, rule := range rt {
		m := rule.re.FindStringSubmatch(text)
		if len(m) < 2 || m[1] == "" {
			continue
		}
		value := strings.TrimSpace(m[1])
		if rule.reduce != nil {
			value = rule.reduce(value)
		}
		return value
	}
	return ""
}

// PatternSet holds the ordered per-field rule tables used to parse the
// recognized header text.
type PatternSet struct {
	Date          ruleTable
	Time          ruleTable
	Location      ruleTable
	SpeedLimit    ruleTable
	MeasuredSpeed ruleTable
}

var firstNumber = regexp.MustCompile(`\d+`)

func reduceToNumber(s string) string {
	if n := firstNumber.FindString(s); n != "" {
		return n
	}
	return s
}

// SpanishPatterns matches the header layout printed by the enforcement
// cameras: labeled Spanish fields with bare-value fallbacks.
func SpanishPatterns() *PatternSet {
	return &PatternSet{
		Date: ruleTable{
			{re: regexp.MustCompile(`(?i)Fecha:\s*(\d{1,2}/\d{1,2}/\d{4})`)},
			{re: regexp.MustCompile(`(\d{1,2}/\d{1,2}/\d{4})`)},
		},
		Time: ruleTable{
			{re: regexp.MustCompile(`(?i)Hora:\s*(\d{1,2}:\d{2}:\d{2})`)},
			{re: regexp.MustCompile(`(\d{1,2}:\d{2}:\d{2})`)},
		},
		Location: ruleTable{
			{re: regexp.MustCompile(`(?i)Auto\s+Loc\d*:\s*([A-Z0-9_]+)`)},
			{re: regexp.MustCompile(`(?i)Loc\d*:\s*([A-Z0-9_\-\s]+?)(?:\s+ID|$)`)},
			{re: regexp.MustCompile(`(?i)Ubicaci[óo]n:\s*([^0-9\n]+?)(?:\s+[A-Z]|$)`)},
		},
		SpeedLimit: ruleTable{
			{re: regexp.MustCompile(`(?i)L[íi]mite\s+de\s+Velocidad:\s*(\d+\s*km/h)`), reduce: reduceToNumber},
			{re: regexp.MustCompile(`(?i)L[íi]mite:\s*(\d+\s*km/h)`), reduce: reduceToNumber},
			{re: regexp.MustCompile(`(?i)(\d+\s*km/h).*l[íi]mite`), reduce: reduceToNumber},
		},
		MeasuredSpeed: ruleTable{
			{re: regexp.MustCompile(`(?i)Velocidad:\s*[-~](\d+)\s*km/h\s*\(DEP\)`)},
			{re: regexp.MustCompile(`(?i)[-~](\d+)\s*km/h\s*\(DEP\)`)},
			{re: regexp.MustCompile(`(?i)Velocidad:\s*[-~]?(\d+)\s*km/h`)},
			{re: regexp.MustCompile(`(?i)Velocidad:\s*[-~]?(\d+\s*km/h)`)},
		},
	}
}

// ParseHeader flattens the recognized text into one line and runs every
// field's rule table over it.
func ParseHeader(text string, patterns *PatternSet) capture.HeaderFields {
	var lines []string
	for _, line := range strings.Split(text, "\n") {
		if strings.TrimSpace(line) != "" {
			lines = append(lines, strings.TrimSpace(line))
		}
	}
	flat := strings.Join(lines, " ")

	return capture.HeaderFields{
		Date:          patterns.Date.extract(flat),
		Time:          patterns.Time.extract(flat),
		Location:      patterns.Location.extract(flat),
		SpeedLimit:    patterns.SpeedLimit.extract(flat),
		MeasuredSpeed: patterns.MeasuredSpeed.extract(flat),
	}
}
