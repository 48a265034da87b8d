package service

import (
	"fmt"
	"regexp"
	"strings"

	"radar-ingest/internal/domain/capture"
)

var headerDatePattern = regexp.MustCompile(`^(\d{1,2})/(\d{1,2})/(\d{4})$`)

// ConvertHeaderDate turns the header's DD/MM/YYYY into YYYY-MM-DD,
// zero-padding day and month. Only the shape is validated; calendar
// plausibility is not checked.
func ConvertHeaderDate(headerDate string) (string, bool) {
	m := headerDatePattern.FindStringSubmatch(strings.TrimSpace(headerDate))
	if m == nil {
		return "", false
	}
	return fmt.Sprintf("%s-%02s-%02s", m[3], m[2], m[1]), true
}

// MergeWithFallback reconciles fused OCR output against path-derived
// metadata. Extracted values win when present and parseable; path metadata
// is the guaranteed fallback. The photo name always comes from the path.
func MergeWithFallback(meta capture.PathMetadata, fused capture.FusedRecord) capture.MergedRecord {
	date := meta.CaptureDate
	if fused.Processing.HeaderSuccess && fused.Date != "" {
		if converted, ok := ConvertHeaderDate(fused.Date); ok {
			date = converted
		}
	}

	cruise := meta.SiteID
	if fused.Processing.HeaderSuccess {
		if loc := strings.TrimSpace(fused.Location); loc != "" {
			cruise = loc
		}
	}

	return capture.MergedRecord{
		Date:      date,
		Cruise:    cruise,
		PhotoName: meta.PhotoName,
		Payload:   fused,
	}
}
