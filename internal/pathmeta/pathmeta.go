package pathmeta

import (
	"errors"
	"fmt"
	"path/filepath"

	"radar-ingest/internal/domain/capture"
)

// ErrMalformedPath marks a path whose date segment is not an 8-digit
// DDMMYYYY string. Files with malformed paths are skipped, never retried.
var ErrMalformedPath = errors.New("malformed photo path")

// Resolve interprets the two directory segments directly above the file as
// capture date and site, in either order. Exactly one of them must be an
// 8-digit DDMMYYYY string.
func Resolve(path string) (capture.PathMetadata, error) {
	photoName := filepath.Base(path)
	parent := filepath.Base(filepath.Dir(path))
	grandparent := filepath.Base(filepath.Dir(filepath.Dir(path)))

	var dateSeg, siteSeg string
	switch {
	case isDateSegment(grandparent):
		dateSeg, siteSeg = grandparent, parent
	case isDateSegment(parent):
		dateSeg, siteSeg = parent, grandparent
	default:
		return capture.PathMetadata{}, fmt.Errorf("%w: no DDMMYYYY segment in %q", ErrMalformedPath, path)
	}

	date, err := reassembleDate(dateSeg)
	if err != nil {
		return capture.PathMetadata{}, err
	}

	return capture.PathMetadata{
		CaptureDate: date,
		SiteID:      siteSeg,
		PhotoName:   photoName,
	}, nil
}

// reassembleDate turns DDMMYYYY into YYYY-MM-DD by string slicing. No
// calendar validation: day 31 of a 30-day month passes through unchanged.
func reassembleDate(s string) (string, error) {
	if !isDateSegment(s) {
		return "", fmt.Errorf("%w: date segment %q is not 8 digits", ErrMalformedPath, s)
	}
	day := s[0:2]
	month := s[2:4]
	year := s[4:8]
	return year + "-" + month + "-" + day, nil
}

func isDateSegment(s string) bool {
	if len(s) != 8 {
		return false
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}
