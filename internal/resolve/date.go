// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package resolve

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/pdiddy/epaper/internal/fault"
)

const (
	// DateLayout is the input form of an issue date (YYYYMMDD).
	DateLayout = "20060102"
	// EpaperLayout is the form the site uses in index URLs (DD-MM-YYYY).
	EpaperLayout = "02-01-2006"
)

var datePattern = regexp.MustCompile(`^\d{8}$`)

// ParseDate validates an 8-digit YYYYMMDD string and returns the calendar
// date it names. Impossible dates such as 20260231 are rejected.
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if !datePattern.MatchString(s) {
		return time.Time{}, fmt.Errorf("%w: %q is not in YYYYMMDD form", fault.ErrInvalidDate, s)
	}
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q is not a calendar date", fault.ErrInvalidDate, s)
	}
	return t, nil
}

// EpaperDate formats t the way the site's index URLs expect it.
func EpaperDate(t time.Time) string {
	return t.Format(EpaperLayout)
}
