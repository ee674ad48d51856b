package epg

import (
	"fmt"
	"strings"
	"time"
)

// xmltvLayout is the XMLTV timestamp form: YYYYMMDDHHMMSS +ZZZZ.
const xmltvLayout = "20060102150405 -0700"

// ParseTime parses an XMLTV timestamp and returns it in UTC.
func ParseTime(s string) (time.Time, error) {
	t, err := time.Parse(xmltvLayout, strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid XMLTV timestamp %q: %w", s, err)
	}

	return t.UTC(), nil
}

// FormatTime formats t as an XMLTV timestamp in UTC.
func FormatTime(t time.Time) string {
	return t.UTC().Format(xmltvLayout)
}
