package xmltv

import (
	"strings"
	"time"
)

// Timestamp layouts: YYYYMMDDHHMMSS with an optional space-separated ±HHMM
// offset. Feeds routinely truncate the seconds or minutes, so shorter all-
// digit prefixes parse too. Anything else is unparseable; callers fail open.
var timestampLayouts = map[int]string{
	14: "20060102150405",
	12: "200601021504",
	10: "2006010215",
	8:  "20060102",
}

// ParseTimestamp parses an XMLTV start/stop attribute. hasOffset reports
// whether the value carried an explicit timezone; ok is false for garbage.
// Values without an offset are interpreted as UTC.
func ParseTimestamp(s string) (t time.Time, hasOffset bool, ok bool) {
	fields := strings.Fields(strings.TrimSpace(s))
	if len(fields) == 0 || len(fields) > 2 {
		return time.Time{}, false, false
	}

	datePart := fields[0]
	if !allDigits(datePart) {
		return time.Time{}, false, false
	}
	if len(datePart) > 14 {
		datePart = datePart[:14]
	}
	layout, known := timestampLayouts[len(datePart)]
	if !known {
		return time.Time{}, false, false
	}

	loc := time.UTC
	if len(fields) == 2 {
		off, offOK := parseOffset(fields[1])
		if !offOK {
			return time.Time{}, false, false
		}
		loc = off
		hasOffset = true
	}

	t, err := time.ParseInLocation(layout, datePart, loc)
	if err != nil {
		return time.Time{}, false, false
	}
	return t, hasOffset, true
}

// FormatTimestamp renders t back into the XMLTV attribute form, keeping the
// offset only when the original value carried one.
func FormatTimestamp(t time.Time, hasOffset bool) string {
	if hasOffset {
		return t.Format("20060102150405 -0700")
	}
	return t.Format("20060102150405")
}

// parseOffset parses a ±HHMM timezone suffix into a fixed zone.
func parseOffset(s string) (*time.Location, bool) {
	if len(s) != 5 || (s[0] != '+' && s[0] != '-') || !allDigits(s[1:]) {
		return nil, false
	}
	hours := int(s[1]-'0')*10 + int(s[2]-'0')
	mins := int(s[3]-'0')*10 + int(s[4]-'0')
	if hours > 14 || mins > 59 {
		return nil, false
	}
	secs := (hours*60 + mins) * 60
	if s[0] == '-' {
		secs = -secs
	}
	return time.FixedZone(s, secs), true
}

func allDigits(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
