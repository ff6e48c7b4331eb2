package dataset

import (
	"fmt"
	"regexp"
	"time"
)

// timePatterns is the ordered list of filename/
// attribute timestamp formats from spec §4.3 step 3 and §9's design
// note ("five regex patterns in priority order"). Each pair is a Go
// regexp that must match a contiguous substring, and the reference
// layout (Go's reference-time format) used to parse that substring.
var timePatterns = []struct {
	re     *regexp.Regexp
	layout string
}{
	{regexp.MustCompile(`\d{14}`), "20060102150405"},
	{regexp.MustCompile(`\d{12}`), "200601021504"},
	{regexp.MustCompile(`\d{8}`), "20060102"},
	{regexp.MustCompile(`\d{6}`), "200601"},
	{regexp.MustCompile(`\d{4}`), "2006"},
}

// ParseTimestamp finds the first substring of s that matches one of
// the five patterns, in priority order, and parses it as UTC.
func ParseTimestamp(s string) (time.Time, bool) {
	for _, p := range timePatterns {
		if m := p.re.FindString(s); m != "" {
			if t, err := time.Parse(p.layout, m); err == nil {
				return t.UTC(), true
			}
		}
	}
	return time.Time{}, false
}

// ParseTimestampFormat parses s with an explicit format given as a
// strftime-style directive string (datetime_format config key),
// translated to Go's reference layout.
func ParseTimestampFormat(s, format string) (time.Time, error) {
	layout := strftimeToGo(format)
	t, err := time.Parse(layout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q does not match format %q", errUnparsable, s, format)
	}
	return t.UTC(), nil
}

var errUnparsable = fmt.Errorf("unparsable timestamp")

func strftimeToGo(format string) string {
	r := []rune(format)
	out := make([]rune, 0, len(r)*2)
	for i := 0; i < len(r); i++ {
		if r[i] != '%' || i == len(r)-1 {
			out = append(out, r[i])
			continue
		}
		i++
		switch r[i] {
		case 'Y':
			out = append(out, []rune("2006")...)
		case 'm':
			out = append(out, []rune("01")...)
		case 'd':
			out = append(out, []rune("02")...)
		case 'H':
			out = append(out, []rune("15")...)
		case 'M':
			out = append(out, []rune("04")...)
		case 'S':
			out = append(out, []rune("05")...)
		default:
			out = append(out, '%', r[i])
		}
	}
	return string(out)
}

// MidpointBounds returns the midpoint of [start,end] and the bounds
// pair itself, used when synthesizing a "time" coordinate from
// time_coverage_start/time_coverage_end per spec §4.3 step 3.
func MidpointBounds(start, end time.Time) (mid, lower, upper time.Time) {
	return start.Add(end.Sub(start) / 2), start, end
}

// FormatCoverage renders t as the UTC "YYYY-MM-DD HH:MM:SS" string
// used for time_coverage_start/end (spec §4.7).
func FormatCoverage(t time.Time) string {
	return t.UTC().Format("2006-01-02 15:04:05")
}
