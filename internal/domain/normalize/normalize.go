// Package normalize holds the pure column value transforms applied by the
// worker to tabular data. Every function is total: unparseable input is
// returned unchanged rather than failing the whole file.
package normalize

import (
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"
)

// DateFormats lists the layouts a date column value is parsed against,
// in order. The first layout that parses wins.
var DateFormats = []string{
	"2006-01-02 15:04:05MST",
	"2006-01-02 15:04:05",
	"01-02-06 15:04:05",
	"01-02-06 15:04:05MST",
	"2006-01-02",
	"02 01-2006",
	"2006/Jan/02",
	"02-01-2006",
	"02-Jan-2006",
	"02/01/2006",
	"02 Jan 2006",
}

// TargetDateFormat is the layout date values are rewritten to.
const TargetDateFormat = "02/01/2006"

// Date rewrites a date value to TargetDateFormat. Values that match none
// of the known layouts pass through unchanged.
func Date(value string) string {
	if value == "" {
		return value
	}
	for _, layout := range DateFormats {
		if t, err := time.Parse(layout, value); err == nil {
			return t.Format(TargetDateFormat)
		}
	}
	return value
}

var nonDigits = regexp.MustCompile(`[^0-9]`)

// Phone strips separators from a phone number. A value that already parses
// as a plain integer is kept as-is. When the number carries a leading "+"
// and an exit code is configured, the "+" is replaced by the exit code
// digits before stripping.
func Phone(value, exitCodeDigits string) string {
	if value == "" {
		return value
	}
	if _, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64); err == nil {
		return value
	}
	if strings.HasPrefix(value, "+") && exitCodeDigits != "" {
		return nonDigits.ReplaceAllString(strings.Replace(value, "+", exitCodeDigits, 1), "")
	}
	return nonDigits.ReplaceAllString(value, "")
}

var nonAlphanumericRuns = regexp.MustCompile(`[^A-Za-z0-9]+`)

// SpecialCharacters replaces every run of non-alphanumeric characters
// with a single space.
func SpecialCharacters(value string) string {
	if value == "" {
		return ""
	}
	return nonAlphanumericRuns.ReplaceAllString(value, " ")
}

// Alphabetical splits a value into whitespace-separated tokens and joins
// them back in case-insensitive sorted order.
func Alphabetical(value string) string {
	parts := strings.Fields(value)
	if len(parts) == 0 {
		return ""
	}
	sort.SliceStable(parts, func(i, j int) bool {
		return strings.ToLower(parts[i]) < strings.ToLower(parts[j])
	})
	return strings.Join(parts, " ")
}

// Case lowercases a value.
func Case(value string) string {
	return strings.ToLower(value)
}

var (
	whitespaceRuns = regexp.MustCompile(`\s+`)
	newlines       = regexp.MustCompile(`\r\n|\r|\n`)
	invalidURLChar = regexp.MustCompile(`[^a-zA-Z0-9Α-Ωα-ωίϊΐόάέύϋΰήώ\-._~:/?#@!$&';()*+,= ]`)
)

// CleanValue makes a value safe for delimited output and URL embedding:
// newlines become spaces, runs of whitespace collapse to one space,
// double quotes become single quotes, "|" becomes ";", backslashes
// become forward slashes, and characters invalid in URLs are dropped.
func CleanValue(value string) string {
	out := newlines.ReplaceAllString(value, " ")
	out = whitespaceRuns.ReplaceAllString(out, " ")
	out = strings.TrimSpace(out)
	out = strings.ReplaceAll(out, `"`, "'")
	out = strings.ReplaceAll(out, "|", ";")
	out = strings.ReplaceAll(out, `\`, "/")
	return invalidURLChar.ReplaceAllString(out, "")
}
