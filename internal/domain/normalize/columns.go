package normalize

import (
	"fmt"
	"regexp"
	"strings"
)

// IdentifierMaxLength is the PostgreSQL identifier length limit that
// column names are truncated to.
const IdentifierMaxLength = 63

// ReservedColumnNames are PostgreSQL system column names a data column
// may not shadow.
var ReservedColumnNames = []string{"tableoid", "xmin", "cmin", "xmax", "cmax", "ctid"}

var (
	invalidIdentChar = regexp.MustCompile(`[^a-z0-9_]`)
	underscoreRuns   = regexp.MustCompile(`_{2,}`)
	startsWithDigit  = regexp.MustCompile(`^[0-9]`)
)

// ColumnNames rewrites a header row into safe, unique PostgreSQL column
// identifiers following the CARTO naming rules: transliterate to Latin,
// lowercase, replace invalid characters with underscores, truncate to
// IdentifierMaxLength, and suffix duplicates with a counter.
func ColumnNames(names []string) []string {
	out := make([]string, 0, len(names))
	for _, candidate := range names {
		name := sanitizeName(candidate)
		if len(name) > IdentifierMaxLength {
			name = name[:IdentifierMaxLength]
		}
		out = append(out, avoidCollisions(name, out, ReservedColumnNames, IdentifierMaxLength))
	}
	return out
}

func sanitizeName(name string) string {
	s := strings.ToLower(Transliterate(strings.TrimSpace(name)))
	s = invalidIdentChar.ReplaceAllString(s, "_")
	s = underscoreRuns.ReplaceAllString(s, "_")
	s = strings.Trim(s, "_")
	if s == "" {
		return "untitled_column"
	}
	if startsWithDigit.MatchString(s) || isReserved(s) {
		return "_" + s
	}
	return s
}

func isReserved(name string) bool {
	for _, reserved := range ReservedColumnNames {
		if strings.EqualFold(name, reserved) {
			return true
		}
	}
	return false
}

func avoidCollisions(name string, existing, reserved []string, maxLength int) string {
	taken := func(candidate string) bool {
		for _, e := range existing {
			if candidate == e {
				return true
			}
		}
		for _, r := range reserved {
			if strings.EqualFold(candidate, r) {
				return true
			}
		}
		return false
	}
	candidate := name
	for cnt := 1; taken(candidate); cnt++ {
		suffix := fmt.Sprintf("_%d", cnt)
		base := name
		if len(base)+len(suffix) > maxLength {
			base = base[:maxLength-len(suffix)]
		}
		candidate = base + suffix
	}
	return candidate
}
