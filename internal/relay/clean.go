package relay

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// TextRule is a literal find/replace pair. An empty Find disables it.
type TextRule struct {
	Find    string
	Replace string
}

func (r TextRule) IsZero() bool { return r.Find == "" && r.Replace == "" }

// Matches reports whether text contains Find, ignoring case.
func (r TextRule) Matches(text string) bool {
	if r.Find == "" || text == "" {
		return false
	}
	return strings.Contains(strings.ToLower(text), strings.ToLower(r.Find))
}

// Apply is Clean(text, r.Find, r.Replace).
func (r TextRule) Apply(text string) string {
	return Clean(text, r.Find, r.Replace)
}

// Clean replaces every occurrence of find in original with replace.
//
// Exact-case occurrences win: if find occurs verbatim, only verbatim
// occurrences are replaced. Otherwise all case-insensitive occurrences are.
// find is always a literal, never a pattern. An empty original or find returns
// original unchanged, and so does any internal failure.
func Clean(original, find, replace string) (out string) {
	if original == "" || find == "" {
		return original
	}
	defer func() {
		if r := recover(); r != nil {
			out = original
		}
	}()

	if strings.Contains(original, find) {
		return strings.ReplaceAll(original, find, replace)
	}
	re, err := regexp.Compile("(?i)" + regexp.QuoteMeta(find))
	if err != nil {
		return original
	}
	return re.ReplaceAllLiteralString(original, replace)
}

var rangeRE = regexp.MustCompile(`(\d+)\s*-\s*(\d+)`)

// ParseRange extracts "start-end" from s (e.g. "5-425" or "/cmd 5 - 425").
func ParseRange(s string) (start, end int, err error) {
	m := rangeRE.FindStringSubmatch(s)
	if m == nil {
		return 0, 0, fmt.Errorf("%w: %q (want start-end, e.g. 5-425)", ErrInvalidRange, s)
	}
	start, err = strconv.Atoi(m[1])
	if err != nil {
		return 0, 0, fmt.Errorf("%w: %v", ErrInvalidRange, err)
	}
	end, err = strconv.Atoi(m[2])
	if err != nil {
		return 0, 0, fmt.Errorf("%w: %v", ErrInvalidRange, err)
	}
	if start <= 0 || end < start {
		return 0, 0, fmt.Errorf("%w: %d-%d", ErrInvalidRange, start, end)
	}
	return start, end, nil
}
