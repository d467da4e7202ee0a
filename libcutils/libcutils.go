package libcutils

import (
	"fmt"
	"regexp"
	"strings"
)

// PrintfSpecifier represents the components of a printf format specifier
type PrintfSpecifier struct {
	Original  string // The original specifier string
	Flags     string // Flags: '-', '+', ' ', '#', and '0'
	Width     string // Width: number or '*'
	Precision string // Precision: '.number' or '.*'
	Length    string // Length modifier: 'h', 'hh', 'l', 'll', 'L', 'j', 'z', 't'
	Specifier string // Conversion specifier: 'd', 'i', 'o', 'u', 'x', 'X', 'f', 'F', 'e', 'E', 'g', 'G', 'a', 'A', 'c', 's', 'p', 'n', '%'
}

var specRe = regexp.MustCompile(`^%([-+#0 ]*)(\d+|\*)?(?:\.(\d+|\*))?([hlLjzt]*)([diuoxXfFeEgGaAcspn%])`)

// ParseSpecifier parses the libc conversion at the start of text, which must
// begin with '%'.
func ParseSpecifier(text string) (PrintfSpecifier, bool) {
	m := specRe.FindStringSubmatch(text)
	if m == nil {
		return PrintfSpecifier{}, false
	}
	return PrintfSpecifier{
		Original:  m[0],
		Flags:     m[1],
		Width:     m[2],
		Precision: m[3],
		Length:    m[4],
		Specifier: m[5],
	}, true
}

// HasModifiers reports whether flags, width or precision are present.
func (s PrintfSpecifier) HasModifiers() bool {
	return s.Flags != "" || s.Width != "" || s.Precision != ""
}

// Hint explains why a libc conversion found in a format string did not
// resolve against the registered specifiers.
func Hint(text string) string {
	spec, ok := ParseSpecifier(text)
	if !ok {
		return "not a libc conversion"
	}
	key := strings.TrimPrefix(spec.Original, "%")
	if spec.HasModifiers() {
		parts := []string{}
		if spec.Flags != "" {
			parts = append(parts, fmt.Sprintf("flags %q", spec.Flags))
		}
		if spec.Width != "" {
			parts = append(parts, fmt.Sprintf("width %q", spec.Width))
		}
		if spec.Precision != "" {
			parts = append(parts, fmt.Sprintf("precision %q", spec.Precision))
		}
		return fmt.Sprintf("%s are matched verbatim, register %%%s to handle it", strings.Join(parts, ", "), key)
	}
	return fmt.Sprintf("register %%%s to handle it", key)
}
