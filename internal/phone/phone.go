// Package phone canonicalizes sender numbers into lookup keys.
//
// Numbering is US-only: anything not already in +E.164 form is assumed to be
// a North American number.
package phone

import "strings"

const usPrefix = "+1"

// Normalize returns the canonical form of raw.
// Input that already starts with '+' is returned unchanged. Otherwise every
// non-digit is dropped and "+1" is prepended, so empty input yields "+1".
func Normalize(raw string) string {
	if strings.HasPrefix(raw, "+") {
		return raw
	}
	var b strings.Builder
	b.Grow(len(raw) + len(usPrefix))
	b.WriteString(usPrefix)
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Local returns the form members and visitors are stored with: the
// normalized number without its "+1" country prefix.
func Local(normalized string) string {
	if strings.HasPrefix(normalized, usPrefix) {
		return normalized[len(usPrefix):]
	}
	return strings.TrimPrefix(normalized, "+")
}
