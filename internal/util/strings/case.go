// Package strings provides the case conversions used when deriving XML
// localnames from snake_case field names.
package strings

import (
	"strings"
	"unicode"
)

// ToUpperCamel converts snake_case to UpperCamelCase
// (concept_identity -> ConceptIdentity).
func ToUpperCamel(s string) string {
	var result strings.Builder
	upperNext := true
	for _, r := range s {
		if r == '_' {
			upperNext = true
			continue
		}
		if upperNext {
			result.WriteRune(unicode.ToUpper(r))
			upperNext = false
		} else {
			result.WriteRune(r)
		}
	}
	return result.String()
}

// ToLowerCamel converts snake_case to lowerCamelCase
// (agency_id -> agencyId).
func ToLowerCamel(s string) string {
	camel := ToUpperCamel(s)
	if camel == "" {
		return camel
	}
	runes := []rune(camel)
	runes[0] = unicode.ToLower(runes[0])
	return string(runes)
}
