// Package fields normalises and validates single customer-record values
// extracted from a transcript.
//
// Every validator is a total function: it returns the canonical value and
// true, or "" and false when the input is missing or does not satisfy the
// field's rules. Invalid input is never reported as an error; downstream
// completeness checks treat "invalid" and "missing" identically.
package fields

import (
	"regexp"
	"strings"
)

// PhoneLength is the number of digits in an accepted phone number.
const PhoneLength = 10

// PlateRule is one entry in the ordered license plate rule list. Match
// reports whether the trimmed input has the rule's shape and Canonical
// converts a matching input into its canonical form.
type PlateRule struct {
	// Name identifies the rule in logs and tests.
	Name string

	// Match reports whether s has this rule's shape.
	Match func(s string) bool

	// Canonical returns the canonical form of a matching s.
	Canonical func(s string) string
}

var (
	// One ASCII digit, two Thai consonants, optional space, 1-4 digits.
	rePrefixedProvincial = regexp.MustCompile(`^[0-9][ก-ฮ]{2} ?[0-9]{1,4}$`)

	// Two Thai consonants, optional space, 1-4 digits.
	reProvincial = regexp.MustCompile(`^[ก-ฮ]{2} ?[0-9]{1,4}$`)

	// Commercial/truck plate: NN-NNNN.
	reCommercial = regexp.MustCompile(`^[0-9]{2}-[0-9]{4}$`)

	// Truck plate with the hyphen missing.
	reSixDigits = regexp.MustCompile(`^[0-9]{6}$`)
)

// PlateRules is the ordered rule list applied by [ValidateLicensePlate]. The
// first matching rule wins; order matters because the provincial shapes
// overlap.
var PlateRules = []PlateRule{
	{
		Name:      "provincial-prefixed",
		Match:     rePrefixedProvincial.MatchString,
		Canonical: identity,
	},
	{
		Name:      "provincial",
		Match:     reProvincial.MatchString,
		Canonical: identity,
	},
	{
		Name:      "commercial",
		Match:     reCommercial.MatchString,
		Canonical: identity,
	},
	{
		Name:      "commercial-unhyphenated",
		Match:     reSixDigits.MatchString,
		Canonical: hyphenateSixDigits,
	},
}

// ValidatePhone strips every character that is not an ASCII digit and
// accepts the result only if it is exactly [PhoneLength] digits long and
// begins with '0'.
func ValidatePhone(raw string) (string, bool) {
	var sb strings.Builder
	sb.Grow(len(raw))
	for i := 0; i < len(raw); i++ {
		if c := raw[i]; c >= '0' && c <= '9' {
			sb.WriteByte(c)
		}
	}
	digits := sb.String()
	if len(digits) != PhoneLength || digits[0] != '0' {
		return "", false
	}
	return digits, true
}

// ValidateLicensePlate trims raw and returns the canonical form produced by
// the first rule in [PlateRules] that matches it.
func ValidateLicensePlate(raw string) (string, bool) {
	return MatchPlate(PlateRules, raw)
}

// MatchPlate applies rules in order to the trimmed raw value. It is exposed
// so alternative rule sets can be evaluated with the same semantics.
func MatchPlate(rules []PlateRule, raw string) (string, bool) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return "", false
	}
	for _, r := range rules {
		if r.Match(s) {
			return r.Canonical(s), true
		}
	}
	return "", false
}

// ValidateText accepts any non-empty value after trimming surrounding
// whitespace. It is used for name, surname, and gender.
func ValidateText(raw string) (string, bool) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return "", false
	}
	return s, true
}

func identity(s string) string { return s }

// hyphenateSixDigits formats "701234" as "70-1234".
func hyphenateSixDigits(s string) string {
	return s[:2] + "-" + s[2:]
}
