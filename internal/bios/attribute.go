// Package bios reads and stages BIOS attribute configuration through the
// DCIM_BIOSService.
package bios

import "sort"

// Value is the union of possible current/pending attribute values: an
// integer, a string, or absent (nil = no value / no change staged).
type Value interface{}

// Header carries the fields common to every BIOS attribute variant.
type Header struct {
	Name         string
	CurrentValue Value
	PendingValue Value
	ReadOnly     bool
}

// Attribute is a tagged-union type for the BIOS attribute dictionary: an
// explicit sum type with one Go type per constraint class instead of a
// dynamic map.
type Attribute interface {
	header() Header
	// Validate reports whether candidate is an acceptable pending value
	// for this attribute's constraint, returning a human-readable reason
	// when it is not.
	Validate(candidate string) (ok bool, reason string)
}

// EnumerationAttribute constrains its value to an ordered set of strings.
type EnumerationAttribute struct {
	Header
	PossibleValues []string // sorted lexicographically
}

func (a EnumerationAttribute) header() Header { return a.Header }

func (a EnumerationAttribute) Validate(candidate string) (bool, string) {
	for _, v := range a.PossibleValues {
		if v == candidate {
			return true, ""
		}
	}
	return false, "value is not one of the possible values"
}

// StringAttribute carries length bounds and an optional regular expression.
// Validate checks only the regular expression; MinLength and MaxLength are
// not enforced.
type StringAttribute struct {
	Header
	MinLength int
	MaxLength int
	Regex     *string // nil when unconstrained
}

func (a StringAttribute) header() Header { return a.Header }

func (a StringAttribute) Validate(candidate string) (bool, string) {
	if a.Regex != nil {
		re, err := compileRegex(*a.Regex)
		if err != nil {
			return false, "attribute regex is invalid"
		}
		if !re.MatchString(candidate) {
			return false, "value does not match the required pattern"
		}
	}
	return true, ""
}

// IntegerAttribute constrains its value to an inclusive integer range.
type IntegerAttribute struct {
	Header
	LowerBound int
	UpperBound int
}

func (a IntegerAttribute) header() Header { return a.Header }

func (a IntegerAttribute) Validate(candidate string) (bool, string) {
	n, err := parseInt(candidate)
	if err != nil {
		return false, "value is not an integer"
	}
	// Compares the parsed value against the bounds, not the attribute name.
	if n < a.LowerBound || n > a.UpperBound {
		return false, "value is outside the allowed bounds"
	}
	return true, ""
}

// Name returns the attribute's name regardless of its concrete variant.
func Name(a Attribute) string { return a.header().Name }

// CurrentValue returns the attribute's current value regardless of variant.
func CurrentValue(a Attribute) Value { return a.header().CurrentValue }

// ReadOnly reports whether the attribute rejects pending writes.
func ReadOnly(a Attribute) bool { return a.header().ReadOnly }

func sortStrings(values []string) []string {
	out := append([]string(nil), values...)
	sort.Strings(out)
	return out
}
