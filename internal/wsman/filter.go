package wsman

import (
	"fmt"

	wildcard "github.com/IGLOU-EU/go-wildcard/v2"

	"dracd/internal/xmlview"
)

// SelfCheck verifies the WS-MAN transport's dependencies are usable before
// any node is contacted: that an envelope can be built and parsed back.
// cmd/dracd calls this once at startup and refuses to start if it fails,
// rather than discovering a broken XML toolchain on the first real request.
func SelfCheck() error {
	payload, err := buildEnumerate("DCIM_ComputerSystem", "")
	if err != nil {
		return fmt.Errorf("build probe envelope: %w", err)
	}
	if _, err := xmlview.Parse(payload); err != nil {
		return fmt.Errorf("parse probe envelope: %w", err)
	}
	return nil
}

// LikeFilter builds a CQL-style "field like 'pattern'" clause for Enumerate,
// with glob wildcards (*, ?) in pattern kept as-is for the RAC's WQL engine.
func LikeFilter(resourceURI, field, pattern string) string {
	return "select * from " + resourceURI + " where " + field + " like '" + pattern + "'"
}

// MatchesLike reports whether value matches a glob-style pattern such as
// "*HardDisk*", mirroring how the RAC's own "like" selector matching works.
// Callers use it to re-check a WS-MAN reply client-side after an Enumerate
// that couldn't be scoped server-side (e.g. DCIM_LifecycleJob has no field
// dracd filters on server-side for job-name matching).
func MatchesLike(value, pattern string) bool {
	return wildcard.Match(pattern, value)
}
