package bios

import (
	"fmt"
	"regexp"
	"strconv"
)

func parseInt(s string) (int, error) {
	return strconv.Atoi(s)
}

// compileRegex compiles a PCRE-style pattern. Go's regexp is RE2, not PCRE,
// but the attribute patterns DRAC firmware emits (length/charset classes)
// fall within the RE2-compatible subset in practice.
func compileRegex(pattern string) (*regexp.Regexp, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("compile regex %q: %w", pattern, err)
	}
	return re, nil
}
