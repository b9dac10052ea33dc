// Package filters provides the name filters applied to repositories and tags.
package filters

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/nicholas-fedor/registry-cleaner/pkg/types"
)

// MatchAll is the pattern used when none is configured.
const MatchAll = ".*"

// dangerousFragment marks patterns broad enough to require confirmation.
const dangerousFragment = ".*"

// ErrInvalidPattern indicates a filter pattern that is not a valid regular expression.
var ErrInvalidPattern = errors.New("invalid filter pattern")

// NoFilter selects every name.
//
// Returns:
//   - bool: Always true.
func NoFilter(name string) bool {
	logrus.WithField("name", name).Trace("No filter applied")

	return true
}

// FilterByPattern selects names containing a match of the regular expression.
//
// The match is a search, not an anchored match: "alp" selects "library/alpine".
// Anchor the pattern with ^ and $ for exact names. An empty pattern selects
// every name.
//
// Parameters:
//   - pattern: Regular expression.
//
// Returns:
//   - types.Filter: Filter function.
//   - error: ErrInvalidPattern if the expression does not compile.
func FilterByPattern(pattern string) (types.Filter, error) {
	if pattern == "" || pattern == MatchAll {
		return NoFilter, nil
	}

	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %w", ErrInvalidPattern, pattern, err)
	}

	return func(name string) bool {
		matched := re.MatchString(name)
		logrus.WithFields(logrus.Fields{
			"name":    name,
			"pattern": pattern,
			"matched": matched,
		}).Trace("Applied pattern filter")

		return matched
	}, nil
}

// Apply returns the names selected by the filter, in their original order.
func Apply(names []string, filter types.Filter) []string {
	selected := make([]string, 0, len(names))

	for _, name := range names {
		if filter(name) {
			selected = append(selected, name)
		}
	}

	return selected
}

// IsDangerous reports whether a pattern is broad enough to need confirmation.
func IsDangerous(pattern string) bool {
	return strings.Contains(pattern, dangerousFragment)
}
