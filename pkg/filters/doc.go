// Package filters provides the name filters applied to repositories and tags.
//
// Key components:
//   - FilterByPattern: Regular expression search filter.
//   - Apply: Filters a name list while preserving its order.
//   - IsDangerous: Flags patterns that select too broadly to run unconfirmed.
//
// Usage example:
//
//	filter, err := filters.FilterByPattern("^release-")
//	if err != nil {
//	    return err
//	}
//	tags = filters.Apply(tags, filter)
package filters
