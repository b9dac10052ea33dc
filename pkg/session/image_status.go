package session

import (
	"fmt"
)

// State enum values.
const (
	UnknownState State = iota // Uninitialized state.
	DeletedState              // Manifest deleted.
	FailedState               // Deletion refused or failed.
	SkippedState              // Digest could not be resolved.
	DryRunState               // Deletion planned but not performed.
)

// State indicates what happened to a tag during a run.
type State int

// ImageStatus holds one tag's outcome.
type ImageStatus struct {
	imageRef string // "repository:tag".
	digest   string // Resolved digest, empty when skipped.
	state    State  // Outcome.
}

// ImageRef returns the "repository:tag" reference.
func (s *ImageStatus) ImageRef() string {
	return s.imageRef
}

// Digest returns the resolved digest, or "" when the tag was skipped.
func (s *ImageStatus) Digest() string {
	return s.digest
}

// Entry renders the status the way summaries list it: "repository:tag (digest)".
// Tags without a digest render as the bare reference.
func (s *ImageStatus) Entry() string {
	if s.digest == "" {
		return s.imageRef
	}

	return fmt.Sprintf("%s (%s)", s.imageRef, s.digest)
}

// State returns the human-readable state name.
//
// Returns:
//   - string: State as a string (e.g., "Deleted").
func (s *ImageStatus) State() string {
	switch s.state {
	case UnknownState:
		return "Unknown"
	case DeletedState:
		return "Deleted"
	case FailedState:
		return "Failed"
	case SkippedState:
		return "Skipped"
	case DryRunState:
		return "DryRun"
	default:
		return "Unknown"
	}
}
