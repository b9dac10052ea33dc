package session

import (
	"github.com/sirupsen/logrus"

	"github.com/nicholas-fedor/registry-cleaner/pkg/types"
)

// Result holds the ordered outcomes of one cleanup run.
//
// A Result is filled by a single orchestrator goroutine and read afterwards.
type Result struct {
	statuses []*ImageStatus
	scanned  []string // Repositories whose tags were listed.
}

// NewResult creates an empty result.
func NewResult() *Result {
	return &Result{
		statuses: make([]*ImageStatus, 0),
		scanned:  make([]string, 0),
	}
}

// AddScanned records a repository whose tags were listed.
func (r *Result) AddScanned(repository string) {
	r.scanned = append(r.scanned, repository)
}

// AddDeleted records a successful deletion.
//
// Parameters:
//   - imageRef: "repository:tag".
//   - digest: Digest the manifest was deleted by.
func (r *Result) AddDeleted(imageRef, digest string) {
	r.add(&ImageStatus{imageRef: imageRef, digest: digest, state: DeletedState})
}

// AddFailed records a refused or failed deletion. The cause is logged by
// the registry client, not recorded here.
//
// Parameters:
//   - imageRef: "repository:tag".
//   - digest: Digest the deletion was attempted with.
func (r *Result) AddFailed(imageRef, digest string) {
	r.add(&ImageStatus{imageRef: imageRef, digest: digest, state: FailedState})
}

// AddSkipped records a tag whose digest could not be resolved.
func (r *Result) AddSkipped(imageRef string) {
	r.add(&ImageStatus{imageRef: imageRef, state: SkippedState})
}

// AddDryRun records a deletion that dry-run mode suppressed.
func (r *Result) AddDryRun(imageRef, digest string) {
	r.add(&ImageStatus{imageRef: imageRef, digest: digest, state: DryRunState})
}

// Statuses returns every recorded status in arrival order.
func (r *Result) Statuses() []*ImageStatus {
	return r.statuses
}

// Deleted returns "repository:tag (digest)" entries of deleted images in arrival order.
func (r *Result) Deleted() []string {
	return r.entries(DeletedState)
}

// Failed returns "repository:tag (digest)" entries of failed deletions in arrival order.
func (r *Result) Failed() []string {
	return r.entries(FailedState)
}

// Skipped returns references of tags without a resolvable digest.
func (r *Result) Skipped() []string {
	return r.entries(SkippedState)
}

// DryRun returns "repository:tag (digest)" entries of deletions dry-run mode suppressed.
func (r *Result) DryRun() []string {
	return r.entries(DryRunState)
}

// Scanned returns the number of repositories whose tags were listed.
func (r *Result) Scanned() int {
	return len(r.scanned)
}

// Report returns the result as a types.Report.
func (r *Result) Report() types.Report {
	return r
}

func (r *Result) add(status *ImageStatus) {
	r.statuses = append(r.statuses, status)

	logrus.WithFields(logrus.Fields{
		"image":  status.imageRef,
		"digest": status.digest,
		"state":  status.State(),
	}).Debug("Recorded image status")
}

func (r *Result) entries(state State) []string {
	entries := make([]string, 0)

	for _, status := range r.statuses {
		if status.state == state {
			entries = append(entries, status.Entry())
		}
	}

	return entries
}
