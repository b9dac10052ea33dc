package types

// Report defines the results of a cleanup run.
//
// Every entry is rendered as "repository:tag (digest)", except skipped entries
// which have no digest and are rendered as "repository:tag".
type Report interface {
	Deleted() []string // Tags deleted successfully.
	Failed() []string  // Tags whose delete request failed.
	Skipped() []string // Tags without a resolvable digest.
	DryRun() []string  // Tags that would have been deleted.
	Scanned() int      // Repositories processed.
}
