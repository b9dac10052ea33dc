package session

import (
	"slices"
	"strings"

	"github.com/sirupsen/logrus"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"

	"github.com/nicholas-fedor/registry-cleaner/pkg/types"
)

// Summary kinds.
const (
	KindDeleted = "deleted"
	KindFailed  = "failed"
)

// printer formats counts and percentages.
var printer = message.NewPrinter(language.English)

// SummaryLine describes one kind of outcome.
type SummaryLine struct {
	Kind       string   // KindDeleted or KindFailed.
	Emoji      string   // Log prefix.
	Count      int      // Number of entries.
	Percentage float64  // Share of deleted+failed, 0 when that total is 0.
	Entries    []string // Sorted "repository:tag (digest)" entries.
}

// String renders the line, e.g. "🟢 Total deleted Docker images:   9 (100.00%) -> [...]".
func (l SummaryLine) String() string {
	return printer.Sprintf(
		"%s Total %s Docker images: %3d (%v) -> [%s]",
		l.Emoji,
		l.Kind,
		l.Count,
		number.Percent(l.Percentage, number.Scale(2)),
		strings.Join(l.Entries, ", "),
	)
}

// Summarize builds summary lines for a report. Kinds without entries are omitted.
//
// Parameters:
//   - report: Report to summarize.
//
// Returns:
//   - []SummaryLine: Deleted line first, then failed.
func Summarize(report types.Report) []SummaryLine {
	deleted := report.Deleted()
	failed := report.Failed()
	total := len(deleted) + len(failed)

	lines := make([]SummaryLine, 0, 2)

	for _, kind := range []struct {
		name    string
		emoji   string
		entries []string
	}{
		{name: KindDeleted, emoji: "🟢", entries: deleted},
		{name: KindFailed, emoji: "🔴", entries: failed},
	} {
		if len(kind.entries) == 0 {
			continue
		}

		sorted := slices.Clone(kind.entries)
		slices.Sort(sorted)

		lines = append(lines, SummaryLine{
			Kind:       kind.name,
			Emoji:      kind.emoji,
			Count:      len(sorted),
			Percentage: Percentage(len(sorted), total),
			Entries:    sorted,
		})
	}

	return lines
}

// Percentage returns part/total, or 0 when total is 0.
func Percentage(part, total int) float64 {
	if total == 0 {
		return 0
	}

	return float64(part) / float64(total)
}

// Summary returns the summary lines of the result.
func (r *Result) Summary() []SummaryLine {
	return Summarize(r)
}

// LogSummary logs each summary line at info level.
func (r *Result) LogSummary() {
	for _, line := range r.Summary() {
		logrus.WithFields(logrus.Fields{
			"kind":  line.Kind,
			"count": line.Count,
		}).Info(line.String())
	}

	if skipped := r.Skipped(); len(skipped) > 0 {
		logrus.WithField("count", len(skipped)).Info(printer.Sprintf("🤷 Tags without a resolvable digest: %d", len(skipped)))
	}

	if planned := r.DryRun(); len(planned) > 0 {
		logrus.WithField("count", len(planned)).Info(printer.Sprintf("📝 Deletions planned by dry-run: %d", len(planned)))
	}
}
