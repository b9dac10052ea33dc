package notifications

import (
	"github.com/nicholas-fedor/registry-cleaner/pkg/session"
)

// StaticData is the part of the template data model set upon initialization.
type StaticData struct {
	Title    string `json:"title"`
	Host     string `json:"host"`
	Registry string `json:"registry"`
}

// Data is the notification template data model.
type Data struct {
	StaticData

	Summary []session.SummaryLine `json:"summary"`
	Deleted []string              `json:"deleted"`
	Failed  []string              `json:"failed"`
	Skipped []string              `json:"skipped"`
	DryRun  []string              `json:"dryRun"`
	Scanned int                   `json:"scanned"`
}
