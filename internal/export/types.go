// Package export renders board CSV exports and dashboard PDF reports.
package export

import (
	"errors"
	"time"
)

// Format represents the export output format
type Format string

const (
	FormatCSV Format = "csv"
	FormatPDF Format = "pdf"
)

// BoardRow is one exported line of the items board. Counts are resolved by
// the caller so the renderer stays a pure function.
type BoardRow struct {
	Title        string
	Status       string
	Owner        string
	OpenBlockers int
	OpenHelp     int
	NextStep     string
	TargetDate   *time.Time
	LastUpdate   *time.Time
}

// DashboardData is the aggregate snapshot rendered into the PDF report.
type DashboardData struct {
	TeamName      string
	GeneratedAt   time.Time
	StatusCounts  []LabelCount
	BlockerCounts []LabelCount
	DueBuckets    []DueBucket
	StaleItems    []StaleItem
}

// LabelCount is a label with its count, ordered by the caller.
type LabelCount struct {
	Label string
	Count int
}

// DueBucket groups items by target date horizon.
type DueBucket struct {
	Label string
	Items []string
}

// StaleItem is an item without a recent status update.
type StaleItem struct {
	Title      string
	Owner      string
	LastUpdate string
}

// Result contains the export output
type Result struct {
	Data     []byte
	Filename string
	MimeType string
}

// ErrPDFDependencyMissing indicates PDF export runtime dependencies are unavailable.
var ErrPDFDependencyMissing = errors.New("export pdf dependency missing")
