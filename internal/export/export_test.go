package export

import (
	"encoding/csv"
	"strings"
	"testing"
	"time"
)

func date(value string) *time.Time {
	t, err := time.Parse("2006-01-02", value)
	if err != nil {
		panic(err)
	}
	return &t
}

func TestRenderBoardCSV(t *testing.T) {
	now := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)
	rows := []BoardRow{
		{
			Title:        "Ship billing v2",
			Status:       "execution",
			Owner:        "ana@acme.dev",
			OpenBlockers: 2,
			OpenHelp:     1,
			NextStep:     "Finish migration, then enable flag",
			TargetDate:   date("2026-04-01"),
			LastUpdate:   date("2026-03-10"),
		},
		{
			Title:  "Item with, comma and \"quotes\"",
			Status: "at_risk",
		},
	}

	result, err := RenderBoardCSV(rows, now)
	if err != nil {
		t.Fatalf("render csv: %v", err)
	}
	if result.Filename != "okr-ops-items-2026-03-14.csv" {
		t.Fatalf("unexpected filename %q", result.Filename)
	}
	if result.MimeType != "text/csv" {
		t.Fatalf("unexpected mime type %q", result.MimeType)
	}

	records, err := csv.NewReader(strings.NewReader(string(result.Data))).ReadAll()
	if err != nil {
		t.Fatalf("parse rendered csv: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("expected header plus 2 rows, got %d records", len(records))
	}

	wantHeader := []string{"Title", "Status", "Owner", "Open Blockers", "Open Help", "Next Step", "Target Date", "Last Update"}
	for i, col := range wantHeader {
		if records[0][i] != col {
			t.Fatalf("header[%d] = %q, want %q", i, records[0][i], col)
		}
	}

	first := records[1]
	if first[0] != "Ship billing v2" || first[3] != "2" || first[4] != "1" {
		t.Fatalf("unexpected first row: %v", first)
	}
	if first[6] != "2026-04-01" || first[7] != "2026-03-10" {
		t.Fatalf("unexpected dates in first row: %v", first)
	}

	second := records[2]
	if second[0] != "Item with, comma and \"quotes\"" {
		t.Fatalf("csv quoting broke title round trip: %q", second[0])
	}
	if second[6] != "" || second[7] != "" {
		t.Fatalf("nil dates should render empty, got %v", second)
	}
}

func TestRenderBoardCSVEmpty(t *testing.T) {
	result, err := RenderBoardCSV(nil, time.Now())
	if err != nil {
		t.Fatalf("render csv: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(result.Data)), "\n")
	if len(lines) != 1 {
		t.Fatalf("expected header only, got %d lines", len(lines))
	}
}

func TestRenderDashboardHTML(t *testing.T) {
	data := DashboardData{
		TeamName:    "Platform",
		GeneratedAt: time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC),
		StatusCounts: []LabelCount{
			{Label: "execution", Count: 3},
			{Label: "at_risk", Count: 1},
		},
		BlockerCounts: []LabelCount{
			{Label: "critical", Count: 2},
		},
		DueBuckets: []DueBucket{
			{Label: "Next 30 days", Items: []string{"Ship billing v2"}},
			{Label: "31-60 days", Items: nil},
		},
		StaleItems: []StaleItem{
			{Title: "Dormant effort", Owner: "bo@acme.dev", LastUpdate: "never"},
		},
	}

	html, err := RenderDashboardHTML(data)
	if err != nil {
		t.Fatalf("render dashboard: %v", err)
	}
	for _, want := range []string{"Platform", "execution", "critical", "Ship billing v2", "Dormant effort"} {
		if !strings.Contains(html, want) {
			t.Fatalf("rendered html missing %q", want)
		}
	}
}

func TestSanitizeFilename(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"okr-ops-dashboard Platform", "okr-ops-dashboard-Platform"},
		{"weird/!@#name", "weirdname"},
		{"", "dashboard"},
	}
	for _, tc := range tests {
		if got := sanitizeFilename(tc.in); got != tc.want {
			t.Fatalf("sanitizeFilename(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestPercentEncodeForDataURL(t *testing.T) {
	got := percentEncodeForDataURL("a b+c")
	if got != "a%20b%2Bc" {
		t.Fatalf("unexpected encoding: %q", got)
	}
}
