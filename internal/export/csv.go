package export

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"strconv"
	"time"
)

var boardHeader = []string{
	"Title", "Status", "Owner", "Open Blockers", "Open Help",
	"Next Step", "Target Date", "Last Update",
}

// RenderBoardCSV renders board rows into a CSV download. The column order is
// fixed so exports stay diffable between runs.
func RenderBoardCSV(rows []BoardRow, now time.Time) (*Result, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	if err := w.Write(boardHeader); err != nil {
		return nil, fmt.Errorf("write csv header: %w", err)
	}
	for _, row := range rows {
		record := []string{
			row.Title,
			row.Status,
			row.Owner,
			strconv.Itoa(row.OpenBlockers),
			strconv.Itoa(row.OpenHelp),
			row.NextStep,
			formatDate(row.TargetDate),
			formatDate(row.LastUpdate),
		}
		if err := w.Write(record); err != nil {
			return nil, fmt.Errorf("write csv row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("flush csv: %w", err)
	}

	return &Result{
		Data:     buf.Bytes(),
		Filename: fmt.Sprintf("okr-ops-items-%s.csv", now.Format("2006-01-02")),
		MimeType: "text/csv",
	}, nil
}

func formatDate(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format("2006-01-02")
}
