package export

import (
	"fmt"
	"time"
)

// Service renders exports and archives a copy when an Archiver is configured.
type Service struct {
	archiver *Archiver
}

// NewService creates an export service. archiver may be nil.
func NewService(archiver *Archiver) *Service {
	return &Service{archiver: archiver}
}

// BoardCSV renders the items board as CSV.
func (s *Service) BoardCSV(rows []BoardRow, now time.Time) (*Result, error) {
	result, err := RenderBoardCSV(rows, now)
	if err != nil {
		return nil, err
	}
	s.archiver.StoreAsync(result)
	return result, nil
}

// DashboardPDF renders the dashboard snapshot as a PDF report.
func (s *Service) DashboardPDF(data DashboardData) (*Result, error) {
	html, err := RenderDashboardHTML(data)
	if err != nil {
		return nil, fmt.Errorf("render dashboard template: %w", err)
	}

	baseName := "okr-ops-dashboard"
	if data.TeamName != "" {
		baseName += " " + data.TeamName
	}
	result, err := renderPDF(html, baseName)
	if err != nil {
		return nil, err
	}
	s.archiver.StoreAsync(result)
	return result, nil
}
