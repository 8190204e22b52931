package store

import "time"

// Profile is an authenticated actor. Role is the global role axis
// (admin/manager/member/viewer); per-team roles live on TeamMember.
type Profile struct {
	ID           string
	Email        string
	Role         string
	PasswordHash string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

type Team struct {
	ID        string
	Name      string
	Icon      string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// TeamMember links a profile to a team with a team-scoped role. At most one
// row exists per (team_id, user_id).
type TeamMember struct {
	ID         string
	TeamID     string
	UserID     string
	MemberRole string
	CreatedAt  time.Time
	// Joined for API responses
	Email string
}

type Period struct {
	ID        string
	Name      string
	StartDate time.Time
	EndDate   time.Time
	CreatedAt time.Time
	UpdatedAt time.Time
}

type Objective struct {
	ID        string
	TeamID    string
	PeriodID  string
	Title     string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Item is a tracked work stream. The mutable status fields are denormalized
// "current state"; every change is also recorded as an immutable ItemUpdate.
type Item struct {
	ID                string
	TeamID            string
	ObjectiveID       *string
	Title             string
	OwnerID           *string
	Status            string
	StatusReason      string
	BlockersSummary   string
	HelpNeededSummary string
	NextStep          string
	TargetDate        *time.Time
	LastUpdateAt      *time.Time
	CreatedAt         time.Time
	UpdatedAt         time.Time
	// Joined for API responses
	TeamName       string
	OwnerEmail     string
	ObjectiveTitle string
}

// UpdateSnapshot is the fixed schema of an ItemUpdate payload. Every field
// is optional; empty values are omitted on the wire and never rendered.
type UpdateSnapshot struct {
	Status            string `json:"status,omitempty"`
	StatusReason      string `json:"status_reason,omitempty"`
	BlockersSummary   string `json:"blockers_summary,omitempty"`
	HelpNeededSummary string `json:"help_needed_summary,omitempty"`
	NextStep          string `json:"next_step,omitempty"`
	TargetDate        string `json:"target_date,omitempty"`
}

// ItemUpdate is an append-only log entry; rows are never mutated or deleted.
type ItemUpdate struct {
	ID        string
	ItemID    string
	UpdatedBy string
	Snapshot  UpdateSnapshot
	CreatedAt time.Time
	// Joined for API responses
	AuthorEmail string
}

type Blocker struct {
	ID        string
	ItemID    string
	Title     string
	Detail    string
	Severity  string
	Status    string
	OwnerID   *string
	ETA       *time.Time
	CreatedAt time.Time
	UpdatedAt time.Time
}

type HelpRequest struct {
	ID          string
	ItemID      string
	RequestedBy string
	Type        string
	Detail      string
	Status      string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Comment is immutable once posted except for delete.
type Comment struct {
	ID        string
	ItemID    string
	AuthorID  string
	Body      string
	CreatedAt time.Time
	// Joined for API responses
	AuthorEmail string
}

// ItemFilter narrows ListItems. Zero values mean "no filter".
type ItemFilter struct {
	TeamID      string
	Status      string
	OwnerID     string
	ObjectiveID string
	TargetFrom  *time.Time
	TargetTo    *time.Time
}
