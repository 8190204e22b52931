package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// ---- profiles ----

const profileColumns = `id, email, COALESCE(role, 'viewer'), COALESCE(password_hash, ''), created_at, updated_at`

func scanProfile(row interface{ Scan(...any) error }) (Profile, error) {
	var p Profile
	err := row.Scan(&p.ID, &p.Email, &p.Role, &p.PasswordHash, &p.CreatedAt, &p.UpdatedAt)
	return p, err
}

func (s *PostgresStore) GetProfileByID(ctx context.Context, id string) (Profile, error) {
	return scanProfile(s.db.QueryRowContext(ctx, `SELECT `+profileColumns+` FROM profiles WHERE id=$1`, id))
}

func (s *PostgresStore) GetProfileByEmail(ctx context.Context, email string) (Profile, error) {
	return scanProfile(s.db.QueryRowContext(ctx, `SELECT `+profileColumns+` FROM profiles WHERE LOWER(email)=LOWER($1)`, email))
}

func (s *PostgresStore) CreateProfile(ctx context.Context, p Profile) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO profiles (id, email, role, password_hash)
		VALUES ($1, $2, $3, $4)
	`, p.ID, p.Email, p.Role, p.PasswordHash)
	if err != nil {
		return fmt.Errorf("insert profile: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListProfiles(ctx context.Context) ([]Profile, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+profileColumns+` FROM profiles ORDER BY email`)
	if err != nil {
		return nil, fmt.Errorf("list profiles: %w", err)
	}
	defer rows.Close()

	profiles := make([]Profile, 0)
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, fmt.Errorf("scan profile: %w", err)
		}
		profiles = append(profiles, p)
	}
	return profiles, rows.Err()
}

func (s *PostgresStore) CountProfiles(ctx context.Context) (int, error) {
	var count int
	if err := s.db.QueryRowContext(ctx, `SELECT count(*) FROM profiles`).Scan(&count); err != nil {
		return 0, fmt.Errorf("count profiles: %w", err)
	}
	return count, nil
}

func (s *PostgresStore) UpdateProfileRole(ctx context.Context, id, role string) error {
	result, err := s.db.ExecContext(ctx, `UPDATE profiles SET role=$2, updated_at=NOW() WHERE id=$1`, id, role)
	if err != nil {
		return fmt.Errorf("update profile role: %w", err)
	}
	return requireRow(result)
}

func (s *PostgresStore) UpdateProfilePassword(ctx context.Context, id, passwordHash string) error {
	result, err := s.db.ExecContext(ctx, `UPDATE profiles SET password_hash=$2, updated_at=NOW() WHERE id=$1`, id, passwordHash)
	if err != nil {
		return fmt.Errorf("update profile password: %w", err)
	}
	return requireRow(result)
}

func (s *PostgresStore) CreatePasswordReset(ctx context.Context, userID, token string, expiresAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO password_resets (token, user_id, expires_at)
		VALUES ($1, $2, $3)
	`, token, userID, expiresAt)
	if err != nil {
		return fmt.Errorf("create password reset: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetPasswordReset(ctx context.Context, token string) (string, error) {
	var userID string
	err := s.db.QueryRowContext(ctx, `
		SELECT user_id FROM password_resets
		WHERE token=$1 AND used_at IS NULL AND expires_at > NOW()
	`, token).Scan(&userID)
	if err != nil {
		return "", err
	}
	return userID, nil
}

func (s *PostgresStore) MarkPasswordResetUsed(ctx context.Context, token string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE password_resets SET used_at=NOW() WHERE token=$1`, token)
	if err != nil {
		return fmt.Errorf("mark password reset used: %w", err)
	}
	return nil
}

// ---- sessions ----

func (s *PostgresStore) SaveRefreshSession(ctx context.Context, tokenHash, userID string, expiresAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO refresh_sessions (token_hash, user_id, expires_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (token_hash) DO UPDATE SET user_id=EXCLUDED.user_id, expires_at=EXCLUDED.expires_at, revoked_at=NULL
	`, tokenHash, userID, expiresAt)
	if err != nil {
		return fmt.Errorf("save refresh session: %w", err)
	}
	return nil
}

func (s *PostgresStore) LookupRefreshSession(ctx context.Context, tokenHash string) (Profile, error) {
	const query = `
		SELECT p.id, p.email, COALESCE(p.role, 'viewer'), COALESCE(p.password_hash, ''), p.created_at, p.updated_at
		FROM refresh_sessions rs
		JOIN profiles p ON p.id = rs.user_id
		WHERE rs.token_hash = $1
			AND rs.revoked_at IS NULL
			AND rs.expires_at > NOW()
	`
	return scanProfile(s.db.QueryRowContext(ctx, query, tokenHash))
}

func (s *PostgresStore) RevokeRefreshSession(ctx context.Context, tokenHash string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE refresh_sessions SET revoked_at=NOW() WHERE token_hash=$1`, tokenHash)
	if err != nil {
		return fmt.Errorf("revoke refresh session: %w", err)
	}
	return nil
}

func (s *PostgresStore) RevokeAccessToken(ctx context.Context, jti string, expiresAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO revoked_access_tokens (jti, expires_at)
		VALUES ($1, $2)
		ON CONFLICT (jti) DO NOTHING
	`, jti, expiresAt)
	if err != nil {
		return fmt.Errorf("revoke access token: %w", err)
	}
	return nil
}

func (s *PostgresStore) IsAccessTokenRevoked(ctx context.Context, jti string) (bool, error) {
	var revoked bool
	err := s.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM revoked_access_tokens WHERE jti=$1)`, jti).Scan(&revoked)
	if err != nil {
		return false, fmt.Errorf("check revoked token: %w", err)
	}
	return revoked, nil
}

// ---- teams ----

func (s *PostgresStore) ListTeams(ctx context.Context) ([]Team, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, COALESCE(icon, ''), created_at, updated_at
		FROM teams
		ORDER BY name
	`)
	if err != nil {
		return nil, fmt.Errorf("list teams: %w", err)
	}
	defer rows.Close()

	teams := make([]Team, 0)
	for rows.Next() {
		var t Team
		if err := rows.Scan(&t.ID, &t.Name, &t.Icon, &t.CreatedAt, &t.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan team: %w", err)
		}
		teams = append(teams, t)
	}
	return teams, rows.Err()
}

func (s *PostgresStore) GetTeam(ctx context.Context, id string) (Team, error) {
	var t Team
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, COALESCE(icon, ''), created_at, updated_at
		FROM teams WHERE id=$1
	`, id).Scan(&t.ID, &t.Name, &t.Icon, &t.CreatedAt, &t.UpdatedAt)
	return t, err
}

func (s *PostgresStore) InsertTeam(ctx context.Context, t Team) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO teams (id, name, icon) VALUES ($1, $2, $3)
	`, t.ID, t.Name, t.Icon)
	if err != nil {
		return fmt.Errorf("insert team: %w", err)
	}
	return nil
}

func (s *PostgresStore) UpdateTeam(ctx context.Context, id, name, icon string) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE teams SET name=$2, icon=$3, updated_at=NOW() WHERE id=$1
	`, id, name, icon)
	if err != nil {
		return fmt.Errorf("update team: %w", err)
	}
	return requireRow(result)
}

func (s *PostgresStore) DeleteTeam(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM teams WHERE id=$1`, id)
	if err != nil {
		return fmt.Errorf("delete team: %w", err)
	}
	return requireRow(result)
}

// ---- team members ----

func (s *PostgresStore) ListTeamMembers(ctx context.Context, teamID string) ([]TeamMember, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT tm.id, tm.team_id, tm.user_id, tm.member_role, tm.created_at, p.email
		FROM team_members tm
		JOIN profiles p ON p.id = tm.user_id
		WHERE tm.team_id = $1
		ORDER BY tm.member_role, p.email
	`, teamID)
	if err != nil {
		return nil, fmt.Errorf("list team members: %w", err)
	}
	defer rows.Close()

	members := make([]TeamMember, 0)
	for rows.Next() {
		var m TeamMember
		if err := rows.Scan(&m.ID, &m.TeamID, &m.UserID, &m.MemberRole, &m.CreatedAt, &m.Email); err != nil {
			return nil, fmt.Errorf("scan team member: %w", err)
		}
		members = append(members, m)
	}
	return members, rows.Err()
}

// GetTeamMember returns nil when the user has no membership row for the team.
func (s *PostgresStore) GetTeamMember(ctx context.Context, teamID, userID string) (*TeamMember, error) {
	var m TeamMember
	err := s.db.QueryRowContext(ctx, `
		SELECT id, team_id, user_id, member_role, created_at
		FROM team_members
		WHERE team_id=$1 AND user_id=$2
	`, teamID, userID).Scan(&m.ID, &m.TeamID, &m.UserID, &m.MemberRole, &m.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get team member: %w", err)
	}
	return &m, nil
}

func (s *PostgresStore) GetTeamMemberByID(ctx context.Context, memberID string) (TeamMember, error) {
	var m TeamMember
	err := s.db.QueryRowContext(ctx, `
		SELECT id, team_id, user_id, member_role, created_at
		FROM team_members WHERE id=$1
	`, memberID).Scan(&m.ID, &m.TeamID, &m.UserID, &m.MemberRole, &m.CreatedAt)
	return m, err
}

func (s *PostgresStore) InsertTeamMember(ctx context.Context, m TeamMember) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO team_members (id, team_id, user_id, member_role)
		VALUES ($1, $2, $3, $4)
	`, m.ID, m.TeamID, m.UserID, m.MemberRole)
	if err != nil {
		return fmt.Errorf("insert team member: %w", err)
	}
	return nil
}

func (s *PostgresStore) UpdateTeamMemberRole(ctx context.Context, memberID, role string) error {
	result, err := s.db.ExecContext(ctx, `UPDATE team_members SET member_role=$2 WHERE id=$1`, memberID, role)
	if err != nil {
		return fmt.Errorf("update team member role: %w", err)
	}
	return requireRow(result)
}

func (s *PostgresStore) DeleteTeamMember(ctx context.Context, memberID string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM team_members WHERE id=$1`, memberID)
	if err != nil {
		return fmt.Errorf("delete team member: %w", err)
	}
	return requireRow(result)
}

// ---- periods and objectives ----

func (s *PostgresStore) ListPeriods(ctx context.Context) ([]Period, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, start_date, end_date, created_at, updated_at
		FROM periods
		ORDER BY start_date DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("list periods: %w", err)
	}
	defer rows.Close()

	periods := make([]Period, 0)
	for rows.Next() {
		var p Period
		if err := rows.Scan(&p.ID, &p.Name, &p.StartDate, &p.EndDate, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan period: %w", err)
		}
		periods = append(periods, p)
	}
	return periods, rows.Err()
}

func (s *PostgresStore) InsertPeriod(ctx context.Context, p Period) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO periods (id, name, start_date, end_date)
		VALUES ($1, $2, $3, $4)
	`, p.ID, p.Name, p.StartDate, p.EndDate)
	if err != nil {
		return fmt.Errorf("insert period: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListObjectives(ctx context.Context, teamID string) ([]Objective, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, team_id, period_id, title, created_at, updated_at
		FROM objectives
		WHERE team_id=$1
		ORDER BY title
	`, teamID)
	if err != nil {
		return nil, fmt.Errorf("list objectives: %w", err)
	}
	defer rows.Close()

	objectives := make([]Objective, 0)
	for rows.Next() {
		var o Objective
		if err := rows.Scan(&o.ID, &o.TeamID, &o.PeriodID, &o.Title, &o.CreatedAt, &o.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan objective: %w", err)
		}
		objectives = append(objectives, o)
	}
	return objectives, rows.Err()
}

func (s *PostgresStore) GetObjective(ctx context.Context, id string) (Objective, error) {
	var o Objective
	err := s.db.QueryRowContext(ctx, `
		SELECT id, team_id, period_id, title, created_at, updated_at
		FROM objectives WHERE id=$1
	`, id).Scan(&o.ID, &o.TeamID, &o.PeriodID, &o.Title, &o.CreatedAt, &o.UpdatedAt)
	return o, err
}

func (s *PostgresStore) InsertObjective(ctx context.Context, o Objective) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO objectives (id, team_id, period_id, title)
		VALUES ($1, $2, $3, $4)
	`, o.ID, o.TeamID, o.PeriodID, o.Title)
	if err != nil {
		return fmt.Errorf("insert objective: %w", err)
	}
	return nil
}

func (s *PostgresStore) UpdateObjective(ctx context.Context, id, title string) error {
	result, err := s.db.ExecContext(ctx, `UPDATE objectives SET title=$2, updated_at=NOW() WHERE id=$1`, id, title)
	if err != nil {
		return fmt.Errorf("update objective: %w", err)
	}
	return requireRow(result)
}

func (s *PostgresStore) DeleteObjective(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM objectives WHERE id=$1`, id)
	if err != nil {
		return fmt.Errorf("delete objective: %w", err)
	}
	return requireRow(result)
}

// ---- items ----

const itemSelect = `
	SELECT i.id, i.team_id, i.objective_id, i.title, i.owner_id, i.status,
		COALESCE(i.status_reason, ''), COALESCE(i.blockers_summary, ''),
		COALESCE(i.help_needed_summary, ''), COALESCE(i.next_step, ''),
		i.target_date, i.last_update_at, i.created_at, i.updated_at,
		t.name, COALESCE(p.email, ''), COALESCE(o.title, '')
	FROM items i
	JOIN teams t ON t.id = i.team_id
	LEFT JOIN profiles p ON p.id = i.owner_id
	LEFT JOIN objectives o ON o.id = i.objective_id
`

func scanItem(row interface{ Scan(...any) error }) (Item, error) {
	var item Item
	err := row.Scan(
		&item.ID, &item.TeamID, &item.ObjectiveID, &item.Title, &item.OwnerID, &item.Status,
		&item.StatusReason, &item.BlockersSummary, &item.HelpNeededSummary, &item.NextStep,
		&item.TargetDate, &item.LastUpdateAt, &item.CreatedAt, &item.UpdatedAt,
		&item.TeamName, &item.OwnerEmail, &item.ObjectiveTitle,
	)
	return item, err
}

// ListItems applies the filter and orders least-recently-updated first with
// never-updated items at the top, the ordering every board view relies on.
func (s *PostgresStore) ListItems(ctx context.Context, filter ItemFilter) ([]Item, error) {
	var conditions []string
	var args []any
	arg := func(value any) string {
		args = append(args, value)
		return fmt.Sprintf("$%d", len(args))
	}

	if filter.TeamID != "" {
		conditions = append(conditions, "i.team_id = "+arg(filter.TeamID))
	}
	if filter.Status != "" {
		conditions = append(conditions, "i.status = "+arg(filter.Status))
	}
	if filter.OwnerID != "" {
		conditions = append(conditions, "i.owner_id = "+arg(filter.OwnerID))
	}
	if filter.ObjectiveID != "" {
		conditions = append(conditions, "i.objective_id = "+arg(filter.ObjectiveID))
	}
	if filter.TargetFrom != nil {
		conditions = append(conditions, "i.target_date >= "+arg(*filter.TargetFrom))
	}
	if filter.TargetTo != nil {
		conditions = append(conditions, "i.target_date <= "+arg(*filter.TargetTo))
	}

	query := itemSelect
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY i.last_update_at ASC NULLS FIRST, i.created_at ASC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list items: %w", err)
	}
	defer rows.Close()

	items := make([]Item, 0)
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scan item: %w", err)
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func (s *PostgresStore) GetItem(ctx context.Context, id string) (Item, error) {
	return scanItem(s.db.QueryRowContext(ctx, itemSelect+` WHERE i.id=$1`, id))
}

func (s *PostgresStore) InsertItem(ctx context.Context, item Item) (Item, error) {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO items (id, team_id, objective_id, title, owner_id, status)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, item.ID, item.TeamID, item.ObjectiveID, item.Title, item.OwnerID, item.Status)
	if err != nil {
		return Item{}, fmt.Errorf("insert item: %w", err)
	}
	return s.GetItem(ctx, item.ID)
}

func (s *PostgresStore) UpdateItemMeta(ctx context.Context, id, title string, ownerID, objectiveID *string) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE items SET title=$2, owner_id=$3, objective_id=$4, updated_at=NOW() WHERE id=$1
	`, id, title, ownerID, objectiveID)
	if err != nil {
		return fmt.Errorf("update item meta: %w", err)
	}
	return requireRow(result)
}

// ApplyItemSnapshot overwrites the item's mutable status fields to match a
// freshly inserted ItemUpdate snapshot and stamps last_update_at.
func (s *PostgresStore) ApplyItemSnapshot(ctx context.Context, itemID string, snapshot UpdateSnapshot, at time.Time) error {
	var targetDate *time.Time
	if snapshot.TargetDate != "" {
		parsed, err := time.Parse("2006-01-02", snapshot.TargetDate)
		if err != nil {
			return fmt.Errorf("parse snapshot target date: %w", err)
		}
		targetDate = &parsed
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE items
		SET status=$2, status_reason=$3, blockers_summary=$4, help_needed_summary=$5,
			next_step=$6, target_date=$7, last_update_at=$8, updated_at=NOW()
		WHERE id=$1
	`, itemID, snapshot.Status, snapshot.StatusReason, snapshot.BlockersSummary,
		snapshot.HelpNeededSummary, snapshot.NextStep, targetDate, at)
	if err != nil {
		return fmt.Errorf("apply item snapshot: %w", err)
	}
	return requireRow(result)
}

func (s *PostgresStore) DeleteItem(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM items WHERE id=$1`, id)
	if err != nil {
		return fmt.Errorf("delete item: %w", err)
	}
	return requireRow(result)
}

// ---- item updates ----

func (s *PostgresStore) InsertItemUpdate(ctx context.Context, update ItemUpdate) error {
	snapshot, err := json.Marshal(update.Snapshot)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO item_updates (id, item_id, updated_by, snapshot)
		VALUES ($1, $2, $3, $4)
	`, update.ID, update.ItemID, update.UpdatedBy, snapshot)
	if err != nil {
		return fmt.Errorf("insert item update: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListItemUpdates(ctx context.Context, itemID string) ([]ItemUpdate, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT u.id, u.item_id, u.updated_by, u.snapshot, u.created_at, COALESCE(p.email, '')
		FROM item_updates u
		LEFT JOIN profiles p ON p.id = u.updated_by
		WHERE u.item_id = $1
		ORDER BY u.created_at ASC
	`, itemID)
	if err != nil {
		return nil, fmt.Errorf("list item updates: %w", err)
	}
	defer rows.Close()

	updates := make([]ItemUpdate, 0)
	for rows.Next() {
		var u ItemUpdate
		var snapshot []byte
		if err := rows.Scan(&u.ID, &u.ItemID, &u.UpdatedBy, &snapshot, &u.CreatedAt, &u.AuthorEmail); err != nil {
			return nil, fmt.Errorf("scan item update: %w", err)
		}
		if err := json.Unmarshal(snapshot, &u.Snapshot); err != nil {
			return nil, fmt.Errorf("unmarshal snapshot: %w", err)
		}
		updates = append(updates, u)
	}
	return updates, rows.Err()
}

// ---- blockers ----

const blockerColumns = `id, item_id, title, COALESCE(detail, ''), severity, status, owner_id, eta, created_at, updated_at`

func scanBlocker(row interface{ Scan(...any) error }) (Blocker, error) {
	var b Blocker
	err := row.Scan(&b.ID, &b.ItemID, &b.Title, &b.Detail, &b.Severity, &b.Status, &b.OwnerID, &b.ETA, &b.CreatedAt, &b.UpdatedAt)
	return b, err
}

func (s *PostgresStore) ListBlockers(ctx context.Context, itemID string) ([]Blocker, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+blockerColumns+` FROM blockers
		WHERE item_id=$1
		ORDER BY created_at DESC
	`, itemID)
	if err != nil {
		return nil, fmt.Errorf("list blockers: %w", err)
	}
	defer rows.Close()

	blockers := make([]Blocker, 0)
	for rows.Next() {
		b, err := scanBlocker(rows)
		if err != nil {
			return nil, fmt.Errorf("scan blocker: %w", err)
		}
		blockers = append(blockers, b)
	}
	return blockers, rows.Err()
}

// ListOpenBlockers returns open and in-progress blockers, optionally limited
// to one team via the parent item.
func (s *PostgresStore) ListOpenBlockers(ctx context.Context, teamID string) ([]Blocker, error) {
	query := `
		SELECT b.id, b.item_id, b.title, COALESCE(b.detail, ''), b.severity, b.status,
			b.owner_id, b.eta, b.created_at, b.updated_at
		FROM blockers b
		JOIN items i ON i.id = b.item_id
		WHERE b.status IN ('open', 'in_progress')
	`
	var args []any
	if teamID != "" {
		query += ` AND i.team_id = $1`
		args = append(args, teamID)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list open blockers: %w", err)
	}
	defer rows.Close()

	blockers := make([]Blocker, 0)
	for rows.Next() {
		b, err := scanBlocker(rows)
		if err != nil {
			return nil, fmt.Errorf("scan blocker: %w", err)
		}
		blockers = append(blockers, b)
	}
	return blockers, rows.Err()
}

func (s *PostgresStore) GetBlocker(ctx context.Context, id string) (Blocker, error) {
	return scanBlocker(s.db.QueryRowContext(ctx, `SELECT `+blockerColumns+` FROM blockers WHERE id=$1`, id))
}

func (s *PostgresStore) InsertBlocker(ctx context.Context, b Blocker) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO blockers (id, item_id, title, detail, severity, status, owner_id, eta)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, b.ID, b.ItemID, b.Title, b.Detail, b.Severity, b.Status, b.OwnerID, b.ETA)
	if err != nil {
		return fmt.Errorf("insert blocker: %w", err)
	}
	return nil
}

func (s *PostgresStore) UpdateBlocker(ctx context.Context, b Blocker) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE blockers
		SET title=$2, detail=$3, severity=$4, status=$5, eta=$6, updated_at=NOW()
		WHERE id=$1
	`, b.ID, b.Title, b.Detail, b.Severity, b.Status, b.ETA)
	if err != nil {
		return fmt.Errorf("update blocker: %w", err)
	}
	return requireRow(result)
}

func (s *PostgresStore) DeleteBlocker(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM blockers WHERE id=$1`, id)
	if err != nil {
		return fmt.Errorf("delete blocker: %w", err)
	}
	return requireRow(result)
}

// ---- help requests ----

const helpRequestColumns = `id, item_id, requested_by, type, COALESCE(detail, ''), status, created_at, updated_at`

func scanHelpRequest(row interface{ Scan(...any) error }) (HelpRequest, error) {
	var h HelpRequest
	err := row.Scan(&h.ID, &h.ItemID, &h.RequestedBy, &h.Type, &h.Detail, &h.Status, &h.CreatedAt, &h.UpdatedAt)
	return h, err
}

func (s *PostgresStore) ListHelpRequests(ctx context.Context, itemID string) ([]HelpRequest, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+helpRequestColumns+` FROM help_requests
		WHERE item_id=$1
		ORDER BY created_at DESC
	`, itemID)
	if err != nil {
		return nil, fmt.Errorf("list help requests: %w", err)
	}
	defer rows.Close()

	requests := make([]HelpRequest, 0)
	for rows.Next() {
		h, err := scanHelpRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("scan help request: %w", err)
		}
		requests = append(requests, h)
	}
	return requests, rows.Err()
}

func (s *PostgresStore) ListOpenHelpRequests(ctx context.Context, teamID string) ([]HelpRequest, error) {
	query := `
		SELECT h.id, h.item_id, h.requested_by, h.type, COALESCE(h.detail, ''), h.status,
			h.created_at, h.updated_at
		FROM help_requests h
		JOIN items i ON i.id = h.item_id
		WHERE h.status IN ('open', 'in_progress')
	`
	var args []any
	if teamID != "" {
		query += ` AND i.team_id = $1`
		args = append(args, teamID)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list open help requests: %w", err)
	}
	defer rows.Close()

	requests := make([]HelpRequest, 0)
	for rows.Next() {
		h, err := scanHelpRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("scan help request: %w", err)
		}
		requests = append(requests, h)
	}
	return requests, rows.Err()
}

func (s *PostgresStore) GetHelpRequest(ctx context.Context, id string) (HelpRequest, error) {
	return scanHelpRequest(s.db.QueryRowContext(ctx, `SELECT `+helpRequestColumns+` FROM help_requests WHERE id=$1`, id))
}

func (s *PostgresStore) InsertHelpRequest(ctx context.Context, h HelpRequest) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO help_requests (id, item_id, requested_by, type, detail, status)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, h.ID, h.ItemID, h.RequestedBy, h.Type, h.Detail, h.Status)
	if err != nil {
		return fmt.Errorf("insert help request: %w", err)
	}
	return nil
}

func (s *PostgresStore) UpdateHelpRequest(ctx context.Context, h HelpRequest) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE help_requests
		SET type=$2, detail=$3, status=$4, updated_at=NOW()
		WHERE id=$1
	`, h.ID, h.Type, h.Detail, h.Status)
	if err != nil {
		return fmt.Errorf("update help request: %w", err)
	}
	return requireRow(result)
}

func (s *PostgresStore) DeleteHelpRequest(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM help_requests WHERE id=$1`, id)
	if err != nil {
		return fmt.Errorf("delete help request: %w", err)
	}
	return requireRow(result)
}

// ---- comments ----

func (s *PostgresStore) ListComments(ctx context.Context, itemID string) ([]Comment, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT c.id, c.item_id, c.author_id, c.body, c.created_at, COALESCE(p.email, '')
		FROM comments c
		LEFT JOIN profiles p ON p.id = c.author_id
		WHERE c.item_id = $1
		ORDER BY c.created_at ASC
	`, itemID)
	if err != nil {
		return nil, fmt.Errorf("list comments: %w", err)
	}
	defer rows.Close()

	comments := make([]Comment, 0)
	for rows.Next() {
		var c Comment
		if err := rows.Scan(&c.ID, &c.ItemID, &c.AuthorID, &c.Body, &c.CreatedAt, &c.AuthorEmail); err != nil {
			return nil, fmt.Errorf("scan comment: %w", err)
		}
		comments = append(comments, c)
	}
	return comments, rows.Err()
}

func (s *PostgresStore) GetComment(ctx context.Context, id string) (Comment, error) {
	var c Comment
	err := s.db.QueryRowContext(ctx, `
		SELECT id, item_id, author_id, body, created_at FROM comments WHERE id=$1
	`, id).Scan(&c.ID, &c.ItemID, &c.AuthorID, &c.Body, &c.CreatedAt)
	return c, err
}

func (s *PostgresStore) InsertComment(ctx context.Context, c Comment) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO comments (id, item_id, author_id, body)
		VALUES ($1, $2, $3, $4)
	`, c.ID, c.ItemID, c.AuthorID, c.Body)
	if err != nil {
		return fmt.Errorf("insert comment: %w", err)
	}
	return nil
}

func (s *PostgresStore) DeleteComment(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM comments WHERE id=$1`, id)
	if err != nil {
		return fmt.Errorf("delete comment: %w", err)
	}
	return requireRow(result)
}

// requireRow maps zero-row updates and deletes to sql.ErrNoRows so the
// service layer surfaces them as NOT_FOUND.
func requireRow(result sql.Result) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}
