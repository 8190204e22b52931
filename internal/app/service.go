package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"okrops/api/internal/agg"
	"okrops/api/internal/auth"
	"okrops/api/internal/authpw"
	"okrops/api/internal/config"
	"okrops/api/internal/export"
	"okrops/api/internal/feed"
	"okrops/api/internal/rbac"
	"okrops/api/internal/search"
	"okrops/api/internal/store"
	"okrops/api/internal/util"
)

// Session is an authenticated caller, resolved from a bearer token.
type Session struct {
	Token        string
	RefreshToken string
	UserID       string
	Email        string
	Role         string
	JTI          string
	ExpiresAt    time.Time
}

// itemStatuses is the closed set of item statuses, in board display order.
var itemStatuses = []string{
	"discovery", "design", "execution", "validation",
	"ready_to_deploy", "deploying", "in_production", "paused", "at_risk",
}

var blockerSeverities = []string{"low", "medium", "high", "critical"}

var helpTypes = []string{"decision", "escalation", "budget", "alignment", "resource", "other"}

var allowedItemStatuses = toSet(itemStatuses)
var allowedBlockerSeverities = toSet(blockerSeverities)
var allowedBlockerStatuses = toSet([]string{"open", "in_progress", "resolved", "wont_do"})
var allowedHelpTypes = toSet(helpTypes)
var allowedHelpStatuses = toSet([]string{"open", "in_progress", "done"})

func toSet(values []string) map[string]struct{} {
	set := make(map[string]struct{}, len(values))
	for _, v := range values {
		set[v] = struct{}{}
	}
	return set
}

// staleCutoff is how long an item may go without a status update before the
// dashboard flags it.
const staleCutoff = 14 * 24 * time.Hour

type CreateItemInput struct {
	TeamID      string `json:"teamId"`
	Title       string `json:"title"`
	OwnerID     string `json:"ownerId"`
	ObjectiveID string `json:"objectiveId"`
	Status      string `json:"status"`
}

type UpdateItemInput struct {
	Title       string `json:"title"`
	OwnerID     string `json:"ownerId"`
	ObjectiveID string `json:"objectiveId"`
}

type SubmitUpdateInput struct {
	Status            string `json:"status"`
	StatusReason      string `json:"statusReason"`
	BlockersSummary   string `json:"blockersSummary"`
	HelpNeededSummary string `json:"helpNeededSummary"`
	NextStep          string `json:"nextStep"`
	TargetDate        string `json:"targetDate"`
}

type BlockerInput struct {
	Title    string `json:"title"`
	Detail   string `json:"detail"`
	Severity string `json:"severity"`
	Status   string `json:"status"`
	ETA      string `json:"eta"`
}

type HelpRequestInput struct {
	Type   string `json:"type"`
	Detail string `json:"detail"`
	Status string `json:"status"`
}

type dataStore interface {
	GetProfileByID(ctx context.Context, id string) (store.Profile, error)
	GetProfileByEmail(ctx context.Context, email string) (store.Profile, error)
	ListProfiles(ctx context.Context) ([]store.Profile, error)
	CountProfiles(ctx context.Context) (int, error)
	CreateProfile(ctx context.Context, profile store.Profile) error
	UpdateProfileRole(ctx context.Context, id, role string) error
	UpdateProfilePassword(ctx context.Context, userID, passwordHash string) error
	CreatePasswordReset(ctx context.Context, userID, token string, expiresAt time.Time) error
	GetPasswordReset(ctx context.Context, token string) (string, error)
	MarkPasswordResetUsed(ctx context.Context, token string) error

	SaveRefreshSession(ctx context.Context, tokenHash, userID string, expiresAt time.Time) error
	LookupRefreshSession(ctx context.Context, tokenHash string) (store.Profile, error)
	RevokeRefreshSession(ctx context.Context, tokenHash string) error
	RevokeAccessToken(ctx context.Context, jti string, expiresAt time.Time) error
	IsAccessTokenRevoked(ctx context.Context, jti string) (bool, error)

	ListTeams(ctx context.Context) ([]store.Team, error)
	GetTeam(ctx context.Context, id string) (store.Team, error)
	InsertTeam(ctx context.Context, t store.Team) error
	UpdateTeam(ctx context.Context, id, name, icon string) error
	DeleteTeam(ctx context.Context, id string) error

	ListTeamMembers(ctx context.Context, teamID string) ([]store.TeamMember, error)
	GetTeamMember(ctx context.Context, teamID, userID string) (*store.TeamMember, error)
	GetTeamMemberByID(ctx context.Context, memberID string) (store.TeamMember, error)
	InsertTeamMember(ctx context.Context, m store.TeamMember) error
	UpdateTeamMemberRole(ctx context.Context, memberID, role string) error
	DeleteTeamMember(ctx context.Context, memberID string) error

	ListPeriods(ctx context.Context) ([]store.Period, error)
	InsertPeriod(ctx context.Context, p store.Period) error

	ListObjectives(ctx context.Context, teamID string) ([]store.Objective, error)
	GetObjective(ctx context.Context, id string) (store.Objective, error)
	InsertObjective(ctx context.Context, o store.Objective) error
	UpdateObjective(ctx context.Context, id, title string) error
	DeleteObjective(ctx context.Context, id string) error

	ListItems(ctx context.Context, filter store.ItemFilter) ([]store.Item, error)
	GetItem(ctx context.Context, id string) (store.Item, error)
	InsertItem(ctx context.Context, item store.Item) (store.Item, error)
	UpdateItemMeta(ctx context.Context, id, title string, ownerID, objectiveID *string) error
	ApplyItemSnapshot(ctx context.Context, itemID string, snapshot store.UpdateSnapshot, at time.Time) error
	DeleteItem(ctx context.Context, id string) error

	InsertItemUpdate(ctx context.Context, update store.ItemUpdate) error
	ListItemUpdates(ctx context.Context, itemID string) ([]store.ItemUpdate, error)

	ListBlockers(ctx context.Context, itemID string) ([]store.Blocker, error)
	ListOpenBlockers(ctx context.Context, teamID string) ([]store.Blocker, error)
	GetBlocker(ctx context.Context, id string) (store.Blocker, error)
	InsertBlocker(ctx context.Context, b store.Blocker) error
	UpdateBlocker(ctx context.Context, b store.Blocker) error
	DeleteBlocker(ctx context.Context, id string) error

	ListHelpRequests(ctx context.Context, itemID string) ([]store.HelpRequest, error)
	ListOpenHelpRequests(ctx context.Context, teamID string) ([]store.HelpRequest, error)
	GetHelpRequest(ctx context.Context, id string) (store.HelpRequest, error)
	InsertHelpRequest(ctx context.Context, h store.HelpRequest) error
	UpdateHelpRequest(ctx context.Context, h store.HelpRequest) error
	DeleteHelpRequest(ctx context.Context, id string) error

	ListComments(ctx context.Context, itemID string) ([]store.Comment, error)
	GetComment(ctx context.Context, id string) (store.Comment, error)
	InsertComment(ctx context.Context, c store.Comment) error
	DeleteComment(ctx context.Context, id string) error

	Ping(ctx context.Context) error
}

// refreshSessionStore abstracts where refresh tokens live. Redis when
// configured, Postgres otherwise.
type refreshSessionStore interface {
	SaveRefreshSession(ctx context.Context, tokenHash string, profile store.Profile, expiresAt time.Time) error
	LookupRefreshSession(ctx context.Context, tokenHash string) (store.Profile, error)
	RevokeRefreshSession(ctx context.Context, tokenHash string) error
}

// pgSessionStore adapts the Postgres store to refreshSessionStore.
type pgSessionStore struct {
	store dataStore
}

func (p pgSessionStore) SaveRefreshSession(ctx context.Context, tokenHash string, profile store.Profile, expiresAt time.Time) error {
	return p.store.SaveRefreshSession(ctx, tokenHash, profile.ID, expiresAt)
}

func (p pgSessionStore) LookupRefreshSession(ctx context.Context, tokenHash string) (store.Profile, error) {
	return p.store.LookupRefreshSession(ctx, tokenHash)
}

func (p pgSessionStore) RevokeRefreshSession(ctx context.Context, tokenHash string) error {
	return p.store.RevokeRefreshSession(ctx, tokenHash)
}

type Service struct {
	cfg      config.Config
	store    dataStore
	sessions refreshSessionStore
	authpw   *authpw.Service
	search   *search.Service
	export   *export.Service
}

func New(cfg config.Config, dataStore *store.PostgresStore, searchService *search.Service, exportService *export.Service) *Service {
	return newService(cfg, dataStore, nil, searchService, exportService)
}

// NewWithSessionStore uses a dedicated refresh session backend instead of Postgres.
func NewWithSessionStore(cfg config.Config, dataStore *store.PostgresStore, sessions refreshSessionStore, searchService *search.Service, exportService *export.Service) *Service {
	return newService(cfg, dataStore, sessions, searchService, exportService)
}

func newService(cfg config.Config, ds dataStore, sessions refreshSessionStore, searchService *search.Service, exportService *export.Service) *Service {
	s := &Service{
		cfg:    cfg,
		store:  ds,
		authpw: authpw.NewService(ds),
		search: searchService,
		export: exportService,
	}
	if sessions != nil {
		s.sessions = sessions
	} else {
		s.sessions = pgSessionStore{store: ds}
	}
	return s
}

// Bootstrap seeds the first admin account and a default period on an empty
// database, and warms the search index.
func (s *Service) Bootstrap(ctx context.Context) error {
	count, err := s.store.CountProfiles(ctx)
	if err != nil {
		return err
	}
	if count == 0 && s.cfg.BootstrapAdminEmail != "" && s.cfg.BootstrapAdminPassword != "" {
		profile, err := s.authpw.SignUp(ctx, authpw.SignUpRequest{
			Email:    s.cfg.BootstrapAdminEmail,
			Password: s.cfg.BootstrapAdminPassword,
		})
		if err != nil {
			return fmt.Errorf("seed admin: %w", err)
		}
		if err := s.store.UpdateProfileRole(ctx, profile.ID, "admin"); err != nil {
			return fmt.Errorf("promote seed admin: %w", err)
		}
	}

	periods, err := s.store.ListPeriods(ctx)
	if err != nil {
		return err
	}
	if len(periods) == 0 {
		now := time.Now().UTC()
		quarter := (int(now.Month())-1)/3 + 1
		start := time.Date(now.Year(), time.Month((quarter-1)*3+1), 1, 0, 0, 0, 0, time.UTC)
		end := start.AddDate(0, 3, -1)
		if err := s.store.InsertPeriod(ctx, store.Period{
			ID:        util.NewID("per"),
			Name:      fmt.Sprintf("Q%d %d", quarter, now.Year()),
			StartDate: start,
			EndDate:   end,
		}); err != nil {
			return fmt.Errorf("seed period: %w", err)
		}
	}

	if s.search != nil {
		s.search.ReindexAllFromPG(ctx)
	}
	return nil
}

// ---- sessions ----

func (s *Service) SignUp(ctx context.Context, email, password string) (Session, error) {
	profile, err := s.authpw.SignUp(ctx, authpw.SignUpRequest{Email: email, Password: password})
	if err != nil {
		return Session{}, errValidation(err.Error(), nil)
	}
	return s.issueSession(ctx, profile)
}

func (s *Service) SignIn(ctx context.Context, email, password string) (Session, error) {
	profile, err := s.authpw.SignIn(ctx, email, password)
	if err != nil {
		return Session{}, domainError(401, "UNAUTHORIZED", "Invalid email or password", nil)
	}
	return s.issueSession(ctx, profile)
}

func (s *Service) RequestPasswordReset(ctx context.Context, email string) (string, error) {
	return s.authpw.RequestPasswordReset(ctx, email)
}

func (s *Service) ResetPassword(ctx context.Context, token, newPassword string) error {
	if err := s.authpw.ResetPassword(ctx, token, newPassword); err != nil {
		return errValidation(err.Error(), nil)
	}
	return nil
}

func (s *Service) Refresh(ctx context.Context, refreshToken string) (Session, error) {
	tokenHash := auth.HashToken(refreshToken)
	profile, err := s.sessions.LookupRefreshSession(ctx, tokenHash)
	if err != nil {
		return Session{}, err
	}
	if err := s.sessions.RevokeRefreshSession(ctx, tokenHash); err != nil {
		return Session{}, err
	}
	return s.issueSession(ctx, profile)
}

func (s *Service) issueSession(ctx context.Context, profile store.Profile) (Session, error) {
	now := time.Now()
	expiresAt := now.Add(s.cfg.AccessTTL)
	jti := util.NewID("jti")

	token, err := auth.IssueToken([]byte(s.cfg.JWTSecret), auth.Claims{
		Sub:   profile.ID,
		Email: profile.Email,
		Role:  profile.Role,
		JTI:   jti,
		Exp:   expiresAt.Unix(),
	})
	if err != nil {
		return Session{}, err
	}

	refresh := util.NewID("rft") + util.NewID("")
	refreshExpires := now.Add(s.cfg.RefreshTTL)
	if err := s.sessions.SaveRefreshSession(ctx, auth.HashToken(refresh), profile, refreshExpires); err != nil {
		return Session{}, err
	}

	return Session{
		Token:        token,
		RefreshToken: refresh,
		UserID:       profile.ID,
		Email:        profile.Email,
		Role:         profile.Role,
		JTI:          jti,
		ExpiresAt:    expiresAt,
	}, nil
}

func (s *Service) SessionFromToken(ctx context.Context, token string) (Session, error) {
	claims, err := auth.ParseToken([]byte(s.cfg.JWTSecret), token)
	if err != nil {
		return Session{}, err
	}
	revoked, err := s.store.IsAccessTokenRevoked(ctx, claims.JTI)
	if err != nil {
		return Session{}, err
	}
	if revoked {
		return Session{}, auth.ErrInvalidToken
	}

	profile, err := s.store.GetProfileByID(ctx, claims.Sub)
	if err != nil {
		return Session{}, err
	}

	return Session{
		Token:     token,
		UserID:    profile.ID,
		Email:     profile.Email,
		Role:      profile.Role,
		JTI:       claims.JTI,
		ExpiresAt: time.Unix(claims.Exp, 0),
	}, nil
}

func (s *Service) Logout(ctx context.Context, session Session, refreshToken string) error {
	if session.JTI != "" {
		_ = s.store.RevokeAccessToken(ctx, session.JTI, session.ExpiresAt)
	}
	if refreshToken != "" {
		_ = s.sessions.RevokeRefreshSession(ctx, auth.HashToken(refreshToken))
	}
	return nil
}

func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

// ---- access resolution ----

// globalAccess resolves permissions without any team scope.
func globalAccess(session Session) rbac.Context {
	return rbac.Resolve(session.UserID, rbac.NormalizeProfileRole(session.Role), "", false)
}

// teamAccess resolves permissions for one team, combining the global role
// with the caller's membership row if present.
func (s *Service) teamAccess(ctx context.Context, session Session, teamID string) (rbac.Context, error) {
	role := rbac.NormalizeProfileRole(session.Role)
	member, err := s.store.GetTeamMember(ctx, teamID, session.UserID)
	if err != nil {
		return rbac.Context{}, err
	}
	if member == nil {
		return rbac.Resolve(session.UserID, role, "", false), nil
	}
	return rbac.Resolve(session.UserID, role, rbac.NormalizeMemberRole(member.MemberRole), true), nil
}

// itemAccess resolves permissions for the team that owns an item.
func (s *Service) itemAccess(ctx context.Context, session Session, itemID string) (store.Item, rbac.Context, error) {
	item, err := s.store.GetItem(ctx, itemID)
	if errors.Is(err, sql.ErrNoRows) {
		return store.Item{}, rbac.Context{}, errNotFound("item")
	}
	if err != nil {
		return store.Item{}, rbac.Context{}, err
	}
	ac, err := s.teamAccess(ctx, session, item.TeamID)
	if err != nil {
		return store.Item{}, rbac.Context{}, err
	}
	return item, ac, nil
}

func ownerID(item store.Item) string {
	if item.OwnerID == nil {
		return ""
	}
	return *item.OwnerID
}

// ---- teams ----

func (s *Service) ListTeams(ctx context.Context, session Session) ([]store.Team, error) {
	return s.store.ListTeams(ctx)
}

func (s *Service) GetTeamDetail(ctx context.Context, session Session, teamID string) (store.Team, error) {
	team, err := s.store.GetTeam(ctx, teamID)
	if errors.Is(err, sql.ErrNoRows) {
		return store.Team{}, errNotFound("team")
	}
	return team, err
}

func (s *Service) CreateTeam(ctx context.Context, session Session, name, icon string) (store.Team, error) {
	if !globalAccess(session).CanManageTeams() {
		return store.Team{}, errPermissionDenied()
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return store.Team{}, errValidation("name is required", nil)
	}
	team := store.Team{ID: util.NewID("team"), Name: name, Icon: icon}
	if err := s.store.InsertTeam(ctx, team); err != nil {
		return store.Team{}, err
	}
	return s.store.GetTeam(ctx, team.ID)
}

func (s *Service) UpdateTeam(ctx context.Context, session Session, teamID, name, icon string) (store.Team, error) {
	if !globalAccess(session).CanManageTeams() {
		return store.Team{}, errPermissionDenied()
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return store.Team{}, errValidation("name is required", nil)
	}
	if err := s.store.UpdateTeam(ctx, teamID, name, icon); err != nil {
		return store.Team{}, err
	}
	return s.store.GetTeam(ctx, teamID)
}

func (s *Service) DeleteTeam(ctx context.Context, session Session, teamID string) error {
	if !globalAccess(session).CanManageTeams() {
		return errPermissionDenied()
	}
	return s.store.DeleteTeam(ctx, teamID)
}

// ---- team members ----

func (s *Service) ListTeamMembers(ctx context.Context, session Session, teamID string) ([]store.TeamMember, error) {
	if _, err := s.store.GetTeam(ctx, teamID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errNotFound("team")
		}
		return nil, err
	}
	return s.store.ListTeamMembers(ctx, teamID)
}

func (s *Service) AddTeamMember(ctx context.Context, session Session, teamID, userID, memberRole string) (store.TeamMember, error) {
	if !globalAccess(session).CanManageMembers() {
		return store.TeamMember{}, errPermissionDenied()
	}
	if memberRole == "" {
		memberRole = "member"
	}
	if memberRole != "manager" && memberRole != "member" && memberRole != "viewer" {
		return store.TeamMember{}, errValidation("memberRole must be manager, member, or viewer", nil)
	}
	if _, err := s.store.GetProfileByID(ctx, userID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return store.TeamMember{}, errNotFound("profile")
		}
		return store.TeamMember{}, err
	}
	existing, err := s.store.GetTeamMember(ctx, teamID, userID)
	if err != nil {
		return store.TeamMember{}, err
	}
	if existing != nil {
		return store.TeamMember{}, errValidation("profile is already a member of this team", nil)
	}

	member := store.TeamMember{
		ID:         util.NewID("tmm"),
		TeamID:     teamID,
		UserID:     userID,
		MemberRole: memberRole,
	}
	if err := s.store.InsertTeamMember(ctx, member); err != nil {
		return store.TeamMember{}, err
	}
	return s.store.GetTeamMemberByID(ctx, member.ID)
}

func (s *Service) UpdateTeamMemberRole(ctx context.Context, session Session, memberID, memberRole string) (store.TeamMember, error) {
	if !globalAccess(session).CanManageMembers() {
		return store.TeamMember{}, errPermissionDenied()
	}
	if memberRole != "manager" && memberRole != "member" && memberRole != "viewer" {
		return store.TeamMember{}, errValidation("memberRole must be manager, member, or viewer", nil)
	}
	if err := s.store.UpdateTeamMemberRole(ctx, memberID, memberRole); err != nil {
		return store.TeamMember{}, err
	}
	return s.store.GetTeamMemberByID(ctx, memberID)
}

func (s *Service) RemoveTeamMember(ctx context.Context, session Session, memberID string) error {
	if !globalAccess(session).CanManageMembers() {
		return errPermissionDenied()
	}
	return s.store.DeleteTeamMember(ctx, memberID)
}

// ---- periods and objectives ----

func (s *Service) ListPeriods(ctx context.Context, session Session) ([]store.Period, error) {
	return s.store.ListPeriods(ctx)
}

func (s *Service) CreatePeriod(ctx context.Context, session Session, name string, startDate, endDate time.Time) (store.Period, error) {
	if !globalAccess(session).CanManageTeams() {
		return store.Period{}, errPermissionDenied()
	}
	if strings.TrimSpace(name) == "" {
		return store.Period{}, errValidation("name is required", nil)
	}
	if !endDate.After(startDate) {
		return store.Period{}, errValidation("endDate must be after startDate", nil)
	}
	period := store.Period{ID: util.NewID("per"), Name: name, StartDate: startDate, EndDate: endDate}
	if err := s.store.InsertPeriod(ctx, period); err != nil {
		return store.Period{}, err
	}
	return period, nil
}

func (s *Service) ListObjectives(ctx context.Context, session Session, teamID string) ([]store.Objective, error) {
	return s.store.ListObjectives(ctx, teamID)
}

func (s *Service) CreateObjective(ctx context.Context, session Session, teamID, periodID, title string) (store.Objective, error) {
	ac, err := s.teamAccess(ctx, session, teamID)
	if err != nil {
		return store.Objective{}, err
	}
	if !ac.IsAdmin() && !ac.IsManager() {
		return store.Objective{}, errPermissionDenied()
	}
	title = strings.TrimSpace(title)
	if title == "" {
		return store.Objective{}, errValidation("title is required", nil)
	}
	objective := store.Objective{
		ID:       util.NewID("obj"),
		TeamID:   teamID,
		PeriodID: periodID,
		Title:    title,
	}
	if err := s.store.InsertObjective(ctx, objective); err != nil {
		return store.Objective{}, err
	}
	return s.store.GetObjective(ctx, objective.ID)
}

func (s *Service) UpdateObjective(ctx context.Context, session Session, objectiveID, title string) (store.Objective, error) {
	objective, err := s.store.GetObjective(ctx, objectiveID)
	if errors.Is(err, sql.ErrNoRows) {
		return store.Objective{}, errNotFound("objective")
	}
	if err != nil {
		return store.Objective{}, err
	}
	ac, err := s.teamAccess(ctx, session, objective.TeamID)
	if err != nil {
		return store.Objective{}, err
	}
	if !ac.IsAdmin() && !ac.IsManager() {
		return store.Objective{}, errPermissionDenied()
	}
	title = strings.TrimSpace(title)
	if title == "" {
		return store.Objective{}, errValidation("title is required", nil)
	}
	if err := s.store.UpdateObjective(ctx, objectiveID, title); err != nil {
		return store.Objective{}, err
	}
	return s.store.GetObjective(ctx, objectiveID)
}

func (s *Service) DeleteObjective(ctx context.Context, session Session, objectiveID string) error {
	objective, err := s.store.GetObjective(ctx, objectiveID)
	if errors.Is(err, sql.ErrNoRows) {
		return errNotFound("objective")
	}
	if err != nil {
		return err
	}
	ac, err := s.teamAccess(ctx, session, objective.TeamID)
	if err != nil {
		return err
	}
	if !ac.IsAdmin() && !ac.IsManager() {
		return errPermissionDenied()
	}
	return s.store.DeleteObjective(ctx, objectiveID)
}

// ---- items ----

// ListItems returns items the caller can see. Team-scoped queries are denied
// outright for non-readers; an org-wide query silently narrows to the teams
// the caller belongs to, unless they are an admin.
func (s *Service) ListItems(ctx context.Context, session Session, filter store.ItemFilter) ([]store.Item, error) {
	if filter.TeamID != "" {
		ac, err := s.teamAccess(ctx, session, filter.TeamID)
		if err != nil {
			return nil, err
		}
		if !ac.CanRead() {
			return nil, errPermissionDenied()
		}
		return s.store.ListItems(ctx, filter)
	}

	items, err := s.store.ListItems(ctx, filter)
	if err != nil {
		return nil, err
	}
	if rbac.NormalizeProfileRole(session.Role) == rbac.RoleAdmin {
		return items, nil
	}

	readable := make(map[string]bool)
	visible := make([]store.Item, 0, len(items))
	for _, item := range items {
		ok, seen := readable[item.TeamID]
		if !seen {
			member, err := s.store.GetTeamMember(ctx, item.TeamID, session.UserID)
			if err != nil {
				return nil, err
			}
			ok = member != nil
			readable[item.TeamID] = ok
		}
		if ok {
			visible = append(visible, item)
		}
	}
	return visible, nil
}

func (s *Service) GetItem(ctx context.Context, session Session, itemID string) (store.Item, error) {
	item, ac, err := s.itemAccess(ctx, session, itemID)
	if err != nil {
		return store.Item{}, err
	}
	if !ac.CanRead() {
		return store.Item{}, errPermissionDenied()
	}
	return item, nil
}

func (s *Service) CreateItem(ctx context.Context, session Session, input CreateItemInput) (store.Item, error) {
	if strings.TrimSpace(input.TeamID) == "" {
		return store.Item{}, errValidation("teamId is required", nil)
	}
	ac, err := s.teamAccess(ctx, session, input.TeamID)
	if err != nil {
		return store.Item{}, err
	}
	if !ac.CanCreateItem() {
		return store.Item{}, errPermissionDenied()
	}

	title := strings.TrimSpace(input.Title)
	if title == "" {
		return store.Item{}, errValidation("title is required", nil)
	}
	status := input.Status
	if status == "" {
		status = "discovery"
	}
	if _, ok := allowedItemStatuses[status]; !ok {
		return store.Item{}, errValidation("invalid status", map[string]any{"allowed": itemStatuses})
	}

	item := store.Item{
		ID:     util.NewID("itm"),
		TeamID: input.TeamID,
		Title:  title,
		Status: status,
	}
	if input.OwnerID != "" {
		item.OwnerID = &input.OwnerID
	}
	if input.ObjectiveID != "" {
		item.ObjectiveID = &input.ObjectiveID
	}

	created, err := s.store.InsertItem(ctx, item)
	if err != nil {
		return store.Item{}, err
	}
	s.indexItem(created)
	return created, nil
}

func (s *Service) UpdateItemMeta(ctx context.Context, session Session, itemID string, input UpdateItemInput) (store.Item, error) {
	item, ac, err := s.itemAccess(ctx, session, itemID)
	if err != nil {
		return store.Item{}, err
	}
	if !ac.CanSubmitUpdate(ownerID(item)) {
		return store.Item{}, errPermissionDenied()
	}

	title := strings.TrimSpace(input.Title)
	if title == "" {
		title = item.Title
	}
	owner := item.OwnerID
	if input.OwnerID != "" {
		owner = &input.OwnerID
	}
	objective := item.ObjectiveID
	if input.ObjectiveID != "" {
		objective = &input.ObjectiveID
	}

	if err := s.store.UpdateItemMeta(ctx, itemID, title, owner, objective); err != nil {
		return store.Item{}, err
	}
	updated, err := s.store.GetItem(ctx, itemID)
	if err != nil {
		return store.Item{}, err
	}
	s.indexItem(updated)
	return updated, nil
}

func (s *Service) DeleteItem(ctx context.Context, session Session, itemID string) error {
	_, ac, err := s.itemAccess(ctx, session, itemID)
	if err != nil {
		return err
	}
	if !ac.CanDeleteItem() {
		return errPermissionDenied()
	}
	if err := s.store.DeleteItem(ctx, itemID); err != nil {
		return err
	}
	if s.search != nil {
		s.search.DeleteItem(itemID)
	}
	return nil
}

// SubmitItemUpdate appends an immutable update record, then overwrites the
// item's current-state fields to match it. The history insert comes first:
// if the second write fails the item stays on its previous state while the
// log already shows the attempt.
func (s *Service) SubmitItemUpdate(ctx context.Context, session Session, itemID string, input SubmitUpdateInput) (store.Item, store.ItemUpdate, error) {
	item, ac, err := s.itemAccess(ctx, session, itemID)
	if err != nil {
		return store.Item{}, store.ItemUpdate{}, err
	}
	if !ac.CanSubmitUpdate(ownerID(item)) {
		return store.Item{}, store.ItemUpdate{}, errPermissionDenied()
	}

	status := input.Status
	if status == "" {
		status = item.Status
	}
	if _, ok := allowedItemStatuses[status]; !ok {
		return store.Item{}, store.ItemUpdate{}, errValidation("invalid status", map[string]any{"allowed": itemStatuses})
	}
	if input.TargetDate != "" {
		if _, err := time.Parse("2006-01-02", input.TargetDate); err != nil {
			return store.Item{}, store.ItemUpdate{}, errValidation("targetDate must be YYYY-MM-DD", nil)
		}
	}

	snapshot := store.UpdateSnapshot{
		Status:            status,
		StatusReason:      input.StatusReason,
		BlockersSummary:   input.BlockersSummary,
		HelpNeededSummary: input.HelpNeededSummary,
		NextStep:          input.NextStep,
		TargetDate:        input.TargetDate,
	}

	update := store.ItemUpdate{
		ID:        util.NewID("upd"),
		ItemID:    itemID,
		UpdatedBy: session.UserID,
		Snapshot:  snapshot,
	}
	if err := s.store.InsertItemUpdate(ctx, update); err != nil {
		return store.Item{}, store.ItemUpdate{}, err
	}
	if err := s.store.ApplyItemSnapshot(ctx, itemID, snapshot, time.Now().UTC()); err != nil {
		return store.Item{}, store.ItemUpdate{}, err
	}

	updated, err := s.store.GetItem(ctx, itemID)
	if err != nil {
		return store.Item{}, store.ItemUpdate{}, err
	}
	s.indexItem(updated)
	return updated, update, nil
}

func (s *Service) ListItemUpdates(ctx context.Context, session Session, itemID string) ([]store.ItemUpdate, error) {
	if _, err := s.GetItem(ctx, session, itemID); err != nil {
		return nil, err
	}
	return s.store.ListItemUpdates(ctx, itemID)
}

func (s *Service) indexItem(item store.Item) {
	if s.search == nil {
		return
	}
	s.search.IndexItem(search.ItemRecord{
		ID:       item.ID,
		Title:    item.Title,
		NextStep: item.NextStep,
		TeamID:   item.TeamID,
		Status:   item.Status,
	})
}

// ---- blockers ----

func (s *Service) ListBlockers(ctx context.Context, session Session, itemID string) ([]store.Blocker, error) {
	if _, err := s.GetItem(ctx, session, itemID); err != nil {
		return nil, err
	}
	return s.store.ListBlockers(ctx, itemID)
}

func (s *Service) CreateBlocker(ctx context.Context, session Session, itemID string, input BlockerInput) (store.Blocker, error) {
	_, ac, err := s.itemAccess(ctx, session, itemID)
	if err != nil {
		return store.Blocker{}, err
	}
	if !ac.CanManageBlockers() {
		return store.Blocker{}, errPermissionDenied()
	}

	title := strings.TrimSpace(input.Title)
	if title == "" {
		return store.Blocker{}, errValidation("title is required", nil)
	}
	severity := input.Severity
	if severity == "" {
		severity = "medium"
	}
	if _, ok := allowedBlockerSeverities[severity]; !ok {
		return store.Blocker{}, errValidation("invalid severity", map[string]any{"allowed": blockerSeverities})
	}
	status := input.Status
	if status == "" {
		status = "open"
	}
	if _, ok := allowedBlockerStatuses[status]; !ok {
		return store.Blocker{}, errValidation("invalid blocker status", nil)
	}
	eta, err := parseOptionalDate(input.ETA)
	if err != nil {
		return store.Blocker{}, errValidation("eta must be YYYY-MM-DD", nil)
	}

	blocker := store.Blocker{
		ID:       util.NewID("blk"),
		ItemID:   itemID,
		Title:    title,
		Detail:   input.Detail,
		Severity: severity,
		Status:   status,
		ETA:      eta,
	}
	actor := session.UserID
	blocker.OwnerID = &actor
	if err := s.store.InsertBlocker(ctx, blocker); err != nil {
		return store.Blocker{}, err
	}
	return s.store.GetBlocker(ctx, blocker.ID)
}

func (s *Service) UpdateBlocker(ctx context.Context, session Session, blockerID string, input BlockerInput) (store.Blocker, error) {
	blocker, err := s.store.GetBlocker(ctx, blockerID)
	if errors.Is(err, sql.ErrNoRows) {
		return store.Blocker{}, errNotFound("blocker")
	}
	if err != nil {
		return store.Blocker{}, err
	}
	_, ac, err := s.itemAccess(ctx, session, blocker.ItemID)
	if err != nil {
		return store.Blocker{}, err
	}
	if !ac.CanManageBlockers() {
		return store.Blocker{}, errPermissionDenied()
	}

	if input.Title != "" {
		blocker.Title = strings.TrimSpace(input.Title)
	}
	if input.Detail != "" {
		blocker.Detail = input.Detail
	}
	if input.Severity != "" {
		if _, ok := allowedBlockerSeverities[input.Severity]; !ok {
			return store.Blocker{}, errValidation("invalid severity", map[string]any{"allowed": blockerSeverities})
		}
		blocker.Severity = input.Severity
	}
	if input.Status != "" {
		if _, ok := allowedBlockerStatuses[input.Status]; !ok {
			return store.Blocker{}, errValidation("invalid blocker status", nil)
		}
		blocker.Status = input.Status
	}
	if input.ETA != "" {
		eta, err := parseOptionalDate(input.ETA)
		if err != nil {
			return store.Blocker{}, errValidation("eta must be YYYY-MM-DD", nil)
		}
		blocker.ETA = eta
	}

	if err := s.store.UpdateBlocker(ctx, blocker); err != nil {
		return store.Blocker{}, err
	}
	return s.store.GetBlocker(ctx, blockerID)
}

func (s *Service) DeleteBlocker(ctx context.Context, session Session, blockerID string) error {
	blocker, err := s.store.GetBlocker(ctx, blockerID)
	if errors.Is(err, sql.ErrNoRows) {
		return errNotFound("blocker")
	}
	if err != nil {
		return err
	}
	_, ac, err := s.itemAccess(ctx, session, blocker.ItemID)
	if err != nil {
		return err
	}
	if !ac.CanManageBlockers() {
		return errPermissionDenied()
	}
	return s.store.DeleteBlocker(ctx, blockerID)
}

// ---- help requests ----

func (s *Service) ListHelpRequests(ctx context.Context, session Session, itemID string) ([]store.HelpRequest, error) {
	if _, err := s.GetItem(ctx, session, itemID); err != nil {
		return nil, err
	}
	return s.store.ListHelpRequests(ctx, itemID)
}

func (s *Service) CreateHelpRequest(ctx context.Context, session Session, itemID string, input HelpRequestInput) (store.HelpRequest, error) {
	_, ac, err := s.itemAccess(ctx, session, itemID)
	if err != nil {
		return store.HelpRequest{}, err
	}
	if !ac.CanManageBlockers() {
		return store.HelpRequest{}, errPermissionDenied()
	}

	reqType := input.Type
	if reqType == "" {
		reqType = "other"
	}
	if _, ok := allowedHelpTypes[reqType]; !ok {
		return store.HelpRequest{}, errValidation("invalid help request type", nil)
	}
	if strings.TrimSpace(input.Detail) == "" {
		return store.HelpRequest{}, errValidation("detail is required", nil)
	}
	status := input.Status
	if status == "" {
		status = "open"
	}
	if _, ok := allowedHelpStatuses[status]; !ok {
		return store.HelpRequest{}, errValidation("invalid help request status", nil)
	}

	request := store.HelpRequest{
		ID:          util.NewID("hlp"),
		ItemID:      itemID,
		RequestedBy: session.UserID,
		Type:        reqType,
		Detail:      input.Detail,
		Status:      status,
	}
	if err := s.store.InsertHelpRequest(ctx, request); err != nil {
		return store.HelpRequest{}, err
	}
	return s.store.GetHelpRequest(ctx, request.ID)
}

func (s *Service) UpdateHelpRequest(ctx context.Context, session Session, requestID string, input HelpRequestInput) (store.HelpRequest, error) {
	request, err := s.store.GetHelpRequest(ctx, requestID)
	if errors.Is(err, sql.ErrNoRows) {
		return store.HelpRequest{}, errNotFound("help request")
	}
	if err != nil {
		return store.HelpRequest{}, err
	}
	_, ac, err := s.itemAccess(ctx, session, request.ItemID)
	if err != nil {
		return store.HelpRequest{}, err
	}
	if !ac.CanManageBlockers() {
		return store.HelpRequest{}, errPermissionDenied()
	}

	if input.Type != "" {
		if _, ok := allowedHelpTypes[input.Type]; !ok {
			return store.HelpRequest{}, errValidation("invalid help request type", nil)
		}
		request.Type = input.Type
	}
	if input.Detail != "" {
		request.Detail = input.Detail
	}
	if input.Status != "" {
		if _, ok := allowedHelpStatuses[input.Status]; !ok {
			return store.HelpRequest{}, errValidation("invalid help request status", nil)
		}
		request.Status = input.Status
	}

	if err := s.store.UpdateHelpRequest(ctx, request); err != nil {
		return store.HelpRequest{}, err
	}
	return s.store.GetHelpRequest(ctx, requestID)
}

func (s *Service) DeleteHelpRequest(ctx context.Context, session Session, requestID string) error {
	request, err := s.store.GetHelpRequest(ctx, requestID)
	if errors.Is(err, sql.ErrNoRows) {
		return errNotFound("help request")
	}
	if err != nil {
		return err
	}
	_, ac, err := s.itemAccess(ctx, session, request.ItemID)
	if err != nil {
		return err
	}
	if !ac.CanManageBlockers() {
		return errPermissionDenied()
	}
	return s.store.DeleteHelpRequest(ctx, requestID)
}

// ---- comments ----

func (s *Service) ListComments(ctx context.Context, session Session, itemID string) ([]store.Comment, error) {
	if _, err := s.GetItem(ctx, session, itemID); err != nil {
		return nil, err
	}
	return s.store.ListComments(ctx, itemID)
}

func (s *Service) AddComment(ctx context.Context, session Session, itemID, body string) (store.Comment, error) {
	item, ac, err := s.itemAccess(ctx, session, itemID)
	if err != nil {
		return store.Comment{}, err
	}
	if !ac.CanComment() {
		return store.Comment{}, errPermissionDenied()
	}
	body = strings.TrimSpace(body)
	if body == "" {
		return store.Comment{}, errValidation("body is required", nil)
	}

	comment := store.Comment{
		ID:       util.NewID("cmt"),
		ItemID:   itemID,
		AuthorID: session.UserID,
		Body:     body,
	}
	if err := s.store.InsertComment(ctx, comment); err != nil {
		return store.Comment{}, err
	}
	if s.search != nil {
		s.search.IndexComment(search.CommentRecord{
			ID:     comment.ID,
			Body:   comment.Body,
			ItemID: itemID,
			TeamID: item.TeamID,
		})
	}
	return s.store.GetComment(ctx, comment.ID)
}

func (s *Service) DeleteComment(ctx context.Context, session Session, commentID string) error {
	comment, err := s.store.GetComment(ctx, commentID)
	if errors.Is(err, sql.ErrNoRows) {
		return errNotFound("comment")
	}
	if err != nil {
		return err
	}
	item, ac, err := s.itemAccess(ctx, session, comment.ItemID)
	if err != nil {
		return err
	}
	if !ac.CanDeleteComment(comment.AuthorID, ownerID(item)) {
		return errPermissionDenied()
	}
	if err := s.store.DeleteComment(ctx, commentID); err != nil {
		return err
	}
	if s.search != nil {
		s.search.DeleteComment(commentID)
	}
	return nil
}

// ---- activity feed ----

// ActivityFeed merges an item's comments and status updates into one
// chronological stream. The response carries an explicit empty flag so
// clients can distinguish "no activity" from a failed load.
func (s *Service) ActivityFeed(ctx context.Context, session Session, itemID string) (map[string]any, error) {
	if _, err := s.GetItem(ctx, session, itemID); err != nil {
		return nil, err
	}

	comments, err := s.store.ListComments(ctx, itemID)
	if err != nil {
		return nil, err
	}
	updates, err := s.store.ListItemUpdates(ctx, itemID)
	if err != nil {
		return nil, err
	}

	feedComments := make([]feed.Comment, 0, len(comments))
	for _, c := range comments {
		feedComments = append(feedComments, feed.Comment{
			Timestamp: c.CreatedAt,
			Actor:     actorLabel(c.AuthorEmail, c.AuthorID),
			Body:      c.Body,
		})
	}
	feedUpdates := make([]feed.Update, 0, len(updates))
	for _, u := range updates {
		feedUpdates = append(feedUpdates, feed.Update{
			Timestamp:         u.CreatedAt,
			Actor:             actorLabel(u.AuthorEmail, u.UpdatedBy),
			Status:            u.Snapshot.Status,
			StatusReason:      u.Snapshot.StatusReason,
			BlockersSummary:   u.Snapshot.BlockersSummary,
			HelpNeededSummary: u.Snapshot.HelpNeededSummary,
			NextStep:          u.Snapshot.NextStep,
			TargetDate:        u.Snapshot.TargetDate,
		})
	}

	entries := feed.Merge(feedComments, feedUpdates)
	payload := make([]map[string]any, 0, len(entries))
	for _, entry := range entries {
		row := map[string]any{
			"kind":      string(entry.Kind),
			"timestamp": entry.Timestamp,
			"actor":     entry.Actor,
		}
		if entry.Body != "" {
			row["body"] = entry.Body
		}
		if len(entry.Fields) > 0 {
			fields := make([]map[string]string, 0, len(entry.Fields))
			for _, f := range entry.Fields {
				fields = append(fields, map[string]string{"name": f.Name, "value": f.Value})
			}
			row["fields"] = fields
		}
		payload = append(payload, row)
	}

	return map[string]any{
		"itemId":  itemID,
		"entries": payload,
		"empty":   len(entries) == 0,
	}, nil
}

func actorLabel(email, id string) string {
	if email != "" {
		return email
	}
	return id
}

// ---- summary and dashboard ----

// HomeSummary is the landing-page rollup: per-team item, open blocker, and
// open help request counts computed from flat lists.
func (s *Service) HomeSummary(ctx context.Context, session Session) (map[string]any, error) {
	teams, err := s.store.ListTeams(ctx)
	if err != nil {
		return nil, err
	}
	items, err := s.store.ListItems(ctx, store.ItemFilter{})
	if err != nil {
		return nil, err
	}
	openBlockers, err := s.store.ListOpenBlockers(ctx, "")
	if err != nil {
		return nil, err
	}
	openHelp, err := s.store.ListOpenHelpRequests(ctx, "")
	if err != nil {
		return nil, err
	}

	itemTeam := make(map[string]string, len(items))
	for _, item := range items {
		itemTeam[item.ID] = item.TeamID
	}

	itemsByTeam := agg.CountBy(items, func(i store.Item) string { return i.TeamID })
	blockersByTeam := agg.CountBy(openBlockers, func(b store.Blocker) string { return itemTeam[b.ItemID] })
	helpByTeam := agg.CountBy(openHelp, func(h store.HelpRequest) string { return itemTeam[h.ItemID] })

	teamRows := make([]map[string]any, 0, len(teams))
	for _, team := range teams {
		teamRows = append(teamRows, map[string]any{
			"id":               team.ID,
			"name":             team.Name,
			"icon":             team.Icon,
			"items":            itemsByTeam[team.ID],
			"openBlockers":     blockersByTeam[team.ID],
			"openHelpRequests": helpByTeam[team.ID],
		})
	}

	now := time.Now().UTC()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	dueSoon := agg.BucketByDate(items,
		func(i store.Item) *time.Time { return i.TargetDate },
		[]time.Time{today, today.AddDate(0, 0, 30)})
	dueSoonRows := make([]map[string]any, 0)
	if len(dueSoon) == 1 {
		for _, item := range dueSoon[0] {
			dueSoonRows = append(dueSoonRows, dashboardItemRow(item))
		}
	}

	stale := agg.StaleSince(items, func(i store.Item) *time.Time { return i.LastUpdateAt }, now, staleCutoff)
	staleRows := make([]map[string]any, 0, len(stale))
	for _, item := range stale {
		staleRows = append(staleRows, dashboardItemRow(item))
	}

	return map[string]any{
		"teams":            teamRows,
		"items":            len(items),
		"openBlockers":     len(openBlockers),
		"openHelpRequests": len(openHelp),
		"dueSoon":          dueSoonRows,
		"staleItems":       staleRows,
	}, nil
}

// DirectorDashboard aggregates the org (or one team) into status counts,
// blocker severity counts, target-date buckets, and a stale-item list.
func (s *Service) DirectorDashboard(ctx context.Context, session Session, teamID string) (map[string]any, error) {
	if teamID == "" {
		if rbac.NormalizeProfileRole(session.Role) != rbac.RoleAdmin {
			return nil, errPermissionDenied()
		}
	} else {
		ac, err := s.teamAccess(ctx, session, teamID)
		if err != nil {
			return nil, err
		}
		if !ac.IsAdmin() && !ac.IsManager() && !ac.CanRead() {
			return nil, errPermissionDenied()
		}
	}

	items, err := s.store.ListItems(ctx, store.ItemFilter{TeamID: teamID})
	if err != nil {
		return nil, err
	}
	openBlockers, err := s.store.ListOpenBlockers(ctx, teamID)
	if err != nil {
		return nil, err
	}
	openHelp, err := s.store.ListOpenHelpRequests(ctx, teamID)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	statusCounts := agg.CountByFixed(items, itemStatuses, func(i store.Item) string { return i.Status })
	severityCounts := agg.CountByFixed(openBlockers, blockerSeverities, func(b store.Blocker) string { return b.Severity })
	helpTypeCounts := agg.CountByFixed(openHelp, helpTypes, func(h store.HelpRequest) string { return h.Type })

	itemTeam := make(map[string]string, len(items))
	attention := make([]store.Item, 0)
	for _, item := range items {
		itemTeam[item.ID] = item.TeamName
		if item.Status == "paused" || item.Status == "at_risk" {
			attention = append(attention, item)
		}
	}
	blockersByTeam := agg.CountBy(openBlockers, func(b store.Blocker) string { return itemTeam[b.ItemID] })
	helpByTeam := agg.CountBy(openHelp, func(h store.HelpRequest) string { return itemTeam[h.ItemID] })

	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	bounds := []time.Time{today, today.AddDate(0, 0, 30), today.AddDate(0, 0, 60), today.AddDate(0, 0, 90)}
	buckets := agg.BucketByDate(items, func(i store.Item) *time.Time { return i.TargetDate }, bounds)

	stale := agg.StaleSince(items, func(i store.Item) *time.Time { return i.LastUpdateAt }, now, staleCutoff)

	bucketLabels := []string{"Next 30 days", "31-60 days", "61-90 days"}
	bucketRows := make([]map[string]any, 0, len(buckets))
	for i, bucket := range buckets {
		rows := make([]map[string]any, 0, len(bucket))
		for _, item := range bucket {
			rows = append(rows, dashboardItemRow(item))
		}
		bucketRows = append(bucketRows, map[string]any{
			"label": bucketLabels[i],
			"items": rows,
		})
	}

	staleRows := make([]map[string]any, 0, len(stale))
	for _, item := range stale {
		staleRows = append(staleRows, dashboardItemRow(item))
	}

	statusRows := make([]map[string]any, 0, len(itemStatuses))
	for _, status := range itemStatuses {
		statusRows = append(statusRows, map[string]any{"status": status, "count": statusCounts[status]})
	}
	severityRows := make([]map[string]any, 0, len(blockerSeverities))
	for _, severity := range blockerSeverities {
		severityRows = append(severityRows, map[string]any{"severity": severity, "count": severityCounts[severity]})
	}
	helpTypeRows := make([]map[string]any, 0, len(helpTypes))
	for _, helpType := range helpTypes {
		helpTypeRows = append(helpTypeRows, map[string]any{"type": helpType, "count": helpTypeCounts[helpType]})
	}
	attentionRows := make([]map[string]any, 0, len(attention))
	for _, item := range attention {
		attentionRows = append(attentionRows, dashboardItemRow(item))
	}

	return map[string]any{
		"teamId":           teamID,
		"generatedAt":      now,
		"statusCounts":     statusRows,
		"blockerCounts":    severityRows,
		"blockersByTeam":   blockersByTeam,
		"helpCounts":       helpTypeRows,
		"helpByTeam":       helpByTeam,
		"openHelpRequests": len(openHelp),
		"attentionItems":   attentionRows,
		"dueBuckets":       bucketRows,
		"staleItems":       staleRows,
	}, nil
}

func dashboardItemRow(item store.Item) map[string]any {
	row := map[string]any{
		"id":     item.ID,
		"title":  item.Title,
		"status": item.Status,
		"team":   item.TeamName,
		"owner":  item.OwnerEmail,
	}
	if item.TargetDate != nil {
		row["targetDate"] = item.TargetDate.Format("2006-01-02")
	}
	if item.LastUpdateAt != nil {
		row["lastUpdateAt"] = item.LastUpdateAt
	}
	return row
}

// ---- search ----

func (s *Service) Search(ctx context.Context, session Session, q search.Query) (search.Response, error) {
	if s.search == nil {
		return search.Response{Results: []search.Result{}, Query: q.Text}, nil
	}
	return s.search.Search(q), nil
}

// ---- exports ----

func (s *Service) ExportBoardCSV(ctx context.Context, session Session, teamID string) (*export.Result, error) {
	if teamID == "" {
		if rbac.NormalizeProfileRole(session.Role) != rbac.RoleAdmin {
			return nil, errPermissionDenied()
		}
	} else {
		ac, err := s.teamAccess(ctx, session, teamID)
		if err != nil {
			return nil, err
		}
		if !ac.CanRead() {
			return nil, errPermissionDenied()
		}
	}

	items, err := s.store.ListItems(ctx, store.ItemFilter{TeamID: teamID})
	if err != nil {
		return nil, err
	}
	openBlockers, err := s.store.ListOpenBlockers(ctx, teamID)
	if err != nil {
		return nil, err
	}
	openHelp, err := s.store.ListOpenHelpRequests(ctx, teamID)
	if err != nil {
		return nil, err
	}

	blockerCounts := agg.CountBy(openBlockers, func(b store.Blocker) string { return b.ItemID })
	helpCounts := agg.CountBy(openHelp, func(h store.HelpRequest) string { return h.ItemID })

	rows := make([]export.BoardRow, 0, len(items))
	for _, item := range items {
		rows = append(rows, export.BoardRow{
			Title:        item.Title,
			Status:       item.Status,
			Owner:        item.OwnerEmail,
			OpenBlockers: blockerCounts[item.ID],
			OpenHelp:     helpCounts[item.ID],
			NextStep:     item.NextStep,
			TargetDate:   item.TargetDate,
			LastUpdate:   item.LastUpdateAt,
		})
	}
	return s.export.BoardCSV(rows, time.Now().UTC())
}

func (s *Service) ExportDashboardPDF(ctx context.Context, session Session, teamID string) (*export.Result, error) {
	dashboard, err := s.DirectorDashboard(ctx, session, teamID)
	if err != nil {
		return nil, err
	}

	teamName := ""
	if teamID != "" {
		team, err := s.store.GetTeam(ctx, teamID)
		if err == nil {
			teamName = team.Name
		}
	}

	data := export.DashboardData{
		TeamName:    teamName,
		GeneratedAt: dashboard["generatedAt"].(time.Time),
	}
	for _, row := range dashboard["statusCounts"].([]map[string]any) {
		data.StatusCounts = append(data.StatusCounts, export.LabelCount{
			Label: row["status"].(string),
			Count: row["count"].(int),
		})
	}
	for _, row := range dashboard["blockerCounts"].([]map[string]any) {
		data.BlockerCounts = append(data.BlockerCounts, export.LabelCount{
			Label: row["severity"].(string),
			Count: row["count"].(int),
		})
	}
	for _, bucket := range dashboard["dueBuckets"].([]map[string]any) {
		out := export.DueBucket{Label: bucket["label"].(string)}
		for _, item := range bucket["items"].([]map[string]any) {
			out.Items = append(out.Items, item["title"].(string))
		}
		data.DueBuckets = append(data.DueBuckets, out)
	}
	for _, item := range dashboard["staleItems"].([]map[string]any) {
		stale := export.StaleItem{
			Title:      item["title"].(string),
			Owner:      item["owner"].(string),
			LastUpdate: "never",
		}
		if at, ok := item["lastUpdateAt"].(*time.Time); ok && at != nil {
			stale.LastUpdate = at.Format("2006-01-02")
		}
		data.StaleItems = append(data.StaleItems, stale)
	}

	return s.export.DashboardPDF(data)
}

// ---- profiles ----

func (s *Service) ListProfiles(ctx context.Context, session Session) ([]store.Profile, error) {
	return s.store.ListProfiles(ctx)
}

func (s *Service) UpdateProfileRole(ctx context.Context, session Session, profileID, role string) (store.Profile, error) {
	if !globalAccess(session).CanManageMembers() {
		return store.Profile{}, errPermissionDenied()
	}
	if role != "admin" && role != "manager" && role != "member" && role != "viewer" {
		return store.Profile{}, errValidation("role must be admin, manager, member, or viewer", nil)
	}
	if err := s.store.UpdateProfileRole(ctx, profileID, role); err != nil {
		return store.Profile{}, err
	}
	return s.store.GetProfileByID(ctx, profileID)
}

func parseOptionalDate(value string) (*time.Time, error) {
	if value == "" {
		return nil, nil
	}
	parsed, err := time.Parse("2006-01-02", value)
	if err != nil {
		return nil, err
	}
	return &parsed, nil
}
