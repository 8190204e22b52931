// Package rbac resolves the effective capabilities of an actor for one team.
//
// Two role axes exist and must not be conflated: ProfileRole is global
// (profiles.role), MemberRole is scoped to a single team (team_members.member_role).
// A global admin overrides every team-scoped restriction; everyone else is
// bound by their membership row, and no membership row means read-only.
package rbac

type ProfileRole string
type MemberRole string

const (
	RoleAdmin   ProfileRole = "admin"
	RoleManager ProfileRole = "manager"
	RoleMember  ProfileRole = "member"
	RoleViewer  ProfileRole = "viewer"
)

const (
	MemberManager MemberRole = "manager"
	MemberMember  MemberRole = "member"
	MemberViewer  MemberRole = "viewer"
)

func NormalizeProfileRole(role string) ProfileRole {
	switch ProfileRole(role) {
	case RoleAdmin, RoleManager, RoleMember, RoleViewer:
		return ProfileRole(role)
	default:
		return RoleViewer
	}
}

func NormalizeMemberRole(role string) MemberRole {
	switch MemberRole(role) {
	case MemberManager, MemberMember, MemberViewer:
		return MemberRole(role)
	default:
		return MemberViewer
	}
}

// Context is the resolved capability context for one actor on one team.
// The zero value denies everything: callers that have not loaded role data
// yet get fail-closed behavior for free.
type Context struct {
	actorID    string
	role       ProfileRole
	membership MemberRole
	hasProfile bool
	hasMember  bool
}

// Resolve builds a Context from the actor's global role and their membership
// row for the team in question. Pass hasMembership=false when the actor has
// no team_members row (or it has not been loaded); the context then only
// grants what the global role grants.
func Resolve(actorID string, role ProfileRole, memberRole MemberRole, hasMembership bool) Context {
	return Context{
		actorID:    actorID,
		role:       role,
		membership: memberRole,
		hasProfile: actorID != "" && role != "",
		hasMember:  hasMembership,
	}
}

func (c Context) ActorID() string { return c.actorID }

func (c Context) IsAdmin() bool {
	return c.hasProfile && c.role == RoleAdmin
}

func (c Context) IsManager() bool {
	return c.hasMember && c.membership == MemberManager
}

// IsMember is true for both 'member' and 'manager' rows: manager is a
// strict superset of member.
func (c Context) IsMember() bool {
	return c.hasMember && (c.membership == MemberMember || c.membership == MemberManager)
}

func (c Context) IsOwnerOf(ownerID string) bool {
	return c.hasProfile && ownerID != "" && ownerID == c.actorID
}

// CanManageTeams covers team create/update/delete.
func (c Context) CanManageTeams() bool { return c.IsAdmin() }

// CanManageMembers covers team_member add/remove/role-change.
func (c Context) CanManageMembers() bool { return c.IsAdmin() }

func (c Context) CanCreateItem() bool {
	return c.IsAdmin() || c.IsManager() || c.IsMember()
}

// CanSubmitUpdate decides whether the actor may submit a status update for
// an item owned by ownerID. Ownership alone is never sufficient: an owner
// whose membership row says 'viewer' stays read-only.
func (c Context) CanSubmitUpdate(ownerID string) bool {
	if c.IsAdmin() || c.IsManager() {
		return true
	}
	return c.IsMember() && c.IsOwnerOf(ownerID)
}

// CanDeleteItem is the elevated delete right surfaced to list views.
func (c Context) CanDeleteItem() bool { return c.IsAdmin() }

// CanManageBlockers covers blocker and help-request create/update/delete;
// ownership of the parent item is not required.
func (c Context) CanManageBlockers() bool {
	return c.IsAdmin() || c.IsManager() || c.IsMember()
}

func (c Context) CanComment() bool {
	return c.IsAdmin() || c.IsMember()
}

// CanDeleteComment grants delete to the comment's author, and to anyone who
// can edit the parent item (edit rights are a superset for moderation).
// A plain member who is neither gets nothing.
func (c Context) CanDeleteComment(authorID, itemOwnerID string) bool {
	if c.hasProfile && authorID != "" && authorID == c.actorID && c.IsMember() {
		return true
	}
	return c.CanSubmitUpdate(itemOwnerID)
}

func (c Context) CanRead() bool {
	return c.IsAdmin() || c.hasMember
}
