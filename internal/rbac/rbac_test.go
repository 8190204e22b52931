package rbac

import "testing"

func TestIsMemberMatchesMemberAndManagerRows(t *testing.T) {
	cases := []struct {
		name   string
		role   MemberRole
		has    bool
		member bool
	}{
		{name: "manager row", role: MemberManager, has: true, member: true},
		{name: "member row", role: MemberMember, has: true, member: true},
		{name: "viewer row", role: MemberViewer, has: true, member: false},
		{name: "no row", role: "", has: false, member: false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ctx := Resolve("user-1", RoleMember, tc.role, tc.has)
			if got := ctx.IsMember(); got != tc.member {
				t.Fatalf("IsMember() = %v, want %v", got, tc.member)
			}
		})
	}
}

func TestZeroContextFailsClosed(t *testing.T) {
	var ctx Context
	checks := map[string]bool{
		"CanManageTeams":   ctx.CanManageTeams(),
		"CanManageMembers": ctx.CanManageMembers(),
		"CanCreateItem":    ctx.CanCreateItem(),
		"CanSubmitUpdate":  ctx.CanSubmitUpdate("user-1"),
		"CanDeleteItem":    ctx.CanDeleteItem(),
		"CanManageBlockers": ctx.CanManageBlockers(),
		"CanComment":       ctx.CanComment(),
		"CanDeleteComment": ctx.CanDeleteComment("user-1", "user-1"),
		"CanRead":          ctx.CanRead(),
	}
	for name, allowed := range checks {
		if allowed {
			t.Fatalf("%s should deny before role data is loaded", name)
		}
	}
}

func TestOwnerWithViewerRowCannotSubmitUpdate(t *testing.T) {
	ctx := Resolve("user-1", RoleMember, MemberViewer, true)
	if ctx.CanSubmitUpdate("user-1") {
		t.Fatalf("ownership must not grant updates without at least member role")
	}
}

func TestOwnerWithMemberRowCanSubmitUpdate(t *testing.T) {
	ctx := Resolve("user-1", RoleMember, MemberMember, true)
	if !ctx.CanSubmitUpdate("user-1") {
		t.Fatalf("member owner should be able to submit updates")
	}
	if ctx.CanSubmitUpdate("user-2") {
		t.Fatalf("plain member should not update items they do not own")
	}
}

func TestAdminWithoutMembershipOverridesTeamScope(t *testing.T) {
	ctx := Resolve("admin-1", RoleAdmin, "", false)
	if !ctx.CanSubmitUpdate("someone-else") {
		t.Fatalf("admin should edit any item without a membership row")
	}
	if !ctx.CanManageTeams() || !ctx.CanManageMembers() || !ctx.CanDeleteItem() {
		t.Fatalf("admin should hold every elevated capability")
	}
}

func TestManagerCapabilities(t *testing.T) {
	ctx := Resolve("mgr-1", RoleMember, MemberManager, true)
	if !ctx.CanSubmitUpdate("someone-else") {
		t.Fatalf("manager should update any item in the team")
	}
	if !ctx.CanCreateItem() || !ctx.CanManageBlockers() || !ctx.CanComment() {
		t.Fatalf("manager should create items and manage blockers and comments")
	}
	if ctx.CanManageTeams() || ctx.CanDeleteItem() {
		t.Fatalf("manager must not hold admin-tier rights")
	}
}

func TestCommentDeleteBoundary(t *testing.T) {
	// Author deletes own comment regardless of item ownership.
	author := Resolve("user-1", RoleMember, MemberMember, true)
	if !author.CanDeleteComment("user-1", "user-9") {
		t.Fatalf("author should delete their own comment")
	}

	// A plain member who is neither author nor item owner gets nothing.
	bystander := Resolve("user-2", RoleMember, MemberMember, true)
	if bystander.CanDeleteComment("user-1", "user-9") {
		t.Fatalf("non-author member without edit rights must not delete others' comments")
	}

	// Item edit rights are a superset: the owner moderates comments on
	// their item, managers moderate everything.
	owner := Resolve("user-9", RoleMember, MemberMember, true)
	if !owner.CanDeleteComment("user-1", "user-9") {
		t.Fatalf("item owner with member role should moderate comments on the item")
	}
	manager := Resolve("mgr-1", RoleMember, MemberManager, true)
	if !manager.CanDeleteComment("user-1", "user-9") {
		t.Fatalf("manager should moderate any comment")
	}

	// Admins moderate everything, including their own comments, through the
	// edit-rights path alone.
	admin := Resolve("adm-1", RoleAdmin, "", false)
	if !admin.CanDeleteComment("adm-1", "user-9") || !admin.CanDeleteComment("user-1", "user-9") {
		t.Fatalf("admin should moderate any comment")
	}
}

func TestViewerHidesMutations(t *testing.T) {
	ctx := Resolve("user-3", RoleViewer, MemberViewer, true)
	if !ctx.CanRead() {
		t.Fatalf("viewer should read their team")
	}
	if ctx.CanCreateItem() || ctx.CanManageBlockers() || ctx.CanComment() {
		t.Fatalf("viewer must not see mutating capabilities")
	}
}

func TestNormalizeRoles(t *testing.T) {
	if got := NormalizeProfileRole("director"); got != RoleViewer {
		t.Fatalf("unknown profile role should normalize to viewer, got %q", got)
	}
	if got := NormalizeProfileRole("admin"); got != RoleAdmin {
		t.Fatalf("admin should survive normalization, got %q", got)
	}
	if got := NormalizeMemberRole("owner"); got != MemberViewer {
		t.Fatalf("unknown member role should normalize to viewer, got %q", got)
	}
}
