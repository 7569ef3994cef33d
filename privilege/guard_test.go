package privilege

import (
	"strings"
	"testing"
)

func TestDefaultHierarchyOrderIsTotal(t *testing.T) {
	h := NewDefaultHierarchy()

	roles := h.Roles()
	if len(roles) != 6 {
		t.Fatalf("expected 6 roles, got %d", len(roles))
	}
	for i := 1; i < len(roles); i++ {
		if h.Rank(roles[i-1]) >= h.Rank(roles[i]) {
			t.Fatalf("ranks not strictly increasing: %s=%d, %s=%d",
				roles[i-1], h.Rank(roles[i-1]), roles[i], h.Rank(roles[i]))
		}
	}
}

func TestNewHierarchyRejectsSharedRanks(t *testing.T) {
	_, err := NewHierarchy(HierarchyConfig{
		Ranks: map[Role]int{RoleStudent: 1, RoleStaff: 1},
	})
	if err == nil {
		t.Fatal("expected error for duplicate rank")
	}
}

func TestNewHierarchyRejectsEscalatingMatrix(t *testing.T) {
	_, err := NewHierarchy(HierarchyConfig{
		Ranks: map[Role]int{RoleStudent: 1, RoleDeptAdmin: 4},
		Assignable: map[Role][]Role{
			RoleDeptAdmin: {RoleDeptAdmin},
		},
	})
	if err == nil {
		t.Fatal("expected error for matrix granting an equal-rank role")
	}
}

// Escalation monotonicity: for every (actor, target) role pair in the
// hierarchy, assignment of an equal-or-higher ranked role is denied.
func TestCanAssignRolesMonotonicity(t *testing.T) {
	h := NewDefaultHierarchy()

	for _, actor := range h.Roles() {
		for _, target := range h.Roles() {
			d := h.CanAssignRoles([]Role{actor}, []Role{target})
			if h.Rank(target) >= h.Rank(actor) && d.Allowed {
				t.Errorf("actor %s must not assign %s", actor, target)
			}
			if d.Allowed && h.Rank(target) >= h.Rank(actor) {
				t.Errorf("allowed decision for non-decreasing rank pair (%s, %s)", actor, target)
			}
		}
	}
}

func TestCanAssignRolesWithinPermittedSet(t *testing.T) {
	h := NewDefaultHierarchy()

	d := h.CanAssignRoles([]Role{RoleCollegeAdmin}, []Role{RoleFaculty, RoleDeptAdmin})
	if !d.Allowed {
		t.Fatalf("college admin should assign faculty+dept admin: %s", d.Reason)
	}

	// FACULTY has no matrix entry at all.
	d = h.CanAssignRoles([]Role{RoleFaculty}, []Role{RoleStudent})
	if d.Allowed {
		t.Fatal("faculty has no assignment set and must be denied")
	}
}

func TestCanAssignRolesUnknownRole(t *testing.T) {
	h := NewDefaultHierarchy()

	d := h.CanAssignRoles([]Role{RoleSuperAdmin}, []Role{Role("JANITOR")})
	if d.Allowed {
		t.Fatal("unknown roles must be denied")
	}
	if len(d.OffendingRoles) != 1 || d.OffendingRoles[0] != Role("JANITOR") {
		t.Fatalf("expected offending role JANITOR, got %v", d.OffendingRoles)
	}
}

// Dept admin (rank 4) assigning a rank-4 role is denied with a reason that
// names the privilege level; assigning a permitted lower role succeeds.
func TestDeptAdminAssignmentScenario(t *testing.T) {
	h := NewDefaultHierarchy()

	d := h.CanAssignRoles([]Role{RoleDeptAdmin}, []Role{RoleDeptAdmin})
	if d.Allowed {
		t.Fatal("dept admin must not assign dept admin")
	}
	if !strings.Contains(d.Reason, "equal or higher privilege level") {
		t.Fatalf("reason should mention privilege level, got %q", d.Reason)
	}
	if len(d.OffendingRoles) == 0 {
		t.Fatal("expected offending roles in decision")
	}

	d = h.CanAssignRoles([]Role{RoleDeptAdmin}, []Role{RoleStudent, RoleStaff})
	if !d.Allowed {
		t.Fatalf("dept admin should assign student+staff: %s", d.Reason)
	}
}

// Self-edit is invalid for every role combination.
func TestValidateRoleEscalationSelfEditBlocked(t *testing.T) {
	h := NewDefaultHierarchy()

	for _, actor := range h.Roles() {
		for _, proposed := range h.Roles() {
			d := h.ValidateRoleEscalation("u1", []Role{actor}, "u1", []Role{actor}, []Role{proposed})
			if d.Allowed {
				t.Errorf("self edit allowed for actor=%s proposed=%s", actor, proposed)
			}
		}
	}
}

func TestValidateRoleEscalationDelegatesAndRechecks(t *testing.T) {
	h := NewDefaultHierarchy()

	d := h.ValidateRoleEscalation("admin", []Role{RoleCollegeAdmin}, "u2",
		[]Role{RoleStudent}, []Role{RoleFaculty})
	if !d.Allowed {
		t.Fatalf("expected valid escalation: %s", d.Reason)
	}

	d = h.ValidateRoleEscalation("admin", []Role{RoleDeptAdmin}, "u2",
		[]Role{RoleStudent}, []Role{RoleCollegeAdmin})
	if d.Allowed {
		t.Fatal("raising target above actor must be denied")
	}
}

func TestCanManagePrincipalScoping(t *testing.T) {
	h := NewDefaultHierarchy()

	target := Principal{
		ID:    "s1",
		Roles: []Role{RoleStudent},
		Scope: Scope{CollegeID: "c1", DepartmentID: "d1"},
	}

	d := h.CanManagePrincipal([]Role{RoleDeptAdmin}, Scope{CollegeID: "c1", DepartmentID: "d1"}, target)
	if !d.Allowed {
		t.Fatalf("same college+department should be manageable: %s", d.Reason)
	}

	d = h.CanManagePrincipal([]Role{RoleDeptAdmin}, Scope{CollegeID: "c1", DepartmentID: "d2"}, target)
	if d.Allowed {
		t.Fatal("different department must be denied for dept admin")
	}

	d = h.CanManagePrincipal([]Role{RoleCollegeAdmin}, Scope{CollegeID: "c2"}, target)
	if d.Allowed {
		t.Fatal("different college must be denied")
	}

	// College admin may cross departments within their college.
	d = h.CanManagePrincipal([]Role{RoleCollegeAdmin}, Scope{CollegeID: "c1"}, target)
	if !d.Allowed {
		t.Fatalf("college admin should manage within college: %s", d.Reason)
	}
}

func TestCanManagePrincipalProtectedAndRank(t *testing.T) {
	h := NewDefaultHierarchy()

	superTarget := Principal{ID: "root", Roles: []Role{RoleSuperAdmin}, Scope: Scope{CollegeID: "c1"}}
	d := h.CanManagePrincipal([]Role{RoleCollegeAdmin}, Scope{CollegeID: "c1"}, superTarget)
	if d.Allowed {
		t.Fatal("protected role must never be manageable by non-super actors")
	}

	peer := Principal{ID: "p2", Roles: []Role{RoleDeptAdmin}, Scope: Scope{CollegeID: "c1", DepartmentID: "d1"}}
	d = h.CanManagePrincipal([]Role{RoleDeptAdmin}, Scope{CollegeID: "c1", DepartmentID: "d1"}, peer)
	if d.Allowed {
		t.Fatal("equal rank target must be denied")
	}

	d = h.CanManagePrincipal([]Role{RoleSuperAdmin}, Scope{}, peer)
	if !d.Allowed {
		t.Fatalf("super role bypasses scoping: %s", d.Reason)
	}
}

func TestParseRoleLegacyAliases(t *testing.T) {
	cases := map[string]Role{
		"teacher":       RoleFaculty,
		"HOD":           RoleDeptAdmin,
		"Principal":     RoleCollegeAdmin,
		"ROOT":          RoleSuperAdmin,
		" dept_admin ":  RoleDeptAdmin,
		"COLLEGE_ADMIN": RoleCollegeAdmin,
	}
	for in, want := range cases {
		got, err := ParseRole(in)
		if err != nil {
			t.Fatalf("ParseRole(%q) failed: %v", in, err)
		}
		if got != want {
			t.Fatalf("ParseRole(%q) = %s, want %s", in, got, want)
		}
	}

	if _, err := ParseRole("wizard"); err == nil {
		t.Fatal("unknown role string must be rejected")
	}
}
