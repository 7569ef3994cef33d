package privilege

import "fmt"

// Decision is the tagged outcome of a guard check. Callers must branch on
// Allowed; Reason and OffendingRoles exist for audit logs and internal
// callers, never for end-user display.
type Decision struct {
	Allowed        bool
	Reason         string
	OffendingRoles []Role
}

func allow() Decision {
	return Decision{Allowed: true}
}

func deny(reason string, offending ...Role) Decision {
	return Decision{Allowed: false, Reason: reason, OffendingRoles: offending}
}

// Scope is the tenancy boundary a principal acts within. An empty
// DepartmentID means college-wide scope.
type Scope struct {
	CollegeID    string
	DepartmentID string
}

// Principal bundles the role set and scope of the target of an
// administrative action.
type Principal struct {
	ID    string
	Roles []Role
	Scope Scope
}

// CanAssignRoles reports whether an actor holding actorRoles may grant the
// full targetRoles set. The check is strict: the target's resulting rank
// must stay below the actor's, and every granted role must be inside the
// assignment matrix entry for the actor's highest role.
func (h *Hierarchy) CanAssignRoles(actorRoles, targetRoles []Role) Decision {
	if len(targetRoles) == 0 {
		return deny("no roles to assign")
	}

	actorTop, actorRank := h.highestRole(actorRoles)
	if actorRank == 0 {
		return deny("actor holds no ranked role")
	}

	var unknown []Role
	for _, role := range targetRoles {
		if h.ranks[role] == 0 {
			unknown = append(unknown, role)
		}
	}
	if len(unknown) > 0 {
		return deny("target set contains unknown roles", unknown...)
	}

	if targetRank := h.MaxRank(targetRoles); targetRank >= actorRank {
		var offending []Role
		for _, role := range targetRoles {
			if h.ranks[role] >= actorRank {
				offending = append(offending, role)
			}
		}
		return deny("cannot assign roles at an equal or higher privilege level", offending...)
	}

	permitted := h.assignable[actorTop]
	var outside []Role
	for _, role := range targetRoles {
		if !permitted[role] {
			outside = append(outside, role)
		}
	}
	if len(outside) > 0 {
		return deny(fmt.Sprintf("roles outside the %s assignment set", actorTop), outside...)
	}

	return allow()
}

// ValidateRoleEscalation guards a role-set mutation end to end: it blocks
// self-edits, delegates to CanAssignRoles for the proposed set, and
// re-checks the resulting rank against the actor's even when the matrix
// nominally permits each role. The final check is deliberately redundant so
// a misconfigured matrix cannot open an escalation path.
func (h *Hierarchy) ValidateRoleEscalation(actorID string, actorRoles []Role, targetID string, targetCurrentRoles, targetNewRoles []Role) Decision {
	if actorID == "" || targetID == "" {
		return deny("actor and target ids are required")
	}
	if actorID == targetID {
		return deny("principals may not edit their own roles")
	}

	if d := h.CanAssignRoles(actorRoles, targetNewRoles); !d.Allowed {
		return d
	}

	actorRank := h.MaxRank(actorRoles)
	if newRank := h.MaxRank(targetNewRoles); newRank >= actorRank {
		return deny("resulting role set reaches an equal or higher privilege level")
	}

	return allow()
}

// CanManagePrincipal reports whether an actor scoped to actorScope may
// administratively act on the target principal. The super role bypasses
// scoping entirely; everyone else is confined to their college and, for
// department admins, their department, and may never act on a protected or
// equal-or-higher ranked principal.
func (h *Hierarchy) CanManagePrincipal(actorRoles []Role, actorScope Scope, target Principal) Decision {
	actorTop, actorRank := h.highestRole(actorRoles)
	if actorRank == 0 {
		return deny("actor holds no ranked role")
	}

	if h.isSuper(actorRoles) {
		return allow()
	}

	for _, role := range target.Roles {
		if h.protected[role] {
			return deny("target holds a protected role", role)
		}
	}

	if targetRank := h.MaxRank(target.Roles); targetRank >= actorRank {
		return deny("target holds an equal or higher privilege level")
	}

	if actorScope.CollegeID == "" || actorScope.CollegeID != target.Scope.CollegeID {
		return deny("target is outside the actor's college scope")
	}

	if actorTop == RoleDeptAdmin {
		if actorScope.DepartmentID == "" || actorScope.DepartmentID != target.Scope.DepartmentID {
			return deny("target is outside the actor's department scope")
		}
	}

	return allow()
}
