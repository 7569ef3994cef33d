package privilege

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Role is a closed role tag in the institutional hierarchy. The core never
// operates on free-form role strings; boundary code translates legacy names
// through [ParseRole] before anything reaches the guard functions.
type Role string

const (
	RoleStudent      Role = "STUDENT"
	RoleStaff        Role = "STAFF"
	RoleFaculty      Role = "FACULTY"
	RoleDeptAdmin    Role = "DEPT_ADMIN"
	RoleCollegeAdmin Role = "COLLEGE_ADMIN"
	RoleSuperAdmin   Role = "SUPER_ADMIN"
)

// legacy role names accepted at the boundary only.
var legacyRoleNames = map[string]Role{
	"TEACHER":   RoleFaculty,
	"HOD":       RoleDeptAdmin,
	"PRINCIPAL": RoleCollegeAdmin,
	"ROOT":      RoleSuperAdmin,
}

// ParseRole translates a role string (including legacy aliases) into the
// closed Role set. Unknown strings are rejected rather than carried through.
func ParseRole(s string) (Role, error) {
	name := strings.ToUpper(strings.TrimSpace(s))
	switch Role(name) {
	case RoleStudent, RoleStaff, RoleFaculty, RoleDeptAdmin, RoleCollegeAdmin, RoleSuperAdmin:
		return Role(name), nil
	}
	if mapped, ok := legacyRoleNames[name]; ok {
		return mapped, nil
	}
	return "", fmt.Errorf("unknown role %q", s)
}

// Hierarchy is the immutable rank table and assignment matrix. Construct it
// once at startup and share it read-only; there is no mutation path after
// NewHierarchy returns.
type Hierarchy struct {
	ranks      map[Role]int
	assignable map[Role]map[Role]bool
	protected  map[Role]bool
	superRole  Role
}

// HierarchyConfig describes a custom rank table and assignment matrix.
type HierarchyConfig struct {
	// Ranks maps every role to its privilege rank. Ranks must be positive
	// and strictly distinct so the order is total.
	Ranks map[Role]int
	// Assignable lists, per actor role, the roles that actor may grant.
	Assignable map[Role][]Role
	// Protected roles can never be administratively managed except by the
	// super role.
	Protected []Role
	// SuperRole bypasses scope checks entirely. It must hold the highest rank.
	SuperRole Role
}

// NewDefaultHierarchy returns the platform's built-in six-role hierarchy:
// STUDENT(1) < STAFF(2) < FACULTY(3) < DEPT_ADMIN(4) < COLLEGE_ADMIN(5) < SUPER_ADMIN(6).
func NewDefaultHierarchy() *Hierarchy {
	h, err := NewHierarchy(HierarchyConfig{
		Ranks: map[Role]int{
			RoleStudent:      1,
			RoleStaff:        2,
			RoleFaculty:      3,
			RoleDeptAdmin:    4,
			RoleCollegeAdmin: 5,
			RoleSuperAdmin:   6,
		},
		Assignable: map[Role][]Role{
			RoleDeptAdmin:    {RoleStudent, RoleStaff, RoleFaculty},
			RoleCollegeAdmin: {RoleStudent, RoleStaff, RoleFaculty, RoleDeptAdmin},
			RoleSuperAdmin:   {RoleStudent, RoleStaff, RoleFaculty, RoleDeptAdmin, RoleCollegeAdmin},
		},
		Protected: []Role{RoleSuperAdmin},
		SuperRole: RoleSuperAdmin,
	})
	if err != nil {
		// The built-in table is validated by tests; a failure here is a
		// programming error, not a runtime condition.
		panic(err)
	}
	return h
}

// NewHierarchy validates and freezes a hierarchy configuration.
func NewHierarchy(cfg HierarchyConfig) (*Hierarchy, error) {
	if len(cfg.Ranks) == 0 {
		return nil, errors.New("hierarchy requires at least one role")
	}

	seen := make(map[int]Role, len(cfg.Ranks))
	ranks := make(map[Role]int, len(cfg.Ranks))
	for role, rank := range cfg.Ranks {
		if role == "" {
			return nil, errors.New("hierarchy contains empty role name")
		}
		if rank <= 0 {
			return nil, fmt.Errorf("role %s has non-positive rank %d", role, rank)
		}
		if prev, dup := seen[rank]; dup {
			return nil, fmt.Errorf("roles %s and %s share rank %d; order must be total", prev, role, rank)
		}
		seen[rank] = role
		ranks[role] = rank
	}

	assignable := make(map[Role]map[Role]bool, len(cfg.Assignable))
	for actor, targets := range cfg.Assignable {
		actorRank, ok := ranks[actor]
		if !ok {
			return nil, fmt.Errorf("assignment matrix references unknown actor role %s", actor)
		}
		set := make(map[Role]bool, len(targets))
		for _, target := range targets {
			targetRank, ok := ranks[target]
			if !ok {
				return nil, fmt.Errorf("assignment matrix references unknown target role %s", target)
			}
			if targetRank >= actorRank {
				return nil, fmt.Errorf("matrix grants %s the equal-or-higher role %s", actor, target)
			}
			set[target] = true
		}
		assignable[actor] = set
	}

	protected := make(map[Role]bool, len(cfg.Protected))
	for _, role := range cfg.Protected {
		if _, ok := ranks[role]; !ok {
			return nil, fmt.Errorf("protected list references unknown role %s", role)
		}
		protected[role] = true
	}

	if cfg.SuperRole != "" {
		superRank, ok := ranks[cfg.SuperRole]
		if !ok {
			return nil, fmt.Errorf("super role %s is not in the rank table", cfg.SuperRole)
		}
		for role, rank := range ranks {
			if rank > superRank {
				return nil, fmt.Errorf("super role %s is outranked by %s", cfg.SuperRole, role)
			}
		}
	}

	return &Hierarchy{
		ranks:      ranks,
		assignable: assignable,
		protected:  protected,
		superRole:  cfg.SuperRole,
	}, nil
}

// Rank returns the rank of a single role, or 0 for unknown roles.
func (h *Hierarchy) Rank(role Role) int {
	return h.ranks[role]
}

// MaxRank returns the highest rank among the given roles. Unknown roles
// contribute rank 0, so an empty or entirely-unknown set has rank 0 and can
// never pass an assignment check.
func (h *Hierarchy) MaxRank(roles []Role) int {
	max := 0
	for _, role := range roles {
		if rank := h.ranks[role]; rank > max {
			max = rank
		}
	}
	return max
}

// Roles returns every known role ordered by ascending rank.
func (h *Hierarchy) Roles() []Role {
	out := make([]Role, 0, len(h.ranks))
	for role := range h.ranks {
		out = append(out, role)
	}
	sort.Slice(out, func(i, j int) bool {
		return h.ranks[out[i]] < h.ranks[out[j]]
	})
	return out
}

// highestRole returns the role holding MaxRank among the set.
func (h *Hierarchy) highestRole(roles []Role) (Role, int) {
	var best Role
	max := 0
	for _, role := range roles {
		if rank := h.ranks[role]; rank > max {
			max = rank
			best = role
		}
	}
	return best, max
}

func (h *Hierarchy) isSuper(roles []Role) bool {
	if h.superRole == "" {
		return false
	}
	for _, role := range roles {
		if role == h.superRole {
			return true
		}
	}
	return false
}
