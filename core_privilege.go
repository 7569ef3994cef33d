package authcore

import (
	"context"
	"strings"

	"github.com/acadly/authcore/privilege"
)

// PrincipalRef identifies a principal at the API boundary. Role strings
// may use legacy names; they are translated into the closed role set
// before any privilege check runs.
type PrincipalRef struct {
	ID    string
	Roles []string
	Scope privilege.Scope
}

func parseRoles(raw []string) ([]privilege.Role, privilege.Role, bool) {
	roles := make([]privilege.Role, 0, len(raw))
	for _, s := range raw {
		role, err := privilege.ParseRole(s)
		if err != nil {
			return nil, privilege.Role(s), false
		}
		roles = append(roles, role)
	}
	return roles, "", true
}

func denyUnknownRole(role privilege.Role) privilege.Decision {
	return privilege.Decision{
		Allowed:        false,
		Reason:         "unknown role",
		OffendingRoles: []privilege.Role{role},
	}
}

// CanAssignRoles decides whether the actor may grant the target role
// set. Denials are audited with both role sets; the decision value is
// the full structured outcome.
func (c *Core) CanAssignRoles(ctx context.Context, actorID string, actorRoles, targetRoles []string) privilege.Decision {
	actor, bad, ok := parseRoles(actorRoles)
	if !ok {
		return c.auditEscalation(ctx, actorID, "", actorRoles, targetRoles, denyUnknownRole(bad))
	}
	target, bad, ok := parseRoles(targetRoles)
	if !ok {
		return c.auditEscalation(ctx, actorID, "", actorRoles, targetRoles, denyUnknownRole(bad))
	}

	decision := c.hierarchy.CanAssignRoles(actor, target)
	return c.auditEscalation(ctx, actorID, "", actorRoles, targetRoles, decision)
}

// ValidateRoleEscalation decides a role-set change on a target
// principal. Self-edits are always denied.
func (c *Core) ValidateRoleEscalation(
	ctx context.Context,
	actorID string, actorRoles []string,
	targetID string, targetCurrentRoles, targetNewRoles []string,
) privilege.Decision {
	actor, bad, ok := parseRoles(actorRoles)
	if !ok {
		return c.auditEscalation(ctx, actorID, targetID, actorRoles, targetNewRoles, denyUnknownRole(bad))
	}
	current, bad, ok := parseRoles(targetCurrentRoles)
	if !ok {
		return c.auditEscalation(ctx, actorID, targetID, actorRoles, targetNewRoles, denyUnknownRole(bad))
	}
	next, bad, ok := parseRoles(targetNewRoles)
	if !ok {
		return c.auditEscalation(ctx, actorID, targetID, actorRoles, targetNewRoles, denyUnknownRole(bad))
	}

	decision := c.hierarchy.ValidateRoleEscalation(actorID, actor, targetID, current, next)
	return c.auditEscalation(ctx, actorID, targetID, actorRoles, targetNewRoles, decision)
}

// CanManagePrincipal decides whether the actor may administratively act
// on the target: shared scope, no protected targets, no peers or
// superiors, super-role bypass.
func (c *Core) CanManagePrincipal(ctx context.Context, actor, target PrincipalRef) privilege.Decision {
	actorRoles, bad, ok := parseRoles(actor.Roles)
	if !ok {
		return c.auditManagement(ctx, actor, target, denyUnknownRole(bad))
	}
	targetRoles, bad, ok := parseRoles(target.Roles)
	if !ok {
		return c.auditManagement(ctx, actor, target, denyUnknownRole(bad))
	}

	decision := c.hierarchy.CanManagePrincipal(actorRoles, actor.Scope, privilege.Principal{
		ID:    target.ID,
		Roles: targetRoles,
		Scope: target.Scope,
	})
	return c.auditManagement(ctx, actor, target, decision)
}

func (c *Core) auditEscalation(
	ctx context.Context,
	actorID, targetID string,
	actorRoles, attemptedRoles []string,
	decision privilege.Decision,
) privilege.Decision {
	if decision.Allowed {
		return decision
	}

	c.metrics.Inc(MetricEscalationDenied)
	c.emit(ctx, AuditEvent{
		EventType:   EventEscalationDenied,
		Severity:    SeverityWarn,
		PrincipalID: targetID,
		ActorID:     actorID,
		Success:     false,
		Error:       decision.Reason,
		Metadata: map[string]string{
			"actor_roles":     strings.Join(actorRoles, ","),
			"attempted_roles": strings.Join(attemptedRoles, ","),
		},
	})

	return decision
}

func (c *Core) auditManagement(ctx context.Context, actor, target PrincipalRef, decision privilege.Decision) privilege.Decision {
	if decision.Allowed {
		return decision
	}

	c.metrics.Inc(MetricManagementDenied)
	c.emit(ctx, AuditEvent{
		EventType:   EventManagementDenied,
		Severity:    SeverityWarn,
		PrincipalID: target.ID,
		ActorID:     actor.ID,
		Success:     false,
		Error:       decision.Reason,
		Metadata: map[string]string{
			"actor_roles":  strings.Join(actor.Roles, ","),
			"target_roles": strings.Join(target.Roles, ","),
		},
	})

	return decision
}
