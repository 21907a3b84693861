package gatekit

import (
	"context"
	"fmt"
)

// RBAC façade: role and permission operations built on the primitive
// management API and the role managers.

// GetRolesForUser returns the roles the user directly holds in the default
// g relation.
func (e *Enforcer) GetRolesForUser(name string, domain ...string) ([]string, error) {
	rm := e.GetRoleManager()
	if rm == nil {
		return nil, fmt.Errorf("%w: model has no role definition", ErrModel)
	}
	roles, err := rm.GetRoles(name, domain...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRbac, err)
	}
	return roles, nil
}

// GetUsersForRole returns the users directly holding the role.
func (e *Enforcer) GetUsersForRole(name string, domain ...string) ([]string, error) {
	rm := e.GetRoleManager()
	if rm == nil {
		return nil, fmt.Errorf("%w: model has no role definition", ErrModel)
	}
	users, err := rm.GetUsers(name, domain...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRbac, err)
	}
	return users, nil
}

// HasRoleForUser reports whether the user directly holds the role.
func (e *Enforcer) HasRoleForUser(name, role string, domain ...string) (bool, error) {
	roles, err := e.GetRolesForUser(name, domain...)
	if err != nil {
		return false, err
	}
	for _, r := range roles {
		if r == role {
			return true, nil
		}
	}
	return false, nil
}

// AddRoleForUser grants the user a role, optionally within a domain.
func (e *Enforcer) AddRoleForUser(ctx context.Context, user, role string, domain ...string) (bool, error) {
	return e.AddGroupingPolicy(ctx, append([]string{user, role}, domain...)...)
}

// AddRolesForUser grants the user several roles; false when every grant
// already existed.
func (e *Enforcer) AddRolesForUser(ctx context.Context, user string, roles []string, domain ...string) (bool, error) {
	added := false
	for _, role := range roles {
		ok, err := e.AddRoleForUser(ctx, user, role, domain...)
		if err != nil {
			return added, err
		}
		added = added || ok
	}
	return added, nil
}

// DeleteRoleForUser revokes one role from the user.
func (e *Enforcer) DeleteRoleForUser(ctx context.Context, user, role string, domain ...string) (bool, error) {
	return e.RemoveGroupingPolicy(ctx, append([]string{user, role}, domain...)...)
}

// DeleteRolesForUser revokes every role the user holds, optionally scoped
// to a domain.
func (e *Enforcer) DeleteRolesForUser(ctx context.Context, user string, domain ...string) (bool, error) {
	fieldValues := []string{user, ""}
	if len(domain) > 0 {
		fieldValues = append(fieldValues, domain[0])
	}
	return e.RemoveFilteredGroupingPolicy(ctx, 0, fieldValues...)
}

// DeleteUser removes every role grant whose member is the user. Direct
// permission rules are untouched; use DeletePermissionsForUser for those.
func (e *Enforcer) DeleteUser(ctx context.Context, user string) (bool, error) {
	return e.RemoveFilteredGroupingPolicy(ctx, 0, user)
}

// DeleteRole removes the role: every grant of the role and every permission
// rule whose subject is the role.
func (e *Enforcer) DeleteRole(ctx context.Context, role string) (bool, error) {
	removedGrouping, err := e.RemoveFilteredGroupingPolicy(ctx, 1, role)
	if err != nil {
		return false, err
	}
	removedPolicy, err := e.RemoveFilteredPolicy(ctx, 0, role)
	if err != nil {
		return removedGrouping, err
	}
	return removedGrouping || removedPolicy, nil
}

// DeletePermission removes every rule granting the permission to anyone.
func (e *Enforcer) DeletePermission(ctx context.Context, permission ...string) (bool, error) {
	return e.RemoveFilteredPolicy(ctx, 1, permission...)
}

// AddPermissionForUser grants the user (or role) a permission.
func (e *Enforcer) AddPermissionForUser(ctx context.Context, user string, permission ...string) (bool, error) {
	return e.AddPolicy(ctx, append([]string{user}, permission...)...)
}

// AddPermissionsForUser grants several permissions; false when every grant
// already existed.
func (e *Enforcer) AddPermissionsForUser(ctx context.Context, user string, permissions [][]string) (bool, error) {
	added := false
	for _, p := range permissions {
		ok, err := e.AddPermissionForUser(ctx, user, p...)
		if err != nil {
			return added, err
		}
		added = added || ok
	}
	return added, nil
}

// DeletePermissionForUser revokes one permission from the user.
func (e *Enforcer) DeletePermissionForUser(ctx context.Context, user string, permission ...string) (bool, error) {
	return e.RemovePolicy(ctx, append([]string{user}, permission...)...)
}

// DeletePermissionsForUser revokes every permission of the user.
func (e *Enforcer) DeletePermissionsForUser(ctx context.Context, user string) (bool, error) {
	return e.RemoveFilteredPolicy(ctx, 0, user)
}

// GetPermissionsForUser returns the permission rules whose subject is the
// user, optionally filtered by domain in field 1.
func (e *Enforcer) GetPermissionsForUser(user string, domain ...string) [][]string {
	fieldValues := []string{user}
	if len(domain) > 0 {
		fieldValues = append(fieldValues, domain[0])
	}
	return e.GetFilteredPolicy(0, fieldValues...)
}

// HasPermissionForUser reports whether the user holds the permission
// directly.
func (e *Enforcer) HasPermissionForUser(user string, permission ...string) bool {
	return e.HasPolicy(append([]string{user}, permission...)...)
}

// GetImplicitRolesForUser returns the transitive closure of the user's
// roles in breadth-first order.
func (e *Enforcer) GetImplicitRolesForUser(name string, domain ...string) ([]string, error) {
	var res []string
	seen := map[string]struct{}{name: {}}
	queue := []string{name}

	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		roles, err := e.GetRolesForUser(cur, domain...)
		if err != nil {
			return nil, err
		}
		for _, r := range roles {
			if _, ok := seen[r]; ok {
				continue
			}
			seen[r] = struct{}{}
			res = append(res, r)
			queue = append(queue, r)
		}
	}
	return res, nil
}

// GetImplicitUsersForRole returns every user that transitively holds the
// role.
func (e *Enforcer) GetImplicitUsersForRole(name string, domain ...string) ([]string, error) {
	var res []string
	seen := map[string]struct{}{name: {}}
	queue := []string{name}

	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		users, err := e.GetUsersForRole(cur, domain...)
		if err != nil {
			return nil, err
		}
		for _, u := range users {
			if _, ok := seen[u]; ok {
				continue
			}
			seen[u] = struct{}{}
			res = append(res, u)
			queue = append(queue, u)
		}
	}
	return res, nil
}

// GetImplicitPermissionsForUser returns the permission rules of the user
// and of every role the user transitively holds.
func (e *Enforcer) GetImplicitPermissionsForUser(user string, domain ...string) ([][]string, error) {
	roles, err := e.GetImplicitRolesForUser(user, domain...)
	if err != nil {
		return nil, err
	}
	subjects := append([]string{user}, roles...)

	var res [][]string
	for _, s := range subjects {
		res = append(res, e.GetPermissionsForUser(s, domain...)...)
	}
	return res, nil
}

// GetImplicitUsersForPermission returns every subject that can exercise the
// permission, role names excluded: for each candidate the request
// [subject, permission...] is enforced.
func (e *Enforcer) GetImplicitUsersForPermission(permission ...string) ([]string, error) {
	subjects := e.GetAllSubjects()
	for _, ptype := range e.GetModel().PTypes("g") {
		e.mu.RLock()
		users := e.model.GetValuesForFieldInPolicy("g", ptype, 0)
		e.mu.RUnlock()
		subjects = append(subjects, users...)
	}

	roles := make(map[string]struct{})
	for _, r := range e.GetAllRoles() {
		roles[r] = struct{}{}
	}

	seen := make(map[string]struct{})
	var res []string
	for _, s := range subjects {
		if _, isRole := roles[s]; isRole {
			continue
		}
		if _, dup := seen[s]; dup {
			continue
		}
		seen[s] = struct{}{}

		rvals := make([]any, 0, 1+len(permission))
		rvals = append(rvals, s)
		for _, p := range permission {
			rvals = append(rvals, p)
		}
		ok, err := e.Enforce(rvals...)
		if err != nil {
			return nil, err
		}
		if ok {
			res = append(res, s)
		}
	}
	return res, nil
}
