// Package rbac provides the role-link graph behind the g* matcher functions:
// per-domain role inheritance with bounded reachability queries and optional
// pattern matching on role and domain names.
package rbac

// MatchingFunc decides whether a concrete name matches a pattern, e.g.
// util.KeyMatch or util.KeyMatch2.
type MatchingFunc func(name, pattern string) bool

// RoleManager answers reachability questions over one role-link relation.
// Implementations must support concurrent readers: HasLink, GetRoles,
// GetUsers, and GetDomains may be called from many goroutines at once, while
// AddLink, DeleteLink, and Clear require exclusive access internally.
type RoleManager interface {
	// Clear drops every role and link.
	Clear()
	// AddLink records that name1 inherits the role name2, optionally
	// scoped to one domain.
	AddLink(name1, name2 string, domain ...string) error
	// DeleteLink removes the inheritance link; it is an error if either
	// role or the link itself is absent.
	DeleteLink(name1, name2 string, domain ...string) error
	// HasLink reports whether name2 is reachable from name1 within the
	// hierarchy bound.
	HasLink(name1, name2 string, domain ...string) (bool, error)
	// GetRoles returns the roles name directly inherits.
	GetRoles(name string, domain ...string) ([]string, error)
	// GetUsers returns the names directly inheriting role name.
	GetUsers(name string, domain ...string) ([]string, error)
	// GetDomains returns every domain name holding at least one role.
	GetDomains() []string
	// AddMatchingFunc installs a pattern matcher for role names.
	AddMatchingFunc(fn MatchingFunc)
	// AddDomainMatchingFunc installs a pattern matcher for domain names.
	AddDomainMatchingFunc(fn MatchingFunc)
}
