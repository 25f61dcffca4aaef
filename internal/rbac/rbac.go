// Package rbac defines workspace roles and the permission predicate used by
// the HTTP layer. Ownership checks are handled separately by the store: a
// non-admin only ever sees records they created.
package rbac

type Role string
type Action string

const (
	RoleAuthor Role = "author"
	RoleAdmin  Role = "admin"
)

const (
	ActionRead  Action = "read"
	ActionWrite Action = "write"
	ActionAdmin Action = "admin"
)

func Can(role Role, action Action) bool {
	switch role {
	case RoleAdmin:
		return true
	case RoleAuthor:
		return action == ActionRead || action == ActionWrite
	default:
		return false
	}
}

func Normalize(role string) Role {
	switch Role(role) {
	case RoleAuthor, RoleAdmin:
		return Role(role)
	default:
		return RoleAuthor
	}
}

// Elevated reports whether the role bypasses owner scoping.
func Elevated(role Role) bool {
	return role == RoleAdmin
}
