package model

// Role is the session role within the portal.
type Role string

const (
	RoleAdmin   Role = "admin"
	RoleFaculty Role = "faculty"
	RoleStudent Role = "student"
)

// Scope is the (role, identity) pair that determines which notifications a
// session should see. Identity is an email for faculty and student scopes
// and empty for admin, which is a single logical scope.
type Scope struct {
	Role     Role
	Identity string
}

// Key returns a stable string form of the scope, used for cache and local
// state keys.
func (s Scope) Key() string {
	if s.Identity == "" {
		return string(s.Role)
	}
	return string(s.Role) + "|" + s.Identity
}

// Zero reports whether the scope is unset.
func (s Scope) Zero() bool {
	return s.Role == "" && s.Identity == ""
}
