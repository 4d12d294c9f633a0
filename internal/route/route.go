// Package route maps a session scope to the REST endpoint and push topic
// serving that scope's notifications. The mapping is a total function:
// scopes that cannot be resolved yield the Disabled route, never an error.
package route

import (
	"net/url"

	"github.com/nhle/portal-notify/internal/model"
)

// Route is the resolved pair of snapshot endpoint and push topic for a
// scope. A disabled route makes every downstream fetch and subscribe a
// no-op.
type Route struct {
	// Enabled is false when the scope cannot be resolved (missing
	// identity or unrecognized role).
	Enabled bool

	// Endpoint is the REST path, relative to the portal base URL, that
	// returns the scope's notification snapshot.
	Endpoint string

	// Topic is the push channel the scope subscribes to.
	Topic string

	// Fields lists the notification fields worth rendering for this
	// role's event mix.
	Fields []string
}

// Disabled is the route for unresolvable scopes.
var Disabled = Route{}

// roleRoute is implemented once per role in the closed role set.
type roleRoute interface {
	// resolveEndpoint returns the snapshot path for the identity, or ""
	// when the identity is required but absent.
	resolveEndpoint(identity string) string
	resolveTopic() string
	renderableFields() []string
}

type adminRoute struct{}

func (adminRoute) resolveEndpoint(string) string { return "/admin-notifications" }
func (adminRoute) resolveTopic() string          { return "admin-notification" }
func (adminRoute) renderableFields() []string {
	return []string{"email", "reason", "amount", "transactionId", "message"}
}

type facultyRoute struct{}

func (facultyRoute) resolveEndpoint(identity string) string {
	if identity == "" {
		return ""
	}
	return "/faculties-notifications/" + url.PathEscape(identity)
}
func (facultyRoute) resolveTopic() string { return "faculty-notification" }
func (facultyRoute) renderableFields() []string {
	return []string{"name", "email", "courseName", "message"}
}

type studentRoute struct{}

func (studentRoute) resolveEndpoint(identity string) string {
	if identity == "" {
		return ""
	}
	return "/student-notifications?email=" + url.QueryEscape(identity)
}
func (studentRoute) resolveTopic() string { return "student-notification" }
func (studentRoute) renderableFields() []string {
	return []string{"courseName", "point", "outOf", "amount", "message"}
}

// roleRoutes is the closed dispatch table. Roles outside it resolve to
// Disabled.
var roleRoutes = map[model.Role]roleRoute{
	model.RoleAdmin:   adminRoute{},
	model.RoleFaculty: facultyRoute{},
	model.RoleStudent: studentRoute{},
}

// Resolve maps a scope to its route. Faculty and student scopes without an
// identity, and unrecognized roles, resolve to Disabled.
func Resolve(scope model.Scope) Route {
	rr, ok := roleRoutes[scope.Role]
	if !ok {
		return Disabled
	}

	endpoint := rr.resolveEndpoint(scope.Identity)
	if endpoint == "" {
		return Disabled
	}

	return Route{
		Enabled:  true,
		Endpoint: endpoint,
		Topic:    rr.resolveTopic(),
		Fields:   rr.renderableFields(),
	}
}
