package access

import (
	"context"
	"strings"

	id "parity/pkg/domain"
	dErrors "parity/pkg/domain-errors"
)

// Role is the caller's role within their company.
type Role string

const (
	RoleAdmin     Role = "admin"
	RoleHRManager Role = "hr_manager"
	RoleEmployee  Role = "employee"
)

// ParseRole validates a role claim from an identity token.
func ParseRole(s string) (Role, error) {
	r := Role(strings.TrimSpace(strings.ToLower(s)))
	switch r {
	case RoleAdmin, RoleHRManager, RoleEmployee:
		return r, nil
	case "":
		return "", dErrors.New(dErrors.CodeValidation, "role is required")
	default:
		return "", dErrors.Newf(dErrors.CodeValidation, "unsupported role %q", s)
	}
}

// Actor is the resolved identity of the caller. It is passed explicitly to every
// authorization decision and never persisted.
type Actor struct {
	UserID     id.UserID
	Email      string
	Role       Role
	CompanyID  id.CompanyID
	EmployeeID id.EmployeeID // set for employee-role callers linked to an employee record
}

// Resolved reports whether the actor carries enough identity to be evaluated.
func (a Actor) Resolved() bool {
	return !a.UserID.IsNil() && !a.CompanyID.IsNil() && a.Role != ""
}

// IsPrivileged reports whether the actor may see company-wide figures.
func (a Actor) IsPrivileged() bool {
	return a.Role == RoleAdmin || a.Role == RoleHRManager
}

type actorKey struct{}

// WithActor stores the authenticated actor in ctx. Only the auth middleware and
// tests should call this.
func WithActor(ctx context.Context, a Actor) context.Context {
	return context.WithValue(ctx, actorKey{}, a)
}

// ActorFrom returns the actor stored by the auth middleware.
func ActorFrom(ctx context.Context) (Actor, bool) {
	a, ok := ctx.Value(actorKey{}).(Actor)
	return a, ok
}
