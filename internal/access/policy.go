// Package access decides whether an actor may perform an operation on a
// company-scoped resource.
//
// Evaluate is a pure function over the actor's role and company: there is no
// session lookup and no global state. Denial is terminal; callers never degrade
// a denied request into partial data.
package access

import (
	"github.com/hashicorp/go-set/v2"

	id "parity/pkg/domain"
	dErrors "parity/pkg/domain-errors"
)

// Capability names an operation guarded by the policy.
type Capability string

const (
	CapReadComparison  Capability = "read_comparison"
	CapReadGroupStats  Capability = "read_group_stats"
	CapRecompute       Capability = "recompute"
	CapManageEmployees Capability = "manage_employees"
	CapReadAudit       Capability = "read_audit"
	CapExportAudit     Capability = "export_audit"
	CapAskAssistant    Capability = "ask_assistant"
)

// Decision is the outcome of an evaluation.
type Decision int

const (
	Deny Decision = iota
	Allow
)

func (d Decision) String() string {
	if d == Allow {
		return "allow"
	}
	return "deny"
}

// Resource identifies what the capability is exercised on. EmployeeID is only
// consulted for employee-scoped capabilities.
type Resource struct {
	CompanyID  id.CompanyID
	EmployeeID id.EmployeeID
}

var hrCapabilities = []Capability{
	CapReadComparison,
	CapReadGroupStats,
	CapRecompute,
	CapManageEmployees,
	CapReadAudit,
	CapAskAssistant,
}

var roleCapabilities = map[Role]*set.Set[Capability]{
	RoleEmployee:  set.From([]Capability{CapReadComparison, CapAskAssistant}),
	RoleHRManager: set.From(hrCapabilities),
	RoleAdmin:     set.From(append([]Capability{CapExportAudit}, hrCapabilities...)),
}

// Capabilities returns the capability set granted to role.
func Capabilities(role Role) []Capability {
	caps, ok := roleCapabilities[role]
	if !ok {
		return nil
	}
	return caps.Slice()
}

// Evaluator applies the role capability table.
type Evaluator struct{}

// NewEvaluator constructs the policy evaluator.
func NewEvaluator() *Evaluator {
	return &Evaluator{}
}

// Evaluate returns Allow only when the role grants the capability, the resource
// belongs to the actor's company, and employee-scoped reads target the actor's
// own record.
func (e *Evaluator) Evaluate(actor Actor, capability Capability, resource Resource) Decision {
	if !actor.Resolved() {
		return Deny
	}
	caps, ok := roleCapabilities[actor.Role]
	if !ok || !caps.Contains(capability) {
		return Deny
	}
	if resource.CompanyID.IsNil() || resource.CompanyID != actor.CompanyID {
		return Deny
	}
	if actor.Role == RoleEmployee && capability == CapReadComparison {
		if actor.EmployeeID.IsNil() || resource.EmployeeID != actor.EmployeeID {
			return Deny
		}
	}
	return Allow
}

// Authorize wraps Evaluate with the error taxonomy: an unresolved actor is an
// authentication failure, a denial is an authorization failure.
func (e *Evaluator) Authorize(actor Actor, capability Capability, resource Resource) error {
	if !actor.Resolved() {
		return dErrors.New(dErrors.CodeUnauthorized, "authentication required")
	}
	if e.Evaluate(actor, capability, resource) == Deny {
		return dErrors.Newf(dErrors.CodeForbidden, "%s not permitted for role %s", capability, actor.Role)
	}
	return nil
}
