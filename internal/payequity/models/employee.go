package models

import (
	"strings"
	"time"

	id "parity/pkg/domain"
	dErrors "parity/pkg/domain-errors"
)

// Gender is the reported gender category of an employee.
type Gender string

const (
	GenderMale   Gender = "male"
	GenderFemale Gender = "female"
	GenderOther  Gender = "other"
)

// ParseGender accepts the supported categories; empty input means unknown.
func ParseGender(s string) (Gender, error) {
	g := Gender(strings.ToLower(strings.TrimSpace(s)))
	switch g {
	case GenderMale, GenderFemale, GenderOther, "":
		return g, nil
	default:
		return "", dErrors.Newf(dErrors.CodeValidation, "unsupported gender %q", s)
	}
}

// Employee is a company's employee record. Records are deactivated, never
// deleted, so historical comparisons stay reproducible.
type Employee struct {
	ID        id.EmployeeID `json:"id"`
	CompanyID id.CompanyID  `json:"company_id"`
	FullName  string        `json:"full_name"`
	Salary    *float64      `json:"salary"`
	Currency  string        `json:"currency"`
	Gender    Gender        `json:"gender"`
	JobFamily string        `json:"job_family"`
	JobLevel  string        `json:"job_level"`
	Active    bool          `json:"active"`
	CreatedAt time.Time     `json:"created_at"`
	UpdatedAt time.Time     `json:"updated_at"`
}

// GroupKey returns the pay group the employee belongs to.
func (e Employee) GroupKey() GroupKey {
	return GroupKey{CompanyID: e.CompanyID, JobFamily: e.JobFamily, JobLevel: e.JobLevel}
}

// MissingField names the first field required for statistics that is absent,
// or "" when the record is usable.
func (e Employee) MissingField() string {
	switch {
	case e.Salary == nil:
		return "salary"
	case *e.Salary <= 0:
		return "salary"
	case e.Gender == "":
		return "gender"
	default:
		return ""
	}
}

// Float returns a pointer to v.
func Float(v float64) *float64 {
	return &v
}
