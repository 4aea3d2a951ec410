package handler

import (
	"parity/internal/employee/service"
	"parity/internal/payequity/models"
	dErrors "parity/pkg/domain-errors"
)

// CreateEmployeeRequest is the body of POST /companies/{companyID}/employees.
type CreateEmployeeRequest struct {
	FullName  string   `json:"full_name"`
	Salary    *float64 `json:"salary"`
	Currency  string   `json:"currency"`
	Gender    string   `json:"gender"`
	JobFamily string   `json:"job_family"`
	JobLevel  string   `json:"job_level"`
}

// Validate implements httputil.Validatable. Field rules live in the service;
// the handler only checks the body is present.
func (r *CreateEmployeeRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	in := r.input()
	in.Normalize()
	return in.Validate()
}

func (r *CreateEmployeeRequest) input() service.CreateInput {
	return service.CreateInput{
		FullName:  r.FullName,
		Salary:    r.Salary,
		Currency:  r.Currency,
		Gender:    models.Gender(r.Gender),
		JobFamily: r.JobFamily,
		JobLevel:  r.JobLevel,
	}
}

// UpdateEmployeeRequest is the body of PATCH /employees/{employeeID}. Absent
// fields are left unchanged.
type UpdateEmployeeRequest struct {
	FullName  *string  `json:"full_name"`
	Salary    *float64 `json:"salary"`
	Currency  *string  `json:"currency"`
	Gender    *string  `json:"gender"`
	JobFamily *string  `json:"job_family"`
	JobLevel  *string  `json:"job_level"`
}

func (r *UpdateEmployeeRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	in := r.input()
	in.Normalize()
	return in.Validate()
}

// input copies the request so normalization never aliases the request fields.
func (r *UpdateEmployeeRequest) input() service.UpdateInput {
	clone := func(p *string) *string {
		if p == nil {
			return nil
		}
		v := *p
		return &v
	}
	in := service.UpdateInput{
		FullName:  clone(r.FullName),
		Salary:    r.Salary,
		Currency:  clone(r.Currency),
		JobFamily: clone(r.JobFamily),
		JobLevel:  clone(r.JobLevel),
	}
	if r.Gender != nil {
		g := models.Gender(*r.Gender)
		in.Gender = &g
	}
	return in
}
