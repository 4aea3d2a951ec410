package service

import (
	"math"
	"strings"
	"unicode/utf8"

	"parity/internal/payequity/models"
	dErrors "parity/pkg/domain-errors"
)

const (
	maxNameLength  = 200
	maxGroupLength = 100
)

// CreateInput carries the fields of a new employee record.
type CreateInput struct {
	FullName  string
	Salary    *float64
	Currency  string
	Gender    models.Gender
	JobFamily string
	JobLevel  string
}

// Normalize trims and canonicalizes the input.
func (in *CreateInput) Normalize() {
	in.FullName = strings.TrimSpace(in.FullName)
	in.Currency = strings.ToUpper(strings.TrimSpace(in.Currency))
	in.JobFamily = strings.TrimSpace(in.JobFamily)
	in.JobLevel = strings.TrimSpace(in.JobLevel)
}

func (in *CreateInput) Validate() error {
	if err := validateName(in.FullName); err != nil {
		return err
	}
	if err := validateSalary(in.Salary); err != nil {
		return err
	}
	if err := validateCurrency(in.Currency); err != nil {
		return err
	}
	if _, err := models.ParseGender(string(in.Gender)); err != nil {
		return err
	}
	if err := validateGroupField("job_family", in.JobFamily); err != nil {
		return err
	}
	return validateGroupField("job_level", in.JobLevel)
}

// UpdateInput carries a partial update; nil fields are left unchanged.
type UpdateInput struct {
	FullName  *string
	Salary    *float64
	Currency  *string
	Gender    *models.Gender
	JobFamily *string
	JobLevel  *string
}

func (in *UpdateInput) Normalize() {
	trim := func(p *string) {
		if p != nil {
			*p = strings.TrimSpace(*p)
		}
	}
	trim(in.FullName)
	trim(in.JobFamily)
	trim(in.JobLevel)
	if in.Currency != nil {
		*in.Currency = strings.ToUpper(strings.TrimSpace(*in.Currency))
	}
}

func (in *UpdateInput) Validate() error {
	if in.FullName == nil && in.Salary == nil && in.Currency == nil && in.Gender == nil &&
		in.JobFamily == nil && in.JobLevel == nil {
		return dErrors.New(dErrors.CodeValidation, "at least one field must be provided")
	}
	if in.FullName != nil {
		if err := validateName(*in.FullName); err != nil {
			return err
		}
	}
	if err := validateSalary(in.Salary); err != nil {
		return err
	}
	if in.Currency != nil {
		if err := validateCurrency(*in.Currency); err != nil {
			return err
		}
	}
	if in.Gender != nil {
		if _, err := models.ParseGender(string(*in.Gender)); err != nil {
			return err
		}
	}
	if in.JobFamily != nil {
		if err := validateGroupField("job_family", *in.JobFamily); err != nil {
			return err
		}
	}
	if in.JobLevel != nil {
		if err := validateGroupField("job_level", *in.JobLevel); err != nil {
			return err
		}
	}
	return nil
}

// apply copies the provided fields onto e and reports whether anything changed.
func (in *UpdateInput) apply(e *models.Employee) bool {
	changed := false
	setString := func(dst *string, src *string) {
		if src != nil && *dst != *src {
			*dst = *src
			changed = true
		}
	}
	setString(&e.FullName, in.FullName)
	setString(&e.Currency, in.Currency)
	setString(&e.JobFamily, in.JobFamily)
	setString(&e.JobLevel, in.JobLevel)
	if in.Gender != nil {
		g, _ := models.ParseGender(string(*in.Gender))
		if e.Gender != g {
			e.Gender = g
			changed = true
		}
	}
	if in.Salary != nil && (e.Salary == nil || *e.Salary != *in.Salary) {
		e.Salary = models.Float(*in.Salary)
		changed = true
	}
	return changed
}

func validateName(name string) error {
	if name == "" {
		return dErrors.New(dErrors.CodeValidation, "full_name is required")
	}
	if utf8.RuneCountInString(name) > maxNameLength {
		return dErrors.Newf(dErrors.CodeValidation, "full_name must be at most %d characters", maxNameLength)
	}
	return nil
}

// validateSalary accepts a missing salary; the record is then left out of
// statistics until one is set.
func validateSalary(salary *float64) error {
	if salary == nil {
		return nil
	}
	if math.IsNaN(*salary) || math.IsInf(*salary, 0) || *salary <= 0 {
		return dErrors.New(dErrors.CodeValidation, "salary must be a positive amount")
	}
	return nil
}

func validateCurrency(currency string) error {
	if currency == "" {
		return nil
	}
	if len(currency) != 3 {
		return dErrors.New(dErrors.CodeValidation, "currency must be a three-letter ISO 4217 code")
	}
	for _, r := range currency {
		if r < 'A' || r > 'Z' {
			return dErrors.New(dErrors.CodeValidation, "currency must be a three-letter ISO 4217 code")
		}
	}
	return nil
}

func validateGroupField(field, value string) error {
	if value == "" {
		return dErrors.Newf(dErrors.CodeValidation, "%s is required", field)
	}
	if utf8.RuneCountInString(value) > maxGroupLength {
		return dErrors.Newf(dErrors.CodeValidation, "%s must be at most %d characters", field, maxGroupLength)
	}
	return nil
}
