package domain

import (
	"unicode/utf8"

	"github.com/google/uuid"

	dErrors "parity/pkg/domain-errors"
)

// Typed identifiers. Each wraps a UUID so that a CompanyID can never be passed
// where an EmployeeID is expected.
type (
	UserID     uuid.UUID
	CompanyID  uuid.UUID
	EmployeeID uuid.UUID
	EntryID    uuid.UUID
)

func (id UserID) String() string     { return uuid.UUID(id).String() }
func (id CompanyID) String() string  { return uuid.UUID(id).String() }
func (id EmployeeID) String() string { return uuid.UUID(id).String() }
func (id EntryID) String() string    { return uuid.UUID(id).String() }

func (id UserID) IsNil() bool     { return uuid.UUID(id) == uuid.Nil }
func (id CompanyID) IsNil() bool  { return uuid.UUID(id) == uuid.Nil }
func (id EmployeeID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }
func (id EntryID) IsNil() bool    { return uuid.UUID(id) == uuid.Nil }

// ParseUserID parses a user id at a trust boundary.
func ParseUserID(s string) (UserID, error) {
	u, err := parseUUID(s, "user_id")
	return UserID(u), err
}

// ParseCompanyID parses a company id at a trust boundary.
func ParseCompanyID(s string) (CompanyID, error) {
	u, err := parseUUID(s, "company_id")
	return CompanyID(u), err
}

// ParseEmployeeID parses an employee id at a trust boundary.
func ParseEmployeeID(s string) (EmployeeID, error) {
	u, err := parseUUID(s, "employee_id")
	return EmployeeID(u), err
}

// ParseEntryID parses an audit entry id at a trust boundary.
func ParseEntryID(s string) (EntryID, error) {
	u, err := parseUUID(s, "entry_id")
	return EntryID(u), err
}

// parseUUID rejects empty, malformed, non-UTF8 and nil UUIDs.
func parseUUID(s, field string) (uuid.UUID, error) {
	if s == "" {
		return uuid.Nil, dErrors.Newf(dErrors.CodeValidation, "%s is required", field)
	}
	if !utf8.ValidString(s) || len(s) > 36 {
		return uuid.Nil, dErrors.Newf(dErrors.CodeValidation, "%s must be a valid UUID", field)
	}
	u, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, dErrors.Newf(dErrors.CodeValidation, "%s must be a valid UUID", field)
	}
	if u == uuid.Nil {
		return uuid.Nil, dErrors.Newf(dErrors.CodeValidation, "%s must not be the nil UUID", field)
	}
	return u, nil
}

// Text marshalling keeps typed ids rendered as canonical UUID strings in JSON.

func (id UserID) MarshalText() ([]byte, error)     { return uuid.UUID(id).MarshalText() }
func (id CompanyID) MarshalText() ([]byte, error)  { return uuid.UUID(id).MarshalText() }
func (id EmployeeID) MarshalText() ([]byte, error) { return uuid.UUID(id).MarshalText() }
func (id EntryID) MarshalText() ([]byte, error)    { return uuid.UUID(id).MarshalText() }

func (id *UserID) UnmarshalText(b []byte) error     { return (*uuid.UUID)(id).UnmarshalText(b) }
func (id *CompanyID) UnmarshalText(b []byte) error  { return (*uuid.UUID)(id).UnmarshalText(b) }
func (id *EmployeeID) UnmarshalText(b []byte) error { return (*uuid.UUID)(id).UnmarshalText(b) }
func (id *EntryID) UnmarshalText(b []byte) error    { return (*uuid.UUID)(id).UnmarshalText(b) }
