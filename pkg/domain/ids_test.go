package domain

import (
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "parity/pkg/domain-errors"
)

// TestParseUUID_Invariants validates the parsing invariant:
// IDs must be valid, non-empty, non-nil UUIDs.
func TestParseUUID_Invariants(t *testing.T) {
	t.Run("rejects empty string", func(t *testing.T) {
		_, err := ParseCompanyID("")
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
	})

	t.Run("rejects invalid format", func(t *testing.T) {
		_, err := ParseEmployeeID("not-a-uuid")
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
	})

	t.Run("rejects nil UUID", func(t *testing.T) {
		_, err := ParseUserID(uuid.Nil.String())
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
	})

	t.Run("rejects braced and urn forms", func(t *testing.T) {
		u := uuid.New()
		_, err := ParseEntryID("urn:uuid:" + u.String())
		require.Error(t, err)
		_, err = ParseEntryID("{" + u.String() + "}")
		require.Error(t, err)
	})

	t.Run("accepts valid UUID", func(t *testing.T) {
		valid := uuid.New()
		id, err := ParseCompanyID(valid.String())
		require.NoError(t, err)
		assert.Equal(t, CompanyID(valid), id)
		assert.False(t, id.IsNil())
	})
}

func TestTypeDistinction(t *testing.T) {
	companyID := CompanyID(uuid.New())
	employeeID := EmployeeID(uuid.New())

	// var _ CompanyID = employeeID  // compile error
	assert.NotEqual(t, uuid.UUID(companyID), uuid.UUID(employeeID))
}

func TestIDsMarshalAsStrings(t *testing.T) {
	u := uuid.New()
	payload := struct {
		Company  CompanyID  `json:"company_id"`
		Employee EmployeeID `json:"employee_id"`
	}{CompanyID(u), EmployeeID(u)}

	b, err := json.Marshal(payload)
	require.NoError(t, err)
	assert.JSONEq(t, `{"company_id":"`+u.String()+`","employee_id":"`+u.String()+`"}`, string(b))

	var decoded struct {
		Company CompanyID `json:"company_id"`
	}
	require.NoError(t, json.Unmarshal(b, &decoded))
	assert.Equal(t, CompanyID(u), decoded.Company)
}
