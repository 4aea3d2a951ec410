package query

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"parity/internal/access"
	"parity/internal/audit/models"
	"parity/internal/audit/recorder"
	"parity/internal/audit/store/memory"
	id "parity/pkg/domain"
	dErrors "parity/pkg/domain-errors"
)

type QueryServiceSuite struct {
	suite.Suite
	ctx       context.Context
	store     *memory.Store
	recorder  *recorder.Recorder
	service   *Service
	companyID id.CompanyID
	admin     access.Actor
	hr        access.Actor
	clock     time.Time
}

func TestQueryServiceSuite(t *testing.T) {
	suite.Run(t, new(QueryServiceSuite))
}

func (s *QueryServiceSuite) SetupTest() {
	s.ctx = context.Background()
	s.store = memory.New()
	s.companyID = id.CompanyID(uuid.New())
	s.clock = time.Date(2026, 4, 1, 8, 0, 0, 0, time.UTC)
	s.admin = access.Actor{UserID: id.UserID(uuid.New()), Email: "Admin@Acme.test", Role: access.RoleAdmin, CompanyID: s.companyID}
	s.hr = access.Actor{UserID: id.UserID(uuid.New()), Email: "hr@acme.test", Role: access.RoleHRManager, CompanyID: s.companyID}

	var err error
	s.recorder, err = recorder.New(s.store, recorder.WithClock(func() time.Time {
		s.clock = s.clock.Add(time.Minute)
		return s.clock
	}))
	s.Require().NoError(err)
	s.service, err = New(s.store, access.NewEvaluator(), WithRecorder(s.recorder))
	s.Require().NoError(err)
}

// seed appends n employee updates alternating between the hr and admin actor.
func (s *QueryServiceSuite) seed(n int) []models.Entry {
	entries := make([]models.Entry, 0, n)
	for i := 1; i <= n; i++ {
		actor := s.hr
		if i%2 == 0 {
			actor = s.admin
		}
		action := models.ActionUpdate
		if i%3 == 0 {
			action = models.ActionCreate
		}
		draft, err := recorder.DraftFor(s.ctx, actor, action, "employee", nil)
		s.Require().NoError(err)
		draft.EntityID = fmt.Sprintf("emp-%d", i)
		draft.EntityName = fmt.Sprintf("Employee %d", i)
		draft.OldValues = json.RawMessage(fmt.Sprintf(`{"salary": %d}`, 50000+i))
		draft.NewValues = json.RawMessage(fmt.Sprintf(`{"salary": %d}`, 52000+i))
		entry, err := s.recorder.Append(s.ctx, draft, fmt.Sprintf("seed-%d", i))
		s.Require().NoError(err)
		entries = append(entries, *entry)
	}
	return entries
}

func (s *QueryServiceSuite) TestNew() {
	_, err := New(nil, access.NewEvaluator())
	s.Require().Error(err)
	_, err = New(s.store, nil)
	s.Require().Error(err)
}

func (s *QueryServiceSuite) TestQuery_Authorization() {
	s.Run("employee is forbidden", func() {
		employee := access.Actor{UserID: id.UserID(uuid.New()), Role: access.RoleEmployee, CompanyID: s.companyID}
		_, err := s.service.Query(s.ctx, employee, s.companyID, models.Filter{}, models.Page{})
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
	})

	s.Run("other company is forbidden", func() {
		_, err := s.service.Query(s.ctx, s.admin, id.CompanyID(uuid.New()), models.Filter{}, models.Page{})
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
	})

	s.Run("anonymous caller is unauthenticated", func() {
		_, err := s.service.Query(s.ctx, access.Actor{}, s.companyID, models.Filter{}, models.Page{})
		s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))
	})
}

func (s *QueryServiceSuite) TestQuery_NewestFirstWithTotal() {
	s.seed(7)

	result, err := s.service.Query(s.ctx, s.hr, s.companyID, models.Filter{}, models.Page{Limit: 3})
	s.Require().NoError(err)

	s.Equal(7, result.Total)
	s.Require().Len(result.Entries, 3)
	s.Equal(int64(7), result.Entries[0].Sequence)
	s.Equal(int64(5), result.Entries[2].Sequence)
}

func (s *QueryServiceSuite) TestQuery_DefaultsAndBounds() {
	s.seed(2)

	result, err := s.service.Query(s.ctx, s.hr, s.companyID, models.Filter{}, models.Page{})
	s.Require().NoError(err)
	s.Equal(models.DefaultLimit, result.Limit)

	result, err = s.service.Query(s.ctx, s.hr, s.companyID, models.Filter{}, models.Page{Limit: 10_000})
	s.Require().NoError(err)
	s.Equal(models.MaxLimit, result.Limit)

	_, err = s.service.Query(s.ctx, s.hr, s.companyID, models.Filter{}, models.Page{Offset: -1})
	s.True(dErrors.HasCode(err, dErrors.CodeValidation))

	result, err = s.service.Query(s.ctx, s.hr, s.companyID, models.Filter{}, models.Page{Offset: 10})
	s.Require().NoError(err)
	s.Empty(result.Entries)
	s.Equal(2, result.Total)
}

func (s *QueryServiceSuite) TestQuery_Filters() {
	s.seed(9)

	s.Run("action", func() {
		result, err := s.service.Query(s.ctx, s.hr, s.companyID,
			models.Filter{Actions: []models.Action{models.ActionCreate}}, models.Page{})
		s.Require().NoError(err)
		s.Equal(3, result.Total)
		for _, e := range result.Entries {
			s.Equal(models.ActionCreate, e.Action)
		}
	})

	s.Run("user email substring is case-insensitive", func() {
		result, err := s.service.Query(s.ctx, s.hr, s.companyID, models.Filter{UserEmail: "admin@"}, models.Page{})
		s.Require().NoError(err)
		s.Equal(4, result.Total)
	})

	s.Run("created_at range is half open", func() {
		from := time.Date(2026, 4, 1, 8, 3, 0, 0, time.UTC)
		to := time.Date(2026, 4, 1, 8, 6, 0, 0, time.UTC)
		result, err := s.service.Query(s.ctx, s.hr, s.companyID, models.Filter{From: from, To: to}, models.Page{})
		s.Require().NoError(err)
		s.Equal(3, result.Total)
		s.Equal(int64(5), result.Entries[0].Sequence)
		s.Equal(int64(3), result.Entries[2].Sequence)
	})

	s.Run("inverted range is rejected", func() {
		_, err := s.service.Query(s.ctx, s.hr, s.companyID,
			models.Filter{From: s.clock, To: s.clock.Add(-time.Hour)}, models.Page{})
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})

	s.Run("entity type", func() {
		result, err := s.service.Query(s.ctx, s.hr, s.companyID, models.Filter{EntityType: "pay_group"}, models.Page{})
		s.Require().NoError(err)
		s.Zero(result.Total)
	})
}

func (s *QueryServiceSuite) TestQuery_TiesAreBrokenByID() {
	fixed := time.Date(2026, 4, 2, 0, 0, 0, 0, time.UTC)
	rec, err := recorder.New(s.store, recorder.WithClock(func() time.Time { return fixed }))
	s.Require().NoError(err)
	for i := 0; i < 10; i++ {
		draft, err := recorder.DraftFor(s.ctx, s.hr, models.ActionView, "pay_group", nil)
		s.Require().NoError(err)
		_, err = rec.Append(s.ctx, draft, fmt.Sprintf("tie-%d", i))
		s.Require().NoError(err)
	}

	seen := map[id.EntryID]bool{}
	var previous *models.Entry
	for offset := 0; offset < 10; offset += 3 {
		result, err := s.service.Query(s.ctx, s.hr, s.companyID, models.Filter{}, models.Page{Offset: offset, Limit: 3})
		s.Require().NoError(err)
		for _, e := range result.Entries {
			s.False(seen[e.ID], "entry returned twice across pages")
			seen[e.ID] = true
			if previous != nil {
				s.True(models.Less(*previous, e))
			}
			e := e
			previous = &e
		}
	}
	s.Len(seen, 10)
}

func (s *QueryServiceSuite) TestExport_Authorization() {
	s.seed(1)
	_, err := s.service.Export(s.ctx, s.hr, s.companyID, FormatCSV, models.Filter{})
	s.True(dErrors.HasCode(err, dErrors.CodeForbidden))

	_, err = s.service.Export(s.ctx, s.admin, s.companyID, Format("xml"), models.Filter{})
	s.True(dErrors.HasCode(err, dErrors.CodeValidation))
}

func (s *QueryServiceSuite) TestExport_CSVColumns() {
	seeded := s.seed(3)

	export, err := s.service.Export(s.ctx, s.admin, s.companyID, FormatCSV, models.Filter{})
	s.Require().NoError(err)
	s.Equal("text/csv; charset=utf-8", export.ContentType)
	s.Equal(3, export.Rows)

	rows, err := csv.NewReader(bytes.NewReader(export.Body)).ReadAll()
	s.Require().NoError(err)
	s.Require().Len(rows, 4)
	s.Equal([]string{"Date", "User", "Role", "Action", "Entity Type", "Entity Name", "Hash"}, rows[0])

	newest := seeded[2]
	s.Equal([]string{
		newest.CreatedAt.Format(time.RFC3339),
		newest.Actor.Email,
		newest.Actor.Role,
		string(newest.Action),
		newest.EntityType,
		newest.EntityName,
		newest.RecordHash,
	}, rows[1])
}

func (s *QueryServiceSuite) TestExport_JSONCarriesFullEntries() {
	s.seed(2)

	export, err := s.service.Export(s.ctx, s.admin, s.companyID, FormatJSON, models.Filter{})
	s.Require().NoError(err)

	var entries []models.Entry
	s.Require().NoError(json.Unmarshal(export.Body, &entries))
	s.Require().Len(entries, 2)
	s.JSONEq(`{"salary": 50002}`, string(entries[0].OldValues))
	s.NotEmpty(entries[0].PrevHash)
}

func (s *QueryServiceSuite) TestExport_IsRecordedInTheTrail() {
	s.seed(2)

	_, err := s.service.Export(s.ctx, s.admin, s.companyID, FormatCSV, models.Filter{})
	s.Require().NoError(err)

	result, err := s.service.Query(s.ctx, s.admin, s.companyID,
		models.Filter{Actions: []models.Action{models.ActionExport}}, models.Page{})
	s.Require().NoError(err)
	s.Require().Equal(1, result.Total)
	exported := result.Entries[0]
	s.Equal(recorder.EntityAuditLog, exported.EntityType)
	s.Equal(s.admin.UserID, exported.Actor.UserID)

	var meta map[string]any
	s.Require().NoError(json.Unmarshal(exported.Metadata, &meta))
	s.Equal("csv", meta["format"])
	s.Equal("ok", meta["integrity"])
}

func (s *QueryServiceSuite) TestExport_TamperedEntryFlagsItAndEverythingAfter() {
	seeded := s.seed(10)
	tampered := seeded[4]
	tampered.OldValues = json.RawMessage(`{"salary": 1}`)
	s.Require().True(s.store.Overwrite(tampered))

	export, err := s.service.Export(s.ctx, s.admin, s.companyID, FormatCSV, models.Filter{})

	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeIntegrity))
	s.Require().NotNil(export, "the export must still be produced")
	s.Equal(10, export.Rows)
	s.Equal([]int64{5, 6, 7, 8, 9, 10}, export.Broken)
	s.Equal("5,6,7,8,9,10", export.BrokenSequences())
	s.False(export.Report.Valid)

	rows, csvErr := csv.NewReader(bytes.NewReader(export.Body)).ReadAll()
	s.Require().NoError(csvErr)
	s.Len(rows, 11)
}

func (s *QueryServiceSuite) TestExport_FilteredExportOnlyReportsEmittedEntries() {
	seeded := s.seed(6)
	tampered := seeded[4]
	tampered.NewValues = json.RawMessage(`{"salary": 0}`)
	s.Require().True(s.store.Overwrite(tampered))

	before := seeded[3].CreatedAt.Add(time.Second)
	export, err := s.service.Export(s.ctx, s.admin, s.companyID, FormatJSON, models.Filter{To: before})
	s.Require().NoError(err)
	s.Equal(4, export.Rows)
	s.Empty(export.Broken)
	s.False(export.Report.Valid)
}

func (s *QueryServiceSuite) TestVerify() {
	seeded := s.seed(4)

	report, err := s.service.Verify(s.ctx, s.hr, s.companyID)
	s.Require().NoError(err)
	s.True(report.Valid)
	s.Equal(4, report.Checked)

	tampered := seeded[1]
	tampered.EntityName = "rewritten"
	s.Require().True(s.store.Overwrite(tampered))

	report, err = s.service.Verify(s.ctx, s.hr, s.companyID)
	s.Require().NoError(err)
	s.False(report.Valid)
	s.Equal([]int64{2, 3, 4}, report.BrokenSequences())
}
