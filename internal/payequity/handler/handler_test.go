package handler

//go:generate mockgen -source=handler.go -destination=mocks/mocks.go -package=mocks Service

import (
	"io"
	"log/slog"
	"net/http"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"parity/internal/access"
	"parity/internal/payequity/handler/mocks"
	"parity/internal/payequity/models"
	"parity/internal/payequity/service"
	id "parity/pkg/domain"
	dErrors "parity/pkg/domain-errors"
	"parity/pkg/platform/httputil"
	"parity/pkg/testutil"
)

type PayEquityHandlerSuite struct {
	suite.Suite
	ctrl      *gomock.Controller
	service   *mocks.MockService
	router    chi.Router
	companyID id.CompanyID
	actor     access.Actor
}

func TestPayEquityHandlerSuite(t *testing.T) {
	suite.Run(t, new(PayEquityHandlerSuite))
}

func (s *PayEquityHandlerSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.service = mocks.NewMockService(s.ctrl)
	s.companyID = id.CompanyID(uuid.New())
	s.actor = access.Actor{UserID: id.UserID(uuid.New()), Role: access.RoleHRManager, CompanyID: s.companyID}
	s.router = chi.NewRouter()
	New(s.service, slog.New(slog.NewTextHandler(io.Discard, nil))).Register(s.router)
}

func (s *PayEquityHandlerSuite) TearDownTest() {
	s.ctrl.Finish()
}

func (s *PayEquityHandlerSuite) recomputePath() string {
	return "/companies/" + s.companyID.String() + "/pay-groups/recompute"
}

func (s *PayEquityHandlerSuite) TestRecompute() {
	s.Run("passes the idempotency key", func() {
		s.service.EXPECT().Recompute(gomock.Any(), s.actor, s.companyID, "run-42").
			Return(&service.RecomputeResult{GroupsUpdated: 7}, nil)

		req := testutil.WithActor(testutil.NewRequest(s.T(), http.MethodPost, s.recomputePath()), s.actor)
		req.Header.Set(HeaderIdempotencyKey, " run-42 ")
		rr := testutil.DoRequest(s.router, req)

		testutil.AssertStatus(s.T(), rr, http.StatusOK)
		s.JSONEq(`{"groups_updated":7}`, rr.Body.String())
	})

	s.Run("recompute in progress is retryable", func() {
		s.service.EXPECT().Recompute(gomock.Any(), gomock.Any(), gomock.Any(), "").
			Return(nil, dErrors.New(dErrors.CodeConcurrency, "recompute already in progress for this company"))

		req := testutil.WithActor(testutil.NewRequest(s.T(), http.MethodPost, s.recomputePath()), s.actor)
		rr := testutil.DoRequest(s.router, req)

		testutil.AssertStatusAndError(s.T(), rr, http.StatusConflict, dErrors.CodeConcurrency)
		s.Equal(httputil.RetryAfterSeconds, rr.Header().Get("Retry-After"))
	})

	s.Run("unauthenticated", func() {
		rr := testutil.DoRequest(s.router, testutil.NewRequest(s.T(), http.MethodPost, s.recomputePath()))
		testutil.AssertStatusAndError(s.T(), rr, http.StatusUnauthorized, dErrors.CodeUnauthorized)
	})

	s.Run("bad company id", func() {
		req := testutil.WithActor(testutil.NewRequest(s.T(), http.MethodPost, "/companies/acme/pay-groups/recompute"), s.actor)
		rr := testutil.DoRequest(s.router, req)
		testutil.AssertStatusAndError(s.T(), rr, http.StatusBadRequest, dErrors.CodeValidation)
	})
}

func (s *PayEquityHandlerSuite) TestGetStatsHidesBenchmarks() {
	snapshot := &models.Snapshot{
		CompanyID: s.companyID,
		Groups: []models.PayGroupStats{{
			Key:           models.GroupKey{CompanyID: s.companyID, JobFamily: "engineering", JobLevel: "L1"},
			EmployeeCount: 3,
			Status:        models.StatusInsufficientData,
			Benchmark:     models.Benchmark{Average: 51234, Median: 50000},
		}},
	}
	s.service.EXPECT().GetStats(gomock.Any(), s.actor, s.companyID).Return(snapshot, nil)

	req := testutil.WithActor(testutil.NewRequest(s.T(), http.MethodGet, "/companies/"+s.companyID.String()+"/pay-groups"), s.actor)
	rr := testutil.DoRequest(s.router, req)

	testutil.AssertStatus(s.T(), rr, http.StatusOK)
	s.Contains(rr.Body.String(), `"insufficient_data"`)
	s.NotContains(rr.Body.String(), "51234")
	s.NotContains(rr.Body.String(), "average_salary")
}

func (s *PayEquityHandlerSuite) TestCompare() {
	employeeID := id.EmployeeID(uuid.New())
	path := "/employees/" + employeeID.String() + "/comparison"

	s.Run("ok", func() {
		s.service.EXPECT().Compare(gomock.Any(), s.actor, employeeID).Return(&models.EmployeeComparison{
			EmployeeID:              employeeID,
			EmployeeSalary:          58000,
			GroupAverage:            models.Float(60000),
			DeviationFromAvgPercent: -3.33,
			GroupSize:               10,
		}, nil)

		rr := testutil.DoRequest(s.router, testutil.WithActor(testutil.NewRequest(s.T(), http.MethodGet, path), s.actor))

		testutil.AssertStatus(s.T(), rr, http.StatusOK)
		got := testutil.UnmarshalResponse[models.EmployeeComparison](s.T(), rr)
		s.Equal(-3.33, got.DeviationFromAvgPercent)
		s.Equal(employeeID, got.EmployeeID)
	})

	s.Run("computation error maps to 422", func() {
		s.service.EXPECT().Compare(gomock.Any(), gomock.Any(), employeeID).
			Return(nil, dErrors.New(dErrors.CodeComputation, "group average is unavailable"))

		rr := testutil.DoRequest(s.router, testutil.WithActor(testutil.NewRequest(s.T(), http.MethodGet, path), s.actor))
		testutil.AssertStatusAndError(s.T(), rr, http.StatusUnprocessableEntity, dErrors.CodeComputation)
	})

	s.Run("forbidden", func() {
		s.service.EXPECT().Compare(gomock.Any(), gomock.Any(), employeeID).
			Return(nil, dErrors.New(dErrors.CodeForbidden, "read_comparison not permitted"))

		rr := testutil.DoRequest(s.router, testutil.WithActor(testutil.NewRequest(s.T(), http.MethodGet, path), s.actor))
		testutil.AssertStatusAndError(s.T(), rr, http.StatusForbidden, dErrors.CodeForbidden)
	})

	s.Run("malformed employee id", func() {
		rr := testutil.DoRequest(s.router, testutil.WithActor(testutil.NewRequest(s.T(), http.MethodGet, "/employees/42/comparison"), s.actor))
		testutil.AssertStatusAndError(s.T(), rr, http.StatusBadRequest, dErrors.CodeValidation)
	})
}
