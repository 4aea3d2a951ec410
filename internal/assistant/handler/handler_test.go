package handler

//go:generate mockgen -source=handler.go -destination=mocks/mocks.go -package=mocks Service

import (
	"io"
	"log/slog"
	"net/http"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"parity/internal/access"
	"parity/internal/assistant"
	"parity/internal/assistant/handler/mocks"
	ratelimit "parity/internal/ratelimit/middleware"
	"parity/internal/ratelimit/store/bucket"
	id "parity/pkg/domain"
	dErrors "parity/pkg/domain-errors"
	"parity/pkg/testutil"
)

type AssistantHandlerSuite struct {
	suite.Suite
	ctrl    *gomock.Controller
	service *mocks.MockService
	router  chi.Router
	actor   access.Actor
}

func TestAssistantHandlerSuite(t *testing.T) {
	suite.Run(t, new(AssistantHandlerSuite))
}

func (s *AssistantHandlerSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.service = mocks.NewMockService(s.ctrl)
	s.actor = access.Actor{
		UserID:     id.UserID(uuid.New()),
		Role:       access.RoleEmployee,
		CompanyID:  id.CompanyID(uuid.New()),
		EmployeeID: id.EmployeeID(uuid.New()),
	}
	s.router = chi.NewRouter()
	New(s.service, slog.New(slog.NewTextHandler(io.Discard, nil))).Register(s.router)
}

func (s *AssistantHandlerSuite) TearDownTest() {
	s.ctrl.Finish()
}

func (s *AssistantHandlerSuite) TestAsk() {
	s.service.EXPECT().Ask(gomock.Any(), s.actor, gomock.Any(), "").
		DoAndReturn(func(_, _ any, q assistant.Question, _ string) (*assistant.Answer, error) {
			s.Equal("Am I paid fairly?", q.Question)
			s.Require().Len(q.History, 1)
			return &assistant.Answer{Answer: "Yes.", ContextKeys: []string{"salary"}}, nil
		})

	req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/assistant/ask", map[string]any{
		"question": "Am I paid fairly?",
		"history":  []map[string]string{{"role": "user", "content": "hello"}},
	})
	rr := testutil.DoRequest(s.router, testutil.WithActor(req, s.actor))

	testutil.AssertStatus(s.T(), rr, http.StatusOK)
	s.JSONEq(`{"answer":"Yes.","context_keys":["salary"]}`, rr.Body.String())
}

func (s *AssistantHandlerSuite) TestAskValidation() {
	req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/assistant/ask", map[string]any{"question": ""})
	rr := testutil.DoRequest(s.router, testutil.WithActor(req, s.actor))
	testutil.AssertStatusAndError(s.T(), rr, http.StatusBadRequest, dErrors.CodeValidation)
}

func (s *AssistantHandlerSuite) TestAskUpstreamUnavailable() {
	s.service.EXPECT().Ask(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
		Return(nil, dErrors.New(dErrors.CodeUpstreamUnavailable, "assistant is unavailable"))

	req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/assistant/ask", map[string]any{"question": "hi"})
	rr := testutil.DoRequest(s.router, testutil.WithActor(req, s.actor))

	testutil.AssertStatusAndError(s.T(), rr, http.StatusServiceUnavailable, dErrors.CodeUpstreamUnavailable)
	s.NotEmpty(rr.Header().Get("Retry-After"))
}

func (s *AssistantHandlerSuite) TestAskUnauthenticated() {
	req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/assistant/ask", map[string]any{"question": "hi"})
	rr := testutil.DoRequest(s.router, req)
	testutil.AssertStatusAndError(s.T(), rr, http.StatusUnauthorized, dErrors.CodeUnauthorized)
}

func (s *AssistantHandlerSuite) TestAskRateLimited() {
	router := chi.NewRouter()
	limiter := ratelimit.New(bucket.NewInMemoryBucketStore(), 1, time.Minute, slog.New(slog.NewTextHandler(io.Discard, nil)))
	New(s.service, slog.New(slog.NewTextHandler(io.Discard, nil)), WithRateLimit(limiter.PerUser("assistant"))).Register(router)

	s.service.EXPECT().Ask(gomock.Any(), s.actor, gomock.Any(), gomock.Any()).
		Return(&assistant.Answer{Answer: "ok", ContextKeys: []string{}}, nil).Times(1)

	req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/assistant/ask", map[string]any{"question": "hi"})
	rr := testutil.DoRequest(router, testutil.WithActor(req, s.actor))
	testutil.AssertStatus(s.T(), rr, http.StatusOK)

	req = testutil.NewJSONRequest(s.T(), http.MethodPost, "/assistant/ask", map[string]any{"question": "again"})
	rr = testutil.DoRequest(router, testutil.WithActor(req, s.actor))
	testutil.AssertStatus(s.T(), rr, http.StatusTooManyRequests)
}
