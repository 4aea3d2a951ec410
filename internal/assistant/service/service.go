// Package service answers assistant questions. It gathers the caller's pay
// context, forwards it with the question to the generator and records that
// an employee asked about their pay.
package service

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"parity/internal/access"
	"parity/internal/assistant"
	auditmodels "parity/internal/audit/models"
	"parity/internal/audit/recorder"
	"parity/internal/payequity/models"
	id "parity/pkg/domain"
	dErrors "parity/pkg/domain-errors"
)

// EntityPayComparison is the audit entity type of request_info entries.
const EntityPayComparison = "pay_comparison"

const gatherTimeout = 5 * time.Second

// Context keys handed to the generator.
const (
	KeySalary                = "salary"
	KeyGroupAverage          = "group_average"
	KeyGroupMedian           = "group_median"
	KeyDeviationFromAverage  = "deviation_from_avg_percent"
	KeyDeviationFromMedian   = "deviation_from_median_percent"
	KeyGroupSize             = "group_size"
	KeyJobFamily             = "job_family"
	KeyJobLevel              = "job_level"
	KeyLowConfidence         = "low_confidence"
	KeyComparisonUnavailable = "comparison_unavailable"
	KeyTotalGroups           = "total_groups"
	KeyRedGroups             = "red_groups"
	KeyStatsUnavailable      = "stats_unavailable"
)

// PayEquity is the read side of the pay-equity service. It authorizes the
// actor itself.
type PayEquity interface {
	Compare(ctx context.Context, actor access.Actor, employeeID id.EmployeeID) (*models.EmployeeComparison, error)
	GetStats(ctx context.Context, actor access.Actor, companyID id.CompanyID) (*models.Snapshot, error)
}

// Generator produces the answer text.
type Generator interface {
	Generate(ctx context.Context, prompt assistant.Prompt) (string, error)
}

// Authorizer decides whether an actor may use a capability on a resource.
type Authorizer interface {
	Authorize(actor access.Actor, capability access.Capability, resource access.Resource) error
}

// Auditor appends entries to the audit trail.
type Auditor interface {
	Append(ctx context.Context, draft auditmodels.Draft, idempotencyKey string) (*auditmodels.Entry, error)
}

// Service answers assistant questions.
type Service struct {
	payEquity PayEquity
	generator Generator
	policy    Authorizer
	auditor   Auditor
	logger    *slog.Logger
	tracer    trace.Tracer
}

// Option configures a Service.
type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

// WithAuditor records a request_info entry whenever an employee asks about
// their pay.
func WithAuditor(a Auditor) Option {
	return func(s *Service) { s.auditor = a }
}

func New(payEquity PayEquity, generator Generator, policy Authorizer, opts ...Option) (*Service, error) {
	if payEquity == nil {
		return nil, errors.New("pay equity reader is required")
	}
	if generator == nil {
		return nil, errors.New("generator is required")
	}
	if policy == nil {
		return nil, errors.New("policy is required")
	}
	s := &Service{
		payEquity: payEquity,
		generator: generator,
		policy:    policy,
		tracer:    otel.Tracer("parity/assistant"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Ask answers q for actor. Employees always get their own comparison;
// privileged callers get company aggregates and, when they name an employee,
// that employee's comparison.
func (s *Service) Ask(ctx context.Context, actor access.Actor, q assistant.Question, idempotencyKey string) (*assistant.Answer, error) {
	ctx, span := s.tracer.Start(ctx, "Assistant.Ask", trace.WithAttributes(
		attribute.String("role", string(actor.Role)),
	))
	defer span.End()

	companyID := actor.CompanyID
	if !q.CompanyID.IsNil() {
		companyID = q.CompanyID
	}
	if err := s.policy.Authorize(actor, access.CapAskAssistant, access.Resource{CompanyID: companyID}); err != nil {
		return nil, err
	}
	q.Normalize()
	if err := q.Validate(); err != nil {
		return nil, err
	}

	employeeID := q.EmployeeID
	if actor.Role == access.RoleEmployee {
		if !employeeID.IsNil() && employeeID != actor.EmployeeID {
			return nil, dErrors.New(dErrors.CodeForbidden, "employees may only ask about their own pay")
		}
		employeeID = actor.EmployeeID
		if employeeID.IsNil() {
			return nil, dErrors.New(dErrors.CodeForbidden, "caller is not linked to an employee record")
		}
	}

	payCtx, err := s.gather(ctx, actor, companyID, employeeID)
	if err != nil {
		return nil, err
	}
	keys := sortedKeys(payCtx)
	span.SetAttributes(attribute.StringSlice("context_keys", keys))

	if actor.Role == access.RoleEmployee {
		if err := s.recordRequest(ctx, actor, employeeID, keys, idempotencyKey); err != nil {
			return nil, err
		}
	}

	history := q.History
	if history == nil {
		history = []assistant.Message{}
	}
	answer, err := s.generator.Generate(ctx, assistant.Prompt{
		Question: q.Question,
		Context:  payCtx,
		History:  history,
	})
	if err != nil {
		span.RecordError(err)
		if s.logger != nil {
			s.logger.ErrorContext(ctx, "assistant generation failed",
				"company_id", companyID,
				"error", err,
			)
		}
		if _, ok := dErrors.As(err); ok {
			return nil, err
		}
		return nil, dErrors.Wrap(err, dErrors.CodeUpstreamUnavailable, "assistant is unavailable")
	}
	return &assistant.Answer{Answer: answer, ContextKeys: keys}, nil
}

// gather collects the comparison and company aggregates concurrently. Data
// that is missing or not computable is reported as unavailable; denials and
// infrastructure failures abort the request.
func (s *Service) gather(ctx context.Context, actor access.Actor, companyID id.CompanyID, employeeID id.EmployeeID) (map[string]any, error) {
	ctx, cancel := context.WithTimeout(ctx, gatherTimeout)
	defer cancel()
	g, ctx := errgroup.WithContext(ctx)

	var (
		comparison map[string]any
		aggregates map[string]any
	)
	if !employeeID.IsNil() {
		g.Go(func() error {
			cmp, err := s.payEquity.Compare(ctx, actor, employeeID)
			if err != nil {
				if degradable(err) {
					comparison = map[string]any{KeyComparisonUnavailable: true}
					return nil
				}
				return err
			}
			comparison = comparisonContext(cmp)
			return nil
		})
	}
	if actor.IsPrivileged() {
		g.Go(func() error {
			snap, err := s.payEquity.GetStats(ctx, actor, companyID)
			if err != nil {
				if degradable(err) {
					aggregates = map[string]any{KeyStatsUnavailable: true}
					return nil
				}
				return err
			}
			aggregates = map[string]any{
				KeyTotalGroups: len(snap.Groups),
				KeyRedGroups:   snap.CountByStatus(models.StatusRed),
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make(map[string]any, len(comparison)+len(aggregates))
	for k, v := range comparison {
		out[k] = v
	}
	for k, v := range aggregates {
		out[k] = v
	}
	return out, nil
}

func comparisonContext(cmp *models.EmployeeComparison) map[string]any {
	out := map[string]any{
		KeySalary:               cmp.EmployeeSalary,
		KeyDeviationFromAverage: cmp.DeviationFromAvgPercent,
		KeyDeviationFromMedian:  cmp.DeviationFromMedianPercent,
		KeyGroupSize:            cmp.GroupSize,
		KeyJobFamily:            cmp.Group.JobFamily,
		KeyJobLevel:             cmp.Group.JobLevel,
		KeyLowConfidence:        cmp.LowConfidence,
	}
	if cmp.GroupAverage != nil {
		out[KeyGroupAverage] = *cmp.GroupAverage
	}
	if cmp.GroupMedian != nil {
		out[KeyGroupMedian] = *cmp.GroupMedian
	}
	return out
}

func (s *Service) recordRequest(ctx context.Context, actor access.Actor, employeeID id.EmployeeID, keys []string, key string) error {
	if s.auditor == nil {
		return nil
	}
	draft, err := recorder.DraftFor(ctx, actor, auditmodels.ActionRequestInfo, EntityPayComparison, map[string]any{
		"context_keys": keys,
	})
	if err != nil {
		return err
	}
	draft.EntityID = employeeID.String()
	key = strings.TrimSpace(key)
	if key == "" {
		key = uuid.NewString()
	}
	_, err = s.auditor.Append(ctx, draft, key)
	return err
}

func degradable(err error) bool {
	return dErrors.HasCode(err, dErrors.CodeNotFound) || dErrors.HasCode(err, dErrors.CodeComputation)
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
