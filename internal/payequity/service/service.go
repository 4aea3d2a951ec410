// Package service orchestrates pay-equity recomputes and reads.
//
// A recompute runs under a per-company lease so at most one is in flight;
// the computed snapshot replaces the previous one wholesale. Reads never take
// the lease and observe the last committed snapshot.
package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"parity/internal/access"
	auditmodels "parity/internal/audit/models"
	"parity/internal/audit/recorder"
	"parity/internal/payequity/aggregate"
	"parity/internal/payequity/compare"
	"parity/internal/payequity/metrics"
	"parity/internal/payequity/models"
	id "parity/pkg/domain"
	dErrors "parity/pkg/domain-errors"
	"parity/pkg/platform/lease"
	"parity/pkg/platform/sentinel"
)

// EntityPayGroups is the audit entity type of recompute entries.
const EntityPayGroups = "pay_groups"

// DefaultLeaseTTL bounds how long a crashed holder can block recomputes when
// the lease is distributed.
const DefaultLeaseTTL = 2 * time.Minute

// EmployeeReader is the read side of the employee repository.
type EmployeeReader interface {
	FindByID(ctx context.Context, companyID id.CompanyID, employeeID id.EmployeeID) (*models.Employee, error)
	ListActiveByCompany(ctx context.Context, companyID id.CompanyID) ([]models.Employee, error)
}

// SnapshotStore holds the latest snapshot per company.
type SnapshotStore interface {
	Get(ctx context.Context, companyID id.CompanyID) (*models.Snapshot, error)
	Replace(ctx context.Context, snapshot *models.Snapshot) error
}

// Authorizer decides whether an actor may use a capability on a resource.
type Authorizer interface {
	Authorize(actor access.Actor, capability access.Capability, resource access.Resource) error
}

// Auditor appends entries to the audit trail.
type Auditor interface {
	Append(ctx context.Context, draft auditmodels.Draft, idempotencyKey string) (*auditmodels.Entry, error)
}

// Service runs recomputes and serves group statistics and comparisons.
type Service struct {
	employees  EmployeeReader
	snapshots  SnapshotStore
	policy     Authorizer
	aggregator *aggregate.Aggregator
	comparer   *compare.Engine
	lease      lease.Lease
	leaseTTL   time.Duration
	auditor    Auditor
	logger     *slog.Logger
	metrics    *metrics.Metrics
	tracer     trace.Tracer
	now        func() time.Time
}

// Option configures a Service.
type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithLease replaces the in-process recompute lease, typically with a Redis
// lease shared by every replica.
func WithLease(l lease.Lease, ttl time.Duration) Option {
	return func(s *Service) {
		s.lease = l
		if ttl > 0 {
			s.leaseTTL = ttl
		}
	}
}

// WithAuditor records every recompute in the audit trail.
func WithAuditor(a Auditor) Option {
	return func(s *Service) { s.auditor = a }
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func New(employees EmployeeReader, snapshots SnapshotStore, policy Authorizer, aggregator *aggregate.Aggregator, opts ...Option) (*Service, error) {
	if employees == nil {
		return nil, errors.New("employee reader is required")
	}
	if snapshots == nil {
		return nil, errors.New("snapshot store is required")
	}
	if policy == nil {
		return nil, errors.New("policy is required")
	}
	if aggregator == nil {
		return nil, errors.New("aggregator is required")
	}
	s := &Service{
		employees:  employees,
		snapshots:  snapshots,
		policy:     policy,
		aggregator: aggregator,
		comparer:   compare.New(),
		lease:      lease.NewLocal(),
		leaseTTL:   DefaultLeaseTTL,
		tracer:     otel.Tracer("parity/payequity/service"),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// RecomputeResult reports the outcome of a recompute.
type RecomputeResult struct {
	GroupsUpdated int `json:"groups_updated"`
}

// Recompute rebuilds the company's pay group statistics and swaps in the new
// snapshot. A concurrent recompute for the same company is rejected with a
// retryable CodeConcurrency error; nothing is queued.
//
// The idempotency key identifies the audit entry. A retry with the same key
// after a failed audit append recomputes identical statistics and completes
// the entry without duplicating it.
func (s *Service) Recompute(ctx context.Context, actor access.Actor, companyID id.CompanyID, idempotencyKey string) (*RecomputeResult, error) {
	ctx, span := s.tracer.Start(ctx, "PayEquity.Recompute", trace.WithAttributes(
		attribute.String("company_id", companyID.String()),
	))
	defer span.End()
	start := time.Now()

	if err := s.policy.Authorize(actor, access.CapRecompute, access.Resource{CompanyID: companyID}); err != nil {
		return nil, err
	}

	release, err := s.lease.TryAcquire(ctx, leaseKey(companyID), s.leaseTTL)
	if err != nil {
		if errors.Is(err, sentinel.ErrLeaseHeld) {
			s.metrics.IncrementRejected()
			span.SetAttributes(attribute.Bool("rejected", true))
			return nil, dErrors.New(dErrors.CodeConcurrency, "recompute already in progress for this company")
		}
		s.fail(span, err)
		return nil, dErrors.Wrap(err, dErrors.CodeUpstreamUnavailable, "failed to acquire recompute lease")
	}
	defer release()

	previous, err := s.snapshots.Get(ctx, companyID)
	if err != nil && !errors.Is(err, sentinel.ErrNotFound) {
		s.fail(span, err)
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load current snapshot")
	}

	employees, err := s.employees.ListActiveByCompany(ctx, companyID)
	if err != nil {
		s.fail(span, err)
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load employees")
	}

	result := s.aggregator.Recompute(ctx, companyID, employees)
	for _, ex := range result.Exclusions {
		s.metrics.IncrementExcluded(ex.Reason)
	}

	snapshot := &models.Snapshot{
		CompanyID:  companyID,
		Groups:     result.Groups,
		ComputedAt: s.now().UTC(),
	}
	if err := s.snapshots.Replace(ctx, snapshot); err != nil {
		s.fail(span, err)
		s.metrics.IncrementRecompute("failed")
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to store snapshot")
	}

	span.SetAttributes(
		attribute.Int("employees", len(employees)),
		attribute.Int("excluded", len(result.Exclusions)),
		attribute.Int("groups", len(result.Groups)),
	)
	s.metrics.IncrementRecompute("ok")
	s.metrics.ObserveRecompute(start)
	s.metrics.SetGroups(statusCounts(snapshot))

	if s.logger != nil {
		s.logger.InfoContext(ctx, "pay groups recomputed",
			"company_id", companyID,
			"groups", len(result.Groups),
			"excluded", len(result.Exclusions),
			"red", snapshot.CountByStatus(models.StatusRed),
		)
	}

	if err := s.recordRecompute(ctx, actor, previous, snapshot, len(result.Exclusions), idempotencyKey); err != nil {
		s.fail(span, err)
		if s.logger != nil {
			s.logger.ErrorContext(ctx, "recompute applied but audit entry failed",
				"company_id", companyID,
				"error", err,
			)
		}
		return nil, err
	}
	return &RecomputeResult{GroupsUpdated: len(result.Groups)}, nil
}

func (s *Service) recordRecompute(ctx context.Context, actor access.Actor, previous, current *models.Snapshot, excluded int, key string) error {
	if s.auditor == nil {
		return nil
	}
	draft, err := recorder.DraftFor(ctx, actor, auditmodels.ActionUpdate, EntityPayGroups, map[string]any{
		"excluded_employees": excluded,
	})
	if err != nil {
		return err
	}
	draft.CompanyID = current.CompanyID
	draft.EntityID = current.CompanyID.String()
	draft.EntityName = "pay group statistics"
	if previous != nil {
		if draft.OldValues, err = auditmodels.Values(summarize(previous)); err != nil {
			return err
		}
	}
	if draft.NewValues, err = auditmodels.Values(summarize(current)); err != nil {
		return err
	}
	if key == "" {
		key = uuid.NewString()
	}
	_, err = s.auditor.Append(ctx, draft, key)
	return err
}

// GetStats returns the company's latest snapshot.
func (s *Service) GetStats(ctx context.Context, actor access.Actor, companyID id.CompanyID) (*models.Snapshot, error) {
	if err := s.policy.Authorize(actor, access.CapReadGroupStats, access.Resource{CompanyID: companyID}); err != nil {
		return nil, err
	}
	snapshot, err := s.snapshots.Get(ctx, companyID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "pay group statistics have not been computed for this company")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load snapshot")
	}
	return snapshot, nil
}

// Compare positions an employee of the actor's company against their pay
// group. Employees may only compare themselves.
func (s *Service) Compare(ctx context.Context, actor access.Actor, employeeID id.EmployeeID) (*models.EmployeeComparison, error) {
	companyID := actor.CompanyID
	if err := s.policy.Authorize(actor, access.CapReadComparison, access.Resource{CompanyID: companyID, EmployeeID: employeeID}); err != nil {
		return nil, err
	}

	employee, err := s.employees.FindByID(ctx, companyID, employeeID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "employee not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load employee")
	}
	if !employee.Active {
		return nil, dErrors.New(dErrors.CodeNotFound, "employee is not active")
	}

	snapshot, err := s.snapshots.Get(ctx, companyID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "pay group statistics have not been computed for this company")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load snapshot")
	}

	cmp, err := s.comparer.Compare(*employee, *snapshot)
	if err != nil {
		if s.logger != nil && dErrors.HasCode(err, dErrors.CodeComputation) {
			s.logger.WarnContext(ctx, "employee comparison not computable",
				"company_id", companyID,
				"employee_id", employeeID,
				"error", err,
			)
		}
		return nil, err
	}
	s.metrics.IncrementComparison(cmp.LowConfidence)
	return cmp, nil
}

func (s *Service) fail(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

func leaseKey(companyID id.CompanyID) string {
	return "recompute:" + companyID.String()
}

func statusCounts(snapshot *models.Snapshot) map[string]int {
	counts := map[string]int{
		string(models.StatusInsufficientData): 0,
		string(models.StatusGreen):            0,
		string(models.StatusYellow):           0,
		string(models.StatusRed):              0,
	}
	for _, g := range snapshot.Groups {
		counts[string(g.Status)]++
	}
	return counts
}

// summarize is the audit view of a snapshot: counts only, never salaries.
func summarize(snapshot *models.Snapshot) map[string]any {
	out := map[string]any{
		"groups":      len(snapshot.Groups),
		"computed_at": snapshot.ComputedAt.UTC().Format(time.RFC3339Nano),
	}
	for status, n := range statusCounts(snapshot) {
		out[status] = n
	}
	return out
}
