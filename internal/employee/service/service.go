// Package service manages employee records. Every change is written together
// with its audit entry; records are deactivated, never deleted.
package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"parity/internal/access"
	auditmodels "parity/internal/audit/models"
	"parity/internal/audit/recorder"
	"parity/internal/payequity/models"
	id "parity/pkg/domain"
	dErrors "parity/pkg/domain-errors"
	"parity/pkg/platform/sentinel"
	"parity/pkg/platform/tx"
)

// EntityEmployee is the audit entity type of employee changes.
const EntityEmployee = "employee"

// Repository persists employee records.
type Repository interface {
	Create(ctx context.Context, e *models.Employee) error
	Update(ctx context.Context, e *models.Employee) error
	FindByID(ctx context.Context, companyID id.CompanyID, employeeID id.EmployeeID) (*models.Employee, error)
	ListByCompany(ctx context.Context, companyID id.CompanyID) ([]models.Employee, error)
}

// Authorizer decides whether an actor may use a capability on a resource.
type Authorizer interface {
	Authorize(actor access.Actor, capability access.Capability, resource access.Resource) error
}

// Auditor appends entries to the audit trail.
type Auditor interface {
	Append(ctx context.Context, draft auditmodels.Draft, idempotencyKey string) (*auditmodels.Entry, error)
}

// Service manages employees of the caller's company.
type Service struct {
	repo    Repository
	policy  Authorizer
	auditor Auditor
	tx      tx.Transactor
	logger  *slog.Logger
	now     func() time.Time
}

// Option configures a Service.
type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

// WithTransactor makes the record write and its audit entry one unit of work.
func WithTransactor(t tx.Transactor) Option {
	return func(s *Service) { s.tx = t }
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func New(repo Repository, policy Authorizer, auditor Auditor, opts ...Option) (*Service, error) {
	if repo == nil {
		return nil, errors.New("employee repository is required")
	}
	if policy == nil {
		return nil, errors.New("policy is required")
	}
	if auditor == nil {
		return nil, errors.New("auditor is required")
	}
	s := &Service{
		repo:    repo,
		policy:  policy,
		auditor: auditor,
		tx:      tx.Direct{},
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// List returns the company's employees, optionally including deactivated ones.
func (s *Service) List(ctx context.Context, actor access.Actor, companyID id.CompanyID, includeInactive bool) ([]models.Employee, error) {
	if err := s.policy.Authorize(actor, access.CapManageEmployees, access.Resource{CompanyID: companyID}); err != nil {
		return nil, err
	}
	all, err := s.repo.ListByCompany(ctx, companyID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list employees")
	}
	if includeInactive {
		return all, nil
	}
	active := make([]models.Employee, 0, len(all))
	for _, e := range all {
		if e.Active {
			active = append(active, e)
		}
	}
	return active, nil
}

// Create adds an employee. With an idempotency key the employee id is derived
// from it, so a retried request returns the record created the first time.
func (s *Service) Create(ctx context.Context, actor access.Actor, companyID id.CompanyID, in CreateInput, idempotencyKey string) (*models.Employee, error) {
	if err := s.policy.Authorize(actor, access.CapManageEmployees, access.Resource{CompanyID: companyID}); err != nil {
		return nil, err
	}
	in.Normalize()
	if err := in.Validate(); err != nil {
		return nil, err
	}
	gender, _ := models.ParseGender(string(in.Gender))

	key := strings.TrimSpace(idempotencyKey)
	employeeID := id.EmployeeID(uuid.New())
	if key != "" {
		employeeID = id.EmployeeID(uuid.NewSHA1(uuid.UUID(companyID), []byte("employee:"+key)))
	} else {
		key = uuid.NewString()
	}

	now := s.now().UTC()
	employee := &models.Employee{
		ID:        employeeID,
		CompanyID: companyID,
		FullName:  in.FullName,
		Salary:    in.Salary,
		Currency:  in.Currency,
		Gender:    gender,
		JobFamily: in.JobFamily,
		JobLevel:  in.JobLevel,
		Active:    true,
		CreatedAt: now,
		UpdatedAt: now,
	}

	var createErr error
	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		if createErr = s.repo.Create(ctx, employee); createErr != nil {
			return createErr
		}
		return s.record(ctx, actor, auditmodels.ActionCreate, nil, employee, key)
	})
	if errors.Is(createErr, sentinel.ErrConflict) {
		existing, findErr := s.repo.FindByID(ctx, companyID, employeeID)
		if findErr != nil {
			return nil, dErrors.Wrap(findErr, dErrors.CodeInternal, "failed to load existing employee")
		}
		// Without a transaction the record can outlive a failed append;
		// appending again replays the entry or fills the gap.
		if err := s.record(ctx, actor, auditmodels.ActionCreate, nil, existing, key); err != nil {
			return nil, s.translate(ctx, err, "failed to record employee creation")
		}
		return existing, nil
	}
	if err != nil {
		return nil, s.translate(ctx, err, "failed to create employee")
	}
	s.info(ctx, "employee created", companyID, employeeID)
	return employee, nil
}

// Update applies a partial update to an employee of the actor's company. An
// update that changes nothing writes nothing.
func (s *Service) Update(ctx context.Context, actor access.Actor, employeeID id.EmployeeID, in UpdateInput, idempotencyKey string) (*models.Employee, error) {
	companyID := actor.CompanyID
	if err := s.policy.Authorize(actor, access.CapManageEmployees, access.Resource{CompanyID: companyID}); err != nil {
		return nil, err
	}
	in.Normalize()
	if err := in.Validate(); err != nil {
		return nil, err
	}

	current, err := s.find(ctx, companyID, employeeID)
	if err != nil {
		return nil, err
	}
	before := *current
	updated := *current
	if !in.apply(&updated) {
		return current, nil
	}
	updated.UpdatedAt = s.now().UTC()

	if err := s.write(ctx, actor, auditmodels.ActionUpdate, &before, &updated, idempotencyKey); err != nil {
		return nil, err
	}
	s.info(ctx, "employee updated", companyID, employeeID)
	return &updated, nil
}

// Deactivate marks an employee inactive. Deactivating an inactive employee is
// a no-op.
func (s *Service) Deactivate(ctx context.Context, actor access.Actor, employeeID id.EmployeeID, idempotencyKey string) (*models.Employee, error) {
	companyID := actor.CompanyID
	if err := s.policy.Authorize(actor, access.CapManageEmployees, access.Resource{CompanyID: companyID}); err != nil {
		return nil, err
	}
	current, err := s.find(ctx, companyID, employeeID)
	if err != nil {
		return nil, err
	}
	if !current.Active {
		return current, nil
	}
	before := *current
	updated := *current
	updated.Active = false
	updated.UpdatedAt = s.now().UTC()

	if err := s.write(ctx, actor, auditmodels.ActionDelete, &before, &updated, idempotencyKey); err != nil {
		return nil, err
	}
	s.info(ctx, "employee deactivated", companyID, employeeID)
	return &updated, nil
}

func (s *Service) find(ctx context.Context, companyID id.CompanyID, employeeID id.EmployeeID) (*models.Employee, error) {
	e, err := s.repo.FindByID(ctx, companyID, employeeID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "employee not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load employee")
	}
	return e, nil
}

func (s *Service) write(ctx context.Context, actor access.Actor, action auditmodels.Action, before, after *models.Employee, key string) error {
	key = strings.TrimSpace(key)
	if key == "" {
		key = uuid.NewString()
	}
	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		if err := s.repo.Update(ctx, after); err != nil {
			return err
		}
		return s.record(ctx, actor, action, before, after, key)
	})
	if err != nil {
		return s.translate(ctx, err, "failed to update employee")
	}
	return nil
}

func (s *Service) record(ctx context.Context, actor access.Actor, action auditmodels.Action, before, after *models.Employee, key string) error {
	draft, err := recorder.DraftFor(ctx, actor, action, EntityEmployee, nil)
	if err != nil {
		return err
	}
	draft.CompanyID = after.CompanyID
	draft.EntityID = after.ID.String()
	draft.EntityName = after.FullName
	if before != nil {
		if draft.OldValues, err = auditmodels.Values(before); err != nil {
			return err
		}
	}
	if draft.NewValues, err = auditmodels.Values(after); err != nil {
		return err
	}
	_, err = s.auditor.Append(ctx, draft, key)
	return err
}

// translate keeps coded errors from the audit trail and wraps store errors.
func (s *Service) translate(ctx context.Context, err error, msg string) error {
	if errors.Is(err, sentinel.ErrNotFound) {
		return dErrors.New(dErrors.CodeNotFound, "employee not found")
	}
	if _, ok := dErrors.As(err); ok {
		return err
	}
	if s.logger != nil {
		s.logger.ErrorContext(ctx, msg, "error", err)
	}
	return dErrors.Wrap(err, dErrors.CodeInternal, msg)
}

func (s *Service) info(ctx context.Context, msg string, companyID id.CompanyID, employeeID id.EmployeeID) {
	if s.logger != nil {
		s.logger.InfoContext(ctx, msg, "company_id", companyID, "employee_id", employeeID)
	}
}
