package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"parity/internal/access"
	"parity/internal/employee/service"
	"parity/internal/payequity/models"
	id "parity/pkg/domain"
	dErrors "parity/pkg/domain-errors"
	"parity/pkg/platform/httputil"
	"parity/pkg/requestcontext"
)

// HeaderIdempotencyKey makes retried mutations safe.
const HeaderIdempotencyKey = "Idempotency-Key"

// Service defines the employee operations the handler needs.
type Service interface {
	List(ctx context.Context, actor access.Actor, companyID id.CompanyID, includeInactive bool) ([]models.Employee, error)
	Create(ctx context.Context, actor access.Actor, companyID id.CompanyID, in service.CreateInput, idempotencyKey string) (*models.Employee, error)
	Update(ctx context.Context, actor access.Actor, employeeID id.EmployeeID, in service.UpdateInput, idempotencyKey string) (*models.Employee, error)
	Deactivate(ctx context.Context, actor access.Actor, employeeID id.EmployeeID, idempotencyKey string) (*models.Employee, error)
}

// Handler serves the employee management endpoints.
type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Register mounts employee endpoints on the router.
func (h *Handler) Register(r chi.Router) {
	r.Get("/companies/{companyID}/employees", h.HandleList)
	r.Post("/companies/{companyID}/employees", h.HandleCreate)
	r.Patch("/employees/{employeeID}", h.HandleUpdate)
	r.Delete("/employees/{employeeID}", h.HandleDeactivate)
}

// EmployeeList wraps list responses.
type EmployeeList struct {
	Employees []models.Employee `json:"employees"`
}

// HandleList handles GET /companies/{companyID}/employees.
func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	companyID, err := id.ParseCompanyID(chi.URLParam(r, "companyID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	includeInactive := false
	if raw := r.URL.Query().Get("include_inactive"); raw != "" {
		if includeInactive, err = strconv.ParseBool(raw); err != nil {
			httputil.WriteError(w, dErrors.New(dErrors.CodeValidation, "include_inactive must be a boolean"))
			return
		}
	}
	employees, err := h.service.List(ctx, actor, companyID, includeInactive)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, EmployeeList{Employees: employees})
}

// HandleCreate handles POST /companies/{companyID}/employees.
func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	companyID, err := id.ParseCompanyID(chi.URLParam(r, "companyID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	req, ok := httputil.DecodeAndPrepare[CreateEmployeeRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	employee, err := h.service.Create(ctx, actor, companyID, req.input(), r.Header.Get(HeaderIdempotencyKey))
	if err != nil {
		h.warn(ctx, "create employee failed", requestID, err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, employee)
}

// HandleUpdate handles PATCH /employees/{employeeID}.
func (h *Handler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	employeeID, err := id.ParseEmployeeID(chi.URLParam(r, "employeeID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	req, ok := httputil.DecodeAndPrepare[UpdateEmployeeRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	employee, err := h.service.Update(ctx, actor, employeeID, req.input(), r.Header.Get(HeaderIdempotencyKey))
	if err != nil {
		h.warn(ctx, "update employee failed", requestID, err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, employee)
}

// HandleDeactivate handles DELETE /employees/{employeeID}. The record is
// kept and marked inactive.
func (h *Handler) HandleDeactivate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	employeeID, err := id.ParseEmployeeID(chi.URLParam(r, "employeeID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	employee, err := h.service.Deactivate(ctx, actor, employeeID, r.Header.Get(HeaderIdempotencyKey))
	if err != nil {
		h.warn(ctx, "deactivate employee failed", requestID, err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, employee)
}

func (h *Handler) warn(ctx context.Context, msg, requestID string, err error) {
	h.logger.WarnContext(ctx, msg,
		"request_id", requestID,
		"error", err,
	)
}

func actorFrom(w http.ResponseWriter, r *http.Request) (access.Actor, bool) {
	actor, ok := access.ActorFrom(r.Context())
	if !ok {
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "authentication required"))
		return access.Actor{}, false
	}
	return actor, true
}
