package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"parity/internal/access"
	"parity/internal/payequity/models"
	"parity/internal/payequity/service"
	id "parity/pkg/domain"
	dErrors "parity/pkg/domain-errors"
	"parity/pkg/platform/httputil"
	"parity/pkg/requestcontext"
)

// HeaderIdempotencyKey names the audit entry of a recompute.
const HeaderIdempotencyKey = "Idempotency-Key"

// Service defines the pay-equity operations the handler needs.
type Service interface {
	Recompute(ctx context.Context, actor access.Actor, companyID id.CompanyID, idempotencyKey string) (*service.RecomputeResult, error)
	GetStats(ctx context.Context, actor access.Actor, companyID id.CompanyID) (*models.Snapshot, error)
	Compare(ctx context.Context, actor access.Actor, employeeID id.EmployeeID) (*models.EmployeeComparison, error)
}

// Handler serves the pay-equity endpoints.
type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Register mounts pay-equity endpoints on the router.
func (h *Handler) Register(r chi.Router) {
	r.Post("/companies/{companyID}/pay-groups/recompute", h.HandleRecompute)
	r.Get("/companies/{companyID}/pay-groups", h.HandleGetStats)
	r.Get("/employees/{employeeID}/comparison", h.HandleCompare)
}

// HandleRecompute handles POST /companies/{companyID}/pay-groups/recompute.
// A recompute already running for the company answers 409 with Retry-After.
func (h *Handler) HandleRecompute(w http.ResponseWriter, r *http.Request) {
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
	key := strings.TrimSpace(r.Header.Get(HeaderIdempotencyKey))

	result, err := h.service.Recompute(ctx, actor, companyID, key)
	if err != nil {
		h.logger.WarnContext(ctx, "recompute failed",
			"request_id", requestID,
			"company_id", companyID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, result)
}

// HandleGetStats handles GET /companies/{companyID}/pay-groups.
func (h *Handler) HandleGetStats(w http.ResponseWriter, r *http.Request) {
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
	snapshot, err := h.service.GetStats(ctx, actor, companyID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, snapshot)
}

// HandleCompare handles GET /employees/{employeeID}/comparison. The employee
// is looked up within the caller's company.
func (h *Handler) HandleCompare(w http.ResponseWriter, r *http.Request) {
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
	cmp, err := h.service.Compare(ctx, actor, employeeID)
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeComputation) {
			h.logger.WarnContext(ctx, "comparison not computable",
				"request_id", requestID,
				"employee_id", employeeID,
				"error", err,
			)
		}
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, cmp)
}

func actorFrom(w http.ResponseWriter, r *http.Request) (access.Actor, bool) {
	actor, ok := access.ActorFrom(r.Context())
	if !ok {
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "authentication required"))
		return access.Actor{}, false
	}
	return actor, true
}
