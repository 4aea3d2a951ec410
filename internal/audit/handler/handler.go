package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"parity/internal/access"
	"parity/internal/audit/chain"
	"parity/internal/audit/models"
	"parity/internal/audit/query"
	id "parity/pkg/domain"
	dErrors "parity/pkg/domain-errors"
	"parity/pkg/platform/httputil"
	strutil "parity/pkg/platform/strings"
	"parity/pkg/requestcontext"
)

// Integrity headers set on exports whose chain verification failed.
const (
	HeaderIntegrity       = "X-Audit-Integrity"
	HeaderIntegrityBroken = "X-Audit-Integrity-Broken"
)

// Service defines the audit read operations the handler needs.
type Service interface {
	Query(ctx context.Context, actor access.Actor, companyID id.CompanyID, filter models.Filter, page models.Page) (*query.Result, error)
	Export(ctx context.Context, actor access.Actor, companyID id.CompanyID, format query.Format, filter models.Filter) (*query.Export, error)
	Verify(ctx context.Context, actor access.Actor, companyID id.CompanyID) (*chain.Report, error)
}

// Handler serves the audit log endpoints.
type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Register mounts audit endpoints on the router.
func (h *Handler) Register(r chi.Router) {
	r.Get("/companies/{companyID}/audit-logs", h.HandleQuery)
	r.Get("/companies/{companyID}/audit-logs/export", h.HandleExport)
	r.Get("/companies/{companyID}/audit-logs/verify", h.HandleVerify)
}

// HandleQuery handles GET /companies/{companyID}/audit-logs.
func (h *Handler) HandleQuery(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	actor, companyID, ok := h.prepare(w, r)
	if !ok {
		return
	}
	filter, err := parseFilter(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	page, err := parsePage(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	result, err := h.service.Query(ctx, actor, companyID, filter, page)
	if err != nil {
		h.logger.WarnContext(ctx, "audit query failed",
			"request_id", requestID,
			"company_id", companyID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, result)
}

// HandleExport handles GET /companies/{companyID}/audit-logs/export. A broken
// chain does not block the download: the body is sent with integrity headers.
func (h *Handler) HandleExport(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	actor, companyID, ok := h.prepare(w, r)
	if !ok {
		return
	}
	format, err := query.ParseFormat(r.URL.Query().Get("format"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	filter, err := parseFilter(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	export, err := h.service.Export(ctx, actor, companyID, format, filter)
	if err != nil && !(export != nil && dErrors.HasCode(err, dErrors.CodeIntegrity)) {
		h.logger.WarnContext(ctx, "audit export failed",
			"request_id", requestID,
			"company_id", companyID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	w.Header().Set("Content-Type", export.ContentType)
	w.Header().Set("Content-Disposition", `attachment; filename="`+export.Filename+`"`)
	if err != nil {
		h.logger.ErrorContext(ctx, "exporting audit log with broken chain",
			"request_id", requestID,
			"company_id", companyID,
			"broken", export.BrokenSequences(),
		)
		w.Header().Set(HeaderIntegrity, "broken")
		w.Header().Set(HeaderIntegrityBroken, export.BrokenSequences())
	} else {
		w.Header().Set(HeaderIntegrity, "verified")
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(export.Body)
}

// HandleVerify handles GET /companies/{companyID}/audit-logs/verify.
func (h *Handler) HandleVerify(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, companyID, ok := h.prepare(w, r)
	if !ok {
		return
	}
	report, err := h.service.Verify(ctx, actor, companyID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, report)
}

func (h *Handler) prepare(w http.ResponseWriter, r *http.Request) (access.Actor, id.CompanyID, bool) {
	actor, ok := access.ActorFrom(r.Context())
	if !ok {
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "authentication required"))
		return access.Actor{}, id.CompanyID{}, false
	}
	companyID, err := id.ParseCompanyID(chi.URLParam(r, "companyID"))
	if err != nil {
		httputil.WriteError(w, err)
		return access.Actor{}, id.CompanyID{}, false
	}
	return actor, companyID, true
}

func parseFilter(r *http.Request) (models.Filter, error) {
	q := r.URL.Query()
	var f models.Filter
	var actions []string
	for _, raw := range q["action"] {
		actions = append(actions, strings.Split(raw, ",")...)
	}
	for _, part := range strutil.DedupeAndTrimLower(actions) {
		a, err := models.ParseAction(part)
		if err != nil {
			return models.Filter{}, err
		}
		f.Actions = append(f.Actions, a)
	}
	f.EntityType = strings.TrimSpace(q.Get("entity_type"))
	f.UserEmail = strings.TrimSpace(q.Get("user_email"))
	var err error
	if f.From, err = parseTime(q.Get("from"), "from"); err != nil {
		return models.Filter{}, err
	}
	if f.To, err = parseTime(q.Get("to"), "to"); err != nil {
		return models.Filter{}, err
	}
	return f, nil
}

func parseTime(raw, field string) (time.Time, error) {
	if raw == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, dErrors.Newf(dErrors.CodeValidation, "%s must be an RFC 3339 timestamp", field)
	}
	return t, nil
}

func parsePage(r *http.Request) (models.Page, error) {
	q := r.URL.Query()
	offset, err := parseInt(q.Get("offset"), "offset")
	if err != nil {
		return models.Page{}, err
	}
	limit, err := parseInt(q.Get("limit"), "limit")
	if err != nil {
		return models.Page{}, err
	}
	return models.Page{Offset: offset, Limit: limit}, nil
}

func parseInt(raw, field string) (int, error) {
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		var numErr *strconv.NumError
		if errors.As(err, &numErr) && errors.Is(numErr.Err, strconv.ErrRange) {
			return 0, dErrors.Newf(dErrors.CodeValidation, "%s is out of range", field)
		}
		return 0, dErrors.Newf(dErrors.CodeValidation, "%s must be an integer", field)
	}
	return n, nil
}
