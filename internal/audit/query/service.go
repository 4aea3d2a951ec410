// Package query serves filtered reads, verification and exports of the audit
// trail. Reads never take the append lock; they observe committed entries.
package query

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"parity/internal/access"
	"parity/internal/audit/chain"
	"parity/internal/audit/metrics"
	"parity/internal/audit/models"
	"parity/internal/audit/recorder"
	id "parity/pkg/domain"
	dErrors "parity/pkg/domain-errors"
)

// Reader is the read side of audit persistence.
type Reader interface {
	ListByCompany(ctx context.Context, companyID id.CompanyID) ([]models.Entry, error)
	Query(ctx context.Context, companyID id.CompanyID, filter models.Filter, page models.Page) ([]models.Entry, int, error)
}

// Authorizer decides whether an actor may use a capability on a resource.
type Authorizer interface {
	Authorize(actor access.Actor, capability access.Capability, resource access.Resource) error
}

// Appender records the export itself in the audit trail.
type Appender interface {
	Append(ctx context.Context, draft models.Draft, idempotencyKey string) (*models.Entry, error)
}

// Service answers audit queries and exports.
type Service struct {
	reader   Reader
	policy   Authorizer
	recorder Appender
	logger   *slog.Logger
	metrics  *metrics.Metrics
	tracer   trace.Tracer
}

// Option configures a Service.
type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithRecorder makes every export append an export entry to the trail.
func WithRecorder(r Appender) Option {
	return func(s *Service) { s.recorder = r }
}

func New(reader Reader, policy Authorizer, opts ...Option) (*Service, error) {
	if reader == nil {
		return nil, errors.New("audit reader is required")
	}
	if policy == nil {
		return nil, errors.New("policy is required")
	}
	s := &Service{
		reader: reader,
		policy: policy,
		tracer: otel.Tracer("parity/audit/query"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Result is one page of a query.
type Result struct {
	Entries []models.Entry `json:"entries"`
	Total   int            `json:"total"`
	Offset  int            `json:"offset"`
	Limit   int            `json:"limit"`
}

// Query returns one page of entries matching filter, newest first.
func (s *Service) Query(ctx context.Context, actor access.Actor, companyID id.CompanyID, filter models.Filter, page models.Page) (*Result, error) {
	if err := s.policy.Authorize(actor, access.CapReadAudit, access.Resource{CompanyID: companyID}); err != nil {
		return nil, err
	}
	if err := filter.Validate(); err != nil {
		return nil, err
	}
	page, err := page.Normalize()
	if err != nil {
		return nil, err
	}
	entries, total, err := s.reader.Query(ctx, companyID, filter, page)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to query audit log")
	}
	return &Result{Entries: entries, Total: total, Offset: page.Offset, Limit: page.Limit}, nil
}

// Verify recomputes the whole company chain.
func (s *Service) Verify(ctx context.Context, actor access.Actor, companyID id.CompanyID) (*chain.Report, error) {
	if err := s.policy.Authorize(actor, access.CapReadAudit, access.Resource{CompanyID: companyID}); err != nil {
		return nil, err
	}
	entries, err := s.reader.ListByCompany(ctx, companyID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load audit chain")
	}
	report := chain.Verify(companyID, entries)
	s.observeReport(ctx, report)
	return &report, nil
}

// Export renders the entries matching filter. When any exported entry fails
// chain verification, Export returns both the rendered export and an
// integrity error: the download proceeds and the caller must surface the
// error alongside it.
func (s *Service) Export(ctx context.Context, actor access.Actor, companyID id.CompanyID, format Format, filter models.Filter) (*Export, error) {
	ctx, span := s.tracer.Start(ctx, "AuditQuery.Export", trace.WithAttributes(
		attribute.String("company_id", companyID.String()),
		attribute.String("format", string(format)),
	))
	defer span.End()

	if err := s.policy.Authorize(actor, access.CapExportAudit, access.Resource{CompanyID: companyID}); err != nil {
		return nil, err
	}
	if !format.IsValid() {
		return nil, dErrors.Newf(dErrors.CodeValidation, "unsupported export format %q", format)
	}
	if err := filter.Validate(); err != nil {
		return nil, err
	}

	all, err := s.reader.ListByCompany(ctx, companyID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load audit chain")
	}
	report := chain.Verify(companyID, all)
	s.observeReport(ctx, report)

	broken := report.BrokenSet()
	selected := make([]models.Entry, 0, len(all))
	var brokenSelected []int64
	for _, e := range all {
		if !filter.Matches(e) {
			continue
		}
		selected = append(selected, e)
		if _, ok := broken[e.Sequence]; ok {
			brokenSelected = append(brokenSelected, e.Sequence)
		}
	}
	sort.Slice(selected, func(i, j int) bool { return models.Less(selected[i], selected[j]) })

	body, err := render(format, selected)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to render audit export")
	}
	export := &Export{
		Format:      format,
		ContentType: format.ContentType(),
		Filename:    fmt.Sprintf("audit-log-%s.%s", companyID, format),
		Body:        body,
		Rows:        len(selected),
		Broken:      brokenSelected,
		Report:      report,
	}
	span.SetAttributes(attribute.Int("rows", export.Rows), attribute.Int("broken", len(brokenSelected)))
	s.metrics.IncrementExport(string(format))

	if err := s.recordExport(ctx, actor, companyID, export, filter); err != nil {
		return nil, err
	}

	if len(brokenSelected) > 0 {
		return export, dErrors.Newf(dErrors.CodeIntegrity,
			"audit chain verification failed for %d exported entries: sequences %s",
			len(brokenSelected), joinSequences(brokenSelected))
	}
	return export, nil
}

// recordExport appends the export entry. It fails closed: an export that
// cannot be recorded is not handed out.
func (s *Service) recordExport(ctx context.Context, actor access.Actor, companyID id.CompanyID, export *Export, filter models.Filter) error {
	if s.recorder == nil {
		return nil
	}
	integrity := "ok"
	if len(export.Broken) > 0 {
		integrity = "broken"
	}
	draft, err := recorder.DraftFor(ctx, actor, models.ActionExport, recorder.EntityAuditLog, map[string]any{
		"format":    string(export.Format),
		"rows":      export.Rows,
		"integrity": integrity,
		"filter":    describeFilter(filter),
	})
	if err != nil {
		return err
	}
	draft.CompanyID = companyID
	draft.EntityID = companyID.String()
	draft.EntityName = export.Filename
	// every export is a distinct action, so it gets a fresh key
	_, err = s.recorder.Append(ctx, draft, uuid.NewString())
	return err
}

func (s *Service) observeReport(ctx context.Context, report chain.Report) {
	if report.Valid {
		return
	}
	s.metrics.IncrementIntegrityFailure()
	if s.logger != nil {
		s.logger.ErrorContext(ctx, "audit chain verification failed",
			"company_id", report.CompanyID,
			"broken", len(report.Broken),
			"first_broken_sequence", report.Broken[0].Sequence,
		)
	}
}

func describeFilter(f models.Filter) map[string]any {
	out := map[string]any{}
	if len(f.Actions) > 0 {
		actions := make([]string, len(f.Actions))
		for i, a := range f.Actions {
			actions[i] = string(a)
		}
		out["actions"] = actions
	}
	if f.EntityType != "" {
		out["entity_type"] = f.EntityType
	}
	if f.UserEmail != "" {
		out["user_email"] = f.UserEmail
	}
	if !f.From.IsZero() {
		out["from"] = f.From
	}
	if !f.To.IsZero() {
		out["to"] = f.To
	}
	return out
}

func joinSequences(seqs []int64) string {
	parts := make([]string, len(seqs))
	for i, seq := range seqs {
		parts[i] = fmt.Sprint(seq)
	}
	return strings.Join(parts, ",")
}
