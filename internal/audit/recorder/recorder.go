// Package recorder appends entries to the per-company audit hash chain.
//
// Appends for one company are serialized by a keyed mutex inside the process
// and by the store's unique (company_id, sequence) constraint across
// processes. An append that loses the store race is reported as a retryable
// concurrency conflict and never retried here: the caller retries with the
// same idempotency key, which makes the retry safe.
package recorder

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"parity/internal/audit/chain"
	"parity/internal/audit/metrics"
	"parity/internal/audit/models"
	id "parity/pkg/domain"
	dErrors "parity/pkg/domain-errors"
	"parity/pkg/platform/lease"
	"parity/pkg/platform/sentinel"
	"parity/pkg/platform/tx"
)

const maxIdempotencyKeyLength = 255

// Store is the append side of audit persistence.
type Store interface {
	Head(ctx context.Context, companyID id.CompanyID) (models.Head, error)
	// Insert must fail with sentinel.ErrConflict when the sequence or the
	// idempotency key is already taken for the company.
	Insert(ctx context.Context, entry *models.Entry) error
	FindByIdempotencyKey(ctx context.Context, companyID id.CompanyID, key string) (*models.Entry, error)
}

// Publisher receives every newly committed entry. Failures are logged and
// never undo the append.
type Publisher interface {
	Publish(ctx context.Context, entry models.Entry) error
}

// Recorder appends hash-chained audit entries.
type Recorder struct {
	store     Store
	locks     *lease.KeyedMutex
	cache     *expirable.LRU[string, models.Entry]
	publisher Publisher
	logger    *slog.Logger
	metrics   *metrics.Metrics
	tracer    trace.Tracer
	now       func() time.Time
}

// Option configures a Recorder.
type Option func(*Recorder)

func WithLogger(logger *slog.Logger) Option {
	return func(r *Recorder) { r.logger = logger }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Recorder) { r.metrics = m }
}

// WithPublisher streams committed entries to p.
func WithPublisher(p Publisher) Option {
	return func(r *Recorder) { r.publisher = p }
}

// WithIdempotencyCache fronts idempotency lookups with an expiring LRU of
// the given size. A non-positive size disables the cache.
func WithIdempotencyCache(size int, ttl time.Duration) Option {
	return func(r *Recorder) {
		if size <= 0 {
			r.cache = nil
			return
		}
		r.cache = expirable.NewLRU[string, models.Entry](size, nil, ttl)
	}
}

// WithClock overrides the entry timestamp source.
func WithClock(now func() time.Time) Option {
	return func(r *Recorder) { r.now = now }
}

func New(store Store, opts ...Option) (*Recorder, error) {
	if store == nil {
		return nil, errors.New("audit store is required")
	}
	r := &Recorder{
		store:  store,
		locks:  lease.NewKeyedMutex(),
		cache:  expirable.NewLRU[string, models.Entry](1024, nil, 10*time.Minute),
		tracer: otel.Tracer("parity/audit/recorder"),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Append records draft under idempotencyKey. Re-submitting the same logical
// action with the same key returns the stored entry instead of appending a
// second one; reusing the key for a different action is a conflict.
func (r *Recorder) Append(ctx context.Context, draft models.Draft, idempotencyKey string) (*models.Entry, error) {
	start := time.Now()
	defer r.metrics.ObserveAppend(start)

	ctx, span := r.tracer.Start(ctx, "Recorder.Append", trace.WithAttributes(
		attribute.String("company_id", draft.CompanyID.String()),
		attribute.String("action", string(draft.Action)),
	))
	defer span.End()

	entry, appended, err := r.append(ctx, draft, idempotencyKey)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(
		attribute.Int64("sequence", entry.Sequence),
		attribute.Bool("replayed", !appended),
	)
	if appended {
		r.publish(ctx, *entry)
	}
	return entry, nil
}

// append reports whether a new entry was written, as opposed to replayed.
func (r *Recorder) append(ctx context.Context, draft models.Draft, idempotencyKey string) (*models.Entry, bool, error) {
	idempotencyKey = strings.TrimSpace(idempotencyKey)
	if idempotencyKey == "" {
		return nil, false, dErrors.New(dErrors.CodeValidation, "idempotency key is required")
	}
	if len(idempotencyKey) > maxIdempotencyKeyLength {
		return nil, false, dErrors.New(dErrors.CodeValidation, "idempotency key is too long")
	}
	if err := draft.Validate(); err != nil {
		return nil, false, err
	}

	if existing, ok := r.cached(draft.CompanyID, idempotencyKey); ok {
		return r.replay(ctx, existing, draft)
	}

	unlock := r.locks.Lock(draft.CompanyID.String())
	defer unlock()

	existing, err := r.store.FindByIdempotencyKey(ctx, draft.CompanyID, idempotencyKey)
	switch {
	case err == nil:
		return r.replay(ctx, *existing, draft)
	case !errors.Is(err, sentinel.ErrNotFound):
		return nil, false, dErrors.Wrap(err, dErrors.CodeInternal, "failed to look up idempotency key")
	}

	head, err := r.store.Head(ctx, draft.CompanyID)
	if err != nil {
		return nil, false, dErrors.Wrap(err, dErrors.CodeInternal, "failed to read chain head")
	}
	prevHash := head.Hash
	if head.Sequence == 0 {
		prevHash = chain.GenesisHash
	}

	entry := models.Entry{
		ID:             id.EntryID(uuid.New()),
		CompanyID:      draft.CompanyID,
		Sequence:       head.Sequence + 1,
		Actor:          draft.Actor,
		Action:         draft.Action,
		EntityType:     draft.EntityType,
		EntityID:       draft.EntityID,
		EntityName:     draft.EntityName,
		OldValues:      draft.OldValues,
		NewValues:      draft.NewValues,
		Metadata:       draft.Metadata,
		IdempotencyKey: idempotencyKey,
		// PostgreSQL keeps microseconds; the hash must survive a round trip.
		CreatedAt: r.now().UTC().Truncate(time.Microsecond),
	}
	if err := chain.Seal(&entry, prevHash); err != nil {
		return nil, false, dErrors.Wrap(err, dErrors.CodeValidation, "audit values are not valid JSON")
	}

	if err := r.store.Insert(ctx, &entry); err != nil {
		if !errors.Is(err, sentinel.ErrConflict) {
			return nil, false, dErrors.Wrap(err, dErrors.CodeInternal, "failed to append audit entry")
		}
		// Another process may have committed the same key between our lookup
		// and insert.
		if existing, findErr := r.store.FindByIdempotencyKey(ctx, draft.CompanyID, idempotencyKey); findErr == nil {
			return r.replay(ctx, *existing, draft)
		}
		r.metrics.IncrementConflict()
		return nil, false, dErrors.Wrap(err, dErrors.CodeConcurrency, "audit chain head moved, retry with the same idempotency key")
	}

	r.remember(ctx, entry)
	r.metrics.IncrementAppended(string(entry.Action))

	out := entry.Clone()
	return &out, true, nil
}

func (r *Recorder) replay(ctx context.Context, existing models.Entry, draft models.Draft) (*models.Entry, bool, error) {
	if !existing.SameAction(draft) {
		return nil, false, dErrors.New(dErrors.CodeConflict, "idempotency key was already used for a different action")
	}
	r.remember(ctx, existing)
	r.metrics.IncrementReplay()
	out := existing.Clone()
	return &out, false, nil
}

func cacheKey(companyID id.CompanyID, key string) string {
	return companyID.String() + "/" + key
}

func (r *Recorder) cached(companyID id.CompanyID, key string) (models.Entry, bool) {
	if r.cache == nil {
		return models.Entry{}, false
	}
	return r.cache.Get(cacheKey(companyID, key))
}

// remember caches entries known to be committed. Inside a caller's
// transaction the entry may still be rolled back, so it is not cached.
func (r *Recorder) remember(ctx context.Context, entry models.Entry) {
	if r.cache == nil {
		return
	}
	if _, open := tx.From(ctx); open {
		return
	}
	r.cache.Add(cacheKey(entry.CompanyID, entry.IdempotencyKey), entry.Clone())
}

func (r *Recorder) publish(ctx context.Context, entry models.Entry) {
	if r.publisher == nil {
		return
	}
	if err := r.publisher.Publish(ctx, entry); err != nil {
		r.metrics.IncrementStreamFailure()
		if r.logger != nil {
			r.logger.WarnContext(ctx, "failed to publish audit entry",
				"company_id", entry.CompanyID,
				"sequence", entry.Sequence,
				"error", err,
			)
		}
	}
}
