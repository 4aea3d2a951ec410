package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"parity/internal/access"
	"parity/internal/assistant"
	dErrors "parity/pkg/domain-errors"
	"parity/pkg/platform/httputil"
	"parity/pkg/requestcontext"
)

// Service answers assistant questions.
type Service interface {
	Ask(ctx context.Context, actor access.Actor, q assistant.Question, idempotencyKey string) (*assistant.Answer, error)
}

// Handler serves the assistant endpoint.
type Handler struct {
	service Service
	logger  *slog.Logger
	limit   func(http.Handler) http.Handler
}

type Option func(*Handler)

// WithRateLimit wraps the ask route, which costs an upstream generation call
// per request.
func WithRateLimit(mw func(http.Handler) http.Handler) Option {
	return func(h *Handler) { h.limit = mw }
}

func New(service Service, logger *slog.Logger, opts ...Option) *Handler {
	h := &Handler{service: service, logger: logger}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *Handler) Register(r chi.Router) {
	if h.limit != nil {
		r = r.With(h.limit)
	}
	r.Post("/assistant/ask", h.HandleAsk)
}

// HandleAsk handles POST /assistant/ask.
func (h *Handler) HandleAsk(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	actor, ok := access.ActorFrom(ctx)
	if !ok {
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "authentication required"))
		return
	}
	req, ok := httputil.DecodeAndPrepare[assistant.Question](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	answer, err := h.service.Ask(ctx, actor, *req, r.Header.Get("Idempotency-Key"))
	if err != nil {
		h.logger.WarnContext(ctx, "assistant request failed",
			"request_id", requestID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, answer)
}
