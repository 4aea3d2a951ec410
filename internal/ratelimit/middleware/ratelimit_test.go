package middleware

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"parity/internal/access"
	"parity/internal/ratelimit/models"
	"parity/internal/ratelimit/store/bucket"
	id "parity/pkg/domain"
)

type failingStore struct{}

func (failingStore) Allow(context.Context, string, int, time.Duration) (*models.Result, error) {
	return nil, errors.New("redis: connection refused")
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func serve(h http.Handler, actor *access.Actor) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/assistant/ask", nil)
	if actor != nil {
		req = req.WithContext(access.WithActor(req.Context(), *actor))
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestPerUser(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })
	alice := &access.Actor{UserID: id.UserID(uuid.New()), Role: access.RoleEmployee, CompanyID: id.CompanyID(uuid.New())}
	bob := &access.Actor{UserID: id.UserID(uuid.New()), Role: access.RoleEmployee, CompanyID: alice.CompanyID}

	t.Run("limits each user separately", func(t *testing.T) {
		h := New(bucket.NewInMemoryBucketStore(), 2, time.Minute, discardLogger()).PerUser("assistant")(ok)

		rr := serve(h, alice)
		assert.Equal(t, http.StatusOK, rr.Code)
		assert.Equal(t, "2", rr.Header().Get("X-RateLimit-Limit"))
		assert.Equal(t, "1", rr.Header().Get("X-RateLimit-Remaining"))
		assert.Equal(t, http.StatusOK, serve(h, alice).Code)

		rr = serve(h, alice)
		require.Equal(t, http.StatusTooManyRequests, rr.Code)
		assert.NotEmpty(t, rr.Header().Get("Retry-After"))
		assert.Contains(t, rr.Body.String(), "rate_limit_exceeded")

		assert.Equal(t, http.StatusOK, serve(h, bob).Code)
	})

	t.Run("store failure lets the request through", func(t *testing.T) {
		h := New(failingStore{}, 1, time.Minute, discardLogger()).PerUser("assistant")(ok)
		assert.Equal(t, http.StatusOK, serve(h, alice).Code)
	})

	t.Run("unauthenticated requests pass to the handler", func(t *testing.T) {
		h := New(bucket.NewInMemoryBucketStore(), 1, time.Minute, discardLogger()).PerUser("assistant")(ok)
		assert.Equal(t, http.StatusOK, serve(h, nil).Code)
		assert.Equal(t, http.StatusOK, serve(h, nil).Code)
	})

	t.Run("zero limit disables", func(t *testing.T) {
		h := New(bucket.NewInMemoryBucketStore(), 0, time.Minute, discardLogger()).PerUser("assistant")(ok)
		for range 5 {
			assert.Equal(t, http.StatusOK, serve(h, alice).Code)
		}
	})
}
