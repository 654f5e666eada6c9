package middleware

import (
	"bytes"
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/noah-isme/obe-api/internal/service"
	appErrors "github.com/noah-isme/obe-api/pkg/errors"
	"github.com/noah-isme/obe-api/pkg/response"
)

// IdempotencyHeader carries the client supplied key of a write request.
const IdempotencyHeader = "Idempotency-Key"

// ReplayedHeader marks a response served from the idempotency store.
const ReplayedHeader = "Idempotent-Replayed"

const maxIdempotencyKeyLen = 128

// IdempotencyStore persists write responses for replay.
type IdempotencyStore interface {
	Enabled() bool
	Lookup(ctx context.Context, key string) (*service.StoredResponse, bool, error)
	Reserve(ctx context.Context, key string) (bool, error)
	Store(ctx context.Context, key string, resp service.StoredResponse) error
	Release(ctx context.Context, key string) error
}

type bodyRecorder struct {
	gin.ResponseWriter
	body *bytes.Buffer
}

func (w *bodyRecorder) Write(b []byte) (int, error) {
	w.body.Write(b)
	return w.ResponseWriter.Write(b)
}

func (w *bodyRecorder) WriteString(s string) (int, error) {
	w.body.WriteString(s)
	return w.ResponseWriter.WriteString(s)
}

// Idempotency replays the stored response of a completed write carrying the
// same Idempotency-Key and rejects a retry while the first attempt is still
// running. Requests without the header pass through. Server errors release
// the key so the client can retry.
func Idempotency(store IdempotencyStore, logger *zap.Logger) gin.HandlerFunc {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(c *gin.Context) {
		raw := strings.TrimSpace(c.GetHeader(IdempotencyHeader))
		if raw == "" || store == nil || !store.Enabled() {
			c.Next()
			return
		}
		if len(raw) > maxIdempotencyKeyLen {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "idempotency key too long"))
			c.Abort()
			return
		}

		key := idempotencyKey(c, raw)
		ctx := c.Request.Context()

		stored, hit, err := store.Lookup(ctx, key)
		if err != nil {
			// store unavailable, serve without replay protection
			c.Next()
			return
		}
		if hit {
			replay(c, stored)
			return
		}

		reserved, err := store.Reserve(ctx, key)
		if err != nil {
			c.Next()
			return
		}
		if !reserved {
			stored, hit, err = store.Lookup(ctx, key)
			if err == nil && hit {
				replay(c, stored)
				return
			}
			response.Error(c, appErrors.ErrIdempotencyKeyInFlight)
			c.Abort()
			return
		}

		recorder := &bodyRecorder{ResponseWriter: c.Writer, body: &bytes.Buffer{}}
		c.Writer = recorder
		c.Next()

		// the request context may already be expired here
		bg := context.WithoutCancel(ctx)
		status := recorder.Status()
		if status >= http.StatusInternalServerError {
			_ = store.Release(bg, key)
			return
		}
		resp := service.StoredResponse{
			Status:      status,
			ContentType: recorder.Header().Get("Content-Type"),
			Body:        recorder.body.Bytes(),
		}
		if err := store.Store(bg, key, resp); err != nil {
			logger.Warn("idempotent response not stored", zap.String("key", key), zap.Error(err))
		}
	}
}

func replay(c *gin.Context, stored *service.StoredResponse) {
	if !stored.Completed() {
		response.Error(c, appErrors.ErrIdempotencyKeyInFlight)
		c.Abort()
		return
	}
	c.Header(ReplayedHeader, "true")
	c.Header("Cache-Control", "no-store")
	c.Data(stored.Status, stored.ContentType, stored.Body)
	c.Abort()
}

func idempotencyKey(c *gin.Context, raw string) string {
	subject := "anonymous"
	if claims, ok := CurrentUser(c); ok {
		subject = claims.UserID
	}
	return strings.Join([]string{"idempotency", subject, c.Request.Method, c.Request.URL.Path, raw}, ":")
}
