package service

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	appErrors "github.com/noah-isme/obe-api/pkg/errors"
)

// CacheRepository abstracts persistence for cached payloads.
type CacheRepository interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Reserve(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Delete(ctx context.Context, key string) error
}

// StoredResponse is a write response kept for replay under an idempotency key.
// A zero Status marks a key whose request is still being processed.
type StoredResponse struct {
	Status      int    `json:"status"`
	ContentType string `json:"content_type"`
	Body        []byte `json:"body"`
}

// Completed reports whether the response can be replayed.
func (r StoredResponse) Completed() bool {
	return r.Status != 0
}

// CacheService stores idempotent write responses and records cache metrics.
type CacheService struct {
	repo       CacheRepository
	metrics    *MetricsService
	defaultTTL time.Duration
	logger     *zap.Logger
	enabled    bool
}

// NewCacheService constructs a cache service.
func NewCacheService(repo CacheRepository, metrics *MetricsService, defaultTTL time.Duration, logger *zap.Logger, enabled bool) *CacheService {
	if defaultTTL <= 0 {
		defaultTTL = 24 * time.Hour
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CacheService{repo: repo, metrics: metrics, defaultTTL: defaultTTL, logger: logger, enabled: enabled}
}

// Enabled indicates whether idempotent replay is active.
func (s *CacheService) Enabled() bool {
	return s != nil && s.enabled && s.repo != nil
}

// Lookup returns the stored response for key. It returns false on a miss.
func (s *CacheService) Lookup(ctx context.Context, key string) (*StoredResponse, bool, error) {
	if !s.Enabled() {
		return nil, false, nil
	}
	start := time.Now()
	var stored StoredResponse
	err := s.repo.Get(ctx, key, &stored)
	duration := time.Since(start)
	if err != nil {
		s.metrics.RecordCacheOperation(false, duration)
		if errors.Is(err, appErrors.ErrCacheMiss) {
			return nil, false, nil
		}
		s.logger.Warn("idempotency lookup failed", zap.String("key", key), zap.Error(err))
		return nil, false, err
	}
	s.metrics.RecordCacheOperation(true, duration)
	return &stored, true, nil
}

// Reserve claims key for an in-flight request. It returns false when another
// request already holds or completed the key.
func (s *CacheService) Reserve(ctx context.Context, key string) (bool, error) {
	if !s.Enabled() {
		return true, nil
	}
	ok, err := s.repo.Reserve(ctx, key, s.defaultTTL)
	if err != nil {
		s.logger.Warn("idempotency reserve failed", zap.String("key", key), zap.Error(err))
	}
	return ok, err
}

// Store saves the completed response under key.
func (s *CacheService) Store(ctx context.Context, key string, resp StoredResponse) error {
	if !s.Enabled() {
		return nil
	}
	start := time.Now()
	err := s.repo.Set(ctx, key, resp, s.defaultTTL)
	s.metrics.ObserveCacheWrite(time.Since(start))
	if err != nil {
		s.logger.Warn("idempotency store failed", zap.String("key", key), zap.Error(err))
	}
	return err
}

// Release drops a reservation so the request can be retried.
func (s *CacheService) Release(ctx context.Context, key string) error {
	if !s.Enabled() {
		return nil
	}
	if err := s.repo.Delete(ctx, key); err != nil {
		s.logger.Warn("idempotency release failed", zap.String("key", key), zap.Error(err))
		return err
	}
	return nil
}
