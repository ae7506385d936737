package repository

import (
	"context"
	"errors"
	"strconv"
	"time"

	"TrendCascade/internal/domain/models"
	domrepo "TrendCascade/internal/domain/repository"
	"TrendCascade/pkg/cache"
	"TrendCascade/pkg/logger"
)

// CachingPatternStore caches pattern memory in front of a PatternMemoryStore. Only Upsert fills a
// signature key, and Upsert runs under the signature lock, so the cached value follows the write
// order and a slow reader can never put an older row back. Top lists are read-through and dropped
// on every write.
type CachingPatternStore struct {
	inner domrepo.PatternMemoryStore
	cache cache.Service
	ttl   time.Duration
	log   *logger.Logger
}

var _ domrepo.PatternMemoryStore = (*CachingPatternStore)(nil)

func NewCachingPatternStore(inner domrepo.PatternMemoryStore, c cache.Service, ttl time.Duration, l *logger.Logger) *CachingPatternStore {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	if l == nil {
		l = logger.NewNop()
	}
	return &CachingPatternStore{inner: inner, cache: c, ttl: ttl, log: l}
}

func patternKey(signature string) string { return cache.Key("pattern", signature) }
func topKey(limit int) string            { return cache.Key("pattern", "top", strconv.Itoa(limit)) }

func (s *CachingPatternStore) Get(ctx context.Context, signature string) (*models.PatternMemory, error) {
	var p models.PatternMemory
	err := s.cache.Get(ctx, patternKey(signature), &p)
	if err == nil {
		return &p, nil
	}
	if !errors.Is(err, cache.ErrCacheMiss) {
		s.log.Warn("pattern cache read failed", logger.String("signature", signature), logger.Error(err))
	}
	return s.inner.Get(ctx, signature)
}

func (s *CachingPatternStore) GetFresh(ctx context.Context, signature string) (*models.PatternMemory, error) {
	return s.inner.GetFresh(ctx, signature)
}

func (s *CachingPatternStore) Upsert(ctx context.Context, p *models.PatternMemory) error {
	if err := s.inner.Upsert(ctx, p); err != nil {
		return err
	}
	if err := s.cache.Set(ctx, patternKey(p.Signature), p, s.ttl); err != nil {
		s.log.Warn("pattern cache write failed", logger.String("signature", p.Signature), logger.Error(err))
		s.invalidate(ctx, p.Signature)
		return nil
	}
	s.invalidateTop(ctx)
	return nil
}

func (s *CachingPatternStore) Top(ctx context.Context, limit int) ([]models.PatternMemory, error) {
	var out []models.PatternMemory
	if err := s.cache.Get(ctx, topKey(limit), &out); err == nil {
		return out, nil
	}
	out, err := s.inner.Top(ctx, limit)
	if err != nil {
		return nil, err
	}
	if err := s.cache.Set(ctx, topKey(limit), out, s.ttl); err != nil {
		s.log.Warn("pattern top cache write failed", logger.Error(err))
	}
	return out, nil
}

func (s *CachingPatternStore) invalidate(ctx context.Context, signature string) {
	if err := s.cache.Delete(ctx, patternKey(signature)); err != nil {
		s.log.Warn("pattern cache invalidate failed", logger.String("signature", signature), logger.Error(err))
	}
	s.invalidateTop(ctx)
}

func (s *CachingPatternStore) invalidateTop(ctx context.Context) {
	if err := s.cache.DeleteByPattern(ctx, cache.Key("pattern", "top", "*")); err != nil {
		s.log.Warn("pattern top cache invalidate failed", logger.Error(err))
	}
}
