package service

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"slagie/internal/cache"
	"slagie/internal/domain"
	"slagie/internal/logger"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// ExamCache keeps student views of published exams in the shared cache.
// Concurrent misses for one key share a single load. Cache failures are
// logged and fall through to the loader.
type ExamCache struct {
	cache domain.Cache
	ttl   time.Duration
	group singleflight.Group
}

// NewExamCache returns an ExamCache. A nil cache disables caching.
func NewExamCache(c domain.Cache, ttl time.Duration) *ExamCache {
	return &ExamCache{cache: c, ttl: ttl}
}

// Exam returns the cached view of examID or stores what load returns.
func (c *ExamCache) Exam(ctx context.Context, examID string, load func(ctx context.Context) (*domain.Exam, error)) (*domain.Exam, error) {
	var exam domain.Exam
	if err := c.getOrLoad(ctx, cache.ExamQuestionsKey(examID), &exam, func(ctx context.Context) (interface{}, error) {
		return load(ctx)
	}); err != nil {
		return nil, err
	}
	return &exam, nil
}

// PublishedList returns the cached published exam list or stores what load returns.
func (c *ExamCache) PublishedList(ctx context.Context, load func(ctx context.Context) ([]*domain.Exam, error)) ([]*domain.Exam, error) {
	var exams []*domain.Exam
	if err := c.getOrLoad(ctx, cache.PublishedExamsKey(), &exams, func(ctx context.Context) (interface{}, error) {
		return load(ctx)
	}); err != nil {
		return nil, err
	}
	return exams, nil
}

// Invalidate drops the view of examID and the published list.
func (c *ExamCache) Invalidate(ctx context.Context, examID string) {
	if c.cache == nil {
		return
	}
	if err := c.cache.Delete(ctx, cache.ExamQuestionsKey(examID), cache.PublishedExamsKey()); err != nil {
		logger.Get().Warn("ExamCache: failed to invalidate", zap.String("examID", examID), zap.Error(err))
	}
}

func (c *ExamCache) getOrLoad(ctx context.Context, key string, dest interface{}, load func(ctx context.Context) (interface{}, error)) error {
	log := logger.Get()

	if c.cache != nil {
		raw, err := c.cache.Get(ctx, key)
		switch {
		case err == nil:
			jsonErr := json.Unmarshal([]byte(raw), dest)
			if jsonErr == nil {
				log.Debug("ExamCache: hit", zap.String("key", key))
				return nil
			}
			log.Warn("ExamCache: corrupt entry, reloading", zap.String("key", key), zap.Error(jsonErr))
		case errors.Is(err, domain.ErrCacheMiss):
			log.Debug("ExamCache: miss", zap.String("key", key))
		default:
			log.Warn("ExamCache: get failed, loading from source", zap.String("key", key), zap.Error(err))
		}
	}

	v, err, shared := c.group.Do(key, func() (interface{}, error) {
		value, err := load(ctx)
		if err != nil {
			return nil, err
		}
		data, err := json.Marshal(value)
		if err != nil {
			return nil, domain.NewInternalError("failed to encode cache entry", err)
		}
		if c.cache != nil {
			if err := c.cache.Set(ctx, key, string(data), c.ttl); err != nil {
				log.Warn("ExamCache: set failed", zap.String("key", key), zap.Error(err))
			}
		}
		return data, nil
	})
	if err != nil {
		return err
	}
	if shared {
		log.Debug("ExamCache: shared load", zap.String("key", key))
	}
	return json.Unmarshal(v.([]byte), dest)
}
