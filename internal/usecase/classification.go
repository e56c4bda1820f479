package usecase

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/example/eco-collect/internal/classifier"
	"github.com/example/eco-collect/internal/logging"
	"github.com/example/eco-collect/internal/retry"
)

const defaultClassificationTTL = 24 * time.Hour

// ClassificationService runs the classifier with a cache in front of it. It
// never fails: classifier errors degrade to the unknown category.
type ClassificationService struct {
	cacheRetry retry.Retrier
	logger     *zap.Logger
	client     classifier.Client
	cache      Cache
	ttl        time.Duration
}

type cachedClassification struct {
	Category   string    `json:"category"`
	Confidence float64   `json:"confidence"`
	CachedAt   time.Time `json:"cached_at"`
}

// NewClassificationService wraps client. cache may be nil, in which case
// every call reaches the classifier.
func NewClassificationService(client classifier.Client, cache Cache, ttl time.Duration, logger *zap.Logger) *ClassificationService {
	if ttl <= 0 {
		ttl = defaultClassificationTTL
	}
	return &ClassificationService{
		cacheRetry: newCacheRetrier(logger.Named("classification_cache")),
		logger:     logger.Named("classification_service"),
		client:     client,
		cache:      cache,
		ttl:        ttl,
	}
}

// ImageHash returns the hex SHA-1 of image.
func ImageHash(image []byte) string {
	sum := sha1.Sum(image)
	return hex.EncodeToString(sum[:])
}

// Classify returns the classification of image and the hash it is cached
// under.
func (s *ClassificationService) Classify(ctx context.Context, image []byte) (*classifier.Result, string) {
	requestID := logging.RequestIDFromContext(ctx)
	opLogger := logging.WithOperation(s.logger, "usecase.classify", requestID)
	hash := ImageHash(image)
	cacheKey := "classification:" + hash

	if cached, ok := s.lookup(ctx, requestID, cacheKey); ok {
		opLogger.Debug("classification cache hit", zap.String("sha1", hash))
		return cached, hash
	}

	result, err := s.client.Classify(ctx, image)
	if err == nil {
		err = result.Validate()
	}
	if err != nil {
		wrapped := logging.NewOperationError("usecase.classify", requestID, err)
		opLogger.Warn("classifier failed, falling back to unknown", zap.Error(wrapped))
		return classifier.Unknown(), hash
	}

	s.store(ctx, requestID, cacheKey, result)
	return result, hash
}

func (s *ClassificationService) lookup(ctx context.Context, requestID, key string) (*classifier.Result, bool) {
	if s.cache == nil {
		return nil, false
	}

	var raw string
	err := s.cacheRetry.Do(ctx, "cache.get.classification", requestID, func() error {
		value, err := s.cache.Get(ctx, key)
		if err != nil {
			return err
		}
		raw = value
		return nil
	})
	if err != nil {
		if !errors.Is(err, ErrCacheMiss) {
			logging.WithOperation(s.logger, "usecase.classify", requestID).Warn("failed to read cache", zap.Error(err))
		}
		return nil, false
	}

	var payload cachedClassification
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		logging.WithOperation(s.logger, "usecase.classify", requestID).Warn("failed to decode cached classification", zap.Error(err))
		return nil, false
	}
	result := &classifier.Result{Category: payload.Category, Confidence: payload.Confidence}
	if result.Validate() != nil {
		return nil, false
	}
	return result, true
}

func (s *ClassificationService) store(ctx context.Context, requestID, key string, result *classifier.Result) {
	if s.cache == nil {
		return
	}

	serialized, err := json.Marshal(cachedClassification{
		Category:   result.Category,
		Confidence: result.Confidence,
		CachedAt:   time.Now().UTC(),
	})
	if err != nil {
		return
	}

	if err := s.cacheRetry.Do(ctx, "cache.set.classification", requestID, func() error {
		return s.cache.Set(ctx, key, string(serialized), s.ttl)
	}); err != nil {
		logging.WithOperation(s.logger, "usecase.classify", requestID).Warn("failed to cache classification", zap.Error(err))
	}
}
