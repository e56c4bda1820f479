package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"github.com/example/eco-collect/internal/classifier"
)

type stubCache struct {
	setErrs   []error
	getErrs   []error
	getValues []string
	setKeys   []string
	setValues []string
	getKeys   []string
}

func (s *stubCache) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	s.setKeys = append(s.setKeys, key)
	if str, ok := value.(string); ok {
		s.setValues = append(s.setValues, str)
	}
	if len(s.setErrs) == 0 {
		return nil
	}
	err := s.setErrs[0]
	s.setErrs = s.setErrs[1:]
	return err
}

func (s *stubCache) Get(ctx context.Context, key string) (string, error) {
	s.getKeys = append(s.getKeys, key)
	var value string
	if len(s.getValues) > 0 {
		value = s.getValues[0]
		s.getValues = s.getValues[1:]
	}
	var err error
	if len(s.getErrs) > 0 {
		err = s.getErrs[0]
		s.getErrs = s.getErrs[1:]
	}
	return value, err
}

type stubClassifier struct {
	result *classifier.Result
	err    error
	calls  int
}

func (s *stubClassifier) Classify(ctx context.Context, image []byte) (*classifier.Result, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return s.result, nil
}

type transientRedisError struct{}

func (transientRedisError) Error() string   { return "redis transient" }
func (transientRedisError) Timeout() bool   { return true }
func (transientRedisError) Temporary() bool { return true }

func newTestClassification(client classifier.Client, cache Cache) *ClassificationService {
	svc := NewClassificationService(client, cache, time.Hour, zap.NewNop())
	svc.cacheRetry.InitialBackoff = time.Millisecond
	svc.cacheRetry.MaxBackoff = 2 * time.Millisecond
	return svc
}

func TestClassifyCachesModelResults(t *testing.T) {
	cache := &stubCache{getErrs: []error{redis.Nil}}
	client := &stubClassifier{result: &classifier.Result{Category: "plastic", Confidence: 0.82}}
	svc := newTestClassification(client, cache)

	result, hash := svc.Classify(context.Background(), []byte("image"))
	if result.Category != "plastic" || result.Confidence != 0.82 {
		t.Fatalf("unexpected result: %+v", result)
	}
	if hash != ImageHash([]byte("image")) {
		t.Fatalf("unexpected hash: %s", hash)
	}
	if len(cache.setKeys) != 1 || cache.setKeys[0] != "classification:"+hash {
		t.Fatalf("expected result to be cached under the image hash, got %v", cache.setKeys)
	}
	if !strings.Contains(cache.setValues[0], `"category":"plastic"`) {
		t.Fatalf("unexpected cached value: %s", cache.setValues[0])
	}
}

func TestClassifyUsesCachedResult(t *testing.T) {
	payload, _ := json.Marshal(cachedClassification{Category: "glass", Confidence: 0.5})
	cache := &stubCache{getValues: []string{string(payload)}}
	client := &stubClassifier{result: &classifier.Result{Category: "plastic", Confidence: 0.9}}
	svc := newTestClassification(client, cache)

	result, _ := svc.Classify(context.Background(), []byte("image"))
	if result.Category != "glass" {
		t.Fatalf("expected cached category, got %s", result.Category)
	}
	if client.calls != 0 {
		t.Fatalf("expected classifier to be skipped, got %d calls", client.calls)
	}
}

func TestClassifyDegradesToUnknown(t *testing.T) {
	tests := []struct {
		name   string
		client *stubClassifier
	}{
		{name: "transport error", client: &stubClassifier{err: errors.New("unavailable")}},
		{name: "out of range", client: &stubClassifier{result: &classifier.Result{Category: "paper", Confidence: 1.7}}},
		{name: "empty response", client: &stubClassifier{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cache := &stubCache{getErrs: []error{redis.Nil}}
			svc := newTestClassification(tt.client, cache)

			result, _ := svc.Classify(context.Background(), []byte("image"))
			if result.Category != classifier.UnknownCategory || result.Confidence != 0 {
				t.Fatalf("expected unknown result, got %+v", result)
			}
			if len(cache.setKeys) != 0 {
				t.Fatalf("degraded results must not be cached, got %v", cache.setKeys)
			}
		})
	}
}

func TestClassifyRetriesTransientCacheWrites(t *testing.T) {
	cache := &stubCache{getErrs: []error{redis.Nil}, setErrs: []error{transientRedisError{}}}
	client := &stubClassifier{result: &classifier.Result{Category: "metal", Confidence: 0.3}}
	svc := newTestClassification(client, cache)

	svc.Classify(context.Background(), []byte("image"))
	if len(cache.setKeys) != 2 {
		t.Fatalf("expected one retry, got %d set calls", len(cache.setKeys))
	}
	if cache.setKeys[0] != cache.setKeys[1] {
		t.Fatalf("expected retry to target same key, got %s and %s", cache.setKeys[0], cache.setKeys[1])
	}
}

func TestClassifyIgnoresBrokenCache(t *testing.T) {
	cache := &stubCache{getErrs: []error{errors.New("connection refused")}, setErrs: []error{errors.New("connection refused")}}
	client := &stubClassifier{result: &classifier.Result{Category: "metal", Confidence: 0.3}}
	svc := newTestClassification(client, cache)

	result, _ := svc.Classify(context.Background(), []byte("image"))
	if result.Category != "metal" {
		t.Fatalf("expected model result, got %+v", result)
	}
	if client.calls != 1 {
		t.Fatalf("expected classifier to be called once, got %d", client.calls)
	}
}

func TestClassifyWithoutCache(t *testing.T) {
	client := &stubClassifier{result: &classifier.Result{Category: "paper", Confidence: 0.1}}
	svc := newTestClassification(client, nil)

	result, _ := svc.Classify(context.Background(), []byte("image"))
	if result.Category != "paper" {
		t.Fatalf("unexpected result: %+v", result)
	}
}
