package cache

import (
	"context"
	"time"

	"freshcart/backend/internal/domain"
)

type RecommendationCache interface {
	Get(ctx context.Context, key string) ([]domain.Recommendation, bool, error)
	Set(ctx context.Context, key string, value []domain.Recommendation, ttl time.Duration) error
}

type NoopRecommendationCache struct{}

func (NoopRecommendationCache) Get(_ context.Context, _ string) ([]domain.Recommendation, bool, error) {
	return nil, false, nil
}

func (NoopRecommendationCache) Set(_ context.Context, _ string, _ []domain.Recommendation, _ time.Duration) error {
	return nil
}
