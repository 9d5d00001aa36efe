// Package recommendation serves personalized product suggestions from an
// external scoring service, with a popularity fallback when the scorer is
// unreachable or misbehaves.
package recommendation

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"time"

	"freshcart/backend/internal/cache"
	"freshcart/backend/internal/domain"
	"freshcart/backend/internal/pricing"
)

const maxResults = 15

// ProductSource is the slice of the repository the engine needs to resolve
// scored IDs into sellable products.
type ProductSource interface {
	GetProductsByIDs(ctx context.Context, ids []string) (map[string]domain.Product, error)
	TopProductIDsByInteraction(ctx context.Context, limit int) ([]string, error)
}

type Engine struct {
	scorerURL string
	client    *http.Client
	cache     cache.RecommendationCache
	cacheTTL  time.Duration
	now       func() time.Time
}

func NewEngine(scorerURL string, cacheStore cache.RecommendationCache, cacheTTL time.Duration) *Engine {
	if cacheStore == nil {
		cacheStore = cache.NoopRecommendationCache{}
	}
	if cacheTTL <= 0 {
		cacheTTL = 5 * time.Minute
	}

	return &Engine{
		scorerURL: scorerURL,
		client:    &http.Client{Timeout: 3 * time.Second},
		cache:     cacheStore,
		cacheTTL:  cacheTTL,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// ForUser returns up to 15 in-stock recommendations for the user. Scorer
// failures are logged and absorbed; the caller always gets a list.
func (e *Engine) ForUser(ctx context.Context, userID string, source ProductSource) ([]domain.Recommendation, error) {
	key := "freshcart:recommend:" + userID
	if cached, ok, err := e.cache.Get(ctx, key); err == nil && ok {
		return cached, nil
	} else if err != nil {
		log.Printf("[recommend] WARN: cache get failed user=%s: %v", userID, err)
	}

	var recs []domain.Recommendation
	ids, src := e.scoredIDs(ctx, userID)
	if len(ids) > 0 {
		sellable, err := e.resolve(ctx, source, ids, src)
		if err != nil {
			return nil, err
		}
		recs = sellable
	}

	// Scorer unavailable, or everything it scored is out of stock.
	if len(recs) == 0 {
		fallback, err := source.TopProductIDsByInteraction(ctx, maxResults*3)
		if err != nil {
			return nil, err
		}
		recs, err = e.resolve(ctx, source, fallback, domain.RecommendationSourcePopular)
		if err != nil {
			return nil, err
		}
	}

	if err := e.cache.Set(ctx, key, recs, e.cacheTTL); err != nil {
		log.Printf("[recommend] WARN: cache set failed user=%s: %v", userID, err)
	}
	return recs, nil
}

// resolve turns ranked product IDs into sellable recommendations, dropping
// unknown and out-of-stock products and capping the list.
func (e *Engine) resolve(ctx context.Context, source ProductSource, ids []string, src string) ([]domain.Recommendation, error) {
	products, err := source.GetProductsByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}

	today := e.now()
	recs := make([]domain.Recommendation, 0, maxResults)
	for _, id := range ids {
		if len(recs) >= maxResults {
			break
		}
		p, ok := products[id]
		if !ok || p.StockQuantity < 1 {
			continue
		}
		recs = append(recs, domain.Recommendation{
			ProductID:             p.ID,
			Name:                  p.Name,
			CurrentUnitPriceCents: pricing.UnitPriceCents(p.BasePriceCents, p.ExpirationDate, today),
			Source:                src,
		})
	}
	return recs, nil
}

// scoredIDs asks the external scorer for ranked product IDs. Any failure
// returns an empty list so the caller falls back to popularity.
func (e *Engine) scoredIDs(ctx context.Context, userID string) ([]string, string) {
	if e.scorerURL == "" {
		return nil, ""
	}

	endpoint := fmt.Sprintf("%s/api/ai/recommend/%s", e.scorerURL, url.PathEscape(userID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		log.Printf("[recommend] WARN: building scorer request failed: %v", err)
		return nil, ""
	}

	resp, err := e.client.Do(req)
	if err != nil {
		log.Printf("[recommend] WARN: scorer unreachable user=%s: %v", userID, err)
		return nil, ""
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		log.Printf("[recommend] WARN: scorer returned %d user=%s", resp.StatusCode, userID)
		return nil, ""
	}

	var payload struct {
		ProductIDs []string `json:"product_ids"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		log.Printf("[recommend] WARN: decoding scorer response failed user=%s: %v", userID, err)
		return nil, ""
	}
	if len(payload.ProductIDs) == 0 {
		return nil, ""
	}
	return payload.ProductIDs, domain.RecommendationSourceScorer
}
