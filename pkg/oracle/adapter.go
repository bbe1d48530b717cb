// Package oracle verifies external price observations before they reach the
// settlement engine. A PriceSource produces raw observations; the Adapter
// rejects stale or zero-confidence ones and caches the rest.
package oracle

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"predix-engine/internal/engine"
	"predix-engine/pkg/cache"
)

// Price is one observation from a price feed.
type Price struct {
	Value       uint64    `json:"value"`
	Conf        uint64    `json:"conf"`
	PublishTime time.Time `json:"publish_time"`
}

// PriceSource produces raw price observations for a feed.
type PriceSource interface {
	Price(ctx context.Context, feed engine.FeedID) (Price, error)
}

// Adapter wraps a PriceSource with verification. Prices older than maxAge or
// published with zero confidence never reach the engine.
type Adapter struct {
	source PriceSource
	maxAge time.Duration
}

// NewAdapter creates a verifying adapter around a source.
func NewAdapter(source PriceSource, maxAge time.Duration) *Adapter {
	return &Adapter{
		source: source,
		maxAge: maxAge,
	}
}

// VerifiedPrice fetches and verifies the current price for a feed.
func (a *Adapter) VerifiedPrice(ctx context.Context, feed engine.FeedID) (Price, error) {
	price, err := a.source.Price(ctx, feed)
	if err != nil {
		return Price{}, fmt.Errorf("fetch price for feed %s: %w", feed, err)
	}

	if price.Conf == 0 {
		return Price{}, fmt.Errorf("feed %s: zero-confidence price: %w", feed, engine.ErrStalePrice)
	}

	if age := time.Since(price.PublishTime); age > a.maxAge {
		return Price{}, fmt.Errorf("feed %s: price is %s old (max %s): %w", feed, age.Round(time.Second), a.maxAge, engine.ErrStalePrice)
	}

	if cache.RedisClient != nil {
		_ = cache.CacheOraclePrice(feed.String(), price)
	}

	return price, nil
}

// HTTPSource fetches prices from a feed service over HTTP. The service is
// expected to answer GET <base>/price/<feed-hex> with a JSON Price.
type HTTPSource struct {
	baseURL string
	client  *http.Client
}

// NewHTTPSource creates a source backed by a price feed service.
func NewHTTPSource(baseURL string) *HTTPSource {
	return &HTTPSource{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 5 * time.Second},
	}
}

// Price implements PriceSource.
func (s *HTTPSource) Price(ctx context.Context, feed engine.FeedID) (Price, error) {
	url := fmt.Sprintf("%s/price/%s", s.baseURL, feed)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Price{}, err
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return Price{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Price{}, fmt.Errorf("price feed returned status %d", resp.StatusCode)
	}

	var price Price
	if err := json.NewDecoder(resp.Body).Decode(&price); err != nil {
		return Price{}, fmt.Errorf("decode price response: %w", err)
	}
	return price, nil
}

// StaticSource serves prices set by hand. Used in development deployments
// that have no feed service, and by the admin price override endpoint.
type StaticSource struct {
	mu     sync.RWMutex
	prices map[engine.FeedID]Price
}

// NewStaticSource creates an empty static source.
func NewStaticSource() *StaticSource {
	return &StaticSource{
		prices: make(map[engine.FeedID]Price),
	}
}

// SetPrice records a price observation for a feed.
func (s *StaticSource) SetPrice(feed engine.FeedID, value, conf uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prices[feed] = Price{
		Value:       value,
		Conf:        conf,
		PublishTime: time.Now(),
	}
}

// Price implements PriceSource.
func (s *StaticSource) Price(_ context.Context, feed engine.FeedID) (Price, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	price, ok := s.prices[feed]
	if !ok {
		return Price{}, fmt.Errorf("no price recorded for feed %s", feed)
	}
	return price, nil
}
