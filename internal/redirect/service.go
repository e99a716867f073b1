package redirect

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"shortlink/internal/cache"
	"shortlink/internal/events"
	"shortlink/internal/store"
)

var (
	// ErrNotFound covers unknown and deactivated short codes alike.
	ErrNotFound = errors.New("short url not found")

	// ErrExpired marks a record past its expiry timestamp.
	ErrExpired = errors.New("short url has expired")
)

// Publisher sends click events to the message bus. Publish never returns;
// delivery is fire-and-forget and failures stay in the publisher's logs.
type Publisher interface {
	Publish(event events.ClickEvent)
}

// Result is a successful redirect decision.
type Result struct {
	LongURL string
	Status  int
}

// Service resolves short codes with a cache-aside read over the durable
// store and emits a click event for every successful resolution.
//
// A cache entry is not invalidated when the underlying record is later
// deactivated; until its TTL lapses the resolver keeps serving it. This
// staleness window is a documented property of the design.
type Service struct {
	cache     cache.URLCache
	store     store.URLStore
	publisher Publisher
	logger    *zap.Logger
	now       func() time.Time
}

// NewService creates a new resolver service.
func NewService(c cache.URLCache, s store.URLStore, p Publisher, logger *zap.Logger) *Service {
	return &Service{
		cache:     c,
		store:     s,
		publisher: p,
		logger:    logger,
		now:       time.Now,
	}
}

// Resolve turns a short code into a redirect decision.
//
// The cache is consulted first; on a hit the store is never touched. On a
// miss the store record is validated, the cache is populated best-effort,
// and the click event is emitted without blocking the response.
func (s *Service) Resolve(ctx context.Context, shortCode, ip, userAgent, referrer string) (*Result, error) {
	if longURL, ok := s.cache.Get(ctx, shortCode); ok {
		s.logger.Debug("cache hit", zap.String("short_code", shortCode))
		s.emitClick(shortCode, ip, userAgent, referrer)
		return &Result{LongURL: longURL, Status: http.StatusMovedPermanently}, nil
	}

	s.logger.Debug("cache miss, querying store", zap.String("short_code", shortCode))

	rec, err := s.store.FindByShortCode(ctx, shortCode)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrNotFound
		}
		// No fallback exists for the store; this surfaces as a server error.
		return nil, fmt.Errorf("redirect: store lookup: %w", err)
	}
	if !rec.IsActive {
		return nil, ErrNotFound
	}

	now := s.now()
	if rec.ExpiryAt != nil && rec.ExpiryAt.Before(now) {
		return nil, ErrExpired
	}

	// TTL is the whole seconds remaining until expiry, so the entry cannot
	// outlive the record's validity. No expiry means no TTL.
	var ttl time.Duration
	if rec.ExpiryAt != nil {
		ttl = rec.ExpiryAt.Sub(now).Truncate(time.Second)
	}
	s.cache.Set(ctx, shortCode, rec.LongURL, ttl)

	s.emitClick(shortCode, ip, userAgent, referrer)

	return &Result{LongURL: rec.LongURL, Status: http.StatusMovedPermanently}, nil
}

// emitClick detaches event emission from the request lifecycle. The
// response never waits on, and cannot fail because of, the bus.
func (s *Service) emitClick(shortCode, ip, userAgent, referrer string) {
	event := events.NewClickEvent(shortCode, ip, userAgent, referrer)
	go s.publisher.Publish(event)
}
