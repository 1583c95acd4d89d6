package fetcher

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/temoto/robotstxt"

	"govaffairs-crawler/internal/observability"
)

const maxRobotsBodyBytes = 512 * 1024

type RobotsCache struct {
	client    *http.Client
	userAgent string
	ttl       time.Duration
	logger    *observability.Logger

	mu    sync.RWMutex
	cache map[string]*robotsEntry
}

type robotsEntry struct {
	data      *robotstxt.RobotsData // nil means allow all
	expiresAt time.Time
}

func NewRobotsCache(client *http.Client, userAgent string, ttl time.Duration, logger *observability.Logger) *RobotsCache {
	return &RobotsCache{
		client:    client,
		userAgent: userAgent,
		ttl:       ttl,
		logger:    logger,
		cache:     make(map[string]*robotsEntry),
	}
}

// IsAllowed reports whether robots.txt of the URL's host permits fetching
// it. A missing or unreachable robots.txt allows everything.
func (rc *RobotsCache) IsAllowed(ctx context.Context, u *url.URL) bool {
	host := strings.ToLower(u.Host)

	rc.mu.RLock()
	cached, exists := rc.cache[host]
	rc.mu.RUnlock()

	if !exists || time.Now().After(cached.expiresAt) {
		cached = &robotsEntry{
			data:      rc.fetch(ctx, u.Scheme, host),
			expiresAt: time.Now().Add(rc.ttl),
		}
		rc.mu.Lock()
		rc.cache[host] = cached
		rc.mu.Unlock()
	}

	if cached.data == nil {
		return true
	}
	path := u.EscapedPath()
	if u.RawQuery != "" {
		path += "?" + u.RawQuery
	}
	return cached.data.TestAgent(path, rc.userAgent)
}

func (rc *RobotsCache) fetch(ctx context.Context, scheme, host string) *robotstxt.RobotsData {
	robotsURL := scheme + "://" + host + "/robots.txt"

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, robotsURL, http.NoBody)
	if err != nil {
		return nil
	}
	req.Header.Set("User-Agent", rc.userAgent)

	resp, err := rc.client.Do(req)
	if err != nil {
		rc.logger.Debug("robots.txt unreachable, allowing all", "host", host, "error", err.Error())
		return nil
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			rc.logger.Warn("Failed to close robots.txt body", "error", err.Error())
		}
	}()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxRobotsBodyBytes))
	if err != nil {
		return nil
	}

	data, err := robotstxt.FromBytes(body)
	if err != nil {
		rc.logger.Warn("Failed to parse robots.txt", "host", host, "error", err.Error())
		return nil
	}
	return data
}
