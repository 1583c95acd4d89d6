package fetcher

import (
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"

	"govaffairs-crawler/internal/config"
	"govaffairs-crawler/internal/observability"
)

// Fetcher performs exactly one GET per call. Retrying is left to the
// caller, which decides based on the failure class.
type Fetcher struct {
	client      *http.Client
	cfg         *config.Config
	logger      *observability.Logger
	robotsCache *RobotsCache
	rateLimiter *RateLimiter
}

func NewFetcher(cfg *config.Config, logger *observability.Logger) *Fetcher {
	client := &http.Client{
		Timeout: cfg.GetRequestTimeout(),
		Transport: &http.Transport{
			DialContext: (&net.Dialer{
				Timeout:   cfg.GetConnectTimeout(),
				KeepAlive: 30 * time.Second,
			}).DialContext,
			MaxIdleConns:        cfg.HTTP.MaxIdleConnections,
			MaxIdleConnsPerHost: cfg.HTTP.MaxIdleConnectionsPerHost,
			IdleConnTimeout:     cfg.GetIdleConnectionTimeout(),
		},
	}

	f := &Fetcher{
		client:      client,
		cfg:         cfg,
		logger:      logger,
		rateLimiter: NewRateLimiter(cfg.RateLimit.RPM, cfg.RateLimit.Burst),
	}
	if cfg.Robots.Enabled {
		f.robotsCache = NewRobotsCache(client, cfg.HTTP.UserAgent, cfg.GetRobotsCacheTTL(), logger)
	}
	return f
}

// Fetch returns the body of urlStr or a *FetchError describing why it
// could not be fetched. Entries in header are set after the default
// headers and override them.
func (f *Fetcher) Fetch(ctx context.Context, urlStr string, header http.Header) ([]byte, error) {
	parsedURL, err := url.Parse(urlStr)
	if err != nil {
		return nil, permanentf(urlStr, 0, fmt.Errorf("invalid URL: %w", err))
	}
	if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
		return nil, permanentf(urlStr, 0, fmt.Errorf("unsupported scheme %q", parsedURL.Scheme))
	}
	if parsedURL.Host == "" {
		return nil, permanentf(urlStr, 0, errors.New("missing host"))
	}

	if f.robotsCache != nil && !f.robotsCache.IsAllowed(ctx, parsedURL) {
		return nil, permanentf(urlStr, 0, errors.New("disallowed by robots.txt"))
	}

	if err := f.rateLimiter.Wait(ctx, parsedURL.Host); err != nil {
		return nil, transientf(urlStr, 0, fmt.Errorf("rate limit wait: %w", err))
	}

	return f.fetchOnce(ctx, urlStr, header)
}

func (f *Fetcher) fetchOnce(ctx context.Context, urlStr string, header http.Header) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, urlStr, http.NoBody)
	if err != nil {
		return nil, permanentf(urlStr, 0, err)
	}

	req.Header.Set("User-Agent", f.cfg.HTTP.UserAgent)
	req.Header.Set("Accept-Language", f.cfg.HTTP.AcceptLanguage)
	req.Header.Set("Accept-Encoding", "gzip")
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,image/webp,*/*;q=0.8")
	req.Header.Set("Connection", "keep-alive")
	req.Header.Set("Upgrade-Insecure-Requests", "1")
	for k, vs := range header {
		req.Header.Del(k)
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	resp, err := f.client.Do(req)
	if err != nil {
		// Timeouts, refused connections, resets and DNS hiccups
		return nil, transientf(urlStr, 0, err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			f.logger.Warn("Failed to close response body", "url", urlStr, "error", err.Error())
		}
	}()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		// Drain so the connection can be reused
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64*1024))
		if classifyStatus(resp.StatusCode) == Transient {
			return nil, transientf(urlStr, resp.StatusCode, fmt.Errorf("server error: %d", resp.StatusCode))
		}
		return nil, permanentf(urlStr, resp.StatusCode, fmt.Errorf("client error: %d", resp.StatusCode))
	}

	reader := resp.Body
	if resp.Header.Get("Content-Encoding") == "gzip" {
		gzipReader, err := gzip.NewReader(resp.Body)
		if err != nil {
			return nil, transientf(urlStr, 0, err)
		}
		defer func() { _ = gzipReader.Close() }()
		reader = gzipReader
	}

	body, err := io.ReadAll(reader)
	if err != nil {
		return nil, transientf(urlStr, 0, err)
	}

	f.logger.Debug("Page fetched",
		"url", urlStr,
		"status", resp.StatusCode,
		"content_type", resp.Header.Get("Content-Type"),
		"bytes", len(body),
	)

	return body, nil
}
