// Package crawl drives the page-by-page traversal of one search target.
//
// A traversal starts at the target URL, asks the adapter for each further
// page URL, retries transient fetch failures with backoff and stops on the
// first empty page, on the page cap, when the adapter has no next page, or
// when a page cannot be fetched. Records collected before a failure are
// always returned.
package crawl

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"govaffairs-crawler/internal/adapter"
	"govaffairs-crawler/internal/config"
	"govaffairs-crawler/internal/fetcher"
	"govaffairs-crawler/internal/observability"
	"govaffairs-crawler/internal/storage"
)

// PageFetcher performs a single fetch attempt. Failures should match
// fetcher.ErrTransient or fetcher.ErrPermanent; anything else is retried
// like a transient failure. header carries adapter specific request
// headers and may be nil.
type PageFetcher interface {
	Fetch(ctx context.Context, url string, header http.Header) ([]byte, error)
}

type Status string

const (
	Completed Status = "Completed"
	Degraded  Status = "Degraded"
)

type Options struct {
	MaxRetries int
	MaxPages   int
	Delay      time.Duration
	Backoff    Backoff
}

func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		MaxRetries: cfg.GetMaxRetries(),
		MaxPages:   cfg.Crawl.MaxPages,
		Delay:      cfg.GetDelayBetweenRequests(),
		Backoff: Backoff{
			Strategy:  cfg.Crawl.Backoff.Strategy,
			Base:      cfg.GetBackoffBase(),
			Max:       cfg.GetBackoffMax(),
			JitterPct: cfg.Crawl.Backoff.JitterPct,
		},
	}
}

type Result struct {
	Records      []storage.Record
	Status       Status
	PagesFetched int
	Retries      int
	LastURL      string
	StopReason   string
	Err          error
}

type Engine struct {
	fetcher PageFetcher
	opts    Options
	logger  *observability.Logger

	// sleep waits for d or until ctx is done; replaced in tests
	sleep func(ctx context.Context, d time.Duration) error
}

func NewEngine(f PageFetcher, opts Options, logger *observability.Logger) *Engine {
	return &Engine{
		fetcher: f,
		opts:    opts,
		logger:  logger,
		sleep:   sleepContext,
	}
}

// Traverse crawls target with a until pagination ends. It never returns a
// nil result; failures are reported through Result.Status and Result.Err.
func (e *Engine) Traverse(ctx context.Context, target config.Target, a adapter.Adapter) *Result {
	log := e.logger.With("target", target.Key, "adapter", a.Identity())
	res := &Result{Records: []storage.Record{}}
	header := adapterHeader(a)

	log.Info("Starting traversal", "url", target.URL, "max_pages", e.opts.MaxPages)

	for page := 1; ; page++ {
		pageURL := target.URL
		if page > 1 {
			next, ok := a.NextPageURL(target.URL, page-1)
			if !ok || next == "" {
				return e.finish(log, res, Completed, fmt.Sprintf("no next page after page %d", page-1), nil)
			}
			pageURL = next
		}
		res.LastURL = pageURL

		log.Debug("Processing page", "page", page, "url", pageURL)

		content, err := e.fetchPage(ctx, log, res, page, pageURL, header)
		if err != nil {
			return e.finish(log, res, Degraded, fmt.Sprintf("fetch failed at page %d", page), err)
		}
		res.PagesFetched++

		records := a.Extract(content)
		res.Records = append(res.Records, records...)

		log.Info("Page extracted", "page", page, "records", len(records), "total", len(res.Records))

		if len(records) == 0 {
			return e.finish(log, res, Completed, fmt.Sprintf("no records on page %d", page), nil)
		}
		if page >= e.opts.MaxPages {
			return e.finish(log, res, Completed, fmt.Sprintf("reached max pages (%d)", e.opts.MaxPages), nil)
		}

		// Politeness delay between pages, independent of any retry waits
		if err := e.sleep(ctx, e.opts.Delay); err != nil {
			return e.finish(log, res, Degraded, fmt.Sprintf("cancelled after page %d", page), err)
		}
	}
}

// fetchPage fetches one page, retrying transient failures up to
// MaxRetries times.
func (e *Engine) fetchPage(ctx context.Context, log *observability.Logger, res *Result, page int, pageURL string, header http.Header) ([]byte, error) {
	for attempt := 0; ; attempt++ {
		content, err := e.fetcher.Fetch(ctx, pageURL, header)
		if err == nil {
			return content, nil
		}

		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("traversal cancelled: %w", ctxErr)
		}

		if errors.Is(err, fetcher.ErrPermanent) {
			log.Error("Permanent fetch failure, stopping target",
				"page", page,
				"url", pageURL,
				"error", err.Error(),
			)
			return nil, err
		}

		if attempt >= e.opts.MaxRetries {
			log.Error("Retries exhausted, stopping target",
				"page", page,
				"url", pageURL,
				"retries", attempt,
				"error", err.Error(),
			)
			return nil, fmt.Errorf("page %d failed after %d retries: %w", page, attempt, err)
		}

		wait := e.opts.Backoff.Duration(attempt + 1)
		res.Retries++
		log.Warn("Transient fetch failure, retrying",
			"page", page,
			"url", pageURL,
			"attempt", attempt+1,
			"max_retries", e.opts.MaxRetries,
			"backoff", wait.String(),
			"error", err.Error(),
		)

		if err := e.sleep(ctx, wait); err != nil {
			return nil, fmt.Errorf("traversal cancelled: %w", err)
		}
	}
}

func (e *Engine) finish(log *observability.Logger, res *Result, status Status, reason string, err error) *Result {
	res.Status = status
	res.StopReason = reason
	res.Err = err

	fields := []interface{}{
		"status", string(status),
		"pages", res.PagesFetched,
		"records", len(res.Records),
		"retries", res.Retries,
		"reason", reason,
	}
	if status == Degraded {
		log.Warn("Traversal degraded", append(fields, "last_url", res.LastURL)...)
	} else {
		log.Info("Traversal completed", fields...)
	}
	return res
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func adapterHeader(a adapter.Adapter) http.Header {
	hp, ok := a.(adapter.HeaderProvider)
	if !ok {
		return nil
	}
	header := make(http.Header)
	for k, v := range hp.Headers() {
		header.Set(k, v)
	}
	return header
}
