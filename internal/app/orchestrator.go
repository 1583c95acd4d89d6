package app

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"govaffairs-crawler/internal/adapter"
	"govaffairs-crawler/internal/config"
	"govaffairs-crawler/internal/crawl"
	"govaffairs-crawler/internal/observability"
	"govaffairs-crawler/internal/storage"
	"govaffairs-crawler/internal/storage/jsonfile"
)

type TargetStatus string

const (
	StatusCompleted       TargetStatus = "Completed"
	StatusDegraded        TargetStatus = "Degraded"
	StatusAdapterNotFound TargetStatus = "AdapterNotFound"
	StatusPersistFailed   TargetStatus = "PersistFailed"
	StatusSkipped         TargetStatus = "Skipped"
)

// Mirror receives the new records of every committed target.
type Mirror interface {
	UpsertRecords(ctx context.Context, target config.Target, records []storage.Record, seenAt time.Time) (int64, error)
}

// TargetReport is the outcome of one target within a run.
type TargetReport struct {
	Key              string
	Name             string
	ID               string
	URL              string
	AdapterType      string
	Status           TargetStatus
	PagesFetched     int
	CrawledCount     int
	NewRecordCount   int
	TotalRecordCount int
	Retries          int
	StopReason       string
	Error            string
	NewRecords       []storage.Record
	Duration         time.Duration
}

type RunReport struct {
	RunID      string
	StartedAt  time.Time
	FinishedAt time.Time
	Targets    []TargetReport
}

// Totals sums crawled and new records over all targets.
func (r *RunReport) Totals() (crawled, newRecords int) {
	for _, t := range r.Targets {
		crawled += t.CrawledCount
		newRecords += t.NewRecordCount
	}
	return crawled, newRecords
}

// CountByStatus returns how many targets ended with status.
func (r *RunReport) CountByStatus(status TargetStatus) int {
	n := 0
	for _, t := range r.Targets {
		if t.Status == status {
			n++
		}
	}
	return n
}

type Orchestrator struct {
	cfg      *config.Config
	logger   *observability.Logger
	registry *adapter.Registry
	engine   *crawl.Engine
	store    *jsonfile.Store
	mirror   Mirror

	now func() time.Time
}

// NewOrchestrator wires the run coordinator. mirror may be nil.
func NewOrchestrator(
	cfg *config.Config,
	logger *observability.Logger,
	registry *adapter.Registry,
	engine *crawl.Engine,
	store *jsonfile.Store,
	mirror Mirror,
) *Orchestrator {
	return &Orchestrator{
		cfg:      cfg,
		logger:   logger,
		registry: registry,
		engine:   engine,
		store:    store,
		mirror:   mirror,
		now:      time.Now,
	}
}

// RunOnce crawls every enabled target and reports per-target outcomes.
// A failing target never stops the others.
func (o *Orchestrator) RunOnce(ctx context.Context) *RunReport {
	targets := o.cfg.EnabledTargets()
	report := &RunReport{
		RunID:     uuid.NewString(),
		StartedAt: o.now().UTC(),
		Targets:   make([]TargetReport, len(targets)),
	}

	var deadline time.Time
	if budget := o.cfg.GetRunBudget(); budget > 0 {
		deadline = report.StartedAt.Add(budget)
	}

	o.logger.Info("Starting run",
		"run_id", report.RunID,
		"targets", len(targets),
		"parallel_targets", o.cfg.Crawl.ParallelTargets,
	)

	var g errgroup.Group
	g.SetLimit(o.cfg.Crawl.ParallelTargets)

	for i, t := range targets {
		i, t := i, t
		g.Go(func() error {
			// Budget is checked when the slot opens, not when the target was queued
			if reason := o.skipReason(ctx, deadline); reason != "" {
				report.Targets[i] = skippedReport(t, reason)
				o.logger.Warn("Target skipped", "target", t.Key, "reason", reason)
				return nil
			}
			report.Targets[i] = o.runTarget(ctx, t, report.RunID)
			return nil
		})
	}
	_ = g.Wait()

	report.FinishedAt = o.now().UTC()
	crawled, newRecords := report.Totals()

	o.logger.Info("Run completed",
		"run_id", report.RunID,
		"targets", len(targets),
		"completed", report.CountByStatus(StatusCompleted),
		"degraded", report.CountByStatus(StatusDegraded),
		"adapter_not_found", report.CountByStatus(StatusAdapterNotFound),
		"persist_failed", report.CountByStatus(StatusPersistFailed),
		"skipped", report.CountByStatus(StatusSkipped),
		"crawled", crawled,
		"new", newRecords,
		"duration", report.FinishedAt.Sub(report.StartedAt).String(),
	)

	return report
}

func (o *Orchestrator) skipReason(ctx context.Context, deadline time.Time) string {
	if ctx.Err() != nil {
		return "run cancelled"
	}
	if !deadline.IsZero() && !o.now().Before(deadline) {
		return "run budget exceeded"
	}
	return ""
}

func (o *Orchestrator) runTarget(ctx context.Context, t config.Target, runID string) TargetReport {
	start := o.now()
	tr := TargetReport{
		Key:         t.Key,
		Name:        t.DisplayName(),
		ID:          t.ID(),
		URL:         t.URL,
		AdapterType: t.CrawlerType,
	}
	log := o.logger.With("run_id", runID, "target", t.Key)

	a, err := o.registry.Resolve(t.CrawlerType)
	if err != nil {
		log.Error("Adapter not found, skipping target",
			"crawler_type", t.CrawlerType,
			"error", err.Error(),
		)
		tr.Status = StatusAdapterNotFound
		tr.Error = err.Error()
		tr.Duration = o.now().Sub(start)
		return tr
	}

	res := o.engine.Traverse(ctx, t, a)
	tr.PagesFetched = res.PagesFetched
	tr.CrawledCount = len(res.Records)
	tr.Retries = res.Retries
	tr.StopReason = res.StopReason
	tr.Status = StatusCompleted
	if res.Status == crawl.Degraded {
		tr.Status = StatusDegraded
	}
	if res.Err != nil {
		tr.Error = res.Err.Error()
	}

	// Partial results of a degraded traversal are still merged
	committedAt := o.now().UTC()
	commit, err := o.store.Commit(t, res.Records, runID, committedAt)
	if commit != nil {
		tr.NewRecordCount = len(commit.NewRecords)
		tr.TotalRecordCount = commit.Dataset.TotalCount
		tr.NewRecords = commit.NewRecords
	}
	if err != nil {
		var perr *storage.PersistenceError
		if errors.As(err, &perr) {
			log.Error("Persist failed", "path", perr.Path, "op", perr.Op, "error", perr.Err.Error())
		} else {
			log.Error("Persist failed", "error", err.Error())
		}
		tr.Status = StatusPersistFailed
		tr.Error = err.Error()
		tr.Duration = o.now().Sub(start)
		return tr
	}

	if o.mirror != nil && len(commit.NewRecords) > 0 {
		if _, err := o.mirror.UpsertRecords(ctx, t, commit.NewRecords, committedAt); err != nil {
			// the JSON dataset is the source of truth; mirror lag is tolerated
			log.Error("Mirror upsert failed", "records", len(commit.NewRecords), "error", err.Error())
		}
	}

	tr.Duration = o.now().Sub(start)
	log.Info("Target finished",
		"status", string(tr.Status),
		"pages", tr.PagesFetched,
		"crawled", tr.CrawledCount,
		"new", tr.NewRecordCount,
		"total", tr.TotalRecordCount,
	)
	return tr
}

func skippedReport(t config.Target, reason string) TargetReport {
	return TargetReport{
		Key:         t.Key,
		Name:        t.DisplayName(),
		ID:          t.ID(),
		URL:         t.URL,
		AdapterType: t.CrawlerType,
		Status:      StatusSkipped,
		StopReason:  reason,
	}
}
