package main

import (
	"context"
	"fmt"
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"govaffairs-crawler/internal/adapter"
	"govaffairs-crawler/internal/app"
	"govaffairs-crawler/internal/crawl"
	"govaffairs-crawler/internal/export"
	"govaffairs-crawler/internal/fetcher"
	"govaffairs-crawler/internal/report"
	"govaffairs-crawler/internal/storage/jsonfile"
	"govaffairs-crawler/internal/storage/sqlmirror"
)

func newRunCommand() *cobra.Command {
	var once bool

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Crawl every enabled target, once or on the configured schedule",
		RunE: func(cmd *cobra.Command, args []string) error {
			if once {
				cfg.Scheduler.Mode = app.ModeOneshot
			}
			return runCrawler()
		},
	}
	cmd.Flags().BoolVar(&once, "once", false, "run a single pass regardless of scheduler.mode")
	return cmd
}

func runCrawler() error {
	ctx, cancel := app.GracefulShutdown(logger)
	defer cancel()

	store, err := jsonfile.NewStore(cfg.Storage.DataDir, cfg.Storage.ShouldRecordEmptyRuns(), logger)
	if err != nil {
		return err
	}

	var mirror app.Mirror
	if cfg.Mirror.Enabled {
		repo, err := sqlmirror.NewRepository(cfg.Mirror, logger)
		if err != nil {
			// JSON datasets stay authoritative; run without the mirror
			logger.Error("Mirror unavailable, continuing without it",
				"driver", cfg.Mirror.Driver,
				"error", err.Error(),
			)
		} else {
			defer func() {
				if err := repo.Close(); err != nil {
					logger.Error("Failed to close mirror", "error", err.Error())
				}
			}()
			mirror = repo
		}
	}

	engine := crawl.NewEngine(fetcher.NewFetcher(cfg, logger), crawl.OptionsFromConfig(cfg), logger)
	orch := app.NewOrchestrator(cfg, logger, adapter.NewDefaultRegistry(), engine, store, mirror)

	logger.Info("Crawler started",
		"targets", len(cfg.EnabledTargets()),
		"scheduler", cfg.Scheduler.Mode,
		"data_dir", cfg.Storage.DataDir,
	)

	sched := app.NewScheduler(cfg, func(ctx context.Context) {
		r := orch.RunOnce(ctx)
		printRunSummary(r)

		if cfg.Report.Enabled {
			path, err := report.Write(r, cfg.Report.OutputDir)
			if err != nil {
				logger.Error("Failed to write report", "error", err.Error())
				return
			}
			logger.Info("Report written", "path", path)
		}
	}, logger)

	return sched.Start(ctx)
}

func printRunSummary(r *app.RunReport) {
	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"Target", "Status", "Pages", "Crawled", "New", "Total"})

	for _, tr := range r.Targets {
		t.AppendRow(table.Row{tr.Key, tr.Status, tr.PagesFetched, tr.CrawledCount, tr.NewRecordCount, tr.TotalRecordCount})
	}

	crawled, newRecords := r.Totals()
	t.AppendFooter(table.Row{"", "", "", crawled, newRecords, ""})
	t.Render()
}

func newStatusCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show a summary of every stored dataset",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := jsonfile.NewStore(cfg.Storage.DataDir, cfg.Storage.ShouldRecordEmptyRuns(), logger)
			if err != nil {
				return err
			}

			summaries, err := store.Summaries()
			if err != nil {
				return err
			}

			t := table.NewWriter()
			t.SetOutputMirror(cmd.OutOrStdout())
			t.SetStyle(table.StyleLight)
			t.AppendHeader(table.Row{"Key", "Name", "Items", "Runs", "Last New", "Last Updated", "ID"})

			for _, s := range summaries {
				lastUpdated := "never"
				if !s.LastUpdated.IsZero() {
					lastUpdated = s.LastUpdated.Local().Format("2006-01-02 15:04:05")
				}
				t.AppendRow(table.Row{s.SourceKey, s.SourceName, s.TotalCount, s.HistoryEntries, s.LatestNewCount, lastUpdated, s.ID})
			}

			t.Render()
			return nil
		},
	}
}

func newExportCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "export <target-key> [file]",
		Short: "Export a target's dataset to CSV",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			target, ok := cfg.FindTarget(args[0])
			if !ok {
				return fmt.Errorf("target not found: %s", args[0])
			}

			output := target.Key + ".csv"
			if len(args) == 2 {
				output = args[1]
			}

			store, err := jsonfile.NewStore(cfg.Storage.DataDir, cfg.Storage.ShouldRecordEmptyRuns(), logger)
			if err != nil {
				return err
			}
			ds, err := store.Load(target)
			if err != nil {
				return err
			}

			if err := export.WriteCSVFile(output, ds); err != nil {
				return err
			}

			logger.Info("Dataset exported", "target", target.Key, "records", len(ds.Items), "file", output)
			return nil
		},
	}
}

func newAdaptersCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "adapters",
		Short: "List registered site adapters",
		RunE: func(cmd *cobra.Command, args []string) error {
			registry := adapter.NewDefaultRegistry()

			t := table.NewWriter()
			t.SetOutputMirror(cmd.OutOrStdout())
			t.SetStyle(table.StyleLight)
			t.AppendHeader(table.Row{"Type", "Base URL", "Targets"})

			for _, siteType := range registry.Types() {
				info, err := registry.Info(siteType)
				if err != nil {
					return err
				}

				configured := 0
				for _, tgt := range cfg.Targets {
					if tgt.CrawlerType == siteType {
						configured++
					}
				}
				t.AppendRow(table.Row{info.Type, info.BaseURL, configured})
			}

			t.Render()
			return nil
		},
	}
}
