package observability

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"govaffairs-crawler/internal/config"
)

func TestNewLoggerWritesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "crawler.log")

	logger, err := NewLogger(config.ObservabilityConfig{
		LogPath:        path,
		LogLevel:       "info",
		LogMaxSizeMB:   1,
		DisableConsole: true,
	})
	if err != nil {
		t.Fatalf("NewLogger: %v", err)
	}

	logger.Debug("hidden", "k", 1)
	logger.Info("visible", "target", "sc_supervision")
	_ = logger.Sync()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	out := string(data)
	if !strings.Contains(out, "visible") || !strings.Contains(out, "sc_supervision") {
		t.Errorf("log file missing entry: %s", out)
	}
	if strings.Contains(out, "hidden") {
		t.Errorf("debug entry should be filtered at info level")
	}
}

func TestNewLoggerRejectsUnknownLevel(t *testing.T) {
	if _, err := NewLogger(config.ObservabilityConfig{LogLevel: "verbose"}); err == nil {
		t.Fatal("expected error for unknown level")
	}
}

func TestWithCarriesFields(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	logger := FromZap(zap.New(core)).With("target", "a")

	logger.Warn("retry", "page", 2)

	entries := logs.All()
	if len(entries) != 1 {
		t.Fatalf("entries = %d, want 1", len(entries))
	}
	ctx := entries[0].ContextMap()
	if ctx["target"] != "a" || ctx["page"] != int64(2) {
		t.Errorf("context = %v", ctx)
	}
}
