package jsonfile

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"govaffairs-crawler/internal/checksum"
	"govaffairs-crawler/internal/config"
	"govaffairs-crawler/internal/observability"
	"govaffairs-crawler/internal/storage"
)

func newTestStore(t *testing.T, recordEmptyRuns bool) *Store {
	t.Helper()
	s, err := NewStore(t.TempDir(), recordEmptyRuns, observability.NewNop())
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	return s
}

func testTarget() config.Target {
	return config.Target{
		Key:         "sc_supervision",
		Name:        "四川发改委监督信息",
		URL:         "https://fgw.sc.gov.cn/search?keyword=监督",
		CrawlerType: "sichuan_fgw",
	}
}

func records(urls ...string) []storage.Record {
	out := make([]storage.Record, 0, len(urls))
	for _, u := range urls {
		out = append(out, storage.Record{Title: "title " + u, URL: u})
	}
	return out
}

func urlsOf(rs []storage.Record) []string {
	out := make([]string, 0, len(rs))
	for _, r := range rs {
		out = append(out, r.URL)
	}
	return out
}

func TestLoadMissingReturnsEmptyDataset(t *testing.T) {
	s := newTestStore(t, true)
	tgt := testTarget()

	ds, err := s.Load(tgt)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if ds.TotalCount != 0 || len(ds.Items) != 0 {
		t.Errorf("expected empty dataset, got %+v", ds)
	}
	if ds.URL != tgt.URL || ds.SourceKey != tgt.Key {
		t.Errorf("dataset not bound to target: %+v", ds)
	}
}

func TestCommitEndToEnd(t *testing.T) {
	s := newTestStore(t, true)
	tgt := testTarget()

	if _, err := s.Commit(tgt, records("a"), "run-1", time.Now()); err != nil {
		t.Fatalf("first commit: %v", err)
	}

	res, err := s.Commit(tgt, records("a", "b", "b", "c"), "run-2", time.Now())
	if err != nil {
		t.Fatalf("second commit: %v", err)
	}
	if got := urlsOf(res.NewRecords); !reflect.DeepEqual(got, []string{"b", "c"}) {
		t.Errorf("new = %v, want [b c]", got)
	}

	ds, err := s.Load(tgt)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got := urlsOf(ds.Items); !reflect.DeepEqual(got, []string{"a", "b", "c"}) {
		t.Errorf("items = %v", got)
	}
	if ds.TotalCount != 3 {
		t.Errorf("TotalCount = %d", ds.TotalCount)
	}

	history, err := s.History(tgt)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("history entries = %d, want 2", len(history))
	}
	last := history[1]
	if last.NewCount != 2 || last.RunID != "run-2" || !reflect.DeepEqual(urlsOf(last.NewRecords), []string{"b", "c"}) {
		t.Errorf("last history entry = %+v", last)
	}
}

func TestCommitDatasetWithoutURL(t *testing.T) {
	s := newTestStore(t, true)
	tgt := testTarget()

	// Datasets written by hand or by older versions may lack the url field.
	if err := os.WriteFile(s.DatasetPath(tgt.ID()), []byte(`{"items":[{"title":"t","url":"a"}]}`), 0o644); err != nil {
		t.Fatalf("seed dataset: %v", err)
	}

	res, err := s.Commit(tgt, records("b"), "run-1", time.Now())
	if err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if got := urlsOf(res.NewRecords); !reflect.DeepEqual(got, []string{"b"}) {
		t.Errorf("new = %v, want [b]", got)
	}

	ds, err := s.Load(tgt)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got := urlsOf(ds.Items); !reflect.DeepEqual(got, []string{"a", "b"}) {
		t.Errorf("items = %v, want [a b]", got)
	}
	if ds.URL != tgt.URL {
		t.Errorf("URL = %q, want %q", ds.URL, tgt.URL)
	}

	history, err := s.History(tgt)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(history) != 1 {
		t.Errorf("history entries = %d, want 1", len(history))
	}

	if _, err := os.Stat(s.DatasetPath(checksum.TargetID(""))); !os.IsNotExist(err) {
		t.Errorf("dataset written under the empty-URL name: %v", err)
	}
}

func TestAppendHistoryEmptyRunPolicy(t *testing.T) {
	tgt := testTarget()

	recording := newTestStore(t, true)
	ok, err := recording.AppendHistory(tgt, nil, "r", time.Now())
	if err != nil || !ok {
		t.Fatalf("AppendHistory = %v, %v; want recorded", ok, err)
	}
	h, _ := recording.History(tgt)
	if len(h) != 1 || h[0].NewCount != 0 || h[0].NewRecords == nil {
		t.Errorf("empty run entry = %+v", h)
	}

	skipping := newTestStore(t, false)
	ok, err = skipping.AppendHistory(tgt, nil, "r", time.Now())
	if err != nil || ok {
		t.Fatalf("AppendHistory = %v, %v; want skipped", ok, err)
	}
	if _, err := os.Stat(skipping.HistoryPath(tgt.ID())); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("history file should not exist, stat err = %v", err)
	}
}

func TestPersistCrashBeforeRenameKeepsPreviousDataset(t *testing.T) {
	s := newTestStore(t, true)
	tgt := testTarget()

	if _, err := s.Commit(tgt, records("a", "b"), "run-1", time.Now()); err != nil {
		t.Fatalf("commit: %v", err)
	}

	s.rename = func(oldpath, newpath string) error {
		return errors.New("simulated crash")
	}

	_, err := s.Commit(tgt, records("c"), "run-2", time.Now())
	var perr *storage.PersistenceError
	if !errors.As(err, &perr) {
		t.Fatalf("expected PersistenceError, got %v", err)
	}
	if perr.Op != "rename" {
		t.Errorf("Op = %q, want rename", perr.Op)
	}

	s.rename = os.Rename
	ds, err := s.Load(tgt)
	if err != nil {
		t.Fatalf("Load after failed persist: %v", err)
	}
	if got := urlsOf(ds.Items); !reflect.DeepEqual(got, []string{"a", "b"}) {
		t.Errorf("items = %v, want prior dataset [a b]", got)
	}

	entries, _ := os.ReadDir(s.dir)
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), ".tmp") {
			t.Errorf("temp file left behind: %s", e.Name())
		}
	}
}

func TestLeftoverTempFileIsIgnored(t *testing.T) {
	s := newTestStore(t, true)
	tgt := testTarget()

	if _, err := s.Commit(tgt, records("a"), "run-1", time.Now()); err != nil {
		t.Fatalf("commit: %v", err)
	}

	// A process killed mid-write leaves a truncated temp file next to the dataset.
	tmp := s.DatasetPath(tgt.ID()) + ".123.tmp"
	if err := os.WriteFile(tmp, []byte(`{"url": "x", "items": [`), 0o644); err != nil {
		t.Fatalf("write tmp: %v", err)
	}

	ds, err := s.Load(tgt)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if ds.TotalCount != 1 {
		t.Errorf("TotalCount = %d, want 1", ds.TotalCount)
	}

	sums, err := s.Summaries()
	if err != nil {
		t.Fatalf("Summaries: %v", err)
	}
	if len(sums) != 1 {
		t.Errorf("summaries = %d, want 1", len(sums))
	}
}

func TestLoadCorruptDatasetFails(t *testing.T) {
	s := newTestStore(t, true)
	tgt := testTarget()

	if err := os.WriteFile(s.DatasetPath(tgt.ID()), []byte("{not json"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	_, err := s.Load(tgt)
	var perr *storage.PersistenceError
	if !errors.As(err, &perr) || perr.Op != "load" {
		t.Fatalf("expected load PersistenceError, got %v", err)
	}
}

func TestSummaries(t *testing.T) {
	s := newTestStore(t, true)

	a := config.Target{Key: "a", URL: "https://a.example/s"}
	b := config.Target{Key: "b", URL: "https://b.example/s"}

	if _, err := s.Commit(b, records("1", "2"), "r1", time.Now()); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Commit(a, records("1"), "r1", time.Now()); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Commit(a, records("1", "2", "3"), "r2", time.Now()); err != nil {
		t.Fatal(err)
	}

	sums, err := s.Summaries()
	if err != nil {
		t.Fatalf("Summaries: %v", err)
	}
	if len(sums) != 2 {
		t.Fatalf("summaries = %d, want 2", len(sums))
	}
	if sums[0].SourceKey != "a" || sums[0].TotalCount != 3 || sums[0].HistoryEntries != 2 || sums[0].LatestNewCount != 2 {
		t.Errorf("summary a = %+v", sums[0])
	}
	if sums[1].SourceKey != "b" || sums[1].TotalCount != 2 {
		t.Errorf("summary b = %+v", sums[1])
	}
	if filepath.Base(s.DatasetPath(sums[0].ID)) != a.ID()+".json" {
		t.Errorf("summary ID %s does not match target ID %s", sums[0].ID, a.ID())
	}
}
