// Package jsonfile keeps one dataset snapshot and one append-only history
// file per target on the local filesystem.
//
// Both files are replaced atomically: content goes to a temp file in the
// same directory, is fsynced, and is then renamed over the canonical path.
package jsonfile

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"govaffairs-crawler/internal/checksum"
	"govaffairs-crawler/internal/config"
	"govaffairs-crawler/internal/observability"
	"govaffairs-crawler/internal/storage"
)

const (
	datasetExt    = ".json"
	historySuffix = "_history.json"
)

type Store struct {
	dir             string
	recordEmptyRuns bool
	logger          *observability.Logger

	locks sync.Map // target ID -> *sync.Mutex

	// swapped in tests to simulate a crash before the rename
	rename func(oldpath, newpath string) error
}

// CommitResult is what one load→merge→persist→history cycle produced.
type CommitResult struct {
	Dataset         *storage.Dataset
	NewRecords      []storage.Record
	HistoryRecorded bool
}

func NewStore(dir string, recordEmptyRuns bool, logger *observability.Logger) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data dir %s: %w", dir, err)
	}
	return &Store{
		dir:             dir,
		recordEmptyRuns: recordEmptyRuns,
		logger:          logger,
		rename:          os.Rename,
	}, nil
}

func (s *Store) DatasetPath(id string) string {
	return filepath.Join(s.dir, id+datasetExt)
}

func (s *Store) HistoryPath(id string) string {
	return filepath.Join(s.dir, id+historySuffix)
}

// Load reads the persisted dataset of t. A target that was never crawled
// yields an empty dataset, not an error.
func (s *Store) Load(t config.Target) (*storage.Dataset, error) {
	path := s.DatasetPath(t.ID())

	var ds storage.Dataset
	found, err := readJSON(path, &ds)
	if err != nil {
		return nil, &storage.PersistenceError{Path: path, Op: "load", Err: err}
	}
	if !found {
		return storage.NewDataset(t.URL, t.Key, t.DisplayName()), nil
	}
	if ds.Items == nil {
		ds.Items = []storage.Record{}
	}
	// The file name is derived from the target URL, so a dataset loaded
	// from it must persist back to the same name.
	ds.URL = t.URL
	ds.TotalCount = len(ds.Items)
	return &ds, nil
}

// Persist atomically replaces the dataset file.
func (s *Store) Persist(ds *storage.Dataset) error {
	return s.writeJSON(s.DatasetPath(checksum.TargetID(ds.URL)), ds)
}

// AppendHistory appends one entry to the history of t. Runs without new
// records are skipped unless the store records empty runs. The returned
// flag tells whether an entry was written.
func (s *Store) AppendHistory(t config.Target, newRecords []storage.Record, runID string, ts time.Time) (bool, error) {
	if len(newRecords) == 0 && !s.recordEmptyRuns {
		return false, nil
	}

	history, err := s.History(t)
	if err != nil {
		return false, err
	}

	if newRecords == nil {
		newRecords = []storage.Record{}
	}
	history = append(history, storage.HistoryEntry{
		Timestamp:  ts,
		RunID:      runID,
		NewCount:   len(newRecords),
		NewRecords: newRecords,
	})

	if err := s.writeJSON(s.HistoryPath(t.ID()), history); err != nil {
		return false, err
	}
	return true, nil
}

// History returns every entry recorded for t, oldest first.
func (s *Store) History(t config.Target) ([]storage.HistoryEntry, error) {
	path := s.HistoryPath(t.ID())

	var history []storage.HistoryEntry
	if _, err := readJSON(path, &history); err != nil {
		return nil, &storage.PersistenceError{Path: path, Op: "load", Err: err}
	}
	return history, nil
}

// Commit runs the whole incremental update for one target under that
// target's lock. The dataset is persisted before history is appended, so
// a failed history write never loses merged items.
func (s *Store) Commit(t config.Target, candidates []storage.Record, runID string, at time.Time) (*CommitResult, error) {
	mu := s.lockFor(t.ID())
	mu.Lock()
	defer mu.Unlock()

	ds, err := s.Load(t)
	if err != nil {
		return nil, err
	}
	ds.SourceKey = t.Key
	ds.SourceName = t.DisplayName()

	merged, newRecords := storage.Merge(ds, candidates, at)
	if err := s.Persist(merged); err != nil {
		return nil, err
	}

	recorded, err := s.AppendHistory(t, newRecords, runID, at)
	if err != nil {
		return &CommitResult{Dataset: merged, NewRecords: newRecords}, err
	}

	s.logger.Info("Dataset saved",
		"target", t.Key,
		"total", merged.TotalCount,
		"new", len(newRecords),
	)
	return &CommitResult{Dataset: merged, NewRecords: newRecords, HistoryRecorded: recorded}, nil
}

// Summaries describes every dataset found in the data directory, sorted by
// source key.
func (s *Store) Summaries() ([]storage.Summary, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read data dir: %w", err)
	}

	var summaries []storage.Summary
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, datasetExt) || strings.HasSuffix(name, historySuffix) {
			continue
		}
		id := strings.TrimSuffix(name, datasetExt)

		var ds storage.Dataset
		if _, err := readJSON(filepath.Join(s.dir, name), &ds); err != nil {
			s.logger.Error("Failed to read dataset", "file", name, "error", err.Error())
			continue
		}

		sum := storage.Summary{
			ID:          id,
			URL:         ds.URL,
			SourceKey:   ds.SourceKey,
			SourceName:  ds.SourceName,
			TotalCount:  len(ds.Items),
			LastUpdated: ds.LastUpdated,
		}

		var history []storage.HistoryEntry
		if _, err := readJSON(s.HistoryPath(id), &history); err == nil && len(history) > 0 {
			sum.HistoryEntries = len(history)
			sum.LatestNewCount = history[len(history)-1].NewCount
		}
		summaries = append(summaries, sum)
	}

	sort.Slice(summaries, func(i, j int) bool {
		if summaries[i].SourceKey != summaries[j].SourceKey {
			return summaries[i].SourceKey < summaries[j].SourceKey
		}
		return summaries[i].ID < summaries[j].ID
	})
	return summaries, nil
}

func (s *Store) lockFor(id string) *sync.Mutex {
	mu, _ := s.locks.LoadOrStore(id, &sync.Mutex{})
	return mu.(*sync.Mutex)
}

func (s *Store) writeJSON(path string, v interface{}) error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return &storage.PersistenceError{Path: path, Op: "encode", Err: err}
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return &storage.PersistenceError{Path: path, Op: "create temp", Err: err}
	}
	tmpPath := tmp.Name()

	fail := func(op string, err error) error {
		_ = tmp.Close()
		if rmErr := os.Remove(tmpPath); rmErr != nil && !errors.Is(rmErr, fs.ErrNotExist) {
			s.logger.Warn("Failed to remove temp file", "path", tmpPath, "error", rmErr.Error())
		}
		return &storage.PersistenceError{Path: path, Op: op, Err: err}
	}

	if _, err := tmp.Write(buf.Bytes()); err != nil {
		return fail("write", err)
	}
	if err := tmp.Sync(); err != nil {
		return fail("sync", err)
	}
	if err := tmp.Close(); err != nil {
		return fail("close", err)
	}
	if err := s.rename(tmpPath, path); err != nil {
		return fail("rename", err)
	}
	return nil
}

// readJSON decodes path into v. found is false when the file does not exist.
func readJSON(path string, v interface{}) (found bool, err error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return true, fmt.Errorf("failed to parse %s: %w", filepath.Base(path), err)
	}
	return true, nil
}
