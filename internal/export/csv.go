// Package export projects a stored dataset into other formats.
package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"sort"

	"govaffairs-crawler/internal/storage"
)

// WriteCSV writes ds as CSV with columns title, url and then every extra
// field key found in the items, sorted. Missing extra values are empty.
func WriteCSV(w io.Writer, ds *storage.Dataset) error {
	extraKeys := collectExtraKeys(ds.Items)

	cw := csv.NewWriter(w)
	header := append([]string{"title", "url"}, extraKeys...)
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("failed to write csv header: %w", err)
	}

	row := make([]string, len(header))
	for _, rec := range ds.Items {
		row[0] = rec.Title
		row[1] = rec.URL
		for i, k := range extraKeys {
			row[i+2] = rec.Extra[k]
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("failed to write csv row: %w", err)
		}
	}

	cw.Flush()
	return cw.Error()
}

// WriteCSVFile writes ds to path, replacing any existing file.
func WriteCSVFile(path string, ds *storage.Dataset) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}

	if err := WriteCSV(f, ds); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

func collectExtraKeys(items []storage.Record) []string {
	seen := map[string]struct{}{}
	for _, rec := range items {
		for k := range rec.Extra {
			seen[k] = struct{}{}
		}
	}

	keys := make([]string, 0, len(seen))
	for k := range seen {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
