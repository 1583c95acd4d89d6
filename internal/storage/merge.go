package storage

import "time"

// NewDataset returns an empty dataset for a target.
func NewDataset(url, key, name string) *Dataset {
	return &Dataset{
		URL:        url,
		SourceKey:  key,
		SourceName: name,
		Items:      []Record{},
	}
}

// Merge appends the candidates whose URL is not yet in ds and returns the
// updated copy together with the newly added records. Candidates with an
// empty URL are dropped, duplicates inside the batch collapse to the first
// occurrence, and existing items keep their order. ds itself is not
// modified.
func Merge(ds *Dataset, candidates []Record, at time.Time) (*Dataset, []Record) {
	if ds == nil {
		ds = NewDataset("", "", "")
	}

	seen := make(map[string]struct{}, len(ds.Items)+len(candidates))
	for _, item := range ds.Items {
		seen[item.URL] = struct{}{}
	}

	newRecords := []Record{}
	for _, c := range candidates {
		if c.URL == "" {
			continue
		}
		if _, ok := seen[c.URL]; ok {
			continue
		}
		seen[c.URL] = struct{}{}
		newRecords = append(newRecords, c)
	}

	items := make([]Record, 0, len(ds.Items)+len(newRecords))
	items = append(items, ds.Items...)
	items = append(items, newRecords...)

	merged := *ds
	merged.Items = items
	merged.TotalCount = len(items)
	merged.LastUpdated = at
	return &merged, newRecords
}
