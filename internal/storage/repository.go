package storage

import (
	"encoding/json"
	"fmt"
	"time"
)

// Record is one extracted item. It is identified solely by URL.
// Extra carries adapter-defined fields and is flattened next to
// title and url when encoded.
type Record struct {
	Title string
	URL   string
	Extra map[string]string
}

func (r Record) MarshalJSON() ([]byte, error) {
	out := make(map[string]string, len(r.Extra)+2)
	for k, v := range r.Extra {
		out[k] = v
	}
	out["title"] = r.Title
	out["url"] = r.URL
	return json.Marshal(out)
}

func (r *Record) UnmarshalJSON(data []byte) error {
	var raw map[string]interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*r = Record{}
	for k, v := range raw {
		var s string
		switch val := v.(type) {
		case string:
			s = val
		case nil:
			continue
		default:
			s = fmt.Sprint(val)
		}
		switch k {
		case "title":
			r.Title = s
		case "url":
			r.URL = s
		default:
			if r.Extra == nil {
				r.Extra = make(map[string]string)
			}
			r.Extra[k] = s
		}
	}
	return nil
}

// Dataset is the compacted current state of one target.
type Dataset struct {
	URL         string    `json:"url"`
	SourceKey   string    `json:"source_key,omitempty"`
	SourceName  string    `json:"source_name,omitempty"`
	LastUpdated time.Time `json:"last_updated"`
	TotalCount  int       `json:"total_count"`
	Items       []Record  `json:"items"`
}

// HistoryEntry records what one run discovered.
type HistoryEntry struct {
	Timestamp  time.Time `json:"timestamp"`
	RunID      string    `json:"run_id,omitempty"`
	NewCount   int       `json:"new_count"`
	NewRecords []Record  `json:"new_records"`
}

// Summary is a short description of a persisted dataset.
type Summary struct {
	ID             string
	URL            string
	SourceKey      string
	SourceName     string
	TotalCount     int
	LastUpdated    time.Time
	HistoryEntries int
	LatestNewCount int
}

// PersistenceError is returned when a dataset or history file cannot be
// written. The previously persisted file is left in place.
type PersistenceError struct {
	Path string
	Op   string
	Err  error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persist %s (%s): %v", e.Path, e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}
