package storage

import (
	"encoding/json"
	"reflect"
	"testing"
	"time"
)

func recs(urls ...string) []Record {
	out := make([]Record, 0, len(urls))
	for _, u := range urls {
		out = append(out, Record{Title: "t-" + u, URL: u})
	}
	return out
}

func urlsOf(records []Record) []string {
	out := make([]string, 0, len(records))
	for _, r := range records {
		out = append(out, r.URL)
	}
	return out
}

func TestMergeScenario(t *testing.T) {
	at := time.Date(2026, 10, 14, 8, 0, 0, 0, time.UTC)
	ds := NewDataset("https://fgw.sc.gov.cn/search", "sc", "四川")
	ds.Items = recs("a")
	ds.TotalCount = 1

	merged, added := Merge(ds, recs("a", "b", "b", "c"), at)

	if got := urlsOf(added); !reflect.DeepEqual(got, []string{"b", "c"}) {
		t.Errorf("new records = %v, want [b c]", got)
	}
	if got := urlsOf(merged.Items); !reflect.DeepEqual(got, []string{"a", "b", "c"}) {
		t.Errorf("items = %v, want [a b c]", got)
	}
	if merged.TotalCount != 3 {
		t.Errorf("TotalCount = %d, want 3", merged.TotalCount)
	}
	if !merged.LastUpdated.Equal(at) {
		t.Errorf("LastUpdated = %v, want %v", merged.LastUpdated, at)
	}
	if len(ds.Items) != 1 {
		t.Errorf("input dataset was modified: %v", urlsOf(ds.Items))
	}
}

func TestMergeIdempotent(t *testing.T) {
	candidates := recs("x", "y", "x", "z")
	first, _ := Merge(NewDataset("", "", ""), candidates, time.Now())
	second, added := Merge(first, candidates, time.Now())

	if len(added) != 0 {
		t.Errorf("second merge added %v", urlsOf(added))
	}
	if !reflect.DeepEqual(urlsOf(first.Items), urlsOf(second.Items)) {
		t.Errorf("items changed: %v -> %v", urlsOf(first.Items), urlsOf(second.Items))
	}
	if second.TotalCount != first.TotalCount {
		t.Errorf("TotalCount changed: %d -> %d", first.TotalCount, second.TotalCount)
	}
}

func TestMergeOrderPreservation(t *testing.T) {
	ds := NewDataset("", "", "")
	batches := [][]Record{
		recs("3", "1"),
		recs("2", "1", "4"),
		recs("5", "3", "0"),
	}
	for _, b := range batches {
		ds, _ = Merge(ds, b, time.Now())
	}

	want := []string{"3", "1", "2", "4", "5", "0"}
	if got := urlsOf(ds.Items); !reflect.DeepEqual(got, want) {
		t.Errorf("items = %v, want %v", got, want)
	}
}

func TestMergeDropsEmptyURL(t *testing.T) {
	merged, added := Merge(nil, []Record{{Title: "no url"}, {Title: "ok", URL: "u"}}, time.Now())
	if len(added) != 1 || added[0].URL != "u" {
		t.Errorf("added = %v", added)
	}
	if merged.TotalCount != 1 {
		t.Errorf("TotalCount = %d", merged.TotalCount)
	}
}

func TestMergeFirstOccurrenceWins(t *testing.T) {
	_, added := Merge(nil, []Record{
		{Title: "first", URL: "u"},
		{Title: "second", URL: "u"},
	}, time.Now())
	if len(added) != 1 || added[0].Title != "first" {
		t.Errorf("added = %+v", added)
	}
}

func TestRecordJSONFlattensExtra(t *testing.T) {
	r := Record{Title: "通知", URL: "https://x/1", Extra: map[string]string{"date": "2026-10-01"}}

	data, err := json.Marshal(r)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var raw map[string]string
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatalf("unmarshal raw: %v", err)
	}
	if raw["title"] != "通知" || raw["url"] != "https://x/1" || raw["date"] != "2026-10-01" {
		t.Errorf("encoded = %s", data)
	}

	var back Record
	if err := json.Unmarshal([]byte(`{"title":"t","url":"u","discovered_at":"d","rank":3}`), &back); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if back.Title != "t" || back.URL != "u" || back.Extra["discovered_at"] != "d" || back.Extra["rank"] != "3" {
		t.Errorf("decoded = %+v", back)
	}
}
