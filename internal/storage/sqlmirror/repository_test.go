package sqlmirror

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"govaffairs-crawler/internal/checksum"
	"govaffairs-crawler/internal/config"
	"govaffairs-crawler/internal/observability"
	"govaffairs-crawler/internal/storage"
)

var testTarget = config.Target{Key: "sc", URL: "https://fgw.sc.gov.cn/search?q=x", CrawlerType: "sichuan_fgw"}

func TestUpsertQuery(t *testing.T) {
	tests := []struct {
		name     string
		driver   string
		table    string
		contains []string
		wantErr  bool
	}{
		{
			name:     "mssql merge",
			driver:   DriverMSSQL,
			table:    "crawled_records",
			contains: []string{"MERGE INTO [crawled_records]", "@URL", "WHEN NOT MATCHED THEN"},
		},
		{
			name:     "postgres upsert",
			driver:   DriverPostgres,
			table:    "crawled_records",
			contains: []string{"INSERT INTO crawled_records", "ON CONFLICT (url) DO UPDATE", "$7"},
		},
		{name: "unknown driver", driver: "sqlite", table: "t", wantErr: true},
		{name: "injected table name", driver: DriverPostgres, table: "t; DROP TABLE x", wantErr: true},
		{name: "empty table name", driver: DriverMSSQL, table: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q, err := upsertQuery(tt.driver, tt.table)
			if (err != nil) != tt.wantErr {
				t.Fatalf("upsertQuery() error = %v, wantErr %v", err, tt.wantErr)
			}
			for _, s := range tt.contains {
				if !strings.Contains(q, s) {
					t.Errorf("query missing %q:\n%s", s, q)
				}
			}
		})
	}
}

func TestSQLDriverName(t *testing.T) {
	if got, _ := sqlDriverName(DriverMSSQL); got != "sqlserver" {
		t.Errorf("mssql driver = %q", got)
	}
	if got, _ := sqlDriverName(DriverPostgres); got != "postgres" {
		t.Errorf("postgres driver = %q", got)
	}
	if _, err := sqlDriverName("oracle"); err == nil {
		t.Error("expected error for unknown driver")
	}
}

func TestUpsertRecordsPostgres(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	defer db.Close()

	repo, err := newWithDB(db, DriverPostgres, "crawled_records", time.Second, observability.NewNop())
	if err != nil {
		t.Fatalf("newWithDB: %v", err)
	}

	records := []storage.Record{
		{Title: "Notice A", URL: "https://fgw.sc.gov.cn/a.shtml"},
		{Title: "Notice B", URL: "https://fgw.sc.gov.cn/b.shtml", Extra: map[string]string{"date": "2024-01-02"}},
	}
	sum := checksum.NewGenerator()

	mock.ExpectBegin()
	prep := mock.ExpectPrepare(regexp.QuoteMeta("INSERT INTO crawled_records"))
	prep.ExpectExec().
		WithArgs("sc", testTarget.ID(), "Notice A", records[0].URL, "{}", sum.GenerateRecordHash(records[0].URL, "Notice A"), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	prep.ExpectExec().
		WithArgs("sc", testTarget.ID(), "Notice B", records[1].URL, `{"date":"2024-01-02"}`, sum.GenerateRecordHash(records[1].URL, "Notice B"), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	n, err := repo.UpsertRecords(context.Background(), testTarget, records, time.Now())
	if err != nil {
		t.Fatalf("UpsertRecords: %v", err)
	}
	if n != 2 {
		t.Errorf("rows affected = %d, want 2", n)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestUpsertRecordsMSSQL(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	defer db.Close()

	repo, err := newWithDB(db, DriverMSSQL, "crawled_records", time.Second, observability.NewNop())
	if err != nil {
		t.Fatalf("newWithDB: %v", err)
	}

	mock.ExpectBegin()
	mock.ExpectPrepare(regexp.QuoteMeta("MERGE INTO [crawled_records]")).
		ExpectExec().
		WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	records := []storage.Record{{Title: "Notice A", URL: "https://fgw.sc.gov.cn/a.shtml"}}
	if _, err := repo.UpsertRecords(context.Background(), testTarget, records, time.Now()); err != nil {
		t.Fatalf("UpsertRecords: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestUpsertRecordsRollsBackOnError(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	defer db.Close()

	repo, err := newWithDB(db, DriverPostgres, "crawled_records", time.Second, observability.NewNop())
	if err != nil {
		t.Fatalf("newWithDB: %v", err)
	}

	mock.ExpectBegin()
	mock.ExpectPrepare("INSERT INTO crawled_records").
		ExpectExec().
		WillReturnError(errors.New("connection reset"))
	mock.ExpectRollback()

	records := []storage.Record{{Title: "Notice A", URL: "https://fgw.sc.gov.cn/a.shtml"}}
	if _, err := repo.UpsertRecords(context.Background(), testTarget, records, time.Now()); err == nil {
		t.Fatal("expected error")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestUpsertRecordsEmptyIsNoop(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	defer db.Close()

	repo, _ := newWithDB(db, DriverPostgres, "crawled_records", time.Second, observability.NewNop())
	n, err := repo.UpsertRecords(context.Background(), testTarget, nil, time.Now())
	if err != nil || n != 0 {
		t.Errorf("UpsertRecords(nil) = %d, %v", n, err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unexpected database activity: %v", err)
	}
}
