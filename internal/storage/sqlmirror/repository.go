// Package sqlmirror copies newly discovered records into a SQL table so
// downstream systems can query them without reading the JSON datasets.
package sqlmirror

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"regexp"
	"time"

	_ "github.com/lib/pq"
	_ "github.com/microsoft/go-mssqldb"

	"govaffairs-crawler/internal/checksum"
	"govaffairs-crawler/internal/config"
	"govaffairs-crawler/internal/observability"
	"govaffairs-crawler/internal/storage"
)

const (
	DriverMSSQL    = "mssql"
	DriverPostgres = "postgres"
)

var tableNamePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

type Repository struct {
	db             *sql.DB
	driver         string
	query          string
	commandTimeout time.Duration
	checksum       *checksum.Generator
	logger         *observability.Logger
}

// NewRepository opens the mirror database and verifies the connection.
func NewRepository(cfg config.MirrorConfig, logger *observability.Logger) (*Repository, error) {
	driverName, err := sqlDriverName(cfg.Driver)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open(driverName, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Fail fast on unreachable servers
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	repo, err := newWithDB(db, cfg.Driver, cfg.Table, time.Duration(cfg.CommandTimeoutMS)*time.Millisecond, logger)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return repo, nil
}

func newWithDB(db *sql.DB, driver, table string, commandTimeout time.Duration, logger *observability.Logger) (*Repository, error) {
	query, err := upsertQuery(driver, table)
	if err != nil {
		return nil, err
	}
	return &Repository{
		db:             db,
		driver:         driver,
		query:          query,
		commandTimeout: commandTimeout,
		checksum:       checksum.NewGenerator(),
		logger:         logger,
	}, nil
}

func sqlDriverName(driver string) (string, error) {
	switch driver {
	case DriverMSSQL:
		return "sqlserver", nil
	case DriverPostgres:
		return "postgres", nil
	default:
		return "", fmt.Errorf("unsupported mirror driver: %s", driver)
	}
}

// upsertQuery builds the per-record upsert statement keyed on the record URL.
func upsertQuery(driver, table string) (string, error) {
	if !tableNamePattern.MatchString(table) {
		return "", fmt.Errorf("invalid mirror table name: %q", table)
	}

	switch driver {
	case DriverMSSQL:
		return fmt.Sprintf(`
		MERGE INTO [%s] AS target
		USING (SELECT @URL AS URL) AS source
		ON target.[URL] = source.URL
		WHEN MATCHED THEN
			UPDATE SET
				[Title] = @Title,
				[Extra] = @Extra,
				[CheckSum] = @CheckSum,
				[LastSeen] = @SeenAt
		WHEN NOT MATCHED THEN
			INSERT ([TargetKey], [TargetID], [Title], [URL], [Extra], [CheckSum], [FirstSeen], [LastSeen])
			VALUES (@TargetKey, @TargetID, @Title, @URL, @Extra, @CheckSum, @SeenAt, @SeenAt);
	`, table), nil
	case DriverPostgres:
		return fmt.Sprintf(`
		INSERT INTO %s (target_key, target_id, title, url, extra, checksum, first_seen, last_seen)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $7)
		ON CONFLICT (url) DO UPDATE SET
			title = EXCLUDED.title,
			extra = EXCLUDED.extra,
			checksum = EXCLUDED.checksum,
			last_seen = EXCLUDED.last_seen
	`, table), nil
	default:
		return "", fmt.Errorf("unsupported mirror driver: %s", driver)
	}
}

// UpsertRecords writes records for target in a single transaction and
// returns how many rows the database reported as affected.
func (r *Repository) UpsertRecords(ctx context.Context, target config.Target, records []storage.Record, seenAt time.Time) (int64, error) {
	if len(records) == 0 {
		return 0, nil
	}

	ctx, cancel := context.WithTimeout(ctx, r.commandTimeout)
	defer cancel()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		// no-op after a successful commit
		_ = tx.Rollback()
	}()

	stmt, err := tx.PrepareContext(ctx, r.query)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer func() {
		if err := stmt.Close(); err != nil {
			r.logger.Error("Failed to close statement", "error", err.Error())
		}
	}()

	targetID := target.ID()
	var affected int64
	for _, rec := range records {
		args, err := r.args(target.Key, targetID, rec, seenAt.UTC())
		if err != nil {
			return 0, err
		}

		result, err := stmt.ExecContext(ctx, args...)
		if err != nil {
			return 0, fmt.Errorf("failed to execute upsert for %s: %w", rec.URL, err)
		}

		n, err := result.RowsAffected()
		if err != nil {
			return 0, fmt.Errorf("failed to get rows affected: %w", err)
		}
		affected += n
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit transaction: %w", err)
	}

	r.logger.Debug("Mirrored records",
		"target", target.Key,
		"driver", r.driver,
		"records", len(records),
		"rows_affected", affected,
	)

	return affected, nil
}

func (r *Repository) args(targetKey, targetID string, rec storage.Record, seenAt time.Time) ([]interface{}, error) {
	extra := "{}"
	if len(rec.Extra) > 0 {
		b, err := json.Marshal(rec.Extra)
		if err != nil {
			return nil, fmt.Errorf("failed to encode extra fields: %w", err)
		}
		extra = string(b)
	}
	sum := r.checksum.GenerateRecordHash(rec.URL, rec.Title)

	if r.driver == DriverMSSQL {
		return []interface{}{
			sql.Named("TargetKey", targetKey),
			sql.Named("TargetID", targetID),
			sql.Named("Title", rec.Title),
			sql.Named("URL", rec.URL),
			sql.Named("Extra", extra),
			sql.Named("CheckSum", sum),
			sql.Named("SeenAt", seenAt),
		}, nil
	}
	return []interface{}{targetKey, targetID, rec.Title, rec.URL, extra, sum, seenAt}, nil
}

// Close closes the database connection.
func (r *Repository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}
