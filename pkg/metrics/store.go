package metrics

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"polaris-ai/polaris/pkg/catalog"
)

// BucketStore is the durable sink for time-bucketed outcome counters.
//
// Upsert must be atomic under unbounded concurrent callers for the same
// key: concurrency control is delegated to the backing store's
// insert-or-accumulate semantics, not an in-process lock.
type BucketStore interface {
	// Upsert accumulates one outcome into the bucket identified by key.
	// The p95/p99 values replace the bucket's running approximations.
	Upsert(ctx context.Context, key BucketKey, kind OutcomeKind, latencyMS int64, p95, p99 float64) error

	// History returns all buckets for (providerID, logicalModel) with
	// window_start >= since, oldest first.
	History(ctx context.Context, providerID, logicalModel string, since time.Time) ([]Bucket, error)

	// TrailingCounts returns the total and error request counts for a
	// provider across all buckets with window_start >= since. Used for
	// health classification.
	TrailingCounts(ctx context.Context, providerID string, since time.Time) (total, errors int64, err error)

	// Prune deletes buckets older than horizon, rolling minute windows up
	// into hourly aggregates first. Returns the number of rows deleted.
	Prune(ctx context.Context, horizon time.Time) (int64, error)

	// Close releases store resources.
	Close() error
}

// SQLiteBucketStore implements BucketStore on SQLite in WAL mode.
//
// The accumulate-upsert uses INSERT ... ON CONFLICT DO UPDATE so that two
// concurrent increments for the same window are both reflected exactly
// once each without a read-modify-write race window.
type SQLiteBucketStore struct {
	db *sql.DB
}

// NewSQLiteBucketStore opens (or creates) the metrics database at path.
func NewSQLiteBucketStore(path string) (*SQLiteBucketStore, error) {
	if path == "" {
		return nil, fmt.Errorf("metrics db path cannot be empty")
	}

	dsn := fmt.Sprintf("%s?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open metrics db: %w", err)
	}

	// SQLite serializes writers; a single connection avoids busy errors
	// under concurrent upserts.
	db.SetMaxOpenConns(1)

	if err := initBucketSchema(db); err != nil {
		db.Close()
		return nil, err
	}
	return &SQLiteBucketStore{db: db}, nil
}

func initBucketSchema(db *sql.DB) error {
	const schema = `
CREATE TABLE IF NOT EXISTS metrics_buckets (
	provider_id        TEXT NOT NULL,
	logical_model      TEXT NOT NULL,
	transport          TEXT NOT NULL,
	is_stream          INTEGER NOT NULL,
	user_id            TEXT NOT NULL DEFAULT '',
	api_key_id         TEXT NOT NULL DEFAULT '',
	window_start       INTEGER NOT NULL,
	success_requests   INTEGER NOT NULL DEFAULT 0,
	error_requests     INTEGER NOT NULL DEFAULT 0,
	cancelled_requests INTEGER NOT NULL DEFAULT 0,
	total_requests     INTEGER NOT NULL DEFAULT 0,
	latency_sum_ms     INTEGER NOT NULL DEFAULT 0,
	latency_p95_ms     REAL NOT NULL DEFAULT 0,
	latency_p99_ms     REAL NOT NULL DEFAULT 0,
	PRIMARY KEY (provider_id, logical_model, transport, is_stream, user_id, api_key_id, window_start)
);
CREATE INDEX IF NOT EXISTS idx_buckets_window ON metrics_buckets(window_start);
CREATE TABLE IF NOT EXISTS metrics_rollup (
	provider_id      TEXT NOT NULL,
	logical_model    TEXT NOT NULL,
	window_start     INTEGER NOT NULL,
	success_requests INTEGER NOT NULL DEFAULT 0,
	error_requests   INTEGER NOT NULL DEFAULT 0,
	total_requests   INTEGER NOT NULL DEFAULT 0,
	latency_sum_ms   INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (provider_id, logical_model, window_start)
);`

	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("failed to initialize metrics schema: %w", err)
	}
	return nil
}

// Upsert accumulates one outcome into its bucket.
func (s *SQLiteBucketStore) Upsert(ctx context.Context, key BucketKey, kind OutcomeKind, latencyMS int64, p95, p99 float64) error {
	var success, errored, cancelled, total int64
	switch kind {
	case OutcomeSuccess:
		success, total = 1, 1
	case OutcomeError:
		errored, total = 1, 1
	case OutcomeCancelled:
		cancelled = 1
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO metrics_buckets (
			provider_id, logical_model, transport, is_stream, user_id, api_key_id, window_start,
			success_requests, error_requests, cancelled_requests, total_requests,
			latency_sum_ms, latency_p95_ms, latency_p99_ms
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(provider_id, logical_model, transport, is_stream, user_id, api_key_id, window_start)
		DO UPDATE SET
			success_requests   = success_requests + excluded.success_requests,
			error_requests     = error_requests + excluded.error_requests,
			cancelled_requests = cancelled_requests + excluded.cancelled_requests,
			total_requests     = total_requests + excluded.total_requests,
			latency_sum_ms     = latency_sum_ms + excluded.latency_sum_ms,
			latency_p95_ms     = excluded.latency_p95_ms,
			latency_p99_ms     = excluded.latency_p99_ms`,
		key.ProviderID, key.LogicalModel, string(key.Transport), boolToInt(key.IsStream),
		key.UserID, key.APIKeyID, key.WindowStart.Unix(),
		success, errored, cancelled, total, latencyMS, p95, p99)
	if err != nil {
		return fmt.Errorf("bucket upsert failed: %w", err)
	}
	return nil
}

// History returns all buckets for (providerID, logicalModel) since the
// given time, oldest first.
func (s *SQLiteBucketStore) History(ctx context.Context, providerID, logicalModel string, since time.Time) ([]Bucket, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT provider_id, logical_model, transport, is_stream, user_id, api_key_id, window_start,
		       success_requests, error_requests, cancelled_requests, total_requests,
		       latency_sum_ms, latency_p95_ms, latency_p99_ms
		FROM metrics_buckets
		WHERE provider_id = ? AND logical_model = ? AND window_start >= ?
		ORDER BY window_start ASC`,
		providerID, logicalModel, since.Unix())
	if err != nil {
		return nil, fmt.Errorf("failed to query bucket history: %w", err)
	}
	defer rows.Close()

	var buckets []Bucket
	for rows.Next() {
		var (
			b          Bucket
			transport  string
			isStream   int
			window     int64
			latencySum int64
		)
		err := rows.Scan(&b.ProviderID, &b.LogicalModel, &transport, &isStream,
			&b.UserID, &b.APIKeyID, &window,
			&b.SuccessRequests, &b.ErrorRequests, &b.CancelledRequests, &b.TotalRequests,
			&latencySum, &b.LatencyP95MS, &b.LatencyP99MS)
		if err != nil {
			return nil, fmt.Errorf("failed to scan bucket: %w", err)
		}

		b.Transport = catalog.Transport(transport)
		b.IsStream = isStream != 0
		b.WindowStart = time.Unix(window, 0).UTC()
		if b.TotalRequests > 0 {
			b.LatencyAvgMS = float64(latencySum) / float64(b.TotalRequests)
			b.ErrorRate = float64(b.ErrorRequests) / float64(b.TotalRequests)
		}
		buckets = append(buckets, b)
	}
	return buckets, rows.Err()
}

// TrailingCounts sums a provider's totals across all buckets since the
// given time.
func (s *SQLiteBucketStore) TrailingCounts(ctx context.Context, providerID string, since time.Time) (int64, int64, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(total_requests), 0), COALESCE(SUM(error_requests), 0)
		FROM metrics_buckets
		WHERE provider_id = ? AND window_start >= ?`,
		providerID, since.Unix())

	var total, errored int64
	if err := row.Scan(&total, &errored); err != nil {
		return 0, 0, fmt.Errorf("failed to query trailing counts: %w", err)
	}
	return total, errored, nil
}

// Prune rolls minute buckets older than horizon up into hourly aggregates
// and deletes them.
func (s *SQLiteBucketStore) Prune(ctx context.Context, horizon time.Time) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin prune transaction: %w", err)
	}
	defer tx.Rollback()

	// Hour-align the rollup windows before deleting the source rows.
	_, err = tx.ExecContext(ctx, `
		INSERT INTO metrics_rollup (provider_id, logical_model, window_start,
			success_requests, error_requests, total_requests, latency_sum_ms)
		SELECT provider_id, logical_model, (window_start / 3600) * 3600,
			SUM(success_requests), SUM(error_requests), SUM(total_requests), SUM(latency_sum_ms)
		FROM metrics_buckets
		WHERE window_start < ?
		GROUP BY provider_id, logical_model, (window_start / 3600) * 3600
		ON CONFLICT(provider_id, logical_model, window_start) DO UPDATE SET
			success_requests = success_requests + excluded.success_requests,
			error_requests   = error_requests + excluded.error_requests,
			total_requests   = total_requests + excluded.total_requests,
			latency_sum_ms   = latency_sum_ms + excluded.latency_sum_ms`,
		horizon.Unix())
	if err != nil {
		return 0, fmt.Errorf("rollup failed: %w", err)
	}

	res, err := tx.ExecContext(ctx,
		`DELETE FROM metrics_buckets WHERE window_start < ?`, horizon.Unix())
	if err != nil {
		return 0, fmt.Errorf("prune failed: %w", err)
	}
	deleted, _ := res.RowsAffected()

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit prune: %w", err)
	}
	return deleted, nil
}

// Close closes the underlying database.
func (s *SQLiteBucketStore) Close() error {
	return s.db.Close()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
