package catalog

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// Store is the read-only view of the durable provider configuration store.
// Provider CRUD is owned by external collaborators; the catalog only reads
// full snapshots during rebuilds.
type Store interface {
	// ListProviders returns all provider configuration records.
	ListProviders(ctx context.Context) ([]ProviderRecord, error)

	// GetProvider returns one provider record by ID.
	// Returns sql.ErrNoRows-equivalent nil record and false if absent.
	GetProvider(ctx context.Context, id string) (*ProviderRecord, bool, error)

	// Close releases store resources.
	Close() error
}

// SQLiteStore implements Store against the provider configuration database
// maintained by the surrounding admin surfaces.
//
// The database is opened in WAL mode with a busy timeout so catalog
// rebuilds tolerate concurrent admin writes.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens the provider configuration database at path and
// ensures the schema exists.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if path == "" {
		return nil, fmt.Errorf("provider store path cannot be empty")
	}

	dsn := fmt.Sprintf("%s?_journal_mode=WAL&_busy_timeout=5000", path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open provider store: %w", err)
	}

	if err := initSchema(db); err != nil {
		db.Close()
		return nil, err
	}

	return &SQLiteStore{db: db}, nil
}

func initSchema(db *sql.DB) error {
	const schema = `
CREATE TABLE IF NOT EXISTS providers (
	id                     TEXT PRIMARY KEY,
	base_url               TEXT NOT NULL,
	api_key                TEXT NOT NULL DEFAULT '',
	transport              TEXT NOT NULL DEFAULT 'http',
	weight                 REAL NOT NULL DEFAULT 1.0,
	max_qps                INTEGER NOT NULL DEFAULT 0,
	retryable_status_codes TEXT NOT NULL DEFAULT '[]',
	status                 TEXT NOT NULL DEFAULT 'healthy',
	last_check             TIMESTAMP
);
CREATE TABLE IF NOT EXISTS provider_models (
	provider_id  TEXT NOT NULL REFERENCES providers(id) ON DELETE CASCADE,
	physical_id  TEXT NOT NULL,
	logical_id   TEXT NOT NULL,
	capabilities TEXT NOT NULL DEFAULT '[]',
	PRIMARY KEY (provider_id, physical_id)
);
CREATE INDEX IF NOT EXISTS idx_provider_models_logical ON provider_models(logical_id);`

	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("failed to initialize provider store schema: %w", err)
	}
	return nil
}

// ListProviders returns all provider records with their model mappings.
func (s *SQLiteStore) ListProviders(ctx context.Context) ([]ProviderRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, base_url, api_key, transport, weight, max_qps,
		       retryable_status_codes, status, last_check
		FROM providers ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query providers: %w", err)
	}
	defer rows.Close()

	var records []ProviderRecord
	for rows.Next() {
		rec, err := scanProvider(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate providers: %w", err)
	}

	for i := range records {
		models, err := s.listModels(ctx, records[i].ID)
		if err != nil {
			return nil, err
		}
		records[i].Models = models
	}
	return records, nil
}

// GetProvider returns one provider record by ID.
func (s *SQLiteStore) GetProvider(ctx context.Context, id string) (*ProviderRecord, bool, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, base_url, api_key, transport, weight, max_qps,
		       retryable_status_codes, status, last_check
		FROM providers WHERE id = ?`, id)

	rec, err := scanProvider(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, false, nil
		}
		return nil, false, err
	}

	models, err := s.listModels(ctx, rec.ID)
	if err != nil {
		return nil, false, err
	}
	rec.Models = models
	return rec, true, nil
}

func (s *SQLiteStore) listModels(ctx context.Context, providerID string) ([]ModelMapping, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT physical_id, logical_id, capabilities
		FROM provider_models WHERE provider_id = ? ORDER BY physical_id`, providerID)
	if err != nil {
		return nil, fmt.Errorf("failed to query provider models: %w", err)
	}
	defer rows.Close()

	var models []ModelMapping
	for rows.Next() {
		var (
			m        ModelMapping
			capsJSON string
		)
		if err := rows.Scan(&m.PhysicalID, &m.LogicalID, &capsJSON); err != nil {
			return nil, fmt.Errorf("failed to scan provider model: %w", err)
		}
		if err := json.Unmarshal([]byte(capsJSON), &m.Capabilities); err != nil {
			return nil, fmt.Errorf("invalid capabilities for model %q: %w", m.PhysicalID, err)
		}
		models = append(models, m)
	}
	return models, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProvider(row rowScanner) (*ProviderRecord, error) {
	var (
		rec       ProviderRecord
		codesJSON string
		status    string
		transport string
		lastCheck sql.NullTime
	)
	err := row.Scan(&rec.ID, &rec.BaseURL, &rec.APIKey, &transport, &rec.Weight,
		&rec.MaxQPS, &codesJSON, &status, &lastCheck)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan provider: %w", err)
	}

	rec.Transport = Transport(transport)
	rec.Status = ProviderStatus(status)
	if lastCheck.Valid {
		rec.LastCheck = lastCheck.Time
	} else {
		rec.LastCheck = time.Time{}
	}
	if err := json.Unmarshal([]byte(codesJSON), &rec.RetryableStatusCodes); err != nil {
		return nil, fmt.Errorf("invalid retryable_status_codes for provider %q: %w", rec.ID, err)
	}
	return &rec, nil
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
