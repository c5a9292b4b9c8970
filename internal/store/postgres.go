package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/7789996399/Meerkat-API/internal/domain"
)

const auditSchema = `
CREATE TABLE IF NOT EXISTS audit_records (
	audit_id        TEXT PRIMARY KEY,
	timestamp       TIMESTAMPTZ NOT NULL,
	user_id         TEXT NOT NULL DEFAULT '',
	domain          TEXT NOT NULL,
	model_used      TEXT NOT NULL DEFAULT '',
	plugin          TEXT NOT NULL DEFAULT '',
	trust_score     INTEGER NOT NULL,
	status          TEXT NOT NULL,
	checks_run      TEXT[] NOT NULL DEFAULT '{}',
	flags_raised    INTEGER NOT NULL DEFAULT 0,
	review_needed   BOOLEAN NOT NULL DEFAULT FALSE,
	input_summary   TEXT NOT NULL DEFAULT '',
	output_summary  TEXT NOT NULL DEFAULT '',
	flag_types      TEXT[] NOT NULL DEFAULT '{}'
);
CREATE INDEX IF NOT EXISTS idx_audit_timestamp ON audit_records (timestamp);

CREATE TABLE IF NOT EXISTS governance_configs (
	config_id  TEXT PRIMARY KEY,
	org_id     TEXT NOT NULL,
	payload    JSONB NOT NULL,
	created    TIMESTAMPTZ NOT NULL
);`

// PostgresStore implements both AuditStore and ConfigStore on Postgres.
type PostgresStore struct {
	db *sqlx.DB
}

// NewPostgres connects, verifies the connection, and ensures the schema.
func NewPostgres(ctx context.Context, dsn string) (*PostgresStore, error) {
	db, err := sqlx.ConnectContext(ctx, "postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("store: connect: %w", err)
	}
	db.SetMaxOpenConns(16)
	db.SetMaxIdleConns(4)
	db.SetConnMaxLifetime(30 * time.Minute)

	if _, err := db.ExecContext(ctx, auditSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: schema: %w", err)
	}
	return &PostgresStore{db: db}, nil
}

// Close releases the connection pool.
func (s *PostgresStore) Close() error { return s.db.Close() }

// Append writes one audit record.
func (s *PostgresStore) Append(ctx context.Context, rec domain.AuditRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_records (
			audit_id, timestamp, user_id, domain, model_used, plugin,
			trust_score, status, checks_run, flags_raised, review_needed,
			input_summary, output_summary, flag_types
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)`,
		rec.AuditID, rec.Timestamp, rec.User, rec.Domain, rec.ModelUsed, rec.Plugin,
		rec.TrustScore, rec.Status, pq.Array(rec.ChecksRun), rec.FlagsRaised,
		rec.ReviewNeeded, rec.InputSummary, rec.OutputSummary, pq.Array(rec.FlagTypes))
	if err != nil {
		return fmt.Errorf("store: append audit: %w", err)
	}
	return nil
}

type auditRow struct {
	AuditID       string         `db:"audit_id"`
	Timestamp     time.Time      `db:"timestamp"`
	User          string         `db:"user_id"`
	Domain        string         `db:"domain"`
	ModelUsed     string         `db:"model_used"`
	Plugin        string         `db:"plugin"`
	TrustScore    int            `db:"trust_score"`
	Status        string         `db:"status"`
	ChecksRun     pq.StringArray `db:"checks_run"`
	FlagsRaised   int            `db:"flags_raised"`
	ReviewNeeded  bool           `db:"review_needed"`
	InputSummary  string         `db:"input_summary"`
	OutputSummary string         `db:"output_summary"`
	FlagTypes     pq.StringArray `db:"flag_types"`
}

func (r auditRow) record() domain.AuditRecord {
	return domain.AuditRecord{
		AuditID:       r.AuditID,
		Timestamp:     r.Timestamp,
		User:          r.User,
		Domain:        domain.Domain(r.Domain),
		ModelUsed:     r.ModelUsed,
		Plugin:        r.Plugin,
		TrustScore:    r.TrustScore,
		Status:        domain.Status(r.Status),
		ChecksRun:     r.ChecksRun,
		FlagsRaised:   r.FlagsRaised,
		ReviewNeeded:  r.ReviewNeeded,
		InputSummary:  r.InputSummary,
		OutputSummary: r.OutputSummary,
		FlagTypes:     r.FlagTypes,
	}
}

// Get returns the record with the given audit id.
func (s *PostgresStore) Get(ctx context.Context, auditID string) (domain.AuditRecord, error) {
	var row auditRow
	err := s.db.GetContext(ctx, &row,
		`SELECT * FROM audit_records WHERE audit_id = $1`, auditID)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.AuditRecord{}, ErrNotFound
	}
	if err != nil {
		return domain.AuditRecord{}, fmt.Errorf("store: get audit: %w", err)
	}
	return row.record(), nil
}

// Since returns records at or after cutoff, oldest first.
func (s *PostgresStore) Since(ctx context.Context, cutoff time.Time) ([]domain.AuditRecord, error) {
	var rows []auditRow
	err := s.db.SelectContext(ctx, &rows,
		`SELECT * FROM audit_records WHERE timestamp >= $1 ORDER BY timestamp ASC`, cutoff)
	if err != nil {
		return nil, fmt.Errorf("store: audit since: %w", err)
	}
	out := make([]domain.AuditRecord, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.record())
	}
	return out, nil
}

// Put upserts a governance config.
func (s *PostgresStore) Put(ctx context.Context, cfg domain.GovernanceConfig) error {
	payload, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("store: encode config: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO governance_configs (config_id, org_id, payload, created)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (config_id) DO UPDATE SET org_id = $2, payload = $3`,
		cfg.ConfigID, cfg.OrgID, payload, cfg.Created)
	if err != nil {
		return fmt.Errorf("store: put config: %w", err)
	}
	return nil
}

// Configs returns the ConfigStore view of the same database.
func (s *PostgresStore) Configs() ConfigStore { return pgConfigs{s} }

type pgConfigs struct{ s *PostgresStore }

func (c pgConfigs) Put(ctx context.Context, cfg domain.GovernanceConfig) error {
	return c.s.Put(ctx, cfg)
}

func (c pgConfigs) Get(ctx context.Context, configID string) (domain.GovernanceConfig, error) {
	return c.s.GetConfig(ctx, configID)
}

// GetConfig is the ConfigStore read path.
func (s *PostgresStore) GetConfig(ctx context.Context, configID string) (domain.GovernanceConfig, error) {
	var payload []byte
	err := s.db.GetContext(ctx, &payload,
		`SELECT payload FROM governance_configs WHERE config_id = $1`, configID)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.GovernanceConfig{}, ErrNotFound
	}
	if err != nil {
		return domain.GovernanceConfig{}, fmt.Errorf("store: get config: %w", err)
	}
	var cfg domain.GovernanceConfig
	if err := json.Unmarshal(payload, &cfg); err != nil {
		return domain.GovernanceConfig{}, fmt.Errorf("store: decode config: %w", err)
	}
	return cfg, nil
}
