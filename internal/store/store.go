// Package store persists audit records and governance configs. The audit
// trail is append-only; configs are read-mostly. An in-memory implementation
// backs single-node deployments and tests, a Postgres one backs production.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/7789996399/Meerkat-API/internal/domain"
)

// ErrNotFound means the requested record does not exist.
var ErrNotFound = errors.New("record not found")

// AuditStore is the append-only verification trail.
type AuditStore interface {
	Append(ctx context.Context, rec domain.AuditRecord) error
	Get(ctx context.Context, auditID string) (domain.AuditRecord, error)
	// Since returns records with Timestamp >= cutoff, oldest first.
	Since(ctx context.Context, cutoff time.Time) ([]domain.AuditRecord, error)
}

// ConfigStore holds per-organization governance policies.
type ConfigStore interface {
	Put(ctx context.Context, cfg domain.GovernanceConfig) error
	Get(ctx context.Context, configID string) (domain.GovernanceConfig, error)
}
