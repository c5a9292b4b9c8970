package store

import (
	"context"
	"sync"
	"time"

	"github.com/7789996399/Meerkat-API/internal/domain"
)

// MemoryAudit is the in-process audit trail. Records are kept in append
// order; lookups go through an id index.
type MemoryAudit struct {
	mu      sync.RWMutex
	records []domain.AuditRecord
	byID    map[string]int
}

// NewMemoryAudit returns an empty in-memory audit store.
func NewMemoryAudit() *MemoryAudit {
	return &MemoryAudit{byID: make(map[string]int)}
}

// Append adds a record to the trail.
func (s *MemoryAudit) Append(_ context.Context, rec domain.AuditRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byID[rec.AuditID] = len(s.records)
	s.records = append(s.records, rec)
	return nil
}

// Get returns the record with the given audit id.
func (s *MemoryAudit) Get(_ context.Context, auditID string) (domain.AuditRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	idx, ok := s.byID[auditID]
	if !ok {
		return domain.AuditRecord{}, ErrNotFound
	}
	return s.records[idx], nil
}

// Since returns records at or after cutoff, oldest first.
func (s *MemoryAudit) Since(_ context.Context, cutoff time.Time) ([]domain.AuditRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.AuditRecord
	for _, rec := range s.records {
		if !rec.Timestamp.Before(cutoff) {
			out = append(out, rec)
		}
	}
	return out, nil
}

// MemoryConfig is the in-process config store.
type MemoryConfig struct {
	mu      sync.RWMutex
	configs map[string]domain.GovernanceConfig
}

// NewMemoryConfig returns an empty in-memory config store.
func NewMemoryConfig() *MemoryConfig {
	return &MemoryConfig{configs: make(map[string]domain.GovernanceConfig)}
}

// Put stores cfg under its config id, replacing any previous version.
func (s *MemoryConfig) Put(_ context.Context, cfg domain.GovernanceConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.configs[cfg.ConfigID] = cfg
	return nil
}

// Get returns the config with the given id.
func (s *MemoryConfig) Get(_ context.Context, configID string) (domain.GovernanceConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cfg, ok := s.configs[configID]
	if !ok {
		return domain.GovernanceConfig{}, ErrNotFound
	}
	return cfg, nil
}
