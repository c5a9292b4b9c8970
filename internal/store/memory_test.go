package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/7789996399/Meerkat-API/internal/domain"
)

func TestMemoryAuditAppendGet(t *testing.T) {
	s := NewMemoryAudit()
	ctx := context.Background()

	rec := domain.AuditRecord{
		AuditID:    "aud_20260824_deadbeef",
		Timestamp:  time.Now().UTC(),
		Domain:     domain.DomainLegal,
		TrustScore: 82,
		Status:     domain.StatusPass,
		ChecksRun:  []string{"entailment", "claim_extraction"},
		FlagTypes:  []string{"directional_lean"},
	}
	if err := s.Append(ctx, rec); err != nil {
		t.Fatalf("Append: %v", err)
	}

	got, err := s.Get(ctx, rec.AuditID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.TrustScore != 82 || got.Status != domain.StatusPass {
		t.Errorf("round-trip mismatch: %+v", got)
	}
	if len(got.FlagTypes) != 1 {
		t.Errorf("flag types lost: %+v", got.FlagTypes)
	}

	if _, err := s.Get(ctx, "aud_20260824_00000000"); !errors.Is(err, ErrNotFound) {
		t.Errorf("missing record: err = %v, want ErrNotFound", err)
	}
}

func TestMemoryAuditSince(t *testing.T) {
	s := NewMemoryAudit()
	ctx := context.Background()
	now := time.Now().UTC()

	for i, age := range []time.Duration{96 * time.Hour, 48 * time.Hour, time.Hour} {
		rec := domain.AuditRecord{
			AuditID:   "aud_20260824_0000000" + string(rune('a'+i)),
			Timestamp: now.Add(-age),
		}
		if err := s.Append(ctx, rec); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}

	got, err := s.Since(ctx, now.Add(-72*time.Hour))
	if err != nil {
		t.Fatalf("Since: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d records, want 2", len(got))
	}
	if got[0].Timestamp.After(got[1].Timestamp) {
		t.Error("records not oldest-first")
	}
}

func TestMemoryConfigRoundTrip(t *testing.T) {
	s := NewMemoryConfig()
	ctx := context.Background()

	cfg := domain.GovernanceConfig{
		ConfigID:         "cfg_acme_legal_a1b2c3",
		OrgID:            "Acme Legal",
		Domain:           domain.DomainLegal,
		ApproveThreshold: 80,
		BlockThreshold:   50,
	}
	if err := s.Put(ctx, cfg); err != nil {
		t.Fatalf("Put: %v", err)
	}

	got, err := s.Get(ctx, cfg.ConfigID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.ApproveThreshold != 80 || got.OrgID != "Acme Legal" {
		t.Errorf("round-trip mismatch: %+v", got)
	}

	// Replacement wins.
	cfg.ApproveThreshold = 85
	if err := s.Put(ctx, cfg); err != nil {
		t.Fatalf("Put: %v", err)
	}
	got, _ = s.Get(ctx, cfg.ConfigID)
	if got.ApproveThreshold != 85 {
		t.Errorf("replacement not applied: %+v", got)
	}

	if _, err := s.Get(ctx, "cfg_missing_000000"); !errors.Is(err, ErrNotFound) {
		t.Errorf("missing config: err = %v, want ErrNotFound", err)
	}
}
