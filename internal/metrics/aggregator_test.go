package metrics

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/7789996399/Meerkat-API/internal/domain"
	"github.com/7789996399/Meerkat-API/internal/store"
)

func seedAudit(t *testing.T, s store.AuditStore, now time.Time) {
	t.Helper()
	recs := []domain.AuditRecord{
		{AuditID: "aud_1", Timestamp: now.Add(-time.Hour), TrustScore: 90,
			Status: domain.StatusPass, FlagTypes: []string{"directional_lean"}},
		{AuditID: "aud_2", Timestamp: now.Add(-2 * time.Hour), TrustScore: 88,
			Status: domain.StatusPass},
		{AuditID: "aud_3", Timestamp: now.Add(-3 * time.Hour), TrustScore: 60,
			Status: domain.StatusFlag, FlagTypes: []string{"directional_lean", "contradicted_claims"}},
		{AuditID: "aud_4", Timestamp: now.Add(-4 * time.Hour), TrustScore: 30,
			Status: domain.StatusBlock, FlagTypes: []string{"contradicted_claims", "hallucinated_entities"}},
		// Outside any window under 90d when cutoff is 7d.
		{AuditID: "aud_old", Timestamp: now.Add(-10 * 24 * time.Hour), TrustScore: 10,
			Status: domain.StatusBlock},
	}
	for _, r := range recs {
		if err := s.Append(context.Background(), r); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}
}

func TestDashboardSevenDays(t *testing.T) {
	now := time.Now().UTC()
	audits := store.NewMemoryAudit()
	seedAudit(t, audits, now)

	shield := NewShieldLog()
	shield.RecordBlock(now.Add(-time.Hour))
	shield.RecordBlock(now.Add(-8 * 24 * time.Hour)) // outside 7d

	agg := NewAggregator(audits, shield)
	m, err := agg.Dashboard(context.Background(), "7d")
	if err != nil {
		t.Fatalf("Dashboard: %v", err)
	}

	if m.TotalVerifications != 4 {
		t.Errorf("total = %d, want 4", m.TotalVerifications)
	}
	if m.AutoApproved != 2 || m.FlaggedForReview != 1 || m.AutoBlocked != 1 {
		t.Errorf("status split = %d/%d/%d, want 2/1/1",
			m.AutoApproved, m.FlaggedForReview, m.AutoBlocked)
	}
	if m.AvgTrustScore != 67.0 {
		t.Errorf("avg = %v, want 67.0", m.AvgTrustScore)
	}
	if m.ComplianceScore != 50.0 {
		t.Errorf("compliance = %v, want 50.0", m.ComplianceScore)
	}
	if m.InjectionsBlocked != 1 {
		t.Errorf("injections blocked = %d, want 1", m.InjectionsBlocked)
	}
	if m.Trend != "declining" {
		t.Errorf("trend = %s, want declining", m.Trend)
	}

	if len(m.TopFlags) != 3 {
		t.Fatalf("top flags = %+v, want 3 entries", m.TopFlags)
	}
	if m.TopFlags[0].Count != 2 || m.TopFlags[1].Count != 2 {
		t.Errorf("flag histogram wrong: %+v", m.TopFlags)
	}
	// Ties break alphabetically for a stable response.
	if m.TopFlags[0].Type != "contradicted_claims" {
		t.Errorf("tie order wrong: %+v", m.TopFlags)
	}
}

func TestDashboardWiderWindowIncludesOldRecords(t *testing.T) {
	now := time.Now().UTC()
	audits := store.NewMemoryAudit()
	seedAudit(t, audits, now)

	agg := NewAggregator(audits, NewShieldLog())
	m, err := agg.Dashboard(context.Background(), "30d")
	if err != nil {
		t.Fatalf("Dashboard: %v", err)
	}
	if m.TotalVerifications != 5 {
		t.Errorf("total = %d, want 5 in the 30d window", m.TotalVerifications)
	}
}

func TestDashboardEmptyWindow(t *testing.T) {
	agg := NewAggregator(store.NewMemoryAudit(), NewShieldLog())
	m, err := agg.Dashboard(context.Background(), "7d")
	if err != nil {
		t.Fatalf("Dashboard: %v", err)
	}
	if m.TotalVerifications != 0 || m.ComplianceScore != 100.0 || m.Trend != "stable" {
		t.Errorf("empty window = %+v, want zero totals, compliance 100, stable", m)
	}
}

func TestDashboardPeriodIsDateRange(t *testing.T) {
	agg := NewAggregator(store.NewMemoryAudit(), NewShieldLog())
	agg.now = func() time.Time {
		return time.Date(2026, 3, 15, 12, 30, 0, 0, time.UTC)
	}

	m, err := agg.Dashboard(context.Background(), "7d")
	if err != nil {
		t.Fatalf("Dashboard: %v", err)
	}
	if m.Period != "2026-03-08 to 2026-03-15" {
		t.Errorf("period = %q, want the window as a date range", m.Period)
	}

	m, err = agg.Dashboard(context.Background(), "30d")
	if err != nil {
		t.Fatalf("Dashboard: %v", err)
	}
	if m.Period != "2026-02-13 to 2026-03-15" {
		t.Errorf("period = %q, want the window as a date range", m.Period)
	}
}

func TestDashboardBadPeriod(t *testing.T) {
	agg := NewAggregator(store.NewMemoryAudit(), NewShieldLog())
	_, err := agg.Dashboard(context.Background(), "1y")
	var bad ErrBadPeriod
	if !errors.As(err, &bad) {
		t.Fatalf("err = %v, want ErrBadPeriod", err)
	}
}

func TestTrendBoundaries(t *testing.T) {
	cases := []struct {
		avg  float64
		want string
	}{
		{83, "improving"},
		{90, "improving"},
		{82.9, "stable"},
		{78, "stable"},
		{77.9, "declining"},
		{0, "declining"},
	}
	for _, tc := range cases {
		if got := trend(tc.avg); got != tc.want {
			t.Errorf("trend(%v) = %s, want %s", tc.avg, got, tc.want)
		}
	}
}
