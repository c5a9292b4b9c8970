// Package metrics computes the governance dashboard from the audit trail
// and the shield block log.
package metrics

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/7789996399/Meerkat-API/internal/domain"
	"github.com/7789996399/Meerkat-API/internal/store"
)

// Reporting periods.
var periods = map[string]time.Duration{
	"7d":  7 * 24 * time.Hour,
	"30d": 30 * 24 * time.Hour,
	"90d": 90 * 24 * time.Hour,
}

// ErrBadPeriod marks an unknown period string. Maps to 400.
type ErrBadPeriod struct{ Period string }

func (e ErrBadPeriod) Error() string {
	return fmt.Sprintf("unknown period %q (want 7d, 30d, or 90d)", e.Period)
}

// ShieldLog records blocked injection attempts so the dashboard can count
// them per period. Shield scans write no audit records.
type ShieldLog struct {
	mu     sync.Mutex
	blocks []time.Time
}

// NewShieldLog returns an empty log.
func NewShieldLog() *ShieldLog { return &ShieldLog{} }

// RecordBlock notes one blocked attempt at time t.
func (l *ShieldLog) RecordBlock(t time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.blocks = append(l.blocks, t)
}

// CountSince returns the number of blocks at or after cutoff.
func (l *ShieldLog) CountSince(cutoff time.Time) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, t := range l.blocks {
		if !t.Before(cutoff) {
			n++
		}
	}
	return n
}

// Aggregator summarizes the audit trail for the dashboard.
type Aggregator struct {
	audits store.AuditStore
	shield *ShieldLog
	now    func() time.Time
}

// NewAggregator builds an aggregator over the audit store and shield log.
func NewAggregator(audits store.AuditStore, shield *ShieldLog) *Aggregator {
	return &Aggregator{audits: audits, shield: shield, now: time.Now}
}

const topFlagLimit = 6

// Dashboard computes the metrics for one period.
func (a *Aggregator) Dashboard(ctx context.Context, period string) (domain.DashboardMetrics, error) {
	window, ok := periods[period]
	if !ok {
		return domain.DashboardMetrics{}, ErrBadPeriod{Period: period}
	}
	now := a.now().UTC()
	cutoff := now.Add(-window)

	records, err := a.audits.Since(ctx, cutoff)
	if err != nil {
		return domain.DashboardMetrics{}, fmt.Errorf("metrics: %w", err)
	}

	m := domain.DashboardMetrics{
		Period:            periodLabel(cutoff, now),
		InjectionsBlocked: a.shield.CountSince(cutoff),
	}

	if len(records) == 0 {
		m.ComplianceScore = 100.0
		m.Trend = "stable"
		return m, nil
	}

	scoreSum := 0
	flagCounts := make(map[string]int)
	for _, rec := range records {
		m.TotalVerifications++
		scoreSum += rec.TrustScore
		switch rec.Status {
		case domain.StatusPass:
			m.AutoApproved++
		case domain.StatusFlag:
			m.FlaggedForReview++
		case domain.StatusBlock:
			m.AutoBlocked++
		}
		for _, f := range rec.FlagTypes {
			flagCounts[f]++
		}
	}

	m.AvgTrustScore = round1(float64(scoreSum) / float64(len(records)))
	m.ComplianceScore = round1(100 * float64(m.AutoApproved) / float64(len(records)))
	m.TopFlags = topFlags(flagCounts)
	m.Trend = trend(m.AvgTrustScore)
	return m, nil
}

// periodLabel renders the reporting window as a date range, matching the
// dashboard's display format.
func periodLabel(cutoff, now time.Time) string {
	return cutoff.Format("2006-01-02") + " to " + now.Format("2006-01-02")
}

func topFlags(counts map[string]int) []domain.FlagCount {
	out := make([]domain.FlagCount, 0, len(counts))
	for flag, n := range counts {
		out = append(out, domain.FlagCount{Type: flag, Count: n})
	}
	sort.Slice(out, func(a, b int) bool {
		if out[a].Count != out[b].Count {
			return out[a].Count > out[b].Count
		}
		return out[a].Type < out[b].Type
	})
	if len(out) > topFlagLimit {
		out = out[:topFlagLimit]
	}
	return out
}

func trend(avg float64) string {
	switch {
	case avg >= 83:
		return "improving"
	case avg < 78:
		return "declining"
	default:
		return "stable"
	}
}

func round1(v float64) float64 {
	return float64(int(v*10+0.5)) / 10
}
