// Package governance runs the verification pipeline: it fans the request
// out to the configured checks, fuses their scores into a trust score, and
// writes the audit trail entry.
package governance

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/7789996399/Meerkat-API/internal/config"
	"github.com/7789996399/Meerkat-API/internal/domain"
	"github.com/7789996399/Meerkat-API/internal/store"
)

// Fusion weights per check. Checks missing here weigh defaultWeight.
var checkWeights = map[domain.Check]float64{
	domain.CheckEntailment:      0.40,
	domain.CheckSemanticEntropy: 0.25,
	domain.CheckPreference:      0.20,
	domain.CheckClaims:          0.15,
	domain.CheckNumerical:       0.15,
}

const defaultWeight = 0.25

// Default decision thresholds, overridable per organization config.
const (
	defaultApproveThreshold = 75
	defaultBlockThreshold   = 45
)

const summaryLimit = 200

// ErrUnknownConfig means the request named a config_id that does not exist.
var ErrUnknownConfig = errors.New("unknown config_id")

// ErrAuditWrite means the verdict could not be recorded in the audit trail.
// A verification without a trail entry is not a completed verification, so
// callers see this as a failure rather than an unaudited verdict.
var ErrAuditWrite = errors.New("audit trail write failed")

// Timeouts maps each check to its deadline.
type Timeouts map[domain.Check]time.Duration

// TimeoutsFrom derives per-check deadlines from the check configuration.
// The entailment and numerical checks only leave the process for downstream
// calls, so they run under the external deadline.
func TimeoutsFrom(c config.CheckConfig) Timeouts {
	return Timeouts{
		domain.CheckEntailment:      c.ExternalTimeout,
		domain.CheckSemanticEntropy: c.EntropyTimeout,
		domain.CheckPreference:      c.PreferenceTimeout,
		domain.CheckClaims:          c.ClaimsTimeout,
		domain.CheckNumerical:       c.ExternalTimeout,
	}
}

// Orchestrator coordinates the checks and owns the audit trail.
type Orchestrator struct {
	checkers map[domain.Check]Checker
	timeouts Timeouts
	audits   store.AuditStore
	configs  store.ConfigStore

	publish func(domain.TrustVerdict)
	observe func(name domain.Check, elapsed time.Duration, timedOut bool)
	now     func() time.Time
}

// NewOrchestrator registers the given checkers and stores.
func NewOrchestrator(checkers []Checker, timeouts Timeouts, audits store.AuditStore, configs store.ConfigStore) *Orchestrator {
	byName := make(map[domain.Check]Checker, len(checkers))
	for _, c := range checkers {
		byName[c.Name()] = c
	}
	return &Orchestrator{
		checkers: byName,
		timeouts: timeouts,
		audits:   audits,
		configs:  configs,
		now:      time.Now,
	}
}

// OnVerdict registers a hook called with every verdict, e.g. the live
// stream broadcaster. The hook must not block.
func (o *Orchestrator) OnVerdict(fn func(domain.TrustVerdict)) { o.publish = fn }

// OnCheck registers a hook called after each check run with its name,
// elapsed time, and whether it hit the deadline. Used for metrics.
func (o *Orchestrator) OnCheck(fn func(name domain.Check, elapsed time.Duration, timedOut bool)) {
	o.observe = fn
}

type checkOutcome struct {
	result domain.CheckResult
	fused  bool
}

// Verify runs the requested checks concurrently and fuses their scores.
// The request must already be validated.
func (o *Orchestrator) Verify(ctx context.Context, req domain.VerifyRequest) (domain.TrustVerdict, error) {
	start := o.now()

	approve, block, toRun, err := o.resolvePolicy(ctx, req)
	if err != nil {
		return domain.TrustVerdict{}, err
	}

	in := CheckInput{Input: req.Input, Output: req.Output, Context: req.Context, Domain: req.Domain}

	outcomes := make(map[domain.Check]checkOutcome, len(toRun))
	var mu sync.Mutex
	var wg sync.WaitGroup
	for _, name := range toRun {
		checker, ok := o.checkers[name]
		if !ok {
			mu.Lock()
			outcomes[name] = checkOutcome{result: domain.CheckResult{
				Score:  0.5,
				Flags:  []string{"check_unavailable"},
				Detail: fmt.Sprintf("No %s checker is registered.", name),
			}}
			mu.Unlock()
			continue
		}

		wg.Add(1)
		go func(name domain.Check, checker Checker) {
			defer wg.Done()
			deadline := o.timeout(name)
			cctx, cancel := context.WithTimeout(ctx, deadline)
			defer cancel()

			done := make(chan domain.CheckResult, 1)
			checkStart := time.Now()
			go func() { done <- checker.Run(cctx, in) }()

			var out checkOutcome
			var timedOut bool
			select {
			case r := <-done:
				out = checkOutcome{result: r, fused: true}
			case <-cctx.Done():
				timedOut = true
				out = checkOutcome{result: domain.CheckResult{
					Score:  0.5,
					Flags:  []string{"check_timeout"},
					Detail: fmt.Sprintf("%s check did not complete within %s.", name, deadline),
				}}
				log.Warn().Str("check", string(name)).Dur("deadline", deadline).
					Msg("Check timed out")
			}
			if o.observe != nil {
				o.observe(name, time.Since(checkStart), timedOut)
			}
			mu.Lock()
			outcomes[name] = out
			mu.Unlock()
		}(name, checker)
	}
	wg.Wait()

	verdict := o.fuse(toRun, outcomes, approve, block)
	verdict.AuditID = newAuditID(start)
	verdict.SessionID = req.SessionID
	verdict.LatencyMs = time.Since(start).Milliseconds()

	rec := o.auditRecord(req, verdict, toRun, outcomes, start)
	if err := o.audits.Append(ctx, rec); err != nil {
		log.Error().Err(err).Str("audit_id", rec.AuditID).Msg("Audit append failed")
		return domain.TrustVerdict{}, fmt.Errorf("%w: %s: %v", ErrAuditWrite, rec.AuditID, err)
	}

	if o.publish != nil {
		o.publish(verdict)
	}

	log.Info().Str("audit_id", verdict.AuditID).Int("trust_score", verdict.TrustScore).
		Str("status", string(verdict.Status)).Int64("latency_ms", verdict.LatencyMs).
		Msg("Verification complete")
	return verdict, nil
}

// resolvePolicy returns the thresholds and check set after applying the
// organization config, if one was named.
func (o *Orchestrator) resolvePolicy(ctx context.Context, req domain.VerifyRequest) (approve, block int, toRun []domain.Check, err error) {
	approve, block = defaultApproveThreshold, defaultBlockThreshold
	requested := make(map[domain.Check]struct{}, len(req.Checks))
	for _, c := range req.Checks {
		requested[c] = struct{}{}
	}

	if req.ConfigID != "" {
		cfg, cerr := o.configs.Get(ctx, req.ConfigID)
		if errors.Is(cerr, store.ErrNotFound) {
			return 0, 0, nil, fmt.Errorf("%w: %s", ErrUnknownConfig, req.ConfigID)
		}
		if cerr != nil {
			return 0, 0, nil, fmt.Errorf("resolve config: %w", cerr)
		}
		approve, block = cfg.ApproveThreshold, cfg.BlockThreshold
		for _, c := range cfg.RequiredChecks {
			requested[c] = struct{}{}
		}
	}

	// Dispatch order is fixed so recommendation order is deterministic.
	for _, c := range domain.AllChecks {
		if _, ok := requested[c]; ok {
			toRun = append(toRun, c)
		}
	}
	return approve, block, toRun, nil
}

func (o *Orchestrator) timeout(name domain.Check) time.Duration {
	if d, ok := o.timeouts[name]; ok && d > 0 {
		return d
	}
	return 30 * time.Second
}

// fuse combines the check scores into the trust score and decision.
// Timed-out checks appear in the response but not in the weighted average.
func (o *Orchestrator) fuse(toRun []domain.Check, outcomes map[domain.Check]checkOutcome, approve, block int) domain.TrustVerdict {
	checks := make(map[domain.Check]domain.CheckResult, len(outcomes))
	var recommendations []string
	weightedSum, totalWeight := 0.0, 0.0

	for _, name := range toRun {
		out, ok := outcomes[name]
		if !ok {
			continue
		}
		checks[name] = out.result
		if out.fused {
			w, known := checkWeights[name]
			if !known {
				w = defaultWeight
			}
			weightedSum += domain.Clip(out.result.Score) * w
			totalWeight += w
		}
		if len(out.result.Flags) > 0 {
			recommendations = append(recommendations, fmt.Sprintf("%s: %s", name, out.result.Detail))
		}
	}

	var trust int
	if totalWeight > 0 {
		trust = int(math.Round(weightedSum / totalWeight * 100))
	} else {
		trust = 50
		recommendations = append(recommendations,
			"no_checks_completed: no governance check finished; manual review required")
	}

	status := domain.StatusBlock
	switch {
	case trust >= approve:
		status = domain.StatusPass
	case trust >= block:
		status = domain.StatusFlag
	}

	return domain.TrustVerdict{
		TrustScore:      trust,
		Status:          status,
		Checks:          checks,
		Recommendations: recommendations,
	}
}

func (o *Orchestrator) auditRecord(req domain.VerifyRequest, v domain.TrustVerdict, toRun []domain.Check, outcomes map[domain.Check]checkOutcome, start time.Time) domain.AuditRecord {
	var flagTypes []string
	fusedAny := false
	for _, name := range toRun {
		out := outcomes[name]
		flagTypes = append(flagTypes, out.result.Flags...)
		if out.fused {
			fusedAny = true
		}
	}
	if !fusedAny {
		flagTypes = append(flagTypes, "no_checks_completed")
	}

	checksRun := make([]string, 0, len(toRun))
	for _, name := range toRun {
		checksRun = append(checksRun, string(name))
	}

	return domain.AuditRecord{
		AuditID:       v.AuditID,
		Timestamp:     start.UTC(),
		Domain:        req.Domain,
		TrustScore:    v.TrustScore,
		Status:        v.Status,
		ChecksRun:     checksRun,
		FlagsRaised:   len(flagTypes),
		ReviewNeeded:  v.Status == domain.StatusFlag,
		InputSummary:  clipText(req.Input, summaryLimit),
		OutputSummary: clipText(req.Output, summaryLimit),
		FlagTypes:     flagTypes,
	}
}

// Configure validates and stores an organization policy, assigning its id.
func (o *Orchestrator) Configure(ctx context.Context, cfg domain.GovernanceConfig) (domain.GovernanceConfig, error) {
	if err := cfg.Validate(); err != nil {
		return domain.GovernanceConfig{}, err
	}
	cfg.ConfigID = newConfigID(cfg.OrgID)
	cfg.Created = o.now().UTC()
	if err := o.configs.Put(ctx, cfg); err != nil {
		return domain.GovernanceConfig{}, fmt.Errorf("store config: %w", err)
	}
	log.Info().Str("config_id", cfg.ConfigID).Str("org_id", cfg.OrgID).
		Msg("Governance config stored")
	return cfg, nil
}

// Config returns a stored policy by id.
func (o *Orchestrator) Config(ctx context.Context, configID string) (domain.GovernanceConfig, error) {
	return o.configs.Get(ctx, configID)
}

// Audit returns a trail entry by id.
func (o *Orchestrator) Audit(ctx context.Context, auditID string) (domain.AuditRecord, error) {
	return o.audits.Get(ctx, auditID)
}

func newAuditID(t time.Time) string {
	u := uuid.New()
	return fmt.Sprintf("aud_%s_%s", t.UTC().Format("20060102"), hex.EncodeToString(u[:])[:8])
}

func newConfigID(orgID string) string {
	slug := strings.ToLower(strings.ReplaceAll(orgID, " ", "_"))
	u := uuid.New()
	return fmt.Sprintf("cfg_%s_%s", slug, hex.EncodeToString(u[:])[:6])
}
