// Package domain holds the closed vocabulary of the governance gateway:
// check names, domains, verdict statuses, and the wire-level request,
// verdict, audit, and configuration records shared across packages.
package domain

import (
	"errors"
	"fmt"
	"time"
)

// ErrInvalidRequest marks schema-level validation failures; the HTTP
// layer maps it to 400.
var ErrInvalidRequest = errors.New("invalid request")

// Check identifies a governance check.
type Check string

const (
	CheckEntailment      Check = "entailment"
	CheckSemanticEntropy Check = "semantic_entropy"
	CheckPreference      Check = "implicit_preference"
	CheckClaims          Check = "claim_extraction"
	CheckNumerical       Check = "numerical_verify"
)

// AllChecks lists every check in dispatch order.
var AllChecks = []Check{
	CheckEntailment,
	CheckSemanticEntropy,
	CheckPreference,
	CheckClaims,
	CheckNumerical,
}

// Valid reports whether c names a known check.
func (c Check) Valid() bool {
	for _, k := range AllChecks {
		if c == k {
			return true
		}
	}
	return false
}

// Domain selects the tolerance rules and keyword tables applied by the
// analyzers.
type Domain string

const (
	DomainLegal      Domain = "legal"
	DomainFinancial  Domain = "financial"
	DomainHealthcare Domain = "healthcare"
	DomainPharma     Domain = "pharma"
	DomainGeneral    Domain = "general"
)

// Valid reports whether d is a known domain.
func (d Domain) Valid() bool {
	switch d {
	case DomainLegal, DomainFinancial, DomainHealthcare, DomainPharma, DomainGeneral:
		return true
	}
	return false
}

// Status is the governance decision for a verified output.
type Status string

const (
	StatusPass  Status = "PASS"
	StatusFlag  Status = "FLAG"
	StatusBlock Status = "BLOCK"
)

// VerifyRequest is the body of POST /v1/verify.
type VerifyRequest struct {
	Input     string  `json:"input"`
	Output    string  `json:"output"`
	Context   string  `json:"context,omitempty"`
	Domain    Domain  `json:"domain"`
	Checks    []Check `json:"checks"`
	ConfigID  string  `json:"config_id,omitempty"`
	SessionID string  `json:"session_id,omitempty"`
}

// Validate enforces schema-level constraints. Violations map to 400.
func (r *VerifyRequest) Validate() error {
	if r.Output == "" {
		return fmt.Errorf("%w: output is required", ErrInvalidRequest)
	}
	if r.Domain == "" {
		r.Domain = DomainGeneral
	}
	if !r.Domain.Valid() {
		return fmt.Errorf("%w: unknown domain %q", ErrInvalidRequest, r.Domain)
	}
	if len(r.Checks) == 0 {
		r.Checks = []Check{CheckEntailment, CheckSemanticEntropy, CheckPreference, CheckClaims}
	}
	for _, c := range r.Checks {
		if !c.Valid() {
			return fmt.Errorf("%w: unknown check %q", ErrInvalidRequest, c)
		}
	}
	return nil
}

// ClaimDetail is one extracted claim with its verification outcome.
type ClaimDetail struct {
	ClaimID              int      `json:"claim_id"`
	Text                 string   `json:"text"`
	SourceSentence       string   `json:"source_sentence"`
	Status               string   `json:"status"`
	EntailmentScore      float64  `json:"entailment_score"`
	Entities             []string `json:"entities"`
	HallucinatedEntities []string `json:"hallucinated_entities"`
}

// ClaimBreakdown extends a CheckResult for the claim_extraction check.
type ClaimBreakdown struct {
	Total        int           `json:"total"`
	Verified     int           `json:"verified"`
	Unverified   int           `json:"unverified"`
	Contradicted int           `json:"contradicted"`
	Claims       []ClaimDetail `json:"claims"`
}

// NumberMatchDetail is one matched source/AI number pair.
type NumberMatchDetail struct {
	SourceValue float64 `json:"source_value"`
	SourceRaw   string  `json:"source_raw"`
	AIValue     float64 `json:"ai_value"`
	AIRaw       string  `json:"ai_raw"`
	Context     string  `json:"context"`
	ContextType string  `json:"context_type"`
	Match       bool    `json:"match"`
	Deviation   float64 `json:"deviation"`
	Tolerance   float64 `json:"tolerance"`
	Severity    string  `json:"severity"`
	Detail      string  `json:"detail"`
}

// UngroundedNumber is an AI-side number with no source counterpart.
type UngroundedNumber struct {
	Value       float64 `json:"value"`
	Raw         string  `json:"raw"`
	Context     string  `json:"context"`
	ContextType string  `json:"context_type"`
}

// NumericalBreakdown extends a CheckResult for the numerical_verify check.
type NumericalBreakdown struct {
	Status             string              `json:"status"`
	NumbersInSource    int                 `json:"numbers_found_in_source"`
	NumbersInAI        int                 `json:"numbers_found_in_ai"`
	Matches            []NumberMatchDetail `json:"matches"`
	Ungrounded         []UngroundedNumber  `json:"ungrounded_numbers"`
	CriticalMismatches int                 `json:"critical_mismatches"`
}

// CheckResult is the common result header every check produces. The two
// variant payloads are populated only by their owning checks.
type CheckResult struct {
	Score     float64             `json:"score"`
	Flags     []string            `json:"flags"`
	Detail    string              `json:"detail"`
	Claims    *ClaimBreakdown     `json:"claims,omitempty"`
	Numerical *NumericalBreakdown `json:"numerical,omitempty"`
}

// TrustVerdict is the response of POST /v1/verify.
type TrustVerdict struct {
	TrustScore      int                   `json:"trust_score"`
	Status          Status                `json:"status"`
	Checks          map[Check]CheckResult `json:"checks"`
	AuditID         string                `json:"audit_id"`
	SessionID       string                `json:"session_id,omitempty"`
	Recommendations []string              `json:"recommendations"`
	LatencyMs       int64                 `json:"latency_ms"`
}

// AuditRecord is the immutable trail entry written per verification.
type AuditRecord struct {
	AuditID       string    `json:"audit_id" db:"audit_id"`
	Timestamp     time.Time `json:"timestamp" db:"timestamp"`
	User          string    `json:"user,omitempty" db:"user_id"`
	Domain        Domain    `json:"domain" db:"domain"`
	ModelUsed     string    `json:"model_used,omitempty" db:"model_used"`
	Plugin        string    `json:"plugin,omitempty" db:"plugin"`
	TrustScore    int       `json:"trust_score" db:"trust_score"`
	Status        Status    `json:"status" db:"status"`
	ChecksRun     []string  `json:"checks_run" db:"checks_run"`
	FlagsRaised   int       `json:"flags_raised" db:"flags_raised"`
	ReviewNeeded  bool      `json:"human_review_required" db:"review_needed"`
	InputSummary  string    `json:"request_summary" db:"input_summary"`
	OutputSummary string    `json:"response_summary" db:"output_summary"`

	// FlagTypes records which flags were raised, for the dashboard
	// top-flag histogram. Not part of the serialized audit record.
	FlagTypes []string `json:"-" db:"flag_types"`
}

// GovernanceConfig is an organization's governance policy.
type GovernanceConfig struct {
	ConfigID         string            `json:"config_id,omitempty"`
	OrgID            string            `json:"org_id"`
	Domain           Domain            `json:"domain"`
	ApproveThreshold int               `json:"auto_approve_threshold"`
	BlockThreshold   int               `json:"auto_block_threshold"`
	RequiredChecks   []Check           `json:"required_checks"`
	OptionalChecks   []Check           `json:"optional_checks"`
	DomainRules      map[string]string `json:"domain_rules,omitempty"`
	Alerts           map[string]string `json:"alerts,omitempty"`
	Created          time.Time         `json:"created,omitempty"`
}

// Validate enforces threshold ordering and known check names.
func (c *GovernanceConfig) Validate() error {
	if c.OrgID == "" {
		return fmt.Errorf("%w: org_id is required", ErrInvalidRequest)
	}
	if c.Domain == "" {
		c.Domain = DomainGeneral
	}
	if !c.Domain.Valid() {
		return fmt.Errorf("%w: unknown domain %q", ErrInvalidRequest, c.Domain)
	}
	if c.ApproveThreshold == 0 {
		c.ApproveThreshold = 75
	}
	if c.BlockThreshold < 0 || c.ApproveThreshold > 100 || c.BlockThreshold >= c.ApproveThreshold {
		return fmt.Errorf("%w: thresholds must satisfy 0 <= block < approve <= 100 (block=%d approve=%d)",
			ErrInvalidRequest, c.BlockThreshold, c.ApproveThreshold)
	}
	for _, ch := range append(append([]Check{}, c.RequiredChecks...), c.OptionalChecks...) {
		if !ch.Valid() {
			return fmt.Errorf("%w: unknown check %q", ErrInvalidRequest, ch)
		}
	}
	return nil
}

// ShieldRequest is the body of POST /v1/shield.
type ShieldRequest struct {
	Input       string `json:"input"`
	Domain      Domain `json:"domain,omitempty"`
	Sensitivity string `json:"sensitivity,omitempty"`
}

// ShieldResponse is the pre-flight scan verdict.
type ShieldResponse struct {
	Safe           bool   `json:"safe"`
	ThreatLevel    string `json:"threat_level"`
	AttackType     string `json:"attack_type,omitempty"`
	Detail         string `json:"detail"`
	Action         string `json:"action"`
	SanitizedInput string `json:"sanitized_input,omitempty"`
}

// FlagCount is one entry of the dashboard top-flag histogram.
type FlagCount struct {
	Type  string `json:"type"`
	Count int    `json:"count"`
}

// DashboardMetrics is the response of GET /v1/dashboard.
type DashboardMetrics struct {
	Period             string      `json:"period"`
	TotalVerifications int         `json:"total_verifications"`
	AvgTrustScore      float64     `json:"avg_trust_score"`
	AutoApproved       int         `json:"auto_approved"`
	FlaggedForReview   int         `json:"flagged_for_review"`
	AutoBlocked        int         `json:"auto_blocked"`
	InjectionsBlocked  int         `json:"injection_attempts_blocked"`
	TopFlags           []FlagCount `json:"top_flags"`
	ComplianceScore    float64     `json:"compliance_score"`
	Trend              string      `json:"trend"`
}

// Clip bounds a sub-score to [0, 1] before fusion.
func Clip(score float64) float64 {
	if score < 0 {
		return 0
	}
	if score > 1 {
		return 1
	}
	return score
}
