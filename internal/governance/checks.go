package governance

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/7789996399/Meerkat-API/internal/claims"
	"github.com/7789996399/Meerkat-API/internal/domain"
	"github.com/7789996399/Meerkat-API/internal/entropy"
	"github.com/7789996399/Meerkat-API/internal/infrastructure/httpclient"
	"github.com/7789996399/Meerkat-API/internal/nli"
	"github.com/7789996399/Meerkat-API/internal/numeric"
	"github.com/7789996399/Meerkat-API/internal/preference"
)

// CheckInput is the slice of a verify request one check consumes.
type CheckInput struct {
	Input   string
	Output  string
	Context string
	Domain  domain.Domain
}

// Checker runs one governance check. Run never fails: each check degrades
// through remote analyzer, in-process engine, and text heuristic until one
// of them produces a result.
type Checker interface {
	Name() domain.Check
	Run(ctx context.Context, in CheckInput) domain.CheckResult
}

// ── Entailment ──────────────────────────────────────────────────────────

// EntailmentChecker grounds the output's factual statements in the source
// context, sentence by sentence.
type EntailmentChecker struct {
	predictor nli.Predictor
}

// NewEntailmentChecker builds the check over an optional NLI predictor.
func NewEntailmentChecker(p nli.Predictor) *EntailmentChecker {
	return &EntailmentChecker{predictor: p}
}

func (c *EntailmentChecker) Name() domain.Check { return domain.CheckEntailment }

// Run verifies each checkable sentence against the most relevant context
// chunk via NLI, falling back to term matching when the runtime is down.
func (c *EntailmentChecker) Run(ctx context.Context, in CheckInput) domain.CheckResult {
	if in.Context == "" || c.predictor == nil {
		return heuristicEntailment(in.Output, in.Context)
	}
	result, err := c.nliEntailment(ctx, in.Output, in.Context)
	if err != nil {
		log.Warn().Err(err).Msg("NLI runtime unavailable, entailment check using heuristic")
		return heuristicEntailment(in.Output, in.Context)
	}
	return result
}

func (c *EntailmentChecker) nliEntailment(ctx context.Context, output, contextText string) (domain.CheckResult, error) {
	chunks := claims.ChunkContext(contextText, 400, 50)

	var supported, contradicted, neutral, totalChecked int
	var flags []string
	for _, sentence := range splitSentencesProtected(output) {
		if len(strings.Fields(sentence)) < 4 {
			continue
		}
		totalChecked++

		premise := claims.FindRelevantChunk(chunks, sentence)
		verdict, err := c.predictor.Predict(ctx, premise, sentence)
		if err != nil {
			return domain.CheckResult{}, err
		}
		switch {
		case verdict.Entails():
			supported++
		case verdict.Contradicts():
			contradicted++
			flags = append(flags, fmt.Sprintf("contradiction: '%s' vs source", clipText(sentence, 80)))
		default:
			neutral++
		}
	}
	return entailmentVerdict(supported, contradicted, neutral, totalChecked, flags), nil
}

// ── Semantic entropy ────────────────────────────────────────────────────

// Interpretations that count against the output.
var flaggedInterpretations = map[string]struct{}{
	entropy.InterpretModerate:      {},
	entropy.InterpretHigh:          {},
	entropy.InterpretConfabulation: {},
}

type entropyAnalyzer interface {
	Analyze(ctx context.Context, input, aiOutput, contextText string) (entropy.Report, error)
}

// EntropyChecker estimates confabulation risk by resampling the question
// and clustering the completions.
type EntropyChecker struct {
	serviceURL     string
	pool           *httpclient.Pool
	engine         entropyAnalyzer
	numCompletions int
}

// NewEntropyChecker builds the check. serviceURL selects the remote
// analyzer; engine is the in-process fallback. Either may be empty/nil.
func NewEntropyChecker(serviceURL string, pool *httpclient.Pool, engine *entropy.Engine, numCompletions int) *EntropyChecker {
	c := &EntropyChecker{serviceURL: serviceURL, pool: pool, numCompletions: numCompletions}
	if engine != nil {
		c.engine = engine
	}
	return c
}

func (c *EntropyChecker) Name() domain.Check { return domain.CheckSemanticEntropy }

type entropyServiceRequest struct {
	Question       string `json:"question"`
	AIOutput       string `json:"ai_output"`
	NumCompletions int    `json:"num_completions"`
	SourceContext  string `json:"source_context,omitempty"`
}

// Run resamples via the remote analyzer when configured, then the local
// engine. Without the original question, resampling is impossible and only
// the text heuristic applies.
func (c *EntropyChecker) Run(ctx context.Context, in CheckInput) domain.CheckResult {
	if in.Input == "" {
		return heuristicEntropy(in.Output)
	}

	if c.serviceURL != "" && c.pool != nil {
		body, _ := json.Marshal(entropyServiceRequest{
			Question:       in.Input,
			AIOutput:       in.Output,
			NumCompletions: c.numCompletions,
			SourceContext:  in.Context,
		})
		data, err := c.pool.PostJSON(ctx, c.serviceURL+"/analyze", body)
		if err == nil {
			var report entropy.Report
			if err = json.Unmarshal(data, &report); err == nil {
				return mapEntropyReport(report)
			}
		}
		log.Warn().Err(err).Msg("Entropy analyzer unavailable, trying local engine")
	}

	if c.engine != nil {
		report, err := c.engine.Analyze(ctx, in.Input, in.Output, in.Context)
		if err == nil {
			return mapEntropyReport(report)
		}
		log.Warn().Err(err).Msg("Entropy engine failed, entropy check using heuristic")
	}
	return heuristicEntropy(in.Output)
}

func mapEntropyReport(r entropy.Report) domain.CheckResult {
	score := round3(1.0 - r.SemanticEntropy)

	var flags []string
	if _, flagged := flaggedInterpretations[r.Interpretation]; flagged {
		flags = append(flags, r.Interpretation)
	}
	outsideMajority := !r.AIOutputInMajor && r.NumClusters > 1
	if outsideMajority {
		flags = append(flags, "ai_output_outside_majority_cluster")
	}

	var detail string
	switch r.Interpretation {
	case entropy.InterpretCertain:
		detail = fmt.Sprintf(
			"High confidence: all %d sampled completions converged into %d cluster(s). Semantic entropy: %.3f.",
			r.NumCompletions, r.NumClusters, r.SemanticEntropy)
	case entropy.InterpretConfabulation:
		detail = fmt.Sprintf(
			"Confabulation likely: %d completions diverged into %d clusters. Semantic entropy: %.3f.",
			r.NumCompletions, r.NumClusters, r.SemanticEntropy)
	default:
		level := strings.ReplaceAll(r.Interpretation, "_", " ")
		detail = fmt.Sprintf("%s: %d completions formed %d cluster(s). Semantic entropy: %.3f.",
			capitalize(level), r.NumCompletions, r.NumClusters, r.SemanticEntropy)
	}
	if outsideMajority {
		detail += " The original AI output is NOT in the majority cluster."
	}

	return domain.CheckResult{Score: domain.Clip(score), Flags: flags, Detail: detail}
}

// ── Claim extraction ────────────────────────────────────────────────────

type claimsAnalyzer interface {
	Analyze(ctx context.Context, aiOutput, source string) (claims.Report, error)
}

// ClaimsChecker extracts factual claims and verifies each against the
// source document.
type ClaimsChecker struct {
	serviceURL string
	pool       *httpclient.Pool
	engine     claimsAnalyzer
}

// NewClaimsChecker builds the check. serviceURL selects the remote
// analyzer; engine is the in-process fallback. Either may be empty/nil.
func NewClaimsChecker(serviceURL string, pool *httpclient.Pool, engine *claims.Engine) *ClaimsChecker {
	c := &ClaimsChecker{serviceURL: serviceURL, pool: pool}
	if engine != nil {
		c.engine = engine
	}
	return c
}

func (c *ClaimsChecker) Name() domain.Check { return domain.CheckClaims }

type claimsServiceRequest struct {
	AIOutput string `json:"ai_output"`
	Source   string `json:"source"`
}

// Run extracts and verifies claims, degrading from remote analyzer to
// local engine to regex matching.
func (c *ClaimsChecker) Run(ctx context.Context, in CheckInput) domain.CheckResult {
	if in.Context == "" {
		return domain.CheckResult{
			Score:  0.5,
			Flags:  []string{"no_context_provided"},
			Detail: "No source document provided. Claims cannot be verified.",
			Claims: &domain.ClaimBreakdown{},
		}
	}

	if c.serviceURL != "" && c.pool != nil {
		body, _ := json.Marshal(claimsServiceRequest{AIOutput: in.Output, Source: in.Context})
		data, err := c.pool.PostJSON(ctx, c.serviceURL+"/extract", body)
		if err == nil {
			var report claims.Report
			if err = json.Unmarshal(data, &report); err == nil {
				return mapClaimsReport(report)
			}
		}
		log.Warn().Err(err).Msg("Claims analyzer unavailable, trying local engine")
	}

	if c.engine != nil {
		report, err := c.engine.Analyze(ctx, in.Output, in.Context)
		if err == nil {
			return mapClaimsReport(report)
		}
		log.Warn().Err(err).Msg("Claims engine failed, claims check using heuristic")
	}
	return heuristicClaims(in.Output, in.Context)
}

func mapClaimsReport(r claims.Report) domain.CheckResult {
	var score float64
	if r.TotalClaims > 0 {
		score = round3(float64(r.Verified) / float64(r.TotalClaims))
	}

	parts := []string{fmt.Sprintf("Extracted %d factual claim(s).", r.TotalClaims)}
	parts = append(parts, fmt.Sprintf("%d verified, %d unverified, %d contradicted.",
		r.Verified, r.Unverified, r.Contradicted))
	if r.Contradicted > 0 {
		parts = append(parts, "Source document contradicts one or more claims.")
	}
	if len(r.HallucinatedEntities) > 0 {
		shown := r.HallucinatedEntities
		if len(shown) > 5 {
			shown = shown[:5]
		}
		parts = append(parts, fmt.Sprintf("Hallucinated entities detected: %s.", strings.Join(shown, ", ")))
	}

	return domain.CheckResult{
		Score:  score,
		Flags:  r.Flags,
		Detail: strings.Join(parts, " "),
		Claims: &domain.ClaimBreakdown{
			Total:        r.TotalClaims,
			Verified:     r.Verified,
			Unverified:   r.Unverified,
			Contradicted: r.Contradicted,
			Claims:       r.Claims,
		},
	}
}

// ── Implicit preference ─────────────────────────────────────────────────

type preferenceAnalyzer interface {
	Analyze(ctx context.Context, output string, d domain.Domain, contextText string) (preference.Report, error)
}

// PreferenceChecker detects directional bias in the output.
type PreferenceChecker struct {
	serviceURL string
	pool       *httpclient.Pool
	engine     preferenceAnalyzer
}

// NewPreferenceChecker builds the check. serviceURL selects the remote
// analyzer; engine is the in-process fallback. Either may be empty/nil.
func NewPreferenceChecker(serviceURL string, pool *httpclient.Pool, engine *preference.Engine) *PreferenceChecker {
	c := &PreferenceChecker{serviceURL: serviceURL, pool: pool}
	if engine != nil {
		c.engine = engine
	}
	return c
}

func (c *PreferenceChecker) Name() domain.Check { return domain.CheckPreference }

type preferenceServiceRequest struct {
	Output string `json:"output"`
	Domain string `json:"domain"`
	Source string `json:"source"`
}

// Run scores directional bias, degrading from remote analyzer to local
// engine to keyword counting.
func (c *PreferenceChecker) Run(ctx context.Context, in CheckInput) domain.CheckResult {
	if c.serviceURL != "" && c.pool != nil {
		body, _ := json.Marshal(preferenceServiceRequest{
			Output: in.Output, Domain: string(in.Domain), Source: in.Context,
		})
		data, err := c.pool.PostJSON(ctx, c.serviceURL+"/analyze", body)
		if err == nil {
			var report preference.Report
			if err = json.Unmarshal(data, &report); err == nil {
				return mapPreferenceReport(report)
			}
		}
		log.Warn().Err(err).Msg("Preference analyzer unavailable, trying local engine")
	}

	if c.engine != nil {
		report, err := c.engine.Analyze(ctx, in.Output, in.Domain, in.Context)
		if err == nil {
			return mapPreferenceReport(report)
		}
		log.Warn().Err(err).Msg("Preference engine failed, preference check using heuristic")
	}
	return heuristicPreference(in.Output)
}

func mapPreferenceReport(r preference.Report) domain.CheckResult {
	score := round3(r.Score)
	sentimentLabel := r.Details.Sentiment.Label
	if sentimentLabel == "" {
		sentimentLabel = "unknown"
	}

	var detail string
	if r.BiasDetected {
		detail = fmt.Sprintf("Bias detected (score %.3f). Direction: %s (favoring %s over %s). Sentiment: %s.",
			score, r.Direction, r.PartyA, r.PartyB, sentimentLabel)
	} else {
		detail = fmt.Sprintf("Output is balanced (score %.3f). Direction: %s. Sentiment: %s.",
			score, r.Direction, sentimentLabel)
	}

	return domain.CheckResult{Score: domain.Clip(score), Flags: r.Flags, Detail: detail}
}

// ── Numerical verification ──────────────────────────────────────────────

// NumericalChecker compares the output's numbers against the source with
// domain-specific tolerances.
type NumericalChecker struct {
	serviceURL string
	pool       *httpclient.Pool
}

// NewNumericalChecker builds the check. serviceURL selects the remote
// analyzer; the local comparator needs no models and always works.
func NewNumericalChecker(serviceURL string, pool *httpclient.Pool) *NumericalChecker {
	return &NumericalChecker{serviceURL: serviceURL, pool: pool}
}

func (c *NumericalChecker) Name() domain.Check { return domain.CheckNumerical }

type numericalServiceRequest struct {
	AIOutput string `json:"ai_output"`
	Source   string `json:"source"`
	Domain   string `json:"domain"`
}

// Run compares numbers via the remote analyzer when configured, else the
// local comparator.
func (c *NumericalChecker) Run(ctx context.Context, in CheckInput) domain.CheckResult {
	if in.Context == "" {
		return domain.CheckResult{
			Score:     0.5,
			Flags:     []string{"no_context_provided"},
			Detail:    "No source document provided. Numbers cannot be verified.",
			Numerical: &domain.NumericalBreakdown{Status: numeric.StatusWarning},
		}
	}

	if c.serviceURL != "" && c.pool != nil {
		body, _ := json.Marshal(numericalServiceRequest{
			AIOutput: in.Output, Source: in.Context, Domain: string(in.Domain),
		})
		data, err := c.pool.PostJSON(ctx, c.serviceURL+"/verify", body)
		if err == nil {
			var report numeric.Report
			if err = json.Unmarshal(data, &report); err == nil {
				return mapNumericReport(report)
			}
		}
		log.Warn().Err(err).Msg("Numerical analyzer unavailable, using local comparator")
	}

	return mapNumericReport(numeric.Verify(in.Output, in.Context, string(in.Domain)))
}

func mapNumericReport(r numeric.Report) domain.CheckResult {
	var flags []string
	if r.CriticalMismatches > 0 {
		flags = append(flags, "critical_numerical_mismatch")
	} else if r.Status == numeric.StatusFail {
		flags = append(flags, "numerical_mismatch")
	}
	if len(r.Ungrounded) > 0 {
		flags = append(flags, "ungrounded_numbers")
	}

	return domain.CheckResult{
		Score:  domain.Clip(r.Score),
		Flags:  flags,
		Detail: r.Detail,
		Numerical: &domain.NumericalBreakdown{
			Status:             r.Status,
			NumbersInSource:    r.NumbersInSource,
			NumbersInAI:        r.NumbersInAI,
			Matches:            r.Matches,
			Ungrounded:         r.Ungrounded,
			CriticalMismatches: r.CriticalMismatches,
		},
	}
}

// ── helpers ─────────────────────────────────────────────────────────────

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

func clipText(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
