package claims

import (
	"context"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/7789996399/Meerkat-API/internal/domain"
	"github.com/7789996399/Meerkat-API/internal/nli"
)

// Flags the analysis can raise.
const (
	FlagContradicted      = "contradicted_claims"
	FlagMajorityUnproven  = "majority_unverified"
	FlagHallucinated      = "hallucinated_entities"
	FlagManyHallucinated  = "many_hallucinated_entities"
	FlagNoClaimsExtracted = "no_claims_extracted"
)

// Report is the outcome of one claim analysis. Field names follow the
// analyzer service's response shape so remote and in-process results decode
// into the same struct.
type Report struct {
	TotalClaims          int                  `json:"total_claims"`
	Verified             int                  `json:"verified"`
	Contradicted         int                  `json:"contradicted"`
	Unverified           int                  `json:"unverified"`
	Claims               []domain.ClaimDetail `json:"claims"`
	HallucinatedEntities []string             `json:"hallucinated_entities"`
	Flags                []string             `json:"flags"`
}

// Score is the fraction of claims that verified.
func (r Report) Score() float64 {
	total := r.TotalClaims
	if total < 1 {
		total = 1
	}
	return float64(r.Verified) / float64(total)
}

// Engine runs the extract, verify, cross-reference pipeline.
type Engine struct {
	verifier *Verifier
}

// NewEngine builds an engine over an NLI predictor.
func NewEngine(p nli.Predictor) *Engine {
	return &Engine{verifier: NewVerifier(p)}
}

// Analyze extracts claims from the AI output, verifies each against the
// source, and cross-references entities for hallucinations.
func (e *Engine) Analyze(ctx context.Context, aiOutput, source string) (Report, error) {
	extracted := Extract(aiOutput)
	log.Debug().Int("claims", len(extracted)).Msg("Claims extracted")

	verified, err := e.verifier.Verify(ctx, extracted, source)
	if err != nil {
		return Report{}, err
	}

	hallucinated := FindHallucinatedEntities(aiOutput, source)
	hallucinatedSet := make(map[string]struct{}, len(hallucinated))
	for _, h := range hallucinated {
		hallucinatedSet[strings.ToLower(h)] = struct{}{}
	}

	report := Report{
		TotalClaims:          len(verified),
		HallucinatedEntities: hallucinated,
	}
	for i, v := range verified {
		var claimHallucinated []string
		for _, ent := range v.Entities {
			if _, ok := hallucinatedSet[strings.ToLower(ent)]; ok {
				claimHallucinated = append(claimHallucinated, ent)
			}
		}

		switch v.Status {
		case StatusVerified:
			report.Verified++
		case StatusContradicted:
			report.Contradicted++
		default:
			report.Unverified++
		}

		report.Claims = append(report.Claims, domain.ClaimDetail{
			ClaimID:              i + 1,
			Text:                 v.Text,
			SourceSentence:       v.SourceSentence,
			Status:               v.Status,
			EntailmentScore:      v.EntailmentScore,
			Entities:             v.Entities,
			HallucinatedEntities: claimHallucinated,
		})
	}

	report.Flags = buildFlags(report, aiOutput)
	return report, nil
}

func buildFlags(r Report, aiOutput string) []string {
	var flags []string
	if r.Contradicted > 0 {
		flags = append(flags, FlagContradicted)
	}
	if r.TotalClaims > 0 && float64(r.Unverified) > float64(r.TotalClaims)*0.5 {
		flags = append(flags, FlagMajorityUnproven)
	}
	if len(r.HallucinatedEntities) > 0 {
		flags = append(flags, FlagHallucinated)
	}
	if len(r.HallucinatedEntities) > 3 {
		flags = append(flags, FlagManyHallucinated)
	}
	if r.TotalClaims == 0 && len(strings.Fields(aiOutput)) > 20 {
		flags = append(flags, FlagNoClaimsExtracted)
	}
	return flags
}
