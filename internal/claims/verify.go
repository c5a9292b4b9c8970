package claims

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/7789996399/Meerkat-API/internal/nli"
)

// Claim verification statuses.
const (
	StatusVerified     = "verified"
	StatusContradicted = "contradicted"
	StatusUnverified   = "unverified"
	StatusUngrounded   = "ungrounded"
)

// Verified is one claim with its verification outcome.
type Verified struct {
	Claim
	Status          string
	EntailmentScore float64
}

const (
	verifyBatchSize  = 10
	topLines         = 3
	groundednessGate = 0.15
	chunkMaxWords    = 400
	chunkOverlap     = 50
)

var (
	bulletPrefixRe = regexp.MustCompile(`^[\s\-•*>]+`)
	tokenRe        = regexp.MustCompile(`[a-zA-Z]{2,}|\d+(?:\.\d+)?`)
)

// sourceLines splits the source into comparison units. Bullet and
// line-oriented first; lines over 40 words (or sources with no newlines)
// fall back to clinical-aware sentence splitting.
func sourceLines(source string) []string {
	var raw []string
	if strings.Contains(source, "\n") {
		for _, line := range strings.Split(source, "\n") {
			line = strings.TrimSpace(bulletPrefixRe.ReplaceAllString(line, ""))
			if line == "" {
				continue
			}
			if len(strings.Fields(line)) > 40 {
				raw = append(raw, SplitSentences(line)...)
			} else {
				raw = append(raw, line)
			}
		}
	} else {
		raw = SplitSentences(source)
		if len(raw) == 0 && strings.TrimSpace(source) != "" {
			raw = []string{strings.TrimSpace(source)}
		}
	}
	return raw
}

func tokens(s string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, t := range tokenRe.FindAllString(strings.ToLower(s), -1) {
		if _, stop := stopWords[t]; stop {
			continue
		}
		set[t] = struct{}{}
	}
	return set
}

// overlapScore measures how much of the claim's content a line covers.
// Entity tokens count double so named facts dominate ranking.
func overlapScore(claimTokens map[string]struct{}, entityTokens map[string]struct{}, line string) float64 {
	if len(claimTokens) == 0 {
		return 0
	}
	lineTokens := tokens(line)
	matched := 0.0
	for t := range claimTokens {
		if _, ok := lineTokens[t]; ok {
			matched++
			if _, ent := entityTokens[t]; ent {
				matched++
			}
		}
	}
	return matched / float64(len(claimTokens))
}

// Verifier checks claims against source lines via bidirectional NLI.
type Verifier struct {
	nli nli.Predictor
}

// NewVerifier builds a verifier over an NLI predictor.
func NewVerifier(p nli.Predictor) *Verifier {
	return &Verifier{nli: p}
}

// Verify resolves a status and entailment score for every claim. Claims are
// processed in concurrent batches; an NLI failure aborts the whole pass.
func (v *Verifier) Verify(ctx context.Context, claimList []Claim, source string) ([]Verified, error) {
	out := make([]Verified, len(claimList))

	if strings.TrimSpace(source) == "" {
		for i, c := range claimList {
			out[i] = Verified{Claim: c, Status: StatusUnverified, EntailmentScore: 0.0}
		}
		return out, nil
	}

	expanded := ExpandAbbreviations(source)
	lines := sourceLines(expanded)
	lowerSource := strings.ToLower(expanded)

	for offset := 0; offset < len(claimList); offset += verifyBatchSize {
		end := offset + verifyBatchSize
		if end > len(claimList) {
			end = len(claimList)
		}

		errs := make([]error, end-offset)
		var wg sync.WaitGroup
		for i := offset; i < end; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				out[i], errs[i-offset] = v.verifyOne(ctx, claimList[i], lines, lowerSource)
			}(i)
		}
		wg.Wait()

		for _, err := range errs {
			if err != nil {
				return nil, err
			}
		}
	}
	return out, nil
}

func (v *Verifier) verifyOne(ctx context.Context, c Claim, lines []string, lowerSource string) (Verified, error) {
	claimText := ExpandAbbreviations(c.Text)

	claimTokens := tokens(claimText)
	entityTokens := make(map[string]struct{})
	for _, e := range c.Entities {
		for t := range tokens(e) {
			entityTokens[t] = struct{}{}
		}
	}

	type scored struct {
		line  string
		score float64
	}
	ranked := make([]scored, 0, len(lines))
	for _, line := range lines {
		ranked = append(ranked, scored{line, overlapScore(claimTokens, entityTokens, line)})
	}
	sort.SliceStable(ranked, func(a, b int) bool { return ranked[a].score > ranked[b].score })

	best := 0.0
	if len(ranked) > 0 {
		best = ranked[0].score
	}

	entityInSource := false
	for _, e := range c.Entities {
		if len(e) >= 2 && strings.Contains(lowerSource, strings.ToLower(e)) {
			entityInSource = true
			break
		}
	}
	if (best < groundednessGate && !entityInSource) || (best == 0 && len(c.Entities) == 0) {
		return Verified{Claim: c, Status: StatusUngrounded, EntailmentScore: 0.0}, nil
	}

	limit := topLines
	if limit > len(ranked) {
		limit = len(ranked)
	}

	partial := false
	for _, cand := range ranked[:limit] {
		forward, err := v.nli.Predict(ctx, cand.line, claimText)
		if err != nil {
			return Verified{}, fmt.Errorf("claims: verify: %w", err)
		}
		backward, err := v.nli.Predict(ctx, claimText, cand.line)
		if err != nil {
			return Verified{}, fmt.Errorf("claims: verify: %w", err)
		}

		if forward.Entails() && backward.Entails() {
			return Verified{Claim: c, Status: StatusVerified, EntailmentScore: 1.0}, nil
		}
		if forward.Contradicts() || backward.Contradicts() {
			return Verified{Claim: c, Status: StatusContradicted, EntailmentScore: 0.0}, nil
		}
		if forward.Entails() {
			partial = true
		}
	}

	if partial {
		return Verified{Claim: c, Status: StatusVerified, EntailmentScore: 0.8}, nil
	}
	return Verified{Claim: c, Status: StatusUnverified, EntailmentScore: 0.5}, nil
}
