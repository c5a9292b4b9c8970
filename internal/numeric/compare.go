package numeric

import (
	"fmt"
	"math"
	"regexp"
	"strings"

	"github.com/7789996399/Meerkat-API/internal/domain"
)

// Report is the outcome of a full numerical verification.
type Report struct {
	Score              float64                    `json:"score"`
	Status             string                     `json:"status"`
	NumbersInSource    int                        `json:"numbers_found_in_source"`
	NumbersInAI        int                        `json:"numbers_found_in_ai"`
	Matches            []domain.NumberMatchDetail `json:"matches"`
	Ungrounded         []domain.UngroundedNumber  `json:"ungrounded_numbers"`
	CriticalMismatches int                        `json:"critical_mismatches"`
	Detail             string                     `json:"detail"`
}

// Comparison statuses.
const (
	StatusPass    = "pass"
	StatusFail    = "fail"
	StatusWarning = "warning"
)

var (
	contextWordRe = regexp.MustCompile(`[a-zA-Z]{2,}`)
	labelWordRe   = regexp.MustCompile(`\b[a-zA-Z]{2,}\b`)
	firstDigitRe  = regexp.MustCompile(`\d`)
)

// contextSimilarity scores how likely two numbers refer to the same fact.
// Jaccard word overlap plus a strong boost when the label word immediately
// before each number matches. Boosts are additive and may exceed 1.0; the
// value is used for ordering only.
func contextSimilarity(a, b ExtractedNumber) float64 {
	wordsA := wordSet(a.Context)
	wordsB := wordSet(b.Context)
	if len(wordsA) == 0 || len(wordsB) == 0 {
		return 0
	}

	intersection := 0
	for w := range wordsA {
		if _, ok := wordsB[w]; ok {
			intersection++
		}
	}
	union := len(wordsA) + len(wordsB) - intersection
	jaccard := float64(intersection) / float64(union)

	labelA := extractLabel(a.Context, a.Raw)
	labelB := extractLabel(b.Context, b.Raw)
	if labelA != "" && labelA == labelB {
		jaccard += 0.4
	}
	return jaccard
}

func wordSet(context string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, w := range contextWordRe.FindAllString(strings.ToLower(context), -1) {
		set[w] = struct{}{}
	}
	return set
}

// extractLabel returns the word immediately before the number inside its
// context window, lowercased.
func extractLabel(context, raw string) string {
	pre := ""
	if raw != "" {
		if idx := strings.Index(context, raw); idx >= 0 {
			pre = strings.TrimRight(context[:idx], " \t")
		}
	}
	if pre == "" {
		if loc := firstDigitRe.FindStringIndex(context); loc != nil {
			pre = strings.TrimRight(context[:loc[0]], " \t")
		}
	}
	words := labelWordRe.FindAllString(pre, -1)
	if len(words) == 0 {
		return ""
	}
	return strings.ToLower(words[len(words)-1])
}

// computeDeviation returns the relative deviation between two normalized
// values. A zero source with a nonzero AI value caps at 999 to stay
// JSON-serializable.
func computeDeviation(sourceVal, aiVal float64) float64 {
	if sourceVal == 0 && aiVal == 0 {
		return 0
	}
	if sourceVal == 0 {
		return 999
	}
	d := aiVal - sourceVal
	if d < 0 {
		d = -d
	}
	abs := sourceVal
	if abs < 0 {
		abs = -abs
	}
	return d / abs
}

// Compare matches AI numbers to source numbers greedily (one source number
// serves at most one match) and checks matched pairs against the domain's
// tolerance rules. Unmatched AI numbers are reported as ungrounded.
func Compare(sourceNumbers, aiNumbers []ExtractedNumber, domainName string) Report {
	if len(aiNumbers) == 0 {
		return Report{
			Score:           1.0,
			Status:          StatusPass,
			NumbersInSource: len(sourceNumbers),
			Detail:          "No numbers found in AI output to verify.",
		}
	}

	if len(sourceNumbers) == 0 {
		return Report{
			Score:       0.5,
			Status:      StatusWarning,
			NumbersInAI: len(aiNumbers),
			Ungrounded:  toUngrounded(aiNumbers),
			Detail:      fmt.Sprintf("%d number(s) in AI output but none in source to compare against.", len(aiNumbers)),
		}
	}

	var (
		matches       []domain.NumberMatchDetail
		ungrounded    []domain.UngroundedNumber
		usedSource    = make(map[int]struct{})
		criticalCount int
	)

	for _, aiNum := range aiNumbers {
		bestIdx := -1
		bestSim := 0.3 // minimum similarity to accept a match

		for i, srcNum := range sourceNumbers {
			if _, used := usedSource[i]; used {
				continue
			}
			sim := contextSimilarity(aiNum, srcNum)
			if aiNum.ContextType == srcNum.ContextType && aiNum.ContextType != TypeDefault {
				sim += 0.2
			}
			if aiNum.Unit != "" && srcNum.Unit != "" {
				// Compare canonical units so "month" pairs with "years".
				_, aiUnit := Normalize(0, aiNum.Unit)
				_, srcUnit := Normalize(0, srcNum.Unit)
				if aiUnit == srcUnit {
					sim += 0.15
				}
			}
			if sim > bestSim {
				bestSim = sim
				bestIdx = i
			}
		}

		if bestIdx == -1 {
			ungrounded = append(ungrounded, domain.UngroundedNumber{
				Value:       aiNum.Value,
				Raw:         aiNum.Raw,
				Context:     clipContext(aiNum.Context),
				ContextType: aiNum.ContextType,
			})
			continue
		}

		srcNum := sourceNumbers[bestIdx]
		usedSource[bestIdx] = struct{}{}

		srcVal, _ := Normalize(srcNum.Value, srcNum.Unit)
		aiVal, _ := Normalize(aiNum.Value, aiNum.Unit)

		rule := RuleFor(domainName, aiNum.ContextType)
		deviation := computeDeviation(srcVal, aiVal)
		isMatch := deviation <= rule.Tolerance

		if !isMatch && rule.Severity == SeverityCritical {
			criticalCount++
		}

		verdict := "PASS"
		if !isMatch {
			verdict = "FAIL (" + rule.Severity + ")"
		}
		matches = append(matches, domain.NumberMatchDetail{
			SourceValue: srcNum.Value,
			SourceRaw:   srcNum.Raw,
			AIValue:     aiNum.Value,
			AIRaw:       aiNum.Raw,
			Context:     clipContext(aiNum.Context),
			ContextType: aiNum.ContextType,
			Match:       isMatch,
			Deviation:   round4(deviation),
			Tolerance:   rule.Tolerance,
			Severity:    rule.Severity,
			Detail: fmt.Sprintf("%s: source=%s (%s), ai=%s, deviation=%.1f%%, tolerance=%.1f%%, %s",
				aiNum.ContextType, srcNum.Raw, srcNum.ContextType, aiNum.Raw,
				deviation*100, rule.Tolerance*100, verdict),
		})
	}

	var score float64
	passing := 0
	for _, m := range matches {
		if m.Match {
			passing++
		}
	}
	if len(matches) == 0 {
		score = 1.0
		if len(ungrounded) > 0 {
			score = 0.5
		}
	} else {
		score = float64(passing) / float64(len(matches))
	}

	var status string
	switch {
	case criticalCount > 0 || score < 0.5:
		status = StatusFail
	case score < 1.0 || len(ungrounded) > 0:
		status = StatusWarning
	default:
		status = StatusPass
	}

	failing := len(matches) - passing
	parts := []string{fmt.Sprintf("%d matched pair(s): %d pass, %d fail.", len(matches), passing, failing)}
	if len(ungrounded) > 0 {
		parts = append(parts, fmt.Sprintf("%d ungrounded number(s) in AI output.", len(ungrounded)))
	}
	if criticalCount > 0 {
		parts = append(parts, fmt.Sprintf("%d CRITICAL mismatch(es).", criticalCount))
	}

	return Report{
		Score:              round4(score),
		Status:             status,
		NumbersInSource:    len(sourceNumbers),
		NumbersInAI:        len(aiNumbers),
		Matches:            matches,
		Ungrounded:         ungrounded,
		CriticalMismatches: criticalCount,
		Detail:             strings.Join(parts, " "),
	}
}

// Verify extracts numbers from both texts and compares them.
func Verify(aiOutput, sourceContext, domainName string) Report {
	return Compare(Extract(sourceContext), Extract(aiOutput), domainName)
}

func toUngrounded(nums []ExtractedNumber) []domain.UngroundedNumber {
	out := make([]domain.UngroundedNumber, 0, len(nums))
	for _, n := range nums {
		out = append(out, domain.UngroundedNumber{
			Value:       n.Value,
			Raw:         n.Raw,
			Context:     clipContext(n.Context),
			ContextType: n.ContextType,
		})
	}
	return out
}

func clipContext(s string) string {
	if len(s) > 80 {
		return s[:80]
	}
	return s
}

func round4(v float64) float64 {
	return math.Round(v*10000) / 10000
}
