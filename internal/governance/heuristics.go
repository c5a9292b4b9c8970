package governance

import (
	"fmt"
	"math"
	"regexp"
	"strings"

	"github.com/7789996399/Meerkat-API/internal/domain"
)

// Text-only fallback scorers, used when the model runtimes and analyzer
// services are all unreachable. They look at the output itself for
// confidence, grounding, and bias signals.

var sentenceAbbrevs = strings.NewReplacer(
	"Inc.", "Inc_", "Corp.", "Corp_", "Dr.", "Dr_", "Mr.", "Mr_",
	"Ms.", "Ms_", "Blvd.", "Blvd_", "St.", "St_", "B.C.", "BC_",
)

var sentenceSplitRe = regexp.MustCompile(`[.!?]+\s+`)

// splitSentencesProtected splits on terminal punctuation after shielding
// common abbreviations.
func splitSentencesProtected(text string) []string {
	protected := sentenceAbbrevs.Replace(text)
	var out []string
	for _, s := range sentenceSplitRe.Split(protected, -1) {
		s = strings.TrimSpace(strings.ReplaceAll(s, "_", "."))
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}

var digitNumberRe = regexp.MustCompile(`\$[\d,]+(?:\.\d+)?|\d+(?:\.\d+)?%|\d+`)

var wordNumbers = map[string]string{
	"one": "1", "two": "2", "three": "3", "four": "4", "five": "5",
	"six": "6", "seven": "7", "eight": "8", "nine": "9", "ten": "10",
	"twelve": "12", "fifteen": "15", "twenty": "20", "thirty": "30",
	"fifty": "50", "sixty": "60", "ninety": "90", "hundred": "100",
}

// extractNumbers pulls number-like tokens: digits, dollar amounts,
// percentages, and common word-form numbers.
func extractNumbers(text string) []string {
	numbers := digitNumberRe.FindAllString(text, -1)
	lower := strings.ToLower(text)
	for word, digit := range wordNumbers {
		if strings.Contains(lower, word) {
			numbers = append(numbers, digit)
		}
	}
	return numbers
}

func containsString(haystack []string, needle string) bool {
	for _, s := range haystack {
		if s == needle {
			return true
		}
	}
	return false
}

// findContextWindow returns the chunk of context surrounding the first
// occurrence of term, or "" when absent.
func findContextWindow(term, context string, window int) string {
	idx := strings.Index(strings.ToLower(context), strings.ToLower(term))
	if idx == -1 {
		return ""
	}
	start := idx - window
	if start < 0 {
		start = 0
	}
	end := idx + len(term) + window
	if end > len(context) {
		end = len(context)
	}
	return context[start:end]
}

var (
	durationPhraseRe = regexp.MustCompile(`(?i)(\d+)[\s-]*(day|week|month|year|mile)s?`)
	sectionRefRe     = regexp.MustCompile(`(?i)(?:Section|Clause|Article)\s+(\d+(?:\.\d+)*)`)
	properNounRe     = regexp.MustCompile(`\b[A-Z][a-z]+(?:\s+[A-Z][a-z]+)*\b`)
)

var skipNouns = map[string]struct{}{
	"The": {}, "This": {}, "That": {}, "These": {}, "Section": {}, "Clause": {},
}

// heuristicEntailment grounds checkable facts (numbers, durations, section
// references, proper nouns) in the source by term matching. A different
// number near the same unit counts as a contradiction.
func heuristicEntailment(output, context string) domain.CheckResult {
	if context == "" {
		return domain.CheckResult{
			Score:  0.5,
			Flags:  []string{"no_context_provided"},
			Detail: "No source document provided. Entailment check requires context for accurate scoring.",
		}
	}

	contextLower := strings.ToLower(context)
	var supported, contradicted, neutral, totalChecked int
	var flags []string

	for _, sentence := range splitSentencesProtected(output) {
		if len(strings.Fields(sentence)) < 4 {
			continue
		}

		sentenceNumbers := extractNumbers(sentence)
		durations := durationPhraseRe.FindAllStringSubmatch(sentence, -1)
		sections := sectionRefRe.FindAllStringSubmatch(sentence, -1)
		if len(sentenceNumbers) == 0 && len(durations) == 0 && len(sections) == 0 {
			continue
		}

		totalChecked++
		sentenceSupported := true
		sentenceContradicted := false

		for _, m := range durations {
			value, unit := m[1], strings.ToLower(m[2])
			unitWindow := findContextWindow(unit, context, 200)
			if unitWindow == "" {
				sentenceSupported = false
				continue
			}
			contextNumbers := extractNumbers(unitWindow)
			switch {
			case containsString(contextNumbers, value):
				// exact match
			case len(contextNumbers) > 0:
				sentenceContradicted = true
				sentenceSupported = false
				flags = append(flags, fmt.Sprintf("contradiction: '%s %ss' vs source", value, unit))
			default:
				sentenceSupported = false
			}
		}

		for _, m := range sections {
			ref := m[1]
			if !strings.Contains(contextLower, strings.ToLower("section "+ref)) &&
				!strings.Contains(contextLower, ref) {
				sentenceSupported = false
			}
		}

		for _, noun := range properNounRe.FindAllString(sentence, -1) {
			if len(noun) <= 3 {
				continue
			}
			if _, skip := skipNouns[noun]; skip {
				continue
			}
			if !strings.Contains(contextLower, strings.ToLower(noun)) {
				sentenceSupported = false
			}
		}

		switch {
		case sentenceContradicted:
			contradicted++
		case sentenceSupported:
			supported++
		default:
			neutral++
		}
	}

	return entailmentVerdict(supported, contradicted, neutral, totalChecked, flags)
}

// entailmentVerdict fuses per-sentence tallies into a check result. Shared
// by the NLI path and the term-matching fallback.
func entailmentVerdict(supported, contradicted, neutral, totalChecked int, flags []string) domain.CheckResult {
	var score float64
	if totalChecked == 0 {
		score = 0.7 // no checkable claims, moderate confidence
	} else {
		base := float64(supported) / float64(totalChecked)
		score = base - float64(contradicted)*0.2 - float64(neutral)*0.05
		score = domain.Clip(score)
	}

	var detail string
	switch {
	case contradicted > 0:
		detail = fmt.Sprintf(
			"Found %d contradiction(s) with the source document. %d/%d claims supported, %d contradicted, %d unverifiable.",
			contradicted, supported, totalChecked, contradicted, neutral)
		flags = append([]string{"entailment_contradiction"}, flags...)
	case neutral > 0 && supported == 0:
		detail = fmt.Sprintf("None of the %d claims could be verified against the source.", totalChecked)
		flags = append(flags, "weak_entailment")
	case neutral > 0:
		detail = fmt.Sprintf("%d/%d claims supported by the source. %d could not be verified.",
			supported, totalChecked, neutral)
	case totalChecked == 0:
		detail = "No checkable factual statements found in the output."
	default:
		detail = fmt.Sprintf("All %d claims are grounded in the source document.", supported)
	}

	return domain.CheckResult{Score: round3(score), Flags: flags, Detail: detail}
}

var hedgeWords = map[string]struct{}{
	"may": {}, "might": {}, "could": {}, "possibly": {}, "perhaps": {},
	"uncertain": {}, "likely": {}, "unlikely": {}, "appears": {}, "seems": {},
	"arguably": {}, "potentially": {}, "suggest": {}, "suggests": {},
	"probable": {}, "presumably": {}, "conceivably": {},
}

var hedgePhrases = []string{
	"it is unclear", "it seems", "it appears", "it is possible",
	"it is likely", "it is unlikely", "there may be", "there might be",
	"not entirely clear", "difficult to determine", "hard to say",
	"open to interpretation", "subject to debate",
}

var confidencePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\b\d+[\s-](?:day|week|month|year|mile)s?\b`),
	regexp.MustCompile(`(?i)(?:Section|Clause|Article)\s+\d`),
	regexp.MustCompile(`\$[\d,]+`),
	regexp.MustCompile(`\d+(?:\.\d+)?%`),
	regexp.MustCompile(`(?i)\b(?:requires|contains|states|specifies|provides|mandates)\b`),
}

var contradictionStructures = []*regexp.Regexp{
	regexp.MustCompile(`\bbut\s+(?:also|however)`),
	regexp.MustCompile(`\bhowever.*(?:nevertheless|nonetheless)`),
	regexp.MustCompile(`\bon\s+(?:the\s+)?one\s+hand.*on\s+the\s+other`),
}

// heuristicEntropy reads confidence signals off the text: hedging lowers
// the score, specific facts raise it.
func heuristicEntropy(output string) domain.CheckResult {
	textLower := strings.ToLower(output)
	words := strings.Fields(textLower)
	wordCount := len(words)
	if wordCount < 1 {
		wordCount = 1
	}

	hedgeCount := 0
	for _, w := range words {
		if _, ok := hedgeWords[strings.Trim(w, ".,;:!?")]; ok {
			hedgeCount++
		}
	}
	hedgeRatio := float64(hedgeCount) / float64(wordCount)

	phraseCount := 0
	for _, p := range hedgePhrases {
		if strings.Contains(textLower, p) {
			phraseCount++
		}
	}
	confidenceCount := 0
	for _, re := range confidencePatterns {
		confidenceCount += len(re.FindAllString(output, -1))
	}
	contradictionCount := 0
	for _, re := range contradictionStructures {
		if re.MatchString(textLower) {
			contradictionCount++
		}
	}

	score := 0.5
	score += math.Min(float64(confidenceCount)*0.08, 0.4)
	score -= hedgeRatio * 3.0
	score -= float64(phraseCount) * 0.08
	score -= float64(contradictionCount) * 0.15
	if wordCount < 20 && confidenceCount == 0 {
		score -= 0.1
	}
	score = round3(domain.Clip(score))

	var flags []string
	var details []string
	switch {
	case score < 0.35:
		flags = append(flags, "high_uncertainty")
		details = append(details, "Output shows significant hedging and lacks specific details.")
	case score < 0.65:
		flags = append(flags, "moderate_uncertainty")
		details = append(details, "Output contains some hedging language.")
	}
	if contradictionCount > 0 {
		flags = append(flags, "self_contradicting")
		details = append(details, "Output contains self-contradicting statements.")
	}
	if hedgeCount > 0 && len(details) == 0 {
		details = append(details, fmt.Sprintf(
			"Detected %d hedge word(s) but overall confidence is acceptable.", hedgeCount))
	}
	if len(details) == 0 {
		details = append(details, "Output shows high confidence with specific facts and definitive language.")
	}

	return domain.CheckResult{
		Score:  score,
		Flags:  flags,
		Detail: strings.Join(details, " ") + " (heuristic -- entropy service unavailable)",
	}
}

var monetaryRe = regexp.MustCompile(`\$[\d,]+(?:\.\d+)?`)

type heuristicClaim struct {
	text      string
	claimType string
	value     string
	unit      string
}

// extractClaimsHeuristic pulls structured claims (durations, money,
// percentages, section references) via regex.
func extractClaimsHeuristic(output string) []heuristicClaim {
	var out []heuristicClaim
	for _, m := range durationPhraseRe.FindAllStringSubmatch(output, -1) {
		out = append(out, heuristicClaim{m[0], "duration", m[1], strings.ToLower(m[2])})
	}
	for _, m := range monetaryRe.FindAllString(output, -1) {
		out = append(out, heuristicClaim{m, "monetary", m, "dollars"})
	}
	for _, m := range regexp.MustCompile(`(\d+(?:\.\d+)?)\s*%`).FindAllStringSubmatch(output, -1) {
		out = append(out, heuristicClaim{m[0], "percentage", m[1], "percent"})
	}
	for _, m := range sectionRefRe.FindAllStringSubmatch(output, -1) {
		out = append(out, heuristicClaim{m[0], "section_ref", m[1], "section"})
	}
	for _, g := range geoPatterns {
		if m := g.re.FindString(output); m != "" {
			text := g.label
			if text == "" {
				text = m
			}
			out = append(out, heuristicClaim{text, "geographic", text, "location"})
		}
	}
	return out
}

var geoPatterns = []struct {
	re    *regexp.Regexp
	label string
}{
	{regexp.MustCompile(`(?i)(?:all\s+of\s+)?North\s+America`), "North America"},
	{regexp.MustCompile(`(?i)British\s+Columbia`), "British Columbia"},
	{regexp.MustCompile(`(?i)Vancouver(?:,\s*BC)?`), "Vancouver"},
	{regexp.MustCompile(`(?i)(?:United\s+States|Canada)`), ""},
}

var knownGeoTerms = []string{
	"north america", "british columbia", "vancouver", "canada", "united states",
}

func verifyClaimHeuristic(c heuristicClaim, context string) string {
	contextLower := strings.ToLower(context)

	switch c.claimType {
	case "duration":
		// Matches both "30 days" and the contract style "thirty (30) days".
		re := regexp.MustCompile(`(\w+)\s*\((\d+)\)\s*` + c.unit + `s?|(\d+)[\s-]*` + c.unit + `s?`)
		matches := re.FindAllStringSubmatch(contextLower, -1)
		if len(matches) == 0 {
			return "unverified"
		}
		for _, m := range matches {
			contextValue := m[2]
			if contextValue == "" {
				contextValue = m[3]
			}
			if contextValue == c.value {
				return "verified"
			}
		}
		return "contradicted"
	case "monetary":
		if strings.Contains(contextLower, strings.ToLower(c.value)) {
			return "verified"
		}
		if monetaryRe.MatchString(context) {
			return "contradicted"
		}
		return "unverified"
	case "section_ref":
		if strings.Contains(context, c.value) ||
			strings.Contains(contextLower, strings.ToLower("section "+c.value)) {
			return "verified"
		}
		return "unverified"
	case "geographic":
		valueLower := strings.ToLower(c.value)
		if strings.Contains(contextLower, valueLower) {
			return "verified"
		}
		for _, g := range knownGeoTerms {
			if strings.Contains(contextLower, g) && g != valueLower {
				return "contradicted"
			}
		}
		return "unverified"
	default:
		if strings.Contains(contextLower, strings.ToLower(c.value)) {
			return "verified"
		}
		return "unverified"
	}
}

// heuristicClaims extracts structured claims and grounds them by text
// matching.
func heuristicClaims(output, context string) domain.CheckResult {
	extracted := extractClaimsHeuristic(output)
	if len(extracted) == 0 {
		return domain.CheckResult{
			Score:  0.7,
			Detail: "No specific factual claims detected in the output. (heuristic -- claims service unavailable)",
			Claims: &domain.ClaimBreakdown{},
		}
	}

	var verified, contradicted, unverified int
	var flags []string
	for _, c := range extracted {
		switch verifyClaimHeuristic(c, context) {
		case "verified":
			verified++
		case "contradicted":
			contradicted++
			flags = append(flags, fmt.Sprintf("claim: '%s' contradicts source", c.text))
		default:
			unverified++
			flags = append(flags, fmt.Sprintf("claim: '%s' not found in source", c.text))
		}
	}

	total := len(extracted)
	score := float64(verified)/float64(total) -
		float64(contradicted)*0.25 - float64(unverified)*0.05
	score = round3(domain.Clip(score))

	parts := []string{
		fmt.Sprintf("Extracted %d factual claim(s).", total),
		fmt.Sprintf("%d verified, %d unverified, %d contradicted.", verified, unverified, contradicted),
	}
	if contradicted > 0 {
		parts = append(parts, "Source document contradicts one or more claims.")
	}

	return domain.CheckResult{
		Score:  score,
		Flags:  flags,
		Detail: strings.Join(parts, " ") + " (heuristic -- claims service unavailable)",
		Claims: &domain.ClaimBreakdown{
			Total:        total,
			Verified:     verified,
			Unverified:   unverified,
			Contradicted: contradicted,
		},
	}
}

var strongBiasPhrases = []string{
	"extremely aggressive", "extremely unfavorable", "clearly unfair",
	"obviously risky", "obviously unfavorable", "must reject",
	"should never accept", "should never agree", "outrageous",
	"alarming", "devastating", "unacceptable terms",
	"strongly advise against", "no reasonable person would",
	"you must not", "under no circumstances",
}

var mildBiasWords = []string{
	"must", "should", "always", "never", "clearly", "obviously",
	"undoubtedly", "certainly", "worst", "terrible", "dangerous",
	"unacceptable", "unreasonable", "excessive", "egregious",
}

var balancedIndicators = []string{
	"however", "on the other hand", "alternatively", "in contrast",
	"both parties", "either party", "balanced", "standard",
	"typical", "common in", "customary", "reasonable",
	"the clause states", "the provision provides", "the section specifies",
	"according to", "as stated in",
}

var aggressiveClaimRe = regexp.MustCompile(`\b(?:aggressive|extreme|excessive|unreasonable|outrageous)\s+\w+`)

// heuristicPreference counts loaded and balanced phrasing.
func heuristicPreference(output string) domain.CheckResult {
	textLower := strings.ToLower(output)

	strongHits, mildHits, balancedHits := 0, 0, 0
	for _, p := range strongBiasPhrases {
		if strings.Contains(textLower, p) {
			strongHits++
		}
	}
	for _, w := range mildBiasWords {
		if strings.Contains(textLower, w) {
			mildHits++
		}
	}
	for _, p := range balancedIndicators {
		if strings.Contains(textLower, p) {
			balancedHits++
		}
	}
	aggressive := len(aggressiveClaimRe.FindAllString(textLower, -1))

	score := 0.85
	score -= float64(strongHits) * 0.20
	score -= float64(mildHits) * 0.04
	score -= float64(aggressive) * 0.10
	score += float64(balancedHits) * 0.03
	score = round3(domain.Clip(score))

	var flags []string
	var detail string
	switch {
	case score < 0.5:
		flags = append(flags, "strong_bias")
		detail = fmt.Sprintf(
			"Output contains strongly biased language (%d loaded phrase(s), %d directional word(s)). "+
				"The response appears to steer the user rather than present balanced analysis.",
			strongHits, mildHits)
	case score < 0.75:
		flags = append(flags, "mild_preference")
		detail = fmt.Sprintf(
			"Output contains some directional language (%d indicator(s)). "+
				"Consider reviewing for implicit preference.", mildHits)
	default:
		detail = "Output uses neutral, balanced language without significant directional bias."
		if balancedHits > 0 {
			detail += fmt.Sprintf(" Found %d balanced/objective indicator(s).", balancedHits)
		}
	}

	return domain.CheckResult{
		Score:  score,
		Flags:  flags,
		Detail: detail + " (heuristic -- preference service unavailable)",
	}
}

func round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}
