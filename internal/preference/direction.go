package preference

import (
	"regexp"
	"strings"

	"github.com/7789996399/Meerkat-API/internal/domain"
)

// Keyword sets per domain. The first side is party A, the second party B.
var domainKeywords = map[domain.Domain][2][]string{
	domain.DomainLegal: {
		{ // plaintiff
			"liable", "negligent", "breach", "at fault", "culpable",
			"responsible for damages", "violated", "failed to comply",
			"in violation", "should be held accountable",
		},
		{ // defendant
			"not liable", "without fault", "compliant", "within rights",
			"no breach", "properly discharged", "acted reasonably",
			"no evidence of negligence", "lawfully", "in good faith",
		},
	},
	domain.DomainFinancial: {
		{ // buy
			"strong buy", "undervalued", "upside potential", "growth opportunity",
			"outperform", "bullish", "attractive valuation", "recommend buying",
			"accumulate", "price target above",
		},
		{ // sell
			"overvalued", "downside risk", "sell", "bearish", "underperform",
			"reduce position", "take profits", "declining fundamentals",
			"negative outlook", "price target below",
		},
	},
	domain.DomainHealthcare: {
		{ // treatment
			"recommend treatment", "beneficial", "effective therapy",
			"clinically indicated", "evidence supports", "improved outcomes",
			"significant benefit", "first-line treatment", "strongly indicated",
			"favorable risk-benefit",
		},
		{ // conservative
			"watchful waiting", "monitor", "conservative approach",
			"not clinically indicated", "risks outweigh", "defer treatment",
			"insufficient evidence", "observation preferred", "side effects concern",
			"no immediate intervention",
		},
	},
}

var generalKeywords = [2][]string{
	{ // option_a
		"clearly better", "superior", "strongly recommend", "the best choice",
		"obvious advantage", "far preferable", "without question",
	},
	{ // option_b
		"inferior", "not recommended", "worse option", "should avoid",
		"disadvantage", "problematic", "less suitable",
	},
}

// Default party labels per domain.
var partyLabels = map[domain.Domain][2]string{
	domain.DomainLegal:      {"plaintiff", "defendant"},
	domain.DomainFinancial:  {"buy_side", "sell_side"},
	domain.DomainHealthcare: {"treatment", "conservative"},
	domain.DomainGeneral:    {"option_a", "option_b"},
}

// Side names used to build the direction string.
var sideNames = map[domain.Domain][2]string{
	domain.DomainLegal:      {"plaintiff", "defendant"},
	domain.DomainFinancial:  {"buy", "sell"},
	domain.DomainHealthcare: {"treatment", "conservative"},
}

// DirectionResult reports which party the output leans toward.
type DirectionResult struct {
	Direction     string   `json:"direction"`
	PartyA        string   `json:"party_a"`
	PartyB        string   `json:"party_b"`
	PartyAScore   float64  `json:"party_a_score"`
	PartyBScore   float64  `json:"party_b_score"`
	KeywordsFound []string `json:"keywords_found"`
}

var (
	caseCaptionRe = regexp.MustCompile(`([A-Z][a-zA-Z\s]+?)\s+(?:v\.|vs\.?|versus)\s+([A-Z][a-zA-Z\s]+?)(?:\s|$|,|\.)`)
	tickerRe      = regexp.MustCompile(`\b([A-Z]{2,5})\b`)
	treatmentRe   = regexp.MustCompile(`(?i)(?:treatment|therapy|medication|drug)[:\s]+([A-Za-z\s]+?)(?:\s|$|,|\.)`)
)

// AnalyzeDirection counts directional keywords per side and normalizes by
// the larger keyword list. Party labels come from the context when a
// domain-specific pattern finds them.
func AnalyzeDirection(text string, d domain.Domain, contextText string) DirectionResult {
	lower := strings.ToLower(text)

	sides, known := domainKeywords[d]
	if !known {
		sides = generalKeywords
	}
	names, ok := sideNames[d]
	if !ok {
		names = [2]string{"option_a", "option_b"}
	}

	labels, ok := partyLabels[d]
	if !ok {
		labels = partyLabels[domain.DomainGeneral]
	}
	if a, b := extractParties(contextText, d); a != "" || b != "" {
		if a != "" {
			labels[0] = a
		}
		if b != "" {
			labels[1] = b
		}
	}

	var aFound, bFound []string
	for _, kw := range sides[0] {
		if strings.Contains(lower, kw) {
			aFound = append(aFound, kw)
		}
	}
	for _, kw := range sides[1] {
		if strings.Contains(lower, kw) {
			bFound = append(bFound, kw)
		}
	}

	var direction string
	switch {
	case len(aFound)+len(bFound) == 0:
		direction = "neutral"
	case len(aFound) > len(bFound):
		direction = "favors_" + names[0]
	case len(bFound) > len(aFound):
		direction = "favors_" + names[1]
	default:
		direction = "balanced"
	}

	maxPossible := len(sides[0])
	if len(sides[1]) > maxPossible {
		maxPossible = len(sides[1])
	}
	var aNorm, bNorm float64
	if maxPossible > 0 {
		aNorm = float64(len(aFound)) / float64(maxPossible)
		bNorm = float64(len(bFound)) / float64(maxPossible)
	}

	return DirectionResult{
		Direction:     direction,
		PartyA:        labels[0],
		PartyB:        labels[1],
		PartyAScore:   round4(aNorm),
		PartyBScore:   round4(bNorm),
		KeywordsFound: append(aFound, bFound...),
	}
}

// extractParties pulls party names from the context with domain-specific
// patterns: case captions, tickers, treatment names.
func extractParties(contextText string, d domain.Domain) (string, string) {
	if contextText == "" {
		return "", ""
	}

	switch d {
	case domain.DomainLegal:
		if m := caseCaptionRe.FindStringSubmatch(contextText); m != nil {
			return strings.TrimSpace(m[1]), strings.TrimSpace(m[2])
		}
	case domain.DomainFinancial:
		tickers := tickerRe.FindAllStringSubmatch(contextText, -1)
		if len(tickers) >= 2 {
			return tickers[0][1], tickers[1][1]
		}
		if len(tickers) == 1 {
			return tickers[0][1], "market"
		}
	case domain.DomainHealthcare:
		if m := treatmentRe.FindStringSubmatch(contextText); m != nil {
			return strings.TrimSpace(m[1]), "conservative_care"
		}
	}
	return "", ""
}
