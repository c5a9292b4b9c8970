package claims

import (
	"regexp"
	"strings"
)

// expansion rewrites one clinical abbreviation. Order matters: earlier
// entries must not be shadowed by later, broader ones.
type expansion struct {
	re   *regexp.Regexp
	full string
}

// clinicalExpansions expands shorthand that changes meaning under NLI
// (dosing frequency, routes, condition acronyms). Lab names are left alone.
var clinicalExpansions = []expansion{
	// Frequency
	{regexp.MustCompile(`\bBID\b`), "twice daily"},
	{regexp.MustCompile(`\bTID\b`), "three times daily"},
	{regexp.MustCompile(`\bQID\b`), "four times daily"},
	{regexp.MustCompile(`\bQD\b`), "once daily"},
	{regexp.MustCompile(`\bQ\.?D\.?\b`), "once daily"},
	{regexp.MustCompile(`\bQ\.?H\.?S\.?\b`), "at bedtime"},
	{regexp.MustCompile(`\bPRN\b`), "as needed"},
	{regexp.MustCompile(`\bAC\b`), "before meals"},
	{regexp.MustCompile(`\bPC\b`), "after meals"},
	{regexp.MustCompile(`\bHS\b`), "at bedtime"},
	// Route
	{regexp.MustCompile(`\bPO\b`), "by mouth"},
	{regexp.MustCompile(`\bIV\b`), "intravenous"},
	{regexp.MustCompile(`\bIM\b`), "intramuscular"},
	{regexp.MustCompile(`\bSQ\b`), "subcutaneous"},
	{regexp.MustCompile(`\bSL\b`), "sublingual"},
	{regexp.MustCompile(`\bPR\b`), "per rectum"},
	// Common clinical
	{regexp.MustCompile(`\bNKDA\b`), "no known drug allergies"},
	{regexp.MustCompile(`\bNKA\b`), "no known allergies"},
	{regexp.MustCompile(`\bWNL\b`), "within normal limits"},
	{regexp.MustCompile(`\bNAD\b`), "no acute distress"},
	{regexp.MustCompile(`\bA&O\s*x\s*3\b`), "alert and oriented times three"},
	{regexp.MustCompile(`\bA&Ox3\b`), "alert and oriented times three"},
	{regexp.MustCompile(`\bRA\b`), "room air"},
	// History
	{regexp.MustCompile(`\bPMH\b`), "past medical history"},
	{regexp.MustCompile(`\bPSH\b`), "past surgical history"},
	{regexp.MustCompile(`\bFH\b`), "family history"},
	{regexp.MustCompile(`\bSH\b`), "social history"},
	{regexp.MustCompile(`\bHPI\b`), "history of present illness"},
	{regexp.MustCompile(`\bROS\b`), "review of systems"},
	// Conditions
	{regexp.MustCompile(`\bHTN\b`), "hypertension"},
	{regexp.MustCompile(`\bT2DM\b`), "type 2 diabetes mellitus"},
	{regexp.MustCompile(`\bT1DM\b`), "type 1 diabetes mellitus"},
	{regexp.MustCompile(`\bDM\b`), "diabetes mellitus"},
	{regexp.MustCompile(`\bCHF\b`), "congestive heart failure"},
	{regexp.MustCompile(`\bCOPD\b`), "chronic obstructive pulmonary disease"},
	{regexp.MustCompile(`\bCAD\b`), "coronary artery disease"},
	{regexp.MustCompile(`\bAFib\b`), "atrial fibrillation"},
	{regexp.MustCompile(`\bCKD\b`), "chronic kidney disease"},
	{regexp.MustCompile(`\bGERD\b`), "gastroesophageal reflux disease"},
	{regexp.MustCompile(`\bDVT\b`), "deep vein thrombosis"},
	{regexp.MustCompile(`\bPE\b`), "pulmonary embolism"},
	{regexp.MustCompile(`\bACS\b`), "acute coronary syndrome"},
	{regexp.MustCompile(`\bSTEMI\b`), "ST-elevation myocardial infarction"},
	{regexp.MustCompile(`\bNSTEMI\b`), "non-ST-elevation myocardial infarction"},
	{regexp.MustCompile(`\bCVA\b`), "cerebrovascular accident"},
	{regexp.MustCompile(`\bTIA\b`), "transient ischemic attack"},
	{regexp.MustCompile(`\bUTI\b`), "urinary tract infection"},
	{regexp.MustCompile(`\bCAP\b`), "community-acquired pneumonia"},
	// Procedures and imaging
	{regexp.MustCompile(`\bECG\b`), "electrocardiogram"},
	{regexp.MustCompile(`\bEKG\b`), "electrocardiogram"},
	{regexp.MustCompile(`\bCXR\b`), "chest X-ray"},
	{regexp.MustCompile(`\bCT\b`), "computed tomography"},
	{regexp.MustCompile(`\bMRI\b`), "magnetic resonance imaging"},
	{regexp.MustCompile(`\bEBL\b`), "estimated blood loss"},
	{regexp.MustCompile(`\bPICC\b`), "peripherally inserted central catheter"},
	{regexp.MustCompile(`\bPACU\b`), "post-anesthesia care unit"},
	// Anatomical locations
	{regexp.MustCompile(`\bRLL\b`), "right lower lobe"},
	{regexp.MustCompile(`\bRUL\b`), "right upper lobe"},
	{regexp.MustCompile(`\bLLL\b`), "left lower lobe"},
	{regexp.MustCompile(`\bLUL\b`), "left upper lobe"},
	{regexp.MustCompile(`\bRUQ\b`), "right upper quadrant"},
	{regexp.MustCompile(`\bLUQ\b`), "left upper quadrant"},
	{regexp.MustCompile(`\bRLQ\b`), "right lower quadrant"},
	{regexp.MustCompile(`\bLLQ\b`), "left lower quadrant"},
}

// ExpandAbbreviations rewrites clinical shorthand to full terms so the NLI
// runtime sees vocabulary it was trained on.
func ExpandAbbreviations(text string) string {
	for _, e := range clinicalExpansions {
		text = e.re.ReplaceAllString(text, e.full)
	}
	return text
}

// Abbreviation-final words that do not end a sentence.
var nonSentenceEndings = regexp.MustCompile(
	`\b(?:Dr|Mr|Mrs|Ms|Prof|Jr|Sr|vs|etc|approx|est|` +
		`q\.\d+h|q\.h\.s|q\.d|a\.m|p\.m|e\.g|i\.e|pt|wt|ht|` +
		`Jan|Feb|Mar|Apr|May|Jun|Jul|Aug|Sep|Oct|Nov|Dec)\.\s*$`)

var decimalFinalRe = regexp.MustCompile(`\d+\.\d+\.$`)

// SplitSentences splits clinical prose without breaking on titles, dosing
// shorthand, or decimals like "WBC 14.2, Cr 1.2".
func SplitSentences(text string) []string {
	var sentences []string
	var current []string
	words := strings.Fields(text)

	for i, word := range words {
		current = append(current, word)

		switch {
		case strings.HasSuffix(word, ".") && len(word) > 1:
			joined := strings.Join(current, " ")
			if nonSentenceEndings.MatchString(joined) {
				continue
			}
			if decimalFinalRe.MatchString(word) {
				// "14.2." ends a sentence only when the next word opens one.
				if i+1 < len(words) && startsUpper(words[i+1]) {
					sentences = append(sentences, joined)
					current = nil
				}
				continue
			}
			sentences = append(sentences, joined)
			current = nil

		case strings.HasSuffix(word, "!") || strings.HasSuffix(word, "?"):
			sentences = append(sentences, strings.Join(current, " "))
			current = nil
		}
	}
	if len(current) > 0 {
		sentences = append(sentences, strings.Join(current, " "))
	}

	out := sentences[:0]
	for _, s := range sentences {
		s = strings.TrimSpace(s)
		if len(s) > 10 {
			out = append(out, s)
		}
	}
	return out
}

func startsUpper(w string) bool {
	return len(w) > 0 && w[0] >= 'A' && w[0] <= 'Z'
}

// ChunkContext splits long source text into overlapping word-count chunks so
// each premise fits the NLI runtime's input window.
func ChunkContext(text string, maxWords, overlap int) []string {
	words := strings.Fields(text)
	if len(words) <= maxWords {
		return []string{text}
	}

	var chunks []string
	start := 0
	for start < len(words) {
		end := start + maxWords
		if end > len(words) {
			end = len(words)
		}
		chunks = append(chunks, strings.Join(words[start:end], " "))
		if end >= len(words) {
			break
		}
		start = end - overlap
	}
	return chunks
}

var stopWords = map[string]struct{}{
	"the": {}, "a": {}, "an": {}, "is": {}, "was": {}, "were": {}, "are": {},
	"been": {}, "be": {}, "have": {}, "has": {}, "had": {}, "do": {},
	"does": {}, "did": {}, "will": {}, "would": {}, "could": {},
	"should": {}, "may": {}, "might": {}, "shall": {}, "can": {},
	"and": {}, "or": {}, "but": {}, "in": {}, "on": {}, "at": {},
	"to": {}, "for": {}, "of": {}, "with": {}, "by": {}, "from": {},
	"as": {}, "into": {}, "that": {}, "which": {}, "who": {}, "whom": {},
	"this": {}, "these": {}, "those": {}, "it": {}, "its": {}, "not": {},
	"no": {}, "nor": {}, "so": {}, "if": {}, "then": {}, "than": {},
	"too": {}, "very": {}, "just": {}, "about": {}, "also": {}, "only": {},
}

// FindRelevantChunk picks the chunk with the highest content-word overlap
// against the claim.
func FindRelevantChunk(chunks []string, claim string) string {
	if len(chunks) == 1 {
		return chunks[0]
	}

	claimWords := make(map[string]struct{})
	for _, w := range strings.Fields(strings.ToLower(claim)) {
		if _, stop := stopWords[w]; !stop {
			claimWords[w] = struct{}{}
		}
	}

	best := chunks[0]
	bestScore := 0
	for _, chunk := range chunks {
		chunkWords := make(map[string]struct{})
		for _, w := range strings.Fields(strings.ToLower(chunk)) {
			chunkWords[w] = struct{}{}
		}
		score := 0
		for w := range claimWords {
			if _, ok := chunkWords[w]; ok {
				score++
			}
		}
		if score > bestScore {
			bestScore = score
			best = chunk
		}
	}
	return best
}
