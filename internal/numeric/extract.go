// Package numeric extracts numerical values from text with their
// surrounding context, normalizes units, and compares AI-output numbers
// against source numbers under domain-specific tolerance rules. This
// catches the class of hallucinations NLI models miss: numerical
// distortions ("50mg" becoming "100mg").
package numeric

import (
	"regexp"
	"strconv"
	"strings"
)

// ExtractedNumber is one number found in text. Raw preserves the exact
// substring at Position so matches can be traced back to the input.
type ExtractedNumber struct {
	Value       float64 `json:"value"`
	Raw         string  `json:"raw"`
	Unit        string  `json:"unit"`
	Context     string  `json:"context"`
	ContextType string  `json:"context_type"`
	Position    int     `json:"position"`
}

// Context types emitted by the classifier.
const (
	TypeMedicationDose = "medication_dose"
	TypeLabValue       = "lab_value"
	TypeVitalSign      = "vital_sign"
	TypeAdverseEvent   = "adverse_event_count"
	TypeMonetary       = "monetary_value"
	TypePercentage     = "percentage"
	TypeDuration       = "duration"
	TypeDefault        = "default"
)

var (
	medicationRe = regexp.MustCompile(`(?i)\b(?:mg|mcg|µg|ug|g|ml|units?|iu|meq)\b` +
		`|\b(?:dose|dosage|dosing|tid|bid|qid|qd|daily|twice|prn|po|iv|im|sq|sl|pr)\b`)

	labValueRe = regexp.MustCompile(`(?i)\b(?:WBC|RBC|Hgb|Hb|Hct|PLT|BUN|Cr|creatinine|Na|K|Cl|CO2|glucose|` +
		`troponin|BNP|procalcitonin|lactate|AST|ALT|ALP|GFR|eGFR|INR|PT|PTT|` +
		`A1c|HbA1c|TSH|T3|T4|CRP|ESR|albumin|bilirubin|lipase|amylase|` +
		`ferritin|iron|TIBC|folate|B12|magnesium|phosphorus|calcium|urate)\b`)

	vitalSignRe = regexp.MustCompile(`(?i)\b(?:HR|heart\s+rate|BP|blood\s+pressure|SBP|DBP|systolic|diastolic|` +
		`SpO2|O2\s*sat|saturation|RR|resp(?:iratory)?\s+rate|temp(?:erature)?|` +
		`BMI|weight|height|MAP)\b`)

	durationRe = regexp.MustCompile(`(?i)\b(?:day|days|week|weeks|month|months|year|years|hour|hours|` +
		`minute|minutes|duration|period|term)\b`)

	monetaryRe = regexp.MustCompile(`(?i)(?:[$€£¥]|USD|EUR|GBP|CAD|revenue|cost|price|salary|fee|` +
		`payment|amount|value|worth|damages|penalty|fine)\b`)

	percentageRe = regexp.MustCompile(`(?i)\b(?:%|percent|pct|margin|rate|ratio|yield|return|growth|` +
		`efficacy|sensitivity|specificity|probability|p-value|CI)\b`)

	adverseEventRe = regexp.MustCompile(`(?i)\b(?:adverse|event|events|case|cases|incident|incidents|` +
		`occurrence|occurrences|patient|patients|subject|subjects|` +
		`death|deaths|SAE|AE|TEAE)\b`)

	// Leading split used to isolate the label word(s) immediately before a
	// number inside a context string.
	digitSplitRe = regexp.MustCompile(`[\d.,%]+`)
)

// classifyContext decides what kind of number this is from the immediate
// context and the captured unit. Lab labels on the word directly preceding
// the number win over vital-sign labels elsewhere in the window, so
// "WBC 14.2 ... SpO2" stays a lab value.
func classifyContext(context, unit string) string {
	combined := context + " " + unit

	if medicationRe.MatchString(combined) {
		return TypeMedicationDose
	}

	preceding := strings.TrimSpace(digitSplitRe.Split(context, 2)[0])
	if labValueRe.MatchString(preceding) {
		return TypeLabValue
	}
	if labValueRe.MatchString(combined) {
		return TypeLabValue
	}
	if adverseEventRe.MatchString(combined) {
		return TypeAdverseEvent
	}
	if vitalSignRe.MatchString(combined) {
		return TypeVitalSign
	}
	if monetaryRe.MatchString(combined) {
		return TypeMonetary
	}
	if percentageRe.MatchString(combined) {
		return TypePercentage
	}
	if durationRe.MatchString(combined) {
		return TypeDuration
	}
	return TypeDefault
}

var (
	// Units may follow with whitespace or a hyphen ("12-month", "50-mile").
	numberRe = regexp.MustCompile(`(?i)(?:[$€£¥]\s*)?` +
		`(\d{1,3}(?:,\d{3})*(?:\.\d+)?|\.\d+)` +
		`[\s-]*` +
		`(%|mg|mcg|µg|ug|g|kg|ml|l|dl|cc|` +
		`mm|cm|m|km|miles?|` +
		`days?|weeks?|months?|years?|hours?|minutes?|` +
		`billion|million|thousand|bn|tn|` +
		`units?|iu|meq|` +
		`[BMKTbmkt])?`)

	yearRe = regexp.MustCompile(`\b((?:19|20)\d{2})\b`)

	bpRe = regexp.MustCompile(`\b(\d{2,3})\s*/\s*(\d{2,3})\b`)

	currencyRe = regexp.MustCompile(`[$€£¥]`)
)

// Characters that may legitimately follow a number token. F/M allow
// demographic shorthand like "67F" and "45M".
const boundaryChars = " \t\n\r,;.-)]:/FfMm"

var multiplierMap = map[string]float64{
	"k": 1e3, "K": 1e3, "thousand": 1e3,
	"m": 1e6, "M": 1e6, "million": 1e6,
	"b": 1e9, "B": 1e9, "billion": 1e9, "bn": 1e9,
	"t": 1e12, "T": 1e12, "trillion": 1e12, "tn": 1e12,
}

func contextWindow(text string, position, window int) string {
	start := position - window
	if start < 0 {
		start = 0
	}
	end := position + window
	if end > len(text) {
		end = len(text)
	}
	return strings.TrimSpace(text[start:end])
}

type positionSet map[int]struct{}

func (s positionSet) markRange(start, end int) {
	for p := start; p < end; p++ {
		s[p] = struct{}{}
	}
}

func (s positionSet) near(pos, delta int) bool {
	for p := pos - delta + 1; p < pos+delta; p++ {
		if _, ok := s[p]; ok {
			return true
		}
	}
	return false
}

// Extract finds all numerical values in text. Blood-pressure pairs and
// 4-digit years are captured first so the general pattern does not split
// them; later passes skip positions already covered.
func Extract(text string) []ExtractedNumber {
	var results []ExtractedNumber
	seen := make(positionSet)

	for _, m := range bpRe.FindAllStringSubmatchIndex(text, -1) {
		pos := m[0]
		if _, ok := seen[pos]; ok {
			continue
		}
		sysRaw := text[m[2]:m[3]]
		diaRaw := text[m[4]:m[5]]
		systolic, err1 := strconv.ParseFloat(sysRaw, 64)
		diastolic, err2 := strconv.ParseFloat(diaRaw, 64)
		if err1 != nil || err2 != nil {
			continue
		}
		ctx := contextWindow(text, pos, 30)
		results = append(results,
			ExtractedNumber{Value: systolic, Raw: sysRaw, Unit: "mmHg", Context: ctx, ContextType: TypeVitalSign, Position: pos},
			ExtractedNumber{Value: diastolic, Raw: diaRaw, Unit: "mmHg", Context: ctx, ContextType: TypeVitalSign, Position: m[4]},
		)
		seen.markRange(m[0], m[1])
	}

	for _, m := range yearRe.FindAllStringSubmatchIndex(text, -1) {
		pos := m[0]
		if seen.near(pos, 5) {
			continue
		}
		raw := text[m[2]:m[3]]
		year, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			continue
		}
		results = append(results, ExtractedNumber{
			Value:       year,
			Raw:         raw,
			Unit:        "year",
			Context:     contextWindow(text, pos, 30),
			ContextType: TypeDefault,
			Position:    pos,
		})
		seen.markRange(m[0], m[1])
	}

	for _, m := range numberRe.FindAllStringSubmatchIndex(text, -1) {
		pos := m[0]
		if seen.near(pos, 3) {
			continue
		}

		rawNumber := text[m[2]:m[3]]
		unit := ""
		matchEnd := m[1]
		if m[4] >= 0 {
			unit = text[m[4]:m[5]]
		}

		// The token must end at a boundary. If the unit capture runs into
		// a larger word ("50mgx"), retry without the unit.
		if !atBoundary(text, matchEnd) {
			if unit == "" {
				continue
			}
			unit = ""
			matchEnd = m[3]
			if !atBoundary(text, matchEnd) {
				continue
			}
		}

		value, err := strconv.ParseFloat(strings.ReplaceAll(rawNumber, ",", ""), 64)
		if err != nil {
			continue
		}

		// Filter digits embedded in abbreviations: the "2" of "SpO2" or
		// "T2DM" is not a standalone number.
		if pos > 0 && isAlpha(text[pos-1]) && len(rawNumber) <= 1 {
			continue
		}

		if mult, ok := multiplierMap[unit]; ok {
			value *= mult
			unit = ""
		}

		immediateStart := pos - 15
		if immediateStart < 0 {
			immediateStart = 0
		}
		immediateEnd := matchEnd + 10
		if immediateEnd > len(text) {
			immediateEnd = len(text)
		}
		immediate := strings.TrimSpace(text[immediateStart:immediateEnd])

		preStart := pos - 3
		if preStart < 0 {
			preStart = 0
		}
		if currencyRe.MatchString(text[preStart:pos]) && unit == "" {
			unit = "$"
		}

		results = append(results, ExtractedNumber{
			Value:       value,
			Raw:         strings.TrimSpace(text[pos:matchEnd]),
			Unit:        unit,
			Context:     contextWindow(text, pos, 30),
			ContextType: classifyContext(immediate, unit),
			Position:    pos,
		})
		seen[pos] = struct{}{}
	}

	return results
}

func atBoundary(text string, pos int) bool {
	if pos >= len(text) {
		return true
	}
	return strings.IndexByte(boundaryChars, text[pos]) >= 0
}

func isAlpha(b byte) bool {
	return (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z')
}
