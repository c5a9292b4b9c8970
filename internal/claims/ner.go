package claims

import (
	"regexp"
	"strings"
)

// Entity is one recognized span with its class label.
type Entity struct {
	Text  string
	Label string
}

// Factual entity classes. An entity of any of these classes marks a
// sentence as carrying verifiable content.
var factualLabels = map[string]struct{}{
	"PERSON": {}, "ORG": {}, "GPE": {}, "DATE": {}, "TIME": {},
	"MONEY": {}, "PERCENT": {}, "CARDINAL": {}, "ORDINAL": {},
	"QUANTITY": {}, "LAW": {}, "PRODUCT": {}, "EVENT": {},
	"NORP": {}, "FAC": {}, "LOC": {}, "WORK_OF_ART": {},
}

type nerPattern struct {
	re    *regexp.Regexp
	label string
}

// Pattern order is precedence order: earlier patterns claim their spans
// first, so "$2.3 million" is MONEY before "2.3" can become CARDINAL.
var nerPatterns = []nerPattern{
	{regexp.MustCompile(`(?i)\$\s?\d[\d,]*(?:\.\d+)?\s*(?:thousand|million|billion|trillion|[kmbt]n?)?`), "MONEY"},
	{regexp.MustCompile(`(?i)\b\d[\d,]*(?:\.\d+)?\s*(?:dollars|usd|eur|gbp)\b`), "MONEY"},
	{regexp.MustCompile(`(?i)\b\d+(?:\.\d+)?\s*(?:%|percent)`), "PERCENT"},
	{regexp.MustCompile(`(?i)\b(?:january|february|march|april|may|june|july|august|september|october|november|december)\s+\d{1,2}(?:,?\s+\d{4})?\b`), "DATE"},
	{regexp.MustCompile(`(?i)\b(?:jan|feb|mar|apr|jun|jul|aug|sep|sept|oct|nov|dec)\.?\s+\d{1,2}(?:,?\s+\d{4})?\b`), "DATE"},
	{regexp.MustCompile(`\b(?:19|20)\d{2}\b`), "DATE"},
	{regexp.MustCompile(`(?i)\bq[1-4]\s+(?:19|20)\d{2}\b`), "DATE"},
	{regexp.MustCompile(`(?i)\b\d+(?:\.\d+)?\s*(?:kg|mg|mcg|ml|meq|mmol|mmhg|bpm|miles?|km|g/dl|mg/dl)\b`), "QUANTITY"},
	{regexp.MustCompile(`(?i)\b\d+\s*(?:months?|years?|days?|weeks?|hours?)\b`), "QUANTITY"},
	{regexp.MustCompile(`(?i)\b(?:section|article|clause|paragraph|§)\s*\d+(?:\.\d+)*\b`), "LAW"},
	{regexp.MustCompile(`\b(?:[A-Z][\w&.-]*\s+)*[A-Z][\w&.-]*\s+(?:Inc|Corp|LLC|LLP|Ltd|Co|Company|Group|Partners|Associates|Holdings|Bank)\.?\b`), "ORG"},
	{regexp.MustCompile(`\b(?:Dr|Mr|Mrs|Ms|Prof)\.?\s+[A-Z][a-z]+(?:\s+[A-Z][a-z]+)?\b`), "PERSON"},
	{regexp.MustCompile(`\b[A-Z][\w-]+(?:\s+[A-Z][\w-]+)*\s+v\.?\s+[A-Z][\w-]+(?:\s+[A-Z][\w-]+)*\b`), "LAW"},
	{regexp.MustCompile(`\b(?:United States|United Kingdom|New York|California|Texas|Delaware|London|Paris|Berlin|Tokyo|Washington|Boston|Chicago|San Francisco)\b`), "GPE"},
	{regexp.MustCompile(`\b\d[\d,]*(?:\.\d+)?\b`), "CARDINAL"},
}

// Medical terms that a general NER would miss.
var medicalEntityPatterns = []nerPattern{
	{regexp.MustCompile(`(?i)\b(\d+[\s-]*year[\s-]*old)\b`), "AGE"},
	{regexp.MustCompile(`(?i)\b(\d{2,3}\s*/\s*\d{2,3})\s*(?:mmhg)?`), "VITAL"},
	{regexp.MustCompile(`(?i)\b((?:hemoglobin|hgb|hba1c|a1c|glucose|creatinine|sodium|potassium|` +
		`calcium|platelets?|wbc|rbc|inr|troponin|albumin|bilirubin|` +
		`alt|ast|ldl|hdl|cholesterol|gfr|egfr|tsh|bmi|ferritin|lactate|procalcitonin)` +
		`\s*(?:of|is|was|=|:)?\s*\d+(?:\.\d+)?)`), "LAB"},
	{regexp.MustCompile(`(?i)\b(type\s+(?:1|2|i|ii|iii|iv)\s+\w+)\b`), "CONDITION"},
	{regexp.MustCompile(`(?i)\b(stage\s+(?:1|2|3|4|i|ii|iii|iv)\s*\w*)\b`), "CONDITION"},
	{regexp.MustCompile(`(?i)\b(metformin|insulin|aspirin|warfarin|heparin|lisinopril|losartan|` +
		`amlodipine|metoprolol|atorvastatin|omeprazole|acetaminophen|` +
		`ibuprofen|prednisone|furosemide|amoxicillin|levothyroxine|` +
		`gabapentin|sertraline|morphine|oxycodone|clopidogrel|apixaban|ceftriaxone)\b`), "DRUG"},
	{regexp.MustCompile(`(?i)\b(diabetes|hypertension|pneumonia|asthma|copd|sepsis|` +
		`cancer|carcinoma|anemia|cirrhosis|hepatitis|epilepsy|` +
		`stroke|dementia|arthritis|osteoporosis|obesity|` +
		`depression|anxiety|tuberculosis|hiv)\b`), "CONDITION"},
}

type span struct{ start, end int }

func overlaps(s span, taken []span) bool {
	for _, t := range taken {
		if s.start < t.end && t.start < s.end {
			return true
		}
	}
	return false
}

// Entities runs the rule-based recognizer. Spans are non-overlapping;
// earlier pattern classes win.
func Entities(text string) []Entity {
	var out []Entity
	var taken []span
	for _, p := range nerPatterns {
		for _, loc := range p.re.FindAllStringIndex(text, -1) {
			s := span{loc[0], loc[1]}
			if overlaps(s, taken) {
				continue
			}
			taken = append(taken, s)
			out = append(out, Entity{Text: strings.TrimSpace(text[s.start:s.end]), Label: p.label})
		}
	}
	return out
}

// MedicalEntities extracts clinical terms (ages, vitals, labs, conditions,
// drug names) as entity strings, deduplicated case-insensitively.
func MedicalEntities(text string) []string {
	var out []string
	seen := make(map[string]struct{})
	for _, p := range medicalEntityPatterns {
		for _, m := range p.re.FindAllStringSubmatch(text, -1) {
			term := strings.TrimSpace(m[1])
			key := strings.ToLower(term)
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			out = append(out, term)
		}
	}
	return out
}

// FactualEntities returns entity texts whose class marks factual content.
func FactualEntities(text string) []string {
	var out []string
	for _, e := range Entities(text) {
		if _, ok := factualLabels[e.Label]; ok {
			out = append(out, e.Text)
		}
	}
	return out
}
