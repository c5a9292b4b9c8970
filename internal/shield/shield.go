// Package shield runs the pre-flight injection scan on user input before it
// reaches a model. Known attack phrasings are matched by a ranked pattern
// list; the decision ladder weighs pattern severity and match count.
package shield

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/7789996399/Meerkat-API/internal/domain"
)

// Threat levels and actions.
const (
	LevelNone   = "NONE"
	LevelLow    = "LOW"
	LevelMedium = "MEDIUM"
	LevelHigh   = "HIGH"

	ActionAllow = "ALLOW"
	ActionFlag  = "FLAG"
	ActionBlock = "BLOCK"
)

type severity int

const (
	sevLow severity = iota
	sevMedium
	sevHigh
)

func (s severity) String() string {
	switch s {
	case sevHigh:
		return LevelHigh
	case sevMedium:
		return LevelMedium
	default:
		return LevelLow
	}
}

type pattern struct {
	re          *regexp.Regexp
	attackType  string
	severity    severity
	description string
}

// Base patterns, checked at every sensitivity.
var basePatterns = []pattern{
	// Direct instruction overrides
	{regexp.MustCompile(`(?i)ignore\s+(all\s+)?previous\s+instructions`), "direct_injection", sevMedium,
		"Input attempts to override the model's instructions."},
	{regexp.MustCompile(`(?i)forget\s+(all\s+)?(your\s+)?instructions`), "direct_injection", sevMedium,
		"Input attempts to clear the model's instructions."},
	{regexp.MustCompile(`(?i)disregard\s+(all\s+)?(previous|prior|above)`), "direct_injection", sevMedium,
		"Input attempts to disregard prior instructions."},

	// Role manipulation
	{regexp.MustCompile(`(?i)you\s+are\s+now\s+`), "role_manipulation", sevLow,
		"Input attempts to reassign the model's role."},
	{regexp.MustCompile(`(?i)act\s+as\s+(if\s+you\s+are|a|an)\s+`), "role_manipulation", sevLow,
		"Input attempts to make the model assume a different identity."},
	{regexp.MustCompile(`(?i)pretend\s+(you\s+are|to\s+be)\s+`), "role_manipulation", sevLow,
		"Input attempts role-play to bypass safety measures."},

	// System prompt extraction
	{regexp.MustCompile(`(?i)(show|reveal|display|print|output)\s+(me\s+)?(your\s+)?(system\s+)?prompt`), "prompt_extraction", sevMedium,
		"Input attempts to extract the system prompt."},
	{regexp.MustCompile(`(?i)what\s+(are|is)\s+your\s+(system\s+)?instructions`), "prompt_extraction", sevMedium,
		"Input attempts to extract the model's instructions."},
	{regexp.MustCompile(`(?i)repeat\s+(your\s+)?(system\s+)?(prompt|instructions)`), "prompt_extraction", sevMedium,
		"Input attempts to make the model repeat its instructions."},

	// Jailbreaks
	{regexp.MustCompile(`(?i)do\s+anything\s+now`), "jailbreak", sevHigh,
		"Input contains a known jailbreak pattern (DAN)."},
	{regexp.MustCompile(`(?i)developer\s+mode`), "jailbreak", sevHigh,
		"Input attempts to enable a fake developer mode."},
	{regexp.MustCompile(`(?i)no\s+restrictions`), "jailbreak", sevHigh,
		"Input attempts to remove safety restrictions."},
}

// Secondary heuristics, enabled only at high sensitivity.
var highSensitivityExtras = []pattern{
	{regexp.MustCompile(`(?i)<\s*/?script`), "code_injection", sevHigh,
		"Input contains script tags."},
	{regexp.MustCompile(`\{\{.*\}\}`), "template_injection", sevMedium,
		"Input contains template syntax."},
	{regexp.MustCompile(`%7B%7B`), "template_injection", sevMedium,
		"Input contains encoded template syntax."},
	{regexp.MustCompile(`[A-Za-z0-9+/]{40,}={0,2}`), "obfuscation", sevLow,
		"Input contains a long base64-like run."},
}

// Matches needed to activate a verdict, per sensitivity.
var sensitivityThresholds = map[string]int{
	"low":    2,
	"medium": 1,
	"high":   1,
}

// Scan checks input against the pattern list at the given sensitivity
// (low, medium, or high; unknown values fall back to medium).
func Scan(input, sensitivity string) domain.ShieldResponse {
	sensitivity = strings.ToLower(sensitivity)
	threshold, known := sensitivityThresholds[sensitivity]
	if !known {
		sensitivity = "medium"
		threshold = 1
	}

	active := basePatterns
	if sensitivity == "high" {
		active = append(append([]pattern{}, basePatterns...), highSensitivityExtras...)
	}

	var matched []pattern
	for _, p := range active {
		if p.re.MatchString(input) {
			matched = append(matched, p)
		}
	}

	if len(matched) < threshold {
		return domain.ShieldResponse{
			Safe:        true,
			ThreatLevel: LevelNone,
			Detail:      "Input passed all threat checks.",
			Action:      ActionAllow,
		}
	}

	// Highest severity first; ties keep pattern order.
	sort.SliceStable(matched, func(a, b int) bool {
		return matched[a].severity > matched[b].severity
	})
	primary := matched[0]

	var level, action string
	switch {
	case primary.severity == sevHigh || len(matched) >= 3:
		level, action = LevelHigh, ActionBlock
	case primary.severity == sevMedium || len(matched) >= 2:
		level, action = LevelMedium, ActionBlock
	default:
		level, action = LevelLow, ActionFlag
	}

	return domain.ShieldResponse{
		Safe:           false,
		ThreatLevel:    level,
		AttackType:     primary.attackType,
		Detail:         fmt.Sprintf("%s (%d pattern(s) matched.)", primary.description, len(matched)),
		Action:         action,
		SanitizedInput: sanitize(input, matched),
	}
}

// sanitize replaces every matched span with [REMOVED]. The copy is offered
// only when more than 10 characters of real content survive.
func sanitize(input string, matched []pattern) string {
	sanitized := input
	for _, p := range matched {
		sanitized = p.re.ReplaceAllString(sanitized, "[REMOVED]")
	}
	sanitized = strings.TrimSpace(sanitized)

	remaining := strings.TrimSpace(strings.ReplaceAll(sanitized, "[REMOVED]", ""))
	if len(remaining) <= 10 {
		return ""
	}
	return sanitized
}
