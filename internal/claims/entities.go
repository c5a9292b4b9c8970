package claims

import "strings"

// FindHallucinatedEntities returns entities named in the AI output that have
// no counterpart in the source context. Matching is case-insensitive with
// trailing punctuation stripped, and tolerates substring containment either
// way ("Metoprolol" vs "Metoprolol tartrate").
func FindHallucinatedEntities(aiOutput, source string) []string {
	if strings.TrimSpace(source) == "" {
		return nil
	}

	sourceEntities := make(map[string]struct{})
	for _, name := range entityNames(source) {
		normalized := strings.ToLower(strings.TrimSpace(name))
		sourceEntities[normalized] = struct{}{}
		sourceEntities[strings.TrimRight(normalized, ".,;:")] = struct{}{}
	}

	var hallucinated []string
	seen := make(map[string]struct{})
	for _, name := range entityNames(aiOutput) {
		normalized := strings.ToLower(strings.TrimSpace(name))
		cleaned := strings.TrimRight(normalized, ".,;:")

		if _, dup := seen[normalized]; dup {
			continue
		}
		if len(cleaned) < 2 {
			continue
		}
		if _, ok := sourceEntities[normalized]; ok {
			continue
		}
		if _, ok := sourceEntities[cleaned]; ok {
			continue
		}
		if fuzzyMatch(cleaned, sourceEntities) {
			continue
		}
		hallucinated = append(hallucinated, name)
		seen[normalized] = struct{}{}
	}
	return hallucinated
}

func entityNames(text string) []string {
	var names []string
	for _, e := range Entities(text) {
		names = append(names, e.Text)
	}
	names = append(names, MedicalEntities(text)...)
	return names
}

func fuzzyMatch(entity string, sourceEntities map[string]struct{}) bool {
	for src := range sourceEntities {
		if src == "" {
			continue
		}
		if strings.Contains(src, entity) || strings.Contains(entity, src) {
			return true
		}
	}
	return false
}
