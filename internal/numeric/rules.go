package numeric

// Severity levels for tolerance violations.
const (
	SeverityCritical = "critical"
	SeverityHigh     = "high"
	SeverityMedium   = "medium"
	SeverityLow      = "low"
)

// ToleranceRule bounds the acceptable relative deviation for a
// (domain, context type) pair. Zero tolerance means exact match.
type ToleranceRule struct {
	Tolerance   float64
	Severity    string
	Description string
}

var healthcareRules = map[string]ToleranceRule{
	TypeMedicationDose: {0, SeverityCritical, "Medication dosages must match exactly"},
	TypeLabValue:       {0.01, SeverityHigh, "Lab values: 1% tolerance for rounding"},
	TypeVitalSign:      {0.02, SeverityHigh, "Vital signs: 2% tolerance"},
	"count":            {0, SeverityHigh, "Event/procedure counts must match exactly"},
	"age":              {0, SeverityMedium, "Patient age must match exactly"},
	TypeDuration:       {0, SeverityCritical, "Treatment durations must match exactly"},
	TypeDefault:        {0.01, SeverityMedium, "Default healthcare: 1% tolerance"},
}

var pharmaRules = map[string]ToleranceRule{
	TypeAdverseEvent:      {0, SeverityCritical, "Adverse event counts must match exactly"},
	"dosage":              {0, SeverityCritical, "Drug dosages must match exactly"},
	"p_value":             {0, SeverityHigh, "P-values must match exactly"},
	"efficacy_percentage": {0.005, SeverityHigh, "Efficacy: 0.5% tolerance"},
	TypeDefault:           {0.005, SeverityMedium, "Default pharma: 0.5% tolerance"},
}

var legalRules = map[string]ToleranceRule{
	TypeDuration: {0, SeverityCritical, "Contract durations must match exactly"},
	TypeMonetary: {0, SeverityCritical, "Monetary values must match exactly"},
	"distance":   {0, SeverityHigh, "Geographic restrictions must match exactly"},
	"percentage": {0.01, SeverityMedium, "Percentages: 1% tolerance"},
	TypeDefault:  {0, SeverityMedium, "Default legal: exact match"},
}

var financialRules = map[string]ToleranceRule{
	"revenue":     {0.005, SeverityHigh, "Revenue: 0.5% tolerance for rounding"},
	"percentage":  {0.001, SeverityHigh, "Percentages: 0.1% tolerance"},
	"share_count": {0, SeverityHigh, "Share counts must match exactly"},
	"ratio":       {0.01, SeverityMedium, "Ratios: 1% tolerance"},
	TypeDefault:   {0.005, SeverityMedium, "Default financial: 0.5% tolerance"},
}

var domainRules = map[string]map[string]ToleranceRule{
	"healthcare": healthcareRules,
	"pharma":     pharmaRules,
	"legal":      legalRules,
	"financial":  financialRules,
}

// RuleFor resolves the tolerance rule for a domain and context type,
// falling back to the domain default, then the general 1% medium rule.
func RuleFor(domain, contextType string) ToleranceRule {
	rules, ok := domainRules[domain]
	if ok {
		if r, ok := rules[contextType]; ok {
			return r
		}
		if r, ok := rules[TypeDefault]; ok {
			return r
		}
	}
	return ToleranceRule{0.01, SeverityMedium, "General default: 1% tolerance"}
}
