package numeric

import "testing"

func TestExtractClinicalNote(t *testing.T) {
	text := "Labs: WBC 14.2. Medications: Metoprolol 50mg BID. Vitals: HR 98, SpO2 91%."
	numbers := Extract(text)

	byRaw := make(map[string]ExtractedNumber)
	for _, n := range numbers {
		byRaw[n.Raw] = n
	}

	wbc, ok := byRaw["14.2"]
	if !ok {
		t.Fatalf("WBC value not extracted; got %+v", numbers)
	}
	if wbc.ContextType != TypeLabValue {
		t.Errorf("WBC 14.2 classified as %s, want %s", wbc.ContextType, TypeLabValue)
	}

	dose, ok := byRaw["50mg"]
	if !ok {
		t.Fatalf("dose not extracted; got %+v", numbers)
	}
	if dose.ContextType != TypeMedicationDose {
		t.Errorf("50mg classified as %s, want %s", dose.ContextType, TypeMedicationDose)
	}
	if dose.Unit != "mg" {
		t.Errorf("50mg unit = %q, want mg", dose.Unit)
	}
}

func TestExtractHyphenatedUnit(t *testing.T) {
	numbers := Extract("A 12-month non-compete within a 50-mile radius.")

	units := make(map[float64]string)
	for _, n := range numbers {
		units[n.Value] = n.Unit
	}
	if units[12] != "month" {
		t.Errorf("12-month unit = %q, want month", units[12])
	}
	if units[50] != "mile" {
		t.Errorf("50-mile unit = %q, want mile", units[50])
	}
}

func TestExtractBloodPressure(t *testing.T) {
	numbers := Extract("BP 132/78, HR 98.")

	var sys, dia *ExtractedNumber
	for i := range numbers {
		switch numbers[i].Raw {
		case "132":
			sys = &numbers[i]
		case "78":
			dia = &numbers[i]
		}
	}
	if sys == nil || dia == nil {
		t.Fatalf("blood pressure pair not extracted: %+v", numbers)
	}
	if sys.Unit != "mmHg" || dia.Unit != "mmHg" {
		t.Errorf("BP units = %q/%q, want mmHg", sys.Unit, dia.Unit)
	}
	if sys.ContextType != TypeVitalSign || dia.ContextType != TypeVitalSign {
		t.Errorf("BP context types = %s/%s, want vital_sign", sys.ContextType, dia.ContextType)
	}
}

func TestExtractMultiplierConsumed(t *testing.T) {
	numbers := Extract("Revenue was $4.2B for the year.")

	found := false
	for _, n := range numbers {
		if n.Value == 4.2e9 {
			found = true
			if n.Unit != "" && n.Unit != "$" {
				t.Errorf("multiplier unit not consumed: %q", n.Unit)
			}
		}
	}
	if !found {
		t.Errorf("$4.2B not folded to 4200000000: %+v", numbers)
	}
}

func TestExtractSkipsAbbreviationDigits(t *testing.T) {
	numbers := Extract("Patient with T2DM on SpO2 monitoring.")
	for _, n := range numbers {
		if n.Raw == "2" {
			t.Errorf("abbreviation digit extracted as number: %+v", n)
		}
	}
}

func TestExtractYear(t *testing.T) {
	numbers := Extract("EBITDA margin was 14.2% for Q3 2024.")

	var year, pct bool
	for _, n := range numbers {
		if n.Raw == "2024" && n.Value == 2024 {
			year = true
		}
		if n.Value == 14.2 && n.Unit == "%" {
			pct = true
			if n.ContextType != TypePercentage {
				t.Errorf("14.2%% classified as %s, want percentage", n.ContextType)
			}
		}
	}
	if !year {
		t.Errorf("year 2024 not extracted: %+v", numbers)
	}
	if !pct {
		t.Errorf("14.2%% not extracted: %+v", numbers)
	}
}

func TestExtractRawOccursAtPosition(t *testing.T) {
	texts := []string{
		"Labs: WBC 14.2, Cr 1.2",
		"Employee agrees to a 24-month non-compete within 100 miles.",
		"Treatment: Ceftriaxone 1g IV daily.",
	}
	for _, text := range texts {
		for _, n := range Extract(text) {
			if n.Position < 0 || n.Position+len(n.Raw) > len(text) {
				t.Fatalf("position out of range for %+v in %q", n, text)
			}
			if got := text[n.Position : n.Position+len(n.Raw)]; got != n.Raw {
				t.Errorf("raw %q does not occur at position %d in %q (found %q)",
					n.Raw, n.Position, text, got)
			}
		}
	}
}

func TestClassifyContext(t *testing.T) {
	cases := []struct {
		name    string
		context string
		unit    string
		want    string
	}{
		{"medication by unit", "Metoprolol 50", "mg", TypeMedicationDose},
		{"lab immediate label", "WBC 14.2", "", TypeLabValue},
		{"vital sign", "HR 98", "", TypeVitalSign},
		{"monetary", "penalty of $500", "$", TypeMonetary},
		{"percentage", "margin was 14.2", "%", TypePercentage},
		{"duration", "24-month term", "months", TypeDuration},
		{"default", "item 42", "", TypeDefault},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := classifyContext(tc.context, tc.unit); got != tc.want {
				t.Errorf("classifyContext(%q, %q) = %s, want %s", tc.context, tc.unit, got, tc.want)
			}
		})
	}
}

func TestNormalize(t *testing.T) {
	cases := []struct {
		value     float64
		unit      string
		wantValue float64
		wantUnit  string
	}{
		{2, "g", 2000, "mg"},
		{500, "mcg", 0.5, "mg"},
		{1, "L", 1000, "ml"},
		{24, "months", 720, "days"},
		{2, "years", 730, "days"},
		{4.2, "billion", 4.2e9, "units"},
		{14.2, "%", 14.2, "%"},
		{98, "bpm", 98, "bpm"},
	}
	for _, tc := range cases {
		t.Run(tc.unit, func(t *testing.T) {
			v, u := Normalize(tc.value, tc.unit)
			if v != tc.wantValue || u != tc.wantUnit {
				t.Errorf("Normalize(%v, %q) = (%v, %q), want (%v, %q)",
					tc.value, tc.unit, v, u, tc.wantValue, tc.wantUnit)
			}
		})
	}
}
