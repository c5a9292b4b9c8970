package numeric

import "testing"

func TestCorrectClinicalNote(t *testing.T) {
	source := "Labs: WBC 14.2. Medications: Metoprolol 50mg BID. Vitals: HR 98, SpO2 91%."
	ai := "The patient's WBC was 14.2. She was on Metoprolol 50mg twice daily. HR 98, oxygen saturation 91%."

	result := Verify(ai, source, "healthcare")

	if result.CriticalMismatches != 0 {
		t.Errorf("correct note produced %d critical mismatches", result.CriticalMismatches)
	}
	passing := 0
	for _, m := range result.Matches {
		if m.Match {
			passing++
		}
	}
	if passing < 2 {
		t.Errorf("expected at least WBC and dose to match, got %d passing of %d", passing, len(result.Matches))
	}
}

func TestMedicationDoseDistortion(t *testing.T) {
	source := "Medications: Metoprolol 50mg BID."
	ai := "Patient was started on Metoprolol 100mg daily."

	result := Verify(ai, source, "healthcare")

	if result.Status != StatusFail {
		t.Errorf("status = %s, want fail", result.Status)
	}
	if result.CriticalMismatches < 1 {
		t.Errorf("critical mismatches = %d, want >= 1", result.CriticalMismatches)
	}
}

func TestLabValueDistortion(t *testing.T) {
	source := "Labs: WBC 14.2, Cr 1.2"
	ai := "Lab results showed WBC 16.8 and creatinine 1.2."

	result := Verify(ai, source, "healthcare")

	failing := 0
	for _, m := range result.Matches {
		if !m.Match {
			failing++
		}
	}
	if failing < 1 {
		t.Errorf("distorted WBC not detected: %+v", result.Matches)
	}
	if result.Score >= 1.0 {
		t.Errorf("score = %v, want < 1.0", result.Score)
	}
}

func TestFabricatedNumberUngrounded(t *testing.T) {
	source := "Medications: Lisinopril 10mg daily."
	ai := "Patient on Lisinopril 10mg daily. Atorvastatin 40mg was also prescribed."

	result := Verify(ai, source, "healthcare")

	if len(result.Ungrounded) < 1 {
		t.Errorf("fabricated 40mg not reported as ungrounded: %+v", result)
	}
}

func TestPneumoniaDischargeScenario(t *testing.T) {
	source := "Patient: 67F, PMH: COPD, HTN, T2DM. Allergies: PCN (rash). " +
		"Vitals: T 39.1, HR 98, BP 132/78, SpO2 91%. " +
		"Labs: WBC 14.2, Procalcitonin 0.8. " +
		"Treatment: Ceftriaxone 1g IV daily."
	ai := "67-year-old female with COPD, HTN, and T2DM. Temperature 39.1, " +
		"heart rate 98, blood pressure 132/78, SpO2 91%. " +
		"WBC 14.2, procalcitonin 0.8. Treated with Ceftriaxone 1g IV daily."

	result := Verify(ai, source, "healthcare")

	if result.CriticalMismatches != 0 {
		t.Errorf("accurate summary produced %d critical mismatches", result.CriticalMismatches)
	}
	passing := 0
	for _, m := range result.Matches {
		if m.Match {
			passing++
		}
	}
	if passing < 3 {
		t.Errorf("expected BP, WBC and dose to match, got %d passing", passing)
	}
}

func TestLegalDurationDistortion(t *testing.T) {
	source := "Employee agrees to a 24-month non-compete within 100 miles."
	ai := "The non-compete restricts for 18 months within 100 miles."

	result := Verify(ai, source, "legal")

	failing := 0
	for _, m := range result.Matches {
		if !m.Match {
			failing++
		}
	}
	if failing < 1 {
		t.Errorf("24 -> 18 month distortion not detected: %+v", result.Matches)
	}
}

func TestFinancialPercentageDistortion(t *testing.T) {
	source := "EBITDA margin was 14.2% for Q3 2024."
	ai := "The company reported an EBITDA margin of 18.7% in Q3 2024."

	result := Verify(ai, source, "financial")

	failing := 0
	for _, m := range result.Matches {
		if !m.Match {
			failing++
		}
	}
	if failing < 1 {
		t.Errorf("14.2%% -> 18.7%% distortion not detected: %+v", result.Matches)
	}
}

func TestNoNumbersAnywhere(t *testing.T) {
	result := Verify(
		"The patient was admitted for community-acquired pneumonia.",
		"Patient admitted with pneumonia.",
		"healthcare",
	)
	if result.Status != StatusPass || result.Score != 1.0 {
		t.Errorf("no-numbers case: status=%s score=%v, want pass/1.0", result.Status, result.Score)
	}
}

func TestNoNumbersInAI(t *testing.T) {
	result := Verify("Lab values were within normal limits.", "WBC 14.2, Cr 1.2", "healthcare")
	if result.Status != StatusPass {
		t.Errorf("status = %s, want pass when AI has no numbers", result.Status)
	}
}

func TestNumbersOnlyInAI(t *testing.T) {
	result := Verify("Patient admitted. WBC was 14.2, started on Metoprolol 50mg.", "Patient was admitted.", "healthcare")
	if len(result.Ungrounded) < 1 {
		t.Errorf("expected ungrounded numbers, got %+v", result)
	}
}

func TestCompareIdempotent(t *testing.T) {
	source := "Labs: WBC 14.2. Medications: Metoprolol 50mg BID."
	ai := "WBC 14.2, on Metoprolol 100mg."

	first := Verify(ai, source, "healthcare")
	second := Verify(ai, source, "healthcare")

	if first.Score != second.Score || first.Status != second.Status ||
		first.CriticalMismatches != second.CriticalMismatches ||
		len(first.Matches) != len(second.Matches) {
		t.Errorf("repeated comparison diverged: %+v vs %+v", first, second)
	}
}

func TestSourceNumberMatchedAtMostOnce(t *testing.T) {
	source := "Doses: 50mg and 50mg and 25mg."
	ai := "Doses were 50mg, 50mg, 50mg, 50mg."

	result := Verify(ai, source, "healthcare")

	// 3 source numbers can serve at most 3 matches; the rest must be
	// ungrounded.
	if len(result.Matches) > 3 {
		t.Errorf("source numbers reused: %d matches for 3 source numbers", len(result.Matches))
	}
	if len(result.Matches)+len(result.Ungrounded) != 4 {
		t.Errorf("AI numbers not partitioned: %d matched + %d ungrounded != 4",
			len(result.Matches), len(result.Ungrounded))
	}
}

func TestToleranceMonotonicity(t *testing.T) {
	// A pair that passes a tight tolerance must pass any looser one.
	src, ai := 100.0, 100.5
	dev := computeDeviation(src, ai)
	tolerances := []float64{0.005, 0.01, 0.02, 0.05}
	passed := false
	for _, tol := range tolerances {
		ok := dev <= tol
		if passed && !ok {
			t.Fatalf("pair passed tolerance %v but failed a looser one", tol)
		}
		if ok {
			passed = true
		}
	}
	if !passed {
		t.Fatalf("deviation %v unexpectedly failed all tolerances", dev)
	}
}

func TestRuleFallbacks(t *testing.T) {
	cases := []struct {
		domain      string
		contextType string
		wantTol     float64
		wantSev     string
	}{
		{"healthcare", TypeMedicationDose, 0, SeverityCritical},
		{"healthcare", TypeDuration, 0, SeverityCritical},
		{"legal", TypeMonetary, 0, SeverityCritical},
		{"legal", "unknown_type", 0, SeverityMedium},
		{"financial", "percentage", 0.001, SeverityHigh},
		{"pharma", TypeAdverseEvent, 0, SeverityCritical},
		{"made_up_domain", "whatever", 0.01, SeverityMedium},
	}
	for _, tc := range cases {
		t.Run(tc.domain+"/"+tc.contextType, func(t *testing.T) {
			rule := RuleFor(tc.domain, tc.contextType)
			if rule.Tolerance != tc.wantTol || rule.Severity != tc.wantSev {
				t.Errorf("RuleFor(%s, %s) = (%v, %s), want (%v, %s)",
					tc.domain, tc.contextType, rule.Tolerance, rule.Severity, tc.wantTol, tc.wantSev)
			}
		})
	}
}
