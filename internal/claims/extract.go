// Package claims extracts verifiable factual claims from AI output and
// verifies them against the source context with bidirectional NLI, then
// cross-references named entities to catch hallucinations.
package claims

import (
	"regexp"
	"strings"
)

// Claim is one extraction candidate before verification.
type Claim struct {
	Text           string
	SourceSentence string
	Entities       []string
}

var causalPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\b(?:causes?|caused|causing)\b`),
	regexp.MustCompile(`(?i)\b(?:requires?|required|requiring)\b`),
	regexp.MustCompile(`(?i)\b(?:leads?\s+to|led\s+to|leading\s+to)\b`),
	regexp.MustCompile(`(?i)\b(?:results?\s+in|resulted\s+in|resulting\s+in)\b`),
	regexp.MustCompile(`(?i)\b(?:due\s+to|because\s+of|as\s+a\s+result\s+of)\b`),
	regexp.MustCompile(`(?i)\b(?:therefore|consequently|hence|thus)\b`),
	regexp.MustCompile(`(?i)\bif\s+.+then\b`),
}

var domainAssertionPatterns = []*regexp.Regexp{
	// Legal
	regexp.MustCompile(`(?i)\bis\s+(?:enforceable|binding|prohibited|unlawful|lawful|permitted)\b`),
	regexp.MustCompile(`(?i)\bin\s+(?:breach|violation|compliance|accordance)\b`),
	regexp.MustCompile(`(?i)\b(?:shall|must\s+not|is\s+required\s+to)\b`),
	// Financial
	regexp.MustCompile(`(?i)\bexceeds?\s+(?:threshold|limit|target|benchmark)\b`),
	regexp.MustCompile(`(?i)\b(?:increased|decreased|grew|declined)\s+(?:by|to)\s+\d`),
	regexp.MustCompile(`(?i)\b(?:valued\s+at|priced\s+at|worth)\b`),
}

var medicalPatterns = []*regexp.Regexp{
	// Demographics
	regexp.MustCompile(`(?i)\b\d+[\s-]*year[\s-]*old\b`),
	regexp.MustCompile(`(?i)\bage\s+(?:of\s+)?\d+\b`),
	regexp.MustCompile(`(?i)\b(?:male|female|man|woman|boy|girl|infant|neonate|adolescent)\b`),
	// Diagnosis verb phrases
	regexp.MustCompile(`(?i)\b(?:diagnosed\s+with|presents?\s+with|presented\s+with|` +
		`history\s+of|h/o|hx\s+of|suffers?\s+from|suffering\s+from|` +
		`complains?\s+of|complaining\s+of|c/o|positive\s+for|negative\s+for|` +
		`tested\s+(?:positive|negative)|confirmed|ruled\s+out|` +
		`consistent\s+with|suggestive\s+of|indicative\s+of|compatible\s+with|` +
		`known\s+case\s+of|known\s+to\s+have)\b`),
	regexp.MustCompile(`(?i)\b(?:patient|pt|he|she|individual|subject|client|mr|mrs|ms)\s+` +
		`(?:has|had|have|exhibits?|displays?|shows?|demonstrates?|developed|` +
		`is\s+(?:a|an)\s+\w+\s+(?:with|who)|was\s+(?:found|noted|observed)\s+to)\b`),
	// Condition suffixes and common diseases
	regexp.MustCompile(`(?i)\b\w*(?:itis|osis|emia|penia|uria|trophy|plasia|pathy|` +
		`ectomy|otomy|ostomy|plasty|scopy|graphy|algia|plegia|paresis)\b`),
	regexp.MustCompile(`(?i)\b(?:diabetes|hypertension|hypotension|cancer|carcinoma|` +
		`melanoma|lymphoma|leukemia|anemia|anaemia|pneumonia|` +
		`asthma|copd|chf|cad|ckd|esrd|dvt|pe|ards|` +
		`sepsis|septic|infection|fracture|hemorrhage|haemorrhage|` +
		`edema|oedema|fibrosis|stenosis|thrombosis|embolism|infarction|` +
		`ischemia|ischaemia|obesity|malnutrition|dehydration|` +
		`arrhythmia|fibrillation|flutter|tachycardia|bradycardia|` +
		`epilepsy|seizure|stroke|dementia|alzheimer|parkinson|` +
		`cirrhosis|hepatitis|pancreatitis|cholecystitis|` +
		`depression|anxiety|schizophrenia|bipolar|` +
		`osteoporosis|arthritis|lupus|` +
		`hiv|aids|covid|tuberculosis|tb|mrsa|uti|` +
		`uncontrolled|poorly\s+controlled|well[\s-]controlled|` +
		`type\s+(?:1|2|i|ii|iii|iv)\s+\w+|` +
		`stage\s+(?:1|2|3|4|i|ii|iii|iv)|` +
		`grade\s+(?:1|2|3|4|i|ii|iii|iv))\b`),
	// Medication verbs and drug names
	regexp.MustCompile(`(?i)\b(?:prescribed|prescribing|taking|on|started\s+on|receiving|` +
		`administered|given|treated\s+with|discontinued|` +
		`dose(?:d|s)?(?:\s+(?:at|of|with))?|titrated|switched\s+to|` +
		`allergic\s+to|intolerant\s+to|` +
		`medication|medications|regimen|therapy|prophylaxis)\b`),
	regexp.MustCompile(`(?i)\b\w+(?:mab|nib|zole|pine|mine|pril|olol|statin|sartan|` +
		`dipine|floxacin|mycin|cillin|azepam|codone|phen|` +
		`formin|gliptin|tide|mide|oxide|azole|navir|vudine)\b`),
	regexp.MustCompile(`(?i)\b(?:metformin|insulin|aspirin|warfarin|heparin|enoxaparin|` +
		`lisinopril|losartan|amlodipine|metoprolol|atenolol|carvedilol|` +
		`atorvastatin|simvastatin|rosuvastatin|` +
		`omeprazole|pantoprazole|lansoprazole|` +
		`acetaminophen|tylenol|ibuprofen|naproxen|` +
		`prednisone|prednisolone|dexamethasone|hydrocortisone|` +
		`furosemide|hydrochlorothiazide|spironolactone|` +
		`amoxicillin|azithromycin|ciprofloxacin|vancomycin|` +
		`levothyroxine|gabapentin|pregabalin|` +
		`sertraline|fluoxetine|escitalopram|duloxetine|` +
		`morphine|oxycodone|fentanyl|tramadol|` +
		`albuterol|ipratropium|tiotropium|` +
		`clopidogrel|apixaban|rivaroxaban|dabigatran)\b`),
	// Lab-value phrases
	regexp.MustCompile(`(?i)\b(?:hemoglobin|hgb|hb|hba1c|a1c|glucose|fasting\s+glucose|` +
		`creatinine|cr|bun|gfr|egfr|` +
		`sodium|na|potassium|k\+?|calcium|ca|magnesium|mg|phosph|` +
		`platelets?|plt|wbc|rbc|hematocrit|hct|mcv|mch|mchc|` +
		`inr|pt|ptt|aptt|troponin|bnp|nt-?probnp|ck|cpk|` +
		`albumin|bilirubin|alt|ast|alp|ggt|` +
		`ldl|hdl|total\s+cholesterol|triglycerides?|` +
		`tsh|t3|t4|free\s+t4|psa|cea|afp|ca[\s-]?125|ca[\s-]?19|` +
		`ferritin|iron|tibc|transferrin|lactate|d[\s-]?dimer|fibrinogen|` +
		`urine|urinalysis|ua|serum|plasma|blood\s+gas|abg)\s*` +
		`(?:of|is|was|=|:|level|levels|count|result|value)?\s*\d`),
	// Vital-sign phrases
	regexp.MustCompile(`(?i)\b(?:blood\s+pressure|bp|systolic|diastolic|` +
		`heart\s+rate|hr|pulse|temperature|temp|febrile|afebrile|` +
		`respiratory\s+rate|rr|respirations|` +
		`oxygen\s+saturation|spo2|o2\s+sat|sats|` +
		`bmi|body\s+mass\s+index|weight|height)\s*(?:of|is|was|=|:)?\s*\d`),
	regexp.MustCompile(`(?i)\b\d{2,3}\s*/\s*\d{2,3}\s*(?:mmhg|mm\s*hg)?\b`),
	// Procedures
	regexp.MustCompile(`(?i)\b(?:underwent|undergoing|performed|scheduled\s+for|` +
		`status\s+post|s/p|post[\s-]?op(?:erative)?|pre[\s-]?op(?:erative)?|` +
		`surgery|surgical|operation|` +
		`biopsy|catheter(?:ization)?|intubat(?:ed|ion)|extubat(?:ed|ion)|` +
		`dialysis|hemodialysis|transfus(?:ed|ion)|ventilat(?:ed|ion)|` +
		`resect(?:ed|ion)|excis(?:ed|ion)|implant(?:ed|ation)|` +
		`endoscopy|colonoscopy|bronchoscopy|` +
		`mri|ct\s+scan|x[\s-]?ray|ultrasound|echocardiogram|ekg|ecg|eeg|` +
		`angiography|angioplasty|stent(?:ing)?|bypass|` +
		`transplant(?:ation)?|amputation|debridement|drainage|` +
		`lumbar\s+puncture|thoracentesis|paracentesis)\b`),
	// Temporal medical
	regexp.MustCompile(`(?i)\b(?:admitted|admission|discharged|discharge|` +
		`onset|duration|since|worsened|worsening|improved|improving|` +
		`resolved|resolving|persists?|persistent|progressive|progressing|` +
		`acute|chronic|subacute|recurrent|intermittent|` +
		`new[\s-]?onset|long[\s-]?standing)\b`),
	// Physical exam findings
	regexp.MustCompile(`(?i)\b(?:tenderness|swelling|erythema|induration|` +
		`murmur|gallop|rales|crackles|wheezing|rhonchi|` +
		`guarding|rebound|distension|` +
		`edematous|cyanotic|diaphoretic|jaundiced|pallor|` +
		`oriented|disoriented|alert|lethargic|obtunded|` +
		`pupils?\s+(?:equal|unequal|reactive|dilated|constricted))\b`),
}

var numberWithUnitRe = regexp.MustCompile(
	`(?i)\b\d+(?:\.\d+)?\s*(?:%|percent|dollars?|USD|EUR|GBP|kg|mg|ml|` +
		`mcg|mEq|mmol|g/dL|mg/dL|mmHg|bpm|` +
		`months?|years?|days?|hours?|minutes?|weeks?|billion|million|thousand)\b`)

// Hedge markers that classify a sentence as opinion. Clinical modals
// (may/might/could) are deliberately absent: "the patient may have
// pneumonia" is an assessment, not hedging.
var hedgePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\b(?:it\s+(?:seems|appears)|(?:seems|appears)\s+(?:to|that))\b`),
	regexp.MustCompile(`(?i)\b(?:in\s+my\s+opinion|I\s+think|I\s+believe)\b`),
	regexp.MustCompile(`(?i)\b(?:arguably|debatable|uncertain)\b`),
}

var leadingConnectiveRe = regexp.MustCompile(
	`^(?:However|Additionally|Furthermore|Moreover|Also|In addition),?\s*`)

// Extract returns the verifiable factual claims found in text. A sentence
// qualifies when it is long enough, not hedged, and carries at least one
// factual signal: a factual-class entity, a number with a unit, a causal
// assertion, a legal/financial assertion, or a medical-fact pattern.
func Extract(text string) []Claim {
	var out []Claim
	for _, sent := range SplitSentences(text) {
		if len(sent) < 10 || isHedged(sent) {
			continue
		}

		entities := FactualEntities(sent)
		hasFactualEntity := len(entities) > 0
		entities = append(entities, MedicalEntities(sent)...)

		ok := hasFactualEntity ||
			numberWithUnitRe.MatchString(sent) ||
			matchesAny(sent, causalPatterns) ||
			matchesAny(sent, domainAssertionPatterns) ||
			matchesAny(sent, medicalPatterns)
		if !ok {
			continue
		}

		out = append(out, Claim{
			Text:           cleanClaim(sent),
			SourceSentence: sent,
			Entities:       entities,
		})
	}
	return out
}

func isHedged(s string) bool { return matchesAny(s, hedgePatterns) }

func matchesAny(s string, patterns []*regexp.Regexp) bool {
	for _, p := range patterns {
		if p.MatchString(s) {
			return true
		}
	}
	return false
}

func cleanClaim(s string) string {
	return strings.TrimSpace(leadingConnectiveRe.ReplaceAllString(s, ""))
}
