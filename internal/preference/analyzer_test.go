package preference

import (
	"context"
	"testing"

	"github.com/7789996399/Meerkat-API/internal/domain"
)

type fixedClassifier struct {
	polarity Polarity
}

func (f fixedClassifier) Classify(_ context.Context, texts []string) ([]Polarity, error) {
	out := make([]Polarity, len(texts))
	for i := range out {
		out[i] = f.polarity
	}
	return out, nil
}

func TestAnalyzeBalancedOutput(t *testing.T) {
	eng := NewEngine(LexiconClassifier{})

	report, err := eng.Analyze(context.Background(),
		"The agreement covers obligations for both parties. Each section describes duties and timelines.",
		domain.DomainLegal, "")
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}

	if report.BiasDetected {
		t.Errorf("balanced text flagged as biased: %+v", report)
	}
	if report.Direction != "neutral" {
		t.Errorf("direction = %s, want neutral", report.Direction)
	}
	if len(report.Flags) != 0 {
		t.Errorf("flags = %v, want none", report.Flags)
	}
	if report.Score < 0.70 {
		t.Errorf("score = %v, want >= 0.70", report.Score)
	}
}

func TestAnalyzeOneSidedLegalOutput(t *testing.T) {
	eng := NewEngine(LexiconClassifier{})

	report, err := eng.Analyze(context.Background(),
		"The defendant was clearly negligent and liable for the breach. "+
			"The failure violated the contract and they should be held accountable.",
		domain.DomainLegal, "")
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}

	if !report.BiasDetected {
		t.Errorf("one-sided text not flagged: %+v", report)
	}
	if report.Direction != "favors_plaintiff" {
		t.Errorf("direction = %s, want favors_plaintiff", report.Direction)
	}
	if !hasFlag(report.Flags, FlagStrongDirection) {
		t.Errorf("flags = %v, want %s", report.Flags, FlagStrongDirection)
	}
	if !hasFlag(report.Flags, FlagDirectionalLean) {
		t.Errorf("flags = %v, want %s", report.Flags, FlagDirectionalLean)
	}
}

func TestAnalyzeSentimentNeutralBand(t *testing.T) {
	// |pos - neg| = 0.1 < 0.15 stays NEUTRAL even though positive leads.
	res, err := AnalyzeSentiment(context.Background(),
		fixedClassifier{Polarity{Positive: 0.55, Negative: 0.45}},
		"The outcome was fine. Nothing unusual happened.")
	if err != nil {
		t.Fatalf("AnalyzeSentiment: %v", err)
	}
	if res.Label != LabelNeutral {
		t.Errorf("label = %s, want NEUTRAL", res.Label)
	}

	res, err = AnalyzeSentiment(context.Background(),
		fixedClassifier{Polarity{Positive: 0.9, Negative: 0.1}},
		"Everything was excellent. A wonderful result.")
	if err != nil {
		t.Fatalf("AnalyzeSentiment: %v", err)
	}
	if res.Label != LabelPositive {
		t.Errorf("label = %s, want POSITIVE", res.Label)
	}
}

func TestAnalyzeSentimentEmptyText(t *testing.T) {
	res, err := AnalyzeSentiment(context.Background(), LexiconClassifier{}, "   ")
	if err != nil {
		t.Fatalf("AnalyzeSentiment: %v", err)
	}
	if res.Label != LabelNeutral || res.PositiveScore != 0.5 {
		t.Errorf("empty text = %+v, want neutral 0.5/0.5", res)
	}
}

func TestDirectionPartyExtraction(t *testing.T) {
	t.Run("legal caption", func(t *testing.T) {
		got := AnalyzeDirection("The claim is unsupported.", domain.DomainLegal,
			"Acme Industries v. Smith, case no. 24-1189")
		if got.PartyA != "Acme Industries" || got.PartyB != "Smith" {
			t.Errorf("parties = %q/%q, want Acme Industries/Smith", got.PartyA, got.PartyB)
		}
	})

	t.Run("financial tickers", func(t *testing.T) {
		got := AnalyzeDirection("No recommendation.", domain.DomainFinancial,
			"Comparing AAPL against MSFT for the quarter")
		if got.PartyA != "AAPL" || got.PartyB != "MSFT" {
			t.Errorf("parties = %q/%q, want AAPL/MSFT", got.PartyA, got.PartyB)
		}
	})

	t.Run("healthcare treatment", func(t *testing.T) {
		got := AnalyzeDirection("No lean either way.", domain.DomainHealthcare,
			"Treatment: Metoprolol 50mg daily")
		if got.PartyA != "Metoprolol" || got.PartyB != "conservative_care" {
			t.Errorf("parties = %q/%q, want Metoprolol/conservative_care", got.PartyA, got.PartyB)
		}
	})

	t.Run("default labels", func(t *testing.T) {
		got := AnalyzeDirection("Nothing directional here.", domain.DomainGeneral, "")
		if got.PartyA != "option_a" || got.PartyB != "option_b" {
			t.Errorf("parties = %q/%q, want option_a/option_b", got.PartyA, got.PartyB)
		}
	})
}

func TestDirectionScoresNormalized(t *testing.T) {
	got := AnalyzeDirection(
		"The stock is undervalued with upside potential; analysts remain bullish and recommend buying.",
		domain.DomainFinancial, "")
	if got.Direction != "favors_buy" {
		t.Errorf("direction = %s, want favors_buy", got.Direction)
	}
	if got.PartyAScore != 0.4 {
		t.Errorf("party_a_score = %v, want 0.4 (4 of 10 keywords)", got.PartyAScore)
	}
	if got.PartyBScore != 0 {
		t.Errorf("party_b_score = %v, want 0", got.PartyBScore)
	}
	if len(got.KeywordsFound) != 4 {
		t.Errorf("keywords_found = %v, want 4 entries", got.KeywordsFound)
	}
}

func TestSplitSentences(t *testing.T) {
	got := splitSentences("First sentence here. Second one! Third? Tiny. And the last without punctuation")
	want := 4
	if len(got) != want {
		t.Fatalf("got %d sentences, want %d: %q", len(got), want, got)
	}
}

func hasFlag(flags []string, want string) bool {
	for _, f := range flags {
		if f == want {
			return true
		}
	}
	return false
}
