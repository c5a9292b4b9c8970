package preference

import (
	"context"
	"math"

	"github.com/7789996399/Meerkat-API/internal/domain"
)

// Sub-score weights.
const (
	weightSentiment      = 0.30
	weightDirection      = 0.40
	weightCounterfactual = 0.30
)

// Flags the analysis can raise.
const (
	FlagStrongSentiment   = "strong_sentiment_polarity"
	FlagModerateSentiment = "moderate_sentiment_polarity"
	FlagStrongDirection   = "strong_directional_bias"
	FlagMildDirection     = "mild_directional_preference"
	FlagDirectionalLean   = "directional_lean"
)

const counterfactualNote = "Counterfactual check compares mirror-prompt responses; currently returns a neutral score."

// Details carries the three sub-analyses.
type Details struct {
	Sentiment      SentimentResult `json:"sentiment"`
	Direction      DirectionResult `json:"direction"`
	Counterfactual struct {
		Note string `json:"note"`
	} `json:"counterfactual"`
}

// Report is the outcome of one preference analysis. Field names follow the
// analyzer service's response shape so remote and in-process results decode
// into the same struct.
type Report struct {
	Score        float64  `json:"score"`
	BiasDetected bool     `json:"bias_detected"`
	Direction    string   `json:"direction"`
	PartyA       string   `json:"party_a"`
	PartyB       string   `json:"party_b"`
	Details      Details  `json:"details"`
	Flags        []string `json:"flags"`
}

// Engine fuses sentiment, direction, and counterfactual sub-scores.
type Engine struct {
	classifier Classifier
}

// NewEngine builds an engine over a sentiment classifier.
func NewEngine(c Classifier) *Engine {
	if c == nil {
		c = LexiconClassifier{}
	}
	return &Engine{classifier: c}
}

// Analyze scores the output for implicit preference. Balanced text scores
// near 1; bias is flagged when the combined score drops under 0.70.
func (e *Engine) Analyze(ctx context.Context, output string, d domain.Domain, contextText string) (Report, error) {
	sentiment, err := AnalyzeSentiment(ctx, e.classifier, output)
	if err != nil {
		return Report{}, err
	}

	direction := AnalyzeDirection(output, d, contextText)

	sentimentScore := 1.0 - math.Abs(sentiment.PositiveScore-sentiment.NegativeScore)

	imbalance := math.Abs(direction.PartyAScore - direction.PartyBScore)
	directionScore := 1.0 - imbalance*2.0
	if directionScore < 0 {
		directionScore = 0
	}

	counterfactualScore := 0.5 // placeholder until mirror-prompt comparison lands

	combined := sentimentScore*weightSentiment +
		directionScore*weightDirection +
		counterfactualScore*weightCounterfactual
	combined = round4(domain.Clip(combined))

	var flags []string
	switch {
	case sentimentScore < 0.5:
		flags = append(flags, FlagStrongSentiment)
	case sentimentScore < 0.7:
		flags = append(flags, FlagModerateSentiment)
	}
	switch {
	case directionScore < 0.5:
		flags = append(flags, FlagStrongDirection)
	case directionScore < 0.7:
		flags = append(flags, FlagMildDirection)
	}
	if direction.Direction != "neutral" && direction.Direction != "balanced" {
		flags = append(flags, FlagDirectionalLean)
	}

	report := Report{
		Score:        combined,
		BiasDetected: combined < 0.70,
		Direction:    direction.Direction,
		PartyA:       direction.PartyA,
		PartyB:       direction.PartyB,
		Flags:        flags,
	}
	report.Details.Sentiment = sentiment
	report.Details.Direction = direction
	report.Details.Counterfactual.Note = counterfactualNote
	return report, nil
}

func round4(v float64) float64 {
	return math.Round(v*10000) / 10000
}
