// Package preference detects hidden bias in AI outputs: sentiment polarity,
// domain-specific recommendation direction, and a counterfactual consistency
// placeholder, fused 30/40/30.
package preference

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/7789996399/Meerkat-API/internal/infrastructure/httpclient"
)

// Sentiment labels.
const (
	LabelPositive = "POSITIVE"
	LabelNegative = "NEGATIVE"
	LabelNeutral  = "NEUTRAL"
)

// Polarity is one text's class probabilities.
type Polarity struct {
	Positive float64 `json:"positive"`
	Negative float64 `json:"negative"`
}

// Classifier scores texts for sentiment polarity.
type Classifier interface {
	Classify(ctx context.Context, texts []string) ([]Polarity, error)
}

// HTTPClassifier calls the external sentiment runtime.
type HTTPClassifier struct {
	baseURL string
	pool    *httpclient.Pool
}

// NewHTTPClassifier builds a classifier against baseURL (exposing /classify).
func NewHTTPClassifier(baseURL string, timeout time.Duration) *HTTPClassifier {
	cfg := httpclient.DefaultPoolConfig("sentiment")
	cfg.RequestTimeout = timeout
	return &HTTPClassifier{
		baseURL: strings.TrimRight(baseURL, "/"),
		pool:    httpclient.NewPool(cfg),
	}
}

type classifyRequest struct {
	Texts []string `json:"texts"`
}

// Classify scores each text via the runtime.
func (c *HTTPClassifier) Classify(ctx context.Context, texts []string) ([]Polarity, error) {
	body, err := json.Marshal(classifyRequest{Texts: texts})
	if err != nil {
		return nil, err
	}
	data, err := c.pool.PostJSON(ctx, c.baseURL+"/classify", body)
	if err != nil {
		return nil, fmt.Errorf("sentiment classify: %w", err)
	}
	var out []Polarity
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("sentiment classify: decode: %w", err)
	}
	if len(out) != len(texts) {
		return nil, fmt.Errorf("sentiment classify: got %d results for %d texts", len(out), len(texts))
	}
	return out, nil
}

// LexiconClassifier is the in-process fallback when no sentiment runtime is
// configured. Counts polarity words and converts the ratio to probabilities.
type LexiconClassifier struct{}

var positiveWords = map[string]struct{}{
	"good": {}, "great": {}, "excellent": {}, "strong": {}, "beneficial": {},
	"effective": {}, "improved": {}, "improving": {}, "favorable": {},
	"positive": {}, "success": {}, "successful": {}, "gain": {}, "gains": {},
	"best": {}, "superior": {}, "outstanding": {}, "robust": {}, "healthy": {},
	"clearly": {}, "confident": {}, "recommend": {}, "recommended": {},
	"advantage": {}, "opportunity": {}, "growth": {}, "upside": {},
}

var negativeWords = map[string]struct{}{
	"bad": {}, "poor": {}, "weak": {}, "harmful": {}, "ineffective": {},
	"worse": {}, "worst": {}, "negative": {}, "failure": {}, "failed": {},
	"loss": {}, "losses": {}, "decline": {}, "declining": {}, "risk": {},
	"risks": {}, "risky": {}, "problematic": {}, "avoid": {}, "inferior": {},
	"liable": {}, "negligent": {}, "breach": {}, "violated": {},
	"disadvantage": {}, "downside": {}, "concern": {}, "concerning": {},
}

// Classify estimates polarity from word counts. Texts with no polarity words
// come back 0.5/0.5.
func (LexiconClassifier) Classify(_ context.Context, texts []string) ([]Polarity, error) {
	out := make([]Polarity, len(texts))
	for i, text := range texts {
		pos, neg := 0, 0
		for _, w := range strings.Fields(strings.ToLower(text)) {
			w = strings.Trim(w, ".,;:!?\"'()")
			if _, ok := positiveWords[w]; ok {
				pos++
			}
			if _, ok := negativeWords[w]; ok {
				neg++
			}
		}
		if pos+neg == 0 {
			out[i] = Polarity{Positive: 0.5, Negative: 0.5}
			continue
		}
		p := float64(pos) / float64(pos+neg)
		out[i] = Polarity{Positive: p, Negative: 1 - p}
	}
	return out, nil
}

// SentimentResult is the averaged polarity over sentences.
type SentimentResult struct {
	Label         string  `json:"label"`
	PositiveScore float64 `json:"positive_score"`
	NegativeScore float64 `json:"negative_score"`
}

// AnalyzeSentiment splits text into sentences, classifies each, and averages.
// The label goes NEUTRAL when the averages sit within 0.15 of each other.
func AnalyzeSentiment(ctx context.Context, c Classifier, text string) (SentimentResult, error) {
	sentences := splitSentences(text)
	if len(sentences) == 0 {
		return SentimentResult{Label: LabelNeutral, PositiveScore: 0.5, NegativeScore: 0.5}, nil
	}

	truncated := make([]string, len(sentences))
	for i, s := range sentences {
		if len(s) > 500 {
			s = s[:500]
		}
		truncated[i] = s
	}

	polarities, err := c.Classify(ctx, truncated)
	if err != nil {
		return SentimentResult{}, err
	}

	var pos, neg float64
	for _, p := range polarities {
		pos += p.Positive
		neg += p.Negative
	}
	n := float64(len(polarities))
	pos /= n
	neg /= n

	label := LabelNegative
	if pos > neg {
		label = LabelPositive
	}
	if diff := pos - neg; diff < 0.15 && diff > -0.15 {
		label = LabelNeutral
	}

	return SentimentResult{
		Label:         label,
		PositiveScore: round4(pos),
		NegativeScore: round4(neg),
	}, nil
}

// splitSentences breaks on terminal punctuation followed by whitespace and
// keeps sentences longer than 5 characters.
func splitSentences(text string) []string {
	text = strings.TrimSpace(text)
	var out []string
	start := 0
	for i := 0; i < len(text); i++ {
		if (text[i] == '.' || text[i] == '!' || text[i] == '?') &&
			(i+1 == len(text) || text[i+1] == ' ' || text[i+1] == '\n' || text[i+1] == '\t') {
			s := strings.TrimSpace(text[start : i+1])
			if len(s) > 5 {
				out = append(out, s)
			}
			start = i + 1
		}
	}
	if s := strings.TrimSpace(text[start:]); len(s) > 5 {
		out = append(out, s)
	}
	return out
}
