// Package entropy estimates semantic uncertainty by resampling the model
// and clustering completions under bidirectional entailment. High entropy
// across meaning-clusters signals confabulation.
package entropy

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/7789996399/Meerkat-API/internal/llm"
	"github.com/7789996399/Meerkat-API/internal/nli"
)

// ErrInsufficientCompletions means fewer than two completions came back, so
// no distribution over meanings exists.
var ErrInsufficientCompletions = errors.New("fewer than 2 completions generated")

// Cluster is one group of semantically equivalent completions.
type Cluster struct {
	ID             int     `json:"cluster_id"`
	Size           int     `json:"size"`
	Probability    float64 `json:"probability"`
	Representative string  `json:"representative"`
	Members        []int   `json:"members"`
}

// Report is the outcome of one entropy analysis. Field names follow the
// analyzer service's response shape so remote and in-process results decode
// into the same struct.
type Report struct {
	SemanticEntropy float64   `json:"semantic_entropy"`
	RawEntropy      float64   `json:"raw_entropy"`
	NumClusters     int       `json:"num_clusters"`
	NumCompletions  int       `json:"num_completions"`
	Clusters        []Cluster `json:"clusters"`
	Interpretation  string    `json:"interpretation"`
	AIOutputCluster int       `json:"ai_output_cluster"`
	AIOutputInMajor bool      `json:"ai_output_in_majority"`
	Completions     []string  `json:"completions"`
	InferenceTimeMs int64     `json:"inference_time_ms"`
}

// Interpretation buckets over normalized entropy.
const (
	InterpretCertain       = "certain"
	InterpretLow           = "low_uncertainty"
	InterpretModerate      = "moderate_uncertainty"
	InterpretHigh          = "high_uncertainty"
	InterpretConfabulation = "confabulation_likely"
)

// Config tunes the resampling run.
type Config struct {
	NumCompletions int
	Temperature    float64
	NLIBatchSize   int
}

// DefaultConfig returns the standard resampling parameters. Sampling at
// temperature 1.0 keeps the completion distribution unbiased; anything
// cooler understates the model's real uncertainty.
func DefaultConfig() Config {
	return Config{
		NumCompletions: 10,
		Temperature:    1.0,
		NLIBatchSize:   20,
	}
}

// Engine resamples completions and clusters them.
type Engine struct {
	gen llm.Generator
	nli nli.Predictor
	cfg Config
}

// NewEngine builds an engine over a generator and an NLI predictor.
func NewEngine(gen llm.Generator, predictor nli.Predictor, cfg Config) *Engine {
	if cfg.NumCompletions <= 0 {
		cfg.NumCompletions = 10
	}
	if cfg.NLIBatchSize <= 0 {
		cfg.NLIBatchSize = 20
	}
	if cfg.Temperature == 0 {
		cfg.Temperature = 1.0
	}
	return &Engine{gen: gen, nli: predictor, cfg: cfg}
}

// Analyze resamples the prompt, clusters completions by bidirectional
// entailment, and reports the normalized cluster entropy. The AI output is
// located among the clusters but does not contribute to the distribution.
func (e *Engine) Analyze(ctx context.Context, input, aiOutput, contextText string) (Report, error) {
	start := time.Now()

	prompt := buildPrompt(input, contextText)
	completions, err := e.gen.Generate(ctx, prompt, e.cfg.Temperature, e.cfg.NumCompletions)
	if err != nil {
		return Report{}, fmt.Errorf("entropy: generate: %w", err)
	}
	if len(completions) < 2 {
		return Report{}, fmt.Errorf("entropy: got %d completion(s): %w",
			len(completions), ErrInsufficientCompletions)
	}

	log.Debug().Int("completions", len(completions)).Msg("Clustering completions")

	clusters, err := e.clusterCompletions(ctx, completions)
	if err != nil {
		return Report{}, err
	}

	report := scoreClusters(clusters, completions)
	report.Completions = completions

	aiCluster, err := e.locateOutput(ctx, aiOutput, completions, report.Clusters)
	if err != nil {
		return Report{}, err
	}
	report.AIOutputCluster = aiCluster
	report.AIOutputInMajor = inMajority(aiCluster, report.Clusters)

	report.InferenceTimeMs = time.Since(start).Milliseconds()
	return report, nil
}

func buildPrompt(input, contextText string) string {
	if contextText != "" {
		return fmt.Sprintf("Context:\n%s\n\nQuestion: %s\n\nAnswer concisely.", contextText, input)
	}
	return fmt.Sprintf("Question: %s\n\nAnswer concisely.", input)
}

type pair struct{ i, j int }

// clusterCompletions unions every bidirectionally entailing pair. NLI calls
// run concurrently in fixed-size batches.
func (e *Engine) clusterCompletions(ctx context.Context, completions []string) (*unionFind, error) {
	uf := newUnionFind(len(completions))

	var pairs []pair
	for i := 0; i < len(completions); i++ {
		for j := i + 1; j < len(completions); j++ {
			pairs = append(pairs, pair{i, j})
		}
	}

	for offset := 0; offset < len(pairs); offset += e.cfg.NLIBatchSize {
		end := offset + e.cfg.NLIBatchSize
		if end > len(pairs) {
			end = len(pairs)
		}
		batch := pairs[offset:end]

		equivalent := make([]bool, len(batch))
		errs := make([]error, len(batch))

		var wg sync.WaitGroup
		for k, p := range batch {
			// Already merged through a transitive chain.
			if uf.find(p.i) == uf.find(p.j) {
				equivalent[k] = true
				continue
			}
			wg.Add(1)
			go func(k int, p pair) {
				defer wg.Done()
				ok, err := nli.Bidirectional(ctx, e.nli, completions[p.i], completions[p.j])
				equivalent[k] = ok
				errs[k] = err
			}(k, p)
		}
		wg.Wait()

		for k, p := range batch {
			if errs[k] != nil {
				return nil, fmt.Errorf("entropy: nli pair (%d,%d): %w", p.i, p.j, errs[k])
			}
			if equivalent[k] {
				uf.union(p.i, p.j)
			}
		}
	}
	return uf, nil
}

// scoreClusters turns the partition into a probability distribution and its
// entropy, normalized by ln(N).
func scoreClusters(uf *unionFind, completions []string) Report {
	groups := uf.groups()
	n := len(completions)

	clusters := make([]Cluster, 0, len(groups))
	for _, members := range groups {
		sort.Ints(members)
		rep := completions[members[0]]
		for _, idx := range members[1:] {
			if len(completions[idx]) < len(rep) {
				rep = completions[idx]
			}
		}
		clusters = append(clusters, Cluster{
			Size:           len(members),
			Probability:    float64(len(members)) / float64(n),
			Representative: rep,
			Members:        members,
		})
	}

	// Stable ids: ascending by first member index.
	sort.Slice(clusters, func(a, b int) bool {
		return clusters[a].Members[0] < clusters[b].Members[0]
	})
	for i := range clusters {
		clusters[i].ID = i
	}

	raw := 0.0
	for _, c := range clusters {
		raw -= c.Probability * math.Log(c.Probability)
	}
	normalized := 0.0
	if n > 1 && len(clusters) > 1 {
		normalized = raw / math.Log(float64(n))
	}

	return Report{
		SemanticEntropy: normalized,
		RawEntropy:      raw,
		NumClusters:     len(clusters),
		NumCompletions:  n,
		Clusters:        clusters,
		Interpretation:  Interpret(normalized),
	}
}

// Interpret maps normalized entropy to its uncertainty bucket.
func Interpret(normalized float64) string {
	switch {
	case normalized < 0.1:
		return InterpretCertain
	case normalized < 0.3:
		return InterpretLow
	case normalized < 0.5:
		return InterpretModerate
	case normalized < 0.7:
		return InterpretHigh
	default:
		return InterpretConfabulation
	}
}

// locateOutput tests the AI output against every completion in index order
// and returns the cluster of the first bidirectional match. Entailment is
// not transitive, so testing only cluster representatives would miss
// membership via a non-representative member. Returns -1 when none match.
func (e *Engine) locateOutput(ctx context.Context, aiOutput string, completions []string, clusters []Cluster) (int, error) {
	if aiOutput == "" {
		return -1, nil
	}

	clusterOf := make(map[int]int, len(completions))
	for _, c := range clusters {
		for _, idx := range c.Members {
			clusterOf[idx] = c.ID
		}
	}

	for idx, completion := range completions {
		ok, err := nli.Bidirectional(ctx, e.nli, aiOutput, completion)
		if err != nil {
			return -1, fmt.Errorf("entropy: locate output: %w", err)
		}
		if ok {
			return clusterOf[idx], nil
		}
	}
	return -1, nil
}

// inMajority reports whether cluster id is the strictly largest cluster.
func inMajority(id int, clusters []Cluster) bool {
	if id < 0 {
		return false
	}
	var own, best int
	for _, c := range clusters {
		if c.ID == id {
			own = c.Size
		} else if c.Size > best {
			best = c.Size
		}
	}
	return own > best
}
