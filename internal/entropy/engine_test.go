package entropy

import (
	"context"
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/7789996399/Meerkat-API/internal/nli"
)

type fakeGenerator struct {
	completions []string
	err         error
	temperature float64
}

func (f *fakeGenerator) Generate(_ context.Context, _ string, temperature float64, _ int) ([]string, error) {
	f.temperature = temperature
	return f.completions, f.err
}

// fakePredictor entails two texts iff they share a keyword.
type fakePredictor struct {
	keywords []string
	err      error
}

func (f *fakePredictor) Predict(_ context.Context, premise, hypothesis string) (nli.Result, error) {
	if f.err != nil {
		return nli.Result{}, f.err
	}
	for _, kw := range f.keywords {
		if strings.Contains(premise, kw) && strings.Contains(hypothesis, kw) {
			return nli.Result{Entailment: 0.95, Label: nli.LabelEntailment}, nil
		}
	}
	return nli.Result{Neutral: 0.9, Label: nli.LabelNeutral}, nil
}

func capitalCompletions() []string {
	return []string{
		"The capital of France is Paris.",
		"Paris is the capital.",
		"It is Paris.",
		"Paris, of course.",
		"The answer is Paris.",
		"The capital is London.",
		"London is the capital of France.",
		"It is London.",
		"The capital is Berlin.",
		"Berlin is the capital.",
	}
}

func newTestEngine(gen *fakeGenerator, p *fakePredictor) *Engine {
	return NewEngine(gen, p, DefaultConfig())
}

func TestAnalyzeThreeClusterSplit(t *testing.T) {
	gen := &fakeGenerator{completions: capitalCompletions()}
	p := &fakePredictor{keywords: []string{"Paris", "London", "Berlin"}}
	eng := newTestEngine(gen, p)

	report, err := eng.Analyze(context.Background(), "What is the capital of France?",
		"The capital of France is Paris.", "")
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}

	if report.NumClusters != 3 {
		t.Fatalf("num_clusters = %d, want 3: %+v", report.NumClusters, report.Clusters)
	}
	if report.NumCompletions != 10 {
		t.Errorf("num_completions = %d, want 10", report.NumCompletions)
	}

	// 5/3/2 split: H = -(0.5 ln 0.5 + 0.3 ln 0.3 + 0.2 ln 0.2) / ln 10.
	want := -(0.5*math.Log(0.5) + 0.3*math.Log(0.3) + 0.2*math.Log(0.2)) / math.Log(10)
	if math.Abs(report.SemanticEntropy-want) > 1e-9 {
		t.Errorf("semantic_entropy = %v, want %v", report.SemanticEntropy, want)
	}
	if report.Interpretation != InterpretModerate {
		t.Errorf("interpretation = %s, want %s", report.Interpretation, InterpretModerate)
	}

	// Cluster 0 holds completion 0, so it is the Paris cluster.
	if report.Clusters[0].Size != 5 {
		t.Errorf("cluster 0 size = %d, want 5", report.Clusters[0].Size)
	}
	if report.AIOutputCluster != 0 {
		t.Errorf("ai_output_cluster = %d, want 0", report.AIOutputCluster)
	}
	if !report.AIOutputInMajor {
		t.Error("ai output should be in the majority cluster")
	}
}

func TestAnalyzeSamplesAtUnitTemperature(t *testing.T) {
	gen := &fakeGenerator{completions: []string{"Paris one.", "Paris two."}}
	p := &fakePredictor{keywords: []string{"Paris"}}

	// Both the default config and the zero-value coercion must resample
	// at temperature 1.0; a cooler sample understates uncertainty.
	for _, cfg := range []Config{DefaultConfig(), {}} {
		eng := NewEngine(gen, p, cfg)
		if _, err := eng.Analyze(context.Background(), "q", "", ""); err != nil {
			t.Fatalf("Analyze: %v", err)
		}
		if gen.temperature != 1.0 {
			t.Errorf("sampling temperature = %v, want 1.0", gen.temperature)
		}
	}
}

// Entailment is not transitive: the output can entail a cluster member
// without entailing the representative. Membership must still resolve.
func TestLocateOutputMatchesNonRepresentativeMember(t *testing.T) {
	gen := &fakeGenerator{completions: []string{"alpha beta", "alpha"}}
	p := &fakePredictor{keywords: []string{"alpha", "beta"}}
	eng := newTestEngine(gen, p)

	report, err := eng.Analyze(context.Background(), "q", "beta gamma", "")
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}

	// Completions cluster via "alpha"; the shortest member "alpha" is the
	// representative. The output shares only "beta" with completion 0.
	if report.NumClusters != 1 {
		t.Fatalf("num_clusters = %d, want 1: %+v", report.NumClusters, report.Clusters)
	}
	if report.Clusters[0].Representative != "alpha" {
		t.Fatalf("representative = %q, want %q", report.Clusters[0].Representative, "alpha")
	}
	if report.AIOutputCluster != 0 {
		t.Errorf("ai_output_cluster = %d, want 0 (matched via completion 0)", report.AIOutputCluster)
	}
	if !report.AIOutputInMajor {
		t.Error("output matched the only cluster; it is the majority")
	}
}

func TestAnalyzeIdenticalCompletions(t *testing.T) {
	gen := &fakeGenerator{completions: []string{
		"Paris is the capital.", "Paris is the capital.", "Paris is the capital.",
	}}
	p := &fakePredictor{keywords: []string{"Paris"}}
	eng := newTestEngine(gen, p)

	report, err := eng.Analyze(context.Background(), "capital?", "Paris is the capital.", "")
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if report.NumClusters != 1 {
		t.Fatalf("num_clusters = %d, want 1", report.NumClusters)
	}
	if report.SemanticEntropy != 0 {
		t.Errorf("semantic_entropy = %v, want 0", report.SemanticEntropy)
	}
	if report.Interpretation != InterpretCertain {
		t.Errorf("interpretation = %s, want certain", report.Interpretation)
	}
}

func TestAnalyzeAllDistinct(t *testing.T) {
	gen := &fakeGenerator{completions: []string{
		"Alpha answer.", "Bravo answer.", "Charlie answer.", "Delta answer.",
	}}
	p := &fakePredictor{keywords: []string{"Alpha", "Bravo", "Charlie", "Delta"}}
	eng := newTestEngine(gen, p)

	report, err := eng.Analyze(context.Background(), "q", "Echo answer.", "")
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if report.NumClusters != 4 {
		t.Fatalf("num_clusters = %d, want 4", report.NumClusters)
	}
	// Uniform distribution over N clusters has normalized entropy 1.
	if math.Abs(report.SemanticEntropy-1.0) > 1e-9 {
		t.Errorf("semantic_entropy = %v, want 1.0", report.SemanticEntropy)
	}
	if report.Interpretation != InterpretConfabulation {
		t.Errorf("interpretation = %s, want confabulation_likely", report.Interpretation)
	}
	if report.AIOutputCluster != -1 {
		t.Errorf("ai_output_cluster = %d, want -1 for unmatched output", report.AIOutputCluster)
	}
	if report.AIOutputInMajor {
		t.Error("unmatched output cannot be in the majority")
	}
}

func TestAnalyzeInsufficientCompletions(t *testing.T) {
	gen := &fakeGenerator{completions: []string{"only one"}}
	eng := newTestEngine(gen, &fakePredictor{})

	_, err := eng.Analyze(context.Background(), "q", "out", "")
	if !errors.Is(err, ErrInsufficientCompletions) {
		t.Fatalf("err = %v, want ErrInsufficientCompletions", err)
	}
}

func TestAnalyzePropagatesNLIError(t *testing.T) {
	gen := &fakeGenerator{completions: []string{"a one", "b two", "c three"}}
	eng := newTestEngine(gen, &fakePredictor{err: errors.New("runtime down")})

	if _, err := eng.Analyze(context.Background(), "q", "out", ""); err == nil {
		t.Fatal("expected error when NLI runtime is unavailable")
	}
}

func TestUnionFind(t *testing.T) {
	uf := newUnionFind(6)
	uf.union(0, 1)
	uf.union(1, 2)
	uf.union(4, 5)

	if uf.find(0) != uf.find(2) {
		t.Error("0 and 2 should share a root after transitive union")
	}
	if uf.find(3) == uf.find(0) {
		t.Error("3 should remain a singleton")
	}

	groups := uf.groups()
	if len(groups) != 3 {
		t.Fatalf("got %d groups, want 3: %v", len(groups), groups)
	}
	sizes := map[int]int{}
	for _, members := range groups {
		sizes[len(members)]++
	}
	if sizes[3] != 1 || sizes[2] != 1 || sizes[1] != 1 {
		t.Errorf("group sizes = %v, want one of each 3/2/1", sizes)
	}
}

func TestInterpretBuckets(t *testing.T) {
	cases := []struct {
		entropy float64
		want    string
	}{
		{0.0, InterpretCertain},
		{0.09, InterpretCertain},
		{0.1, InterpretLow},
		{0.29, InterpretLow},
		{0.3, InterpretModerate},
		{0.49, InterpretModerate},
		{0.5, InterpretHigh},
		{0.69, InterpretHigh},
		{0.7, InterpretConfabulation},
		{1.0, InterpretConfabulation},
	}
	for _, tc := range cases {
		if got := Interpret(tc.entropy); got != tc.want {
			t.Errorf("Interpret(%v) = %s, want %s", tc.entropy, got, tc.want)
		}
	}
}

func TestRepresentativeIsShortestMember(t *testing.T) {
	gen := &fakeGenerator{completions: []string{
		"The capital of France is the city of Paris.",
		"Paris.",
		"It is Paris, the capital.",
	}}
	p := &fakePredictor{keywords: []string{"Paris"}}
	eng := newTestEngine(gen, p)

	report, err := eng.Analyze(context.Background(), "q", "", "")
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if report.Clusters[0].Representative != "Paris." {
		t.Errorf("representative = %q, want shortest member", report.Clusters[0].Representative)
	}
}
