package nli

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPredictRoundTrip(t *testing.T) {
	var gotReq predictRequest
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/predict", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))
		json.NewEncoder(w).Encode(Result{
			Entailment:    0.91,
			Contradiction: 0.03,
			Neutral:       0.06,
			Label:         LabelEntailment,
		})
	}))
	defer ts.Close()

	c := NewClient(ts.URL, 5*time.Second)
	r, err := c.Predict(context.Background(), "The term is 12 months.", "The contract lasts a year.")
	require.NoError(t, err)

	assert.Equal(t, "The term is 12 months.", gotReq.Premise)
	assert.True(t, r.Entails())
	assert.False(t, r.Contradicts())
}

func TestPredictFillsMissingLabel(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]float64{
			"entailment":    0.1,
			"contradiction": 0.8,
			"neutral":       0.1,
		})
	}))
	defer ts.Close()

	c := NewClient(ts.URL, 5*time.Second)
	r, err := c.Predict(context.Background(), "a", "b")
	require.NoError(t, err)
	assert.Equal(t, LabelContradiction, r.Label)
}

func TestPredictServerError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not loaded", http.StatusServiceUnavailable)
	}))
	defer ts.Close()

	c := NewClient(ts.URL, time.Second)
	_, err := c.Predict(context.Background(), "a", "b")
	assert.Error(t, err)
}

type scriptedPredictor struct {
	results map[[2]string]Result
}

func (s scriptedPredictor) Predict(ctx context.Context, premise, hypothesis string) (Result, error) {
	return s.results[[2]string{premise, hypothesis}], nil
}

func TestBidirectional(t *testing.T) {
	entails := Result{Label: LabelEntailment}
	neutral := Result{Label: LabelNeutral}

	cases := []struct {
		name     string
		forward  Result
		backward Result
		want     bool
	}{
		{"mutual entailment", entails, entails, true},
		{"forward only", entails, neutral, false},
		{"neither", neutral, neutral, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p := scriptedPredictor{results: map[[2]string]Result{
				{"a", "b"}: tc.forward,
				{"b", "a"}: tc.backward,
			}}
			got, err := Bidirectional(context.Background(), p, "a", "b")
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}
