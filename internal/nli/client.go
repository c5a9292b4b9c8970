// Package nli wraps the external natural-language-inference runtime. The
// predictor is a black box: given (premise, hypothesis) it returns class
// probabilities and a dominant label.
package nli

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/7789996399/Meerkat-API/internal/infrastructure/httpclient"
)

// Labels returned by the runtime.
const (
	LabelEntailment    = "ENTAILMENT"
	LabelContradiction = "CONTRADICTION"
	LabelNeutral       = "NEUTRAL"
)

// Result is the runtime's verdict for one premise/hypothesis pair.
type Result struct {
	Entailment    float64 `json:"entailment"`
	Contradiction float64 `json:"contradiction"`
	Neutral       float64 `json:"neutral"`
	Label         string  `json:"label"`
}

// Entails reports whether the dominant label is entailment.
func (r Result) Entails() bool { return r.Label == LabelEntailment }

// Contradicts reports whether the dominant label is contradiction.
func (r Result) Contradicts() bool { return r.Label == LabelContradiction }

// Predictor is the NLI contract the analyzers depend on.
type Predictor interface {
	Predict(ctx context.Context, premise, hypothesis string) (Result, error)
}

// Client calls the NLI runtime over HTTP, with an optional Redis cache of
// verdicts keyed by the pair hash.
type Client struct {
	baseURL  string
	pool     *httpclient.Pool
	cache    *redis.Client
	cacheTTL time.Duration
}

// Option configures a Client.
type Option func(*Client)

// WithCache enables the Redis verdict cache.
func WithCache(rdb *redis.Client, ttl time.Duration) Option {
	return func(c *Client) {
		c.cache = rdb
		c.cacheTTL = ttl
	}
}

// NewClient builds a client against baseURL (the runtime exposes /predict).
func NewClient(baseURL string, timeout time.Duration, opts ...Option) *Client {
	cfg := httpclient.DefaultPoolConfig("nli")
	cfg.RequestTimeout = timeout
	cfg.MaxConcurrent = 20

	c := &Client{
		baseURL:  strings.TrimRight(baseURL, "/"),
		pool:     httpclient.NewPool(cfg),
		cacheTTL: time.Hour,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type predictRequest struct {
	Premise    string `json:"premise"`
	Hypothesis string `json:"hypothesis"`
}

// Predict runs NLI inference on one pair.
func (c *Client) Predict(ctx context.Context, premise, hypothesis string) (Result, error) {
	key := cacheKey(premise, hypothesis)

	if c.cache != nil {
		if cached, err := c.cache.Get(ctx, key).Bytes(); err == nil {
			var r Result
			if json.Unmarshal(cached, &r) == nil {
				return r, nil
			}
		}
	}

	body, err := json.Marshal(predictRequest{Premise: premise, Hypothesis: hypothesis})
	if err != nil {
		return Result{}, err
	}

	data, err := c.pool.PostJSON(ctx, c.baseURL+"/predict", body)
	if err != nil {
		return Result{}, fmt.Errorf("nli predict: %w", err)
	}

	var r Result
	if err := json.Unmarshal(data, &r); err != nil {
		return Result{}, fmt.Errorf("nli predict: decode: %w", err)
	}
	if r.Label == "" {
		r.Label = dominantLabel(r)
	}

	if c.cache != nil {
		if encoded, err := json.Marshal(r); err == nil {
			if err := c.cache.Set(ctx, key, encoded, c.cacheTTL).Err(); err != nil {
				log.Debug().Err(err).Msg("NLI cache write failed")
			}
		}
	}
	return r, nil
}

// Bidirectional reports whether a and b entail each other. This is the
// equivalence relation used for completion clustering.
func Bidirectional(ctx context.Context, p Predictor, a, b string) (bool, error) {
	forward, err := p.Predict(ctx, a, b)
	if err != nil {
		return false, err
	}
	if !forward.Entails() {
		return false, nil
	}
	backward, err := p.Predict(ctx, b, a)
	if err != nil {
		return false, err
	}
	return backward.Entails(), nil
}

func dominantLabel(r Result) string {
	label := LabelNeutral
	best := r.Neutral
	if r.Entailment > best {
		best = r.Entailment
		label = LabelEntailment
	}
	if r.Contradiction > best {
		label = LabelContradiction
	}
	return label
}

func cacheKey(premise, hypothesis string) string {
	sum := sha256.Sum256([]byte(premise + "\x1f" + hypothesis))
	return "nli:" + hex.EncodeToString(sum[:16])
}
