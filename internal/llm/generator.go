// Package llm wraps the black-box completion generator used for semantic
// entropy resampling.
package llm

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/7789996399/Meerkat-API/internal/infrastructure/httpclient"
)

// Generator produces n completions for a prompt at the given temperature.
// Implementations return however many completions succeeded; callers decide
// whether that is enough.
type Generator interface {
	Generate(ctx context.Context, prompt string, temperature float64, n int) ([]string, error)
}

// Client talks to an Ollama-style chat endpoint. The n requests are
// dispatched concurrently; each returns one completion.
type Client struct {
	baseURL string
	model   string
	pool    *httpclient.Pool
}

// NewClient builds a generator client for baseURL (exposing /api/chat).
func NewClient(baseURL, model string, timeout time.Duration) *Client {
	cfg := httpclient.DefaultPoolConfig("generator")
	cfg.RequestTimeout = timeout
	cfg.MaxConcurrent = 20
	cfg.MaxRetries = 0 // sampling: a lost completion is dropped, not retried

	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		model:   model,
		pool:    httpclient.NewPool(cfg),
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model    string         `json:"model"`
	Messages []chatMessage  `json:"messages"`
	Stream   bool           `json:"stream"`
	Options  map[string]any `json:"options"`
}

type chatResponse struct {
	Message chatMessage `json:"message"`
}

// Generate dispatches n chat completions concurrently and returns the
// non-empty ones in request order.
func (c *Client) Generate(ctx context.Context, prompt string, temperature float64, n int) ([]string, error) {
	body, err := json.Marshal(chatRequest{
		Model:    c.model,
		Messages: []chatMessage{{Role: "user", Content: prompt}},
		Stream:   false,
		Options:  map[string]any{"temperature": temperature},
	})
	if err != nil {
		return nil, err
	}

	results := make([]string, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			data, err := c.pool.PostJSON(ctx, c.baseURL+"/api/chat", body)
			if err != nil {
				log.Debug().Err(err).Int("completion", idx).Msg("Generation failed")
				return
			}
			var resp chatResponse
			if err := json.Unmarshal(data, &resp); err != nil {
				log.Debug().Err(err).Int("completion", idx).Msg("Generation decode failed")
				return
			}
			results[idx] = strings.TrimSpace(resp.Message.Content)
		}(i)
	}
	wg.Wait()

	completions := make([]string, 0, n)
	for _, r := range results {
		if r != "" {
			completions = append(completions, r)
		}
	}
	return completions, nil
}
