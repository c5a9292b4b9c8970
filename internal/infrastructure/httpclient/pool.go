// Package httpclient provides the pooled HTTP client used for every
// downstream call (NLI runtime, completion generator, analyzer services).
// It bounds concurrency with a semaphore, rate-limits outbound requests,
// retries transient failures with jittered backoff, and trips a circuit
// breaker per client when a downstream keeps failing.
package httpclient

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"
)

// ErrUpstreamUnavailable marks a downstream call that exhausted its
// retries or hit an open breaker. Callers use errors.Is to decide
// whether to fall back to a local engine.
var ErrUpstreamUnavailable = errors.New("upstream unavailable")

// PoolConfig controls one client pool.
type PoolConfig struct {
	Name            string
	MaxConcurrent   int
	RequestTimeout  time.Duration
	MaxRetries      int
	BackoffBase     time.Duration
	BackoffMax      time.Duration
	RequestsPerSec  float64
	BreakerFailures uint32
}

// DefaultPoolConfig returns sane defaults for a downstream client.
func DefaultPoolConfig(name string) PoolConfig {
	return PoolConfig{
		Name:            name,
		MaxConcurrent:   16,
		RequestTimeout:  30 * time.Second,
		MaxRetries:      2,
		BackoffBase:     200 * time.Millisecond,
		BackoffMax:      5 * time.Second,
		RequestsPerSec:  50,
		BreakerFailures: 5,
	}
}

// Stats tracks pool activity.
type Stats struct {
	Requests    int64
	Retries     int64
	Failures    int64
	BreakerOpen int64
}

// Pool is a bounded, resilient HTTP client.
type Pool struct {
	name      string
	client    *http.Client
	semaphore chan struct{}
	limiter   *rate.Limiter
	breaker   *gobreaker.CircuitBreaker
	config    PoolConfig

	mu    sync.RWMutex
	stats Stats
}

// NewPool builds a pool from cfg.
func NewPool(cfg PoolConfig) *Pool {
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 16
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 30 * time.Second
	}
	if cfg.RequestsPerSec <= 0 {
		cfg.RequestsPerSec = 50
	}

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    cfg.Name,
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.BreakerFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().Str("client", name).
				Str("from", from.String()).Str("to", to.String()).
				Msg("Circuit breaker state change")
		},
	})

	return &Pool{
		name: cfg.Name,
		client: &http.Client{
			Timeout: cfg.RequestTimeout,
			Transport: &http.Transport{
				MaxIdleConns:        cfg.MaxConcurrent * 2,
				MaxIdleConnsPerHost: cfg.MaxConcurrent,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		semaphore: make(chan struct{}, cfg.MaxConcurrent),
		limiter:   rate.NewLimiter(rate.Limit(cfg.RequestsPerSec), cfg.MaxConcurrent),
		breaker:   breaker,
		config:    cfg,
	}
}

// PostJSON sends body as JSON to url and returns the response body.
// Non-2xx responses are errors. Retries transient failures.
func (p *Pool) PostJSON(ctx context.Context, url string, body []byte) ([]byte, error) {
	select {
	case p.semaphore <- struct{}{}:
		defer func() { <-p.semaphore }()
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	if err := p.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	p.mu.Lock()
	p.stats.Requests++
	p.mu.Unlock()

	var lastErr error
	for attempt := 0; attempt <= p.config.MaxRetries; attempt++ {
		if attempt > 0 {
			p.mu.Lock()
			p.stats.Retries++
			p.mu.Unlock()

			backoff := p.backoff(attempt)
			log.Debug().Str("client", p.name).Str("url", url).
				Int("attempt", attempt).Dur("backoff", backoff).
				Msg("Retrying downstream request")
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		result, err := p.breaker.Execute(func() (interface{}, error) {
			return p.doOnce(ctx, url, body)
		})
		if err == nil {
			return result.([]byte), nil
		}
		lastErr = err

		if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
			p.mu.Lock()
			p.stats.BreakerOpen++
			p.mu.Unlock()
			break
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if !isRetryable(err) {
			break
		}
	}

	p.mu.Lock()
	p.stats.Failures++
	p.mu.Unlock()
	return nil, fmt.Errorf("%s: %w: %w", p.name, ErrUpstreamUnavailable, lastErr)
}

func (p *Pool) doOnce(ctx context.Context, url string, body []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &StatusError{Code: resp.StatusCode, Body: truncate(string(data), 200)}
	}
	return data, nil
}

func (p *Pool) backoff(attempt int) time.Duration {
	base := p.config.BackoffBase
	if base <= 0 {
		base = 200 * time.Millisecond
	}
	d := base * time.Duration(1<<uint(attempt-1))
	if p.config.BackoffMax > 0 && d > p.config.BackoffMax {
		d = p.config.BackoffMax
	}
	// Jitter up to 25% to avoid retry synchronization.
	return d + time.Duration(rand.Int63n(int64(d)/4+1))
}

// Stats returns a copy of the pool counters.
func (p *Pool) Stats() Stats {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.stats
}

// StatusError is a non-2xx downstream response.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d: %s", e.Code, e.Body)
}

func isRetryable(err error) bool {
	if se, ok := err.(*StatusError); ok {
		switch se.Code {
		case http.StatusTooManyRequests,
			http.StatusBadGateway,
			http.StatusServiceUnavailable,
			http.StatusGatewayTimeout:
			return true
		}
		return false
	}
	// Transport-level errors (refused, reset, DNS) are retryable.
	return true
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
