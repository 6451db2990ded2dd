// Package embed talks to the embedding oracle and compares the vectors it
// returns.
package embed

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"strconv"
	"time"

	"golang.org/x/time/rate"
)

const (
	DefaultModel     = "jina-embeddings-v3"
	DefaultChunkSize = 25
	maxRetries       = 3
)

var defaultBackoffs = []time.Duration{1 * time.Second, 2 * time.Second, 4 * time.Second}

// Options configures an HTTPEmbedder.
type Options struct {
	// URL is the full embeddings endpoint, e.g. https://api.jina.ai/v1/embeddings.
	URL    string
	APIKey string
	Model  string

	// ChunkSize caps the number of texts per request.
	ChunkSize int

	// Limiter paces requests. Nil allows roughly 80 requests per minute.
	Limiter *rate.Limiter

	// Backoffs are the waits between retries. Nil uses 1s, 2s, 4s.
	Backoffs []time.Duration

	Client *http.Client
}

// HTTPEmbedder calls an OpenAI-compatible /v1/embeddings endpoint.
type HTTPEmbedder struct {
	url       string
	apiKey    string
	model     string
	chunkSize int
	limiter   *rate.Limiter
	backoffs  []time.Duration
	client    *http.Client
}

type embedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embedResponse struct {
	Data []embedding `json:"data"`
}

type embedding struct {
	Embedding []float32 `json:"embedding"`
	Index     int       `json:"index"`
}

// NewHTTPEmbedder creates an HTTPEmbedder.
func NewHTTPEmbedder(opts Options) *HTTPEmbedder {
	e := &HTTPEmbedder{
		url:       opts.URL,
		apiKey:    opts.APIKey,
		model:     opts.Model,
		chunkSize: opts.ChunkSize,
		limiter:   opts.Limiter,
		backoffs:  opts.Backoffs,
		client:    opts.Client,
	}
	if e.model == "" {
		e.model = DefaultModel
	}
	if e.chunkSize <= 0 {
		e.chunkSize = DefaultChunkSize
	}
	if e.limiter == nil {
		e.limiter = rate.NewLimiter(rate.Every(750*time.Millisecond), 1)
	}
	if e.backoffs == nil {
		e.backoffs = defaultBackoffs
	}
	if e.client == nil {
		e.client = &http.Client{Timeout: 60 * time.Second}
	}
	return e
}

// Embed returns one vector per text, in input order.
func (e *HTTPEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	results := make([][]float32, len(texts))
	for start := 0; start < len(texts); start += e.chunkSize {
		end := min(start+e.chunkSize, len(texts))
		chunk := texts[start:end]

		resp, err := e.post(ctx, chunk)
		if err != nil {
			return nil, fmt.Errorf("embed: chunk starting at %d: %w", start, err)
		}
		for _, item := range resp.Data {
			if item.Index < 0 || item.Index >= len(chunk) {
				return nil, fmt.Errorf("embed: out-of-range index %d for chunk of size %d", item.Index, len(chunk))
			}
			results[start+item.Index] = item.Embedding
		}
	}

	for i, r := range results {
		if r == nil {
			return nil, fmt.Errorf("embed: missing embedding for index %d", i)
		}
	}
	return results, nil
}

func (e *HTTPEmbedder) post(ctx context.Context, input []string) (*embedResponse, error) {
	body, err := json.Marshal(embedRequest{Model: e.model, Input: input})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			if err := sleep(ctx, e.backoff(attempt-1, lastErr)); err != nil {
				return nil, err
			}
		}
		if err := e.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limiter wait: %w", err)
		}

		resp, retry, err := e.do(ctx, body)
		if err == nil {
			return resp, nil
		}
		if !retry {
			return nil, err
		}
		lastErr = err
	}
	return nil, fmt.Errorf("giving up after %d retries: %w", maxRetries, lastErr)
}

// statusError is a non-200 reply. retryAfter is set from a 429's header.
type statusError struct {
	code       int
	body       string
	retryAfter time.Duration
}

func (e *statusError) Error() string {
	return fmt.Sprintf("status %d: %s", e.code, e.body)
}

func (e *HTTPEmbedder) do(ctx context.Context, body []byte) (*embedResponse, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.url, bytes.NewReader(body))
	if err != nil {
		return nil, false, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if e.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+e.apiKey)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, false, fmt.Errorf("request cancelled: %w", ctx.Err())
		}
		return nil, true, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return nil, true, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		se := &statusError{code: resp.StatusCode, body: string(data)}
		if resp.StatusCode == http.StatusTooManyRequests {
			if seconds, err := strconv.Atoi(resp.Header.Get("Retry-After")); err == nil && seconds > 0 {
				se.retryAfter = time.Duration(seconds) * time.Second
			}
		}
		retry := resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500
		return nil, retry, se
	}

	var out embedResponse
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, true, fmt.Errorf("parse response: %w", err)
	}
	return &out, false, nil
}

func (e *HTTPEmbedder) backoff(i int, last error) time.Duration {
	if se, ok := last.(*statusError); ok && se.retryAfter > 0 {
		return se.retryAfter
	}
	if len(e.backoffs) == 0 {
		return 0
	}
	return e.backoffs[min(i, len(e.backoffs)-1)]
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return fmt.Errorf("request cancelled during retry: %w", ctx.Err())
	case <-t.C:
		return nil
	}
}

// CosineSimilarity returns the cosine of the angle between a and b, or 0
// when the lengths differ or either vector is zero.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
