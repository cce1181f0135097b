// Keepstack - Personal Knowledge Backend for Saved Content
// Copyright 2026 Keepstack Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/keepstack/keepstack

// Package ai talks to an OpenAI-compatible provider for embeddings and chat
// completions, and layers the structured use cases (classification, cluster
// labelling) on top.
//
// All outbound calls pass through a shared token-bucket rate limiter and a
// circuit breaker; provider 429s surface as errs.RateLimited with the
// Retry-After hint attached so the pipeline can delay instead of hammering.
package ai

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"strconv"
	"time"

	json "github.com/goccy/go-json"
	gobreaker "github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"

	"github.com/keepstack/keepstack/internal/config"
	"github.com/keepstack/keepstack/internal/errs"
	"github.com/keepstack/keepstack/internal/logging"
	"github.com/keepstack/keepstack/internal/metrics"
)

// Client is a minimal OpenAI-compatible API client.
type Client struct {
	baseURL        string
	apiKey         string
	embeddingModel string
	chatModel      string

	httpClient *http.Client
	limiter    *rate.Limiter
	breaker    *gobreaker.CircuitBreaker[[]byte]
}

// NewClient builds a provider client from config.
func NewClient(cfg *config.AIConfig) *Client {
	c := &Client{
		baseURL:        cfg.BaseURL,
		apiKey:         cfg.APIKey,
		embeddingModel: cfg.EmbeddingModel,
		chatModel:      cfg.ChatModel,
		httpClient:     &http.Client{Timeout: cfg.Timeout},
	}
	if cfg.RequestsPerSecond > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1)
	}
	if cfg.BreakerEnabled {
		c.breaker = gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
			Name:    "ai-provider",
			Timeout: 30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 5
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				logging.Warn().Str("breaker", name).
					Str("from", from.String()).Str("to", to.String()).
					Msg("Circuit breaker state changed")
			},
		})
	}
	return c
}

// post runs one provider call through the limiter and breaker, returning the
// raw response body.
func (c *Client) post(ctx context.Context, path string, payload any) ([]byte, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, errs.Wrap(errs.Unavailable, "rate limiter wait aborted", err)
		}
	}

	start := time.Now()
	call := func() ([]byte, error) {
		return c.doPost(ctx, path, payload)
	}

	var body []byte
	var err error
	if c.breaker == nil {
		body, err = call()
	} else {
		body, err = c.breaker.Execute(call)
		if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
			err = errs.Wrap(errs.Unavailable, "ai provider circuit open", err)
		}
	}

	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	metrics.RecordAIRequest(endpointLabel(path), outcome, time.Since(start))
	return body, err
}

func endpointLabel(path string) string {
	if path == "/embeddings" {
		return "embeddings"
	}
	return "chat"
}

func (c *Client) doPost(ctx context.Context, path string, payload any) ([]byte, error) {
	reqBody, err := json.Marshal(payload)
	if err != nil {
		return nil, errs.Wrap(errs.Internal, "failed to encode provider request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(reqBody))
	if err != nil {
		return nil, errs.Wrap(errs.Internal, "failed to build provider request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, errs.Wrap(errs.Unavailable, "ai provider unreachable", err)
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return nil, errs.Wrap(errs.Unavailable, "failed to read provider response", err)
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		e := errs.E(errs.RateLimited, "ai provider rate limited")
		if after := resp.Header.Get("Retry-After"); after != "" {
			if secs, perr := strconv.Atoi(after); perr == nil {
				e.RetryAfter = time.Duration(secs) * time.Second
			}
		}
		return nil, e
	case resp.StatusCode >= 500:
		return nil, errs.Ef(errs.Unavailable, "ai provider returned %d", resp.StatusCode)
	case resp.StatusCode >= 400:
		return nil, errs.Ef(errs.Internal, "ai provider rejected request: %d: %s",
			resp.StatusCode, truncate(string(body), 200))
	}
	return body, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

type embeddingRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embeddingResponse struct {
	Data []struct {
		Index     int       `json:"index"`
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

// Embed returns one embedding per input text, in input order.
func (c *Client) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	body, err := c.post(ctx, "/embeddings", embeddingRequest{
		Model: c.embeddingModel,
		Input: texts,
	})
	if err != nil {
		return nil, err
	}

	var parsed embeddingResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, errs.Wrap(errs.Unavailable, "malformed embedding response", err)
	}
	if len(parsed.Data) != len(texts) {
		return nil, errs.Ef(errs.Unavailable, "embedding response has %d vectors for %d inputs",
			len(parsed.Data), len(texts))
	}

	out := make([][]float32, len(texts))
	for _, d := range parsed.Data {
		if d.Index < 0 || d.Index >= len(out) {
			return nil, errs.Ef(errs.Unavailable, "embedding index %d out of range", d.Index)
		}
		out[d.Index] = d.Embedding
	}
	return out, nil
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float32       `json:"temperature"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// Complete sends one system+user chat turn and returns the assistant text.
func (c *Client) Complete(ctx context.Context, system, user string) (string, error) {
	body, err := c.post(ctx, "/chat/completions", chatRequest{
		Model: c.chatModel,
		Messages: []chatMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
		Temperature: 0.2,
	})
	if err != nil {
		return "", err
	}

	var parsed chatResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", errs.Wrap(errs.Unavailable, "malformed chat response", err)
	}
	if len(parsed.Choices) == 0 {
		return "", errs.E(errs.Unavailable, "chat response has no choices")
	}
	return parsed.Choices[0].Message.Content, nil
}

// CompleteJSON sends a chat turn expected to yield a JSON object, unwraps
// any code fences, and decodes into out.
func (c *Client) CompleteJSON(ctx context.Context, system, user string, out any) error {
	content, err := c.Complete(ctx, system, user)
	if err != nil {
		return err
	}
	raw, err := ExtractJSON(content)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return errs.Wrap(errs.Validation, "model returned invalid json", err)
	}
	return nil
}
