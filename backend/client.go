// Package backend talks to an OpenAI-compatible text completion API.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/Paranoid-AF/fimlet/buffer"
)

// API types.
const (
	APICompletions     = "completions"
	APIChatCompletions = "chat_completions"
)

// Request is one completion call.
type Request struct {
	Prompt    string
	Stop      string
	MaxTokens int
	Model     string
}

// Options configures a Client.
type Options struct {
	BaseURL     string
	APIKey      string
	APIType     string // APICompletions (default) or APIChatCompletions
	Temperature float64
	Seed        *int
	Timeout     time.Duration
	// RequestsPerSecond paces outgoing calls; <= 0 disables pacing.
	RequestsPerSecond float64
}

// Client performs completions against an OpenAI-compatible API.
type Client struct {
	baseURL     string
	apiKey      string
	apiType     string
	temperature float64
	seed        *int
	limiter     *rate.Limiter
	client      *http.Client
}

// NewClient creates a client from opts.
func NewClient(opts Options) *Client {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	var limiter *rate.Limiter
	if opts.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), 1)
	}
	return &Client{
		baseURL:     strings.TrimRight(opts.BaseURL, "/"),
		apiKey:      opts.APIKey,
		apiType:     opts.APIType,
		temperature: opts.Temperature,
		seed:        opts.Seed,
		limiter:     limiter,
		client:      &http.Client{Timeout: timeout},
	}
}

// BaseURL returns the configured endpoint.
func (c *Client) BaseURL() string { return c.baseURL }

// Complete sends req and returns the generated text with LF line endings.
// Every failure is an *Error.
func (c *Client) Complete(ctx context.Context, req *Request) (string, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return "", &Error{Kind: KindOther, Err: err}
		}
	}

	var (
		text string
		err  error
	)
	if c.apiType == APIChatCompletions {
		text, err = c.completeChat(ctx, req)
	} else {
		text, err = c.completeText(ctx, req)
	}
	if err != nil {
		return "", err
	}
	return buffer.NormalizeNewlines(text), nil
}

// --- Completions API ---

type completionsRequest struct {
	Model       string   `json:"model"`
	Prompt      string   `json:"prompt"`
	MaxTokens   int      `json:"max_tokens,omitempty"`
	Temperature float64  `json:"temperature"`
	Stop        []string `json:"stop,omitempty"`
	Seed        *int     `json:"seed,omitempty"`
}

type completionsResponse struct {
	Choices []struct {
		Text string `json:"text"`
	} `json:"choices"`
	Error *apiError `json:"error,omitempty"`
}

type apiError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
}

func (c *Client) completeText(ctx context.Context, req *Request) (string, error) {
	body := completionsRequest{
		Model:       req.Model,
		Prompt:      req.Prompt,
		MaxTokens:   req.MaxTokens,
		Temperature: c.temperature,
		Stop:        stopList(req.Stop),
		Seed:        c.seed,
	}

	var result completionsResponse
	if err := c.post(ctx, "/completions", body, &result); err != nil {
		return "", err
	}
	if result.Error != nil {
		return "", &Error{Kind: KindOther, Message: result.Error.Message}
	}
	if len(result.Choices) == 0 {
		return "", &Error{Kind: KindOther, Message: "no choices in response"}
	}
	return result.Choices[0].Text, nil
}

// --- Chat Completions API ---

type chatCompletionsRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Temperature float64       `json:"temperature"`
	Stop        []string      `json:"stop,omitempty"`
	Seed        *int          `json:"seed,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatCompletionsResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Error *apiError `json:"error,omitempty"`
}

func (c *Client) completeChat(ctx context.Context, req *Request) (string, error) {
	body := chatCompletionsRequest{
		Model:       req.Model,
		Messages:    []chatMessage{{Role: "user", Content: req.Prompt}},
		MaxTokens:   req.MaxTokens,
		Temperature: c.temperature,
		Stop:        stopList(req.Stop),
		Seed:        c.seed,
	}

	var result chatCompletionsResponse
	if err := c.post(ctx, "/chat/completions", body, &result); err != nil {
		return "", err
	}
	if result.Error != nil {
		return "", &Error{Kind: KindOther, Message: result.Error.Message}
	}
	if len(result.Choices) == 0 {
		return "", &Error{Kind: KindOther, Message: "no choices in response"}
	}
	return result.Choices[0].Message.Content, nil
}

// post sends body as JSON to path and decodes a 200 response into out.
func (c *Client) post(ctx context.Context, path string, body, out any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return &Error{Kind: KindOther, Err: err}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return &Error{Kind: KindOther, Err: err}
	}
	c.setHeaders(httpReq)

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return transportError(err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return &Error{Kind: KindOther, Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return statusError(resp.StatusCode, errorMessage(raw))
	}

	if err := json.Unmarshal(raw, out); err != nil {
		return &Error{Kind: KindOther, Err: fmt.Errorf("failed to parse response: %w (body: %s)", err, string(raw))}
	}
	return nil
}

// errorMessage extracts error.message from an OpenAI-style error body,
// falling back to the raw body.
func errorMessage(raw []byte) string {
	var envelope struct {
		Error *apiError `json:"error"`
	}
	if err := json.Unmarshal(raw, &envelope); err == nil && envelope.Error != nil && envelope.Error.Message != "" {
		return envelope.Error.Message
	}
	return strings.TrimSpace(string(raw))
}

func stopList(stop string) []string {
	if stop == "" {
		return nil
	}
	return []string{stop}
}

// setHeaders sets common headers for API requests.
func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
}
