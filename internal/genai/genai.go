// Package genai provides the LLM side of LeadPipe using the OpenAI API.
//
// The Client issues chat completions. Decisions, meeting times and summaries are parsed from
// the returned text by pure functions in this package, so callers never see raw model output.
package genai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// Default generation parameters.
const (
	DefaultModel               = string(openai.ChatModelGPT4oMini)
	DefaultTemperature         = 0.7
	DefaultMaxCompletionTokens = 1024
)

// ErrNoChoicesReturned is returned when the completion carries no choices.
var ErrNoChoicesReturned = errors.New("no choices returned")

// chatService defines minimal interface for chat completions.
type chatService interface {
	Create(ctx context.Context, params openai.ChatCompletionNewParams) (openai.ChatCompletion, error)
}

// completionsAdapter exposes the SDK completion service through chatService.
type completionsAdapter struct {
	svc *openai.ChatCompletionService
}

func (a completionsAdapter) Create(ctx context.Context, params openai.ChatCompletionNewParams) (openai.ChatCompletion, error) {
	resp, err := a.svc.New(ctx, params)
	if err != nil {
		return openai.ChatCompletion{}, err
	}
	return *resp, nil
}

// Opts holds configuration options for the GenAI client.
type Opts struct {
	APIKey              string
	Model               string
	Temperature         float64
	MaxCompletionTokens int64
	DebugMode           bool
	StateDir            string
}

// Option defines a configuration option for the GenAI client.
type Option func(*Opts)

// WithAPIKey sets the OpenAI API key.
func WithAPIKey(key string) Option {
	return func(o *Opts) { o.APIKey = key }
}

// WithModel overrides the chat model.
func WithModel(model string) Option {
	return func(o *Opts) { o.Model = model }
}

// WithTemperature overrides the sampling temperature.
func WithTemperature(t float64) Option {
	return func(o *Opts) { o.Temperature = t }
}

// WithMaxCompletionTokens caps the completion length.
func WithMaxCompletionTokens(n int64) Option {
	return func(o *Opts) { o.MaxCompletionTokens = n }
}

// WithDebugMode writes every request and response to <stateDir>/debug.
func WithDebugMode(stateDir string) Option {
	return func(o *Opts) {
		o.DebugMode = true
		o.StateDir = stateDir
	}
}

// Client wraps the OpenAI ChatCompletion service.
type Client struct {
	chat                chatService
	model               string
	temperature         float64
	maxCompletionTokens int64
	debugMode           bool
	stateDir            string
}

// NewClient initializes a new GenAI client. The API key falls back to OPENAI_API_KEY.
func NewClient(opts ...Option) (*Client, error) {
	cfg := Opts{
		Model:               DefaultModel,
		Temperature:         DefaultTemperature,
		MaxCompletionTokens: DefaultMaxCompletionTokens,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.APIKey == "" {
		cfg.APIKey = os.Getenv("OPENAI_API_KEY")
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("OPENAI_API_KEY not set")
	}
	slog.Debug("GenAI NewClient options set", "model", cfg.Model, "temperature", cfg.Temperature, "debug", cfg.DebugMode)

	cli := openai.NewClient(option.WithAPIKey(cfg.APIKey))
	return &Client{
		chat:                completionsAdapter{svc: &cli.Chat.Completions},
		model:               cfg.Model,
		temperature:         cfg.Temperature,
		maxCompletionTokens: cfg.MaxCompletionTokens,
		debugMode:           cfg.DebugMode,
		stateDir:            cfg.StateDir,
	}, nil
}

// Complete sends the messages and returns the text of the first choice.
func (c *Client) Complete(ctx context.Context, messages []openai.ChatCompletionMessageParamUnion) (string, error) {
	params := openai.ChatCompletionNewParams{
		Model:               openai.ChatModel(c.model),
		Messages:            messages,
		Temperature:         openai.Float(c.temperature),
		MaxCompletionTokens: openai.Int(c.maxCompletionTokens),
	}
	start := time.Now()
	resp, err := c.chat.Create(ctx, params)
	if err != nil {
		slog.Error("GenAI.Complete: request failed", "model", c.model, "error", err)
		return "", fmt.Errorf("chat completion failed: %w", err)
	}
	c.writeDebugLog("Complete", params, resp)
	if len(resp.Choices) == 0 {
		return "", ErrNoChoicesReturned
	}
	slog.Debug("GenAI.Complete: response received", "model", c.model, "duration", time.Since(start),
		"totalTokens", resp.Usage.TotalTokens)
	return resp.Choices[0].Message.Content, nil
}

// writeDebugLog stores one request/response pair as a JSON file under <stateDir>/debug.
func (c *Client) writeDebugLog(method string, params openai.ChatCompletionNewParams, resp openai.ChatCompletion) {
	if !c.debugMode || c.stateDir == "" {
		return
	}
	dir := filepath.Join(c.stateDir, "debug")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		slog.Warn("GenAI.writeDebugLog: failed to create debug dir", "dir", dir, "error", err)
		return
	}
	now := time.Now()
	entry := map[string]interface{}{
		"timestamp": now.Format(time.RFC3339Nano),
		"method":    method,
		"model":     c.model,
		"params":    params,
		"response":  resp,
	}
	data, err := json.MarshalIndent(entry, "", "  ")
	if err != nil {
		slog.Warn("GenAI.writeDebugLog: marshal failed", "error", err)
		return
	}
	name := fmt.Sprintf("%s_%d.json", method, now.UnixNano())
	if err := os.WriteFile(filepath.Join(dir, name), data, 0o644); err != nil {
		slog.Warn("GenAI.writeDebugLog: write failed", "error", err)
	}
}
