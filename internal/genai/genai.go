// Package genai generates AI replies through an OpenAI-compatible chat API.
//
// The client is tolerant by design: Reply always returns user-safe text, and
// a completion rejected for an unknown model is retried exactly once against
// a fallback model discovered from the provider's model list.
package genai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// Constants for GenAI client configuration
const (
	// DefaultBaseURL targets Groq's OpenAI-compatible endpoint. Any
	// OpenAI-compatible base URL works.
	DefaultBaseURL = "https://api.groq.com/openai/v1"
	// DefaultModel is the completion model used when none is configured.
	DefaultModel = "llama-3.1-70b-versatile"
	// DefaultTemperature is the sampling temperature for chat replies.
	DefaultTemperature = 0.3
	// DefaultCompletionTimeout bounds a single chat completion call.
	DefaultCompletionTimeout = 30 * time.Second
	// DefaultModelListTimeout bounds the fallback model discovery call.
	DefaultModelListTimeout = 10 * time.Second
	// maxCompletionTokens caps reply length per completion.
	maxCompletionTokens = 1024
)

// User-safe messages returned in place of errors. These reach end users in
// chat, so they carry no status codes or internals beyond the generic one.
const (
	// MsgNotConfigured is returned when no API key is configured.
	MsgNotConfigured = "AI is not configured for this tenant yet."
	// MsgInvalidKey is returned when the provider rejects the API key.
	MsgInvalidKey = "The AI service rejected this tenant's credentials."
	// MsgRateLimited is returned when the provider throttles the request.
	MsgRateLimited = "The AI service is busy right now. Please try again in a moment."
	// MsgUnavailable is returned when the provider reports an outage.
	MsgUnavailable = "The AI service is temporarily unavailable. Please try again later."
	// MsgTimeout is returned when a completion exceeds its deadline.
	MsgTimeout = "The AI service took too long to respond. Please try again."
	// MsgGenericFailure is returned on any other failure.
	MsgGenericFailure = "Sorry, I had trouble generating a response."
)

// Sentinel errors for GenAI operations.
var (
	// ErrNotConfigured indicates no API key was provided.
	ErrNotConfigured = errors.New("completion API key not configured")
	// ErrNoChoicesReturned indicates the provider returned an empty choice list.
	ErrNoChoicesReturned = errors.New("no choices returned")
)

// fallbackModels is the fixed preference order consulted when the configured
// model is rejected. The first entry present in the provider's model list
// wins; if none are present, the provider's first listed model is used.
var fallbackModels = []string{
	"llama-3.3-70b-versatile",
	"llama-3.1-8b-instant",
	"gpt-4o-mini",
	"gpt-3.5-turbo",
}

// chatService defines minimal interface for chat completions.
type chatService interface {
	Create(ctx context.Context, params openai.ChatCompletionNewParams) (openai.ChatCompletion, error)
}

// modelService defines minimal interface for model discovery.
type modelService interface {
	List(ctx context.Context) ([]string, error)
}

// Opts holds configuration options for the GenAI client.
type Opts struct {
	// APIKey authenticates against the completion backend. Empty means the
	// client is unconfigured and Reply short-circuits to MsgNotConfigured.
	APIKey string
	// BaseURL overrides the completion backend base URL.
	BaseURL string
	// Model overrides the completion model.
	Model string
	// CompletionTimeout overrides the per-completion deadline.
	CompletionTimeout time.Duration
	// ModelListTimeout overrides the model discovery deadline.
	ModelListTimeout time.Duration
	// StateDir is where debug artifacts are written when DebugMode is on.
	StateDir string
	// DebugMode dumps every completion request/response pair to StateDir.
	DebugMode bool
}

// Option defines a functional option for configuring the GenAI client.
type Option func(*Opts)

// WithAPIKey sets the completion backend API key.
func WithAPIKey(key string) Option {
	return func(o *Opts) {
		o.APIKey = key
	}
}

// WithBaseURL sets the completion backend base URL.
func WithBaseURL(url string) Option {
	return func(o *Opts) {
		o.BaseURL = url
	}
}

// WithModel sets the completion model.
func WithModel(model string) Option {
	return func(o *Opts) {
		o.Model = model
	}
}

// WithCompletionTimeout sets the per-completion deadline.
func WithCompletionTimeout(d time.Duration) Option {
	return func(o *Opts) {
		o.CompletionTimeout = d
	}
}

// WithModelListTimeout sets the model discovery deadline.
func WithModelListTimeout(d time.Duration) Option {
	return func(o *Opts) {
		o.ModelListTimeout = d
	}
}

// WithStateDir sets the directory debug artifacts are written under.
func WithStateDir(dir string) Option {
	return func(o *Opts) {
		o.StateDir = dir
	}
}

// WithDebugMode enables dumping completion request/response pairs to disk.
func WithDebugMode(enabled bool) Option {
	return func(o *Opts) {
		o.DebugMode = enabled
	}
}

// Client generates chat replies via an OpenAI-compatible backend.
type Client struct {
	chat   chatService
	models modelService

	model             string
	configured        bool
	completionTimeout time.Duration
	modelListTimeout  time.Duration
	stateDir          string
	debugMode         bool
}

// NewClient creates a GenAI client. Configuration is injected through
// options; a client built without an API key is valid but unconfigured and
// answers every Reply with MsgNotConfigured without touching the network.
func NewClient(opts ...Option) *Client {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.CompletionTimeout <= 0 {
		cfg.CompletionTimeout = DefaultCompletionTimeout
	}
	if cfg.ModelListTimeout <= 0 {
		cfg.ModelListTimeout = DefaultModelListTimeout
	}

	c := &Client{
		model:             cfg.Model,
		configured:        cfg.APIKey != "",
		completionTimeout: cfg.CompletionTimeout,
		modelListTimeout:  cfg.ModelListTimeout,
		stateDir:          cfg.StateDir,
		debugMode:         cfg.DebugMode,
	}
	if c.configured {
		// Retries stay disabled: the only retry in the pipeline is the
		// single model-fallback attempt below.
		api := openai.NewClient(
			option.WithAPIKey(cfg.APIKey),
			option.WithBaseURL(cfg.BaseURL),
			option.WithMaxRetries(0),
		)
		c.chat = openaiChatService{client: api}
		c.models = openaiModelService{client: api}
	}
	slog.Debug("GenAI client initialized", "configured", c.configured, "model", cfg.Model, "baseURL", cfg.BaseURL)
	return c
}

// Configured reports whether the client has an API key.
func (c *Client) Configured() bool {
	return c.configured
}

// Reply generates an AI reply for a chat message. It never returns an error:
// every failure is mapped to a fixed user-safe message. A model rejection is
// retried exactly once against a fallback model from the provider's list.
func (c *Client) Reply(ctx context.Context, systemPrompt, userMessage string) string {
	if !c.configured {
		return MsgNotConfigured
	}

	text, err := c.complete(ctx, "Reply", c.model, systemPrompt, userMessage, DefaultTemperature)
	if err == nil {
		return text
	}

	if isModelRejected(err) {
		if fallback := c.pickFallbackModel(ctx); fallback != "" {
			slog.Warn("GenAI model rejected, retrying with fallback", "model", c.model, "fallback", fallback)
			text, retryErr := c.complete(ctx, "Reply", fallback, systemPrompt, userMessage, DefaultTemperature)
			if retryErr == nil {
				return text
			}
			err = retryErr
		}
	}
	return classifyError(err)
}

// Complete performs a single chat completion and returns the raw text.
// Unlike Reply it propagates errors, for callers that need to distinguish
// failure from content (lead extraction).
func (c *Client) Complete(ctx context.Context, systemPrompt, userMessage string, temperature float64) (string, error) {
	if !c.configured {
		return "", ErrNotConfigured
	}
	return c.complete(ctx, "Complete", c.model, systemPrompt, userMessage, temperature)
}

func (c *Client) complete(ctx context.Context, method, model, systemPrompt, userMessage string, temperature float64) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.completionTimeout)
	defer cancel()

	params := openai.ChatCompletionNewParams{
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemPrompt),
			openai.UserMessage(userMessage),
		},
		Model:       openai.ChatModel(model),
		Temperature: openai.Float(temperature),
		MaxTokens:   openai.Int(maxCompletionTokens),
	}
	resp, err := c.chat.Create(ctx, params)
	if err != nil {
		return "", err
	}
	c.writeDebugLog(method, model, params, resp)
	if len(resp.Choices) == 0 {
		return "", ErrNoChoicesReturned
	}
	return resp.Choices[0].Message.Content, nil
}

// debugLogEntry is one completion request/response pair dumped to disk.
type debugLogEntry struct {
	Timestamp string      `json:"timestamp"`
	Method    string      `json:"method"`
	Model     string      `json:"model"`
	Params    interface{} `json:"params"`
	Response  interface{} `json:"response"`
}

// writeDebugLog asynchronously dumps a completed API call under
// <stateDir>/debug. Failures are logged, never surfaced.
func (c *Client) writeDebugLog(method, model string, params, response interface{}) {
	if !c.debugMode || c.stateDir == "" {
		return
	}
	entry := debugLogEntry{
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		Method:    method,
		Model:     model,
		Params:    params,
		Response:  response,
	}
	go func() {
		dir := filepath.Join(c.stateDir, "debug")
		if err := os.MkdirAll(dir, 0755); err != nil {
			slog.Error("GenAI debug directory creation failed", "error", err, "dir", dir)
			return
		}
		data, err := json.MarshalIndent(entry, "", "  ")
		if err != nil {
			slog.Error("GenAI debug log marshal failed", "error", err)
			return
		}
		path := filepath.Join(dir, fmt.Sprintf("%d.json", time.Now().UnixNano()))
		if err := os.WriteFile(path, data, 0644); err != nil {
			slog.Error("GenAI debug log write failed", "error", err, "path", path)
		}
	}()
}

// pickFallbackModel queries the provider's model list and returns the first
// preferred fallback it offers, or its first model when none match. Returns
// empty when discovery fails, which skips the retry.
func (c *Client) pickFallbackModel(ctx context.Context) string {
	ctx, cancel := context.WithTimeout(ctx, c.modelListTimeout)
	defer cancel()

	ids, err := c.models.List(ctx)
	if err != nil {
		slog.Warn("GenAI model discovery failed", "error", err)
		return ""
	}
	if len(ids) == 0 {
		return ""
	}
	available := make(map[string]bool, len(ids))
	for _, id := range ids {
		available[id] = true
	}
	for _, preferred := range fallbackModels {
		if available[preferred] {
			return preferred
		}
	}
	return ids[0]
}

// isModelRejected reports whether err is an HTTP 400 rejecting the model id.
func isModelRejected(err error) bool {
	var apierr *openai.Error
	if !errors.As(err, &apierr) {
		return false
	}
	if apierr.StatusCode != http.StatusBadRequest {
		return false
	}
	body := strings.ToLower(apierr.Message + " " + apierr.RawJSON())
	return strings.Contains(body, "model") || strings.Contains(body, "not found")
}

// classifyError maps a completion failure to a fixed user-safe message.
func classifyError(err error) string {
	var apierr *openai.Error
	if errors.As(err, &apierr) {
		slog.Warn("GenAI completion failed", "status", apierr.StatusCode, "message", apierr.Message)
		switch apierr.StatusCode {
		case http.StatusUnauthorized:
			return MsgInvalidKey
		case http.StatusTooManyRequests:
			return MsgRateLimited
		case http.StatusServiceUnavailable:
			return MsgUnavailable
		default:
			return fmt.Sprintf("AI error %d.", apierr.StatusCode)
		}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		slog.Warn("GenAI completion timed out")
		return MsgTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		slog.Warn("GenAI completion timed out", "error", err)
		return MsgTimeout
	}
	slog.Error("GenAI completion failed", "error", err)
	return MsgGenericFailure
}

// openaiChatService adapts the OpenAI SDK chat API to chatService.
type openaiChatService struct {
	client openai.Client
}

func (s openaiChatService) Create(ctx context.Context, params openai.ChatCompletionNewParams) (openai.ChatCompletion, error) {
	resp, err := s.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return openai.ChatCompletion{}, err
	}
	return *resp, nil
}

// openaiModelService adapts the OpenAI SDK model listing API to modelService.
type openaiModelService struct {
	client openai.Client
}

func (s openaiModelService) List(ctx context.Context) ([]string, error) {
	page, err := s.client.Models.List(ctx)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(page.Data))
	for _, m := range page.Data {
		ids = append(ids, m.ID)
	}
	return ids, nil
}
