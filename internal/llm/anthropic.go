package llm

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

const (
	envAPIKey    = "ANTHROPIC_API_KEY"
	envModel     = "ANTHROPIC_MODEL"
	defaultModel = "claude-sonnet-4-5-20250929"

	maxTokens      = 900
	timeoutSecs    = 60
	maxRequestSize = 200000 // ~200KB limit for safety
)

// Client is the provider-agnostic chat-completion contract. Its caller
// in this module is the recovery analysis hook wired up in
// cmd/orchestrator.
type Client interface {
	Generate(ctx context.Context, req Request) (Response, error)
	Name() string
}

// Request is one chat-completion call.
type Request struct {
	System      string
	Messages    []Message
	Tools       []Tool
	Temperature float32
	MaxTokens   int
}

// Message is one turn of a Request's conversation.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Tool describes a callable tool offered to the model.
type Tool struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"input_schema"`
}

// Response is a Generate call's text output.
type Response struct {
	Text string
}

type anthropicClient struct {
	sdk     anthropic.Client
	model   string
	limiter *rate.Limiter
	logger  zerolog.Logger
}

// NewAnthropicFromEnv builds a Client around the official Anthropic SDK,
// reading ANTHROPIC_API_KEY / ANTHROPIC_MODEL from the environment.
func NewAnthropicFromEnv() (Client, error) {
	key := strings.TrimSpace(os.Getenv(envAPIKey))
	if key == "" {
		return nil, fmt.Errorf("missing %s", envAPIKey)
	}
	model := strings.TrimSpace(os.Getenv(envModel))
	if model == "" {
		model = defaultModel
	}
	model = strings.Trim(model, "\"'")

	return &anthropicClient{
		sdk:     anthropic.NewClient(option.WithAPIKey(key), option.WithRequestTimeout(timeoutSecs*time.Second)),
		model:   model,
		limiter: rate.NewLimiter(rate.Limit(2), 4), // 2 req/s, burst 4, per provider rate limits
		logger:  zerolog.Nop(),
	}, nil
}

// NewAnthropicWithLogger creates a client with logger for detailed tracing.
func NewAnthropicWithLogger(logger zerolog.Logger) (Client, error) {
	client, err := NewAnthropicFromEnv()
	if err != nil {
		return nil, err
	}
	if ac, ok := client.(*anthropicClient); ok {
		ac.logger = logger
	}
	return client, nil
}

func (c *anthropicClient) Name() string { return c.model }

func (c *anthropicClient) Generate(ctx context.Context, req Request) (Response, error) {
	if len(req.Messages) == 0 {
		return Response{}, errors.New("no messages")
	}

	for i, m := range req.Messages {
		if len(m.Content) > maxRequestSize {
			c.logger.Warn().Int("message_idx", i).Int("size", len(m.Content)).Msg("message too large, truncating")
			req.Messages[i].Content = m.Content[:maxRequestSize] + "... [truncated]"
		}
	}
	if len(req.System) > maxRequestSize {
		c.logger.Warn().Int("size", len(req.System)).Msg("system prompt too large, truncating")
		req.System = req.System[:maxRequestSize] + "... [truncated]"
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return Response{}, fmt.Errorf("rate limiter: %w", err)
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(c.model),
		MaxTokens: int64(maxOf(req.MaxTokens, maxTokens)),
	}
	if req.Temperature > 0 {
		params.Temperature = anthropic.Float(float64(req.Temperature))
	}
	if req.System != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.System}}
	}
	for _, m := range req.Messages {
		switch strings.ToLower(m.Role) {
		case "assistant":
			params.Messages = append(params.Messages, anthropic.NewAssistantMessage(anthropic.NewTextBlock(m.Content)))
		default:
			params.Messages = append(params.Messages, anthropic.NewUserMessage(anthropic.NewTextBlock(m.Content)))
		}
	}
	for _, t := range req.Tools {
		params.Tools = append(params.Tools, anthropic.ToolUnionParam{
			OfTool: &anthropic.ToolParam{
				Name:        t.Name,
				Description: anthropic.String(t.Description),
				InputSchema: anthropic.ToolInputSchemaParam{Properties: t.InputSchema},
			},
		})
	}

	c.logger.Debug().
		Str("model", c.model).
		Int("messages", len(params.Messages)).
		Int("tools", len(params.Tools)).
		Int64("max_tokens", params.MaxTokens).
		Msg("anthropic API request")

	msg, err := c.sdk.Messages.New(ctx, params)
	if err != nil {
		c.logger.Error().Err(err).Msg("anthropic API error")
		return Response{}, fmt.Errorf("anthropic: %w", err)
	}

	var text strings.Builder
	for _, block := range msg.Content {
		if variant, ok := block.AsAny().(anthropic.TextBlock); ok {
			text.WriteString(variant.Text)
		}
	}

	c.logger.Debug().Int("response_length", text.Len()).Msg("anthropic API success")
	return Response{Text: text.String()}, nil
}

func maxOf(a, b int) int {
	if a > b {
		return a
	}
	return b
}
