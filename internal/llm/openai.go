package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

const (
	envOpenAIAPIKey    = "OPENAI_API_KEY"
	envOpenAIModel     = "OPENAI_MODEL"
	defaultOpenAIModel = "gpt-4o-mini"

	openAIMaxTokens      = 900
	openAITimeoutSecs    = 60
	openAIMaxRequestSize = 200000 // ~200KB
)

type openAIClient struct {
	sdk     *openai.Client
	model   string
	limiter *rate.Limiter
	logger  zerolog.Logger
}

// NewOpenAIFromEnv builds a Client around the go-openai SDK, reading
// OPENAI_API_KEY / OPENAI_MODEL from the environment.
func NewOpenAIFromEnv() (Client, error) {
	key := strings.TrimSpace(os.Getenv(envOpenAIAPIKey))
	if key == "" {
		return nil, fmt.Errorf("missing %s", envOpenAIAPIKey)
	}
	model := strings.TrimSpace(os.Getenv(envOpenAIModel))
	if model == "" {
		model = defaultOpenAIModel
	}
	model = strings.Trim(model, "\"'")

	cfg := openai.DefaultConfig(key)
	cfg.HTTPClient = &http.Client{Timeout: openAITimeoutSecs * time.Second}

	return &openAIClient{
		sdk:     openai.NewClientWithConfig(cfg),
		model:   model,
		limiter: rate.NewLimiter(rate.Limit(3), 6),
		logger:  zerolog.Nop(),
	}, nil
}

// NewOpenAIWithLogger creates a client with logger for detailed tracing.
func NewOpenAIWithLogger(logger zerolog.Logger) (Client, error) {
	client, err := NewOpenAIFromEnv()
	if err != nil {
		return nil, err
	}
	if oc, ok := client.(*openAIClient); ok {
		oc.logger = logger
	}
	return client, nil
}

func (c *openAIClient) Name() string { return c.model }

func (c *openAIClient) Generate(ctx context.Context, req Request) (Response, error) {
	if len(req.Messages) == 0 {
		return Response{}, errors.New("no messages")
	}

	for i, m := range req.Messages {
		if len(m.Content) > openAIMaxRequestSize {
			c.logger.Warn().Int("message_idx", i).Int("size", len(m.Content)).Msg("message too large, truncating")
			req.Messages[i].Content = m.Content[:openAIMaxRequestSize] + "... [truncated]"
		}
	}
	if len(req.System) > openAIMaxRequestSize {
		c.logger.Warn().Int("size", len(req.System)).Msg("system prompt too large, truncating")
		req.System = req.System[:openAIMaxRequestSize] + "... [truncated]"
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return Response{}, fmt.Errorf("rate limiter: %w", err)
	}

	messages := make([]openai.ChatCompletionMessage, 0, len(req.Messages)+1)
	if req.System != "" {
		messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: req.System})
	}
	for _, m := range req.Messages {
		role := openai.ChatMessageRoleUser
		if strings.EqualFold(m.Role, "assistant") {
			role = openai.ChatMessageRoleAssistant
		}
		messages = append(messages, openai.ChatCompletionMessage{Role: role, Content: m.Content})
	}

	tools := make([]openai.Tool, 0, len(req.Tools))
	for _, t := range req.Tools {
		tools = append(tools, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  t.InputSchema,
			},
		})
	}

	params := openai.ChatCompletionRequest{
		Model:       c.model,
		Messages:    messages,
		Temperature: req.Temperature,
		MaxTokens:   maxOf(req.MaxTokens, openAIMaxTokens),
	}
	if len(tools) > 0 {
		params.Tools = tools
	}

	c.logger.Debug().
		Str("model", c.model).
		Int("messages", len(messages)).
		Int("tools", len(tools)).
		Int("max_tokens", params.MaxTokens).
		Msg("openai API request")

	resp, err := c.sdk.CreateChatCompletion(ctx, params)
	if err != nil {
		c.logger.Error().Err(err).Msg("openai API error")
		return Response{}, fmt.Errorf("openai: %w", err)
	}
	if len(resp.Choices) == 0 {
		return Response{}, fmt.Errorf("no choices in response")
	}

	choice := resp.Choices[0]
	if len(choice.Message.ToolCalls) > 0 {
		call := choice.Message.ToolCalls[0]
		toolResponse := map[string]any{"action": call.Function.Name, "input": map[string]any{}}
		if call.Function.Arguments != "" {
			var args map[string]any
			if err := json.Unmarshal([]byte(call.Function.Arguments), &args); err == nil {
				toolResponse["input"] = args
			}
		}
		textBytes, err := json.Marshal(toolResponse)
		if err != nil {
			return Response{}, fmt.Errorf("marshal tool call: %w", err)
		}
		return Response{Text: string(textBytes)}, nil
	}

	text := choice.Message.Content
	if text == "" {
		return Response{}, fmt.Errorf("empty response content")
	}

	c.logger.Debug().
		Str("finish_reason", string(choice.FinishReason)).
		Int("prompt_tokens", resp.Usage.PromptTokens).
		Int("completion_tokens", resp.Usage.CompletionTokens).
		Msg("openai API success")

	return Response{Text: text}, nil
}
