package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/mailpilot-ai/mailpilot/internal/httpkit"
)

// DefaultBaseURL is the hosted OpenAI endpoint. Any Chat Completions
// compatible server works (the path suffixes are the standard ones).
const DefaultBaseURL = "https://api.openai.com/v1"

const (
	// toolTemperature keeps tool-selection turns deterministic-ish.
	toolTemperature = 0.2

	// replyTemperature matches the tone expected of drafted email text.
	replyTemperature = 0.7
)

// OpenAIClient talks to an OpenAI-compatible Chat Completions API.
type OpenAIClient struct {
	apiKey     string
	baseURL    string
	model      string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewOpenAIClient creates a client for the given endpoint and model.
// baseURL may be empty for the hosted OpenAI API.
func NewOpenAIClient(apiKey, baseURL, model string, logger *slog.Logger) *OpenAIClient {
	if logger == nil {
		logger = slog.Default()
	}
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	// Completions can sit for a while before headers arrive on long
	// prompts. Give the transport a generous response header timeout
	// and rely on ctx deadlines for overall control.
	t := httpkit.NewTransport()
	t.ResponseHeaderTimeout = 120 * time.Second

	return &OpenAIClient{
		apiKey:  apiKey,
		baseURL: strings.TrimRight(baseURL, "/"),
		model:   model,
		logger:  logger.With("provider", "openai"),
		httpClient: httpkit.NewClient(
			httpkit.WithTimeout(0),
			httpkit.WithTransport(t),
			httpkit.WithRetry(2, time.Second),
			httpkit.WithLogger(logger),
		),
	}
}

// Chat Completions wire types.

type chatRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Tools       []ToolDef `json:"tools,omitempty"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
	Temperature float64   `json:"temperature"`
}

type chatChoice struct {
	Index        int     `json:"index"`
	Message      Message `json:"message"`
	FinishReason string  `json:"finish_reason"`
}

type chatUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

type chatResponseBody struct {
	ID      string       `json:"id"`
	Model   string       `json:"model"`
	Choices []chatChoice `json:"choices"`
	Usage   chatUsage    `json:"usage"`
}

// Chat sends the conversation with tool definitions and returns the
// assistant message verbatim.
func (c *OpenAIClient) Chat(ctx context.Context, messages []Message, tools []ToolDef, maxTokens int) (*ChatResponse, error) {
	req := chatRequest{
		Model:       c.model,
		Messages:    messages,
		Tools:       tools,
		MaxTokens:   maxTokens,
		Temperature: toolTemperature,
	}

	c.logger.Debug("chat request",
		"model", c.model,
		"messages", len(messages),
		"tools", len(tools),
		"maxTokens", maxTokens,
	)

	body, err := c.post(ctx, req)
	if err != nil {
		return nil, completionErr("chat", err)
	}

	if len(body.Choices) == 0 {
		return nil, completionErr("chat", fmt.Errorf("response has no choices"))
	}
	choice := body.Choices[0]

	c.logger.Debug("chat response",
		"finishReason", choice.FinishReason,
		"toolCalls", len(choice.Message.ToolCalls),
		"promptTokens", body.Usage.PromptTokens,
		"completionTokens", body.Usage.CompletionTokens,
	)

	return &ChatResponse{
		Model:            body.Model,
		Message:          choice.Message,
		PromptTokens:     body.Usage.PromptTokens,
		CompletionTokens: body.Usage.CompletionTokens,
	}, nil
}

// Complete runs a single system+user exchange with no tools and returns
// the trimmed text.
func (c *OpenAIClient) Complete(ctx context.Context, system, user string, maxTokens int) (string, error) {
	req := chatRequest{
		Model: c.model,
		Messages: []Message{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
		MaxTokens:   maxTokens,
		Temperature: replyTemperature,
	}

	body, err := c.post(ctx, req)
	if err != nil {
		return "", completionErr("complete", err)
	}
	if len(body.Choices) == 0 {
		return "", completionErr("complete", fmt.Errorf("response has no choices"))
	}
	return strings.TrimSpace(body.Choices[0].Message.Content), nil
}

// Ping verifies the endpoint is reachable and the key is accepted.
func (c *OpenAIClient) Ping(ctx context.Context) error {
	httpReq, err := http.NewRequestWithContext(ctx, "GET", c.baseURL+"/models", nil)
	if err != nil {
		return completionErr("ping", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return completionErr("ping", err)
	}
	defer httpkit.DrainAndClose(resp.Body, 4096)

	if resp.StatusCode != http.StatusOK {
		return completionErr("ping", fmt.Errorf("API returned %d", resp.StatusCode))
	}
	return nil
}

func (c *OpenAIClient) post(ctx context.Context, req chatRequest) (*chatResponseBody, error) {
	jsonData, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	c.logger.Log(ctx, LevelTrace, "request payload", "json", string(jsonData))

	httpReq, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/chat/completions", bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		errBody := httpkit.ReadErrorBody(resp.Body, 4096)
		c.logger.Error("API error", "status", resp.StatusCode, "body", errBody)
		if resp.StatusCode == http.StatusTooManyRequests {
			return nil, fmt.Errorf("rate limit exceeded: %s", errBody)
		}
		return nil, fmt.Errorf("API error %d: %s", resp.StatusCode, errBody)
	}

	var body chatResponseBody
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	c.logger.Log(ctx, LevelTrace, "response payload", "id", body.ID, "model", body.Model)

	return &body, nil
}
