// Package llm wraps the text-completion service used to pick the catalog page
// and to translate product records.
package llm

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/aluiziolira/go-scrape-catalog/config"
	openai "github.com/sashabaranov/go-openai"
)

// Prompt is a single system+user exchange.
type Prompt struct {
	System      string
	User        string
	Temperature float32
	MaxTokens   int
}

// Completer returns the text answer for a prompt.
type Completer interface {
	Complete(ctx context.Context, p Prompt) (string, error)
}

// ServiceError reports a failed or unusable answer from the text service.
type ServiceError struct {
	Op  string
	Err error
}

func (e *ServiceError) Error() string {
	return fmt.Sprintf("llm %s: %v", e.Op, e.Err)
}

func (e *ServiceError) Unwrap() error {
	return e.Err
}

// OpenAIClient talks to an OpenAI-compatible chat completion endpoint.
type OpenAIClient struct {
	client *openai.Client
	model  string
}

// NewOpenAIClient builds a client from the run configuration.
func NewOpenAIClient(cfg *config.Config) *OpenAIClient {
	return NewOpenAIClientWithHTTP(cfg, &http.Client{Timeout: cfg.LLMTimeout})
}

// NewOpenAIClientWithHTTP is NewOpenAIClient with a caller-supplied HTTP client.
func NewOpenAIClientWithHTTP(cfg *config.Config, httpClient *http.Client) *OpenAIClient {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.LLMBaseURL != "" {
		clientCfg.BaseURL = strings.TrimRight(cfg.LLMBaseURL, "/")
	}
	clientCfg.HTTPClient = httpClient
	return &OpenAIClient{
		client: openai.NewClientWithConfig(clientCfg),
		model:  cfg.Model,
	}
}

// Complete sends the prompt and returns the first choice's content.
func (c *OpenAIClient) Complete(ctx context.Context, p Prompt) (string, error) {
	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: p.System},
			{Role: openai.ChatMessageRoleUser, Content: p.User},
		},
		Temperature: p.Temperature,
		MaxTokens:   p.MaxTokens,
	})
	if err != nil {
		return "", &ServiceError{Op: "chat completion", Err: err}
	}
	if len(resp.Choices) == 0 {
		return "", &ServiceError{Op: "chat completion", Err: fmt.Errorf("no choices returned")}
	}
	return resp.Choices[0].Message.Content, nil
}
