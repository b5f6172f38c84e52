package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sashabaranov/go-openai"

	"github.com/randalmurphal/flowmind/pkg/flowmind/conversation"
)

// GenerateRequest is the input of an llm node.
type GenerateRequest struct {
	Provider string
	Model    string
	Query    string
	// Context is the knowledge and search text gathered so far.
	Context string
	History []conversation.Turn
}

// Generator produces the answer of an llm node.
type Generator interface {
	Generate(ctx context.Context, req GenerateRequest) (string, error)
}

// BuildPrompt renders the prompt sent to a model.
func BuildPrompt(query, context string) string {
	if strings.TrimSpace(context) == "" {
		context = "No additional context provided."
	}
	return "Use the following background information to help answer the user query accurately.\n\n" +
		"Background Context:\n" + context + "\n\n" +
		"User Question: " + query + "\n\n" +
		"Answer:"
}

// EchoGenerator answers without a model. It returns the query followed by
// any gathered context, which keeps keyless runs deterministic.
type EchoGenerator struct{}

// Generate implements Generator.
func (EchoGenerator) Generate(_ context.Context, req GenerateRequest) (string, error) {
	answer := "echo: " + req.Query
	if req.Context != "" {
		answer += "\n\n" + req.Context
	}
	return answer, nil
}

// OpenAIGenerator calls the OpenAI chat completion API.
type OpenAIGenerator struct {
	client *openai.Client
	model  string
}

// OpenAIOption configures an OpenAIGenerator.
type OpenAIOption func(*openai.ClientConfig)

// WithOpenAIBaseURL overrides the API base URL.
func WithOpenAIBaseURL(url string) OpenAIOption {
	return func(c *openai.ClientConfig) {
		c.BaseURL = url
	}
}

// NewOpenAIGenerator creates a generator. model is used for nodes whose
// provider is not openai, such as canvas nodes still set to gemini.
func NewOpenAIGenerator(apiKey, model string, opts ...OpenAIOption) *OpenAIGenerator {
	cfg := openai.DefaultConfig(apiKey)
	for _, opt := range opts {
		opt(&cfg)
	}
	if model == "" {
		model = DefaultModel
	}
	return &OpenAIGenerator{client: openai.NewClientWithConfig(cfg), model: model}
}

// Generate implements Generator.
func (g *OpenAIGenerator) Generate(ctx context.Context, req GenerateRequest) (string, error) {
	model := g.model
	if strings.EqualFold(req.Provider, "openai") && req.Model != "" {
		model = req.Model
	}

	history := priorTurns(req)
	messages := make([]openai.ChatCompletionMessage, 0, len(history)+1)
	for _, t := range history {
		role := openai.ChatMessageRoleUser
		if t.Role == conversation.RoleAssistant {
			role = openai.ChatMessageRoleAssistant
		}
		messages = append(messages, openai.ChatCompletionMessage{Role: role, Content: t.Content})
	}
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: BuildPrompt(req.Query, req.Context),
	})

	resp, err := g.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:    model,
		Messages: messages,
	})
	if err != nil {
		return "", fmt.Errorf("create chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("no choices returned from API")
	}
	return resp.Choices[0].Message.Content, nil
}

// priorTurns returns the history without the pending message. Clients send
// it as the last history turn; the prompt carries it instead.
func priorTurns(req GenerateRequest) []conversation.Turn {
	history := req.History
	if n := len(history); n > 0 && history[n-1].Role == conversation.RoleUser && history[n-1].Content == req.Query {
		history = history[:n-1]
	}
	return history
}
