package llm

import (
	"context"
	"strings"
	"sync"

	"github.com/mrsingh-rishi/voice-bot/config"
	"github.com/pkg/errors"
	"github.com/sashabaranov/go-openai"
)

// OpenAIClient answers a caller's turn with a chat completion. It keeps the
// conversation history of one call, so each session gets its own client.
type OpenAIClient struct {
	Client *openai.Client
	Model  string

	mu       sync.Mutex
	Messages []openai.ChatCompletionMessage
}

func NewOpenAIClient(cfg config.OpenAIConfig) (*OpenAIClient, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("API key is required")
	}
	if cfg.Model == "" {
		return nil, errors.New("model is required")
	}

	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}

	return &OpenAIClient{
		Client: openai.NewClientWithConfig(clientConfig),
		Model:  cfg.Model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: cfg.SystemPrompt},
		},
	}, nil
}

// Compose returns the assistant's answer to input. The exchange is only added
// to the history when the request succeeds.
func (c *OpenAIClient) Compose(ctx context.Context, input string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	messages := append(c.Messages[:len(c.Messages):len(c.Messages)], openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: input,
	})

	resp, err := c.Client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:    c.Model,
		Messages: messages,
	})
	if err != nil {
		return "", errors.Wrap(err, "openai chat completion")
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("openai returned no choices")
	}

	answer := strings.TrimSpace(resp.Choices[0].Message.Content)
	if answer == "" {
		return "", errors.New("openai returned an empty answer")
	}
	c.Messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleAssistant,
		Content: answer,
	})
	return answer, nil
}

// Echo returns the caller's own words as the reply text.
type Echo struct{}

func (Echo) Compose(_ context.Context, input string) (string, error) {
	return input, nil
}
