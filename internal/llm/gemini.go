package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/cloudwego/eino-ext/components/model/gemini"
	"github.com/cloudwego/eino/schema"
	"google.golang.org/genai"
)

const defaultGeminiModel = "gemini-2.5-flash"

// GeminiCompleter drives Gemini through the eino chat model component.
type GeminiCompleter struct {
	model *gemini.ChatModel
}

func NewGeminiCompleter(ctx context.Context, cfg Config) (*GeminiCompleter, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("api key is required")
	}
	clientCfg := &genai.ClientConfig{
		APIKey:  strings.TrimSpace(cfg.APIKey),
		Backend: genai.BackendGeminiAPI,
	}
	if baseURL := strings.TrimSpace(cfg.BaseURL); baseURL != "" {
		clientCfg.HTTPOptions.BaseURL = baseURL
	}
	client, err := genai.NewClient(ctx, clientCfg)
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}

	modelName := strings.TrimSpace(cfg.Model)
	if modelName == "" {
		modelName = defaultGeminiModel
	}
	temperature := float32(cfg.Temperature)
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 2048
	}
	chatModel, err := gemini.NewChatModel(ctx, &gemini.Config{
		Client:      client,
		Model:       modelName,
		Temperature: &temperature,
		MaxTokens:   &maxTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("create gemini chat model: %w", err)
	}
	return &GeminiCompleter{model: chatModel}, nil
}

func (c *GeminiCompleter) Name() string {
	return ProviderGemini
}

func (c *GeminiCompleter) Complete(ctx context.Context, prompt Prompt) (string, error) {
	messages := make([]*schema.Message, 0, 2)
	if prompt.System != "" {
		messages = append(messages, schema.SystemMessage(prompt.System))
	}
	messages = append(messages, schema.UserMessage(prompt.User))

	reply, err := c.model.Generate(ctx, messages)
	if err != nil {
		if ctx.Err() != nil {
			return "", fmt.Errorf("gemini generate: %w", err)
		}
		// the genai client does not expose a stable status type through eino
		return "", &TransientError{Err: fmt.Errorf("gemini generate: %w", err)}
	}
	if reply == nil {
		return "", fmt.Errorf("empty gemini response")
	}
	return reply.Content, nil
}
