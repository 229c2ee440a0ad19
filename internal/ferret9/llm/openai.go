package llm

import (
	"context"
	"errors"
	"net/http"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAIConfig configures the OpenAI backend.
type OpenAIConfig struct {
	APIKey string
	// Model answers text-only prompts. Default: gpt-4o-mini.
	Model string
	// VisionModel answers prompts with images. Default: gpt-4o.
	VisionModel string
	// BaseURL overrides the API endpoint (tests, proxies).
	BaseURL string
	// HTTPClient overrides the transport.
	HTTPClient *http.Client
}

// OpenAI generates replies with the chat completions API.
type OpenAI struct {
	client      *openai.Client
	model       string
	visionModel string
}

var _ Generator = (*OpenAI)(nil)

// NewOpenAI creates an OpenAI backend.
func NewOpenAI(cfg OpenAIConfig) *OpenAI {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}
	if cfg.HTTPClient != nil {
		clientCfg.HTTPClient = cfg.HTTPClient
	}
	if cfg.Model == "" {
		cfg.Model = openai.GPT4oMini
	}
	if cfg.VisionModel == "" {
		cfg.VisionModel = openai.GPT4o
	}
	return &OpenAI{
		client:      openai.NewClientWithConfig(clientCfg),
		model:       cfg.Model,
		visionModel: cfg.VisionModel,
	}
}

// Name implements Generator.
func (o *OpenAI) Name() string { return "openai" }

// Generate implements Generator. Images switch the call to the vision model
// and are sent as image_url parts of the last user message.
func (o *OpenAI) Generate(ctx context.Context, req Request) (string, error) {
	model := o.model
	if len(req.Images) > 0 {
		model = o.visionModel
	}

	resp, err := o.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       model,
		Messages:    openAIMessages(req),
		MaxTokens:   req.maxTokens(),
		Temperature: float32(req.temperature()),
	})
	if err != nil {
		return "", newGenerationError(o.Name(), openAIStatus(err), err)
	}
	if len(resp.Choices) == 0 {
		return "", newGenerationError(o.Name(), 0, ErrEmptyResponse)
	}
	text := strings.TrimSpace(resp.Choices[0].Message.Content)
	if text == "" {
		return "", newGenerationError(o.Name(), 0, ErrEmptyResponse)
	}
	return text, nil
}

func openAIMessages(req Request) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(req.Messages))
	last := len(req.Messages) - 1
	for i, m := range req.Messages {
		msg := openai.ChatCompletionMessage{Role: openAIRole(m.Role)}
		if i == last && m.Role == RoleUser && len(req.Images) > 0 {
			parts := []openai.ChatMessagePart{{Type: openai.ChatMessagePartTypeText, Text: m.Content}}
			for _, u := range req.Images {
				parts = append(parts, openai.ChatMessagePart{
					Type:     openai.ChatMessagePartTypeImageURL,
					ImageURL: &openai.ChatMessageImageURL{URL: u, Detail: openai.ImageURLDetailAuto},
				})
			}
			msg.MultiContent = parts
		} else {
			msg.Content = m.Content
		}
		out = append(out, msg)
	}
	return out
}

func openAIRole(r Role) string {
	switch r {
	case RoleSystem:
		return openai.ChatMessageRoleSystem
	case RoleAssistant:
		return openai.ChatMessageRoleAssistant
	default:
		return openai.ChatMessageRoleUser
	}
}

func openAIStatus(err error) int {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode
	}
	return 0
}
