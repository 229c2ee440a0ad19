package llm

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// ClaudeConfig configures the Anthropic backend.
type ClaudeConfig struct {
	APIKey string
	// Model defaults to claude-3-5-haiku-latest.
	Model      string
	BaseURL    string
	HTTPClient *http.Client
}

// Claude generates replies with the Anthropic messages API.
type Claude struct {
	client anthropic.Client
	model  string
}

var _ Generator = (*Claude)(nil)

// NewClaude creates a Claude backend. The SDK's own retries are disabled;
// failures surface as a GenerationError like every other backend.
func NewClaude(cfg ClaudeConfig) *Claude {
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	if cfg.HTTPClient != nil {
		opts = append(opts, option.WithHTTPClient(cfg.HTTPClient))
	}
	if cfg.Model == "" {
		cfg.Model = "claude-3-5-haiku-latest"
	}
	return &Claude{
		client: anthropic.NewClient(opts...),
		model:  cfg.Model,
	}
}

// Name implements Generator.
func (c *Claude) Name() string { return "claude" }

// Generate implements Generator.
func (c *Claude) Generate(ctx context.Context, req Request) (string, error) {
	system, msgs := claudeMessages(req)
	if len(msgs) == 0 {
		return "", newGenerationError(c.Name(), 0, errors.New("no user message"))
	}

	params := anthropic.MessageNewParams{
		Model:       anthropic.Model(c.model),
		MaxTokens:   int64(req.maxTokens()),
		Messages:    msgs,
		Temperature: anthropic.Float(req.temperature()),
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}

	resp, err := c.client.Messages.New(ctx, params)
	if err != nil {
		return "", newGenerationError(c.Name(), claudeStatus(err), err)
	}

	var b strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			b.WriteString(block.Text)
		}
	}
	text := strings.TrimSpace(b.String())
	if text == "" {
		return "", newGenerationError(c.Name(), 0, ErrEmptyResponse)
	}
	return text, nil
}

// claudeMessages lifts system turns into the system prompt and merges
// consecutive turns from the same role, which the messages API rejects.
// A history that starts with an assistant turn gets it dropped.
func claudeMessages(req Request) (string, []anthropic.MessageParam) {
	var system []string
	type turn struct {
		role  Role
		texts []string
	}
	var turns []turn
	for _, m := range req.Messages {
		if m.Role == RoleSystem {
			system = append(system, m.Content)
			continue
		}
		if len(turns) == 0 && m.Role == RoleAssistant {
			continue
		}
		if n := len(turns); n > 0 && turns[n-1].role == m.Role {
			turns[n-1].texts = append(turns[n-1].texts, m.Content)
			continue
		}
		turns = append(turns, turn{role: m.Role, texts: []string{m.Content}})
	}

	out := make([]anthropic.MessageParam, 0, len(turns))
	for i, t := range turns {
		blocks := []anthropic.ContentBlockParamUnion{anthropic.NewTextBlock(strings.Join(t.texts, "\n\n"))}
		if t.role == RoleAssistant {
			out = append(out, anthropic.NewAssistantMessage(blocks...))
			continue
		}
		if i == len(turns)-1 {
			for _, u := range req.Images {
				blocks = append(blocks, anthropic.NewImageBlock(anthropic.URLImageSourceParam{URL: u}))
			}
		}
		out = append(out, anthropic.NewUserMessage(blocks...))
	}
	return strings.Join(system, "\n\n"), out
}

func claudeStatus(err error) int {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode
	}
	return 0
}
