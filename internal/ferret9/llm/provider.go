// Package llm is the text-generation layer behind Ferret9's replies.
//
// A Generator turns a channel history (system preamble first, newest user
// turn last) into a reply. Two backends are provided: OpenAI chat
// completions and Anthropic Claude messages. Both report failures as a
// *GenerationError so callers can log the backend and status code and then
// show FallbackMessage to the user. Generators never retry.
package llm

import (
	"context"
	"errors"
	"fmt"
)

const (
	// FallbackMessage is shown when generation fails for any reason.
	FallbackMessage = "I'm sorry, I encountered an error while processing your request. Please try again later."

	// RateLimitedMessage is shown when a user exceeds their per-minute quota.
	RateLimitedMessage = "⏳ You're sending messages a little too fast. Please wait a moment and try again."

	// DefaultImagePrompt stands in for the text of image-only messages.
	DefaultImagePrompt = "What do you see in this image?"

	DefaultMaxTokens   = 500
	DefaultTemperature = 0.7
)

var (
	// ErrRateLimited matches a GenerationError caused by HTTP 429.
	ErrRateLimited = errors.New("llm: upstream rate limit exceeded")

	// ErrEmptyResponse matches a GenerationError for a reply with no text.
	ErrEmptyResponse = errors.New("llm: empty response")
)

// Role of a message sent to the model.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one entry of the prompt.
type Message struct {
	Role    Role
	Content string
}

// Request is the input to a single generation call.
type Request struct {
	// Messages is the full prompt. The last entry is the user turn being
	// answered.
	Messages []Message
	// Images are URLs attached to the last user turn.
	Images []string
	// MaxTokens caps the reply length. Zero means DefaultMaxTokens.
	MaxTokens int
	// Temperature is passed through unchanged. Zero means DefaultTemperature.
	Temperature float64
}

func (r Request) maxTokens() int {
	if r.MaxTokens <= 0 {
		return DefaultMaxTokens
	}
	return r.MaxTokens
}

func (r Request) temperature() float64 {
	if r.Temperature <= 0 {
		return DefaultTemperature
	}
	return r.Temperature
}

// Generator produces a reply for a prompt.
type Generator interface {
	Generate(ctx context.Context, req Request) (string, error)
	// Name identifies the backend in logs and on /status.
	Name() string
}

// GenerationError wraps any failure of a backend.
type GenerationError struct {
	Backend    string
	StatusCode int // HTTP status when known, otherwise 0
	Err        error
}

func (e *GenerationError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("llm: %s generation failed (HTTP %d): %v", e.Backend, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("llm: %s generation failed: %v", e.Backend, e.Err)
}

func (e *GenerationError) Unwrap() error { return e.Err }

// Is lets errors.Is(err, ErrRateLimited) match on the status code.
func (e *GenerationError) Is(target error) bool {
	return target == ErrRateLimited && e.StatusCode == 429
}

// newGenerationError builds a GenerationError, keeping an existing one intact.
func newGenerationError(backend string, status int, err error) error {
	var ge *GenerationError
	if errors.As(err, &ge) {
		return err
	}
	return &GenerationError{Backend: backend, StatusCode: status, Err: err}
}
