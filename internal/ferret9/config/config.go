// Package config loads the bot's environment configuration and its YAML
// settings file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"github.com/f9global/ferret9/common/redact"
)

// Backends.
const (
	BackendOpenAI   = "openai"
	BackendClaude   = "claude"
	BackendDynamoDB = "dynamodb"
	BackendSQLite   = "sqlite"
)

// Config is the process environment.
type Config struct {
	BotToken     string `envconfig:"BOT_TOKEN" validate:"required"`
	ClientID     string `envconfig:"CLIENT_ID" validate:"required"`
	GuildID      string `envconfig:"GUILD_ID"`
	LogChannelID string `envconfig:"LOG_CHANNEL_ID"`

	LLMBackend        string `envconfig:"LLM_BACKEND" default:"openai" validate:"oneof=openai claude"`
	OpenAIAPIKey      string `envconfig:"OPENAI_API_KEY" validate:"required_if=LLMBackend openai"`
	OpenAIModel       string `envconfig:"OPENAI_MODEL" default:"gpt-4o-mini"`
	OpenAIVisionModel string `envconfig:"OPENAI_VISION_MODEL" default:"gpt-4o"`
	OpenAIBaseURL     string `envconfig:"OPENAI_BASE_URL" validate:"omitempty,url"`
	AnthropicAPIKey   string `envconfig:"ANTHROPIC_API_KEY" validate:"required_if=LLMBackend claude"`
	ClaudeModel       string `envconfig:"CLAUDE_MODEL" default:"claude-3-5-haiku-latest"`

	LLMRequestsPerMinute  int `envconfig:"LLM_REQUESTS_PER_MINUTE" default:"60" validate:"gte=1"`
	UserRequestsPerMinute int `envconfig:"USER_REQUESTS_PER_MINUTE" default:"10" validate:"gte=1"`

	ActivityBackend     string `envconfig:"ACTIVITY_BACKEND" default:"dynamodb" validate:"oneof=dynamodb sqlite"`
	AWSRegion           string `envconfig:"AWS_REGION" default:"us-east-1"`
	DynamoLogsTable     string `envconfig:"DYNAMODB_LOGS_TABLE" default:"WorkLogs" validate:"required"`
	DynamoSessionsTable string `envconfig:"DYNAMODB_SESSIONS_TABLE" default:"WorkSessions" validate:"required"`
	DynamoEndpoint      string `envconfig:"DYNAMODB_ENDPOINT" validate:"omitempty,url"`

	DatabasePath string `envconfig:"DATABASE_PATH" default:"./ferret9.db" validate:"required"`
	SnapshotPath string `envconfig:"SNAPSHOT_PATH"`
	SettingsPath string `envconfig:"SETTINGS_PATH"`
	HTTPAddr     string `envconfig:"HTTP_ADDR" validate:"omitempty,hostname_port"`

	LogLevel  string `envconfig:"LOG_LEVEL" default:"info" validate:"oneof=debug info warn error"`
	LogFormat string `envconfig:"LOG_FORMAT" default:"text" validate:"oneof=text json"`
}

// Load reads envFile (or ./.env when envFile is empty and the file exists)
// into the environment, then decodes and validates Config. Variables that
// are already set win over the file.
func Load(envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			return nil, fmt.Errorf("config: load %s: %w", envFile, err)
		}
	} else if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("config: load .env: %w", err)
	}

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadForCommands is Load without the LLM key requirements, for commands
// that only talk to Discord or the activity store.
func LoadForCommands(envFile string) (*Config, error) {
	cfg, err := Load(envFile)
	if err == nil {
		return cfg, nil
	}
	var verr *ValidationError
	if !errors.As(err, &verr) || !verr.onlyLLMKeys() {
		return nil, err
	}
	return verr.cfg, nil
}

// Validate checks required fields and enumerations.
func (c *Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}
	var ves validator.ValidationErrors
	if !errors.As(err, &ves) {
		return fmt.Errorf("config: %w", err)
	}
	out := &ValidationError{cfg: c}
	for _, fe := range ves {
		out.Problems = append(out.Problems, describe(fe))
		out.fields = append(out.fields, fe.Field())
	}
	return out
}

// Dump returns every variable keyed by its environment name, with secrets
// masked, for the startup log.
func (c *Config) Dump() map[string]any {
	m := make(map[string]any)
	v := reflect.ValueOf(*c)
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		name := t.Field(i).Tag.Get("envconfig")
		if name == "" {
			continue
		}
		m[name] = v.Field(i).Interface()
	}
	return redact.Map(m)
}

// Secrets lists values that must never reach a log line.
func (c *Config) Secrets() []string {
	return []string{c.BotToken, c.OpenAIAPIKey, c.AnthropicAPIKey}
}

// ValidationError lists every invalid variable.
type ValidationError struct {
	Problems []string
	fields   []string
	cfg      *Config
}

func (e *ValidationError) Error() string {
	return "config: " + strings.Join(e.Problems, "; ")
}

func (e *ValidationError) onlyLLMKeys() bool {
	for _, f := range e.fields {
		if f != "OPENAI_API_KEY" && f != "ANTHROPIC_API_KEY" {
			return false
		}
	}
	return true
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// Report env var names instead of Go field names.
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		if name := f.Tag.Get("envconfig"); name != "" {
			return name
		}
		if name, _, _ := strings.Cut(f.Tag.Get("yaml"), ","); name != "" && name != "-" {
			return name
		}
		return f.Name
	})
	return v
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required", "required_if":
		return fe.Field() + " is required"
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s], got %q", fe.Field(), fe.Param(), fmt.Sprint(fe.Value()))
	case "url", "hostname_port":
		return fmt.Sprintf("%s is not a valid %s: %q", fe.Field(), fe.Tag(), fmt.Sprint(fe.Value()))
	default:
		return fmt.Sprintf("%s failed %s=%s (got %v)", fe.Field(), fe.Tag(), fe.Param(), fe.Value())
	}
}
