package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var allVars = []string{
	"BOT_TOKEN", "CLIENT_ID", "GUILD_ID", "LOG_CHANNEL_ID", "LLM_BACKEND", "OPENAI_API_KEY",
	"OPENAI_MODEL", "OPENAI_VISION_MODEL", "OPENAI_BASE_URL", "ANTHROPIC_API_KEY", "CLAUDE_MODEL",
	"LLM_REQUESTS_PER_MINUTE", "USER_REQUESTS_PER_MINUTE", "ACTIVITY_BACKEND", "AWS_REGION",
	"DYNAMODB_LOGS_TABLE", "DYNAMODB_SESSIONS_TABLE", "DYNAMODB_ENDPOINT", "DATABASE_PATH",
	"SNAPSHOT_PATH", "SETTINGS_PATH", "HTTP_ADDR", "LOG_LEVEL", "LOG_FORMAT",
}

// cleanEnv blanks every variable for the test and runs from an empty
// directory so a developer's .env is not picked up.
func cleanEnv(t *testing.T) {
	t.Helper()
	for _, k := range allVars {
		t.Setenv(k, "")
		require.NoError(t, os.Unsetenv(k))
	}
	t.Chdir(t.TempDir())
}

func TestLoad_Defaults(t *testing.T) {
	cleanEnv(t)
	t.Setenv("BOT_TOKEN", "token-abcdefghijkl")
	t.Setenv("CLIENT_ID", "123")
	t.Setenv("OPENAI_API_KEY", "sk-test-1234567890")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, BackendOpenAI, cfg.LLMBackend)
	assert.Equal(t, "gpt-4o-mini", cfg.OpenAIModel)
	assert.Equal(t, "gpt-4o", cfg.OpenAIVisionModel)
	assert.Equal(t, "claude-3-5-haiku-latest", cfg.ClaudeModel)
	assert.Equal(t, 60, cfg.LLMRequestsPerMinute)
	assert.Equal(t, 10, cfg.UserRequestsPerMinute)
	assert.Equal(t, BackendDynamoDB, cfg.ActivityBackend)
	assert.Equal(t, "WorkLogs", cfg.DynamoLogsTable)
	assert.Equal(t, "WorkSessions", cfg.DynamoSessionsTable)
	assert.Equal(t, "./ferret9.db", cfg.DatabasePath)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "text", cfg.LogFormat)
}

func TestLoad_EnvFile(t *testing.T) {
	cleanEnv(t)
	path := filepath.Join(t.TempDir(), "test.env")
	require.NoError(t, os.WriteFile(path, []byte(
		"BOT_TOKEN=file-token-123456\nCLIENT_ID=77\nLLM_BACKEND=claude\nANTHROPIC_API_KEY=sk-ant-0987654321\nACTIVITY_BACKEND=sqlite\n",
	), 0o600))
	t.Setenv("CLIENT_ID", "from-env")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "file-token-123456", cfg.BotToken)
	assert.Equal(t, "from-env", cfg.ClientID, "process env wins over the file")
	assert.Equal(t, BackendClaude, cfg.LLMBackend)
	assert.Equal(t, BackendSQLite, cfg.ActivityBackend)
}

func TestLoad_MissingEnvFile(t *testing.T) {
	cleanEnv(t)
	_, err := Load(filepath.Join(t.TempDir(), "nope.env"))
	require.Error(t, err)
}

func TestLoad_ValidationErrors(t *testing.T) {
	cleanEnv(t)
	t.Setenv("LLM_BACKEND", "llama")
	t.Setenv("LOG_FORMAT", "xml")

	_, err := Load("")
	var verr *ValidationError
	require.True(t, errors.As(err, &verr), "got %v", err)
	assert.Contains(t, verr.Problems, "BOT_TOKEN is required")
	assert.Contains(t, verr.Problems, "CLIENT_ID is required")
	assert.Contains(t, err.Error(), "LLM_BACKEND must be one of [openai claude]")
	assert.Contains(t, err.Error(), "LOG_FORMAT")
}

func TestLoad_BackendKeyRequired(t *testing.T) {
	cleanEnv(t)
	t.Setenv("BOT_TOKEN", "token-abcdefghijkl")
	t.Setenv("CLIENT_ID", "123")
	t.Setenv("LLM_BACKEND", "claude")
	t.Setenv("OPENAI_API_KEY", "")

	_, err := Load("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ANTHROPIC_API_KEY is required")
	assert.NotContains(t, err.Error(), "OPENAI_API_KEY")
}

func TestLoadForCommands_ToleratesMissingLLMKey(t *testing.T) {
	cleanEnv(t)
	t.Setenv("BOT_TOKEN", "token-abcdefghijkl")
	t.Setenv("CLIENT_ID", "123")

	cfg, err := LoadForCommands("")
	require.NoError(t, err)
	assert.Equal(t, "123", cfg.ClientID)

	t.Setenv("BOT_TOKEN", "")
	_, err = LoadForCommands("")
	require.Error(t, err)
}

func TestDump_MasksSecrets(t *testing.T) {
	cfg := &Config{
		BotToken:     "MTIzNDU2Nzg5.abcdef.secretpart",
		OpenAIAPIKey: "sk-proj-abcdefgh1234",
		ClientID:     "123",
	}
	d := cfg.Dump()
	assert.Equal(t, "…part", d["BOT_TOKEN"])
	assert.Equal(t, "…1234", d["OPENAI_API_KEY"])
	assert.Equal(t, "123", d["CLIENT_ID"])
	assert.Equal(t, "", d["ANTHROPIC_API_KEY"])
}

func TestSettings_Defaults(t *testing.T) {
	s, err := LoadSettings("")
	require.NoError(t, err)
	assert.Equal(t, "Ferret9", s.BotName)
	assert.Equal(t, 10, s.History.MaxTurns)
	assert.Equal(t, 30*time.Minute, s.History.MaxAge.Std())
	assert.Equal(t, 10*time.Minute, s.History.SweepInterval.Std())
	assert.Equal(t, 1950, s.Chunk.MaxLength)
	assert.Equal(t, 500, s.LLM.MaxTokens)
	assert.InDelta(t, 0.7, s.LLM.Temperature, 1e-9)
	assert.Equal(t, 8, s.Report.TimezoneOffsetHours)
}

func TestSettings_Overrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
bot_name: Ferret
history:
  exempt_channels: ["111", "222"]
  max_age: 1h
roles:
  working: "r1"
  on_break: "r2"
llm:
  temperature: 0
`), 0o600))

	s, err := LoadSettings(path)
	require.NoError(t, err)
	assert.Equal(t, "Ferret", s.BotName)
	assert.Equal(t, time.Hour, s.History.MaxAge.Std())
	assert.Equal(t, 10, s.History.MaxTurns, "untouched keys keep defaults")
	assert.True(t, s.Exempt("222"))
	assert.False(t, s.Exempt("333"))
	assert.Equal(t, "r1", s.Roles.Working)
	assert.Zero(t, s.LLM.Temperature)
	assert.Equal(t, 500, s.LLM.MaxTokens)
}

func TestSettings_Invalid(t *testing.T) {
	tests := map[string]string{
		"unknown key":  "bot_nmae: x\n",
		"bad duration": "history:\n  max_age: soon\n",
		"too long":     "chunk:\n  max_length: 2500\n",
		"one turn":     "history:\n  max_turns: 1\n",
		"hot":          "llm:\n  temperature: 3\n",
	}
	for name, doc := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := ParseSettings([]byte(doc))
			assert.Error(t, err)
		})
	}
}

func TestSettings_EmptyDocument(t *testing.T) {
	s, err := ParseSettings(nil)
	require.NoError(t, err)
	assert.Equal(t, DefaultSettings(), s)
}
