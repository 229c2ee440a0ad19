package redact_test

import (
	"testing"

	"github.com/f9global/ferret9/common/redact"
)

func TestString(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		secrets []string
		want    string
	}{
		{
			name:    "bot token in error",
			in:      "websocket: bad auth Bot MTIzNDU2.abc.def",
			secrets: []string{"MTIzNDU2.abc.def"},
			want:    "websocket: bad auth Bot [REDACTED]",
		},
		{
			name:    "short values are ignored",
			in:      "key abc",
			secrets: []string{"abc"},
			want:    "key abc",
		},
		{
			name:    "several secrets",
			in:      "openai=sk-test-1234 claude=sk-ant-5678",
			secrets: []string{"sk-test-1234", "sk-ant-5678"},
			want:    "openai=[REDACTED] claude=[REDACTED]",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := redact.String(tt.in, tt.secrets...); got != tt.want {
				t.Errorf("String() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestMask(t *testing.T) {
	if got := redact.Mask(""); got != "" {
		t.Errorf("Mask(\"\") = %q, want empty", got)
	}
	if got := redact.Mask("short"); got != "[REDACTED]" {
		t.Errorf("Mask(short) = %q", got)
	}
	if got := redact.Mask("sk-proj-abcdefgh3xQz"); got != "…3xQz" {
		t.Errorf("Mask() = %q, want %q", got, "…3xQz")
	}
}

func TestMap(t *testing.T) {
	in := map[string]any{
		"BOT_TOKEN":      "MTIzNDU2Nzg5.token",
		"OPENAI_API_KEY": "sk-abcdefghijkl",
		"AWS_REGION":     "us-east-1",
		"HISTORY":        10,
	}
	out := redact.Map(in)

	if out["BOT_TOKEN"] != "…oken" {
		t.Errorf("BOT_TOKEN = %v", out["BOT_TOKEN"])
	}
	if out["OPENAI_API_KEY"] != "…ijkl" {
		t.Errorf("OPENAI_API_KEY = %v", out["OPENAI_API_KEY"])
	}
	if out["AWS_REGION"] != "us-east-1" {
		t.Errorf("AWS_REGION should be untouched, got %v", out["AWS_REGION"])
	}
	if out["HISTORY"] != 10 {
		t.Errorf("HISTORY should be untouched, got %v", out["HISTORY"])
	}
	if in["BOT_TOKEN"] != "MTIzNDU2Nzg5.token" {
		t.Error("input map must not be modified")
	}
}
