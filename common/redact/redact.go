// Package redact keeps bot tokens and API keys out of logs and out of the
// activity log channel.
package redact

import (
	"strings"
	"unicode/utf8"
)

const placeholder = "[REDACTED]"

// minSecretLen is the shortest value String will replace. Shorter values
// match too much ordinary text.
const minSecretLen = 4

// String replaces every occurrence of the given secrets in s.
//
//	slog.Warn("discord: open failed", "err", redact.String(err.Error(), cfg.BotToken))
func String(s string, secrets ...string) string {
	for _, v := range secrets {
		if len(v) < minSecretLen {
			continue
		}
		s = strings.ReplaceAll(s, v, placeholder)
	}
	return s
}

// Mask shortens a secret to its last four characters so operators can tell
// which key is configured without seeing it, e.g. "…3xQz".
func Mask(secret string) string {
	if secret == "" {
		return ""
	}
	n := utf8.RuneCountInString(secret)
	if n <= 8 {
		return placeholder
	}
	r := []rune(secret)
	return "…" + string(r[n-4:])
}

// Map returns a copy of m in which every non-empty string value stored
// under a secret-looking key is masked.
func Map(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		if s, ok := v.(string); ok && s != "" && sensitiveKey(k) {
			out[k] = Mask(s)
			continue
		}
		out[k] = v
	}
	return out
}

func sensitiveKey(key string) bool {
	k := strings.ToLower(key)
	for _, word := range []string{"token", "secret", "password", "apikey", "api_key", "credential", "access_key"} {
		if strings.Contains(k, word) {
			return true
		}
	}
	return false
}
