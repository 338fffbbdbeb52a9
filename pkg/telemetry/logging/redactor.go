package logging

import (
	"log/slog"
	"regexp"
	"strings"
)

// redactedValue replaces sensitive attribute values in log output.
const redactedValue = "***"

// webhookURLPattern matches webhook endpoint URLs, whose paths embed
// delivery tokens.
var webhookURLPattern = regexp.MustCompile(`https?://[^\s]*webhook[^\s]*`)

// bearerTokenPattern matches Authorization-style bearer tokens.
var bearerTokenPattern = regexp.MustCompile(`Bearer\s+[a-zA-Z0-9\-._~+/]+=*`)

// builtinSensitiveKeys are key substrings always treated as secrets,
// case-insensitively.
var builtinSensitiveKeys = []string{
	"password", "passwd",
	"secret", "token", "api_key", "apikey",
	"auth", "authorization",
	"webhook_url",
	"private_key", "privatekey",
}

// Redactor redacts sensitive fields from log attributes.
type Redactor struct {
	sensitiveKeys []string
}

// NewRedactor creates a redactor with the built-in sensitive-key set
// plus any extra configured keys.
func NewRedactor(extraKeys []string) *Redactor {
	keys := append([]string(nil), builtinSensitiveKeys...)
	for _, key := range extraKeys {
		keys = append(keys, strings.ToLower(key))
	}
	return &Redactor{sensitiveKeys: keys}
}

// ReplaceAttr is a slog.HandlerOptions.ReplaceAttr hook that redacts
// sensitive attribute values by key name and scrubs token-bearing
// patterns out of string values.
func (r *Redactor) ReplaceAttr(groups []string, attr slog.Attr) slog.Attr {
	if r.isSensitiveKey(attr.Key) {
		attr.Value = slog.StringValue(redactedValue)
		return attr
	}

	if attr.Value.Kind() == slog.KindString {
		attr.Value = slog.StringValue(r.RedactString(attr.Value.String()))
	}
	return attr
}

// RedactString scrubs token-bearing patterns out of a string value.
func (r *Redactor) RedactString(value string) string {
	if value == "" {
		return value
	}
	value = webhookURLPattern.ReplaceAllString(value, redactedValue)
	value = bearerTokenPattern.ReplaceAllString(value, "Bearer "+redactedValue)
	return value
}

// isSensitiveKey checks if a key name indicates sensitive data.
func (r *Redactor) isSensitiveKey(key string) bool {
	lowerKey := strings.ToLower(key)
	for _, sensitive := range r.sensitiveKeys {
		if strings.Contains(lowerKey, sensitive) {
			return true
		}
	}
	return false
}
