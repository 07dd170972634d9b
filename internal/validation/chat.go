package validation

import (
	"regexp"
	"strings"
)

// MaxChatInput is the longest message forwarded to the assistant.
const MaxChatInput = 1000

// Replies used when the assistant output cannot be returned as-is.
const (
	ChatEmptyReply   = "I can only help with event planning questions."
	ChatBlockedReply = "I can only provide general information about event planning features."
)

var chatRedactions = []*regexp.Regexp{
	regexp.MustCompile(`(?i)api[_-]?key`),
	regexp.MustCompile(`(?i)password`),
	regexp.MustCompile(`(?i)secret`),
	regexp.MustCompile(`(?i)token`),
	regexp.MustCompile(`(?i)auth`),
	regexp.MustCompile(`(?i)<script`),
	regexp.MustCompile(`(?i)javascript:`),
	regexp.MustCompile(`(?i)eval\(`),
	regexp.MustCompile(`(?i)exec\(`),
}

var chatLeakIndicators = []string{
	"api key", "password", "secret", "token", "database",
	"server", "localhost", "port", "http://", "https://",
	"config", ".env", "credential",
}

// SanitizeChatInput redacts sensitive patterns and caps the result at MaxChatInput runes.
func SanitizeChatInput(text string) string {
	if text == "" {
		return ""
	}
	out := text
	for _, re := range chatRedactions {
		out = re.ReplaceAllString(out, "[REDACTED]")
	}
	if r := []rune(out); len(r) > MaxChatInput {
		out = string(r[:MaxChatInput])
	}
	return out
}

// FilterChatResponse replaces replies that mention infrastructure or secrets.
func FilterChatResponse(reply string) string {
	if strings.TrimSpace(reply) == "" {
		return ChatEmptyReply
	}
	lower := strings.ToLower(reply)
	for _, ind := range chatLeakIndicators {
		if strings.Contains(lower, ind) {
			return ChatBlockedReply
		}
	}
	return reply
}
