package parsers

import (
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"

	errx "github.com/email-assistant-core/server/internal/core/error"
	logx "github.com/email-assistant-core/server/pkg/logger"
)

// basic safety limits to avoid pathological inputs
const (
	maxContentLen = 128 * 1024 // 128KB
	maxErrSnippet = 200
)

// ExtractJSONObject returns the first balanced JSON object in a model reply.
// Markdown code fences and surrounding prose are tolerated.
func ExtractJSONObject(content string) (raw json.RawMessage, err error) {
	defer func() {
		if r := recover(); r != nil {
			logx.Error().Str("component", "structured_parser").Msgf("panic recovered: %v", r)
			raw, err = nil, errx.Malformed("parser panic")
		}
	}()

	// Tool call arguments usually arrive as a bare object; take it whole.
	if trimmed := strings.TrimSpace(content); strings.HasPrefix(trimmed, "{") && json.Valid([]byte(trimmed)) {
		return json.RawMessage(trimmed), nil
	}

	if len(content) > maxContentLen {
		logx.Warn().
			Str("component", "structured_parser").
			Int("max_len", maxContentLen).
			Int("orig_len", len(content)).
			Msg("content truncated due to size limit")
		content = truncateRunes(content, maxContentLen)
	}
	if !utf8.ValidString(content) {
		return nil, errx.Malformed("reply is not valid utf8")
	}

	content = stripFences(content)
	for start := strings.IndexByte(content, '{'); start >= 0; {
		if end := matchBrace(content, start); end > start {
			candidate := content[start : end+1]
			if json.Valid([]byte(candidate)) {
				return json.RawMessage(candidate), nil
			}
		}
		next := strings.IndexByte(content[start+1:], '{')
		if next < 0 {
			break
		}
		start += next + 1
	}
	return nil, errx.Malformed("no json object in reply: %s", safeSnippet(content))
}

// truncateRunes cuts s to at most n bytes without splitting a character.
func truncateRunes(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

// stripFences drops ``` and ```json markers.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.Contains(s, "```") {
		return s
	}
	var b strings.Builder
	for _, line := range strings.Split(s, "\n") {
		if strings.HasPrefix(strings.TrimSpace(line), "```") {
			continue
		}
		b.WriteString(line)
		b.WriteByte('\n')
	}
	return strings.TrimSpace(b.String())
}

// matchBrace returns the index of the brace closing s[start], or -1.
// Braces inside JSON strings are skipped.
func matchBrace(s string, start int) int {
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

func safeSnippet(s string) string {
	s = strings.TrimSpace(s)
	if len(s) <= maxErrSnippet {
		return s
	}
	return fmt.Sprintf("%s...", s[:maxErrSnippet])
}
