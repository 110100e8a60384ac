package parsers

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"unicode/utf8"

	errx "github.com/email-assistant-core/server/internal/core/error"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractJSONObject(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{"bare", `{"email_found": true}`, `{"email_found": true}`},
		{"fenced", "```json\n{\"email_found\": false}\n```", `{"email_found": false}`},
		{"prose", `Sure! Here it is: {"a": "b"} hope it helps`, `{"a": "b"}`},
		{"brace in string", `{"a": "x}y", "b": {"c": 1}}`, `{"a": "x}y", "b": {"c": 1}}`},
		{"skips invalid", `{not json} then {"ok": true}`, `{"ok": true}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw, err := ExtractJSONObject(tt.content)
			require.NoError(t, err)
			assert.JSONEq(t, tt.want, string(raw))
		})
	}
}

func TestExtractJSONObjectMissing(t *testing.T) {
	for _, content := range []string{"", "no json here", "{unterminated", "\xff\xfe"} {
		_, err := ExtractJSONObject(content)
		assert.True(t, errors.Is(err, errx.ErrMalformedOutput), "content %q", content)
	}
}

func TestExtractJSONObjectLargeArguments(t *testing.T) {
	thread := strings.Repeat("The nightly build failed again, café ☕. ", 4000)
	args, err := json.Marshal(map[string]string{
		"author_email": "sam@x.com",
		"email_thread": thread,
	})
	require.NoError(t, err)
	require.Greater(t, len(args), maxContentLen)

	raw, err := ExtractJSONObject(string(args))
	require.NoError(t, err)

	var got map[string]string
	require.NoError(t, json.Unmarshal(raw, &got))
	assert.Equal(t, thread, got["email_thread"])
	assert.Equal(t, "sam@x.com", got["author_email"])
}

func TestExtractJSONObjectLargeProse(t *testing.T) {
	content := "Here you go: {\"ok\": true}\n" + strings.Repeat("é", maxContentLen)
	raw, err := ExtractJSONObject(content)
	require.NoError(t, err)
	assert.JSONEq(t, `{"ok": true}`, string(raw))
}

func TestTruncateRunes(t *testing.T) {
	s := "aé☕"
	for n := 0; n <= len(s); n++ {
		got := truncateRunes(s, n)
		assert.True(t, utf8.ValidString(got), "n=%d", n)
		assert.LessOrEqual(t, len(got), n)
		assert.True(t, strings.HasPrefix(s, got))
	}
	assert.Equal(t, "a", truncateRunes(s, 2))
	assert.Equal(t, s, truncateRunes(s, 10))
}
