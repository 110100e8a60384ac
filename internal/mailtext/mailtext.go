// Package mailtext turns raw RFC 5322 messages into the plain text the
// triage router reads.
package mailtext

import (
	"bytes"
	"html"
	"strings"

	"github.com/jhillyerd/enmime"
	"github.com/microcosm-cc/bluemonday"

	errx "github.com/email-assistant-core/server/internal/core/error"
	logx "github.com/email-assistant-core/server/pkg/logger"
)

var strict = bluemonday.StrictPolicy()

var renderedHeaders = []string{"From", "To", "Cc", "Subject", "Date"}

// Normalize parses a MIME message and renders its main headers followed by
// the text body. HTML-only messages are converted to text.
func Normalize(raw []byte) (string, error) {
	env, err := enmime.ReadEnvelope(bytes.NewReader(raw))
	if err != nil {
		return "", errx.InvalidInput("parse email: %v", err)
	}
	for _, perr := range env.Errors {
		logx.Debug().Str("part_error", perr.Error()).Msg("mime part problem")
	}

	var b strings.Builder
	for _, h := range renderedHeaders {
		if v := strings.TrimSpace(env.GetHeader(h)); v != "" {
			b.WriteString(h + ": " + v + "\n")
		}
	}
	body := strings.TrimSpace(strings.ReplaceAll(env.Text, "\r\n", "\n"))
	if body == "" && env.HTML != "" {
		body = htmlToText(env.HTML)
	}
	if b.Len() == 0 && body == "" {
		return "", errx.InvalidInput("email has no headers and no body")
	}
	if body != "" {
		b.WriteString("\n" + body)
	}
	return strings.TrimRight(b.String(), "\n"), nil
}

var blockBreaks = strings.NewReplacer(
	"</p>", "</p>\n", "</div>", "</div>\n", "</tr>", "</tr>\n", "</li>", "</li>\n",
	"<br>", "<br>\n", "<br/>", "<br/>\n", "<br />", "<br />\n",
)

// htmlToText strips markup from an HTML part enmime could not convert.
// Text parts never pass through here: a quoted "<sam@company.com>" would
// read as a tag.
func htmlToText(s string) string {
	s = html.UnescapeString(strict.Sanitize(blockBreaks.Replace(s)))
	var lines []string
	for _, line := range strings.Split(s, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			lines = append(lines, line)
		}
	}
	return strings.Join(lines, "\n")
}

// LooksLikeRFC822 reports whether s starts with a mail header block that
// carries at least a From header.
func LooksLikeRFC822(s string) bool {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	head, _, found := strings.Cut(s, "\n\n")
	if !found {
		return false
	}
	hasFrom := false
	for i, line := range strings.Split(head, "\n") {
		if line == "" {
			return false
		}
		if line[0] == ' ' || line[0] == '\t' {
			if i == 0 {
				return false
			}
			continue
		}
		name, _, ok := strings.Cut(line, ":")
		if !ok || name == "" || strings.ContainsAny(name, " \t") {
			return false
		}
		if strings.EqualFold(name, "From") {
			hasFrom = true
		}
	}
	return hasFrom
}
