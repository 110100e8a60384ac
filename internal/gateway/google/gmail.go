package google

import (
	"context"
	"encoding/base64"
	"fmt"
	"mime"
	"net/mail"
	"strings"
	"time"

	"golang.org/x/time/rate"
	gmail "google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"

	errx "github.com/email-assistant-core/server/internal/core/error"
	logx "github.com/email-assistant-core/server/pkg/logger"
)

// GmailClient sends mail as the authorised user.
type GmailClient struct {
	svc     *gmail.Service
	from    string
	limiter *rate.Limiter
}

// NewGmailClient creates the service from client options, typically
// option.WithHTTPClient with an OAuth client. perMinute <= 0 disables throttling.
func NewGmailClient(ctx context.Context, from string, perMinute float64, opts ...option.ClientOption) (*GmailClient, error) {
	svc, err := gmail.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create Gmail service: %w", err)
	}
	limiter := rate.NewLimiter(rate.Inf, 0)
	if perMinute > 0 {
		limiter = rate.NewLimiter(rate.Every(time.Duration(float64(time.Minute)/perMinute)), 1)
	}
	return &GmailClient{svc: svc, from: from, limiter: limiter}, nil
}

// SendEmail sends a plain text message and returns the Gmail message ID.
func (c *GmailClient) SendEmail(ctx context.Context, to, subject, content string) (string, error) {
	if _, err := mail.ParseAddress(to); err != nil {
		return "", fmt.Errorf("invalid recipient %q: %w", to, err)
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return "", err
	}

	raw := base64.URLEncoding.EncodeToString([]byte(BuildMessage(c.from, to, subject, content)))
	sent, err := c.svc.Users.Messages.Send("me", &gmail.Message{Raw: raw}).Context(ctx).Do()
	if err != nil {
		logx.Error().Err(err).Str("to", to).Msg("gmail send failed")
		return "", errx.WrapGoogle(err)
	}
	return sent.Id, nil
}

// BuildMessage renders an RFC 2822 plain text message. Non-ASCII subjects
// are RFC 2047 encoded.
func BuildMessage(from, to, subject, content string) string {
	var b strings.Builder
	if from != "" {
		b.WriteString("From: " + from + "\r\n")
	}
	b.WriteString("To: " + to + "\r\n")
	b.WriteString("Subject: " + mime.QEncoding.Encode("utf-8", subject) + "\r\n")
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=\"UTF-8\"\r\n")
	b.WriteString("\r\n")
	b.WriteString(strings.ReplaceAll(strings.ReplaceAll(content, "\r\n", "\n"), "\n", "\r\n"))
	return b.String()
}
