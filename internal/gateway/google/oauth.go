package google

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"golang.org/x/oauth2"
	googleoauth "golang.org/x/oauth2/google"
	calendar "google.golang.org/api/calendar/v3"
	gmail "google.golang.org/api/gmail/v1"

	logx "github.com/email-assistant-core/server/pkg/logger"
)

// Scopes requested by the assistant: send mail and read/write the calendar.
var Scopes = []string{gmail.GmailSendScope, calendar.CalendarScope}

// ErrNoToken means the installed-app flow has not been run yet.
var ErrNoToken = errors.New("no google token; run `assistant auth` first")

type Config struct {
	CredentialsFile string  `envconfig:"GOOGLE_CREDENTIALS_FILE" default:"credentials.json"`
	TokenFile       string  `envconfig:"GOOGLE_TOKEN_FILE" default:"token.json"`
	SendPerMinute   float64 `envconfig:"GOOGLE_SEND_PER_MINUTE" default:"20"`
	From            string  `envconfig:"GOOGLE_FROM"`
}

// LoadOAuthConfig reads the OAuth client secrets downloaded from the Cloud console.
func LoadOAuthConfig(path string) (*oauth2.Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read google credentials: %w", err)
	}
	conf, err := googleoauth.ConfigFromJSON(b, Scopes...)
	if err != nil {
		return nil, fmt.Errorf("parse google credentials: %w", err)
	}
	return conf, nil
}

// TokenStore persists the OAuth token as JSON on disk.
type TokenStore struct {
	path string
	mu   sync.Mutex
}

func NewTokenStore(path string) *TokenStore {
	return &TokenStore{path: path}
}

func (s *TokenStore) Load() (*oauth2.Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNoToken
	}
	if err != nil {
		return nil, fmt.Errorf("read token: %w", err)
	}
	var tok oauth2.Token
	if err := json.Unmarshal(b, &tok); err != nil {
		return nil, fmt.Errorf("decode token: %w", err)
	}
	return &tok, nil
}

func (s *TokenStore) Save(tok *oauth2.Token) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, err := json.Marshal(tok)
	if err != nil {
		return fmt.Errorf("encode token: %w", err)
	}
	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return fmt.Errorf("create token dir: %w", err)
		}
	}
	if err := os.WriteFile(s.path, b, 0o600); err != nil {
		return fmt.Errorf("write token: %w", err)
	}
	return nil
}

// persistingTokenSource saves every token the base source mints.
type persistingTokenSource struct {
	base  oauth2.TokenSource
	store *TokenStore

	mu   sync.Mutex
	last string
}

func (p *persistingTokenSource) Token() (*oauth2.Token, error) {
	tok, err := p.base.Token()
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if tok.AccessToken != p.last {
		if err := p.store.Save(tok); err != nil {
			logx.Warn().Err(err).Msg("failed to persist refreshed google token")
		} else {
			logx.Debug().Time("expiry", tok.Expiry).Msg("persisted refreshed google token")
		}
		p.last = tok.AccessToken
	}
	return tok, nil
}

// TokenSource loads the stored token and refreshes it on demand, writing
// refreshed tokens back to the store.
func TokenSource(ctx context.Context, conf *oauth2.Config, store *TokenStore) (oauth2.TokenSource, error) {
	tok, err := store.Load()
	if err != nil {
		return nil, err
	}
	base := &persistingTokenSource{base: conf.TokenSource(ctx, tok), store: store, last: tok.AccessToken}
	return oauth2.ReuseTokenSource(tok, base), nil
}

// NewHTTPClient builds an authorised client from Config.
func NewHTTPClient(ctx context.Context, cfg Config) (*http.Client, error) {
	conf, err := LoadOAuthConfig(cfg.CredentialsFile)
	if err != nil {
		return nil, err
	}
	ts, err := TokenSource(ctx, conf, NewTokenStore(cfg.TokenFile))
	if err != nil {
		return nil, err
	}
	return oauth2.NewClient(ctx, ts), nil
}

// Authorize runs the installed-app flow: print the consent URL, read the
// code from in, exchange and save it.
func Authorize(ctx context.Context, conf *oauth2.Config, store *TokenStore, in io.Reader, out io.Writer) error {
	url := conf.AuthCodeURL("state-token", oauth2.AccessTypeOffline, oauth2.ApprovalForce)
	fmt.Fprintf(out, "Open the following link in your browser, then paste the authorization code:\n%s\n> ", url)

	code, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("read authorization code: %w", err)
	}
	code = strings.TrimSpace(code)
	if code == "" {
		return fmt.Errorf("empty authorization code")
	}

	tok, err := conf.Exchange(ctx, code)
	if err != nil {
		return fmt.Errorf("exchange authorization code: %w", err)
	}
	if err := store.Save(tok); err != nil {
		return err
	}
	fmt.Fprintf(out, "Token saved to %s\n", store.path)
	return nil
}
