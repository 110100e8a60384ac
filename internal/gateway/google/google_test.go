package google

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
	calendar "google.golang.org/api/calendar/v3"
	gmail "google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"

	"github.com/email-assistant-core/server/internal/agent/model"
	errx "github.com/email-assistant-core/server/internal/core/error"
)

func testOptions(srv *httptest.Server) []option.ClientOption {
	return []option.ClientOption{option.WithEndpoint(srv.URL + "/"), option.WithHTTPClient(srv.Client())}
}

func at(h, m int) time.Time {
	return time.Date(2025, 3, 14, h, m, 0, 0, time.UTC)
}

func TestComputeFreeSlots(t *testing.T) {
	busy := []model.TimeSlot{
		{Start: at(13, 0), End: at(14, 0)},
		{Start: at(9, 30), End: at(10, 10)},
		{Start: at(9, 45), End: at(10, 0)},
		{Start: at(16, 30), End: at(18, 0)},
	}
	free := computeFreeSlots(at(9, 0), at(17, 0), busy, 15*time.Minute)
	assert.Equal(t, []model.TimeSlot{
		{Start: at(9, 0), End: at(9, 30)},
		{Start: at(10, 15), End: at(13, 0)},
		{Start: at(14, 0), End: at(16, 30)},
	}, free)

	free = computeFreeSlots(at(9, 0), at(17, 0), busy, 3*time.Hour)
	assert.Empty(t, free)

	free = computeFreeSlots(at(9, 0), at(17, 0), nil, time.Hour)
	assert.Equal(t, []model.TimeSlot{{Start: at(9, 0), End: at(17, 0)}}, free)
}

func TestBuildMessage(t *testing.T) {
	msg := BuildMessage("John <john@company.com>", "alice@company.com", "Re: Café plans", "Hi Alice,\nSee you.")
	assert.True(t, strings.HasPrefix(msg, "From: John <john@company.com>\r\nTo: alice@company.com\r\n"))
	assert.Contains(t, msg, "Subject: =?utf-8?q?Re:_Caf=C3=A9_plans?=\r\n")
	assert.True(t, strings.HasSuffix(msg, "\r\n\r\nHi Alice,\r\nSee you."))

	plain := BuildMessage("", "a@b.com", "Hello", "x")
	assert.True(t, strings.HasPrefix(plain, "To: a@b.com\r\nSubject: Hello\r\n"))
}

func TestGmailSendEmail(t *testing.T) {
	var got gmail.Message
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.True(t, strings.HasSuffix(r.URL.Path, "/users/me/messages/send"), r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_ = json.NewEncoder(w).Encode(gmail.Message{Id: "18c0ffee"})
	}))
	defer srv.Close()

	c, err := NewGmailClient(context.Background(), "", 0, testOptions(srv)...)
	require.NoError(t, err)

	id, err := c.SendEmail(context.Background(), "alice@company.com", "Hi", "Body")
	require.NoError(t, err)
	assert.Equal(t, "18c0ffee", id)

	raw, err := base64.URLEncoding.DecodeString(got.Raw)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "To: alice@company.com\r\n")
	assert.Contains(t, string(raw), "\r\n\r\nBody")
}

func TestGmailSendEmailKeepsClientErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusForbidden)
		_, _ = io.WriteString(w, `{"error":{"code":403,"message":"insufficient scope"}}`)
	}))
	defer srv.Close()

	c, err := NewGmailClient(context.Background(), "", 0, testOptions(srv)...)
	require.NoError(t, err)

	_, err = c.SendEmail(context.Background(), "alice@company.com", "Hi", "Body")
	require.Error(t, err)
	assert.Equal(t, http.StatusForbidden, errx.StatusOf(err))

	_, err = c.SendEmail(context.Background(), "not-an-address", "Hi", "Body")
	assert.Error(t, err)
}

func newCalendarServer(t *testing.T, events []*calendar.Event, inserted *calendar.Event) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.True(t, strings.HasSuffix(r.URL.Path, "/calendars/primary/events"), r.URL.Path)
		switch r.Method {
		case http.MethodGet:
			assert.Equal(t, "true", r.URL.Query().Get("singleEvents"))
			_ = json.NewEncoder(w).Encode(calendar.Events{Items: events})
		case http.MethodPost:
			assert.Equal(t, "all", r.URL.Query().Get("sendUpdates"))
			require.NoError(t, json.NewDecoder(r.Body).Decode(inserted))
			inserted.Id = "evt-42"
			inserted.HtmlLink = "https://calendar.google.com/event?eid=42"
			_ = json.NewEncoder(w).Encode(inserted)
		}
	}))
}

var testCalendarConfig = model.CalendarConfig{CalendarID: "primary", Location: "UTC", DayStart: "09:00", DayEnd: "17:00"}

func TestCalendarFreeSlots(t *testing.T) {
	srv := newCalendarServer(t, []*calendar.Event{
		{Start: &calendar.EventDateTime{DateTime: "2025-03-14T10:00:00Z"}, End: &calendar.EventDateTime{DateTime: "2025-03-14T11:00:00Z"}},
		{Start: &calendar.EventDateTime{DateTime: "2025-03-14T12:00:00Z"}, End: &calendar.EventDateTime{DateTime: "2025-03-14T13:00:00Z"}, Transparency: "transparent"},
		{Start: &calendar.EventDateTime{Date: "2025-03-14"}, End: &calendar.EventDateTime{Date: "2025-03-15"}},
	}, nil)
	defer srv.Close()

	c, err := NewCalendarClient(context.Background(), testCalendarConfig, testOptions(srv)...)
	require.NoError(t, err)

	free, err := c.FreeSlots(context.Background(), at(0, 0), 30*time.Minute)
	require.NoError(t, err)
	require.Len(t, free, 2)
	assert.True(t, free[0].Start.Equal(at(9, 0)))
	assert.True(t, free[0].End.Equal(at(10, 0)))
	assert.True(t, free[1].Start.Equal(at(11, 0)))
	assert.True(t, free[1].End.Equal(at(17, 0)))
}

func TestCalendarCreateEvent(t *testing.T) {
	var inserted calendar.Event
	srv := newCalendarServer(t, nil, &inserted)
	defer srv.Close()

	c, err := NewCalendarClient(context.Background(), testCalendarConfig, testOptions(srv)...)
	require.NoError(t, err)

	ev, err := c.CreateEvent(context.Background(), model.MeetingRequest{
		Subject:   "API docs",
		Attendees: []string{"alice@company.com"},
		Start:     at(11, 0),
		End:       at(11, 30),
	})
	require.NoError(t, err)
	assert.Equal(t, "evt-42", ev.ID)
	assert.Equal(t, "API docs", inserted.Summary)
	require.Len(t, inserted.Attendees, 1)
	assert.Equal(t, "alice@company.com", inserted.Attendees[0].Email)
	assert.Equal(t, "2025-03-14T11:00:00Z", inserted.Start.DateTime)
}

func TestNewCalendarClientValidatesHours(t *testing.T) {
	cfg := testCalendarConfig
	cfg.DayEnd = "08:00"
	_, err := NewCalendarClient(context.Background(), cfg, option.WithoutAuthentication())
	assert.Error(t, err)

	cfg = testCalendarConfig
	cfg.Location = "Mars/Olympus"
	_, err = NewCalendarClient(context.Background(), cfg, option.WithoutAuthentication())
	assert.Error(t, err)
}

func TestTokenStoreRoundTrip(t *testing.T) {
	store := NewTokenStore(filepath.Join(t.TempDir(), "nested", "token.json"))

	_, err := store.Load()
	assert.True(t, errors.Is(err, ErrNoToken))

	tok := &oauth2.Token{AccessToken: "a", RefreshToken: "r", TokenType: "Bearer", Expiry: time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)}
	require.NoError(t, store.Save(tok))

	got, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, "a", got.AccessToken)
	assert.Equal(t, "r", got.RefreshToken)
	assert.True(t, tok.Expiry.Equal(got.Expiry))
}

type sequenceSource struct {
	tokens []string
	i      int
}

func (s *sequenceSource) Token() (*oauth2.Token, error) {
	tok := &oauth2.Token{AccessToken: s.tokens[s.i], RefreshToken: "r"}
	if s.i < len(s.tokens)-1 {
		s.i++
	}
	return tok, nil
}

func TestPersistingTokenSourceSavesRefreshes(t *testing.T) {
	store := NewTokenStore(filepath.Join(t.TempDir(), "token.json"))
	p := &persistingTokenSource{base: &sequenceSource{tokens: []string{"old", "new"}}, store: store, last: "old"}

	_, err := p.Token()
	require.NoError(t, err)
	_, err = store.Load()
	assert.True(t, errors.Is(err, ErrNoToken), "unchanged token is not rewritten")

	tok, err := p.Token()
	require.NoError(t, err)
	assert.Equal(t, "new", tok.AccessToken)
	saved, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, "new", saved.AccessToken)
}

func TestAuthorizeExchangesCode(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "code-123", r.PostForm.Get("code"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"access_token":"at","token_type":"Bearer","refresh_token":"rt","expires_in":3600}`)
	}))
	defer srv.Close()

	conf := &oauth2.Config{ClientID: "id", ClientSecret: "secret", Endpoint: oauth2.Endpoint{AuthURL: srv.URL + "/auth", TokenURL: srv.URL + "/token"}, Scopes: Scopes}
	store := NewTokenStore(filepath.Join(t.TempDir(), "token.json"))
	var out bytes.Buffer

	require.NoError(t, Authorize(context.Background(), conf, store, strings.NewReader("code-123\n"), &out))
	assert.Contains(t, out.String(), srv.URL+"/auth?")
	assert.Contains(t, out.String(), "access_type=offline")

	tok, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, "rt", tok.RefreshToken)

	assert.Error(t, Authorize(context.Background(), conf, store, strings.NewReader("\n"), &out))
}

func TestLoadOAuthConfigMissingFile(t *testing.T) {
	_, err := LoadOAuthConfig(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}
