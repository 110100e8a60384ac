// Package server exposes the assistant over HTTP.
package server

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/email-assistant-core/server/internal/agent/model"
	errx "github.com/email-assistant-core/server/internal/core/error"
	"github.com/email-assistant-core/server/internal/mailtext"
	logx "github.com/email-assistant-core/server/pkg/logger"
)

type Config struct {
	Addr           string        `envconfig:"SERVER_ADDR" default:":8080"`
	RequestTimeout time.Duration `envconfig:"SERVER_REQUEST_TIMEOUT" default:"2m"`
	// RateLimit is requests per minute per client IP; 0 disables it.
	RateLimit int `envconfig:"SERVER_RATE_LIMIT" default:"30"`
	// MaxBodyBytes caps POST bodies; 0 falls back to DefaultMaxBodyBytes.
	MaxBodyBytes int64 `envconfig:"SERVER_MAX_BODY_BYTES" default:"5242880"`
}

const DefaultMaxBodyBytes int64 = 5 << 20

// Runner handles one incoming message end to end.
type Runner interface {
	Invoke(ctx context.Context, in model.RouteInput) (*model.Reply, error)
}

// MessageRequest is the body of POST /v1/messages. RawEmail, when set, is
// parsed as an RFC 5322 message and appended to Message.
type MessageRequest struct {
	ConversationID string `json:"conversation_id"`
	UserID         string `json:"user_id"`
	Message        string `json:"message"`
	RawEmail       string `json:"raw_email"`
}

type handler struct {
	runner  Runner
	timeout time.Duration
	maxBody int64
}

// NewRouter builds the gin engine with all routes and middleware.
func NewRouter(runner Runner, cfg Config) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), RequestLogger())

	h := &handler{runner: runner, timeout: cfg.RequestTimeout, maxBody: cfg.MaxBodyBytes}
	if h.maxBody <= 0 {
		h.maxBody = DefaultMaxBodyBytes
	}

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := r.Group("/v1")
	v1.Use(RateLimiter(cfg.RateLimit, time.Minute))
	v1.POST("/messages", h.postMessage)

	return r
}

// NewHTTPServer wraps the router in an http.Server listening on cfg.Addr.
func NewHTTPServer(runner Runner, cfg Config) *http.Server {
	return &http.Server{
		Addr:              cfg.Addr,
		Handler:           NewRouter(runner, cfg),
		ReadHeaderTimeout: 10 * time.Second,
	}
}

func (h *handler) postMessage(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxBody)

	var req MessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "request body too large"})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	message, err := composeMessage(req)
	if err != nil {
		writeError(c, err)
		return
	}

	ctx := c.Request.Context()
	if h.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.timeout)
		defer cancel()
	}

	reply, err := h.runner.Invoke(ctx, model.RouteInput{
		ConversationID: req.ConversationID,
		UserID:         req.UserID,
		Message:        message,
	})
	if err != nil {
		logx.Error().Err(err).
			Str("conversation_id", req.ConversationID).
			Str("user_id", req.UserID).
			Msg("Message handling failed")
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, reply)
}

// composeMessage turns a request into the text handed to the router. Raw
// emails and message bodies that look like one are normalised first.
func composeMessage(req MessageRequest) (string, error) {
	message := strings.TrimSpace(req.Message)
	if req.RawEmail != "" {
		email, err := mailtext.Normalize([]byte(req.RawEmail))
		if err != nil {
			return "", err
		}
		if message == "" {
			return email, nil
		}
		return message + "\n\n" + email, nil
	}
	if mailtext.LooksLikeRFC822(message) {
		return mailtext.Normalize([]byte(message))
	}
	return message, nil
}

func writeError(c *gin.Context, err error) {
	c.JSON(errx.StatusOf(err), gin.H{"error": errx.PublicMessage(err)})
}
