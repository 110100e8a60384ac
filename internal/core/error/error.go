package errx

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/redis/go-redis/v9"
	"google.golang.org/api/googleapi"
)

const (
	// SystemErrorMessage is a user-facing fallback when internal errors occur.
	SystemErrorMessage = "internal server error"
	// RedisErrorMessage describes Redis related failures.
	RedisErrorMessage = "redis operation failed"
	// RedisNotFoundMessage describes a missing Redis key.
	RedisNotFoundMessage = "redis key not found"
	// InferenceErrorMessage describes a failed call to the model provider.
	InferenceErrorMessage = "inference call failed"
	// MalformedOutputMessage describes a model reply that violated its schema.
	MalformedOutputMessage = "malformed inference output"
	// NotFoundMessage describes a missing stored record.
	NotFoundMessage = "record not found"
	// GoogleErrorMessage describes a failed Gmail or Calendar API call.
	GoogleErrorMessage = "google api call failed"
	// InvalidInputMessage describes a request the caller must fix.
	InvalidInputMessage = "invalid input"
)

var (
	// ErrMalformedOutput marks structured output that is missing a field,
	// has the wrong type or cannot be decoded at all.
	ErrMalformedOutput = errors.New("malformed structured output")
	// ErrInvalidClassification marks a triage label outside ignore/notify/respond.
	ErrInvalidClassification = errors.New("invalid classification")
	// ErrEmptyMessage marks an incoming message with no text.
	ErrEmptyMessage = errors.New("empty incoming message")
	// ErrNotFound marks a missing stored record.
	ErrNotFound = errors.New("not found")
	// ErrInvalidInput marks caller input that cannot be processed as given.
	ErrInvalidInput = errors.New("invalid input")
)

// AppError wraps an underlying error with an HTTP status and safe message.
type AppError struct {
	Err     error
	Status  int
	Message string
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e.Err == nil {
		return e.Message
	}
	return fmt.Sprintf("%s: %v", e.Message, e.Err)
}

// Unwrap exposes the underlying error for errors.Is / errors.As support.
func (e *AppError) Unwrap() error {
	return e.Err
}

// New creates a new AppError with the provided information.
func New(err error, status int, message string) *AppError {
	return &AppError{
		Err:     err,
		Status:  status,
		Message: message,
	}
}

// Malformed reports a schema violation in model output. The detail is kept
// in the wrapped error so errors.Is(err, ErrMalformedOutput) holds.
func Malformed(format string, args ...any) error {
	return New(fmt.Errorf("%w: %s", ErrMalformedOutput, fmt.Sprintf(format, args...)),
		http.StatusBadGateway, MalformedOutputMessage)
}

// InvalidClassification reports an out-of-enum triage label.
func InvalidClassification(label string) error {
	return New(fmt.Errorf("%w: %q", ErrInvalidClassification, label),
		http.StatusBadGateway, MalformedOutputMessage)
}

// NotFound reports a missing record.
func NotFound(format string, args ...any) error {
	return New(fmt.Errorf("%w: %s", ErrNotFound, fmt.Sprintf(format, args...)),
		http.StatusNotFound, NotFoundMessage)
}

// InvalidInput reports caller input that cannot be processed.
func InvalidInput(format string, args ...any) error {
	return New(fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...)),
		http.StatusBadRequest, InvalidInputMessage)
}

// WrapRedis maps Redis errors to AppError with appropriate status codes.
func WrapRedis(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, redis.Nil) {
		return New(err, http.StatusNotFound, RedisNotFoundMessage)
	}
	return New(err, http.StatusBadGateway, RedisErrorMessage)
}

// WrapInference wraps a provider failure. Errors that are already AppErrors
// (for example a malformed output) pass through untouched.
func WrapInference(err error) error {
	if err == nil {
		return nil
	}
	var appErr *AppError
	if errors.As(err, &appErr) {
		return err
	}
	return New(err, http.StatusBadGateway, InferenceErrorMessage)
}

// WrapGoogle keeps the status code reported by the Google API when present.
func WrapGoogle(err error) error {
	if err == nil {
		return nil
	}
	status := http.StatusBadGateway
	var gErr *googleapi.Error
	if errors.As(err, &gErr) && gErr.Code >= 400 && gErr.Code < 500 {
		status = gErr.Code
	}
	return New(err, status, GoogleErrorMessage)
}

// StatusOf returns the HTTP status carried by err, defaulting to 500.
func StatusOf(err error) int {
	if errors.Is(err, ErrEmptyMessage) {
		return http.StatusBadRequest
	}
	var appErr *AppError
	if errors.As(err, &appErr) && appErr.Status != 0 {
		return appErr.Status
	}
	return http.StatusInternalServerError
}

// Is reports whether the target matches the underlying error.
func (e *AppError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// As allows casting to AppError or the wrapped error in a chain.
func (e *AppError) As(target any) bool {
	if t, ok := target.(**AppError); ok {
		*t = e
		return true
	}
	return errors.As(e.Err, target)
}

// PublicMessage returns the message safe to show a caller for err.
func PublicMessage(err error) string {
	if errors.Is(err, ErrEmptyMessage) {
		return ErrEmptyMessage.Error()
	}
	var appErr *AppError
	if errors.As(err, &appErr) && appErr.Message != "" {
		return appErr.Message
	}
	return SystemErrorMessage
}
