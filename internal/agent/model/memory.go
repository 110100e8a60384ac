package model

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Namespace partitions long-term memory, e.g. {"email_assistant", user, "collection"}.
type Namespace []string

const memoryRoot = "email_assistant"

// CollectionNamespace holds free-form facts saved by the response agent.
func CollectionNamespace(userID string) Namespace {
	return Namespace{memoryRoot, userID, "collection"}
}

// ExamplesNamespace holds corrected triage examples.
func ExamplesNamespace(userID string) Namespace {
	return Namespace{memoryRoot, userID, "examples"}
}

func (n Namespace) String() string {
	return strings.Join(n, "/")
}

type MemoryItem struct {
	ID        string    `json:"id"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	// Score is set on search results only.
	Score float64 `json:"score,omitempty"`
}

// MemoryStore is a namespaced long-term store. Search ranks by relevance to query.
type MemoryStore interface {
	Put(ctx context.Context, ns Namespace, id, content string) (*MemoryItem, error)
	Get(ctx context.Context, ns Namespace, id string) (*MemoryItem, error)
	Delete(ctx context.Context, ns Namespace, id string) error
	Search(ctx context.Context, ns Namespace, query string, limit int) ([]*MemoryItem, error)
}

// TriageExample is a past routing the user corrected.
type TriageExample struct {
	Email           string
	OriginalRouting Classification
	CorrectRouting  Classification
}

// Encode renders the stored form: "Email: ... Original routing: ... Correct routing: ...".
func (t TriageExample) Encode() string {
	return "Email: " + t.Email + " Original routing: " + string(t.OriginalRouting) +
		" Correct routing: " + string(t.CorrectRouting)
}

// ParseTriageExample reverses Encode.
func ParseTriageExample(s string) (TriageExample, error) {
	emailPart, rest, ok := strings.Cut(s, "Original routing:")
	if !ok {
		return TriageExample{}, fmt.Errorf("triage example: missing original routing")
	}
	original, correct, ok := strings.Cut(rest, "Correct routing:")
	if !ok {
		return TriageExample{}, fmt.Errorf("triage example: missing correct routing")
	}
	orig, err := ParseClassification(strings.TrimSpace(original))
	if err != nil {
		return TriageExample{}, err
	}
	corr, err := ParseClassification(strings.TrimSpace(correct))
	if err != nil {
		return TriageExample{}, err
	}
	return TriageExample{
		Email:           strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(emailPart), "Email:")),
		OriginalRouting: orig,
		CorrectRouting:  corr,
	}, nil
}

type userIDKey struct{}

// WithUserID attaches the user the memory tools act for.
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDKey{}, userID)
}

// UserIDFrom returns the user in ctx, or "default" when unset.
func UserIDFrom(ctx context.Context) string {
	if v, ok := ctx.Value(userIDKey{}).(string); ok && v != "" {
		return v
	}
	return DefaultUserID
}

const DefaultUserID = "default"
