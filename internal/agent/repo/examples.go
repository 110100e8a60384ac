package repo

import (
	"context"
	"strings"

	"github.com/email-assistant-core/server/internal/agent/model"
	logx "github.com/email-assistant-core/server/pkg/logger"
)

// ExampleStore keeps corrected triage routings in the user's examples namespace.
type ExampleStore struct {
	mem   model.MemoryStore
	limit int
}

func NewExampleStore(mem model.MemoryStore, limit int) *ExampleStore {
	return &ExampleStore{mem: mem, limit: limit}
}

// Save stores one corrected routing.
func (s *ExampleStore) Save(ctx context.Context, userID string, ex model.TriageExample) (*model.MemoryItem, error) {
	return s.mem.Put(ctx, model.ExamplesNamespace(userID), "", ex.Encode())
}

// Examples returns stored routings most similar to the email.
func (s *ExampleStore) Examples(ctx context.Context, userID string, email *model.EmailFields) ([]model.TriageExample, error) {
	if s.limit <= 0 || email == nil {
		return nil, nil
	}
	query := strings.Join([]string{email.AuthorEmail, email.Subject, email.EmailThread}, " ")
	items, err := s.mem.Search(ctx, model.ExamplesNamespace(userID), query, s.limit)
	if err != nil {
		return nil, err
	}

	out := make([]model.TriageExample, 0, len(items))
	for _, item := range items {
		ex, err := model.ParseTriageExample(item.Content)
		if err != nil {
			logx.Warn().Err(err).Str("user_id", userID).Str("id", item.ID).Msg("skipping malformed triage example")
			continue
		}
		out = append(out, ex)
	}
	return out, nil
}
