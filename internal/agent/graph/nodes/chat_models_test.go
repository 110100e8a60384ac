package nodes

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/email-assistant-core/server/internal/agent/model"
)

func TestThinkingConfig(t *testing.T) {
	off := thinkingConfig(0)
	require.NotNil(t, off.ThinkingBudget)
	assert.Equal(t, int32(0), *off.ThinkingBudget)
	assert.False(t, off.IncludeThoughts)

	capped := thinkingConfig(1024)
	require.NotNil(t, capped.ThinkingBudget)
	assert.Equal(t, int32(1024), *capped.ThinkingBudget)

	assert.Nil(t, thinkingConfig(-1).ThinkingBudget)
}

func TestNewChatModelsRejectsIncompleteConfig(t *testing.T) {
	_, err := NewChatModels(context.Background(), ChatModelConfig{
		APIKey: "k",
		Triage: &model.TriageModelConfig{Model: "gemini-2.5-flash-lite"},
	})
	assert.ErrorContains(t, err, "incomplete")
}
