package prompts

import (
	"context"
	_ "embed"
	"fmt"
	"strings"
	"time"

	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/schema"

	"github.com/email-assistant-core/server/internal/agent/model"
)

var (
	//go:embed template/triage_system.txt
	triageSystemPrompt string
	//go:embed template/triage_user.txt
	triageUserPrompt string
	//go:embed template/detection_system.txt
	detectionSystemPrompt string
	//go:embed template/extraction_system.txt
	extractionSystemPrompt string
	//go:embed template/agent_system.txt
	agentSystemPrompt string
)

// render formats a single FString template through the Eino prompt component,
// so prompt callbacks fire when a handler is attached to ctx.
func render(ctx context.Context, name string, role schema.RoleType, tmpl string, vars map[string]any) (string, error) {
	tpl := prompt.FromMessages(schema.FString, &schema.Message{Role: role, Content: tmpl})
	msgs, err := tpl.Format(ctx, vars)
	if err != nil {
		return "", fmt.Errorf("%s prompt render: %w", name, err)
	}
	if len(msgs) == 0 || msgs[0] == nil {
		return "", fmt.Errorf("%s prompt render: empty result", name)
	}
	return msgs[0].Content, nil
}

func profileVars(p model.Profile) map[string]any {
	return map[string]any{
		"name":                    p.Name,
		"full_name":               p.FullName,
		"email":                   p.Email,
		"user_profile_background": p.Background,
	}
}

// RenderDetectionSystem renders the email detection policy.
func RenderDetectionSystem(ctx context.Context, p model.Profile) (string, error) {
	return render(ctx, "detection", schema.System, detectionSystemPrompt, profileVars(p))
}

// ExtractionSystem is static.
func ExtractionSystem() string {
	return strings.TrimSpace(extractionSystemPrompt)
}

// RenderTriageSystem renders the classification policy with rules and few-shot examples.
func RenderTriageSystem(ctx context.Context, p model.Profile, rules model.TriageRules, examples []model.TriageExample) (string, error) {
	vars := profileVars(p)
	vars["triage_no"] = rules.Ignore
	vars["triage_notify"] = rules.Notify
	vars["triage_email"] = rules.Respond
	vars["examples"] = FormatFewShotExamples(examples)
	return render(ctx, "triage system", schema.System, triageSystemPrompt, vars)
}

// RenderTriageUser renders the email under classification.
func RenderTriageUser(ctx context.Context, e *model.EmailFields) (string, error) {
	if e == nil {
		return "", fmt.Errorf("triage user prompt: email is nil")
	}
	return render(ctx, "triage user", schema.User, strings.TrimRight(triageUserPrompt, "\n"), map[string]any{
		"author":       e.Author(),
		"to":           e.To(),
		"subject":      e.Subject,
		"email_thread": e.EmailThread,
	})
}

// RenderAgentSystem renders the response agent's system prompt.
func RenderAgentSystem(ctx context.Context, p model.Profile, instructions string, today time.Time) (string, error) {
	vars := profileVars(p)
	vars["instructions"] = instructions
	vars["today"] = today.Format("Monday, January 2, 2006")
	return render(ctx, "agent system", schema.System, agentSystemPrompt, vars)
}

// FormatFewShotExamples renders corrected routings, or "None" without any.
func FormatFewShotExamples(examples []model.TriageExample) string {
	if len(examples) == 0 {
		return "None"
	}
	parts := make([]string, 0, len(examples))
	for _, ex := range examples {
		parts = append(parts, fmt.Sprintf("Example:\nEmail: %s\nOriginal Classification: %s\nCorrect Classification: %s\n---",
			strings.TrimSpace(ex.Email), ex.OriginalRouting, ex.CorrectRouting))
	}
	return strings.Join(parts, "\n")
}
