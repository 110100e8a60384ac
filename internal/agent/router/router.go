// Package router decides where an incoming message goes: straight to the
// response stage, or through email extraction and triage first.
package router

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/cloudwego/eino/schema"

	"github.com/email-assistant-core/server/internal/agent/graph/prompts"
	"github.com/email-assistant-core/server/internal/agent/inference"
	"github.com/email-assistant-core/server/internal/agent/model"
	errx "github.com/email-assistant-core/server/internal/core/error"
	logx "github.com/email-assistant-core/server/pkg/logger"
	"github.com/email-assistant-core/server/pkg/metrics"
)

const (
	StepDetect   = "detect"
	StepExtract  = "extract"
	StepClassify = "classify"
)

// ExampleSource supplies few-shot triage corrections for a user.
type ExampleSource interface {
	Examples(ctx context.Context, userID string, email *model.EmailFields) ([]model.TriageExample, error)
}

type Deps struct {
	// Triage runs detection and extraction.
	Triage inference.Client
	// Classifier runs the ignore/notify/respond decision.
	Classifier inference.Client
	Profile    model.Profile
	Rules      model.TriageRules
	Policy     model.Policy
	// Examples is optional.
	Examples ExampleSource
}

type Router struct {
	deps Deps
}

func New(deps Deps) (*Router, error) {
	if deps.Triage == nil || deps.Classifier == nil {
		return nil, fmt.Errorf("router: triage and classifier clients are required")
	}
	if deps.Policy == "" {
		deps.Policy = model.PolicyNarrate
	}
	if _, err := model.ParsePolicy(string(deps.Policy)); err != nil {
		return nil, err
	}
	return &Router{deps: deps}, nil
}

type detectionOutput struct {
	EmailFound *bool `json:"email_found" jsonschema_description:"true when the message contains an email the user received"`
}

func (d *detectionOutput) Validate() error {
	if d.EmailFound == nil {
		return errx.Malformed("email_detection: email_found is missing")
	}
	return nil
}

// Detect reports whether message contains an email.
func (r *Router) Detect(ctx context.Context, message string) (*model.Detection, error) {
	system, err := prompts.RenderDetectionSystem(ctx, r.deps.Profile)
	if err != nil {
		return nil, err
	}
	out, err := inference.Invoke[detectionOutput](ctx, r.deps.Triage, StepDetect,
		"email_detection", "Report whether the message contains an email",
		[]*schema.Message{schema.SystemMessage(system), schema.UserMessage(message)})
	if err != nil {
		return nil, err
	}
	return &model.Detection{EmailFound: *out.EmailFound}, nil
}

type extractionOutput struct {
	AuthorName  *string `json:"author_name" jsonschema_description:"The name of the sender of the email"`
	AuthorEmail *string `json:"author_email" jsonschema_description:"The email address of the sender"`
	ToName      *string `json:"to_name" jsonschema_description:"The name of the primary recipient"`
	ToEmail     *string `json:"to_email" jsonschema_description:"The email address of the primary recipient"`
	Subject     *string `json:"subject" jsonschema_description:"The subject line of the email"`
	EmailThread *string `json:"email_thread" jsonschema_description:"The main content or body of the email"`
}

func (e *extractionOutput) Validate() error {
	var missing []string
	for name, v := range map[string]*string{
		"author_name":  e.AuthorName,
		"author_email": e.AuthorEmail,
		"to_name":      e.ToName,
		"to_email":     e.ToEmail,
		"subject":      e.Subject,
		"email_thread": e.EmailThread,
	} {
		if v == nil {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return errx.Malformed("email_input: missing %s", strings.Join(missing, ", "))
	}
	return nil
}

// Extract pulls the six email fields out of message. A missing field fails
// the call; nothing is guessed.
func (r *Router) Extract(ctx context.Context, message string) (*model.EmailFields, error) {
	out, err := inference.Invoke[extractionOutput](ctx, r.deps.Triage, StepExtract,
		"email_input", "Structured fields of the email in the message",
		[]*schema.Message{schema.SystemMessage(prompts.ExtractionSystem()), schema.UserMessage(message)})
	if err != nil {
		return nil, err
	}
	return &model.EmailFields{
		AuthorName:  *out.AuthorName,
		AuthorEmail: *out.AuthorEmail,
		ToName:      *out.ToName,
		ToEmail:     *out.ToEmail,
		Subject:     *out.Subject,
		EmailThread: *out.EmailThread,
	}, nil
}

type routerOutput struct {
	Reasoning      *string `json:"reasoning" jsonschema_description:"Step-by-step reasoning behind the classification"`
	Classification *string `json:"classification" jsonschema:"enum=ignore,enum=notify,enum=respond" jsonschema_description:"ignore for irrelevant emails, notify for important information that doesn't need a response, respond for emails that need a reply"`
}

func (o *routerOutput) Validate() error {
	if o.Classification == nil {
		return errx.Malformed("router: classification is missing")
	}
	if o.Reasoning == nil {
		return errx.Malformed("router: reasoning is missing")
	}
	return nil
}

// Classify triages an extracted email against the user's rules and examples.
func (r *Router) Classify(ctx context.Context, email *model.EmailFields, examples []model.TriageExample) (*model.Verdict, error) {
	system, err := prompts.RenderTriageSystem(ctx, r.deps.Profile, r.deps.Rules, examples)
	if err != nil {
		return nil, err
	}
	user, err := prompts.RenderTriageUser(ctx, email)
	if err != nil {
		return nil, err
	}
	out, err := inference.Invoke[routerOutput](ctx, r.deps.Classifier, StepClassify,
		"router", "Analyze the unread email and route it according to its content",
		[]*schema.Message{schema.SystemMessage(system), schema.UserMessage(user)})
	if err != nil {
		return nil, err
	}
	label, err := model.ParseClassification(strings.TrimSpace(*out.Classification))
	if err != nil {
		return nil, err
	}
	return &model.Verdict{Classification: label, Reasoning: *out.Reasoning}, nil
}

// Route runs one full pass: detect, then extract and classify when an email
// is present. Any failure aborts the pass and no decision is returned.
func (r *Router) Route(ctx context.Context, in model.RouteInput) (*model.RoutingDecision, error) {
	log := logx.With("router")
	if strings.TrimSpace(in.Message) == "" {
		return nil, errx.ErrEmptyMessage
	}
	started := time.Now()
	stage := func(s model.Stage) {
		log.Debug().Str("conversation_id", in.ConversationID).Str("stage", string(s)).Msg("triage stage")
	}

	stage(model.StageStart)
	stage(model.StageDetect)
	detection, err := r.Detect(ctx, in.Message)
	if err != nil {
		metrics.RecordFailure(StepDetect)
		return nil, err
	}
	if !detection.EmailFound {
		log.Info().Str("conversation_id", in.ConversationID).Msg("no email detected, passing message through")
		d := &model.RoutingDecision{Next: model.StageRespond, Messages: []*schema.Message{schema.UserMessage(in.Message)}}
		metrics.RecordDecision("", string(d.Next))
		return d, nil
	}

	stage(model.StageClassify)
	email, err := r.Extract(ctx, in.Message)
	if err != nil {
		metrics.RecordFailure(StepExtract)
		return nil, err
	}

	examples := r.examples(ctx, in.UserID, email)
	verdict, err := r.Classify(ctx, email, examples)
	if err != nil {
		metrics.RecordFailure(StepClassify)
		return nil, err
	}

	d, err := r.decide(in.Message, email, verdict)
	if err != nil {
		metrics.RecordFailure(StepClassify)
		return nil, err
	}
	log.Info().
		Str("conversation_id", in.ConversationID).
		Str("classification", verdict.Classification.String()).
		Str("next", string(d.Next)).
		Str("subject", email.Subject).
		Dur("elapsed", time.Since(started)).
		Msg("email triaged")
	metrics.RecordDecision(verdict.Classification.String(), string(d.Next))
	return d, nil
}

func (r *Router) decide(original string, email *model.EmailFields, v *model.Verdict) (*model.RoutingDecision, error) {
	d := &model.RoutingDecision{Email: email, Verdict: v}
	switch v.Classification {
	case model.ClassificationRespond:
		d.Next = model.StageRespond
		d.Messages = []*schema.Message{schema.UserMessage(RespondInstruction(original))}
	case model.ClassificationIgnore, model.ClassificationNotify:
		if r.deps.Policy == model.PolicyTerminate {
			d.Next = model.StageEnd
			return d, nil
		}
		d.Next = model.StageRespond
		d.Messages = []*schema.Message{schema.UserMessage(courtesyInstruction(email, v))}
	default:
		return nil, errx.InvalidClassification(string(v.Classification))
	}
	return d, nil
}

// examples never fails the pass; triage works without corrections.
func (r *Router) examples(ctx context.Context, userID string, email *model.EmailFields) []model.TriageExample {
	if r.deps.Examples == nil {
		return nil
	}
	if userID == "" {
		userID = model.DefaultUserID
	}
	ex, err := r.deps.Examples.Examples(ctx, userID, email)
	if err != nil {
		logx.Warn().Err(err).Str("user_id", userID).Msg("failed to load triage examples")
		return nil
	}
	return ex
}

// RespondInstruction asks the response stage to answer the email.
func RespondInstruction(original string) string {
	return "Respond to the email below. First search memory for any stored context that is relevant to the sender or topic. " +
		"Then compose a reply and send it to the sender with write_email. " +
		"Finally save any new information worth remembering with manage_memory.\n\n" + original
}

func courtesyInstruction(email *model.EmailFields, v *model.Verdict) string {
	if v.Classification == model.ClassificationIgnore {
		return fmt.Sprintf("An email from %s with subject %q was triaged as not worth attention (%s). "+
			"Briefly tell me it was disregarded. Do not reply to it.", email.Author(), email.Subject, v.Reasoning)
	}
	return fmt.Sprintf("An important email from %s with subject %q needs no reply (%s). "+
		"Tell me about it in a short notification that summarises the key information. Do not reply to it.\n\nEmail content:\n%s",
		email.Author(), email.Subject, v.Reasoning, email.EmailThread)
}
