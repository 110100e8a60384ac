package model

import (
	"fmt"

	"github.com/cloudwego/eino/schema"
)

// Stage names a state of the triage router.
type Stage string

const (
	StageStart    Stage = "start"
	StageDetect   Stage = "detect"
	StageClassify Stage = "classify"
	StageRespond  Stage = "respond"
	StageEnd      Stage = "end"
)

// Policy decides what ignore and notify verdicts do.
type Policy string

const (
	// PolicyNarrate hands ignore/notify to the response stage with a courtesy instruction.
	PolicyNarrate Policy = "narrate"
	// PolicyTerminate ends the pass on ignore/notify without a response stage.
	PolicyTerminate Policy = "terminate"
)

func ParsePolicy(s string) (Policy, error) {
	switch p := Policy(s); p {
	case PolicyNarrate, PolicyTerminate:
		return p, nil
	case "":
		return PolicyNarrate, nil
	default:
		return "", fmt.Errorf("unknown triage policy %q", s)
	}
}

// RoutingDecision is the router's output for one message.
type RoutingDecision struct {
	Next     Stage
	Messages []*schema.Message
	// Email and Verdict are nil when no email was detected.
	Email   *EmailFields
	Verdict *Verdict
}

// Classification returns the verdict label or "" when none was produced.
func (d *RoutingDecision) Classification() Classification {
	if d == nil || d.Verdict == nil {
		return ""
	}
	return d.Verdict.Classification
}

// RouteInput is one incoming message to triage.
type RouteInput struct {
	ConversationID string `json:"conversation_id"`
	UserID         string `json:"user_id"`
	Message        string `json:"message"`
}

// Reply is returned to the caller after a full pass.
type Reply struct {
	ConversationID string         `json:"conversation_id"`
	Content        string         `json:"content"`
	Classification Classification `json:"classification,omitempty"`
	Next           Stage          `json:"next"`
	TotalCostUSD   float64        `json:"total_cost_usd"`
}
