package model

// ================ Config ================
type ConversationConfig struct {
	TTL        string `envconfig:"CONVERSATION_TTL" default:"24h"`
	MaxHistory int    `envconfig:"CONVERSATION_MAX_HISTORY" default:"20"`
	Tools      struct {
		MaxCalls int `envconfig:"CONVERSATION_TOOL_MAX_CALLS" default:"8"`
	}
}

// TriageModelConfig drives detection and extraction. Extraction echoes the
// whole email body back, so MaxTokens bounds the longest email that can be
// triaged (roughly four bytes of text per token).
type TriageModelConfig struct {
	Model          string  `envconfig:"TRIAGE_MODEL" default:"gemini-2.5-flash-lite"`
	MaxTokens      int     `envconfig:"TRIAGE_MAX_TOKENS" default:"8192"`
	Temperature    float32 `envconfig:"TRIAGE_TEMPERATURE" default:"0"`
	ThinkingBudget int     `envconfig:"TRIAGE_THINKING_BUDGET" default:"0"`
}

// ClassifierModelConfig drives classification. Provider is gemini or ollama.
type ClassifierModelConfig struct {
	Provider       string  `envconfig:"CLASSIFIER_PROVIDER" default:"gemini"`
	Model          string  `envconfig:"CLASSIFIER_MODEL" default:"gemini-2.5-flash"`
	BaseURL        string  `envconfig:"CLASSIFIER_BASE_URL" default:"http://localhost:11434"`
	MaxTokens      int     `envconfig:"CLASSIFIER_MAX_TOKENS" default:"1024"`
	Temperature    float32 `envconfig:"CLASSIFIER_TEMPERATURE" default:"0"`
	ThinkingBudget int     `envconfig:"CLASSIFIER_THINKING_BUDGET" default:"0"` // gemini only
}

type ResponseModelConfig struct {
	Model          string  `envconfig:"RESPONSE_MODEL" default:"gemini-2.5-flash"`
	MaxTokens      int     `envconfig:"RESPONSE_MAX_TOKENS" default:"2000"`
	Temperature    float32 `envconfig:"RESPONSE_TEMPERATURE" default:"0.2"`
	ThinkingBudget int     `envconfig:"RESPONSE_THINKING_BUDGET" default:"1024"`
}

// Profile describes the person the assistant works for.
type Profile struct {
	Name       string `envconfig:"PROFILE_NAME" default:"John"`
	FullName   string `envconfig:"PROFILE_FULL_NAME" default:"John Doe"`
	Email      string `envconfig:"PROFILE_EMAIL" default:"john.doe@company.com"`
	Background string `envconfig:"PROFILE_BACKGROUND" default:"Senior software engineer leading a team of 5 developers"`
}

// TriageRules holds the free-text criteria of each category.
type TriageRules struct {
	Ignore  string `envconfig:"TRIAGE_RULE_IGNORE" default:"Marketing newsletters, spam emails, mass company announcements"`
	Notify  string `envconfig:"TRIAGE_RULE_NOTIFY" default:"Team member out sick, build system notifications, project status updates"`
	Respond string `envconfig:"TRIAGE_RULE_RESPOND" default:"Direct questions from team members, meeting requests, critical bug reports"`
}

type AgentConfig struct {
	Instructions string `envconfig:"AGENT_INSTRUCTIONS" default:"Use these tools when appropriate to help manage the user's tasks efficiently."`
	Policy       string `envconfig:"TRIAGE_POLICY" default:"narrate"`
}

type MemoryConfig struct {
	SearchLimit  int `envconfig:"MEMORY_SEARCH_LIMIT" default:"5"`
	ExampleLimit int `envconfig:"MEMORY_EXAMPLE_LIMIT" default:"3"`
}

// CalendarConfig bounds slot search to a working day in Location.
type CalendarConfig struct {
	CalendarID string `envconfig:"CALENDAR_ID" default:"primary"`
	Location   string `envconfig:"CALENDAR_TIMEZONE" default:"UTC"`
	DayStart   string `envconfig:"CALENDAR_WORKDAY_START" default:"09:00"`
	DayEnd     string `envconfig:"CALENDAR_WORKDAY_END" default:"17:00"`
}
