// Package agent holds the typed configuration of the automated WhatsApp agent.
package agent

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// HandoffReason explains why the AI stopped answering a conversation.
type HandoffReason string

const (
	HandoffOperatorTakeover HandoffReason = "operator_takeover"
	HandoffExplicitRequest  HandoffReason = "explicit_request"
	HandoffMessageLimit     HandoffReason = "message_limit"
	HandoffScoreThreshold   HandoffReason = "score_threshold"
)

// ScoreOperator compares a CRM score against a trigger value.
type ScoreOperator string

const (
	ScoreGreaterThan ScoreOperator = "gt"
	ScoreLessThan    ScoreOperator = "lt"
)

// Config describes one automated agent.
type Config struct {
	Name           string `yaml:"name" validate:"required,max=255"`
	Description    string `yaml:"description"`
	WhatsAppNumber string `yaml:"whatsapp_number"`

	SystemPrompt string  `yaml:"system_prompt" validate:"required"`
	Model        string  `yaml:"model"`
	Temperature  float64 `yaml:"temperature" validate:"gte=0,lte=2"`
	MaxTokens    int     `yaml:"max_tokens" validate:"gte=1,lte=32000"`
	HistoryLimit int     `yaml:"history_limit" validate:"gte=1,lte=200"`

	// New conversations start with the AI answering when true.
	AIEnabledByDefault bool `yaml:"ai_enabled_by_default"`

	Triggers Triggers `yaml:"triggers"`
	Actions  Actions  `yaml:"actions"`
	Handoff  Handoff  `yaml:"handoff"`
}

// Triggers decide whether the AI answers an inbound message.
type Triggers struct {
	FirstMessage  bool            `yaml:"first_message"`
	Keywords      []string        `yaml:"keywords"`
	Schedule      *ScheduleWindow `yaml:"schedule"`
	Tag           string          `yaml:"tag"`
	Score         *ScoreTrigger   `yaml:"score"`
	PipelineStage string          `yaml:"pipeline_stage"`
}

// ScheduleWindow limits AI answers to business hours.
type ScheduleWindow struct {
	Start string         `yaml:"start" validate:"required,datetime=15:04"`
	End   string         `yaml:"end" validate:"required,datetime=15:04"`
	Days  []time.Weekday `yaml:"days" validate:"dive,gte=0,lte=6"`
}

// ScoreTrigger fires when the CRM score crosses Value.
type ScoreTrigger struct {
	Operator ScoreOperator `yaml:"operator" validate:"oneof=gt lt"`
	Value    int           `yaml:"value" validate:"gte=0,lte=100"`
}

// Actions the agent performs alongside its replies.
type Actions struct {
	UpdateCRM   bool            `yaml:"update_crm"`
	Followup    *FollowupAction `yaml:"followup"`
	TransferTo  string          `yaml:"transfer_to"`
	Calendar    bool            `yaml:"calendar"`
	Tasks       bool            `yaml:"tasks"`
	NotifyHuman *NotifyAction   `yaml:"notify_human"`
}

// FollowupAction schedules a follow-up after the AI replies.
type FollowupAction struct {
	Delay time.Duration `yaml:"delay" validate:"gt=0"`
	Type  string        `yaml:"type"`
}

// NotifyAction lists who hears about a handoff.
type NotifyAction struct {
	Emails   []string `yaml:"emails" validate:"dive,email"`
	WhatsApp string   `yaml:"whatsapp"`
}

// Handoff configures when the AI hands a conversation to a human.
type Handoff struct {
	ExplicitRequest bool     `yaml:"explicit_request"`
	Keywords        []string `yaml:"keywords"`
	// Zero disables the limit.
	MessageLimit int `yaml:"message_limit" validate:"gte=0"`
	// Zero disables the threshold.
	ScoreThreshold int    `yaml:"score_threshold" validate:"gte=0,lte=100"`
	Message        string `yaml:"message"`
}

// Default returns the configuration used when no file is provided.
func Default() Config {
	return Config{
		Name:               "Atendente Virtual",
		SystemPrompt:       "You are the virtual assistant of the business. Greet the customer, understand why they are reaching out and help them politely and briefly.",
		Temperature:        0.7,
		MaxTokens:          500,
		HistoryLimit:       20,
		AIEnabledByDefault: true,
		Triggers: Triggers{
			FirstMessage: true,
		},
		Handoff: Handoff{
			ExplicitRequest: true,
			Keywords:        []string{"human", "atendente", "humano", "pessoa", "agent"},
			Message:         "I'm connecting you with one of our specialists. One moment!",
		},
	}
}

var validate = validator.New()

// Validate checks field constraints.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid agent config: %w", err)
	}
	return nil
}

// Load reads an agent configuration from a YAML file on top of the defaults.
// An empty path returns the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return &cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read agent config: %w", err)
	}

	return Parse(data)
}

// Parse decodes YAML on top of the defaults and validates the result.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse agent config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// containsAny reports whether text contains any keyword, case-insensitively.
func containsAny(text string, keywords []string) bool {
	lower := strings.ToLower(text)
	for _, kw := range keywords {
		kw = strings.TrimSpace(strings.ToLower(kw))
		if kw != "" && strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}
