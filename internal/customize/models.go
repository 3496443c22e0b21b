// Package customize stores per-organization AI settings and resolves the
// effective configuration driving one query's prompt and model behavior.
package customize

import (
	"time"

	"github.com/google/uuid"
)

// Settings is the one-to-one customization row for an organization. Every
// field is an optional override; nil means "use the platform default".
type Settings struct {
	OrganizationID         uuid.UUID         `gorm:"type:uuid;primaryKey" json:"organization_id"`
	SystemPrompt           *string           `json:"system_prompt,omitempty"`
	Model                  *string           `json:"model,omitempty"`
	Temperature            *float64          `json:"temperature,omitempty"`
	MaxTokens              *int              `json:"max_tokens,omitempty"`
	PrimaryLanguage        *string           `json:"primary_language,omitempty"`
	Terminology            map[string]string `gorm:"serializer:json" json:"terminology,omitempty"`
	CitationFormat         *string           `json:"citation_format,omitempty"`
	ResponseFormat         *string           `json:"response_format,omitempty"`
	PrePromptInstructions  *string           `json:"pre_prompt_instructions,omitempty"`
	PostPromptInstructions *string           `json:"post_prompt_instructions,omitempty"`
	ShowConfidence         *bool             `json:"show_confidence_score,omitempty"`
	NoResultsMessage       *string           `json:"no_results_message,omitempty"`
	UpdatedAt              time.Time         `json:"updated_at"`
}

func (Settings) TableName() string { return "organization_settings" }

// EffectiveConfig is the merged platform-default plus organization-override
// configuration consumed by the retrieval and answer pipeline.
type EffectiveConfig struct {
	SystemPrompt           string
	Model                  string
	Temperature            float64
	MaxTokens              int
	PrimaryLanguage        string
	Terminology            map[string]string
	CitationFormat         string
	ResponseFormat         string
	PrePromptInstructions  string
	PostPromptInstructions string
	ShowConfidence         bool
	NoResultsMessage       string
}
