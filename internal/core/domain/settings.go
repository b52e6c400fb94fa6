package domain

import "time"

// AIProvider identifies the AI/embedding provider
type AIProvider string

const (
	AIProviderOpenAI    AIProvider = "openai"
	AIProviderAnthropic AIProvider = "anthropic"
	AIProviderOllama    AIProvider = "ollama"
)

// RequiresAPIKey returns true if the provider needs an API key
func (p AIProvider) RequiresAPIKey() bool {
	return p != AIProviderOllama
}

// AISettings holds AI service configuration (embedding and LLM).
// This can be updated at runtime via the admin API; API keys are stored
// encrypted at rest.
type AISettings struct {
	Embedding EmbeddingSettings `json:"embedding"`
	LLM       LLMSettings       `json:"llm"`
	UpdatedAt time.Time         `json:"updated_at"`
}

// EmbeddingSettings configures the embedding service
type EmbeddingSettings struct {
	Provider AIProvider `json:"provider"`
	Model    string     `json:"model"`
	APIKey   string     `json:"-"` // Never serialize to JSON
	BaseURL  string     `json:"base_url,omitempty"`
}

// IsConfigured returns true if embedding settings are properly configured
func (e *EmbeddingSettings) IsConfigured() bool {
	if e.Provider == "" {
		return false
	}
	if e.Provider.RequiresAPIKey() && e.APIKey == "" {
		return false
	}
	return true
}

// LLMSettings configures the LLM service used for answer synthesis
type LLMSettings struct {
	Provider AIProvider `json:"provider"`
	Model    string     `json:"model"`
	APIKey   string     `json:"-"` // Never serialize to JSON
	BaseURL  string     `json:"base_url,omitempty"`
}

// IsConfigured returns true if LLM settings are properly configured
func (l *LLMSettings) IsConfigured() bool {
	if l.Provider == "" {
		return false
	}
	if l.Provider.RequiresAPIKey() && l.APIKey == "" {
		return false
	}
	return true
}

// PersonaSettings describe the person being emulated. The synthesizer uses
// them to frame answers in the person's voice.
type PersonaSettings struct {
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"` // e.g. "data scientist working on clinical research"
	UpdatedAt   time.Time `json:"updated_at"`
}
