package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/custodia-labs/persona-core/internal/core/ports/driven"
)

// Ensure OpenAILLM implements LLMService
var _ driven.LLMService = (*OpenAILLM)(nil)

// OpenAILLM implements LLMService using OpenAI's chat completions API
type OpenAILLM struct {
	apiKey  string
	model   string
	baseURL string
	client  *http.Client
}

// NewOpenAILLM creates a new OpenAI LLM service
func NewOpenAILLM(apiKey, model, baseURL string) (driven.LLMService, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("OpenAI API key is required")
	}

	if model == "" {
		model = "gpt-4o-mini"
	}

	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}

	return &OpenAILLM{
		apiKey:  apiKey,
		model:   model,
		baseURL: baseURL,
		client: &http.Client{
			Timeout: 120 * time.Second,
		},
	}, nil
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// chatRequest is the request body for OpenAI chat completions API
type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
}

// chatResponse is the response from OpenAI chat completions API
type chatResponse struct {
	Choices []struct {
		Message      chatMessage `json:"message"`
		FinishReason string      `json:"finish_reason"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    string `json:"code"`
	} `json:"error,omitempty"`
}

// Synthesize combines the question and retrieved passages into a grounded
// first-person answer
func (l *OpenAILLM) Synthesize(ctx context.Context, req driven.SynthesisRequest) (string, error) {
	reqBody := chatRequest{
		Model: l.model,
		Messages: []chatMessage{
			{Role: "system", Content: buildSystemPrompt(req)},
			{Role: "user", Content: buildUserPrompt(req)},
		},
		// Deterministic-as-possible output for repeatable answers
		Temperature: 0,
		MaxTokens:   1024,
	}

	resp, err := l.doRequest(ctx, reqBody)
	if err != nil {
		return "", err
	}

	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no completion returned")
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

// buildSystemPrompt frames the model as the persona being emulated
func buildSystemPrompt(req driven.SynthesisRequest) string {
	var b strings.Builder

	name := "the person whose records you hold"
	if req.Persona != nil && req.Persona.Name != "" {
		name = req.Persona.Name
	}
	fmt.Fprintf(&b, "You are %s, answering a question about your own work history in the first person.\n", name)
	if req.Persona != nil && req.Persona.Description != "" {
		fmt.Fprintf(&b, "About you: %s\n", req.Persona.Description)
	}

	b.WriteString("Answer only from the evidence excerpts provided. ")
	b.WriteString("They are your own messages, tickets, commits and documents. ")
	b.WriteString("If the evidence does not cover something, say you do not recall rather than inventing details. ")
	b.WriteString("Keep the answer concise and conversational.")

	return b.String()
}

// buildUserPrompt lays out the evidence excerpts followed by the question
func buildUserPrompt(req driven.SynthesisRequest) string {
	var b strings.Builder

	b.WriteString("Evidence from your records, most relevant first:\n\n")
	for i, rp := range req.Evidence {
		fmt.Fprintf(&b, "[%d]", i+1)
		if rp.Document != nil {
			fmt.Fprintf(&b, " (%s, %s)", rp.Document.SourceKind, rp.Document.UpdatedAt.Format("2006-01-02"))
		}
		b.WriteString("\n")
		b.WriteString(strings.TrimSpace(rp.Passage.Text))
		b.WriteString("\n\n")
	}

	fmt.Fprintf(&b, "Question: %s", req.Question)
	return b.String()
}

// Model returns the model name being used
func (l *OpenAILLM) Model() string {
	return l.model
}

// Ping verifies the LLM service is available
func (l *OpenAILLM) Ping(ctx context.Context) error {
	reqBody := chatRequest{
		Model: l.model,
		Messages: []chatMessage{
			{Role: "user", Content: "ping"},
		},
		Temperature: 0,
		MaxTokens:   1,
	}
	_, err := l.doRequest(ctx, reqBody)
	return err
}

// Close releases resources held by the LLM service
func (l *OpenAILLM) Close() error {
	l.client.CloseIdleConnections()
	return nil
}

// doRequest makes a request to the OpenAI chat completions API
func (l *OpenAILLM) doRequest(ctx context.Context, reqBody chatRequest) (*chatResponse, error) {
	body, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", l.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+l.apiKey)

	resp, err := l.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	var chatResp chatResponse
	if err := json.Unmarshal(respBody, &chatResp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	if chatResp.Error != nil {
		return nil, fmt.Errorf("OpenAI API error: %s (type: %s, code: %s)",
			chatResp.Error.Message, chatResp.Error.Type, chatResp.Error.Code)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("OpenAI API returned status %d", resp.StatusCode)
	}

	return &chatResp, nil
}
