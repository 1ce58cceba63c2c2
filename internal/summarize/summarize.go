// Package summarize generates consultation summaries locally through an
// OpenAI-compatible chat completion API.
package summarize

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/leonardotrapani/medscribe/internal/consult"
	"github.com/leonardotrapani/medscribe/internal/report"
	"github.com/rs/zerolog/log"
	"github.com/sashabaranov/go-openai"
)

const (
	ProviderOpenAI = "openai"
	ProviderGroq   = "groq"

	groqBaseURL = "https://api.groq.com/openai/v1"
)

type Config struct {
	Provider     string
	APIKey       string
	Model        string
	BaseURL      string
	DoctorName   string
	Keywords     []string
	CustomPrompt string
}

// Chat implements consult.Summarizer with chat completions. Generated
// summaries are held in memory per patient until the next generation.
type Chat struct {
	client *openai.Client
	config Config

	mu      sync.Mutex
	reports map[string]*report.Summary

	now func() time.Time
}

var _ consult.Summarizer = (*Chat)(nil)

func New(cfg Config) (*Chat, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%s API key required", cfg.Provider)
	}

	clientConfig := openai.DefaultConfig(cfg.APIKey)
	switch cfg.Provider {
	case ProviderOpenAI:
		if cfg.Model == "" {
			cfg.Model = "gpt-4o-mini"
		}
	case ProviderGroq:
		clientConfig.BaseURL = groqBaseURL
		if cfg.Model == "" {
			cfg.Model = "llama-3.3-70b-versatile"
		}
	default:
		return nil, fmt.Errorf("unsupported summary provider: %s", cfg.Provider)
	}
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}

	return &Chat{
		client:  openai.NewClientWithConfig(clientConfig),
		config:  cfg,
		reports: make(map[string]*report.Summary),
		now:     time.Now,
	}, nil
}

type generated struct {
	ChiefComplaint string   `json:"chief_complaint"`
	Symptoms       []string `json:"symptoms"`
	Diagnosis      string   `json:"diagnosis"`
	Medications    []string `json:"medications"`
	Advice         string   `json:"advice"`
	FollowUp       string   `json:"follow_up"`
}

func (c *Chat) GenerateSummary(ctx context.Context, patientID, transcript string) error {
	if strings.TrimSpace(transcript) == "" {
		return consult.ErrNoDataFound
	}

	req := openai.ChatCompletionRequest{
		Model: c.config.Model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: BuildSystemPrompt(c.config.Keywords)},
			{Role: openai.ChatMessageRoleUser, Content: BuildUserPrompt(transcript, c.config.CustomPrompt)},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{Type: openai.ChatCompletionResponseFormatTypeJSONObject},
		Temperature:    0.2,
	}

	start := time.Now()
	resp, err := c.client.CreateChatCompletion(ctx, req)
	duration := time.Since(start)
	if err != nil {
		log.Error().Err(err).Str("provider", c.config.Provider).Dur("took", duration).Msg("summarize: API call failed")
		return &consult.FetchError{Op: "generate summary", Err: err}
	}
	if len(resp.Choices) == 0 {
		return &consult.FetchError{Op: "generate summary", Err: fmt.Errorf("no response choices")}
	}

	var out generated
	if err := json.Unmarshal([]byte(resp.Choices[0].Message.Content), &out); err != nil {
		return &consult.FetchError{Op: "generate summary", Err: fmt.Errorf("parse summary: %w", err)}
	}

	r := &report.Summary{
		PatientID:      patientID,
		DoctorName:     c.config.DoctorName,
		Timestamp:      c.now().Format(time.RFC3339),
		ChiefComplaint: out.ChiefComplaint,
		Symptoms:       out.Symptoms,
		Diagnosis:      out.Diagnosis,
		Medications:    out.Medications,
		Advice:         out.Advice,
		FollowUp:       out.FollowUp,
	}

	c.mu.Lock()
	c.reports[patientID] = r
	c.mu.Unlock()

	log.Info().Str("patient_id", patientID).Dur("took", duration).Msg("summarize: summary generated")
	return nil
}

func (c *Chat) Report(ctx context.Context, patientID string) (*report.Summary, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	r, ok := c.reports[patientID]
	if !ok {
		return nil, consult.ErrNoDataFound
	}
	clone := r.Clone()
	return &clone, nil
}
