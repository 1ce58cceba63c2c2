package config

import (
	"os"
	"path/filepath"

	"github.com/leonardotrapani/medscribe/internal/consult"
	"github.com/leonardotrapani/medscribe/internal/logging"
	"github.com/leonardotrapani/medscribe/internal/recording"
	"github.com/leonardotrapani/medscribe/internal/summarize"
)

func (c *Config) ToRecordingConfig() recording.Config {
	return recording.Config{
		Backend:           c.Recording.Backend,
		SampleRate:        c.Recording.SampleRate,
		Channels:          c.Recording.Channels,
		Format:            c.Recording.Format,
		BufferSize:        c.Recording.BufferSize,
		Device:            c.Recording.Device,
		ChannelBufferSize: c.Recording.ChannelBufferSize,
	}
}

func (c *Config) ToConsultConfig() consult.Config {
	return consult.Config{
		BaseURL: c.Service.BaseURL,
		Timeout: c.Service.RequestTimeout,
	}
}

// UsesLocalSummary reports whether summaries are generated through a chat
// completion provider instead of the consultation service.
func (c *Config) UsesLocalSummary() bool {
	return c.Summary.Provider == summarize.ProviderOpenAI || c.Summary.Provider == summarize.ProviderGroq
}

func (c *Config) ToSummarizeConfig() summarize.Config {
	return summarize.Config{
		Provider:     c.Summary.Provider,
		APIKey:       c.SummaryAPIKey(),
		Model:        c.Summary.Model,
		BaseURL:      c.Summary.BaseURL,
		DoctorName:   c.Doctor.Name,
		Keywords:     c.Summary.Keywords,
		CustomPrompt: c.Summary.CustomPrompt,
	}
}

// SummaryAPIKey returns the configured key, falling back to the provider's
// environment variable.
func (c *Config) SummaryAPIKey() string {
	if c.Summary.APIKey != "" {
		return c.Summary.APIKey
	}
	switch c.Summary.Provider {
	case summarize.ProviderOpenAI:
		return os.Getenv("OPENAI_API_KEY")
	case summarize.ProviderGroq:
		return os.Getenv("GROQ_API_KEY")
	}
	return ""
}

func (c *Config) TranscriptionAPIKey() string {
	if c.Transcription.APIKey != "" {
		return c.Transcription.APIKey
	}
	return os.Getenv("MEDSCRIBE_TRANSCRIPTION_KEY")
}

func (c *Config) ToLoggingConfig() logging.Config {
	return logging.Config{
		Level: c.Logging.Level,
		File:  c.Logging.File,
	}
}

// ExportDir returns the summary export directory, defaulting to
// ~/Documents/medscribe.
func (c *Config) ExportDir() string {
	if c.Export.Dir != "" {
		return c.Export.Dir
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "medscribe")
	}
	return filepath.Join(home, "Documents", "medscribe")
}
