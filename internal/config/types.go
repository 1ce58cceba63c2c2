package config

import (
	"time"

	"github.com/leonardotrapani/medscribe/internal/notify"
	"github.com/leonardotrapani/medscribe/internal/patient"
)

type Config struct {
	Doctor        DoctorConfig        `toml:"doctor"`
	Recording     RecordingConfig     `toml:"recording"`
	Transcription TranscriptionConfig `toml:"transcription"`
	Service       ServiceConfig       `toml:"service"`
	Summary       SummaryConfig       `toml:"summary"`
	API           APIConfig           `toml:"api"`
	Notifications NotificationsConfig `toml:"notifications"`
	Export        ExportConfig        `toml:"export"`
	Logging       LoggingConfig       `toml:"logging"`
	Patients      []patient.Patient   `toml:"patients"`
}

type DoctorConfig struct {
	Name string `toml:"name"`
}

type RecordingConfig struct {
	Backend           string `toml:"backend"` // "pipewire" or "malgo"
	SampleRate        int    `toml:"sample_rate"`
	Channels          int    `toml:"channels"`
	Format            string `toml:"format"`
	BufferSize        int    `toml:"buffer_size"`
	Device            string `toml:"device"`
	ChannelBufferSize int    `toml:"channel_buffer_size"`
}

// TranscriptionConfig points at the streaming speech-to-text socket.
type TranscriptionConfig struct {
	URL              string        `toml:"url"`
	APIKey           string        `toml:"api_key"`
	HandshakeTimeout time.Duration `toml:"handshake_timeout"`
}

// ServiceConfig points at the REST consultation service.
type ServiceConfig struct {
	BaseURL        string        `toml:"base_url"`
	RequestTimeout time.Duration `toml:"request_timeout"`
}

type SummaryConfig struct {
	Provider     string   `toml:"provider"` // "service", "openai" or "groq"
	APIKey       string   `toml:"api_key"`
	Model        string   `toml:"model"`
	BaseURL      string   `toml:"base_url"`
	Keywords     []string `toml:"keywords"`
	CustomPrompt string   `toml:"custom_prompt"`
}

type APIConfig struct {
	Enabled        bool     `toml:"enabled"`
	Listen         string   `toml:"listen"`
	AllowedOrigins []string `toml:"allowed_origins"`
}

type NotificationsConfig struct {
	Enabled  bool           `toml:"enabled"`
	Type     string         `toml:"type"` // "desktop", "log", "none"
	Messages MessagesConfig `toml:"messages"`
}

type MessageConfig struct {
	Title string `toml:"title"`
	Body  string `toml:"body"`
}

type MessagesConfig struct {
	RecordingStarted MessageConfig `toml:"recording_started"`
	RecordingStopped MessageConfig `toml:"recording_stopped"`
	SessionFailed    MessageConfig `toml:"session_failed"`
	SummaryReady     MessageConfig `toml:"summary_ready"`
}

// Resolve returns the user overrides keyed by notification type.
func (m MessagesConfig) Resolve() map[notify.MessageType]notify.Message {
	out := make(map[notify.MessageType]notify.Message)
	add := func(t notify.MessageType, mc MessageConfig) {
		if mc.Title != "" || mc.Body != "" {
			out[t] = notify.Message{Title: mc.Title, Body: mc.Body}
		}
	}
	add(notify.MsgRecordingStarted, m.RecordingStarted)
	add(notify.MsgRecordingStopped, m.RecordingStopped)
	add(notify.MsgSessionFailed, m.SessionFailed)
	add(notify.MsgSummaryReady, m.SummaryReady)
	return out
}

type ExportConfig struct {
	Dir string `toml:"dir"`
}

type LoggingConfig struct {
	Level string `toml:"level"`
	File  string `toml:"file"`
}
