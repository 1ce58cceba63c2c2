package config

import (
	"fmt"
	"net/url"
	"time"

	"github.com/leonardotrapani/medscribe/internal/logging"
	"github.com/leonardotrapani/medscribe/internal/recording"
)

func (c *Config) Validate() error {
	if c.Doctor.Name == "" {
		return fmt.Errorf("invalid doctor.name: empty")
	}

	switch c.Recording.Backend {
	case "pipewire", "malgo":
	default:
		return fmt.Errorf("invalid recording.backend: %s (must be pipewire or malgo)", c.Recording.Backend)
	}
	if c.Recording.SampleRate < recording.TargetSampleRate {
		return fmt.Errorf("invalid recording.sample_rate: %d (must be at least %d)", c.Recording.SampleRate, recording.TargetSampleRate)
	}
	if c.Recording.Channels <= 0 {
		return fmt.Errorf("invalid recording.channels: %d", c.Recording.Channels)
	}
	if c.Recording.BufferSize <= 0 {
		return fmt.Errorf("invalid recording.buffer_size: %d", c.Recording.BufferSize)
	}
	if c.Recording.ChannelBufferSize <= 0 {
		return fmt.Errorf("invalid recording.channel_buffer_size: %d", c.Recording.ChannelBufferSize)
	}
	if c.Recording.Format != "s16" {
		return fmt.Errorf("invalid recording.format: %q (only s16 is supported)", c.Recording.Format)
	}

	if err := ValidateURL("transcription.url", c.Transcription.URL, "ws", "wss"); err != nil {
		return err
	}
	if c.Transcription.HandshakeTimeout < 0 {
		return fmt.Errorf("invalid transcription.handshake_timeout: %v", c.Transcription.HandshakeTimeout)
	}

	if err := ValidateURL("service.base_url", c.Service.BaseURL, "http", "https"); err != nil {
		return err
	}
	if c.Service.RequestTimeout <= 0 || c.Service.RequestTimeout > 10*time.Minute {
		return fmt.Errorf("invalid service.request_timeout: %v (must be between 0 and 10m)", c.Service.RequestTimeout)
	}

	switch c.Summary.Provider {
	case "service":
	case "openai":
		if c.SummaryAPIKey() == "" {
			return fmt.Errorf("OpenAI API key required: not found in config (summary.api_key) or environment variable (OPENAI_API_KEY)")
		}
	case "groq":
		if c.SummaryAPIKey() == "" {
			return fmt.Errorf("Groq API key required: not found in config (summary.api_key) or environment variable (GROQ_API_KEY)")
		}
	default:
		return fmt.Errorf("invalid summary.provider: %s (must be service, openai or groq)", c.Summary.Provider)
	}

	if c.API.Enabled && c.API.Listen == "" {
		return fmt.Errorf("invalid api.listen: empty")
	}

	validTypes := map[string]bool{"desktop": true, "log": true, "none": true}
	if c.Notifications.Enabled && !validTypes[c.Notifications.Type] {
		return fmt.Errorf("invalid notifications.type: %s (must be desktop, log, or none)", c.Notifications.Type)
	}

	if _, err := logging.ParseLevel(c.Logging.Level); err != nil {
		return fmt.Errorf("invalid logging.level: %w", err)
	}

	seen := make(map[string]bool, len(c.Patients))
	for i, p := range c.Patients {
		if p.ID == "" {
			return fmt.Errorf("invalid patients[%d].id: empty", i)
		}
		if seen[p.ID] {
			return fmt.Errorf("duplicate patient id: %s", p.ID)
		}
		seen[p.ID] = true
		for j, h := range p.History {
			if err := h.Validate(); err != nil {
				return fmt.Errorf("invalid patients[%d].messages[%d]: %w", i, j, err)
			}
		}
	}

	return nil
}

// ValidateURL checks that raw parses with one of schemes and has a host.
func ValidateURL(key, raw string, schemes ...string) error {
	if raw == "" {
		return fmt.Errorf("invalid %s: empty", key)
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	for _, s := range schemes {
		if u.Scheme == s {
			if u.Host == "" {
				return fmt.Errorf("invalid %s: missing host", key)
			}
			return nil
		}
	}
	return fmt.Errorf("invalid %s: scheme %q not allowed", key, u.Scheme)
}
