package config

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/leonardotrapani/medscribe/internal/notify"
	"github.com/leonardotrapani/medscribe/internal/patient"
	"github.com/leonardotrapani/medscribe/internal/testutil"
)

func TestDefaultConfigIsValid(t *testing.T) {
	if err := DefaultConfig().Validate(); err != nil {
		t.Fatalf("DefaultConfig().Validate() error: %v", err)
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr string
	}{
		{"valid", func(c *Config) {}, ""},
		{"empty doctor", func(c *Config) { c.Doctor.Name = "" }, "doctor.name"},
		{"bad backend", func(c *Config) { c.Recording.Backend = "alsa" }, "recording.backend"},
		{"zero sample rate", func(c *Config) { c.Recording.SampleRate = 0 }, "recording.sample_rate"},
		{"sample rate below 16 kHz", func(c *Config) { c.Recording.SampleRate = 8000 }, "recording.sample_rate"},
		{"48 kHz capture", func(c *Config) { c.Recording.SampleRate = 48000 }, ""},
		{"float format", func(c *Config) { c.Recording.Format = "f32" }, "recording.format"},
		{"http transcription url", func(c *Config) { c.Transcription.URL = "http://localhost/ws" }, "transcription.url"},
		{"missing service url", func(c *Config) { c.Service.BaseURL = "" }, "service.base_url"},
		{"zero request timeout", func(c *Config) { c.Service.RequestTimeout = 0 }, "service.request_timeout"},
		{"unknown summary provider", func(c *Config) { c.Summary.Provider = "local" }, "summary.provider"},
		{"openai without key", func(c *Config) { c.Summary.Provider = "openai" }, "OpenAI API key"},
		{"openai with key", func(c *Config) { c.Summary.Provider = "openai"; c.Summary.APIKey = "k" }, ""},
		{"bad notification type", func(c *Config) { c.Notifications.Type = "pager" }, "notifications.type"},
		{"notifications disabled ignores type", func(c *Config) { c.Notifications.Enabled = false; c.Notifications.Type = "" }, ""},
		{"bad log level", func(c *Config) { c.Logging.Level = "loud" }, "logging.level"},
		{"duplicate patient", func(c *Config) { c.Patients = append(c.Patients, c.Patients[0]) }, "duplicate patient"},
		{"api without listen", func(c *Config) { c.API.Listen = "" }, "api.listen"},
	}

	t.Setenv("OPENAI_API_KEY", "")

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := DefaultConfig()
			tt.modify(c)
			err := c.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestSummaryAPIKeyFromEnv(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "env-key")
	c := DefaultConfig()
	c.Summary.Provider = "openai"

	if got := c.SummaryAPIKey(); got != "env-key" {
		t.Errorf("SummaryAPIKey() = %q, want env-key", got)
	}
	if err := c.Validate(); err != nil {
		t.Errorf("env key should satisfy validation: %v", err)
	}
	if !c.UsesLocalSummary() {
		t.Error("openai provider should use the local summarizer")
	}
	if got := c.ToSummarizeConfig(); got.APIKey != "env-key" || got.DoctorName != "Dr. Smith" {
		t.Errorf("ToSummarizeConfig() = %+v", got)
	}
}

func TestLoadFromMergesDefaults(t *testing.T) {
	path := testutil.CreateTempConfigFile(t, `
[doctor]
name = "Dr. Rao"

[service]
base_url = "https://consult.example.com"
request_timeout = "5s"

[[patients]]
id = "7"
name = "Meera Iyer"
condition = "Migraine"

[[patients]]
id = "7"
name = "Duplicate"
`)

	c, err := LoadFrom(path)
	if err != nil {
		t.Fatalf("LoadFrom() error: %v", err)
	}
	if c.Doctor.Name != "Dr. Rao" || c.Service.BaseURL != "https://consult.example.com" {
		t.Errorf("values not loaded: %+v", c)
	}
	if c.Service.RequestTimeout != 5*time.Second {
		t.Errorf("request_timeout = %v", c.Service.RequestTimeout)
	}
	if c.Recording.SampleRate != 16000 || c.Transcription.URL == "" {
		t.Error("omitted keys should keep defaults")
	}
	if len(c.Patients) != 1 || c.Patients[0].Name != "Meera Iyer" {
		t.Errorf("patients = %+v", c.Patients)
	}
	if err := c.Validate(); err != nil {
		t.Errorf("loaded config invalid: %v", err)
	}
}

func TestLoadPatientRecord(t *testing.T) {
	path := testutil.CreateTempConfigFile(t, `
[[patients]]
id = "4"
name = "Kavya Nair"
desc = "Asthma review"
schedule_time = "09:15 AM"
medications = ["Salbutamol", "Budesonide"]

[patients.vitals]
hr = 88
spo2 = "96%"
bp = "116/74"

[patients.labs]
glucose = 104
hba1c = 5.6

[[patients.previous_checkups]]
date = "2025-09-01"
notes = "Mild wheeze."
next_appointment = "2025-10-01"

[[patients.messages]]
sender = "patient"
text = "Breathing is better today"
time = "07:45 AM"
date = "2025-10-12"
`)

	c, err := LoadFrom(path)
	if err != nil {
		t.Fatalf("LoadFrom() error: %v", err)
	}
	if err := c.Validate(); err != nil {
		t.Fatalf("Validate() error: %v", err)
	}
	if len(c.Patients) != 1 {
		t.Fatalf("patients = %+v", c.Patients)
	}
	p := c.Patients[0]
	if p.Desc != "Asthma review" || p.ScheduleTime != "09:15 AM" {
		t.Errorf("header fields = %q, %q", p.Desc, p.ScheduleTime)
	}
	if p.Vitals.HR != 88 || p.Vitals.SpO2 != "96%" {
		t.Errorf("vitals = %+v", p.Vitals)
	}
	if p.Labs["glucose"] != 104 || p.Labs["hba1c"] != 5.6 {
		t.Errorf("labs = %v", p.Labs)
	}
	if len(p.Medications) != 2 || len(p.PreviousCheckups) != 1 || p.PreviousCheckups[0].NextAppointment != "2025-10-01" {
		t.Errorf("record = %+v", p)
	}
	if len(p.History) != 1 || p.History[0].Text != "Breathing is better today" {
		t.Errorf("history = %+v", p.History)
	}
}

func TestValidateRejectsBadHistory(t *testing.T) {
	c := DefaultConfig()
	c.Patients[0].History = append(c.Patients[0].History, patient.HistoryMessage{Sender: "John", Text: "hi"})
	err := c.Validate()
	if err == nil || !strings.Contains(err.Error(), "patients[0].messages[3]") {
		t.Errorf("Validate() = %v, want history error", err)
	}
}

func TestLoadFromInvalidTOML(t *testing.T) {
	path := testutil.CreateTempConfigFile(t, "[doctor\nname = ")
	if _, err := LoadFrom(path); err == nil {
		t.Error("expected parse error")
	}
}

func TestLoadFromMissing(t *testing.T) {
	if _, err := LoadFrom(filepath.Join(t.TempDir(), "nope.toml")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestLoadCreatesDefault(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	c, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if c.Doctor.Name != DefaultConfig().Doctor.Name {
		t.Errorf("expected defaults, got %+v", c.Doctor)
	}

	path, _ := GetConfigPath()
	if _, err := os.Stat(path); err != nil {
		t.Errorf("config file not created: %v", err)
	}
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.toml")
	c := DefaultConfig()
	c.Doctor.Name = "Dr. Mehta"
	c.Service.RequestTimeout = 45 * time.Second

	if err := SaveTo(path, c); err != nil {
		t.Fatalf("SaveTo() error: %v", err)
	}
	loaded, err := LoadFrom(path)
	if err != nil {
		t.Fatalf("LoadFrom() error: %v", err)
	}
	if loaded.Doctor.Name != "Dr. Mehta" || loaded.Service.RequestTimeout != 45*time.Second {
		t.Errorf("round trip lost values: %+v", loaded)
	}
	if len(loaded.Patients) != len(c.Patients) {
		t.Errorf("patients = %d, want %d", len(loaded.Patients), len(c.Patients))
	}
}

func TestMessagesResolve(t *testing.T) {
	m := MessagesConfig{SessionFailed: MessageConfig{Body: "Mic lost"}}
	got := m.Resolve()
	if len(got) != 1 || got[notify.MsgSessionFailed].Body != "Mic lost" {
		t.Errorf("Resolve() = %+v", got)
	}
}

func TestConversions(t *testing.T) {
	c := DefaultConfig()
	rc := c.ToRecordingConfig()
	if rc.Backend != "pipewire" || rc.SampleRate != 16000 {
		t.Errorf("ToRecordingConfig() = %+v", rc)
	}
	cc := c.ToConsultConfig()
	if cc.BaseURL != c.Service.BaseURL || cc.Timeout != 30*time.Second {
		t.Errorf("ToConsultConfig() = %+v", cc)
	}
	if c.UsesLocalSummary() {
		t.Error("service provider should not use the local summarizer")
	}
	c.Export.Dir = "/tmp/exports"
	if c.ExportDir() != "/tmp/exports" {
		t.Errorf("ExportDir() = %q", c.ExportDir())
	}
}

func TestManagerReload(t *testing.T) {
	path := testutil.CreateTempConfigFile(t, "[doctor]\nname = \"Dr. Rao\"\n")

	m, err := NewManagerAt(path)
	if err != nil {
		t.Fatalf("NewManagerAt() error: %v", err)
	}

	var reloaded atomic.Value
	m.OnReload(func(c *Config) { reloaded.Store(c.Doctor.Name) })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := m.StartWatching(ctx); err != nil {
		t.Fatalf("StartWatching() error: %v", err)
	}
	defer m.Stop()

	if err := os.WriteFile(path, []byte("[doctor]\nname = \"Dr. Mehta\"\n"), 0600); err != nil {
		t.Fatal(err)
	}

	testutil.WaitForCondition(t, "reload hook", func() bool {
		v, _ := reloaded.Load().(string)
		return v == "Dr. Mehta"
	}, 3*time.Second)
	if got := m.GetConfig().Doctor.Name; got != "Dr. Mehta" {
		t.Fatalf("config not reloaded, doctor = %q", got)
	}
}

func TestManagerRejectsInvalidReload(t *testing.T) {
	path := testutil.CreateTempConfigFile(t, "[doctor]\nname = \"Dr. Rao\"\n")
	m, err := NewManagerAt(path)
	if err != nil {
		t.Fatal(err)
	}

	os.WriteFile(path, []byte("[doctor]\nname = \"\"\n"), 0600)
	if m.Reload() {
		t.Error("Reload() should reject an invalid config")
	}
	if m.GetConfig().Doctor.Name != "Dr. Rao" {
		t.Error("previous config should stay active")
	}
}
