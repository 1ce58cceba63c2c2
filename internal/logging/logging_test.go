package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    zerolog.Level
		wantErr bool
	}{
		{"", zerolog.InfoLevel, false},
		{"debug", zerolog.DebugLevel, false},
		{"WARN", zerolog.WarnLevel, false},
		{"error", zerolog.ErrorLevel, false},
		{"off", zerolog.Disabled, false},
		{"verbose", zerolog.NoLevel, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseLevel(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseLevel(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestInitWritesToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "medscribe.log")

	closer, err := Init(Config{Level: "info", File: path})
	if err != nil {
		t.Fatalf("Init() error: %v", err)
	}
	defer zerolog.SetGlobalLevel(zerolog.InfoLevel)

	log.Info().Str("patient_id", "1").Msg("session: started")
	if err := closer.Close(); err != nil {
		t.Fatalf("Close() error: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if !strings.Contains(string(data), "session: started") {
		t.Errorf("log file missing message, got %q", string(data))
	}
}

func TestInitRejectsUnknownLevel(t *testing.T) {
	if _, err := Init(Config{Level: "loud"}); err == nil {
		t.Error("expected error for unknown level")
	}
}
