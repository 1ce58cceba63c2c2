package recording

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

// ErrPermissionDenied is returned when the user or the audio server refuses
// access to the capture device.
var ErrPermissionDenied = errors.New("microphone permission denied")

var ErrAlreadyRecording = errors.New("already recording")

const (
	BackendPipeWire = "pipewire"
	BackendMalgo    = "malgo"
)

type AudioFrame struct {
	Data      []byte
	Timestamp time.Time
}

// Source produces raw s16le frames from a capture device until stopped.
// The frame channel is closed when capture ends; the error channel carries
// at most one fatal capture error.
type Source interface {
	Start(ctx context.Context) (<-chan AudioFrame, <-chan error, error)
	Stop() error
}

type Config struct {
	Backend           string
	SampleRate        int
	Channels          int
	Format            string
	BufferSize        int
	Device            string
	ChannelBufferSize int
}

func DefaultConfig() Config {
	return Config{
		Backend:           BackendPipeWire,
		SampleRate:        16000,
		Channels:          1,
		Format:            "s16",
		BufferSize:        4096,
		Device:            "",
		ChannelBufferSize: 30,
	}
}

// NewSource returns the capture source selected by cfg.Backend.
func NewSource(cfg Config) (Source, error) {
	switch cfg.Backend {
	case "", BackendPipeWire:
		return NewPipeWireSource(cfg), nil
	case BackendMalgo:
		return NewMalgoSource(cfg), nil
	default:
		return nil, fmt.Errorf("unsupported recording backend: %s", cfg.Backend)
	}
}

func (c Config) validate() error {
	if c.SampleRate < TargetSampleRate {
		return fmt.Errorf("invalid SampleRate: %d (must be at least %d)", c.SampleRate, TargetSampleRate)
	}
	if c.Channels <= 0 {
		return fmt.Errorf("invalid Channels: %d", c.Channels)
	}
	if c.BufferSize <= 0 {
		return fmt.Errorf("invalid BufferSize: %d", c.BufferSize)
	}
	if c.ChannelBufferSize <= 0 {
		return fmt.Errorf("invalid ChannelBufferSize: %d", c.ChannelBufferSize)
	}
	if c.Format != "s16" {
		return fmt.Errorf("invalid Format: %q (only s16 is streamed)", c.Format)
	}
	frameBytes := 2 * c.Channels
	if c.BufferSize%frameBytes != 0 {
		log.Warn().Int("buffer_size", c.BufferSize).Int("frame_bytes", frameBytes).
			Msg("recording: buffer size not aligned to frame size; samples may split")
	}
	return nil
}

var permissionMarkers = []string{
	"permission denied",
	"access denied",
	"not permitted",
	"operation not allowed",
}

// classifyDeviceError maps device open failures that indicate a refused
// permission onto ErrPermissionDenied.
func classifyDeviceError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrPermissionDenied) {
		return err
	}
	if isPermissionMessage(err.Error()) {
		return fmt.Errorf("%w: %v", ErrPermissionDenied, err)
	}
	return err
}

func isPermissionMessage(msg string) bool {
	lower := strings.ToLower(msg)
	for _, m := range permissionMarkers {
		if strings.Contains(lower, m) {
			return true
		}
	}
	return false
}
