package notify

import (
	"fmt"
	"os/exec"

	"github.com/rs/zerolog/log"
)

type MessageType string

const (
	MsgRecordingStarted MessageType = "recording_started"
	MsgRecordingStopped MessageType = "recording_stopped"
	MsgSessionFailed    MessageType = "session_failed"
	MsgSummaryReady     MessageType = "summary_ready"
)

type Message struct {
	Title   string
	Body    string
	IsError bool
}

// DefaultMessages are used for any type the config does not override.
func DefaultMessages() map[MessageType]Message {
	return map[MessageType]Message{
		MsgRecordingStarted: {Title: "MedScribe", Body: "Recording Started"},
		MsgRecordingStopped: {Title: "MedScribe", Body: "Recording Stopped... Summarizing"},
		MsgSessionFailed:    {Title: "MedScribe", Body: "Recording failed. Please start a new session.", IsError: true},
		MsgSummaryReady:     {Title: "MedScribe", Body: "Consultation summary ready"},
	}
}

type Notifier interface {
	Send(t MessageType)
	Error(msg string)
}

// New builds a notifier of the given type ("desktop", "log" or "none").
func New(kind string, overrides map[MessageType]Message) (Notifier, error) {
	msgs := DefaultMessages()
	for k, v := range overrides {
		base := msgs[k]
		if v.Title != "" {
			base.Title = v.Title
		}
		if v.Body != "" {
			base.Body = v.Body
		}
		msgs[k] = base
	}

	switch kind {
	case "desktop":
		return &Desktop{messages: msgs}, nil
	case "log", "":
		return &Log{messages: msgs}, nil
	case "none":
		return Nop{}, nil
	default:
		return nil, fmt.Errorf("unsupported notification type: %s", kind)
	}
}

type Desktop struct {
	messages map[MessageType]Message
}

func (d *Desktop) Send(t MessageType) {
	m, ok := d.messages[t]
	if !ok {
		return
	}
	args := []string{"-a", m.Title}
	if m.IsError {
		args = append(args, "-u", "critical")
	}
	args = append(args, m.Title, m.Body)
	if err := exec.Command("notify-send", args...).Run(); err != nil {
		log.Warn().Err(err).Msg("notify: failed to send notification")
	}
}

func (d *Desktop) Error(msg string) {
	if err := exec.Command("notify-send", "-a", "MedScribe", "-u", "critical", "MedScribe Error", msg).Run(); err != nil {
		log.Warn().Err(err).Msg("notify: failed to send error notification")
	}
}

// Log writes notifications to the application log.
type Log struct {
	messages map[MessageType]Message
}

func (l *Log) Send(t MessageType) {
	m, ok := l.messages[t]
	if !ok {
		return
	}
	if m.IsError {
		log.Error().Str("notification", string(t)).Msgf("%s: %s", m.Title, m.Body)
		return
	}
	log.Info().Str("notification", string(t)).Msgf("%s: %s", m.Title, m.Body)
}

func (l *Log) Error(msg string) {
	log.Error().Msgf("MedScribe Error: %s", msg)
}

// Nop is a Notifier that does absolutely nothing.
// Useful in unit tests or headless builds.
type Nop struct{}

func (Nop) Send(MessageType) {}
func (Nop) Error(string)     {}
