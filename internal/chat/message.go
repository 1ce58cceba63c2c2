// Package chat keeps per-patient chat threads and the live transcript
// message that partial transcript fragments accumulate into.
package chat

import (
	"time"

	"github.com/google/uuid"
	"github.com/leonardotrapani/medscribe/internal/report"
)

type Sender string

const (
	SenderClinician Sender = "You"
	SenderAgent     Sender = "chatagent"
	SenderPatient   Sender = "patient"
)

type Message struct {
	ID        string          `json:"id"`
	Sender    Sender          `json:"sender"`
	Text      string          `json:"text"`
	Time      string          `json:"time"`
	Date      string          `json:"date"`
	IsLive    bool            `json:"is_live,omitempty"`
	Loading   bool            `json:"loading,omitempty"`
	Typing    bool            `json:"typing,omitempty"`
	Failed    bool            `json:"failed,omitempty"`
	Report    *report.Summary `json:"report,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

// Placeholder reports whether m is a transient loading or typing entry.
func (m Message) Placeholder() bool {
	return m.Loading || m.Typing
}

func NewMessage(sender Sender, text string) Message {
	return Message{Sender: sender, Text: text}
}

// stamp fills in identity and timestamps for messages entering the store.
func stamp(m Message, now time.Time) Message {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = now
	}
	if m.Time == "" {
		m.Time = m.CreatedAt.Format("15:04")
	}
	if m.Date == "" {
		m.Date = m.CreatedAt.Format("2006-01-02")
	}
	return m
}
