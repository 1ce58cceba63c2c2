// Package wire defines the frames exchanged with the streaming
// transcription service.
package wire

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
)

type FrameType string

const (
	TypeSessionInfo FrameType = "session_info"
	TypeAudio       FrameType = "audio"
	TypeClose       FrameType = "close"
	TypeTranscript  FrameType = "transcript"
)

var (
	ErrMalformedFrame = errors.New("malformed frame")
	ErrUnknownFrame   = errors.New("unknown frame type")
)

// Outbound is implemented by every frame the client may send.
type Outbound interface {
	FrameType() FrameType
}

// SessionInfo is sent once, right after the socket opens.
type SessionInfo struct {
	Type       FrameType `json:"type"`
	PatientID  string    `json:"patient_id"`
	DoctorName string    `json:"dr_name"`
}

// Audio carries base64 16-bit PCM, 16 kHz mono.
type Audio struct {
	Type  FrameType `json:"type"`
	Audio string    `json:"audio"`
}

// Close asks the server to end the session before the socket closes.
type Close struct {
	Type FrameType `json:"type"`
}

func (SessionInfo) FrameType() FrameType { return TypeSessionInfo }
func (Audio) FrameType() FrameType       { return TypeAudio }
func (Close) FrameType() FrameType       { return TypeClose }

func NewSessionInfo(patientID, doctorName string) SessionInfo {
	return SessionInfo{Type: TypeSessionInfo, PatientID: patientID, DoctorName: doctorName}
}

// NewAudio base64-encodes a PCM16 buffer into an audio frame.
func NewAudio(pcm []byte) Audio {
	return Audio{Type: TypeAudio, Audio: base64.StdEncoding.EncodeToString(pcm)}
}

func NewClose() Close {
	return Close{Type: TypeClose}
}

// Transcript is a partial transcript fragment pushed by the server.
type Transcript struct {
	Type FrameType `json:"type"`
	Text string    `json:"text"`
}

// DecodeInbound validates a raw server message and returns the typed frame.
// Frames that fail schema validation wrap ErrMalformedFrame; frames with a
// type this client does not handle wrap ErrUnknownFrame.
func DecodeInbound(data []byte) (Transcript, error) {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return Transcript{}, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}
	if err := envelopeSchema.Validate(raw); err != nil {
		return Transcript{}, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}

	typ := FrameType(raw.(map[string]any)["type"].(string))
	if typ != TypeTranscript {
		return Transcript{}, fmt.Errorf("%w: %q", ErrUnknownFrame, typ)
	}
	if err := transcriptSchema.Validate(raw); err != nil {
		return Transcript{}, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}

	var t Transcript
	if err := json.Unmarshal(data, &t); err != nil {
		return Transcript{}, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}
	return t, nil
}
