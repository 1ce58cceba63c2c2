package api

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/leonardotrapani/medscribe/internal/chat"
	"github.com/rs/zerolog/log"
)

const (
	writeWait  = 5 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
)

// threadFrame is pushed to stream clients on connect and after every change
// to the patient's thread.
type threadFrame struct {
	Type      string         `json:"type"`
	PatientID string         `json:"patient_id"`
	Event     chat.EventKind `json:"event,omitempty"`
	Messages  []chat.Message `json:"messages"`
}

func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	id, ok := s.patientFromURL(w, r)
	if !ok {
		return
	}

	events, cancel := s.store.Subscribe(256)
	defer cancel()

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Msg("api: websocket upgrade failed")
		return
	}
	defer conn.Close()

	logger := log.With().Str("patient_id", id).Str("remote", r.RemoteAddr).Logger()
	logger.Debug().Msg("api: stream client connected")

	// the reader only exists to notice the client going away
	gone := make(chan struct{})
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	send := func(kind chat.EventKind) bool {
		msgs := s.store.Messages(id)
		if msgs == nil {
			msgs = []chat.Message{}
		}
		conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteJSON(threadFrame{Type: "thread", PatientID: id, Event: kind, Messages: msgs}); err != nil {
			logger.Debug().Err(err).Msg("api: stream write failed")
			return false
		}
		return true
	}

	if !send("") {
		return
	}

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return
			}
			if ev.PatientID != id {
				continue
			}
			if !send(ev.Kind) {
				return
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		case <-gone:
			logger.Debug().Msg("api: stream client disconnected")
			return
		case <-r.Context().Done():
			return
		}
	}
}
