// Package stream is the duplex WebSocket client for the live transcription
// service.
package stream

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/leonardotrapani/medscribe/internal/wire"
	"github.com/rs/zerolog/log"
)

// ConnectionError reports that the socket failed to open or closed while the
// session still needed it.
type ConnectionError struct {
	Op  string
	Err error
}

func (e *ConnectionError) Error() string {
	if e == nil || e.Err == nil {
		return "transcription socket error"
	}
	return fmt.Sprintf("transcription socket %s: %v", e.Op, e.Err)
}

func (e *ConnectionError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func IsConnectionError(err error) bool {
	var ce *ConnectionError
	return errors.As(err, &ce)
}

var ErrClosed = errors.New("socket closed")

type Config struct {
	URL              string
	Header           http.Header
	HandshakeTimeout time.Duration
}

// Result is one inbound transcript fragment, or the error that ended the
// stream.
type Result struct {
	Text string
	Err  error
}

type Client struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
	results chan Result
	done    chan struct{}
	closing atomic.Bool
	once    sync.Once
	wg      sync.WaitGroup
}

// Dial opens the socket and starts the reader goroutine.
func Dial(ctx context.Context, cfg Config) (*Client, error) {
	if cfg.URL == "" {
		return nil, &ConnectionError{Op: "dial", Err: errors.New("empty url")}
	}

	dialer := *websocket.DefaultDialer
	if cfg.HandshakeTimeout > 0 {
		dialer.HandshakeTimeout = cfg.HandshakeTimeout
	}

	log.Debug().Str("url", cfg.URL).Msg("stream: connecting")
	conn, resp, err := dialer.DialContext(ctx, cfg.URL, cfg.Header)
	if err != nil {
		if resp != nil {
			log.Warn().Int("status", resp.StatusCode).Msg("stream: dial failed")
		}
		return nil, &ConnectionError{Op: "dial", Err: err}
	}

	c := &Client{
		conn:    conn,
		results: make(chan Result, 100),
		done:    make(chan struct{}),
	}
	c.wg.Add(1)
	go c.readLoop()

	log.Info().Str("url", cfg.URL).Msg("stream: connected")
	return c, nil
}

func (c *Client) readLoop() {
	defer c.wg.Done()
	defer close(c.results)

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if c.closing.Load() {
				return
			}
			c.emit(Result{Err: &ConnectionError{Op: "read", Err: err}})
			return
		}

		frame, err := wire.DecodeInbound(message)
		if err != nil {
			log.Warn().Err(err).Msg("stream: dropping inbound frame")
			continue
		}
		c.emit(Result{Text: frame.Text})
	}
}

func (c *Client) emit(r Result) {
	select {
	case c.results <- r:
	case <-c.done:
	}
}

// Transcripts yields fragments in receipt order. It is closed when the
// socket closes; an unexpected close is delivered as a final Result with Err.
func (c *Client) Transcripts() <-chan Result {
	return c.results
}

func (c *Client) Send(frame wire.Outbound) error {
	if c.closing.Load() {
		return ErrClosed
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.conn.WriteJSON(frame); err != nil {
		return &ConnectionError{Op: "write " + string(frame.FrameType()), Err: err}
	}
	return nil
}

func (c *Client) SendSessionInfo(patientID, doctorName string) error {
	return c.Send(wire.NewSessionInfo(patientID, doctorName))
}

func (c *Client) SendAudio(pcm []byte) error {
	return c.Send(wire.NewAudio(pcm))
}

// Close sends the close control frame, closes the socket and waits for the
// reader to exit. Safe to call more than once.
func (c *Client) Close() error {
	var err error
	c.once.Do(func() {
		if sendErr := c.Send(wire.NewClose()); sendErr != nil {
			log.Debug().Err(sendErr).Msg("stream: close frame not sent")
		}
		c.closing.Store(true)
		close(c.done)

		c.writeMu.Lock()
		_ = c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		c.writeMu.Unlock()

		err = c.conn.Close()
		c.wg.Wait()
		log.Debug().Msg("stream: closed")
	})
	return err
}
