// Package session drives one live recording: microphone capture, the
// transcription socket, and the hand-off to the post-session pipeline.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/leonardotrapani/medscribe/internal/chat"
	"github.com/leonardotrapani/medscribe/internal/notify"
	"github.com/leonardotrapani/medscribe/internal/patient"
	"github.com/leonardotrapani/medscribe/internal/pipeline"
	"github.com/leonardotrapani/medscribe/internal/recording"
	"github.com/leonardotrapani/medscribe/internal/state"
	"github.com/leonardotrapani/medscribe/internal/stream"
	"github.com/rs/zerolog/log"
)

type State string

const (
	Idle        State = "idle"
	Capturing   State = "capturing"
	Finalizing  State = "finalizing"
	Summarizing State = "summarizing"
	Complete    State = "complete"
	Failed      State = "failed"
)

var (
	ErrAlreadyRecording = recording.ErrAlreadyRecording
	ErrNoPatient        = errors.New("no patient selected")
	// ErrPipelineBusy is returned when the patient's previous recording is
	// still being summarized.
	ErrPipelineBusy = errors.New("previous recording still processing")
	// ErrClosed is returned by Start once the controller is shut down.
	ErrClosed       = errors.New("session controller closed")
	errSourceClosed = errors.New("audio source closed")
)

// Conn is the transcription socket as seen by the controller.
type Conn interface {
	Transcripts() <-chan stream.Result
	SendSessionInfo(patientID, doctorName string) error
	SendAudio(pcm []byte) error
	Close() error
}

type Dialer func(ctx context.Context) (Conn, error)

// StreamDialer adapts stream.Dial to a Dialer.
func StreamDialer(cfg stream.Config) Dialer {
	return func(ctx context.Context) (Conn, error) {
		c, err := stream.Dial(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return c, nil
	}
}

type Options struct {
	Store     *chat.Store
	Patients  *patient.Directory
	State     *state.State
	Pipeline  pipeline.Runner
	Notifier  notify.Notifier
	NewSource func() (recording.Source, error)
	Dial      Dialer
	// SampleRate and Channels describe the frames NewSource produces.
	SampleRate int
	Channels   int
}

// Status is a snapshot of the controller.
type Status struct {
	State      State     `json:"state"`
	Recording  bool      `json:"recording"`
	PatientID  string    `json:"patient_id,omitempty"`
	DoctorName string    `json:"dr_name,omitempty"`
	StartedAt  time.Time `json:"started_at,omitempty"`
	Frames     int64     `json:"frames"`
}

type capture struct {
	patientID  string
	doctorName string
	startedAt  time.Time
	source     recording.Source
	conn       Conn
	acc        *chat.Accumulator
	ctx        context.Context
	cancel     context.CancelFunc
	audio      <-chan recording.AudioFrame
	errs       <-chan error
	stopping   atomic.Bool
	wg         sync.WaitGroup
	frames     atomic.Int64
}

// Controller owns at most one capture at a time. Stop is the only way to
// end a capture normally; socket or device failures end it as Failed.
type Controller struct {
	opts Options

	recording atomic.Bool

	mu        sync.Mutex
	state     State
	last      Status
	active    *capture
	starting  bool
	closed    bool
	finishing map[string]bool

	baseCtx    context.Context
	baseCancel context.CancelFunc
	wg         sync.WaitGroup
}

func NewController(opts Options) *Controller {
	if opts.Notifier == nil {
		opts.Notifier = notify.Nop{}
	}
	if opts.SampleRate <= 0 {
		opts.SampleRate = recording.TargetSampleRate
	}
	if opts.Channels <= 0 {
		opts.Channels = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Controller{
		opts:       opts,
		state:      Idle,
		finishing:  make(map[string]bool),
		baseCtx:    ctx,
		baseCancel: cancel,
	}
}

func (c *Controller) IsRecording() bool {
	return c.recording.Load()
}

func (c *Controller) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.last
	s.State = c.state
	s.Recording = c.recording.Load()
	if c.active != nil {
		s.Frames = c.active.frames.Load()
	}
	return s
}

// Start opens a capture for patientID, or for the selected patient when
// patientID is empty.
func (c *Controller) Start(ctx context.Context, patientID string) error {
	if patientID == "" {
		patientID = c.opts.State.SelectedPatient()
	}
	if patientID == "" {
		return ErrNoPatient
	}
	if c.opts.Patients != nil {
		if _, err := c.opts.Patients.Get(patientID); err != nil {
			return fmt.Errorf("%w: %s", ErrNoPatient, patientID)
		}
	}

	// Claim the slot under the lock; opening the device and the socket
	// happens outside it so Status stays responsive during the handshake.
	c.mu.Lock()
	switch {
	case c.closed:
		c.mu.Unlock()
		return ErrClosed
	case c.recording.Load() || c.starting:
		c.mu.Unlock()
		return ErrAlreadyRecording
	case c.finishing[patientID]:
		c.mu.Unlock()
		return ErrPipelineBusy
	}
	c.starting = true
	c.wg.Add(1)
	c.mu.Unlock()
	defer c.wg.Done()

	doctorName := c.opts.State.DoctorName()
	rec, err := c.open(ctx, patientID, doctorName)

	c.mu.Lock()
	c.starting = false
	if err != nil {
		c.mu.Unlock()
		return err
	}
	if c.closed {
		c.mu.Unlock()
		c.release(rec)
		rec.acc.Seal()
		return ErrClosed
	}
	c.active = rec
	c.state = Capturing
	c.last = Status{PatientID: patientID, DoctorName: doctorName, StartedAt: rec.startedAt}
	c.recording.Store(true)
	rec.wg.Add(2)
	go c.pumpAudio(rec.ctx, rec, rec.audio, rec.errs)
	go c.readTranscripts(rec.ctx, rec)
	c.mu.Unlock()

	c.opts.State.SelectPatient(patientID)
	log.Info().Str("patient_id", patientID).Str("dr_name", doctorName).Msg("Controller: capture started")
	c.opts.Notifier.Send(notify.MsgRecordingStarted)
	return nil
}

// open starts the audio source, dials the socket, creates the live message
// and announces the session. On error everything it opened is released.
func (c *Controller) open(ctx context.Context, patientID, doctorName string) (*capture, error) {
	logger := log.With().Str("patient_id", patientID).Logger()

	source, err := c.opts.NewSource()
	if err != nil {
		return nil, fmt.Errorf("create audio source: %w", err)
	}

	capCtx, cancel := context.WithCancel(c.baseCtx)
	frames, errs, err := source.Start(capCtx)
	if err != nil {
		cancel()
		logger.Error().Err(err).Msg("Controller: audio source failed to start")
		return nil, fmt.Errorf("start audio: %w", err)
	}

	conn, err := c.opts.Dial(ctx)
	if err != nil {
		cancel()
		_ = source.Stop()
		logger.Error().Err(err).Msg("Controller: transcription socket failed to open")
		return nil, err
	}

	rec := &capture{
		patientID:  patientID,
		doctorName: doctorName,
		startedAt:  time.Now(),
		source:     source,
		conn:       conn,
		acc:        chat.NewAccumulator(c.opts.Store, patientID),
		ctx:        capCtx,
		cancel:     cancel,
		audio:      frames,
		errs:       errs,
	}

	if _, err := rec.acc.Begin(); err != nil {
		c.release(rec)
		return nil, fmt.Errorf("create live message: %w", err)
	}
	if err := conn.SendSessionInfo(patientID, doctorName); err != nil {
		c.release(rec)
		rec.acc.Seal()
		return nil, err
	}
	return rec, nil
}

func (c *Controller) pumpAudio(ctx context.Context, rec *capture, frames <-chan recording.AudioFrame, errs <-chan error) {
	defer rec.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case frame, ok := <-frames:
			if !ok {
				c.fail(rec, errSourceClosed)
				return
			}
			pcm := recording.EncodePCM16(frame.Data, c.opts.SampleRate, c.opts.Channels)
			if len(pcm) == 0 {
				continue
			}
			if err := rec.conn.SendAudio(pcm); err != nil {
				c.fail(rec, err)
				return
			}
			rec.frames.Add(1)
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			if err != nil {
				c.fail(rec, err)
				return
			}
		}
	}
}

func (c *Controller) readTranscripts(ctx context.Context, rec *capture) {
	defer rec.wg.Done()

	results := rec.conn.Transcripts()
	for {
		select {
		case <-ctx.Done():
			return
		case r, ok := <-results:
			if !ok {
				c.fail(rec, &stream.ConnectionError{Op: "read", Err: stream.ErrClosed})
				return
			}
			if r.Err != nil {
				c.fail(rec, r.Err)
				return
			}
			c.onFragment(rec, r.Text)
		}
	}
}

func (c *Controller) onFragment(rec *capture, text string) {
	if text == "" {
		return
	}
	if !rec.acc.Append(text) {
		log.Warn().Str("patient_id", rec.patientID).Msg("Controller: fragment arrived without a live message")
	}
}

// fail ends a capture that broke while still Capturing. The live message
// keeps its partial text; no pipeline runs.
func (c *Controller) fail(rec *capture, err error) {
	if rec.stopping.Load() {
		return
	}

	c.mu.Lock()
	if c.active != rec {
		c.mu.Unlock()
		return
	}
	c.active = nil
	c.state = Failed
	rec.stopping.Store(true)
	c.mu.Unlock()

	log.Error().Err(err).Str("patient_id", rec.patientID).Int64("frames", rec.frames.Load()).Msg("Controller: capture failed")

	c.release(rec)
	rec.acc.Seal()
	c.recording.Store(false)
	c.opts.Notifier.Send(notify.MsgSessionFailed)
}

// release stops the capture goroutines, the socket and the device.
func (c *Controller) release(rec *capture) {
	rec.cancel()
	if err := rec.conn.Close(); err != nil {
		log.Debug().Err(err).Msg("Controller: socket close")
	}
	if err := rec.source.Stop(); err != nil {
		log.Debug().Err(err).Msg("Controller: audio source stop")
	}
}

// Stop ends the active capture and hands it to the pipeline. Without an
// active capture it does nothing.
func (c *Controller) Stop(ctx context.Context) error {
	c.mu.Lock()
	rec := c.active
	if rec == nil {
		c.mu.Unlock()
		return nil
	}
	c.active = nil
	rec.stopping.Store(true)
	c.state = Finalizing
	c.finishing[rec.patientID] = true
	c.mu.Unlock()

	c.release(rec)
	rec.wg.Wait()
	c.recording.Store(false)

	log.Info().
		Str("patient_id", rec.patientID).
		Int64("frames", rec.frames.Load()).
		Dur("duration", time.Since(rec.startedAt)).
		Msg("Controller: capture stopped")
	c.opts.Notifier.Send(notify.MsgRecordingStopped)

	c.wg.Add(1)
	go c.finish(rec)
	return nil
}

func (c *Controller) finish(rec *capture) {
	defer c.wg.Done()

	req := pipeline.Request{PatientID: rec.patientID, DoctorName: rec.doctorName}
	res := c.opts.Pipeline.Run(c.baseCtx, req, func(s pipeline.Status) {
		c.mu.Lock()
		if c.active == nil {
			c.state = State(s)
		}
		c.mu.Unlock()
	})

	c.mu.Lock()
	delete(c.finishing, rec.patientID)
	c.mu.Unlock()

	if res.Status == pipeline.Complete && res.Report != nil {
		c.opts.Notifier.Send(notify.MsgSummaryReady)
	}
}

// Wait blocks until every in-flight pipeline run has finished.
func (c *Controller) Wait() {
	c.wg.Wait()
}

// Close aborts any active capture without running the pipeline, cancels
// in-flight pipeline calls and waits for them.
func (c *Controller) Close() {
	c.mu.Lock()
	c.closed = true
	rec := c.active
	c.active = nil
	if rec != nil {
		rec.stopping.Store(true)
		c.state = Idle
	}
	c.mu.Unlock()

	if rec != nil {
		c.release(rec)
		rec.wg.Wait()
		rec.acc.Seal()
		c.recording.Store(false)
	}
	c.baseCancel()
	c.wg.Wait()
}
