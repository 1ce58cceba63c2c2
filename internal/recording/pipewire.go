package recording

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
)

const pipewireCheckTimeout = 2 * time.Second

// PipeWireSource captures audio by reading raw PCM from pw-record's stdout.
// Frames always hold whole samples.
type PipeWireSource struct {
	config Config
	active atomic.Bool

	mu   sync.Mutex
	stop context.CancelFunc
	done chan struct{}
}

func NewPipeWireSource(config Config) *PipeWireSource {
	return &PipeWireSource{config: config}
}

func (p *PipeWireSource) IsRecording() bool {
	return p.active.Load()
}

// Start spawns pw-record and streams its output until Stop is called, the
// context ends or the child exits.
func (p *PipeWireSource) Start(ctx context.Context) (<-chan AudioFrame, <-chan error, error) {
	if !p.active.CompareAndSwap(false, true) {
		return nil, nil, ErrAlreadyRecording
	}

	proc, runCtx, cancel, err := p.launch(ctx)
	if err != nil {
		p.active.Store(false)
		return nil, nil, err
	}

	frames := make(chan AudioFrame, p.config.ChannelBufferSize)
	errs := make(chan error, 1)
	done := make(chan struct{})

	p.mu.Lock()
	p.stop = cancel
	p.done = done
	p.mu.Unlock()

	go p.run(runCtx, cancel, proc, frames, errs, done)
	return frames, errs, nil
}

func (p *PipeWireSource) launch(ctx context.Context) (*pwProcess, context.Context, context.CancelFunc, error) {
	if err := p.config.validate(); err != nil {
		return nil, nil, nil, err
	}
	if err := CheckPipeWireAvailable(ctx); err != nil {
		return nil, nil, nil, fmt.Errorf("PipeWire not available: %w", err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	proc, err := spawnPwRecord(runCtx, pwRecordArgs(p.config))
	if err != nil {
		cancel()
		return nil, nil, nil, err
	}
	log.Debug().Int("pid", proc.cmd.Process.Pid).Str("device", p.config.Device).Msg("recording: pw-record started")
	return proc, runCtx, cancel, nil
}

// Stop cancels capture and blocks until pw-record has been reaped, so the
// device is free once it returns.
func (p *PipeWireSource) Stop() error {
	p.mu.Lock()
	stop, done := p.stop, p.done
	p.stop, p.done = nil, nil
	p.mu.Unlock()

	if stop == nil {
		return nil
	}
	stop()
	<-done
	return nil
}

func (p *PipeWireSource) run(ctx context.Context, cancel context.CancelFunc, proc *pwProcess, frames chan<- AudioFrame, errs chan<- error, done chan<- struct{}) {
	fatal := &fatalOnce{errs: errs, cancel: cancel}

	stderrDone := make(chan struct{})
	go func() {
		defer close(stderrDone)
		watchStderr(proc.stderr, fatal.report)
	}()

	pumpFrames(ctx, proc.stdout, frameChunk(p.config), frames, fatal.report)

	// The child has to be gone and stderr drained before the channels close.
	stopped := ctx.Err() != nil
	cancel()
	<-stderrDone
	if err := proc.cmd.Wait(); err != nil && !stopped {
		log.Debug().Err(err).Msg("recording: pw-record exited")
	}

	close(frames)
	close(errs)
	p.active.Store(false)
	close(done)
}

// pwProcess is one running pw-record child with its output pipes.
type pwProcess struct {
	cmd    *exec.Cmd
	stdout io.Reader
	stderr io.Reader
}

func spawnPwRecord(ctx context.Context, args []string) (*pwProcess, error) {
	cmd := exec.CommandContext(ctx, "pw-record", args...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("pw-record stdout: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("pw-record stderr: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, classifyDeviceError(fmt.Errorf("start pw-record: %w", err))
	}
	return &pwProcess{cmd: cmd, stdout: stdout, stderr: stderr}, nil
}

// fatalOnce forwards the first capture failure and tears the child down.
type fatalOnce struct {
	once   sync.Once
	errs   chan<- error
	cancel context.CancelFunc
}

func (f *fatalOnce) report(err error) {
	f.once.Do(func() {
		log.Error().Err(err).Msg("recording: capture failed")
		f.errs <- err
	})
	f.cancel()
}

// watchStderr logs pw-record diagnostics and reports refused device access.
// It keeps reading after a failure so the pipe drains.
func watchStderr(r io.Reader, fail func(error)) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if isPermissionMessage(line) {
			fail(fmt.Errorf("%w: %s", ErrPermissionDenied, line))
			continue
		}
		log.Debug().Str("line", line).Msg("recording: pw-record")
	}
}

// pumpFrames reads fixed-size chunks and hands them to frames. A full frame
// channel drops the chunk instead of stalling pw-record.
func pumpFrames(ctx context.Context, r io.Reader, chunk int, frames chan<- AudioFrame, fail func(error)) {
	meter := dropMeter{since: time.Now()}
	buf := make([]byte, chunk)

	for {
		n, err := io.ReadFull(r, buf)
		if n > 0 {
			select {
			case frames <- AudioFrame{Data: buf[:n], Timestamp: time.Now()}:
				buf = make([]byte, chunk)
			case <-ctx.Done():
				return
			default:
				meter.drop()
			}
		}

		switch {
		case err == nil:
		case ctx.Err() != nil, errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
			return
		default:
			fail(fmt.Errorf("read audio: %w", err))
			return
		}
	}
}

// frameChunk rounds BufferSize down to whole s16 samples across all channels.
func frameChunk(c Config) int {
	sample := 2 * c.Channels
	if c.BufferSize < sample {
		return sample
	}
	return c.BufferSize - c.BufferSize%sample
}

type dropMeter struct {
	dropped int
	since   time.Time
}

func (d *dropMeter) drop() {
	d.dropped++
	if time.Since(d.since) < time.Second {
		return
	}
	log.Warn().Int("dropped", d.dropped).Msg("recording: consumer too slow, frames dropped")
	d.dropped = 0
	d.since = time.Now()
}

func pwRecordArgs(c Config) []string {
	args := []string{
		"--format", c.Format,
		"--rate", strconv.Itoa(c.SampleRate),
		"--channels", strconv.Itoa(c.Channels),
		"-",
	}
	if c.Device != "" {
		args = append(args, "--target", c.Device)
	}
	return args
}

// CheckPipeWireAvailable reports whether pw-record is installed and the
// PipeWire daemon answers pw-cli.
func CheckPipeWireAvailable(ctx context.Context) error {
	bin, err := exec.LookPath("pw-record")
	if err != nil {
		return fmt.Errorf("pw-record not found (install pipewire-tools): %w", err)
	}

	checkCtx, cancel := context.WithTimeout(ctx, pipewireCheckTimeout)
	defer cancel()
	out, err := exec.CommandContext(checkCtx, "pw-cli", "info").CombinedOutput()
	if err != nil {
		return classifyDeviceError(fmt.Errorf("PipeWire daemon unreachable: %w: %s", err, bytes.TrimSpace(out)))
	}
	log.Debug().Str("bin", bin).Msg("recording: PipeWire available")
	return nil
}
