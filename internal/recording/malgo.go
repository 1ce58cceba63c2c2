package recording

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gen2brain/malgo"
	"github.com/rs/zerolog/log"
)

// MalgoSource captures audio through miniaudio, for hosts without PipeWire.
type MalgoSource struct {
	config    Config
	recording atomic.Bool

	mu      sync.Mutex // guards the fields below
	ctx     *malgo.AllocatedContext
	device  *malgo.Device
	frameCh chan AudioFrame
	errCh   chan error
	stopped chan struct{}
	dropped int
}

func NewMalgoSource(config Config) *MalgoSource {
	return &MalgoSource{config: config}
}

func (m *MalgoSource) IsRecording() bool {
	return m.recording.Load()
}

func (m *MalgoSource) Start(ctx context.Context) (<-chan AudioFrame, <-chan error, error) {
	if m.recording.Load() {
		return nil, nil, ErrAlreadyRecording
	}
	if err := m.config.validate(); err != nil {
		return nil, nil, err
	}

	mctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, nil, classifyDeviceError(fmt.Errorf("init audio context: %w", err))
	}

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Capture)
	deviceConfig.Capture.Format = malgo.FormatS16
	deviceConfig.Capture.Channels = uint32(m.config.Channels)
	deviceConfig.SampleRate = uint32(m.config.SampleRate)

	if m.config.Device != "" {
		info, err := findCaptureDevice(mctx, m.config.Device)
		if err != nil {
			_ = mctx.Uninit()
			mctx.Free()
			return nil, nil, err
		}
		deviceConfig.Capture.DeviceID = info.ID.Pointer()
	}

	frameCh := make(chan AudioFrame, m.config.ChannelBufferSize)
	errCh := make(chan error, 1)
	stopped := make(chan struct{})

	callbacks := malgo.DeviceCallbacks{
		Data: func(_, input []byte, _ uint32) {
			m.deliver(input)
		},
	}

	device, err := malgo.InitDevice(mctx.Context, deviceConfig, callbacks)
	if err != nil {
		_ = mctx.Uninit()
		mctx.Free()
		return nil, nil, classifyDeviceError(fmt.Errorf("open capture device: %w", err))
	}

	m.mu.Lock()
	m.ctx = mctx
	m.device = device
	m.frameCh = frameCh
	m.errCh = errCh
	m.stopped = stopped
	m.mu.Unlock()

	if err := device.Start(); err != nil {
		m.release()
		return nil, nil, classifyDeviceError(fmt.Errorf("start capture device: %w", err))
	}
	m.recording.Store(true)

	go func() {
		select {
		case <-ctx.Done():
			_ = m.Stop()
		case <-stopped:
		}
	}()

	log.Info().Int("sample_rate", m.config.SampleRate).Int("channels", m.config.Channels).
		Msg("recording: miniaudio capture started")
	return frameCh, errCh, nil
}

func (m *MalgoSource) deliver(input []byte) {
	if len(input) == 0 {
		return
	}
	data := make([]byte, len(input))
	copy(data, input)

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.frameCh == nil {
		return
	}
	select {
	case m.frameCh <- AudioFrame{Data: data, Timestamp: time.Now()}:
	default:
		m.dropped++
	}
}

// Stop releases the capture device and closes the frame channel.
func (m *MalgoSource) Stop() error {
	if !m.recording.CompareAndSwap(true, false) {
		return nil
	}
	m.release()
	return nil
}

func (m *MalgoSource) release() {
	m.mu.Lock()
	device := m.device
	mctx := m.ctx
	m.device = nil
	m.ctx = nil
	m.mu.Unlock()

	// The data callback takes mu, so the device is stopped without holding it.
	if device != nil {
		_ = device.Stop()
		device.Uninit()
	}
	if mctx != nil {
		_ = mctx.Uninit()
		mctx.Free()
	}

	m.mu.Lock()
	if m.frameCh != nil {
		close(m.frameCh)
		close(m.errCh)
		m.frameCh = nil
		m.errCh = nil
	}
	if m.stopped != nil {
		close(m.stopped)
		m.stopped = nil
	}
	if m.dropped > 0 {
		log.Warn().Int("dropped", m.dropped).Msg("recording: dropped frames due to backpressure")
		m.dropped = 0
	}
	m.mu.Unlock()
}

func findCaptureDevice(mctx *malgo.AllocatedContext, name string) (malgo.DeviceInfo, error) {
	devices, err := mctx.Devices(malgo.Capture)
	if err != nil {
		return malgo.DeviceInfo{}, fmt.Errorf("enumerate capture devices: %w", err)
	}
	for _, d := range devices {
		if strings.EqualFold(d.Name(), name) {
			return d, nil
		}
	}
	return malgo.DeviceInfo{}, fmt.Errorf("capture device %q not found", name)
}
