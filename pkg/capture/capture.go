// Package capture provides microphone input through malgo, delivering
// small mono PCM chunks at real-time cadence to the extraction pipeline.
package capture

import (
	"context"
	"encoding/binary"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/gen2brain/malgo"

	"github.com/tractstream/tractstream/pkg/pipeline"
)

// Config holds the capture device parameters.
type Config struct {
	// SampleRate in Hz. The embedding model requires 16000.
	SampleRate int
	// Channels of captured audio. Only mono is supported.
	Channels int
	// PeriodMs is the device callback period in milliseconds.
	PeriodMs int
}

// DefaultConfig returns the standard capture parameters: 16 kHz mono with
// 20 ms periods.
func DefaultConfig() Config {
	return Config{
		SampleRate: 16000,
		Channels:   1,
		PeriodMs:   20,
	}
}

// IsValid validates the capture configuration.
func (c Config) IsValid() error {
	if c.SampleRate <= 0 {
		return fmt.Errorf("invalid SampleRate: %d", c.SampleRate)
	}
	if c.Channels != 1 {
		return fmt.Errorf("invalid Channels: %d, only mono capture is supported", c.Channels)
	}
	if c.PeriodMs <= 0 {
		return fmt.Errorf("invalid PeriodMs: %d", c.PeriodMs)
	}
	return nil
}

// Source is a malgo-backed microphone source. Captured chunks are emitted
// as audio messages on Out; the device callback only converts and forwards,
// it never blocks.
type Source struct {
	cfg Config

	audioContext  *malgo.AllocatedContext
	captureDevice *malgo.Device

	outChan chan *pipeline.PipelineMessage

	// onError is invoked when the device stops unexpectedly.
	onError func(error)

	mu      sync.Mutex
	started bool
}

// NewSource initializes the audio backend. onError may be nil.
func NewSource(cfg Config, onError func(error)) (*Source, error) {
	if err := cfg.IsValid(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	audioCtx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize audio context: %w", err)
	}

	if onError == nil {
		onError = func(error) {}
	}

	return &Source{
		cfg:          cfg,
		audioContext: audioCtx,
		outChan:      make(chan *pipeline.PipelineMessage, 50),
		onError:      onError,
	}, nil
}

// Out returns the channel of captured audio messages.
func (s *Source) Out() <-chan *pipeline.PipelineMessage {
	return s.outChan
}

// Start opens and starts the capture device.
func (s *Source) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Capture)
	deviceConfig.PeriodSizeInMilliseconds = uint32(s.cfg.PeriodMs)
	deviceConfig.Capture.Format = malgo.FormatS16
	deviceConfig.Capture.Channels = uint32(s.cfg.Channels)
	deviceConfig.SampleRate = uint32(s.cfg.SampleRate)
	deviceConfig.Alsa.NoMMap = 1

	device, err := malgo.InitDevice(s.audioContext.Context, deviceConfig, malgo.DeviceCallbacks{
		Data: func(outputSamples, inputSamples []byte, framecount uint32) {
			samples := bytesToFloat32(inputSamples)

			msg := &pipeline.PipelineMessage{
				Type: pipeline.MsgTypeAudio,
				AudioData: &pipeline.AudioData{
					Samples:    samples,
					SampleRate: s.cfg.SampleRate,
					Channels:   s.cfg.Channels,
					MediaType:  pipeline.AudioMediaTypeRaw,
					Timestamp:  time.Now(),
				},
				Timestamp: time.Now(),
			}

			// Never block the device callback: drop if the consumer lags.
			select {
			case s.outChan <- msg:
			default:
			}
		},
		Stop: func() {
			s.mu.Lock()
			wasStarted := s.started
			s.mu.Unlock()
			if wasStarted {
				s.onError(fmt.Errorf("capture device stopped unexpectedly"))
			}
		},
	})
	if err != nil {
		return fmt.Errorf("failed to initialize capture device: %w", err)
	}

	if err := device.Start(); err != nil {
		device.Uninit()
		return fmt.Errorf("failed to start capture device: %w", err)
	}

	s.captureDevice = device
	s.started = true
	log.Printf("[Capture] started: %d Hz, %d channel(s), %d ms periods",
		s.cfg.SampleRate, s.cfg.Channels, s.cfg.PeriodMs)
	return nil
}

// Stop stops the capture device. The source can be started again.
func (s *Source) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return nil
	}
	s.started = false

	if s.captureDevice != nil {
		s.captureDevice.Uninit()
		s.captureDevice = nil
	}
	log.Printf("[Capture] stopped")
	return nil
}

// Close releases the audio backend. The source cannot be reused.
func (s *Source) Close() error {
	if err := s.Stop(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.audioContext != nil {
		if err := s.audioContext.Uninit(); err != nil {
			return fmt.Errorf("failed to uninit audio context: %w", err)
		}
		s.audioContext.Free()
		s.audioContext = nil
	}
	return nil
}

// bytesToFloat32 converts little-endian 16-bit PCM to normalized float32
// samples in [-1, 1].
func bytesToFloat32(data []byte) []float32 {
	samples := make([]float32, len(data)/2)
	for i := range samples {
		s := int16(binary.LittleEndian.Uint16(data[i*2 : i*2+2]))
		samples[i] = float32(s) / 32768
	}
	return samples
}
