package audio_source

import (
	"errors"
	"fmt"
	"sync"

	"github.com/gordonklaus/portaudio"
	"github.com/rs/zerolog/log"
)

const (
	DefaultSampleRate  = 16000
	DefaultFrameLength = 512
	DefaultDevice      = -1
)

type microphoneImpl struct {
	mu           sync.Mutex
	deviceIndex  int
	sampleRate   int
	in           []int16
	stream       *portaudio.Stream
	audioRunning bool
}

type Config struct {
	// DeviceIndex selects a portaudio input device; negative uses the default.
	DeviceIndex int
	SampleRate  int
	FrameLength int
}

func NewMicrophone(cfg *Config) (Interface, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is nil")
	}

	if cfg.SampleRate <= 0 {
		return nil, fmt.Errorf("sample rate must be positive")
	}

	if cfg.FrameLength <= 0 {
		return nil, fmt.Errorf("frame length must be positive")
	}

	return &microphoneImpl{
		deviceIndex: cfg.DeviceIndex,
		sampleRate:  cfg.SampleRate,
		in:          make([]int16, cfg.FrameLength),
	}, nil
}

func (m *microphoneImpl) FrameLength() int {
	return len(m.in)
}

func (m *microphoneImpl) SampleRate() int {
	return m.sampleRate
}

func (m *microphoneImpl) Open() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.stream != nil {
		return nil
	}

	if err := m.initAudio(); err != nil {
		return err
	}

	stream, err := m.openStream()
	if err != nil {
		m.freeAudio()

		return fmt.Errorf("open input stream: %w", err)
	}

	if err := stream.Start(); err != nil {
		stream.Close()
		m.freeAudio()

		return fmt.Errorf("start input stream: %w", err)
	}

	m.stream = stream

	log.Debug().Int("device", m.deviceIndex).Int("sample_rate", m.sampleRate).Int("frame_length", len(m.in)).
		Msg("microphone opened")

	return nil
}

func (m *microphoneImpl) openStream() (*portaudio.Stream, error) {
	if m.deviceIndex < 0 {
		return portaudio.OpenDefaultStream(1, 0, float64(m.sampleRate), len(m.in), m.in)
	}

	devices, err := portaudio.Devices()
	if err != nil {
		return nil, err
	}

	if m.deviceIndex >= len(devices) || devices[m.deviceIndex].MaxInputChannels < 1 {
		return nil, fmt.Errorf("device %d is not an input device", m.deviceIndex)
	}

	params := portaudio.LowLatencyParameters(devices[m.deviceIndex], nil)
	params.Input.Channels = 1
	params.SampleRate = float64(m.sampleRate)
	params.FramesPerBuffer = len(m.in)

	return portaudio.OpenStream(params, m.in)
}

func (m *microphoneImpl) Read() ([]int16, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.stream == nil {
		return nil, ErrClosed
	}

	err := m.stream.Read()
	if err != nil && !errors.Is(err, portaudio.InputOverflowed) {
		return nil, err
	}

	frame := make([]int16, len(m.in))
	copy(frame, m.in)

	return frame, nil
}

func (m *microphoneImpl) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.stream == nil {
		return nil
	}

	var errs []error
	if err := m.stream.Stop(); err != nil {
		errs = append(errs, err)
	}

	if err := m.stream.Close(); err != nil {
		errs = append(errs, err)
	}

	m.stream = nil
	m.freeAudio()

	return errors.Join(errs...)
}

func (m *microphoneImpl) initAudio() error {
	if !m.audioRunning {
		err := portaudio.Initialize()
		if err != nil {
			return err
		}

		m.audioRunning = true
	}

	return nil
}

func (m *microphoneImpl) freeAudio() {
	if m.audioRunning {
		err := portaudio.Terminate()
		if err != nil {
			log.Warn().Err(err).Msg("error while freeing audio")
		}

		m.audioRunning = false
	}
}

type DeviceInfo struct {
	Index             int
	Name              string
	MaxInputChannels  int
	DefaultSampleRate float64
}

// InputDevices lists the devices that can record.
func InputDevices() ([]DeviceInfo, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, err
	}

	defer portaudio.Terminate()

	devices, err := portaudio.Devices()
	if err != nil {
		return nil, err
	}

	var inputs []DeviceInfo

	for i, d := range devices {
		if d.MaxInputChannels < 1 {
			continue
		}

		inputs = append(inputs, DeviceInfo{
			Index:             i,
			Name:              d.Name,
			MaxInputChannels:  d.MaxInputChannels,
			DefaultSampleRate: d.DefaultSampleRate,
		})
	}

	return inputs, nil
}
