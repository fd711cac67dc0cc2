package audio_source

import (
	"fmt"
	"io"
	"sync"

	"github.com/go-audio/wav"
	"github.com/spf13/afero"
)

type memoryImpl struct {
	mu          sync.Mutex
	samples     []int16
	pos         int
	open        bool
	sampleRate  int
	frameLength int
}

// NewMemory replays samples as frames. The final partial frame is padded with
// silence, after which Read returns io.EOF.
func NewMemory(samples []int16, sampleRate, frameLength int) Interface {
	return &memoryImpl{
		samples:     samples,
		sampleRate:  sampleRate,
		frameLength: frameLength,
	}
}

func (m *memoryImpl) Open() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.open = true

	return nil
}

func (m *memoryImpl) Read() ([]int16, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.open {
		return nil, ErrClosed
	}

	if m.pos >= len(m.samples) {
		return nil, io.EOF
	}

	frame := make([]int16, m.frameLength)
	n := copy(frame, m.samples[m.pos:])
	m.pos += n

	return frame, nil
}

// Close stops reading but keeps the position, so a reopened memory source
// resumes where it left off.
func (m *memoryImpl) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.open = false

	return nil
}

func (m *memoryImpl) FrameLength() int {
	return m.frameLength
}

func (m *memoryImpl) SampleRate() int {
	return m.sampleRate
}

// NewWAVFile decodes a 16-bit PCM WAV file into a replayable source. Only the
// first channel is kept. The file's sample rate must match sampleRate.
func NewWAVFile(fs afero.Fs, path string, sampleRate, frameLength int) (Interface, error) {
	samples, rate, err := ReadWAV(fs, path)
	if err != nil {
		return nil, err
	}

	if rate != sampleRate {
		return nil, fmt.Errorf("%s: sample rate %d does not match required %d", path, rate, sampleRate)
	}

	return NewMemory(samples, sampleRate, frameLength), nil
}

// ReadWAV returns the first channel of a PCM WAV file as int16 samples along
// with its sample rate.
func ReadWAV(fs afero.Fs, path string) ([]int16, int, error) {
	f, err := fs.Open(path)
	if err != nil {
		return nil, 0, err
	}

	defer f.Close()

	decoder := wav.NewDecoder(f)
	if !decoder.IsValidFile() {
		return nil, 0, fmt.Errorf("%s is not a valid wav file", path)
	}

	buf, err := decoder.FullPCMBuffer()
	if err != nil {
		return nil, 0, fmt.Errorf("decode %s: %w", path, err)
	}

	channels := buf.Format.NumChannels
	if channels < 1 {
		channels = 1
	}

	samples := make([]int16, 0, len(buf.Data)/channels)
	for i := 0; i < len(buf.Data); i += channels {
		samples = append(samples, int16(buf.Data[i]))
	}

	return samples, buf.Format.SampleRate, nil
}
