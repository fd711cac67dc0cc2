package voice_activity_detection

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func tone(n int, amplitude float64) []int16 {
	frame := make([]int16, n)
	for i := range frame {
		frame[i] = int16(amplitude * math.Sin(2*math.Pi*440*float64(i)/16000))
	}

	return frame
}

func TestPeak(t *testing.T) {
	t.Run("peak is the largest absolute magnitude", func(t *testing.T) {
		assert.Equal(t, 0, Peak(nil))
		assert.Equal(t, 700, Peak([]int16{10, -700, 300}))
		assert.Equal(t, 32768, Peak([]int16{math.MinInt16}))
	})
}

func TestRMS(t *testing.T) {
	t.Run("rms of a constant frame is its magnitude", func(t *testing.T) {
		assert.InDelta(t, 100, RMS([]int16{100, -100, 100, -100}), 0.001)
		assert.Equal(t, 0.0, RMS(nil))
	})
}

func TestFluxDetector_Flux(t *testing.T) {
	t.Run("a tone after silence produces more flux than a steady tone", func(t *testing.T) {
		vad := New(512)

		assert.Equal(t, 0.0, vad.Flux(make([]int16, 512)))

		onset := vad.Flux(tone(512, 8000))
		steady := vad.Flux(tone(512, 8000))

		assert.Greater(t, onset, 0.0)
		assert.Less(t, steady, onset)
	})
}

func TestSegmenter_Feed(t *testing.T) {
	t.Run("silence, speech, then quiet yields onset and end", func(t *testing.T) {
		seg := NewSegmenter(SegmenterConfig{QuietFrames: 2, FrameSize: 256})

		silence := make([]int16, 256)
		speech := tone(256, 6000)

		assert.Equal(t, EventSilence, seg.Feed(silence))
		assert.Equal(t, EventOnset, seg.Feed(speech))
		assert.Equal(t, EventSpeech, seg.Feed(speech))
		assert.Equal(t, EventSpeech, seg.Feed(silence))
		assert.Equal(t, EventEnd, seg.Feed(silence))
		assert.True(t, seg.Heard())

		seg.Reset()
		assert.False(t, seg.Heard())
		assert.Equal(t, EventSilence, seg.Feed(silence))
	})

	t.Run("a segment is cut at the frame limit", func(t *testing.T) {
		seg := NewSegmenter(SegmenterConfig{QuietFrames: 10, MaxFrames: 3, FrameSize: 256})
		speech := tone(256, 6000)

		assert.Equal(t, EventOnset, seg.Feed(speech))
		assert.Equal(t, EventSpeech, seg.Feed(speech))
		assert.Equal(t, EventEnd, seg.Feed(speech))
	})

	t.Run("calibration raises the threshold above loud ambient noise", func(t *testing.T) {
		seg := NewSegmenter(SegmenterConfig{DynamicRatio: 1.5, FrameSize: 256})
		ambient := tone(256, 1000)

		seg.Calibrate(ambient)
		seg.Calibrate(ambient)

		assert.Greater(t, seg.Threshold(), RMS(ambient))
		assert.Equal(t, EventSilence, seg.Feed(ambient))
	})

	t.Run("calibration never lowers the threshold below the configured floor", func(t *testing.T) {
		seg := NewSegmenter(SegmenterConfig{EnergyThreshold: 300, DynamicRatio: 1.5})

		seg.Calibrate(make([]int16, 128))

		assert.Equal(t, 300.0, seg.Threshold())
	})
}

func TestFramesFor(t *testing.T) {
	frame := 32 * time.Millisecond

	assert.Equal(t, 1, FramesFor(0, frame))
	assert.Equal(t, 1, FramesFor(time.Millisecond, frame))
	assert.Equal(t, 1, FramesFor(32*time.Millisecond, frame))
	assert.Equal(t, 2, FramesFor(33*time.Millisecond, frame))
	assert.Equal(t, 157, FramesFor(5*time.Second, frame))
	assert.Equal(t, 1, FramesFor(time.Second, 0))
}
