package voice_activity_detection

import "time"

type Event int

const (
	EventSilence Event = iota
	EventOnset
	EventSpeech
	EventEnd
)

func (e Event) String() string {
	switch e {
	case EventOnset:
		return "onset"
	case EventSpeech:
		return "speech"
	case EventEnd:
		return "end"
	default:
		return "silence"
	}
}

const (
	DefaultEnergyThreshold = 300
	DefaultDynamicRatio    = 1.5
	DefaultFluxRatio       = 1.75
)

type SegmenterConfig struct {
	// EnergyThreshold is the minimum RMS energy of a voiced frame.
	EnergyThreshold float64
	// DynamicRatio scales the calibrated ambient energy into a threshold.
	// Zero disables calibration.
	DynamicRatio float64
	// FluxRatio marks a frame as voiced when its spectral flux jumps by this
	// factor over the previous frame while at least half the energy threshold.
	FluxRatio float64
	// QuietFrames is the number of consecutive unvoiced frames that end a
	// segment after onset.
	QuietFrames int
	// MaxFrames bounds the length of a segment after onset. Zero is unbounded.
	MaxFrames int
	FrameSize int
}

// Segmenter splits a frame stream into speech segments. Time is measured in
// frames so replayed audio segments identically to live audio.
type Segmenter struct {
	cfg       SegmenterConfig
	flux      *FluxDetector
	threshold float64

	ambientSum    float64
	ambientFrames int

	heardSomething bool
	quietFrames    int
	speechFrames   int
	lastFlux       float64
}

func NewSegmenter(cfg SegmenterConfig) *Segmenter {
	if cfg.EnergyThreshold <= 0 {
		cfg.EnergyThreshold = DefaultEnergyThreshold
	}

	if cfg.FluxRatio <= 0 {
		cfg.FluxRatio = DefaultFluxRatio
	}

	if cfg.QuietFrames <= 0 {
		cfg.QuietFrames = 1
	}

	s := &Segmenter{
		cfg:       cfg,
		threshold: cfg.EnergyThreshold,
	}

	if cfg.FrameSize > 1 {
		s.flux = New(cfg.FrameSize)
	}

	return s
}

// Calibrate folds an ambient-noise frame into the threshold.
func (s *Segmenter) Calibrate(frame []int16) {
	if s.cfg.DynamicRatio <= 0 {
		return
	}

	s.ambientSum += RMS(frame)
	s.ambientFrames++

	dynamic := s.ambientSum / float64(s.ambientFrames) * s.cfg.DynamicRatio
	if dynamic > s.cfg.EnergyThreshold {
		s.threshold = dynamic
	} else {
		s.threshold = s.cfg.EnergyThreshold
	}
}

func (s *Segmenter) Threshold() float64 {
	return s.threshold
}

func (s *Segmenter) Heard() bool {
	return s.heardSomething
}

// Feed classifies the next frame.
func (s *Segmenter) Feed(frame []int16) Event {
	voiced := s.voiced(frame)

	if !s.heardSomething {
		if voiced {
			s.heardSomething = true
			s.speechFrames = 1

			return EventOnset
		}

		return EventSilence
	}

	s.speechFrames++

	if voiced {
		s.quietFrames = 0
	} else {
		s.quietFrames++
	}

	if s.quietFrames >= s.cfg.QuietFrames {
		return EventEnd
	}

	if s.cfg.MaxFrames > 0 && s.speechFrames >= s.cfg.MaxFrames {
		return EventEnd
	}

	return EventSpeech
}

func (s *Segmenter) Reset() {
	s.heardSomething = false
	s.quietFrames = 0
	s.speechFrames = 0
	s.lastFlux = 0

	if s.flux != nil {
		s.flux.Reset()
	}
}

func (s *Segmenter) voiced(frame []int16) bool {
	energy := RMS(frame)
	flux, previous := s.trackFlux(frame)

	if energy >= s.threshold {
		return true
	}

	if energy < s.threshold/2 || previous == 0 {
		return false
	}

	return flux >= previous*s.cfg.FluxRatio
}

func (s *Segmenter) trackFlux(frame []int16) (float64, float64) {
	if s.flux == nil {
		return 0, 0
	}

	flux := s.flux.Flux(frame)
	previous := s.lastFlux
	s.lastFlux = flux

	return flux, previous
}

// FramesFor converts a duration to a whole number of frames, rounding up.
// The result is at least one.
func FramesFor(d, frameDur time.Duration) int {
	if frameDur <= 0 {
		return 1
	}

	return max(1, int((d+frameDur-1)/frameDur))
}
