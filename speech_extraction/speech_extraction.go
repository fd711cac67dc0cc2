package speech_extraction

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/afero"
	"github.com/zenwerk/go-wave"

	"voice-assistant/audio_source"
	"voice-assistant/metrics"
	"voice-assistant/ring_buffer"
	"voice-assistant/speech_to_text"
	"voice-assistant/status"
	"voice-assistant/voice_activity_detection"
)

const (
	DefaultTimeout         = 5 * time.Second
	DefaultPhraseLimit     = 10 * time.Second
	DefaultQuietTime       = 800 * time.Millisecond
	DefaultCalibrationTime = 500 * time.Millisecond
	DefaultPreRollTime     = 300 * time.Millisecond
)

type captureImpl struct {
	owner       *audio_source.Owner
	sttEngine   speech_to_text.Interface
	observer    status.Observer
	fileSys     afero.Fs
	recordDir   string
	calibration time.Duration
	quietTime   time.Duration
	preRoll     time.Duration
	energy      float64
	dynamic     float64
	now         func() time.Time
}

type Config struct {
	Owner     *audio_source.Owner
	STTEngine speech_to_text.Interface
	Observer  status.Observer
	// FileSys and RecordDir enable writing each utterance to a WAV file.
	FileSys         afero.Fs
	RecordDir       string
	CalibrationTime time.Duration
	QuietTime       time.Duration
	PreRollTime     time.Duration
	EnergyThreshold float64
	DynamicRatio    float64
	Now             func() time.Time
}

func New(cfg *Config) (Interface, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is nil")
	}

	if cfg.Owner == nil {
		return nil, fmt.Errorf("owner is nil")
	}

	if cfg.STTEngine == nil {
		return nil, fmt.Errorf("sttEngine is nil")
	}

	if cfg.RecordDir != "" && cfg.FileSys == nil {
		return nil, fmt.Errorf("fileSys is nil")
	}

	c := &captureImpl{
		owner:       cfg.Owner,
		sttEngine:   cfg.STTEngine,
		observer:    cfg.Observer,
		fileSys:     cfg.FileSys,
		recordDir:   cfg.RecordDir,
		calibration: cfg.CalibrationTime,
		quietTime:   cfg.QuietTime,
		preRoll:     cfg.PreRollTime,
		energy:      cfg.EnergyThreshold,
		dynamic:     cfg.DynamicRatio,
		now:         cfg.Now,
	}

	if c.observer == nil {
		c.observer = status.Nop{}
	}

	if c.calibration < 0 {
		c.calibration = 0
	} else if c.calibration == 0 {
		c.calibration = DefaultCalibrationTime
	}

	if c.quietTime <= 0 {
		c.quietTime = DefaultQuietTime
	}

	if c.preRoll <= 0 {
		c.preRoll = DefaultPreRollTime
	}

	if c.energy <= 0 {
		c.energy = voice_activity_detection.DefaultEnergyThreshold
	}

	if c.dynamic == 0 {
		c.dynamic = voice_activity_detection.DefaultDynamicRatio
	}

	if c.now == nil {
		c.now = time.Now
	}

	return c, nil
}

func (c *captureImpl) Capture(ctx context.Context, timeout, phraseLimit time.Duration) (outcome Outcome) {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	if phraseLimit <= 0 {
		phraseLimit = DefaultPhraseLimit
	}

	defer func() {
		metrics.CapturesTotal.WithLabelValues(string(outcome.Kind)).Inc()
	}()

	lease, err := c.owner.Acquire(ctx, "capture")
	if err != nil {
		return failed("audio source unavailable", err)
	}

	defer lease.Release()

	c.observer.OnState(status.StateCapturing, "")

	samples, outcome, done := c.record(ctx, lease, timeout, phraseLimit)
	if done {
		return outcome
	}

	capturedAt := c.now()

	if c.recordDir != "" {
		if err := c.writeRecording(samples, lease.SampleRate(), capturedAt); err != nil {
			log.Warn().Err(err).Msg("failed to save utterance recording")
		}
	}

	c.observer.OnState(status.StateThinking, "transcribing")

	return c.transcribe(ctx, samples, lease.SampleRate(), capturedAt)
}

// record reads frames until the utterance ends. When done is true the
// capture finished without speech to transcribe and outcome is final.
func (c *captureImpl) record(ctx context.Context, lease *audio_source.Lease, timeout, phraseLimit time.Duration) ([]int16, Outcome, bool) {
	frameLength := lease.FrameLength()
	frameDur := time.Duration(frameLength) * time.Second / time.Duration(lease.SampleRate())

	segmenter := voice_activity_detection.NewSegmenter(voice_activity_detection.SegmenterConfig{
		EnergyThreshold: c.energy,
		DynamicRatio:    c.dynamic,
		FluxRatio:       voice_activity_detection.DefaultFluxRatio,
		QuietFrames:     voice_activity_detection.FramesFor(c.quietTime, frameDur),
		MaxFrames:       voice_activity_detection.FramesFor(phraseLimit, frameDur),
		FrameSize:       frameLength,
	})

	preRoll := ring_buffer.New(voice_activity_detection.FramesFor(c.preRoll, frameDur) * frameLength)

	calibrationFrames := 0
	if c.calibration > 0 {
		calibrationFrames = voice_activity_detection.FramesFor(c.calibration, frameDur)
	}

	for i := 0; i < calibrationFrames; i++ {
		frame, err := lease.Read()
		if errors.Is(err, io.EOF) {
			return nil, Outcome{Kind: OutcomeTimeout}, true
		} else if err != nil {
			return nil, failed("audio read failed", fmt.Errorf("%w: %w", ErrAudioRead, err)), true
		}

		segmenter.Calibrate(frame)
		preRoll.Add(frame)
	}

	log.Debug().Float64("threshold", segmenter.Threshold()).Msg("calibrated for ambient noise")

	var (
		samples      []int16
		waitedFrames int
		timeoutAfter = voice_activity_detection.FramesFor(timeout, frameDur)
	)

	for {
		if err := ctx.Err(); err != nil {
			return nil, failed("capture cancelled", err), true
		}

		frame, err := lease.Read()
		if errors.Is(err, io.EOF) {
			if segmenter.Heard() {
				return samples, Outcome{}, false
			}

			return nil, Outcome{Kind: OutcomeTimeout}, true
		} else if err != nil {
			return nil, failed("audio read failed", fmt.Errorf("%w: %w", ErrAudioRead, err)), true
		}

		switch segmenter.Feed(frame) {
		case voice_activity_detection.EventSilence:
			preRoll.Add(frame)

			waitedFrames++
			if waitedFrames >= timeoutAfter {
				return nil, Outcome{Kind: OutcomeTimeout}, true
			}
		case voice_activity_detection.EventOnset:
			samples = append(preRoll.Read(), frame...)
		case voice_activity_detection.EventSpeech:
			samples = append(samples, frame...)
		case voice_activity_detection.EventEnd:
			samples = append(samples, frame...)

			return samples, Outcome{}, false
		}
	}
}

func (c *captureImpl) transcribe(ctx context.Context, samples []int16, sampleRate int, capturedAt time.Time) (outcome Outcome) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("transcription panicked")

			outcome = failed("transcription failed", fmt.Errorf("transcription panicked: %v", r))
		}
	}()

	text, err := c.sttEngine.Transcribe(ctx, speech_to_text.NewBuffer(samples, sampleRate))
	if errors.Is(err, speech_to_text.ErrNoSpeech) {
		return Outcome{Kind: OutcomeUnintelligible}
	} else if err != nil {
		log.Warn().Err(err).Msg("transcription failed")

		return failed("transcription failed", err)
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return Outcome{Kind: OutcomeUnintelligible}
	}

	return Outcome{
		Kind:      OutcomeOK,
		Utterance: Utterance{Text: text, CapturedAt: capturedAt},
	}
}

func (c *captureImpl) writeRecording(samples []int16, sampleRate int, capturedAt time.Time) error {
	if err := c.fileSys.MkdirAll(c.recordDir, 0o755); err != nil {
		return err
	}

	waveFilename := filepath.Join(c.recordDir, "utterance-"+strconv.FormatInt(capturedAt.Unix(), 10)+".wav")

	waveFile, err := c.fileSys.Create(waveFilename)
	if err != nil {
		return err
	}

	param := wave.WriterParam{
		Out:           waveFile,
		Channel:       1,
		SampleRate:    sampleRate,
		BitsPerSample: 16,
	}

	waveWriter, err := wave.NewWriter(param)
	if err != nil {
		waveFile.Close()

		return err
	}

	if _, err := waveWriter.WriteSample16(samples); err != nil {
		waveWriter.Close()

		return err
	}

	log.Debug().Str("file", waveFilename).Msg("utterance saved")

	return waveWriter.Close()
}

func failed(reason string, err error) Outcome {
	return Outcome{Kind: OutcomeError, Reason: reason, Err: err}
}
