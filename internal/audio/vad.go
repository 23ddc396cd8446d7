package audio

// VADConfig holds configuration for Voice Activity Detection
type VADConfig struct {
	EnergyThreshold float64 // RMS energy threshold for a speech frame
	StartFrames     int     // Consecutive speech frames needed to start an utterance
	SilenceFrames   int     // Consecutive silence frames that end an utterance
	FrameSize       int     // Samples per frame
}

// DefaultVADConfig returns a VAD configuration for 20ms frames at 16kHz
func DefaultVADConfig() *VADConfig {
	return &VADConfig{
		EnergyThreshold: 500.0,
		StartFrames:     3,   // 60ms, ignores clicks and keyboard taps
		SilenceFrames:   50,  // 1s of trailing silence
		FrameSize:       320, // 16000 * 0.02
	}
}

// VADEvent is the transition reported for a processed frame.
type VADEvent int

const (
	VADNone VADEvent = iota
	VADSpeechStart
	VADSpeechEnd
)

// VADDetector tracks speech onset and end of utterance across frames.
type VADDetector struct {
	config         *VADConfig
	speechCounter  int
	silenceCounter int
	isSpeaking     bool
	heardSpeech    bool
}

// NewVADDetector creates a new VAD detector
func NewVADDetector(config *VADConfig) *VADDetector {
	if config == nil {
		config = DefaultVADConfig()
	}
	if config.StartFrames < 1 {
		config.StartFrames = 1
	}
	return &VADDetector{config: config}
}

// ProcessFrame classifies one frame and reports any transition.
func (v *VADDetector) ProcessFrame(samples []int16) VADEvent {
	if CalculateRMS(samples) > v.config.EnergyThreshold {
		v.silenceCounter = 0
		if v.isSpeaking {
			return VADNone
		}
		v.speechCounter++
		if v.speechCounter >= v.config.StartFrames {
			v.isSpeaking = true
			v.heardSpeech = true
			v.speechCounter = 0
			return VADSpeechStart
		}
		return VADNone
	}

	v.speechCounter = 0
	if !v.isSpeaking {
		return VADNone
	}
	v.silenceCounter++
	if v.silenceCounter >= v.config.SilenceFrames {
		v.isSpeaking = false
		v.silenceCounter = 0
		return VADSpeechEnd
	}
	return VADNone
}

// Reset resets the VAD detector state
func (v *VADDetector) Reset() {
	v.speechCounter = 0
	v.silenceCounter = 0
	v.isSpeaking = false
	v.heardSpeech = false
}

// IsSpeaking returns whether speech is currently detected
func (v *VADDetector) IsSpeaking() bool {
	return v.isSpeaking
}

// HeardSpeech reports whether any utterance started since the last Reset.
func (v *VADDetector) HeardSpeech() bool {
	return v.heardSpeech
}

// FrameSize returns the configured samples per frame.
func (v *VADDetector) FrameSize() int {
	return v.config.FrameSize
}

// DetectSilence reports whether samples fall below threshold
func DetectSilence(samples []int16, threshold float64) bool {
	return CalculateRMS(samples) < threshold
}
