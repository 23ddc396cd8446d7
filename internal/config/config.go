package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config holds all configuration for the slide narrator service
type Config struct {
	// Server configuration
	Port           string `envconfig:"PORT" default:"8765"`
	GRPCHealthPort string `envconfig:"GRPC_HEALTH_PORT" default:""` // Empty disables the gRPC health service

	// Presentation source. NOTES_FILE (YAML deck) takes precedence over SLIDES_URL.
	SlidesURL             string `envconfig:"SLIDES_URL" default:""`
	GoogleCredentialsPath string `envconfig:"GOOGLE_CREDENTIALS_PATH" default:"google_credentials.json"`
	NotesFile             string `envconfig:"NOTES_FILE" default:""`

	// OpenAI configuration (question answering, whisper transcription, optional TTS)
	OpenAIAPIKey      string  `envconfig:"OPENAI_API_KEY" required:"true"`
	OpenAIBaseURL     string  `envconfig:"OPENAI_BASE_URL" default:""`
	OpenAIModel       string  `envconfig:"OPENAI_MODEL" default:"gpt-4"`
	OpenAITemperature float32 `envconfig:"OPENAI_TEMPERATURE" default:"0.5"`
	OpenAIMaxTokens   int     `envconfig:"OPENAI_MAX_TOKENS" default:"150"`
	AnswerTimeout     int     `envconfig:"ANSWER_TIMEOUT" default:"30"` // seconds

	// Text-to-speech configuration
	TTSProvider            string `envconfig:"TTS_PROVIDER" default:"elevenlabs"` // elevenlabs, openai
	ElevenLabsAPIKey       string `envconfig:"ELEVENLABS_API_KEY" default:""`
	ElevenLabsVoiceID      string `envconfig:"ELEVENLABS_VOICE_ID" default:"21m00Tcm4TlvDq8ikWAM"`
	ElevenLabsModelID      string `envconfig:"ELEVENLABS_MODEL_ID" default:"eleven_multilingual_v2"`
	ElevenLabsOutputFormat string `envconfig:"ELEVENLABS_OUTPUT_FORMAT" default:"mp3_44100_128"`
	OpenAITTSVoice         string `envconfig:"OPENAI_TTS_VOICE" default:"alloy"`

	// Speech-to-text configuration
	STTProvider      string `envconfig:"STT_PROVIDER" default:"whisper"` // whisper, deepgram
	STTLanguage      string `envconfig:"STT_LANGUAGE" default:"en"`
	DeepgramAPIKey   string `envconfig:"DEEPGRAM_API_KEY" default:""`
	DeepgramModel    string `envconfig:"DEEPGRAM_MODEL" default:"nova-2"`
	DeepgramEncoding string `envconfig:"DEEPGRAM_ENCODING" default:"linear16"` // linear16, mulaw

	// Local audio devices
	RecordCommand string `envconfig:"RECORD_COMMAND" default:"sox -q -d -t raw -r 16000 -e signed-integer -b 16 -c 1 -"`
	PlayerCommand string `envconfig:"PLAYER_COMMAND" default:""` // Empty autodetects afplay, mpg123 or ffplay
	ChimePath     string `envconfig:"CHIME_PATH" default:""`     // Audio cue played before listening

	// Audio processing configuration
	AudioSampleRate      int     `envconfig:"AUDIO_SAMPLE_RATE" default:"16000"`
	VADEnergyThreshold   float64 `envconfig:"VAD_ENERGY_THRESHOLD" default:"500.0"`  // RMS energy threshold for VAD
	VADSilenceFrames     int     `envconfig:"VAD_SILENCE_FRAMES" default:"50"`       // 20ms frames of silence to mark speech end
	STTTranscribeReserve int     `envconfig:"STT_TRANSCRIBE_RESERVE" default:"2500"` // ms of each listen window kept for transcription

	// Q&A configuration
	QAMode                  string `envconfig:"QA_MODE" default:"always"` // always, never, from
	QAFromIndex             int    `envconfig:"QA_FROM_INDEX" default:"5"`
	QAMaxTurns              int    `envconfig:"QA_MAX_TURNS" default:"2"`
	QAFirstListenTimeout    int    `envconfig:"QA_FIRST_LISTEN_TIMEOUT" default:"10"`   // seconds
	QAFollowUpListenTimeout int    `envconfig:"QA_FOLLOWUP_LISTEN_TIMEOUT" default:"5"` // seconds
	QAContextScope          string `envconfig:"QA_CONTEXT_SCOPE" default:"slide"`       // slide, deck

	// Resilience configuration
	CircuitBreakerMaxFailures  int `envconfig:"CIRCUIT_BREAKER_MAX_FAILURES" default:"5"`   // Failures before opening circuit
	CircuitBreakerResetTimeout int `envconfig:"CIRCUIT_BREAKER_RESET_TIMEOUT" default:"30"` // Seconds before attempting recovery
	RetryMaxAttempts           int `envconfig:"RETRY_MAX_ATTEMPTS" default:"3"`             // Maximum retry attempts
	RetryInitialBackoff        int `envconfig:"RETRY_INITIAL_BACKOFF" default:"100"`        // Initial backoff in milliseconds
	ReconnectMaxAttempts       int `envconfig:"RECONNECT_MAX_ATTEMPTS" default:"3"`         // Maximum reconnection attempts
	ReconnectBackoff           int `envconfig:"RECONNECT_BACKOFF" default:"500"`            // Reconnection backoff in milliseconds

	// Observability configuration
	LogLevel       string `envconfig:"LOG_LEVEL" default:"info"`       // Log level: debug, info, warn, error
	LogPretty      bool   `envconfig:"LOG_PRETTY" default:"false"`     // Pretty print logs (for development)
	MetricsEnabled bool   `envconfig:"METRICS_ENABLED" default:"true"` // Enable Prometheus metrics
}

// Load reads configuration from environment variables
// It first attempts to load the file named by ENV_FILE (default .env) if it
// exists, then from environment
func Load() (*Config, error) {
	// Try to load .env file (ignore error if it doesn't exist)
	_ = godotenv.Load(GetEnv("ENV_FILE", ".env"))

	return LoadFromEnv()
}

// LoadFromEnv loads configuration directly from environment variables
// without attempting to load .env file (useful for containerized deployments)
func LoadFromEnv() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks cross-field requirements that struct tags cannot express.
func (c *Config) Validate() error {
	if c.OpenAIAPIKey == "" {
		return fmt.Errorf("OPENAI_API_KEY is required")
	}
	if c.SlidesURL == "" && c.NotesFile == "" {
		return fmt.Errorf("one of SLIDES_URL or NOTES_FILE is required")
	}

	switch c.TTSProvider {
	case "elevenlabs":
		if c.ElevenLabsAPIKey == "" {
			return fmt.Errorf("ELEVENLABS_API_KEY is required when TTS_PROVIDER=elevenlabs")
		}
	case "openai":
	default:
		return fmt.Errorf("unsupported TTS_PROVIDER %q (want elevenlabs or openai)", c.TTSProvider)
	}

	switch c.STTProvider {
	case "deepgram":
		if c.DeepgramAPIKey == "" {
			return fmt.Errorf("DEEPGRAM_API_KEY is required when STT_PROVIDER=deepgram")
		}
		if c.DeepgramEncoding != "linear16" && c.DeepgramEncoding != "mulaw" {
			return fmt.Errorf("unsupported DEEPGRAM_ENCODING %q (want linear16 or mulaw)", c.DeepgramEncoding)
		}
	case "whisper":
	default:
		return fmt.Errorf("unsupported STT_PROVIDER %q (want whisper or deepgram)", c.STTProvider)
	}

	switch c.QAMode {
	case "always", "never":
	case "from":
		if c.QAFromIndex < 1 {
			return fmt.Errorf("QA_FROM_INDEX must be >= 1, got %d", c.QAFromIndex)
		}
	default:
		return fmt.Errorf("unsupported QA_MODE %q (want always, never or from)", c.QAMode)
	}

	if c.QAContextScope != "slide" && c.QAContextScope != "deck" {
		return fmt.Errorf("unsupported QA_CONTEXT_SCOPE %q (want slide or deck)", c.QAContextScope)
	}
	if c.QAMaxTurns < 1 {
		return fmt.Errorf("QA_MAX_TURNS must be >= 1, got %d", c.QAMaxTurns)
	}
	if c.QAFirstListenTimeout < 1 || c.QAFollowUpListenTimeout < 1 {
		return fmt.Errorf("listen timeouts must be at least one second")
	}
	if c.AudioSampleRate <= 0 {
		return fmt.Errorf("AUDIO_SAMPLE_RATE must be positive, got %d", c.AudioSampleRate)
	}

	return nil
}

// FirstListenTimeout is the listen window of the first question turn.
func (c *Config) FirstListenTimeout() time.Duration {
	return time.Duration(c.QAFirstListenTimeout) * time.Second
}

// FollowUpListenTimeout is the listen window of every later question turn.
func (c *Config) FollowUpListenTimeout() time.Duration {
	return time.Duration(c.QAFollowUpListenTimeout) * time.Second
}

// AnswerTimeoutDuration bounds a single answering call.
func (c *Config) AnswerTimeoutDuration() time.Duration {
	return time.Duration(c.AnswerTimeout) * time.Second
}

// GetEnv returns the value of an environment variable or a default value
func GetEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
