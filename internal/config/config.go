package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	// Server
	APIPort            string
	WorkerEnabled      bool
	CorsAllowedOrigins string // Comma-separated allowed origins (empty = *, dev mode)
	PublicBaseURL      string // Base of signed asset URLs handed to the renderer
	CallbackToken      string // Bearer token the renderer presents on completion

	// Signed asset access
	AssetSigningKey string
	AssetURLTTL     time.Duration

	// Database: postgres:// or sqlite:// / file path
	DatabaseURL string

	// Redis
	RedisURL    string
	PrepQueue   string
	RenderQueue string

	// Supabase
	SupabaseURL           string
	SupabaseServiceKey    string
	SupabaseStorageBucket string

	// Generation
	GenerationProvider string // "openai" or "gemini"
	OpenAIKey          string
	OpenAIModel        string
	GeminiKey          string
	GeminiModel        string

	// TTS
	TTSProvider       string // "elevenlabs", "cartesia" or "openai"
	ElevenLabsKey     string
	ElevenLabsVoiceID string
	CartesiaKey       string
	CartesiaURL       string
	CartesiaVoiceID   string
	OpenAITTSVoice    string
	TTSVoiceStyle     string

	// Stream (render upload target)
	StreamAccountID        string
	StreamAPIToken         string
	StreamPlaybackTemplate string

	// Worker
	MaxConcurrentJobs int
	AudioConcurrency  int
	AudioTimeout      time.Duration
}

func Load() (*Config, error) {
	// Load .env file if it exists (ignore error in production)
	_ = godotenv.Load()

	cfg := &Config{
		APIPort:                getEnv("API_PORT", "8080"),
		WorkerEnabled:          getEnvBool("WORKER_ENABLED", true),
		CorsAllowedOrigins:     getEnv("CORS_ALLOWED_ORIGINS", ""),
		PublicBaseURL:          getEnv("PUBLIC_BASE_URL", "http://localhost:8080"),
		CallbackToken:          getEnv("CALLBACK_TOKEN", ""),
		AssetSigningKey:        getEnv("ASSET_SIGNING_KEY", ""),
		AssetURLTTL:            getEnvDuration("ASSET_URL_TTL", time.Hour),
		DatabaseURL:            getEnv("DATABASE_URL", ""),
		RedisURL:               getEnv("REDIS_URL", "redis://localhost:6379"),
		PrepQueue:              getEnv("QUEUE_PREP", "queue:prep"),
		RenderQueue:            getEnv("QUEUE_RENDER", "queue:render"),
		SupabaseURL:            getEnv("SUPABASE_URL", ""),
		SupabaseServiceKey:     getEnv("SUPABASE_SERVICE_KEY", ""),
		SupabaseStorageBucket:  getEnv("SUPABASE_STORAGE_BUCKET", "codereel-assets"),
		GenerationProvider:     getEnv("GENERATION_PROVIDER", "openai"),
		OpenAIKey:              getEnv("OPENAI_API_KEY", ""),
		OpenAIModel:            getEnv("OPENAI_MODEL", ""),
		GeminiKey:              getEnv("GEMINI_API_KEY", ""),
		GeminiModel:            getEnv("GEMINI_MODEL", ""),
		TTSProvider:            getEnv("TTS_PROVIDER", "elevenlabs"),
		ElevenLabsKey:          getEnv("ELEVENLABS_API_KEY", ""),
		ElevenLabsVoiceID:      getEnv("ELEVENLABS_VOICE_ID", ""),
		CartesiaKey:            getEnv("CARTESIA_API_KEY", ""),
		CartesiaURL:            getEnv("CARTESIA_API_URL", "https://api.cartesia.ai"),
		CartesiaVoiceID:        getEnv("CARTESIA_VOICE_ID", ""),
		OpenAITTSVoice:         getEnv("OPENAI_TTS_VOICE", ""),
		TTSVoiceStyle:          getEnv("TTS_VOICE_STYLE", "calm, friendly teacher"),
		StreamAccountID:        getEnv("STREAM_ACCOUNT_ID", ""),
		StreamAPIToken:         getEnv("STREAM_API_TOKEN", ""),
		StreamPlaybackTemplate: getEnv("STREAM_PLAYBACK_TEMPLATE", "https://watch.cloudflarestream.com/%s"),
		MaxConcurrentJobs:      getEnvInt("MAX_CONCURRENT_JOBS", 2),
		AudioConcurrency:       getEnvInt("AUDIO_CONCURRENCY", 4),
		AudioTimeout:           getEnvDuration("AUDIO_TIMEOUT", 30*time.Second),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (cfg *Config) validate() error {
	if cfg.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	if cfg.AssetSigningKey == "" {
		return fmt.Errorf("ASSET_SIGNING_KEY is required")
	}
	if cfg.CallbackToken == "" {
		return fmt.Errorf("CALLBACK_TOKEN is required")
	}
	if cfg.SupabaseURL == "" || cfg.SupabaseServiceKey == "" {
		return fmt.Errorf("SUPABASE_URL and SUPABASE_SERVICE_KEY are required")
	}

	switch cfg.GenerationProvider {
	case "openai":
		if cfg.OpenAIKey == "" {
			return fmt.Errorf("OPENAI_API_KEY is required for GENERATION_PROVIDER=openai")
		}
	case "gemini":
		if cfg.GeminiKey == "" {
			return fmt.Errorf("GEMINI_API_KEY is required for GENERATION_PROVIDER=gemini")
		}
	default:
		return fmt.Errorf("unknown GENERATION_PROVIDER %q (want openai or gemini)", cfg.GenerationProvider)
	}

	// A TTS provider without a key is allowed: every scene then gets silence.
	switch cfg.TTSProvider {
	case "elevenlabs", "cartesia", "openai", "none":
	default:
		return fmt.Errorf("unknown TTS_PROVIDER %q (want elevenlabs, cartesia, openai or none)", cfg.TTSProvider)
	}

	if (cfg.StreamAccountID == "") != (cfg.StreamAPIToken == "") {
		return fmt.Errorf("STREAM_ACCOUNT_ID and STREAM_API_TOKEN must be set together")
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		b, err := strconv.ParseBool(value)
		if err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		i, err := strconv.Atoi(value)
		if err == nil {
			return i
		}
	}
	return defaultValue
}

// getEnvDuration accepts Go durations ("90s") or bare seconds ("90").
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil && d > 0 {
		return d
	}
	if secs, err := strconv.Atoi(value); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	return defaultValue
}
