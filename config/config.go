package config

import (
	"log"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config stores the application configuration. Values come from the
// environment (optionally via a .env file) with defaults for local use.
type Config struct {
	ListenAddr string

	FFmpegPath  string
	FFprobePath string

	// HLS encoding settings.
	VariantBitrates []int  // kbps, one HLS variant per entry
	SegmentSeconds  int    // hls_time
	SegmentPattern  string // zero-padded segment file name pattern
	LoudnormFilter  string // applied uniformly to every variant

	// Waveform extraction settings.
	WaveformSampleRate   int // Hz of the mono PCM decode
	WaveformSampleRateMs int // milliseconds covered by one peak bucket

	// Timeouts for external encoder invocations.
	TranscodeTimeout time.Duration
	WaveformTimeout  time.Duration

	// Transcode job retry policy.
	TranscodeAttempts int
	TranscodeBackoff  []time.Duration

	// Storage layout.
	SourceAudioDir string // original uploads
	StreamDir      string // HLS output, one subdirectory per track UUID

	// Playback token settings.
	TokenKey        string // 32-byte secret for the playback token codec
	TokenTTLSeconds int

	// Concurrency gate settings.
	StreamSessionTTL time.Duration
	ConcurrentLimit  int

	// Webhook delivery.
	WebhookURL     string
	WebhookSecret  string
	WebhookTimeout time.Duration
	WebhookBackoff []time.Duration

	// Base URL prepended to asset paths in outbound payloads.
	PublicBaseURL string

	JWTSecret string

	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string

	RedisHost     string
	RedisPort     string
	RedisPassword string
	RedisDB       int

	// MinIO mirror for published HLS assets. Disabled when endpoint is empty.
	MinioEndpoint  string
	MinioAccessKey string
	MinioSecretKey string
	MinioBucket    string
	MinioRegion    string
	MinioUseSSL    bool

	LogLevel  string
	LogOutput string
}

// TranscodeJobTTL bounds the wall-clock time of one whole transcode job:
// every encode and waveform attempt plus the backoff waits between attempts,
// with a minute of slack for bookkeeping. The transcode lease uses this, so
// the lease cannot lapse while its job is still legally running.
func (c *Config) TranscodeJobTTL() time.Duration {
	attempts := c.TranscodeAttempts
	if attempts < 1 {
		attempts = 1
	}
	ttl := time.Duration(attempts) * (c.TranscodeTimeout + c.WaveformTimeout)
	for _, d := range c.TranscodeBackoff {
		ttl += d
	}
	return ttl + time.Minute
}

// getEnv gets an environment variable or returns a default value.
func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

// getEnvInt gets an environment variable as int or returns a default value.
func getEnvInt(key string, fallback int) int {
	if value, exists := os.LookupEnv(key); exists {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return fallback
}

// getEnvBool gets an environment variable as bool or returns a default value.
func getEnvBool(key string, fallback bool) bool {
	if value, exists := os.LookupEnv(key); exists {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return fallback
}

// Load loads configuration from environment variables (via .env file) or defaults.
func Load() *Config {
	// godotenv.Load() will not override existing env vars.
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found or error loading .env, relying on existing environment variables and defaults.")
	}

	staticBase := getEnv("STATIC_DIR", "static")
	uploadBase := getEnv("UPLOAD_DIR", "uploads")

	return &Config{
		ListenAddr: getEnv("LISTEN_ADDR", ":8080"),

		FFmpegPath:  getEnv("FFMPEG_PATH", "ffmpeg"),
		FFprobePath: getEnv("FFPROBE_PATH", "ffprobe"),

		VariantBitrates: []int{64, 128},
		SegmentSeconds:  getEnvInt("HLS_SEGMENT_TIME", 6),
		SegmentPattern:  "seg-%05d.ts",
		LoudnormFilter:  getEnv("LOUDNORM_FILTER", "loudnorm=I=-16:TP=-1.5:LRA=11"),

		WaveformSampleRate:   getEnvInt("WAVEFORM_SAMPLE_RATE", 200),
		WaveformSampleRateMs: getEnvInt("WAVEFORM_SAMPLE_RATE_MS", 50),

		TranscodeTimeout: time.Duration(getEnvInt("TRANSCODE_TIMEOUT", 3600)) * time.Second,
		WaveformTimeout:  time.Duration(getEnvInt("WAVEFORM_TIMEOUT", 300)) * time.Second,

		TranscodeAttempts: getEnvInt("TRANSCODE_ATTEMPTS", 3),
		TranscodeBackoff:  []time.Duration{60 * time.Second, 300 * time.Second, 600 * time.Second},

		SourceAudioDir: filepath.Join(uploadBase, "audio"),
		StreamDir:      filepath.Join(staticBase, "streams"),

		TokenKey:        getEnv("STREAM_TOKEN_KEY", ""),
		TokenTTLSeconds: getEnvInt("STREAM_TOKEN_TTL", 3600),

		StreamSessionTTL: time.Duration(getEnvInt("STREAM_SESSION_TTL", 30)) * time.Second,
		ConcurrentLimit:  getEnvInt("STREAM_CONCURRENT_LIMIT", 2),

		WebhookURL:     getEnv("WEBHOOK_URL", ""),
		WebhookSecret:  getEnv("WEBHOOK_SECRET", ""),
		WebhookTimeout: time.Duration(getEnvInt("WEBHOOK_TIMEOUT", 10)) * time.Second,
		WebhookBackoff: []time.Duration{10 * time.Second, 60 * time.Second, 300 * time.Second},

		PublicBaseURL: getEnv("PUBLIC_BASE_URL", "http://localhost:8080"),

		JWTSecret: getEnv("JWT_SECRET", ""),

		DBHost:     getEnv("DB_HOST", "127.0.0.1"),
		DBPort:     getEnv("DB_PORT", "3306"),
		DBUser:     getEnv("DB_USER", "root"),
		DBPassword: os.Getenv("DB_PASSWORD"),
		DBName:     getEnv("DB_NAME", "hls_audio"),

		RedisHost:     getEnv("REDIS_HOST", "127.0.0.1"),
		RedisPort:     getEnv("REDIS_PORT", "6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_DB", 0),

		MinioEndpoint:  getEnv("MINIO_ENDPOINT", ""),
		MinioAccessKey: getEnv("MINIO_ACCESS_KEY", ""),
		MinioSecretKey: getEnv("MINIO_SECRET_KEY", ""),
		MinioBucket:    getEnv("MINIO_BUCKET", "hls-audio"),
		MinioRegion:    getEnv("MINIO_REGION", "us-east-1"),
		MinioUseSSL:    getEnvBool("MINIO_USE_SSL", false),

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogOutput: getEnv("LOG_OUTPUT", ""),
	}
}
