package config

import (
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Config contains all configuration for the hub
type Config struct {

	// Server Configuration
	ServerPort string
	BaseURL    string // Base URL clients use to fetch videos and clips

	// Storage Configuration
	StoragePath string // Root directory; videos/ and clips/ live under it
	VideosDir   string
	ClipsDir    string

	// Retention Configuration
	StorageQuotaBytes int64   // Maximum bytes the segment store may occupy
	HighWaterRatio    float64 // Cleanup starts above quota * high water
	LowWaterRatio     float64 // Cleanup stops at or below quota * low water

	// Database Configuration (external detection store)
	DatabasePath string

	// Camera Agent Configuration
	AgentPort        string        // Port the camera agent's own HTTP server listens on
	SegmentMinutes   int           // Default segment length sent with start-recording
	HeartbeatTimeout time.Duration // Sessions with no traffic for this long go offline
	ProbeTimeout     time.Duration // Per-attempt liveness probe timeout
	ProbeRetries     int
	ProbeRetryDelay  time.Duration

	// Clip Configuration
	ClipPadSeconds  float64 // Context added before/after the detection window
	ClipMaxSeconds  float64 // Hard cap on generated clip duration
	DefaultFPS      float64 // Fallback when a segment's frame rate cannot be probed
	FFmpegPath      string
	FFprobePath     string

	// Detection Pipeline Configuration
	DetectionCommand string // Executable dispatched per ingested segment
	DetectionArgs    []string
	DetectionWorkers int // Max concurrent detection subprocesses

	// Serial trigger Configuration (optional)
	SerialPort     string // Empty disables the hardware trigger
	SerialBaudRate int
	TriggerCamera  string // Camera address the trigger starts/stops

	// Offsite Backup Configuration (optional)
	S3Enabled   bool
	S3AccessKey string
	S3SecretKey string
	S3Bucket    string
	S3Endpoint  string
	S3Region    string
	S3BaseURL   string
}

// LoadConfig loads configuration from environment variables
func LoadConfig() Config {
	storagePath := getEnv("STORAGE_PATH", "./data")

	cfg := Config{
		ServerPort: getEnv("SERVER_PORT", "9000"),
		BaseURL:    getEnv("BASE_URL", "http://localhost:9000"),

		StoragePath: storagePath,
		VideosDir:   getEnv("VIDEOS_DIR", filepath.Join(storagePath, "videos")),
		ClipsDir:    getEnv("CLIPS_DIR", filepath.Join(storagePath, "clips")),

		StorageQuotaBytes: getEnvInt64("STORAGE_QUOTA_BYTES", 20*1024*1024*1024),
		HighWaterRatio:    getEnvFloat("HIGH_WATER_RATIO", 0.85),
		LowWaterRatio:     getEnvFloat("LOW_WATER_RATIO", 0.80),

		DatabasePath: getEnv("DATABASE_PATH", filepath.Join(storagePath, "detections.db")),

		AgentPort:        getEnv("AGENT_PORT", "8000"),
		SegmentMinutes:   getEnvInt("SEGMENT_MINUTES", 2),
		HeartbeatTimeout: getEnvDuration("HEARTBEAT_TIMEOUT", 90*time.Second),
		ProbeTimeout:     getEnvDuration("PROBE_TIMEOUT", 3*time.Second),
		ProbeRetries:     getEnvInt("PROBE_RETRIES", 2),
		ProbeRetryDelay:  getEnvDuration("PROBE_RETRY_DELAY", 2*time.Second),

		ClipPadSeconds: getEnvFloat("CLIP_PAD_SECONDS", 2.0),
		ClipMaxSeconds: getEnvFloat("CLIP_MAX_SECONDS", 30.0),
		DefaultFPS:     getEnvFloat("DEFAULT_FPS", 30.0),
		FFmpegPath:     getEnv("FFMPEG_PATH", "ffmpeg"),
		FFprobePath:    getEnv("FFPROBE_PATH", "ffprobe"),

		DetectionCommand: getEnv("DETECTION_COMMAND", ""),
		DetectionArgs:    strings.Fields(getEnv("DETECTION_ARGS", "")),
		DetectionWorkers: getEnvInt("DETECTION_WORKERS", 2),

		SerialPort:     getEnv("SERIAL_PORT", ""),
		SerialBaudRate: getEnvInt("SERIAL_BAUD_RATE", 9600),
		TriggerCamera:  getEnv("TRIGGER_CAMERA", ""),

		S3Enabled:   getEnvBool("S3_ENABLED", false),
		S3AccessKey: getEnv("S3_ACCESS_KEY", ""),
		S3SecretKey: getEnv("S3_SECRET_KEY", ""),
		S3Bucket:    getEnv("S3_BUCKET", ""),
		S3Endpoint:  getEnv("S3_ENDPOINT", ""),
		S3Region:    getEnv("S3_REGION", "auto"),
		S3BaseURL:   getEnv("S3_BASE_URL", ""),
	}

	log.Printf("Storage path: %s (quota %d bytes, watermarks %.2f/%.2f)",
		cfg.StoragePath, cfg.StorageQuotaBytes, cfg.HighWaterRatio, cfg.LowWaterRatio)
	log.Printf("Server running on port %s with base URL %s", cfg.ServerPort, cfg.BaseURL)
	if cfg.DetectionCommand == "" {
		log.Println("DETECTION_COMMAND not set, detection jobs will be skipped")
	}
	if cfg.SerialPort != "" {
		log.Printf("Serial trigger enabled on %s @ %d baud", cfg.SerialPort, cfg.SerialBaudRate)
	}
	log.Printf("Offsite backup enabled: %v", cfg.S3Enabled)

	return cfg
}

// EnsurePaths creates necessary directories
func EnsurePaths(cfg Config) {
	for _, dir := range []string{cfg.StoragePath, cfg.VideosDir, cfg.ClipsDir, filepath.Dir(cfg.DatabasePath)} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			log.Printf("Failed to create directory %s: %v", dir, err)
		}
	}
}

// IndexPath is where the segment index file lives.
func (c Config) IndexPath() string {
	return filepath.Join(c.StoragePath, "segments.json")
}

// getEnv returns environment variable or fallback value
func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value, exists := os.LookupEnv(key); exists {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
		log.Printf("Warning: invalid value for %s: %s, using %d", key, value, fallback)
	}
	return fallback
}

func getEnvInt64(key string, fallback int64) int64 {
	if value, exists := os.LookupEnv(key); exists {
		if n, err := strconv.ParseInt(value, 10, 64); err == nil {
			return n
		}
		log.Printf("Warning: invalid value for %s: %s, using %d", key, value, fallback)
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if value, exists := os.LookupEnv(key); exists {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
		log.Printf("Warning: invalid value for %s: %s, using %f", key, value, fallback)
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if value, exists := os.LookupEnv(key); exists {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if value, exists := os.LookupEnv(key); exists {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
		log.Printf("Warning: invalid value for %s: %s, using %s", key, value, fallback)
	}
	return fallback
}
