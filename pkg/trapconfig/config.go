// Package trapconfig loads runtime settings from the environment, with an
// optional .env overlay for development machines.
package trapconfig

import (
	"os"
	"strconv"

	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"
)

type Config struct {
	HTTPAddr string
	LogLevel string

	// Storage
	MountPath  string
	LowWaterMB int

	// Detection
	Threshold        int
	MinChangedPixels int
	MinComponentSize int
	MaxComponents    int
	MinArea          int
	MaxArea          int
	FrameInitCount   int

	// Capture loop
	PollIntervalMs int

	// Upload
	UploadURL         string
	UploadIntervalSec int
}

// Load reads configuration from the process environment. A .env file in the
// working directory is merged in first when present.
func Load() *Config {
	if err := godotenv.Load(); err != nil {
		log.Debug("no .env file, using process environment")
	}

	return &Config{
		HTTPAddr: getEnv("TRAP_HTTP_ADDR", ":8080"),
		LogLevel: getEnv("TRAP_LOG_LEVEL", "info"),

		MountPath:  getEnv("TRAP_MOUNT_PATH", "/data"),
		LowWaterMB: getEnvAsInt("TRAP_LOW_WATER_MB", 64),

		Threshold:        getEnvAsInt("TRAP_THRESHOLD", 25),
		MinChangedPixels: getEnvAsInt("TRAP_MIN_CHANGED_PIXELS", 20),
		MinComponentSize: getEnvAsInt("TRAP_MIN_COMPONENT_SIZE", 20),
		MaxComponents:    getEnvAsInt("TRAP_MAX_COMPONENTS", 30),
		MinArea:          getEnvAsInt("TRAP_MIN_AREA", 200),
		MaxArea:          getEnvAsInt("TRAP_MAX_AREA", 10000),
		FrameInitCount:   getEnvAsInt("TRAP_FRAME_INIT_COUNT", 20),

		PollIntervalMs: getEnvAsInt("TRAP_POLL_INTERVAL_MS", 250),

		UploadURL:         getEnv("TRAP_UPLOAD_URL", "http://localhost:9000"),
		UploadIntervalSec: getEnvAsInt("TRAP_UPLOAD_INTERVAL_SEC", 0),
	}
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		return value
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	value, ok := os.LookupEnv(key)
	if !ok || value == "" {
		return fallback
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		log.Warnf("invalid integer for %s: %q, using %d", key, value, fallback)
		return fallback
	}
	return n
}
