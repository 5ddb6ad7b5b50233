// Package config loads the frame hub's startup parameters from the
// environment (optionally a .env file) over built-in defaults.
package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"github.com/dj-oyu/rdk-x5_camera-core/internal/ring"
	"github.com/dj-oyu/rdk-x5_camera-core/internal/selector"
	"github.com/dj-oyu/rdk-x5_camera-core/pkg/types"
)

// Config is the full startup configuration surface. Everything here is an
// operational constant, tuned on-device; nothing is a protocol invariant.
type Config struct {
	// Shared memory
	ShmBaseDir     string
	DayFrameShm    string
	NightFrameShm  string
	ActiveFrameShm string
	DetectionShm   string
	RingCapacity   int
	MaxFrameBytes  int
	ReadRetryBound int // torn-read retry bound K

	// Capture pacing
	FrameInterval time.Duration // active camera target cadence (~30 Hz)

	// Selector tunables
	Selector selector.Config

	// Events (optional; empty URL disables)
	NatsURL            string
	NatsConnectTimeout time.Duration
	NatsReconnectWait  time.Duration
	NatsMaxReconnects  int
	SwitchSubject      string
	StallSubject       string

	// Observability
	MetricsAddr string
	LogLevel    string
	LogColor    bool

	// DotenvLoaded reports whether a .env file was found. Load runs before
	// the logger is initialized, so the caller logs this.
	DotenvLoaded bool
}

// Load reads configuration from the environment, with .env support.
func Load() *Config {
	dotenv := godotenv.Load() == nil

	sel := selector.DefaultConfig()
	if getEnv("PREFERRED_CAMERA", "day") == "night" {
		sel.PreferredCamera = types.CameraNight
	}
	sel.DarkThreshold = float32(getEnvInt("DARK_THRESHOLD", int(sel.DarkThreshold)))
	sel.BrightThreshold = float32(getEnvInt("BRIGHT_THRESHOLD", int(sel.BrightThreshold)))
	sel.DwellDark = getEnvInt("DWELL_DARK_SAMPLES", sel.DwellDark)
	sel.DwellBright = getEnvInt("DWELL_BRIGHT_SAMPLES", sel.DwellBright)
	sel.SampleIntervalDay = getEnvInt("SAMPLE_INTERVAL_DAY", sel.SampleIntervalDay)
	sel.SampleIntervalNight = getEnvInt("SAMPLE_INTERVAL_NIGHT", sel.SampleIntervalNight)
	sel.ProbeInterval = getEnvDuration("PROBE_INTERVAL", sel.ProbeInterval)
	sel.StallTimeout = getEnvDuration("STALL_TIMEOUT", sel.StallTimeout)
	sel.WarmupFrames = getEnvInt("WARMUP_FRAMES", sel.WarmupFrames)

	return &Config{
		ShmBaseDir:     getEnv("SHM_BASE_DIR", "/dev/shm"),
		DayFrameShm:    getEnv("DAY_FRAME_SHM", "/pet_camera_day_frames"),
		NightFrameShm:  getEnv("NIGHT_FRAME_SHM", "/pet_camera_night_frames"),
		ActiveFrameShm: getEnv("ACTIVE_FRAME_SHM", "/pet_camera_active_frame"),
		DetectionShm:   getEnv("DETECTION_SHM", "/pet_camera_detections"),
		RingCapacity:   getEnvInt("RING_CAPACITY", ring.DefaultCapacity),
		MaxFrameBytes:  getEnvInt("MAX_FRAME_BYTES", ring.MaxFrameSize),
		ReadRetryBound: getEnvInt("READ_RETRY_BOUND", ring.DefaultRetryBound),

		FrameInterval: getEnvDuration("FRAME_INTERVAL", 33*time.Millisecond),

		Selector: sel,

		NatsURL:            getEnv("NATS_URL", ""),
		NatsConnectTimeout: getEnvDuration("NATS_CONNECT_TIMEOUT", 10*time.Second),
		NatsReconnectWait:  getEnvDuration("NATS_RECONNECT_WAIT", 2*time.Second),
		NatsMaxReconnects:  getEnvInt("NATS_MAX_RECONNECTS", -1),
		SwitchSubject:      getEnv("SWITCH_SUBJECT", "camera.switch"),
		StallSubject:       getEnv("STALL_SUBJECT", "camera.stall"),

		MetricsAddr: getEnv("METRICS_ADDR", ":9090"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		LogColor:    getEnvBool("LOG_COLOR", true),

		DotenvLoaded: dotenv,
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}
