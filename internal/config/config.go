package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Load reads the .env file specified by VOLITION_ENV (or .env by default),
// then loads the corresponding .secret file if it exists.
// All config is flat env vars read via os.Getenv after loading.
func Load() error {
	envFile := os.Getenv("VOLITION_ENV")
	if envFile == "" {
		envFile = ".env"
	}

	// Load main env file (ignore error if file doesn't exist)
	_ = godotenv.Load(envFile)

	// Load secret sidecar if it exists
	_ = godotenv.Load(envFile + ".secret")

	return nil
}

func ServerPort() int {
	port, err := strconv.Atoi(os.Getenv("SERVER_PORT"))
	if err != nil {
		return 8080
	}
	return port
}

func ServerAddr() string {
	return fmt.Sprintf(":%d", ServerPort())
}

func DatabaseURL() string {
	return os.Getenv("DATABASE_URL")
}

// AlertWebhookURL is the endpoint the send_alert skill posts to.
// Empty disables alert delivery.
func AlertWebhookURL() string {
	return os.Getenv("ALERT_WEBHOOK_URL")
}

// LogLevel returns the log level (debug, info, warn, error).
// Defaults to "info" if not set.
func LogLevel() string {
	level := os.Getenv("LOG_LEVEL")
	if level == "" {
		return "info"
	}
	return level
}

// RateLimitRPS returns requests per second limit for the HTTP surface.
// Defaults to 100 if not set.
func RateLimitRPS() float64 {
	rps, err := strconv.ParseFloat(os.Getenv("RATE_LIMIT_RPS"), 64)
	if err != nil || rps <= 0 {
		return 100
	}
	return rps
}

// RateLimitBurst returns the burst size for rate limiting.
// Defaults to 20 if not set.
func RateLimitBurst() int {
	burst, err := strconv.Atoi(os.Getenv("RATE_LIMIT_BURST"))
	if err != nil || burst <= 0 {
		return 20
	}
	return burst
}

// CycleInterval is how often the scheduler triggers a cognitive cycle.
// Defaults to 30s.
func CycleInterval() time.Duration {
	return durationEnv("CYCLE_INTERVAL", 30*time.Second)
}

// CycleCooldown is the minimum time between two cycles. Defaults to 10s.
func CycleCooldown() time.Duration {
	return durationEnv("CYCLE_COOLDOWN", 10*time.Second)
}

// CycleHourlyCap is the maximum number of cycles per hour. Defaults to 100.
func CycleHourlyCap() int {
	return intEnv("CYCLE_HOURLY_CAP", 100)
}

// ReconcileInterval is how often the coordinator reconciliation pass runs.
// Defaults to 1m.
func ReconcileInterval() time.Duration {
	return durationEnv("RECONCILE_INTERVAL", time.Minute)
}

// MaxBeliefs is the belief store capacity. Defaults to 200.
func MaxBeliefs() int {
	return intEnv("MAX_BELIEFS", 200)
}

// MaxSignals is the signal ring buffer capacity. Defaults to 500.
func MaxSignals() int {
	return intEnv("MAX_SIGNALS", 500)
}

// MaxEpisodes is the episode log capacity. Defaults to 200.
func MaxEpisodes() int {
	return intEnv("MAX_EPISODES", 200)
}

// MaxActiveGoals caps the active goal set. Defaults to 20.
func MaxActiveGoals() int {
	return intEnv("MAX_ACTIVE_GOALS", 20)
}

// GoalTTL is the age past which unfinished goals are abandoned.
// Defaults to 7 days.
func GoalTTL() time.Duration {
	return durationEnv("GOAL_TTL", 7*24*time.Hour)
}

func intEnv(key string, def int) int {
	v, err := strconv.Atoi(os.Getenv(key))
	if err != nil || v <= 0 {
		return def
	}
	return v
}

func durationEnv(key string, def time.Duration) time.Duration {
	d, err := time.ParseDuration(os.Getenv(key))
	if err != nil || d <= 0 {
		return def
	}
	return d
}
