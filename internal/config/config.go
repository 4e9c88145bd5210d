// Package config loads service configuration from the environment.
package config

import (
	"os"
	"strconv"
	"time"
)

// Default configuration values
const (
	// DefaultDataPath is the local working directory for job inputs
	DefaultDataPath = "/var/lib/floe/data"
	// DefaultInputSuffix is the required suffix for input artifacts
	DefaultInputSuffix = ".vcf"
	// DefaultListenAddr is the HTTP listen address
	DefaultListenAddr = ":8080"
	// DefaultRedisAddr is the Redis server address
	DefaultRedisAddr = "localhost:6379"
	// DefaultStorageRoot is the root directory of the hot object store
	DefaultStorageRoot = "/var/lib/floe/storage"
	// DefaultVaultRoot is the root directory of the cold archive vault
	DefaultVaultRoot = "/var/lib/floe/vault"
	// DefaultVaultName is the name of the cold archive vault
	DefaultVaultName = "floe-archive"
	// DefaultRunnerCommand is the external processing executable
	DefaultRunnerCommand = "run.py"

	// DefaultWaitTime is the long-poll bound for queue receives
	DefaultWaitTime = 10 * time.Second
	// DefaultMaxMessages is the maximum receive batch size
	DefaultMaxMessages = 10
	// DefaultVisibilityTimeout is how long an unacknowledged message stays
	// invisible before redelivery
	DefaultVisibilityTimeout = 30 * time.Second

	// DefaultInputsBucket holds uploaded input artifacts
	DefaultInputsBucket = "floe-inputs"
	// DefaultResultsBucket holds result and log artifacts
	DefaultResultsBucket = "floe-results"
)

// Queue names, one per workflow stage.
const (
	QueueJobRequests  = "job-requests"
	QueueJobResults   = "job-results"
	QueueThawRequests = "thaw-requests"
	QueueRestores     = "restore-completions"
)

// Topic names feeding the stage queues.
const (
	TopicJobRequests = "job-requests"
	TopicJobResults  = "job-results"
	TopicThaw        = "thaw-requests"
	TopicRestores    = "restore-completions"
)

// Config holds the runtime configuration for all components.
type Config struct {
	ListenAddr  string
	DataPath    string
	InputSuffix string

	RedisAddr     string
	RedisPassword string

	DBHost     string
	DBUser     string
	DBPassword string
	DBName     string
	DBPort     int

	StorageRoot   string
	VaultRoot     string
	VaultName     string
	InputsBucket  string
	ResultsBucket string

	RunnerCommand string

	WaitTime          time.Duration
	MaxMessages       int
	VisibilityTimeout time.Duration
}

// Load reads configuration from FLOE_* environment variables, applying
// defaults for anything unset.
func Load() Config {
	return Config{
		ListenAddr:  getEnv("FLOE_LISTEN_ADDR", DefaultListenAddr),
		DataPath:    getEnv("FLOE_DATA_PATH", DefaultDataPath),
		InputSuffix: getEnv("FLOE_INPUT_SUFFIX", DefaultInputSuffix),

		RedisAddr:     getEnv("FLOE_REDIS_ADDR", DefaultRedisAddr),
		RedisPassword: getEnv("FLOE_REDIS_PASSWORD", ""),

		DBHost:     getEnv("FLOE_DB_HOST", "localhost"),
		DBUser:     getEnv("FLOE_DB_USER", "postgres"),
		DBPassword: getEnv("FLOE_DB_PASSWORD", "postgres"),
		DBName:     getEnv("FLOE_DB_NAME", "floe"),
		DBPort:     getEnvInt("FLOE_DB_PORT", 5432),

		StorageRoot:   getEnv("FLOE_STORAGE_ROOT", DefaultStorageRoot),
		VaultRoot:     getEnv("FLOE_VAULT_ROOT", DefaultVaultRoot),
		VaultName:     getEnv("FLOE_VAULT_NAME", DefaultVaultName),
		InputsBucket:  getEnv("FLOE_INPUTS_BUCKET", DefaultInputsBucket),
		ResultsBucket: getEnv("FLOE_RESULTS_BUCKET", DefaultResultsBucket),

		RunnerCommand: getEnv("FLOE_RUNNER_COMMAND", DefaultRunnerCommand),

		WaitTime:          getEnvDuration("FLOE_WAIT_TIME", DefaultWaitTime),
		MaxMessages:       getEnvInt("FLOE_MAX_MESSAGES", DefaultMaxMessages),
		VisibilityTimeout: getEnvDuration("FLOE_VISIBILITY_TIMEOUT", DefaultVisibilityTimeout),
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}
