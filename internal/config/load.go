package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v2"
)

// DefaultFile is read when MCC_CONFIG is not set and the file exists.
const DefaultFile = "mcc.yaml"

// Load merges defaults + .env + optional YAML file + MCC_* overrides and
// validates the result.
func Load() (*Config, error) {
	cfg := Defaults()

	// A missing .env is normal outside development.
	_ = godotenv.Load()

	path := os.Getenv("MCC_CONFIG")
	if path == "" {
		if _, err := os.Stat(DefaultFile); err == nil {
			path = DefaultFile
		}
	}
	if path != "" {
		if err := LoadFromFile(cfg, path); err != nil {
			return nil, fmt.Errorf("failed to load %s: %w", path, err)
		}
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, fmt.Errorf("failed to apply environment overrides: %w", err)
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// LoadFromFile overlays the YAML file at path onto cfg. Keys absent from the
// file keep their current values.
func LoadFromFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if cfg.Timing == nil {
		cfg.Timing = LoadBaseline()
	}
	timing := *cfg.Timing
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return err
	}
	// An explicit null timing section keeps the previous values.
	if cfg.Timing == nil {
		cfg.Timing = &timing
	}
	return nil
}

type envDuration struct {
	key string
	dst *time.Duration
}

type envInt struct {
	key string
	dst *int
}

type envString struct {
	key string
	dst *string
}

type envBool struct {
	key string
	dst *bool
}

// applyEnvOverrides applies MCC_* environment variables to cfg. Malformed
// values are reported rather than ignored.
func applyEnvOverrides(cfg *Config) error {
	t := cfg.Timing
	durations := []envDuration{
		{"MCC_TIMING_HEARTBEAT_INTERVAL", &t.HeartbeatInterval},
		{"MCC_TIMING_HEARTBEAT_JITTER", &t.HeartbeatJitter},
		{"MCC_TIMING_HEARTBEAT_TIMEOUT", &t.HeartbeatTimeout},
		{"MCC_TIMING_MONITOR_POLL_INTERVAL", &t.MonitorPollInterval},
		{"MCC_TIMING_COMMAND_CONNECT", &t.CommandTimeoutConnect},
		{"MCC_TIMING_COMMAND_APPLY", &t.CommandTimeoutApply},
		{"MCC_TIMING_COMMAND_APPLY_SMOOTH", &t.CommandTimeoutApplySmooth},
		{"MCC_TIMING_COMMAND_POLL", &t.CommandTimeoutPoll},
		{"MCC_TIMING_COMMAND_CLOSE", &t.CommandTimeoutClose},
		{"MCC_TIMING_EVENT_BUFFER_RETENTION", &t.EventBufferRetention},
		{"MCC_LINK_READ_TIMEOUT", &cfg.Link.ReadTimeout},
		{"MCC_LINK_STEP_INTERVAL", &cfg.Link.StepInterval},
	}
	ints := []envInt{
		{"MCC_TIMING_EVENT_BUFFER_SIZE", &t.EventBufferSize},
		{"MCC_TIMING_EVENT_QUEUE_SIZE", &t.EventQueueSize},
		{"MCC_LINK_BAUD", &cfg.Link.Baud},
		{"MCC_LINK_SMOOTH_STEPS", &cfg.Link.SmoothSteps},
		{"MCC_AUDIT_MAX_SIZE_MB", &cfg.Audit.MaxSizeMB},
		{"MCC_AUDIT_MAX_BACKUPS", &cfg.Audit.MaxBackups},
		{"MCC_AUDIT_MAX_AGE_DAYS", &cfg.Audit.MaxAgeDays},
	}
	strs := []envString{
		{"MCC_LINK_KIND", &cfg.Link.Kind},
		{"MCC_LINK_DEVICE", &cfg.Link.Device},
		{"MCC_FILES_DIR", &cfg.Files.Dir},
		{"MCC_FILES_FLAT", &cfg.Files.FlatFile},
		{"MCC_AUDIT_DIR", &cfg.Audit.Dir},
		{"MCC_MQTT_BROKER", &cfg.MQTT.Broker},
		{"MCC_MQTT_CLIENT_ID", &cfg.MQTT.ClientID},
		{"MCC_MQTT_USERNAME", &cfg.MQTT.Username},
		{"MCC_MQTT_PASSWORD", &cfg.MQTT.Password},
		{"MCC_MQTT_TOPIC_PREFIX", &cfg.MQTT.TopicPrefix},
		{"MCC_AUTH_ALGORITHM", &cfg.Auth.Algorithm},
		{"MCC_AUTH_SECRET", &cfg.Auth.Secret},
		{"MCC_AUTH_PUBLIC_KEY_PEM", &cfg.Auth.PublicKeyPEM},
		{"MCC_ADDR", &cfg.Server.Addr},
	}
	bools := []envBool{
		{"MCC_MQTT_ENABLED", &cfg.MQTT.Enabled},
		{"MCC_AUTH_DISABLED", &cfg.Auth.Disabled},
		{"MCC_AUDIT_COMPRESS", &cfg.Audit.Compress},
	}

	for _, e := range durations {
		if val := os.Getenv(e.key); val != "" {
			d, err := time.ParseDuration(val)
			if err != nil {
				return fmt.Errorf("%s: %w", e.key, err)
			}
			*e.dst = d
		}
	}
	for _, e := range ints {
		if val := os.Getenv(e.key); val != "" {
			n, err := strconv.Atoi(val)
			if err != nil {
				return fmt.Errorf("%s: %w", e.key, err)
			}
			*e.dst = n
		}
	}
	for _, e := range strs {
		if val := os.Getenv(e.key); val != "" {
			*e.dst = val
		}
	}
	for _, e := range bools {
		if val := os.Getenv(e.key); val != "" {
			b, err := strconv.ParseBool(val)
			if err != nil {
				return fmt.Errorf("%s: %w", e.key, err)
			}
			*e.dst = b
		}
	}
	return nil
}

// GetEnvVar returns the value of an environment variable with a default.
func GetEnvVar(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// GetEnvDuration returns the value of an environment variable as a duration with a default.
func GetEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
