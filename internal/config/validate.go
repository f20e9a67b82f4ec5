package config

import (
	"fmt"
	"strings"
	"time"
)

// Validate checks the complete configuration.
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config cannot be nil")
	}
	if err := ValidateTiming(cfg.Timing); err != nil {
		return err
	}
	if err := validateLink(&cfg.Link); err != nil {
		return fmt.Errorf("link validation failed: %w", err)
	}
	if err := validateMQTT(&cfg.MQTT); err != nil {
		return fmt.Errorf("mqtt validation failed: %w", err)
	}
	if err := validateAuth(&cfg.Auth); err != nil {
		return fmt.Errorf("auth validation failed: %w", err)
	}
	if cfg.Server.Addr == "" {
		return fmt.Errorf("server address must not be empty")
	}
	return nil
}

// ValidateTiming enforces the timing constraints.
func ValidateTiming(config *TimingConfig) error {
	if config == nil {
		return fmt.Errorf("timing config cannot be nil")
	}
	if err := validateHeartbeat(config); err != nil {
		return fmt.Errorf("heartbeat validation failed: %w", err)
	}
	if err := validateCommandTimeouts(config); err != nil {
		return fmt.Errorf("command timeout validation failed: %w", err)
	}
	if err := validateEventBuffer(config); err != nil {
		return fmt.Errorf("event buffer validation failed: %w", err)
	}
	return nil
}

func validateHeartbeat(config *TimingConfig) error {
	if config.HeartbeatInterval <= 0 {
		return fmt.Errorf("heartbeat interval must be positive, got %v", config.HeartbeatInterval)
	}

	// Jitter at most half the interval
	if config.HeartbeatJitter < 0 {
		return fmt.Errorf("heartbeat jitter must be non-negative, got %v", config.HeartbeatJitter)
	}
	if config.HeartbeatJitter > config.HeartbeatInterval/2 {
		return fmt.Errorf("heartbeat jitter %v exceeds 50%% of interval %v", config.HeartbeatJitter, config.HeartbeatInterval)
	}

	if config.HeartbeatTimeout < config.HeartbeatInterval {
		return fmt.Errorf("heartbeat timeout %v must be >= interval %v", config.HeartbeatTimeout, config.HeartbeatInterval)
	}
	return nil
}

func validateCommandTimeouts(config *TimingConfig) error {
	if config.MonitorPollInterval <= 0 {
		return fmt.Errorf("monitor poll interval must be positive, got %v", config.MonitorPollInterval)
	}

	timeouts := map[string]time.Duration{
		"connect":     config.CommandTimeoutConnect,
		"apply":       config.CommandTimeoutApply,
		"applySmooth": config.CommandTimeoutApplySmooth,
		"poll":        config.CommandTimeoutPoll,
		"close":       config.CommandTimeoutClose,
	}
	for name, d := range timeouts {
		if d <= 0 {
			return fmt.Errorf("%s timeout must be positive, got %v", name, d)
		}
	}

	// Smooth application is strictly slower than immediate
	if config.CommandTimeoutApplySmooth < config.CommandTimeoutApply {
		return fmt.Errorf("smooth apply timeout %v must be >= apply timeout %v", config.CommandTimeoutApplySmooth, config.CommandTimeoutApply)
	}
	return nil
}

func validateEventBuffer(config *TimingConfig) error {
	if config.EventBufferSize <= 0 {
		return fmt.Errorf("event buffer size must be positive, got %d", config.EventBufferSize)
	}
	if config.EventBufferRetention <= 0 {
		return fmt.Errorf("event buffer retention must be positive, got %v", config.EventBufferRetention)
	}
	if config.EventQueueSize <= 0 {
		return fmt.Errorf("event queue size must be positive, got %d", config.EventQueueSize)
	}
	return nil
}

func validateLink(link *LinkConfig) error {
	switch link.Kind {
	case "fake":
	case "serial":
		if link.Device == "" {
			return fmt.Errorf("serial link needs a device")
		}
		if link.Baud <= 0 {
			return fmt.Errorf("baud must be positive, got %d", link.Baud)
		}
	default:
		return fmt.Errorf("unknown link kind %q", link.Kind)
	}
	if link.SmoothSteps < 1 {
		return fmt.Errorf("smooth steps must be at least 1, got %d", link.SmoothSteps)
	}
	return nil
}

func validateMQTT(m *MQTTConfig) error {
	if !m.Enabled {
		return nil
	}
	if m.Broker == "" {
		return fmt.Errorf("broker must be set when mqtt is enabled")
	}
	if strings.ContainsAny(m.TopicPrefix, "#+") {
		return fmt.Errorf("topic prefix %q must not contain wildcards", m.TopicPrefix)
	}
	return nil
}

func validateAuth(a *AuthConfig) error {
	if a.Disabled {
		return nil
	}
	switch a.Algorithm {
	case "HS256":
		if a.Secret == "" {
			return fmt.Errorf("HS256 needs a secret")
		}
	case "RS256":
		if a.PublicKeyPEM == "" {
			return fmt.Errorf("RS256 needs a public key")
		}
	default:
		return fmt.Errorf("unsupported algorithm %q", a.Algorithm)
	}
	return nil
}
