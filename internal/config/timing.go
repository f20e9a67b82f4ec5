package config

import "time"

// TimingConfig holds every cadence and timeout of the service.
type TimingConfig struct {
	// Telemetry stream heartbeat
	HeartbeatInterval time.Duration `yaml:"heartbeatInterval"`
	HeartbeatJitter   time.Duration `yaml:"heartbeatJitter"`
	HeartbeatTimeout  time.Duration `yaml:"heartbeatTimeout"`

	// Monitoring loop cadence
	MonitorPollInterval time.Duration `yaml:"monitorPollInterval"`

	// Device transaction timeouts
	CommandTimeoutConnect     time.Duration `yaml:"commandTimeoutConnect"`
	CommandTimeoutApply       time.Duration `yaml:"commandTimeoutApply"`
	CommandTimeoutApplySmooth time.Duration `yaml:"commandTimeoutApplySmooth"`
	CommandTimeoutPoll        time.Duration `yaml:"commandTimeoutPoll"`
	CommandTimeoutClose       time.Duration `yaml:"commandTimeoutClose"`

	// Event buffering for stream replay and the observer queue
	EventBufferSize      int           `yaml:"eventBufferSize"`
	EventBufferRetention time.Duration `yaml:"eventBufferRetention"`
	EventQueueSize       int           `yaml:"eventQueueSize"`
}

// LoadBaseline returns the baseline timing values.
func LoadBaseline() *TimingConfig {
	return &TimingConfig{
		HeartbeatInterval: 15 * time.Second,
		HeartbeatJitter:   2 * time.Second,
		HeartbeatTimeout:  45 * time.Second,

		MonitorPollInterval: 500 * time.Millisecond,

		CommandTimeoutConnect:     5 * time.Second,
		CommandTimeoutApply:       2 * time.Second,
		CommandTimeoutApplySmooth: 10 * time.Second,
		CommandTimeoutPoll:        1 * time.Second,
		CommandTimeoutClose:       5 * time.Second,

		EventBufferSize:      50,
		EventBufferRetention: 1 * time.Hour,
		EventQueueSize:       64,
	}
}
