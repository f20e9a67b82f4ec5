package config

import "time"

// Config is the complete service configuration.
type Config struct {
	Timing *TimingConfig `yaml:"timing"`
	Link   LinkConfig    `yaml:"link"`
	Files  FilesConfig   `yaml:"files"`
	Audit  AuditConfig   `yaml:"audit"`
	MQTT   MQTTConfig    `yaml:"mqtt"`
	Auth   AuthConfig    `yaml:"auth"`
	Server ServerConfig  `yaml:"server"`
}

// LinkConfig selects and configures the DeviceLink.
type LinkConfig struct {
	// Kind is "fake" or "serial".
	Kind         string        `yaml:"kind"`
	Device       string        `yaml:"device"`
	Baud         int           `yaml:"baud"`
	ReadTimeout  time.Duration `yaml:"readTimeout"`
	SmoothSteps  int           `yaml:"smoothSteps"`
	StepInterval time.Duration `yaml:"stepInterval"`
}

// FilesConfig locates command files.
type FilesConfig struct {
	// Dir confines API file operations, "commands" by default. Empty allows any path.
	Dir string `yaml:"dir"`
	// FlatFile is the factory flat command applied by ApplyFlat.
	FlatFile string `yaml:"flatFile"`
}

// AuditConfig controls the rotating audit log.
type AuditConfig struct {
	Dir        string `yaml:"dir"`
	MaxSizeMB  int    `yaml:"maxSizeMb"`
	MaxBackups int    `yaml:"maxBackups"`
	MaxAgeDays int    `yaml:"maxAgeDays"`
	Compress   bool   `yaml:"compress"`
}

// MQTTConfig controls the event bridge.
type MQTTConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Broker      string `yaml:"broker"`
	ClientID    string `yaml:"clientId"`
	Username    string `yaml:"username"`
	Password    string `yaml:"password"`
	TopicPrefix string `yaml:"topicPrefix"`
}

// AuthConfig configures bearer token verification.
type AuthConfig struct {
	// Disabled turns authentication off for bench setups.
	Disabled     bool   `yaml:"disabled"`
	Algorithm    string `yaml:"algorithm"`
	Secret       string `yaml:"secret"`
	PublicKeyPEM string `yaml:"publicKeyPem"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Addr         string        `yaml:"addr"`
	ReadTimeout  time.Duration `yaml:"readTimeout"`
	WriteTimeout time.Duration `yaml:"writeTimeout"`
	IdleTimeout  time.Duration `yaml:"idleTimeout"`
}

// Defaults returns the baseline configuration.
func Defaults() *Config {
	return &Config{
		Timing: LoadBaseline(),
		Link: LinkConfig{
			Kind:         "fake",
			Device:       "/dev/ttyACM0",
			Baud:         115200,
			ReadTimeout:  200 * time.Millisecond,
			SmoothSteps:  10,
			StepInterval: 5 * time.Millisecond,
		},
		Files: FilesConfig{
			Dir:      "commands",
			FlatFile: "flat.mro",
		},
		Audit: AuditConfig{
			Dir:        "audit",
			MaxSizeMB:  50,
			MaxBackups: 5,
			MaxAgeDays: 30,
		},
		MQTT: MQTTConfig{
			Broker:      "tcp://localhost:1883",
			ClientID:    "mcc",
			TopicPrefix: "mirror",
		},
		Auth: AuthConfig{
			Algorithm: "HS256",
		},
		Server: ServerConfig{
			Addr:         ":8080",
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  120 * time.Second,
		},
	}
}
