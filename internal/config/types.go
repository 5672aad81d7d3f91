// Package config defines the service configuration, its defaults, and
// the YAML loader.
package config

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration is a time.Duration that unmarshals from YAML strings like
// "90s" or "5m".
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return &ConfigError{Message: fmt.Sprintf("invalid duration %q: %v", s, err)}
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// ConfigError represents a configuration error.
type ConfigError struct {
	Message string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config: %s", e.Message)
}

// Config is the root configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Store     StoreConfig     `yaml:"store"`
	Redis     RedisConfig     `yaml:"redis"`
	Personas  PersonaConfig   `yaml:"personas"`
	LLM       LLMConfig       `yaml:"llm"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// ServerConfig controls the HTTP gateway.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
	// AllowedOrigins lists origins permitted by CORS. Empty denies
	// cross-origin requests; "*" allows any.
	AllowedOrigins []string `yaml:"allowedOrigins"`
}

// Addr returns the listen address.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// StoreConfig controls session persistence.
type StoreConfig struct {
	// Path is the sqlite database file, or ":memory:" for an
	// in-process store.
	Path string `yaml:"path"`
}

// RedisConfig controls the lock and result store. An empty Addr selects
// the in-process store, suitable for single-node deployments and tests.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// PersonaConfig locates the threat-actor behaviour profiles.
type PersonaConfig struct {
	Dir string `yaml:"dir"`
}

// LLMConfig sets completion API defaults for requests that omit them.
type LLMConfig struct {
	BaseURL string `yaml:"baseUrl"`
	Model   string `yaml:"model"`
}

// SchedulerConfig tunes the async task pipeline.
type SchedulerConfig struct {
	Workers           int      `yaml:"workers"`
	QueueSize         int      `yaml:"queueSize"`
	LockTTL           Duration `yaml:"lockTtl"`
	LockRetries       int      `yaml:"lockRetries"`
	LockRetryInterval Duration `yaml:"lockRetryInterval"`
	ResultTTL         Duration `yaml:"resultTtl"`
}

// LoggingConfig controls log output.
type LoggingConfig struct {
	Level string `yaml:"level"`
}
