package config

import "time"

// Defaults returns a Config with sensible defaults applied.
func Defaults() Config {
	return Config{
		Server: ServerConfig{
			Host: "127.0.0.1",
			Port: 8300,
		},
		Store: StoreConfig{
			Path: "ransomchat.db",
		},
		Personas: PersonaConfig{
			Dir: "behaviours",
		},
		LLM: LLMConfig{
			BaseURL: "https://api.openai.com/v1",
			Model:   "gpt-4o",
		},
		Scheduler: SchedulerConfig{
			Workers:           4,
			QueueSize:         64,
			LockTTL:           Duration(10 * time.Minute),
			LockRetries:       60,
			LockRetryInterval: Duration(time.Second),
			ResultTTL:         Duration(10 * time.Minute),
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// applyDefaults fills zero-value fields with sensible defaults.
func applyDefaults(cfg *Config) {
	def := Defaults()
	if cfg.Server.Host == "" {
		cfg.Server.Host = def.Server.Host
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = def.Server.Port
	}
	if cfg.Store.Path == "" {
		cfg.Store.Path = def.Store.Path
	}
	if cfg.Personas.Dir == "" {
		cfg.Personas.Dir = def.Personas.Dir
	}
	if cfg.LLM.BaseURL == "" {
		cfg.LLM.BaseURL = def.LLM.BaseURL
	}
	if cfg.LLM.Model == "" {
		cfg.LLM.Model = def.LLM.Model
	}
	if cfg.Scheduler.Workers == 0 {
		cfg.Scheduler.Workers = def.Scheduler.Workers
	}
	if cfg.Scheduler.QueueSize == 0 {
		cfg.Scheduler.QueueSize = def.Scheduler.QueueSize
	}
	if cfg.Scheduler.LockTTL == 0 {
		cfg.Scheduler.LockTTL = def.Scheduler.LockTTL
	}
	if cfg.Scheduler.LockRetries == 0 {
		cfg.Scheduler.LockRetries = def.Scheduler.LockRetries
	}
	if cfg.Scheduler.LockRetryInterval == 0 {
		cfg.Scheduler.LockRetryInterval = def.Scheduler.LockRetryInterval
	}
	if cfg.Scheduler.ResultTTL == 0 {
		cfg.Scheduler.ResultTTL = def.Scheduler.ResultTTL
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = def.Logging.Level
	}
}
