// Package config handles daemon configuration loading and management.
package config

// Config holds all daemon settings.
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Logging LoggingConfig `yaml:"logging"`
}

// ServerConfig holds the HTTP boundary settings.
type ServerConfig struct {
	Addr            string `yaml:"addr"`
	MaxUploadMB     int    `yaml:"max_upload_mb"`
	ShutdownTimeout int    `yaml:"shutdown_timeout_sec"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level   string `yaml:"level"`
	LogFile string `yaml:"log_file"`
}

// Default returns a Config with sensible default values.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:            "127.0.0.1:5000",
			MaxUploadMB:     64,
			ShutdownTimeout: 10,
		},
		Logging: LoggingConfig{
			Level:   "info",
			LogFile: "",
		},
	}
}
