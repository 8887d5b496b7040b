package config

import (
	"encoding/json"
	"os"
)

// DBConfig holds the database connection parameters. An empty Host disables
// persistence and the node runs in-memory only.
type DBConfig struct {
	Host     string `json:"host"`
	User     string `json:"user"`
	Password string `json:"password"`
	DBName   string `json:"dbname"`
	Port     int    `json:"port"`
	SSLMode  string `json:"sslmode"`
	TimeZone string `json:"timezone"`
}

// LoggerConfig holds the logging configuration.
type LoggerConfig struct {
	Level      string `json:"level"`  // e.g., "debug", "info", "warn", "error"
	Format     string `json:"format"` // "text" or "json"
	FilePath   string `json:"file_path"`
	MaxSize    int    `json:"max_size"` // megabytes
	MaxBackups int    `json:"max_backups"`
	MaxAge     int    `json:"max_age"` // days
	Compress   bool   `json:"compress"`
}

// PartyConfig describes a signing party registered at startup.
type PartyConfig struct {
	Name      string `json:"name"`
	Endpoint  string `json:"endpoint"`
	PublicKey string `json:"public_key"`
	Address   string `json:"address"`
	Stake     int64  `json:"stake"`
}

// ProtocolConfig holds the threshold-signing defaults.
type ProtocolConfig struct {
	DefaultThreshold        int `json:"default_threshold"`
	SessionTimeoutSeconds   int `json:"session_timeout_seconds"`
	SweepIntervalSeconds    int `json:"sweep_interval_seconds"`
	SessionRetentionSeconds int `json:"session_retention_seconds"`
}

// Config holds the application's configuration values.
type Config struct {
	ServerPort string         `json:"server_port"`
	Parties    []PartyConfig  `json:"parties"`
	Protocol   ProtocolConfig `json:"protocol"`
	Database   DBConfig       `json:"database"`
	Logger     LoggerConfig   `json:"logger"`
}

// LoadConfig reads the configuration from a file and returns a Config struct.
func LoadConfig(path string) (*Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	decoder := json.NewDecoder(file)
	config := &Config{}
	err = decoder.Decode(config)
	if err != nil {
		return nil, err
	}

	return config, nil
}
