package config

import "time"

// DefaultEndpoint is the SockJS endpoint of a locally running messenger server.
const DefaultEndpoint = "http://localhost:8080/tim-websocket"

// Config holds console configuration values.
type Config struct {
	Endpoint       string        `mapstructure:"endpoint" yaml:"endpoint"`
	UserID         string        `mapstructure:"user_id" yaml:"user_id"`
	FullName       string        `mapstructure:"full_name" yaml:"full_name"`
	LogLevel       string        `mapstructure:"log_level" yaml:"log_level"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout" yaml:"connect_timeout"`
	HeartBeat      time.Duration `mapstructure:"heartbeat" yaml:"heartbeat"`
	HistoryPath    string        `mapstructure:"history_path" yaml:"history_path"`
	InspectAddr    string        `mapstructure:"inspect_addr" yaml:"inspect_addr"`
	Loopback       bool          `mapstructure:"loopback" yaml:"loopback"`

	JWTSecret   string        `mapstructure:"jwt_secret" yaml:"jwt_secret"`
	JWTIssuer   string        `mapstructure:"jwt_issuer" yaml:"jwt_issuer"`
	JWTAudience string        `mapstructure:"jwt_audience" yaml:"jwt_audience"`
	JWTTTL      time.Duration `mapstructure:"jwt_ttl" yaml:"jwt_ttl"`
}

// Default returns configuration with reasonable starter defaults.
func Default() Config {
	return Config{
		Endpoint:       DefaultEndpoint,
		LogLevel:       "info",
		ConnectTimeout: 10 * time.Second,
		HeartBeat:      10 * time.Second,
		JWTIssuer:      "stompdebug",
		JWTTTL:         time.Hour,
	}
}

// UpdateFrom overwrites non-zero values from other config into receiver.
func (c *Config) UpdateFrom(other Config) {
	if other.Endpoint != "" {
		c.Endpoint = other.Endpoint
	}
	if other.UserID != "" {
		c.UserID = other.UserID
	}
	if other.FullName != "" {
		c.FullName = other.FullName
	}
	if other.LogLevel != "" {
		c.LogLevel = other.LogLevel
	}
	if other.ConnectTimeout != 0 {
		c.ConnectTimeout = other.ConnectTimeout
	}
	if other.HeartBeat != 0 {
		c.HeartBeat = other.HeartBeat
	}
	if other.HistoryPath != "" {
		c.HistoryPath = other.HistoryPath
	}
	if other.InspectAddr != "" {
		c.InspectAddr = other.InspectAddr
	}
	if other.Loopback {
		c.Loopback = true
	}
	if other.JWTSecret != "" {
		c.JWTSecret = other.JWTSecret
	}
	if other.JWTIssuer != "" {
		c.JWTIssuer = other.JWTIssuer
	}
	if other.JWTAudience != "" {
		c.JWTAudience = other.JWTAudience
	}
	if other.JWTTTL != 0 {
		c.JWTTTL = other.JWTTTL
	}
}
