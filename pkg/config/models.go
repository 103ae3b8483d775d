package config

import "time"

type Config struct {
	Server    ServerConfig
	Transport TransportConfig
	Logging   LoggingConfig
}

type ServerConfig struct {
	Address         string
	Auth            AuthConfig
	ConnectionLimit ConnectionLimitConfig `mapstructure:"connectionLimit"`
}

type AuthConfig struct {
	JWTSecret string `mapstructure:"jwtSecret"`
}

type ConnectionLimitConfig struct {
	// Max is the process-wide cap on simultaneous connections. Zero or
	// negative disables the limit.
	Max int `mapstructure:"max"`
}

type TransportConfig struct {
	ReadTimeout time.Duration `mapstructure:"readTimeout"`
	SendBuffer  int           `mapstructure:"sendBuffer"`
}

type LoggingConfig struct {
	Level string `mapstructure:"level"`
}
