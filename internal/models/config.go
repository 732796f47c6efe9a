package models

// Config holds the application configuration
type Config struct {
	Broker   BrokerConfig   `json:"broker"`
	User     UserConfig     `json:"user"`
	Presence PresenceConfig `json:"presence"`
	Database DatabaseConfig `json:"database"`
	Server   ServerConfig   `json:"server"`
	Retry    RetryConfig    `json:"retry"`
	Tracing  TracingConfig  `json:"tracing"`
	LogLevel string         `json:"log_level"`
}

// BrokerConfig holds the STOMP broker connection settings.
type BrokerConfig struct {
	URL            string `json:"url"`
	Login          string `json:"login"`
	Passcode       string `json:"passcode"`
	HeartbeatSec   int    `json:"heartbeatSec"`
	DialTimeoutSec int    `json:"dialTimeoutSec"`
	AutoReconnect  bool   `json:"autoReconnect"`
}

// UserConfig identifies the local user the session is opened for.
type UserConfig struct {
	ID string `json:"id"`
}

// PresenceConfig tunes the typing indicator timing. Both windows default to
// a single shared constant so the debounce and the peer expiry stay aligned.
type PresenceConfig struct {
	TypingDebounceMs int `json:"typingDebounceMs"`
	TypingExpiryMs   int `json:"typingExpiryMs"`
}

// DatabaseConfig holds local persistence settings.
type DatabaseConfig struct {
	Path string `json:"path"`
}

// ServerConfig holds the HTTP surface settings.
type ServerConfig struct {
	Port int `json:"port"`
}

// RetryConfig tunes the reconnect backoff policy.
type RetryConfig struct {
	InitialBackoffMs int `json:"initialBackoffMs"`
	MaxBackoffMs     int `json:"maxBackoffMs"`
	MaxAttempts      int `json:"maxAttempts"`
}

// TracingConfig holds OpenTelemetry settings.
type TracingConfig struct {
	Enabled        bool    `json:"enabled"`
	ServiceName    string  `json:"serviceName"`
	ServiceVersion string  `json:"serviceVersion"`
	Environment    string  `json:"environment"`
	OTLPEndpoint   string  `json:"otlpEndpoint"`
	SampleRate     float64 `json:"sampleRate"`
	UseStdout      bool    `json:"useStdout"`
}

// ConfigError describes an invalid or incomplete configuration.
type ConfigError struct {
	Message string
}

func (e ConfigError) Error() string {
	return e.Message
}
