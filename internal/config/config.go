package config

import "time"

// Config is the root configuration for a relayhub instance.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Upstream UpstreamConfig `yaml:"upstream"`
	Log      LogConfig      `yaml:"log"`
}

// ServerConfig holds the downstream listener settings.
type ServerConfig struct {
	Listen string `yaml:"listen"`

	// SendBufferSize is the per-connection outbound queue depth. A full
	// queue makes the connection count as a slow consumer.
	SendBufferSize int `yaml:"send_buffer_size"`

	WriteTimeout time.Duration `yaml:"write_timeout"`
	PongWait     time.Duration `yaml:"pong_wait"`

	// MaxFrameBytes bounds a single inbound frame. Sized for video frames,
	// which are much larger than chat or order envelopes.
	MaxFrameBytes int64 `yaml:"max_frame_bytes"`
}

// UpstreamConfig holds the bridge settings for the simulation backend link.
type UpstreamConfig struct {
	Enabled bool   `yaml:"enabled"`
	URL     string `yaml:"url"`

	DialTimeout    time.Duration `yaml:"dial_timeout"`
	ReconnectDelay time.Duration `yaml:"reconnect_delay"`
	MaxAttempts    int           `yaml:"max_attempts"`

	// PendingOrders caps the in-flight order tracking cache.
	PendingOrders int `yaml:"pending_orders"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error
}
