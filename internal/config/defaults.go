package config

import "time"

// Default values for optional configuration fields.
const (
	DefaultListen         = ":8080"
	DefaultSendBufferSize = 64
	DefaultWriteTimeout   = 10 * time.Second
	DefaultPongWait       = 60 * time.Second
	DefaultMaxFrameBytes  = 1 << 20 // video frames are much larger than chat envelopes

	DefaultDialTimeout    = 10 * time.Second
	DefaultReconnectDelay = 3 * time.Second
	DefaultMaxAttempts    = 5
	DefaultPendingOrders  = 256

	DefaultLogLevel = "info"
)

func (c *Config) applyDefaults() {
	// Server defaults
	if c.Server.Listen == "" {
		c.Server.Listen = DefaultListen
	}
	if c.Server.SendBufferSize == 0 {
		c.Server.SendBufferSize = DefaultSendBufferSize
	}
	if c.Server.WriteTimeout == 0 {
		c.Server.WriteTimeout = DefaultWriteTimeout
	}
	if c.Server.PongWait == 0 {
		c.Server.PongWait = DefaultPongWait
	}
	if c.Server.MaxFrameBytes == 0 {
		c.Server.MaxFrameBytes = DefaultMaxFrameBytes
	}

	// Upstream defaults
	if c.Upstream.DialTimeout == 0 {
		c.Upstream.DialTimeout = DefaultDialTimeout
	}
	if c.Upstream.ReconnectDelay == 0 {
		c.Upstream.ReconnectDelay = DefaultReconnectDelay
	}
	if c.Upstream.MaxAttempts == 0 {
		c.Upstream.MaxAttempts = DefaultMaxAttempts
	}
	if c.Upstream.PendingOrders == 0 {
		c.Upstream.PendingOrders = DefaultPendingOrders
	}

	// Log defaults
	if c.Log.Level == "" {
		c.Log.Level = DefaultLogLevel
	}
}
