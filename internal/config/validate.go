package config

import (
	"errors"
	"fmt"
)

// Validate checks that all required fields are set and values are valid.
func (c *Config) Validate() error {
	if c.Server.Listen == "" {
		return errors.New("server.listen is required")
	}
	if c.Server.SendBufferSize < 1 {
		return errors.New("server.send_buffer_size must be >= 1")
	}
	if c.Server.MaxFrameBytes < 1 {
		return errors.New("server.max_frame_bytes must be >= 1")
	}
	if c.Server.WriteTimeout <= 0 {
		return errors.New("server.write_timeout must be positive")
	}
	if c.Server.PongWait <= 0 {
		return errors.New("server.pong_wait must be positive")
	}

	if c.Upstream.Enabled {
		if c.Upstream.URL == "" {
			return errors.New("upstream.url is required when upstream.enabled is true")
		}
		if c.Upstream.MaxAttempts < 1 {
			return errors.New("upstream.max_attempts must be >= 1")
		}
		if c.Upstream.ReconnectDelay <= 0 {
			return errors.New("upstream.reconnect_delay must be positive")
		}
		if c.Upstream.PendingOrders < 1 {
			return errors.New("upstream.pending_orders must be >= 1")
		}
	}

	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level must be one of debug, info, warn, error; got %q", c.Log.Level)
	}

	return nil
}
