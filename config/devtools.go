package config

// DevtoolsConfig configures the devtools recorder and its HTTP server.
type DevtoolsConfig struct {
	// Addr is the listen address of the devtools HTTP server.
	Addr string `json:"addr" yaml:"addr" validate:"required,hostname_port"`

	// LogSize bounds the number of action entries kept (default: 50).
	LogSize int `json:"log_size" yaml:"log_size" validate:"gte=1"`

	// StreamBuffer is the per-connection queue length of the live feed.
	// Entries are dropped for a connection whose queue is full.
	StreamBuffer int `json:"stream_buffer" yaml:"stream_buffer" validate:"gte=1"`
}

// DefaultDevtoolsConfig returns defaults for local development.
func DefaultDevtoolsConfig() DevtoolsConfig {
	return DevtoolsConfig{
		Addr:         "127.0.0.1:7777",
		LogSize:      50,
		StreamBuffer: 64,
	}
}

func (c *DevtoolsConfig) Merge(source *DevtoolsConfig) {
	if source.Addr != "" {
		c.Addr = source.Addr
	}

	if source.LogSize > 0 {
		c.LogSize = source.LogSize
	}

	if source.StreamBuffer > 0 {
		c.StreamBuffer = source.StreamBuffer
	}
}
