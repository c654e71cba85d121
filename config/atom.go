package config

// AtomConfig declares an atom whose default state comes from configuration.
type AtomConfig struct {
	Key     string `json:"key" yaml:"key" validate:"required"`
	Default any    `json:"default,omitempty" yaml:"default,omitempty"`

	// ResetOnInactiveNil controls whether the slice is dropped once its last
	// observer unmounts. Use ResetOnInactive() to access. When nil, defaults
	// to true.
	ResetOnInactiveNil *bool `json:"reset_on_inactive,omitempty" yaml:"reset_on_inactive,omitempty"`
}

func (c *AtomConfig) ResetOnInactive() bool {
	if c.ResetOnInactiveNil == nil {
		return true
	}
	return *c.ResetOnInactiveNil
}
