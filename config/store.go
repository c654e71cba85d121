package config

// StoreConfig configures a root store.
//
// Example YAML:
//
//	store:
//	  name: app
//	  observer: slog
//	  production: true
type StoreConfig struct {
	// Name becomes the store id reported in events. Empty means a generated
	// UUIDv7.
	Name string `json:"name,omitempty" yaml:"name,omitempty"`

	// Observer names a registered observer ("noop", "slog", "zap").
	Observer string `json:"observer" yaml:"observer" validate:"required"`

	// Production suppresses development-only warnings and drops the
	// "/@atomDuplicate" marker from remapped keys.
	Production bool `json:"production,omitempty" yaml:"production,omitempty"`
}

// DefaultStoreConfig returns a development store that logs through slog.
func DefaultStoreConfig() StoreConfig {
	return StoreConfig{
		Observer: "slog",
	}
}

func (c *StoreConfig) Merge(source *StoreConfig) {
	if source.Name != "" {
		c.Name = source.Name
	}

	if source.Observer != "" {
		c.Observer = source.Observer
	}

	if source.Production {
		c.Production = true
	}
}
