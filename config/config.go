// Package config defines configuration for stores, the devtools server, and
// declared atoms.
//
// Every section follows the same convention: DefaultX returns sensible
// defaults and Merge applies the non-zero values of a loaded section on top.
// Booleans that default to true are stored as *bool with a Nil suffix and
// read through an accessor, so an explicit false survives a merge:
//
//	cfg, err := config.Load("atomstore.yaml")
//	if err != nil {
//	    return err
//	}
//	s, err := store.NewFromConfig(&cfg.Store)
//
// Configuration only exists during initialization and does not persist into
// runtime components.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// ErrInvalidConfig wraps validation failures returned by Validate.
var ErrInvalidConfig = errors.New("invalid config")

var validate = validator.New(validator.WithRequiredStructEnabled())

// Config is the top-level configuration file layout.
type Config struct {
	Store    StoreConfig    `json:"store" yaml:"store"`
	Devtools DevtoolsConfig `json:"devtools" yaml:"devtools"`
	Atoms    []AtomConfig   `json:"atoms,omitempty" yaml:"atoms,omitempty" validate:"dive"`
}

// DefaultConfig returns a Config with defaults for every section.
func DefaultConfig() Config {
	return Config{
		Store:    DefaultStoreConfig(),
		Devtools: DefaultDevtoolsConfig(),
	}
}

// Merge applies non-zero values from source into c.
func (c *Config) Merge(source *Config) {
	c.Store.Merge(&source.Store)
	c.Devtools.Merge(&source.Devtools)

	if len(source.Atoms) > 0 {
		c.Atoms = source.Atoms
	}
}

// Validate checks struct constraints and reports every violation in a
// single error wrapping ErrInvalidConfig.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s failed %q", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(msgs, "; "))
		}
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return nil
}

// Load reads a JSON or YAML file, chosen by extension (.yaml and .yml are
// YAML, anything else is JSON), merges it over DefaultConfig, and validates
// the result.
func Load(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var loaded Config
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &loaded)
	default:
		err = json.Unmarshal(data, &loaded)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg := DefaultConfig()
	cfg.Merge(&loaded)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}
