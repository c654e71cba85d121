// Package scenario replays scripted store interactions described in YAML.
//
// A scenario declares atoms and a list of steps that mount, unmount, write,
// and check them against a fresh store. The CLI uses it to exercise a store
// configuration end to end:
//
//	name: counter
//	atoms:
//	  - key: counter
//	    default: 0
//	steps:
//	  - {op: mount, atom: counter}
//	  - {op: add, atom: counter, value: 1}
//	  - {op: expect, atom: counter, value: 1}
//	  - {op: unmount, atom: counter}
//	  - {op: expect, atom: counter, absent: true}
package scenario

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/tailored-agentic-units/atomstore/config"
)

var (
	// ErrInvalidScenario wraps parse and validation failures.
	ErrInvalidScenario = errors.New("invalid scenario")

	// ErrUnknownAtom is returned when a step names an undeclared atom.
	ErrUnknownAtom = errors.New("unknown atom")

	// ErrExpectation is returned when an expect step does not hold.
	ErrExpectation = errors.New("expectation failed")
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Op names a step operation.
type Op string

const (
	OpMount     Op = "mount"
	OpUnmount   Op = "unmount"
	OpSet       Op = "set"
	OpAdd       Op = "add"
	OpToggle    Op = "toggle"
	OpReset     Op = "reset"
	OpWriteRoot Op = "write_root"
	OpExpect    Op = "expect"
)

// Step is a single scripted interaction. Atom is required for every op
// except write_root, whose Value must be a mapping.
//
// An expect step checks whichever of Value, Absent, and Observers are set.
type Step struct {
	Op        Op     `yaml:"op" validate:"required,oneof=mount unmount set add toggle reset write_root expect"`
	Atom      string `yaml:"atom,omitempty" validate:"required_unless=Op write_root"`
	Value     any    `yaml:"value,omitempty"`
	Absent    bool   `yaml:"absent,omitempty"`
	Observers *int   `yaml:"observers,omitempty" validate:"omitempty,gte=0"`
}

func (s Step) String() string {
	if s.Atom == "" {
		return string(s.Op)
	}
	return fmt.Sprintf("%s %s", s.Op, s.Atom)
}

// Scenario is a named script.
type Scenario struct {
	Name  string              `yaml:"name" validate:"required"`
	Atoms []config.AtomConfig `yaml:"atoms" validate:"dive"`
	Steps []Step              `yaml:"steps" validate:"required,min=1,dive"`
}

// Parse decodes and validates a YAML scenario.
func Parse(data []byte) (*Scenario, error) {
	var sc Scenario
	if err := yaml.Unmarshal(data, &sc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidScenario, err)
	}

	if err := validate.Struct(&sc); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s failed %q", fe.Namespace(), fe.Tag()))
			}
			return nil, fmt.Errorf("%w: %s", ErrInvalidScenario, strings.Join(msgs, "; "))
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidScenario, err)
	}

	return &sc, nil
}

// Load reads and parses a scenario file.
func Load(filename string) (*Scenario, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return Parse(data)
}
