package sim

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

// LocalMoveMode states who applies the local Metropolis rule.
type LocalMoveMode string

const (
	// LocalMovesProposal: the stepper returns a raw proposal and the engine
	// accepts or rejects it with AcceptanceRule.LocalAcceptance. Default.
	LocalMovesProposal LocalMoveMode = "proposal"
	// LocalMovesAccepted: the stepper already applied its own acceptance test
	// and the engine stores whatever it returns.
	LocalMovesAccepted LocalMoveMode = "accepted"
)

// Config groups ladder, distribution and execution parameters for an Engine.
// Zero values select the defaults documented per field.
type Config struct {
	TMin         float64       `yaml:"t_min"`
	TMax         float64       `yaml:"t_max"`
	Replicas     int           `yaml:"replicas"`                                                 // ladder size when Temperatures is empty
	Temperatures []float64     `yaml:"temperatures,omitempty"`                                   // explicit ladder; overrides TMin/TMax/Replicas
	Spacing      Spacing       `yaml:"spacing" validate:"omitempty,oneof=geometric linear"`      // default geometric
	Distribution Distribution  `yaml:"distribution" validate:"omitempty,oneof=boltzmann tsallis"` // default boltzmann
	Q            *float64      `yaml:"q,omitempty"`                                              // required for tsallis
	KB           float64       `yaml:"k_b" validate:"gte=0"`                                     // Boltzmann constant, 0 = 1
	LocalMoves   LocalMoveMode `yaml:"local_moves" validate:"omitempty,oneof=proposal accepted"` // default proposal
	Workers      int           `yaml:"workers" validate:"gte=0"`                                 // local-phase goroutines, 0/1 = sequential
	Seed         int64         `yaml:"seed"`

	// HistoryLimit bounds recorded energies/states per slot (rolling window); 0 keeps everything.
	HistoryLimit int `yaml:"history_limit" validate:"gte=0"`
	// TrajectoryReplicas lists slots whose states are recorded. nil records slot 0;
	// an empty non-nil slice records none.
	TrajectoryReplicas []int `yaml:"trajectory_replicas,omitempty" validate:"omitempty,dive,gte=0"`
}

var configValidate = validator.New()

// Validate checks field ranges and names. Ladder geometry and q are checked by
// Ladder and Rule, which every constructor calls.
func (c *Config) Validate() error {
	if err := configValidate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return configErrorf(yamlName(fe.StructField()), "failed %q check (param %q), got %v", fe.Tag(), fe.Param(), fe.Value())
		}
		return &ConfigError{Reason: err.Error()}
	}
	if c.Distribution == DistributionTsallis && c.Q == nil {
		return configErrorf("q", "required when distribution is tsallis")
	}
	return nil
}

// Ladder builds the configured temperature ladder.
func (c *Config) Ladder() (Ladder, error) {
	if len(c.Temperatures) > 0 {
		return LadderFromTemperatures(c.Temperatures, c.kB())
	}
	return GenerateLadder(c.TMin, c.TMax, c.Replicas, c.Spacing, c.kB())
}

// Rule builds the configured acceptance rule.
func (c *Config) Rule() (AcceptanceRule, error) {
	q := 0.0
	if c.Q != nil {
		q = *c.Q
	} else if c.Distribution == DistributionTsallis {
		return nil, configErrorf("q", "required when distribution is tsallis")
	}
	return NewAcceptanceRule(c.Distribution, q)
}

func (c *Config) kB() float64 {
	if c.KB == 0 {
		return 1
	}
	return c.KB
}

func (c *Config) localMoves() LocalMoveMode {
	if c.LocalMoves == "" {
		return LocalMovesProposal
	}
	return c.LocalMoves
}

func (c *Config) trajectorySlots(m int) ([]int, error) {
	if c.TrajectoryReplicas == nil {
		return []int{0}, nil
	}
	for _, idx := range c.TrajectoryReplicas {
		if idx >= m {
			return nil, configErrorf("trajectory_replicas", "slot %d out of range for %d replicas", idx, m)
		}
	}
	return c.TrajectoryReplicas, nil
}

var yamlNames = map[string]string{
	"Spacing":            "spacing",
	"Distribution":       "distribution",
	"KB":                 "k_b",
	"LocalMoves":         "local_moves",
	"Workers":            "workers",
	"HistoryLimit":       "history_limit",
	"TrajectoryReplicas": "trajectory_replicas",
}

func yamlName(field string) string {
	if i := strings.IndexByte(field, '['); i >= 0 {
		field = field[:i] // dive errors name the element, e.g. TrajectoryReplicas[0]
	}
	if name, ok := yamlNames[field]; ok {
		return name
	}
	return strings.ToLower(field)
}

func (c Config) String() string {
	return fmt.Sprintf("replicas=%d t=[%v,%v] spacing=%s distribution=%s local_moves=%s workers=%d seed=%d",
		c.Replicas, c.TMin, c.TMax, c.Spacing, c.Distribution, c.localMoves(), c.Workers, c.Seed)
}
