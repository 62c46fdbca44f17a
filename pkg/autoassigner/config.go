package autoassigner

import (
	"fmt"
	"os"
	"strconv"

	"github.com/travigo/assigner/pkg/util"
	"gopkg.in/yaml.v3"
)

// Config controls the auto assigner. It is replaced as a whole on reload.
type Config struct {
	// Enabled turns on auto assignment of vehicles to available blocks
	Enabled bool `yaml:"enabled"`

	// IgnoreIncomingAssignments is for testing auto assignment. When set the assignments given in the
	// AVL feed are ignored so vehicles have to be auto assigned instead. Read by callers, not the engine.
	IgnoreIncomingAssignments bool `yaml:"ignoreIncomingAssignments"`

	// MinDisplacementMeters is how far away the previous AVL report used for matching has to be from
	// the current one, so that stationary out of service vehicles are not matched
	MinDisplacementMeters float64 `yaml:"minDisplacementMeters"`

	// How early or late in seconds a vehicle can be and still be auto assigned to a block
	AllowableEarlySeconds int `yaml:"allowableEarlySeconds"`
	AllowableLateSeconds  int `yaml:"allowableLateSeconds"`

	// StaleAssignmentSeconds is how long a bound vehicle can go without reporting before its block is
	// released. Zero keeps bindings until the block ends. Read by callers, not the engine.
	StaleAssignmentSeconds int `yaml:"staleAssignmentSeconds"`
}

var DefaultConfig = Config{
	Enabled:                   false,
	IgnoreIncomingAssignments: false,
	MinDisplacementMeters:     100.0,
	AllowableEarlySeconds:     3 * 60,
	AllowableLateSeconds:      5 * 60,
	StaleAssignmentSeconds:    15 * 60,
}

type configFile struct {
	AutoAssigner struct {
		Enabled                   *bool    `yaml:"enabled"`
		IgnoreIncomingAssignments *bool    `yaml:"ignoreIncomingAssignments"`
		MinDisplacementMeters     *float64 `yaml:"minDisplacementMeters"`
		AllowableEarlySeconds     *int     `yaml:"allowableEarlySeconds"`
		AllowableLateSeconds      *int     `yaml:"allowableLateSeconds"`
		StaleAssignmentSeconds    *int     `yaml:"staleAssignmentSeconds"`
	} `yaml:"autoAssigner"`
}

func (f *configFile) apply(config *Config) {
	if f.AutoAssigner.Enabled != nil {
		config.Enabled = *f.AutoAssigner.Enabled
	}
	if f.AutoAssigner.IgnoreIncomingAssignments != nil {
		config.IgnoreIncomingAssignments = *f.AutoAssigner.IgnoreIncomingAssignments
	}
	if f.AutoAssigner.MinDisplacementMeters != nil {
		config.MinDisplacementMeters = *f.AutoAssigner.MinDisplacementMeters
	}
	if f.AutoAssigner.AllowableEarlySeconds != nil {
		config.AllowableEarlySeconds = *f.AutoAssigner.AllowableEarlySeconds
	}
	if f.AutoAssigner.AllowableLateSeconds != nil {
		config.AllowableLateSeconds = *f.AutoAssigner.AllowableLateSeconds
	}
	if f.AutoAssigner.StaleAssignmentSeconds != nil {
		config.StaleAssignmentSeconds = *f.AutoAssigner.StaleAssignmentSeconds
	}
}

// LoadConfig builds the configuration from the defaults, then the optional YAML file at path,
// then environment variable overrides
func LoadConfig(path string) (Config, error) {
	config := DefaultConfig

	if path != "" {
		content, err := os.ReadFile(path)
		if err != nil {
			return config, err
		}

		var file configFile
		if err := yaml.Unmarshal(content, &file); err != nil {
			return config, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
		file.apply(&config)
	}

	env := util.GetEnvironmentVariables()

	if val := env["ASSIGNER_AUTOASSIGNER_ENABLED"]; val != "" {
		if parsed, err := strconv.ParseBool(val); err == nil {
			config.Enabled = parsed
		}
	}

	if val := env["ASSIGNER_AUTOASSIGNER_IGNORE_INCOMING_ASSIGNMENTS"]; val != "" {
		if parsed, err := strconv.ParseBool(val); err == nil {
			config.IgnoreIncomingAssignments = parsed
		}
	}

	if val := env["ASSIGNER_AUTOASSIGNER_MIN_DISPLACEMENT_METERS"]; val != "" {
		if parsed, err := strconv.ParseFloat(val, 64); err == nil {
			config.MinDisplacementMeters = parsed
		}
	}

	if val := env["ASSIGNER_AUTOASSIGNER_ALLOWABLE_EARLY_SECONDS"]; val != "" {
		if parsed, err := strconv.Atoi(val); err == nil {
			config.AllowableEarlySeconds = parsed
		}
	}

	if val := env["ASSIGNER_AUTOASSIGNER_ALLOWABLE_LATE_SECONDS"]; val != "" {
		if parsed, err := strconv.Atoi(val); err == nil {
			config.AllowableLateSeconds = parsed
		}
	}

	if val := env["ASSIGNER_AUTOASSIGNER_STALE_ASSIGNMENT_SECONDS"]; val != "" {
		if parsed, err := strconv.Atoi(val); err == nil {
			config.StaleAssignmentSeconds = parsed
		}
	}

	return config, nil
}
