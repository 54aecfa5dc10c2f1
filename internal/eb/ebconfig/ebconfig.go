// Copyright 2026 Peter Edge
//
// All rights reserved.

// Package ebconfig provides configuration parsing and validation for eb.
//
// Configuration comes from an optional YAML file and from command-line flags.
// Both are read as raw string Values first, merged with flags taking
// precedence, and then validated into an ebretry.Config.
package ebconfig

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/bufdev/eb/internal/eb/ebretry"
	"github.com/bufdev/eb/internal/pkg/backoff"
	"github.com/bufdev/eb/internal/pkg/slottime"
	"github.com/bufdev/eb/internal/standard/xos"
	"gopkg.in/yaml.v3"
)

// ConfigEnvVar is the environment variable naming the config file when --config is not set.
const ConfigEnvVar = "EB_CONFIG"

// ErrNoCommandGiven is returned when there is no command to run.
var ErrNoCommandGiven = errors.New("no command given")

// InvalidValueError is returned when a configuration value cannot be used.
type InvalidValueError struct {
	// Name is the name of the value, e.g. "max".
	Name string
	// Value is the raw value.
	Value string
	// Err is the underlying error.
	Err error
}

// Error implements error.
func (e *InvalidValueError) Error() string {
	return fmt.Sprintf("invalid value %q for %s: %v", e.Value, e.Name, e.Err)
}

// Unwrap returns the underlying error.
func (e *InvalidValueError) Unwrap() error {
	return e.Err
}

// Values holds the raw, unvalidated configuration values.
//
// The empty string means the value is not set.
type Values struct {
	// Max is the maximum number of attempts.
	Max string
	// SlotTime is the user-specified slot time as a Go duration string.
	SlotTime string
	// Ceiling is the backoff exponent ceiling.
	Ceiling string
	// Jitter is the jitter distribution name.
	Jitter string
	// Seed is the jitter rng seed.
	Seed string
}

// ExternalConfig is the YAML-serializable configuration file structure.
type ExternalConfig struct {
	// Version is the configuration file version (must be "v1").
	Version string `yaml:"version"`
	// Max is the maximum number of attempts.
	Max string `yaml:"max"`
	// SlotTime is the slot time, e.g. "500ms".
	SlotTime string `yaml:"slot_time"`
	// Ceiling is the backoff exponent ceiling.
	Ceiling string `yaml:"ceiling"`
	// Jitter is the jitter distribution name.
	Jitter string `yaml:"jitter"`
	// Seed is the jitter rng seed.
	Seed string `yaml:"seed"`
}

// Merge returns base with every value that is set in override replaced.
func Merge(base Values, override Values) Values {
	return Values{
		Max:      firstSet(override.Max, base.Max),
		SlotTime: firstSet(override.SlotTime, base.SlotTime),
		Ceiling:  firstSet(override.Ceiling, base.Ceiling),
		Jitter:   firstSet(override.Jitter, base.Jitter),
		Seed:     firstSet(override.Seed, base.Seed),
	}
}

// NewConfig validates Values and returns an ebretry.Config.
//
// Unset values take their defaults: unbounded attempts, an automatically
// estimated slot time, backoff.DefaultCeiling, uniform jitter, and a random seed.
func NewConfig(values Values) (ebretry.Config, error) {
	config := ebretry.NewConfig()
	if values.Max != "" {
		maxAttempts, err := strconv.ParseUint(strings.TrimSpace(values.Max), 10, 32)
		if err != nil {
			return ebretry.Config{}, newInvalidValueError("max", values.Max, err)
		}
		config.MaxAttempts = pointer(uint32(maxAttempts))
	}
	if values.SlotTime != "" {
		slotTime, err := time.ParseDuration(strings.TrimSpace(values.SlotTime))
		if err != nil {
			return ebretry.Config{}, newInvalidValueError("slot_time", values.SlotTime, err)
		}
		if slotTime < 0 {
			return ebretry.Config{}, newInvalidValueError("slot_time", values.SlotTime, errors.New("must not be negative"))
		}
		config.SlotTime = slottime.UserSpecified(slotTime)
	}
	if values.Ceiling != "" {
		ceiling, err := strconv.ParseUint(strings.TrimSpace(values.Ceiling), 10, 32)
		if err != nil {
			return ebretry.Config{}, newInvalidValueError("ceiling", values.Ceiling, err)
		}
		if ceiling > uint64(backoff.MaxCeiling) {
			return ebretry.Config{}, newInvalidValueError("ceiling", values.Ceiling, fmt.Errorf("must be at most %d", backoff.MaxCeiling))
		}
		config.Ceiling = uint32(ceiling)
	}
	if values.Jitter != "" {
		distribution, err := backoff.ParseDistribution(strings.TrimSpace(values.Jitter))
		if err != nil {
			return ebretry.Config{}, newInvalidValueError("jitter", values.Jitter, err)
		}
		config.Distribution = distribution
	}
	if values.Seed != "" {
		seed, err := strconv.ParseUint(strings.TrimSpace(values.Seed), 10, 64)
		if err != nil {
			return ebretry.Config{}, newInvalidValueError("seed", values.Seed, err)
		}
		config.Seed = pointer(seed)
	}
	return config, nil
}

// NewValues validates an ExternalConfig and returns its Values.
func NewValues(externalConfig ExternalConfig) (Values, error) {
	if externalConfig.Version != "v1" {
		return Values{}, fmt.Errorf("unsupported config version %q, must be v1", externalConfig.Version)
	}
	return Values{
		Max:      externalConfig.Max,
		SlotTime: externalConfig.SlotTime,
		Ceiling:  externalConfig.Ceiling,
		Jitter:   externalConfig.Jitter,
		Seed:     externalConfig.Seed,
	}, nil
}

// ReadValues reads the configuration file at filePath and returns its Values.
//
// A leading ~ in filePath is expanded to the home directory. Any failure is
// returned as an *InvalidValueError for "config".
func ReadValues(filePath string) (Values, error) {
	expandedFilePath, err := xos.ExpandHome(filePath)
	if err != nil {
		return Values{}, newInvalidValueError("config", filePath, err)
	}
	data, err := os.ReadFile(expandedFilePath)
	if err != nil {
		return Values{}, newInvalidValueError("config", filePath, err)
	}
	var externalConfig ExternalConfig
	if err := unmarshalYAMLStrict(data, &externalConfig); err != nil {
		return Values{}, newInvalidValueError("config", filePath, err)
	}
	values, err := NewValues(externalConfig)
	if err != nil {
		return Values{}, newInvalidValueError("config", filePath, err)
	}
	return values, nil
}

// SplitCommand splits positional arguments into the command name and its arguments.
//
// Returns ErrNoCommandGiven if args is empty.
func SplitCommand(args []string) (string, []string, error) {
	if len(args) == 0 || args[0] == "" {
		return "", nil, ErrNoCommandGiven
	}
	return args[0], args[1:], nil
}

// *** PRIVATE ***

func newInvalidValueError(name string, value string, err error) error {
	// Keep just the reason from strconv errors; the value is already in the message.
	var numErr *strconv.NumError
	if errors.As(err, &numErr) {
		err = numErr.Err
	}
	return &InvalidValueError{Name: name, Value: value, Err: err}
}

func firstSet(values ...string) string {
	for _, value := range values {
		if value != "" {
			return value
		}
	}
	return ""
}

func pointer[T any](value T) *T {
	return &value
}

// unmarshalYAMLStrict unmarshals the data as YAML with strict field checking.
// If the data length is 0, this is a no-op.
func unmarshalYAMLStrict(data []byte, v any) error {
	if len(data) == 0 {
		return nil
	}
	yamlDecoder := yaml.NewDecoder(bytes.NewReader(data))
	// Reject unknown fields.
	yamlDecoder.KnownFields(true)
	if err := yamlDecoder.Decode(v); err != nil {
		return fmt.Errorf("could not unmarshal as YAML: %w", err)
	}
	return nil
}
