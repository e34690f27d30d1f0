// Package config provides configuration loading and management for swistrip.
// It handles loading configuration from YAML or TOML files and provides default values.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// Config represents the application configuration
type Config struct {
	// Refinement parameters
	Refine struct {
		// SeedErosion is the number of 6-connected erosions used to build the seed mask
		SeedErosion int `yaml:"seedErosion" toml:"seed_erosion"`

		// GradientThreshold is the intensity jump between neighbouring voxels that ends a column
		GradientThreshold float64 `yaml:"gradientThreshold" toml:"gradient_threshold"`

		// IntensityThreshold is the absolute intensity that ends a column
		IntensityThreshold float64 `yaml:"intensityThreshold" toml:"intensity_threshold"`

		// OpeningRadius is the radius of the opening element, 0 disables opening
		OpeningRadius int `yaml:"openingRadius" toml:"opening_radius"`

		// ClosingRadius is the radius of the closing element, 0 disables closing
		ClosingRadius int `yaml:"closingRadius" toml:"closing_radius"`

		// Connectivity is the structuring element rank (1=6, 2=18, 3=26 neighbours)
		Connectivity int `yaml:"connectivity" toml:"connectivity"`

		// Workers bounds the goroutines used by the column refiner
		Workers int `yaml:"workers" toml:"workers"`
	} `yaml:"refine" toml:"refine"`

	// Coarse stripper parameters
	Bet struct {
		// Path to the bet binary; empty means auto-detect
		Path string `yaml:"path" toml:"path"`

		// FractionalIntensity is passed as -f
		FractionalIntensity float64 `yaml:"fractionalIntensity" toml:"fractional_intensity"`

		// Robust adds -R (robust brain centre estimation)
		Robust bool `yaml:"robust" toml:"robust"`
	} `yaml:"bet" toml:"bet"`

	// Dataset traversal parameters
	Dataset struct {
		// SwiSuffix is appended to "{sub}_{ses}_" to find the raw SWI file
		SwiSuffix string `yaml:"swiSuffix" toml:"swi_suffix"`

		// Limit caps the number of subjects processed, 0 means all
		Limit int `yaml:"limit" toml:"limit"`

		// Jobs is the number of sessions processed concurrently
		Jobs int `yaml:"jobs" toml:"jobs"`
	} `yaml:"dataset" toml:"dataset"`

	// Output parameters
	Output struct {
		// QCDir receives JPEG quality-control slices when set
		QCDir string `yaml:"qcDir" toml:"qc_dir"`

		// SaveMesh writes the final mask surface as STL
		SaveMesh bool `yaml:"saveMesh" toml:"save_mesh"`

		// SaveReport writes a YAML report with per-stage statistics
		SaveReport bool `yaml:"saveReport" toml:"save_report"`

		// Verbose controls the level of logging output
		Verbose bool `yaml:"verbose" toml:"verbose"`
	} `yaml:"output" toml:"output"`

	// Logging parameters
	Logging struct {
		// File is a rotating log file; empty logs to stderr only
		File string `yaml:"file" toml:"file"`

		// MaxSizeMB is the size at which the log file is rotated
		MaxSizeMB int `yaml:"maxSizeMB" toml:"max_log_size"`

		// MaxAgeDays is how long rotated files are kept
		MaxAgeDays int `yaml:"maxAgeDays" toml:"max_log_age"`
	} `yaml:"logging" toml:"logging"`
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	cfg := &Config{}

	// Set default refinement parameters
	cfg.Refine.SeedErosion = 8
	cfg.Refine.GradientThreshold = 15
	cfg.Refine.IntensityThreshold = 145
	cfg.Refine.OpeningRadius = 2
	cfg.Refine.ClosingRadius = 3
	cfg.Refine.Connectivity = 1
	cfg.Refine.Workers = runtime.NumCPU()

	// Set default coarse stripper parameters
	cfg.Bet.FractionalIntensity = 0.3
	cfg.Bet.Robust = true

	// Set default dataset parameters
	cfg.Dataset.SwiSuffix = "swi.nii.gz"
	cfg.Dataset.Jobs = 1

	// Set default output parameters
	cfg.Output.SaveReport = true
	cfg.Output.Verbose = false

	// Set default logging parameters
	cfg.Logging.MaxSizeMB = 100
	cfg.Logging.MaxAgeDays = 28

	return cfg
}

// Validate checks the configuration for values the pipeline cannot run with
func (c *Config) Validate() error {
	var errs []error

	if c.Refine.SeedErosion < 0 {
		errs = append(errs, fmt.Errorf("refine.seedErosion must be >= 0, got %d", c.Refine.SeedErosion))
	}
	if c.Refine.OpeningRadius < 0 {
		errs = append(errs, fmt.Errorf("refine.openingRadius must be >= 0, got %d", c.Refine.OpeningRadius))
	}
	if c.Refine.ClosingRadius < 0 {
		errs = append(errs, fmt.Errorf("refine.closingRadius must be >= 0, got %d", c.Refine.ClosingRadius))
	}
	if c.Refine.Connectivity < 1 || c.Refine.Connectivity > 3 {
		errs = append(errs, fmt.Errorf("refine.connectivity must be 1, 2 or 3, got %d", c.Refine.Connectivity))
	}
	if c.Bet.FractionalIntensity <= 0 || c.Bet.FractionalIntensity >= 1 {
		errs = append(errs, fmt.Errorf("bet.fractionalIntensity must be in (0, 1), got %g", c.Bet.FractionalIntensity))
	}
	if c.Dataset.Limit < 0 {
		errs = append(errs, fmt.Errorf("dataset.limit must be >= 0, got %d", c.Dataset.Limit))
	}
	if c.Dataset.SwiSuffix == "" {
		errs = append(errs, errors.New("dataset.swiSuffix must not be empty"))
	}

	return errors.Join(errs...)
}

// isTOML reports whether the path should be handled as TOML
func isTOML(configPath string) bool {
	return strings.EqualFold(filepath.Ext(configPath), ".toml")
}

// LoadConfig loads configuration from a YAML or TOML file
// If the file doesn't exist, it returns the default configuration
func LoadConfig(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	// Check if config file exists
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return cfg, nil
	}

	// Read config file
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	// Parse on top of the defaults so that omitted keys keep their values
	if isTOML(configPath) {
		if _, err := toml.Decode(string(data), cfg); err != nil {
			return nil, fmt.Errorf("error parsing config file: %w", err)
		}
	} else {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("error parsing config file: %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config file %s: %w", configPath, err)
	}

	return cfg, nil
}

// SaveConfig saves the configuration to a YAML or TOML file
func SaveConfig(cfg *Config, configPath string) error {
	// Create directory if it doesn't exist
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("error creating config directory: %w", err)
	}

	var data []byte
	if isTOML(configPath) {
		var buf bytes.Buffer
		if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
			return fmt.Errorf("error marshaling config: %w", err)
		}
		data = buf.Bytes()
	} else {
		var err error
		data, err = yaml.Marshal(cfg)
		if err != nil {
			return fmt.Errorf("error marshaling config: %w", err)
		}
	}

	// Write to file
	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("error writing config file: %w", err)
	}

	return nil
}

// CreateDefaultConfigFile creates a default configuration file at the specified path
func CreateDefaultConfigFile(configPath string) error {
	cfg := DefaultConfig()
	return SaveConfig(cfg, configPath)
}
