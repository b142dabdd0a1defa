// Package config holds the settings shared by the apron server and console.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/me/apron/internal/policy"
	"github.com/me/apron/internal/pool"
	"github.com/me/apron/internal/scheduler"
	"github.com/me/apron/pkg/model"
)

// Config holds configuration for an apron instance.
type Config struct {
	Addr      string `yaml:"addr"`       // Listen address (default ":8080")
	LogLevel  string `yaml:"log_level"`  // Log level: debug, info, warn, error
	LogFormat string `yaml:"log_format"` // Log format: text, json
	DBPath    string `yaml:"db_path"`    // Movement journal path (":memory:" keeps it in process)
	TraceFile string `yaml:"trace_file"` // Span output file; empty disables tracing

	FlightsPath  string        `yaml:"flights"`       // Flight source loaded at startup (optional)
	AutoDispatch time.Duration `yaml:"auto_dispatch"` // Dispatch poll interval; 0 disables the loop

	Runways []string `yaml:"runways"`
	Gates   []string `yaml:"gates"`

	RunwayOccupancy    time.Duration `yaml:"runway_occupancy"`
	GateOccupancy      time.Duration `yaml:"gate_occupancy"`
	OnSelectionFailure string        `yaml:"on_selection_failure"` // requeue or drop

	RunwayPolicy string `yaml:"runway_policy"` // JavaScript selector file (optional)
	GatePolicy   string `yaml:"gate_policy"`   // JavaScript selector file (optional)
}

// Default returns sensible defaults: three runways, three gates, 2s runway
// and 5s gate occupancy, failed picks requeued.
func Default() Config {
	return Config{
		Addr:               ":8080",
		LogLevel:           "info",
		LogFormat:          "text",
		DBPath:             ":memory:",
		Runways:            []string{"A1", "B2", "C3"},
		Gates:              []string{"G1", "G2", "G3"},
		RunwayOccupancy:    2 * time.Second,
		GateOccupancy:      5 * time.Second,
		OnSelectionFailure: string(scheduler.FailureRequeue),
	}
}

// Load reads a YAML file over the defaults. Keys absent from the file keep
// their default values. Relative policy and flight paths resolve against the
// file's directory.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	dir := filepath.Dir(path)
	for _, p := range []*string{&cfg.RunwayPolicy, &cfg.GatePolicy, &cfg.FlightsPath} {
		if *p != "" && !filepath.IsAbs(*p) {
			*p = filepath.Join(dir, *p)
		}
	}
	return cfg, cfg.Validate()
}

// Validate checks the values Load and flag parsing cannot.
func (c Config) Validate() error {
	var errs []error
	if len(c.Runways) == 0 {
		errs = append(errs, errors.New("at least one runway is required"))
	}
	if len(c.Gates) == 0 {
		errs = append(errs, errors.New("at least one gate is required"))
	}
	if c.RunwayOccupancy <= 0 {
		errs = append(errs, fmt.Errorf("runway_occupancy must be positive, got %s", c.RunwayOccupancy))
	}
	if c.GateOccupancy <= 0 {
		errs = append(errs, fmt.Errorf("gate_occupancy must be positive, got %s", c.GateOccupancy))
	}
	if c.AutoDispatch < 0 {
		errs = append(errs, fmt.Errorf("auto_dispatch must not be negative, got %s", c.AutoDispatch))
	}
	if _, err := scheduler.ParseFailurePolicy(c.OnSelectionFailure); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Pools builds the runway and gate pools.
func (c Config) Pools() (runways, gates *pool.Pool, err error) {
	runways, err = pool.New(model.ResourceRunway, c.Runways)
	if err != nil {
		return nil, nil, err
	}
	gates, err = pool.New(model.ResourceGate, c.Gates)
	if err != nil {
		return nil, nil, err
	}
	return runways, gates, nil
}

// Scheduler builds the scheduler configuration, compiling any policy scripts.
func (c Config) Scheduler() (scheduler.Config, error) {
	onFail, err := scheduler.ParseFailurePolicy(c.OnSelectionFailure)
	if err != nil {
		return scheduler.Config{}, err
	}
	cfg := scheduler.DefaultConfig()
	cfg.RunwayOccupancy = c.RunwayOccupancy
	cfg.GateOccupancy = c.GateOccupancy
	cfg.OnSelectionFailure = onFail

	if cfg.RunwaySelector, err = loadSelector(c.RunwayPolicy); err != nil {
		return scheduler.Config{}, err
	}
	if cfg.GateSelector, err = loadSelector(c.GatePolicy); err != nil {
		return scheduler.Config{}, err
	}
	return cfg, nil
}

func loadSelector(path string) (policy.Selector, error) {
	if path == "" {
		return policy.FirstAvailable{}, nil
	}
	body, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read policy: %w", err)
	}
	return policy.NewScript(filepath.Base(path), string(body))
}
