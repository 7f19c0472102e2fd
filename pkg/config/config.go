// Package config provides configuration loading, validation, and management
// for the metronome supervisor.
//
// A single global Config instance is maintained in memory, protected by a
// mutex. GetConfig returns the config BY VALUE (copy, not reference) to
// prevent external mutation; reloads go through LoadConfig or ReloadConfig.
// Missing files are created with defaults, unparseable files are rejected to
// avoid overwriting user changes.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"metronome/pkg/idle"
	"metronome/pkg/logx"
)

// Default values applied when the config file leaves fields unset.
const (
	DefaultConfigPath    = "metronome.yaml"
	DefaultMetricsAddr   = ":9099"
	DefaultPrometheusURL = "http://localhost:9090"
	DefaultDBPath        = "metronome.db"
	DefaultJournalDir    = "journal"
	DefaultRunnerCount   = 1
	DefaultPulseRole     = "pulse"
	DefaultInterval      = 250 * time.Millisecond
	DefaultMaxAttempts   = 10
)

// Restart action names accepted in the restart section.
const (
	ActionNameRestart  = "restart"
	ActionNameShutdown = "shutdown"
	ActionNameIgnore   = "ignore"
)

// Global config instance with mutex protection.
//
//nolint:gochecknoglobals // Intentional singleton pattern for config management
var (
	config     *Config
	configPath string // Immutable after LoadConfig - set once at startup
	logger     *logx.Logger
	mu         sync.RWMutex
)

// getLogger returns the config logger, initializing it if needed.
func getLogger() *logx.Logger {
	if logger == nil {
		logger = logx.NewLogger("config")
	}
	return logger
}

// Duration wraps time.Duration so YAML configs can use strings like "250ms".
// Plain integers are interpreted as nanoseconds.
type Duration time.Duration

// UnmarshalYAML parses a duration from a string or integer YAML node.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err == nil {
		parsed, perr := time.ParseDuration(raw)
		if perr != nil {
			return fmt.Errorf("invalid duration %q: %w", raw, perr)
		}
		*d = Duration(parsed)
		return nil
	}

	var ns int64
	if err := value.Decode(&ns); err == nil {
		*d = Duration(ns)
		return nil
	}

	return fmt.Errorf("invalid duration value %q", value.Value)
}

// MarshalYAML renders the duration in its string form.
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// Config is the root configuration document.
type Config struct {
	Idle    IdleConfig     `yaml:"idle"`
	Runners []RunnerConfig `yaml:"runners"`
	Restart RestartConfig  `yaml:"restart"`
	Metrics MetricsConfig  `yaml:"metrics"`
	Storage StorageConfig  `yaml:"storage"`
	Log     LogConfig      `yaml:"log"`
}

// IdleConfig selects and tunes the waiting strategy runners use between
// empty duty cycles. Zero fields fall back to the strategy defaults.
type IdleConfig struct {
	Strategy    string   `yaml:"strategy"`
	MaxSpins    int64    `yaml:"max_spins"`
	MaxYields   int64    `yaml:"max_yields"`
	MinPark     Duration `yaml:"min_park"`
	MaxPark     Duration `yaml:"max_park"`
	SleepPeriod Duration `yaml:"sleep_period"`
}

// ToStrategyConfig converts the YAML form into the idle package's config.
func (ic IdleConfig) ToStrategyConfig() idle.Config {
	return idle.Config{
		Strategy:    ic.Strategy,
		MaxSpins:    ic.MaxSpins,
		MaxYields:   ic.MaxYields,
		MinPark:     ic.MinPark.Std(),
		MaxPark:     ic.MaxPark.Std(),
		SleepPeriod: ic.SleepPeriod.Std(),
	}
}

// RunnerConfig declares one supervised runner role.
type RunnerConfig struct {
	Role     string   `yaml:"role"`
	Count    int      `yaml:"count"`
	Interval Duration `yaml:"interval"`
}

// RestartConfig controls what the supervisor does when a runner exits.
// Actions are looked up by role; the empty key sets the default.
type RestartConfig struct {
	OnFailure   map[string]string `yaml:"on_failure"`
	OnClean     map[string]string `yaml:"on_clean"`
	MaxAttempts int               `yaml:"max_attempts"`
}

// MetricsConfig controls the Prometheus endpoint. PrometheusURL points at
// the Prometheus server that scrapes it, for reading rates back out.
type MetricsConfig struct {
	Enabled       bool   `yaml:"enabled"`
	Addr          string `yaml:"addr"`
	PrometheusURL string `yaml:"prometheus_url"`
}

// StorageConfig locates the run database and the event journal.
type StorageConfig struct {
	DBPath     string `yaml:"db_path"`
	JournalDir string `yaml:"journal_dir"`
}

// LogConfig controls debug logging.
type LogConfig struct {
	Debug   bool     `yaml:"debug"`
	Domains []string `yaml:"domains"`
	Dir     string   `yaml:"dir"`
}

// GetConfig returns a copy of the current configuration.
func GetConfig() (Config, error) {
	mu.RLock()
	defer mu.RUnlock()
	if config == nil {
		return Config{}, fmt.Errorf("config not initialized - call LoadConfig first")
	}
	// Return by value (copy) to prevent external mutation
	return *config, nil
}

// SetConfigForTesting sets the global config for testing purposes.
// Pass nil to reset. This bypasses normal initialization and should only be used in tests.
func SetConfigForTesting(cfg *Config) {
	mu.Lock()
	defer mu.Unlock()
	config = cfg
	if cfg == nil {
		configPath = ""
	}
}

// LoadConfig loads the configuration file into the global singleton.
//
// Behavior:
// - Missing file: Creates new config with defaults and saves it
// - Existing file: Loads and validates, applying defaults for missing fields
// - Unparseable file: Returns error to avoid overwriting user changes
//
// This should typically be called once at application startup.
func LoadConfig(path string) error {
	mu.Lock()
	defer mu.Unlock()

	if path == "" {
		path = DefaultConfigPath
	}
	configPath = path

	if _, err := os.Stat(path); os.IsNotExist(err) {
		getLogger().Info("📝 Config file not found, creating new config at %s", path)
		fresh := createDefaultConfig()

		if err := validateConfig(fresh); err != nil {
			return fmt.Errorf("default config validation failed: %w", err)
		}
		if err := saveConfigFile(fresh, path); err != nil {
			return fmt.Errorf("failed to save initial config: %w", err)
		}

		config = fresh
		getLogger().Info("✅ New config file created and validated")
		return nil
	}

	getLogger().Info("📝 Loading config from %s", path)
	loaded, err := loadConfigFromFile(path)
	if err != nil {
		return fmt.Errorf("fatal: config file exists but cannot be parsed (to avoid overwriting your changes): %w", err)
	}

	applyDefaults(loaded)
	if err := validateConfig(loaded); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}

	config = loaded
	getLogger().Info("✅ Config loaded and validated successfully")
	return nil
}

// ReloadConfig re-reads the config file behind the singleton. The previous
// config stays active when the new file fails to parse or validate.
func ReloadConfig() (Config, error) {
	mu.Lock()
	defer mu.Unlock()

	if configPath == "" {
		return Config{}, fmt.Errorf("config not initialized - call LoadConfig first")
	}

	loaded, err := loadConfigFromFile(configPath)
	if err != nil {
		return Config{}, fmt.Errorf("config reload failed to parse: %w", err)
	}

	applyDefaults(loaded)
	if err := validateConfig(loaded); err != nil {
		return Config{}, fmt.Errorf("config reload validation failed: %w", err)
	}

	config = loaded
	return *loaded, nil
}

// loadConfigFromFile reads and unmarshals one YAML config file.
func loadConfigFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return cfg, nil
}

// saveConfigFile writes a config as YAML, creating parent directories.
func saveConfigFile(cfg *Config, path string) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create config directory: %w", err)
		}
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// createDefaultConfig builds the out-of-the-box configuration.
func createDefaultConfig() *Config {
	return &Config{
		Idle: IdleConfig{
			Strategy: idle.NameBackoff,
		},
		Runners: []RunnerConfig{
			{
				Role:     DefaultPulseRole,
				Count:    DefaultRunnerCount,
				Interval: Duration(DefaultInterval),
			},
		},
		Restart: RestartConfig{
			OnFailure:   map[string]string{"": ActionNameRestart},
			OnClean:     map[string]string{"": ActionNameIgnore},
			MaxAttempts: DefaultMaxAttempts,
		},
		Metrics: MetricsConfig{
			Enabled:       true,
			Addr:          DefaultMetricsAddr,
			PrometheusURL: DefaultPrometheusURL,
		},
		Storage: StorageConfig{
			DBPath:     DefaultDBPath,
			JournalDir: DefaultJournalDir,
		},
	}
}

// applyDefaults fills unset fields so older or partial configs keep working.
func applyDefaults(cfg *Config) {
	if cfg.Idle.Strategy == "" {
		cfg.Idle.Strategy = idle.NameBackoff
	}

	if len(cfg.Runners) == 0 {
		cfg.Runners = []RunnerConfig{
			{Role: DefaultPulseRole, Count: DefaultRunnerCount, Interval: Duration(DefaultInterval)},
		}
	}
	for i := range cfg.Runners {
		if cfg.Runners[i].Count == 0 {
			cfg.Runners[i].Count = DefaultRunnerCount
		}
		if cfg.Runners[i].Interval == 0 {
			cfg.Runners[i].Interval = Duration(DefaultInterval)
		}
	}

	if cfg.Restart.OnFailure == nil {
		cfg.Restart.OnFailure = map[string]string{"": ActionNameRestart}
	}
	if cfg.Restart.OnClean == nil {
		cfg.Restart.OnClean = map[string]string{"": ActionNameIgnore}
	}
	if cfg.Restart.MaxAttempts == 0 {
		cfg.Restart.MaxAttempts = DefaultMaxAttempts
	}

	if cfg.Metrics.Addr == "" {
		cfg.Metrics.Addr = DefaultMetricsAddr
	}
	if cfg.Metrics.PrometheusURL == "" {
		cfg.Metrics.PrometheusURL = DefaultPrometheusURL
	}

	if cfg.Storage.DBPath == "" {
		cfg.Storage.DBPath = DefaultDBPath
	}
	if cfg.Storage.JournalDir == "" {
		cfg.Storage.JournalDir = DefaultJournalDir
	}
}

// validateConfig rejects configs the supervisor cannot run with.
func validateConfig(cfg *Config) error {
	if !idle.IsKnown(cfg.Idle.Strategy) {
		return fmt.Errorf("unknown idle strategy %q (known: %v)", cfg.Idle.Strategy, idle.KnownStrategies())
	}
	if cfg.Idle.MaxSpins < 0 || cfg.Idle.MaxYields < 0 {
		return fmt.Errorf("idle spin and yield limits must be non-negative")
	}
	if cfg.Idle.MinPark < 0 || cfg.Idle.MaxPark < 0 || cfg.Idle.SleepPeriod < 0 {
		return fmt.Errorf("idle durations must be non-negative")
	}
	if cfg.Idle.MaxPark != 0 && cfg.Idle.MaxPark < cfg.Idle.MinPark {
		return fmt.Errorf("idle max_park %s is below min_park %s", cfg.Idle.MaxPark.Std(), cfg.Idle.MinPark.Std())
	}

	seen := make(map[string]bool)
	for i := range cfg.Runners {
		runner := &cfg.Runners[i]
		if runner.Role == "" {
			return fmt.Errorf("runner %d has no role", i)
		}
		if seen[runner.Role] {
			return fmt.Errorf("duplicate runner role %q", runner.Role)
		}
		seen[runner.Role] = true

		if runner.Count < 1 {
			return fmt.Errorf("runner %q count must be at least 1", runner.Role)
		}
		if runner.Interval < 0 {
			return fmt.Errorf("runner %q interval must be non-negative", runner.Role)
		}
	}

	for _, actions := range []map[string]string{cfg.Restart.OnFailure, cfg.Restart.OnClean} {
		for role, action := range actions {
			if !isValidActionName(action) {
				return fmt.Errorf("invalid restart action %q for role %q", action, role)
			}
		}
	}
	if cfg.Restart.MaxAttempts < 0 {
		return fmt.Errorf("restart max_attempts must be non-negative")
	}

	if cfg.Metrics.Enabled && cfg.Metrics.Addr == "" {
		return fmt.Errorf("metrics enabled but no listen address set")
	}

	return nil
}

// isValidActionName checks a restart action string from the config file.
func isValidActionName(action string) bool {
	switch action {
	case ActionNameRestart, ActionNameShutdown, ActionNameIgnore:
		return true
	}
	return false
}
