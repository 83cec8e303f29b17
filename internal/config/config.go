package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config represents the termbrain configuration.
type Config struct {
	Storage   StorageConfig   `yaml:"storage"`
	Capture   CaptureConfig   `yaml:"capture"`
	Mining    MiningConfig    `yaml:"mining"`
	Knowledge KnowledgeConfig `yaml:"knowledge"`
	Advisor   AdvisorConfig   `yaml:"advisor"`
	Workflow  WorkflowConfig  `yaml:"workflow"`
	Logging   LoggingConfig   `yaml:"logging"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// StorageConfig holds database settings.
type StorageConfig struct {
	DBPath string `yaml:"db_path"` // SQLite file (empty = data dir default)
}

// CaptureConfig holds command capture settings.
type CaptureConfig struct {
	Enabled               bool     `yaml:"enabled"`                  // Master toggle for recording
	ExcludePrefixes       []string `yaml:"exclude_prefixes"`         // Commands starting with these are not recorded
	AutoResolveErrors     bool     `yaml:"auto_resolve_errors"`      // Mark errors solved by the next success of the same type
	AutoResolveWindowMins int      `yaml:"auto_resolve_window_mins"` // How far back auto-resolution looks
}

// MiningConfig holds pattern miner thresholds.
type MiningConfig struct {
	SequenceMinFrequency int `yaml:"sequence_min_frequency"`  // Min occurrences of a type pair
	TimeMinFrequency     int `yaml:"time_min_frequency"`      // Min occurrences of an hour/type bucket
	TimeWindowDays       int `yaml:"time_window_days"`        // Trailing window for time-of-day mining
	ErrorFixMinFrequency int `yaml:"error_fix_min_frequency"` // Min occurrences of an error/fix pair
	IntervalMins         int `yaml:"interval_mins"`           // Background mining interval
}

// KnowledgeConfig holds knowledge base settings.
type KnowledgeConfig struct {
	BaselineConfidence int `yaml:"baseline_confidence"` // Confidence of new entries
	MaxConfidence      int `yaml:"max_confidence"`      // Reinforcement cap
	TopicWindow        int `yaml:"topic_window"`        // Recent events used to derive a topic
}

// AdvisorConfig holds pre-execution advice settings.
type AdvisorConfig struct {
	TestsRecentMins int  `yaml:"tests_recent_mins"` // How recent a passing test run must be
	ShowNext        bool `yaml:"show_next"`         // Include next-step hints
}

// WorkflowConfig holds workflow runner settings.
type WorkflowConfig struct {
	Shell           string `yaml:"shell"`             // Shell used for steps with metacharacters
	OutputTailBytes int    `yaml:"output_tail_bytes"` // Captured output kept per step
}

// LoggingConfig holds log settings.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error
	File  string `yaml:"file"`  // Log file path (overrides default)
}

// TelemetryConfig holds local metrics settings.
type TelemetryConfig struct {
	Enabled bool `yaml:"enabled"` // Record otel counters
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Capture: CaptureConfig{
			Enabled:               true,
			ExcludePrefixes:       []string{" "},
			AutoResolveErrors:     true,
			AutoResolveWindowMins: 30,
		},
		Mining: MiningConfig{
			SequenceMinFrequency: 3,
			TimeMinFrequency:     5,
			TimeWindowDays:       30,
			ErrorFixMinFrequency: 2,
			IntervalMins:         10,
		},
		Knowledge: KnowledgeConfig{
			BaselineConfidence: 1,
			MaxConfidence:      10,
			TopicWindow:        10,
		},
		Advisor: AdvisorConfig{
			TestsRecentMins: 30,
			ShowNext:        true,
		},
		Workflow: WorkflowConfig{
			Shell:           "/bin/sh",
			OutputTailBytes: 64 * 1024,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
		Telemetry: TelemetryConfig{
			Enabled: true,
		},
	}
}

// Load loads configuration from the default path.
func Load() (*Config, error) {
	return LoadFromFile(DefaultPaths().ConfigFile())
}

// LoadFromFile loads configuration from the specified file.
// If the file doesn't exist, returns default configuration.
// Environment variable overrides are applied after file loading.
func LoadFromFile(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.ApplyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.ApplyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// Save saves the configuration to the default path.
func (c *Config) Save() error {
	return c.SaveToFile(DefaultPaths().ConfigFile())
}

// SaveToFile saves the configuration to the specified file.
func (c *Config) SaveToFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// DatabasePath returns the configured database path, falling back to the
// data directory default.
func (c *Config) DatabasePath(p *Paths) string {
	if c.Storage.DBPath != "" {
		return c.Storage.DBPath
	}
	return p.DatabaseFile()
}

// LogPath returns the configured log file, falling back to the data
// directory default.
func (c *Config) LogPath(p *Paths) string {
	if c.Logging.File != "" {
		return c.Logging.File
	}
	return p.LogFile()
}

// Get retrieves a configuration value by dot-separated key.
// For example: "mining.sequence_min_frequency" or "capture.enabled"
func (c *Config) Get(key string) (string, error) {
	section, field, err := splitKey(key)
	if err != nil {
		return "", err
	}

	switch section {
	case "storage":
		if field == "db_path" {
			return c.Storage.DBPath, nil
		}
	case "capture":
		return c.getCaptureField(field)
	case "mining":
		return c.getMiningField(field)
	case "knowledge":
		return c.getKnowledgeField(field)
	case "advisor":
		return c.getAdvisorField(field)
	case "workflow":
		return c.getWorkflowField(field)
	case "logging":
		switch field {
		case "level":
			return c.Logging.Level, nil
		case "file":
			return c.Logging.File, nil
		}
	case "telemetry":
		if field == "enabled" {
			return strconv.FormatBool(c.Telemetry.Enabled), nil
		}
	default:
		return "", fmt.Errorf("unknown section: %s", section)
	}
	return "", fmt.Errorf("unknown field: %s", key)
}

// Set sets a configuration value by dot-separated key.
func (c *Config) Set(key, value string) error {
	section, field, err := splitKey(key)
	if err != nil {
		return err
	}

	switch section {
	case "storage":
		if field == "db_path" {
			c.Storage.DBPath = value
			return nil
		}
	case "capture":
		return c.setCaptureField(field, value)
	case "mining":
		return c.setMiningField(field, value)
	case "knowledge":
		return c.setKnowledgeField(field, value)
	case "advisor":
		return c.setAdvisorField(field, value)
	case "workflow":
		return c.setWorkflowField(field, value)
	case "logging":
		switch field {
		case "level":
			if !isValidLogLevel(value) {
				return fmt.Errorf("invalid level: %s (must be debug, info, warn, or error)", value)
			}
			c.Logging.Level = value
			return nil
		case "file":
			c.Logging.File = value
			return nil
		}
	case "telemetry":
		if field == "enabled" {
			b, err := strconv.ParseBool(value)
			if err != nil {
				return fmt.Errorf("invalid value for enabled: %w", err)
			}
			c.Telemetry.Enabled = b
			return nil
		}
	default:
		return fmt.Errorf("unknown section: %s", section)
	}
	return fmt.Errorf("unknown field: %s", key)
}

func splitKey(key string) (string, string, error) {
	parts := strings.Split(key, ".")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", errors.New("key must be in format 'section.key'")
	}
	return parts[0], parts[1], nil
}

func (c *Config) getCaptureField(field string) (string, error) {
	switch field {
	case "enabled":
		return strconv.FormatBool(c.Capture.Enabled), nil
	case "exclude_prefixes":
		return strings.Join(c.Capture.ExcludePrefixes, ","), nil
	case "auto_resolve_errors":
		return strconv.FormatBool(c.Capture.AutoResolveErrors), nil
	case "auto_resolve_window_mins":
		return strconv.Itoa(c.Capture.AutoResolveWindowMins), nil
	default:
		return "", fmt.Errorf("unknown field: capture.%s", field)
	}
}

func (c *Config) setCaptureField(field, value string) error {
	switch field {
	case "enabled":
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid value for enabled: %w", err)
		}
		c.Capture.Enabled = b
	case "exclude_prefixes":
		c.Capture.ExcludePrefixes = nil
		for _, p := range strings.Split(value, ",") {
			if p != "" {
				c.Capture.ExcludePrefixes = append(c.Capture.ExcludePrefixes, p)
			}
		}
	case "auto_resolve_errors":
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid value for auto_resolve_errors: %w", err)
		}
		c.Capture.AutoResolveErrors = b
	case "auto_resolve_window_mins":
		v, err := parsePositive(field, value)
		if err != nil {
			return err
		}
		c.Capture.AutoResolveWindowMins = v
	default:
		return fmt.Errorf("unknown field: capture.%s", field)
	}
	return nil
}

func (c *Config) getMiningField(field string) (string, error) {
	switch field {
	case "sequence_min_frequency":
		return strconv.Itoa(c.Mining.SequenceMinFrequency), nil
	case "time_min_frequency":
		return strconv.Itoa(c.Mining.TimeMinFrequency), nil
	case "time_window_days":
		return strconv.Itoa(c.Mining.TimeWindowDays), nil
	case "error_fix_min_frequency":
		return strconv.Itoa(c.Mining.ErrorFixMinFrequency), nil
	case "interval_mins":
		return strconv.Itoa(c.Mining.IntervalMins), nil
	default:
		return "", fmt.Errorf("unknown field: mining.%s", field)
	}
}

func (c *Config) setMiningField(field, value string) error {
	var target *int
	switch field {
	case "sequence_min_frequency":
		target = &c.Mining.SequenceMinFrequency
	case "time_min_frequency":
		target = &c.Mining.TimeMinFrequency
	case "time_window_days":
		target = &c.Mining.TimeWindowDays
	case "error_fix_min_frequency":
		target = &c.Mining.ErrorFixMinFrequency
	case "interval_mins":
		target = &c.Mining.IntervalMins
	default:
		return fmt.Errorf("unknown field: mining.%s", field)
	}
	v, err := parsePositive(field, value)
	if err != nil {
		return err
	}
	*target = v
	return nil
}

func (c *Config) getKnowledgeField(field string) (string, error) {
	switch field {
	case "baseline_confidence":
		return strconv.Itoa(c.Knowledge.BaselineConfidence), nil
	case "max_confidence":
		return strconv.Itoa(c.Knowledge.MaxConfidence), nil
	case "topic_window":
		return strconv.Itoa(c.Knowledge.TopicWindow), nil
	default:
		return "", fmt.Errorf("unknown field: knowledge.%s", field)
	}
}

func (c *Config) setKnowledgeField(field, value string) error {
	var target *int
	switch field {
	case "baseline_confidence":
		target = &c.Knowledge.BaselineConfidence
	case "max_confidence":
		target = &c.Knowledge.MaxConfidence
	case "topic_window":
		target = &c.Knowledge.TopicWindow
	default:
		return fmt.Errorf("unknown field: knowledge.%s", field)
	}
	v, err := parsePositive(field, value)
	if err != nil {
		return err
	}
	*target = v
	return nil
}

func (c *Config) getAdvisorField(field string) (string, error) {
	switch field {
	case "tests_recent_mins":
		return strconv.Itoa(c.Advisor.TestsRecentMins), nil
	case "show_next":
		return strconv.FormatBool(c.Advisor.ShowNext), nil
	default:
		return "", fmt.Errorf("unknown field: advisor.%s", field)
	}
}

func (c *Config) setAdvisorField(field, value string) error {
	switch field {
	case "tests_recent_mins":
		v, err := parsePositive(field, value)
		if err != nil {
			return err
		}
		c.Advisor.TestsRecentMins = v
	case "show_next":
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid value for show_next: %w", err)
		}
		c.Advisor.ShowNext = b
	default:
		return fmt.Errorf("unknown field: advisor.%s", field)
	}
	return nil
}

func (c *Config) getWorkflowField(field string) (string, error) {
	switch field {
	case "shell":
		return c.Workflow.Shell, nil
	case "output_tail_bytes":
		return strconv.Itoa(c.Workflow.OutputTailBytes), nil
	default:
		return "", fmt.Errorf("unknown field: workflow.%s", field)
	}
}

func (c *Config) setWorkflowField(field, value string) error {
	switch field {
	case "shell":
		if value == "" {
			return errors.New("workflow.shell must not be empty")
		}
		c.Workflow.Shell = value
	case "output_tail_bytes":
		v, err := parsePositive(field, value)
		if err != nil {
			return err
		}
		c.Workflow.OutputTailBytes = v
	default:
		return fmt.Errorf("unknown field: workflow.%s", field)
	}
	return nil
}

func parsePositive(field, value string) (int, error) {
	v, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid value for %s: %w", field, err)
	}
	if v <= 0 {
		return 0, fmt.Errorf("invalid %s: must be positive", field)
	}
	return v, nil
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Capture.AutoResolveWindowMins <= 0 {
		return errors.New("capture.auto_resolve_window_mins must be > 0")
	}
	if c.Mining.SequenceMinFrequency <= 0 || c.Mining.TimeMinFrequency <= 0 || c.Mining.ErrorFixMinFrequency <= 0 {
		return errors.New("mining frequencies must be > 0")
	}
	if c.Mining.TimeWindowDays <= 0 {
		return errors.New("mining.time_window_days must be > 0")
	}
	if c.Mining.IntervalMins <= 0 {
		return errors.New("mining.interval_mins must be > 0")
	}
	if c.Knowledge.BaselineConfidence < 0 {
		return errors.New("knowledge.baseline_confidence must be >= 0")
	}
	if c.Knowledge.MaxConfidence < c.Knowledge.BaselineConfidence {
		return fmt.Errorf("knowledge.max_confidence must be >= baseline_confidence (got: %d < %d)",
			c.Knowledge.MaxConfidence, c.Knowledge.BaselineConfidence)
	}
	if c.Knowledge.TopicWindow <= 0 {
		return errors.New("knowledge.topic_window must be > 0")
	}
	if c.Advisor.TestsRecentMins <= 0 {
		return errors.New("advisor.tests_recent_mins must be > 0")
	}
	if c.Workflow.Shell == "" {
		return errors.New("workflow.shell must not be empty")
	}
	if c.Workflow.OutputTailBytes <= 0 {
		return errors.New("workflow.output_tail_bytes must be > 0")
	}
	if !isValidLogLevel(c.Logging.Level) {
		return fmt.Errorf("logging.level must be debug, info, warn, or error (got: %s)", c.Logging.Level)
	}
	return nil
}

func isValidLogLevel(level string) bool {
	switch level {
	case "debug", "info", "warn", "error":
		return true
	default:
		return false
	}
}

// ApplyEnvOverrides applies environment variable overrides to the config.
func (c *Config) ApplyEnvOverrides() {
	if v := os.Getenv("TB_DB_PATH"); v != "" {
		c.Storage.DBPath = v
	}
	if v := os.Getenv("TB_DEBUG"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil && b {
			c.Logging.Level = "debug"
		}
	}
	if v := os.Getenv("TB_LOG_LEVEL"); v != "" {
		if isValidLogLevel(v) {
			c.Logging.Level = v
		}
	}
	if v := os.Getenv("TB_CAPTURE"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.Capture.Enabled = b
		}
	}
}

// ListKeys returns user-facing configuration keys.
func ListKeys() []string {
	return []string{
		"storage.db_path",
		"capture.enabled",
		"capture.exclude_prefixes",
		"capture.auto_resolve_errors",
		"capture.auto_resolve_window_mins",
		"mining.sequence_min_frequency",
		"mining.time_min_frequency",
		"mining.time_window_days",
		"mining.error_fix_min_frequency",
		"mining.interval_mins",
		"knowledge.baseline_confidence",
		"knowledge.max_confidence",
		"knowledge.topic_window",
		"advisor.tests_recent_mins",
		"advisor.show_next",
		"workflow.shell",
		"workflow.output_tail_bytes",
		"logging.level",
		"logging.file",
		"telemetry.enabled",
	}
}
