// Package config implements hierarchical configuration for notescheck.
// Precedence: defaults < user (~/.notescheck/config.toml) < project
// (.notescheck/config.toml) < env (NOTES_*) < flags.
package config

import "time"

// Config is the top-level configuration structure.
type Config struct {
	Target    TargetConfig    `toml:"target" mapstructure:"target"`
	Browser   BrowserConfig   `toml:"browser" mapstructure:"browser"`
	Timeouts  TimeoutsConfig  `toml:"timeouts" mapstructure:"timeouts"`
	Selectors SelectorsConfig `toml:"selectors" mapstructure:"selectors"`
	E2E       E2EConfig       `toml:"e2e" mapstructure:"e2e"`
	Extract   ExtractConfig   `toml:"extract" mapstructure:"extract"`
	Console   ConsoleConfig   `toml:"console" mapstructure:"console"`
	Results   ResultsConfig   `toml:"results" mapstructure:"results"`
	History   HistoryConfig   `toml:"history" mapstructure:"history"`
	Metrics   MetricsConfig   `toml:"metrics" mapstructure:"metrics"`
	Log       LogConfig       `toml:"log" mapstructure:"log"`
}

// TargetConfig identifies the deployment under test.
type TargetConfig struct {
	URL     string   `toml:"url" mapstructure:"url"`
	Title   string   `toml:"title" mapstructure:"title"`
	Markers []string `toml:"markers" mapstructure:"markers"`
}

// BrowserConfig selects and tunes the browser engine.
type BrowserConfig struct {
	Engine       string `toml:"engine" mapstructure:"engine"` // chromedp | playwright
	Headless     bool   `toml:"headless" mapstructure:"headless"`
	NoSandbox    bool   `toml:"no_sandbox" mapstructure:"no_sandbox"`
	WindowWidth  int    `toml:"window_width" mapstructure:"window_width"`
	WindowHeight int    `toml:"window_height" mapstructure:"window_height"`
	ExecPath     string `toml:"exec_path" mapstructure:"exec_path"`
	SmokeWait    string `toml:"smoke_wait" mapstructure:"smoke_wait"` // load | domcontentloaded | networkidle
}

// TimeoutsConfig holds wait limits in seconds.
type TimeoutsConfig struct {
	NavigationSecs int `toml:"navigation" mapstructure:"navigation"`
	SelectorSecs   int `toml:"selector" mapstructure:"selector"`
	CompletionSecs int `toml:"completion" mapstructure:"completion"`
}

// Navigation returns the navigation timeout.
func (t TimeoutsConfig) Navigation() time.Duration {
	return time.Duration(t.NavigationSecs) * time.Second
}

// Selector returns the element wait timeout.
func (t TimeoutsConfig) Selector() time.Duration {
	return time.Duration(t.SelectorSecs) * time.Second
}

// Completion returns the processing wait timeout.
func (t TimeoutsConfig) Completion() time.Duration {
	return time.Duration(t.CompletionSecs) * time.Second
}

// SelectorsConfig locates the page controls.
type SelectorsConfig struct {
	FileInput         string `toml:"file_input" mapstructure:"file_input"`
	ReviewButton      string `toml:"review_button" mapstructure:"review_button"`
	ReviewButtonText  string `toml:"review_button_text" mapstructure:"review_button_text"`
	CompletionPattern string `toml:"completion_pattern" mapstructure:"completion_pattern"`
}

// E2EConfig defines the end-to-end scenario.
type E2EConfig struct {
	InputFile     string `toml:"input_file" mapstructure:"input_file"`
	OracleFile    string `toml:"oracle_file" mapstructure:"oracle_file"`
	Extractor     string `toml:"extractor" mapstructure:"extractor"` // none | dom | script | file
	ExactCategory bool   `toml:"exact_category" mapstructure:"exact_category"`
	ObservedFile  string `toml:"observed_file" mapstructure:"observed_file"`
}

// ExtractConfig tunes the result extractors.
type ExtractConfig struct {
	DOMSelector string `toml:"dom_selector" mapstructure:"dom_selector"`
	Script      string `toml:"script" mapstructure:"script"`
}

// ConsoleConfig controls browser console forwarding.
type ConsoleConfig struct {
	Markers []string `toml:"markers" mapstructure:"markers"`
	Buffer  int      `toml:"buffer" mapstructure:"buffer"`
}

// ResultsConfig holds the artifact directory.
type ResultsConfig struct {
	Dir string `toml:"dir" mapstructure:"dir"`
}

// HistoryConfig holds run-history persistence settings.
type HistoryConfig struct {
	Enabled      bool   `toml:"enabled" mapstructure:"enabled"`
	DatabasePath string `toml:"database_path" mapstructure:"database_path"`
}

// MetricsConfig holds Prometheus export settings.
type MetricsConfig struct {
	Textfile       string `toml:"textfile" mapstructure:"textfile"`
	PushgatewayURL string `toml:"pushgateway_url" mapstructure:"pushgateway_url"`
	Job            string `toml:"job" mapstructure:"job"`
	TimeoutSecs    int    `toml:"timeout" mapstructure:"timeout"`
}

// LogConfig holds diagnostics logging settings.
type LogConfig struct {
	Level      string `toml:"level" mapstructure:"level"`
	File       string `toml:"file" mapstructure:"file"`
	MaxSizeMB  int    `toml:"max_size_mb" mapstructure:"max_size_mb"`
	MaxBackups int    `toml:"max_backups" mapstructure:"max_backups"`
	MaxAgeDays int    `toml:"max_age_days" mapstructure:"max_age_days"`
}
