package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/spf13/viper"
)

// DirName is the per-user and per-project configuration directory.
const DirName = ".notescheck"

// LoadOptions controls configuration loading.
type LoadOptions struct {
	// ProjectDir is used to locate .notescheck/config.toml. Defaults to CWD when empty.
	ProjectDir string
	// ConfigPath overrides the project config path if provided.
	ConfigPath string
	// FlagOverrides are highest-priority overrides from CLI flags (dot-notated keys).
	FlagOverrides map[string]any
	// SkipUser ignores ~/.notescheck/config.toml.
	SkipUser bool
}

// Load returns the effective configuration after applying precedence:
// defaults < user < project < env (NOTES_*) < flags.
func Load(opts LoadOptions) (Config, error) {
	v := viper.New()
	setDefaults(v)

	projectDir := opts.ProjectDir
	if projectDir == "" {
		if cwd, err := os.Getwd(); err == nil {
			projectDir = cwd
		}
	}

	// 1) User config
	if !opts.SkipUser {
		if err := mergeConfigFile(v, userConfigPath()); err != nil {
			return Config{}, err
		}
	}
	// 2) Project config; an explicit --config must exist.
	if opts.ConfigPath != "" {
		if _, err := os.Stat(opts.ConfigPath); err != nil {
			return Config{}, fmt.Errorf("config %s: %w", opts.ConfigPath, err)
		}
	}
	if err := mergeConfigFile(v, projectConfigPath(projectDir, opts.ConfigPath)); err != nil {
		return Config{}, err
	}
	// 3) Environment variables
	if err := applyEnvOverrides(v); err != nil {
		return Config{}, err
	}
	// 4) CLI flags (highest)
	applyFlagOverrides(v, opts.FlagOverrides)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// setDefaults seeds viper with built-in defaults.
func setDefaults(v *viper.Viper) {
	def := DefaultConfig()
	for _, f := range fields {
		v.SetDefault(f.Key, f.Get(def))
	}
}

// mergeConfigFile merges the TOML config file if it exists.
func mergeConfigFile(v *viper.Viper, path string) error {
	if path == "" {
		return nil
	}
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("stat config %s: %w", path, err)
	}
	if info.IsDir() {
		return fmt.Errorf("config path %s is a directory", path)
	}
	v.SetConfigFile(path)
	v.SetConfigType("toml")
	if err := v.MergeInConfig(); err != nil {
		return fmt.Errorf("merge config %s: %w", path, err)
	}
	return nil
}

// applyEnvOverrides reads NOTES_* env vars and applies them.
func applyEnvOverrides(v *viper.Viper) error {
	for _, f := range fields {
		if f.Env == "" {
			continue
		}
		val := os.Getenv(f.Env)
		if val == "" {
			continue
		}
		parsed, err := parseValueByKind(val, f.Kind)
		if err != nil {
			return fmt.Errorf("env %s: %w", f.Env, err)
		}
		v.Set(f.Key, parsed)
	}
	return nil
}

// applyFlagOverrides applies CLI overrides as highest-precedence values.
func applyFlagOverrides(v *viper.Viper, overrides map[string]any) {
	for k, val := range overrides {
		v.Set(k, val)
	}
}

// ConfigPaths returns the user and project config file paths.
func ConfigPaths(projectDir, configOverride string) (string, string) {
	return userConfigPath(), projectConfigPath(projectDir, configOverride)
}

// UserDir returns ~/.notescheck, or "" when the home directory is unknown.
func UserDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, DirName)
}

func userConfigPath() string {
	dir := UserDir()
	if dir == "" {
		return ""
	}
	return filepath.Join(dir, "config.toml")
}

func projectConfigPath(projectDir, override string) string {
	if override != "" {
		return override
	}
	if projectDir == "" {
		return filepath.Join(DirName, "config.toml")
	}
	return filepath.Join(projectDir, DirName, "config.toml")
}

// Keys returns every supported dot-notated key, sorted.
func Keys() []string {
	keys := make([]string, 0, len(fields))
	for _, f := range fields {
		keys = append(keys, f.Key)
	}
	sort.Strings(keys)
	return keys
}

// ParseValue parses a raw string into the expected type for a given config key.
func ParseValue(key, raw string) (any, error) {
	f, ok := fieldByKey(key)
	if !ok {
		return nil, fmt.Errorf("unsupported key %q", key)
	}
	return parseValueByKind(raw, f.Kind)
}

// GetValue retrieves a dot-notated value from the Config.
func GetValue(cfg Config, key string) (any, bool) {
	f, ok := fieldByKey(key)
	if !ok {
		return nil, false
	}
	return f.Get(cfg), true
}

// WriteValue sets a single key/value into the specified TOML config file (creating it if needed).
func WriteValue(path, key string, value any) error {
	if path == "" {
		return fmt.Errorf("config path is empty")
	}
	if _, ok := fieldByKey(key); !ok {
		return fmt.Errorf("unsupported key %q", key)
	}
	existing := map[string]any{}
	if _, err := os.Stat(path); err == nil {
		if _, err := toml.DecodeFile(path, &existing); err != nil {
			return fmt.Errorf("decode config: %w", err)
		}
	}

	if err := setNested(existing, key, value); err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("mkdir %s: %w", filepath.Dir(path), err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("create config %s: %w", path, err)
	}
	defer f.Close()

	enc := toml.NewEncoder(f)
	enc.Indent = "  "
	if err := enc.Encode(existing); err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	return nil
}

func setNested(m map[string]any, key string, value any) error {
	parts := strings.Split(key, ".")
	cur := m
	for i, p := range parts {
		if i == len(parts)-1 {
			cur[p] = value
			return nil
		}
		next, ok := cur[p]
		if !ok {
			child := map[string]any{}
			cur[p] = child
			cur = child
			continue
		}
		childMap, ok := next.(map[string]any)
		if !ok {
			return fmt.Errorf("cannot set %s: %s is not a table", key, strings.Join(parts[:i+1], "."))
		}
		cur = childMap
	}
	return nil
}

// Helpers for env + parsing ---------------------------------------------------

type valueKind int

const (
	kindString valueKind = iota
	kindBool
	kindInt
	kindStringSlice
)

// field describes one dot-notated key.
type field struct {
	Key  string
	Env  string
	Kind valueKind
	Get  func(Config) any
}

var fields = []field{
	{"target.url", "NOTES_URL", kindString, func(c Config) any { return c.Target.URL }},
	{"target.title", "NOTES_TITLE", kindString, func(c Config) any { return c.Target.Title }},
	{"target.markers", "NOTES_MARKERS", kindStringSlice, func(c Config) any { return c.Target.Markers }},

	{"browser.engine", "NOTES_ENGINE", kindString, func(c Config) any { return c.Browser.Engine }},
	{"browser.headless", "NOTES_HEADLESS", kindBool, func(c Config) any { return c.Browser.Headless }},
	{"browser.no_sandbox", "NOTES_NO_SANDBOX", kindBool, func(c Config) any { return c.Browser.NoSandbox }},
	{"browser.window_width", "", kindInt, func(c Config) any { return c.Browser.WindowWidth }},
	{"browser.window_height", "", kindInt, func(c Config) any { return c.Browser.WindowHeight }},
	{"browser.exec_path", "NOTES_BROWSER_PATH", kindString, func(c Config) any { return c.Browser.ExecPath }},
	{"browser.smoke_wait", "", kindString, func(c Config) any { return c.Browser.SmokeWait }},

	{"timeouts.navigation", "NOTES_NAVIGATION_TIMEOUT", kindInt, func(c Config) any { return c.Timeouts.NavigationSecs }},
	{"timeouts.selector", "NOTES_SELECTOR_TIMEOUT", kindInt, func(c Config) any { return c.Timeouts.SelectorSecs }},
	{"timeouts.completion", "NOTES_COMPLETION_TIMEOUT", kindInt, func(c Config) any { return c.Timeouts.CompletionSecs }},

	{"selectors.file_input", "", kindString, func(c Config) any { return c.Selectors.FileInput }},
	{"selectors.review_button", "", kindString, func(c Config) any { return c.Selectors.ReviewButton }},
	{"selectors.review_button_text", "", kindString, func(c Config) any { return c.Selectors.ReviewButtonText }},
	{"selectors.completion_pattern", "", kindString, func(c Config) any { return c.Selectors.CompletionPattern }},

	{"e2e.input_file", "NOTES_INPUT_FILE", kindString, func(c Config) any { return c.E2E.InputFile }},
	{"e2e.oracle_file", "NOTES_ORACLE_FILE", kindString, func(c Config) any { return c.E2E.OracleFile }},
	{"e2e.extractor", "NOTES_EXTRACTOR", kindString, func(c Config) any { return c.E2E.Extractor }},
	{"e2e.exact_category", "NOTES_EXACT_CATEGORY", kindBool, func(c Config) any { return c.E2E.ExactCategory }},
	{"e2e.observed_file", "NOTES_OBSERVED_FILE", kindString, func(c Config) any { return c.E2E.ObservedFile }},

	{"extract.dom_selector", "", kindString, func(c Config) any { return c.Extract.DOMSelector }},
	{"extract.script", "", kindString, func(c Config) any { return c.Extract.Script }},

	{"console.markers", "NOTES_CONSOLE_MARKERS", kindStringSlice, func(c Config) any { return c.Console.Markers }},
	{"console.buffer", "", kindInt, func(c Config) any { return c.Console.Buffer }},

	{"results.dir", "NOTES_RESULTS_DIR", kindString, func(c Config) any { return c.Results.Dir }},

	{"history.enabled", "NOTES_HISTORY", kindBool, func(c Config) any { return c.History.Enabled }},
	{"history.database_path", "NOTES_HISTORY_DB", kindString, func(c Config) any { return c.History.DatabasePath }},

	{"metrics.textfile", "NOTES_METRICS_TEXTFILE", kindString, func(c Config) any { return c.Metrics.Textfile }},
	{"metrics.pushgateway_url", "NOTES_PUSHGATEWAY_URL", kindString, func(c Config) any { return c.Metrics.PushgatewayURL }},
	{"metrics.job", "", kindString, func(c Config) any { return c.Metrics.Job }},
	{"metrics.timeout", "", kindInt, func(c Config) any { return c.Metrics.TimeoutSecs }},

	{"log.level", "NOTES_LOG_LEVEL", kindString, func(c Config) any { return c.Log.Level }},
	{"log.file", "NOTES_LOG_FILE", kindString, func(c Config) any { return c.Log.File }},
	{"log.max_size_mb", "", kindInt, func(c Config) any { return c.Log.MaxSizeMB }},
	{"log.max_backups", "", kindInt, func(c Config) any { return c.Log.MaxBackups }},
	{"log.max_age_days", "", kindInt, func(c Config) any { return c.Log.MaxAgeDays }},
}

func fieldByKey(key string) (field, bool) {
	for _, f := range fields {
		if f.Key == key {
			return f, true
		}
	}
	return field{}, false
}

func parseValueByKind(raw string, kind valueKind) (any, error) {
	switch kind {
	case kindString:
		return raw, nil
	case kindBool:
		v, err := strconv.ParseBool(raw)
		if err != nil {
			return nil, fmt.Errorf("expected boolean: %w", err)
		}
		return v, nil
	case kindInt:
		v, err := strconv.Atoi(raw)
		if err != nil {
			return nil, fmt.Errorf("expected integer: %w", err)
		}
		return v, nil
	case kindStringSlice:
		parts := strings.Split(raw, ",")
		result := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				result = append(result, p)
			}
		}
		return result, nil
	default:
		return nil, fmt.Errorf("unsupported value kind")
	}
}
