package config

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/Jython1415/mathnasium-session-notes/internal/browser"
	"github.com/Jython1415/mathnasium-session-notes/internal/extract"
	"github.com/Jython1415/mathnasium-session-notes/internal/logging"
)

// Validate checks the configuration for semantic errors. Every problem is
// reported, not just the first.
func Validate(cfg Config) error {
	var errs []string

	if u, err := url.Parse(cfg.Target.URL); err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		errs = append(errs, "target.url must be an absolute http(s) URL")
	}
	if strings.TrimSpace(cfg.Target.Title) == "" {
		errs = append(errs, "target.title cannot be empty")
	}
	if len(cfg.Target.Markers) == 0 {
		errs = append(errs, "target.markers needs at least one marker")
	}

	if !oneOf(strings.ToLower(cfg.Browser.Engine), browser.EngineChromedp, browser.EnginePlaywright) {
		errs = append(errs, "browser.engine must be one of chromedp|playwright")
	}
	if cfg.Browser.WindowWidth < 0 || cfg.Browser.WindowHeight < 0 {
		errs = append(errs, "browser window size cannot be negative")
	}
	if _, err := browser.ParseWaitPolicy(cfg.Browser.SmokeWait); err != nil {
		errs = append(errs, "browser.smoke_wait must be one of load|domcontentloaded|networkidle")
	}

	if cfg.Timeouts.NavigationSecs <= 0 {
		errs = append(errs, "timeouts.navigation must be > 0 seconds")
	}
	if cfg.Timeouts.SelectorSecs <= 0 {
		errs = append(errs, "timeouts.selector must be > 0 seconds")
	}
	if cfg.Timeouts.CompletionSecs <= 0 {
		errs = append(errs, "timeouts.completion must be > 0 seconds")
	}

	if strings.TrimSpace(cfg.Selectors.FileInput) == "" {
		errs = append(errs, "selectors.file_input cannot be empty")
	}
	if strings.TrimSpace(cfg.Selectors.ReviewButton) == "" {
		errs = append(errs, "selectors.review_button cannot be empty")
	}
	if cfg.Selectors.CompletionPattern == "" {
		errs = append(errs, "selectors.completion_pattern cannot be empty")
	} else if _, err := regexp.Compile(cfg.Selectors.CompletionPattern); err != nil {
		errs = append(errs, fmt.Sprintf("selectors.completion_pattern is not a valid regexp: %v", err))
	}

	if strings.TrimSpace(cfg.E2E.InputFile) == "" {
		errs = append(errs, "e2e.input_file cannot be empty")
	}
	if !oneOf(strings.ToLower(cfg.E2E.Extractor), extract.Kinds...) {
		errs = append(errs, fmt.Sprintf("e2e.extractor must be one of %s", strings.Join(extract.Kinds, "|")))
	}
	if strings.EqualFold(cfg.E2E.Extractor, extract.KindFile) && cfg.E2E.ObservedFile == "" {
		errs = append(errs, "e2e.observed_file is required when e2e.extractor is file")
	}

	if cfg.Console.Buffer < 0 {
		errs = append(errs, "console.buffer cannot be negative")
	}
	if strings.TrimSpace(cfg.Results.Dir) == "" {
		errs = append(errs, "results.dir cannot be empty")
	}

	if cfg.Metrics.PushgatewayURL != "" {
		if u, err := url.Parse(cfg.Metrics.PushgatewayURL); err != nil || u.Host == "" {
			errs = append(errs, "metrics.pushgateway_url must be an absolute URL")
		}
	}
	if cfg.Metrics.TimeoutSecs < 0 {
		errs = append(errs, "metrics.timeout cannot be negative")
	}

	if !logging.ValidLevel(cfg.Log.Level) {
		errs = append(errs, "log.level must be one of debug|info|warn|error|fatal")
	}
	if cfg.Log.MaxSizeMB < 0 || cfg.Log.MaxBackups < 0 || cfg.Log.MaxAgeDays < 0 {
		errs = append(errs, "log rotation settings cannot be negative")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

func oneOf(val string, options ...string) bool {
	for _, opt := range options {
		if val == opt {
			return true
		}
	}
	return false
}
