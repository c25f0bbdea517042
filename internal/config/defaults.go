package config

// Built-in defaults. They describe the production deployment and the sample
// workbook checked into test-data/.

var (
	defaultMarkers        = []string{"app.jsx", "SessionNotesReviewer"}
	defaultConsoleMarkers = []string{"BATCH", "ERROR"}
)

// DefaultConfig returns the built-in default configuration.
func DefaultConfig() Config {
	return Config{
		Target: TargetConfig{
			URL:     "https://mathsense.com/session-notes/",
			Title:   "Session Notes Reviewer",
			Markers: append([]string(nil), defaultMarkers...),
		},
		Browser: BrowserConfig{
			Engine:       "chromedp",
			Headless:     true,
			NoSandbox:    true,
			WindowWidth:  1920,
			WindowHeight: 1080,
			ExecPath:     "",
			SmokeWait:    "load",
		},
		Timeouts: TimeoutsConfig{
			NavigationSecs: 15,
			SelectorSecs:   10,
			CompletionSecs: 180,
		},
		Selectors: SelectorsConfig{
			FileInput:         "#file-input",
			ReviewButton:      "button",
			ReviewButtonText:  "Review Session Notes",
			CompletionPattern: "Priority Reviews|Lower Priority|sessions require review",
		},
		E2E: E2EConfig{
			InputFile:     "test-data/Digital Workout Plan Report.xlsx",
			OracleFile:    "",
			Extractor:     "none",
			ExactCategory: false,
			ObservedFile:  "",
		},
		Extract: ExtractConfig{
			DOMSelector: "[data-row-id]",
			Script:      "JSON.stringify(window.__reviewResults || [])",
		},
		Console: ConsoleConfig{
			Markers: append([]string(nil), defaultConsoleMarkers...),
			Buffer:  64,
		},
		Results: ResultsConfig{
			Dir: "test-results",
		},
		History: HistoryConfig{
			Enabled:      true,
			DatabasePath: "",
		},
		Metrics: MetricsConfig{
			Textfile:       "",
			PushgatewayURL: "",
			Job:            "notescheck",
			TimeoutSecs:    10,
		},
		Log: LogConfig{
			Level:      "info",
			File:       "",
			MaxSizeMB:  10,
			MaxBackups: 3,
			MaxAgeDays: 14,
		},
	}
}
