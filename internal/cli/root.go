// Package cli implements the notescheck command tree.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/Jython1415/mathnasium-session-notes/internal/browser"
	"github.com/Jython1415/mathnasium-session-notes/internal/config"
	"github.com/Jython1415/mathnasium-session-notes/internal/history"
	"github.com/Jython1415/mathnasium-session-notes/internal/logging"
	"github.com/Jython1415/mathnasium-session-notes/internal/metrics"
	"github.com/Jython1415/mathnasium-session-notes/internal/output"
)

var (
	flagConfig     string
	flagProject    string
	flagJSON       bool
	flagLogLevel   string
	flagEngine     string
	flagHeadless   bool
	flagResultsDir string
	flagURL        string
)

// newDriver builds the browser driver; tests replace it with a fake.
var newDriver = func(engine string, opts browser.Options) (browser.Driver, error) {
	return browser.New(engine, opts)
}

var rootCmd = &cobra.Command{
	Use:   "notescheck",
	Short: "Smoke and end-to-end checks for the Session Notes Reviewer",
	Long: `notescheck drives a headless browser against the deployed Session Notes
Reviewer and reports whether it is up and reviewing correctly.

  notescheck smoke      four independent availability probes
  notescheck e2e        upload the sample workbook and validate the review
  notescheck validate   check an exported results file against the case oracle

Exit status is 0 when every check passed and 1 otherwise.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	// Runs after flag parsing and before argument validation, so usage
	// errors honor --json too.
	cobra.OnInitialize(func() { output.SetMode(flagJSON) })

	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&flagConfig, "config", "c", "", "config file (default .notescheck/config.toml)")
	pf.StringVarP(&flagProject, "project", "C", "", "project directory (default: current directory)")
	pf.BoolVarP(&flagJSON, "json", "j", false, "write a JSON report to stdout instead of progress lines")
	pf.StringVar(&flagLogLevel, "log-level", "", "log level (debug, info, warn, error)")
	pf.StringVar(&flagEngine, "engine", "", "browser engine (chromedp, playwright)")
	pf.BoolVar(&flagHeadless, "headless", true, "run the browser without a window")
	pf.StringVar(&flagResultsDir, "results-dir", "", "directory for screenshots and captured pages")
	pf.StringVar(&flagURL, "url", "", "target URL")
}

// ExitError carries the exit code of a run whose failure was already
// reported.
type ExitError struct {
	Code int
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("exit status %d", e.Code)
}

// Execute runs the command line and returns the process exit code.
func Execute() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return execute(ctx, rootCmd, os.Args[1:])
}

func execute(ctx context.Context, root *cobra.Command, args []string) int {
	output.SetMode(false)
	root.SetArgs(args)
	err := root.ExecuteContext(ctx)
	if err == nil {
		return 0
	}
	var exit *ExitError
	if errors.As(err, &exit) {
		return exit.Code
	}
	if output.IsJSON() {
		_ = output.WriteError(root.OutOrStdout(), err, 1)
	} else {
		fmt.Fprintf(root.ErrOrStderr(), "notescheck: %v\n", err)
	}
	return 1
}

// overrides collects changed flags as dot-notated config keys.
type overrides map[string]any

func (o overrides) setString(cmd *cobra.Command, flag, key, value string) {
	if cmd.Flags().Changed(flag) {
		o[key] = value
	}
}

func (o overrides) setBool(cmd *cobra.Command, flag, key string, value bool) {
	if cmd.Flags().Changed(flag) {
		o[key] = value
	}
}

func (o overrides) setInt(cmd *cobra.Command, flag, key string, value int) {
	if cmd.Flags().Changed(flag) {
		o[key] = value
	}
}

func globalOverrides(cmd *cobra.Command) overrides {
	o := overrides{}
	o.setString(cmd, "log-level", "log.level", flagLogLevel)
	o.setString(cmd, "engine", "browser.engine", flagEngine)
	o.setBool(cmd, "headless", "browser.headless", flagHeadless)
	o.setString(cmd, "results-dir", "results.dir", flagResultsDir)
	o.setString(cmd, "url", "target.url", flagURL)
	return o
}

func projectPath() (string, error) {
	if flagProject != "" {
		return filepath.Abs(flagProject)
	}
	return os.Getwd()
}

func loadConfig(cmd *cobra.Command, extra overrides) (config.Config, error) {
	project, err := projectPath()
	if err != nil {
		return config.Config{}, err
	}
	o := globalOverrides(cmd)
	for k, v := range extra {
		o[k] = v
	}
	cfg, err := config.Load(config.LoadOptions{
		ProjectDir:    project,
		ConfigPath:    flagConfig,
		FlagOverrides: o,
	})
	if err != nil {
		return config.Config{}, fmt.Errorf("loading config: %w", err)
	}
	return cfg, nil
}

// env is the per-invocation runtime: effective config, logger and printer.
type env struct {
	cfg     config.Config
	logger  *log.Logger
	closer  io.Closer
	printer *output.Printer
	out     io.Writer
}

func setup(cmd *cobra.Command, extra overrides) (*env, error) {
	cfg, err := loadConfig(cmd, extra)
	if err != nil {
		return nil, err
	}
	logger, closer, err := logging.New(logging.Options{
		Level:           cfg.Log.Level,
		Output:          cmd.ErrOrStderr(),
		Prefix:          "notescheck",
		TimeFormat:      time.Kitchen,
		ReportTimestamp: true,
		File:            cfg.Log.File,
		MaxSizeMB:       cfg.Log.MaxSizeMB,
		MaxBackups:      cfg.Log.MaxBackups,
		MaxAgeDays:      cfg.Log.MaxAgeDays,
	})
	if err != nil {
		return nil, fmt.Errorf("opening log: %w", err)
	}

	e := &env{cfg: cfg, logger: logger, closer: closer, out: cmd.OutOrStdout()}
	if output.IsJSON() {
		e.printer = output.Discard()
	} else {
		e.printer = output.NewPrinter(e.out)
	}
	return e, nil
}

func (e *env) Close() {
	if e.closer != nil {
		_ = e.closer.Close()
	}
}

func (e *env) driverOptions() browser.Options {
	b := e.cfg.Browser
	return browser.Options{
		Headless:     b.Headless,
		NoSandbox:    b.NoSandbox,
		WindowWidth:  b.WindowWidth,
		WindowHeight: b.WindowHeight,
		ExecPath:     b.ExecPath,
		Logf:         e.logger.Debugf,
	}
}

func (e *env) driver() (browser.Driver, error) {
	drv, err := newDriver(e.cfg.Browser.Engine, e.driverOptions())
	if err != nil {
		return nil, err
	}
	e.logger.Debug("browser driver ready", "engine", drv.Name(), "headless", e.cfg.Browser.Headless)
	return drv, nil
}

// historyPath returns the run history database, or "" when history is off.
func historyPath(cfg config.Config) string {
	if !cfg.History.Enabled {
		return ""
	}
	if cfg.History.DatabasePath != "" {
		return cfg.History.DatabasePath
	}
	dir := config.UserDir()
	if dir == "" {
		return ""
	}
	return filepath.Join(dir, "history.db")
}

// finish emits the JSON report and records the run in history and metrics.
// Recording problems are logged, never fatal.
func (e *env) finish(ctx context.Context, rep *output.Report) error {
	if output.IsJSON() {
		if err := output.WriteJSON(e.out, rep, true); err != nil {
			return fmt.Errorf("writing report: %w", err)
		}
	}

	if path := historyPath(e.cfg); path != "" {
		if err := recordHistory(ctx, path, rep); err != nil {
			e.logger.Warn("run not recorded", "db", path, "error", err)
		} else {
			e.logger.Debug("run recorded", "db", path, "run", rep.RunID)
		}
	}

	mc := metrics.Config{
		Textfile:       e.cfg.Metrics.Textfile,
		PushgatewayURL: e.cfg.Metrics.PushgatewayURL,
		Job:            e.cfg.Metrics.Job,
		Timeout:        time.Duration(e.cfg.Metrics.TimeoutSecs) * time.Second,
	}
	if mc.Enabled() {
		exp, err := metrics.New(mc, e.logger)
		if err != nil {
			e.logger.Warn("metrics disabled", "error", err)
			return nil
		}
		exp.Observe(rep)
		if err := exp.Export(context.WithoutCancel(ctx)); err != nil {
			e.logger.Warn("metrics export failed", "error", err)
		}
	}
	return nil
}

func recordHistory(ctx context.Context, path string, rep *output.Report) error {
	db, err := history.Open(path)
	if err != nil {
		return err
	}
	defer db.Close()
	return db.Record(context.WithoutCancel(ctx), rep)
}

func exitFor(code int) error {
	if code == 0 {
		return nil
	}
	return &ExitError{Code: code}
}
