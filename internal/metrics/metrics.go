// Package metrics exports suite run outcomes in the Prometheus format, either
// as a node_exporter textfile or by pushing to a Pushgateway.
package metrics

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"

	"github.com/Jython1415/mathnasium-session-notes/internal/logging"
	"github.com/Jython1415/mathnasium-session-notes/internal/output"
)

const namespace = "notescheck"

// Config controls where metrics go. Empty Textfile and PushgatewayURL
// disable the respective export.
type Config struct {
	Textfile       string
	PushgatewayURL string
	Job            string
	Timeout        time.Duration
}

// Enabled reports whether any export is configured.
func (c Config) Enabled() bool {
	return c.Textfile != "" || c.PushgatewayURL != ""
}

// Exporter holds a private registry with the run gauges.
type Exporter struct {
	config   Config
	logger   *log.Logger
	registry *prometheus.Registry

	runSuccess    *prometheus.GaugeVec
	runDuration   *prometheus.GaugeVec
	runTimestamp  *prometheus.GaugeVec
	checkSuccess  *prometheus.GaugeVec
	checkDuration *prometheus.GaugeVec
	failures      *prometheus.CounterVec
	oracleCases   *prometheus.GaugeVec
}

// New creates an Exporter. A nil logger discards log output.
func New(cfg Config, logger *log.Logger) (*Exporter, error) {
	if cfg.Job == "" {
		cfg.Job = namespace
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if logger == nil {
		logger = logging.Discard()
	}

	e := &Exporter{
		config:   cfg,
		logger:   logger,
		registry: prometheus.NewRegistry(),
		runSuccess: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "run_success",
			Help:      "1 if the last run of the suite passed, 0 otherwise",
		}, []string{"suite"}),
		runDuration: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Wall time of the last run of the suite",
		}, []string{"suite"}),
		runTimestamp: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "run_last_timestamp_seconds",
			Help:      "Unix time the last run of the suite finished",
		}, []string{"suite"}),
		checkSuccess: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "check_success",
			Help:      "1 if the check passed in the last run, 0 otherwise",
		}, []string{"suite", "check"}),
		checkDuration: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "check_duration_seconds",
			Help:      "Duration of the check in the last run",
		}, []string{"suite", "check"}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "failures_total",
			Help:      "Failed checks by failure kind",
		}, []string{"suite", "kind"}),
		oracleCases: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "oracle_cases",
			Help:      "Case Oracle verdicts of the last validated run",
		}, []string{"result"}),
	}

	collectors := []prometheus.Collector{
		e.runSuccess, e.runDuration, e.runTimestamp,
		e.checkSuccess, e.checkDuration, e.failures, e.oracleCases,
	}
	for _, c := range collectors {
		if err := e.registry.Register(c); err != nil {
			return nil, fmt.Errorf("registering metric: %w", err)
		}
	}
	return e, nil
}

// Registry returns the exporter's registry.
func (e *Exporter) Registry() *prometheus.Registry {
	return e.registry
}

// Observe records rep.
func (e *Exporter) Observe(rep *output.Report) {
	if rep == nil {
		return
	}
	suite := sanitizeLabel(rep.Suite)
	e.runSuccess.WithLabelValues(suite).Set(boolFloat(rep.Passed))
	e.runDuration.WithLabelValues(suite).Set(rep.Duration().Seconds())
	e.runTimestamp.WithLabelValues(suite).Set(float64(rep.FinishedAt.Unix()))

	for _, c := range rep.Checks {
		if c.Skipped {
			continue
		}
		name := sanitizeLabel(c.Name)
		e.checkSuccess.WithLabelValues(suite, name).Set(boolFloat(c.Passed))
		e.checkDuration.WithLabelValues(suite, name).Set(c.DurationMS / 1000)
		if !c.Passed {
			kind := c.Kind
			if kind == "" {
				kind = "internal"
			}
			e.failures.WithLabelValues(suite, sanitizeLabel(kind)).Inc()
		}
	}

	if v := rep.Validation; v != nil && !v.Skipped {
		e.oracleCases.WithLabelValues("passed").Set(float64(v.Total - v.Failed))
		e.oracleCases.WithLabelValues("failed").Set(float64(v.Failed))
		e.oracleCases.WithLabelValues("missing").Set(float64(v.Missing))
		e.oracleCases.WithLabelValues("unjudged").Set(float64(v.Unjudged))
	}
}

// Export writes the textfile and pushes, whichever are configured. Push
// errors are logged and returned; the textfile is still written.
func (e *Exporter) Export(ctx context.Context) error {
	var errs []string
	if e.config.Textfile != "" {
		if err := e.WriteTextfile(e.config.Textfile); err != nil {
			errs = append(errs, err.Error())
		}
	}
	if e.config.PushgatewayURL != "" {
		if err := e.Push(ctx); err != nil {
			errs = append(errs, err.Error())
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("exporting metrics: %s", strings.Join(errs, "; "))
	}
	return nil
}

// WriteTextfile writes the registry in the text exposition format.
func (e *Exporter) WriteTextfile(path string) error {
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating metrics directory: %w", err)
		}
	}
	if err := prometheus.WriteToTextfile(path, e.registry); err != nil {
		return fmt.Errorf("writing metrics textfile: %w", err)
	}
	e.logger.Debug("metrics written", "path", path)
	return nil
}

// Push sends the registry to the configured Pushgateway.
func (e *Exporter) Push(ctx context.Context) error {
	if e.config.PushgatewayURL == "" {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	instance, err := os.Hostname()
	if err != nil {
		instance = "unknown"
	}

	pushCtx, cancel := context.WithTimeout(ctx, e.config.Timeout)
	defer cancel()

	pusher := push.New(e.config.PushgatewayURL, e.config.Job).
		Gatherer(e.registry).
		Grouping("instance", sanitizeLabel(instance))
	if err := pusher.PushContext(pushCtx); err != nil {
		e.logger.Error("metrics push failed", "url", maskURL(e.config.PushgatewayURL), "job", e.config.Job, "err", err)
		return fmt.Errorf("pushing metrics: %w", err)
	}
	e.logger.Info("metrics pushed", "url", maskURL(e.config.PushgatewayURL), "job", e.config.Job)
	return nil
}

const maxLabelLength = 128

// sanitizeLabel replaces control characters and truncates to maxLabelLength runes.
func sanitizeLabel(value string) string {
	clean := strings.Map(func(r rune) rune {
		if r < 0x20 {
			return '_'
		}
		return r
	}, value)
	runes := []rune(clean)
	if len(runes) > maxLabelLength {
		return string(runes[:maxLabelLength])
	}
	return clean
}

// maskURL hides credentials embedded in a URL.
func maskURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.User == nil {
		return raw
	}
	u.User = url.User("***")
	return u.String()
}

func boolFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
