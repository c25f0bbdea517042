package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/Jython1415/mathnasium-session-notes/internal/output"
)

// Run is one stored suite run.
type Run struct {
	ID         string    `json:"id"`
	Suite      string    `json:"suite"`
	Target     string    `json:"target,omitempty"`
	Engine     string    `json:"engine,omitempty"`
	Passed     bool      `json:"passed"`
	Total      int       `json:"total"`
	Failed     int       `json:"failed"`
	Error      string    `json:"error,omitempty"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`

	report string
}

// Duration returns the wall time of the run.
func (r *Run) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

// Report decodes the full stored report.
func (r *Run) Report() (*output.Report, error) {
	var rep output.Report
	if err := json.Unmarshal([]byte(r.report), &rep); err != nil {
		return nil, fmt.Errorf("decoding stored report %s: %w", r.ID, err)
	}
	return &rep, nil
}

// NewRunID returns a fresh run identifier.
func NewRunID() string {
	return uuid.NewString()
}

// Record stores rep and its checks. A report without a RunID is assigned one.
func (db *DB) Record(ctx context.Context, rep *output.Report) error {
	if rep == nil {
		return errors.New("nil report")
	}
	if rep.RunID == "" {
		rep.RunID = NewRunID()
	}
	raw, err := json.Marshal(rep)
	if err != nil {
		return fmt.Errorf("encoding report: %w", err)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO runs (id, suite, target, engine, passed, total, failed, error, started_at, finished_at, report)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, rep.RunID, rep.Suite, rep.Target, rep.Engine, boolInt(rep.Passed), rep.Total, rep.Failed, rep.Error,
		rep.StartedAt.UTC().Format(timeLayout), rep.FinishedAt.UTC().Format(timeLayout), string(raw))
	if err != nil {
		return fmt.Errorf("inserting run: %w", err)
	}

	for _, c := range rep.Checks {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO checks (run_id, name, passed, skipped, kind, message, duration_ms)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`, rep.RunID, c.Name, boolInt(c.Passed), boolInt(c.Skipped), c.Kind, c.Message, c.DurationMS)
		if err != nil {
			return fmt.Errorf("inserting check %s: %w", c.Name, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing run: %w", err)
	}
	return nil
}

// timeLayout is fixed-width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

const runColumns = `id, suite, target, engine, passed, total, failed, error, started_at, finished_at, report`

// Get returns the run with id. A unique id prefix is accepted.
func (db *DB) Get(ctx context.Context, id string) (*Run, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, ErrRunNotFound
	}
	rows, err := db.QueryContext(ctx, `SELECT `+runColumns+` FROM runs WHERE id LIKE ? || '%' ORDER BY started_at DESC LIMIT 2`, id)
	if err != nil {
		return nil, fmt.Errorf("querying run: %w", err)
	}
	runs, err := scanRuns(rows)
	if err != nil {
		return nil, err
	}
	switch len(runs) {
	case 0:
		return nil, ErrRunNotFound
	case 1:
		return runs[0], nil
	default:
		for _, r := range runs {
			if r.ID == id {
				return r, nil
			}
		}
		return nil, fmt.Errorf("run id prefix %q is ambiguous", id)
	}
}

// ListOptions filter List.
type ListOptions struct {
	Suite      string
	FailedOnly bool
	Limit      int
}

// List returns runs, newest first.
func (db *DB) List(ctx context.Context, opts ListOptions) ([]*Run, error) {
	var where []string
	var args []any
	if opts.Suite != "" {
		where = append(where, "suite = ?")
		args = append(args, opts.Suite)
	}
	if opts.FailedOnly {
		where = append(where, "passed = 0")
	}
	q := `SELECT ` + runColumns + ` FROM runs`
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY started_at DESC"
	if opts.Limit > 0 {
		q += " LIMIT ?"
		args = append(args, opts.Limit)
	}

	rows, err := db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}
	return scanRuns(rows)
}

// CheckStats aggregates one check's outcomes across stored runs.
type CheckStats struct {
	Name        string  `json:"name"`
	Runs        int     `json:"runs"`
	Failures    int     `json:"failures"`
	LastKind    string  `json:"last_failure_kind,omitempty"`
	AvgMS       float64 `json:"avg_duration_ms"`
	FailureRate float64 `json:"failure_rate"`
}

// Stats aggregates check outcomes, most failures first. An empty suite
// covers every suite.
func (db *DB) Stats(ctx context.Context, suite string) ([]CheckStats, error) {
	q := `
		SELECT c.name,
		       COUNT(*),
		       SUM(CASE WHEN c.passed = 0 AND c.skipped = 0 THEN 1 ELSE 0 END),
		       AVG(c.duration_ms),
		       COALESCE((SELECT c2.kind FROM checks c2 JOIN runs r2 ON r2.id = c2.run_id
		                 WHERE c2.name = c.name AND c2.passed = 0 AND c2.skipped = 0
		                 ORDER BY r2.started_at DESC LIMIT 1), '')
		FROM checks c JOIN runs r ON r.id = c.run_id
		WHERE (? = '' OR r.suite = ?)
		GROUP BY c.name
		ORDER BY 3 DESC, c.name ASC
	`
	rows, err := db.QueryContext(ctx, q, suite, suite)
	if err != nil {
		return nil, fmt.Errorf("aggregating checks: %w", err)
	}
	defer rows.Close()

	var out []CheckStats
	for rows.Next() {
		var s CheckStats
		if err := rows.Scan(&s.Name, &s.Runs, &s.Failures, &s.AvgMS, &s.LastKind); err != nil {
			return nil, fmt.Errorf("scanning check stats: %w", err)
		}
		if s.Runs > 0 {
			s.FailureRate = float64(s.Failures) / float64(s.Runs)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// Prune deletes all but the newest keep runs and returns how many were removed.
func (db *DB) Prune(ctx context.Context, keep int) (int64, error) {
	if keep < 0 {
		return 0, fmt.Errorf("keep must be >= 0, got %d", keep)
	}
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	const stale = `SELECT id FROM runs WHERE id NOT IN (SELECT id FROM runs ORDER BY started_at DESC LIMIT ?)`
	if _, err := tx.ExecContext(ctx, `DELETE FROM checks WHERE run_id IN (`+stale+`)`, keep); err != nil {
		return 0, fmt.Errorf("pruning checks: %w", err)
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM runs WHERE id IN (`+stale+`)`, keep)
	if err != nil {
		return 0, fmt.Errorf("pruning runs: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("committing prune: %w", err)
	}
	return n, nil
}

func scanRuns(rows *sql.Rows) ([]*Run, error) {
	defer rows.Close()
	var runs []*Run
	for rows.Next() {
		var (
			r                 Run
			passed            int
			started, finished string
		)
		if err := rows.Scan(&r.ID, &r.Suite, &r.Target, &r.Engine, &passed, &r.Total, &r.Failed, &r.Error,
			&started, &finished, &r.report); err != nil {
			return nil, fmt.Errorf("scanning run: %w", err)
		}
		r.Passed = passed != 0
		var err error
		if r.StartedAt, err = time.Parse(timeLayout, started); err != nil {
			return nil, fmt.Errorf("parsing started_at for %s: %w", r.ID, err)
		}
		if r.FinishedAt, err = time.Parse(timeLayout, finished); err != nil {
			return nil, fmt.Errorf("parsing finished_at for %s: %w", r.ID, err)
		}
		runs = append(runs, &r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating runs: %w", err)
	}
	return runs, nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
