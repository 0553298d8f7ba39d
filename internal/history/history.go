// Package history persists finished runs to a SQLite database.
package history

import (
	"context"
	"database/sql"
	"time"

	"github.com/pkg/errors"
	_ "modernc.org/sqlite"

	"github.com/quillci/matrun/pkg/runner"
	"github.com/quillci/matrun/pkg/workflow"
)

var ErrRunNotFound = errors.New("run not found")

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id         TEXT PRIMARY KEY,
	workflow   TEXT NOT NULL,
	event      TEXT NOT NULL,
	branch     TEXT NOT NULL DEFAULT '',
	status     TEXT NOT NULL,
	started_at TIMESTAMP NOT NULL,
	elapsed_ms INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS jobs (
	run_id     TEXT NOT NULL REFERENCES runs(id),
	instance   TEXT NOT NULL,
	job_key    TEXT NOT NULL,
	status     TEXT NOT NULL,
	elapsed_ms INTEGER NOT NULL,
	PRIMARY KEY (run_id, instance)
);
CREATE TABLE IF NOT EXISTS steps (
	run_id     TEXT NOT NULL,
	instance   TEXT NOT NULL,
	position   INTEGER NOT NULL,
	name       TEXT NOT NULL,
	status     TEXT NOT NULL,
	exit_code  INTEGER NOT NULL,
	elapsed_ms INTEGER NOT NULL,
	PRIMARY KEY (run_id, instance, position)
);
`

// Store records runs in SQLite. It implements runner.Recorder.
type Store struct {
	db *sql.DB
}

// Open opens (and if needed creates) the history database at path. WAL mode
// keeps concurrent readers out of the writer's way.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.Wrapf(err, "unable to open history database %s", path)
	}

	_, err = db.Exec("PRAGMA journal_mode=WAL")
	if err != nil {
		db.Close()

		return nil, errors.Wrap(err, "unable to enable WAL")
	}

	_, err = db.Exec(schema)
	if err != nil {
		db.Close()

		return nil, errors.Wrap(err, "unable to create history schema")
	}

	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// RecordRun stores a finished run with its job and step results.
func (s *Store) RecordRun(ctx context.Context, res *runner.RunResult) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "unable to begin transaction")
	}
	defer tx.Rollback() //nolint:errcheck

	_, err = tx.ExecContext(ctx,
		`INSERT INTO runs (id, workflow, event, branch, status, started_at, elapsed_ms)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		res.ID, res.Workflow, string(res.Event), res.Branch, string(res.Status),
		res.Started.UTC(), res.Elapsed.Milliseconds())
	if err != nil {
		return errors.Wrapf(err, "unable to record run %s", res.ID)
	}

	for _, job := range res.Jobs {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO jobs (run_id, instance, job_key, status, elapsed_ms)
			 VALUES (?, ?, ?, ?, ?)`,
			res.ID, job.ID, job.JobKey, string(job.Status), job.Elapsed.Milliseconds())
		if err != nil {
			return errors.Wrapf(err, "unable to record job %s", job.ID)
		}

		for pos, step := range job.Steps {
			_, err = tx.ExecContext(ctx,
				`INSERT INTO steps (run_id, instance, position, name, status, exit_code, elapsed_ms)
				 VALUES (?, ?, ?, ?, ?, ?, ?)`,
				res.ID, job.ID, pos, step.Name, string(step.Status), step.ExitCode, step.Elapsed.Milliseconds())
			if err != nil {
				return errors.Wrapf(err, "unable to record step %q of %s", step.Name, job.ID)
			}
		}
	}

	return errors.Wrap(tx.Commit(), "unable to commit run record")
}

// RunSummary is one row of the run listing.
type RunSummary struct {
	ID       string
	Workflow string
	Event    string
	Branch   string
	Status   string
	Started  time.Time
	Elapsed  time.Duration
	Jobs     int
}

// ListRuns returns the most recent runs, newest first.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]RunSummary, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT r.id, r.workflow, r.event, r.branch, r.status, r.started_at, r.elapsed_ms,
		        (SELECT COUNT(*) FROM jobs j WHERE j.run_id = r.id)
		 FROM runs r
		 ORDER BY r.started_at DESC
		 LIMIT ?`, limit)
	if err != nil {
		return nil, errors.Wrap(err, "unable to list runs")
	}
	defer rows.Close()

	var out []RunSummary
	for rows.Next() {
		var summary RunSummary
		var elapsedMS int64
		err = rows.Scan(&summary.ID, &summary.Workflow, &summary.Event, &summary.Branch,
			&summary.Status, &summary.Started, &elapsedMS, &summary.Jobs)
		if err != nil {
			return nil, errors.Wrap(err, "unable to scan run row")
		}
		summary.Elapsed = time.Duration(elapsedMS) * time.Millisecond
		out = append(out, summary)
	}

	return out, errors.Wrap(rows.Err(), "unable to iterate runs")
}

// GetRun loads one recorded run with its job results.
func (s *Store) GetRun(ctx context.Context, id string) (*runner.RunResult, error) {
	res := &runner.RunResult{ID: id}
	var elapsedMS int64
	var event, status string

	err := s.db.QueryRowContext(ctx,
		`SELECT workflow, event, branch, status, started_at, elapsed_ms FROM runs WHERE id = ?`, id).
		Scan(&res.Workflow, &event, &res.Branch, &status, &res.Started, &elapsedMS)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errors.Wrap(ErrRunNotFound, id)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "unable to get run %s", id)
	}
	res.Event = workflow.EventKind(event)
	res.Status = runner.Status(status)
	res.Elapsed = time.Duration(elapsedMS) * time.Millisecond

	rows, err := s.db.QueryContext(ctx,
		`SELECT instance, job_key, status, elapsed_ms FROM jobs WHERE run_id = ? ORDER BY instance`, id)
	if err != nil {
		return nil, errors.Wrapf(err, "unable to load jobs of run %s", id)
	}
	defer rows.Close()

	for rows.Next() {
		var job runner.JobResult
		var jobElapsedMS int64
		var jobStatus string
		err = rows.Scan(&job.ID, &job.JobKey, &jobStatus, &jobElapsedMS)
		if err != nil {
			return nil, errors.Wrap(err, "unable to scan job row")
		}
		job.Status = runner.Status(jobStatus)
		job.Elapsed = time.Duration(jobElapsedMS) * time.Millisecond
		res.Jobs = append(res.Jobs, job)
	}

	return res, errors.Wrap(rows.Err(), "unable to iterate jobs")
}
