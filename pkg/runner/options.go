package runner

import (
	"context"
	"log/slog"

	"github.com/quillci/matrun/pkg/runner/measure"
)

// Recorder persists finished runs. The history store implements it.
type Recorder interface {
	RecordRun(ctx context.Context, res *RunResult) error
}

// Option configures a Runner.
type Option func(r *Runner)

// WithMaxParallel bounds the number of job instances running at once.
func WithMaxParallel(n int) Option {
	return func(r *Runner) {
		if n > 0 {
			r.maxParallel = n
		}
	}
}

// WithFailFast overrides the fail-fast policy of every job strategy.
func WithFailFast(enabled bool) Option {
	return func(r *Runner) {
		r.failFast = &enabled
	}
}

// WithLogger sets the runner logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Runner) {
		r.logger = logger
	}
}

// WithMeasure collects per-job and per-step timing into m.
func WithMeasure(m *measure.Measure) Option {
	return func(r *Runner) {
		r.measure = m
	}
}

// WithDrawer writes an SVG of the job graph, annotated with statuses and
// durations, after the run finishes.
func WithDrawer(svgFileName string) Option {
	return func(r *Runner) {
		r.svgFileName = svgFileName
	}
}

// WithRecorder persists every finished run through rec.
func WithRecorder(rec Recorder) Option {
	return func(r *Runner) {
		r.recorder = rec
	}
}
