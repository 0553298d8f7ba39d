// Package measure collects wall-clock timings for job instances and their
// steps during a run.
package measure

import (
	"sync"
	"time"
)

// Measure aggregates the metrics of one run.
type Measure struct {
	mu   sync.Mutex
	jobs map[string]*Metric
}

// New creates an empty measure.
func New() *Measure {
	return &Measure{
		jobs: make(map[string]*Metric),
	}
}

// AddJob registers a metric for a job instance and returns it.
func (m *Measure) AddJob(name string) *Metric {
	m.mu.Lock()
	defer m.mu.Unlock()

	mt := &Metric{
		mu:    &sync.Mutex{},
		steps: make(map[string]time.Duration),
	}
	m.jobs[name] = mt

	return mt
}

// Job returns the metric of a job instance, or nil when absent.
func (m *Measure) Job(name string) *Metric {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.jobs[name]
}

// AllJobs returns every recorded job metric.
func (m *Measure) AllJobs() map[string]*Metric {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make(map[string]*Metric, len(m.jobs))
	for name, mt := range m.jobs {
		out[name] = mt
	}

	return out
}

// Metric holds the timings of one job instance.
type Metric struct {
	mu      *sync.Mutex
	steps   map[string]time.Duration
	elapsed time.Duration
	total   int64
	stepSum time.Duration
}

// AddStep records the duration of one step.
func (mt *Metric) AddStep(name string, elapsed time.Duration) {
	mt.mu.Lock()
	defer mt.mu.Unlock()
	mt.steps[name] = elapsed
	mt.total++
	mt.stepSum += elapsed
}

// SetElapsed records the total duration of the job instance.
func (mt *Metric) SetElapsed(elapsed time.Duration) {
	mt.mu.Lock()
	defer mt.mu.Unlock()
	mt.elapsed = elapsed
}

// Elapsed returns the total duration of the job instance.
func (mt *Metric) Elapsed() time.Duration {
	mt.mu.Lock()
	defer mt.mu.Unlock()

	return mt.elapsed
}

// Steps returns the recorded step durations.
func (mt *Metric) Steps() map[string]time.Duration {
	mt.mu.Lock()
	defer mt.mu.Unlock()

	out := make(map[string]time.Duration, len(mt.steps))
	for name, d := range mt.steps {
		out[name] = d
	}

	return out
}

// AvgStep returns the rounded mean step duration.
func (mt *Metric) AvgStep() time.Duration {
	mt.mu.Lock()
	defer mt.mu.Unlock()
	if mt.total == 0 {
		return time.Duration(0)
	}

	return round(time.Duration(float64(mt.stepSum) / float64(mt.total)))
}

func round(d time.Duration) time.Duration {
	switch {
	case d > time.Second:
		d = d.Round(time.Second)
	case d > time.Millisecond:
		d = d.Round(time.Millisecond)
	case d > time.Microsecond:
		d = d.Round(time.Microsecond)
	}

	return d
}
