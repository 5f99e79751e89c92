// Package metrics exports run and stage metrics in Prometheus format.
package metrics

import (
	"fmt"

	prom "github.com/prometheus/client_golang/prometheus"

	"github.com/lucasnoah/rootcause/internal/pipeline"
)

const namespace = "rootcause"

// Result labels for stage attempts.
const (
	ResultSuccess = "success"
	ResultFailed  = "failed"
)

// Recorder is a pipeline.Observer backed by Prometheus collectors. A nil
// *Recorder is a no-op.
type Recorder struct {
	reg           *prom.Registry
	stageDuration *prom.HistogramVec
	stageResults  *prom.CounterVec
	retries       *prom.CounterVec
	runDuration   prom.Histogram
	runOutcomes   *prom.CounterVec
	runsStarted   prom.Counter
}

var _ pipeline.Observer = (*Recorder)(nil)

// NewRecorder registers the collectors on reg. A nil reg gets a fresh
// registry.
func NewRecorder(reg *prom.Registry) *Recorder {
	if reg == nil {
		reg = prom.NewRegistry()
	}
	r := &Recorder{
		reg: reg,
		stageDuration: prom.NewHistogramVec(prom.HistogramOpts{
			Namespace: namespace,
			Name:      "stage_duration_seconds",
			Help:      "Duration of individual stage attempts",
			Buckets:   prom.DefBuckets,
		}, []string{"stage"}),
		stageResults: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "stage_results_total",
			Help:      "Stage attempt counts by result",
		}, []string{"stage", "result"}),
		retries: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "stage_retries_total",
			Help:      "Stage attempts after the first",
		}, []string{"stage"}),
		runDuration: prom.NewHistogram(prom.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Total analysis run duration",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600},
		}),
		runOutcomes: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "run_outcomes_total",
			Help:      "Analysis runs by finish reason",
		}, []string{"outcome"}),
		runsStarted: prom.NewCounter(prom.CounterOpts{
			Namespace: namespace,
			Name:      "runs_started_total",
			Help:      "Analysis runs started",
		}),
	}
	reg.MustRegister(r.stageDuration, r.stageResults, r.retries, r.runDuration, r.runOutcomes, r.runsStarted)
	return r
}

// Registry returns the registry the collectors live on.
func (r *Recorder) Registry() *prom.Registry {
	if r == nil {
		return nil
	}
	return r.reg
}

func (r *Recorder) RunStarted(*pipeline.State) {
	if r == nil {
		return
	}
	r.runsStarted.Inc()
}

func (r *Recorder) StageFinished(ev pipeline.StageEvent) {
	if r == nil {
		return
	}
	stage := string(ev.Stage)
	r.stageDuration.WithLabelValues(stage).Observe(ev.Duration.Seconds())
	result := ResultSuccess
	if ev.Err != nil {
		result = ResultFailed
	}
	r.stageResults.WithLabelValues(stage, result).Inc()
	if ev.Attempt > 1 {
		r.retries.WithLabelValues(stage).Inc()
	}
}

func (r *Recorder) RunFinished(st *pipeline.State) {
	if r == nil || st == nil {
		return
	}
	outcome := string(st.FinishReason)
	if outcome == "" {
		outcome = "unknown"
	}
	r.runOutcomes.WithLabelValues(outcome).Inc()
	if st.CompletedAt != nil {
		r.runDuration.Observe(st.CompletedAt.Sub(st.StartedAt).Seconds())
	}
}

// WriteTextfile writes the current metrics to path in the node_exporter
// textfile format.
func (r *Recorder) WriteTextfile(path string) error {
	if r == nil {
		return nil
	}
	if err := prom.WriteToTextfile(path, r.reg); err != nil {
		return fmt.Errorf("write metrics to %s: %w", path, err)
	}
	return nil
}
