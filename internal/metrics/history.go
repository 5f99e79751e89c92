package metrics

import (
	prom "github.com/prometheus/client_golang/prometheus"

	"github.com/lucasnoah/rootcause/internal/db"
)

// StatsSource reports aggregate run history.
type StatsSource interface {
	Stats() (*db.Stats, error)
}

// HistoryCollector exposes the run history database as metrics, read at
// scrape time.
type HistoryCollector struct {
	src      StatsSource
	runs     *prom.Desc
	attempts *prom.Desc
	failures *prom.Desc
	avg      *prom.Desc
}

var _ prom.Collector = (*HistoryCollector)(nil)

// NewHistoryCollector returns a collector over src.
func NewHistoryCollector(src StatsSource) *HistoryCollector {
	return &HistoryCollector{
		src: src,
		runs: prom.NewDesc(prom.BuildFQName(namespace, "history", "runs"),
			"Recorded runs by outcome", []string{"outcome"}, nil),
		attempts: prom.NewDesc(prom.BuildFQName(namespace, "history", "stage_attempts_total"),
			"Recorded stage attempts", []string{"stage"}, nil),
		failures: prom.NewDesc(prom.BuildFQName(namespace, "history", "stage_failures_total"),
			"Recorded failed stage attempts", []string{"stage"}, nil),
		avg: prom.NewDesc(prom.BuildFQName(namespace, "history", "stage_avg_duration_seconds"),
			"Mean recorded stage attempt duration", []string{"stage"}, nil),
	}
}

func (c *HistoryCollector) Describe(ch chan<- *prom.Desc) {
	ch <- c.runs
	ch <- c.attempts
	ch <- c.failures
	ch <- c.avg
}

func (c *HistoryCollector) Collect(ch chan<- prom.Metric) {
	st, err := c.src.Stats()
	if err != nil {
		ch <- prom.NewInvalidMetric(c.runs, err)
		return
	}
	for outcome, n := range st.ByOutcome {
		ch <- prom.MustNewConstMetric(c.runs, prom.GaugeValue, float64(n), outcome)
	}
	for _, s := range st.Stages {
		ch <- prom.MustNewConstMetric(c.attempts, prom.CounterValue, float64(s.Attempts), s.Stage)
		ch <- prom.MustNewConstMetric(c.failures, prom.CounterValue, float64(s.Failures), s.Stage)
		ch <- prom.MustNewConstMetric(c.avg, prom.GaugeValue, s.AvgDuration.Seconds(), s.Stage)
	}
}
