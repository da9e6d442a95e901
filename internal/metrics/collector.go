// Package metrics exposes suite run progress as Prometheus metrics.
//
// A Collector owns its registry so separate runs (and tests) never share
// state. It is served over HTTP by Server and can be written once at the
// end of a run as a node_exporter textfile.
package metrics

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/randomizedcoder/go-suite-runner/internal/supervisor"
)

const namespace = "suite_runner"

// CollectorConfig describes the run for the info metric.
type CollectorConfig struct {
	Version string
	Catalog string
	Workers int // 1 = sequential

	// RuntimeMetrics adds the Go and process collectors.
	RuntimeMetrics bool
}

// Collector records group lifecycle events. Its GroupStarted and
// GroupFinished methods make it a scheduler observer.
type Collector struct {
	registry *prometheus.Registry

	info          *prometheus.GaugeVec
	planned       prometheus.Gauge
	notRun        prometheus.Gauge
	active        prometheus.Gauge
	groupsTotal   *prometheus.CounterVec
	duration      prometheus.Histogram
	groupStatus   *prometheus.GaugeVec
	elapsed       prometheus.Gauge
	coverageTotal *prometheus.CounterVec

	startTime time.Time

	mu         sync.Mutex
	activeN    int
	peakActive int
	finished   map[supervisor.Outcome]int
}

// NewCollector creates a collector with its own registry.
func NewCollector(cfg CollectorConfig) *Collector {
	c := &Collector{
		registry:  prometheus.NewRegistry(),
		startTime: time.Now(),
		finished:  make(map[supervisor.Outcome]int),

		info: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "info",
				Help:      "Information about the suite run (value always 1)",
			},
			[]string{"version", "catalog", "mode"},
		),
		planned: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "groups_planned",
			Help:      "Test groups selected to run",
		}),
		notRun: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "groups_not_run",
			Help:      "Test groups skipped because a dependency is missing",
		}),
		active: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_groups",
			Help:      "Test groups currently running",
		}),
		groupsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "groups_total",
				Help:      "Finished test groups by outcome",
			},
			[]string{"outcome"},
		),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "group_duration_seconds",
			Help:      "Wall time of finished test groups",
			Buckets:   []float64{1, 5, 10, 30, 60, 120, 300, 600, 1200},
		}),
		groupStatus: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "group_exit_status",
				Help:      "Exit status of each finished test group",
			},
			[]string{"group"},
		),
		elapsed: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "run_elapsed_seconds",
			Help:      "Seconds since the run started",
		}),
		coverageTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "coverage_merges_total",
				Help:      "Coverage merges by result",
			},
			[]string{"result"},
		),
	}

	c.registry.MustRegister(
		c.info,
		c.planned,
		c.notRun,
		c.active,
		c.groupsTotal,
		c.duration,
		c.groupStatus,
		c.elapsed,
		c.coverageTotal,
	)
	if cfg.RuntimeMetrics {
		c.registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}

	mode := "sequential"
	if cfg.Workers != 1 {
		mode = "concurrent/" + strconv.Itoa(cfg.Workers)
	}
	c.info.WithLabelValues(cfg.Version, cfg.Catalog, mode).Set(1)

	// Initialise every outcome so rate() works from the first scrape.
	for _, o := range supervisor.Outcomes {
		c.groupsTotal.WithLabelValues(o.String())
	}

	return c
}

// Registry returns the collector's registry for serving or export.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// SetPlanned records how many groups will run and how many are skipped.
func (c *Collector) SetPlanned(toRun, notRun int) {
	c.planned.Set(float64(toRun))
	c.notRun.Set(float64(notRun))
}

// GroupStarted records a group entering the running state.
func (c *Collector) GroupStarted(section string) {
	c.mu.Lock()
	c.activeN++
	c.peakActive = max(c.peakActive, c.activeN)
	n := c.activeN
	c.mu.Unlock()

	c.active.Set(float64(n))
	c.touch()
}

// GroupFinished records a finished group.
func (c *Collector) GroupFinished(res supervisor.Result) {
	c.mu.Lock()
	if c.activeN > 0 {
		c.activeN--
	}
	n := c.activeN
	c.finished[res.Outcome]++
	c.mu.Unlock()

	c.active.Set(float64(n))
	c.groupsTotal.WithLabelValues(res.Outcome.String()).Inc()
	c.duration.Observe(res.Duration.Seconds())
	c.groupStatus.WithLabelValues(res.Section).Set(float64(res.Status))
	c.touch()
}

// RecordCoverage records a coverage merge; err nil means success.
func (c *Collector) RecordCoverage(err error) {
	result := "success"
	if err != nil {
		result = "error"
	}
	c.coverageTotal.WithLabelValues(result).Inc()
}

// PeakActive returns the highest number of concurrently running groups.
func (c *Collector) PeakActive() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.peakActive
}

// Finished returns how many groups finished with outcome o.
func (c *Collector) Finished(o supervisor.Outcome) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.finished[o]
}

func (c *Collector) touch() {
	c.elapsed.Set(time.Since(c.startTime).Seconds())
}
