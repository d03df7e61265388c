// Package metrics exports acquisition statistics and the latest temperatures
// in Prometheus format.
package metrics

import (
	"context"
	"net/http"
	"strconv"
	"sync"

	"github.com/itohio/tempgraph/pkg/session"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Fault kinds.
const (
	FaultNoData     = "no_data"
	FaultWrongCount = "wrong_count"
	FaultWrongOrder = "wrong_order"
)

// Recorder keeps its collectors on a private registry so several runs in one
// process (and tests) do not collide.
type Recorder struct {
	registry *prometheus.Registry

	sensors     prometheus.Gauge
	remaining   prometheus.Gauge
	lastSuccess prometheus.Gauge
	cycles      *prometheus.CounterVec
	faults      *prometheus.CounterVec
	temperature *prometheus.GaugeVec
	duration    prometheus.Histogram

	mu   sync.Mutex
	last session.Stats
}

var _ session.Recorder = (*Recorder)(nil)

func New() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		sensors: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "tempgraph_sensors",
			Help: "Sensors in the established baseline",
		}),
		remaining: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "tempgraph_remaining_measurements",
			Help: "Measurements left in the run",
		}),
		lastSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "tempgraph_last_success_timestamp_seconds",
			Help: "Scheduled time of the last successful measurement",
		}),
		cycles: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tempgraph_cycles_total",
				Help: "Measurement cycles by result",
			},
			[]string{"result"},
		),
		faults: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tempgraph_faults_total",
				Help: "Acquisition faults by kind",
			},
			[]string{"kind"},
		),
		temperature: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "tempgraph_temperature_celsius",
				Help: "Latest temperature per sensor",
			},
			[]string{"device_id", "description"},
		),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "tempgraph_cycle_lag_seconds",
			Help:    "Delay between the scheduled and the completed measurement",
			Buckets: []float64{.1, .5, 1, 2.5, 5, 10, 20, 40},
		}),
	}

	r.registry.MustRegister(
		r.sensors,
		r.remaining,
		r.lastSuccess,
		r.cycles,
		r.faults,
		r.temperature,
		r.duration,
	)
	return r
}

// Registry exposes the underlying registry.
func (r *Recorder) Registry() *prometheus.Registry { return r.registry }

// Handler serves /metrics and /health.
func (r *Recorder) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{}))
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})
	return mux
}

func (r *Recorder) Begin(_ context.Context, run session.Run) error {
	r.mu.Lock()
	r.last = session.Stats{}
	r.mu.Unlock()

	r.temperature.Reset()
	r.sensors.Set(float64(len(run.Sensors)))
	r.remaining.Set(float64(run.Params.MaxMeasurements))
	return nil
}

func (r *Recorder) Record(_ context.Context, m session.Measurement) error {
	r.addFaults(m.Stats)
	r.remaining.Set(float64(m.Remaining))
	if !m.Taken.IsZero() && !m.Scheduled.IsZero() {
		r.duration.Observe(m.Taken.Sub(m.Scheduled).Seconds())
	}

	if m.Failed() {
		r.cycles.WithLabelValues("failed").Inc()
		return nil
	}
	r.cycles.WithLabelValues("ok").Inc()
	r.lastSuccess.Set(float64(m.Scheduled.Unix()))
	for _, rd := range m.Readings {
		r.temperature.WithLabelValues(strconv.Itoa(rd.DeviceID), rd.Description).Set(rd.Celsius)
	}
	return nil
}

func (r *Recorder) End(_ context.Context, s session.Summary) error {
	r.addFaults(s.Stats)
	r.remaining.Set(0)
	return nil
}

// addFaults turns cumulative stats snapshots into counter increments.
func (r *Recorder) addFaults(s session.Stats) {
	r.mu.Lock()
	defer r.mu.Unlock()

	add := func(kind string, now, before int) {
		if now > before {
			r.faults.WithLabelValues(kind).Add(float64(now - before))
		}
	}
	add(FaultNoData, s.NoData, r.last.NoData)
	add(FaultWrongCount, s.WrongCount, r.last.WrongCount)
	add(FaultWrongOrder, s.WrongOrder, r.last.WrongOrder)
	r.last = s
}
