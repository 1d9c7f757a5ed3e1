// Package metrics exports nobreak readings and polling health to Prometheus.
package metrics

import (
	"net/http"

	"github.com/jamesprial/nobreak-mcp/internal/coordinator"
	"github.com/jamesprial/nobreak-mcp/internal/nobreak"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "nobreak"

// readingGauges maps snapshot keys to exported gauge names. powerSource is
// exported separately as on_battery. A reading the device did not report has
// no series.
var readingGauges = []struct {
	key  string
	name string
	help string
}{
	{nobreak.KeyVoltageIn, "voltage_in_volts", "Input (grid) voltage."},
	{nobreak.KeyVoltageOut, "voltage_out_volts", "Output voltage delivered to the load."},
	{nobreak.KeyBatteryVoltage, "battery_voltage_volts", "Battery voltage."},
	{nobreak.KeyLoadPercentage, "load_percent", "Output load as a percentage of capacity."},
	{nobreak.KeyFrequencyHz, "frequency_hertz", "Line frequency."},
	{nobreak.KeyTemperatureC, "temperature_celsius", "Internal temperature."},
	{nobreak.KeyBatteryHealthy, "battery_healthy", "1 if the battery reports healthy."},
	{nobreak.KeyBatteryPercentage, "battery_percent", "Estimated battery charge."},
	{nobreak.KeyBeepOn, "beep_on", "1 if the audible alarm is enabled."},
	{nobreak.KeyTestExecuting, "test_executing", "1 while a battery self-test runs."},
}

var _ coordinator.Observer = (*Exporter)(nil)

// Exporter is a coordinator observer that mirrors every update into its own
// Prometheus registry.
type Exporter struct {
	registry *prometheus.Registry

	readings    map[string]*prometheus.GaugeVec
	onBattery   prometheus.Gauge
	up          prometheus.Gauge
	polls       *prometheus.CounterVec
	duration    prometheus.Histogram
	lastSuccess prometheus.Gauge
}

// NewExporter registers every collector on a fresh registry.
func NewExporter() *Exporter {
	e := &Exporter{
		registry: prometheus.NewRegistry(),
		readings: make(map[string]*prometheus.GaugeVec, len(readingGauges)),
		onBattery: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "on_battery",
			Help:      "1 if the load is being fed from the battery.",
		}),
		up: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "up",
			Help:      "1 if the last poll succeeded.",
		}),
		polls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "polls_total",
			Help:      "Status polls by result.",
		}, []string{"result"}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "poll_duration_seconds",
			Help:      "Duration of status polls.",
			Buckets:   []float64{.05, .1, .25, .5, 1, 2, 5},
		}),
		lastSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_success_timestamp_seconds",
			Help:      "Unix time of the last successful poll.",
		}),
	}

	for _, rg := range readingGauges {
		g := prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      rg.name,
			Help:      rg.help,
		}, nil)
		e.readings[rg.key] = g
		e.registry.MustRegister(g)
	}
	e.registry.MustRegister(e.onBattery, e.up, e.polls, e.duration, e.lastSuccess)

	// Both results are present from the first scrape.
	e.polls.WithLabelValues("success")
	e.polls.WithLabelValues("failure")
	return e
}

// AddCounterFunc exports f as the counter nobreak_<name>. f must be
// monotonic and safe for concurrent use.
func (e *Exporter) AddCounterFunc(name, help string, f func() float64) {
	e.registry.MustRegister(prometheus.NewCounterFunc(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      name,
		Help:      help,
	}, f))
}

// AddGaugeFunc exports f as the gauge nobreak_<name>.
func (e *Exporter) AddGaugeFunc(name, help string, f func() float64) {
	e.registry.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      name,
		Help:      help,
	}, f))
}

// Handler serves the exposition format.
func (e *Exporter) Handler() http.Handler {
	return promhttp.HandlerFor(e.registry, promhttp.HandlerOpts{Registry: e.registry})
}

// OnUpdate implements coordinator.Observer. Reading gauges keep their last
// value across failed polls; up drops to 0.
func (e *Exporter) OnUpdate(u coordinator.Update) {
	e.duration.Observe(u.Duration.Seconds())

	if !u.OK() {
		e.polls.WithLabelValues("failure").Inc()
		e.up.Set(0)
		return
	}

	e.polls.WithLabelValues("success").Inc()
	e.up.Set(1)
	e.lastSuccess.Set(float64(u.At.UnixNano()) / 1e9)
	if u.Status.Has(nobreak.KeyPowerSource) {
		e.onBattery.Set(boolFloat(u.Status.OnBattery()))
	}

	for key, g := range e.readings {
		v, ok := u.Status.Value(key)
		if !ok {
			g.Reset()
			continue
		}
		switch x := v.(type) {
		case float64:
			g.WithLabelValues().Set(x)
		case bool:
			g.WithLabelValues().Set(boolFloat(x))
		}
	}
}

func boolFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
