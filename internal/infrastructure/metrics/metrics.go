package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/nerrad567/tracker-core/internal/tracking"
)

const namespace = "tracker"

// frameBuckets covers sub-millisecond reconciles up to a blown frame budget.
var frameBuckets = []float64{0.0001, 0.00025, 0.0005, 0.001, 0.0025, 0.005, 0.011, 0.025}

// Metrics holds the Prometheus collectors for the tracking loop.
// It satisfies tracking.FrameObserver.
type Metrics struct {
	registry *prometheus.Registry

	frames          prometheus.Counter
	snapshotErrors  prometheus.Counter
	rejected        prometheus.Counter
	moved           prometheus.Counter
	frameDuration   prometheus.Histogram
	runtimeUp       prometheus.Gauge
	devicesSeen     *prometheus.GaugeVec
	slotsBound      *prometheus.GaugeVec
	devicesDropped  *prometheus.CounterVec
	cameraExtracted prometheus.Gauge
}

// New registers all collectors on a fresh registry, together with the Go
// runtime and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		frames: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_total",
			Help:      "Tracking frames processed.",
		}),
		snapshotErrors: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "snapshot_errors_total",
			Help:      "Frames where the runtime was connected but no snapshot was acquired.",
		}),
		rejected: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "devices_rejected_total",
			Help:      "Device entries rejected by snapshot validation.",
		}),
		moved: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "moved_events_total",
			Help:      "Moved notifications emitted.",
		}),
		frameDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "frame_duration_seconds",
			Help:      "Time spent in one tracking update.",
			Buckets:   frameBuckets,
		}),
		runtimeUp: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "runtime_connected",
			Help:      "1 when the tracking runtime is connected.",
		}),
		devicesSeen: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "devices_seen",
			Help:      "Devices reported in the last frame by class.",
		}, []string{"class"}),
		slotsBound: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "slots_bound",
			Help:      "Bound slots after the last frame by class.",
		}, []string{"class"}),
		devicesDropped: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "devices_dropped_total",
			Help:      "Devices left unbound because their class was full.",
		}, []string{"class"}),
		cameraExtracted: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "camera_controller_present",
			Help:      "1 when the camera controller was found in the last frame.",
		}),
	}
}

// ObserveFrame records one frame's counters.
func (m *Metrics) ObserveFrame(stats tracking.FrameStats, _ []tracking.SlotHandle) {
	m.frames.Inc()
	m.frameDuration.Observe(stats.Duration.Seconds())
	m.runtimeUp.Set(boolGauge(stats.Connected))
	m.cameraExtracted.Set(boolGauge(stats.CameraControllerClass != nil))

	if stats.SnapshotError != "" {
		m.snapshotErrors.Inc()
	}
	m.rejected.Add(float64(stats.Rejected))
	m.moved.Add(float64(len(stats.Moved)))

	for _, class := range tracking.AllClasses {
		label := class.String()
		m.devicesSeen.WithLabelValues(label).Set(float64(stats.Seen[class]))
		m.slotsBound.WithLabelValues(label).Set(float64(stats.Bound[class]))
		if n := stats.Dropped[class]; n > 0 {
			m.devicesDropped.WithLabelValues(label).Add(float64(n))
		}
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func boolGauge(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
