package metrics

import (
	"net/http"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all frame-hub metrics. Hot paths bump plain atomics;
// Prometheus samples them lazily through GaugeFunc collectors.
type Metrics struct {
	// Frame path
	FramesPublished   atomic.Uint64
	FramesRepublished atomic.Uint64
	FrameReads        atomic.Uint64
	TornReadRetries   atomic.Uint64
	StaleReads        atomic.Uint64
	NoDataReads       atomic.Uint64
	WarmupDrops       atomic.Uint64

	// Detection path
	DetectionWrites atomic.Uint64

	// Selector
	CameraSwitches atomic.Uint64
	ProbeCycles    atomic.Uint64
	StallEvents    atomic.Uint64
	ActiveCamera   atomic.Uint64 // 0=day, 1=night
	SelectorState  atomic.Uint64 // 0=probing, 1=day_active, 2=night_active

	registry *prometheus.Registry
}

// New creates a Metrics instance with its own Prometheus registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
	}
	m.registerPrometheusMetrics()
	return m
}

func (m *Metrics) registerPrometheusMetrics() {
	gauges := []struct {
		name string
		help string
		load func() uint64
	}{
		{"framehub_frames_published_total", "Frames published into ring buffers", m.FramesPublished.Load},
		{"framehub_frames_republished_total", "Frames republished into the active slot", m.FramesRepublished.Load},
		{"framehub_frame_reads_total", "read_latest calls across all rings", m.FrameReads.Load},
		{"framehub_torn_read_retries_total", "Snapshot retries due to concurrent overwrite", m.TornReadRetries.Load},
		{"framehub_stale_reads_total", "Reads that hit the retry bound and returned stale", m.StaleReads.Load},
		{"framehub_no_data_reads_total", "Reads against a never-written segment", m.NoDataReads.Load},
		{"framehub_warmup_drops_total", "Frames dropped during post-switch warmup", m.WarmupDrops.Load},
		{"framehub_detection_writes_total", "Detection record writes", m.DetectionWrites.Load},
		{"framehub_camera_switches_total", "Camera switch transitions", m.CameraSwitches.Load},
		{"framehub_probe_cycles_total", "Inactive-camera probe cycles", m.ProbeCycles.Load},
		{"framehub_stall_events_total", "Active ring stall detections", m.StallEvents.Load},
		{"framehub_active_camera", "Currently active camera (0=day, 1=night)", m.ActiveCamera.Load},
		{"framehub_selector_state", "Selector state (0=probing, 1=day, 2=night)", m.SelectorState.Load},
	}
	for _, g := range gauges {
		load := g.load
		m.registry.MustRegister(prometheus.NewGaugeFunc(
			prometheus.GaugeOpts{Name: g.name, Help: g.help},
			func() float64 { return float64(load()) },
		))
	}
}

// Handler returns the Prometheus HTTP handler; the daemon mounts it on its
// own mux.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
