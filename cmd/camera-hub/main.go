// camera-hub owns the shared memory segments of the pet camera and runs
// the active-camera selector.
//
// The capture daemon attaches to the per-camera ring segments as their
// writer; the detector daemon writes the detection segment; streaming and
// overlay consumers read the active-frame slot. camera-hub only creates
// the segments, arbitrates which camera is authoritative, and serves
// metrics.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/dj-oyu/rdk-x5_camera-core/internal/config"
	"github.com/dj-oyu/rdk-x5_camera-core/internal/detstore"
	"github.com/dj-oyu/rdk-x5_camera-core/internal/events"
	"github.com/dj-oyu/rdk-x5_camera-core/internal/logger"
	"github.com/dj-oyu/rdk-x5_camera-core/internal/metrics"
	"github.com/dj-oyu/rdk-x5_camera-core/internal/ring"
	"github.com/dj-oyu/rdk-x5_camera-core/internal/selector"
	"github.com/dj-oyu/rdk-x5_camera-core/internal/shm"
	"github.com/dj-oyu/rdk-x5_camera-core/pkg/types"
)

var (
	logLevel     = flag.String("log-level", "", "Log level (debug, info, warn, error, silent); overrides LOG_LEVEL")
	logColor     = flag.Bool("log-color", true, "Enable colored log output")
	unlinkOnExit = flag.Bool("unlink-on-exit", false, "Destroy shared memory segments at shutdown")
)

// Hub holds the segment handles and the selector runtime. Segments are
// explicit handles created here at init and passed down; no package-level
// singletons.
type Hub struct {
	cfg      *config.Config
	segments []*shm.Segment
	readers  [2]*ring.Reader
	store    *detstore.Store
	runtime  *selector.Runtime
	events   *events.Publisher
	metrics  *metrics.Metrics

	stop chan struct{}
	wg   sync.WaitGroup
}

func main() {
	flag.Parse()
	cfg := config.Load()

	levelStr := cfg.LogLevel
	if *logLevel != "" {
		levelStr = *logLevel
	}
	level, err := logger.ParseLevel(levelStr)
	if err != nil {
		log.Fatalf("Invalid log level: %v", err)
	}
	logger.Init(level, os.Stderr, *logColor)

	logger.Info("Main", "camera-hub starting...")
	if cfg.DotenvLoaded {
		logger.Info("Config", "Loaded configuration from .env file")
	}

	hub, err := NewHub(cfg)
	if err != nil {
		log.Fatalf("Failed to create hub: %v", err)
	}
	hub.Start()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info("Main", "Shutting down...")
	hub.Shutdown(*unlinkOnExit)
	logger.Info("Main", "camera-hub stopped")
}

// NewHub creates every segment and wires the selector runtime. Segment
// creation failure is the only fatal condition.
func NewHub(cfg *config.Config) (*Hub, error) {
	hub := &Hub{cfg: cfg, metrics: metrics.New()}

	ringSize := ring.SegmentSize(cfg.RingCapacity, cfg.MaxFrameBytes)
	daySeg, err := shm.Create(cfg.ShmBaseDir, cfg.DayFrameShm, ringSize)
	if err != nil {
		return nil, err
	}
	hub.segments = append(hub.segments, daySeg)
	nightSeg, err := shm.Create(cfg.ShmBaseDir, cfg.NightFrameShm, ringSize)
	if err != nil {
		return nil, err
	}
	hub.segments = append(hub.segments, nightSeg)
	activeSeg, err := shm.Create(cfg.ShmBaseDir, cfg.ActiveFrameShm, ring.ActiveSegmentSize(cfg.MaxFrameBytes))
	if err != nil {
		return nil, err
	}
	hub.segments = append(hub.segments, activeSeg)
	detSeg, err := shm.Create(cfg.ShmBaseDir, cfg.DetectionShm, detstore.SegmentSize)
	if err != nil {
		return nil, err
	}
	hub.segments = append(hub.segments, detSeg)

	// Initialize headers so the capture daemon can attach as writer.
	if _, err := ring.NewWriter(daySeg, cfg.RingCapacity, cfg.MaxFrameBytes, types.FormatNV12); err != nil {
		return nil, err
	}
	if _, err := ring.NewWriter(nightSeg, cfg.RingCapacity, cfg.MaxFrameBytes, types.FormatNV12); err != nil {
		return nil, err
	}
	active, err := ring.NewActiveBuffer(activeSeg, cfg.MaxFrameBytes)
	if err != nil {
		return nil, err
	}
	hub.store, err = detstore.New(detSeg, cfg.ReadRetryBound)
	if err != nil {
		return nil, err
	}

	hub.readers[types.CameraDay], err = ring.NewReader(daySeg, cfg.ReadRetryBound)
	if err != nil {
		return nil, err
	}
	hub.readers[types.CameraNight], err = ring.NewReader(nightSeg, cfg.ReadRetryBound)
	if err != nil {
		return nil, err
	}

	if cfg.NatsURL != "" {
		pub, err := events.Connect(events.Options{
			URL:            cfg.NatsURL,
			Name:           "camera-hub",
			ConnectTimeout: cfg.NatsConnectTimeout,
			ReconnectWait:  cfg.NatsReconnectWait,
			MaxReconnects:  cfg.NatsMaxReconnects,
			SwitchSubject:  cfg.SwitchSubject,
			StallSubject:   cfg.StallSubject,
		})
		if err != nil {
			// Degraded, not fatal: the hub keeps running without events.
			logger.Warn("Main", "NATS unavailable: %v", err)
		} else {
			hub.events = pub
		}
	}

	hub.runtime = selector.NewRuntime(cfg.Selector, hub.readers[types.CameraDay], hub.readers[types.CameraNight], active, selector.RuntimeOptions{
		FrameInterval: cfg.FrameInterval,
		Events:        hub.events,
		Metrics:       hub.metrics,
	})
	hub.stop = make(chan struct{})
	return hub, nil
}

// statsLoop samples the counters owned by other processes: frames published
// by the capture daemon (ring write indexes) and detection writes by the
// inference daemon (store version).
func (h *Hub) statsLoop() {
	defer h.wg.Done()
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-h.stop:
			return
		case <-ticker.C:
			var published, torn uint64
			for _, r := range h.readers {
				published += uint64(r.WriteIndex())
				torn += r.Stats.TornRetries.Load()
			}
			h.metrics.FramesPublished.Store(published)
			h.metrics.TornReadRetries.Store(torn)
			h.metrics.DetectionWrites.Store(uint64(h.store.Version()))
		}
	}
}

// routes builds the hub's HTTP surface: Prometheus metrics plus the camera
// status and debug switch endpoints.
func (h *Hub) routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/metrics", h.metrics.Handler())
	mux.HandleFunc("/api/camera_status", h.handleCameraStatus)
	mux.HandleFunc("/api/debug/switch-camera", h.handleCameraSwitch)
	return mux
}

func (h *Hub) handleCameraStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]any{"camera": h.runtime.Status()})
}

func (h *Hub) handleCameraSwitch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSONWithStatus(w, map[string]any{"error": "POST required"}, http.StatusMethodNotAllowed)
		return
	}
	var req struct {
		Mode string `json:"mode"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONWithStatus(w, map[string]any{"error": "invalid JSON body"}, http.StatusBadRequest)
		return
	}
	switch req.Mode {
	case "day":
		h.runtime.ForceManual(types.CameraDay)
	case "night":
		h.runtime.ForceManual(types.CameraNight)
	case "auto":
		h.runtime.ResumeAuto()
	default:
		writeJSONWithStatus(w, map[string]any{"error": "mode must be day, night or auto"}, http.StatusBadRequest)
		return
	}
	logger.Info("API", "camera mode set to %s", req.Mode)
	writeJSON(w, map[string]any{
		"ok":     true,
		"mode":   req.Mode,
		"status": h.runtime.Status(),
	})
}

func writeJSON(w http.ResponseWriter, payload any) {
	writeJSONWithStatus(w, payload, http.StatusOK)
}

func writeJSONWithStatus(w http.ResponseWriter, payload any, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		_, _ = fmt.Fprintf(w, `{"error":"%s"}`, err.Error())
	}
}

// Start launches the selector loops and the HTTP server.
func (h *Hub) Start() {
	logger.Info("Main", "Segments: %s %s %s %s (capacity=%d, slot=%d bytes)",
		h.cfg.DayFrameShm, h.cfg.NightFrameShm, h.cfg.ActiveFrameShm, h.cfg.DetectionShm,
		h.cfg.RingCapacity, ring.SlotSize(h.cfg.MaxFrameBytes))

	go func() {
		logger.Info("Main", "HTTP server on %s", h.cfg.MetricsAddr)
		if err := http.ListenAndServe(h.cfg.MetricsAddr, h.routes()); err != nil {
			logger.Error("Main", "HTTP server error: %v", err)
		}
	}()

	h.wg.Add(1)
	go h.statsLoop()
	h.runtime.Start()
}

// Shutdown stops the loops and unmaps segments. The last-published slots
// stay valid for straggling readers unless unlink is requested.
func (h *Hub) Shutdown(unlink bool) {
	close(h.stop)
	h.wg.Wait()
	h.runtime.Stop()
	h.events.Close()
	for _, seg := range h.segments {
		if unlink {
			if err := seg.Unlink(); err != nil {
				logger.Warn("Main", "unlink %s: %v", seg.Name(), err)
			}
		}
		if err := seg.Close(); err != nil {
			logger.Warn("Main", "close %s: %v", seg.Name(), err)
		}
	}
}
