package selector

import (
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/dj-oyu/rdk-x5_camera-core/internal/events"
	"github.com/dj-oyu/rdk-x5_camera-core/internal/logger"
	"github.com/dj-oyu/rdk-x5_camera-core/internal/metrics"
	"github.com/dj-oyu/rdk-x5_camera-core/internal/ring"
	"github.com/dj-oyu/rdk-x5_camera-core/pkg/types"
)

// Hardware reconfigures capture to a camera. The frame hub core does not
// know about vendor SDKs; integrators supply this.
type Hardware interface {
	SwitchCamera(cam types.CameraID) error
}

// NopHardware is for deployments where the capture daemon watches the
// active-slot camera field itself.
type NopHardware struct{}

// SwitchCamera implements Hardware.
func (NopHardware) SwitchCamera(types.CameraID) error { return nil }

// RuntimeOptions wires the runtime's collaborators. Clock defaults to the
// wall clock; Events and Hardware may be nil.
type RuntimeOptions struct {
	FrameInterval time.Duration
	Clock         clock.Clock
	Hardware      Hardware
	Events        *events.Publisher
	Metrics       *metrics.Metrics
}

// Runtime drives the controller from ticker tasks: an active tick at frame
// cadence and a coarse probe tick, both handled on a single loop goroutine
// so the controller and the active buffer only ever see one writer. Control
// operations (manual override, status) take the same mutex as the loop.
type Runtime struct {
	ctrl   *Controller
	cfg    Config
	clk    clock.Clock
	rings  [2]*ring.Reader
	active *ring.ActiveBuffer
	hw     Hardware
	ev     *events.Publisher
	m      *metrics.Metrics

	frameInterval time.Duration
	activeTicker  *clock.Ticker
	probeTicker   *clock.Ticker
	stop          chan struct{}
	wg            sync.WaitGroup

	// mu guards the controller and the tick state below.
	mu         sync.Mutex
	lastSeq    uint64
	lastSeqAt  time.Time
	haveSeq    bool
	frame      types.Frame
	probeFrame types.Frame
}

// NewRuntime builds a runtime over the two camera rings and the canonical
// active buffer.
func NewRuntime(cfg Config, day, night *ring.Reader, active *ring.ActiveBuffer, opts RuntimeOptions) *Runtime {
	clk := opts.Clock
	if clk == nil {
		clk = clock.New()
	}
	fi := opts.FrameInterval
	if fi <= 0 {
		fi = 33 * time.Millisecond
	}
	m := opts.Metrics
	if m == nil {
		m = metrics.New()
	}
	rt := &Runtime{
		ctrl:          New(cfg, clk),
		cfg:           cfg,
		clk:           clk,
		rings:         [2]*ring.Reader{day, night},
		active:        active,
		hw:            opts.Hardware,
		ev:            opts.Events,
		m:             m,
		frameInterval: fi,
		stop:          make(chan struct{}),
	}
	return rt
}

// Start launches the run loop. Both tickers are created here, on the
// caller's goroutine, so a test clock advanced right after Start sees
// them. Startup never assumes frames exist: probing retargets to the
// alternate when the preferred ring has never been written.
func (rt *Runtime) Start() {
	if !rt.hasData(rt.cfg.PreferredCamera) && rt.hasData(rt.cfg.PreferredCamera.Other()) {
		rt.ctrl.SetProbeTarget(rt.cfg.PreferredCamera.Other())
	}
	rt.publishState()
	logger.Info("Selector", "runtime starting (probe target=%s)", rt.ctrl.ProbeTarget())

	rt.activeTicker = rt.clk.Ticker(rt.frameInterval)
	rt.probeTicker = rt.clk.Ticker(rt.cfg.ProbeInterval)
	rt.wg.Add(1)
	go rt.run()
}

// Stop halts the run loop. The last-published active slot and generation
// stay intact for straggling consumers.
func (rt *Runtime) Stop() {
	close(rt.stop)
	rt.wg.Wait()
	logger.Info("Selector", "runtime stopped")
}

func (rt *Runtime) run() {
	defer rt.wg.Done()
	defer rt.activeTicker.Stop()
	defer rt.probeTicker.Stop()
	for {
		select {
		case <-rt.stop:
			return
		case <-rt.activeTicker.C:
			rt.mu.Lock()
			rt.tickActive()
			rt.mu.Unlock()
		case <-rt.probeTicker.C:
			rt.mu.Lock()
			rt.tickProbe()
			rt.mu.Unlock()
		}
	}
}

// ForceManual pins the selector to cam until ResumeAuto. The switch is
// applied immediately rather than waiting for a tick.
func (rt *Runtime) ForceManual(cam types.CameraID) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	rt.ctrl.ForceManual(cam)
	if rt.ctrl.State() != StateProbing && rt.ctrl.ActiveCamera() == cam {
		return
	}
	d := DecisionToDay
	if cam == types.CameraNight {
		d = DecisionToNight
	}
	rt.apply(d, "manual_override")
}

// ResumeAuto returns the selector to automatic brightness control.
func (rt *Runtime) ResumeAuto() {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	rt.ctrl.ResumeAuto()
}

// Status snapshots the automaton for status endpoints.
func (rt *Runtime) Status() Status {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	return rt.ctrl.Status()
}

// tickActive polls the active ring once: republish the newest frame and
// feed the automaton, or escalate a stall.
func (rt *Runtime) tickActive() {
	if rt.ctrl.State() == StateProbing {
		return
	}
	cam := rt.ctrl.ActiveCamera()
	rt.m.FrameReads.Add(1)
	switch rt.rings[cam].ReadLatest(&rt.frame) {
	case ring.ReadOK:
		if rt.haveSeq && rt.frame.FrameNumber == rt.lastSeq {
			rt.checkStall(cam)
			return
		}
		rt.lastSeq = rt.frame.FrameNumber
		rt.lastSeqAt = rt.clk.Now()
		rt.haveSeq = true

		decision := rt.ctrl.ObserveActiveFrame(&rt.frame)
		if rt.ctrl.ConsumeWarmup() {
			if _, err := rt.active.Publish(&rt.frame, cam); err != nil {
				logger.Error("Selector", "active republish failed: %v", err)
			} else {
				rt.m.FramesRepublished.Add(1)
			}
		} else {
			rt.m.WarmupDrops.Add(1)
		}
		rt.apply(decision, decisionReason(decision))
	case ring.ReadStale:
		rt.m.StaleReads.Add(1)
		rt.checkStall(cam)
	case ring.ReadNoData:
		rt.m.NoDataReads.Add(1)
		rt.checkStall(cam)
	}
}

func (rt *Runtime) checkStall(cam types.CameraID) {
	if !rt.haveSeq || rt.clk.Now().Sub(rt.lastSeqAt) < rt.cfg.StallTimeout {
		return
	}
	rt.m.StallEvents.Add(1)
	logger.Warn("Selector", "%s ring stalled at sequence %d", cam, rt.lastSeq)
	rt.ev.PublishStall(events.StallEvent{
		Camera:    cam.String(),
		LastSeq:   rt.lastSeq,
		Timestamp: rt.clk.Now().Unix(),
	})
	decision := rt.ctrl.ObserveStall(rt.hasData(cam.Other()))
	rt.lastSeqAt = rt.clk.Now() // rate-limit stall handling to the timeout
	if decision == DecisionNone {
		rt.publishState()
		return
	}
	rt.apply(decision, "active_stalled")
}

// tickProbe samples the probe target coarsely. While probing, a ring that
// yields nothing flips the target so startup settles on whichever camera
// is alive within a bounded number of cycles.
func (rt *Runtime) tickProbe() {
	cam := rt.ctrl.ProbeTarget()
	rt.m.ProbeCycles.Add(1)
	if rt.rings[cam].ReadLatest(&rt.probeFrame) != ring.ReadOK {
		if rt.ctrl.State() == StateProbing {
			rt.ctrl.SetProbeTarget(cam.Other())
		}
		return
	}
	decision := rt.ctrl.ObserveProbe(&rt.probeFrame,
		rt.hasData(types.CameraDay), rt.hasData(types.CameraNight))
	rt.apply(decision, "probe_settled")
}

func (rt *Runtime) hasData(cam types.CameraID) bool {
	return rt.rings[cam].WriteIndex() > 0
}

// apply performs a switch decision: reconfigure hardware, confirm to the
// controller, copy the new camera's current frame into the active slot,
// and only then let the bumped generation announce the change.
func (rt *Runtime) apply(decision Decision, reason string) {
	if decision == DecisionNone {
		return
	}
	target := types.CameraDay
	if decision == DecisionToNight {
		target = types.CameraNight
	}
	from := rt.ctrl.ActiveCamera().String()
	if rt.ctrl.State() == StateProbing {
		from = "none" // no previous authoritative camera
	}

	if rt.hw != nil {
		if err := rt.hw.SwitchCamera(target); err != nil {
			// Dwell counters keep accumulating; the decision fires again.
			logger.Error("Selector", "hardware switch to %s failed: %v", target, err)
			return
		}
	}
	rt.ctrl.NotifyActiveCamera(target, reason)
	rt.haveSeq = false

	var gen uint32
	if rt.rings[target].ReadLatest(&rt.frame) == ring.ReadOK {
		g, err := rt.active.Publish(&rt.frame, target)
		if err != nil {
			logger.Error("Selector", "switch republish failed: %v", err)
		} else {
			gen = g
			rt.m.FramesRepublished.Add(1)
		}
		rt.lastSeq = rt.frame.FrameNumber
		rt.lastSeqAt = rt.clk.Now()
		rt.haveSeq = true
	}

	rt.m.CameraSwitches.Add(1)
	rt.publishState()
	rt.ev.PublishSwitch(events.SwitchEvent{
		From:       from,
		To:         target.String(),
		Reason:     reason,
		Generation: gen,
		Brightness: rt.frame.BrightnessAvg,
		Timestamp:  rt.clk.Now().Unix(),
	})
	logger.Info("Selector", "switched to %s (reason=%s, generation=%d)", target, reason, gen)
}

func (rt *Runtime) publishState() {
	rt.m.ActiveCamera.Store(uint64(rt.ctrl.ActiveCamera()))
	rt.m.SelectorState.Store(uint64(rt.ctrl.State()))
}

func decisionReason(d Decision) string {
	switch d {
	case DecisionToNight:
		return "brightness_low"
	case DecisionToDay:
		return "brightness_high"
	default:
		return ""
	}
}
