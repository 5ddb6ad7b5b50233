// Package selector decides which camera feed is authoritative.
//
// The controller is the only owner of switching state. It consumes
// brightness samples (internal/brightness is a pure function of a frame)
// and applies asymmetric dwell policy: darkening is detected quickly from
// fast samples, brightening is confirmed slowly, so a noisy brightness
// signal oscillating across a threshold never flips the selection.
package selector

import (
	"time"

	"github.com/benbjohnson/clock"

	"github.com/dj-oyu/rdk-x5_camera-core/internal/brightness"
	"github.com/dj-oyu/rdk-x5_camera-core/pkg/types"
)

// State is the automaton state.
type State int

const (
	// StateProbing is the cold-start state: no camera is authoritative yet
	// and the probe target is sampled coarsely until it yields a valid frame.
	StateProbing State = iota
	// StateDayActive means the day camera feed is authoritative.
	StateDayActive
	// StateNightActive means the night camera feed is authoritative.
	StateNightActive
)

// String returns the string representation of a State.
func (s State) String() string {
	switch s {
	case StateProbing:
		return "probing"
	case StateDayActive:
		return "day_active"
	case StateNightActive:
		return "night_active"
	default:
		return "unknown"
	}
}

// Decision is what the controller asks its caller to do. The caller
// reconfigures hardware, then confirms with NotifyActiveCamera.
type Decision int

const (
	DecisionNone Decision = iota
	DecisionToDay
	DecisionToNight
)

// String returns the string representation of a Decision.
func (d Decision) String() string {
	switch d {
	case DecisionToDay:
		return "to_day"
	case DecisionToNight:
		return "to_night"
	default:
		return "none"
	}
}

// Config are the switching tunables. All values are empirically tuned
// operational constants, not invariants.
type Config struct {
	// PreferredCamera is probed first at cold start.
	PreferredCamera types.CameraID

	// DarkThreshold: active brightness below this (while day) counts toward
	// the day-to-night dwell. BrightThreshold is the night-to-day analog.
	DarkThreshold   float32
	BrightThreshold float32

	// DwellDark / DwellBright are sample counts a breach must sustain.
	// Bright dwell is deliberately the longer one in wall-clock terms.
	DwellDark   int
	DwellBright int

	// SampleIntervalDay / SampleIntervalNight: evaluate brightness every
	// Nth active frame (3 ≈ 10 Hz at 30 fps, 30 ≈ 1 Hz).
	SampleIntervalDay   int
	SampleIntervalNight int

	// ProbeInterval is how often the inactive (or probed) camera is sampled.
	ProbeInterval time.Duration

	// StallTimeout: no new sequence number from the active ring for this
	// long is treated like a dark-threshold breach.
	StallTimeout time.Duration

	// WarmupFrames are dropped after a hardware switch before republishing
	// resumes, so consumers never see the sensor settling.
	WarmupFrames int

	// HistorySize bounds the per-camera brightness sample window kept for
	// status reporting.
	HistorySize int
}

// DefaultConfig returns the tunables used on the device.
func DefaultConfig() Config {
	return Config{
		PreferredCamera:     types.CameraDay,
		DarkThreshold:       brightness.ThresholdDark,
		BrightThreshold:     brightness.ThresholdDim,
		DwellDark:           10, // ~1s of samples at every 3rd frame
		DwellBright:         2,  // ~2s of samples at every 30th frame
		SampleIntervalDay:   3,
		SampleIntervalNight: 30,
		ProbeInterval:       2 * time.Second,
		StallTimeout:        time.Second,
		WarmupFrames:        3,
		HistorySize:         60,
	}
}

// brightnessStat is the rolling per-camera sample window for status output.
type brightnessStat struct {
	latest    float32
	latestAt  time.Time
	samples   []float32
	sampleCap int
	sum       float64
}

func (b *brightnessStat) record(v float32, at time.Time) {
	b.latest = v
	b.latestAt = at
	if b.sampleCap > 0 && len(b.samples) == b.sampleCap {
		b.sum -= float64(b.samples[0])
		b.samples = b.samples[1:]
	}
	b.samples = append(b.samples, v)
	b.sum += float64(v)
}

func (b *brightnessStat) average() (float32, bool) {
	if len(b.samples) == 0 {
		return 0, false
	}
	return float32(b.sum / float64(len(b.samples))), true
}

// Controller is the camera switch automaton. Not safe for concurrent use;
// the runtime serializes every call under its own mutex.
type Controller struct {
	cfg Config
	clk clock.Clock

	state        State
	activeCamera types.CameraID
	probeTarget  types.CameraID

	frameCount      uint64
	darkStreak      int
	brightStreak    int
	warmupRemaining int

	manual       bool
	manualTarget types.CameraID

	lastSwitch time.Time
	lastReason string

	stats [2]brightnessStat
}

// New creates a controller in StateProbing of the preferred camera.
func New(cfg Config, clk clock.Clock) *Controller {
	if clk == nil {
		clk = clock.New()
	}
	c := &Controller{
		cfg:          cfg,
		clk:          clk,
		state:        StateProbing,
		probeTarget:  cfg.PreferredCamera,
		activeCamera: cfg.PreferredCamera,
		lastReason:   "initial",
	}
	c.stats[0].sampleCap = cfg.HistorySize
	c.stats[1].sampleCap = cfg.HistorySize
	return c
}

// State returns the current automaton state.
func (c *Controller) State() State { return c.state }

// ActiveCamera returns the currently authoritative camera. Meaningless in
// StateProbing.
func (c *Controller) ActiveCamera() types.CameraID { return c.activeCamera }

// ProbeTarget returns the camera the probe loop should sample.
func (c *Controller) ProbeTarget() types.CameraID {
	if c.state == StateProbing {
		return c.probeTarget
	}
	return c.activeCamera.Other()
}

// SetProbeTarget redirects cold-start probing, e.g. when the preferred
// camera's segment has never been written.
func (c *Controller) SetProbeTarget(cam types.CameraID) {
	if c.state == StateProbing {
		c.probeTarget = cam
	}
}

// ObserveActiveFrame feeds one frame from the active ring through the
// per-state sampling cadence and dwell evaluation.
func (c *Controller) ObserveActiveFrame(f *types.Frame) Decision {
	if c.state == StateProbing {
		return DecisionNone
	}
	c.frameCount++

	interval := c.cfg.SampleIntervalDay
	if c.state == StateNightActive {
		interval = c.cfg.SampleIntervalNight
	}
	if interval > 1 && c.frameCount%uint64(interval) != 0 {
		return DecisionNone
	}

	avg, _ := c.sample(c.activeCamera, f)
	if c.manual {
		return DecisionNone
	}

	switch c.state {
	case StateDayActive:
		if avg < c.cfg.DarkThreshold {
			c.darkStreak++
			if c.darkStreak >= c.cfg.DwellDark {
				return DecisionToNight
			}
		} else {
			c.darkStreak = 0
		}
	case StateNightActive:
		if avg > c.cfg.BrightThreshold {
			c.brightStreak++
			if c.brightStreak >= c.cfg.DwellBright {
				return DecisionToDay
			}
		} else {
			c.brightStreak = 0
		}
	}
	return DecisionNone
}

// ObserveProbe feeds one frame captured from the probe target.
// In StateProbing the first valid frame settles the automaton immediately:
// the probed camera's zone picks day or night, falling back to whichever
// camera actually has data. Outside StateProbing the sample only feeds the
// status window.
func (c *Controller) ObserveProbe(f *types.Frame, dayHasData, nightHasData bool) Decision {
	cam := c.ProbeTarget()
	_, zone := c.sample(cam, f)
	if c.manual || c.state != StateProbing {
		return DecisionNone
	}

	desired := types.CameraDay
	if zone == types.ZoneDark {
		desired = types.CameraNight
	}
	desiredHasData := dayHasData
	if desired == types.CameraNight {
		desiredHasData = nightHasData
	}
	if desired != cam && !desiredHasData {
		// The zone points at a camera that has produced nothing; settle on
		// the one we just proved alive.
		desired = cam
	}
	if desired == types.CameraDay {
		return DecisionToDay
	}
	return DecisionToNight
}

// ObserveStall reports that the active ring produced no new sequence number
// for longer than StallTimeout. Equivalent to a dark-threshold breach: the
// controller asks for the alternate if it has data, otherwise falls back to
// probing it.
func (c *Controller) ObserveStall(alternateHasData bool) Decision {
	if c.manual || c.state == StateProbing {
		return DecisionNone
	}
	alt := c.activeCamera.Other()
	if !alternateHasData {
		c.state = StateProbing
		c.probeTarget = alt
		c.resetDwell()
		c.lastReason = "active_stalled"
		return DecisionNone
	}
	if alt == types.CameraDay {
		return DecisionToDay
	}
	return DecisionToNight
}

// NotifyActiveCamera confirms that capture now runs on cam. Dwell counters
// reset and warmup gating begins. The caller republishes into the active
// buffer after this (publish-before-announce is the buffer's job).
func (c *Controller) NotifyActiveCamera(cam types.CameraID, reason string) {
	if cam == types.CameraDay {
		c.state = StateDayActive
	} else {
		c.state = StateNightActive
	}
	c.activeCamera = cam
	c.resetDwell()
	c.frameCount = 0
	c.warmupRemaining = c.cfg.WarmupFrames
	c.lastSwitch = c.clk.Now()
	c.lastReason = reason
}

// ConsumeWarmup reports whether the next active frame may be republished,
// consuming one warmup slot when it is not.
func (c *Controller) ConsumeWarmup() bool {
	if c.warmupRemaining > 0 {
		c.warmupRemaining--
		return false
	}
	return true
}

// ForceManual pins the selection to cam until ResumeAuto.
func (c *Controller) ForceManual(cam types.CameraID) {
	c.manual = true
	c.manualTarget = cam
	c.resetDwell()
}

// ResumeAuto re-enables automatic switching.
func (c *Controller) ResumeAuto() {
	c.manual = false
	c.resetDwell()
	c.lastReason = "auto_resume"
}

// Manual reports whether a manual override is active and its target.
func (c *Controller) Manual() (types.CameraID, bool) {
	return c.manualTarget, c.manual
}

func (c *Controller) resetDwell() {
	c.darkStreak = 0
	c.brightStreak = 0
}

// sample estimates brightness for a frame and records it in the camera's
// status window. Frames already carrying ISP statistics keep them.
func (c *Controller) sample(cam types.CameraID, f *types.Frame) (float32, types.BrightnessZone) {
	avg := f.BrightnessAvg
	zone := f.BrightnessZone
	if avg <= 0 {
		avg, zone = brightness.Estimate(f, f.BrightnessLux)
	}
	c.stats[cam&1].record(avg, c.clk.Now())
	return avg, zone
}
