package selector

import "github.com/dj-oyu/rdk-x5_camera-core/pkg/types"

// BrightnessStatus is the per-camera brightness summary exposed to
// monitoring consumers.
type BrightnessStatus struct {
	Latest  float32 `json:"latest"`
	Average float32 `json:"avg"`
	Samples int     `json:"samples"`
}

// Status is a lightweight snapshot of the automaton for status APIs and the
// shm-monitor CLI.
type Status struct {
	Mode            string           `json:"mode"` // "auto" or "manual"
	State           string           `json:"state"`
	ActiveCamera    string           `json:"active_camera"`
	ProbeTarget     string           `json:"probe_target"`
	Day             BrightnessStatus `json:"day"`
	Night           BrightnessStatus `json:"night"`
	DarkThreshold   float32          `json:"dark_threshold"`
	BrightThreshold float32          `json:"bright_threshold"`
	LastSwitchUnix  int64            `json:"last_switch_unix"`
	LastReason      string           `json:"last_switch_reason"`
}

// Status returns a snapshot of the controller.
func (c *Controller) Status() Status {
	mode := "auto"
	if c.manual {
		mode = "manual"
	}
	st := Status{
		Mode:            mode,
		State:           c.state.String(),
		ActiveCamera:    c.activeCamera.String(),
		ProbeTarget:     c.ProbeTarget().String(),
		DarkThreshold:   c.cfg.DarkThreshold,
		BrightThreshold: c.cfg.BrightThreshold,
		LastReason:      c.lastReason,
	}
	if !c.lastSwitch.IsZero() {
		st.LastSwitchUnix = c.lastSwitch.Unix()
	}
	for cam := types.CameraDay; cam <= types.CameraNight; cam++ {
		s := &c.stats[cam]
		avg, _ := s.average()
		bs := BrightnessStatus{Latest: s.latest, Average: avg, Samples: len(s.samples)}
		if cam == types.CameraDay {
			st.Day = bs
		} else {
			st.Night = bs
		}
	}
	return st
}
