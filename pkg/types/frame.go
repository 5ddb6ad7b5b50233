package types

import "time"

// CameraID identifies one of the two physical camera sources.
type CameraID uint8

const (
	CameraDay   CameraID = 0
	CameraNight CameraID = 1
)

// Other returns the alternate camera.
func (c CameraID) Other() CameraID {
	if c == CameraDay {
		return CameraNight
	}
	return CameraDay
}

// String returns the string representation of a CameraID.
func (c CameraID) String() string {
	if c == CameraDay {
		return "day"
	}
	return "night"
}

// PixelFormat identifies the encoding of a frame payload.
// Values match the capture daemon's format field.
type PixelFormat uint8

const (
	FormatJPEG PixelFormat = 0
	FormatNV12 PixelFormat = 1
	FormatRGB  PixelFormat = 2
	FormatH264 PixelFormat = 3
	FormatGray PixelFormat = 4
)

// String returns the string representation of a PixelFormat.
func (f PixelFormat) String() string {
	switch f {
	case FormatJPEG:
		return "jpeg"
	case FormatNV12:
		return "nv12"
	case FormatRGB:
		return "rgb"
	case FormatH264:
		return "h264"
	case FormatGray:
		return "gray"
	default:
		return "unknown"
	}
}

// BrightnessZone is the discretized brightness classification used by the
// camera switch automaton.
type BrightnessZone uint8

const (
	ZoneDark   BrightnessZone = 0 // brightness_avg < 50
	ZoneDim    BrightnessZone = 1 // 50 <= brightness_avg < 70
	ZoneNormal BrightnessZone = 2 // 70 <= brightness_avg < 180
	ZoneBright BrightnessZone = 3 // brightness_avg >= 180
)

// String returns the string representation of a BrightnessZone.
func (z BrightnessZone) String() string {
	switch z {
	case ZoneDark:
		return "dark"
	case ZoneDim:
		return "dim"
	case ZoneNormal:
		return "normal"
	case ZoneBright:
		return "bright"
	default:
		return "unknown"
	}
}

// Frame is a single camera frame with its capture metadata.
// The shared-memory slot layout mirrors these fields one to one.
type Frame struct {
	CameraID    CameraID
	FrameNumber uint64
	Timestamp   time.Time
	Width       int
	Height      int
	Stride      int
	Format      PixelFormat

	// Brightness metrics filled by the capture side (ISP AE stats or the
	// luma fallback in internal/brightness).
	BrightnessAvg     float32
	BrightnessLux     uint32
	BrightnessZone    BrightnessZone
	CorrectionApplied bool

	Data []byte
}
