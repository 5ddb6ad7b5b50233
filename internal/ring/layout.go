// Package ring implements the fixed-capacity frame ring buffer and the
// canonical active-frame slot shared between the capture daemon and its
// consumers.
//
// One writer per segment, any number of readers. The writer never blocks
// and never waits; readers detect concurrent overwrites with a per-slot
// sequence stamp (stamp, copy, re-check, retry on mismatch) and fall back
// to their previous value when the retry bound is exceeded.
package ring

import (
	"encoding/binary"
	"math"
	"time"

	"github.com/dj-oyu/rdk-x5_camera-core/pkg/types"
)

const (
	// DefaultCapacity is one second of frames at 30 fps.
	DefaultCapacity = 30

	// MaxFrameSize fits a 1080p NV12 frame.
	MaxFrameSize = 1920 * 1080 * 3 / 2

	// DefaultRetryBound is the torn-read retry limit K. Empirically tuned
	// on-device; configurable, not an invariant.
	DefaultRetryBound = 3
)

// Ring segment header. write_index is the only field mutated after init.
const (
	hdrCapacity      = 0  // uint32
	hdrSlotSize      = 4  // uint32
	hdrWriteIndex    = 8  // uint32, atomic
	hdrPixelFormat   = 12 // uint32
	hdrFrameInterval = 16 // uint32, dynamic FPS control (ms)
	headerSize       = 24 // slots start 8-aligned
)

// Slot record layout. The stamp leads the record; it is odd while a write
// is in flight and even once the slot is consistent.
const (
	slotStamp      = 0  // uint32, atomic
	slotCameraID   = 4  // uint8
	slotFormat     = 5  // uint8
	slotZone       = 6  // uint8
	slotCorrection = 7  // uint8
	slotSequence   = 8  // uint64
	slotTsSec      = 16 // uint64
	slotTsNsec     = 24 // uint32
	slotWidth      = 28 // uint32
	slotHeight     = 32 // uint32
	slotStride     = 36 // uint32
	slotBrightAvg  = 40 // float32 bits
	slotBrightLux  = 44 // uint32
	slotDataSize   = 48 // uint32
	slotData       = 56 // payload, 8-aligned
)

// SlotSize returns the byte size of one slot for a given payload capacity.
func SlotSize(payloadCap int) int {
	return slotData + payloadCap
}

// SegmentSize returns the byte size of a ring segment.
func SegmentSize(capacity, payloadCap int) int {
	return headerSize + capacity*SlotSize(payloadCap)
}

type segment interface {
	Bytes() []byte
	LoadUint32(off int) uint32
	StoreUint32(off int, v uint32)
	AddUint32(off int, delta uint32) uint32
}

// writeSlotBody fills every slot field except the stamp. Plain stores; the
// surrounding stamp writes provide the ordering.
func writeSlotBody(buf []byte, base int, f *types.Frame, seq uint64) {
	buf[base+slotCameraID] = byte(f.CameraID)
	buf[base+slotFormat] = byte(f.Format)
	buf[base+slotZone] = byte(f.BrightnessZone)
	if f.CorrectionApplied {
		buf[base+slotCorrection] = 1
	} else {
		buf[base+slotCorrection] = 0
	}
	binary.LittleEndian.PutUint64(buf[base+slotSequence:], seq)
	binary.LittleEndian.PutUint64(buf[base+slotTsSec:], uint64(f.Timestamp.Unix()))
	binary.LittleEndian.PutUint32(buf[base+slotTsNsec:], uint32(f.Timestamp.Nanosecond()))
	binary.LittleEndian.PutUint32(buf[base+slotWidth:], uint32(f.Width))
	binary.LittleEndian.PutUint32(buf[base+slotHeight:], uint32(f.Height))
	binary.LittleEndian.PutUint32(buf[base+slotStride:], uint32(f.Stride))
	binary.LittleEndian.PutUint32(buf[base+slotBrightAvg:], math.Float32bits(f.BrightnessAvg))
	binary.LittleEndian.PutUint32(buf[base+slotBrightLux:], f.BrightnessLux)
	binary.LittleEndian.PutUint32(buf[base+slotDataSize:], uint32(len(f.Data)))
	copy(buf[base+slotData:], f.Data)
}

// readSlotBody decodes one slot into f, reusing f.Data when it has capacity.
func readSlotBody(buf []byte, base, payloadCap int, f *types.Frame) {
	f.CameraID = types.CameraID(buf[base+slotCameraID])
	f.Format = types.PixelFormat(buf[base+slotFormat])
	f.BrightnessZone = types.BrightnessZone(buf[base+slotZone])
	f.CorrectionApplied = buf[base+slotCorrection] == 1
	f.FrameNumber = binary.LittleEndian.Uint64(buf[base+slotSequence:])
	sec := int64(binary.LittleEndian.Uint64(buf[base+slotTsSec:]))
	nsec := int64(binary.LittleEndian.Uint32(buf[base+slotTsNsec:]))
	f.Timestamp = time.Unix(sec, nsec)
	f.Width = int(binary.LittleEndian.Uint32(buf[base+slotWidth:]))
	f.Height = int(binary.LittleEndian.Uint32(buf[base+slotHeight:]))
	f.Stride = int(binary.LittleEndian.Uint32(buf[base+slotStride:]))
	f.BrightnessAvg = math.Float32frombits(binary.LittleEndian.Uint32(buf[base+slotBrightAvg:]))
	f.BrightnessLux = binary.LittleEndian.Uint32(buf[base+slotBrightLux:])

	n := int(binary.LittleEndian.Uint32(buf[base+slotDataSize:]))
	if n < 0 || n > payloadCap {
		n = payloadCap
	}
	if cap(f.Data) < n {
		f.Data = make([]byte, n)
	}
	f.Data = f.Data[:n]
	copy(f.Data, buf[base+slotData:base+slotData+n])
}

// snapshotSlot performs one stamp/copy/recheck attempt.
// Returns (stamp, true) on a consistent copy, (stamp, false) when the slot
// was overwritten mid-copy or a write was in flight.
func snapshotSlot(seg segment, base, payloadCap int, f *types.Frame) (uint32, bool) {
	s1 := seg.LoadUint32(base + slotStamp)
	if s1 == 0 || s1&1 == 1 {
		return s1, false
	}
	readSlotBody(seg.Bytes(), base, payloadCap, f)
	s2 := seg.LoadUint32(base + slotStamp)
	return s1, s1 == s2
}
