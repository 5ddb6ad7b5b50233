package ring

import (
	"fmt"

	"github.com/dj-oyu/rdk-x5_camera-core/internal/shm"
	"github.com/dj-oyu/rdk-x5_camera-core/pkg/types"
)

// Active-frame segment header: a single canonical slot plus the selected
// camera and a switch-generation counter.
const (
	activeHdrSlotSize = 0  // uint32
	activeHdrCamera   = 4  // uint32, atomic
	activeHdrGen      = 8  // uint32, atomic
	activeHdrReserved = 12 // uint32, pad
	activeHeaderSize  = 16 // slot starts 8-aligned
)

// ActiveSegmentSize returns the byte size of an active-frame segment.
func ActiveSegmentSize(payloadCap int) int {
	return activeHeaderSize + SlotSize(payloadCap)
}

// ActiveBuffer is the canonical republished frame slot. Written only by the
// selector; the generation counter bumps strictly after the slot copy and
// camera store (publish-before-announce), so consumers observing generation
// g always see the slot and camera of generation g or later.
type ActiveBuffer struct {
	seg        *shm.Segment
	payloadCap int
}

// NewActiveBuffer initializes the header of a freshly created segment.
func NewActiveBuffer(seg *shm.Segment, payloadCap int) (*ActiveBuffer, error) {
	if need := ActiveSegmentSize(payloadCap); seg.Size() < need {
		return nil, fmt.Errorf("ring: active segment %s is %d bytes, need %d", seg.Name(), seg.Size(), need)
	}
	seg.StoreUint32(activeHdrSlotSize, uint32(SlotSize(payloadCap)))
	return &ActiveBuffer{seg: seg, payloadCap: payloadCap}, nil
}

// OpenActiveBuffer attaches to an existing active-frame segment.
func OpenActiveBuffer(seg *shm.Segment) (*ActiveBuffer, error) {
	slotSize := int(seg.LoadUint32(activeHdrSlotSize))
	if slotSize <= slotData {
		return nil, fmt.Errorf("ring: active segment %s has no initialized header", seg.Name())
	}
	if need := activeHeaderSize + slotSize; seg.Size() < need {
		return nil, fmt.Errorf("ring: active segment %s is %d bytes, header implies %d", seg.Name(), seg.Size(), need)
	}
	return &ActiveBuffer{seg: seg, payloadCap: slotSize - slotData}, nil
}

// Publish copies f into the canonical slot, records the camera it came
// from, then advances the generation counter. Returns the new generation.
func (b *ActiveBuffer) Publish(f *types.Frame, cam types.CameraID) (uint32, error) {
	if len(f.Data) > b.payloadCap {
		return 0, fmt.Errorf("ring: payload %d exceeds active slot capacity %d", len(f.Data), b.payloadCap)
	}
	gen := b.seg.LoadUint32(activeHdrGen)
	base := activeHeaderSize

	b.seg.StoreUint32(base+slotStamp, gen*2+1)
	writeSlotBody(b.seg.Bytes(), base, f, f.FrameNumber)
	b.seg.StoreUint32(base+slotStamp, gen*2+2)

	b.seg.StoreUint32(activeHdrCamera, uint32(cam))
	return b.seg.AddUint32(activeHdrGen, 1), nil
}

// Read snapshots the canonical slot. The returned generation lets consumers
// detect a camera switch without racing the copy.
func (b *ActiveBuffer) Read(f *types.Frame) (types.CameraID, uint32, ReadStatus) {
	gen := b.seg.LoadUint32(activeHdrGen)
	cam := types.CameraID(b.seg.LoadUint32(activeHdrCamera))
	if gen == 0 {
		return cam, 0, ReadNoData
	}
	base := activeHeaderSize
	for attempt := 0; attempt < DefaultRetryBound; attempt++ {
		if _, ok := snapshotSlot(b.seg, base, b.payloadCap, f); ok {
			return cam, gen, ReadOK
		}
	}
	return cam, gen, ReadStale
}

// Generation returns the current switch-generation counter.
func (b *ActiveBuffer) Generation() uint32 {
	return b.seg.LoadUint32(activeHdrGen)
}

// SelectedCamera returns the camera the canonical slot was copied from.
func (b *ActiveBuffer) SelectedCamera() types.CameraID {
	return types.CameraID(b.seg.LoadUint32(activeHdrCamera))
}

// Segment returns the underlying segment (for teardown).
func (b *ActiveBuffer) Segment() *shm.Segment { return b.seg }
