package ring

import (
	"fmt"
	"sync/atomic"

	"github.com/dj-oyu/rdk-x5_camera-core/internal/shm"
	"github.com/dj-oyu/rdk-x5_camera-core/pkg/types"
)

// ReadStatus classifies the outcome of a non-blocking read.
type ReadStatus int

const (
	// ReadOK means the output frame is a consistent copy of some publish.
	ReadOK ReadStatus = iota
	// ReadNoData means the segment has never been written. Valid cold-start
	// condition, not an error.
	ReadNoData
	// ReadStale means the retry bound was hit while the writer kept
	// overwriting. Callers reuse their previous value.
	ReadStale
)

// String returns the string representation of a ReadStatus.
func (s ReadStatus) String() string {
	switch s {
	case ReadOK:
		return "ok"
	case ReadNoData:
		return "no_data"
	case ReadStale:
		return "stale"
	default:
		return "unknown"
	}
}

// WriterStats are lightweight counters sampled by the metrics exporter.
type WriterStats struct {
	Published atomic.Uint64
}

// ReaderStats are lightweight counters sampled by the metrics exporter.
type ReaderStats struct {
	Reads       atomic.Uint64
	TornRetries atomic.Uint64
	StaleReads  atomic.Uint64
	NoDataReads atomic.Uint64
}

// Writer is the single producer side of a frame ring buffer.
type Writer struct {
	seg        *shm.Segment
	capacity   uint32
	payloadCap int
	slotSize   int

	Stats WriterStats
}

// NewWriter initializes the header of a freshly created segment and returns
// its writer. The segment must be at least SegmentSize(capacity, payloadCap)
// bytes.
func NewWriter(seg *shm.Segment, capacity, payloadCap int, format types.PixelFormat) (*Writer, error) {
	if capacity <= 0 {
		return nil, fmt.Errorf("ring: capacity must be positive, got %d", capacity)
	}
	if need := SegmentSize(capacity, payloadCap); seg.Size() < need {
		return nil, fmt.Errorf("ring: segment %s is %d bytes, need %d", seg.Name(), seg.Size(), need)
	}
	seg.StoreUint32(hdrCapacity, uint32(capacity))
	seg.StoreUint32(hdrSlotSize, uint32(SlotSize(payloadCap)))
	seg.StoreUint32(hdrPixelFormat, uint32(format))
	seg.StoreUint32(hdrFrameInterval, 0)
	// write_index stays 0 until the first publish: the cold-start sentinel.
	return &Writer{
		seg:        seg,
		capacity:   uint32(capacity),
		payloadCap: payloadCap,
		slotSize:   SlotSize(payloadCap),
	}, nil
}

// AttachWriter wraps a segment whose header was already initialized, e.g.
// by the hub daemon that owns segment lifecycle. Publishing continues from
// the current write index.
func AttachWriter(seg *shm.Segment) (*Writer, error) {
	capacity := seg.LoadUint32(hdrCapacity)
	slotSize := int(seg.LoadUint32(hdrSlotSize))
	if capacity == 0 || slotSize <= slotData {
		return nil, fmt.Errorf("ring: segment %s has no initialized header", seg.Name())
	}
	return &Writer{
		seg:        seg,
		capacity:   capacity,
		payloadCap: slotSize - slotData,
		slotSize:   slotSize,
	}, nil
}

// Publish copies a fully-formed frame into the next slot and returns the
// sequence number it was assigned. Never blocks on readers; publish latency
// is independent of reader count.
func (w *Writer) Publish(f *types.Frame) (uint64, error) {
	if len(f.Data) > w.payloadCap {
		return 0, fmt.Errorf("ring: payload %d exceeds slot capacity %d", len(f.Data), w.payloadCap)
	}
	// Post-increment claims the slot; readers that race the copy below are
	// bounced by the stamp and fall back to their previous frame.
	seq := uint64(w.seg.AddUint32(hdrWriteIndex, 1) - 1)
	base := headerSize + int(seq%uint64(w.capacity))*w.slotSize

	w.seg.StoreUint32(base+slotStamp, uint32(seq)*2+1)
	writeSlotBody(w.seg.Bytes(), base, f, seq)
	w.seg.StoreUint32(base+slotStamp, uint32(seq)*2+2)

	f.FrameNumber = seq
	w.Stats.Published.Add(1)
	return seq, nil
}

// SetFrameInterval publishes the dynamic capture interval hint in ms
// (0 means full rate). Read by the capture daemon for FPS control.
func (w *Writer) SetFrameInterval(ms uint32) {
	w.seg.StoreUint32(hdrFrameInterval, ms)
}

// Segment returns the underlying segment (for teardown).
func (w *Writer) Segment() *shm.Segment { return w.seg }

// Reader reads the most recent frame from a ring without ever blocking the
// writer.
type Reader struct {
	seg        *shm.Segment
	capacity   uint32
	payloadCap int
	slotSize   int
	retryBound int

	Stats ReaderStats
}

// NewReader validates the segment header and returns a reader.
// retryBound is the torn-read bound K; values < 1 use DefaultRetryBound.
func NewReader(seg *shm.Segment, retryBound int) (*Reader, error) {
	capacity := seg.LoadUint32(hdrCapacity)
	slotSize := int(seg.LoadUint32(hdrSlotSize))
	if capacity == 0 || slotSize <= slotData {
		return nil, fmt.Errorf("ring: segment %s has no initialized header", seg.Name())
	}
	if need := headerSize + int(capacity)*slotSize; seg.Size() < need {
		return nil, fmt.Errorf("ring: segment %s is %d bytes, header implies %d", seg.Name(), seg.Size(), need)
	}
	if retryBound < 1 {
		retryBound = DefaultRetryBound
	}
	return &Reader{
		seg:        seg,
		capacity:   capacity,
		payloadCap: slotSize - slotData,
		slotSize:   slotSize,
		retryBound: retryBound,
	}, nil
}

// ReadLatest snapshots the most recently published frame into f.
// ReadNoData is returned until the first publish; ReadStale after the retry
// bound (the caller keeps its previous frame in both cases).
func (r *Reader) ReadLatest(f *types.Frame) ReadStatus {
	r.Stats.Reads.Add(1)
	wi := r.seg.LoadUint32(hdrWriteIndex)
	if wi == 0 {
		r.Stats.NoDataReads.Add(1)
		return ReadNoData
	}
	seq := wi - 1
	base := headerSize + int(seq%r.capacity)*r.slotSize
	for attempt := 0; attempt < r.retryBound; attempt++ {
		stamp, ok := snapshotSlot(r.seg, base, r.payloadCap, f)
		if ok {
			return ReadOK
		}
		if stamp == 0 {
			// Claimed but the first body write has not landed yet.
			r.Stats.NoDataReads.Add(1)
			return ReadNoData
		}
		r.Stats.TornRetries.Add(1)
		// Chase the writer: it may have moved on while we copied.
		wi = r.seg.LoadUint32(hdrWriteIndex)
		seq = wi - 1
		base = headerSize + int(seq%r.capacity)*r.slotSize
	}
	r.Stats.StaleReads.Add(1)
	return ReadStale
}

// WriteIndex returns the current write index. Zero means never written.
func (r *Reader) WriteIndex() uint32 {
	return r.seg.LoadUint32(hdrWriteIndex)
}

// FrameInterval returns the dynamic capture interval hint in ms.
func (r *Reader) FrameInterval() uint32 {
	return r.seg.LoadUint32(hdrFrameInterval)
}

// PixelFormat returns the segment's declared pixel format.
func (r *Reader) PixelFormat() types.PixelFormat {
	return types.PixelFormat(r.seg.LoadUint32(hdrPixelFormat))
}

// Segment returns the underlying segment (for teardown).
func (r *Reader) Segment() *shm.Segment { return r.seg }
