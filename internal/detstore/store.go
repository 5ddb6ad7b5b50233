// Package detstore implements the single-slot versioned store for the
// latest detection result.
//
// The inference daemon writes at its own best-effort rate; overlay and
// streaming consumers poll faster and cache the last version they saw.
// Writes follow publish-then-stamp: the payload is fully written before
// the version counter advances, so a reader observing version v always
// gets the payload of write number v.
package detstore

import (
	"encoding/binary"
	"fmt"
	"math"
	"sync/atomic"
	"time"

	"github.com/dj-oyu/rdk-x5_camera-core/internal/shm"
	"github.com/dj-oyu/rdk-x5_camera-core/pkg/types"
)

// Record layout. The stamp is an internal seqlock guard (odd while a write
// is in flight); version is the public monotonic counter, bumped by exactly
// one per write, strictly after the payload lands.
const (
	recStamp      = 0  // uint32, atomic
	recVersion    = 4  // uint32, atomic
	recFrameNum   = 8  // uint64
	recTsSec      = 16 // uint64
	recTsNsec     = 24 // uint32
	recNumDet     = 28 // uint32
	recDetections = 32

	detClassName  = 0  // [32]byte, NUL-padded
	detConfidence = 32 // float32 bits
	detBBoxX      = 36 // int32
	detBBoxY      = 40 // int32
	detBBoxW      = 44 // int32
	detBBoxH      = 48 // int32
	detSize       = 56 // padded to 8
)

// SegmentSize is the byte size of a detection segment.
const SegmentSize = recDetections + types.MaxDetections*detSize

// Stats are lightweight counters sampled by the metrics exporter.
type Stats struct {
	Writes    atomic.Uint64
	Reads     atomic.Uint64
	TornReads atomic.Uint64
}

// Store is the single-slot detection record. One writer (the inference
// daemon), any number of readers.
type Store struct {
	seg        *shm.Segment
	retryBound int

	Stats Stats
}

// New wraps a segment as a detection store. A freshly created (zeroed)
// segment is already the valid cold-start state: version 0, no detections.
func New(seg *shm.Segment, retryBound int) (*Store, error) {
	if seg.Size() < SegmentSize {
		return nil, fmt.Errorf("detstore: segment %s is %d bytes, need %d", seg.Name(), seg.Size(), SegmentSize)
	}
	if retryBound < 1 {
		retryBound = 3
	}
	return &Store{seg: seg, retryBound: retryBound}, nil
}

// Write publishes a new detection result and returns its version.
// Detections beyond MaxDetections are truncated.
func (s *Store) Write(frameNumber uint64, ts time.Time, detections []types.Detection) uint32 {
	if len(detections) > types.MaxDetections {
		detections = detections[:types.MaxDetections]
	}
	buf := s.seg.Bytes()
	version := s.seg.LoadUint32(recVersion)

	s.seg.StoreUint32(recStamp, version*2+1)
	binary.LittleEndian.PutUint64(buf[recFrameNum:], frameNumber)
	binary.LittleEndian.PutUint64(buf[recTsSec:], uint64(ts.Unix()))
	binary.LittleEndian.PutUint32(buf[recTsNsec:], uint32(ts.Nanosecond()))
	binary.LittleEndian.PutUint32(buf[recNumDet:], uint32(len(detections)))
	for i, d := range detections {
		base := recDetections + i*detSize
		name := buf[base+detClassName : base+detClassName+types.MaxClassNameLen]
		for j := range name {
			name[j] = 0
		}
		copy(name, d.ClassName)
		binary.LittleEndian.PutUint32(buf[base+detConfidence:], math.Float32bits(d.Confidence))
		binary.LittleEndian.PutUint32(buf[base+detBBoxX:], uint32(int32(d.BBox.X)))
		binary.LittleEndian.PutUint32(buf[base+detBBoxY:], uint32(int32(d.BBox.Y)))
		binary.LittleEndian.PutUint32(buf[base+detBBoxW:], uint32(int32(d.BBox.W)))
		binary.LittleEndian.PutUint32(buf[base+detBBoxH:], uint32(int32(d.BBox.H)))
	}
	s.seg.StoreUint32(recStamp, version*2+2)

	// Payload is complete; announce it.
	newVersion := s.seg.AddUint32(recVersion, 1)
	s.Stats.Writes.Add(1)
	return newVersion
}

// Read snapshots the current (version, payload). Version 0 with an empty
// detection list is the valid never-written state. An unchanged version
// across polls is the expected steady state, not staleness.
func (s *Store) Read(out *types.DetectionResult) ReadOutcome {
	s.Stats.Reads.Add(1)
	for attempt := 0; attempt < s.retryBound; attempt++ {
		s1 := s.seg.LoadUint32(recStamp)
		if s1&1 == 1 {
			s.Stats.TornReads.Add(1)
			continue
		}
		s.decode(out)
		if s.seg.LoadUint32(recStamp) == s1 {
			// After n completed writes the stamp is 2n; deriving the
			// version from the stamp keeps (version, payload) paired even
			// when we land between the payload write and the counter bump.
			out.Version = s1 / 2
			if out.Version == 0 {
				out.Detections = out.Detections[:0]
				return ReadNoData
			}
			return ReadOK
		}
		s.Stats.TornReads.Add(1)
	}
	return ReadStale
}

// Version returns the current version without copying the payload.
func (s *Store) Version() uint32 {
	return s.seg.LoadUint32(recVersion)
}

// Segment returns the underlying segment (for teardown).
func (s *Store) Segment() *shm.Segment { return s.seg }

func (s *Store) decode(out *types.DetectionResult) {
	buf := s.seg.Bytes()
	out.FrameNumber = binary.LittleEndian.Uint64(buf[recFrameNum:])
	sec := int64(binary.LittleEndian.Uint64(buf[recTsSec:]))
	nsec := int64(binary.LittleEndian.Uint32(buf[recTsNsec:]))
	out.Timestamp = time.Unix(sec, nsec)

	n := int(binary.LittleEndian.Uint32(buf[recNumDet:]))
	if n < 0 || n > types.MaxDetections {
		n = types.MaxDetections
	}
	if cap(out.Detections) < n {
		out.Detections = make([]types.Detection, n)
	}
	out.Detections = out.Detections[:n]
	for i := 0; i < n; i++ {
		base := recDetections + i*detSize
		name := buf[base+detClassName : base+detClassName+types.MaxClassNameLen]
		end := 0
		for end < len(name) && name[end] != 0 {
			end++
		}
		out.Detections[i] = types.Detection{
			ClassName:  string(name[:end]),
			Confidence: math.Float32frombits(binary.LittleEndian.Uint32(buf[base+detConfidence:])),
			BBox: types.BoundingBox{
				X: int(int32(binary.LittleEndian.Uint32(buf[base+detBBoxX:]))),
				Y: int(int32(binary.LittleEndian.Uint32(buf[base+detBBoxY:]))),
				W: int(int32(binary.LittleEndian.Uint32(buf[base+detBBoxW:]))),
				H: int(int32(binary.LittleEndian.Uint32(buf[base+detBBoxH:]))),
			},
		}
	}
}

// ReadOutcome classifies a store read.
type ReadOutcome int

const (
	// ReadOK means out holds a consistent (version, payload) snapshot.
	ReadOK ReadOutcome = iota
	// ReadNoData means no write has ever occurred (version 0). Valid.
	ReadNoData
	// ReadStale means the retry bound was hit; reuse the previous snapshot.
	ReadStale
)
