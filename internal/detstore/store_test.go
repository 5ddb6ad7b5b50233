package detstore

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/dj-oyu/rdk-x5_camera-core/internal/shm"
	"github.com/dj-oyu/rdk-x5_camera-core/pkg/types"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	seg := shm.NewInMemory("/test_det", SegmentSize)
	s, err := New(seg, 3)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return s
}

func TestReadBeforeFirstWrite(t *testing.T) {
	s := newTestStore(t)
	var out types.DetectionResult
	if outcome := s.Read(&out); outcome != ReadNoData {
		t.Fatalf("Read() on fresh store = %v, want ReadNoData", outcome)
	}
	if out.Version != 0 {
		t.Fatalf("Version = %d, want 0", out.Version)
	}
	if len(out.Detections) != 0 {
		t.Fatalf("Detections = %d entries, want 0", len(out.Detections))
	}
}

func TestWriteReadRoundtrip(t *testing.T) {
	s := newTestStore(t)

	ts := time.Unix(1700000000, 987654321)
	dets := []types.Detection{
		{ClassName: types.ClassCat, Confidence: 0.93, BBox: types.BoundingBox{X: 10, Y: 20, W: 120, H: 90}},
		{ClassName: types.ClassFoodBowl, Confidence: 0.61, BBox: types.BoundingBox{X: 300, Y: 400, W: 64, H: 48}},
	}
	if v := s.Write(17, ts, dets); v != 1 {
		t.Fatalf("Write() version = %d, want 1", v)
	}

	var out types.DetectionResult
	if outcome := s.Read(&out); outcome != ReadOK {
		t.Fatalf("Read() = %v, want ReadOK", outcome)
	}
	if out.Version != 1 || out.FrameNumber != 17 {
		t.Fatalf("(version, frame) = (%d, %d), want (1, 17)", out.Version, out.FrameNumber)
	}
	if !out.Timestamp.Equal(ts) {
		t.Fatalf("Timestamp = %v, want %v", out.Timestamp, ts)
	}
	if len(out.Detections) != 2 {
		t.Fatalf("Detections = %d entries, want 2", len(out.Detections))
	}
	if out.Detections[0].ClassName != types.ClassCat {
		t.Fatalf("ClassName = %q, want %q", out.Detections[0].ClassName, types.ClassCat)
	}
	if out.Detections[0].Confidence != 0.93 {
		t.Fatalf("Confidence = %v, want 0.93", out.Detections[0].Confidence)
	}
	if out.Detections[1].BBox != (types.BoundingBox{X: 300, Y: 400, W: 64, H: 48}) {
		t.Fatalf("BBox = %+v", out.Detections[1].BBox)
	}
}

func TestEmptyResultIsNotNoData(t *testing.T) {
	s := newTestStore(t)
	// "Ran inference, found nothing" is a real result with a real version.
	if v := s.Write(3, time.Now(), nil); v != 1 {
		t.Fatalf("Write() version = %d, want 1", v)
	}
	var out types.DetectionResult
	if outcome := s.Read(&out); outcome != ReadOK {
		t.Fatalf("Read() = %v, want ReadOK", outcome)
	}
	if out.Version != 1 || len(out.Detections) != 0 {
		t.Fatalf("(version, count) = (%d, %d), want (1, 0)", out.Version, len(out.Detections))
	}
}

func TestVersionsNeverDecrease(t *testing.T) {
	s := newTestStore(t)
	var last uint32
	var out types.DetectionResult
	for i := 1; i <= 50; i++ {
		if v := s.Write(uint64(i), time.Now(), nil); v != uint32(i) {
			t.Fatalf("Write(%d) version = %d, want %d", i, v, i)
		}
		if outcome := s.Read(&out); outcome != ReadOK {
			t.Fatalf("Read() = %v, want ReadOK", outcome)
		}
		if out.Version < last {
			t.Fatalf("version went backwards: %d after %d", out.Version, last)
		}
		last = out.Version
	}
}

func TestTruncatesToMaxDetections(t *testing.T) {
	s := newTestStore(t)
	dets := make([]types.Detection, types.MaxDetections+5)
	for i := range dets {
		dets[i] = types.Detection{ClassName: fmt.Sprintf("c%d", i), Confidence: 0.5}
	}
	s.Write(1, time.Now(), dets)

	var out types.DetectionResult
	if outcome := s.Read(&out); outcome != ReadOK {
		t.Fatalf("Read() = %v, want ReadOK", outcome)
	}
	if len(out.Detections) != types.MaxDetections {
		t.Fatalf("Detections = %d entries, want %d", len(out.Detections), types.MaxDetections)
	}
}

func TestLongClassNameTruncated(t *testing.T) {
	s := newTestStore(t)
	long := "a_very_long_class_name_that_exceeds_the_fixed_record_field"
	s.Write(1, time.Now(), []types.Detection{{ClassName: long, Confidence: 1}})

	var out types.DetectionResult
	if outcome := s.Read(&out); outcome != ReadOK {
		t.Fatalf("Read() = %v, want ReadOK", outcome)
	}
	if got := out.Detections[0].ClassName; got != long[:types.MaxClassNameLen] {
		t.Fatalf("ClassName = %q, want %q", got, long[:types.MaxClassNameLen])
	}
}

// TestTwoReadersSameVersionSamePayload writes concurrent with two readers
// polling at different rates; any two reads that return the same version
// must decode an identical payload.
func TestTwoReadersSameVersionSamePayload(t *testing.T) {
	s := newTestStore(t)

	type snap struct {
		version uint32
		frame   uint64
		count   int
	}
	seen := make([]map[uint32]snap, 2)
	stop := make(chan struct{})
	var wg sync.WaitGroup

	for i := 0; i < 2; i++ {
		seen[i] = make(map[uint32]snap)
		wg.Add(1)
		go func(m map[uint32]snap) {
			defer wg.Done()
			var out types.DetectionResult
			for {
				select {
				case <-stop:
					return
				default:
				}
				if s.Read(&out) != ReadOK {
					continue
				}
				m[out.Version] = snap{out.Version, out.FrameNumber, len(out.Detections)}
			}
		}(seen[i])
	}

	for i := 1; i <= 2000; i++ {
		dets := make([]types.Detection, i%types.MaxDetections)
		for j := range dets {
			dets[j] = types.Detection{ClassName: types.ClassDog, Confidence: 0.5}
		}
		s.Write(uint64(i)*3, time.Now(), dets)
	}
	close(stop)
	wg.Wait()

	for v, a := range seen[0] {
		b, ok := seen[1][v]
		if !ok {
			continue
		}
		if a != b {
			t.Fatalf("version %d decoded differently: %+v vs %+v", v, a, b)
		}
		// The payload must be the one written at version v.
		if a.frame != uint64(v)*3 {
			t.Fatalf("version %d paired with frame %d, want %d", v, a.frame, uint64(v)*3)
		}
	}
}

func TestSegmentTooSmall(t *testing.T) {
	seg := shm.NewInMemory("/tiny", SegmentSize-1)
	if _, err := New(seg, 3); err == nil {
		t.Fatal("New() on undersized segment succeeded, want error")
	}
}
