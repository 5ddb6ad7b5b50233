// Package shm maps POSIX shared memory segments into the process and
// exposes atomic word access on the mapped bytes.
//
// Each segment has exactly one writer process and any number of readers.
// The package never takes kernel locks; higher layers build their
// publish/read protocols from the atomic accessors below.
package shm

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/sys/unix"
)

// ErrSegmentUnavailable means a segment could not be created or mapped at
// startup. This is the only fatal condition in the IPC layer.
var ErrSegmentUnavailable = errors.New("shared memory segment unavailable")

// DefaultBaseDir is where POSIX shared memory objects live on Linux.
const DefaultBaseDir = "/dev/shm"

// Segment is a mapped shared memory region. A Segment backed by plain heap
// memory (NewInMemory) behaves identically and is used by tests and the
// mock daemons.
type Segment struct {
	name   string
	data   []byte
	mapped bool
	file   string
}

func segmentPath(baseDir, name string) string {
	return filepath.Join(baseDir, strings.TrimPrefix(name, "/"))
}

// Create creates (or truncates to size) a segment and maps it read-write.
// Writer side only; the region starts zeroed.
func Create(baseDir, name string, size int) (*Segment, error) {
	if size <= 0 {
		return nil, fmt.Errorf("%w: invalid size %d for %s", ErrSegmentUnavailable, size, name)
	}
	path := segmentPath(baseDir, name)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o666)
	if err != nil {
		return nil, fmt.Errorf("%w: create %s: %v", ErrSegmentUnavailable, path, err)
	}
	defer f.Close()

	if err := f.Truncate(int64(size)); err != nil {
		return nil, fmt.Errorf("%w: truncate %s: %v", ErrSegmentUnavailable, path, err)
	}
	data, err := unix.Mmap(int(f.Fd()), 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return nil, fmt.Errorf("%w: mmap %s: %v", ErrSegmentUnavailable, path, err)
	}
	return &Segment{name: name, data: data, mapped: true, file: path}, nil
}

// Open maps an existing segment. Reader side; fails if the segment does not
// exist so callers can distinguish "daemon not started" at startup.
func Open(baseDir, name string) (*Segment, error) {
	path := segmentPath(baseDir, name)
	f, err := os.OpenFile(path, os.O_RDWR, 0o666)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %v", ErrSegmentUnavailable, path, err)
	}
	defer f.Close()

	st, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("%w: stat %s: %v", ErrSegmentUnavailable, path, err)
	}
	size := int(st.Size())
	if size == 0 {
		return nil, fmt.Errorf("%w: %s is empty", ErrSegmentUnavailable, path)
	}
	data, err := unix.Mmap(int(f.Fd()), 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return nil, fmt.Errorf("%w: mmap %s: %v", ErrSegmentUnavailable, path, err)
	}
	return &Segment{name: name, data: data, mapped: true, file: path}, nil
}

// NewInMemory returns a heap-backed segment with the same semantics as a
// mapped one. Cross-process visibility obviously does not apply.
func NewInMemory(name string, size int) *Segment {
	return &Segment{name: name, data: make([]byte, size)}
}

// Name returns the segment name (e.g. "/pet_camera_active_frame").
func (s *Segment) Name() string { return s.name }

// Size returns the mapped length in bytes.
func (s *Segment) Size() int { return len(s.data) }

// Bytes returns the raw mapped region. Callers must respect the one-writer
// rule; readers copy out of this slice under a stamp recheck.
func (s *Segment) Bytes() []byte { return s.data }

// Close unmaps the region. The underlying object stays alive for other
// processes; use Unlink to delete it.
func (s *Segment) Close() error {
	if !s.mapped || s.data == nil {
		s.data = nil
		return nil
	}
	err := unix.Munmap(s.data)
	s.data = nil
	s.mapped = false
	return err
}

// Unlink removes the backing object. Owner (writer) side, at teardown.
func (s *Segment) Unlink() error {
	if s.file == "" {
		return nil
	}
	return os.Remove(s.file)
}
