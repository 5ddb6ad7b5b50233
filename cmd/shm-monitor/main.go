// shm-monitor is a read-only diagnostic tool. It attaches to the
// active-frame slot and the detection store published by camera-hub and
// prints a status line each poll interval.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dj-oyu/rdk-x5_camera-core/internal/detstore"
	"github.com/dj-oyu/rdk-x5_camera-core/internal/ring"
	"github.com/dj-oyu/rdk-x5_camera-core/internal/shm"
	"github.com/dj-oyu/rdk-x5_camera-core/pkg/types"
)

var (
	baseDir   = flag.String("base-dir", shm.DefaultBaseDir, "Shared memory base directory")
	activeShm = flag.String("active-shm", "/pet_camera_active_frame", "Active frame segment name")
	detShm    = flag.String("detection-shm", "/pet_camera_detections", "Detection segment name")
	interval  = flag.Duration("interval", time.Second, "Poll interval")
)

func main() {
	flag.Parse()

	activeSeg, err := shm.Open(*baseDir, *activeShm)
	if err != nil {
		log.Fatalf("Failed to open %s: %v (is camera-hub running?)", *activeShm, err)
	}
	defer activeSeg.Close()

	detSeg, err := shm.Open(*baseDir, *detShm)
	if err != nil {
		log.Fatalf("Failed to open %s: %v", *detShm, err)
	}
	defer detSeg.Close()

	active, err := ring.OpenActiveBuffer(activeSeg)
	if err != nil {
		log.Fatalf("Invalid active segment: %v", err)
	}
	store, err := detstore.New(detSeg, ring.DefaultRetryBound)
	if err != nil {
		log.Fatalf("Invalid detection segment: %v", err)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	ticker := time.NewTicker(*interval)
	defer ticker.Stop()

	var frame types.Frame
	var result types.DetectionResult
	for {
		select {
		case <-sigChan:
			return
		case <-ticker.C:
			printStatus(active, store, &frame, &result)
		}
	}
}

func printStatus(active *ring.ActiveBuffer, store *detstore.Store, f *types.Frame, res *types.DetectionResult) {
	cam, gen, status := active.Read(f)
	switch status {
	case ring.ReadOK:
		fmt.Printf("[active] gen=%d camera=%s seq=%d %dx%d %s zone=%s avg=%.1f lux=%d\n",
			gen, cam, f.FrameNumber, f.Width, f.Height, f.Format, f.BrightnessZone, f.BrightnessAvg, f.BrightnessLux)
	case ring.ReadNoData:
		fmt.Println("[active] no frame published yet")
	default:
		fmt.Printf("[active] gen=%d read contended, retry next poll\n", gen)
	}

	switch store.Read(res) {
	case detstore.ReadOK:
		fmt.Printf("[detect] version=%d frame=%d count=%d", res.Version, res.FrameNumber, len(res.Detections))
		for _, d := range res.Detections {
			fmt.Printf(" %s=%.2f", d.ClassName, d.Confidence)
		}
		fmt.Println()
	case detstore.ReadNoData:
		fmt.Println("[detect] no result published yet")
	default:
		fmt.Println("[detect] read contended, retry next poll")
	}
}
