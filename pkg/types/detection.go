package types

import "time"

// MaxDetections is the fixed capacity of a DetectionResult record in
// shared memory.
const MaxDetections = 10

// MaxClassNameLen is the fixed byte width of a class name in shared memory.
const MaxClassNameLen = 32

// Well-known detection classes produced by the pet-camera detector.
const (
	ClassCat       = "cat"
	ClassDog       = "dog"
	ClassBird      = "bird"
	ClassPerson    = "person"
	ClassFoodBowl  = "food_bowl"
	ClassWaterBowl = "water_bowl"
	ClassDish      = "dish"
)

// BoundingBox is a detection bounding box in pixel coordinates.
type BoundingBox struct {
	X int `json:"x"`
	Y int `json:"y"`
	W int `json:"w"`
	H int `json:"h"`
}

// Detection is a single detected object.
type Detection struct {
	ClassName  string      `json:"class_name"`
	Confidence float32     `json:"confidence"`
	BBox       BoundingBox `json:"bbox"`
}

// DetectionResult is the latest inference output for one frame.
// Version is assigned by the store on write; payload for version v is
// immutable until version v+1 overwrites it.
type DetectionResult struct {
	FrameNumber uint64      `json:"frame_number"`
	Timestamp   time.Time   `json:"timestamp"`
	Detections  []Detection `json:"detections"`
	Version     uint32      `json:"version"`
}
