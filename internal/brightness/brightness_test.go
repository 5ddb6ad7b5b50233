package brightness

import (
	"bytes"
	"image"
	"image/jpeg"
	"testing"

	"github.com/dj-oyu/rdk-x5_camera-core/pkg/types"
)

func TestClassifyZones(t *testing.T) {
	tests := []struct {
		name string
		avg  float32
		lux  uint32
		want types.BrightnessZone
	}{
		{"pitch black", 0, 0, types.ZoneDark},
		{"just below dark threshold", 49.9, 0, types.ZoneDark},
		{"dark threshold is dim", 50, 0, types.ZoneDim},
		{"just below dim threshold", 69.9, 0, types.ZoneDim},
		{"dim threshold is normal", 70, 0, types.ZoneNormal},
		{"midtone", 128, 0, types.ZoneNormal},
		{"just below bright threshold", 179.9, 0, types.ZoneNormal},
		{"bright threshold", 180, 0, types.ZoneBright},
		{"saturated", 255, 0, types.ZoneBright},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Classify(tt.avg, tt.lux); got != tt.want {
				t.Fatalf("Classify(%v, %d) = %v, want %v", tt.avg, tt.lux, got, tt.want)
			}
		})
	}
}

func TestLuxFloorOverridesBrightImage(t *testing.T) {
	// IR-illuminated night scenes look bright to the sensor but the ambient
	// lux says otherwise; the lux floor wins.
	if got := Classify(200, 50); got != types.ZoneDark {
		t.Fatalf("Classify(200, 50) = %v, want dark", got)
	}
	if got := Classify(200, 100); got != types.ZoneBright {
		t.Fatalf("Classify(200, 100) = %v, want bright (lux at floor)", got)
	}
	// lux 0 means unavailable, not dark.
	if got := Classify(200, 0); got != types.ZoneBright {
		t.Fatalf("Classify(200, 0) = %v, want bright", got)
	}
}

func grayFrame(w, h int, value byte) *types.Frame {
	return &types.Frame{
		Width:  w,
		Height: h,
		Stride: w,
		Format: types.FormatGray,
		Data:   bytes.Repeat([]byte{value}, w*h),
	}
}

func TestEstimateGrayUniform(t *testing.T) {
	avg, zone := Estimate(grayFrame(64, 64, 128), 0)
	if avg != 128 {
		t.Fatalf("Estimate() avg = %v, want 128", avg)
	}
	if zone != types.ZoneNormal {
		t.Fatalf("Estimate() zone = %v, want normal", zone)
	}
}

func TestEstimateNV12UsesYPlaneOnly(t *testing.T) {
	// Y plane all 40 (dark), UV plane all 255: only Y must be sampled.
	w, h := 64, 64
	data := append(bytes.Repeat([]byte{40}, w*h), bytes.Repeat([]byte{255}, w*h/2)...)
	f := &types.Frame{Width: w, Height: h, Stride: w, Format: types.FormatNV12, Data: data}
	avg, zone := Estimate(f, 0)
	if avg != 40 {
		t.Fatalf("Estimate() avg = %v, want 40", avg)
	}
	if zone != types.ZoneDark {
		t.Fatalf("Estimate() zone = %v, want dark", zone)
	}
}

func TestEstimateRGBLumaWeights(t *testing.T) {
	// Pure green: BT.601 weight 0.587 of 255 is 149, in the normal zone.
	w, h := 32, 32
	data := make([]byte, w*h*3)
	for i := 0; i < len(data); i += 3 {
		data[i+1] = 255
	}
	f := &types.Frame{Width: w, Height: h, Stride: w * 3, Format: types.FormatRGB, Data: data}
	avg, zone := Estimate(f, 0)
	if avg != 149 {
		t.Fatalf("Estimate() avg = %v, want 149", avg)
	}
	if zone != types.ZoneNormal {
		t.Fatalf("Estimate() zone = %v, want normal", zone)
	}
}

func TestEstimateJPEG(t *testing.T) {
	img := image.NewGray(image.Rect(0, 0, 64, 64))
	for i := range img.Pix {
		img.Pix[i] = 200
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, nil); err != nil {
		t.Fatalf("jpeg.Encode() error = %v", err)
	}
	f := &types.Frame{Width: 64, Height: 64, Format: types.FormatJPEG, Data: buf.Bytes()}
	avg, zone := Estimate(f, 0)
	if avg < 190 || avg > 210 {
		t.Fatalf("Estimate() avg = %v, want ~200", avg)
	}
	if zone != types.ZoneBright {
		t.Fatalf("Estimate() zone = %v, want bright", zone)
	}
}

func TestEstimateNeverFails(t *testing.T) {
	tests := []struct {
		name string
		f    *types.Frame
	}{
		{"nil frame", nil},
		{"empty payload", &types.Frame{Width: 64, Height: 64, Format: types.FormatGray}},
		{"garbage jpeg", &types.Frame{Width: 64, Height: 64, Format: types.FormatJPEG, Data: []byte("not a jpeg")}},
		{"h264 payload", &types.Frame{Width: 64, Height: 64, Format: types.FormatH264, Data: make([]byte, 100)}},
		{"truncated gray", &types.Frame{Width: 64, Height: 64, Stride: 64, Format: types.FormatGray, Data: make([]byte, 10)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, zone := Estimate(tt.f, 0); zone != types.ZoneNormal {
				t.Fatalf("Estimate() zone = %v, want normal (undecodable, no lux)", zone)
			}
			if _, zone := Estimate(tt.f, 30); zone != types.ZoneDark {
				t.Fatalf("Estimate() with lux 30 zone = %v, want dark", zone)
			}
		})
	}
}

func TestFillPrefersHardwareStats(t *testing.T) {
	f := grayFrame(64, 64, 255)
	f.BrightnessAvg = 42 // ISP AE said dark-ish; pixels disagree
	Fill(f, 0)
	if f.BrightnessAvg != 42 {
		t.Fatalf("BrightnessAvg = %v, want hardware value 42", f.BrightnessAvg)
	}
	if f.BrightnessZone != types.ZoneDark {
		t.Fatalf("BrightnessZone = %v, want dark", f.BrightnessZone)
	}
}

func TestFillFallsBackToPixels(t *testing.T) {
	f := grayFrame(64, 64, 200)
	Fill(f, 500)
	if f.BrightnessAvg != 200 {
		t.Fatalf("BrightnessAvg = %v, want 200", f.BrightnessAvg)
	}
	if f.BrightnessLux != 500 {
		t.Fatalf("BrightnessLux = %d, want 500", f.BrightnessLux)
	}
	if f.BrightnessZone != types.ZoneBright {
		t.Fatalf("BrightnessZone = %v, want bright", f.BrightnessZone)
	}
}
