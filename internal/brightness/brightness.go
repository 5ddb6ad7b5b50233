// Package brightness estimates frame brightness and classifies it into the
// zones that drive camera switching.
//
// Estimation is pure: no automaton state, no side effects. The selector
// calls in here, never the reverse. When ISP AE statistics are available
// they take priority; otherwise the luma plane is sampled directly on a
// 32x32 grid mirroring the ISP AE statistics grid.
package brightness

import (
	"bytes"
	"image"
	"image/jpeg"

	"golang.org/x/image/draw"

	"github.com/dj-oyu/rdk-x5_camera-core/pkg/types"
)

// Zone thresholds on the 0-255 mean-luma scale, plus the lux floor below
// which the environment is dark regardless of how bright the (possibly
// gain-corrected) image looks.
const (
	ThresholdDark    = 50
	ThresholdDim     = 70
	ThresholdBright  = 180
	ThresholdLuxDark = 100
)

// gridSize matches the ISP AE statistics grid (32x32 zones).
const gridSize = 32

// Classify maps a mean brightness and an optional lux reading to a zone.
// lux == 0 is the "unavailable" sentinel and is ignored.
func Classify(avg float32, lux uint32) types.BrightnessZone {
	if avg < ThresholdDark || (lux > 0 && lux < ThresholdLuxDark) {
		return types.ZoneDark
	}
	if avg < ThresholdDim {
		return types.ZoneDim
	}
	if avg < ThresholdBright {
		return types.ZoneNormal
	}
	return types.ZoneBright
}

// Estimate returns (brightness_avg, zone) for a frame. lux is an externally
// supplied illuminance (0 when unavailable). Estimate never fails: frames it
// cannot decode yield a lux-only classification, or ZoneNormal when no lux
// is available either, so a transient bad frame cannot flip the automaton.
func Estimate(f *types.Frame, lux uint32) (float32, types.BrightnessZone) {
	avg, ok := meanLuma(f)
	if !ok {
		if lux > 0 && lux < ThresholdLuxDark {
			return 0, types.ZoneDark
		}
		return 0, types.ZoneNormal
	}
	return avg, Classify(avg, lux)
}

// Fill populates a frame's brightness fields in place. Hardware AE stats
// (a nonzero BrightnessAvg) win; otherwise the pixel fallback runs.
func Fill(f *types.Frame, lux uint32) {
	if lux > 0 {
		f.BrightnessLux = lux
	}
	if f.BrightnessAvg > 0 {
		f.BrightnessZone = Classify(f.BrightnessAvg, f.BrightnessLux)
		return
	}
	f.BrightnessAvg, f.BrightnessZone = Estimate(f, f.BrightnessLux)
}

func meanLuma(f *types.Frame) (float32, bool) {
	if f == nil || len(f.Data) == 0 || f.Width <= 0 || f.Height <= 0 {
		return 0, false
	}
	switch f.Format {
	case types.FormatNV12, types.FormatGray:
		return meanLumaPlanar(f)
	case types.FormatRGB:
		return meanLumaRGB(f)
	case types.FormatJPEG:
		return meanLumaJPEG(f.Data)
	default:
		// H.264 payloads carry no usable pixels.
		return 0, false
	}
}

// meanLumaPlanar samples the Y plane (the leading Width*Height bytes of
// NV12, or the whole payload for gray) on a 32x32 grid.
func meanLumaPlanar(f *types.Frame) (float32, bool) {
	stride := f.Stride
	if stride <= 0 {
		stride = f.Width
	}
	if len(f.Data) < stride*(f.Height-1)+f.Width {
		return 0, false
	}
	var sum uint64
	for gy := 0; gy < gridSize; gy++ {
		y := gy * f.Height / gridSize
		row := y * stride
		for gx := 0; gx < gridSize; gx++ {
			x := gx * f.Width / gridSize
			sum += uint64(f.Data[row+x])
		}
	}
	return float32(sum) / (gridSize * gridSize), true
}

// meanLumaRGB samples packed RGB24 on a 32x32 grid using the BT.601 luma
// weights.
func meanLumaRGB(f *types.Frame) (float32, bool) {
	stride := f.Stride
	if stride <= 0 {
		stride = f.Width * 3
	}
	if len(f.Data) < stride*(f.Height-1)+f.Width*3 {
		return 0, false
	}
	var sum uint64
	for gy := 0; gy < gridSize; gy++ {
		y := gy * f.Height / gridSize
		row := y * stride
		for gx := 0; gx < gridSize; gx++ {
			off := row + (gx*f.Width/gridSize)*3
			r := uint64(f.Data[off])
			g := uint64(f.Data[off+1])
			b := uint64(f.Data[off+2])
			sum += (299*r + 587*g + 114*b) / 1000
		}
	}
	return float32(sum) / (gridSize * gridSize), true
}

// meanLumaJPEG decodes and downscales to the sampling grid before
// averaging. Decode errors are reported as "no reading", never an error.
func meanLumaJPEG(data []byte) (float32, bool) {
	img, err := jpeg.Decode(bytes.NewReader(data))
	if err != nil {
		return 0, false
	}
	small := image.NewGray(image.Rect(0, 0, gridSize, gridSize))
	draw.ApproxBiLinear.Scale(small, small.Bounds(), img, img.Bounds(), draw.Src, nil)
	var sum uint64
	for _, v := range small.Pix {
		sum += uint64(v)
	}
	return float32(sum) / float32(len(small.Pix)), true
}
