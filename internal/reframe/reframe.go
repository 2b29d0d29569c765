// Package reframe computes portrait (9:16) crop windows for landscape
// footage. It favors a crop that keeps the dominant person in frame,
// based on sampled person detections, and falls back to a centered crop
// when no person is reliably visible.
package reframe

import "sort"

// Heuristic thresholds for accepting a person-based crop.
const (
	// Margin widens the crop beyond the person's bounding box.
	Margin = 1.2
	// MinVisibility is the median detection confidence below which the
	// person track is ignored.
	MinVisibility = 0.45
	// MinHeightRatio is the minimum median person height relative to the
	// frame; smaller figures don't anchor the crop.
	MinHeightRatio = 0.22

	aspectW = 9
	aspectH = 16
)

// Rect is a pixel-space crop window.
type Rect struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Sample is one sampled person detection: the bounding box of the most
// prominent person at a point in time, with the detector's confidence.
type Sample struct {
	Time       float64 `json:"time"`
	X          float64 `json:"x"`
	Y          float64 `json:"y"`
	Width      float64 `json:"width"`
	Height     float64 `json:"height"`
	Visibility float64 `json:"visibility"`
}

// DominantPersonCrop derives a 9:16 crop window that tracks the dominant
// person across the samples. Medians over the whole clip are used so a
// few bad detections don't swing the crop. Returns nil when the person
// track is too faint or too small to anchor a crop; callers fall back to
// CenterCrop.
func DominantPersonCrop(samples []Sample, srcW, srcH int) *Rect {
	if len(samples) == 0 || srcW <= 0 || srcH <= 0 {
		return nil
	}

	var cx, cy, widths, heights, vis []float64
	for _, s := range samples {
		if s.Width <= 0 || s.Height <= 0 {
			continue
		}
		cx = append(cx, s.X+s.Width/2)
		cy = append(cy, s.Y+s.Height/2)
		widths = append(widths, s.Width)
		heights = append(heights, s.Height)
		vis = append(vis, s.Visibility)
	}
	if len(heights) == 0 {
		return nil
	}

	if median(vis) < MinVisibility {
		return nil
	}
	personH := median(heights)
	if personH/float64(srcH) < MinHeightRatio {
		return nil
	}

	cropW, cropH := targetCropSize(float64(srcW), float64(srcH), median(widths), personH)

	x := clamp(median(cx)-cropW/2, 0, float64(srcW)-cropW)
	y := clamp(median(cy)-cropH/2, 0, float64(srcH)-cropH)

	w, h := evenPair(cropW, cropH)
	return &Rect{
		X:      even(x),
		Y:      even(y),
		Width:  w,
		Height: h,
	}
}

// targetCropSize sizes a 9:16 window big enough to contain the person
// box scaled by Margin, then shrinks it uniformly to fit the frame.
func targetCropSize(frameW, frameH, personW, personH float64) (float64, float64) {
	const aspect = float64(aspectW) / float64(aspectH)

	pw := personW * Margin
	ph := personH * Margin

	cropW := pw
	if a := aspect * ph; a > cropW {
		cropW = a
	}
	cropH := cropW / aspect
	if cropH < ph {
		cropH = ph
		cropW = cropH * aspect
	}

	scale := 1.0
	if s := frameW / cropW; s < scale {
		scale = s
	}
	if s := frameH / cropH; s < scale {
		scale = s
	}
	return cropW * scale, cropH * scale
}

// CenterCrop returns the largest centered 9:16 window that fits in the
// frame.
func CenterCrop(srcW, srcH int) Rect {
	cropH := float64(srcH)
	cropW := cropH * aspectW / aspectH
	if cropW > float64(srcW) {
		cropW = float64(srcW)
		cropH = cropW * aspectH / aspectW
	}
	w, h := evenPair(cropW, cropH)
	return Rect{
		X:      even((float64(srcW) - cropW) / 2),
		Y:      even((float64(srcH) - cropH) / 2),
		Width:  w,
		Height: h,
	}
}

func median(vals []float64) float64 {
	if len(vals) == 0 {
		return 0
	}
	sorted := make([]float64, len(vals))
	copy(sorted, vals)
	sort.Float64s(sorted)
	mid := len(sorted) / 2
	if len(sorted)%2 == 0 {
		return (sorted[mid-1] + sorted[mid]) / 2
	}
	return sorted[mid]
}

func clamp(v, lo, hi float64) float64 {
	if hi < lo {
		hi = lo
	}
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// evenPair floors a 9:16 crop to even integers without skewing the
// ratio: the width is floored even and the height derived from it, never
// exceeding the floated height, so the two dimensions stay as close to
// 9:16 as even integers allow.
func evenPair(cropW, cropH float64) (int, int) {
	w := even(cropW)
	h := even(float64(w) * aspectH / aspectW)
	if fh := even(cropH); h > fh {
		h = fh
	}
	return w, h
}

// even floors to the nearest even integer; encoders want even crop
// geometry for 4:2:0 sources.
func even(v float64) int {
	n := int(v)
	if n < 0 {
		n = 0
	}
	return n &^ 1
}
